//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"github.com/dsgolman/supportai-bot-sub000/domain"
	"github.com/dsgolman/supportai-bot-sub000/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker
// lifecycle events, avoiding the need for manual naming in the interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink consumes change-feed events.
type EventSink interface {
	Consume(ctx context.Context, e event.ChangeEvent) error
}

// FacilitatorEvent is one decoded event off the facilitator stream,
// tagged by kind ("text" or "audio").
type FacilitatorEvent struct {
	Kind  string
	Text  string
	Audio []byte
	MIME  string
}

// FacilitatorConn is one live streaming connection to the AI facilitator.
// The connection manager owns it exclusively; other components only reach
// it through the registry to forward user text. Events is closed when the
// connection dies.
type FacilitatorConn interface {
	ConversationID() string
	Alive() bool
	SendText(ctx context.Context, text string) error
	Ping(ctx context.Context) error
	Events() <-chan FacilitatorEvent
	Close() error
}

// IConnRegistry holds the at-most-one live facilitator connection per group.
// It is created at process start and torn down at shutdown; nothing else
// may hold cross-request connection state.
type IConnRegistry interface {
	Get(groupID domain.GroupID) (FacilitatorConn, bool)
	Put(groupID domain.GroupID, conn FacilitatorConn) bool
	Remove(groupID domain.GroupID, conn FacilitatorConn) bool
	CloseAll()
}

// Store lookups return the explicit three-way result (record, found, err)
// so a missing row is never conflated with a store failure.

type SessionStore interface {
	Get(groupID domain.GroupID) (domain.Session, bool, error)
	Upsert(session domain.Session) error
	Delete(groupID domain.GroupID) error
}

type TurnStore interface {
	Get(groupID domain.GroupID) (domain.TurnState, bool, error)
	Put(state domain.TurnState) error
	Reset(groupID domain.GroupID) error
}

type ParticipantStore interface {
	Get(groupID domain.GroupID, userID string) (domain.Participant, bool, error)
	Upsert(p domain.Participant) error
	ListByGroup(groupID domain.GroupID) ([]domain.Participant, error)
}

type MessageStore interface {
	Append(m domain.Message) error
	List(groupID domain.GroupID, cursor *string) ([]domain.Message, *string, error)
}

// AudioSink receives facilitator audio events from the connection manager.
type AudioSink interface {
	ConsumeAudio(ctx context.Context, chunk domain.AudioChunk) error
}
