// Package event defines the row-change events carried by the change feed.
// Every component treats its in-memory state as a cache invalidated by
// these events, never as authority.
package event

import (
	"github.com/dsgolman/supportai-bot-sub000/domain"
)

type Operation string

const (
	OpSet    Operation = "set"
	OpDelete Operation = "delete"
)

// ChangeEvent is one row-level change observed on the store.
type ChangeEvent interface {
	GroupID() domain.GroupID
}

type MessageAppended struct {
	Message domain.Message
}

func (e MessageAppended) GroupID() domain.GroupID { return e.Message.GroupID }

type ParticipantChanged struct {
	Op          Operation
	Participant domain.Participant
}

func (e ParticipantChanged) GroupID() domain.GroupID { return e.Participant.GroupID }

type SessionChanged struct {
	Op      Operation
	Group   domain.GroupID
	Session domain.Session
}

func (e SessionChanged) GroupID() domain.GroupID { return e.Group }

type TurnChanged struct {
	Op   Operation
	Turn domain.TurnState
}

func (e TurnChanged) GroupID() domain.GroupID { return e.Turn.GroupID }

type AudioBroadcast struct {
	Chunk domain.AudioChunk
}

func (e AudioBroadcast) GroupID() domain.GroupID { return e.Chunk.GroupID }
