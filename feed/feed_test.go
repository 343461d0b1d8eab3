package feed

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dsgolman/supportai-bot-sub000/domain"
	"github.com/dsgolman/supportai-bot-sub000/domain/event"
	"github.com/dsgolman/supportai-bot-sub000/repositories"
)

func startTestFeed(t *testing.T) (*badger.DB, *Feed) {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	feed := New(db, slog.Default(), 64)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = feed.Run(ctx) }()
	// Give the store subscription a beat to install.
	time.Sleep(50 * time.Millisecond)
	return db, feed
}

func collect(t *testing.T, sub *Subscription, n int) []event.ChangeEvent {
	t.Helper()
	var events []event.ChangeEvent
	deadline := time.After(5 * time.Second)
	for len(events) < n {
		select {
		case evt := <-sub.C:
			events = append(events, evt)
		case <-deadline:
			t.Fatalf("collected %d/%d events before timeout", len(events), n)
		}
	}
	return events
}

func Test_Feed_Delivers_Messages_In_Append_Order(t *testing.T) {
	req := require.New(t)
	db, feed := startTestFeed(t)
	messages := repositories.NewMessageRepository(db, slog.Default(), nil)

	sub := feed.Subscribe(ForGroup[event.MessageAppended]("g1"))
	defer sub.Unsubscribe()

	at := time.Now().UTC()
	var ids []uuid.UUID
	for i := 0; i < 10; i++ {
		m := domain.Message{
			ID:        uuid.New(),
			GroupID:   "g1",
			Kind:      domain.MessageText,
			Body:      fmt.Sprintf("message %d", i),
			CreatedAt: at.Add(time.Duration(i) * time.Millisecond),
		}
		req.NoError(messages.Append(m))
		ids = append(ids, m.ID)
	}

	events := collect(t, sub, len(ids))
	for i, evt := range events {
		appended, ok := evt.(event.MessageAppended)
		req.True(ok)
		req.Equal(ids[i], appended.Message.ID)
	}
}

func Test_Feed_Filter_Scopes_Group_And_Kind(t *testing.T) {
	req := require.New(t)
	db, feed := startTestFeed(t)
	sessions := repositories.NewSessionRepository(db, slog.Default())
	turns := repositories.NewTurnRepository(db, slog.Default())

	sub := feed.Subscribe(ForGroup[event.SessionChanged]("g1"))
	defer sub.Unsubscribe()

	// Noise: another group's session and the same group's turn state
	req.NoError(sessions.Upsert(domain.Session{GroupID: "g2", Status: domain.SessionConnected}))
	req.NoError(turns.Put(domain.EmptyTurnState("g1")))
	req.NoError(sessions.Upsert(domain.Session{GroupID: "g1", Status: domain.SessionConnecting}))

	events := collect(t, sub, 1)
	changed, ok := events[0].(event.SessionChanged)
	req.True(ok)
	req.Equal(domain.GroupID("g1"), changed.GroupID())
	req.Equal(domain.SessionConnecting, changed.Session.Status)

	select {
	case evt := <-sub.C:
		t.Fatalf("unexpected extra event: %#v", evt)
	case <-time.After(200 * time.Millisecond):
	}
}

func Test_Feed_Session_Delete_Becomes_Delete_Event(t *testing.T) {
	req := require.New(t)
	db, feed := startTestFeed(t)
	sessions := repositories.NewSessionRepository(db, slog.Default())

	sub := feed.Subscribe(ForGroup[event.SessionChanged]("g1"))
	defer sub.Unsubscribe()

	req.NoError(sessions.Upsert(domain.Session{GroupID: "g1", Status: domain.SessionConnected}))
	req.NoError(sessions.Delete("g1"))

	events := collect(t, sub, 2)
	first := events[0].(event.SessionChanged)
	second := events[1].(event.SessionChanged)
	req.Equal(event.OpSet, first.Op)
	req.Equal(event.OpDelete, second.Op)
}

func Test_Unsubscribe_Is_Idempotent_And_Stops_Delivery(t *testing.T) {
	req := require.New(t)
	db, feed := startTestFeed(t)
	sessions := repositories.NewSessionRepository(db, slog.Default())

	sub := feed.Subscribe(nil)

	sub.Unsubscribe()
	sub.Unsubscribe()

	select {
	case <-sub.Done():
	default:
		t.Fatal("Done must be closed after Unsubscribe")
	}

	// Writes after release never block the dispatch loop.
	req.NoError(sessions.Upsert(domain.Session{GroupID: "g1", Status: domain.SessionConnected}))
	time.Sleep(100 * time.Millisecond)

	select {
	case evt := <-sub.C:
		t.Fatalf("delivery after unsubscribe: %#v", evt)
	default:
	}
}
