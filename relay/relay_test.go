package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dsgolman/supportai-bot-sub000/contract"
	"github.com/dsgolman/supportai-bot-sub000/domain"
	"github.com/dsgolman/supportai-bot-sub000/feed"
	"github.com/dsgolman/supportai-bot-sub000/moderation"
	"github.com/dsgolman/supportai-bot-sub000/repositories"
	"github.com/dsgolman/supportai-bot-sub000/runtime"
)

// stubConn records forwarded text.
type stubConn struct {
	mu    sync.Mutex
	sent  []string
	alive bool
}

func (c *stubConn) ConversationID() string { return "conv-1" }
func (c *stubConn) Alive() bool            { return c.alive }
func (c *stubConn) Ping(context.Context) error {
	return nil
}
func (c *stubConn) Events() <-chan contract.FacilitatorEvent { return nil }
func (c *stubConn) Close() error                             { return nil }

func (c *stubConn) SendText(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	return nil
}

func (c *stubConn) sentTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

type relayFixture struct {
	relay        *Relay
	messages     repositories.MessageRepository
	participants repositories.ParticipantRepository
	registry     *runtime.ConnRegistry
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	changeFeed := feed.New(db, log, 64)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = changeFeed.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	messages := repositories.NewMessageRepository(db, log, nil)
	participants := repositories.NewParticipantRepository(db, log)
	registry := runtime.NewConnRegistry()
	moderator, err := moderation.NewFromWords([]string{"jerk"}, '*')
	require.NoError(t, err)

	return &relayFixture{
		relay:        New(log, changeFeed, messages, participants, registry, moderator),
		messages:     messages,
		participants: participants,
		registry:     registry,
	}
}

func Test_RelayUserText_Persists_Without_A_Connection(t *testing.T) {
	req := require.New(t)
	fixture := newRelayFixture(t)

	// When relaying with no facilitator connection at all
	msg, err := fixture.relay.RelayUserText(context.Background(), "g1", "alice", "hello circle")

	// Then the message is durable anyway
	req.NoError(err)
	list, _, err := fixture.messages.List("g1", nil)
	req.NoError(err)
	req.Len(list, 1)
	req.Equal(msg.ID, list[0].ID)
	req.Equal("alice", list[0].AuthorID)
}

func Test_RelayUserText_Forwards_To_Live_Connection(t *testing.T) {
	req := require.New(t)
	fixture := newRelayFixture(t)

	conn := &stubConn{alive: true}
	fixture.registry.Put("g1", conn)

	_, err := fixture.relay.RelayUserText(context.Background(), "g1", "alice", "hello circle")
	req.NoError(err)
	req.Equal([]string{"hello circle"}, conn.sentTexts())
}

func Test_RelayUserText_Censors_Before_Anything_Else(t *testing.T) {
	req := require.New(t)
	fixture := newRelayFixture(t)

	conn := &stubConn{alive: true}
	fixture.registry.Put("g1", conn)

	msg, err := fixture.relay.RelayUserText(context.Background(), "g1", "alice", "you jerk")
	req.NoError(err)

	// Both the stored row and the forwarded text carry the masked word
	req.Equal("you ****", msg.Body)
	req.Equal([]string{"you ****"}, conn.sentTexts())
}

func Test_RelayUserText_Tags_Reliable_Language(t *testing.T) {
	req := require.New(t)
	fixture := newRelayFixture(t)

	msg, err := fixture.relay.RelayUserText(context.Background(), "g1", "alice",
		"je voudrais partager quelque chose avec le groupe aujourd'hui")
	req.NoError(err)
	req.Equal("fra", msg.Language)
}

func Test_SubscribeMessages_Delivers_In_Order_Without_Duplicates(t *testing.T) {
	req := require.New(t)
	fixture := newRelayFixture(t)
	ctx := context.Background()

	var mu sync.Mutex
	var received []uuid.UUID
	sub := fixture.relay.SubscribeMessages(ctx, "g1", func(m domain.Message) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, m.ID)
	})
	defer sub.Unsubscribe()

	at := time.Now().UTC()
	var appended []domain.Message
	for i := 0; i < 5; i++ {
		m := domain.Message{
			ID:        uuid.New(),
			GroupID:   "g1",
			AuthorID:  "alice",
			Kind:      domain.MessageText,
			Body:      fmt.Sprintf("message %d", i),
			CreatedAt: at.Add(time.Duration(i) * time.Millisecond),
		}
		req.NoError(fixture.messages.Append(m))
		appended = append(appended, m)
	}
	// Rewriting an existing row redelivers its feed event; the relay
	// must swallow the duplicate.
	req.NoError(fixture.messages.Append(appended[2]))

	req.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == len(appended)
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	req.Len(received, len(appended))
	for i, id := range received {
		req.Equal(appended[i].ID, id)
	}
}

func Test_SubscribeParticipants_Pushes_Full_Lists(t *testing.T) {
	req := require.New(t)
	fixture := newRelayFixture(t)
	ctx := context.Background()

	var mu sync.Mutex
	var lastList []domain.Participant
	sub := fixture.relay.SubscribeParticipants(ctx, "g1", func(list []domain.Participant) {
		mu.Lock()
		defer mu.Unlock()
		lastList = list
	})
	defer sub.Unsubscribe()

	_, err := fixture.relay.Join(ctx, "g1", "alice", "Alice")
	req.NoError(err)
	_, err = fixture.relay.Join(ctx, "g1", "bob", "Bob")
	req.NoError(err)

	req.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(lastList) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func Test_Join_Is_Stable_Across_Rejoins(t *testing.T) {
	req := require.New(t)
	fixture := newRelayFixture(t)
	ctx := context.Background()

	first, err := fixture.relay.Join(ctx, "g1", "alice", "Alice")
	req.NoError(err)

	// Rejoining refreshes the display name only
	second, err := fixture.relay.Join(ctx, "g1", "alice", "Alice L.")
	req.NoError(err)
	req.Equal(first.JoinedAt, second.JoinedAt)
	req.Equal("Alice L.", second.DisplayName)

	list, err := fixture.participants.ListByGroup("g1")
	req.NoError(err)
	req.Len(list, 1)
}
