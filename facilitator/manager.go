package facilitator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dsgolman/supportai-bot-sub000/contract"
	"github.com/dsgolman/supportai-bot-sub000/domain"
	apperrors "github.com/dsgolman/supportai-bot-sub000/errors"
	"github.com/dsgolman/supportai-bot-sub000/runtime/workers"
)

// Config carries the facilitator endpoint settings and the retry policy.
type Config struct {
	Endpoint      string
	APIKey        string
	ConfigID      string
	FacilitatorID string

	HeartbeatInterval time.Duration
	ProbeTimeout      time.Duration
	ReconnectDelay    time.Duration
	HandshakeTimeout  time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
}

/// DefaultConfig applies the fixed intervals of the protocol: a 30 s
// heartbeat and 5 s between reconnect attempts.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 30 * time.Second,
		ProbeTimeout:      10 * time.Second,
		ReconnectDelay:    5 * time.Second,
		HandshakeTimeout:  15 * time.Second,
		ReadTimeout:       90 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// Manager owns every live facilitator connection.
//
// The Session row in the store is the arbitration point; the registry is
// the in-memory mirror. Per-group slots serialize start/close/reconnect,
// and a generation counter on each slot lets the timer of a superseded
// connection attempt detect its own obsolescence and no-op.
type Manager struct {
	log      *slog.Logger
	cfg      Config
	dialer   Dialer
	registry contract.IConnRegistry
	sessions contract.SessionStore
	turns    contract.TurnStore
	messages contract.MessageStore
	audio    contract.AudioSink
	sup      contract.ISupervisor

	mu      sync.Mutex
	slots   map[domain.GroupID]*groupSlot
	baseCtx context.Context
}

// groupSlot is the per-group synchronization point.
type groupSlot struct {
	mu         sync.Mutex
	gen        uint64
	timer      *time.Timer
	cancelConn context.CancelFunc
}

func NewManager(
	log *slog.Logger,
	cfg Config,
	dialer Dialer,
	registry contract.IConnRegistry,
	sessions contract.SessionStore,
	turns contract.TurnStore,
	messages contract.MessageStore,
	audio contract.AudioSink,
	sup contract.ISupervisor,
) *Manager {
	return &Manager{
		log:      log,
		cfg:      cfg,
		dialer:   dialer,
		registry: registry,
		sessions: sessions,
		turns:    turns,
		messages: messages,
		audio:    audio,
		sup:      sup,
		slots:    make(map[domain.GroupID]*groupSlot),
		baseCtx:  context.Background(),
	}
}

// Run implements contract.Worker: it pins the lifecycle context for
// connection-scoped goroutines and tears every connection down when the
// process stops.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	m.baseCtx = ctx
	m.mu.Unlock()

	<-ctx.Done()
	m.registry.CloseAll()
	return ctx.Err()
}

// StartSession opens (or reuses) the group's facilitator connection and
// returns its conversation id.
//
// Idempotent start: a healthy existing connection short-circuits with its
// own conversation id instead of erroring. Concurrent calls for one group
// serialize on the slot and converge on a single external connection.
func (m *Manager) StartSession(ctx context.Context, groupID domain.GroupID, resumeToken string) (string, error) {
	if m.cfg.APIKey == "" {
		return "", apperrors.ErrMissingFacilitatorKey
	}

	slot := m.slot(groupID)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if conn, ok := m.registry.Get(groupID); ok && conn.Alive() {
		return conn.ConversationID(), nil
	}

	gen := m.supersede(slot)

	conversationID := resumeToken
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	session := domain.Session{
		GroupID:        groupID,
		Status:         domain.SessionConnecting,
		ConversationID: conversationID,
		FacilitatorID:  m.cfg.FacilitatorID,
	}
	if err := m.persist(session); err != nil {
		return "", err
	}

	if err := m.openLocked(ctx, slot, groupID, session, gen); err != nil {
		session.Status = domain.SessionError
		_ = m.persist(session)
		m.scheduleReconnectLocked(slot, groupID, gen)
		return "", err
	}
	return conversationID, nil
}

// CloseSession is idempotent: it closes any open connection, stops its
// heartbeat, cancels a pending reconnect, drops the in-memory handle, sets
// the record disconnected, and resets the group's turn state.
func (m *Manager) CloseSession(ctx context.Context, groupID domain.GroupID) error {
	slot := m.slot(groupID)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	m.supersede(slot)

	if conn, ok := m.registry.Get(groupID); ok {
		m.registry.Remove(groupID, conn)
		_ = conn.Close()
	}

	if session, found, err := m.sessions.Get(groupID); err != nil {
		m.log.Warn("Session read failed on close", "group", groupID, "error", err)
	} else if found {
		session.Status = domain.SessionDisconnected
		if err := m.persist(session); err != nil {
			return err
		}
	}

	if err := m.turns.Reset(groupID); err != nil {
		return fmt.Errorf("reset turn state %s: %w", groupID, err)
	}
	return nil
}

// openLocked dials and installs a connection. Caller holds the slot lock.
func (m *Manager) openLocked(ctx context.Context, slot *groupSlot, groupID domain.GroupID, session domain.Session, gen uint64) error {
	conn, err := m.dialer.Dial(ctx, ConnConfig{
		Endpoint:         m.cfg.Endpoint,
		APIKey:           m.cfg.APIKey,
		ConfigID:         m.cfg.ConfigID,
		ConversationID:   session.ConversationID,
		HandshakeTimeout: m.cfg.HandshakeTimeout,
		ReadTimeout:      m.cfg.ReadTimeout,
		WriteTimeout:     m.cfg.WriteTimeout,
	})
	if err != nil {
		return err
	}

	if !m.registry.Put(groupID, conn) {
		// Lost the race against another live connection; keep theirs.
		_ = conn.Close()
		return nil
	}

	session.Status = domain.SessionConnected
	session.ReconnectAttempts = 0
	if err := m.persist(session); err != nil {
		m.registry.Remove(groupID, conn)
		_ = conn.Close()
		return err
	}

	connCtx, cancel := context.WithCancel(m.lifecycleCtx())
	slot.cancelConn = cancel

	go m.consume(connCtx, groupID, conn)
	m.sup.Start(connCtx, workers.NewHeartbeatWorker(
		m.log, groupID, conn,
		m.cfg.HeartbeatInterval, m.cfg.ProbeTimeout,
		m.handleConnLoss,
	))

	m.log.Info("Facilitator connected", "group", groupID, "conversation", session.ConversationID)
	return nil
}

// consume drains inbound events: text becomes a facilitator-authored
// message row (the change feed re-broadcasts it to all subscribers), audio
// goes to the audio sink and is never persisted as text.
func (m *Manager) consume(ctx context.Context, groupID domain.GroupID, conn contract.FacilitatorConn) {
	var seq int64
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-conn.Events():
			if !ok {
				if ctx.Err() == nil {
					m.handleConnLoss(groupID, conn, apperrors.ErrConnClosed)
				}
				return
			}
			switch evt.Kind {
			case KindText:
				msg := domain.Message{
					ID:        uuid.New(),
					GroupID:   groupID,
					Kind:      domain.MessageText,
					Body:      evt.Text,
					CreatedAt: time.Now().UTC(),
				}
				if err := m.messages.Append(msg); err != nil {
					m.log.Warn("Facilitator message not stored", "group", groupID, "error", err)
				}
			case KindAudio:
				seq++
				chunk := domain.AudioChunk{
					GroupID: groupID,
					Seq:     seq,
					MIME:    evt.MIME,
					Data:    evt.Audio,
					At:      time.Now().UTC(),
				}
				if err := m.audio.ConsumeAudio(ctx, chunk); err != nil {
					m.log.Warn("Facilitator audio dropped", "group", groupID, "error", err)
				}
			default:
				m.log.Debug("Unknown facilitator event kind", "kind", evt.Kind)
			}
		}
	}
}

// handleConnLoss runs the disconnect path for an unexpected close or a
// failed probe. A connection that already lost its registry slot was
// superseded; nothing to do then.
func (m *Manager) handleConnLoss(groupID domain.GroupID, conn contract.FacilitatorConn, cause error) {
	slot := m.slot(groupID)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if !m.registry.Remove(groupID, conn) {
		return
	}
	if slot.cancelConn != nil {
		slot.cancelConn()
		slot.cancelConn = nil
	}
	_ = conn.Close()

	m.log.Warn("Facilitator connection lost", "group", groupID, "cause", cause)

	session, found, err := m.sessions.Get(groupID)
	if err != nil || !found {
		return
	}
	session.Status = domain.SessionError
	if err := m.persist(session); err != nil {
		m.log.Warn("Session error status not persisted", "group", groupID, "error", err)
	}
	m.scheduleReconnectLocked(slot, groupID, slot.gen)
}

// scheduleReconnectLocked arms the fixed-delay reconnect timer, unless the
// attempt budget is spent — then the session is left disconnected with no
// pending timer, requiring a fresh explicit start.
func (m *Manager) scheduleReconnectLocked(slot *groupSlot, groupID domain.GroupID, gen uint64) {
	session, found, err := m.sessions.Get(groupID)
	if err != nil || !found {
		return
	}
	if session.Exhausted() {
		session.Status = domain.SessionDisconnected
		_ = m.persist(session)
		m.log.Warn("Facilitator reconnects exhausted", "group", groupID, "attempts", session.ReconnectAttempts)
		return
	}
	slot.timer = time.AfterFunc(m.cfg.ReconnectDelay, func() {
		m.reconnect(groupID, gen)
	})
}

// reconnect is the timer body. The generation check makes a timer armed
// before an explicit close or a fresh start detect its own obsolescence.
func (m *Manager) reconnect(groupID domain.GroupID, gen uint64) {
	slot := m.slot(groupID)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.gen != gen {
		return
	}
	slot.timer = nil

	session, found, err := m.sessions.Get(groupID)
	if err != nil || !found {
		return
	}
	if session.Exhausted() {
		session.Status = domain.SessionDisconnected
		_ = m.persist(session)
		return
	}

	session.ReconnectAttempts++
	session.Status = domain.SessionConnecting
	if err := m.persist(session); err != nil {
		m.log.Warn("Reconnect attempt not persisted", "group", groupID, "error", err)
		return
	}

	m.log.Info("Reconnecting facilitator", "group", groupID, "attempt", session.ReconnectAttempts)

	if err := m.openLocked(m.lifecycleCtx(), slot, groupID, session, gen); err != nil {
		if session.Exhausted() {
			session.Status = domain.SessionDisconnected
		} else {
			session.Status = domain.SessionError
		}
		_ = m.persist(session)
		if !session.Exhausted() {
			m.scheduleReconnectLocked(slot, groupID, gen)
		}
	}
}

// supersede bumps the slot generation, disarms any pending reconnect and
// cancels connection-scoped goroutines. Caller holds the slot lock.
func (m *Manager) supersede(slot *groupSlot) uint64 {
	slot.gen++
	if slot.timer != nil {
		slot.timer.Stop()
		slot.timer = nil
	}
	if slot.cancelConn != nil {
		slot.cancelConn()
		slot.cancelConn = nil
	}
	return slot.gen
}

func (m *Manager) slot(groupID domain.GroupID) *groupSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[groupID]
	if !ok {
		s = &groupSlot{}
		m.slots[groupID] = s
	}
	return s
}

func (m *Manager) lifecycleCtx() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.baseCtx
}

func (m *Manager) persist(session domain.Session) error {
	session.UpdatedAt = time.Now().UTC()
	if err := m.sessions.Upsert(session); err != nil {
		return fmt.Errorf("persist session %s: %w", session.GroupID, err)
	}
	return nil
}
