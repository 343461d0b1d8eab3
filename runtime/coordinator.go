package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dsgolman/supportai-bot-sub000/contract"
	"github.com/dsgolman/supportai-bot-sub000/domain"
)

// Coordinator arbitrates the speaking turn per group.
//
// It is the single writer of TurnState: callers serialize raise/lower/
// grant/end through this one instance, which makes the transitions
// linearizable per group. A missing row is an implicit empty state,
// created on first write. Stage and hand flags on the Participant rows
// are mirrored on every transition for presence display.
type Coordinator struct {
	mu           sync.Mutex
	log          *slog.Logger
	turns        contract.TurnStore
	participants contract.ParticipantStore
	now          func() time.Time
}

func NewCoordinator(log *slog.Logger, turns contract.TurnStore, participants contract.ParticipantStore) *Coordinator {
	return &Coordinator{
		log:          log,
		turns:        turns,
		participants: participants,
		now:          time.Now,
	}
}

// RaiseHand queues userID at the tail. Already queued or currently speaking
// participants are a no-op.
func (c *Coordinator) RaiseHand(ctx context.Context, groupID domain.GroupID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.load(groupID)
	if err != nil {
		return err
	}

	at := c.now().UTC()
	if !state.RaiseHand(userID, at) {
		return nil
	}
	if err := c.turns.Put(state); err != nil {
		return fmt.Errorf("persist turn state %s: %w", groupID, err)
	}
	c.markHand(groupID, userID, true, &at)
	return nil
}

// LowerHand removes userID from the queue, no-op when absent.
func (c *Coordinator) LowerHand(ctx context.Context, groupID domain.GroupID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.load(groupID)
	if err != nil {
		return err
	}
	if !state.LowerHand(userID) {
		return nil
	}
	if err := c.turns.Put(state); err != nil {
		return fmt.Errorf("persist turn state %s: %w", groupID, err)
	}
	c.markHand(groupID, userID, false, nil)
	return nil
}

// GrantNext hands the floor to the earliest raised hand, or goes idle.
func (c *Coordinator) GrantNext(ctx context.Context, groupID domain.GroupID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.grantNextLocked(groupID)
}

// EndTurn releases the floor. Only the current speaker may end their turn;
// anyone else is an idempotent short-circuit. The next queued participant
// is granted immediately.
func (c *Coordinator) EndTurn(ctx context.Context, groupID domain.GroupID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.load(groupID)
	if err != nil {
		return err
	}
	if state.CurrentSpeaker != userID {
		c.log.Debug("EndTurn by non-speaker ignored", "group", groupID, "user", userID)
		return nil
	}
	c.markStage(groupID, userID, false)
	return c.applyGrant(state)
}

// State returns the current turn state, implicit empty when missing.
func (c *Coordinator) State(ctx context.Context, groupID domain.GroupID) (domain.TurnState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(groupID)
}

// Reset clears speaker and queue, used when a session closes.
func (c *Coordinator) Reset(ctx context.Context, groupID domain.GroupID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.load(groupID)
	if err != nil {
		return err
	}
	if state.CurrentSpeaker != "" {
		c.markStage(groupID, state.CurrentSpeaker, false)
	}
	for _, entry := range state.Queue {
		c.markHand(groupID, entry.UserID, false, nil)
	}
	return c.turns.Reset(groupID)
}

func (c *Coordinator) grantNextLocked(groupID domain.GroupID) error {
	state, err := c.load(groupID)
	if err != nil {
		return err
	}
	if state.CurrentSpeaker != "" {
		c.markStage(groupID, state.CurrentSpeaker, false)
	}
	return c.applyGrant(state)
}

// applyGrant pops the queue head into the floor and persists the result.
func (c *Coordinator) applyGrant(state domain.TurnState) error {
	state.GrantNext(c.now().UTC())
	if err := c.turns.Put(state); err != nil {
		return fmt.Errorf("persist turn state %s: %w", state.GroupID, err)
	}
	if state.CurrentSpeaker != "" {
		c.markHand(state.GroupID, state.CurrentSpeaker, false, nil)
		c.markStage(state.GroupID, state.CurrentSpeaker, true)
	}
	return nil
}

func (c *Coordinator) load(groupID domain.GroupID) (domain.TurnState, error) {
	state, found, err := c.turns.Get(groupID)
	if err != nil {
		return domain.TurnState{}, fmt.Errorf("load turn state %s: %w", groupID, err)
	}
	if !found {
		return domain.EmptyTurnState(groupID), nil
	}
	return state, nil
}

// markHand mirrors the hand flag onto the participant row. Presence is a
// projection; failures are logged and retried at the next transition.
func (c *Coordinator) markHand(groupID domain.GroupID, userID string, raised bool, at *time.Time) {
	p, found, err := c.participants.Get(groupID, userID)
	if err != nil || !found {
		return
	}
	p.HandRaised = raised
	p.HandRaisedAt = at
	if err := c.participants.Upsert(p); err != nil {
		c.log.Warn("Participant hand flag not updated", "group", groupID, "user", userID, "error", err)
	}
}

func (c *Coordinator) markStage(groupID domain.GroupID, userID string, onStage bool) {
	p, found, err := c.participants.Get(groupID, userID)
	if err != nil || !found {
		return
	}
	p.OnStage = onStage
	if err := c.participants.Upsert(p); err != nil {
		c.log.Warn("Participant stage flag not updated", "group", groupID, "user", userID, "error", err)
	}
}
