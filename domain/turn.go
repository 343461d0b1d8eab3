package domain

import "time"

type TurnPhase string

const (
	TurnIdle     TurnPhase = "idle"
	TurnQueued   TurnPhase = "queued"
	TurnSpeaking TurnPhase = "speaking"
)

// QueueEntry is one raised hand waiting for the floor.
type QueueEntry struct {
	UserID   string    `json:"user_id"`
	RaisedAt time.Time `json:"raised_at"`
}

// TurnState arbitrates who may speak in a group.
// Invariant: CurrentSpeaker, when set, is never also present in Queue.
type TurnState struct {
	GroupID        GroupID      `json:"group_id"`
	CurrentSpeaker string       `json:"current_speaker"`
	Queue          []QueueEntry `json:"queue"`
	TurnStartedAt  *time.Time   `json:"turn_started_at"`
}

// EmptyTurnState is the implicit state of a group nobody acted on yet.
func EmptyTurnState(groupID GroupID) TurnState {
	return TurnState{GroupID: groupID}
}

func (t TurnState) Phase() TurnPhase {
	switch {
	case t.CurrentSpeaker != "":
		return TurnSpeaking
	case len(t.Queue) > 0:
		return TurnQueued
	default:
		return TurnIdle
	}
}

func (t TurnState) queued(userID string) bool {
	for _, e := range t.Queue {
		if e.UserID == userID {
			return true
		}
	}
	return false
}

// RaiseHand appends userID to the queue tail. A user already queued or
// already holding the floor is a no-op. Returns true when state changed.
func (t *TurnState) RaiseHand(userID string, at time.Time) bool {
	if userID == "" || userID == t.CurrentSpeaker || t.queued(userID) {
		return false
	}
	t.Queue = append(t.Queue, QueueEntry{UserID: userID, RaisedAt: at})
	return true
}

// LowerHand removes userID from the queue, no-op when absent.
func (t *TurnState) LowerHand(userID string) bool {
	for i, e := range t.Queue {
		if e.UserID == userID {
			t.Queue = append(t.Queue[:i], t.Queue[i+1:]...)
			return true
		}
	}
	return false
}

// GrantNext pops the earliest raised hand into CurrentSpeaker.
// Earliest means smallest RaisedAt; ties keep insertion order.
// Empty queue means idle.
func (t *TurnState) GrantNext(now time.Time) bool {
	t.CurrentSpeaker = ""
	t.TurnStartedAt = nil
	if len(t.Queue) == 0 {
		return false
	}
	earliest := 0
	for i, e := range t.Queue {
		if e.RaisedAt.Before(t.Queue[earliest].RaisedAt) {
			earliest = i
		}
	}
	head := t.Queue[earliest]
	rest := make([]QueueEntry, 0, len(t.Queue)-1)
	rest = append(rest, t.Queue[:earliest]...)
	rest = append(rest, t.Queue[earliest+1:]...)
	t.Queue = rest
	t.CurrentSpeaker = head.UserID
	started := now
	t.TurnStartedAt = &started
	return true
}

// EndTurn releases the floor, valid only for the current speaker,
// then immediately grants the next queued participant.
func (t *TurnState) EndTurn(userID string, now time.Time) bool {
	if userID == "" || userID != t.CurrentSpeaker {
		return false
	}
	t.GrantNext(now)
	return true
}

// Reset clears the state back to idle with an empty queue.
func (t *TurnState) Reset() {
	t.CurrentSpeaker = ""
	t.Queue = nil
	t.TurnStartedAt = nil
}
