package domain

import "time"

type SessionStatus string

const (
	SessionConnecting   SessionStatus = "connecting"
	SessionConnected    SessionStatus = "connected"
	SessionError        SessionStatus = "error"
	SessionDisconnected SessionStatus = "disconnected"
)

// MaxReconnectAttempts bounds automatic facilitator reconnects per group.
// Once reached, the session stays disconnected until an explicit new start.
const MaxReconnectAttempts = 5

// Session is the per-group facilitator connection record.
// The store row is the source of truth; in-memory handles are caches.
type Session struct {
	GroupID           GroupID       `json:"group_id"`
	Status            SessionStatus `json:"status"`
	ConversationID    string        `json:"conversation_id"`
	FacilitatorID     string        `json:"facilitator_id"`
	ReconnectAttempts int           `json:"reconnect_attempts"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// Exhausted reports whether automatic reconnects are used up.
func (s Session) Exhausted() bool {
	return s.ReconnectAttempts >= MaxReconnectAttempts
}

// Live reports whether the record claims a usable connection.
// Liveness of the actual socket must still be checked by the owner,
// records can go stale.
func (s Session) Live() bool {
	return s.Status == SessionConnecting || s.Status == SessionConnected
}
