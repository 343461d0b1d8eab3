package domain

import "time"

// AudioChunk is a fixed-duration slice of facilitator audio output.
// Chunks are relayed over the group's side broadcast topic for peers
// without direct access to the AI connection; they are never persisted
// as text messages.
type AudioChunk struct {
	GroupID  GroupID   `json:"group_id"`
	Seq      int64     `json:"seq"`
	MIME     string    `json:"mime"`
	Data     []byte    `json:"data"`
	Duration int       `json:"duration_ms"`
	At       time.Time `json:"at"`
}
