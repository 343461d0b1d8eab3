// Package domain contains core concepts of the circle system.
// This file defines Message events and related rules.
// Messages are immutable, append-only, and never deleted by this subsystem.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageKind string

const (
	MessageText  MessageKind = "text"
	MessageAudio MessageKind = "audio"
)

// Message represents an immutable circle event, ordered by creation time.
// AuthorID is empty for facilitator/system output.
type Message struct {
	ID        uuid.UUID   `json:"id"`
	GroupID   GroupID     `json:"group_id"`
	AuthorID  string      `json:"author_id"`
	Kind      MessageKind `json:"kind"`
	Body      string      `json:"body"`
	AudioRef  string      `json:"audio_ref"`
	Language  string      `json:"language"`
	CreatedAt time.Time   `json:"created_at"`
}

// FromFacilitator reports whether the message was produced by the AI side.
func (m Message) FromFacilitator() bool {
	return m.AuthorID == ""
}
