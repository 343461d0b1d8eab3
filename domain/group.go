// Package domain contains core concepts of the circle system.
// This file defines the Group aggregate root.
// No runtime, network, or UI logic should be added here.
package domain

type GroupID string

// Group is a logical circle shared by its participants.
// A group owns zero-or-one active facilitator Session at a time.
type Group struct {
	ID GroupID
	// VoiceConfigID references the facilitator voice/persona configuration
	// used when opening the external streaming connection.
	VoiceConfigID string
}

func NewGroup(id string, voiceConfigID string) *Group {
	return &Group{ID: GroupID(id), VoiceConfigID: voiceConfigID}
}
