// Package domain contains core concepts of the circle system.
// This file defines Participant entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

// Participant is a member of a group, keyed by (group id, user id).
// The row is created on first join and persists for the group's lifetime;
// only the stage and hand flags are mutated afterwards.
type Participant struct {
	GroupID      GroupID    `json:"group_id"`
	UserID       string     `json:"user_id"`
	DisplayName  string     `json:"display_name"`
	Facilitator  bool       `json:"facilitator"`
	OnStage      bool       `json:"on_stage"`
	HandRaised   bool       `json:"hand_raised"`
	HandRaisedAt *time.Time `json:"hand_raised_at"`
	JoinedAt     time.Time  `json:"joined_at"`
}
