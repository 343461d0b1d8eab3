package errors

import "fmt"

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	// Configuration errors: fatal for the requested operation, never retried.
	ErrMissingFacilitatorKey  = fmt.Errorf("facilitator api key is not configured")
	ErrCredentialsUnavailable = fmt.Errorf("media credentials unavailable")
	ErrInvalidCredentials     = fmt.Errorf("media credentials incomplete")

	// Terminal reconnect exhaustion: requires a fresh explicit session start.
	ErrReconnectExhausted = fmt.Errorf("facilitator reconnect attempts exhausted")

	ErrSessionNotFound = fmt.Errorf("session not found")
	ErrConnClosed      = fmt.Errorf("facilitator connection closed")
	ErrNotBroadcaster  = fmt.Errorf("participant does not own the audio broadcast")
)
