// Package media manages the shared audio channel per group: join/leave,
// stage-gated publishing, source mixing, and the side broadcast of
// facilitator audio for peers without direct access to the AI connection.
//
// The media transport itself (WebRTC SFU, vendor SDK) is an external
// collaborator, specified only at this interface boundary and injected
// into the orchestrator.
package media

import "context"

type TransportEventKind string

const (
	UserPublished   TransportEventKind = "user-published"
	UserUnpublished TransportEventKind = "user-unpublished"
	UserLeft        TransportEventKind = "user-left"
)

// TransportEvent mirrors the remote-participant callbacks of the
// underlying transport.
type TransportEvent struct {
	Kind      TransportEventKind
	UserID    string
	MediaType string
}

// LocalTrack is an audio source owned by this endpoint.
type LocalTrack interface {
	ID() string
	Close() error
}

// Transport joins media channels. Join must be all-or-nothing: a failed
// join leaves no channel state behind.
type Transport interface {
	Join(ctx context.Context, appID, channelName, token, uid string) (Channel, error)
}

// Channel is one joined media channel for one participant.
type Channel interface {
	Publish(ctx context.Context, track LocalTrack) error
	Unpublish(ctx context.Context, track LocalTrack) error
	Subscribe(ctx context.Context, remoteUserID, mediaType string) error
	Events() <-chan TransportEvent
	Leave() error
}
