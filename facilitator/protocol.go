// Package facilitator owns the single external streaming connection per
// group to the AI facilitator: open, close, heartbeat, bounded reconnect.
package facilitator

// Event kinds on the facilitator wire. The stream is JSON, tagged by kind.
const (
	KindText     = "text"
	KindAudio    = "audio"
	KindUserText = "user_text"
)

// serverEvent is one inbound frame from the facilitator endpoint.
// Audio arrives base64-encoded inside the JSON frame.
type serverEvent struct {
	Kind  string `json:"kind"`
	Text  string `json:"text,omitempty"`
	Audio []byte `json:"audio,omitempty"`
	MIME  string `json:"mime,omitempty"`
}

// clientEvent is one outbound frame: relayed user text for now.
type clientEvent struct {
	Kind string `json:"kind"`
	Text string `json:"text,omitempty"`
}
