package media

import (
	"context"
	"fmt"
	"sync"
)

// LoopbackTransport is an in-process media transport: every participant who
// joins the same channel name sees the others' publish/unpublish/leave
// events. It stands in for a vendor SDK in development and tests; the
// orchestrator never knows the difference.
type LoopbackTransport struct {
	mu    sync.Mutex
	rooms map[string]map[string]*loopbackChannel
}

func NewLoopbackTransport() *LoopbackTransport {
	return &LoopbackTransport{rooms: make(map[string]map[string]*loopbackChannel)}
}

func (t *LoopbackTransport) Join(ctx context.Context, appID, channelName, token, uid string) (Channel, error) {
	if appID == "" || channelName == "" || token == "" || uid == "" {
		return nil, fmt.Errorf("incomplete join parameters for channel %q", channelName)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	room, ok := t.rooms[channelName]
	if !ok {
		room = make(map[string]*loopbackChannel)
		t.rooms[channelName] = room
	}
	if _, taken := room[uid]; taken {
		return nil, fmt.Errorf("uid %q already joined channel %q", uid, channelName)
	}

	ch := &loopbackChannel{
		transport: t,
		room:      channelName,
		uid:       uid,
		events:    make(chan TransportEvent, 16),
	}
	room[uid] = ch
	return ch, nil
}

// fanout delivers an event to every other member of the room. Slow
// consumers drop; loopback delivery is best-effort like the real thing.
func (t *LoopbackTransport) fanout(room, fromUID string, evt TransportEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for uid, member := range t.rooms[room] {
		if uid == fromUID {
			continue
		}
		select {
		case member.events <- evt:
		default:
		}
	}
}

type loopbackChannel struct {
	transport *LoopbackTransport
	room      string
	uid       string
	events    chan TransportEvent

	mu   sync.Mutex
	gone bool
}

func (c *loopbackChannel) Publish(ctx context.Context, track LocalTrack) error {
	if err := c.alive(); err != nil {
		return err
	}
	c.transport.fanout(c.room, c.uid, TransportEvent{Kind: UserPublished, UserID: c.uid, MediaType: "audio"})
	return nil
}

func (c *loopbackChannel) Unpublish(ctx context.Context, track LocalTrack) error {
	if err := c.alive(); err != nil {
		return err
	}
	c.transport.fanout(c.room, c.uid, TransportEvent{Kind: UserUnpublished, UserID: c.uid, MediaType: "audio"})
	return nil
}

func (c *loopbackChannel) Subscribe(ctx context.Context, remoteUserID, mediaType string) error {
	return c.alive()
}

func (c *loopbackChannel) Events() <-chan TransportEvent { return c.events }

func (c *loopbackChannel) Leave() error {
	c.mu.Lock()
	if c.gone {
		c.mu.Unlock()
		return nil
	}
	c.gone = true
	c.mu.Unlock()

	c.transport.mu.Lock()
	delete(c.transport.rooms[c.room], c.uid)
	if len(c.transport.rooms[c.room]) == 0 {
		delete(c.transport.rooms, c.room)
	}
	c.transport.mu.Unlock()

	c.transport.fanout(c.room, c.uid, TransportEvent{Kind: UserLeft, UserID: c.uid})
	close(c.events)
	return nil
}

func (c *loopbackChannel) alive() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gone {
		return fmt.Errorf("channel %q left", c.room)
	}
	return nil
}

// MicTrack is a trivially closable local audio track.
type MicTrack struct {
	id string
}

func NewMicTrack(id string) *MicTrack { return &MicTrack{id: id} }

func (t *MicTrack) ID() string   { return t.id }
func (t *MicTrack) Close() error { return nil }
