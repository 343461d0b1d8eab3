package media

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dsgolman/supportai-bot-sub000/contract"
	"github.com/dsgolman/supportai-bot-sub000/domain"
	"github.com/dsgolman/supportai-bot-sub000/domain/event"
	apperrors "github.com/dsgolman/supportai-bot-sub000/errors"
	"github.com/dsgolman/supportai-bot-sub000/feed"
)

// ChunkStore is the broadcast topic the orchestrator publishes to.
type ChunkStore interface {
	AppendChunk(c domain.AudioChunk) error
	ClaimOwner(groupID domain.GroupID, userID string) (string, error)
	ReleaseOwner(groupID domain.GroupID) error
}

// TrackFactory produces the local audio track published when a participant
// takes the stage.
type TrackFactory func() (LocalTrack, error)

// ChannelHandle is one joined media channel for one (group, participant)
// pair. The orchestrator owns it exclusively; callers pass it back for
// publishing and teardown.
type ChannelHandle struct {
	GroupID domain.GroupID
	UserID  string

	channel Channel

	mu          sync.Mutex
	localTrack  LocalTrack
	broadcaster bool
}

// Events exposes the remote-participant callbacks of the joined channel.
func (h *ChannelHandle) Events() <-chan TransportEvent { return h.channel.Events() }

// Orchestrator manages the per-group shared media channel: join/leave,
// stage-gated publishing of the local track, and the side broadcast of
// facilitator audio by the one elected owner.
type Orchestrator struct {
	log       *slog.Logger
	creds     *CredentialService
	transport Transport
	newTrack  TrackFactory
	chunks    ChunkStore
	source    feed.Source

	mu           sync.Mutex
	broadcasters map[domain.GroupID]*Broadcaster
}

func NewOrchestrator(
	log *slog.Logger,
	creds *CredentialService,
	transport Transport,
	newTrack TrackFactory,
	chunks ChunkStore,
	source feed.Source,
) *Orchestrator {
	return &Orchestrator{
		log:          log,
		creds:        creds,
		transport:    transport,
		newTrack:     newTrack,
		chunks:       chunks,
		source:       source,
		broadcasters: make(map[domain.GroupID]*Broadcaster),
	}
}

var _ contract.AudioSink = (*Orchestrator)(nil)

// JoinChannel mints credentials for (group, user) and joins the shared
// channel. Any failure leaves no channel state behind. The first joiner
// to win the store-level owner claim becomes the group's facilitator-audio
// broadcaster.
func (o *Orchestrator) JoinChannel(ctx context.Context, groupID domain.GroupID, userID string) (*ChannelHandle, error) {
	creds, err := o.creds.Mint(groupID, userID)
	if err != nil {
		return nil, err
	}

	channel, err := o.transport.Join(ctx, creds.AppID, creds.Channel, creds.Token, creds.UID)
	if err != nil {
		return nil, fmt.Errorf("join media channel %s: %w", groupID, err)
	}

	handle := &ChannelHandle{GroupID: groupID, UserID: userID, channel: channel}

	owner, err := o.chunks.ClaimOwner(groupID, userID)
	if err != nil {
		o.log.Warn("broadcast owner claim failed, joining without broadcast duty",
			"group_id", groupID, "user_id", userID, "error", err)
	} else if owner == userID {
		handle.broadcaster = true
		o.mu.Lock()
		if _, exists := o.broadcasters[groupID]; !exists {
			o.broadcasters[groupID] = NewBroadcaster(o.log, groupID, o.chunks)
		}
		o.mu.Unlock()
		o.log.Info("participant elected facilitator-audio broadcaster",
			"group_id", groupID, "user_id", userID)
	}

	return handle, nil
}

// SetStagePublishing publishes the local audio track when onStage becomes
// true and unpublishes and releases it when it becomes false. Idempotent:
// repeating the current state is a no-op. This is the only path by which
// local audio is ever published; callers gate it on turn state.
func (o *Orchestrator) SetStagePublishing(ctx context.Context, handle *ChannelHandle, onStage bool) error {
	handle.mu.Lock()
	defer handle.mu.Unlock()

	if onStage {
		if handle.localTrack != nil {
			return nil
		}
		track, err := o.newTrack()
		if err != nil {
			return fmt.Errorf("create local track: %w", err)
		}
		if err := handle.channel.Publish(ctx, track); err != nil {
			_ = track.Close()
			return fmt.Errorf("publish local track: %w", err)
		}
		handle.localTrack = track
		return nil
	}

	if handle.localTrack == nil {
		return nil
	}
	track := handle.localTrack
	handle.localTrack = nil
	if err := handle.channel.Unpublish(ctx, track); err != nil {
		o.log.Warn("unpublish failed, releasing track anyway",
			"group_id", handle.GroupID, "user_id", handle.UserID, "error", err)
	}
	return track.Close()
}

// LeaveChannel tears down the handle: unpublishes any live track, leaves
// the channel, and releases the broadcast duty if this participant held it.
func (o *Orchestrator) LeaveChannel(ctx context.Context, handle *ChannelHandle) error {
	if err := o.SetStagePublishing(ctx, handle, false); err != nil {
		o.log.Warn("release local track on leave",
			"group_id", handle.GroupID, "user_id", handle.UserID, "error", err)
	}

	handle.mu.Lock()
	wasBroadcaster := handle.broadcaster
	handle.broadcaster = false
	handle.mu.Unlock()

	if wasBroadcaster {
		o.mu.Lock()
		if b, ok := o.broadcasters[handle.GroupID]; ok {
			delete(o.broadcasters, handle.GroupID)
			if err := b.Flush(); err != nil {
				o.log.Warn("flush broadcast remainder", "group_id", handle.GroupID, "error", err)
			}
		}
		o.mu.Unlock()
		if err := o.chunks.ReleaseOwner(handle.GroupID); err != nil {
			o.log.Warn("release broadcast owner", "group_id", handle.GroupID, "error", err)
		}
	}

	return handle.channel.Leave()
}

// ConsumeAudio receives facilitator audio from the connection manager and
// feeds it to the group's broadcaster, which re-cuts it into fixed 100 ms
// chunks on the side topic. Audio for groups with no elected broadcaster
// is dropped; it is transient by contract.
func (o *Orchestrator) ConsumeAudio(ctx context.Context, chunk domain.AudioChunk) error {
	o.mu.Lock()
	b, ok := o.broadcasters[chunk.GroupID]
	o.mu.Unlock()
	if !ok {
		o.log.Debug("no broadcaster for group, dropping facilitator audio",
			"group_id", chunk.GroupID, "seq", chunk.Seq)
		return nil
	}
	return b.Ingest(chunk.Data)
}

// BroadcastFacilitatorAudio pumps an AI audio stream through the group's
// broadcaster until the stream or the context ends. Only the elected
// owner's handle may call it.
func (o *Orchestrator) BroadcastFacilitatorAudio(ctx context.Context, handle *ChannelHandle, stream <-chan []byte) error {
	handle.mu.Lock()
	allowed := handle.broadcaster
	handle.mu.Unlock()
	if !allowed {
		return apperrors.ErrNotBroadcaster
	}

	o.mu.Lock()
	b, ok := o.broadcasters[handle.GroupID]
	o.mu.Unlock()
	if !ok {
		return apperrors.ErrNotBroadcaster
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, open := <-stream:
			if !open {
				return b.Flush()
			}
			if err := b.Ingest(data); err != nil {
				return err
			}
		}
	}
}

// MixSources builds a mixing graph over the named inputs. Sources can be
// added and removed afterwards without interrupting the others; callers
// drive it by pushing PCM and pulling mixed frames.
func (o *Orchestrator) MixSources(sourceIDs ...string) *Mixer {
	m := NewMixer(mixOutputBuffer)
	for _, id := range sourceIDs {
		m.AddSource(id)
	}
	return m
}

// SubscribeBroadcast delivers the group's side audio topic as decoded
// chunks, for peers without direct access to the AI connection.
func (o *Orchestrator) SubscribeBroadcast(ctx context.Context, groupID domain.GroupID, onChunk func(domain.AudioChunk)) *feed.Subscription {
	sub := o.source.Subscribe(feed.ForGroup[event.AudioBroadcast](groupID))
	go func() {
		for {
			select {
			case <-ctx.Done():
				sub.Unsubscribe()
				return
			case <-sub.Done():
				return
			case evt := <-sub.C:
				if audio, ok := evt.(event.AudioBroadcast); ok {
					onChunk(audio.Chunk)
				}
			}
		}
	}()
	return sub
}
