package media

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dsgolman/supportai-bot-sub000/domain"
	apperrors "github.com/dsgolman/supportai-bot-sub000/errors"
)

// memChunkStore is an in-memory broadcast topic.
type memChunkStore struct {
	mu     sync.Mutex
	chunks []domain.AudioChunk
	owners map[domain.GroupID]string
}

func newMemChunkStore() *memChunkStore {
	return &memChunkStore{owners: make(map[domain.GroupID]string)}
}

func (s *memChunkStore) AppendChunk(c domain.AudioChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, c)
	return nil
}

func (s *memChunkStore) ClaimOwner(groupID domain.GroupID, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, ok := s.owners[groupID]; ok {
		return owner, nil
	}
	s.owners[groupID] = userID
	return userID, nil
}

func (s *memChunkStore) ReleaseOwner(groupID domain.GroupID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.owners, groupID)
	return nil
}

func (s *memChunkStore) all() []domain.AudioChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AudioChunk(nil), s.chunks...)
}

// countingTrack records how often it was released.
type countingTrack struct {
	mu     sync.Mutex
	closes int
}

func (t *countingTrack) ID() string { return "mic" }
func (t *countingTrack) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closes++
	return nil
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *memChunkStore, *countingTrack) {
	t.Helper()
	chunks := newMemChunkStore()
	track := &countingTrack{}
	orchestrator := NewOrchestrator(
		slog.Default(),
		NewCredentialService("app-1", "cert", time.Hour),
		NewLoopbackTransport(),
		func() (LocalTrack, error) { return track, nil },
		chunks,
		nil,
	)
	return orchestrator, chunks, track
}

func Test_JoinChannel_Without_Credentials_Leaves_No_State(t *testing.T) {
	req := require.New(t)
	chunks := newMemChunkStore()
	orchestrator := NewOrchestrator(
		slog.Default(),
		NewCredentialService("", "", time.Hour),
		NewLoopbackTransport(),
		func() (LocalTrack, error) { return &countingTrack{}, nil },
		chunks,
		nil,
	)

	_, err := orchestrator.JoinChannel(context.Background(), "g1", "alice")
	req.ErrorIs(err, apperrors.ErrCredentialsUnavailable)
	req.Empty(chunks.owners)
	req.Empty(orchestrator.broadcasters)
}

func Test_First_Joiner_Becomes_Broadcaster(t *testing.T) {
	req := require.New(t)
	orchestrator, chunks, _ := newTestOrchestrator(t)
	ctx := context.Background()

	first, err := orchestrator.JoinChannel(ctx, "g1", "alice")
	req.NoError(err)
	second, err := orchestrator.JoinChannel(ctx, "g1", "bob")
	req.NoError(err)

	req.True(first.broadcaster)
	req.False(second.broadcaster)
	req.Equal("alice", chunks.owners["g1"])
}

func Test_SetStagePublishing_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	orchestrator, _, track := newTestOrchestrator(t)
	ctx := context.Background()

	handle, err := orchestrator.JoinChannel(ctx, "g1", "alice")
	req.NoError(err)

	// Taking the stage twice publishes once
	req.NoError(orchestrator.SetStagePublishing(ctx, handle, true))
	req.NoError(orchestrator.SetStagePublishing(ctx, handle, true))
	req.NotNil(handle.localTrack)

	// Leaving the stage twice releases once
	req.NoError(orchestrator.SetStagePublishing(ctx, handle, false))
	req.NoError(orchestrator.SetStagePublishing(ctx, handle, false))
	req.Nil(handle.localTrack)
	req.Equal(1, track.closes)
}

func Test_ConsumeAudio_Recuts_Into_Fixed_Chunks(t *testing.T) {
	req := require.New(t)
	orchestrator, chunks, _ := newTestOrchestrator(t)
	ctx := context.Background()

	_, err := orchestrator.JoinChannel(ctx, "g1", "alice")
	req.NoError(err)

	// 250 ms of PCM in one facilitator event
	data := make([]byte, chunkBytes*2+chunkBytes/2)
	req.NoError(orchestrator.ConsumeAudio(ctx, domain.AudioChunk{GroupID: "g1", Seq: 1, Data: data}))

	// Two full 100 ms chunks out, remainder buffered
	published := chunks.all()
	req.Len(published, 2)
	for i, c := range published {
		req.Equal(int64(i+1), c.Seq)
		req.Len(c.Data, chunkBytes)
		req.Equal(100, c.Duration)
	}
}

func Test_ConsumeAudio_Drops_Without_A_Broadcaster(t *testing.T) {
	req := require.New(t)
	orchestrator, chunks, _ := newTestOrchestrator(t)

	err := orchestrator.ConsumeAudio(context.Background(), domain.AudioChunk{
		GroupID: "g1",
		Data:    make([]byte, chunkBytes),
	})
	req.NoError(err)
	req.Empty(chunks.all())
}

func Test_BroadcastFacilitatorAudio_Rejects_Non_Owner(t *testing.T) {
	req := require.New(t)
	orchestrator, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	_, err := orchestrator.JoinChannel(ctx, "g1", "alice")
	req.NoError(err)
	follower, err := orchestrator.JoinChannel(ctx, "g1", "bob")
	req.NoError(err)

	stream := make(chan []byte)
	close(stream)
	err = orchestrator.BroadcastFacilitatorAudio(ctx, follower, stream)
	req.ErrorIs(err, apperrors.ErrNotBroadcaster)
}

func Test_LeaveChannel_Releases_Broadcast_Duty(t *testing.T) {
	req := require.New(t)
	orchestrator, chunks, _ := newTestOrchestrator(t)
	ctx := context.Background()

	handle, err := orchestrator.JoinChannel(ctx, "g1", "alice")
	req.NoError(err)
	req.NoError(orchestrator.SetStagePublishing(ctx, handle, true))

	req.NoError(orchestrator.LeaveChannel(ctx, handle))

	req.Empty(chunks.owners)
	req.Empty(orchestrator.broadcasters)

	// The next joiner can claim the freed duty
	next, err := orchestrator.JoinChannel(ctx, "g1", "bob")
	req.NoError(err)
	req.True(next.broadcaster)
}

func Test_Loopback_Transport_Fans_Out_Publish_Events(t *testing.T) {
	req := require.New(t)
	transport := NewLoopbackTransport()
	ctx := context.Background()

	alice, err := transport.Join(ctx, "app", "room", "token", "alice")
	req.NoError(err)
	bob, err := transport.Join(ctx, "app", "room", "token", "bob")
	req.NoError(err)

	req.NoError(alice.Publish(ctx, NewMicTrack("mic")))

	select {
	case evt := <-bob.Events():
		req.Equal(UserPublished, evt.Kind)
		req.Equal("alice", evt.UserID)
	case <-time.After(time.Second):
		t.Fatal("publish event never reached the peer")
	}

	// Double join of one uid is rejected
	_, err = transport.Join(ctx, "app", "room", "token", "alice")
	req.Error(err)

	req.NoError(alice.Leave())
	req.NoError(alice.Leave())
	select {
	case evt := <-bob.Events():
		req.Equal(UserLeft, evt.Kind)
	case <-time.After(time.Second):
		t.Fatal("leave event never reached the peer")
	}
}
