package media

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/dsgolman/supportai-bot-sub000/domain"
)

const (
	// Facilitator output is 16-bit mono PCM at 16 kHz.
	sampleRate    = 16000
	bytesPerSamp  = 2
	chunkDuration = 100 * time.Millisecond

	chunkBytes = int(sampleRate*bytesPerSamp) / 10
)

// Broadcaster re-cuts a continuous facilitator audio stream into
// fixed-duration chunks on the group's side topic. One instance exists per
// group, owned by the elected first-joining participant's orchestrator.
type Broadcaster struct {
	log     *slog.Logger
	groupID domain.GroupID
	chunks  interface {
		AppendChunk(c domain.AudioChunk) error
	}

	mu   sync.Mutex
	buf  []byte
	seq  int64
	mime string
}

func NewBroadcaster(log *slog.Logger, groupID domain.GroupID, chunks interface {
	AppendChunk(c domain.AudioChunk) error
}) *Broadcaster {
	return &Broadcaster{log: log, groupID: groupID, chunks: chunks}
}

// Ingest buffers stream data and publishes every complete 100 ms slice.
func (b *Broadcaster) Ingest(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.mime == "" && len(data) > 0 {
		b.mime = mimetype.Detect(data).String()
	}
	b.buf = append(b.buf, data...)

	for len(b.buf) >= chunkBytes {
		slice := make([]byte, chunkBytes)
		copy(slice, b.buf[:chunkBytes])
		b.buf = b.buf[chunkBytes:]
		if err := b.publishLocked(slice, chunkDuration); err != nil {
			return err
		}
	}
	return nil
}

// Flush publishes any buffered remainder as a short final chunk.
func (b *Broadcaster) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.buf) == 0 {
		return nil
	}
	remainder := b.buf
	b.buf = nil
	duration := time.Duration(len(remainder)) * time.Second / (sampleRate * bytesPerSamp)
	return b.publishLocked(remainder, duration)
}

func (b *Broadcaster) publishLocked(data []byte, duration time.Duration) error {
	b.seq++
	chunk := domain.AudioChunk{
		GroupID:  b.groupID,
		Seq:      b.seq,
		MIME:     b.mime,
		Data:     data,
		Duration: int(duration / time.Millisecond),
		At:       time.Now(),
	}
	if err := b.chunks.AppendChunk(chunk); err != nil {
		return fmt.Errorf("publish audio chunk %s/%d: %w", b.groupID, b.seq, err)
	}
	return nil
}
