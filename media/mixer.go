package media

import (
	"encoding/binary"
	"sync"
)

// Mixer combines zero-or-more live PCM16 sources into one output graph.
// Sources can be added and removed while mixing without interrupting the
// others; Close tears down the graph and releases every node.
//
// Each frame sums whatever samples the live sources have buffered, with
// saturation. A source with no data contributes silence for that frame.
type Mixer struct {
	mu      sync.Mutex
	sources map[string]*mixNode
	out     chan []byte
	closed  bool
}

type mixNode struct {
	id  string
	buf []byte
}

// mixOutputBuffer absorbs jitter between the mix loop and the consumer.
const mixOutputBuffer = 16

func NewMixer(outputBuffer int) *Mixer {
	return &Mixer{
		sources: make(map[string]*mixNode),
		out:     make(chan []byte, outputBuffer),
	}
}

// Output carries mixed frames. It is closed by Close.
func (m *Mixer) Output() <-chan []byte { return m.out }

// AddSource attaches a named source to the graph. Adding an id twice
// replaces its buffered data without touching the other sources.
func (m *Mixer) AddSource(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.sources[id] = &mixNode{id: id}
}

// RemoveSource detaches a source; in-flight frames from the others
// continue uninterrupted.
func (m *Mixer) RemoveSource(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sources, id)
}

// Push buffers PCM data from one source. Data for an unknown source is
// dropped, which covers the remove-while-streaming race.
func (m *Mixer) Push(id string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	node, ok := m.sources[id]
	if !ok || m.closed {
		return
	}
	node.buf = append(node.buf, data...)
}

// MixFrame drains up to frameBytes from every source, sums the samples
// with saturation, and emits the result. It returns false once the mixer
// is closed or the output buffer is full.
func (m *Mixer) MixFrame(frameBytes int) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}

	frame := make([]byte, frameBytes)
	any := false
	for _, node := range m.sources {
		n := min(len(node.buf), frameBytes)
		if n == 0 {
			continue
		}
		any = true
		sumInto(frame[:n], node.buf[:n])
		node.buf = node.buf[n:]
	}
	m.mu.Unlock()

	if !any {
		return true
	}
	select {
	case m.out <- frame:
		return true
	default:
		return false
	}
}

// Close tears down the mix and releases all nodes.
func (m *Mixer) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.sources = make(map[string]*mixNode)
	close(m.out)
}

// sumInto adds src's little-endian int16 samples into dst with clipping.
func sumInto(dst, src []byte) {
	for i := 0; i+1 < len(dst) && i+1 < len(src); i += 2 {
		a := int32(int16(binary.LittleEndian.Uint16(dst[i:])))
		b := int32(int16(binary.LittleEndian.Uint16(src[i:])))
		sum := a + b
		if sum > 32767 {
			sum = 32767
		} else if sum < -32768 {
			sum = -32768
		}
		binary.LittleEndian.PutUint16(dst[i:], uint16(int16(sum)))
	}
}
