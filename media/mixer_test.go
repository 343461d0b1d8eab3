package media

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func pcm16(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func samplesOf(frame []byte) []int16 {
	out := make([]int16, len(frame)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(frame[i*2:]))
	}
	return out
}

func Test_MixFrame_Sums_Live_Sources(t *testing.T) {
	req := require.New(t)
	orchestrator, _, _ := newTestOrchestrator(t)
	mixer := orchestrator.MixSources("a", "b")

	mixer.Push("a", pcm16(100, -200))
	mixer.Push("b", pcm16(50, 75))

	req.True(mixer.MixFrame(4))
	req.Equal([]int16{150, -125}, samplesOf(<-mixer.Output()))
}

func Test_MixFrame_Saturates_Instead_Of_Wrapping(t *testing.T) {
	req := require.New(t)
	mixer := NewMixer(4)
	mixer.AddSource("a")
	mixer.AddSource("b")

	mixer.Push("a", pcm16(30000, -30000))
	mixer.Push("b", pcm16(30000, -30000))

	req.True(mixer.MixFrame(4))
	req.Equal([]int16{32767, -32768}, samplesOf(<-mixer.Output()))
}

func Test_Removing_A_Source_Does_Not_Interrupt_The_Others(t *testing.T) {
	req := require.New(t)
	mixer := NewMixer(4)
	mixer.AddSource("a")
	mixer.AddSource("b")

	mixer.Push("a", pcm16(10, 20))
	mixer.Push("b", pcm16(1, 2))
	mixer.RemoveSource("b")

	// b's buffered data leaves the graph with it
	req.True(mixer.MixFrame(4))
	req.Equal([]int16{10, 20}, samplesOf(<-mixer.Output()))

	// Data pushed for a removed source is dropped
	mixer.Push("b", pcm16(99))
	mixer.Push("a", pcm16(30))
	req.True(mixer.MixFrame(2))
	req.Equal([]int16{30}, samplesOf(<-mixer.Output()))
}

func Test_Silent_Frame_Emits_Nothing(t *testing.T) {
	req := require.New(t)
	mixer := NewMixer(1)
	mixer.AddSource("a")

	req.True(mixer.MixFrame(4))
	select {
	case frame := <-mixer.Output():
		t.Fatalf("unexpected frame %v", frame)
	default:
	}
}

func Test_Close_Is_Terminal_And_Idempotent(t *testing.T) {
	req := require.New(t)
	mixer := NewMixer(1)
	mixer.AddSource("a")

	mixer.Close()
	mixer.Close()

	req.False(mixer.MixFrame(4))
	mixer.Push("a", pcm16(1))
	mixer.AddSource("b")
	req.False(mixer.MixFrame(4))

	_, open := <-mixer.Output()
	req.False(open)
}
