package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
)

// ErrUnsupported indicates a provider cannot serve capture on this host.
// Providers wrap it so a chain can fall back to the next candidate instead
// of aborting construction.
var ErrUnsupported = errors.New("capture backend unsupported")

// Config describes the capture session a provider should construct.
type Config struct {
	// PreferredWindowSize is the chunk size in frames the node should aim to
	// deliver per callback. Providers may deliver other sizes.
	PreferredWindowSize int

	// SampleRate is the host capture rate in Hz.
	SampleRate int

	// Channels is the interleaved channel count.
	Channels int

	// Gain scales captured samples before delivery. 1.0 leaves samples
	// unchanged, 0 mutes the source.
	Gain float64

	// LatencyHint is an advisory latency preference ("interactive",
	// "balanced" or "playback"). Providers may ignore it.
	LatencyHint string
}

// Node is a constructed capture source. Nodes start suspended: Resume begins
// chunk delivery and Suspend halts it. Both are idempotent. Close releases
// the underlying device or socket; a closed node cannot be resumed.
type Node interface {
	Suspend(ctx context.Context) error
	Resume(ctx context.Context) error

	// OnChunk registers the chunk callback. Chunks are interleaved float32
	// samples owned by the callback. Must be registered before Resume.
	OnChunk(fn func(samples []float32))

	// SampleRate reports the rate of delivered samples in Hz.
	SampleRate() int

	Close() error
}

// Provider constructs capture nodes for one backend.
type Provider interface {
	Name() string
	Construct(cfg Config) (Node, error)
}

// decodeFloat32LE converts little-endian IEEE 754 bytes to samples.
// Trailing bytes that do not form a full sample are dropped.
func decodeFloat32LE(data []byte) []float32 {
	count := len(data) / 4
	samples := make([]float32, count)
	for i := 0; i < count; i++ {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples
}

// applyGain scales samples in place.
func applyGain(samples []float32, gain float32) {
	if gain == 1 {
		return
	}
	for i := range samples {
		samples[i] *= gain
	}
}
