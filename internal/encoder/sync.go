package encoder

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/qkdxorjs1002/recorder-service/internal/audio"
	"github.com/qkdxorjs1002/recorder-service/internal/metrics"
)

// Sync is the in-process encoder used when a session opts out of the
// concurrent task. Commands execute on the submitter's goroutine with the
// same message semantics and observable behavior as Task: windows append
// in submission order, every dump yields exactly one artifact and clears
// the pending recording.
type Sync struct {
	channels int
	samples  []float32

	logger  *slog.Logger
	metrics *metrics.Metrics

	onArtifact func(Reply)

	windowsEncoded uint64
	artifactsBuilt uint64

	closed bool
	mu     sync.Mutex
}

// NewSync creates a synchronous encoder for interleaved audio with the
// given channel count.
func NewSync(channels int, logger *slog.Logger, m *metrics.Metrics) (*Sync, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("channel count must be positive, got %d", channels)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Sync{
		channels: channels,
		logger:   logger,
		metrics:  m,
	}, nil
}

// OnArtifact registers the observer receiving finished artifacts. The
// observer runs inline on the goroutine calling Dump.
func (s *Sync) OnArtifact(fn func(Reply)) {
	s.mu.Lock()
	s.onArtifact = fn
	s.mu.Unlock()
}

// Encode appends one window of samples to the pending recording.
func (s *Sync) Encode(samples []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	s.samples = append(s.samples, samples...)
	s.windowsEncoded++

	if s.metrics != nil {
		s.metrics.RecordEncodeCommand("encode")
	}

	return nil
}

// Dump encodes everything received since the previous dump into one WAV
// artifact, delivers it to the observer, and clears the pending recording.
func (s *Sync) Dump(sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	data, err := audio.EncodeWAV(s.samples, sampleRate, s.channels)
	if err != nil {
		s.samples = nil
		s.mu.Unlock()
		return fmt.Errorf("failed to encode artifact: %w", err)
	}

	s.samples = nil
	s.artifactsBuilt++
	observer := s.onArtifact

	if s.metrics != nil {
		s.metrics.RecordEncodeCommand("dump")
		s.metrics.RecordArtifact(len(data))
	}

	s.mu.Unlock()

	if observer == nil {
		s.logger.Warn("Artifact dropped: no observer registered",
			slog.Int("size_bytes", len(data)),
		)
		return nil
	}

	observer(Reply{Data: data, MIMEType: audio.MIMETypeWAV})

	return nil
}

// Close releases the pending recording. Commands submitted afterwards fail
// with ErrClosed. Close is idempotent.
func (s *Sync) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.samples = nil
}

// Stats returns current encoder counters
func (s *Sync) Stats() EncoderStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return EncoderStats{
		WindowsEncoded: s.windowsEncoded,
		ArtifactsBuilt: s.artifactsBuilt,
		PendingSamples: uint64(len(s.samples)),
	}
}
