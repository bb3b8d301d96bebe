package encoder

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/qkdxorjs1002/recorder-service/internal/audio"
	"github.com/qkdxorjs1002/recorder-service/internal/metrics"
)

// Task is the concurrent encoder. Commands are queued on a buffered channel
// and consumed by a single goroutine, so windows are encoded strictly in
// submission order. A second goroutine delivers finished artifacts to the
// registered observer, keeping both encoding and delivery off the
// submitter's goroutine.
type Task struct {
	channels int
	cmds     chan Command
	replies  chan Reply

	logger  *slog.Logger
	metrics *metrics.Metrics

	// Guarded by mu
	onArtifact func(Reply)
	closed     bool
	mu         sync.RWMutex

	// Guarded by statsMu, written by the run goroutine
	windowsEncoded uint64
	artifactsBuilt uint64
	pendingSamples uint64
	statsMu        sync.RWMutex

	wg sync.WaitGroup
}

// NewTask starts a concurrent encoder for interleaved audio with the given
// channel count. queueDepth bounds the command queue; values below 1 apply
// DefaultQueueDepth.
func NewTask(channels, queueDepth int, logger *slog.Logger, m *metrics.Metrics) (*Task, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("channel count must be positive, got %d", channels)
	}

	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}

	if logger == nil {
		logger = slog.Default()
	}

	t := &Task{
		channels: channels,
		cmds:     make(chan Command, queueDepth),
		replies:  make(chan Reply, 4),
		logger:   logger,
		metrics:  m,
	}

	t.wg.Add(2)
	go t.run()
	go t.deliver()

	return t, nil
}

// OnArtifact registers the observer receiving finished artifacts. The
// observer runs on the delivery goroutine; long-running work should be
// handed off rather than done inline.
func (t *Task) OnArtifact(fn func(Reply)) {
	t.mu.Lock()
	t.onArtifact = fn
	t.mu.Unlock()
}

// Encode queues one window of samples, transferring ownership of the slice
// to the task. Encode never blocks: when the queue is full the window is
// dropped and ErrQueueFull returned.
func (t *Task) Encode(samples []float32) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return ErrClosed
	}

	select {
	case t.cmds <- Command{Op: OpEncode, Samples: samples}:
		if t.metrics != nil {
			t.metrics.RecordEncodeCommand("encode")
			t.metrics.SetEncodeQueueDepth(len(t.cmds))
		}
		return nil
	default:
		if t.metrics != nil {
			t.metrics.RecordEncodeDrop()
		}
		return ErrQueueFull
	}
}

// Dump queues a flush of everything encoded so far into one WAV artifact
// at the given sample rate. The send waits for queue space, so the dump
// lines up behind any windows still waiting and the artifact covers all of
// them.
func (t *Task) Dump(sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return ErrClosed
	}

	t.cmds <- Command{Op: OpDump, SampleRate: sampleRate}

	if t.metrics != nil {
		t.metrics.RecordEncodeCommand("dump")
	}

	return nil
}

// Close drains commands already queued, stops both goroutines, and waits
// for delivery of any artifact still in flight. Close is idempotent.
func (t *Task) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	t.cmds <- Command{Op: OpClose}
	t.wg.Wait()

	if t.metrics != nil {
		t.metrics.SetEncodeQueueDepth(0)
	}
}

// Stats returns current encoder counters
func (t *Task) Stats() EncoderStats {
	t.statsMu.RLock()
	defer t.statsMu.RUnlock()

	return EncoderStats{
		QueueDepth:     len(t.cmds),
		QueueCapacity:  cap(t.cmds),
		WindowsEncoded: t.windowsEncoded,
		ArtifactsBuilt: t.artifactsBuilt,
		PendingSamples: t.pendingSamples,
	}
}

// run consumes commands in FIFO order on a dedicated goroutine.
func (t *Task) run() {
	defer t.wg.Done()
	defer close(t.replies)

	var samples []float32

	for cmd := range t.cmds {
		if t.metrics != nil {
			t.metrics.SetEncodeQueueDepth(len(t.cmds))
		}

		if err := ValidateCommand(cmd); err != nil {
			t.logger.Warn("Dropping invalid encoder command",
				slog.String("op", cmd.Op.String()),
				slog.String("error", err.Error()),
			)
			continue
		}

		switch cmd.Op {
		case OpEncode:
			samples = append(samples, cmd.Samples...)

			t.statsMu.Lock()
			t.windowsEncoded++
			t.pendingSamples = uint64(len(samples))
			t.statsMu.Unlock()

		case OpDump:
			data, err := audio.EncodeWAV(samples, cmd.SampleRate, t.channels)
			if err != nil {
				t.logger.Error("Artifact encoding failed",
					slog.Int("samples", len(samples)),
					slog.Int("sample_rate", cmd.SampleRate),
					slog.String("error", err.Error()),
				)
				samples = nil
				continue
			}

			t.replies <- Reply{Data: data, MIMEType: audio.MIMETypeWAV}

			t.statsMu.Lock()
			t.artifactsBuilt++
			t.pendingSamples = 0
			t.statsMu.Unlock()

			if t.metrics != nil {
				t.metrics.RecordArtifact(len(data))
			}

			// The next recording session starts from an empty store
			samples = nil

		case OpClose:
			return
		}
	}
}

// deliver hands finished artifacts to the observer in completion order.
func (t *Task) deliver() {
	defer t.wg.Done()

	for reply := range t.replies {
		t.mu.RLock()
		observer := t.onArtifact
		t.mu.RUnlock()

		if observer == nil {
			t.logger.Warn("Artifact dropped: no observer registered",
				slog.Int("size_bytes", len(reply.Data)),
			)
			continue
		}

		observer(reply)
	}
}
