package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qkdxorjs1002/recorder-service/internal/audio"
	"github.com/qkdxorjs1002/recorder-service/internal/capture"
	"github.com/qkdxorjs1002/recorder-service/internal/config"
	"github.com/qkdxorjs1002/recorder-service/internal/encoder"
	"github.com/qkdxorjs1002/recorder-service/internal/metrics"
)

// Recorder drives one capture session through its lifecycle: it acquires a
// capture stream, accumulates irregular chunks into fixed windows, converts
// them to the target rate and hands them to the encoder and live observers.
//
// Lifecycle operations are serialized; the capture and encoder callbacks
// only touch the pipeline and never block on a lifecycle operation.
type Recorder struct {
	cfg      *config.RecorderConfig
	provider capture.Provider
	logger   *slog.Logger
	metrics  *metrics.Metrics

	// Clock source for timestamps
	now func() time.Time

	// Serializes lifecycle operations end to end, including the blocking
	// suspend/resume calls into the capture node.
	lifecycleMu sync.Mutex

	// Session state
	state           State
	node            capture.Node
	acc             *audio.Accumulator
	enc             encoder.Encoder
	hostRate        int
	startedAt       time.Time
	teardownPending bool

	// Counters
	windowsBroadcast  uint64
	artifactsProduced uint64

	// Guards the session state and counters; never held across blocking
	// calls so the capture callback stays unblocked during suspend/resume.
	mu sync.RWMutex

	// Observers
	onStream   []func(StreamInfo)
	onState    []func(StateChange)
	onWindow   []func(WindowEvent)
	onRecorded []func(Recording)
	onError    []func(error)
	obsMu      sync.RWMutex
}

// New creates a recorder in the configured state. The capture stream is not
// acquired until Initialize or the first Start. metrics may be nil.
func New(cfg *config.RecorderConfig, provider capture.Provider, logger *slog.Logger, m *metrics.Metrics) (*Recorder, error) {
	if cfg == nil {
		return nil, errors.New("recorder config is required")
	}
	if provider == nil {
		return nil, errors.New("capture provider is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid recorder config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Recorder{
		cfg:      cfg,
		provider: provider,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
		state:    StateConfigured,
	}, nil
}

// Configure reapplies session parameters before the capture stream is
// acquired. apply mutates a copy of the current config, which is then
// validated as a whole; an invalid result leaves the session unchanged.
// Valid only in the configured state.
func (r *Recorder) Configure(apply func(*config.RecorderConfig)) error {
	if apply == nil {
		return errors.New("configure function is required")
	}

	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()

	if cur := r.State(); cur != StateConfigured {
		return &InvalidStateError{Op: "configure", State: cur}
	}

	updated := *r.cfg
	apply(&updated)
	if err := updated.Validate(); err != nil {
		return fmt.Errorf("invalid recorder config: %w", err)
	}

	r.mu.Lock()
	r.cfg = &updated
	r.mu.Unlock()

	r.logger.Debug("Session reconfigured",
		slog.Int("target_rate", updated.TargetSampleRate),
		slog.Int("capture_rate", updated.CaptureSampleRate),
		slog.Int("window_size", updated.WindowSize()))

	return nil
}

// State returns the current lifecycle state.
func (r *Recorder) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Initialize acquires the capture stream and prepares the processing
// pipeline, leaving the capture clock suspended. Valid only in the
// configured state.
func (r *Recorder) Initialize(ctx context.Context) error {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()

	return r.initialize(ctx)
}

func (r *Recorder) initialize(ctx context.Context) error {
	cur := r.State()
	next, terr := transition(cur, opInitialize)
	if terr != nil {
		return terr
	}

	node, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	hostRate := node.SampleRate()

	acc, err := audio.NewAccumulator(r.cfg.WindowSize(), r.cfg.MaxBufferedSamples(hostRate))
	if err != nil {
		node.Close()
		return fmt.Errorf("failed to create accumulator: %w", err)
	}

	var enc encoder.Encoder
	if r.cfg.ProduceArtifact {
		enc, err = r.newEncoder()
		if err != nil {
			node.Close()
			return fmt.Errorf("failed to create encoder: %w", err)
		}
		enc.OnArtifact(r.handleArtifact)
	}

	r.mu.Lock()
	r.node = node
	r.acc = acc
	r.enc = enc
	r.hostRate = hostRate
	r.mu.Unlock()

	r.commitState(cur, next)

	r.logger.Info("Recorder initialized",
		slog.Int("host_rate", hostRate),
		slog.Int("target_rate", r.cfg.TargetSampleRate),
		slog.Int("window_size", r.cfg.WindowSize()),
		slog.Bool("produce_artifact", r.cfg.ProduceArtifact))

	r.emitStream(StreamInfo{
		SampleRate: hostRate,
		Channels:   r.cfg.Channels,
		AcquiredAt: r.now(),
	})

	return nil
}

// newEncoder builds the configured encoder variant.
func (r *Recorder) newEncoder() (encoder.Encoder, error) {
	if r.cfg.UseEncodeTask {
		return encoder.NewTask(r.cfg.Channels, r.cfg.EncodeQueueDepth, r.logger, r.metrics)
	}
	return encoder.NewSync(r.cfg.Channels, r.logger, r.metrics)
}

// acquire constructs a suspended capture node through the provider chain.
func (r *Recorder) acquire(ctx context.Context) (capture.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	node, err := r.provider.Construct(capture.Config{
		PreferredWindowSize: r.cfg.WindowSize() / r.cfg.Channels,
		SampleRate:          r.cfg.CaptureSampleRate,
		Channels:            r.cfg.Channels,
		Gain:                r.cfg.MicGain,
		LatencyHint:         r.cfg.LatencyHint,
	})
	if err != nil {
		aerr := &AcquisitionError{Err: err}
		r.logger.Error("Failed to acquire capture stream", slog.String("error", err.Error()))
		r.emitError(aerr)
		return nil, aerr
	}

	return node, nil
}

// Start begins or restarts recording. From the configured state it
// initializes implicitly; after a stop that tore the stream down it
// re-acquires a fresh one.
func (r *Recorder) Start(ctx context.Context) error {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()

	if r.State() == StateConfigured {
		if err := r.initialize(ctx); err != nil {
			return err
		}
	}

	cur := r.State()
	next, terr := transition(cur, opStart)
	if terr != nil {
		return terr
	}

	r.mu.Lock()
	node := r.node
	// A start cancels any teardown still waiting on an artifact, so the
	// stream survives into the next session.
	r.teardownPending = false
	r.mu.Unlock()

	if node == nil {
		fresh, err := r.acquire(ctx)
		if err != nil {
			return err
		}
		hostRate := fresh.SampleRate()

		r.mu.Lock()
		r.node = fresh
		r.hostRate = hostRate
		r.mu.Unlock()

		node = fresh
		r.emitStream(StreamInfo{
			SampleRate: hostRate,
			Channels:   r.cfg.Channels,
			AcquiredAt: r.now(),
		})
	}

	node.OnChunk(r.handleChunk)
	if err := node.Resume(ctx); err != nil {
		return fmt.Errorf("failed to resume capture clock: %w", err)
	}

	r.mu.Lock()
	r.startedAt = r.now()
	r.mu.Unlock()

	r.commitState(cur, next)

	r.logger.Info("Recording started",
		slog.Int("host_rate", node.SampleRate()),
		slog.Int("target_rate", r.cfg.TargetSampleRate))

	return nil
}

// Pause suspends the capture clock mid-session. The partial window is kept,
// so recording resumes mid-window without a seam.
func (r *Recorder) Pause(ctx context.Context) error {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()

	cur := r.State()
	next, terr := transition(cur, opPause)
	if terr != nil {
		return terr
	}

	r.mu.RLock()
	node := r.node
	acc := r.acc
	r.mu.RUnlock()

	if err := node.Suspend(ctx); err != nil {
		return fmt.Errorf("failed to suspend capture clock: %w", err)
	}

	r.commitState(cur, next)

	remainder := 0
	if acc != nil {
		remainder = acc.Remainder()
	}
	r.logger.Info("Recording paused", slog.Int("remainder_samples", remainder))

	return nil
}

// Resume restarts the capture clock after a pause.
func (r *Recorder) Resume(ctx context.Context) error {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()

	cur := r.State()
	next, terr := transition(cur, opResume)
	if terr != nil {
		return terr
	}

	r.mu.RLock()
	node := r.node
	r.mu.RUnlock()

	if err := node.Resume(ctx); err != nil {
		return fmt.Errorf("failed to resume capture clock: %w", err)
	}

	r.commitState(cur, next)
	r.logger.Info("Recording resumed")

	return nil
}

// Stop ends the session: the capture clock is suspended, the partial window
// is dropped and, when an artifact was requested, the encoder is asked to
// dump it. The capture stream is torn down once the artifact is delivered,
// or immediately when none was requested.
func (r *Recorder) Stop(ctx context.Context) error {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()

	cur := r.State()
	next, terr := transition(cur, opStop)
	if terr != nil {
		return terr
	}

	r.mu.RLock()
	node := r.node
	enc := r.enc
	acc := r.acc
	startedAt := r.startedAt
	r.mu.RUnlock()

	if node != nil {
		if err := node.Suspend(ctx); err != nil {
			r.logger.Warn("Error suspending capture clock on stop", slog.String("error", err.Error()))
		}
	}

	if acc != nil {
		acc.Reset()
	}

	r.commitState(cur, next)

	duration := r.now().Sub(startedAt)
	if r.metrics != nil {
		r.metrics.RecordSessionEnded(duration.Seconds())
	}

	if enc != nil {
		r.mu.Lock()
		r.teardownPending = true
		r.mu.Unlock()

		if err := enc.Dump(r.cfg.TargetSampleRate); err != nil {
			r.mu.Lock()
			r.teardownPending = false
			r.mu.Unlock()
			r.teardownNode()
			return fmt.Errorf("failed to request artifact dump: %w", err)
		}
	} else {
		r.teardownNode()
	}

	r.logger.Info("Recording stopped",
		slog.Duration("duration", duration),
		slog.Bool("artifact_requested", enc != nil))

	return nil
}

// Release surrenders the capture stream and the encoder for good. Valid in
// the inactive state; anywhere else it is a no-op, so shutdown paths can
// call it unconditionally.
func (r *Recorder) Release() {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()

	cur := r.State()
	next, terr := transition(cur, opRelease)
	if terr != nil {
		r.logger.Debug("Release ignored", slog.String("state", cur.String()))
		return
	}

	r.mu.Lock()
	r.teardownPending = false
	enc := r.enc
	r.enc = nil
	r.mu.Unlock()

	r.teardownNode()

	if enc != nil {
		// Close flushes a dump still in flight, so a recording requested by
		// Stop is delivered before the encoder goes away.
		enc.Close()
	}

	r.commitState(cur, next)
	r.logger.Info("Recorder released")
}

// commitState records a completed transition and notifies observers.
func (r *Recorder) commitState(from, to State) {
	r.mu.Lock()
	r.state = to
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordStateTransition(from.String(), to.String())
	}

	r.logger.Debug("Lifecycle transition",
		slog.String("from", from.String()),
		slog.String("to", to.String()))

	r.emitStateChange(StateChange{
		From:      from.String(),
		To:        to.String(),
		Timestamp: r.now(),
	})
}

// teardownNode closes and forgets the capture node if one is held.
func (r *Recorder) teardownNode() {
	r.mu.Lock()
	node := r.node
	r.node = nil
	r.mu.Unlock()

	if node == nil {
		return
	}
	if err := node.Close(); err != nil {
		r.logger.Warn("Error closing capture node", slog.String("error", err.Error()))
	}
}

// handleChunk runs on the capture delivery goroutine. It only touches the
// pipeline, never the lifecycle.
func (r *Recorder) handleChunk(chunk []float32) {
	r.mu.RLock()
	acc := r.acc
	enc := r.enc
	hostRate := r.hostRate
	r.mu.RUnlock()

	if acc == nil || len(chunk) == 0 {
		return
	}

	if r.metrics != nil {
		r.metrics.RecordChunkCaptured(len(chunk))
	}

	windows, discarded := acc.Push(chunk)
	if discarded > 0 {
		if r.metrics != nil {
			r.metrics.RecordDiscard(uint64(discarded))
		}
		r.logger.Debug("Discarded capture backlog", slog.Int("samples", discarded))
		return
	}

	for _, window := range windows {
		r.processWindow(window, hostRate, enc)
	}
}

// processWindow converts one full window to the target rate and fans it out
// to the broadcast observers and the encoder.
func (r *Recorder) processWindow(window []float32, hostRate int, enc encoder.Encoder) {
	if r.metrics != nil {
		r.metrics.RecordWindowEmitted()
	}

	converted := window
	if hostRate != r.cfg.TargetSampleRate {
		converted = audio.Resample(window, hostRate, r.cfg.TargetSampleRate, r.cfg.Channels)
	}
	if r.cfg.OutputGain != 1.0 {
		// On the bypass path converted still aliases the raw window, so
		// gain needs its own copy to leave the raw samples untouched.
		if hostRate == r.cfg.TargetSampleRate {
			dup := make([]float32, len(converted))
			copy(dup, converted)
			converted = dup
		}
		audio.ApplyGain(converted, float32(r.cfg.OutputGain))
	}

	if r.cfg.BroadcastWindows {
		r.mu.Lock()
		r.windowsBroadcast++
		seq := r.windowsBroadcast
		r.mu.Unlock()

		if r.metrics != nil {
			r.metrics.RecordWindowBroadcast()
		}
		r.emitWindow(WindowEvent{
			Sequence:      seq,
			RawSampleRate: hostRate,
			SampleRate:    r.cfg.TargetSampleRate,
			Raw:           window,
			Samples:       converted,
			Timestamp:     r.now(),
		})
	}

	if enc != nil {
		if err := enc.Encode(converted); err != nil {
			r.logger.Warn("Dropped window on encode queue", slog.String("error", err.Error()))
			r.emitError(fmt.Errorf("failed to queue window for encoding: %w", err))
		}
	}
}

// handleArtifact receives the encoder's finished artifact, repackages it as
// a recording and finishes any teardown deferred by Stop. Runs on the
// encoder's delivery goroutine, or inline for the synchronous encoder.
func (r *Recorder) handleArtifact(reply encoder.Reply) {
	recording := Recording{
		ID:        uuid.New(),
		Timestamp: r.now(),
		MIMEType:  reply.MIMEType,
		Size:      len(reply.Data),
		Data:      reply.Data,
	}

	r.mu.Lock()
	r.artifactsProduced++
	pending := r.teardownPending
	r.teardownPending = false
	r.mu.Unlock()

	if pending {
		r.teardownNode()
	}

	r.logger.Info("Recording ready",
		slog.String("recording_id", recording.ID.String()),
		slog.Int("size_bytes", recording.Size),
		slog.String("mime_type", recording.MIMEType))

	r.emitRecorded(recording)
}

// RecorderStats is a snapshot of recorder state for monitoring
type RecorderStats struct {
	State             string                 `json:"state"`
	HostSampleRate    int                    `json:"host_sample_rate"`
	TargetSampleRate  int                    `json:"target_sample_rate"`
	Channels          int                    `json:"channels"`
	WindowSize        int                    `json:"window_size"`
	StartedAt         time.Time              `json:"started_at"`
	LastPushAt        time.Time              `json:"last_push_at"`
	WindowsBroadcast  uint64                 `json:"windows_broadcast"`
	ArtifactsProduced uint64                 `json:"artifacts_produced"`
	Accumulator       audio.AccumulatorStats `json:"accumulator"`
	Encoder           *encoder.EncoderStats  `json:"encoder,omitempty"`
}

// Stats returns a snapshot for monitoring endpoints.
func (r *Recorder) Stats() RecorderStats {
	r.mu.RLock()
	stats := RecorderStats{
		State:             r.state.String(),
		HostSampleRate:    r.hostRate,
		TargetSampleRate:  r.cfg.TargetSampleRate,
		Channels:          r.cfg.Channels,
		WindowSize:        r.cfg.WindowSize(),
		StartedAt:         r.startedAt,
		WindowsBroadcast:  r.windowsBroadcast,
		ArtifactsProduced: r.artifactsProduced,
	}
	acc := r.acc
	enc := r.enc
	r.mu.RUnlock()

	if acc != nil {
		stats.Accumulator = acc.Stats()
		stats.LastPushAt = acc.LastPush()
	}
	if enc != nil {
		encStats := enc.Stats()
		stats.Encoder = &encStats
	}

	return stats
}
