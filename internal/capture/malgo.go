package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"
)

// DeviceProvider constructs capture nodes backed by the default host capture
// device through miniaudio. This is the preferred provider: hosts without a
// usable capture backend report ErrUnsupported so a chain can fall back.
type DeviceProvider struct {
	logger *slog.Logger
}

// NewDeviceProvider creates a miniaudio device provider.
func NewDeviceProvider(logger *slog.Logger) *DeviceProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeviceProvider{logger: logger}
}

// Name returns the provider name.
func (p *DeviceProvider) Name() string { return "device" }

// Construct initializes the host capture device at the configured rate.
// miniaudio converts from the device's native format, so delivered samples
// are float32 at exactly cfg.SampleRate.
func (p *DeviceProvider) Construct(cfg Config) (Node, error) {
	if cfg.SampleRate <= 0 || cfg.Channels <= 0 {
		return nil, fmt.Errorf("invalid capture config: sample_rate=%d channels=%d", cfg.SampleRate, cfg.Channels)
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to initialize audio context: %v", ErrUnsupported, err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	if cfg.PreferredWindowSize > 0 {
		deviceConfig.PeriodSizeInFrames = uint32(cfg.PreferredWindowSize)
	}

	node := &deviceNode{
		mctx:   mctx,
		rate:   cfg.SampleRate,
		gain:   float32(cfg.Gain),
		logger: p.logger,
	}

	onData := func(_, input []byte, frameCount uint32) {
		if len(input) == 0 {
			return
		}
		samples := decodeFloat32LE(input)
		applyGain(samples, node.gain)

		node.mu.RLock()
		fn := node.onChunk
		node.mu.RUnlock()
		if fn != nil {
			fn(samples)
		}
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onData})
	if err != nil {
		mctx.Free()
		return nil, fmt.Errorf("%w: failed to initialize capture device: %v", ErrUnsupported, err)
	}
	node.device = device

	return node, nil
}

// deviceNode is a suspended-by-default wrapper around a miniaudio capture
// device. Suspend and Resume map to device stop and start.
type deviceNode struct {
	mctx   *malgo.AllocatedContext
	device *malgo.Device
	rate   int
	gain   float32
	logger *slog.Logger

	mu      sync.RWMutex
	onChunk func([]float32)
	running bool
	closed  bool
}

// OnChunk registers the chunk callback.
func (n *deviceNode) OnChunk(fn func(samples []float32)) {
	n.mu.Lock()
	n.onChunk = fn
	n.mu.Unlock()
}

// SampleRate reports the configured capture rate.
func (n *deviceNode) SampleRate() int { return n.rate }

// Resume starts the capture device. No-op when already running.
func (n *deviceNode) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return errors.New("capture device closed")
	}
	if n.running {
		n.mu.Unlock()
		return nil
	}
	n.running = true
	n.mu.Unlock()

	// Start blocks until the audio thread is up, so it runs outside the
	// lock the data callback reads under.
	if err := n.device.Start(); err != nil {
		n.mu.Lock()
		n.running = false
		n.mu.Unlock()
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	return nil
}

// Suspend stops the capture device. No-op when already suspended or closed.
func (n *deviceNode) Suspend(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.mu.Lock()
	if n.closed || !n.running {
		n.mu.Unlock()
		return nil
	}
	n.running = false
	n.mu.Unlock()

	if err := n.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}
	return nil
}

// Close stops the device and frees the audio context.
func (n *deviceNode) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	wasRunning := n.running
	n.closed = true
	n.running = false
	n.mu.Unlock()

	if wasRunning {
		if err := n.device.Stop(); err != nil {
			n.logger.Warn("Error stopping capture device", slog.String("error", err.Error()))
		}
	}
	n.device.Uninit()
	n.mctx.Free()

	n.logger.Debug("Capture device closed", slog.Int("sample_rate", n.rate))
	return nil
}
