package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// ReaderProvider constructs capture nodes that pace raw float32 little-endian
// PCM from an io.Reader at the configured sample rate, one preferred window
// per tick. It serves file and stdin capture and deterministic tests.
type ReaderProvider struct {
	reader io.Reader
	logger *slog.Logger
}

// NewReaderProvider creates a provider reading PCM from r. A nil reader
// reports ErrUnsupported on Construct so chains can skip it.
func NewReaderProvider(r io.Reader, logger *slog.Logger) *ReaderProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReaderProvider{reader: r, logger: logger}
}

// Name returns the provider name.
func (p *ReaderProvider) Name() string { return "reader" }

// Construct builds a paced reader node.
func (p *ReaderProvider) Construct(cfg Config) (Node, error) {
	if p.reader == nil {
		return nil, fmt.Errorf("%w: no input reader configured", ErrUnsupported)
	}
	if cfg.SampleRate <= 0 || cfg.Channels <= 0 {
		return nil, fmt.Errorf("invalid capture config: sample_rate=%d channels=%d", cfg.SampleRate, cfg.Channels)
	}

	window := cfg.PreferredWindowSize
	if window <= 0 {
		window = 1024 // Pacing quantum when the session does not care
	}

	ctx, cancel := context.WithCancel(context.Background())
	node := &readerNode{
		reader:   p.reader,
		rate:     cfg.SampleRate,
		channels: cfg.Channels,
		window:   window,
		gain:     float32(cfg.Gain),
		logger:   p.logger,
		ctx:      ctx,
		cancel:   cancel,
	}

	node.wg.Add(1)
	go node.pumpLoop()

	return node, nil
}

// readerNode delivers fixed-size chunks from a reader on a real-time pace.
// The pump goroutine runs for the node's whole life; Suspend and Resume only
// flip whether ticks consume input.
type readerNode struct {
	reader   io.Reader
	rate     int
	channels int
	window   int
	gain     float32
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	onChunk func([]float32)
	running bool
	closed  bool
}

// OnChunk registers the chunk callback.
func (n *readerNode) OnChunk(fn func(samples []float32)) {
	n.mu.Lock()
	n.onChunk = fn
	n.mu.Unlock()
}

// SampleRate reports the configured pacing rate.
func (n *readerNode) SampleRate() int { return n.rate }

// Resume lets ticks consume input again.
func (n *readerNode) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return errors.New("capture reader closed")
	}
	n.running = true
	return nil
}

// Suspend pauses input consumption without losing the read position.
func (n *readerNode) Suspend(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.running = false
	return nil
}

// Close stops the pump goroutine.
func (n *readerNode) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.running = false
	n.mu.Unlock()

	n.cancel()
	n.wg.Wait()
	return nil
}

// pumpLoop reads one window of PCM per tick and delivers it. The loop ends
// when the node is closed or the reader is exhausted.
func (n *readerNode) pumpLoop() {
	defer n.wg.Done()

	interval := time.Duration(n.window) * time.Second / time.Duration(n.rate)
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	buf := make([]byte, n.window*n.channels*4)

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
		}

		n.mu.Lock()
		running := n.running
		fn := n.onChunk
		n.mu.Unlock()
		if !running || fn == nil {
			continue
		}

		read, err := io.ReadFull(n.reader, buf)
		if read > 0 {
			samples := decodeFloat32LE(buf[:read])
			applyGain(samples, n.gain)
			fn(samples)
		}
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				n.logger.Info("Capture input exhausted",
					slog.Int("final_chunk_samples", read/4),
				)
			} else {
				n.logger.Error("Failed to read capture input", slog.String("error", err.Error()))
			}
			return
		}
	}
}
