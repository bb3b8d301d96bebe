package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// UDPProvider constructs capture nodes fed by UDP datagrams. Each datagram
// payload is one chunk of float32 little-endian PCM at the configured rate.
// Datagrams received while the node is suspended are dropped.
type UDPProvider struct {
	addr   string
	logger *slog.Logger
}

// NewUDPProvider creates a provider listening on addr. An empty address
// reports ErrUnsupported on Construct so chains can skip it.
func NewUDPProvider(addr string, logger *slog.Logger) *UDPProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &UDPProvider{addr: addr, logger: logger}
}

// Name returns the provider name.
func (p *UDPProvider) Name() string { return "udp" }

// Construct binds the UDP socket and starts the receive loop.
func (p *UDPProvider) Construct(cfg Config) (Node, error) {
	if p.addr == "" {
		return nil, fmt.Errorf("%w: no UDP listen address configured", ErrUnsupported)
	}
	if cfg.SampleRate <= 0 || cfg.Channels <= 0 {
		return nil, fmt.Errorf("invalid capture config: sample_rate=%d channels=%d", cfg.SampleRate, cfg.Channels)
	}

	addr, err := net.ResolveUDPAddr("udp", p.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	node := &udpNode{
		conn:   conn,
		rate:   cfg.SampleRate,
		gain:   float32(cfg.Gain),
		logger: p.logger,
		ctx:    ctx,
		cancel: cancel,
	}

	p.logger.Info("UDP capture listening", slog.String("address", conn.LocalAddr().String()))

	node.wg.Add(1)
	go node.receiveLoop()

	return node, nil
}

// udpNode receives PCM datagrams and delivers them as chunks. The receive
// loop runs for the node's whole life; Suspend only switches it to dropping.
type udpNode struct {
	conn   *net.UDPConn
	rate   int
	gain   float32
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu                sync.RWMutex
	onChunk           func([]float32)
	running           bool
	closed            bool
	datagramsReceived uint64
	datagramsDropped  uint64
}

// OnChunk registers the chunk callback.
func (n *udpNode) OnChunk(fn func(samples []float32)) {
	n.mu.Lock()
	n.onChunk = fn
	n.mu.Unlock()
}

// SampleRate reports the rate datagram payloads are assumed to carry.
func (n *udpNode) SampleRate() int { return n.rate }

// Resume delivers incoming datagrams again.
func (n *udpNode) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return errors.New("capture socket closed")
	}
	n.running = true
	return nil
}

// Suspend drops incoming datagrams without delivering them.
func (n *udpNode) Suspend(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.running = false
	return nil
}

// Close tears down the socket and waits for the receive loop to finish.
func (n *udpNode) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.running = false
	n.mu.Unlock()

	n.cancel()

	// Closing the socket unblocks a pending read immediately.
	if err := n.conn.Close(); err != nil {
		n.logger.Warn("Error closing UDP socket", slog.String("error", err.Error()))
	}

	n.wg.Wait()

	n.mu.RLock()
	received := n.datagramsReceived
	dropped := n.datagramsDropped
	n.mu.RUnlock()

	n.logger.Info("UDP capture stopped",
		slog.Uint64("datagrams_received", received),
		slog.Uint64("datagrams_dropped", dropped),
	)
	return nil
}

// receiveLoop reads datagrams until the node is closed.
func (n *udpNode) receiveLoop() {
	defer n.wg.Done()

	buffer := make([]byte, 65536) // Max UDP payload

	for {
		select {
		case <-n.ctx.Done():
			return
		default:
		}

		// Deadline keeps the loop checking for shutdown.
		if err := n.conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			n.logger.Error("Failed to set read deadline", slog.String("error", err.Error()))
			return
		}

		read, remoteAddr, err := n.conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}

			select {
			case <-n.ctx.Done():
				return
			default:
				n.logger.Error("Failed to read UDP datagram", slog.String("error", err.Error()))
				continue
			}
		}
		if read == 0 {
			continue
		}

		n.mu.Lock()
		n.datagramsReceived++
		running := n.running
		fn := n.onChunk
		if !running || fn == nil {
			n.datagramsDropped++
		}
		n.mu.Unlock()

		if !running || fn == nil {
			n.logger.Debug("Dropping datagram while suspended",
				slog.String("remote_addr", remoteAddr.String()),
				slog.Int("datagram_size", read),
			)
			continue
		}

		samples := decodeFloat32LE(buffer[:read])
		applyGain(samples, n.gain)
		fn(samples)
	}
}
