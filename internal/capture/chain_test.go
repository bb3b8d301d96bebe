package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

type fakeNode struct {
	rate    int
	onChunk func([]float32)
	running bool
	closed  bool
}

func (n *fakeNode) Suspend(ctx context.Context) error { n.running = false; return nil }
func (n *fakeNode) Resume(ctx context.Context) error  { n.running = true; return nil }
func (n *fakeNode) OnChunk(fn func([]float32))        { n.onChunk = fn }
func (n *fakeNode) SampleRate() int                   { return n.rate }
func (n *fakeNode) Close() error                      { n.closed = true; return nil }

type fakeProvider struct {
	name     string
	err      error
	attempts int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Construct(cfg Config) (Node, error) {
	p.attempts++
	if p.err != nil {
		return nil, p.err
	}
	return &fakeNode{rate: cfg.SampleRate}, nil
}

func TestChainFirstProviderWins(t *testing.T) {
	first := &fakeProvider{name: "first"}
	second := &fakeProvider{name: "second"}
	chain := NewChain(testLogger(), first, second)

	node, err := chain.Construct(Config{SampleRate: 48000, Channels: 1})
	if err != nil {
		t.Fatalf("Construct failed: %v", err)
	}
	if node.SampleRate() != 48000 {
		t.Errorf("Expected sample rate 48000, got %d", node.SampleRate())
	}
	if first.attempts != 1 {
		t.Errorf("Expected 1 attempt on first provider, got %d", first.attempts)
	}
	if second.attempts != 0 {
		t.Errorf("Expected second provider untouched, got %d attempts", second.attempts)
	}
}

func TestChainFallsBackOnUnsupported(t *testing.T) {
	first := &fakeProvider{
		name: "first",
		err:  fmt.Errorf("%w: no backend", ErrUnsupported),
	}
	second := &fakeProvider{name: "second"}
	chain := NewChain(testLogger(), first, second)

	node, err := chain.Construct(Config{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("Construct failed: %v", err)
	}
	if node == nil {
		t.Fatal("Expected a node from the fallback provider")
	}
	if first.attempts != 1 || second.attempts != 1 {
		t.Errorf("Expected both providers tried once, got %d and %d", first.attempts, second.attempts)
	}
}

func TestChainAbortsOnHardError(t *testing.T) {
	first := &fakeProvider{name: "first", err: errors.New("device busy")}
	second := &fakeProvider{name: "second"}
	chain := NewChain(testLogger(), first, second)

	_, err := chain.Construct(Config{SampleRate: 16000, Channels: 1})
	if err == nil {
		t.Fatal("Expected error from failing provider")
	}
	if errors.Is(err, ErrUnsupported) {
		t.Errorf("Hard failure should not look unsupported: %v", err)
	}
	if second.attempts != 0 {
		t.Errorf("Expected no fallback after hard failure, got %d attempts", second.attempts)
	}
}

func TestChainExhausted(t *testing.T) {
	first := &fakeProvider{name: "first", err: fmt.Errorf("%w: a", ErrUnsupported)}
	second := &fakeProvider{name: "second", err: fmt.Errorf("%w: b", ErrUnsupported)}
	chain := NewChain(testLogger(), first, second)

	_, err := chain.Construct(Config{SampleRate: 16000, Channels: 1})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported after exhaustion, got %v", err)
	}
}

func TestChainEmpty(t *testing.T) {
	chain := NewChain(testLogger())

	_, err := chain.Construct(Config{SampleRate: 16000, Channels: 1})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported from empty chain, got %v", err)
	}
}
