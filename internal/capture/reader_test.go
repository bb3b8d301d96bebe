package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"
)

func pcmBytes(samples []float32) []byte {
	data := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(s))
	}
	return data
}

func collectSamples(t *testing.T, chunks <-chan []float32, want int) []float32 {
	t.Helper()

	var got []float32
	timeout := time.After(2 * time.Second)
	for len(got) < want {
		select {
		case chunk := <-chunks:
			got = append(got, chunk...)
		case <-timeout:
			t.Fatalf("Timed out with %d of %d samples", len(got), want)
		}
	}
	return got
}

func TestReaderNodeDeliversAllSamples(t *testing.T) {
	input := make([]float32, 32)
	for i := range input {
		input[i] = float32(i) / 100.0
	}

	provider := NewReaderProvider(bytes.NewReader(pcmBytes(input)), testLogger())
	node, err := provider.Construct(Config{
		PreferredWindowSize: 8,
		SampleRate:          8000,
		Channels:            1,
		Gain:                1.0,
	})
	if err != nil {
		t.Fatalf("Construct failed: %v", err)
	}
	defer node.Close()

	chunks := make(chan []float32, 16)
	node.OnChunk(func(samples []float32) {
		chunks <- samples
	})

	if err := node.Resume(context.Background()); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	got := collectSamples(t, chunks, len(input))
	for i, s := range got {
		if s != input[i] {
			t.Errorf("Sample %d: expected %f, got %f", i, input[i], s)
		}
	}
}

func TestReaderNodePartialFinalChunk(t *testing.T) {
	input := make([]float32, 12)
	for i := range input {
		input[i] = 0.25
	}

	provider := NewReaderProvider(bytes.NewReader(pcmBytes(input)), testLogger())
	node, err := provider.Construct(Config{
		PreferredWindowSize: 8,
		SampleRate:          8000,
		Channels:            1,
		Gain:                1.0,
	})
	if err != nil {
		t.Fatalf("Construct failed: %v", err)
	}
	defer node.Close()

	chunks := make(chan []float32, 4)
	node.OnChunk(func(samples []float32) {
		chunks <- samples
	})
	if err := node.Resume(context.Background()); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	timeout := time.After(2 * time.Second)
	var sizes []int
	total := 0
	for total < len(input) {
		select {
		case chunk := <-chunks:
			sizes = append(sizes, len(chunk))
			total += len(chunk)
		case <-timeout:
			t.Fatalf("Timed out with %d of %d samples", total, len(input))
		}
	}

	if len(sizes) != 2 || sizes[0] != 8 || sizes[1] != 4 {
		t.Errorf("Expected chunk sizes [8 4], got %v", sizes)
	}
}

func TestReaderNodeAppliesGain(t *testing.T) {
	input := []float32{1.0, 1.0, 1.0, 1.0}

	provider := NewReaderProvider(bytes.NewReader(pcmBytes(input)), testLogger())
	node, err := provider.Construct(Config{
		PreferredWindowSize: 4,
		SampleRate:          8000,
		Channels:            1,
		Gain:                0.5,
	})
	if err != nil {
		t.Fatalf("Construct failed: %v", err)
	}
	defer node.Close()

	chunks := make(chan []float32, 2)
	node.OnChunk(func(samples []float32) {
		chunks <- samples
	})
	if err := node.Resume(context.Background()); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	got := collectSamples(t, chunks, len(input))
	for i, s := range got {
		if s != 0.5 {
			t.Errorf("Sample %d: expected 0.5 after gain, got %f", i, s)
		}
	}
}

func TestReaderNodeSuspendedByDefault(t *testing.T) {
	input := make([]float32, 64)
	provider := NewReaderProvider(bytes.NewReader(pcmBytes(input)), testLogger())
	node, err := provider.Construct(Config{
		PreferredWindowSize: 8,
		SampleRate:          8000,
		Channels:            1,
		Gain:                1.0,
	})
	if err != nil {
		t.Fatalf("Construct failed: %v", err)
	}
	defer node.Close()

	delivered := make(chan []float32, 16)
	node.OnChunk(func(samples []float32) {
		delivered <- samples
	})

	// Never resumed, so ticks must not consume input.
	time.Sleep(20 * time.Millisecond)
	select {
	case <-delivered:
		t.Error("Expected no chunks before Resume")
	default:
	}
}

func TestReaderNodeResumeAfterClose(t *testing.T) {
	provider := NewReaderProvider(bytes.NewReader(nil), testLogger())
	node, err := provider.Construct(Config{
		PreferredWindowSize: 8,
		SampleRate:          8000,
		Channels:            1,
	})
	if err != nil {
		t.Fatalf("Construct failed: %v", err)
	}

	if err := node.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := node.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}
	if err := node.Resume(context.Background()); err == nil {
		t.Error("Expected error resuming a closed node")
	}
}

func TestReaderProviderNilReader(t *testing.T) {
	provider := NewReaderProvider(nil, testLogger())

	_, err := provider.Construct(Config{SampleRate: 8000, Channels: 1})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported for nil reader, got %v", err)
	}
}

func TestReaderProviderInvalidConfig(t *testing.T) {
	provider := NewReaderProvider(bytes.NewReader(nil), testLogger())

	_, err := provider.Construct(Config{SampleRate: 0, Channels: 1})
	if err == nil {
		t.Error("Expected error for zero sample rate")
	}
	if errors.Is(err, ErrUnsupported) {
		t.Errorf("Config error should not look unsupported: %v", err)
	}
}
