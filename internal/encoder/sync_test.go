package encoder

import (
	"errors"
	"math"
	"testing"

	"github.com/qkdxorjs1002/recorder-service/internal/audio"
)

func TestSyncEncodeDumpOrdering(t *testing.T) {
	enc, err := NewSync(1, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewSync failed: %v", err)
	}
	defer enc.Close()

	var got *Reply
	enc.OnArtifact(func(r Reply) { got = &r })

	a := ramp(200, 0)
	b := ramp(150, -0.5)

	if err := enc.Encode(a); err != nil {
		t.Fatalf("Encode a failed: %v", err)
	}
	if err := enc.Encode(b); err != nil {
		t.Fatalf("Encode b failed: %v", err)
	}
	if err := enc.Dump(16000); err != nil {
		t.Fatalf("Dump failed: %v", err)
	}

	// Delivery happens inline, before Dump returns
	if got == nil {
		t.Fatal("Expected artifact delivered during Dump")
	}

	decoded, rate, _, err := audio.DecodeWAV(got.Data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}

	if rate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", rate)
	}

	if len(decoded) != len(a)+len(b) {
		t.Fatalf("Expected %d samples, got %d", len(a)+len(b), len(decoded))
	}

	expected := append(append([]float32{}, a...), b...)
	for i, want := range expected {
		if math.Abs(float64(decoded[i]-want)) > 0.001 {
			t.Fatalf("Sample %d: expected %v, got %v", i, want, decoded[i])
		}
	}
}

func TestSyncDumpClearsPending(t *testing.T) {
	enc, err := NewSync(1, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewSync failed: %v", err)
	}
	defer enc.Close()

	var sizes []int
	enc.OnArtifact(func(r Reply) {
		decoded, _, _, err := audio.DecodeWAV(r.Data)
		if err != nil {
			t.Errorf("DecodeWAV failed: %v", err)
			return
		}
		sizes = append(sizes, len(decoded))
	})

	enc.Encode(ramp(300, 0))
	if err := enc.Dump(16000); err != nil {
		t.Fatalf("First dump failed: %v", err)
	}

	enc.Encode(ramp(100, 0))
	if err := enc.Dump(16000); err != nil {
		t.Fatalf("Second dump failed: %v", err)
	}

	if len(sizes) != 2 {
		t.Fatalf("Expected 2 artifacts, got %d", len(sizes))
	}

	if sizes[0] != 300 {
		t.Errorf("Expected 300 samples in first artifact, got %d", sizes[0])
	}

	if sizes[1] != 100 {
		t.Errorf("Expected 100 samples in second artifact, got %d", sizes[1])
	}
}

func TestSyncEmptyDump(t *testing.T) {
	enc, err := NewSync(1, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewSync failed: %v", err)
	}
	defer enc.Close()

	var got *Reply
	enc.OnArtifact(func(r Reply) { got = &r })

	if err := enc.Dump(44100); err != nil {
		t.Fatalf("Dump failed: %v", err)
	}

	if got == nil {
		t.Fatal("Expected artifact for empty dump")
	}

	if len(got.Data) != 44 {
		t.Errorf("Expected 44 byte header-only artifact, got %d bytes", len(got.Data))
	}
}

func TestSyncClosed(t *testing.T) {
	enc, err := NewSync(1, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewSync failed: %v", err)
	}

	enc.Close()

	if err := enc.Encode(ramp(10, 0)); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed from Encode, got %v", err)
	}

	if err := enc.Dump(16000); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed from Dump, got %v", err)
	}

	// Closing again is a no-op
	enc.Close()
}

func TestSyncStats(t *testing.T) {
	enc, err := NewSync(1, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewSync failed: %v", err)
	}
	defer enc.Close()

	enc.OnArtifact(func(Reply) {})

	enc.Encode(ramp(32, 0))
	enc.Encode(ramp(32, 0))

	stats := enc.Stats()
	if stats.WindowsEncoded != 2 {
		t.Errorf("Expected 2 windows encoded, got %d", stats.WindowsEncoded)
	}
	if stats.PendingSamples != 64 {
		t.Errorf("Expected 64 pending samples, got %d", stats.PendingSamples)
	}

	enc.Dump(16000)

	stats = enc.Stats()
	if stats.ArtifactsBuilt != 1 {
		t.Errorf("Expected 1 artifact built, got %d", stats.ArtifactsBuilt)
	}
	if stats.PendingSamples != 0 {
		t.Errorf("Expected no pending samples after dump, got %d", stats.PendingSamples)
	}
}
