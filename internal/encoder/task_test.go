package encoder

import (
	"errors"
	"log/slog"
	"math"
	"os"
	"testing"
	"time"

	"github.com/qkdxorjs1002/recorder-service/internal/audio"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// ramp builds n samples walking from start in steps of 1/400, staying well
// inside [-1, 1] for short test signals.
func ramp(n int, start float32) []float32 {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = start + float32(i)/400
	}
	return samples
}

func collectArtifacts(capacity int) (chan Reply, func(Reply)) {
	artifacts := make(chan Reply, capacity)
	return artifacts, func(r Reply) { artifacts <- r }
}

func waitArtifact(t *testing.T, artifacts chan Reply) Reply {
	t.Helper()
	select {
	case reply := <-artifacts:
		return reply
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for artifact")
		return Reply{}
	}
}

func TestTaskEncodeDumpOrdering(t *testing.T) {
	task, err := NewTask(1, 0, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}
	defer task.Close()

	artifacts, observer := collectArtifacts(1)
	task.OnArtifact(observer)

	a := ramp(200, 0)
	b := ramp(150, -0.5)

	if err := task.Encode(a); err != nil {
		t.Fatalf("Encode a failed: %v", err)
	}
	if err := task.Encode(b); err != nil {
		t.Fatalf("Encode b failed: %v", err)
	}
	if err := task.Dump(16000); err != nil {
		t.Fatalf("Dump failed: %v", err)
	}

	reply := waitArtifact(t, artifacts)

	if reply.MIMEType != audio.MIMETypeWAV {
		t.Errorf("Expected MIME type %q, got %q", audio.MIMETypeWAV, reply.MIMEType)
	}

	decoded, rate, channels, err := audio.DecodeWAV(reply.Data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}

	if rate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", rate)
	}

	if channels != 1 {
		t.Errorf("Expected 1 channel, got %d", channels)
	}

	if len(decoded) != len(a)+len(b) {
		t.Fatalf("Expected %d samples in artifact, got %d", len(a)+len(b), len(decoded))
	}

	// Windows appear back to back in submission order
	expected := append(append([]float32{}, a...), b...)
	for i, want := range expected {
		if math.Abs(float64(decoded[i]-want)) > 0.001 {
			t.Fatalf("Sample %d: expected %v, got %v", i, want, decoded[i])
		}
	}
}

func TestTaskDumpClearsPending(t *testing.T) {
	task, err := NewTask(1, 0, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}
	defer task.Close()

	artifacts, observer := collectArtifacts(2)
	task.OnArtifact(observer)

	if err := task.Encode(ramp(300, 0)); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if err := task.Dump(16000); err != nil {
		t.Fatalf("First dump failed: %v", err)
	}

	first := waitArtifact(t, artifacts)
	decoded, _, _, err := audio.DecodeWAV(first.Data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if len(decoded) != 300 {
		t.Errorf("Expected 300 samples in first artifact, got %d", len(decoded))
	}

	// The second recording starts clean
	if err := task.Encode(ramp(100, 0)); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if err := task.Dump(16000); err != nil {
		t.Fatalf("Second dump failed: %v", err)
	}

	second := waitArtifact(t, artifacts)
	decoded, _, _, err = audio.DecodeWAV(second.Data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if len(decoded) != 100 {
		t.Errorf("Expected 100 samples in second artifact, got %d", len(decoded))
	}
}

func TestTaskEmptyDump(t *testing.T) {
	task, err := NewTask(1, 0, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}
	defer task.Close()

	artifacts, observer := collectArtifacts(1)
	task.OnArtifact(observer)

	// A dump with no windows still yields a valid artifact
	if err := task.Dump(44100); err != nil {
		t.Fatalf("Dump failed: %v", err)
	}

	reply := waitArtifact(t, artifacts)

	if len(reply.Data) != 44 {
		t.Errorf("Expected 44 byte header-only artifact, got %d bytes", len(reply.Data))
	}

	if err := audio.ValidateWAV(reply.Data); err != nil {
		t.Errorf("Empty artifact is invalid: %v", err)
	}
}

func TestTaskCloseFlushesQueued(t *testing.T) {
	task, err := NewTask(1, 0, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}

	artifacts, observer := collectArtifacts(1)
	task.OnArtifact(observer)

	if err := task.Encode(ramp(64, 0)); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if err := task.Dump(16000); err != nil {
		t.Fatalf("Dump failed: %v", err)
	}

	// Close waits for queued commands and in-flight deliveries
	task.Close()

	select {
	case reply := <-artifacts:
		decoded, _, _, err := audio.DecodeWAV(reply.Data)
		if err != nil {
			t.Fatalf("DecodeWAV failed: %v", err)
		}
		if len(decoded) != 64 {
			t.Errorf("Expected 64 samples, got %d", len(decoded))
		}
	default:
		t.Fatal("Expected artifact to be delivered before Close returned")
	}
}

func TestTaskClosed(t *testing.T) {
	task, err := NewTask(1, 0, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}

	task.Close()

	if err := task.Encode(ramp(10, 0)); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed from Encode, got %v", err)
	}

	if err := task.Dump(16000); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed from Dump, got %v", err)
	}

	// Closing again is a no-op
	task.Close()
}

func TestTaskQueueFull(t *testing.T) {
	task, err := NewTask(1, 1, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}

	gate := make(chan struct{})
	artifacts := make(chan Reply, 16)
	task.OnArtifact(func(r Reply) {
		<-gate
		artifacts <- r
	})

	// Wedge the consumer: the observer holds one reply, the reply buffer
	// fills, and the run goroutine blocks delivering the next artifact.
	dumps := 6
	for i := 0; i < dumps; i++ {
		if err := task.Dump(16000); err != nil {
			t.Fatalf("Dump %d failed: %v", i, err)
		}
	}

	// With the consumer wedged, encodes pile into the queue until it
	// overflows and drops.
	sawFull := false
	for i := 0; i < 100; i++ {
		if err := task.Encode(ramp(4, 0)); errors.Is(err, ErrQueueFull) {
			sawFull = true
			break
		}
	}

	if !sawFull {
		t.Error("Expected ErrQueueFull while the consumer was wedged")
	}

	// Release the observer and let everything drain
	close(gate)

	for i := 0; i < dumps; i++ {
		waitArtifact(t, artifacts)
	}

	task.Close()
}

func TestTaskConcurrentProducer(t *testing.T) {
	task, err := NewTask(1, 0, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}
	defer task.Close()

	artifacts, observer := collectArtifacts(1)
	task.OnArtifact(observer)

	windows := 100
	windowSize := 64
	accepted := 0

	done := make(chan bool)
	go func() {
		for i := 0; i < windows; i++ {
			if err := task.Encode(make([]float32, windowSize)); err == nil {
				accepted++
			}
		}
		done <- true
	}()
	<-done

	if err := task.Dump(16000); err != nil {
		t.Fatalf("Dump failed: %v", err)
	}

	reply := waitArtifact(t, artifacts)
	decoded, _, _, err := audio.DecodeWAV(reply.Data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}

	if len(decoded) != accepted*windowSize {
		t.Errorf("Expected %d samples from %d accepted windows, got %d",
			accepted*windowSize, accepted, len(decoded))
	}
}

func TestTaskStats(t *testing.T) {
	task, err := NewTask(1, 8, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}

	artifacts, observer := collectArtifacts(1)
	task.OnArtifact(observer)

	if err := task.Encode(ramp(32, 0)); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if err := task.Dump(16000); err != nil {
		t.Fatalf("Dump failed: %v", err)
	}
	waitArtifact(t, artifacts)
	task.Close()

	stats := task.Stats()

	if stats.QueueCapacity != 8 {
		t.Errorf("Expected queue capacity 8, got %d", stats.QueueCapacity)
	}

	if stats.WindowsEncoded != 1 {
		t.Errorf("Expected 1 window encoded, got %d", stats.WindowsEncoded)
	}

	if stats.ArtifactsBuilt != 1 {
		t.Errorf("Expected 1 artifact built, got %d", stats.ArtifactsBuilt)
	}

	if stats.PendingSamples != 0 {
		t.Errorf("Expected no pending samples after dump, got %d", stats.PendingSamples)
	}
}

func TestNewTaskInvalidChannels(t *testing.T) {
	if _, err := NewTask(0, 0, testLogger(), nil); err == nil {
		t.Error("Expected error for zero channels")
	}

	if _, err := NewTask(-1, 0, testLogger(), nil); err == nil {
		t.Error("Expected error for negative channels")
	}
}

func TestValidateCommand(t *testing.T) {
	tests := []struct {
		name    string
		cmd     Command
		wantErr bool
	}{
		{"valid encode", Command{Op: OpEncode, Samples: []float32{0}}, false},
		{"encode without samples", Command{Op: OpEncode}, true},
		{"valid dump", Command{Op: OpDump, SampleRate: 16000}, false},
		{"dump without rate", Command{Op: OpDump}, true},
		{"dump negative rate", Command{Op: OpDump, SampleRate: -1}, true},
		{"close", Command{Op: OpClose}, false},
		{"unknown op", Command{Op: Op(99)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCommand(tt.cmd)
			if tt.wantErr && err == nil {
				t.Errorf("Expected error for %s", tt.name)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected error for %s: %v", tt.name, err)
			}
		})
	}
}
