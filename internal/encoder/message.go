package encoder

import (
	"errors"
	"fmt"
)

// Command operations
const (
	OpEncode Op = iota // append one window of samples
	OpDump             // flush everything received into one artifact
	OpClose            // release the encoder
)

// DefaultQueueDepth is the command queue bound applied when a session does
// not configure one.
const DefaultQueueDepth = 64

var (
	// ErrQueueFull is returned when a non-blocking submit finds the
	// command queue full. The window carried by the command is dropped.
	ErrQueueFull = errors.New("encoder queue full")

	// ErrClosed is returned for commands submitted after Close.
	ErrClosed = errors.New("encoder closed")
)

// Op identifies an encoder command operation
type Op int

// String returns a human-readable representation of the operation
func (o Op) String() string {
	switch o {
	case OpEncode:
		return "encode"
	case OpDump:
		return "dump"
	case OpClose:
		return "close"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}

// Command is the tagged message submitted to an encoder. Only the fields
// named by the operation are meaningful: Samples for OpEncode, SampleRate
// for OpDump, neither for OpClose. Sample slices are handed over whole;
// the submitter must not reuse them afterwards.
type Command struct {
	Op         Op
	Samples    []float32 // OpEncode payload
	SampleRate int       // OpDump artifact rate
}

// Reply carries one finished artifact back from an encoder.
type Reply struct {
	Data     []byte
	MIMEType string
}

// ValidateCommand checks a command's shape against its operation
func ValidateCommand(cmd Command) error {
	switch cmd.Op {
	case OpEncode:
		if cmd.Samples == nil {
			return fmt.Errorf("encode command without samples")
		}
	case OpDump:
		if cmd.SampleRate <= 0 {
			return fmt.Errorf("dump command with invalid sample rate: %d", cmd.SampleRate)
		}
	case OpClose:
		// No payload
	default:
		return fmt.Errorf("unknown command op: %d", int(cmd.Op))
	}

	return nil
}

// EncoderStats represents encoder counters for monitoring
type EncoderStats struct {
	QueueDepth     int    `json:"queue_depth"`
	QueueCapacity  int    `json:"queue_capacity"`
	WindowsEncoded uint64 `json:"windows_encoded"`
	ArtifactsBuilt uint64 `json:"artifacts_built"`
	PendingSamples uint64 `json:"pending_samples"`
}

// Encoder consumes windows of PCM samples and produces WAV artifacts on
// demand. Finished artifacts are delivered to the observer registered with
// OnArtifact; every successful Dump yields exactly one reply, and replies
// arrive in dump order.
type Encoder interface {
	// OnArtifact registers the artifact observer. It must be registered
	// before the first Dump.
	OnArtifact(fn func(Reply))

	// Encode appends one window of samples to the pending recording.
	Encode(samples []float32) error

	// Dump flushes everything encoded since the previous dump into a
	// single artifact at the given sample rate and clears the pending
	// recording.
	Dump(sampleRate int) error

	// Close releases the encoder. Commands submitted afterwards fail
	// with ErrClosed. Close is idempotent.
	Close()

	// Stats returns current encoder counters.
	Stats() EncoderStats
}
