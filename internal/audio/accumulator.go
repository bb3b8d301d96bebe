package audio

import (
	"fmt"
	"sync"
	"time"
)

// Accumulator merges irregularly sized PCM chunks into fixed-size windows.
// Chunks are appended in arrival order and windows are emitted in FIFO order,
// so a window may span several chunks and a chunk may feed several windows.
// Samples are never reordered, duplicated, or silently dropped: every pushed
// sample is accounted for as an emitted window sample, a carried remainder
// sample, or a counted discard.
type Accumulator struct {
	windowSize  int // samples per emitted window
	maxBuffered int // discard threshold in samples, 0 disables the bound

	pending []float32 // carried tail, always shorter than one window

	// Counters
	samplesPushed    uint64
	windowsEmitted   uint64
	samplesDiscarded uint64
	discardEvents    uint64
	lastPush         time.Time

	mu sync.RWMutex
}

// AccumulatorStats represents accumulator counters for monitoring
type AccumulatorStats struct {
	WindowSize       int    `json:"window_size"`
	Remainder        int    `json:"remainder_samples"`
	SamplesPushed    uint64 `json:"samples_pushed"`
	WindowsEmitted   uint64 `json:"windows_emitted"`
	SamplesDiscarded uint64 `json:"samples_discarded"`
	DiscardEvents    uint64 `json:"discard_events"`
}

// NewAccumulator creates an accumulator emitting windows of windowSize
// samples. maxBuffered bounds the number of samples held before a push is
// answered with a discard; 0 disables the bound.
func NewAccumulator(windowSize, maxBuffered int) (*Accumulator, error) {
	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", windowSize)
	}
	if maxBuffered != 0 && maxBuffered < windowSize {
		return nil, fmt.Errorf("max buffered samples %d smaller than window size %d", maxBuffered, windowSize)
	}
	return &Accumulator{
		windowSize:  windowSize,
		maxBuffered: maxBuffered,
		pending:     make([]float32, 0, windowSize),
	}, nil
}

// Push appends a chunk and returns every complete window that became
// available, oldest first. Each returned window owns its backing array; the
// caller may retain it without copying.
//
// When holding the chunk would exceed the buffered-sample bound, the pending
// tail and the whole chunk are discarded and Push reports the number of
// samples dropped, with no windows. The discard is observable through Stats,
// not an error.
func (a *Accumulator) Push(chunk []float32) (windows [][]float32, discarded int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.lastPush = time.Now()
	a.samplesPushed += uint64(len(chunk))

	if a.maxBuffered > 0 && len(a.pending)+len(chunk) > a.maxBuffered {
		discarded = len(a.pending) + len(chunk)
		a.samplesDiscarded += uint64(discarded)
		a.discardEvents++
		a.pending = a.pending[:0]
		return nil, discarded
	}

	a.pending = append(a.pending, chunk...)

	for len(a.pending) >= a.windowSize {
		window := make([]float32, a.windowSize)
		copy(window, a.pending[:a.windowSize])
		windows = append(windows, window)
		a.pending = a.pending[a.windowSize:]
		a.windowsEmitted++
	}

	// Re-home the tail after emission so the backing array cannot grow
	// unbounded across re-slices.
	if len(windows) > 0 {
		tail := make([]float32, len(a.pending), a.windowSize)
		copy(tail, a.pending)
		a.pending = tail
	}

	return windows, 0
}

// Reset drops the pending tail without touching the counters.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = a.pending[:0]
}

// Remainder returns the number of samples currently carried between windows.
func (a *Accumulator) Remainder() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.pending)
}

// WindowSize returns the configured window size in samples.
func (a *Accumulator) WindowSize() int {
	return a.windowSize
}

// LastPush returns the time of the most recent push.
func (a *Accumulator) LastPush() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastPush
}

// Stats returns current accumulator counters. Absent resets,
// SamplesPushed == WindowsEmitted*WindowSize + Remainder + SamplesDiscarded.
func (a *Accumulator) Stats() AccumulatorStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return AccumulatorStats{
		WindowSize:       a.windowSize,
		Remainder:        len(a.pending),
		SamplesPushed:    a.samplesPushed,
		WindowsEmitted:   a.windowsEmitted,
		SamplesDiscarded: a.samplesDiscarded,
		DiscardEvents:    a.discardEvents,
	}
}
