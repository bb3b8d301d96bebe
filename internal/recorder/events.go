package recorder

import (
	"time"

	"github.com/google/uuid"
)

// StreamInfo describes an acquired capture stream.
type StreamInfo struct {
	SampleRate int       `json:"sample_rate"`
	Channels   int       `json:"channels"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// StateChange reports one completed lifecycle transition.
type StateChange struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// WindowEvent carries one emitted window to live consumers: the raw window
// as the accumulator produced it at the host rate, and its rate-converted,
// gain-adjusted form. Observers must treat both slices as read-only.
type WindowEvent struct {
	Sequence      uint64    `json:"sequence"`
	RawSampleRate int       `json:"raw_sample_rate"`
	SampleRate    int       `json:"sample_rate"`
	Raw           []float32 `json:"-"`
	Samples       []float32 `json:"-"`
	Timestamp     time.Time `json:"timestamp"`
}

// Recording is a finished session artifact.
type Recording struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	MIMEType  string    `json:"mime_type"`
	Size      int       `json:"size_bytes"`
	Data      []byte    `json:"-"`
}

// OnStream registers an observer for capture stream acquisition.
func (r *Recorder) OnStream(fn func(StreamInfo)) {
	r.obsMu.Lock()
	r.onStream = append(r.onStream, fn)
	r.obsMu.Unlock()
}

// OnStateChange registers an observer for lifecycle transitions. Observers
// run inline on the goroutine completing the transition.
func (r *Recorder) OnStateChange(fn func(StateChange)) {
	r.obsMu.Lock()
	r.onState = append(r.onState, fn)
	r.obsMu.Unlock()
}

// OnBufferReady registers an observer for converted windows. Observers are
// only invoked when window broadcasting is enabled.
func (r *Recorder) OnBufferReady(fn func(WindowEvent)) {
	r.obsMu.Lock()
	r.onWindow = append(r.onWindow, fn)
	r.obsMu.Unlock()
}

// OnRecorded registers an observer for finished recordings.
func (r *Recorder) OnRecorded(fn func(Recording)) {
	r.obsMu.Lock()
	r.onRecorded = append(r.onRecorded, fn)
	r.obsMu.Unlock()
}

// OnError registers an observer for asynchronous pipeline errors.
func (r *Recorder) OnError(fn func(error)) {
	r.obsMu.Lock()
	r.onError = append(r.onError, fn)
	r.obsMu.Unlock()
}

func (r *Recorder) emitStream(info StreamInfo) {
	r.obsMu.RLock()
	observers := r.onStream
	r.obsMu.RUnlock()

	for _, fn := range observers {
		fn(info)
	}
}

func (r *Recorder) emitStateChange(change StateChange) {
	r.obsMu.RLock()
	observers := r.onState
	r.obsMu.RUnlock()

	for _, fn := range observers {
		fn(change)
	}
}

func (r *Recorder) emitWindow(event WindowEvent) {
	r.obsMu.RLock()
	observers := r.onWindow
	r.obsMu.RUnlock()

	for _, fn := range observers {
		fn(event)
	}
}

func (r *Recorder) emitRecorded(recording Recording) {
	r.obsMu.RLock()
	observers := r.onRecorded
	r.obsMu.RUnlock()

	for _, fn := range observers {
		fn(recording)
	}
}

// emitError dispatches err to error observers and counts it.
func (r *Recorder) emitError(err error) {
	if r.metrics != nil {
		r.metrics.RecordError()
	}

	r.obsMu.RLock()
	observers := r.onError
	r.obsMu.RUnlock()

	for _, fn := range observers {
		fn(err)
	}
}
