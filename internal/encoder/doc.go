// Package encoder implements the recording encode channel: a tagged
// command protocol carrying sample windows, flush requests, and shutdown
// to an encoder that assembles WAV artifacts. Task runs the encoder on its
// own goroutine behind an ordered command queue; Sync provides the same
// contract in-process for sessions that opt out of the concurrent path.
package encoder
