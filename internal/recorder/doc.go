// Package recorder implements the recording session lifecycle: capture
// stream acquisition through providers, chunk accumulation into windows,
// rate conversion, artifact encoding and typed event dispatch to observers.
package recorder
