package recorder

import "fmt"

// InvalidStateError reports a lifecycle operation attempted in a state that
// does not allow it. The recorder is left unchanged.
type InvalidStateError struct {
	Op    string
	State State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Op, e.State)
}

// AcquisitionError reports a failure to acquire the capture stream during
// initialization or a restart.
type AcquisitionError struct {
	Err error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("failed to acquire capture stream: %v", e.Err)
}

// Unwrap exposes the provider error for errors.Is and errors.As checks.
func (e *AcquisitionError) Unwrap() error { return e.Err }
