package recorder

import "fmt"

// State is a lifecycle phase of the recorder.
type State int

const (
	// StateConfigured holds the session configuration before any capture
	// stream has been acquired.
	StateConfigured State = iota
	// StateInactive has an acquired stream with the capture clock suspended.
	StateInactive
	// StateRecording delivers capture chunks into the pipeline.
	StateRecording
	// StatePaused suspends the clock mid-session, keeping the partial window.
	StatePaused
	// StateReleased is terminal: all resources have been surrendered.
	StateReleased
)

// String returns the lowercase phase name.
func (s State) String() string {
	switch s {
	case StateConfigured:
		return "configured"
	case StateInactive:
		return "inactive"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateReleased:
		return "released"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// lifecycleOp identifies a lifecycle operation for guard checks.
type lifecycleOp int

const (
	opInitialize lifecycleOp = iota
	opStart
	opPause
	opResume
	opStop
	opRelease
)

func (op lifecycleOp) String() string {
	switch op {
	case opInitialize:
		return "initialize"
	case opStart:
		return "start"
	case opPause:
		return "pause"
	case opResume:
		return "resume"
	case opStop:
		return "stop"
	case opRelease:
		return "release"
	default:
		return fmt.Sprintf("unknown(%d)", int(op))
	}
}

// transition returns the state op leads to from cur, or an InvalidStateError
// when the operation is not allowed there. The current state is never
// modified here.
func transition(cur State, op lifecycleOp) (State, *InvalidStateError) {
	switch op {
	case opInitialize:
		if cur == StateConfigured {
			return StateInactive, nil
		}
	case opStart:
		if cur == StateConfigured || cur == StateInactive {
			return StateRecording, nil
		}
	case opPause:
		if cur == StateRecording {
			return StatePaused, nil
		}
	case opResume:
		if cur == StatePaused {
			return StateRecording, nil
		}
	case opStop:
		if cur == StateRecording || cur == StatePaused {
			return StateInactive, nil
		}
	case opRelease:
		if cur == StateInactive {
			return StateReleased, nil
		}
	}
	return cur, &InvalidStateError{Op: op.String(), State: cur}
}
