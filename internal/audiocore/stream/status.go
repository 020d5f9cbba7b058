package stream

import "strings"

// State is the lifecycle state of a stream.
//
//	Idle -> Running -> Finished -> Idle (Reset)
//
// Stopping is entered by Stop and by a callback that ends the transfer; it
// lasts until the finished signal is set.
type State uint32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// StatusFlags are soft warnings reported by Wait. None of them is an error by
// itself.
type StatusFlags uint32

const (
	// StatusInputOverflow: the recording buffer filled before the target and
	// the recording was truncated.
	StatusInputOverflow StatusFlags = 1 << iota
	// StatusStopped: Stop was called before the transfer completed.
	StatusStopped
	// StatusBackendStopped: the backend ended the stream on its own.
	StatusBackendStopped
	// StatusCancelled: Wait returned because its context was cancelled.
	StatusCancelled
)

// Has reports whether all bits of f are set.
func (s StatusFlags) Has(f StatusFlags) bool {
	return s&f == f
}

func (s StatusFlags) String() string {
	if s == 0 {
		return "ok"
	}
	var parts []string
	for _, f := range []struct {
		bit  StatusFlags
		name string
	}{
		{StatusInputOverflow, "input-overflow"},
		{StatusStopped, "stopped"},
		{StatusBackendStopped, "backend-stopped"},
		{StatusCancelled, "cancelled"},
	} {
		if s.Has(f.bit) {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}
