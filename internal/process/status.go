package process

import "fmt"

// Status is the lifecycle state of a launched llama-server process.
//
//	Starting -> Running -> Stopped | Failed
//	Starting -> Stopped | Failed
//
// Stopped and Failed are terminal.
type Status int

const (
	StatusStarting Status = iota
	StatusRunning
	StatusStopped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusStopped:
		return "stopped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusStopped || s == StatusFailed
}

// Active reports whether the process counts as running for polling clients.
func (s Status) Active() bool {
	return s == StatusStarting || s == StatusRunning
}

// CanTransition validates a state change.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusStarting:
		return to == StatusRunning || to == StatusStopped || to == StatusFailed
	case StatusRunning:
		return to == StatusStopped || to == StatusFailed
	default:
		return false
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "starting":
		*s = StatusStarting
	case "running":
		*s = StatusRunning
	case "stopped":
		*s = StatusStopped
	case "failed":
		*s = StatusFailed
	default:
		return fmt.Errorf("unknown process status %q", string(b))
	}
	return nil
}
