package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventLaunch    EventType = "launch"
	EventExit      EventType = "exit"
	EventTerminate EventType = "terminate"
)

// Record is the launch metadata attached to every event.
type Record struct {
	ProcessID string `json:"process_id"`
	ModelPath string `json:"model_path"`
	ModelName string `json:"model_name"`
	Host      string `json:"host"`
	Port      uint16 `json:"port"`
	PID       int    `json:"pid"`
	Status    string `json:"status"`
	ExitCode  *int   `json:"exit_code,omitempty"`
}

// Event represents a lifecycle event exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}
