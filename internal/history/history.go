package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventCreated   EventType = "created"
	EventInstalled EventType = "installed"
	EventStarted   EventType = "started"
	EventStopped   EventType = "stopped"
	EventCrashed   EventType = "crashed"
	EventDeleted   EventType = "deleted"
)

// Event records one observed transition of a launch agent, either from a
// controller verb or from the reconciler noticing a change out-of-band.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Label      string    `json:"label"`
	PID        int       `json:"pid"`
	ExitStatus int       `json:"exit_status"`
	OccurredAt time.Time `json:"occurred_at"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for history events. Implementations must be safe
// for concurrent use; senders treat failures as best-effort.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}
