// Package history exports session lifecycle events to external audit
// stores. Sinks are best-effort: a failing sink never affects the control
// path, and the in-memory stores remain the source of truth.
package history

import (
	"context"
	"time"

	"github.com/ormanaq/tmate/internal/session"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventCreated   EventType = "created"
	EventStopped   EventType = "stopped"
	EventRestarted EventType = "restarted"
	EventExited    EventType = "exited"
	EventErrored   EventType = "errored"
)

// Event is one lifecycle event for a session.
type Event struct {
	Type       EventType       `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Session    session.Session `json:"session"`
	ExitCode   int             `json:"exit_code,omitempty"`
	Detail     string          `json:"detail,omitempty"`
}

// Sink is a destination for history events. Implementations must be safe
// for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
