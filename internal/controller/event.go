package controller

import (
	"time"

	"github.com/dokzlo13/dimmerd/internal/curve"
	"github.com/dokzlo13/dimmerd/internal/engine"
)

// EventType identifies a loop event.
type EventType string

const (
	EventOutputSet      EventType = "output_set"
	EventCommandApplied EventType = "command_applied"
	EventScheduleFired  EventType = "schedule_fired"
	EventStopped        EventType = "stopped"
)

// Event is emitted by the loop to observers. Only the fields relevant to
// Type are set.
type Event struct {
	Type EventType
	At   time.Time

	Strength curve.Strength
	Reason   engine.Reason
	Command  string
	Fired    []string
	Err      error
}
