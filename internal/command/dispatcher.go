package command

import (
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimmerd/internal/engine"
	"github.com/dokzlo13/dimmerd/internal/eventbus"
	"github.com/dokzlo13/dimmerd/internal/ledger"
)

// Sender queues commands into the control loop.
type Sender interface {
	Send(cmd engine.Command) error
}

// Source names the surface a command came from.
type Source string

const (
	SourceHTTP    Source = "http"
	SourceMQTT    Source = "mqtt"
	SourceScript  Source = "lua"
	SourceStartup Source = "startup"
)

// Dispatcher is the single entry point used by all control surfaces. It
// assigns correlation ids, records the audit trail and keeps the gauge of the
// last requested strength.
type Dispatcher struct {
	sender Sender
	ledger *ledger.Ledger
	bus    *eventbus.Bus

	// last requested strength as 0-255; written by any surface, read by the
	// HTTP gauge
	requested atomic.Uint32
}

// NewDispatcher creates a dispatcher. ledger and bus may be nil.
func NewDispatcher(sender Sender, l *ledger.Ledger, bus *eventbus.Bus) *Dispatcher {
	return &Dispatcher{sender: sender, ledger: l, bus: bus}
}

// Dispatch sends cmd and returns its correlation id.
func (d *Dispatcher) Dispatch(source Source, cmd engine.Command) (string, error) {
	id := uuid.NewString()
	details := Describe(cmd)

	if err := d.sender.Send(cmd); err != nil {
		log.Error().Err(err).Str("command", cmd.Name()).Str("source", string(source)).Msg("Failed to queue command")
		return id, err
	}

	if set, ok := cmd.(engine.SetImmediate); ok {
		d.requested.Store(uint32(set.Strength.Byte()))
	}

	log.Info().
		Str("id", id).
		Str("command", cmd.Name()).
		Str("source", string(source)).
		Fields(details).
		Msg("Command queued")

	if d.ledger != nil {
		payload := map[string]any{"command": cmd.Name()}
		for k, v := range details {
			payload[k] = v
		}
		if err := d.ledger.AppendWithSource(ledger.EventCommandAccepted, id, string(source), payload); err != nil {
			log.Warn().Err(err).Str("id", id).Msg("Failed to record command")
		}
	}

	if d.bus != nil {
		d.bus.Publish(eventbus.Event{
			Type: eventbus.EventTypeCommand,
			Data: map[string]any{
				"id":      id,
				"command": cmd.Name(),
				"source":  string(source),
			},
		})
	}

	return id, nil
}

// Reject records a payload refused at the boundary.
func (d *Dispatcher) Reject(source Source, reason error) {
	log.Warn().Err(reason).Str("source", string(source)).Msg("Command rejected")
	if d.ledger == nil {
		return
	}
	if err := d.ledger.AppendWithSource(ledger.EventCommandRejected, "", string(source), map[string]any{"error": reason.Error()}); err != nil {
		log.Warn().Err(err).Msg("Failed to record rejected command")
	}
}

// RequestedStrength is the last strength requested through SetImmediate,
// scaled to 0-255.
func (d *Dispatcher) RequestedStrength() uint8 {
	return uint8(d.requested.Load())
}

// Describe returns loggable fields for a command.
func Describe(cmd engine.Command) map[string]any {
	switch c := cmd.(type) {
	case engine.SetImmediate:
		return map[string]any{"strength": c.Strength.Float()}
	case engine.SetTransition:
		return map[string]any{"transition": c.Transition.String()}
	case engine.ChangeDayTimerTransition:
		return map[string]any{"transition": c.Transition.String()}
	case engine.ChangeDayTimer:
		at := "disabled"
		if c.Time != nil {
			at = c.Time.String()
		}
		return map[string]any{"day": c.Day.String(), "time": at}
	case engine.AddSchedule:
		if c.Entry == nil {
			return map[string]any{}
		}
		return map[string]any{"entry": c.Entry.ID(), "kind": c.Entry.Kind()}
	default:
		return map[string]any{}
	}
}
