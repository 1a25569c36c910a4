package app

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimmerd/internal/config"
	"github.com/dokzlo13/dimmerd/internal/engine"
	"github.com/dokzlo13/dimmerd/internal/eventbus"
	"github.com/dokzlo13/dimmerd/internal/ledger"
	"github.com/dokzlo13/dimmerd/internal/mqtt"
	"github.com/dokzlo13/dimmerd/internal/script"
	"github.com/dokzlo13/dimmerd/internal/tsdb"
)

// stateInterval limits retained state publishes while a transition is
// being sampled.
const stateInterval = time.Second

// StatePublisher publishes the retained output state.
type StatePublisher interface {
	PublishAsync(topic string, payload []byte, retained bool) error
	PublishRetained(topic string, payload []byte) error
}

// EventService subscribes the slow observers (ledger, telemetry, MQTT state,
// script hooks) to control loop events.
type EventService struct {
	cfg    *config.Config
	bus    *eventbus.Bus
	ledger *ledger.Ledger
	tsdb   *tsdb.Client
	state  StatePublisher
	topic  string
	script *ScriptService

	mu        sync.Mutex
	lastState time.Time
}

// NewEventService creates a new EventService. ledger, telemetry and state
// may be nil.
func NewEventService(cfg *config.Config, bus *eventbus.Bus, l *ledger.Ledger, telemetry *tsdb.Client, mqttClient *mqtt.Client, scripts *ScriptService) *EventService {
	s := &EventService{
		cfg:    cfg,
		bus:    bus,
		ledger: l,
		tsdb:   telemetry,
		script: scripts,
	}
	if mqttClient != nil {
		s.state = mqttClient
		s.topic = mqttClient.Topics().State()
	}
	return s
}

// Start sets up all event handlers.
func (s *EventService) Start(ctx context.Context) {
	s.bus.Subscribe(eventbus.EventTypeOutput, s.handleOutput)
	s.bus.Subscribe(eventbus.EventTypeSchedule, func(e eventbus.Event) {
		s.handleSchedule(ctx, e)
	})
	s.bus.Subscribe(eventbus.EventTypeCommand, func(e eventbus.Event) {
		s.script.Emit(ctx, script.HookCommand, e.Data)
	})
	s.bus.Subscribe(eventbus.EventTypeStopped, func(e eventbus.Event) {
		s.handleStopped(ctx, e)
	})
}

func (s *EventService) handleOutput(e eventbus.Event) {
	at, _ := e.Data["at"].(time.Time)
	strength, _ := e.Data["strength"].(float64)
	reason, _ := e.Data["reason"].(string)

	if s.tsdb != nil {
		s.tsdb.WriteStrength(at, strength, reason)
	}
	if s.state != nil && s.shouldPublishState(at, reason) {
		payload := []byte(strconv.FormatFloat(strength, 'f', 4, 64))
		var err error
		if reason == string(engine.ReasonTransition) {
			// superseded within a second, not worth waiting for
			err = s.state.PublishAsync(s.topic, payload, true)
		} else {
			err = s.state.PublishRetained(s.topic, payload)
		}
		if err != nil {
			log.Debug().Err(err).Msg("Failed to publish output state")
		}
	}
}

// shouldPublishState lets every settled value through and samples
// in-progress transitions.
func (s *EventService) shouldPublishState(at time.Time, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reason == string(engine.ReasonTransition) && at.Sub(s.lastState) < stateInterval {
		return false
	}
	s.lastState = at
	return true
}

func (s *EventService) handleSchedule(ctx context.Context, e eventbus.Event) {
	at, _ := e.Data["at"].(time.Time)
	entries, _ := e.Data["entries"].([]string)

	if s.ledger != nil {
		if err := s.ledger.Append(ledger.EventScheduleFired, map[string]any{"entries": entries}); err != nil {
			log.Warn().Err(err).Msg("Failed to record schedule firing")
		}
	}
	if s.tsdb != nil {
		s.tsdb.WriteFiring(at, entries)
	}
	s.script.Emit(ctx, script.HookScheduleFired, e.Data)
}

func (s *EventService) handleStopped(ctx context.Context, e eventbus.Event) {
	if reason, ok := e.Data["error"].(string); ok && s.ledger != nil {
		if err := s.ledger.Append(ledger.EventLoopFailed, map[string]any{"error": reason}); err != nil {
			log.Warn().Err(err).Msg("Failed to record loop failure")
		}
	}
	s.script.Emit(ctx, script.HookStopped, e.Data)
}
