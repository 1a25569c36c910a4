package app

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimmerd/internal/api"
	"github.com/dokzlo13/dimmerd/internal/config"
	"github.com/dokzlo13/dimmerd/internal/db"
	"github.com/dokzlo13/dimmerd/internal/eventbus"
	"github.com/dokzlo13/dimmerd/internal/ledger"
	"github.com/dokzlo13/dimmerd/internal/mqtt"
	"github.com/dokzlo13/dimmerd/internal/tsdb"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger
	Bus    *eventbus.Bus
	MQTT   *mqtt.Client
	TSDB   *tsdb.Client

	// High-level services
	Output     *OutputService
	Controller *ControllerService
	Script     *ScriptService
	Events     *EventService
	API        *APIService
}

// NewServices creates all services with proper dependency injection.
// Nothing runs until Start.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	if cfg.Ledger.Enabled {
		database, err := db.Open(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		s.DB = database
		s.Ledger = ledger.New(database.DB)
	}

	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	if cfg.MQTT.Enabled {
		client, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.MQTT = client
	}

	// telemetry is best effort: a missing InfluxDB never blocks the dimmer
	telemetry, err := tsdb.Connect(cfg.InfluxDB)
	switch {
	case err == nil:
		s.TSDB = telemetry
	case errors.Is(err, tsdb.ErrDisabled):
	default:
		log.Warn().Err(err).Msg("InfluxDB unavailable, telemetry disabled")
	}

	s.Output, err = NewOutputService(cfg, s.MQTT)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Controller, err = NewControllerService(cfg, s.Output.Sink, s.Bus, s.Ledger)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Script = NewScriptService(cfg)
	s.Events = NewEventService(cfg, s.Bus, s.Ledger, s.TSDB, s.MQTT, s.Script)
	s.API = NewAPIService(cfg)

	return s, nil
}

// Start starts all services in the correct order.
// onFatalError is called when the control loop dies on its own.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	// observers first so the startup transition is recorded
	s.Events.Start(ctx)
	s.Controller.Start(ctx, onFatalError)
	dispatcher := s.Controller.Dispatcher

	if err := s.Script.Start(ctx, dispatcher); err != nil {
		return err
	}

	if s.MQTT != nil {
		loc, err := s.cfg.Schedule.Location()
		if err != nil {
			return err
		}
		bridge := mqtt.NewBridge(s.MQTT.Topics(), dispatcher, loc)
		if err := bridge.Start(s.MQTT); err != nil {
			return err
		}
	}

	deps := api.Deps{
		Dispatcher: dispatcher,
		Schedule:   s.Controller.Controller,
		Checks:     make(map[string]api.HealthCheck),
		Ready:      s.Controller.Running,
	}
	if loc, err := s.cfg.Schedule.Location(); err == nil {
		deps.Location = loc
	}
	if s.Ledger != nil {
		deps.History = s.Ledger
	}
	if s.MQTT != nil {
		deps.Checks["mqtt"] = s.MQTT.HealthCheck
	}
	if s.TSDB != nil {
		deps.Checks["influxdb"] = s.TSDB.HealthCheck
	}
	deps.Checks["controller"] = func(context.Context) error {
		if !s.Controller.Running() {
			return errors.New("control loop stopped")
		}
		return nil
	}
	s.API.Start(ctx, deps)

	if text, _ := s.Controller.Controller.Schedule(); text != "" {
		log.Info().Msg("Schedule:\n" + text)
	}
	return nil
}

// Stop gracefully stops all services. The control loop goes first so the
// last value reaches the output before anything else is torn down.
func (s *Services) Stop(ctx context.Context) error {
	err := s.Controller.Stop()
	s.Bus.Close(ctx)
	s.Close()
	return err
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Script != nil {
		s.Script.Close()
	}
	if s.Output != nil {
		s.Output.Close()
	}
	if s.TSDB != nil {
		s.TSDB.Close()
	}
	if s.MQTT != nil {
		s.MQTT.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
