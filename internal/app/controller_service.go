package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimmerd/internal/command"
	"github.com/dokzlo13/dimmerd/internal/config"
	"github.com/dokzlo13/dimmerd/internal/controller"
	"github.com/dokzlo13/dimmerd/internal/engine"
	"github.com/dokzlo13/dimmerd/internal/eventbus"
	"github.com/dokzlo13/dimmerd/internal/ledger"
)

// ControllerService owns the control loop and its periodic housekeeping.
type ControllerService struct {
	cfg        *config.Config
	engine     *engine.Engine
	sink       controller.Sink
	bus        *eventbus.Bus
	ledger     *ledger.Ledger
	Controller *controller.Controller
	Dispatcher *command.Dispatcher
}

// NewControllerService builds the engine from config. The loop is not
// started until Start.
func NewControllerService(cfg *config.Config, sink controller.Sink, bus *eventbus.Bus, l *ledger.Ledger) (*ControllerService, error) {
	eng, err := BuildEngine(cfg, time.Now())
	if err != nil {
		return nil, err
	}
	return &ControllerService{
		cfg:    cfg,
		engine: eng,
		sink:   sink,
		bus:    bus,
		ledger: l,
	}, nil
}

// Start runs the control loop and queues the startup transition.
// onFatalError is called if the loop stops on a sink failure.
func (s *ControllerService) Start(ctx context.Context, onFatalError func(error)) {
	s.Controller = controller.New(s.sink, s.engine, controller.WithObserver(s.publish))
	s.Dispatcher = command.NewDispatcher(s.Controller.Sender(), s.ledger, s.bus)

	if tc := s.cfg.StartupTransition; tc != nil {
		t, err := BuildTransition(*tc)
		if err != nil {
			log.Warn().Err(err).Msg("Invalid startup transition, skipping")
		} else if _, err := s.Dispatcher.Dispatch(command.SourceStartup, engine.SetTransition{Transition: t}); err != nil {
			log.Warn().Err(err).Msg("Failed to queue startup transition")
		}
	}

	go s.watch(ctx, onFatalError)

	if interval := s.cfg.Log.PrintSchedule.Duration(); interval > 0 {
		go s.printSchedule(ctx, interval)
	}
	if s.ledger != nil {
		go s.runLedgerCleanup(ctx)
	}
}

// Running reports whether the loop is still accepting commands.
func (s *ControllerService) Running() bool {
	if s.Controller == nil {
		return false
	}
	select {
	case <-s.Controller.Done():
		return false
	default:
		return true
	}
}

// Stop shuts the loop down and returns the sink error that stopped it, if any.
func (s *ControllerService) Stop() error {
	if s.Controller == nil {
		return nil
	}
	_, err := s.Controller.Finish()
	return err
}

// publish forwards loop events to the bus. It runs on the loop goroutine,
// and Publish never blocks.
func (s *ControllerService) publish(e controller.Event) {
	switch e.Type {
	case controller.EventOutputSet:
		s.bus.Publish(eventbus.Event{Type: eventbus.EventTypeOutput, Data: map[string]any{
			"at":       e.At,
			"strength": e.Strength.Float(),
			"reason":   string(e.Reason),
		}})
	case controller.EventScheduleFired:
		s.bus.Publish(eventbus.Event{Type: eventbus.EventTypeSchedule, Data: map[string]any{
			"at":      e.At,
			"entries": e.Fired,
		}})
	case controller.EventStopped:
		data := map[string]any{"at": e.At}
		if e.Err != nil {
			data["error"] = e.Err.Error()
		}
		s.bus.Publish(eventbus.Event{Type: eventbus.EventTypeStopped, Data: data})
	}
}

// watch reports a loop that stopped on its own as fatal.
func (s *ControllerService) watch(ctx context.Context, onFatalError func(error)) {
	select {
	case <-ctx.Done():
		return
	case <-s.Controller.Done():
	}
	if ctx.Err() != nil {
		return
	}
	err := s.Controller.Err()
	if err == nil {
		err = errors.New("control loop stopped unexpectedly")
	}
	onFatalError(err)
}

func (s *ControllerService) printSchedule(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if text, _ := s.Controller.Schedule(); text != "" {
				log.Info().Msg("Current schedule:\n" + text)
			}
		}
	}
}

// runLedgerCleanup periodically cleans up old ledger entries.
func (s *ControllerService) runLedgerCleanup(ctx context.Context) {
	retention := time.Duration(s.cfg.Ledger.RetentionDays) * 24 * time.Hour
	interval := s.cfg.Ledger.CleanupInterval.Duration()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.ledger.DeleteOlderThan(retention)
			if err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
			} else if deleted > 0 {
				log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old ledger entries")
			}
		}
	}
}
