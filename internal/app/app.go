package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimmerd/internal/config"
)

// App wires the dimmer services together and runs them until a signal or a
// fatal output error.
type App struct {
	cfg      *config.Config
	services *Services
	ctx      context.Context
	cancel   context.CancelCauseFunc
}

// New opens every service. Nothing runs until Start.
func New(cfg *config.Config) (*App, error) {
	services, err := NewServices(cfg)
	if err != nil {
		return nil, err
	}
	return &App{cfg: cfg, services: services}, nil
}

// Run starts the app, blocks until ctx is done or the control loop dies,
// then shuts down. The returned error is the reason the loop stopped, if it
// did not stop on request.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		if stopErr := a.Stop(); stopErr != nil {
			log.Error().Err(stopErr).Msg("Shutdown after failed start")
		}
		return fmt.Errorf("start application: %w", err)
	}
	a.Wait()
	return a.Stop()
}

// Start runs every service. A fatal control loop error cancels the app
// context with that error as its cause.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancelCause(ctx)

	onFatalError := func(err error) {
		log.Error().Err(err).Msg("Control loop failed, shutting down")
		a.cancel(err)
	}
	if err := a.services.Start(a.ctx, onFatalError); err != nil {
		return err
	}

	a.logStartup()
	return nil
}

func (a *App) logStartup() {
	ev := log.Info().
		Str("output", a.cfg.Output.Driver).
		Dur("tick", a.cfg.Controller.Tick.Duration()).
		Bool("mqtt", a.services.MQTT != nil).
		Bool("influxdb", a.services.TSDB != nil).
		Bool("ledger", a.services.Ledger != nil)
	if a.cfg.HTTP.Enabled {
		ev = ev.Str("http", net.JoinHostPort(a.cfg.HTTP.Host, strconv.Itoa(a.cfg.HTTP.Port)))
	}
	if a.cfg.Script != "" {
		ev = ev.Str("script", a.cfg.Script)
	}
	if d, ok := a.services.Controller.engine.Schedules().NextFire(time.Now()); ok {
		ev = ev.Dur("next_fire_in", d.Round(time.Second))
	}
	ev.Msg("dimmerd started")
}

// Err is the fatal error that stopped the app, or nil for a requested stop.
func (a *App) Err() error {
	if a.ctx == nil {
		return nil
	}
	if cause := context.Cause(a.ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}

// Stop shuts the services down within the configured timeout. It returns
// the error that stopped the control loop, if any.
func (a *App) Stop() error {
	log.Info().Msg("Shutting down...")

	if a.cancel != nil {
		a.cancel(nil)
	}
	if a.services == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout.Duration())
	defer cancel()
	return a.services.Stop(ctx)
}

// Wait blocks until the app context is done.
func (a *App) Wait() {
	if a.ctx != nil {
		<-a.ctx.Done()
	}
}

// SignalContext is cancelled on the first SIGINT or SIGTERM. A second signal
// exits immediately, for when a shutdown hangs on an unresponsive output.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()

		sig = <-sigChan
		log.Error().Str("signal", sig.String()).Msg("Second signal, exiting without cleanup")
		os.Exit(1)
	}()

	return ctx
}
