// Package api serves the HTTP control surface.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimmerd/internal/command"
	"github.com/dokzlo13/dimmerd/internal/engine"
	"github.com/dokzlo13/dimmerd/internal/ledger"
)

// Dispatcher is the part of command.Dispatcher the HTTP surface needs.
type Dispatcher interface {
	Dispatch(source command.Source, cmd engine.Command) (string, error)
	Reject(source command.Source, reason error)
	RequestedStrength() uint8
}

// ScheduleView renders the current schedule set.
type ScheduleView interface {
	Schedule() (string, time.Time)
}

// History reads the audit ledger.
type History interface {
	Recent(limit int) ([]*ledger.Entry, error)
	GetByType(eventType ledger.EventType, limit int) ([]*ledger.Entry, error)
	GetByCommand(commandID string) ([]*ledger.Entry, error)
}

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// Deps wires the handlers. Schedule, History and Checks are optional.
type Deps struct {
	Dispatcher Dispatcher
	Schedule   ScheduleView
	History    History
	Location   *time.Location
	Checks     map[string]HealthCheck
	Ready      func() bool
}

// Server is the HTTP control surface.
type Server struct {
	addr       string
	handler    http.Handler
	httpServer *http.Server
}

// NewServer creates a server listening on host:port.
func NewServer(host string, port int, deps Deps) *Server {
	return &Server{
		addr:    fmt.Sprintf("%s:%d", host, port),
		handler: NewHandler(deps),
	}
}

// NewHandler builds the routed, logged handler.
func NewHandler(deps Deps) http.Handler {
	if deps.Location == nil {
		deps.Location = time.Local
	}
	h := &handler{deps: deps, now: time.Now}

	r := mux.NewRouter()
	r.HandleFunc("/set-strength", h.setStrength).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/get-strength", h.getStrength).Methods(http.MethodGet)
	r.HandleFunc("/set-day-time", h.setDayTime).Methods(http.MethodPost, http.MethodPut)
	r.HandleFunc("/transition", h.transition).Methods(http.MethodPost, http.MethodPut)
	r.HandleFunc("/clear-schedulers", h.clearSchedulers).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/add-schedule", h.addSchedule).Methods(http.MethodPost)
	r.HandleFunc("/schedule", h.schedule).Methods(http.MethodGet)
	r.HandleFunc("/history", h.history).Methods(http.MethodGet)
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/ready", h.ready).Methods(http.MethodGet)

	accessLog := log.Logger.With().Str("component", "http").Logger()
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(
		handlers.LoggingHandler(accessLog, r),
	)
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting HTTP control server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
