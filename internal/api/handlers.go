package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimmerd/internal/command"
	"github.com/dokzlo13/dimmerd/internal/engine"
	"github.com/dokzlo13/dimmerd/internal/ledger"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
	healthTimeout       = 2 * time.Second
)

type handler struct {
	deps Deps
	now  func() time.Time
}

type acceptedResponse struct {
	Status  string `json:"status"`
	ID      string `json:"id"`
	Command string `json:"command"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handler) setStrength(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("strength")
	if raw == "" {
		h.reject(w, errors.Join(command.ErrInvalid, errors.New("missing strength query parameter")))
		return
	}
	s, err := command.ParseStrength(raw)
	if err != nil {
		h.reject(w, err)
		return
	}
	h.send(w, engine.SetImmediate{Strength: s})
}

// getStrength returns the last requested strength as a plain 0-255 integer.
func (h *handler) getStrength(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(strconv.Itoa(int(h.deps.Dispatcher.RequestedStrength()))))
}

func (h *handler) setDayTime(w http.ResponseWriter, r *http.Request) {
	var req command.DayRequest
	if err := command.DecodeJSON(r.Body, &req); err != nil {
		h.reject(w, err)
		return
	}
	cmd, err := req.Command()
	if err != nil {
		h.reject(w, err)
		return
	}
	h.send(w, cmd)
}

// transition takes ?action=set to replace the default transition or
// ?action=preview to play it now.
func (h *handler) transition(w http.ResponseWriter, r *http.Request) {
	var req command.TransitionRequest
	if err := command.DecodeJSON(r.Body, &req); err != nil {
		h.reject(w, err)
		return
	}
	cmd, err := command.TransitionCommand(r.URL.Query().Get("action"), req)
	if err != nil {
		h.reject(w, err)
		return
	}
	h.send(w, cmd)
}

func (h *handler) clearSchedulers(w http.ResponseWriter, _ *http.Request) {
	h.send(w, engine.ClearAuxiliarySchedules{})
}

func (h *handler) addSchedule(w http.ResponseWriter, r *http.Request) {
	var req command.ScheduleRequest
	if err := command.DecodeJSON(r.Body, &req); err != nil {
		h.reject(w, err)
		return
	}
	cmd, err := req.Command(h.now(), h.deps.Location)
	if err != nil {
		h.reject(w, err)
		return
	}
	h.send(w, cmd)
}

func (h *handler) schedule(w http.ResponseWriter, _ *http.Request) {
	if h.deps.Schedule == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "schedule view not available"})
		return
	}
	text, at := h.deps.Schedule.Schedule()
	if text == "" {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "control loop has not started"})
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Last-Modified", at.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(text))
}

type historyEntry struct {
	ID        int64          `json:"id"`
	EventType string         `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source,omitempty"`
	CommandID string         `json:"command_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	if h.deps.History == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "ledger disabled"})
		return
	}

	query := r.URL.Query()
	limit := defaultHistoryLimit
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	var (
		entries []*ledger.Entry
		err     error
	)
	switch {
	case query.Get("command") != "":
		// every entry for one id handed out by a 202 response, oldest first
		entries, err = h.deps.History.GetByCommand(query.Get("command"))
	case query.Get("type") != "":
		eventType := ledger.EventType(query.Get("type"))
		if !eventType.Valid() {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown event type"})
			return
		}
		entries, err = h.deps.History.GetByType(eventType, limit)
	default:
		entries, err = h.deps.History.Recent(limit)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to read ledger")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to read history"})
		return
	}

	out := make([]historyEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntry{
			ID:        e.ID,
			EventType: string(e.EventType),
			Timestamp: e.Timestamp,
			Source:    e.Source,
			CommandID: e.CommandID,
			Payload:   e.Payload,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.deps.Checks))
	for name, check := range h.deps.Checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": overall, "checks": checks})
}

func (h *handler) ready(w http.ResponseWriter, _ *http.Request) {
	if h.deps.Ready != nil && !h.deps.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// send dispatches cmd. A stopped loop maps to 503.
func (h *handler) send(w http.ResponseWriter, cmd engine.Command) {
	id, err := h.deps.Dispatcher.Dispatch(command.SourceHTTP, cmd)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "accepted", ID: id, Command: cmd.Name()})
}

func (h *handler) reject(w http.ResponseWriter, err error) {
	h.deps.Dispatcher.Reject(command.SourceHTTP, err)
	status := http.StatusBadRequest
	if !errors.Is(err, command.ErrInvalid) {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write HTTP response")
	}
}
