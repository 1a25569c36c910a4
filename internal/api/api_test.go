package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/dimmerd/internal/command"
	"github.com/dokzlo13/dimmerd/internal/curve"
	"github.com/dokzlo13/dimmerd/internal/db"
	"github.com/dokzlo13/dimmerd/internal/engine"
	"github.com/dokzlo13/dimmerd/internal/ledger"
)

type fakeDispatcher struct {
	mu        sync.Mutex
	cmds      []engine.Command
	rejected  []error
	requested uint8
	err       error
}

func (d *fakeDispatcher) Dispatch(_ command.Source, cmd engine.Command) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return "", d.err
	}
	d.cmds = append(d.cmds, cmd)
	if set, ok := cmd.(engine.SetImmediate); ok {
		d.requested = set.Strength.Byte()
	}
	return "abc", nil
}

func (d *fakeDispatcher) Reject(_ command.Source, reason error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rejected = append(d.rejected, reason)
}

func (d *fakeDispatcher) RequestedStrength() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requested
}

type fakeSchedule struct{ text string }

func (s fakeSchedule) Schedule() (string, time.Time) {
	return s.text, time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
}

type fakeHistory struct {
	entries []*ledger.Entry
	limit   int
}

func (h *fakeHistory) Recent(limit int) ([]*ledger.Entry, error) {
	h.limit = limit
	return h.entries, nil
}

func (h *fakeHistory) GetByType(eventType ledger.EventType, limit int) ([]*ledger.Entry, error) {
	h.limit = limit
	var out []*ledger.Entry
	for _, e := range h.entries {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out, nil
}

func (h *fakeHistory) GetByCommand(id string) ([]*ledger.Entry, error) {
	var out []*ledger.Entry
	for _, e := range h.entries {
		if e.CommandID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSetAndGetStrength(t *testing.T) {
	d := &fakeDispatcher{}
	h := NewHandler(Deps{Dispatcher: d})

	rec := do(t, h, http.MethodGet, "/set-strength?strength=0.5", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp acceptedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "abc", resp.ID)
	assert.Equal(t, "set_immediate", resp.Command)
	assert.Equal(t, []engine.Command{engine.SetImmediate{Strength: curve.New(0.5)}}, d.cmds)

	rec = do(t, h, http.MethodGet, "/get-strength", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "128", rec.Body.String())
}

func TestSetStrength_Invalid(t *testing.T) {
	for _, target := range []string{
		"/set-strength",
		"/set-strength?strength=bright",
		"/set-strength?strength=1.5",
		"/set-strength?strength=-0.1",
	} {
		t.Run(target, func(t *testing.T) {
			d := &fakeDispatcher{}
			rec := do(t, NewHandler(Deps{Dispatcher: d}), http.MethodGet, target, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, d.cmds)
			assert.Len(t, d.rejected, 1)
		})
	}
}

func TestSetDayTime(t *testing.T) {
	d := &fakeDispatcher{}
	h := NewHandler(Deps{Dispatcher: d})

	rec := do(t, h, http.MethodPost, "/set-day-time", `{"day":"Tue","time":"06:15"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	rec = do(t, h, http.MethodPost, "/set-day-time", `{"day":"saturday","time":null}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, d.cmds, 2)
	tue := d.cmds[0].(engine.ChangeDayTimer)
	assert.Equal(t, time.Tuesday, tue.Day)
	require.NotNil(t, tue.Time)
	assert.Equal(t, "06:15:00", tue.Time.String())
	assert.Nil(t, d.cmds[1].(engine.ChangeDayTimer).Time)

	rec = do(t, h, http.MethodPost, "/set-day-time", `{"day":"someday","time":null}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodPost, "/set-day-time", `{"day":"mon","time":"25:00"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransition(t *testing.T) {
	body := `{"from":0,"to":1,"time":2.5,"interpolation":"sine-extra","extras":["0.3"]}`

	d := &fakeDispatcher{}
	h := NewHandler(Deps{Dispatcher: d})

	require.Equal(t, http.StatusAccepted, do(t, h, http.MethodPost, "/transition?action=set", body).Code)
	require.Equal(t, http.StatusAccepted, do(t, h, http.MethodPost, "/transition?action=preview", body).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/transition", body).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/transition?action=set", `{"from":0}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/transition?action=set", `{"bogus":1}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/transition?action=preview", `{"from":0,"to":1,"time":1e300,"interpolation":"linear"}`).Code)

	require.Len(t, d.cmds, 2)
	set := d.cmds[0].(engine.ChangeDayTimerTransition)
	assert.Equal(t, 2500*time.Millisecond, set.Transition.Duration)
	assert.Equal(t, curve.SineToAndBack(0.3), set.Transition.Curve)
	assert.IsType(t, engine.SetTransition{}, d.cmds[1])
}

func TestSchedules(t *testing.T) {
	d := &fakeDispatcher{}
	h := NewHandler(Deps{Dispatcher: d, Location: time.UTC, Schedule: fakeSchedule{text: "Weekly schedule\n"}})

	require.Equal(t, http.StatusAccepted, do(t, h, http.MethodPost, "/add-schedule", `{"every":"10m","id":"poll"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/add-schedule", `{"every":"10m","time":"10:00"}`).Code)
	require.Equal(t, http.StatusAccepted, do(t, h, http.MethodGet, "/clear-schedulers", "").Code)

	require.Len(t, d.cmds, 2)
	assert.Equal(t, "poll", d.cmds[0].(engine.AddSchedule).Entry.ID())
	assert.Equal(t, engine.ClearAuxiliarySchedules{}, d.cmds[1])

	rec := do(t, h, http.MethodGet, "/schedule", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Weekly schedule\n", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("Last-Modified"))
}

func TestSchedule_NotStarted(t *testing.T) {
	h := NewHandler(Deps{Dispatcher: &fakeDispatcher{}, Schedule: fakeSchedule{}})
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/schedule", "").Code)
}

func TestStoppedLoop(t *testing.T) {
	d := &fakeDispatcher{err: errors.New("controller stopped")}
	rec := do(t, NewHandler(Deps{Dispatcher: d}), http.MethodGet, "/set-strength?strength=1", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "controller stopped")
}

func TestHistory(t *testing.T) {
	hist := &fakeHistory{entries: []*ledger.Entry{{
		ID:        7,
		EventType: ledger.EventCommandAccepted,
		Timestamp: time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC),
		Source:    "http",
		CommandID: "abc",
		Payload:   map[string]any{"command": "set_immediate"},
	}}}
	h := NewHandler(Deps{Dispatcher: &fakeDispatcher{}, History: hist})

	rec := do(t, h, http.MethodGet, "/history?limit=5000", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxHistoryLimit, hist.limit)

	var out []historyEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "command_accepted", out[0].EventType)
	assert.Equal(t, "abc", out[0].CommandID)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/history?limit=zero", "").Code)

	noLedger := NewHandler(Deps{Dispatcher: &fakeDispatcher{}})
	assert.Equal(t, http.StatusNotFound, do(t, noLedger, http.MethodGet, "/history", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, noLedger, http.MethodGet, "/history?command=abc", "").Code)
}

func TestHistory_ByCommand(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	l := ledger.New(database.DB)

	require.NoError(t, l.AppendWithSource(ledger.EventCommandAccepted, "abc", "http", map[string]any{"command": "set_immediate"}))
	require.NoError(t, l.AppendWithSource(ledger.EventCommandAccepted, "def", "mqtt", map[string]any{"command": "clear_auxiliary_schedules"}))
	require.NoError(t, l.Append(ledger.EventScheduleFired, map[string]any{"entries": []string{"primary"}}))

	h := NewHandler(Deps{Dispatcher: &fakeDispatcher{}, History: l})

	rec := do(t, h, http.MethodGet, "/history?command=def", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out []historyEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "mqtt", out[0].Source)
	assert.Equal(t, "clear_auxiliary_schedules", out[0].Payload["command"])

	rec = do(t, h, http.MethodGet, "/history?command=unknown", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/history", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out, 3)

	rec = do(t, h, http.MethodGet, "/history?type=schedule_fired", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "schedule_fired", out[0].EventType)

	rec = do(t, h, http.MethodGet, "/history?type=command_accepted&limit=1", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out, 1)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/history?type=sunrise", "").Code)
}

func TestHealthAndReady(t *testing.T) {
	running := true
	h := NewHandler(Deps{
		Dispatcher: &fakeDispatcher{},
		Checks: map[string]HealthCheck{
			"mqtt": func(context.Context) error { return nil },
		},
		Ready: func() bool { return running },
	})

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"mqtt":"ok"}}`, rec.Body.String())
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/ready", "").Code)

	running = false
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/ready", "").Code)

	failing := NewHandler(Deps{
		Dispatcher: &fakeDispatcher{},
		Checks: map[string]HealthCheck{
			"influxdb": func(context.Context) error { return errors.New("not connected") },
		},
	})
	rec = do(t, failing, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"influxdb":"not connected"}}`, rec.Body.String())
}

func TestMethodNotAllowed(t *testing.T) {
	h := NewHandler(Deps{Dispatcher: &fakeDispatcher{}})
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodDelete, "/get-strength", "").Code)
}
