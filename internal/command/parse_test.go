package command

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/dimmerd/internal/curve"
	"github.com/dokzlo13/dimmerd/internal/engine"
	"github.com/dokzlo13/dimmerd/internal/scheduler"
)

func TestParseStrength(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{in: "0", want: 0},
		{in: "1", want: 1},
		{in: " 0.25 ", want: 0.25},
		{in: "1.5", wantErr: true},
		{in: "-0.1", wantErr: true},
		{in: "NaN", wantErr: true},
		{in: "bright", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStrength(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Float())
		})
	}
}

func TestParseInterpolation(t *testing.T) {
	tests := []struct {
		name    string
		extras  []string
		want    curve.Interpolation
		wantErr bool
	}{
		{name: "linear", want: curve.Linear()},
		{name: "Sine", want: curve.Sine()},
		{name: "linear", extras: []string{"ignored"}, want: curve.Linear()},
		{name: "linear-extra", extras: []string{"0.5"}, want: curve.LinearToAndBack(0.5)},
		{name: "sine-extra", extras: []string{"3"}, want: curve.SineToAndBack(3)},
		{name: "linear-extra", wantErr: true},
		{name: "linear-extra", extras: []string{"1", "2"}, wantErr: true},
		{name: "sine-extra", extras: []string{"0"}, wantErr: true},
		{name: "sine-extra", extras: []string{"-1"}, wantErr: true},
		{name: "sine-extra", extras: []string{"Inf"}, wantErr: true},
		{name: "sine-extra", extras: []string{"lots"}, wantErr: true},
		{name: "cubic", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name+"/"+strings.Join(tt.extras, ","), func(t *testing.T) {
			got, err := ParseInterpolation(tt.name, tt.extras)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTransitionRequest(t *testing.T) {
	req := TransitionRequest{From: 0, To: 1, Time: 30, Interpolation: "linear-extra", Extras: []string{"0.5"}}
	tr, err := req.Transition()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, tr.Duration)
	assert.Equal(t, curve.LinearToAndBack(0.5), tr.Curve)
	assert.Equal(t, 1.0, tr.To.Float())

	sub := TransitionRequest{From: 1, To: 0, Time: 0.25, Interpolation: "sine"}
	tr, err = sub.Transition()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, tr.Duration)

	for _, bad := range []TransitionRequest{
		{From: -1, To: 1, Time: 1, Interpolation: "linear"},
		{From: 0, To: 2, Time: 1, Interpolation: "linear"},
		{From: 0, To: 1, Time: -1, Interpolation: "linear"},
		{From: 0, To: 1, Time: 1, Interpolation: "bogus"},
		{From: 0, To: 1, Time: 1e11, Interpolation: "linear"},
		{From: 0, To: 1, Time: 1e300, Interpolation: "linear"},
	} {
		_, err := bad.Transition()
		assert.ErrorIs(t, err, ErrInvalid, "%+v", bad)
	}

	// a week is well inside the representable range
	long, err := TransitionRequest{From: 0, To: 1, Time: 7 * 24 * 3600, Interpolation: "linear"}.Transition()
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, long.Duration)
}

func TestTransitionCommand(t *testing.T) {
	req := TransitionRequest{From: 0, To: 1, Time: 1, Interpolation: "sine"}

	cmd, err := TransitionCommand("set", req)
	require.NoError(t, err)
	assert.IsType(t, engine.ChangeDayTimerTransition{}, cmd)

	cmd, err = TransitionCommand("preview", req)
	require.NoError(t, err)
	assert.IsType(t, engine.SetTransition{}, cmd)

	_, err = TransitionCommand("apply", req)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestDayRequest(t *testing.T) {
	at := "08:47"
	cmd, err := DayRequest{Day: "Monday", Time: &at}.Command()
	require.NoError(t, err)
	assert.Equal(t, time.Monday, cmd.Day)
	require.NotNil(t, cmd.Time)
	assert.Equal(t, scheduler.TimeOfDay{Hour: 8, Minute: 47}, *cmd.Time)

	cmd, err = DayRequest{Day: "sun"}.Command()
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, cmd.Day)
	assert.Nil(t, cmd.Time)

	bad := "25:00"
	_, err = DayRequest{Day: "monday", Time: &bad}.Command()
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = DayRequest{Day: "someday"}.Command()
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestScheduleRequest(t *testing.T) {
	now := time.Date(2026, time.October, 19, 9, 0, 0, 0, time.UTC)

	cmd, err := ScheduleRequest{ID: "lunch", Time: "12:00"}.Command(now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "lunch", cmd.Entry.ID())
	assert.Equal(t, "repeating", cmd.Entry.Kind())
	next, ok := cmd.Entry.Next(now)
	require.True(t, ok)
	assert.Equal(t, now.Add(3*time.Hour), next)

	cmd, err = ScheduleRequest{Every: "15m"}.Command(now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "periodic", cmd.Entry.Kind())
	assert.True(t, strings.HasPrefix(cmd.Entry.ID(), "every-15m0s-"))

	for _, bad := range []ScheduleRequest{
		{},
		{Time: "12:00", Every: "1h"},
		{Time: "noon"},
		{Every: "0s"},
		{Every: "soon"},
	} {
		_, err := bad.Command(now, time.UTC)
		assert.ErrorIs(t, err, ErrInvalid)
	}
}

func TestDecodeJSON(t *testing.T) {
	var req DayRequest
	require.NoError(t, DecodeJSON(strings.NewReader(`{"day":"friday","time":null}`), &req))
	assert.Equal(t, "friday", req.Day)
	assert.Nil(t, req.Time)

	assert.ErrorIs(t, DecodeJSON(strings.NewReader(`{"day":"friday","hour":3}`), &req), ErrInvalid)
	assert.ErrorIs(t, DecodeJSON(strings.NewReader(`{`), &req), ErrInvalid)
}

type fakeSender struct {
	mu   sync.Mutex
	sent []engine.Command
	err  error
}

func (f *fakeSender) Send(cmd engine.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, cmd)
	return nil
}

func TestDispatcher(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender, nil, nil)

	id, err := d.Dispatch(SourceHTTP, engine.SetImmediate{Strength: curve.New(0.5)})
	require.NoError(t, err)
	assert.Len(t, id, 36)
	assert.Equal(t, uint8(128), d.RequestedStrength())
	assert.Len(t, sender.sent, 1)

	_, err = d.Dispatch(SourceHTTP, engine.ClearAuxiliarySchedules{})
	require.NoError(t, err)
	assert.Equal(t, uint8(128), d.RequestedStrength())

	sender.err = errors.New("stopped")
	_, err = d.Dispatch(SourceMQTT, engine.SetImmediate{Strength: curve.New(1)})
	assert.Error(t, err)
	assert.Equal(t, uint8(128), d.RequestedStrength())
}

func TestDescribe(t *testing.T) {
	tod := scheduler.MustParseTimeOfDay("07:30")
	assert.Equal(t, map[string]any{"day": "Tuesday", "time": "07:30:00"}, Describe(engine.ChangeDayTimer{Day: time.Tuesday, Time: &tod}))
	assert.Equal(t, map[string]any{"day": "Tuesday", "time": "disabled"}, Describe(engine.ChangeDayTimer{Day: time.Tuesday}))
	assert.Equal(t, map[string]any{}, Describe(engine.Shutdown{}))
}
