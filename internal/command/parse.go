// Package command translates symbolic payloads from the outer control
// surfaces (HTTP, MQTT, Lua) into engine commands. Anything invalid is
// rejected here with ErrInvalid and never reaches the control loop.
package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dokzlo13/dimmerd/internal/curve"
	"github.com/dokzlo13/dimmerd/internal/engine"
	"github.com/dokzlo13/dimmerd/internal/scheduler"
)

// ErrInvalid marks a payload the boundary refused. Callers map it to a
// client error.
var ErrInvalid = errors.New("invalid command")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Curve names accepted on the wire.
const (
	CurveLinear      = "linear"
	CurveSine        = "sine"
	CurveLinearExtra = "linear-extra"
	CurveSineExtra   = "sine-extra"
)

// ParseStrength parses a decimal strength in [0, 1].
func ParseStrength(s string) (curve.Strength, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return curve.Strength{}, invalid("strength %q is not a number", s)
	}
	return checkStrength("strength", f)
}

func checkStrength(field string, f float64) (curve.Strength, error) {
	if math.IsNaN(f) || f < 0 || f > 1 {
		return curve.Strength{}, invalid("%s %v out of range [0, 1]", field, f)
	}
	return curve.New(f), nil
}

// ParseInterpolation resolves a curve name and its extras.
// The -extra variants take exactly one positive multiplier.
func ParseInterpolation(name string, extras []string) (curve.Interpolation, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case CurveLinear:
		return curve.Linear(), nil
	case CurveSine:
		return curve.Sine(), nil
	case CurveLinearExtra, CurveSineExtra:
		if len(extras) != 1 {
			return curve.Interpolation{}, invalid("curve %q takes exactly one extra, got %d", name, len(extras))
		}
		m, err := strconv.ParseFloat(strings.TrimSpace(extras[0]), 64)
		if err != nil || math.IsNaN(m) || math.IsInf(m, 0) || m <= 0 {
			return curve.Interpolation{}, invalid("curve extra %q must be a positive number", extras[0])
		}
		if strings.EqualFold(strings.TrimSpace(name), CurveLinearExtra) {
			return curve.LinearToAndBack(m), nil
		}
		return curve.SineToAndBack(m), nil
	default:
		return curve.Interpolation{}, invalid("unknown curve %q", name)
	}
}

// TransitionRequest is the wire form of a transition. Time is in seconds.
type TransitionRequest struct {
	From          float64  `json:"from" yaml:"from"`
	To            float64  `json:"to" yaml:"to"`
	Time          float64  `json:"time" yaml:"time"`
	Interpolation string   `json:"interpolation" yaml:"interpolation"`
	Extras        []string `json:"extras" yaml:"extras"`
}

// maxTransitionSeconds is the longest time a time.Duration can hold.
var maxTransitionSeconds = float64(math.MaxInt64) / float64(time.Second)

// Transition validates the request.
func (r TransitionRequest) Transition() (curve.Transition, error) {
	from, err := checkStrength("from", r.From)
	if err != nil {
		return curve.Transition{}, err
	}
	to, err := checkStrength("to", r.To)
	if err != nil {
		return curve.Transition{}, err
	}
	if math.IsNaN(r.Time) || math.IsInf(r.Time, 0) || r.Time < 0 {
		return curve.Transition{}, invalid("time %v must be a non-negative number of seconds", r.Time)
	}
	if r.Time >= maxTransitionSeconds {
		return curve.Transition{}, invalid("time %v exceeds %.0f seconds", r.Time, maxTransitionSeconds)
	}
	interp, err := ParseInterpolation(r.Interpolation, r.Extras)
	if err != nil {
		return curve.Transition{}, err
	}
	return curve.Transition{
		From:     from,
		To:       to,
		Duration: time.Duration(r.Time * float64(time.Second)),
		Curve:    interp,
	}, nil
}

// Transition actions accepted by the HTTP surface.
const (
	ActionSet     = "set"
	ActionPreview = "preview"
)

// TransitionCommand maps "set" to replacing the default transition and
// "preview" to playing it once right now.
func TransitionCommand(action string, r TransitionRequest) (engine.Command, error) {
	t, err := r.Transition()
	if err != nil {
		return nil, err
	}
	switch action {
	case ActionSet:
		return engine.ChangeDayTimerTransition{Transition: t}, nil
	case ActionPreview:
		return engine.SetTransition{Transition: t}, nil
	default:
		return nil, invalid("unknown transition action %q", action)
	}
}

// DayRequest edits one day of the weekly schedule. A nil Time disables the day.
type DayRequest struct {
	Day  string  `json:"day"`
	Time *string `json:"time"`
}

// Command validates the request.
func (r DayRequest) Command() (engine.ChangeDayTimer, error) {
	day, err := scheduler.ParseWeekday(r.Day)
	if err != nil {
		return engine.ChangeDayTimer{}, invalid("%v", err)
	}
	cmd := engine.ChangeDayTimer{Day: day}
	if r.Time != nil {
		tod, err := scheduler.ParseTimeOfDay(*r.Time)
		if err != nil {
			return engine.ChangeDayTimer{}, invalid("%v", err)
		}
		cmd.Time = &tod
	}
	return cmd, nil
}

// ScheduleRequest adds an auxiliary entry: Time for a daily one-shot,
// Every for a periodic entry. Exactly one must be set.
type ScheduleRequest struct {
	ID    string `json:"id"`
	Time  string `json:"time"`
	Every string `json:"every"`
}

// Command validates the request and arms the entry at now.
func (r ScheduleRequest) Command(now time.Time, loc *time.Location) (engine.AddSchedule, error) {
	hasTime, hasEvery := r.Time != "", r.Every != ""
	if hasTime == hasEvery {
		return engine.AddSchedule{}, invalid("exactly one of time or every is required")
	}

	switch {
	case hasTime:
		tod, err := scheduler.ParseTimeOfDay(r.Time)
		if err != nil {
			return engine.AddSchedule{}, invalid("%v", err)
		}
		id := r.ID
		if id == "" {
			id = "at-" + tod.String() + "-" + shortID()
		}
		return engine.AddSchedule{Entry: scheduler.NewRepeating(id, tod, now, loc)}, nil

	default:
		interval, err := time.ParseDuration(strings.TrimSpace(r.Every))
		if err != nil || interval <= 0 {
			return engine.AddSchedule{}, invalid("every %q must be a positive duration", r.Every)
		}
		id := r.ID
		if id == "" {
			id = "every-" + interval.String() + "-" + shortID()
		}
		return engine.AddSchedule{Entry: scheduler.NewPeriodic(id, interval, now)}, nil
	}
}

func shortID() string {
	return uuid.NewString()[:8]
}

// DecodeJSON decodes a single JSON document, refusing unknown fields.
func DecodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return invalid("malformed JSON: %v", err)
	}
	return nil
}
