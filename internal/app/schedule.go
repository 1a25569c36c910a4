package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/dokzlo13/dimmerd/internal/command"
	"github.com/dokzlo13/dimmerd/internal/config"
	"github.com/dokzlo13/dimmerd/internal/curve"
	"github.com/dokzlo13/dimmerd/internal/engine"
	"github.com/dokzlo13/dimmerd/internal/scheduler"
)

// PrimaryScheduleID identifies the weekly schedule built from config.
const PrimaryScheduleID = "primary"

// dayOff disables a weekday in schedule.days.
const dayOff = "off"

// BuildSchedule creates the schedule set from config, armed at now.
func BuildSchedule(cfg config.ScheduleConfig, now time.Time) (*scheduler.Set, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("schedule timezone: %w", err)
	}

	var times [7]*scheduler.TimeOfDay
	if def := strings.TrimSpace(cfg.Default); def != "" && !strings.EqualFold(def, dayOff) {
		tod, err := scheduler.ParseTimeOfDay(def)
		if err != nil {
			return nil, fmt.Errorf("schedule default: %w", err)
		}
		for i := range times {
			times[i] = &tod
		}
	}

	for name, value := range cfg.Days {
		day, err := scheduler.ParseWeekday(name)
		if err != nil {
			return nil, fmt.Errorf("schedule days: %w", err)
		}
		if strings.EqualFold(strings.TrimSpace(value), dayOff) || strings.TrimSpace(value) == "" {
			times[day] = nil
			continue
		}
		tod, err := scheduler.ParseTimeOfDay(value)
		if err != nil {
			return nil, fmt.Errorf("schedule days.%s: %w", name, err)
		}
		times[day] = &tod
	}

	return scheduler.NewSet(scheduler.NewWeekly(PrimaryScheduleID, times, now, loc)), nil
}

// BuildTransition validates a transition from config the same way the
// control surfaces do.
func BuildTransition(tc config.TransitionConfig) (curve.Transition, error) {
	return command.TransitionRequest{
		From:          tc.From,
		To:            tc.To,
		Time:          tc.Time.Duration().Seconds(),
		Interpolation: tc.Interpolation,
		Extras:        tc.Extras,
	}.Transition()
}

// BuildEngine creates the decision engine described by cfg, armed at now.
func BuildEngine(cfg *config.Config, now time.Time) (*engine.Engine, error) {
	set, err := BuildSchedule(cfg.Schedule, now)
	if err != nil {
		return nil, err
	}
	def, err := BuildTransition(cfg.Schedule.Transition)
	if err != nil {
		return nil, fmt.Errorf("schedule transition: %w", err)
	}
	return engine.New(set, def, engine.WithTick(cfg.Controller.Tick.Duration())), nil
}
