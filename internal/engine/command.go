package engine

import (
	"time"

	"github.com/dokzlo13/dimmerd/internal/curve"
	"github.com/dokzlo13/dimmerd/internal/scheduler"
)

// Command is a request delivered to the engine through the controller mailbox.
// The set of commands is closed.
type Command interface {
	Name() string
	isCommand()
}

// SetImmediate cancels any running transition and sets the output.
type SetImmediate struct {
	Strength curve.Strength
}

// SetTransition starts a one-off transition now.
type SetTransition struct {
	Transition curve.Transition
}

// ChangeDayTimer edits the primary schedule for one weekday.
// A nil Time disables the day.
type ChangeDayTimer struct {
	Day  time.Weekday
	Time *scheduler.TimeOfDay
}

// ChangeDayTimerTransition replaces the transition started by schedule firings.
type ChangeDayTimerTransition struct {
	Transition curve.Transition
}

// AddSchedule adds an auxiliary schedule entry.
type AddSchedule struct {
	Entry scheduler.Entry
}

// ClearAuxiliarySchedules removes all auxiliary entries; the primary stays.
type ClearAuxiliarySchedules struct{}

// Shutdown stops the control loop.
type Shutdown struct{}

func (SetImmediate) Name() string             { return "set_immediate" }
func (SetTransition) Name() string            { return "set_transition" }
func (ChangeDayTimer) Name() string           { return "change_day_timer" }
func (ChangeDayTimerTransition) Name() string { return "change_day_timer_transition" }
func (AddSchedule) Name() string              { return "add_schedule" }
func (ClearAuxiliarySchedules) Name() string  { return "clear_auxiliary_schedules" }
func (Shutdown) Name() string                 { return "shutdown" }

func (SetImmediate) isCommand()             {}
func (SetTransition) isCommand()            {}
func (ChangeDayTimer) isCommand()           {}
func (ChangeDayTimerTransition) isCommand() {}
func (AddSchedule) isCommand()              {}
func (ClearAuxiliarySchedules) isCommand()  {}
func (Shutdown) isCommand()                 {}
