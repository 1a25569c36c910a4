package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/dimmerd/internal/curve"
	"github.com/dokzlo13/dimmerd/internal/scheduler"
)

// 2026-10-19 is a Monday.
func at(day, hour, min, sec int) time.Time {
	return time.Date(2026, time.October, day, hour, min, sec, 0, time.UTC)
}

func linear30s() curve.Transition {
	return curve.Transition{From: curve.New(0), To: curve.New(1), Duration: 30 * time.Second, Curve: curve.Linear()}
}

func newEngine(armed time.Time) *Engine {
	primary := scheduler.SameEveryDay("primary", scheduler.MustParseTimeOfDay("08:47"), armed, time.UTC)
	return New(scheduler.NewSet(primary), linear30s())
}

func TestProcess_IdleWaitsForPrimary(t *testing.T) {
	e := newEngine(at(19, 8, 0, 0))

	a := e.Process(at(19, 8, 0, 0), nil)
	assert.Equal(t, ActionWait, a.Kind)
	assert.Equal(t, ReasonScheduleWait, a.Reason)
	assert.Equal(t, For(47*time.Minute), a.Wait)
}

func TestProcess_NoSchedulesWaitsForever(t *testing.T) {
	primary := scheduler.NewWeekly("primary", [7]*scheduler.TimeOfDay{}, at(19, 8, 0, 0), time.UTC)
	e := New(scheduler.NewSet(primary), linear30s())

	a := e.Process(at(19, 8, 0, 0), nil)
	assert.Equal(t, ActionWait, a.Kind)
	assert.Equal(t, Forever(), a.Wait)
	assert.Equal(t, ReasonIdle, a.Reason)
}

func TestProcess_ScheduleFiresDefaultTransition(t *testing.T) {
	e := newEngine(at(19, 8, 0, 0))

	a := e.Process(at(19, 8, 47, 0), nil)
	require.Equal(t, ActionSet, a.Kind)
	assert.Equal(t, ReasonScheduleFired, a.Reason)
	assert.Equal(t, []string{"primary"}, a.Fired)
	assert.InDelta(t, 0.0, a.Strength.Float(), 1e-9)
	assert.Equal(t, For(DefaultTick), a.Wait)

	_, start, ok := e.Active()
	require.True(t, ok)
	assert.Equal(t, at(19, 8, 47, 0), start)
	assert.Equal(t, time.Tuesday, e.Schedules().Primary().Cursor())
}

func TestProcess_TransitionSamplesAndCompletes(t *testing.T) {
	e := newEngine(at(19, 8, 0, 0))
	e.Process(at(19, 8, 47, 0), nil)

	mid := e.Process(at(19, 8, 47, 15), nil)
	require.Equal(t, ActionSet, mid.Kind)
	assert.Equal(t, ReasonTransition, mid.Reason)
	assert.InDelta(t, 0.5, mid.Strength.Float(), 1e-9)

	// the last tick is shortened to land on the end
	near := e.Process(at(19, 8, 47, 29).Add(990*time.Millisecond), nil)
	assert.Equal(t, For(10*time.Millisecond), near.Wait)

	done := e.Process(at(19, 8, 47, 30), nil)
	require.Equal(t, ActionSet, done.Kind)
	assert.Equal(t, ReasonTransitionDone, done.Reason)
	assert.Equal(t, 1.0, done.Strength.Float())
	assert.Equal(t, Wake(), done.Wait)

	_, _, ok := e.Active()
	assert.False(t, ok)

	next := e.Process(at(19, 8, 47, 30), nil)
	assert.Equal(t, ActionWait, next.Kind)
	assert.Equal(t, For(24*time.Hour-30*time.Second), next.Wait)
}

func TestProcess_LateWakeCompletesAtTarget(t *testing.T) {
	e := newEngine(at(19, 8, 0, 0))
	e.Process(at(19, 8, 47, 0), nil)

	a := e.Process(at(19, 9, 30, 0), nil)
	assert.Equal(t, ReasonTransitionDone, a.Reason)
	assert.Equal(t, 1.0, a.Strength.Float())
}

func TestProcess_CommandWinsOverDueSchedule(t *testing.T) {
	e := newEngine(at(19, 8, 0, 0))

	a := e.Process(at(19, 8, 47, 0), SetImmediate{Strength: curve.New(0.3)})
	require.Equal(t, ActionSet, a.Kind)
	assert.Equal(t, ReasonCommand, a.Reason)
	assert.Equal(t, 0.3, a.Strength.Float())
	assert.Equal(t, Wake(), a.Wait)

	// the schedule is still due on the next step
	b := e.Process(at(19, 8, 47, 0), nil)
	assert.Equal(t, ReasonScheduleFired, b.Reason)
}

func TestProcess_SetImmediateCancelsTransition(t *testing.T) {
	e := newEngine(at(19, 8, 0, 0))
	e.Process(at(19, 8, 47, 0), nil)

	e.Process(at(19, 8, 47, 5), SetImmediate{Strength: curve.New(0.8)})
	_, _, ok := e.Active()
	assert.False(t, ok)

	a := e.Process(at(19, 8, 47, 6), nil)
	assert.Equal(t, ActionWait, a.Kind)
}

func TestProcess_SetTransitionReplacesRunning(t *testing.T) {
	e := newEngine(at(19, 8, 0, 0))
	e.Process(at(19, 8, 47, 0), nil)

	tr := curve.Transition{From: curve.New(1), To: curve.New(0), Duration: 10 * time.Second, Curve: curve.Linear()}
	a := e.Process(at(19, 8, 47, 5), SetTransition{Transition: tr})
	assert.Equal(t, 1.0, a.Strength.Float())

	active, start, ok := e.Active()
	require.True(t, ok)
	assert.Equal(t, tr, active)
	assert.Equal(t, at(19, 8, 47, 5), start)
}

func TestProcess_ZeroDurationTransition(t *testing.T) {
	e := newEngine(at(19, 8, 0, 0))
	tr := curve.Transition{From: curve.New(0), To: curve.New(0.6), Curve: curve.Sine()}

	a := e.Process(at(19, 8, 0, 0), SetTransition{Transition: tr})
	assert.Equal(t, 0.6, a.Strength.Float())
	assert.Equal(t, For(0), a.Wait)

	b := e.Process(at(19, 8, 0, 0), nil)
	assert.Equal(t, ReasonTransitionDone, b.Reason)
	assert.Equal(t, 0.6, b.Strength.Float())
}

func TestProcess_ScheduleEditsKeepTransitionTicking(t *testing.T) {
	e := newEngine(at(19, 8, 0, 0))
	e.Process(at(19, 8, 47, 0), nil)

	cmds := []Command{
		ChangeDayTimer{Day: time.Tuesday, Time: nil},
		ChangeDayTimerTransition{Transition: linear30s()},
		AddSchedule{Entry: scheduler.NewPeriodic("p", time.Hour, at(19, 8, 47, 0))},
		ClearAuxiliarySchedules{},
	}
	for _, cmd := range cmds {
		a := e.Process(at(19, 8, 47, 1), cmd)
		assert.Equal(t, ActionWait, a.Kind, cmd.Name())
		assert.Equal(t, For(DefaultTick), a.Wait, cmd.Name())
	}
}

func TestProcess_ChangeDayTimer(t *testing.T) {
	e := newEngine(at(19, 8, 0, 0))
	tod := scheduler.MustParseTimeOfDay("08:10")

	a := e.Process(at(19, 8, 0, 0), ChangeDayTimer{Day: time.Monday, Time: &tod})
	assert.Equal(t, For(10*time.Minute), a.Wait)
	assert.Equal(t, tod, *e.Schedules().Primary().Day(time.Monday))
}

func TestProcess_ChangeDayTimerTransitionUsedOnNextFire(t *testing.T) {
	e := newEngine(at(19, 8, 0, 0))
	tr := curve.Transition{From: curve.New(0.2), To: curve.New(0.4), Duration: time.Minute, Curve: curve.Sine()}

	e.Process(at(19, 8, 0, 0), ChangeDayTimerTransition{Transition: tr})
	assert.Equal(t, tr, e.DefaultTransition())

	a := e.Process(at(19, 8, 47, 0), nil)
	assert.InDelta(t, 0.2, a.Strength.Float(), 1e-9)
}

func TestProcess_AddAndClearSchedules(t *testing.T) {
	e := newEngine(at(19, 6, 0, 0))

	a := e.Process(at(19, 6, 0, 0), AddSchedule{Entry: scheduler.NewRepeating("early", scheduler.MustParseTimeOfDay("07:00"), at(19, 6, 0, 0), time.UTC)})
	assert.Equal(t, For(time.Hour), a.Wait)
	assert.Equal(t, 2, e.Schedules().Len())

	b := e.Process(at(19, 6, 0, 0), ClearAuxiliarySchedules{})
	assert.Equal(t, For(2*time.Hour+47*time.Minute), b.Wait)
	assert.Equal(t, 1, e.Schedules().Len())
}

func TestProcess_SimultaneousFiresStartOneTransition(t *testing.T) {
	e := newEngine(at(19, 8, 0, 0))
	e.Process(at(19, 8, 0, 0), AddSchedule{Entry: scheduler.NewRepeating("same", scheduler.MustParseTimeOfDay("08:47"), at(19, 8, 0, 0), time.UTC)})

	a := e.Process(at(19, 8, 47, 0), nil)
	assert.Equal(t, []string{"primary", "same"}, a.Fired)
	assert.Equal(t, 1, e.Schedules().Len())
}

func TestProcess_Shutdown(t *testing.T) {
	e := newEngine(at(19, 8, 0, 0))
	e.Process(at(19, 8, 47, 0), nil)

	a := e.Process(at(19, 8, 47, 3), Shutdown{})
	assert.Equal(t, ActionTerminate, a.Kind)
}

func TestWithTick(t *testing.T) {
	primary := scheduler.SameEveryDay("primary", scheduler.MustParseTimeOfDay("08:47"), at(19, 8, 0, 0), time.UTC)
	e := New(scheduler.NewSet(primary), linear30s(), WithTick(100*time.Millisecond), WithTick(0))
	assert.Equal(t, 100*time.Millisecond, e.Tick())
}

func TestSleepFor_NegativeIsZero(t *testing.T) {
	assert.Equal(t, time.Duration(0), For(-time.Second).Duration)
}
