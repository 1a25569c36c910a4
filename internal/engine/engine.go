// Package engine decides, one call at a time, what the output should be and
// how long the control loop may sleep. It has no timers of its own: all
// time awareness goes through the now argument and the returned Action.
package engine

import (
	"time"

	"github.com/dokzlo13/dimmerd/internal/curve"
	"github.com/dokzlo13/dimmerd/internal/scheduler"
)

// DefaultTick is the resampling interval while a transition is running.
const DefaultTick = 30 * time.Millisecond

// active is the transition currently being played.
type active struct {
	transition curve.Transition
	start      time.Time
}

// Engine is the decision state machine. It is not safe for concurrent use;
// the controller goroutine owns it.
type Engine struct {
	schedules         *scheduler.Set
	defaultTransition curve.Transition
	active            *active
	tick              time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithTick sets the resampling interval used during transitions.
func WithTick(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.tick = d
		}
	}
}

// New creates an engine around a schedule set. defaultTransition is started
// every time a schedule entry fires.
func New(schedules *scheduler.Set, defaultTransition curve.Transition, opts ...Option) *Engine {
	e := &Engine{
		schedules:         schedules,
		defaultTransition: defaultTransition,
		tick:              DefaultTick,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Schedules returns the schedule set.
func (e *Engine) Schedules() *scheduler.Set { return e.schedules }

// DefaultTransition returns the transition used by schedule firings.
func (e *Engine) DefaultTransition() curve.Transition { return e.defaultTransition }

// Tick returns the resampling interval.
func (e *Engine) Tick() time.Duration { return e.tick }

// Active returns the running transition and its start instant.
func (e *Engine) Active() (curve.Transition, time.Time, bool) {
	if e.active == nil {
		return curve.Transition{}, time.Time{}, false
	}
	return e.active.transition, e.active.start, true
}

// Process runs one decision step. A non-nil command is always handled first
// and nothing else is evaluated in that step.
func (e *Engine) Process(now time.Time, cmd Command) Action {
	if cmd != nil {
		return e.handle(now, cmd)
	}

	if e.active != nil {
		t := e.active.transition
		elapsed := now.Sub(e.active.start)
		if elapsed >= t.Duration {
			// A schedule due at the same instant is picked up by the next
			// step, which the Wake disposition makes immediate.
			e.active = nil
			return Action{Kind: ActionSet, Strength: t.To, Wait: Wake(), Reason: ReasonTransitionDone}
		}
		return Action{
			Kind:     ActionSet,
			Strength: t.Value(t.Fraction(elapsed)),
			Wait:     e.tickWait(now),
			Reason:   ReasonTransition,
		}
	}

	if fired := e.schedules.FireDue(now); len(fired) > 0 {
		ids := make([]string, len(fired))
		for i, entry := range fired {
			ids[i] = entry.ID()
		}
		action := e.start(now, e.defaultTransition, ReasonScheduleFired)
		action.Fired = ids
		return action
	}

	return e.wait(now)
}

func (e *Engine) handle(now time.Time, cmd Command) Action {
	switch c := cmd.(type) {
	case SetImmediate:
		e.active = nil
		return Action{Kind: ActionSet, Strength: c.Strength, Wait: Wake(), Reason: ReasonCommand}

	case SetTransition:
		return e.start(now, c.Transition, ReasonCommand)

	case ChangeDayTimer:
		e.schedules.Primary().SetDay(c.Day, c.Time, now)
		return e.wait(now)

	case ChangeDayTimerTransition:
		e.defaultTransition = c.Transition
		return e.wait(now)

	case AddSchedule:
		if c.Entry != nil {
			e.schedules.Add(c.Entry)
		}
		return e.wait(now)

	case ClearAuxiliarySchedules:
		e.schedules.ClearAuxiliary()
		return e.wait(now)

	case Shutdown:
		return Action{Kind: ActionTerminate, Reason: ReasonCommand}

	default:
		return e.wait(now)
	}
}

// start activates a transition and emits its first sample.
func (e *Engine) start(now time.Time, t curve.Transition, reason Reason) Action {
	e.active = &active{transition: t, start: now}
	return Action{
		Kind:     ActionSet,
		Strength: t.Value(t.Fraction(0)),
		Wait:     e.tickWait(now),
		Reason:   reason,
	}
}

// tickWait is the next resample delay, cut short to land on the end of the
// running transition.
func (e *Engine) tickWait(now time.Time) Sleep {
	if e.active == nil {
		return Wake()
	}
	remaining := e.active.start.Add(e.active.transition.Duration).Sub(now)
	if remaining < e.tick {
		return For(remaining)
	}
	return For(e.tick)
}

// wait returns the disposition when no output is written. A running
// transition keeps its tick so that schedule edits never stall it.
func (e *Engine) wait(now time.Time) Action {
	if e.active != nil {
		return Action{Kind: ActionWait, Wait: e.tickWait(now), Reason: ReasonTransition}
	}
	if d, ok := e.schedules.NextFire(now); ok {
		return Action{Kind: ActionWait, Wait: For(d), Reason: ReasonScheduleWait}
	}
	return Action{Kind: ActionWait, Wait: Forever(), Reason: ReasonIdle}
}
