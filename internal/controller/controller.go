// Package controller runs the decision engine on its own goroutine, owns the
// output sink and exposes a non-blocking command mailbox to other goroutines.
package controller

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimmerd/internal/curve"
	"github.com/dokzlo13/dimmerd/internal/engine"
	"github.com/dokzlo13/dimmerd/internal/scheduler"
)

// ErrStopped is returned when sending to a controller whose loop has exited.
var ErrStopped = errors.New("controller stopped")

// Sink receives output values. It is only ever called from the loop goroutine.
type Sink interface {
	Set(s curve.Strength) error
}

// Clock returns the current time.
type Clock func() time.Time

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides the time source passed to the engine.
func WithClock(clock Clock) Option {
	return func(c *Controller) {
		if clock != nil {
			c.loop.clock = clock
		}
	}
}

// WithObserver registers a callback for loop events. Observers run on the
// loop goroutine and must not block.
func WithObserver(fn func(Event)) Option {
	return func(c *Controller) {
		if fn != nil {
			c.loop.observers = append(c.loop.observers, fn)
		}
	}
}

// WithLogger sets the logger used by the loop.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.loop.logger = logger
	}
}

// Controller owns the control loop goroutine.
type Controller struct {
	mailbox *mailbox
	loop    *loop

	done chan struct{}
	err  error
}

// New starts the control loop. The engine and sink must not be used by the
// caller afterwards; the sink is handed back by Finish.
func New(sink Sink, eng *engine.Engine, opts ...Option) *Controller {
	c := &Controller{
		mailbox: newMailbox(),
		loop: &loop{
			sink:   sink,
			engine: eng,
			clock:  time.Now,
			logger: log.Logger,
		},
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.run()
	return c
}

// Sender returns a handle for submitting commands. Handles are values and
// may be copied freely across goroutines.
func (c *Controller) Sender() Sender {
	return Sender{mailbox: c.mailbox}
}

// Send queues a command.
func (c *Controller) Send(cmd engine.Command) error {
	return c.mailbox.push(cmd)
}

// Done is closed once the loop has exited.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that stopped the loop. Only valid after Done is closed.
func (c *Controller) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Schedule returns a rendering of the schedule set taken on the loop
// goroutine after the last change, and the time it was taken.
func (c *Controller) Schedule() (string, time.Time) {
	snap := c.loop.snapshot.Load()
	if snap == nil {
		return "", time.Time{}
	}
	return snap.text, snap.at
}

// Finish sends Shutdown, waits for the loop to exit and returns the sink
// together with the sink error that stopped the loop, if any.
func (c *Controller) Finish() (Sink, error) {
	// ErrStopped here means the loop already exited on its own.
	_ = c.mailbox.push(engine.Shutdown{})
	<-c.done
	return c.loop.sink, c.err
}

func (c *Controller) run() {
	defer close(c.done)

	c.loop.logger.Debug().Msg("Control loop started")
	c.loop.publishSchedule(c.loop.clock())

	wait := engine.Wake()
	for {
		cmd, ok := c.mailbox.pop()
		if !ok {
			c.sleep(wait)
			cmd, _ = c.mailbox.pop()
		}

		action, err := c.loop.step(c.loop.clock(), cmd)
		if err != nil {
			c.err = err
			break
		}
		if action.Kind == engine.ActionTerminate {
			break
		}
		wait = action.Wait
	}

	if dropped := c.mailbox.close(); dropped > 0 {
		c.loop.logger.Warn().Int("dropped", dropped).Msg("Control loop stopped with pending commands")
	}
	c.loop.emit(Event{Type: EventStopped, At: c.loop.clock(), Err: c.err})

	if c.err != nil {
		c.loop.logger.Error().Err(c.err).Msg("Control loop stopped on sink failure")
	} else {
		c.loop.logger.Debug().Msg("Control loop stopped")
	}
}

// sleep blocks for the given disposition or until a command is queued.
func (c *Controller) sleep(s engine.Sleep) {
	switch s.Mode {
	case engine.SleepWake:
		return

	case engine.SleepForever:
		for c.mailbox.empty() {
			<-c.mailbox.wake
		}

	case engine.SleepFor:
		if s.Duration <= 0 {
			return
		}
		timer := time.NewTimer(s.Duration)
		defer timer.Stop()
		for c.mailbox.empty() {
			select {
			case <-c.mailbox.wake:
			case <-timer.C:
				return
			}
		}
	}
}

// loop is the synchronous part of the controller: one engine step and the
// resulting sink write. It never sleeps, so tests can drive it with a
// simulated clock.
type loop struct {
	sink      Sink
	engine    *engine.Engine
	clock     Clock
	observers []func(Event)
	logger    zerolog.Logger

	// read by other goroutines; the schedule set itself is loop-owned
	snapshot atomic.Pointer[scheduleSnapshot]
}

type scheduleSnapshot struct {
	text string
	at   time.Time
}

func (l *loop) step(now time.Time, cmd engine.Command) (engine.Action, error) {
	action := l.engine.Process(now, cmd)

	if cmd != nil {
		l.logger.Debug().Str("command", cmd.Name()).Str("action", action.String()).Msg("Command applied")
		l.emit(Event{Type: EventCommandApplied, At: now, Command: cmd.Name()})
	}
	if len(action.Fired) > 0 {
		l.logger.Info().Strs("entries", action.Fired).Msg("Schedule fired")
		l.emit(Event{Type: EventScheduleFired, At: now, Fired: action.Fired})
	}

	if cmd != nil || len(action.Fired) > 0 {
		l.publishSchedule(now)
	}

	if action.Kind != engine.ActionSet {
		return action, nil
	}

	if err := l.sink.Set(action.Strength); err != nil {
		return action, fmt.Errorf("sink set %s: %w", action.Strength, err)
	}
	if action.Reason != engine.ReasonTransition {
		l.logger.Debug().
			Float64("strength", action.Strength.Float()).
			Str("reason", string(action.Reason)).
			Msg("Output set")
	}
	l.emit(Event{Type: EventOutputSet, At: now, Strength: action.Strength, Reason: action.Reason})
	return action, nil
}

func (l *loop) emit(e Event) {
	for _, fn := range l.observers {
		fn(e)
	}
}

func (l *loop) publishSchedule(now time.Time) {
	l.snapshot.Store(&scheduleSnapshot{
		text: scheduler.FormatSet(l.engine.Schedules(), now),
		at:   now,
	})
}
