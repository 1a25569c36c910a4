package engine

import (
	"fmt"
	"time"

	"github.com/dokzlo13/dimmerd/internal/curve"
)

// SleepMode says how long the loop may sleep before calling Process again.
type SleepMode uint8

const (
	// SleepWake means call Process again right away.
	SleepWake SleepMode = iota
	// SleepFor means sleep for Duration unless a command arrives.
	SleepFor
	// SleepForever means sleep until a command arrives.
	SleepForever
)

// Sleep is a wait disposition.
type Sleep struct {
	Mode     SleepMode
	Duration time.Duration
}

func Wake() Sleep    { return Sleep{Mode: SleepWake} }
func Forever() Sleep { return Sleep{Mode: SleepForever} }

// For returns a bounded sleep. Negative durations become zero.
func For(d time.Duration) Sleep {
	if d < 0 {
		d = 0
	}
	return Sleep{Mode: SleepFor, Duration: d}
}

func (s Sleep) String() string {
	switch s.Mode {
	case SleepWake:
		return "wake"
	case SleepForever:
		return "forever"
	default:
		return s.Duration.String()
	}
}

// ActionKind is the type of decision taken by one Process call.
type ActionKind uint8

const (
	ActionWait ActionKind = iota
	ActionSet
	ActionTerminate
)

func (k ActionKind) String() string {
	switch k {
	case ActionSet:
		return "set"
	case ActionTerminate:
		return "terminate"
	default:
		return "wait"
	}
}

// Reason explains why an action was taken.
type Reason string

const (
	ReasonCommand        Reason = "command"
	ReasonTransition     Reason = "transition"
	ReasonTransitionDone Reason = "transition_done"
	ReasonScheduleFired  Reason = "schedule_fired"
	ReasonScheduleWait   Reason = "schedule_wait"
	ReasonIdle           Reason = "idle"
)

// Action is the single output of one decision step.
// A Set action also carries the wait disposition that follows the write.
type Action struct {
	Kind     ActionKind
	Strength curve.Strength
	Wait     Sleep
	Reason   Reason

	// Fired lists the IDs of schedule entries that fired in this step.
	Fired []string
}

func (a Action) String() string {
	switch a.Kind {
	case ActionSet:
		return fmt.Sprintf("set %s then %s (%s)", a.Strength, a.Wait, a.Reason)
	case ActionTerminate:
		return "terminate"
	default:
		return fmt.Sprintf("wait %s (%s)", a.Wait, a.Reason)
	}
}
