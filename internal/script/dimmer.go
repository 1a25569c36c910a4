package script

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/dimmerd/internal/command"
	"github.com/dokzlo13/dimmerd/internal/engine"
)

// Hook events scripts can subscribe to with dimmer.on.
const (
	HookScheduleFired = "schedule_fired"
	HookCommand       = "command"
	HookStopped       = "stopped"
)

// DimmerModule exposes the control loop commands to Lua.
//
// ERROR HANDLING CONVENTION:
//   - malformed arguments raise a Lua error
//   - a stopped loop returns (nil, error_string)
type DimmerModule struct {
	dispatcher Dispatcher
	loc        *time.Location
	now        func() time.Time

	// hooks is read by event bus workers and written by dimmer.on
	mu    sync.RWMutex
	hooks map[string][]*lua.LFunction
}

// NewDimmerModule creates the dimmer module
func NewDimmerModule(d Dispatcher, loc *time.Location) *DimmerModule {
	if loc == nil {
		loc = time.Local
	}
	return &DimmerModule{
		dispatcher: d,
		loc:        loc,
		now:        time.Now,
		hooks:      make(map[string][]*lua.LFunction),
	}
}

// Loader is the module loader for Lua
func (m *DimmerModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "set", L.NewFunction(m.set))
	L.SetField(mod, "transition", L.NewFunction(m.transition))
	L.SetField(mod, "default_transition", L.NewFunction(m.defaultTransition))
	L.SetField(mod, "day", L.NewFunction(m.day))
	L.SetField(mod, "daily", L.NewFunction(m.daily))
	L.SetField(mod, "every", L.NewFunction(m.every))
	L.SetField(mod, "clear", L.NewFunction(m.clear))
	L.SetField(mod, "on", L.NewFunction(m.on))

	L.Push(mod)
	return 1
}

// HasHooks reports whether any hook is registered for event.
func (m *DimmerModule) HasHooks(event string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hooks[event]) > 0
}

// HookCount is the number of registered hooks.
func (m *DimmerModule) HookCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, fns := range m.hooks {
		n += len(fns)
	}
	return n
}

// set(strength) -> id | nil, err
func (m *DimmerModule) set(L *lua.LState) int {
	v := float64(L.CheckNumber(1))
	s, err := command.ParseStrength(strconv.FormatFloat(v, 'g', -1, 64))
	if err != nil {
		L.ArgError(1, err.Error())
		return 0
	}
	return m.dispatch(L, engine.SetImmediate{Strength: s})
}

// transition{from, to, time, interpolation, extras} -> id | nil, err
// Plays the transition once, now.
func (m *DimmerModule) transition(L *lua.LState) int {
	return m.sendTransition(L, command.ActionPreview)
}

// default_transition{...} -> id | nil, err
// Replaces the transition played when a schedule fires.
func (m *DimmerModule) defaultTransition(L *lua.LState) int {
	return m.sendTransition(L, command.ActionSet)
}

func (m *DimmerModule) sendTransition(L *lua.LState, action string) int {
	tbl := L.CheckTable(1)
	req, err := transitionRequest(tbl)
	if err != nil {
		L.ArgError(1, err.Error())
		return 0
	}
	cmd, err := command.TransitionCommand(action, req)
	if err != nil {
		L.ArgError(1, err.Error())
		return 0
	}
	return m.dispatch(L, cmd)
}

// day(name, "HH:MM" | nil) -> id | nil, err
func (m *DimmerModule) day(L *lua.LState) int {
	req := command.DayRequest{Day: L.CheckString(1)}
	if v := L.Get(2); v != lua.LNil {
		s := L.CheckString(2)
		req.Time = &s
	}
	cmd, err := req.Command()
	if err != nil {
		L.ArgError(1, err.Error())
		return 0
	}
	return m.dispatch(L, cmd)
}

// daily("HH:MM"[, id]) -> id | nil, err
func (m *DimmerModule) daily(L *lua.LState) int {
	req := command.ScheduleRequest{Time: L.CheckString(1), ID: L.OptString(2, "")}
	return m.schedule(L, req)
}

// every("15m"[, id]) -> id | nil, err
func (m *DimmerModule) every(L *lua.LState) int {
	req := command.ScheduleRequest{Every: L.CheckString(1), ID: L.OptString(2, "")}
	return m.schedule(L, req)
}

func (m *DimmerModule) schedule(L *lua.LState, req command.ScheduleRequest) int {
	cmd, err := req.Command(m.now(), m.loc)
	if err != nil {
		L.ArgError(1, err.Error())
		return 0
	}
	return m.dispatch(L, cmd)
}

// clear() -> id | nil, err
func (m *DimmerModule) clear(L *lua.LState) int {
	return m.dispatch(L, engine.ClearAuxiliarySchedules{})
}

// on(event, fn) registers a hook called with an event table.
func (m *DimmerModule) on(L *lua.LState) int {
	event := L.CheckString(1)
	fn := L.CheckFunction(2)
	switch event {
	case HookScheduleFired, HookCommand, HookStopped:
	default:
		L.ArgError(1, fmt.Sprintf("unknown event %q", event))
		return 0
	}
	m.mu.Lock()
	m.hooks[event] = append(m.hooks[event], fn)
	m.mu.Unlock()
	return 0
}

func (m *DimmerModule) dispatch(L *lua.LState, cmd engine.Command) int {
	id, err := m.dispatcher.Dispatch(command.SourceScript, cmd)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LString(id))
	return 1
}

// call runs every hook for event. Must run on the Lua goroutine.
func (m *DimmerModule) call(L *lua.LState, event string, data map[string]any) {
	// copied so hooks can register more hooks without deadlocking
	m.mu.RLock()
	fns := append([]*lua.LFunction(nil), m.hooks[event]...)
	m.mu.RUnlock()

	for _, fn := range fns {
		arg := mapToTable(L, data)
		if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, arg); err != nil {
			log.Error().Err(err).Str("event", event).Msg("Lua hook failed")
		}
	}
}

// transitionRequest reads a transition table. time is seconds or a
// duration string; extras may be numbers or strings.
func transitionRequest(tbl *lua.LTable) (command.TransitionRequest, error) {
	req := command.TransitionRequest{
		Interpolation: command.CurveLinear,
	}

	from, ok := tbl.RawGetString("from").(lua.LNumber)
	if !ok {
		return req, fmt.Errorf("from must be a number")
	}
	to, ok := tbl.RawGetString("to").(lua.LNumber)
	if !ok {
		return req, fmt.Errorf("to must be a number")
	}
	req.From, req.To = float64(from), float64(to)

	switch t := tbl.RawGetString("time").(type) {
	case lua.LNumber:
		req.Time = float64(t)
	case lua.LString:
		d, err := time.ParseDuration(string(t))
		if err != nil {
			return req, fmt.Errorf("time %q: %w", string(t), err)
		}
		req.Time = d.Seconds()
	default:
		return req, fmt.Errorf("time must be seconds or a duration string")
	}

	if name, ok := tbl.RawGetString("interpolation").(lua.LString); ok {
		req.Interpolation = string(name)
	}

	switch extras := tbl.RawGetString("extras").(type) {
	case *lua.LNilType:
	case *lua.LTable:
		for i := 1; i <= extras.Len(); i++ {
			switch v := extras.RawGetInt(i).(type) {
			case lua.LNumber:
				req.Extras = append(req.Extras, strconv.FormatFloat(float64(v), 'f', -1, 64))
			case lua.LString:
				req.Extras = append(req.Extras, string(v))
			default:
				return req, fmt.Errorf("extras[%d] must be a number or string", i)
			}
		}
	case lua.LNumber:
		req.Extras = []string{strconv.FormatFloat(float64(extras), 'f', -1, 64)}
	default:
		return req, fmt.Errorf("extras must be a list")
	}

	return req, nil
}
