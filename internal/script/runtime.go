// Package script embeds a Lua VM for startup scripts and event hooks.
package script

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/dimmerd/internal/command"
	"github.com/dokzlo13/dimmerd/internal/engine"
)

// ErrRuntimeClosed is returned when the Lua runtime is closed
var ErrRuntimeClosed = fmt.Errorf("lua runtime closed")

// Dispatcher is the part of command.Dispatcher scripts need.
type Dispatcher interface {
	Dispatch(source command.Source, cmd engine.Command) (string, error)
}

// Work is executed on the Lua goroutine.
// All Lua execution MUST go through this to ensure thread safety
type Work func(ctx context.Context)

// Runtime owns the Lua VM. After LoadScript, only Run's goroutine touches it.
type Runtime struct {
	L      *lua.LState
	dimmer *DimmerModule

	workQueue chan Work

	// closing this channel signals senders to stop
	closing   chan struct{}
	closeOnce sync.Once

	// done is closed when Run returns; Close waits on it before freeing the VM
	mu      sync.Mutex
	started bool
	closed  bool
	done    chan struct{}
}

// NewRuntime creates a VM with the log and dimmer modules preloaded.
// loc is the timezone for schedules added from scripts.
func NewRuntime(d Dispatcher, loc *time.Location) *Runtime {
	L := lua.NewState()
	r := &Runtime{
		L:         L,
		dimmer:    NewDimmerModule(d, loc),
		workQueue: make(chan Work, 100),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
	}

	L.PreloadModule("log", NewLogModule().Loader)
	L.PreloadModule("dimmer", r.dimmer.Loader)
	return r
}

// Close stops accepting work and closes the Lua state.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		started := r.started
		r.mu.Unlock()

		close(r.closing)
		if started {
			<-r.done
		}
		// workQueue stays open so late senders never panic
		r.L.Close()
	})
}

// Do queues work without blocking. It returns false if the runtime is
// closing, the queue is full or ctx is done.
func (r *Runtime) Do(ctx context.Context, work Work) bool {
	// checked first: a select with a free queue slot would pick at random
	select {
	case <-r.closing:
		log.Warn().Msg("Lua runtime closing, dropping work")
		return false
	case <-ctx.Done():
		log.Warn().Msg("Context cancelled, dropping Lua work")
		return false
	default:
	}

	select {
	case r.workQueue <- work:
		return true
	default:
		log.Warn().Msg("Lua work queue full, dropping work")
		return false
	}
}

// Run processes queued work until ctx is done or the runtime is closed.
func (r *Runtime) Run(ctx context.Context) {
	defer close(r.done)
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			r.drainQueue(ctx)
			return
		case <-r.closing:
			return
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		}
	}
}

func (r *Runtime) drainQueue(ctx context.Context) {
	for {
		select {
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		default:
			return
		}
	}
}

func (r *Runtime) executeWork(ctx context.Context, work Work) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Msg("Lua work panicked - worker continuing")
		}
	}()
	r.L.SetContext(ctx)
	work(ctx)
}

// LoadScript executes a Lua file. Must be called before Run.
func (r *Runtime) LoadScript(path string) error {
	log.Info().Str("path", path).Msg("Loading Lua script")
	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}
	log.Info().Int("hooks", r.dimmer.HookCount()).Msg("Lua script loaded successfully")
	return nil
}

// LoadString executes Lua source. Must be called before Run.
func (r *Runtime) LoadString(src string) error {
	if err := r.L.DoString(src); err != nil {
		return fmt.Errorf("failed to execute Lua source: %w", err)
	}
	return nil
}

// Emit queues the hooks registered for event with data as their argument.
func (r *Runtime) Emit(ctx context.Context, event string, data map[string]any) bool {
	if !r.dimmer.HasHooks(event) {
		return false
	}
	return r.Do(ctx, func(context.Context) {
		r.dimmer.call(r.L, event, data)
	})
}
