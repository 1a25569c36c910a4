package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimmerd/internal/config"
	"github.com/dokzlo13/dimmerd/internal/script"
)

// ScriptService wraps the Lua runtime. Without a configured script it does
// nothing.
type ScriptService struct {
	cfg     *config.Config
	Runtime *script.Runtime
}

// NewScriptService creates the service. The runtime is created in Start,
// once the dispatcher exists.
func NewScriptService(cfg *config.Config) *ScriptService {
	return &ScriptService{cfg: cfg}
}

// Start loads the script and starts the Lua worker goroutine.
func (s *ScriptService) Start(ctx context.Context, d script.Dispatcher) error {
	if s.cfg.Script == "" {
		return nil
	}

	loc, err := s.cfg.Schedule.Location()
	if err != nil {
		return err
	}
	s.Runtime = script.NewRuntime(d, loc)
	if err := s.Runtime.LoadScript(s.cfg.Script); err != nil {
		return err
	}

	// this is the ONLY goroutine that touches Lua from here on
	go s.Runtime.Run(ctx)
	return nil
}

// Emit forwards an event to script hooks.
func (s *ScriptService) Emit(ctx context.Context, event string, data map[string]any) {
	if s == nil || s.Runtime == nil {
		return
	}
	if s.Runtime.Emit(ctx, event, data) {
		log.Debug().Str("event", event).Msg("Queued Lua hook")
	}
}

// Close closes the Lua runtime.
func (s *ScriptService) Close() {
	if s.Runtime != nil {
		s.Runtime.Close()
	}
}
