package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimmerd/internal/api"
	"github.com/dokzlo13/dimmerd/internal/config"
)

// APIService runs the HTTP control surface, including health endpoints.
type APIService struct {
	cfg    *config.Config
	server *api.Server
}

// NewAPIService creates a new APIService.
func NewAPIService(cfg *config.Config) *APIService {
	return &APIService{cfg: cfg}
}

// Start begins the HTTP server if enabled.
func (s *APIService) Start(ctx context.Context, deps api.Deps) {
	if !s.cfg.HTTP.Enabled {
		log.Info().Msg("HTTP control surface is disabled")
		return
	}

	s.server = api.NewServer(s.cfg.HTTP.Host, s.cfg.HTTP.Port, deps)
	go func() {
		if err := s.server.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()
}
