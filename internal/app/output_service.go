package app

import (
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimmerd/internal/config"
	"github.com/dokzlo13/dimmerd/internal/mqtt"
	"github.com/dokzlo13/dimmerd/internal/output"
)

// OutputService owns the dimmable output. The control loop borrows it while
// running; closing it is left to this service.
type OutputService struct {
	cfg  *config.Config
	Sink output.Sink
}

// NewOutputService opens the configured output. client may be nil when MQTT
// is disabled.
func NewOutputService(cfg *config.Config, client *mqtt.Client) (*OutputService, error) {
	// a nil *mqtt.Client must not become a non-nil Publisher
	var pub output.Publisher
	var topic string
	if client != nil {
		pub = client
		topic = client.Topics().Output()
	}

	sink, err := output.Open(cfg.Output, pub, topic)
	if err != nil {
		return nil, err
	}
	log.Info().Str("driver", cfg.Output.Driver).Msg("Output opened")

	return &OutputService{cfg: cfg, Sink: sink}, nil
}

// Close releases the output.
func (s *OutputService) Close() {
	if s.Sink == nil {
		return
	}
	if err := s.Sink.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close output")
	}
}
