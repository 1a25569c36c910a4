package output

import (
	"github.com/rs/zerolog"

	"github.com/dokzlo13/dimmerd/internal/curve"
)

// LogSink prints every distinct value. Useful without hardware.
type LogSink struct {
	logger zerolog.Logger
	last   *curve.Strength
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("output", "log").Logger()}
}

func (s *LogSink) Set(v curve.Strength) error {
	if s.last != nil && *s.last == v {
		return nil
	}
	s.last = &v
	s.logger.Info().Float64("strength", v.Float()).Uint8("level", v.Byte()).Msg("Output")
	return nil
}

func (s *LogSink) Close() error { return nil }
