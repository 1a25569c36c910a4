package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimmerd/internal/config"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Error().Err(err).Msg("dimmerd failed")
		os.Exit(1)
	}
}

// setupLogging installs the global logger. Transition ticks are tens of
// milliseconds apart, so console timestamps carry milliseconds. An unknown
// level leaves info in place and is reported.
func setupLogging(cfg config.LogConfig) error {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = zerolog.New(logWriter(cfg, os.Stderr)).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	level, err := zerolog.ParseLevel(cfg.GetLevel())
	if err != nil || level == zerolog.NoLevel {
		return fmt.Errorf("unknown log level %q", cfg.Level)
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

func logWriter(cfg config.LogConfig, out io.Writer) io.Writer {
	if cfg.UseJSON {
		return out
	}
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "15:04:05.000",
		NoColor:    !cfg.Colors,
	}
}
