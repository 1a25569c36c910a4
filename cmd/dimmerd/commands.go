package main

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/dimmerd/internal/app"
	"github.com/dokzlo13/dimmerd/internal/command"
	"github.com/dokzlo13/dimmerd/internal/config"
	"github.com/dokzlo13/dimmerd/internal/engine"
	"github.com/dokzlo13/dimmerd/internal/scheduler"
	"github.com/dokzlo13/dimmerd/internal/script"
)

// rootOptions holds flags shared by every command.
type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "dimmerd",
		Short:         "Scheduled PWM dimmer daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts)
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "path to configuration file")

	cmd.AddCommand(newScheduleCommand(opts), newCheckCommand(opts))
	return cmd
}

// loadConfig reads the config file. A missing file at the default path
// means defaults; a missing explicit path or a malformed file is an error.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	switch {
	case err == nil:
		return cfg, nil
	case errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config"):
		log.Warn().Str("config", opts.configPath).Msg("No configuration file, using defaults")
		return config.Default(), nil
	default:
		return nil, fmt.Errorf("load configuration: %w", err)
	}
}

func run(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	if err := setupLogging(cfg.Log); err != nil {
		log.Warn().Err(err).Msg("Falling back to info level")
	}
	log.Info().Str("config", opts.configPath).Msg("Starting dimmerd")

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return application.Run(app.SignalContext())
}

func newScheduleCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Print the configured weekly schedule and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			now := time.Now()
			set, err := app.BuildSchedule(cfg.Schedule, now)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), scheduler.FormatSet(set, now))
			return nil
		},
	}
}

func newCheckCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and script without touching the output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return check(cmd, cfg)
		},
	}
}

func check(cmd *cobra.Command, cfg *config.Config) error {
	out := cmd.OutOrStdout()

	if _, err := app.BuildEngine(cfg, time.Now()); err != nil {
		return err
	}
	if cfg.StartupTransition != nil {
		if _, err := app.BuildTransition(*cfg.StartupTransition); err != nil {
			return fmt.Errorf("startup transition: %w", err)
		}
	}
	switch cfg.Output.Driver {
	case config.DriverLog, config.DriverSysfs, config.DriverHue:
	case config.DriverMQTT:
		if !cfg.MQTT.Enabled {
			return fmt.Errorf("output driver mqtt needs mqtt.enabled")
		}
	default:
		return fmt.Errorf("unknown output driver %q", cfg.Output.Driver)
	}
	fmt.Fprintf(out, "configuration ok (output: %s)\n", cfg.Output.Driver)

	if cfg.Script == "" {
		return nil
	}
	loc, err := cfg.Schedule.Location()
	if err != nil {
		return err
	}
	dry := &dryRunDispatcher{}
	rt := script.NewRuntime(dry, loc)
	defer rt.Close()
	if err := rt.LoadScript(cfg.Script); err != nil {
		return err
	}
	fmt.Fprintf(out, "script ok (%d commands at load)\n", dry.count)
	return nil
}

// dryRunDispatcher accepts commands from a script under check without
// sending them anywhere.
type dryRunDispatcher struct {
	count int
}

func (d *dryRunDispatcher) Dispatch(_ command.Source, cmd engine.Command) (string, error) {
	d.count++
	return fmt.Sprintf("dry-run-%d", d.count), nil
}
