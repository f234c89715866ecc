package main

import (
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/blegatt/internal/devicefactory"
	"github.com/srg/blegatt/pkg/config"
)

// loadConfig reads --config and applies the global flag overrides on top of it.
// --log-level takes precedence over --verbose.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	} else if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.LogLevel = "debug"
	}
	if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
		cfg.Backend = backend
	}
	if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
		cfg.NoColor = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// configureLogger returns the logger for cfg and applies the color setting to both
// the logger and the event printer.
func configureLogger(cfg *config.Config) *logrus.Logger {
	if cfg.NoColor {
		color.NoColor = true
	}
	return cfg.NewLogger()
}

// openBindings loads the configuration and opens the selected native binding.
func openBindings(cmd *cobra.Command) (*config.Config, *devicefactory.Bindings, *logrus.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := configureLogger(cfg)

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	b, err := devicefactory.New(devicefactory.Options{
		Backend:        cfg.Backend,
		ConnectTimeout: cfg.ConnectTimeout,
		OperationQueue: cfg.OperationQueue,
	}, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, b, logger, nil
}
