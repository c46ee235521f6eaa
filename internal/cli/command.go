// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package cli builds the cobra root command shared by the lemi tools.
package cli

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/relabs-tech/lemi_streamer/internal/config"
	"github.com/relabs-tech/lemi_streamer/internal/logging"
)

// DefaultConfigPath is used when --config is not given.
const DefaultConfigPath = "lemi_config.txt"

// RunFunc is the body of a tool.
type RunFunc func(cfg *config.Config, log zerolog.Logger) error

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// NewCommand returns a root command that loads the config file, sets up
// logging and calls run.
func NewCommand(use, short, long string, run RunFunc) *cobra.Command {
	var (
		cfgPath string
		debugOn bool
	)
	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		Long:          long,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.InitGlobal(cfgPath); err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg := config.Get()

			// --debug overrides DEBUG from the file only when given
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })
			if changed["debug"] {
				cfg.Debug = debugOn
			}

			log := logging.New(cfg.Debug).With().Str("tool", use).Logger()
			log.Info().
				Str("config", cfgPath).
				Str("broker", cfg.MQTTBroker).
				Str("station", cfg.StationID).
				Str("sensor", cfg.SensorID).
				Msg("configuration loaded")
			return run(cfg, log)
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", DefaultConfigPath, "path to KEY=VALUE config file")
	cmd.Flags().BoolVar(&debugOn, "debug", false, "enable debug logging")
	return cmd
}

// Execute runs cmd and exits non-zero on failure.
func Execute(cmd *cobra.Command) {
	if err := execute(cmd, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// execute runs cmd and logs a failure to out.
func execute(cmd *cobra.Command, out io.Writer) error {
	err := cmd.Execute()
	if err != nil {
		log := logging.NewWithWriter(out, false)
		log.Error().Err(err).Msg(cmd.Use)
	}
	return err
}
