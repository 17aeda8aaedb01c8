// Copyright (c) 2025 EcoWipe Authors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ecowipe/core/pkg/config"
)

const banner = `
EcoWipe Core
Forensic-grade removable media sanitizer
`

// App bundles the state every subcommand needs, built once in main and
// threaded through the command tree.
type App struct {
	cfg  *config.Config
	log  zerolog.Logger
	ops  Operations
	term Terminal
}

// NewRootCmd builds the ecowipe command tree.
func NewRootCmd() *cobra.Command {
	var configPath string
	var logLevel string

	app := &App{}

	root := &cobra.Command{
		Use:           "ecowipe",
		Short:         "EcoWipe: forensic-grade removable media sanitizer",
		Long:          banner,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}

			level, err := zerolog.ParseLevel(cfg.LogLevel)
			if err != nil {
				level = zerolog.InfoLevel
			}
			log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
				Level(level).With().Timestamp().Logger()

			app.cfg = cfg
			app.log = log
			app.ops = NewDefaultOperations(cfg, log)
			app.term = NewDefaultTerminal(cmd.InOrStdin(), cmd.OutOrStdout())
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to an EcoWipe YAML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(newScanCmd(app))
	root.AddCommand(newWipeCmd(app))
	root.AddCommand(newVerifyCmd(app))
	root.AddCommand(newConfigCmd(app))

	return root
}
