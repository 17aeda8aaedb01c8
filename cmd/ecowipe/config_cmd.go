// Copyright (c) 2025 EcoWipe Authors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "config",
		Short: "Inspect EcoWipe's loaded configuration",
	}

	root.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg := app.cfg
			_, _ = fmt.Fprintf(out, "keyDir:            %s\n", cfg.KeyDir)
			_, _ = fmt.Fprintf(out, "certDir:           %s\n", cfg.CertDir)
			_, _ = fmt.Fprintf(out, "logLevel:          %s\n", cfg.LogLevel)
			_, _ = fmt.Fprintf(out, "scanInterval:      %s\n", cfg.ScanInterval)
			_, _ = fmt.Fprintf(out, "keyPassphraseMode: %v\n", cfg.KeyPassphraseMode)
			return nil
		},
	})

	return root
}
