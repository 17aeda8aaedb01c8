// Copyright (c) 2025 EcoWipe Authors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ecowipe/core/pkg/device"
)

func newScanCmd(app *App) *cobra.Command {
	var watch bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List removable devices eligible for sanitization",
		RunE: func(cmd *cobra.Command, args []string) error {
			if watch {
				return runScanWatch(cmd, app, interval)
			}

			devices, err := app.ops.ListDevices()
			if err != nil {
				return fmt.Errorf("scan failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(devices) == 0 {
				_, _ = fmt.Fprintln(out, "No eligible removable devices found.")
				return nil
			}

			_, _ = fmt.Fprintln(out, "ID                          MODEL                SERIAL          SIZE (GB)")
			for _, d := range devices {
				_, _ = fmt.Fprintf(out, "%-28s%-21s%-16s%.2f\n", d.DeviceID, d.Model, d.SerialNumber, d.SizeGB())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "keep re-scanning and print arrival/removal events until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval for --watch (defaults to the configured scan interval)")

	return cmd
}

// runScanWatch drives the background device scanner, printing a line
// per arrival/removal event until the command's
// context is cancelled (Ctrl-C). It is stopped whenever the process
// exits this RunE, so it never runs concurrently with a wipe started
// from the same invocation.
func runScanWatch(cmd *cobra.Command, app *App, interval time.Duration) error {
	if interval <= 0 {
		interval = app.cfg.ScanInterval
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Watching for removable devices every %s (Ctrl-C to stop)...\n", interval)

	return app.ops.Watch(cmd.Context(), interval,
		func(d device.ValidatedDevice) {
			_, _ = fmt.Fprintf(out, "+ %-28s %-21s %-16s %.2f GB\n", d.DeviceID, d.Model, d.SerialNumber, d.SizeGB())
		},
		func(deviceID string) {
			_, _ = fmt.Fprintf(out, "- %s\n", deviceID)
		},
	)
}
