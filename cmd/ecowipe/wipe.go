// Copyright (c) 2025 EcoWipe Authors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ecowipe/core/pkg/device"
	"github.com/ecowipe/core/pkg/orchestrator"
)

// passphraseSetter is satisfied by *DefaultOperations; a fake used in
// tests need not implement it, since only the real signer needs a
// passphrase before it can load or generate key material.
type passphraseSetter interface {
	SetPassphrase([]byte)
}

func newWipeCmd(app *App) *cobra.Command {
	var deviceID, operator, method string
	var skipConfirm bool

	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Sanitize a removable device and issue a signed certificate",
		RunE: func(cmd *cobra.Command, args []string) error {
			if deviceID == "" {
				return fmt.Errorf("--device is required")
			}
			if operator == "" {
				return fmt.Errorf("--operator is required")
			}

			out := cmd.OutOrStdout()

			devices, err := app.ops.ListDevices()
			if err != nil {
				return fmt.Errorf("pre-wipe scan failed: %w", err)
			}
			var target *device.ValidatedDevice
			for i, d := range devices {
				if d.DeviceID == deviceID {
					target = &devices[i]
					break
				}
			}
			if target == nil {
				return fmt.Errorf("device %s is not currently a valid wipe target", deviceID)
			}

			if !skipConfirm {
				_, _ = fmt.Fprintf(out, "*** WARNING: DESTRUCTIVE OPERATION ***\n\n")
				_, _ = fmt.Fprintf(out, "This will PERMANENTLY DESTROY all data on %s (%s).\n", deviceID, target.Model)
				_, _ = fmt.Fprintln(out, "This action CANNOT be undone.")
				reply, err := app.term.ReadLine(fmt.Sprintf("\nType the device serial number (%s) to confirm: ", target.SerialNumber))
				if err != nil {
					return fmt.Errorf("read confirmation: %w", err)
				}
				if reply != target.SerialNumber {
					_, _ = fmt.Fprintln(out, "Confirmation did not match. Wipe cancelled.")
					return nil
				}
			}

			if app.cfg.KeyPassphraseMode {
				if setter, ok := app.ops.(passphraseSetter); ok {
					pass, err := app.term.ReadSecret("Enter private key passphrase: ")
					if err != nil {
						return fmt.Errorf("read passphrase: %w", err)
					}
					setter.SetPassphrase([]byte(pass))
				}
			}

			progress := make(chan orchestrator.Progress, 64)
			done := make(chan struct{})
			go func() {
				defer close(done)
				for p := range progress {
					_, _ = fmt.Fprintf(out, "[%3d%%] %s\n", p.Percent, p.Message)
				}
			}()

			result, cert, jsonPath, qrPath, err := app.ops.Wipe(cmd.Context(), deviceID, operator, method, progress)
			close(progress)
			<-done
			if err != nil {
				return fmt.Errorf("wipe failed: %w", err)
			}

			_, _ = fmt.Fprintf(out, "\nWipe complete: %s -> %s (%d passes)\n", result.PreHash, result.PostHash, result.Strategy.Passes())
			_, _ = fmt.Fprintf(out, "Certificate: %s\n", jsonPath)
			_, _ = fmt.Fprintf(out, "QR code:     %s\n", qrPath)
			_, _ = fmt.Fprintf(out, "Certificate ID: %s\n", cert.CertificateID)
			return nil
		},
	}

	cmd.Flags().StringVar(&deviceID, "device", "", "device path (e.g. \\\\.\\PhysicalDrive1)")
	cmd.Flags().StringVar(&operator, "operator", "", "operator name recorded in the certificate")
	cmd.Flags().StringVar(&method, "method", "1-pass Zero", "sanitization method: \"1-pass Zero\", \"1-pass Random\", or \"DoD 5220.22-M\"")
	cmd.Flags().BoolVar(&skipConfirm, "yes", false, "skip the retype-serial confirmation prompt")

	return cmd
}
