// Copyright (c) 2025 EcoWipe Authors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVerifyCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <certificate.json>",
		Short: "Verify a certificate's RSA-PSS signature and payload hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			ok, cert, err := app.ops.VerifyCertificate(args[0])
			if err != nil {
				return fmt.Errorf("verify failed: %w", err)
			}

			if !ok {
				_, _ = fmt.Fprintln(out, "INVALID: signature or payload hash does not match.")
				return fmt.Errorf("certificate failed verification")
			}

			_, _ = fmt.Fprintln(out, "VALID: signature and payload hash match.")
			_, _ = fmt.Fprintf(out, "Certificate ID: %s\n", cert.CertificateID)
			_, _ = fmt.Fprintf(out, "Device:         %s (%s)\n", cert.Device.ID, cert.Device.SerialNumber)
			_, _ = fmt.Fprintf(out, "Method:         %s (%d passes, %s)\n", cert.WipeDetails.Method, cert.WipeDetails.Passes, cert.WipeDetails.NISTStandard)
			_, _ = fmt.Fprintf(out, "Issued:         %s\n", cert.TimestampUTC)
			return nil
		},
	}
}
