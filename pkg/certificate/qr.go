// Copyright (c) 2025 EcoWipe Authors
//
// SPDX-License-Identifier: Apache-2.0

package certificate

import (
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"os"

	"github.com/makiuchi-d/gozxing"
	gozxingqr "github.com/makiuchi-d/gozxing/qrcode"
	qrcode "github.com/skip2/go-qrcode"
)

// QR module geometry: generous box size and quiet zone so the
// certificate still scans after printing at low DPI.
const (
	qrBoxSizePixels = 12
	qrBorderModules = 4
)

// encodeQRPayload is the exact bytes the QR code carries: the signed
// certificate's canonical JSON, base64-encoded so the payload survives
// being printed and re-scanned without charset ambiguity.
func encodeQRPayload(canonicalJSON []byte) string {
	return base64.StdEncoding.EncodeToString(canonicalJSON)
}

// generateAndVerifyQR renders data as a QR PNG at outputPath and
// immediately decodes that file back with an independent reader. A QR
// code that fails this readback check is not a usable certificate
// artifact: the file is removed and an error returned rather than
// leaving an unverifiable image on disk.
func generateAndVerifyQR(data string, outputPath string) error {
	if data == "" {
		return errors.New("cannot generate a QR code for empty data")
	}

	qr, err := qrcode.New(data, qrcode.High)
	if err != nil {
		return fmt.Errorf("build qr code: %w", err)
	}
	qr.DisableBorder = false

	moduleCount := len(qr.Bitmap())
	pixelSize := (moduleCount + 2*qrBorderModules) * qrBoxSizePixels

	if err := qr.WriteFile(pixelSize, outputPath); err != nil {
		return fmt.Errorf("write qr png: %w", err)
	}

	decoded, err := decodeQRFile(outputPath)
	if err != nil || decoded != data {
		_ = os.Remove(outputPath)
		if err != nil {
			return fmt.Errorf("qr readback verification failed: %w", err)
		}
		return errors.New("qr readback verification failed: decoded payload does not match source")
	}
	return nil
}

// decodeQRFile independently reads back a previously written QR PNG,
// using a decoder unrelated to the encoder above so a systematic
// encoding bug cannot pass its own verification.
func decodeQRFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open qr png: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("decode qr png: %w", err)
	}

	bitmap, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("build bitmap: %w", err)
	}

	reader := gozxingqr.NewQRCodeReader()
	result, err := reader.Decode(bitmap, nil)
	if err != nil {
		return "", fmt.Errorf("decode qr symbol: %w", err)
	}
	return result.GetText(), nil
}
