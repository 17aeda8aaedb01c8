// Copyright (c) 2025 EcoWipe Authors
//
// SPDX-License-Identifier: Apache-2.0

//go:build integration

// Package integration exercises the wipe pipeline end to end against a
// real file standing in for a block device (the orchestrator takes the
// size from the validated device record, and the discard hint that
// fails on a regular file is ignored).
package integration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ecowipe/core/pkg/certificate"
	"github.com/ecowipe/core/pkg/device"
	"github.com/ecowipe/core/pkg/orchestrator"
	"github.com/ecowipe/core/pkg/signer"
	"github.com/ecowipe/core/pkg/strategy"
)

const fixtureSize = 2 * 1024 * 1024 // smaller than CanonicalBlockSize, exercises the single-block path

type fixedValidator struct {
	dev device.ValidatedDevice
}

func (f fixedValidator) ValidateForWipe(string) (device.ValidatedDevice, error) {
	return f.dev, nil
}

func makeFixture(t *testing.T, fill byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.img")
	buf := make([]byte, fixtureSize)
	for i := range buf {
		buf[i] = fill
	}
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestZeroPassSanity(t *testing.T) {
	path := makeFixture(t, 0xAB)
	dev := device.ValidatedDevice{DeviceID: path, Model: "fixture", SerialNumber: "FIX1", SizeBytes: fixtureSize, InterfaceType: "USB"}

	orch := orchestrator.New(fixedValidator{dev}, zerolog.Nop())
	// The fixture path is already a real file; skip the \\.\PhysicalDriveN translation.
	orch.SetNativePathResolver(func(id string) (string, error) { return id, nil })
	result, err := orch.Run(context.Background(), path, "Integration Tester", strategy.Select("1-pass Zero"), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantPost := sha256.Sum256(make([]byte, fixtureSize))
	if result.PostHash != hex.EncodeToString(wantPost[:]) {
		t.Errorf("post hash = %s, want hash of an all-zero %d-byte buffer", result.PostHash, fixtureSize)
	}
	if result.PreHash == result.PostHash {
		t.Error("pre-hash and post-hash must differ")
	}

	onDisk, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture after wipe: %v", err)
	}
	for i, b := range onDisk {
		if b != 0x00 {
			t.Fatalf("byte %d = 0x%02x, want 0x00 after a 1-pass Zero wipe", i, b)
			break
		}
	}
}

func TestDoDThreePassLeavesRandomFinalContent(t *testing.T) {
	path := makeFixture(t, 0x11)
	dev := device.ValidatedDevice{DeviceID: path, Model: "fixture", SerialNumber: "FIX2", SizeBytes: fixtureSize, InterfaceType: "USB"}

	orch := orchestrator.New(fixedValidator{dev}, zerolog.Nop())
	orch.SetNativePathResolver(func(id string) (string, error) { return id, nil })
	result, err := orch.Run(context.Background(), path, "Integration Tester", strategy.Select("DoD 5220.22-M"), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Strategy.Passes() != 3 {
		t.Fatalf("passes = %d, want 3", result.Strategy.Passes())
	}

	onDisk, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture after wipe: %v", err)
	}
	allZero, allOnes := true, true
	for _, b := range onDisk {
		if b != 0x00 {
			allZero = false
		}
		if b != 0xFF {
			allOnes = false
		}
	}
	if allZero || allOnes {
		t.Error("final pass content should be the random third pass, not the fixed first/second pass pattern")
	}
}

func TestWipeResultSignsIntoVerifiableCertificate(t *testing.T) {
	path := makeFixture(t, 0x55)
	dev := device.ValidatedDevice{DeviceID: path, Model: "fixture", SerialNumber: "FIX3", SizeBytes: fixtureSize, InterfaceType: "USB"}

	orch := orchestrator.New(fixedValidator{dev}, zerolog.Nop())
	orch.SetNativePathResolver(func(id string) (string, error) { return id, nil })
	result, err := orch.Run(context.Background(), path, "Integration Tester", strategy.Select("1-pass Random"), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	keyDir := t.TempDir()
	sgn, err := signer.New(keyDir, zerolog.Nop())
	if err != nil {
		t.Fatalf("signer.New: %v", err)
	}

	builder, err := certificate.NewBuilder(t.TempDir(), sgn, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	cert, jsonPath, qrPath, err := builder.Issue(result.AsWipeResult())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	loaded, err := certificate.LoadFromFile(jsonPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	ok, err := certificate.VerifySignature(loaded, sgn)
	if err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if !ok {
		t.Fatal("signed certificate failed verification")
	}
	if loaded.CertificateID != cert.CertificateID {
		t.Errorf("loaded certificate_id = %q, want %q", loaded.CertificateID, cert.CertificateID)
	}
	if _, err := os.Stat(qrPath); err != nil {
		t.Errorf("qr file not written: %v", err)
	}
}
