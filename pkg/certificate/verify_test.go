// Copyright (c) 2025 EcoWipe Authors
//
// SPDX-License-Identifier: Apache-2.0

package certificate

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/ecowipe/core/pkg/signer"
)

func TestLoadFromFileAndVerifySignatureRoundTrip(t *testing.T) {
	keyDir := t.TempDir()
	s, err := signer.New(keyDir, zerolog.Nop())
	if err != nil {
		t.Fatalf("signer.New: %v", err)
	}
	b, err := NewBuilder(t.TempDir(), s, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	_, jsonPath, _, err := b.Issue(sampleResult())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	loaded, err := LoadFromFile(jsonPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	ok, err := VerifySignature(loaded, s)
	if err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if !ok {
		t.Fatal("VerifySignature = false, want true for an untampered certificate")
	}
}

func TestVerifySignatureRejectsTamperedPayload(t *testing.T) {
	keyDir := t.TempDir()
	s, err := signer.New(keyDir, zerolog.Nop())
	if err != nil {
		t.Fatalf("signer.New: %v", err)
	}
	b, err := NewBuilder(t.TempDir(), s, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	cert, _, _, err := b.Issue(sampleResult())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	tampered := *cert
	tampered.Operator = "someone-else"

	ok, err := VerifySignature(&tampered, s)
	if err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if ok {
		t.Fatal("VerifySignature = true for a tampered certificate, want false")
	}
}

func TestVerifySignatureRejectsDifferentKeyPair(t *testing.T) {
	b := newTestBuilder(t)
	cert, _, _, err := b.Issue(sampleResult())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	other, err := signer.New(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("signer.New: %v", err)
	}

	ok, err := VerifySignature(cert, other)
	if err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if ok {
		t.Fatal("VerifySignature = true under an unrelated key pair, want false")
	}
}
