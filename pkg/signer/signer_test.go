// Copyright (c) 2025 EcoWipe Authors
//
// SPDX-License-Identifier: Apache-2.0

package signer

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewGeneratesKeyPairWhenAbsent(t *testing.T) {
	dir := t.TempDir()

	s, err := New(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.PublicKey() == nil {
		t.Fatal("PublicKey() is nil after generation")
	}

	if _, err := os.Stat(filepath.Join(dir, privateKeyFilename)); err != nil {
		t.Errorf("private key not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, publicKeyFilename)); err != nil {
		t.Errorf("public key not written: %v", err)
	}
}

func TestNewReloadsExistingKeyPair(t *testing.T) {
	dir := t.TempDir()

	first, err := New(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("New (first): %v", err)
	}

	second, err := New(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("New (second): %v", err)
	}

	if first.PublicKey().N.Cmp(second.PublicKey().N) != 0 {
		t.Fatal("reloaded key pair differs from the generated one")
	}
}

func TestNewFailsOnCorruptedPrivateKey(t *testing.T) {
	dir := t.TempDir()

	if _, err := New(dir, zerolog.Nop()); err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, privateKeyFilename), []byte("not a key"), 0o600); err != nil {
		t.Fatalf("corrupt private key: %v", err)
	}

	if _, err := New(dir, zerolog.Nop()); !errors.Is(err, ErrKeysCorrupted) {
		t.Fatalf("New() error = %v, want ErrKeysCorrupted", err)
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	s, err := New(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	data := []byte("payload_hash contents")
	sig, err := s.Sign(data)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !s.Verify(data, sig) {
		t.Fatal("Verify(data, sign(data)) = false, want true")
	}
}

func TestVerifyFailsOnMismatchedData(t *testing.T) {
	s, err := New(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sig, err := s.Sign([]byte("one"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if s.Verify([]byte("two"), sig) {
		t.Fatal("Verify matched a signature for different data")
	}
}

func TestVerifyReturnsFalseOnMalformedSignature(t *testing.T) {
	s, err := New(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if s.Verify([]byte("data"), "not-valid-base64!!!") {
		t.Fatal("Verify accepted a malformed signature")
	}
}

func TestProtectedKeyRoundTripsWithPassphrase(t *testing.T) {
	dir := t.TempDir()
	passphrase := []byte("correct horse battery staple")

	first, err := NewProtected(dir, passphrase, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewProtected: %v", err)
	}

	second, err := NewProtected(dir, passphrase, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewProtected (reload): %v", err)
	}

	if first.PublicKey().N.Cmp(second.PublicKey().N) != 0 {
		t.Fatal("reloaded protected key pair differs from the generated one")
	}
}

func TestProtectedKeyRejectsWrongPassphrase(t *testing.T) {
	dir := t.TempDir()

	if _, err := NewProtected(dir, []byte("right password"), zerolog.Nop()); err != nil {
		t.Fatalf("NewProtected: %v", err)
	}

	if _, err := NewProtected(dir, []byte("wrong password"), zerolog.Nop()); !errors.Is(err, ErrKeysCorrupted) {
		t.Fatalf("NewProtected(wrong passphrase) error = %v, want ErrKeysCorrupted", err)
	}
}
