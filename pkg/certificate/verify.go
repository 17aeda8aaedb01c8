// Copyright (c) 2025 EcoWipe Authors
//
// SPDX-License-Identifier: Apache-2.0

package certificate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ecowipe/core/pkg/signer"
)

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// LoadFromFile reads and parses a certificate JSON file previously
// written by Builder.Issue.
func LoadFromFile(path string) (*Certificate, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- operator-supplied certificate path, read-only
	if err != nil {
		return nil, fmt.Errorf("read certificate %s: %w", path, err)
	}

	var cert Certificate
	if err := json.Unmarshal(raw, &cert); err != nil {
		return nil, fmt.Errorf("parse certificate %s: %w", path, err)
	}
	return &cert, nil
}

// VerifySignature re-derives the canonical payload hash from cert
// (with payload_hash/rsa_signature cleared, since neither is part of
// the hashed payload) and checks both that the stored hash still
// matches and that the stored signature verifies against it under s's
// public key.
func VerifySignature(cert *Certificate, s *signer.Signer) (bool, error) {
	unsigned := *cert
	unsigned.PayloadHash = ""
	unsigned.RSASignature = ""

	canonical, err := CanonicalJSON(unsigned)
	if err != nil {
		return false, fmt.Errorf("canonicalize certificate: %w", err)
	}

	digest := sha256Hex(canonical)
	if digest != cert.PayloadHash {
		return false, nil
	}

	return s.Verify([]byte(cert.PayloadHash), cert.RSASignature), nil
}
