// Copyright (c) 2025 EcoWipe Authors
//
// SPDX-License-Identifier: Apache-2.0

// Package certificate assembles the forensic record a successful wipe
// produces: a canonical JSON document, its SHA-256 digest, an RSA-PSS
// signature over that digest, and a QR encoding of the whole signed
// record, independently read back to guarantee it decodes correctly.
package certificate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecowipe/core/pkg/signer"
)

// SchemaVersion is the fixed schema tag embedded in every certificate.
const SchemaVersion = "EcoWIPE-Enterprise-v2"

// AppVersion is recorded in every certificate.
const AppVersion = "2.0.0-core"

// WipeResult is the input the orchestrator hands the builder on
// successful completion.
type WipeResult struct {
	DeviceID     string
	Model        string
	SerialNumber string
	SizeBytes    int64
	Operator     string

	Method       string
	Passes       int
	NISTStandard string

	PreHashSHA256  string
	PostHashSHA256 string
	StartTimeUnix  int64
	EndTimeUnix    int64
	Status         string
}

type deviceRecord struct {
	ID           string `json:"id"`
	Model        string `json:"model"`
	SerialNumber string `json:"serial_number"`
	SizeBytes    int64  `json:"size_bytes"`
}

type wipeDetailsRecord struct {
	Method         string `json:"method"`
	Passes         int    `json:"passes"`
	NISTStandard   string `json:"nist_standard"`
	PreHashSHA256  string `json:"pre_hash_sha256"`
	PostHashSHA256 string `json:"post_hash_sha256"`
	StartTimeUnix  int64  `json:"start_time_unix"`
	EndTimeUnix    int64  `json:"end_time_unix"`
	Status         string `json:"status"`
}

// Certificate is the on-disk JSON record. PayloadHash and RSASignature
// are excluded from the canonical form that gets hashed, which is what
// the omitempty tags achieve while both fields are still unset.
type Certificate struct {
	SchemaVersion string            `json:"schema_version"`
	CertificateID string            `json:"certificate_id"`
	TimestampUTC  string            `json:"timestamp_utc"`
	AppVersion    string            `json:"app_version"`
	Operator      string            `json:"operator"`
	Device        deviceRecord      `json:"device"`
	WipeDetails   wipeDetailsRecord `json:"wipe_details"`
	PayloadHash   string            `json:"payload_hash,omitempty"`
	RSASignature  string            `json:"rsa_signature,omitempty"`
}

// Builder issues signed certificates into a fixed output directory.
type Builder struct {
	dir    string
	signer *signer.Signer
	log    zerolog.Logger
}

// NewBuilder returns a Builder that writes into dir, creating it if
// necessary.
func NewBuilder(dir string, s *signer.Signer, log zerolog.Logger) (*Builder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create certificate directory %s: %w", dir, err)
	}
	return &Builder{dir: dir, signer: s, log: log.With().Str("component", "certificate").Logger()}, nil
}

// Issue assembles, hashes, signs, and writes a certificate for result,
// returning the signed record and the two artifact paths. QR
// generation is never considered successful without an independent
// readback verification pass.
func (b *Builder) Issue(result WipeResult) (*Certificate, string, string, error) {
	cert := Certificate{
		SchemaVersion: SchemaVersion,
		CertificateID: uuid.NewString(),
		TimestampUTC:  time.Now().UTC().Format(time.RFC3339),
		AppVersion:    AppVersion,
		Operator:      result.Operator,
		Device: deviceRecord{
			ID:           result.DeviceID,
			Model:        result.Model,
			SerialNumber: result.SerialNumber,
			SizeBytes:    result.SizeBytes,
		},
		WipeDetails: wipeDetailsRecord{
			Method:         result.Method,
			Passes:         result.Passes,
			NISTStandard:   result.NISTStandard,
			PreHashSHA256:  result.PreHashSHA256,
			PostHashSHA256: result.PostHashSHA256,
			StartTimeUnix:  result.StartTimeUnix,
			EndTimeUnix:    result.EndTimeUnix,
			Status:         result.Status,
		},
	}

	canonical, err := CanonicalJSON(cert)
	if err != nil {
		return nil, "", "", fmt.Errorf("canonicalize certificate: %w", err)
	}
	digest := sha256.Sum256(canonical)
	cert.PayloadHash = hex.EncodeToString(digest[:])

	sig, err := b.signer.Sign([]byte(cert.PayloadHash))
	if err != nil {
		return nil, "", "", fmt.Errorf("sign certificate: %w", err)
	}
	cert.RSASignature = sig

	safeTimestamp := time.Now().Format("20060102_150405")
	shortID := cert.CertificateID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}

	jsonPath := filepath.Join(b.dir, fmt.Sprintf("cert_%s_%s.json", safeTimestamp, shortID))
	pretty, err := json.MarshalIndent(cert, "", "    ")
	if err != nil {
		return nil, "", "", fmt.Errorf("marshal certificate: %w", err)
	}
	if err := os.WriteFile(jsonPath, pretty, 0o644); err != nil {
		return nil, "", "", fmt.Errorf("write certificate json: %w", err)
	}

	signedCompact, err := CanonicalJSON(cert)
	if err != nil {
		return nil, "", "", fmt.Errorf("canonicalize signed certificate: %w", err)
	}
	qrPayload := encodeQRPayload(signedCompact)

	qrPath := filepath.Join(b.dir, fmt.Sprintf("qr_%s_%s.png", safeTimestamp, shortID))
	if err := generateAndVerifyQR(qrPayload, qrPath); err != nil {
		_ = os.Remove(jsonPath)
		return nil, "", "", fmt.Errorf("generate qr code: %w", err)
	}

	b.log.Info().Str("certificate_id", cert.CertificateID).Str("json", jsonPath).Str("qr", qrPath).Msg("issued signed certificate")
	return &cert, jsonPath, qrPath, nil
}

// CanonicalJSON renders v as sort_keys=true, compact-separator JSON by
// round-tripping through a generic map: encoding/json always emits
// object keys in sorted order when marshaling map[string]interface{},
// which gives the canonical form without a hand-rolled key-sorting
// encoder.
func CanonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}
