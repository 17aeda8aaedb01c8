// Copyright (c) 2025 EcoWipe Authors
//
// SPDX-License-Identifier: Apache-2.0

// Package signer implements the RSA-4096 key lifecycle and the
// PSS sign/verify operations the certificate builder depends on.
package signer

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// KeySizeBits is the RSA modulus size for the certificate key pair.
const KeySizeBits = 4096

// Sentinel errors.
var (
	ErrKeysCorrupted = errors.New("cryptographic keys are corrupted or inaccessible")
	ErrNoPrivateKey  = errors.New("private key not loaded")
)

const (
	privateKeyFilename = "ecowipe_private.pem"
	publicKeyFilename  = "ecowipe_public.pem"
)

// Signer owns one long-lived RSA-4096 key pair, loaded lazily on
// construction. It is not a process-wide singleton: callers construct
// one and pass it explicitly to the certificate builder or verifier.
type Signer struct {
	private    *rsa.PrivateKey
	public     *rsa.PublicKey
	log        zerolog.Logger
	passphrase []byte
}

// New loads the key pair from dir, generating a fresh RSA-4096 pair
// when either PEM file is absent. A load failure on an existing file
// is fatal: a corrupted private key must never be silently replaced.
// The private key PEM is stored unencrypted at rest.
func New(dir string, log zerolog.Logger) (*Signer, error) {
	return newSigner(dir, nil, log)
}

// NewProtected is the optional passphrase-protected variant for
// deployments that cannot accept an unencrypted key at rest: the
// private key PEM is wrapped with argon2id+secretbox under passphrase
// before being written, and unwrapped on load.
func NewProtected(dir string, passphrase []byte, log zerolog.Logger) (*Signer, error) {
	if len(passphrase) == 0 {
		return nil, errors.New("passphrase must not be empty")
	}
	return newSigner(dir, passphrase, log)
}

func newSigner(dir string, passphrase []byte, log zerolog.Logger) (*Signer, error) {
	s := &Signer{log: log.With().Str("component", "signer").Logger(), passphrase: passphrase}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create key directory %s: %w", dir, err)
	}

	privPath := filepath.Join(dir, privateKeyFilename)
	pubPath := filepath.Join(dir, publicKeyFilename)

	_, privErr := os.Stat(privPath)
	_, pubErr := os.Stat(pubPath)
	if os.IsNotExist(privErr) || os.IsNotExist(pubErr) {
		if err := s.generate(privPath, pubPath); err != nil {
			return nil, err
		}
		return s, nil
	}

	if err := s.load(privPath, pubPath); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Signer) generate(privPath, pubPath string) error {
	s.log.Info().Int("bits", KeySizeBits).Msg("generating new RSA key pair")

	key, err := rsa.GenerateKey(rand.Reader, KeySizeBits)
	if err != nil {
		return fmt.Errorf("generate RSA key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})

	onDisk := privPEM
	if s.passphrase != nil {
		wrapped, err := WrapPrivateKey(privPEM, s.passphrase)
		if err != nil {
			return fmt.Errorf("wrap private key: %w", err)
		}
		onDisk = wrapped
	}
	if err := os.WriteFile(privPath, onDisk, 0o600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return fmt.Errorf("marshal public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}

	s.private = key
	s.public = &key.PublicKey
	s.log.Info().Msg("RSA key pair generated and saved")
	return nil
}

func (s *Signer) load(privPath, pubPath string) error {
	onDisk, err := os.ReadFile(privPath)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to read private key")
		return fmt.Errorf("%w: %v", ErrKeysCorrupted, err)
	}

	privPEM := onDisk
	if s.passphrase != nil {
		unwrapped, err := UnwrapPrivateKey(onDisk, s.passphrase)
		if err != nil {
			s.log.Error().Err(err).Msg("failed to unwrap private key with supplied passphrase")
			return fmt.Errorf("%w: %v", ErrKeysCorrupted, err)
		}
		privPEM = unwrapped
	}

	block, _ := pem.Decode(privPEM)
	if block == nil {
		s.log.Error().Msg("private key file is not valid PEM")
		return fmt.Errorf("%w: not PEM", ErrKeysCorrupted)
	}
	privAny, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to parse private key")
		return fmt.Errorf("%w: %v", ErrKeysCorrupted, err)
	}
	priv, ok := privAny.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("%w: not an RSA key", ErrKeysCorrupted)
	}

	pubPEM, err := os.ReadFile(pubPath)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to read public key")
		return fmt.Errorf("%w: %v", ErrKeysCorrupted, err)
	}
	pubBlock, _ := pem.Decode(pubPEM)
	if pubBlock == nil {
		return fmt.Errorf("%w: not PEM", ErrKeysCorrupted)
	}
	pubAny, err := x509.ParsePKIXPublicKey(pubBlock.Bytes)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeysCorrupted, err)
	}
	pub, ok := pubAny.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: not an RSA key", ErrKeysCorrupted)
	}

	s.private = priv
	s.public = pub
	return nil
}

// pssOptions fixes the padding scheme: MGF1-SHA256 (the MGF hash
// follows the signing hash), salt as large as the modulus allows when
// signing, auto-detected when verifying.
var pssOptions = &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto, Hash: crypto.SHA256}

// Sign returns base64(RSA-PSS(data)) using MGF1-SHA256 and the maximum
// legal salt length.
func (s *Signer) Sign(data []byte) (string, error) {
	if s.private == nil {
		return "", ErrNoPrivateKey
	}

	digest := sha256.Sum256(data)
	sig, err := rsa.SignPSS(rand.Reader, s.private, crypto.SHA256, digest[:], pssOptions)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify reports whether signatureB64 is a valid RSA-PSS signature of
// data under the loaded public key. It never returns an error to the
// caller: decode/format errors and signature mismatches both yield
// false, with a warning logged.
func (s *Signer) Verify(data []byte, signatureB64 string) bool {
	if s.public == nil {
		s.log.Warn().Msg("verify attempted with no public key loaded")
		return false
	}

	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		s.log.Warn().Err(err).Msg("signature is not valid base64")
		return false
	}

	digest := sha256.Sum256(data)
	err = rsa.VerifyPSS(s.public, crypto.SHA256, digest[:], sig, pssOptions)
	if err != nil {
		s.log.Warn().Err(err).Msg("signature verification failed")
		return false
	}
	return true
}

// PublicKey returns the loaded public key, for callers that need to
// export or display it independent of signing.
func (s *Signer) PublicKey() *rsa.PublicKey { return s.public }
