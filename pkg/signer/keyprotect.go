// Copyright (c) 2025 EcoWipe Authors
//
// SPDX-License-Identifier: Apache-2.0

package signer

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

// The private key PEM is persisted unencrypted at rest by default;
// whether to protect it with a passphrase is a deployment decision.
// This file implements that optional protection: when enabled
// (Config.KeyPassphraseMode, off by default) the private key PEM is
// wrapped with an argon2id-derived key + secretbox before being
// written, and unwrapped on load. The unencrypted path in signer.go is
// untouched; this is purely an alternate at-rest encoding chosen by
// the caller.

const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024 // KiB, ~64MB
	argon2Threads = 4
	argon2KeyLen  = 32
	saltLen       = 16
)

// ErrWrongPassphrase indicates the passphrase could not open the
// wrapped private key (wrong password or corrupted file).
var ErrWrongPassphrase = errors.New("passphrase could not decrypt private key")

// WrapPrivateKey encrypts privPEM under a key derived from passphrase
// via argon2id, returning salt || nonce || ciphertext.
func WrapPrivateKey(privPEM []byte, passphrase []byte) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	key := deriveWrapKey(passphrase, salt)

	out := make([]byte, 0, saltLen+len(nonce)+len(privPEM)+secretbox.Overhead)
	out = append(out, salt...)
	out = append(out, nonce[:]...)
	out = secretbox.Seal(out, privPEM, &nonce, &key)
	return out, nil
}

// UnwrapPrivateKey reverses WrapPrivateKey, returning ErrWrongPassphrase
// on any authentication failure.
func UnwrapPrivateKey(wrapped []byte, passphrase []byte) ([]byte, error) {
	if len(wrapped) < saltLen+24 {
		return nil, ErrWrongPassphrase
	}

	salt := wrapped[:saltLen]
	var nonce [24]byte
	copy(nonce[:], wrapped[saltLen:saltLen+24])
	ciphertext := wrapped[saltLen+24:]

	key := deriveWrapKey(passphrase, salt)

	plain, ok := secretbox.Open(nil, ciphertext, &nonce, &key)
	if !ok {
		return nil, ErrWrongPassphrase
	}
	return plain, nil
}

func deriveWrapKey(passphrase, salt []byte) [32]byte {
	derived := argon2.IDKey(passphrase, salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	var key [32]byte
	copy(key[:], derived)
	return key
}
