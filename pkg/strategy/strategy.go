// Copyright (c) 2025 EcoWipe Authors
//
// SPDX-License-Identifier: Apache-2.0

// Package strategy implements the closed set of sanitization
// strategies: a tagged variant over {Zero, Random, DoD}, each able to
// produce the deterministic or random fill block for a given pass.
package strategy

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// CanonicalBlockSize is the fixed block size used for hashing and
// overwrite I/O throughout the pipeline.
const CanonicalBlockSize = 4 * 1024 * 1024 // 4 MiB

// Kind identifies one of the closed set of sanitization strategies.
type Kind int

const (
	KindZero Kind = iota
	KindRandom
	KindDoD
)

// Strategy is an immutable value object describing one sanitization
// method: its descriptive labels and how many passes it requires.
type Strategy struct {
	kind         Kind
	name         string
	nistStandard string
	passes       int
}

// Name returns the strategy's descriptive label, recorded verbatim in
// the certificate.
func (s Strategy) Name() string { return s.name }

// NISTStandard returns the NIST 800-88 / DoD label recorded in the
// certificate.
func (s Strategy) NISTStandard() string { return s.nistStandard }

// Passes returns the number of overwrite passes this strategy requires.
func (s Strategy) Passes() int { return s.passes }

var (
	zero = Strategy{
		kind:         KindZero,
		name:         "1-Pass Zero",
		nistStandard: "Clear",
		passes:       1,
	}
	random = Strategy{
		kind:         KindRandom,
		name:         "1-Pass Random",
		nistStandard: "Clear",
		passes:       1,
	}
	dod = Strategy{
		kind:         KindDoD,
		name:         "DoD 5220.22-M (3-Pass)",
		nistStandard: "DoD 5220.22-M",
		passes:       3,
	}
)

// Select resolves a strategy by fuzzy name match: the presence of
// "DoD" or "3-Pass" selects the three-pass pattern, "Random" selects
// one-pass random, otherwise one-pass zero.
func Select(methodName string) Strategy {
	switch {
	case strings.Contains(methodName, "DoD") || strings.Contains(methodName, "3-Pass"):
		return dod
	case strings.Contains(methodName, "Random"):
		return random
	default:
		return zero
	}
}

// BlockFor returns the fill bytes for the given zero-indexed pass
// against a device of the given size. For a positive size the returned
// slice is never longer than size bytes; a size of zero or less yields
// a full CanonicalBlockSize block. Fixed patterns return a pure buffer every
// call; the random-source pass draws fresh cryptographically-strong
// bytes on each invocation.
func (s Strategy) BlockFor(passIndex int, size int64) ([]byte, error) {
	if passIndex < 0 || passIndex >= s.passes {
		return nil, fmt.Errorf("strategy %s: pass index %d out of range [0,%d)", s.name, passIndex, s.passes)
	}

	blockSize := CanonicalBlockSize
	if size > 0 && int64(blockSize) > size {
		blockSize = int(size)
	}

	switch s.kind {
	case KindZero:
		return make([]byte, blockSize), nil
	case KindRandom:
		return randomBlock(blockSize)
	case KindDoD:
		switch passIndex {
		case 0:
			return make([]byte, blockSize), nil
		case 1:
			buf := make([]byte, blockSize)
			for i := range buf {
				buf[i] = 0xFF
			}
			return buf, nil
		default:
			return randomBlock(blockSize)
		}
	default:
		return nil, fmt.Errorf("unknown strategy kind %d", s.kind)
	}
}

func randomBlock(size int) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate random fill: %w", err)
	}
	return buf, nil
}
