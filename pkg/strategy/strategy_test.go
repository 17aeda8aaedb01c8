// Copyright (c) 2025 EcoWipe Authors
//
// SPDX-License-Identifier: Apache-2.0

package strategy

import (
	"bytes"
	"testing"
)

func TestSelect(t *testing.T) {
	tests := []struct {
		input        string
		wantName     string
		wantPasses   int
		wantStandard string
	}{
		{"DoD 5220.22-M", "DoD 5220.22-M (3-Pass)", 3, "DoD 5220.22-M"},
		{"3-Pass Overwrite", "DoD 5220.22-M (3-Pass)", 3, "DoD 5220.22-M"},
		{"1-Pass Random", "1-Pass Random", 1, "Clear"},
		{"1-Pass Zero", "1-Pass Zero", 1, "Clear"},
		{"Unknown Method", "1-Pass Zero", 1, "Clear"},
	}

	for _, tt := range tests {
		got := Select(tt.input)
		if got.Name() != tt.wantName || got.Passes() != tt.wantPasses || got.NISTStandard() != tt.wantStandard {
			t.Errorf("Select(%q) = {%q,%d,%q}, want {%q,%d,%q}",
				tt.input, got.Name(), got.Passes(), got.NISTStandard(),
				tt.wantName, tt.wantPasses, tt.wantStandard)
		}
	}
}

func TestZeroBlockFor(t *testing.T) {
	s := Select("1-Pass Zero")
	block, err := s.BlockFor(0, 1024)
	if err != nil {
		t.Fatalf("BlockFor: %v", err)
	}
	if !bytes.Equal(block, make([]byte, 1024)) {
		t.Error("zero strategy did not return an all-zero block")
	}
}

func TestDoDBlockForSequence(t *testing.T) {
	s := Select("DoD")
	zero, err := s.BlockFor(0, 16)
	if err != nil {
		t.Fatalf("pass 0: %v", err)
	}
	if !bytes.Equal(zero, make([]byte, 16)) {
		t.Error("pass 0 should be all zero bytes")
	}

	ones, err := s.BlockFor(1, 16)
	if err != nil {
		t.Fatalf("pass 1: %v", err)
	}
	want := bytes.Repeat([]byte{0xFF}, 16)
	if !bytes.Equal(ones, want) {
		t.Error("pass 1 should be all 0xFF bytes")
	}

	random1, err := s.BlockFor(2, 4096)
	if err != nil {
		t.Fatalf("pass 2: %v", err)
	}
	random2, err := s.BlockFor(2, 4096)
	if err != nil {
		t.Fatalf("pass 2 again: %v", err)
	}
	if bytes.Equal(random1, random2) {
		t.Error("random pass must draw fresh bytes on each invocation")
	}
}

func TestBlockForOutOfRange(t *testing.T) {
	s := Select("1-Pass Zero")
	if _, err := s.BlockFor(1, 1024); err == nil {
		t.Error("expected error for out-of-range pass index")
	}
}

func TestBlockForTruncatesToDeviceSize(t *testing.T) {
	s := Select("1-Pass Zero")
	block, err := s.BlockFor(0, 10)
	if err != nil {
		t.Fatalf("BlockFor: %v", err)
	}
	if len(block) != 10 {
		t.Errorf("len(block) = %d, want 10", len(block))
	}
}
