// Copyright (c) 2025 EcoWipe Authors
//
// SPDX-License-Identifier: Apache-2.0

package deviceio

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func tempDevice(t *testing.T, size int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "device.img")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	if err := f.Truncate(size); err != nil {
		t.Fatalf("truncate %s: %v", path, err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close %s: %v", path, err)
	}
	return path
}

func TestAcquireReadOnlyRejectsWrite(t *testing.T) {
	path := tempDevice(t, 4096)
	h, err := Acquire(path, false)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer h.Close()

	if _, err := h.WriteBlock([]byte("x")); err == nil {
		t.Fatal("WriteBlock on read-only handle: expected error, got nil")
	}
}

func TestSeekReadWriteRoundTrip(t *testing.T) {
	path := tempDevice(t, 64*1024)
	h, err := Acquire(path, true)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer h.Close()

	want := bytes.Repeat([]byte{0xAB}, 4096)
	if err := h.Seek(8192); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if _, err := h.WriteBlock(want); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	if err := h.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if err := h.Seek(8192); err != nil {
		t.Fatalf("Seek for readback: %v", err)
	}
	got := make([]byte, 4096)
	if _, err := h.ReadBlock(got); err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("readback mismatch after WriteBlock")
	}
}

func TestErrShortReadWriteMatchesWithErrorsIs(t *testing.T) {
	// A short write can't be forced through the ordinary os.File path
	// on a regular file, so this only checks that the sentinel
	// WriteBlock wraps is matchable with errors.Is.
	if !errors.Is(ErrShortReadWrite, ErrShortReadWrite) {
		t.Fatal("ErrShortReadWrite must be comparable via errors.Is")
	}
}

func TestLockUnlockAndSizeOnRegularFile(t *testing.T) {
	const wantSize = 10 * 1024 * 1024
	path := tempDevice(t, wantSize)
	h, err := Acquire(path, true)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer h.Close()

	if err := h.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer h.Unlock()

	size, err := h.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != wantSize {
		t.Fatalf("Size() = %d, want %d", size, wantSize)
	}

	if err := h.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
}

func TestPathReturnsAcquiredPath(t *testing.T) {
	path := tempDevice(t, 4096)
	h, err := Acquire(path, false)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer h.Close()

	if h.Path() != path {
		t.Fatalf("Path() = %q, want %q", h.Path(), path)
	}
}
