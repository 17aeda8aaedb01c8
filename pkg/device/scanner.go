// Copyright (c) 2025 EcoWipe Authors
//
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultScanInterval is the poll period for the background device
// scanner.
const DefaultScanInterval = 2 * time.Second

// lister is the subset of Enumerator the scanner depends on, so tests
// can substitute a fake device set without a real enumerator backend.
type lister interface {
	ListValid() ([]ValidatedDevice, error)
}

// Scanner re-lists valid devices on a fixed interval and emits diff
// events over its Events/Unmounts channels. The scanner must be
// stopped before a wipe begins and restarted after cleanup; it never
// runs concurrently with the orchestrator holding the device handle.
type Scanner struct {
	lister   lister
	interval time.Duration
	log      zerolog.Logger

	events   chan ValidatedDevice
	unmounts chan string
	stop     chan struct{}
	done     chan struct{}

	mu    sync.Mutex
	known map[string]ValidatedDevice
}

// NewScanner builds a Scanner over the given enumerator. interval <= 0
// selects DefaultScanInterval.
func NewScanner(e *Enumerator, interval time.Duration, log zerolog.Logger) *Scanner {
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	return &Scanner{
		lister:   e,
		interval: interval,
		log:      log.With().Str("component", "device-scanner").Logger(),
		events:   make(chan ValidatedDevice),
		unmounts: make(chan string),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		known:    make(map[string]ValidatedDevice),
	}
}

// Events emits a ValidatedDevice each time a new valid device appears.
// The channel is closed when Stop returns.
func (s *Scanner) Events() <-chan ValidatedDevice { return s.events }

// Unmounts emits a device_id each time a previously known device
// disappears from the valid set. The channel is closed when Stop
// returns.
func (s *Scanner) Unmounts() <-chan string { return s.unmounts }

// Start begins the poll loop in the background. It returns
// immediately; enumeration failures are logged and retried on the next
// tick rather than stopping the scanner, since a single failed poll
// (e.g. a device mid-hot-plug) should not end monitoring.
func (s *Scanner) Start() error {
	go s.run()
	return nil
}

// Stop halts the poll loop and closes Events/Unmounts once the
// in-flight tick, if any, finishes.
func (s *Scanner) Stop() {
	close(s.stop)
	<-s.done
}

// Forget removes a device from internal tracking so it is treated as
// newly-appeared on the next tick it is seen again, for callers that
// detected a stale mount out of band. Safe to call while the scanner
// is running.
func (s *Scanner) Forget(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.known, deviceID)
}

func (s *Scanner) run() {
	defer close(s.done)
	defer close(s.events)
	defer close(s.unmounts)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scanner) tick() {
	current, err := s.lister.ListValid()
	if err != nil {
		s.log.Warn().Err(err).Msg("scan tick failed, retrying next interval")
		return
	}

	// Diff under the lock, send outside it: Forget may run concurrently,
	// and a blocked event send must never hold the map hostage.
	seen := make(map[string]bool, len(current))
	var added []ValidatedDevice
	var removed []string

	s.mu.Lock()
	for _, d := range current {
		seen[d.DeviceID] = true
		if _, ok := s.known[d.DeviceID]; !ok {
			s.known[d.DeviceID] = d
			added = append(added, d)
		}
	}
	for id := range s.known {
		if !seen[id] {
			delete(s.known, id)
			removed = append(removed, id)
		}
	}
	s.mu.Unlock()

	for _, d := range added {
		select {
		case s.events <- d:
		case <-s.stop:
			return
		}
	}
	for _, id := range removed {
		select {
		case s.unmounts <- id:
		case <-s.stop:
			return
		}
	}
}
