// Copyright (c) 2025 EcoWipe Authors
//
// SPDX-License-Identifier: Apache-2.0

// Package fsm implements the wipe pipeline's deterministic state
// machine: a fixed transition table with two forced escape edges
// (ERROR, SAFE_RELEASE) reachable from any state.
package fsm

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// State is one of the nine states a wipe operation can be in.
type State int

const (
	IDLE State = iota
	DeviceValidated
	Locked
	PreHashed
	Overwriting
	Verifying
	Completed
	Error
	SafeRelease
)

var stateNames = map[State]string{
	IDLE:            "IDLE",
	DeviceValidated: "DEVICE_VALIDATED",
	Locked:          "LOCKED",
	PreHashed:       "PRE_HASHED",
	Overwriting:     "OVERWRITING",
	Verifying:       "VERIFYING",
	Completed:       "COMPLETED",
	Error:           "ERROR",
	SafeRelease:     "SAFE_RELEASE",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(s))
}

// transitions is the permitted-destination table. ERROR and
// SAFE_RELEASE appear here where they are ordinary edges; a transition
// to either one from an origin that does not list it is still allowed
// as a forced emergency transition, handled by isForcedEscape.
var transitions = map[State][]State{
	IDLE:            {DeviceValidated, Error},
	DeviceValidated: {Locked, Error, SafeRelease},
	Locked:          {PreHashed, Error, SafeRelease},
	PreHashed:       {Overwriting, Error, SafeRelease},
	Overwriting:     {Verifying, Error, SafeRelease},
	Verifying:       {Completed, Error, SafeRelease},
	Completed:       {SafeRelease},
	Error:           {SafeRelease},
	SafeRelease:     {IDLE},
}

// TransitionError indicates a transition not present in the table was
// attempted and was not a forced escape.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

// AssertError indicates the machine was not in the state a pipeline
// step required.
type AssertError struct {
	Expected State
	Actual   State
}

func (e *AssertError) Error() string {
	return fmt.Sprintf("expected state %s, but currently in %s", e.Expected, e.Actual)
}

func isForcedEscape(to State) bool {
	return to == Error || to == SafeRelease
}

// Machine is the wipe pipeline's state holder. Safe for concurrent
// TransitionTo/Current calls, though in practice a single orchestrator
// goroutine drives it.
type Machine struct {
	mu      sync.Mutex
	current State
	log     zerolog.Logger
}

// New returns a machine starting in IDLE.
func New(log zerolog.Logger) *Machine {
	return &Machine{current: IDLE, log: log.With().Str("component", "fsm").Logger()}
}

// Current returns the machine's current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// TransitionTo attempts to move to newState. Transitions to ERROR or
// SAFE_RELEASE always succeed, forcing the state even when not present
// in the table for the current origin, so the machine can never be
// trapped outside the safe-release path. Any other transition not in
// the table returns *TransitionError.
func (m *Machine) TransitionTo(newState State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := transitions[m.current]
	for _, s := range allowed {
		if s == newState {
			m.log.Info().Str("from", m.current.String()).Str("to", newState.String()).Msg("state transition")
			m.current = newState
			return nil
		}
	}

	if isForcedEscape(newState) {
		m.log.Warn().Str("from", m.current.String()).Str("to", newState.String()).
			Msg("forcing emergency transition")
		m.current = newState
		return nil
	}

	err := &TransitionError{From: m.current, To: newState}
	m.log.Error().Err(err).Msg("invalid state transition attempted")
	return err
}

// AssertIn fails if the current state differs from expected. Every
// pipeline step begins with this assertion.
func (m *Machine) AssertIn(expected State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != expected {
		return &AssertError{Expected: expected, Actual: m.current}
	}
	return nil
}
