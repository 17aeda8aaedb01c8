// Copyright (c) 2025 EcoWipe Authors
//
// SPDX-License-Identifier: Apache-2.0

// Package orchestrator drives the wipe pipeline end to end: validate,
// lock and dismount, pre-hash, overwrite, post-hash, verify, and
// safe-release. It owns the state machine, the device handle, the two
// digests, and the start/end timestamps, and is the single recovery
// point: every error anywhere in the pipeline forces a transition to
// ERROR and then SAFE_RELEASE, never a retry.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ecowipe/core/pkg/certificate"
	"github.com/ecowipe/core/pkg/device"
	"github.com/ecowipe/core/pkg/deviceio"
	"github.com/ecowipe/core/pkg/fsm"
	"github.com/ecowipe/core/pkg/strategy"
	"github.com/ecowipe/core/pkg/validate"
)

// ErrCancelled indicates the cooperative cancellation flag was observed
// at a block boundary.
var ErrCancelled = errors.New("wipe cancelled by operator")

// ErrSilentWipeFailure indicates the post-hash equalled the pre-hash on
// a non-empty device: the OS reported successful writes that media
// never actually applied, e.g. a dead device or write-protected card.
var ErrSilentWipeFailure = errors.New("silent wipe failure: device contents unchanged after overwrite")

// Progress is posted to the UI over an asynchronous, non-blocking
// channel: the orchestrator holds the sender end, the caller holds the
// receiver.
type Progress struct {
	Percent int
	Message string
}

// Validator is the subset of device.Enumerator the orchestrator needs:
// mandatory re-validation immediately before a handle is acquired.
type Validator interface {
	ValidateForWipe(deviceID string) (device.ValidatedDevice, error)
}

// handle is the subset of *deviceio.Handle the orchestrator drives,
// so tests can substitute an in-memory fake without a real device.
type handle interface {
	Seek(offset int64) error
	ReadBlock(buf []byte) (int, error)
	WriteBlock(buf []byte) (int, error)
	Flush() error
	Lock() error
	Dismount() error
	Discard(size int64) error
	Unlock() error
	Close() error
}

// acquireFunc opens a handle for path; overridden in tests to avoid
// touching a real device.
type acquireFunc func(path string, writable bool) (handle, error)

func defaultAcquire(path string, writable bool) (handle, error) {
	return deviceio.Acquire(path, writable)
}

// NativePathResolver maps a ValidatedDevice's canonical identifier
// (e.g. \\.\PhysicalDriveN) to the real platform path deviceio.Acquire
// must open. device.NativePath is the production implementation;
// tests substitute an identity function when a fixture's DeviceID is
// already a real file path.
type NativePathResolver func(deviceID string) (string, error)

// Result is the record of a completed wipe, produced only on success.
type Result struct {
	DeviceID      string
	Model         string
	SerialNumber  string
	SizeBytes     int64
	Operator      string
	Strategy      strategy.Strategy
	PreHash       string
	PostHash      string
	StartTimeUnix int64
	EndTimeUnix   int64
	Status        string
}

// AsWipeResult adapts Result to the certificate package's input shape.
func (r Result) AsWipeResult() certificate.WipeResult {
	return certificate.WipeResult{
		DeviceID:       r.DeviceID,
		Model:          r.Model,
		SerialNumber:   r.SerialNumber,
		SizeBytes:      r.SizeBytes,
		Operator:       r.Operator,
		Method:         r.Strategy.Name(),
		Passes:         r.Strategy.Passes(),
		NISTStandard:   r.Strategy.NISTStandard(),
		PreHashSHA256:  r.PreHash,
		PostHashSHA256: r.PostHash,
		StartTimeUnix:  r.StartTimeUnix,
		EndTimeUnix:    r.EndTimeUnix,
		Status:         r.Status,
	}
}

// Orchestrator is a single sequential worker that drives one wipe
// session. Run executes the whole pipeline synchronously on the
// goroutine that calls it; it starts no goroutine of its own.
type Orchestrator struct {
	machine   *fsm.Machine
	validator Validator
	acquire   acquireFunc
	resolve   NativePathResolver
	log       zerolog.Logger

	cancel chan struct{}

	dev    device.ValidatedDevice
	h      handle
	locked bool

	preHash, postHash string
	startTime         int64
}

// New builds an Orchestrator wired to validator, with a fresh IDLE
// state machine.
func New(validator Validator, log zerolog.Logger) *Orchestrator {
	comp := log.With().Str("component", "orchestrator").Logger()
	return &Orchestrator{
		machine:   fsm.New(comp),
		validator: validator,
		acquire:   defaultAcquire,
		resolve:   device.NativePath,
		log:       comp,
		cancel:    make(chan struct{}),
	}
}

// SetNativePathResolver overrides how a device ID is translated to a
// real platform path before a handle is acquired. Integration tests
// use this to supply an identity function when the fixture's DeviceID
// is already a real file path rather than a \\.\PhysicalDriveN id.
func (o *Orchestrator) SetNativePathResolver(r NativePathResolver) {
	o.resolve = r
}

// Cancel sets the cooperative cancellation flag. The worker observes it
// at the next block boundary and raises ErrCancelled; partial writes
// already committed are not rolled back.
func (o *Orchestrator) Cancel() {
	select {
	case <-o.cancel:
		// already cancelled
	default:
		close(o.cancel)
	}
}

func (o *Orchestrator) cancelled() bool {
	select {
	case <-o.cancel:
		return true
	default:
		return false
	}
}

// State returns the state machine's current state.
func (o *Orchestrator) State() fsm.State { return o.machine.Current() }

// Run executes the full pipeline for deviceID under strategy s on
// behalf of operator, posting progress to progressCh (which Run never
// blocks indefinitely on: sends are best-effort non-blocking).
// SAFE_RELEASE always runs before Run returns, whatever the
// outcome; the caller observes only the final error (nil on success).
func (o *Orchestrator) Run(ctx context.Context, deviceID, operator string, s strategy.Strategy, progressCh chan<- Progress) (*Result, error) {
	operator, err := validate.OperatorName(operator)
	if err != nil {
		return nil, fmt.Errorf("invalid operator: %w", err)
	}

	var result *Result
	runErr := o.runPipeline(ctx, deviceID, operator, s, progressCh, &result)

	o.safeRelease(progressCh)

	if runErr != nil {
		o.post(progressCh, 0, runErr.Error())
		return nil, runErr
	}
	return result, nil
}

func (o *Orchestrator) runPipeline(ctx context.Context, deviceID, operator string, s strategy.Strategy, progressCh chan<- Progress, out **Result) error {
	if err := o.step1Validate(deviceID, progressCh); err != nil {
		o.forceState(fsm.Error)
		return err
	}

	if err := o.step2LockAndDismount(progressCh); err != nil {
		o.forceState(fsm.Error)
		return err
	}

	if err := o.step3PreHash(ctx, progressCh); err != nil {
		o.forceState(fsm.Error)
		return err
	}

	if err := o.step4Overwrite(ctx, s, progressCh); err != nil {
		o.forceState(fsm.Error)
		return err
	}

	if err := o.step5PostHash(ctx, progressCh); err != nil {
		o.forceState(fsm.Error)
		return err
	}

	result, err := o.step6VerifyAndFinalize(operator, s)
	if err != nil {
		o.forceState(fsm.Error)
		return err
	}

	*out = result
	return nil
}

// forceState transitions to the target state, which fsm always permits
// for ERROR/SAFE_RELEASE; errors here would themselves be programming
// errors, so they are logged, never propagated.
func (o *Orchestrator) forceState(s fsm.State) {
	if err := o.machine.TransitionTo(s); err != nil {
		o.log.Error().Err(err).Msg("unexpected failure forcing escape transition")
	}
}

func (o *Orchestrator) post(ch chan<- Progress, percent int, msg string) {
	if ch == nil {
		return
	}
	select {
	case ch <- Progress{Percent: percent, Message: msg}:
	default:
	}
}

// step1Validate re-runs full device enumeration and transitions
// IDLE -> DEVICE_VALIDATED. Re-validation happens immediately before
// acquiring the handle, since the device set can change between
// selection and wipe start.
func (o *Orchestrator) step1Validate(deviceID string, progressCh chan<- Progress) error {
	if err := o.machine.AssertIn(fsm.IDLE); err != nil {
		return err
	}

	dev, err := o.validator.ValidateForWipe(deviceID)
	if err != nil {
		return fmt.Errorf("validate device: %w", err)
	}
	o.dev = dev

	if err := o.machine.TransitionTo(fsm.DeviceValidated); err != nil {
		return err
	}
	o.post(progressCh, 0, "device validated")
	return nil
}

// step2LockAndDismount acquires a writable handle, locks it exclusively,
// and dismounts cached filesystem metadata so direct writes are
// authoritative, then transitions DEVICE_VALIDATED -> LOCKED.
func (o *Orchestrator) step2LockAndDismount(progressCh chan<- Progress) error {
	if err := o.machine.AssertIn(fsm.DeviceValidated); err != nil {
		return err
	}

	nativePath, err := o.resolve(o.dev.DeviceID)
	if err != nil {
		return fmt.Errorf("resolve device native path: %w", err)
	}

	h, err := o.acquire(nativePath, true)
	if err != nil {
		return fmt.Errorf("acquire device handle: %w", err)
	}
	o.h = h

	if err := h.Lock(); err != nil {
		return fmt.Errorf("lock device: %w", err)
	}
	o.locked = true

	if err := h.Dismount(); err != nil {
		return fmt.Errorf("dismount device: %w", err)
	}

	if err := o.machine.TransitionTo(fsm.Locked); err != nil {
		return err
	}
	o.post(progressCh, 5, "device locked and dismounted")
	return nil
}

// step3PreHash reads the entire device in CanonicalBlockSize blocks,
// feeding each through SHA-256, then transitions LOCKED -> PRE_HASHED.
// Progress maps linearly across the 5-10% window.
func (o *Orchestrator) step3PreHash(ctx context.Context, progressCh chan<- Progress) error {
	if err := o.machine.AssertIn(fsm.Locked); err != nil {
		return err
	}

	digest, err := o.hashDevice(ctx, 5, 10, progressCh)
	if err != nil {
		return fmt.Errorf("pre-hash device: %w", err)
	}
	o.preHash = digest

	o.startTime = unixNow()

	if err := o.machine.TransitionTo(fsm.PreHashed); err != nil {
		return err
	}
	o.post(progressCh, 10, "pre-hash complete")
	return nil
}

// step4Overwrite transitions PRE_HASHED -> OVERWRITING, then runs
// strategy.Passes() full sequential overwrites, flushing at the end of
// each. Progress maps to the 10-90% window across all passes.
func (o *Orchestrator) step4Overwrite(ctx context.Context, s strategy.Strategy, progressCh chan<- Progress) error {
	if err := o.machine.AssertIn(fsm.PreHashed); err != nil {
		return err
	}

	if err := o.machine.TransitionTo(fsm.Overwriting); err != nil {
		return err
	}

	size := o.dev.SizeBytes
	passes := s.Passes()

	// Best-effort TRIM before the passes: flash controllers may use it
	// to release over-provisioned blocks the overwrite cannot reach.
	// Failure (unsupported platform, non-flash media, regular-file
	// fixture) never aborts the wipe; the passes are the attested
	// sanitization.
	if err := o.h.Discard(size); err != nil {
		o.log.Debug().Err(err).Msg("pre-overwrite discard declined")
	}

	for passIndex := 0; passIndex < passes; passIndex++ {
		if err := o.h.Seek(0); err != nil {
			return fmt.Errorf("seek for pass %d: %w", passIndex, err)
		}

		var written int64
		for written < size {
			if err := ctxOrCancelErr(ctx, o.cancelled()); err != nil {
				return err
			}

			block, err := s.BlockFor(passIndex, size-written)
			if err != nil {
				return fmt.Errorf("generate pass %d block: %w", passIndex, err)
			}

			remaining := size - written
			if int64(len(block)) > remaining {
				block = block[:remaining]
			}

			n, err := o.h.WriteBlock(block)
			if err != nil {
				return fmt.Errorf("write pass %d at offset %d: %w", passIndex, written, err)
			}
			written += int64(n)

			passProgress := float64(written) / float64(size)
			overall := 10 + int((float64(passIndex)+passProgress)/float64(passes)*80)
			o.post(progressCh, overall, fmt.Sprintf("overwrite pass %d/%d", passIndex+1, passes))
		}

		if err := o.h.Flush(); err != nil {
			return fmt.Errorf("flush after pass %d: %w", passIndex, err)
		}
	}

	return nil
}

// step5PostHash transitions OVERWRITING -> VERIFYING, then recomputes
// the device digest with the same algorithm as the pre-hash. Progress
// maps to the 90-100% window.
func (o *Orchestrator) step5PostHash(ctx context.Context, progressCh chan<- Progress) error {
	if err := o.machine.AssertIn(fsm.Overwriting); err != nil {
		return err
	}
	if err := o.machine.TransitionTo(fsm.Verifying); err != nil {
		return err
	}

	digest, err := o.hashDevice(ctx, 90, 100, progressCh)
	if err != nil {
		return fmt.Errorf("post-hash device: %w", err)
	}
	o.postHash = digest
	return nil
}

// step6VerifyAndFinalize detects silent wipe failure (pre == post hash
// on a non-empty device) and otherwise assembles the Result, then
// transitions VERIFYING -> COMPLETED.
func (o *Orchestrator) step6VerifyAndFinalize(operator string, s strategy.Strategy) (*Result, error) {
	if err := o.machine.AssertIn(fsm.Verifying); err != nil {
		return nil, err
	}

	if o.dev.SizeBytes > 0 && o.preHash == o.postHash {
		return nil, ErrSilentWipeFailure
	}

	result := &Result{
		DeviceID:      o.dev.DeviceID,
		Model:         o.dev.Model,
		SerialNumber:  o.dev.SerialNumber,
		SizeBytes:     o.dev.SizeBytes,
		Operator:      operator,
		Strategy:      s,
		PreHash:       o.preHash,
		PostHash:      o.postHash,
		StartTimeUnix: o.startTime,
		EndTimeUnix:   unixNow(),
		Status:        "COMPLETED",
	}

	if err := o.machine.TransitionTo(fsm.Completed); err != nil {
		return nil, err
	}
	return result, nil
}

// safeRelease runs on every exit path, successful or not: it unlocks
// and closes the handle if held, forces SAFE_RELEASE then IDLE, and
// never itself raises; release errors are logged only.
func (o *Orchestrator) safeRelease(progressCh chan<- Progress) {
	o.forceState(fsm.SafeRelease)

	if o.h != nil {
		if o.locked {
			if err := o.h.Unlock(); err != nil {
				o.log.Warn().Err(err).Msg("failed to unlock device during safe release")
			}
		}
		if err := o.h.Close(); err != nil {
			o.log.Warn().Err(err).Msg("failed to close device handle during safe release")
		}
		o.h = nil
		o.locked = false
	}

	if err := o.machine.TransitionTo(fsm.IDLE); err != nil {
		o.log.Error().Err(err).Msg("unexpected failure returning to IDLE after safe release")
	}
	o.post(progressCh, 100, "safe release complete")
}

// hashDevice seeks to 0 and reads the whole device in canonical blocks,
// feeding each through SHA-256, posting progress linearly between
// fromPct and toPct. A zero-byte read before EOF is fatal.
func (o *Orchestrator) hashDevice(ctx context.Context, fromPct, toPct int, progressCh chan<- Progress) (string, error) {
	if err := o.h.Seek(0); err != nil {
		return "", fmt.Errorf("seek: %w", err)
	}

	hasher := sha256.New()
	size := o.dev.SizeBytes
	buf := make([]byte, strategy.CanonicalBlockSize)

	var read int64
	for read < size {
		if err := ctxOrCancelErr(ctx, o.cancelled()); err != nil {
			return "", err
		}

		want := int64(len(buf))
		if remaining := size - read; remaining < want {
			want = remaining
		}

		n, err := o.h.ReadBlock(buf[:want])
		if n == 0 && err == nil {
			return "", fmt.Errorf("read at offset %d: %w", read, deviceio.ErrShortReadWrite)
		}
		if n > 0 {
			hasher.Write(buf[:n])
			read += int64(n)
		}
		if err != nil {
			return "", err
		}

		span := toPct - fromPct
		overall := fromPct + int(float64(read)/float64(size)*float64(span))
		o.post(progressCh, overall, "hashing device")
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func ctxOrCancelErr(ctx context.Context, cancelled bool) error {
	if cancelled {
		return ErrCancelled
	}
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func unixNow() int64 {
	return time.Now().Unix()
}
