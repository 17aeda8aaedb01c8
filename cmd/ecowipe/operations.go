// Copyright (c) 2025 EcoWipe Authors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ecowipe/core/pkg/certificate"
	"github.com/ecowipe/core/pkg/config"
	"github.com/ecowipe/core/pkg/device"
	"github.com/ecowipe/core/pkg/orchestrator"
	"github.com/ecowipe/core/pkg/signer"
	"github.com/ecowipe/core/pkg/strategy"
)

// errPassphraseRequired signals Config.KeyPassphraseMode is on but the
// operator has not yet supplied a passphrase via SetPassphrase.
var errPassphraseRequired = errors.New("a key passphrase is required but was not provided")

// Operations is the dependency-injection seam the cobra commands run
// against: tests substitute a fake, production wires the real
// packages.
type Operations interface {
	ListDevices() ([]device.ValidatedDevice, error)
	Wipe(ctx context.Context, deviceID, operator, method string, progress chan<- orchestrator.Progress) (*orchestrator.Result, *certificate.Certificate, string, string, error)
	VerifyCertificate(path string) (bool, *certificate.Certificate, error)
	Watch(ctx context.Context, interval time.Duration, onEvent func(device.ValidatedDevice), onUnmount func(string)) error
}

// DefaultOperations wires the real enumerator, orchestrator, signer,
// and certificate builder together per cfg.
type DefaultOperations struct {
	cfg        *config.Config
	log        zerolog.Logger
	passphrase []byte
}

// NewDefaultOperations builds an Operations implementation from cfg.
func NewDefaultOperations(cfg *config.Config, log zerolog.Logger) *DefaultOperations {
	return &DefaultOperations{cfg: cfg, log: log}
}

// SetPassphrase supplies the private-key passphrase for the optional
// protected-key deployment mode. Ignored when Config.KeyPassphraseMode
// is off.
func (o *DefaultOperations) SetPassphrase(p []byte) {
	o.passphrase = p
}

func (o *DefaultOperations) ListDevices() ([]device.ValidatedDevice, error) {
	enum := device.New(o.log)
	return enum.ListValid()
}

func (o *DefaultOperations) Wipe(ctx context.Context, deviceID, operator, method string, progress chan<- orchestrator.Progress) (*orchestrator.Result, *certificate.Certificate, string, string, error) {
	enum := device.New(o.log)
	orch := orchestrator.New(enum, o.log)

	s := strategy.Select(method)
	result, err := orch.Run(ctx, deviceID, operator, s, progress)
	if err != nil {
		return nil, nil, "", "", err
	}

	sgn, err := o.newSigner()
	if err != nil {
		return result, nil, "", "", err
	}

	builder, err := certificate.NewBuilder(o.cfg.CertDir, sgn, o.log)
	if err != nil {
		return result, nil, "", "", err
	}

	cert, jsonPath, qrPath, err := builder.Issue(result.AsWipeResult())
	if err != nil {
		return result, nil, "", "", err
	}
	return result, cert, jsonPath, qrPath, nil
}

// Watch runs the background device scanner (poll every interval, emit
// arrival/removal diffs) until ctx is cancelled. The caller is
// responsible for stopping any Watch in flight before starting a Wipe
// against the same device set, and for restarting it once the wipe's
// safe-release completes.
func (o *DefaultOperations) Watch(ctx context.Context, interval time.Duration, onEvent func(device.ValidatedDevice), onUnmount func(string)) error {
	enum := device.New(o.log)
	scanner := device.NewScanner(enum, interval, o.log)
	if err := scanner.Start(); err != nil {
		return err
	}
	defer scanner.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-scanner.Events():
			if !ok {
				return nil
			}
			if onEvent != nil {
				onEvent(d)
			}
		case id, ok := <-scanner.Unmounts():
			if !ok {
				return nil
			}
			if onUnmount != nil {
				onUnmount(id)
			}
		}
	}
}

func (o *DefaultOperations) VerifyCertificate(path string) (bool, *certificate.Certificate, error) {
	cert, err := certificate.LoadFromFile(path)
	if err != nil {
		return false, nil, err
	}

	sgn, err := o.newSigner()
	if err != nil {
		return false, cert, err
	}

	ok, err := certificate.VerifySignature(cert, sgn)
	return ok, cert, err
}

func (o *DefaultOperations) newSigner() (*signer.Signer, error) {
	if o.cfg.KeyPassphraseMode {
		if len(o.passphrase) == 0 {
			return nil, errPassphraseRequired
		}
		return signer.NewProtected(o.cfg.KeyDir, o.passphrase, o.log)
	}
	return signer.New(o.cfg.KeyDir, o.log)
}
