// Copyright (c) 2025 EcoWipe Authors
//
// SPDX-License-Identifier: Apache-2.0

// Package config loads EcoWipe's settings through viper: a config
// struct bound from defaults, an optional YAML file, and environment
// variables under the ECOWIPE_ prefix.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ecowipe/core/pkg/validate"
)

// Config holds every setting the core pipeline and its CLI need beyond
// what is decided per-invocation (device, operator, strategy).
type Config struct {
	KeyDir            string        `mapstructure:"keyDir"`
	CertDir           string        `mapstructure:"certDir"`
	LogLevel          string        `mapstructure:"logLevel"`
	ScanInterval      time.Duration `mapstructure:"scanInterval"`
	KeyPassphraseMode bool          `mapstructure:"keyPassphraseMode"`
}

func defaultBaseDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".ecowipe")
	}
	return "/var/lib/ecowipe"
}

// Load builds a Config from defaults, an optional YAML file at path
// (searched at the usual locations when path is empty), and
// ECOWIPE_-prefixed environment variable overrides. It never fails on
// a missing config file; EcoWipe runs with sane defaults out of the
// box.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	base := defaultBaseDir()
	v.SetDefault("keyDir", filepath.Join(base, "keys"))
	v.SetDefault("certDir", filepath.Join(base, "certificates"))
	v.SetDefault("logLevel", "info")
	v.SetDefault("scanInterval", 2*time.Second)
	v.SetDefault("keyPassphraseMode", false)

	v.SetEnvPrefix("ECOWIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ecowipe")
		v.AddConfigPath(base)
		v.AddConfigPath("/etc/ecowipe")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		// Missing files are fine; a present-but-unreadable file is not.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// KeyDir and CertDir are operator-controlled (YAML or env); a
	// reserved-name stem or a relative/traversal path is a security
	// violation, refused here so no artifact is ever written through an
	// unvetted path.
	keyDir, err := validate.OutputPath(cfg.KeyDir)
	if err != nil {
		return nil, fmt.Errorf("invalid key directory %q: %w", cfg.KeyDir, err)
	}
	cfg.KeyDir = keyDir

	certDir, err := validate.OutputPath(cfg.CertDir)
	if err != nil {
		return nil, fmt.Errorf("invalid certificate directory %q: %w", cfg.CertDir, err)
	}
	cfg.CertDir = certDir

	return &cfg, nil
}
