// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads tool configuration from an optional YAML file with
// environment overrides.
//
// Search order: an explicit --config path, then .dosimeter.yaml in the
// working directory, then built-in defaults. A missing implicit file is
// not an error. DOSIMETER_* environment variables override file values,
// and a .env file is folded into the environment first when present.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the implicit config file looked up in the working
// directory.
const DefaultFileName = ".dosimeter.yaml"

// Config holds the tool's settings. Values map onto the scan command's
// flags; flags win over config when both are given.
type Config struct {
	// Cargo is the cargo binary to drive.
	Cargo string `yaml:"cargo"`

	// Charset is the default output charset: utf8 or ascii.
	Charset string `yaml:"charset"`

	// Prefix is the default indentation style: indent, depth, or none.
	Prefix string `yaml:"prefix"`

	// Color is the default color mode: auto, always, or never.
	Color string `yaml:"color"`

	// IncludeTests counts unsafe code in test functions and modules.
	IncludeTests bool `yaml:"include_tests"`

	// ServeAddr is the listen address for serve mode.
	ServeAddr string `yaml:"serve_addr"`

	// LogLevel is the minimum log severity: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// DebounceMS is the watch-mode quiet window in milliseconds.
	DebounceMS int `yaml:"debounce_ms"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Cargo:      "cargo",
		Charset:    "utf8",
		Prefix:     "indent",
		Color:      "auto",
		ServeAddr:  ":8089",
		LogLevel:   "info",
		DebounceMS: 500,
	}
}

// Debounce returns the watch quiet window as a duration.
func (c Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// Load resolves the configuration. explicitPath, when non-empty, must
// exist; otherwise dir/.dosimeter.yaml is used when present.
func Load(explicitPath, dir string) (Config, error) {
	// Fold a .env file into the environment before reading overrides.
	_ = godotenv.Load()

	cfg := Default()

	path := explicitPath
	if path == "" {
		candidate := filepath.Join(dir, DefaultFileName)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv overrides config fields from DOSIMETER_* variables.
func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString("DOSIMETER_CARGO", &cfg.Cargo)
	setString("DOSIMETER_CHARSET", &cfg.Charset)
	setString("DOSIMETER_PREFIX", &cfg.Prefix)
	setString("DOSIMETER_COLOR", &cfg.Color)
	setString("DOSIMETER_SERVE_ADDR", &cfg.ServeAddr)
	setString("DOSIMETER_LOG_LEVEL", &cfg.LogLevel)

	if v := os.Getenv("DOSIMETER_INCLUDE_TESTS"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.IncludeTests = parsed
		}
	}
	if v := os.Getenv("DOSIMETER_DEBOUNCE_MS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.DebounceMS = parsed
		}
	}
}
