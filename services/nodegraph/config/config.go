// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and watches the node graph service configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// NODEGRAPH_* environment variables. The result is validated before it is
// returned. Watcher reloads the file on change so the tick rate and log
// level can be adjusted without a restart.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/nodegraph/services/nodegraph/perfsink"
	"github.com/AleutianAI/nodegraph/services/nodegraph/telemetry"
)

// ErrInvalidConfig is returned when a loaded configuration fails validation
// or an environment override cannot be parsed.
var ErrInvalidConfig = errors.New("invalid config")

// validate is shared; validator.Validate caches struct metadata and is safe
// for concurrent use.
var validate = validator.New()

// Config is the full service configuration.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after creation.
type Config struct {
	// Graph describes the graph to build at startup.
	Graph GraphConfig `yaml:"graph" json:"graph"`

	// Tick controls the runner's pacing.
	Tick TickConfig `yaml:"tick" json:"tick"`

	// Log controls logging output.
	Log LogConfig `yaml:"log" json:"log"`

	// HTTP controls the API server.
	HTTP HTTPConfig `yaml:"http" json:"http"`

	// Telemetry controls tracing and metrics export.
	Telemetry telemetry.Config `yaml:"telemetry" json:"telemetry"`

	// Influx configures the optional latency sink. Empty URL disables it.
	Influx perfsink.Config `yaml:"influx" json:"influx"`
}

// GraphConfig describes the startup graph.
type GraphConfig struct {
	// Name tags exported samples.
	Name string `yaml:"name" json:"name" validate:"required"`

	// Demo builds the bundled demonstration graph.
	Demo bool `yaml:"demo" json:"demo"`
}

// TickConfig controls the runner.
type TickConfig struct {
	// RateHz is the target tick frequency. Zero runs unpaced.
	RateHz float64 `yaml:"rate_hz" json:"rate_hz" validate:"gte=0,lte=10000"`

	// MaxTicks stops the runner after this many ticks. Zero runs until
	// cancelled.
	MaxTicks uint64 `yaml:"max_ticks" json:"max_ticks"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level" json:"level" validate:"oneof=debug info warn warning error"`
	Dir   string `yaml:"dir" json:"dir"`
	JSON  bool   `yaml:"json" json:"json"`
}

// HTTPConfig controls the API server. Empty Addr disables it.
type HTTPConfig struct {
	Addr            string        `yaml:"addr" json:"addr" validate:"omitempty,hostname_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" validate:"gte=0"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Graph: GraphConfig{
			Name: "default",
			Demo: true,
		},
		Tick: TickConfig{
			RateHz: 10,
		},
		Log: LogConfig{
			Level: "info",
		},
		HTTP: HTTPConfig{
			Addr:            "127.0.0.1:8098",
			ShutdownTimeout: 5 * time.Second,
		},
		Telemetry: telemetry.DefaultConfig(),
		Influx: perfsink.Config{
			Measurement:  perfsink.DefaultMeasurement,
			BatchSize:    100,
			WriteTimeout: 5 * time.Second,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path and the
// environment.
//
// Description:
//
//	An empty path skips the file. A missing file named explicitly is an
//	error. Keys absent from the file keep their defaults.
//
// Inputs:
//
//	path - YAML file path, or "".
//
// Outputs:
//
//	Config - The validated configuration.
//	error - Read, parse or validation failure. Validation and env parse
//	        failures wrap ErrInvalidConfig.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// applyEnv overrides fields from NODEGRAPH_* variables.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("NODEGRAPH_GRAPH_NAME"); v != "" {
		cfg.Graph.Name = v
	}
	if v := os.Getenv("NODEGRAPH_DEMO"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: NODEGRAPH_DEMO: %v", ErrInvalidConfig, err)
		}
		cfg.Graph.Demo = b
	}
	if v := os.Getenv("NODEGRAPH_TICK_RATE_HZ"); v != "" {
		hz, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: NODEGRAPH_TICK_RATE_HZ: %v", ErrInvalidConfig, err)
		}
		cfg.Tick.RateHz = hz
	}
	if v := os.Getenv("NODEGRAPH_MAX_TICKS"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: NODEGRAPH_MAX_TICKS: %v", ErrInvalidConfig, err)
		}
		cfg.Tick.MaxTicks = n
	}
	if v := os.Getenv("NODEGRAPH_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("NODEGRAPH_LOG_DIR"); v != "" {
		cfg.Log.Dir = v
	}
	if v := os.Getenv("NODEGRAPH_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("NODEGRAPH_INFLUX_URL"); v != "" {
		cfg.Influx.URL = v
	}
	if v := os.Getenv("NODEGRAPH_INFLUX_TOKEN"); v != "" {
		cfg.Influx.Token = v
	}
	if v := os.Getenv("NODEGRAPH_INFLUX_ORG"); v != "" {
		cfg.Influx.Org = v
	}
	if v := os.Getenv("NODEGRAPH_INFLUX_BUCKET"); v != "" {
		cfg.Influx.Bucket = v
	}
	return nil
}
