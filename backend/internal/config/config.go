// Package config resolves the signaling server's settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAddr    = ":8000"
	DefaultMetrics = true
)

// Config holds server configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `yaml:"addr"`

	// Metrics enables the /metrics endpoint.
	Metrics *bool `yaml:"metrics"`

	// LogLevel is used when LOG_LEVEL is not set.
	LogLevel string `yaml:"log_level"`
}

// MetricsEnabled reports whether /metrics is served.
func (c *Config) MetricsEnabled() bool {
	if c.Metrics == nil {
		return DefaultMetrics
	}
	return *c.Metrics
}

// Options carries CLI flag overrides. Zero values mean "not set".
type Options struct {
	File    string
	Addr    string
	Metrics *bool
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. YAML config file, when Options.File is set
// 4. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	cfg := &Config{}
	if opts.File != "" {
		if err := readFile(opts.File, cfg); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("PAIRLINK_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("PAIRLINK_METRICS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("PAIRLINK_METRICS: %w", err)
		}
		cfg.Metrics = &b
	}

	if opts.Addr != "" {
		cfg.Addr = opts.Addr
	}
	if opts.Metrics != nil {
		cfg.Metrics = opts.Metrics
	}

	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return cfg, nil
}

func readFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %s not found", path)
		}
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}
