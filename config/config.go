// Package config loads and validates the AgentBus runtime configuration
// from YAML. Durations are expressed as integer seconds or milliseconds so
// files remain toolable; accessors convert them to time.Duration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold       int   `yaml:"failure_threshold"`
	RecoveryTimeoutSeconds int   `yaml:"recovery_timeout_seconds"`
	SuccessThreshold       int   `yaml:"success_threshold"`
	MaxHalfOpenProbes      int64 `yaml:"max_half_open_probes"`
}

// RecoveryTimeout returns the recovery timeout as a duration.
func (c BreakerConfig) RecoveryTimeout() time.Duration {
	return time.Duration(c.RecoveryTimeoutSeconds) * time.Second
}

// BusConfig holds the queue and timing bounds for one bus.
type BusConfig struct {
	QueueCapacity      int `yaml:"queue_capacity"`
	CallTimeoutSeconds int `yaml:"call_timeout_seconds"`
	DrainTimeoutMS     int `yaml:"drain_timeout_ms"`
}

// CallTimeout returns the per-call timeout as a duration.
func (c BusConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

// DrainTimeout returns the shutdown drain bound as a duration.
func (c BusConfig) DrainTimeout() time.Duration {
	return time.Duration(c.DrainTimeoutMS) * time.Millisecond
}

// WiseConfig extends BusConfig with the guidance aggregation window.
type WiseConfig struct {
	BusConfig              `yaml:",inline"`
	GuidanceTimeoutSeconds int `yaml:"guidance_timeout_seconds"`
}

// GuidanceTimeout returns the fan-out aggregation bound as a duration.
func (c WiseConfig) GuidanceTimeout() time.Duration {
	return time.Duration(c.GuidanceTimeoutSeconds) * time.Second
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level     string `yaml:"level"`  // debug, info, warn, error
	Format    string `yaml:"format"` // json or text
	AddSource bool   `yaml:"add_source"`
}

// Config is the root configuration document.
type Config struct {
	Breaker        BreakerConfig `yaml:"circuit_breaker"`
	Communication  BusConfig     `yaml:"communication_bus"`
	Tool           BusConfig     `yaml:"tool_bus"`
	LLM            BusConfig     `yaml:"llm_bus"`
	Wise           WiseConfig    `yaml:"wise_bus"`
	RuntimeControl BusConfig     `yaml:"runtime_control_bus"`
	Logging        LoggingConfig `yaml:"logging"`
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	bus := BusConfig{
		QueueCapacity:      1000,
		CallTimeoutSeconds: 30,
		DrainTimeoutMS:     5000,
	}
	return &Config{
		Breaker: BreakerConfig{
			FailureThreshold:       5,
			RecoveryTimeoutSeconds: 60,
			SuccessThreshold:       3,
		},
		Communication:  bus,
		Tool:           bus,
		LLM:            bus,
		Wise:           WiseConfig{BusConfig: bus, GuidanceTimeoutSeconds: 5},
		RuntimeControl: bus,
		Logging:        LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads a YAML configuration file. Missing keys keep their default
// values; the result is validated before being returned.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks bounds that would otherwise surface as stalled buses or
// breakers that never recover.
func (c *Config) Validate() error {
	if c.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("circuit_breaker.failure_threshold must be >= 1, got %d", c.Breaker.FailureThreshold)
	}
	if c.Breaker.SuccessThreshold < 1 {
		return fmt.Errorf("circuit_breaker.success_threshold must be >= 1, got %d", c.Breaker.SuccessThreshold)
	}
	if c.Breaker.RecoveryTimeoutSeconds < 1 {
		return fmt.Errorf("circuit_breaker.recovery_timeout_seconds must be >= 1, got %d", c.Breaker.RecoveryTimeoutSeconds)
	}
	if c.Breaker.MaxHalfOpenProbes < 0 {
		return fmt.Errorf("circuit_breaker.max_half_open_probes must be >= 0, got %d", c.Breaker.MaxHalfOpenProbes)
	}

	buses := map[string]BusConfig{
		"communication_bus":   c.Communication,
		"tool_bus":            c.Tool,
		"llm_bus":             c.LLM,
		"wise_bus":            c.Wise.BusConfig,
		"runtime_control_bus": c.RuntimeControl,
	}
	for name, bus := range buses {
		if bus.QueueCapacity < 1 {
			return fmt.Errorf("%s.queue_capacity must be >= 1, got %d", name, bus.QueueCapacity)
		}
		if bus.CallTimeoutSeconds < 1 {
			return fmt.Errorf("%s.call_timeout_seconds must be >= 1, got %d", name, bus.CallTimeoutSeconds)
		}
		if bus.DrainTimeoutMS < 0 {
			return fmt.Errorf("%s.drain_timeout_ms must be >= 0, got %d", name, bus.DrainTimeoutMS)
		}
	}

	if c.Wise.GuidanceTimeoutSeconds < 1 {
		return fmt.Errorf("wise_bus.guidance_timeout_seconds must be >= 1, got %d", c.Wise.GuidanceTimeoutSeconds)
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}
	return nil
}
