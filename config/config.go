// Package config provides file and environment based configuration for
// stategraph runtimes.
package config

import (
	"fmt"

	"github.com/hupe1980/stategraph/engine"
)

// Environment represents the deployment environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string      `yaml:"name" json:"name"`
	Environment Environment `yaml:"environment" json:"environment"`
	Debug       bool        `yaml:"debug" json:"debug"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `yaml:"level" json:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format" json:"format"`
}

// RunConfig holds the scheduler settings applied to every run.
type RunConfig struct {
	// MaxSteps bounds the number of supersteps a run may execute.
	// Zero means unbounded.
	MaxSteps int `yaml:"max_steps" json:"max_steps"`

	// MaxConcurrency limits how many nodes execute in parallel within
	// a single step.
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency"`

	// NodeTimeout bounds a single node invocation. Zero disables it.
	NodeTimeout Duration `yaml:"node_timeout" json:"node_timeout"`

	// StepTimeout bounds an entire superstep. Zero disables it.
	StepTimeout Duration `yaml:"step_timeout" json:"step_timeout"`

	// EventBufferSize sizes the per-run event channel used by Stream.
	EventBufferSize int `yaml:"event_buffer_size" json:"event_buffer_size"`

	// TerminationChannel names a channel whose first write ends the run.
	TerminationChannel string `yaml:"termination_channel" json:"termination_channel"`
}

// CheckpointConfig holds checkpoint persistence settings.
type CheckpointConfig struct {
	// Store is "memory" or "file".
	Store string `yaml:"store" json:"store"`

	// Dir is the directory used by the file store.
	Dir string `yaml:"dir" json:"dir"`

	// OnFailure is "abort" or "continue" and controls how a failed
	// checkpoint save affects the run.
	OnFailure string `yaml:"on_failure" json:"on_failure"`
}

// Config is the root configuration document.
type Config struct {
	App        AppConfig        `yaml:"app" json:"app"`
	Log        LogConfig        `yaml:"log" json:"log"`
	Run        RunConfig        `yaml:"run" json:"run"`
	Checkpoint CheckpointConfig `yaml:"checkpoint" json:"checkpoint"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "stategraph",
			Environment: EnvDevelopment,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Run: RunConfig{
			MaxSteps:        engine.DefaultConfig.MaxSteps,
			MaxConcurrency:  engine.DefaultConfig.MaxConcurrency,
			EventBufferSize: engine.DefaultConfig.EventBufferSize,
		},
		Checkpoint: CheckpointConfig{
			Store:     "memory",
			OnFailure: "abort",
		},
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.App.Environment {
	case EnvDevelopment, EnvTesting, EnvProduction, "":
	default:
		return fmt.Errorf("invalid environment: %s", c.App.Environment)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	switch c.Log.Format {
	case "text", "json", "":
	default:
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	if c.Run.MaxSteps < 0 {
		return fmt.Errorf("max_steps must not be negative, got %d", c.Run.MaxSteps)
	}

	if c.Run.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency must not be negative, got %d", c.Run.MaxConcurrency)
	}

	if c.Run.NodeTimeout < 0 || c.Run.StepTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}

	if c.Run.EventBufferSize < 0 {
		return fmt.Errorf("event_buffer_size must not be negative, got %d", c.Run.EventBufferSize)
	}

	switch c.Checkpoint.Store {
	case "memory", "file", "":
	default:
		return fmt.Errorf("invalid checkpoint store: %s", c.Checkpoint.Store)
	}

	if c.Checkpoint.Store == "file" && c.Checkpoint.Dir == "" {
		return fmt.Errorf("checkpoint dir is required for the file store")
	}

	switch c.Checkpoint.OnFailure {
	case "abort", "continue", "":
	default:
		return fmt.Errorf("invalid checkpoint on_failure: %s", c.Checkpoint.OnFailure)
	}

	return nil
}

// EngineConfig converts the run settings into an engine.Config.
func (c *Config) EngineConfig() engine.Config {
	cfg := engine.Config{
		MaxSteps:           c.Run.MaxSteps,
		MaxConcurrency:     c.Run.MaxConcurrency,
		NodeTimeout:        c.Run.NodeTimeout.Std(),
		StepTimeout:        c.Run.StepTimeout.Std(),
		EventBufferSize:    c.Run.EventBufferSize,
		TerminationChannel: c.Run.TerminationChannel,
	}

	if c.Checkpoint.OnFailure == "continue" {
		cfg.CheckpointFailure = engine.CheckpointContinue
	}

	return cfg
}
