// Package config provides configuration loading for transformd.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the transformd daemon.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Session    SessionConfig    `koanf:"session"`
	Sandbox    SandboxConfig    `koanf:"sandbox"`
	Planner    PlannerConfig    `koanf:"planner"`
	Validation ValidationConfig `koanf:"validation"`
	Analysis   AnalysisConfig   `koanf:"analysis"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// SessionConfig controls session lifetime.
type SessionConfig struct {
	// TTL is the maximum session age; expired sessions are removed
	// regardless of status.
	TTL Duration `koanf:"ttl"`

	// SweepInterval controls how often the registry scans for stale sessions.
	SweepInterval Duration `koanf:"sweep_interval"`
}

// SandboxConfig holds remote execution service settings.
// When APIKey is unset, provisioning falls back to a local scratch directory.
type SandboxConfig struct {
	BaseURL string   `koanf:"base_url"`
	APIKey  Secret   `koanf:"api_key"`
	Timeout Duration `koanf:"timeout"`
}

// PlannerConfig holds plan-generation (LLM) settings.
type PlannerConfig struct {
	// Provider selects the LLM backend: "anthropic" or "openai".
	Provider    string   `koanf:"provider"`
	Model       string   `koanf:"model"`
	BaseURL     string   `koanf:"base_url"`
	APIKey      Secret   `koanf:"api_key"`
	MaxTokens   int      `koanf:"max_tokens"`
	Temperature float64  `koanf:"temperature"`
	Timeout     Duration `koanf:"timeout"`
}

// ValidationConfig controls the post-apply validation run.
type ValidationConfig struct {
	// Command is the validation command and its arguments.
	Command []string `koanf:"command"`

	// Timeout bounds the validation run. Exceeding it is a validation
	// failure, not a pipeline failure.
	Timeout Duration `koanf:"timeout"`

	// BlockOnFailure stops the pipeline before publishing when validation
	// fails. Default false: failures are annotated and publishing proceeds.
	BlockOnFailure bool `koanf:"block_on_failure"`
}

// AnalysisConfig controls the codebase scan.
type AnalysisConfig struct {
	// MaxSampleFiles caps the file paths included in the analysis summary.
	MaxSampleFiles int `koanf:"max_sample_files"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Session.TTL.Duration() <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	if c.Session.SweepInterval.Duration() <= 0 {
		return fmt.Errorf("session.sweep_interval must be positive")
	}
	if c.Validation.Timeout.Duration() <= 0 {
		return fmt.Errorf("validation.timeout must be positive")
	}
	if len(c.Validation.Command) == 0 {
		return fmt.Errorf("validation.command must not be empty")
	}
	switch c.Planner.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("planner.provider must be \"anthropic\" or \"openai\", got %q", c.Planner.Provider)
	}
	if c.Planner.MaxTokens <= 0 {
		return fmt.Errorf("planner.max_tokens must be positive")
	}
	if c.Planner.Temperature < 0 || c.Planner.Temperature > 2 {
		return fmt.Errorf("planner.temperature must be between 0 and 2, got %v", c.Planner.Temperature)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be \"json\" or \"console\", got %q", c.Logging.Format)
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = Duration(time.Hour)
	}
	if cfg.Session.SweepInterval == 0 {
		cfg.Session.SweepInterval = Duration(time.Minute)
	}

	if cfg.Sandbox.Timeout == 0 {
		cfg.Sandbox.Timeout = Duration(5 * time.Minute)
	}

	if cfg.Planner.Provider == "" {
		cfg.Planner.Provider = "openai"
	}
	if cfg.Planner.Model == "" {
		cfg.Planner.Model = "gpt-4"
	}
	if cfg.Planner.MaxTokens == 0 {
		cfg.Planner.MaxTokens = 4000
	}
	if cfg.Planner.Timeout == 0 {
		cfg.Planner.Timeout = Duration(2 * time.Minute)
	}

	if len(cfg.Validation.Command) == 0 {
		cfg.Validation.Command = []string{"python", "-m", "pytest", "--tb=short"}
	}
	if cfg.Validation.Timeout == 0 {
		cfg.Validation.Timeout = Duration(60 * time.Second)
	}

	if cfg.Analysis.MaxSampleFiles == 0 {
		cfg.Analysis.MaxSampleFiles = 10
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}
