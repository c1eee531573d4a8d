package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Workflow      WorkflowConfig      `yaml:"workflow"`
	Credentials   CredentialsConfig   `yaml:"credentials"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
}

// TranscriptionConfig contains transcription API configuration
type TranscriptionConfig struct {
	BaseURL      string `yaml:"base_url"`
	LanguageCode string `yaml:"language_code"`
	Timeout      int    `yaml:"timeout"` // seconds
}

// WorkflowConfig contains submission workflow configuration
type WorkflowConfig struct {
	PollInterval float64 `yaml:"poll_interval"` // seconds
}

// CredentialsConfig contains credential store configuration
type CredentialsConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs validation of the complete configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Workflow.Validate(); err != nil {
		return fmt.Errorf("workflow config: %w", err)
	}

	if err := c.Credentials.Validate(); err != nil {
		return fmt.Errorf("credentials config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP server configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", h.Port)
	}

	if h.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	return nil
}

// Validate validates transcription API configuration
func (t *TranscriptionConfig) Validate() error {
	if t.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	if t.LanguageCode == "" {
		return fmt.Errorf("language_code cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	return nil
}

// Validate validates workflow configuration
func (w *WorkflowConfig) Validate() error {
	if w.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %f", w.PollInterval)
	}

	return nil
}

// Validate validates credential store configuration
func (c *CredentialsConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetTimeoutDuration returns the transcription request timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetPollIntervalDuration returns the poll interval as a time.Duration
func (w *WorkflowConfig) GetPollIntervalDuration() time.Duration {
	return time.Duration(w.PollInterval * float64(time.Second))
}
