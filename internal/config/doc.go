// Package config provides configuration loading and validation for the
// transcript gateway. It handles YAML-based configuration with per-section
// struct validation and duration helpers for interval and timeout values.
package config
