// Package config provides configuration loading and validation for the audio
// recorder service. It handles YAML-based configuration with per-section
// struct validation and supplies defaults for file-less runs.
package config
