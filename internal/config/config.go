package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Recorder RecorderConfig `yaml:"recorder"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// RecorderConfig contains the recording session parameters
type RecorderConfig struct {
	TargetSampleRate   int     `yaml:"target_sample_rate"`   // Hz of produced windows and artifacts
	CaptureSampleRate  int     `yaml:"capture_sample_rate"`  // Hz requested from the capture host
	Channels           int     `yaml:"channels"`
	WindowSizeExponent int     `yaml:"window_size_exponent"` // window = 2^exponent samples
	MicGain            float64 `yaml:"mic_gain"`
	OutputGain         float64 `yaml:"output_gain"`
	LatencyHint        string  `yaml:"latency_hint"`
	BroadcastWindows   bool    `yaml:"broadcast_windows"`
	ProduceArtifact    bool    `yaml:"produce_artifact"`
	UseEncodeTask      bool    `yaml:"use_encode_task"`
	EncodeQueueDepth   int     `yaml:"encode_queue_depth"`
	MaxBufferedSeconds int     `yaml:"max_buffered_seconds"` // 0 disables the backpressure bound
}

// MonitorConfig contains the HTTP monitor server configuration
type MonitorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no config file is provided:
// a 48 kHz mono capture converted to 16 kHz, 4096-sample windows, live
// window broadcasting and a WAV artifact built by the encode task.
func Default() *Config {
	return &Config{
		Recorder: RecorderConfig{
			TargetSampleRate:   16000,
			CaptureSampleRate:  48000,
			Channels:           1,
			WindowSizeExponent: 12,
			MicGain:            1.0,
			OutputGain:         1.0,
			LatencyHint:        "interactive",
			BroadcastWindows:   true,
			ProduceArtifact:    true,
			UseEncodeTask:      true,
			EncodeQueueDepth:   64,
			MaxBufferedSeconds: 10,
		},
		Monitor: MonitorConfig{
			Enabled: true,
			Address: "0.0.0.0",
			Port:    8080,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
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

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Recorder.Validate(); err != nil {
		return fmt.Errorf("recorder config: %w", err)
	}

	if err := c.Monitor.Validate(); err != nil {
		return fmt.Errorf("monitor config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates recorder configuration
func (r *RecorderConfig) Validate() error {
	if r.TargetSampleRate < 8000 || r.TargetSampleRate > 192000 {
		return fmt.Errorf("target_sample_rate must be between 8000 and 192000 Hz, got %d", r.TargetSampleRate)
	}

	if r.CaptureSampleRate < 8000 || r.CaptureSampleRate > 192000 {
		return fmt.Errorf("capture_sample_rate must be between 8000 and 192000 Hz, got %d", r.CaptureSampleRate)
	}

	if r.Channels != 1 && r.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", r.Channels)
	}

	if r.WindowSizeExponent < 8 || r.WindowSizeExponent > 14 {
		return fmt.Errorf("window_size_exponent must be between 8 and 14, got %d", r.WindowSizeExponent)
	}

	if r.MicGain < 0 || r.MicGain > 16 {
		return fmt.Errorf("mic_gain must be between 0 and 16, got %f", r.MicGain)
	}

	if r.OutputGain < 0 || r.OutputGain > 16 {
		return fmt.Errorf("output_gain must be between 0 and 16, got %f", r.OutputGain)
	}

	validHints := map[string]bool{"": true, "interactive": true, "balanced": true, "playback": true}
	if !validHints[r.LatencyHint] {
		return fmt.Errorf("latency_hint must be one of [interactive, balanced, playback], got '%s'", r.LatencyHint)
	}

	if r.EncodeQueueDepth < 0 {
		return fmt.Errorf("encode_queue_depth cannot be negative, got %d", r.EncodeQueueDepth)
	}

	if r.MaxBufferedSeconds < 0 {
		return fmt.Errorf("max_buffered_seconds cannot be negative, got %d", r.MaxBufferedSeconds)
	}

	return nil
}

// Validate validates monitor configuration
func (m *MonitorConfig) Validate() error {
	if m.Enabled {
		if m.Port < 1 || m.Port > 65535 {
			return fmt.Errorf("monitor port must be between 1 and 65535, got %d", m.Port)
		}

		if m.Address == "" {
			return fmt.Errorf("monitor address cannot be empty when the monitor is enabled")
		}
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

// WindowSize returns the accumulator window size in samples
func (r *RecorderConfig) WindowSize() int {
	return 1 << r.WindowSizeExponent
}

// MaxBufferedSamples returns the accumulator backpressure bound in samples
// for the given host rate. Zero means unbounded.
func (r *RecorderConfig) MaxBufferedSamples(hostRate int) int {
	if r.MaxBufferedSeconds <= 0 {
		return 0
	}
	return r.MaxBufferedSeconds * hostRate * r.Channels
}

// WindowDuration returns the duration one target-rate window covers
func (r *RecorderConfig) WindowDuration() time.Duration {
	samplesPerChannel := r.WindowSize() / r.Channels
	return time.Duration(samplesPerChannel) * time.Second / time.Duration(r.TargetSampleRate)
}

// ListenAddr returns the monitor listen address in host:port form
func (m *MonitorConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", m.Address, m.Port)
}
