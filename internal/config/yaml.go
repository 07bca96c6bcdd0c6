// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"doppler/internal/analysis"
	applog "doppler/internal/log"
	"doppler/internal/spectrum"
	"doppler/pkg/bitint"

	"gopkg.in/yaml.v3"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Mode      string          `yaml:"mode"`              // "gesture" (emit a tone and watch its sidebands) or "tone" (estimate two tones).
	Debug     bool            `yaml:"debug"`             // Enable debug mode (forces debug logging).
	LogLevel  string          `yaml:"log_level"`         // Logging level (e.g., "debug", "info", "warn", "error").
	Command   string          `yaml:"command,omitempty"` // A one-off command to execute instead of running the analyzer (e.g., "list").
	Audio     AudioConfig     `yaml:"audio"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Gesture   GestureConfig   `yaml:"gesture"`
	Tone      ToneConfig      `yaml:"tone"`
	Recording RecordingConfig `yaml:"recording"`
	Transport TransportConfig `yaml:"transport"`
	UI        UIConfig        `yaml:"ui"`
}

// AudioConfig holds settings related to audio input/output.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index for capture (-1 for default).
	OutputDevice    int     `yaml:"output_device"`     // PortAudio device index for the emitted tone (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Sample rate in Hz (e.g., 44100, 48000).
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per driver callback.
	LowLatency      bool    `yaml:"low_latency"`       // Request low latency settings from PortAudio device.
	InputChannels   int     `yaml:"input_channels"`    // Captured channels; only the first is analyzed.
	OutputChannels  int     `yaml:"output_channels"`   // Playback channels; 0 disables playback.
	InputFile       string  `yaml:"input_file"`        // Replay this WAV file instead of opening a device.
	Realtime        bool    `yaml:"realtime"`          // Pace file replay at the file's sample rate.
	Loop            bool    `yaml:"loop"`              // Restart file replay at end of file.
}

// AnalysisConfig holds the spectral analysis settings.
type AnalysisConfig struct {
	BufferSize        int     `yaml:"buffer_size"`         // Samples per analysis frame (even; power of two recommended).
	TickRateHz        float64 `yaml:"tick_rate_hz"`        // Analysis ticks per second.
	TargetFrequencyHz float64 `yaml:"target_frequency_hz"` // Emitted tone; 0 selects the mode default.
	PeakFloorDB       float64 `yaml:"peak_floor_db"`       // Minimum magnitude for a peak candidate.
	PeakWindowDivisor int     `yaml:"peak_window_divisor"` // Peak window length is buffer_size / divisor.
	FFTWindow         string  `yaml:"fft_window"`          // Window function ("none", "hann", ...).
	GateThreshold     float64 `yaml:"gate_threshold"`      // Input level (0-1 full scale) below which frames are flagged as gated.
}

// GestureConfig holds the gesture detector tunables.
type GestureConfig struct {
	NumBaselineFrames  int                   `yaml:"num_baseline_frames"`
	NumDetectionFrames int                   `yaml:"num_detection_frames"`
	SidebandWindowSize int                   `yaml:"sideband_window_size"`
	SidebandGuardBins  int                   `yaml:"sideband_guard_bins"`
	Coefficients       analysis.Coefficients `yaml:"coefficients"`
}

// ToneConfig controls the emitted sine tone.
type ToneConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Amplitude float64 `yaml:"amplitude"` // Peak amplitude, 0-1 of full scale.
}

// RecordingConfig holds settings related to audio recording functionality.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`    // Record the analyzed channel to file.
	OutputDir string `yaml:"output_dir"` // Directory to save recorded audio files.
	BitDepth  int    `yaml:"bit_depth"`  // 16, 24 or 32.
}

// TransportConfig holds settings related to publishing snapshots.
type TransportConfig struct {
	WebSocketEnabled bool          `yaml:"websocket_enabled"`  // Serve JSON snapshots on /ws.
	WebSocketAddress string        `yaml:"websocket_address"`  // Listen address (e.g., ":8080").
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Send binary snapshots over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port for UDP packets (e.g., "127.0.0.1:9090").
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between UDP packets.
}

// UIConfig controls the terminal monitor.
type UIConfig struct {
	Monitor bool `yaml:"monitor"` // Run the interactive monitor instead of plain logging.
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		candidates := []string{"config.yaml", "doppler.yaml"}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate reports the first setting that cannot run. Everything it rejects
// is fatal at startup; nothing is re-checked mid-stream.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeGesture, ModeTone:
	default:
		return fmt.Errorf("mode must be %q or %q, got %q", ModeGesture, ModeTone, c.Mode)
	}
	if _, ok := applog.ParseLevel(c.LogLevel); !ok && c.LogLevel != "" {
		return fmt.Errorf("log_level %q is not recognized", c.LogLevel)
	}

	if err := c.Audio.validate(); err != nil {
		return err
	}
	if err := c.validateAnalysis(); err != nil {
		return err
	}
	if err := c.Gesture.validate(); err != nil {
		return err
	}

	if c.Tone.Amplitude < 0 || c.Tone.Amplitude > 1 {
		return fmt.Errorf("tone.amplitude must be within [0, 1], got %v", c.Tone.Amplitude)
	}
	if c.Mode == ModeGesture && c.Tone.Enabled && c.Audio.InputFile == "" && c.Audio.OutputChannels < 1 {
		return errors.New("gesture mode with tone.enabled needs audio.output_channels >= 1")
	}

	if c.Recording.Enabled {
		switch c.Recording.BitDepth {
		case 16, 24, 32:
		default:
			return fmt.Errorf("recording.bit_depth must be 16, 24 or 32, got %d", c.Recording.BitDepth)
		}
	}

	return c.Transport.validate()
}

func (a *AudioConfig) validate() error {
	if a.InputFile != "" {
		if _, err := os.Stat(a.InputFile); err != nil {
			return fmt.Errorf("audio.input_file: %w", err)
		}
		// Format comes from the file header.
		if a.FramesPerBuffer < 1 {
			return fmt.Errorf("audio.frames_per_buffer must be at least 1, got %d", a.FramesPerBuffer)
		}
		return nil
	}
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		return fmt.Errorf("audio.sample_rate must be within [%d, %d], got %v", MinSampleRate, MaxSampleRate, a.SampleRate)
	}
	if a.FramesPerBuffer < 1 {
		return fmt.Errorf("audio.frames_per_buffer must be at least 1, got %d", a.FramesPerBuffer)
	}
	if a.InputChannels < 1 {
		return fmt.Errorf("audio.input_channels must be at least 1, got %d", a.InputChannels)
	}
	if a.OutputChannels < 0 {
		return fmt.Errorf("audio.output_channels must not be negative, got %d", a.OutputChannels)
	}
	if a.InputDevice < MinDeviceID || a.OutputDevice < MinDeviceID {
		return fmt.Errorf("device IDs must be >= %d", MinDeviceID)
	}
	return nil
}

func (c *Config) validateAnalysis() error {
	a := c.Analysis
	if a.BufferSize < spectrum.MinSize || !bitint.IsEven(a.BufferSize) {
		return fmt.Errorf("analysis.buffer_size must be even and at least %d, got %d", spectrum.MinSize, a.BufferSize)
	}
	if !bitint.IsPowerOfTwo(a.BufferSize) {
		applog.Warnf("configuration: analysis.buffer_size %d is not a power of two (next: %d)",
			a.BufferSize, bitint.NextPowerOfTwo(a.BufferSize))
	}
	if a.TickRateHz <= 0 || a.TickRateHz > MaxTickRateHz {
		return fmt.Errorf("analysis.tick_rate_hz must be within (0, %d], got %v", MaxTickRateHz, a.TickRateHz)
	}
	if a.PeakWindowDivisor < 1 {
		return fmt.Errorf("analysis.peak_window_divisor must be at least 1, got %d", a.PeakWindowDivisor)
	}
	if math.IsNaN(a.PeakFloorDB) || math.IsInf(a.PeakFloorDB, 0) {
		return fmt.Errorf("analysis.peak_floor_db must be finite, got %v", a.PeakFloorDB)
	}
	if a.GateThreshold < 0 || a.GateThreshold > 1 {
		return fmt.Errorf("analysis.gate_threshold must be within [0, 1], got %v", a.GateThreshold)
	}
	if _, err := spectrum.ParseWindowFunc(a.FFTWindow); err != nil {
		return fmt.Errorf("analysis.fft_window: %w", err)
	}

	// A replayed file brings its own rate; the analyzer re-checks the
	// target against it at startup.
	if c.Audio.InputFile == "" {
		nyquist := c.Audio.SampleRate / 2
		if f := c.TargetFrequency(); !(f > 0 && f < nyquist) {
			return fmt.Errorf("analysis.target_frequency_hz must be within (0, %v), got %v", nyquist, f)
		}
	} else if a.TargetFrequencyHz < 0 {
		return fmt.Errorf("analysis.target_frequency_hz must be positive, got %v", a.TargetFrequencyHz)
	}
	return nil
}

func (g *GestureConfig) validate() error {
	if g.NumBaselineFrames < 1 {
		return fmt.Errorf("gesture.num_baseline_frames must be at least 1, got %d", g.NumBaselineFrames)
	}
	if g.NumDetectionFrames < 1 {
		return fmt.Errorf("gesture.num_detection_frames must be at least 1, got %d", g.NumDetectionFrames)
	}
	if g.SidebandWindowSize < 1 {
		return fmt.Errorf("gesture.sideband_window_size must be at least 1, got %d", g.SidebandWindowSize)
	}
	if g.SidebandGuardBins < 0 {
		return fmt.Errorf("gesture.sideband_guard_bins must not be negative, got %d", g.SidebandGuardBins)
	}
	if g.Coefficients.ReferenceHz <= 0 {
		return fmt.Errorf("gesture.coefficients.reference_hz must be positive, got %v", g.Coefficients.ReferenceHz)
	}
	return nil
}

func (t *TransportConfig) validate() error {
	if t.WebSocketEnabled && t.WebSocketAddress == "" {
		return errors.New("transport.websocket_address must be set when the WebSocket transport is enabled")
	}
	if t.UDPEnabled {
		if t.UDPTargetAddress == "" {
			return errors.New("transport.udp_target_address must be set when UDP is enabled")
		}
		if !strings.Contains(t.UDPTargetAddress, ":") {
			return fmt.Errorf("transport.udp_target_address '%s' appears invalid (missing port?)", t.UDPTargetAddress)
		}
		if t.UDPSendInterval <= 0 {
			return errors.New("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}
	return nil
}

// applyEnvOverrides applies ENV_* variables on top of the file values.
// Unparseable values are ignored.
func (cfg *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
			applog.Infof("configuration: overriding debug from env: %v", bVal)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		cfg.LogLevel = val
		applog.Infof("configuration: overriding log_level from env: %s", val)
	}
	// ENV_MODE
	if val, ok := os.LookupEnv("ENV_MODE"); ok {
		cfg.Mode = strings.ToLower(val)
		applog.Infof("configuration: overriding mode from env: %s", cfg.Mode)
	}
	// ENV_TARGET_FREQUENCY
	if val, ok := os.LookupEnv("ENV_TARGET_FREQUENCY"); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Analysis.TargetFrequencyHz = f
			applog.Infof("configuration: overriding analysis.target_frequency_hz from env: %v", f)
		}
	}
	// ENV_INPUT_FILE
	if val, ok := os.LookupEnv("ENV_INPUT_FILE"); ok {
		cfg.Audio.InputFile = val
		applog.Infof("configuration: overriding audio.input_file from env: %s", val)
	}

	// ENV_WS_{...}
	if val, ok := os.LookupEnv("ENV_WS_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.WebSocketEnabled = bVal
			applog.Infof("configuration: overriding transport.websocket_enabled from env: %v", bVal)
		}
	}
	if val, ok := os.LookupEnv("ENV_WS_ADDRESS"); ok {
		cfg.Transport.WebSocketAddress = val
		applog.Infof("configuration: overriding transport.websocket_address from env: %s", val)
	}

	// ENV_UDP_{...}
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.UDPEnabled = bVal
			applog.Infof("configuration: overriding transport.udp_enabled from env: %v", bVal)
		}
	}
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		cfg.Transport.UDPTargetAddress = val
		applog.Infof("configuration: overriding transport.udp_target_address from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Transport.UDPSendInterval = dur
			applog.Infof("configuration: overriding transport.udp_send_interval from env: %s", dur)
		}
	}
}
