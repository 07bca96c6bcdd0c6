// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg.Mode != ModeGesture || cfg.Analysis.BufferSize != DefaultBufferSize {
		t.Errorf("expected defaults, got mode=%q buffer=%d", cfg.Mode, cfg.Analysis.BufferSize)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil || !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("expected read error for missing file, got %v", err)
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Errorf("expected unmarshal error, got %v", err)
	}
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
mode: tone
analysis:
  buffer_size: 8000
  tick_rate_hz: 10
  peak_floor_db: -1
gesture:
  sideband_window_size: 6
  coefficients:
    left_base: 0.3
transport:
  udp_enabled: true
  udp_send_interval: 100ms
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Mode != ModeTone || cfg.TargetFrequency() != DefaultToneFrequency {
		t.Errorf("mode=%q target=%v", cfg.Mode, cfg.TargetFrequency())
	}
	if cfg.Analysis.BufferSize != 8000 || cfg.Analysis.PeakFloorDB != -1 {
		t.Errorf("analysis = %+v", cfg.Analysis)
	}
	if cfg.TickInterval() != 100*time.Millisecond {
		t.Errorf("TickInterval = %s", cfg.TickInterval())
	}
	if cfg.PeakWindowSize() != 800 {
		t.Errorf("PeakWindowSize = %d, want 800", cfg.PeakWindowSize())
	}

	g := cfg.GestureSettings()
	if g.Sideband.WindowSize != 6 || g.Sideband.GuardBins != 2 {
		t.Errorf("sideband = %+v", g.Sideband)
	}
	// Untouched coefficients keep their defaults.
	if g.Coefficients.LeftBase != 0.3 || g.Coefficients.RightBase != 0.2525 || g.Coefficients.ReferenceHz != 20000 {
		t.Errorf("coefficients = %+v", g.Coefficients)
	}
	if !cfg.Transport.UDPEnabled || cfg.Transport.UDPSendInterval != 100*time.Millisecond {
		t.Errorf("transport = %+v", cfg.Transport)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
		substr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown mode", func(c *Config) { c.Mode = "radar" }, "mode must be"},
		{"bad log level", func(c *Config) { c.LogLevel = "chatty" }, "log_level"},
		{"odd buffer", func(c *Config) { c.Analysis.BufferSize = 4095 }, "buffer_size must be even"},
		{"tiny buffer", func(c *Config) { c.Analysis.BufferSize = 32 }, "buffer_size must be even"},
		{"non power of two is fine", func(c *Config) { c.Analysis.BufferSize = 8000 }, ""},
		{"target at nyquist", func(c *Config) { c.Analysis.TargetFrequencyHz = 22050 }, "target_frequency_hz"},
		{"target above nyquist", func(c *Config) { c.Analysis.TargetFrequencyHz = 30000 }, "target_frequency_hz"},
		{"zero tick rate", func(c *Config) { c.Analysis.TickRateHz = 0 }, "tick_rate_hz"},
		{"bad window", func(c *Config) { c.Analysis.FFTWindow = "kaiser" }, "fft_window"},
		{"zero divisor", func(c *Config) { c.Analysis.PeakWindowDivisor = 0 }, "peak_window_divisor"},
		{"gate above full scale", func(c *Config) { c.Analysis.GateThreshold = 2 }, "gate_threshold"},
		{"no baseline frames", func(c *Config) { c.Gesture.NumBaselineFrames = 0 }, "num_baseline_frames"},
		{"no detection frames", func(c *Config) { c.Gesture.NumDetectionFrames = 0 }, "num_detection_frames"},
		{"negative guard", func(c *Config) { c.Gesture.SidebandGuardBins = -1 }, "sideband_guard_bins"},
		{"zero reference", func(c *Config) { c.Gesture.Coefficients.ReferenceHz = 0 }, "reference_hz"},
		{"loud tone", func(c *Config) { c.Tone.Amplitude = 1.5 }, "tone.amplitude"},
		{"gesture without output", func(c *Config) { c.Audio.OutputChannels = 0 }, "output_channels"},
		{"tone mode without output", func(c *Config) { c.Mode = ModeTone; c.Audio.OutputChannels = 0 }, ""},
		{"low sample rate", func(c *Config) { c.Audio.SampleRate = 4000 }, "sample_rate"},
		{"no input channels", func(c *Config) { c.Audio.InputChannels = 0 }, "input_channels"},
		{"bad device", func(c *Config) { c.Audio.InputDevice = -3 }, "device IDs"},
		{"bad bit depth", func(c *Config) { c.Recording.Enabled = true; c.Recording.BitDepth = 12 }, "bit_depth"},
		{"udp missing port", func(c *Config) {
			c.Transport.UDPEnabled = true
			c.Transport.UDPTargetAddress = "localhost"
		}, "missing port"},
		{"udp zero interval", func(c *Config) {
			c.Transport.UDPEnabled = true
			c.Transport.UDPSendInterval = 0
		}, "udp_send_interval"},
		{"websocket without address", func(c *Config) {
			c.Transport.WebSocketEnabled = true
			c.Transport.WebSocketAddress = ""
		}, "websocket_address"},
		{"missing input file", func(c *Config) { c.Audio.InputFile = "/nonexistent/capture.wav" }, "input_file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.substr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.substr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.substr)
			}
		})
	}
}

func TestValidate_InputFileSkipsDeviceChecks(t *testing.T) {
	t.Parallel()
	wav := filepath.Join(t.TempDir(), "capture.wav")
	if err := os.WriteFile(wav, []byte("RIFF"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	cfg.Audio.InputFile = wav
	cfg.Audio.SampleRate = 0
	cfg.Audio.OutputChannels = 0
	cfg.Analysis.TargetFrequencyHz = 30000
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("ENV_DEBUG", "true")
	t.Setenv("ENV_LOG_LEVEL", "warn")
	t.Setenv("ENV_MODE", "TONE")
	t.Setenv("ENV_TARGET_FREQUENCY", "330")
	t.Setenv("ENV_WS_ENABLED", "1")
	t.Setenv("ENV_WS_ADDRESS", ":9999")
	t.Setenv("ENV_UDP_ENABLED", "true")
	t.Setenv("ENV_UDP_TARGET_ADDRESS", "10.0.0.1:7000")
	t.Setenv("ENV_UDP_SEND_INTERVAL", "20ms")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if !cfg.Debug || cfg.LogLevel != "warn" || cfg.Mode != ModeTone {
		t.Errorf("debug=%v level=%q mode=%q", cfg.Debug, cfg.LogLevel, cfg.Mode)
	}
	if cfg.TargetFrequency() != 330 {
		t.Errorf("TargetFrequency = %v, want 330", cfg.TargetFrequency())
	}
	tr := cfg.Transport
	if !tr.WebSocketEnabled || tr.WebSocketAddress != ":9999" {
		t.Errorf("websocket = %v %q", tr.WebSocketEnabled, tr.WebSocketAddress)
	}
	if !tr.UDPEnabled || tr.UDPTargetAddress != "10.0.0.1:7000" || tr.UDPSendInterval != 20*time.Millisecond {
		t.Errorf("udp = %+v", tr)
	}
}

func TestApplyEnvOverrides_IgnoresGarbage(t *testing.T) {
	t.Setenv("ENV_DEBUG", "maybe")
	t.Setenv("ENV_UDP_SEND_INTERVAL", "soon")

	cfg := Default()
	cfg.applyEnvOverrides()
	if cfg.Debug || cfg.Transport.UDPSendInterval != DefaultUDPSendInterval {
		t.Errorf("garbage env values were applied: %+v", cfg)
	}
}
