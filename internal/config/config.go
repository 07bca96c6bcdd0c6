// SPDX-License-Identifier: MIT
package config

import (
	"time"

	"doppler/internal/analysis"
)

// Core configuration constants that define the boundaries and defaults
// for the analyzer.
const (
	ModeGesture = "gesture"
	ModeTone    = "tone"

	DefaultMode              = ModeGesture
	DefaultDeviceID          = MinDeviceID // System default device
	DefaultSampleRate        = 44100
	DefaultFramesPerBuffer   = 512
	DefaultBufferSize        = 4096
	DefaultTickRateHz        = 20
	DefaultGestureFrequency  = 20000 // Near-ultrasonic carrier
	DefaultToneFrequency     = 1000
	DefaultToneAmplitude     = 0.5
	DefaultRecordingBitDepth = 16
	DefaultWebSocketAddress  = ":8080"
	DefaultUDPTargetAddress  = "127.0.0.1:9090"
	DefaultUDPSendInterval   = 50 * time.Millisecond

	// Hardware and processing limits
	MinDeviceID   = -1 // -1 represents system default device
	MinSampleRate = 8000
	MaxSampleRate = 192000
	MaxTickRateHz = 200
)

// Default returns the built-in configuration used when no file is present.
func Default() *Config {
	return &Config{
		Mode:     DefaultMode,
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:     DefaultDeviceID,
			OutputDevice:    DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			InputChannels:   1,
			OutputChannels:  1,
			Realtime:        true,
		},
		Analysis: AnalysisConfig{
			BufferSize:        DefaultBufferSize,
			TickRateHz:        DefaultTickRateHz,
			PeakFloorDB:       analysis.DefaultPeakFloorDB,
			PeakWindowDivisor: analysis.DefaultPeakWindowDivisor,
			FFTWindow:         "none",
			GateThreshold:     0.001,
		},
		Gesture: GestureConfig{
			NumBaselineFrames:  analysis.DefaultBaselineFrames,
			NumDetectionFrames: analysis.DefaultDetectionFrames,
			SidebandWindowSize: analysis.DefaultSidebandWindowSize,
			SidebandGuardBins:  analysis.DefaultSidebandGuardBins,
			Coefficients:       analysis.DefaultCoefficients(),
		},
		Tone: ToneConfig{
			Enabled:   true,
			Amplitude: DefaultToneAmplitude,
		},
		Recording: RecordingConfig{
			OutputDir: "./recordings",
			BitDepth:  DefaultRecordingBitDepth,
		},
		Transport: TransportConfig{
			WebSocketAddress: DefaultWebSocketAddress,
			UDPTargetAddress: DefaultUDPTargetAddress,
			UDPSendInterval:  DefaultUDPSendInterval,
		},
	}
}

// TargetFrequency returns the configured target, or the mode's default
// when unset.
func (c *Config) TargetFrequency() float64 {
	if c.Analysis.TargetFrequencyHz > 0 {
		return c.Analysis.TargetFrequencyHz
	}
	if c.Mode == ModeTone {
		return DefaultToneFrequency
	}
	return DefaultGestureFrequency
}

// TickInterval converts the analysis tick rate into a period.
func (c *Config) TickInterval() time.Duration {
	if c.Analysis.TickRateHz <= 0 {
		return time.Second / DefaultTickRateHz
	}
	return time.Duration(float64(time.Second) / c.Analysis.TickRateHz)
}

// PeakWindowSize is the number of bins in the visualization window.
func (c *Config) PeakWindowSize() int {
	if c.Analysis.PeakWindowDivisor < 1 {
		return c.Analysis.BufferSize / analysis.DefaultPeakWindowDivisor
	}
	return c.Analysis.BufferSize / c.Analysis.PeakWindowDivisor
}

// GestureSettings converts the gesture section into detector settings.
func (c *Config) GestureSettings() analysis.GestureConfig {
	g := c.Gesture
	return analysis.GestureConfig{
		BaselineFrames:  g.NumBaselineFrames,
		DetectionFrames: g.NumDetectionFrames,
		Sideband: analysis.Sideband{
			WindowSize: g.SidebandWindowSize,
			GuardBins:  g.SidebandGuardBins,
		},
		Coefficients: g.Coefficients,
	}
}
