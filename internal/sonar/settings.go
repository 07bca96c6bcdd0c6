// SPDX-License-Identifier: MIT
package sonar

import (
	"errors"
	"fmt"
	"math"

	"doppler/internal/analysis"
	"doppler/internal/config"
	"doppler/internal/spectrum"
)

// Mode selects what a tick computes.
type Mode int

const (
	// ModeGesture emits a tone and classifies motion from its sidebands.
	ModeGesture Mode = iota
	// ModeTone estimates the two strongest tones in the input.
	ModeTone
)

func (m Mode) String() string {
	switch m {
	case ModeGesture:
		return config.ModeGesture
	case ModeTone:
		return config.ModeTone
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// MarshalText encodes the mode by name.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ParseMode converts a config mode name.
func ParseMode(name string) (Mode, error) {
	switch name {
	case config.ModeGesture, "":
		return ModeGesture, nil
	case config.ModeTone:
		return ModeTone, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", name)
	}
}

// ErrFrequencyOutOfRange is returned for a target outside (0, Nyquist).
var ErrFrequencyOutOfRange = errors.New("target frequency out of range")

// Settings configure a Controller.
type Settings struct {
	Mode            Mode
	BufferSize      int
	SampleRate      float64
	TargetFrequency float64
	PeakFloorDB     float64
	PeakWindowSize  int
	Window          spectrum.WindowFunc
	GateThreshold   float64
	Gesture         analysis.GestureConfig
}

// DefaultSettings returns gesture mode at 20 kHz with a 4096 sample frame.
func DefaultSettings() Settings {
	return Settings{
		Mode:            ModeGesture,
		BufferSize:      config.DefaultBufferSize,
		SampleRate:      config.DefaultSampleRate,
		TargetFrequency: config.DefaultGestureFrequency,
		PeakFloorDB:     analysis.DefaultPeakFloorDB,
		PeakWindowSize:  config.DefaultBufferSize / analysis.DefaultPeakWindowDivisor,
		Window:          spectrum.None,
		Gesture:         analysis.DefaultGestureConfig(),
	}
}

// FromConfig derives Settings from a validated configuration. sampleRate is
// the rate of the bound driver, which may differ from the configured one
// when replaying a file.
func FromConfig(cfg *config.Config, sampleRate float64) (Settings, error) {
	mode, err := ParseMode(cfg.Mode)
	if err != nil {
		return Settings{}, err
	}
	window, err := spectrum.ParseWindowFunc(cfg.Analysis.FFTWindow)
	if err != nil {
		return Settings{}, err
	}
	s := Settings{
		Mode:            mode,
		BufferSize:      cfg.Analysis.BufferSize,
		SampleRate:      sampleRate,
		TargetFrequency: cfg.TargetFrequency(),
		PeakFloorDB:     cfg.Analysis.PeakFloorDB,
		PeakWindowSize:  cfg.PeakWindowSize(),
		Window:          window,
		GateThreshold:   cfg.Analysis.GateThreshold,
		Gesture:         cfg.GestureSettings(),
	}
	return s, s.Validate()
}

// Nyquist returns half the sample rate.
func (s Settings) Nyquist() float64 { return s.SampleRate / 2 }

// Validate rejects settings the analysis cannot run with.
func (s Settings) Validate() error {
	if s.BufferSize < spectrum.MinSize || s.BufferSize%2 != 0 {
		return fmt.Errorf("buffer size must be even and at least %d, got %d", spectrum.MinSize, s.BufferSize)
	}
	if !(s.SampleRate > 0) {
		return fmt.Errorf("sample rate must be positive, got %v", s.SampleRate)
	}
	if err := s.checkFrequency(s.TargetFrequency); err != nil {
		return err
	}
	if s.PeakWindowSize < 0 {
		return fmt.Errorf("peak window size must not be negative, got %d", s.PeakWindowSize)
	}
	if s.Gesture.BaselineFrames < 1 || s.Gesture.DetectionFrames < 1 {
		return fmt.Errorf("gesture frame counts must be at least 1, got %d baseline / %d detection",
			s.Gesture.BaselineFrames, s.Gesture.DetectionFrames)
	}
	return nil
}

func (s Settings) checkFrequency(hz float64) error {
	if math.IsNaN(hz) || hz <= 0 || hz >= s.Nyquist() {
		return fmt.Errorf("%w: %v Hz (Nyquist %v Hz)", ErrFrequencyOutOfRange, hz, s.Nyquist())
	}
	return nil
}
