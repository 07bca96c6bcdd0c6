// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"

	"doppler/internal/spectrum"
)

// Gesture is the motion classification of the current frame.
type Gesture int

const (
	Neutral Gesture = iota
	Toward
	Away
)

func (g Gesture) String() string {
	switch g {
	case Neutral:
		return "neutral"
	case Toward:
		return "toward"
	case Away:
		return "away"
	default:
		return fmt.Sprintf("Gesture(%d)", int(g))
	}
}

// MarshalText encodes the gesture by name.
func (g Gesture) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// Phase is the calibration state of a GestureDetector.
type Phase int

const (
	CapturingBaseline Phase = iota
	Detecting
)

func (p Phase) String() string {
	switch p {
	case CapturingBaseline:
		return "capturing_baseline"
	case Detecting:
		return "detecting"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// GestureConfig holds the tunables of the gesture pipeline.
type GestureConfig struct {
	BaselineFrames  int
	DetectionFrames int
	Sideband        Sideband
	Coefficients    Coefficients
}

// DefaultGestureConfig returns the tuned defaults.
func DefaultGestureConfig() GestureConfig {
	return GestureConfig{
		BaselineFrames:  DefaultBaselineFrames,
		DetectionFrames: DefaultDetectionFrames,
		Sideband:        DefaultSideband(),
		Coefficients:    DefaultCoefficients(),
	}
}

// GestureDetector runs baseline calibration for a target tone and then
// classifies motion from the sidebands around it. A detector serves exactly
// one target bin at a time; Reset must be called whenever the tone changes.
type GestureDetector struct {
	cfg        GestureConfig
	calibrator *Calibrator
	classifier *Classifier
	profile    BaselineProfile
	phase      Phase
	gesture    Gesture
	targetBin  int
	targetHz   float64
}

// NewGestureDetector creates a detector in CapturingBaseline for targetBin.
func NewGestureDetector(cfg GestureConfig, targetBin int, targetHz float64) *GestureDetector {
	d := &GestureDetector{
		cfg:        cfg,
		calibrator: NewCalibrator(cfg.BaselineFrames, cfg.Coefficients),
		classifier: NewClassifier(cfg.DetectionFrames),
	}
	d.Reset(targetBin, targetHz)
	return d
}

// Process consumes one spectrum and returns the current gesture. While
// calibrating the gesture stays Neutral; the transition to Detecting happens
// on the frame that completes the baseline.
func (d *GestureDetector) Process(mag []float64) Gesture {
	left, right := d.cfg.Sideband.Maxima(mag, d.targetBin)

	switch d.phase {
	case CapturingBaseline:
		peak := spectrum.NoEnergy
		if d.targetBin >= 0 && d.targetBin < len(mag) {
			peak = spectrum.Clean(mag[d.targetBin])
		}
		if d.calibrator.Add(left, right, peak) {
			d.profile = d.calibrator.Profile(d.targetBin, d.targetHz)
			d.phase = Detecting
		}
		d.gesture = Neutral
	case Detecting:
		d.classifier.Push(left, right)
		d.gesture = d.classifier.Classify(d.profile)
	}
	return d.gesture
}

// Reset discards the baseline, thresholds and sideband history, retargets
// the detector and returns it to CapturingBaseline with a Neutral gesture.
func (d *GestureDetector) Reset(targetBin int, targetHz float64) {
	d.calibrator.Reset()
	d.classifier.Reset()
	d.profile = BaselineProfile{TargetBin: targetBin}
	d.phase = CapturingBaseline
	d.gesture = Neutral
	d.targetBin = targetBin
	d.targetHz = targetHz
}

// Phase returns the calibration phase.
func (d *GestureDetector) Phase() Phase { return d.phase }

// Gesture returns the most recent classification.
func (d *GestureDetector) Gesture() Gesture { return d.gesture }

// Profile returns the active baseline profile.
func (d *GestureDetector) Profile() BaselineProfile { return d.profile }

// TargetBin returns the bin of the emitted tone.
func (d *GestureDetector) TargetBin() int { return d.targetBin }

// TargetFrequency returns the emitted tone frequency in Hz.
func (d *GestureDetector) TargetFrequency() float64 { return d.targetHz }

// Calibrator exposes the baseline accumulator for inspection.
func (d *GestureDetector) Calibrator() *Calibrator { return d.calibrator }

// Classifier exposes the sideband rings for inspection.
func (d *GestureDetector) Classifier() *Classifier { return d.classifier }
