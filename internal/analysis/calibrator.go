// SPDX-License-Identifier: MIT
package analysis

import (
	"gonum.org/v1/gonum/stat"
)

// DefaultBaselineFrames is the number of spectra averaged into a baseline.
const DefaultBaselineFrames = 5

// Coefficients scale the gap between the tone and its sidebands into motion
// thresholds:
//
//	left  = (peak - leftBaseline)  * (LeftBase  - Scale*(ReferenceHz/targetHz)^2)
//	right = (peak - rightBaseline) * (RightBase - Scale*(ReferenceHz/targetHz)^2)
//
// The defaults were tuned for an ultrasonic carrier near 20 kHz on one
// device; other rates or buffer sizes need their own values.
type Coefficients struct {
	LeftBase    float64 `yaml:"left_base"`
	RightBase   float64 `yaml:"right_base"`
	Scale       float64 `yaml:"scale"`
	ReferenceHz float64 `yaml:"reference_hz"`
}

// DefaultCoefficients returns the tuned threshold coefficients.
func DefaultCoefficients() Coefficients {
	return Coefficients{
		LeftBase:    0.2003,
		RightBase:   0.2525,
		Scale:       0.00025,
		ReferenceHz: 20000,
	}
}

// Factors returns the left and right multipliers for targetHz.
func (c Coefficients) Factors(targetHz float64) (left, right float64) {
	ratio := c.ReferenceHz / targetHz
	correction := c.Scale * ratio * ratio
	return c.LeftBase - correction, c.RightBase - correction
}

// BaselineProfile is the no-motion reference captured for one target bin.
type BaselineProfile struct {
	TargetBin      int     `json:"target_bin"`
	LeftBaseline   float64 `json:"left_baseline"`
	RightBaseline  float64 `json:"right_baseline"`
	PeakBaseline   float64 `json:"peak_baseline"`
	LeftThreshold  float64 `json:"left_threshold"`
	RightThreshold float64 `json:"right_threshold"`
}

// Calibrator accumulates sideband maxima and tone magnitudes for a fixed
// number of frames.
type Calibrator struct {
	frames       int
	coefficients Coefficients
	left         []float64
	right        []float64
	peak         []float64
}

// NewCalibrator creates a Calibrator that completes after frames samples.
func NewCalibrator(frames int, coefficients Coefficients) *Calibrator {
	if frames < 1 {
		frames = DefaultBaselineFrames
	}
	return &Calibrator{
		frames:       frames,
		coefficients: coefficients,
		left:         make([]float64, 0, frames),
		right:        make([]float64, 0, frames),
		peak:         make([]float64, 0, frames),
	}
}

// Add records one frame. It returns true once exactly the configured number
// of frames has been accumulated; further frames are ignored.
func (c *Calibrator) Add(left, right, peak float64) bool {
	if c.Complete() {
		return true
	}
	c.left = append(c.left, left)
	c.right = append(c.right, right)
	c.peak = append(c.peak, peak)
	return c.Complete()
}

// Complete reports whether enough frames have been accumulated.
func (c *Calibrator) Complete() bool {
	return len(c.left) >= c.frames && len(c.right) >= c.frames
}

// Count returns the number of frames accumulated so far.
func (c *Calibrator) Count() int { return len(c.left) }

// Frames returns the number of frames required.
func (c *Calibrator) Frames() int { return c.frames }

// Profile computes the baselines and thresholds from the accumulated frames.
// It returns the zero profile (with TargetBin set) until Complete.
func (c *Calibrator) Profile(targetBin int, targetHz float64) BaselineProfile {
	p := BaselineProfile{TargetBin: targetBin}
	if !c.Complete() || targetHz <= 0 {
		return p
	}

	p.LeftBaseline = stat.Mean(c.left, nil)
	p.RightBaseline = stat.Mean(c.right, nil)
	p.PeakBaseline = stat.Mean(c.peak, nil)

	leftFactor, rightFactor := c.coefficients.Factors(targetHz)
	p.LeftThreshold = (p.PeakBaseline - p.LeftBaseline) * leftFactor
	p.RightThreshold = (p.PeakBaseline - p.RightBaseline) * rightFactor
	return p
}

// Reset discards all accumulated frames.
func (c *Calibrator) Reset() {
	c.left = c.left[:0]
	c.right = c.right[:0]
	c.peak = c.peak[:0]
}
