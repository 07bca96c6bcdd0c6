// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"sync/atomic"
)

// SilenceDB is the level reported for a buffer with no signal at all.
const SilenceDB = -120.0

// DefaultGateThreshold is ~0.1% of full scale.
const DefaultGateThreshold = 0.001

// Gate flags buffers whose peak amplitude does not exceed a threshold. It
// does not alter the signal; the analysis still runs on closed frames, and
// the flag is reported alongside the results.
type Gate struct {
	threshold atomic.Uint64
}

// NewGate creates a Gate with threshold in [0, 1] of full scale.
func NewGate(threshold float64) *Gate {
	g := &Gate{}
	g.SetThreshold(threshold)
	return g
}

// SetThreshold adjusts the gate threshold.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed.
func (g *Gate) SetThreshold(threshold float64) {
	threshold = math.Max(0, math.Min(1, threshold))
	g.threshold.Store(math.Float64bits(threshold))
}

// Threshold returns the current threshold.
func (g *Gate) Threshold() float64 {
	return math.Float64frombits(g.threshold.Load())
}

// Open reports whether the peak of samples exceeds the threshold.
func (g *Gate) Open(samples []float32) bool {
	return float64(PeakAmplitude(samples)) > g.Threshold()
}

// PeakAmplitude returns the largest absolute sample value.
func PeakAmplitude(samples []float32) float32 {
	var peak float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}

// LevelDB converts a linear peak to dBFS, floored at SilenceDB.
func LevelDB(peak float32) float64 {
	if peak <= 0 || math.IsNaN(float64(peak)) {
		return SilenceDB
	}
	return math.Max(SilenceDB, 20*math.Log10(float64(peak)))
}
