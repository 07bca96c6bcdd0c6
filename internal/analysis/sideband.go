// SPDX-License-Identifier: MIT
package analysis

import (
	"doppler/internal/spectrum"
	"doppler/pkg/bitint"
)

// Defaults for the sideband windows either side of the emitted tone.
const (
	DefaultSidebandWindowSize = 5
	DefaultSidebandGuardBins  = 2
)

// Sideband describes where Doppler energy is measured relative to the target
// bin. GuardBins skips the bins next to the tone, which carry leakage from
// the tone itself.
type Sideband struct {
	WindowSize int
	GuardBins  int
}

// DefaultSideband returns the tuned window geometry.
func DefaultSideband() Sideband {
	return Sideband{WindowSize: DefaultSidebandWindowSize, GuardBins: DefaultSidebandGuardBins}
}

// Maxima returns the largest magnitude in
// [targetBin-WindowSize-GuardBins, targetBin-GuardBins] (left) and
// [targetBin+GuardBins, targetBin+WindowSize+GuardBins] (right). Both ranges
// are inclusive and clamped to the spectrum; a range that falls entirely
// outside it yields spectrum.NoEnergy.
func (s Sideband) Maxima(mag []float64, targetBin int) (left, right float64) {
	left = rangeMax(mag, targetBin-s.WindowSize-s.GuardBins, targetBin-s.GuardBins)
	right = rangeMax(mag, targetBin+s.GuardBins, targetBin+s.WindowSize+s.GuardBins)
	return left, right
}

func rangeMax(mag []float64, lo, hi int) float64 {
	n := len(mag)
	if n == 0 || hi < 0 || lo >= n || lo > hi {
		return spectrum.NoEnergy
	}
	lo = bitint.ClampIndex(lo, n)
	hi = bitint.ClampIndex(hi, n)

	best := spectrum.NoEnergy
	for _, v := range mag[lo : hi+1] {
		if v = spectrum.Clean(v); v > best {
			best = v
		}
	}
	return best
}
