// SPDX-License-Identifier: MIT
package analysis

import (
	"doppler/internal/spectrum"
	"doppler/pkg/bitint"
)

// DefaultPeakWindowDivisor sizes the visualization window as a fraction of
// the analysis frame.
const DefaultPeakWindowDivisor = 10

// PeakWindow fills out with the bins around the strongest bin of mag, the
// maximum landing at len(out)/2. Positions that run past either end of the
// spectrum repeat the edge bin. It returns the index of the maximum.
func PeakWindow(mag, out []float64) int {
	if len(out) == 0 {
		return -1
	}
	if len(mag) == 0 {
		for i := range out {
			out[i] = spectrum.NoEnergy
		}
		return -1
	}

	center := 0
	best := spectrum.Clean(mag[0])
	for k := 1; k < len(mag); k++ {
		if v := spectrum.Clean(mag[k]); v > best {
			best = v
			center = k
		}
	}

	mid := len(out) / 2
	for i := range out {
		out[i] = spectrum.Clean(mag[bitint.ClampIndex(center+i-mid, len(mag))])
	}
	return center
}
