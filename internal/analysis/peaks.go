// SPDX-License-Identifier: MIT
package analysis

import (
	"math"

	"doppler/internal/spectrum"
)

// Absent marks a tone frequency that was not detected.
const Absent = -1.0

// DefaultPeakFloorDB is the magnitude a bin must exceed to count as a peak.
const DefaultPeakFloorDB = 5.0

// The local-maximum window is six bins wide with the candidate at offset 3.
// The asymmetry is part of the tuned behaviour: a plateau is claimed by its
// leftmost bin only.
const (
	peakWindowWidth  = 6
	peakWindowOffset = 3
)

// flatTopEpsilon bounds the parabola denominator below which no sub-bin
// correction is applied.
const flatTopEpsilon = 1e-12

// Peak is a detected spectral maximum.
type Peak struct {
	Bin       int     `json:"bin"`
	Frequency float64 `json:"frequency_hz"` // Interpolated frequency.
	Magnitude float64 `json:"magnitude_db"`
}

// PeakFinder detects local maxima in dB spectra and estimates up to two tone
// frequencies. The candidate slice is reused between calls, so a PeakFinder
// belongs to a single goroutine.
type PeakFinder struct {
	floorDB    float64
	binWidth   float64
	candidates []Peak
}

// NewPeakFinder creates a finder for spectra whose bins are binWidth Hz apart.
func NewPeakFinder(floorDB, binWidth float64) *PeakFinder {
	return &PeakFinder{
		floorDB:    floorDB,
		binWidth:   binWidth,
		candidates: make([]Peak, 0, 64),
	}
}

// Floor returns the magnitude floor in dB.
func (f *PeakFinder) Floor() float64 { return f.floorDB }

// Candidates scans bins [1, len-6] and returns every bin i+3 that exceeds the
// floor and is the first maximum of the window [i, i+5]. The returned slice
// is only valid until the next call.
func (f *PeakFinder) Candidates(mag []float64) []Peak {
	f.candidates = f.candidates[:0]
	for i := 1; i+peakWindowWidth-1 < len(mag); i++ {
		p := i + peakWindowOffset
		m := spectrum.Clean(mag[p])
		if m <= f.floorDB {
			continue
		}
		if firstMaxOffset(mag[i:i+peakWindowWidth]) != peakWindowOffset {
			continue
		}
		f.candidates = append(f.candidates, Peak{
			Bin:       p,
			Frequency: Interpolate(mag, p, f.binWidth),
			Magnitude: m,
		})
	}
	return f.candidates
}

// DualTone returns the refined frequencies of the two strongest candidates,
// larger magnitude first. Missing tones are reported as Absent.
func (f *PeakFinder) DualTone(mag []float64) (first, second float64) {
	best, next := -1, -1
	candidates := f.Candidates(mag)
	for i, c := range candidates {
		switch {
		case best < 0 || c.Magnitude > candidates[best].Magnitude:
			next = best
			best = i
		case next < 0 || c.Magnitude > candidates[next].Magnitude:
			next = i
		}
	}

	first, second = Absent, Absent
	if best >= 0 {
		first = candidates[best].Frequency
	}
	if next >= 0 {
		second = candidates[next].Frequency
	}
	return first, second
}

// Interpolate refines the frequency of bin p by fitting a parabola through
// p-1, p and p+1. The correction never exceeds half a bin; flat tops and
// bins without two neighbours get the coarse frequency.
func Interpolate(mag []float64, p int, binWidth float64) float64 {
	coarse := binWidth * float64(p)
	if p < 1 || p+1 >= len(mag) {
		return coarse
	}
	return coarse + InterpolationOffset(mag[p-1], mag[p], mag[p+1])*binWidth*0.5
}

// InterpolationOffset returns the parabolic correction term in [-1, 1] for
// the three magnitudes around a peak.
func InterpolationOffset(left, center, right float64) float64 {
	left, center, right = spectrum.Clean(left), spectrum.Clean(center), spectrum.Clean(right)
	denominator := right - 2*center + left
	if math.Abs(denominator) < flatTopEpsilon {
		return 0
	}
	correction := (left - right) / denominator
	switch {
	case math.IsNaN(correction) || math.IsInf(correction, 0):
		return 0
	case correction > 1:
		return 1
	case correction < -1:
		return -1
	}
	return correction
}

// firstMaxOffset returns the index of the first largest value in window.
func firstMaxOffset(window []float64) int {
	idx := 0
	best := spectrum.Clean(window[0])
	for i := 1; i < len(window); i++ {
		if v := spectrum.Clean(window[i]); v > best {
			best = v
			idx = i
		}
	}
	return idx
}
