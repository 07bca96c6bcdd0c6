// SPDX-License-Identifier: MIT
/*
Package spectrum turns a time-domain analysis frame into a dB magnitude
spectrum of half its length.

Bin k of the output corresponds to k * sampleRate / size Hz. Bins with no
energy (log of zero) are reported as NoEnergy rather than -Inf, so consumers
never see NaN or infinities coming out of the analyzer.
*/
package spectrum

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// NoEnergy is the level reported for bins that carry no energy at all.
const NoEnergy = -240.0

// MinSize is the smallest supported analysis frame.
const MinSize = 64

var errFrameSize = errors.New("spectrum: frame length does not match analyzer size")

// Clean maps NaN, -Inf and anything below NoEnergy to NoEnergy. +Inf is
// clamped to the largest finite float64. Every consumer of a spectral frame
// reads magnitudes through Clean.
func Clean(db float64) float64 {
	switch {
	case math.IsNaN(db), db < NoEnergy:
		return NoEnergy
	case math.IsInf(db, 1):
		return math.MaxFloat64
	}
	return db
}

// Analyzer holds a reusable gonum FFT plan and the pre-allocated buffers for
// one transform size. It is not safe for concurrent use; the analysis tick
// owns it.
type Analyzer struct {
	size       int
	sampleRate float64
	windowType WindowFunc
	fft        *fourier.FFT
	input      []float64    // Windowed input as float64.
	coeffs     []complex128 // FFT output, size/2 + 1 values.
	window     []float64    // nil when no window is applied.
}

// NewAnalyzer creates an Analyzer for frames of size samples. size must be
// even and at least MinSize; a power of two is fastest but not required.
func NewAnalyzer(size int, sampleRate float64, w WindowFunc) (*Analyzer, error) {
	if size < MinSize || size%2 != 0 {
		return nil, fmt.Errorf("spectrum: frame size must be even and >= %d, got %d", MinSize, size)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("spectrum: sample rate must be positive, got %f", sampleRate)
	}
	return &Analyzer{
		size:       size,
		sampleRate: sampleRate,
		windowType: w,
		fft:        fourier.NewFFT(size),
		input:      make([]float64, size),
		coeffs:     make([]complex128, size/2+1),
		window:     w.coefficients(size),
	}, nil
}

// Forward transforms timeFrame (length Size) into out (length Size/2) as dB
// magnitudes, 20*log10(|X_k|). The Nyquist coefficient is dropped. Forward
// does not allocate.
func (a *Analyzer) Forward(timeFrame []float32, out []float64) error {
	if len(timeFrame) != a.size || len(out) != a.size/2 {
		return errFrameSize
	}

	if a.window == nil {
		for i, v := range timeFrame {
			a.input[i] = float64(v)
		}
	} else {
		for i, v := range timeFrame {
			a.input[i] = float64(v) * a.window[i]
		}
	}

	a.fft.Coefficients(a.coeffs, a.input)
	for k := range out {
		out[k] = Clean(20 * math.Log10(cmplx.Abs(a.coeffs[k])))
	}
	return nil
}

// Size returns the transform size in samples.
func (a *Analyzer) Size() int { return a.size }

// SampleRate returns the sample rate in Hz.
func (a *Analyzer) SampleRate() float64 { return a.sampleRate }

// Window returns the configured window function.
func (a *Analyzer) Window() WindowFunc { return a.windowType }

// Bins returns the length of the spectra produced by Forward.
func (a *Analyzer) Bins() int { return a.size / 2 }

// BinWidth returns the frequency spacing between bins in Hz.
func (a *Analyzer) BinWidth() float64 { return BinWidth(a.size, a.sampleRate) }

// FrequencyForBin returns the frequency of bin k in Hz, or 0 when k is out of
// range.
func (a *Analyzer) FrequencyForBin(k int) float64 {
	if k < 0 || k >= a.Bins() {
		return 0
	}
	return float64(k) * a.BinWidth()
}

// BinForFrequency returns the nearest bin for hz.
func (a *Analyzer) BinForFrequency(hz float64) int {
	return BinForFrequency(hz, a.size, a.sampleRate)
}

// BinWidth returns sampleRate / size.
func BinWidth(size int, sampleRate float64) float64 {
	return sampleRate / float64(size)
}

// BinForFrequency returns round(hz * size / sampleRate).
func BinForFrequency(hz float64, size int, sampleRate float64) int {
	return int(math.Round(hz * float64(size) / sampleRate))
}
