// SPDX-License-Identifier: MIT
package spectrum

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc selects the window applied to the time frame before the
// transform.
type WindowFunc int

// Enum for available window functions. None leaves the frame untouched,
// which is what the tuned gesture thresholds expect.
const (
	None WindowFunc = iota
	BartlettHann
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
)

var windowNames = map[WindowFunc]string{
	None:            "none",
	BartlettHann:    "bartletthann",
	Blackman:        "blackman",
	BlackmanNuttall: "blackmannuttall",
	Hann:            "hann",
	Hamming:         "hamming",
	Lanczos:         "lanczos",
	Nuttall:         "nuttall",
}

func (w WindowFunc) String() string {
	if name, ok := windowNames[w]; ok {
		return name
	}
	return fmt.Sprintf("WindowFunc(%d)", int(w))
}

// ParseWindowFunc converts a name (case-insensitive) to a WindowFunc.
// An empty name means None. Unknown names return None and an error.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none", "rectangular":
		return None, nil
	case "bartletthann":
		return BartlettHann, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return None, fmt.Errorf("unknown FFT window function name: '%s'", name)
	}
}

// coefficients returns the window of length n, or nil for None.
func (w WindowFunc) coefficients(n int) []float64 {
	if w == None {
		return nil
	}
	// The gonum window functions scale the slice in place, so start from ones.
	coeffs := make([]float64, n)
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch w {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hann:
		window.Hann(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		return nil
	}
	return coeffs
}
