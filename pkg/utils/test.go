// Package utils holds signal and spectrum fixtures shared by the package
// tests.
package utils

import (
	"math"
	"sync"
)

// MockTransport records everything sent to it instead of transmitting.
type MockTransport struct {
	mu     sync.Mutex
	Last   any
	Count  int
	Closed bool
}

// Send stores data for later inspection.
func (m *MockTransport) Send(data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Last = data
	m.Count++
	return nil
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// Sent returns the last payload and the number of sends so far.
func (m *MockTransport) Sent() (any, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Last, m.Count
}

// GenerateSineWave returns size samples of a sine at frequency Hz.
func GenerateSineWave(size int, sampleRate, frequency, amplitude float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(amplitude * math.Sin(2*math.Pi*frequency*t))
	}
	return buffer
}

// GenerateDualTone returns the sum of two sines.
func GenerateDualTone(size int, sampleRate, f1, a1, f2, a2 float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(a1*math.Sin(2*math.Pi*f1*t) + a2*math.Sin(2*math.Pi*f2*t))
	}
	return buffer
}

// FlatSpectrum returns bins magnitudes all set to level dB.
func FlatSpectrum(bins int, level float64) []float64 {
	s := make([]float64, bins)
	for i := range s {
		s[i] = level
	}
	return s
}

// FindPeakBin returns the index of the largest magnitude within
// [startBin, endBin], clamped to the slice.
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}

	return peakBin
}
