// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"sync/atomic"
)

const twoPi = 2 * math.Pi

// ToneGenerator produces a continuous sine wave. Fill runs on the audio
// thread; SetFrequency may be called from any goroutine and takes effect on
// the next sample without a phase discontinuity.
type ToneGenerator struct {
	sampleRate float64
	amplitude  float64
	freqBits   atomic.Uint64
	phase      float64 // Owned by the audio thread, in [0, 2π).
}

// NewToneGenerator creates a generator at frequency Hz. The amplitude is
// clamped to [0, 1].
func NewToneGenerator(sampleRate, frequency, amplitude float64) *ToneGenerator {
	g := &ToneGenerator{
		sampleRate: sampleRate,
		amplitude:  math.Max(0, math.Min(1, amplitude)),
	}
	g.SetFrequency(frequency)
	return g
}

// SetFrequency changes the tone frequency. The phase is never reset.
func (g *ToneGenerator) SetFrequency(hz float64) {
	g.freqBits.Store(math.Float64bits(hz))
}

// Frequency returns the current tone frequency in Hz.
func (g *ToneGenerator) Frequency() float64 {
	return math.Float64frombits(g.freqBits.Load())
}

// Phase returns the phase of the next sample. It is only meaningful when
// read from the goroutine that calls Fill.
func (g *ToneGenerator) Phase() float64 { return g.phase }

// Amplitude returns the peak amplitude.
func (g *ToneGenerator) Amplitude() float64 { return g.amplitude }

// SampleRate returns the rate the phase increment is computed for.
func (g *ToneGenerator) SampleRate() float64 { return g.sampleRate }

// Fill writes len(out)/channels frames of the tone into the interleaved
// buffer, the same sample on every channel. It does not allocate.
func (g *ToneGenerator) Fill(out []float32, channels int) {
	if channels < 1 || g.sampleRate <= 0 {
		clear(out)
		return
	}

	step := math.Mod(twoPi*g.Frequency()/g.sampleRate, twoPi)
	if step < 0 {
		step += twoPi
	}
	phase := g.phase
	frames := len(out) / channels
	for i := range frames {
		v := float32(g.amplitude * math.Sin(phase))
		frame := out[i*channels : (i+1)*channels]
		for c := range frame {
			frame[c] = v
		}
		phase += step
		if phase >= twoPi {
			phase -= twoPi
		}
	}
	// Trailing samples of a partial frame stay silent.
	clear(out[frames*channels:])
	g.phase = phase
}

// Callback adapts the generator to an OutputCallback.
func (g *ToneGenerator) Callback() OutputCallback {
	return func(buffer []float32, frames, channels int) {
		if n := frames * channels; n < len(buffer) {
			buffer = buffer[:n]
		}
		g.Fill(buffer, channels)
	}
}
