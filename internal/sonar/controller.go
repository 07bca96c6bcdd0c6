// SPDX-License-Identifier: MIT

/*
Package sonar ties capture, analysis and publication together.

Two contexts touch a Controller:
- The audio driver thread calls Capture, which only pushes into the ring
- The analysis goroutine calls Tick, which owns every other piece of state

ChangeFrequency and Snapshot may be called from any goroutine; the first is
serialized with Tick, the second only ever returns copies.
*/
package sonar

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"doppler/internal/analysis"
	"doppler/internal/audio"
	applog "doppler/internal/log"
	"doppler/internal/ringbuf"
	"doppler/internal/spectrum"
	"doppler/internal/transport"
)

var logger = applog.Named("sonar")

// FrequencySetter receives the new target whenever it changes. The tone
// generator implements it.
type FrequencySetter interface {
	SetFrequency(hz float64)
}

// Controller owns one analysis pipeline.
type Controller struct {
	settings Settings
	ring     *ringbuf.Ring
	analyzer *spectrum.Analyzer
	peaks    *analysis.PeakFinder
	detector *analysis.GestureDetector
	gate     *audio.Gate
	tone     FrequencySetter

	// Analysis state, guarded by mu.
	mu          sync.Mutex
	timeFrame   []float32
	magnitudes  []float64
	peakWindow  []float64
	peakBin     int
	targetHz    float64
	frequencies Frequencies
	levelDB     float64
	gated       bool

	// Published state, guarded by snapMu.
	snapMu   sync.RWMutex
	snapshot Snapshot
	sequence uint64

	sink atomic.Pointer[transportBox]

	ticks    atomic.Uint64
	skipped  atomic.Uint64
	resets   atomic.Uint64
	overruns atomic.Uint64

	now func() time.Time
}

type transportBox struct{ t transport.Transport }

// New builds a controller for s. tone may be nil when nothing is emitted.
func New(s Settings, tone FrequencySetter) (*Controller, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analysis settings: %w", err)
	}

	ring, err := ringbuf.New(s.BufferSize)
	if err != nil {
		return nil, err
	}
	analyzer, err := spectrum.NewAnalyzer(s.BufferSize, s.SampleRate, s.Window)
	if err != nil {
		return nil, err
	}
	targetBin := analyzer.BinForFrequency(s.TargetFrequency)

	c := &Controller{
		settings:    s,
		ring:        ring,
		analyzer:    analyzer,
		peaks:       analysis.NewPeakFinder(s.PeakFloorDB, analyzer.BinWidth()),
		detector:    analysis.NewGestureDetector(s.Gesture, targetBin, s.TargetFrequency),
		gate:        audio.NewGate(s.GateThreshold),
		tone:        tone,
		timeFrame:   make([]float32, s.BufferSize),
		magnitudes:  make([]float64, analyzer.Bins()),
		peakWindow:  make([]float64, s.PeakWindowSize),
		peakBin:     -1,
		targetHz:    s.TargetFrequency,
		frequencies: NoTones,
		levelDB:     audio.SilenceDB,
		now:         time.Now,
	}
	if tone != nil {
		tone.SetFrequency(s.TargetFrequency)
	}

	c.snapshot = Snapshot{
		PeakWindow: make([]float64, s.PeakWindowSize),
		Spectrum:   make([]float64, analyzer.Bins()),
		TimeDomain: make([]float32, s.BufferSize),
	}
	c.mu.Lock()
	c.publishLocked(false)
	c.mu.Unlock()

	logger.Infof("%s mode: frame %d @ %.0f Hz (bin width %.2f Hz), target %.1f Hz -> bin %d",
		s.Mode, s.BufferSize, s.SampleRate, analyzer.BinWidth(), s.TargetFrequency, targetBin)
	return c, nil
}

// Settings returns the settings the controller was built with. The target
// frequency is the initial one; see Snapshot for the current target.
func (c *Controller) Settings() Settings { return c.settings }

// SetTransport attaches a sink that receives a copy of every published
// snapshot. nil detaches.
func (c *Controller) SetTransport(t transport.Transport) {
	if t == nil {
		c.sink.Store(nil)
		return
	}
	c.sink.Store(&transportBox{t: t})
}

// Capture is the input callback. It only pushes the first channel into the
// ring and never blocks or allocates.
func (c *Controller) Capture(samples []float32, frames, channels int) {
	c.ring.Push(samples, frames, channels)
}

// Tick runs one analysis step. It returns false, publishing nothing, while
// fewer than BufferSize samples have been captured.
func (c *Controller) Tick() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ring.Snapshot(c.timeFrame); err != nil {
		c.skipped.Add(1)
		return false
	}
	if err := c.analyzer.Forward(c.timeFrame, c.magnitudes); err != nil {
		// Sizes are fixed at construction, so this is a programming error.
		logger.Errorf("transform failed: %v", err)
		c.skipped.Add(1)
		return false
	}

	c.levelDB = audio.LevelDB(audio.PeakAmplitude(c.timeFrame))
	c.gated = !c.gate.Open(c.timeFrame)

	c.process(c.magnitudes)
	c.ticks.Add(1)
	c.publishLocked(true)
	return true
}

// ProcessSpectrum runs the mode branch on an externally computed dB
// spectrum of BufferSize/2 bins and publishes the result. Non-finite values
// are treated as no energy.
func (c *Controller) ProcessSpectrum(mag []float64) error {
	if len(mag) != c.analyzer.Bins() {
		return fmt.Errorf("spectrum has %d bins, want %d", len(mag), c.analyzer.Bins())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, v := range mag {
		c.magnitudes[i] = spectrum.Clean(v)
	}
	c.process(c.magnitudes)
	c.ticks.Add(1)
	c.publishLocked(true)
	return nil
}

// process updates the mode-specific results from mag. Called with mu held.
func (c *Controller) process(mag []float64) {
	c.peakBin = analysis.PeakWindow(mag, c.peakWindow)

	switch c.settings.Mode {
	case ModeTone:
		first, second := c.peaks.DualTone(mag)
		c.frequencies = Frequencies{First: first, Second: second}
	default:
		c.detector.Process(mag)
		c.frequencies = NoTones
	}
}

// ChangeFrequency retargets the analysis and the emitted tone. A value
// outside (0, Nyquist) is rejected and nothing changes. Otherwise the
// baseline, thresholds and sideband history are discarded, calibration
// restarts, and the tone generator is updated before this returns.
func (c *Controller) ChangeFrequency(hz float64) error {
	if err := c.settings.checkFrequency(hz); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	bin := c.analyzer.BinForFrequency(hz)
	c.detector.Reset(bin, hz)
	c.targetHz = hz
	c.frequencies = NoTones
	if c.tone != nil {
		c.tone.SetFrequency(hz)
	}
	c.resets.Add(1)
	c.publishLocked(true)

	logger.Infof("target frequency changed to %.1f Hz (bin %d), recalibrating", hz, bin)
	return nil
}

// TargetFrequency returns the current target in Hz.
func (c *Controller) TargetFrequency() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.targetHz
}

// Snapshot returns a deep copy of the last published state.
func (c *Controller) Snapshot() Snapshot {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snapshot.Clone()
}

// NoteOverrun records ticks dropped by the scheduler.
func (c *Controller) NoteOverrun(missed uint64) {
	c.overruns.Add(missed)
}

// Stats returns the tick counters.
func (c *Controller) Stats() Stats {
	return Stats{
		Ticks:    c.ticks.Load(),
		Skipped:  c.skipped.Load(),
		Resets:   c.resets.Load(),
		Overruns: c.overruns.Load(),
	}
}

// publishLocked copies the analysis state into the published snapshot and
// forwards a copy to the transport. Called with mu held.
func (c *Controller) publishLocked(send bool) {
	c.snapMu.Lock()
	c.sequence++
	s := &c.snapshot
	s.Sequence = c.sequence
	s.Time = c.now()
	s.Mode = c.settings.Mode
	s.SampleRate = c.settings.SampleRate
	s.BinWidth = c.analyzer.BinWidth()
	s.TargetFrequency = c.targetHz
	s.TargetBin = c.detector.TargetBin()
	s.Phase = c.detector.Phase()
	s.Gesture = c.detector.Gesture()
	s.Profile = c.detector.Profile()
	s.Frequencies = c.frequencies
	s.InputLevelDB = c.levelDB
	s.Gated = c.gated
	s.PeakBin = c.peakBin
	copy(s.PeakWindow, c.peakWindow)
	copy(s.Spectrum, c.magnitudes)
	copy(s.TimeDomain, c.timeFrame)

	var out Snapshot
	box := c.sink.Load()
	if send && box != nil {
		out = s.Clone()
	}
	c.snapMu.Unlock()

	if box != nil && send {
		if err := box.t.Send(out); err != nil {
			logger.Warnf("publish failed: %v", err)
		}
	}
}
