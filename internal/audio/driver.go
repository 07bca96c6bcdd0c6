// SPDX-License-Identifier: MIT

/*
Package audio owns the device side of the analyzer:
- Duplex capture and playback through PortAudio
- WAV file replay for offline runs
- The sine tone generator feeding the output
- WAV recording of the captured stream

Callbacks run on the driver's real-time thread. They must not block and must
not allocate; everything they touch is either atomic or pre-allocated.
*/
package audio

import (
	"errors"
	"sync"
	"sync/atomic"
)

// InputCallback receives interleaved captured samples.
type InputCallback func(samples []float32, frames, channels int)

// OutputCallback fills an interleaved playback buffer.
type OutputCallback func(buffer []float32, frames, channels int)

// Driver is an audio backend that can be started, stopped and fed callbacks.
// Registering a nil callback deregisters the previous one.
type Driver interface {
	RegisterInputCallback(InputCallback)
	RegisterOutputCallback(OutputCallback)
	Start() error
	Stop() error
	SampleRate() float64
	InputChannels() int
}

// ErrAlreadyBound is returned when a Handle is bound a second time.
var ErrAlreadyBound = errors.New("audio: handle already bound to a driver")

// Handle is a nullable reference to a Driver. Every method on a nil or
// unbound Handle is a no-op, so callers never need to check for a device.
type Handle struct {
	mu     sync.Mutex
	driver Driver
}

// Bind attaches d to the handle. A handle can be bound only once.
func (h *Handle) Bind(d Driver) error {
	if h == nil || d == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.driver != nil {
		return ErrAlreadyBound
	}
	h.driver = d
	return nil
}

// Bound reports whether a driver is attached.
func (h *Handle) Bound() bool {
	return h.get() != nil
}

func (h *Handle) get() Driver {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.driver
}

func (h *Handle) RegisterInputCallback(cb InputCallback) {
	if d := h.get(); d != nil {
		d.RegisterInputCallback(cb)
	}
}

func (h *Handle) RegisterOutputCallback(cb OutputCallback) {
	if d := h.get(); d != nil {
		d.RegisterOutputCallback(cb)
	}
}

func (h *Handle) Start() error {
	if d := h.get(); d != nil {
		return d.Start()
	}
	return nil
}

// Stop deregisters both callbacks, so the output falls silent, then stops
// the driver.
func (h *Handle) Stop() error {
	d := h.get()
	if d == nil {
		return nil
	}
	d.RegisterInputCallback(nil)
	d.RegisterOutputCallback(nil)
	return d.Stop()
}

// SampleRate returns the driver rate, or 0 when unbound.
func (h *Handle) SampleRate() float64 {
	if d := h.get(); d != nil {
		return d.SampleRate()
	}
	return 0
}

// InputChannels returns the driver's capture channel count, or 0 when unbound.
func (h *Handle) InputChannels() int {
	if d := h.get(); d != nil {
		return d.InputChannels()
	}
	return 0
}

// callbacks stores the registered callbacks for lock-free reads from the
// audio thread.
type callbacks struct {
	in  atomic.Pointer[InputCallback]
	out atomic.Pointer[OutputCallback]
}

func (c *callbacks) RegisterInputCallback(cb InputCallback) {
	if cb == nil {
		c.in.Store(nil)
		return
	}
	c.in.Store(&cb)
}

func (c *callbacks) RegisterOutputCallback(cb OutputCallback) {
	if cb == nil {
		c.out.Store(nil)
		return
	}
	c.out.Store(&cb)
}

func (c *callbacks) deliverInput(samples []float32, channels int) {
	if p := c.in.Load(); p != nil && channels > 0 {
		(*p)(samples, len(samples)/channels, channels)
	}
}

// renderOutput fills buffer from the output callback, or with silence when
// none is registered.
func (c *callbacks) renderOutput(buffer []float32, channels int) {
	if p := c.out.Load(); p != nil && channels > 0 {
		(*p)(buffer, len(buffer)/channels, channels)
		return
	}
	clear(buffer)
}
