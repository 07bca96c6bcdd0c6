// SPDX-License-Identifier: MIT
/*
Package ringbuf implements the capture-side sample store shared between the
audio driver callback and the periodic analysis tick.

Thread Safety:
- One producer (the driver callback) and any number of snapshot readers
- A CAS spinlock guards a bounded copy; no blocking mutex, no channels
- Push and Snapshot never allocate

Overflow drops the oldest samples. Capture must never backpressure onto the
driver, so there is no notion of unread data.
*/
package ringbuf

import (
	"errors"
	"runtime"
	"sync/atomic"
)

var (
	// ErrInsufficientData is returned by Snapshot until at least as many
	// samples as requested have been pushed. It is a startup transient.
	ErrInsufficientData = errors.New("ringbuf: insufficient data captured")

	// ErrSnapshotTooLarge is returned when the destination is longer than
	// the ring capacity.
	ErrSnapshotTooLarge = errors.New("ringbuf: snapshot larger than capacity")
)

// Ring is a fixed-capacity circular buffer of mono float32 samples.
type Ring struct {
	lock    atomic.Bool
	data    []float32
	head    int    // Next write position.
	written uint64 // Total samples ever pushed, saturating is not a concern.
}

// New creates a Ring holding up to capacity samples.
func New(capacity int) (*Ring, error) {
	if capacity < 1 {
		return nil, errors.New("ringbuf: capacity must be positive")
	}
	return &Ring{data: make([]float32, capacity)}, nil
}

func (r *Ring) acquire() {
	for !r.lock.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

func (r *Ring) release() {
	r.lock.Store(false)
}

// Push appends the first channel of each interleaved frame in samples.
// frames is clamped to what samples actually holds. Older data is
// overwritten once capacity is exceeded.
func (r *Ring) Push(samples []float32, frames, channels int) {
	if channels < 1 {
		channels = 1
	}
	if avail := len(samples) / channels; frames > avail {
		frames = avail
	}
	if frames <= 0 {
		return
	}

	r.acquire()
	capacity := len(r.data)

	// Only the newest capacity frames can survive the write.
	start := 0
	if frames > capacity {
		start = frames - capacity
	}

	if channels == 1 {
		src := samples[start:frames]
		n := copy(r.data[r.head:], src)
		if n < len(src) {
			copy(r.data, src[n:])
		}
		r.head = (r.head + len(src)) % capacity
	} else {
		head := r.head
		for i := start; i < frames; i++ {
			r.data[head] = samples[i*channels]
			head++
			if head == capacity {
				head = 0
			}
		}
		r.head = head
	}
	r.written += uint64(frames)
	r.release()
}

// Snapshot copies the most recent len(out) samples into out, oldest first.
// The ring is not modified. If fewer samples have ever been pushed, out is
// zero-filled and ErrInsufficientData is returned.
func (r *Ring) Snapshot(out []float32) error {
	n := len(out)
	if n > len(r.data) {
		clear(out)
		return ErrSnapshotTooLarge
	}

	r.acquire()
	if r.written < uint64(n) {
		r.release()
		clear(out)
		return ErrInsufficientData
	}

	capacity := len(r.data)
	start := r.head - n
	if start < 0 {
		start += capacity
	}
	k := copy(out, r.data[start:])
	if k < n {
		copy(out[k:], r.data[:n-k])
	}
	r.release()
	return nil
}

// Len returns the number of valid samples currently held.
func (r *Ring) Len() int {
	r.acquire()
	defer r.release()
	if r.written < uint64(len(r.data)) {
		return int(r.written)
	}
	return len(r.data)
}

// Capacity returns the fixed capacity in samples.
func (r *Ring) Capacity() int {
	return len(r.data)
}

// Written returns the total number of samples pushed since creation or the
// last Reset.
func (r *Ring) Written() uint64 {
	r.acquire()
	defer r.release()
	return r.written
}

// Reset discards all captured samples.
func (r *Ring) Reset() {
	r.acquire()
	clear(r.data)
	r.head = 0
	r.written = 0
	r.release()
}
