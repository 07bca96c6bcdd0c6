// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrAlreadyRecording is returned by Start while a recording is in progress.
var ErrAlreadyRecording = errors.New("already recording")

// recordQueueBlocks is the number of callback buffers that can wait for the
// writer goroutine before Write starts dropping frames.
const recordQueueBlocks = 64

type recordBlock struct {
	data []float32
	n    int
}

// Recorder writes the first channel of the captured stream to a mono PCM WAV
// file. Write has the InputCallback signature so it can sit directly on the
// capture path: it only copies into a preallocated block and queues it, while
// a writer goroutine does the encoding and file I/O.
type Recorder struct {
	sampleRate int
	bitDepth   int
	maxFrames  int
	scale      float64

	recording atomic.Bool
	frames    atomic.Int64 // Frames written to the file.
	dropped   atomic.Int64 // Frames lost while the queue was full.

	// Blocks circulate free -> pending -> free. Both channels hold every
	// block, so neither send can block.
	free    chan []float32
	pending chan recordBlock

	mu         sync.Mutex // Serializes Start and Stop.
	outputFile *os.File
	wavEncoder *wav.Encoder
	quit       chan struct{}
	done       chan struct{}
	writeErr   error            // First encoder error, set before done closes.
	sampleBuf  *audio.IntBuffer // Reusable buffer for format conversion, writer only.
}

// NewRecorder creates a Recorder for 16, 24 or 32 bit output. maxFrames is
// the largest callback buffer it will be handed; larger buffers are queued in
// pieces.
func NewRecorder(sampleRate, bitDepth, maxFrames int) (*Recorder, error) {
	switch bitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported recording bit depth %d (want 16, 24 or 32)", bitDepth)
	}
	if sampleRate <= 0 || maxFrames < 1 {
		return nil, fmt.Errorf("invalid recorder format: %d Hz, %d frames", sampleRate, maxFrames)
	}

	r := &Recorder{
		sampleRate: sampleRate,
		bitDepth:   bitDepth,
		maxFrames:  maxFrames,
		scale:      float64(int64(1)<<(bitDepth-1) - 1),
		free:       make(chan []float32, recordQueueBlocks),
		pending:    make(chan recordBlock, recordQueueBlocks),
		sampleBuf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
			Data:           make([]int, maxFrames),
			SourceBitDepth: bitDepth,
		},
	}
	for range recordQueueBlocks {
		r.free <- make([]float32, maxFrames)
	}
	return r, nil
}

// Start creates filename and begins recording.
func (r *Recorder) Start(filename string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording.Load() {
		return ErrAlreadyRecording
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create recording: %w", err)
	}
	r.recycleStale()
	r.outputFile = file
	r.wavEncoder = wav.NewEncoder(file, r.sampleRate, r.bitDepth, 1, 1)
	r.writeErr = nil
	r.quit = make(chan struct{})
	r.done = make(chan struct{})
	r.frames.Store(0)
	r.dropped.Store(0)
	go r.drain(r.wavEncoder, r.quit, r.done)
	r.recording.Store(true)

	engineLog.Infof("recording to %s (%d-bit, %d Hz)", filename, r.bitDepth, r.sampleRate)
	return nil
}

// recycleStale returns blocks queued by a Write that raced the last Stop.
func (r *Recorder) recycleStale() {
	for {
		select {
		case b := <-r.pending:
			r.free <- b.data
		default:
			return
		}
	}
}

// Recording reports whether a file is open.
func (r *Recorder) Recording() bool { return r.recording.Load() }

// Frames returns the number of frames written to the current recording.
func (r *Recorder) Frames() int64 { return r.frames.Load() }

// Dropped returns the number of frames discarded because the writer fell
// behind.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Write queues the first channel of samples for the writer goroutine. It
// never blocks or allocates; when no free block is left the remaining
// frames are dropped and counted. It is a no-op while not recording.
func (r *Recorder) Write(samples []float32, frames, channels int) {
	if !r.recording.Load() || channels < 1 {
		return
	}
	frames = min(frames, len(samples)/channels)

	for done := 0; done < frames; {
		var buf []float32
		select {
		case buf = <-r.free:
		default:
			r.dropped.Add(int64(frames - done))
			return
		}
		n := min(frames-done, len(buf))
		for i := range n {
			buf[i] = samples[(done+i)*channels]
		}
		r.pending <- recordBlock{data: buf, n: n}
		done += n
	}
}

// drain encodes queued blocks until quit closes, then flushes what is left.
func (r *Recorder) drain(enc *wav.Encoder, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case b := <-r.pending:
			r.encode(enc, b)
		case <-quit:
			for {
				select {
				case b := <-r.pending:
					r.encode(enc, b)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) encode(enc *wav.Encoder, b recordBlock) {
	defer func() { r.free <- b.data }()
	if r.writeErr != nil {
		return
	}
	n := r.convert(b.data, b.n, 1)
	if err := enc.Write(r.sampleBuf); err != nil {
		r.writeErr = fmt.Errorf("error writing to WAV file: %w", err)
		engineLog.Errorf("%v", r.writeErr)
		return
	}
	r.frames.Add(int64(n))
}

// convert fills sampleBuf with up to its capacity of frames and returns the
// number converted. Values outside [-1, 1] are clipped.
func (r *Recorder) convert(samples []float32, frames, channels int) int {
	n := min(frames, cap(r.sampleBuf.Data))
	data := r.sampleBuf.Data[:n]
	for i := range data {
		v := math.Max(-1, math.Min(1, float64(samples[i*channels])))
		data[i] = int(math.Round(v * r.scale))
	}
	r.sampleBuf.Data = data
	return n
}

// Stop waits for queued frames to be written, finalizes the WAV header and
// closes the file.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording.Swap(false) {
		return nil
	}
	close(r.quit)
	<-r.done

	errs := []error{r.writeErr}
	if r.wavEncoder != nil {
		if err := r.wavEncoder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to finalize WAV: %w", err))
		}
		r.wavEncoder = nil
	}
	if r.outputFile != nil {
		if err := r.outputFile.Close(); err != nil {
			errs = append(errs, err)
		}
		r.outputFile = nil
	}
	engineLog.Infof("recording stopped after %d frames (%d dropped)", r.frames.Load(), r.dropped.Load())
	return errors.Join(errs...)
}
