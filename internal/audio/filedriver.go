// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"
)

// FileConfig configures WAV replay.
type FileConfig struct {
	Path            string
	FramesPerBuffer int
	OutputChannels  int  // Size of the discarded output buffer handed to the output callback.
	Realtime        bool // Pace buffers at the file's sample rate; otherwise replay as fast as possible.
	Loop            bool
}

// FileDriver replays a decoded WAV file through the input callback, buffer by
// buffer, as if it were a live device. Output callbacks render into a scratch
// buffer that is discarded, so generators advance exactly as they would live.
type FileDriver struct {
	callbacks

	config     FileConfig
	samples    []float32 // Interleaved, normalized to [-1, 1].
	channels   int
	sampleRate float64
	scratch    []float32

	mu       sync.Mutex
	doneChan chan struct{}
	finished chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

var _ Driver = (*FileDriver)(nil)

// NewFileDriver decodes cfg.Path up front.
func NewFileDriver(cfg FileConfig) (*FileDriver, error) {
	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	samples, channels, sampleRate, err := DecodeWAV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Path, err)
	}
	return newFileDriver(cfg, samples, channels, sampleRate)
}

func newFileDriver(cfg FileConfig, samples []float32, channels int, sampleRate float64) (*FileDriver, error) {
	if cfg.FramesPerBuffer < 1 {
		return nil, fmt.Errorf("frames per buffer must be at least 1, got %d", cfg.FramesPerBuffer)
	}
	if channels < 1 || len(samples) < channels {
		return nil, errors.New("input file contains no audio frames")
	}
	if cfg.OutputChannels < 1 {
		cfg.OutputChannels = 1
	}
	return &FileDriver{
		config:     cfg,
		samples:    samples,
		channels:   channels,
		sampleRate: sampleRate,
		scratch:    make([]float32, cfg.FramesPerBuffer*cfg.OutputChannels),
	}, nil
}

// DecodeWAV reads a PCM WAV stream and returns its interleaved samples scaled
// to [-1, 1].
func DecodeWAV(r io.ReadSeeker) (samples []float32, channels int, sampleRate float64, err error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, 0, errors.New("not a valid WAV file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to decode WAV data: %w", err)
	}

	depth := buf.SourceBitDepth
	if depth == 0 {
		depth = int(dec.BitDepth)
	}
	if depth < 8 || depth > 32 {
		return nil, 0, 0, fmt.Errorf("unsupported bit depth %d", depth)
	}
	scale := float32(int64(1) << (depth - 1))
	// 8-bit PCM is unsigned with silence at 128.
	var offset float32
	if depth == 8 {
		offset = 128
	}

	samples = make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = (float32(v) - offset) / scale
	}
	return samples, buf.Format.NumChannels, float64(buf.Format.SampleRate), nil
}

func (d *FileDriver) SampleRate() float64 { return d.sampleRate }

func (d *FileDriver) InputChannels() int { return d.channels }

// Frames returns the number of frames in the file.
func (d *FileDriver) Frames() int { return len(d.samples) / d.channels }

// Start begins replay in a new goroutine. Starting a running driver is a no-op.
func (d *FileDriver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doneChan != nil {
		return nil
	}

	d.doneChan = make(chan struct{})
	d.finished = make(chan struct{})
	d.stopOnce = sync.Once{}

	done, finished := d.doneChan, d.finished
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(finished)
		d.replay(done)
	}()
	engineLog.Infof("replaying %s (%d frames, %d channels @ %.0f Hz)",
		d.config.Path, d.Frames(), d.channels, d.sampleRate)
	return nil
}

// Done is closed when replay ends, either because the file ran out without
// looping or because Stop was called. It is nil before the first Start.
func (d *FileDriver) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.finished
}

// Stop ends replay and waits for the replay goroutine to exit.
func (d *FileDriver) Stop() error {
	d.mu.Lock()
	if d.doneChan == nil {
		d.mu.Unlock()
		return nil
	}
	d.stopOnce.Do(func() { close(d.doneChan) })
	d.doneChan = nil
	d.mu.Unlock()

	d.wg.Wait()
	return nil
}

func (d *FileDriver) replay(done <-chan struct{}) {
	var tick <-chan time.Time
	if d.config.Realtime && d.sampleRate > 0 {
		period := time.Duration(float64(d.config.FramesPerBuffer) / d.sampleRate * float64(time.Second))
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		tick = ticker.C
	}

	chunk := d.config.FramesPerBuffer * d.channels
	pos := 0
	for {
		if pos >= len(d.samples) {
			if !d.config.Loop {
				engineLog.Infof("end of input file %s", d.config.Path)
				return
			}
			pos = 0
		}

		end := min(pos+chunk, len(d.samples))
		frames := (end - pos) / d.channels
		d.deliverInput(d.samples[pos:end], d.channels)
		d.renderOutput(d.scratch[:frames*d.config.OutputChannels], d.config.OutputChannels)
		pos = end

		if tick != nil {
			select {
			case <-done:
				return
			case <-tick:
			}
			continue
		}
		select {
		case <-done:
			return
		default:
		}
	}
}
