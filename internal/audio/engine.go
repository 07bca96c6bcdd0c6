// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	applog "doppler/internal/log"

	"github.com/gordonklaus/portaudio"
)

var engineLog = applog.Named("audio")

// StreamConfig selects devices and the stream format for a PortAudioDriver.
type StreamConfig struct {
	InputDevice     int // DefaultDevice for the host default.
	OutputDevice    int
	InputChannels   int
	OutputChannels  int // 0 opens a capture-only stream.
	SampleRate      float64
	FramesPerBuffer int
	LowLatency      bool
}

// PortAudioDriver is a Driver backed by a single PortAudio stream carrying
// interleaved float32 samples. With output channels configured the stream is
// duplex and the output callback renders the playback buffer.
type PortAudioDriver struct {
	callbacks

	config StreamConfig

	inputDevice   *portaudio.DeviceInfo
	outputDevice  *portaudio.DeviceInfo
	inputLatency  time.Duration
	outputLatency time.Duration

	mu     sync.Mutex
	stream *portaudio.Stream
}

var _ Driver = (*PortAudioDriver)(nil)

// NewPortAudioDriver resolves the configured devices. PortAudio must already
// be initialized.
func NewPortAudioDriver(cfg StreamConfig) (*PortAudioDriver, error) {
	if cfg.InputChannels < 1 {
		return nil, fmt.Errorf("input channels must be at least 1, got %d", cfg.InputChannels)
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %v", cfg.SampleRate)
	}

	in, err := InputDevice(cfg.InputDevice)
	if err != nil {
		return nil, fmt.Errorf("input device: %w", err)
	}

	d := &PortAudioDriver{config: cfg, inputDevice: in}
	if cfg.LowLatency {
		d.inputLatency = in.DefaultLowInputLatency
	} else {
		d.inputLatency = in.DefaultHighInputLatency
	}

	if cfg.OutputChannels > 0 {
		out, err := OutputDevice(cfg.OutputDevice)
		if err != nil {
			return nil, fmt.Errorf("output device: %w", err)
		}
		d.outputDevice = out
		if cfg.LowLatency {
			d.outputLatency = out.DefaultLowOutputLatency
		} else {
			d.outputLatency = out.DefaultHighOutputLatency
		}
	}

	return d, nil
}

func (d *PortAudioDriver) streamParameters() portaudio.StreamParameters {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   d.inputDevice,
			Channels: d.config.InputChannels,
			Latency:  d.inputLatency,
		},
		FramesPerBuffer: d.config.FramesPerBuffer,
		SampleRate:      d.config.SampleRate,
	}
	if d.outputDevice != nil {
		params.Output = portaudio.StreamDeviceParameters{
			Device:   d.outputDevice,
			Channels: d.config.OutputChannels,
			Latency:  d.outputLatency,
		}
	}
	return params
}

// Start opens and starts the stream. Starting a running driver is a no-op.
func (d *PortAudioDriver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream != nil {
		return nil
	}

	var (
		stream *portaudio.Stream
		err    error
	)
	if d.outputDevice != nil {
		stream, err = portaudio.OpenStream(d.streamParameters(), d.processDuplex)
	} else {
		stream, err = portaudio.OpenStream(d.streamParameters(), d.processInput)
	}
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		return errors.Join(fmt.Errorf("failed to start stream: %w", err), stream.Close())
	}
	d.stream = stream

	engineLog.Infof("stream started: %s @ %.0f Hz, %d frames/buffer, latency %s",
		d.inputDevice.Name, d.config.SampleRate, d.config.FramesPerBuffer, d.inputLatency)
	return nil
}

// Stop stops and closes the stream. Stopping an idle driver is a no-op.
func (d *PortAudioDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return nil
	}

	stream := d.stream
	d.stream = nil
	if err := stream.Stop(); err != nil {
		return errors.Join(fmt.Errorf("failed to stop stream: %w", err), stream.Close())
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("failed to close stream: %w", err)
	}
	engineLog.Infof("stream stopped")
	return nil
}

func (d *PortAudioDriver) SampleRate() float64 { return d.config.SampleRate }

func (d *PortAudioDriver) InputChannels() int { return d.config.InputChannels }

// processInput is the capture-only stream callback.
// Performance Critical:
// - Runs on the PortAudio thread
// - No dynamic allocations
func (d *PortAudioDriver) processInput(in []float32) {
	d.deliverInput(in, d.config.InputChannels)
}

// processDuplex is the duplex stream callback. Input is delivered before
// output is rendered.
func (d *PortAudioDriver) processDuplex(in, out []float32) {
	d.deliverInput(in, d.config.InputChannels)
	d.renderOutput(out, d.config.OutputChannels)
}
