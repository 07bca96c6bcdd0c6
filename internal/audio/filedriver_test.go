// SPDX-License-Identifier: MIT
package audio

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"doppler/pkg/utils"
)

type captureSink struct {
	mu       sync.Mutex
	samples  []float32
	buffers  int
	channels int
}

func (c *captureSink) input(samples []float32, frames, channels int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = append(c.samples, samples[:frames*channels]...)
	c.buffers++
	c.channels = channels
}

func (c *captureSink) snapshot() ([]float32, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]float32(nil), c.samples...), c.buffers
}

func waitDone(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("replay did not finish")
	}
}

func TestFileDriverReplaysWholeFile(t *testing.T) {
	want := utils.GenerateSineWave(1000, testSampleRate, 440, 0.5)
	path := writeTestRecording(t, 16, want, 1)

	d, err := NewFileDriver(FileConfig{Path: path, FramesPerBuffer: 256})
	if err != nil {
		t.Fatalf("NewFileDriver: %v", err)
	}
	if d.SampleRate() != testSampleRate || d.InputChannels() != 1 || d.Frames() != 1000 {
		t.Fatalf("format = %v Hz, %d ch, %d frames", d.SampleRate(), d.InputChannels(), d.Frames())
	}

	sink := &captureSink{}
	var outputFrames int
	d.RegisterInputCallback(sink.input)
	d.RegisterOutputCallback(func(buf []float32, frames, channels int) {
		outputFrames += frames
		if len(buf) != frames*channels {
			t.Errorf("output buffer %d samples for %d frames", len(buf), frames)
		}
	})

	if err := d.Start(); err != nil {
		t.Fatal(err)
	}
	waitDone(t, d.Done())
	if err := d.Stop(); err != nil {
		t.Fatal(err)
	}

	got, buffers := sink.snapshot()
	if buffers != 4 {
		t.Errorf("buffers = %d, want 4", buffers)
	}
	if len(got) != len(want) {
		t.Fatalf("replayed %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if diff := got[i] - want[i]; diff > 1e-4 || diff < -1e-4 {
			t.Fatalf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
	if outputFrames != 1000 {
		t.Errorf("output callback saw %d frames, want 1000", outputFrames)
	}
}

func TestFileDriverLoopsUntilStopped(t *testing.T) {
	path := writeTestRecording(t, 16, utils.GenerateSineWave(100, testSampleRate, 440, 0.5), 1)

	d, err := NewFileDriver(FileConfig{Path: path, FramesPerBuffer: 64, Loop: true})
	if err != nil {
		t.Fatal(err)
	}
	sink := &captureSink{}
	d.RegisterInputCallback(sink.input)
	if err := d.Start(); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, n := sink.snapshot(); n > 10 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("loop did not replay the file repeatedly")
		}
		time.Sleep(time.Millisecond)
	}

	if err := d.Stop(); err != nil {
		t.Fatal(err)
	}
	waitDone(t, d.Done())
}

func TestFileDriverRealtimePacing(t *testing.T) {
	// 4 buffers of 441 frames at 44.1 kHz take ~40ms.
	path := writeTestRecording(t, 16, make([]float32, 441*4), 1)

	d, err := NewFileDriver(FileConfig{Path: path, FramesPerBuffer: 441, Realtime: true})
	if err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := d.Start(); err != nil {
		t.Fatal(err)
	}
	waitDone(t, d.Done())
	_ = d.Stop()

	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Errorf("realtime replay finished in %s", elapsed)
	}
}

func TestDecodeWAV8BitIsUnsigned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "u8.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, int(testSampleRate), 8, 1, 1)
	raw := []int{128, 128, 255, 0, 192, 64}
	if err := enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: int(testSampleRate)},
		Data:           raw,
		SourceBitDepth: 8,
	}); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	f, err = os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	got, channels, rate, err := DecodeWAV(f)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if channels != 1 || rate != testSampleRate {
		t.Fatalf("format = %d ch @ %v Hz", channels, rate)
	}

	want := []float32{0, 0, 127.0 / 128, -1, 0.5, -0.5}
	if len(got) != len(want) {
		t.Fatalf("decoded %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d (byte %d) = %v, want %v", i, raw[i], got[i], want[i])
		}
	}
}

func TestFileDriverErrors(t *testing.T) {
	if _, err := NewFileDriver(FileConfig{Path: filepath.Join(t.TempDir(), "missing.wav"), FramesPerBuffer: 64}); err == nil {
		t.Error("expected an error for a missing file")
	}

	path := writeTestRecording(t, 16, make([]float32, 64), 1)
	if _, err := NewFileDriver(FileConfig{Path: path}); err == nil {
		t.Error("expected an error for zero frames per buffer")
	}

	if _, _, _, err := DecodeWAV(bytes.NewReader([]byte("definitely not a wav file"))); err == nil {
		t.Error("expected an error for garbage input")
	}
}

func TestFileDriverStopWhenIdle(t *testing.T) {
	path := writeTestRecording(t, 16, make([]float32, 64), 1)
	d, err := NewFileDriver(FileConfig{Path: path, FramesPerBuffer: 16})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Stop(); err != nil {
		t.Errorf("Stop before Start: %v", err)
	}
	if d.Done() != nil {
		t.Error("Done is non-nil before Start")
	}
}
