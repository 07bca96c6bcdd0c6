// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"doppler/cmd"
	"doppler/internal/audio"
	"doppler/internal/config"
	applog "doppler/internal/log"
	"doppler/internal/sonar"
	"doppler/internal/transport"
	"doppler/internal/transport/udp"
	"doppler/internal/tui"
	"doppler/pkg/build"
)

var (
	errReplayFinished = errors.New("input file finished")
	errMonitorClosed  = errors.New("monitor closed")
)

// main is the entry point. The program flow has three phases:
//
// 1. Startup (cold path): build info, configuration, logging, PortAudio,
// one-off commands, driver and controller construction.
//
// 2. Concurrent (hot path): the driver thread captures and renders, the
// scheduler ticks the analysis, transports and the monitor read snapshots.
//
// 3. Shutdown (cold path): scheduler, then audio, then recording, then
// transports.
func main() {
	if err := run(); err != nil {
		applog.Errorf("%v", err)
		os.Exit(1)
	}
}

func run() error {
	// ==================== STARTUP PHASE (Cold Path) ====================

	if err := build.Initialize(); err != nil {
		applog.Debugf("development build: %v", err)
	}

	cfg, err := cmd.ParseArgs()
	if err != nil {
		return err
	}
	if cfg == nil {
		return nil // Help or version was printed.
	}
	configureLogging(cfg)

	// A replayed file never touches PortAudio.
	if cfg.Command != "" || cfg.Audio.InputFile == "" {
		if err := audio.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize PortAudio: %w", err)
		}
		defer audio.Terminate()
	}

	if cfg.Command != "" {
		return cmd.Execute(cfg, os.Stdout)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return analyze(ctx, cfg)
}

func configureLogging(cfg *config.Config) {
	if level, ok := applog.ParseLevel(cfg.LogLevel); ok {
		applog.SetLevel(level)
	}
	if cfg.Debug {
		applog.SetLevel(applog.LevelDebug)
	}
}

// openDriver selects file replay or a live PortAudio stream.
func openDriver(cfg *config.Config) (audio.Driver, error) {
	if cfg.Audio.InputFile != "" {
		fd, err := audio.NewFileDriver(audio.FileConfig{
			Path:            cfg.Audio.InputFile,
			FramesPerBuffer: cfg.Audio.FramesPerBuffer,
			OutputChannels:  cfg.Audio.OutputChannels,
			Realtime:        cfg.Audio.Realtime,
			Loop:            cfg.Audio.Loop,
		})
		if err != nil {
			return nil, err
		}
		return fd, nil
	}

	outputChannels := cfg.Audio.OutputChannels
	if !cfg.Tone.Enabled {
		outputChannels = 0
	}
	pd, err := audio.NewPortAudioDriver(audio.StreamConfig{
		InputDevice:     cfg.Audio.InputDevice,
		OutputDevice:    cfg.Audio.OutputDevice,
		InputChannels:   cfg.Audio.InputChannels,
		OutputChannels:  outputChannels,
		SampleRate:      cfg.Audio.SampleRate,
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		LowLatency:      cfg.Audio.LowLatency,
	})
	if err != nil {
		return nil, err
	}
	return pd, nil
}

func analyze(ctx context.Context, cfg *config.Config) (err error) {
	driver, err := openDriver(cfg)
	if err != nil {
		return err
	}
	handle := &audio.Handle{}
	if err := handle.Bind(driver); err != nil {
		return err
	}
	sampleRate := handle.SampleRate()

	settings, err := sonar.FromConfig(cfg, sampleRate)
	if err != nil {
		return err
	}
	tone := audio.NewToneGenerator(sampleRate, settings.TargetFrequency, cfg.Tone.Amplitude)
	var setter sonar.FrequencySetter
	if cfg.Tone.Enabled {
		setter = tone
	}
	controller, err := sonar.New(settings, setter)
	if err != nil {
		return err
	}

	// Monitor output owns the terminal; logs go to a file instead.
	if cfg.UI.Monitor {
		logPath := filepath.Join(os.TempDir(), "doppler.log")
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Logging to %s\n", logPath)
		applog.SetOutput(logFile)
		defer func() {
			applog.SetOutput(os.Stderr)
			logFile.Close()
		}()
	}

	// Transports
	sinks := transport.NewMulti()
	defer func() { err = errors.Join(err, sinks.Close()) }()
	if !cfg.UI.Monitor {
		sinks.Add(transport.NewLoggingTransport())
	}
	if cfg.Transport.WebSocketEnabled {
		ws := transport.NewWebSocketTransport(cfg.Transport.WebSocketAddress, func(c transport.Command) error {
			return controller.ChangeFrequency(c.Hz)
		})
		if err := ws.Start(); err != nil {
			ws.Close()
			return err
		}
		sinks.Add(ws)
	}
	controller.SetTransport(sinks)

	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return err
		}
		publisher, err := udp.NewUDPPublisher(cfg.Transport.UDPSendInterval, sender, controller)
		if err != nil {
			sender.Close()
			return err
		}
		publisher.Start()
		defer func() { err = errors.Join(err, publisher.Close()) }()
	}

	// Recording
	var recorder *audio.Recorder
	if cfg.Recording.Enabled {
		recorder, err = startRecorder(cfg, int(sampleRate))
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, recorder.Stop())
			if n := recorder.Dropped(); n > 0 {
				applog.Warnf("recording lost %d frames; the disk could not keep up", n)
			}
		}()
	}

	scheduler, err := sonar.NewScheduler(cfg.TickInterval(), controller)
	if err != nil {
		return err
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	handle.RegisterInputCallback(func(samples []float32, frames, channels int) {
		controller.Capture(samples, frames, channels)
		if recorder != nil {
			recorder.Write(samples, frames, channels)
		}
	})
	if cfg.Tone.Enabled {
		handle.RegisterOutputCallback(tone.Callback())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Run(gctx) })

	if err := handle.Start(); err != nil {
		scheduler.Stop()
		g.Wait()
		return err
	}
	defer func() { err = errors.Join(err, handle.Stop()) }()

	if fd, ok := driver.(*audio.FileDriver); ok && !cfg.Audio.Loop {
		g.Go(func() error {
			select {
			case <-fd.Done():
				// Let the scheduler analyze the final frame.
				time.Sleep(2 * cfg.TickInterval())
				return errReplayFinished
			case <-gctx.Done():
				return nil
			}
		})
	}
	if cfg.UI.Monitor {
		g.Go(func() error {
			if err := tui.RunMonitor(gctx, controller, tui.DefaultRefresh); err != nil {
				return err
			}
			return errMonitorClosed
		})
	}

	applog.Infof("running; press Ctrl+C to stop")

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	err = g.Wait()
	stats := controller.Stats()
	applog.Infof("stopped after %d ticks (%d skipped, %d overruns, %d frequency changes)",
		stats.Ticks, stats.Skipped, stats.Overruns, stats.Resets)
	if errors.Is(err, errReplayFinished) || errors.Is(err, errMonitorClosed) {
		err = nil
	}
	return err
}

func startRecorder(cfg *config.Config, sampleRate int) (*audio.Recorder, error) {
	recorder, err := audio.NewRecorder(sampleRate, cfg.Recording.BitDepth, cfg.Audio.FramesPerBuffer)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Recording.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recording directory: %w", err)
	}
	name := "recording-" + time.Now().UTC().Format("02-01-2006-150405") + ".wav"
	path := filepath.Join(cfg.Recording.OutputDir, name)
	if err := recorder.Start(path); err != nil {
		return nil, err
	}
	applog.Infof("recording to %s", path)
	return recorder, nil
}
