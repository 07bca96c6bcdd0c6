// SPDX-License-Identifier: MIT
package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"doppler/internal/config"
	"doppler/pkg/build"
)

// Commands other than the default analyzer run.
const (
	CommandList    = "list"
	CommandDevices = "devices"
)

// flagValues holds the raw command line values. Only flags the user set are
// applied on top of the loaded configuration.
type flagValues struct {
	configPath   string
	mode         string
	frequency    float64
	inputDevice  int
	outputDevice int
	sampleRate   float64
	frames       int
	bufferSize   int
	tickRate     float64
	lowLatency   bool
	inputFile    string
	loop         bool
	noTone       bool
	record       bool
	outputDir    string
	websocket    bool
	wsAddress    string
	udp          bool
	udpAddress   string
	udpInterval  time.Duration
	monitor      bool
	verbose      bool
}

// ParseArgs parses os.Args into a validated configuration. It returns a nil
// configuration when cobra already handled the request (help, version).
func ParseArgs() (*config.Config, error) {
	return parse(os.Args[1:])
}

func parse(args []string) (*config.Config, error) {
	buildInfo := build.GetBuildFlags()
	var (
		values flagValues
		cfg    *config.Config
	)

	load := func(cmd *cobra.Command, command string) error {
		loaded, err := config.LoadConfig(values.configPath)
		if err != nil {
			return err
		}
		values.apply(cmd.Flags(), loaded)
		loaded.Command = command
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded
		return nil
	}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return load(cmd, "")
		},
	}
	rootCmd.SetVersionTemplate(buildInfo.String() + "\n")
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.AddCommand(&cobra.Command{
		Use:   CommandList,
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return load(cmd, CommandList)
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   CommandDevices,
		Short: "Browse audio devices interactively and print a config snippet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return load(cmd, CommandDevices)
		},
	})

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&values.configPath, "config", "",
		"Path to a YAML configuration file (default: ./config.yaml or ./doppler.yaml)")
	pf.BoolVarP(&values.verbose, "verbose", "v", false,
		"Show verbose output")

	// Analysis
	pf.StringVarP(&values.mode, "mode", "m", config.DefaultMode,
		"Analysis mode: 'gesture' (emit a tone and classify motion) or 'tone' (estimate two tones)")
	pf.Float64VarP(&values.frequency, "frequency", "f", 0,
		"Target frequency in Hz (default: 20000 for gesture, 1000 for tone)")
	pf.IntVar(&values.bufferSize, "buffer-size", config.DefaultBufferSize,
		"Samples per analysis frame")
	pf.Float64Var(&values.tickRate, "tick-rate", config.DefaultTickRateHz,
		"Analysis ticks per second")
	pf.BoolVar(&values.noTone, "no-tone", false,
		"Do not emit the target tone")

	// Audio Device Configuration
	pf.IntVarP(&values.inputDevice, "device", "d", config.DefaultDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	pf.IntVar(&values.outputDevice, "output-device", config.DefaultDeviceID,
		"Specify output device ID for the emitted tone")
	pf.Float64VarP(&values.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	pf.IntVarP(&values.frames, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	pf.BoolVarP(&values.lowLatency, "low-latency", "l", false,
		"Use low latency mode for real-time processing")

	// File replay
	pf.StringVarP(&values.inputFile, "input", "i", "",
		"Analyze a WAV file instead of a live device")
	pf.BoolVar(&values.loop, "loop", false,
		"Restart the input file when it ends")

	// Recording Configuration
	pf.BoolVarP(&values.record, "record", "r", false,
		"Record the analyzed channel to a WAV file")
	pf.StringVarP(&values.outputDir, "output", "o", "",
		"Directory for recordings")

	// Transports
	pf.BoolVar(&values.websocket, "ws", false,
		"Serve JSON snapshots over WebSocket")
	pf.StringVar(&values.wsAddress, "ws-addr", config.DefaultWebSocketAddress,
		"WebSocket listen address")
	pf.BoolVar(&values.udp, "udp", false,
		"Send binary snapshots over UDP")
	pf.StringVar(&values.udpAddress, "udp-addr", config.DefaultUDPTargetAddress,
		"UDP target address")
	pf.DurationVar(&values.udpInterval, "udp-interval", config.DefaultUDPSendInterval,
		"Interval between UDP packets")

	// UI
	pf.BoolVar(&values.monitor, "monitor", false,
		"Show the interactive monitor")

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// apply copies every flag the user set into cfg.
func (v *flagValues) apply(flags *pflag.FlagSet, cfg *config.Config) {
	set := func(name string, fn func()) {
		if flags.Changed(name) {
			fn()
		}
	}

	set("verbose", func() {
		if v.verbose {
			cfg.Debug = true
			cfg.LogLevel = "debug"
		}
	})
	set("mode", func() { cfg.Mode = v.mode })
	set("frequency", func() { cfg.Analysis.TargetFrequencyHz = v.frequency })
	set("buffer-size", func() { cfg.Analysis.BufferSize = v.bufferSize })
	set("tick-rate", func() { cfg.Analysis.TickRateHz = v.tickRate })
	set("no-tone", func() { cfg.Tone.Enabled = !v.noTone })
	set("device", func() { cfg.Audio.InputDevice = v.inputDevice })
	set("output-device", func() { cfg.Audio.OutputDevice = v.outputDevice })
	set("sample-rate", func() { cfg.Audio.SampleRate = v.sampleRate })
	set("frames-per-buffer", func() { cfg.Audio.FramesPerBuffer = v.frames })
	set("low-latency", func() { cfg.Audio.LowLatency = v.lowLatency })
	set("input", func() { cfg.Audio.InputFile = v.inputFile })
	set("loop", func() { cfg.Audio.Loop = v.loop })
	set("record", func() { cfg.Recording.Enabled = v.record })
	set("output", func() { cfg.Recording.OutputDir = v.outputDir })
	set("ws", func() { cfg.Transport.WebSocketEnabled = v.websocket })
	set("ws-addr", func() { cfg.Transport.WebSocketAddress = v.wsAddress })
	set("udp", func() { cfg.Transport.UDPEnabled = v.udp })
	set("udp-addr", func() { cfg.Transport.UDPTargetAddress = v.udpAddress })
	set("udp-interval", func() { cfg.Transport.UDPSendInterval = v.udpInterval })
	set("monitor", func() { cfg.UI.Monitor = v.monitor })
}
