// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"doppler/internal/audio"
	"doppler/internal/config"
	"doppler/internal/tui"
)

// Execute runs a one-off command. PortAudio must be initialized.
func Execute(cfg *config.Config, w io.Writer) error {
	switch cfg.Command {
	case CommandList:
		return audio.ListDevices()
	case CommandDevices:
		sel, err := tui.StartDeviceListUI(audio.HostDevices)
		if err != nil {
			return err
		}
		if sel == nil {
			return nil
		}
		return WriteDeviceSnippet(w, *sel)
	default:
		return fmt.Errorf("unknown command %q", cfg.Command)
	}
}

type deviceSnippet struct {
	Audio struct {
		InputDevice  int     `yaml:"input_device"`
		OutputDevice int     `yaml:"output_device"`
		SampleRate   float64 `yaml:"sample_rate"`
	} `yaml:"audio"`
}

// WriteDeviceSnippet prints the configuration fragment selecting sel for
// both capture and playback.
func WriteDeviceSnippet(w io.Writer, sel tui.Selection) error {
	var s deviceSnippet
	s.Audio.InputDevice = sel.DeviceID
	s.Audio.OutputDevice = sel.DeviceID
	s.Audio.SampleRate = sel.SampleRate

	fmt.Fprintf(w, "# %s\n", sel.Device)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return err
	}
	return enc.Close()
}
