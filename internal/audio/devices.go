// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// DefaultDevice selects the host's default input or output device.
const DefaultDevice = -1

// PortAudio entry points, replaceable in tests.
var (
	paLibInitialize              = portaudio.Initialize
	paLibTerminate               = portaudio.Terminate
	paLibDevicesFunc             = portaudio.Devices
	paLibDefaultInputDeviceFunc  = portaudio.DefaultInputDevice
	paLibDefaultOutputDeviceFunc = portaudio.DefaultOutputDevice
	paDevicesFunc                = paDevices
)

// Initialize sets up the PortAudio subsystem.
// This must be called before any audio operations and paired with a Terminate() call.
func Initialize() error {
	if err := paLibInitialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate cleanly shuts down the PortAudio subsystem.
func Terminate() error {
	if err := paLibTerminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// InputDevice retrieves the capture device with the given index, or the
// system default for DefaultDevice.
func InputDevice(deviceID int) (*portaudio.DeviceInfo, error) {
	return lookupDevice(deviceID, true)
}

// OutputDevice retrieves the playback device with the given index, or the
// system default for DefaultDevice.
func OutputDevice(deviceID int) (*portaudio.DeviceInfo, error) {
	return lookupDevice(deviceID, false)
}

func lookupDevice(deviceID int, input bool) (*portaudio.DeviceInfo, error) {
	devices, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}

	if deviceID == DefaultDevice {
		if input {
			return paLibDefaultInputDeviceFunc()
		}
		return paLibDefaultOutputDeviceFunc()
	}

	if deviceID < 0 || deviceID >= len(devices) {
		return nil, fmt.Errorf("invalid device ID: %d", deviceID)
	}
	d := devices[deviceID]
	if input && d.MaxInputChannels == 0 {
		return nil, fmt.Errorf("device %d (%s) does not support input", deviceID, d.Name)
	}
	if !input && d.MaxOutputChannels == 0 {
		return nil, fmt.Errorf("device %d (%s) does not support output", deviceID, d.Name)
	}
	return d, nil
}

// ListDevices prints every host device with its channel counts, default
// sample rate and latency range.
func ListDevices() error {
	devices, err := HostDevices()
	if err != nil {
		return err
	}

	fmt.Printf("\nAvailable Audio Devices\n\n")

	for _, d := range devices {
		fmt.Printf("[%d] %s (%s)\n", d.ID, d.Name, d.Kind())
		fmt.Printf("    Input channels: %d, Output channels: %d\n", d.MaxInputChannels, d.MaxOutputChannels)
		fmt.Printf("    Default sample rate: %.0f Hz\n", d.DefaultSampleRate)
		fmt.Printf("    Latency: Low=%.2fms, High=%.2fms\n",
			d.LowInputLatency.Seconds()*1000,
			d.HighInputLatency.Seconds()*1000)
		fmt.Println()
	}

	return nil
}

// paDevices returns all PortAudio devices, never a nil slice on success.
func paDevices() ([]*portaudio.DeviceInfo, error) {
	devices, err := paLibDevicesFunc()
	if err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []*portaudio.DeviceInfo{}
	}
	return devices, nil
}
