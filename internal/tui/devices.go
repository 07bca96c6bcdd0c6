// SPDX-License-Identifier: MIT

// Package tui holds the terminal user interfaces: a device browser and the
// live analysis monitor.
package tui

import (
	"fmt"
	"strings"

	"doppler/internal/audio"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)
)

// ScreenType defines which screen is currently active.
type ScreenType int

const (
	ListScreen ScreenType = iota
	ConfigScreen
)

// CommonSampleRates are offered on the configuration screen.
var CommonSampleRates = []float64{44100, 48000, 88200, 96000}

// Selection is the device and rate chosen in the browser.
type Selection struct {
	DeviceID   int
	Device     string
	SampleRate float64
}

// DeviceLoader returns the devices to browse.
type DeviceLoader func() ([]audio.Device, error)

type devicesMsg struct {
	devices []audio.Device
}

type errMsg struct {
	err error
}

// DeviceListModel represents the Bubble Tea model for listing audio devices.
type DeviceListModel struct {
	load          DeviceLoader
	devices       []audio.Device
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
	activeScreen  ScreenType
	selection     *Selection

	sampleRateIndex int
}

// NewDeviceListModel creates a device browser. A nil loader browses the
// PortAudio host devices.
func NewDeviceListModel(load DeviceLoader) DeviceListModel {
	if load == nil {
		load = audio.HostDevices
	}
	return DeviceListModel{load: load, activeScreen: ListScreen}
}

// Init fetches the device list.
func (m DeviceListModel) Init() tea.Cmd {
	load := m.load
	return func() tea.Msg {
		devices, err := load()
		if err != nil {
			return errMsg{err}
		}
		return devicesMsg{devices}
	}
}

// Selection returns the confirmed choice, or nil if the user quit without
// choosing.
func (m DeviceListModel) Selection() *Selection { return m.selection }

func (m DeviceListModel) refresh() DeviceListModel {
	if !m.ready {
		return m
	}
	if m.activeScreen == ConfigScreen {
		m.viewport.SetContent(m.renderDeviceConfig())
	} else {
		m.viewport.SetContent(m.renderDevices())
	}
	return m
}

// Update handles input and updates the model.
func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		return m.refresh(), nil

	case devicesMsg:
		m.devices = msg.devices
		m.selectedIndex = 0
		return m.refresh(), nil

	case errMsg:
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, key.NewBinding(key.WithKeys("q", "ctrl+c"))) || m.err != nil {
			return m, tea.Quit
		}

		switch m.activeScreen {
		case ListScreen:
			switch {
			case key.Matches(msg, key.NewBinding(key.WithKeys("up", "k"))):
				if m.selectedIndex > 0 {
					m.selectedIndex--
				}
			case key.Matches(msg, key.NewBinding(key.WithKeys("down", "j"))):
				if m.selectedIndex < len(m.devices)-1 {
					m.selectedIndex++
				}
			case key.Matches(msg, key.NewBinding(key.WithKeys("enter"))):
				if len(m.devices) > 0 {
					m.activeScreen = ConfigScreen
					m.sampleRateIndex = rateIndex(m.devices[m.selectedIndex].DefaultSampleRate)
				}
			}
		case ConfigScreen:
			switch {
			case key.Matches(msg, key.NewBinding(key.WithKeys("esc"))):
				m.activeScreen = ListScreen
			case key.Matches(msg, key.NewBinding(key.WithKeys("up", "k"))):
				if m.sampleRateIndex > 0 {
					m.sampleRateIndex--
				}
			case key.Matches(msg, key.NewBinding(key.WithKeys("down", "j"))):
				if m.sampleRateIndex < len(CommonSampleRates)-1 {
					m.sampleRateIndex++
				}
			case key.Matches(msg, key.NewBinding(key.WithKeys("enter"))):
				d := m.devices[m.selectedIndex]
				m.selection = &Selection{
					DeviceID:   d.ID,
					Device:     d.Name,
					SampleRate: CommonSampleRates[m.sampleRateIndex],
				}
				return m, tea.Quit
			}
		}
		return m.refresh(), nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func rateIndex(rate float64) int {
	for i, r := range CommonSampleRates {
		if r == rate {
			return i
		}
	}
	return 0
}

// View renders the UI.
func (m DeviceListModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress any key to exit.", m.err)
	}
	if !m.ready {
		return "Initializing..."
	}

	var title, help string
	if m.activeScreen == ListScreen {
		title = titleStyle.Render("Audio Device List")
		help = infoStyle.Render("↑/↓: Navigate • Enter: Configure • q: Quit")
	} else {
		title = titleStyle.Render("Device Configuration")
		help = infoStyle.Render("↑/↓: Change Value • Enter: Select • Esc: Back • q: Quit")
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

// renderDevices formats the device list.
func (m DeviceListModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No audio devices found."
	}

	var sb strings.Builder
	for i, device := range m.devices {
		info := fmt.Sprintf("[%d] %s (%s)\n", device.ID, device.Name, device.Kind())
		info += fmt.Sprintf("    Host API: %s\n", device.HostAPI)
		info += fmt.Sprintf("    Input channels: %d, Output channels: %d\n",
			device.MaxInputChannels, device.MaxOutputChannels)
		info += fmt.Sprintf("    Default sample rate: %.0f Hz\n", device.DefaultSampleRate)

		if i == m.selectedIndex {
			info = highlightStyle.Render(info)
		}
		sb.WriteString(info)
		sb.WriteString("\n")
	}
	return sb.String()
}

// renderDeviceConfig formats the device configuration screen.
func (m DeviceListModel) renderDeviceConfig() string {
	var sb strings.Builder
	device := m.devices[m.selectedIndex]

	fmt.Fprintf(&sb, "Configure Device: %s\n\n", device.Name)
	if !device.Duplex() {
		sb.WriteString("Note: gesture mode needs a device that can capture and play.\n\n")
	}
	fmt.Fprintf(&sb, "Input latency: %s (low) / %s (high)\n\n", device.LowInputLatency, device.HighInputLatency)
	sb.WriteString("Sample Rate:\n")

	for i, rate := range CommonSampleRates {
		marker := " "
		if i == m.sampleRateIndex {
			marker = "▶"
		}
		line := fmt.Sprintf("  %s %.0f Hz (tones below %.0f Hz)\n", marker, rate, rate/2)
		if i == m.sampleRateIndex {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
	}
	return sb.String()
}

// StartDeviceListUI launches the device browser and returns the selection,
// which is nil when the user quit without choosing.
func StartDeviceListUI(load DeviceLoader) (*Selection, error) {
	p := tea.NewProgram(NewDeviceListModel(load), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	return final.(DeviceListModel).Selection(), nil
}
