// SPDX-License-Identifier: MIT
package tui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"doppler/internal/analysis"
	"doppler/internal/sonar"
)

// DefaultRefresh is the monitor redraw period.
const DefaultRefresh = 50 * time.Millisecond

const (
	fineStep   = 100.0
	coarseStep = 1000.0
	sparkWidth = 64
)

var sparkLevels = []rune(" ▁▂▃▄▅▆▇█")

var (
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0A0A0")).Width(12)
	towardStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065")).Bold(true)
	awayStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#E05252")).Bold(true)
	neutralStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFDF5"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#E05252"))
)

// Source is the analysis state the monitor displays and steers.
type Source interface {
	Snapshot() sonar.Snapshot
	Stats() sonar.Stats
	ChangeFrequency(hz float64) error
}

type monitorKeys struct {
	Up       key.Binding
	Down     key.Binding
	UpFast   key.Binding
	DownFast key.Binding
	Lock     key.Binding
	Quit     key.Binding
}

var keys = monitorKeys{
	Up:       key.NewBinding(key.WithKeys("+", "=", "right")),
	Down:     key.NewBinding(key.WithKeys("-", "left")),
	UpFast:   key.NewBinding(key.WithKeys("]", "up")),
	DownFast: key.NewBinding(key.WithKeys("[", "down")),
	Lock:     key.NewBinding(key.WithKeys("l")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c", "esc")),
}

type refreshMsg time.Time

// MonitorModel is the Bubble Tea model of the live analysis view.
type MonitorModel struct {
	source  Source
	refresh time.Duration
	snap    sonar.Snapshot
	stats   sonar.Stats
	status  string
	err     error
	width   int
}

// NewMonitorModel creates a monitor polling source every refresh.
func NewMonitorModel(source Source, refresh time.Duration) MonitorModel {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	return MonitorModel{
		source:  source,
		refresh: refresh,
		snap:    source.Snapshot(),
		stats:   source.Stats(),
		width:   sparkWidth,
	}
}

func (m MonitorModel) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

// Init starts polling.
func (m MonitorModel) Init() tea.Cmd {
	return m.tick()
}

// Update handles refresh ticks and key presses.
func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case refreshMsg:
		m.snap = m.source.Snapshot()
		m.stats = m.source.Stats()
		return m, m.tick()

	case tea.WindowSizeMsg:
		m.width = max(8, min(msg.Width-labelStyle.GetWidth()-2, 2*sparkWidth))

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			m = m.retarget(m.snap.TargetFrequency + fineStep)
		case key.Matches(msg, keys.Down):
			m = m.retarget(m.snap.TargetFrequency - fineStep)
		case key.Matches(msg, keys.UpFast):
			m = m.retarget(m.snap.TargetFrequency + coarseStep)
		case key.Matches(msg, keys.DownFast):
			m = m.retarget(m.snap.TargetFrequency - coarseStep)
		case key.Matches(msg, keys.Lock):
			hz, ok := lockTarget(m.snap)
			if !ok {
				m.status, m.err = "", errors.New("nothing to lock on to")
				break
			}
			m = m.retarget(hz)
		}
	}
	return m, nil
}

// lockTarget picks the frequency the lock key retargets to: the strongest
// tone in tone mode, the strongest bin otherwise.
func lockTarget(s sonar.Snapshot) (float64, bool) {
	if s.Mode == sonar.ModeTone && s.Frequencies.First != analysis.Absent {
		return s.Frequencies.First, true
	}
	if s.PeakBin > 0 {
		return float64(s.PeakBin) * s.BinWidth, true
	}
	return 0, false
}

func (m MonitorModel) retarget(hz float64) MonitorModel {
	if err := m.source.ChangeFrequency(hz); err != nil {
		m.status, m.err = "", err
		return m
	}
	m.snap = m.source.Snapshot()
	m.status, m.err = fmt.Sprintf("retargeted to %.1f Hz", hz), nil
	return m
}

// View renders the monitor.
func (m MonitorModel) View() string {
	var sb strings.Builder
	s := m.snap

	sb.WriteString(titleStyle.Render(fmt.Sprintf("Doppler Monitor (%s)", s.Mode)))
	sb.WriteString("\n\n")

	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(label))
		sb.WriteString(value)
		sb.WriteString("\n")
	}

	row("Target", fmt.Sprintf("%.1f Hz (bin %d, %.2f Hz/bin)", s.TargetFrequency, s.TargetBin, s.BinWidth))
	switch s.Mode {
	case sonar.ModeTone:
		row("Tones", fmt.Sprintf("%s  %s", formatTone(s.Frequencies.First), formatTone(s.Frequencies.Second)))
	default:
		row("Phase", s.Phase.String())
		row("Gesture", renderGesture(s.Gesture))
		if s.Phase == analysis.Detecting {
			p := s.Profile
			row("Thresholds", fmt.Sprintf("left %.2f dB, right %.2f dB", p.LeftThreshold, p.RightThreshold))
		}
	}

	level := fmt.Sprintf("%.1f dBFS", s.InputLevelDB)
	if s.Gated {
		level += " (gated)"
	}
	row("Input", level)
	row("Spectrum", sparkline(s.PeakWindow, m.width))
	row("Ticks", fmt.Sprintf("%d ok, %d skipped, %d overrun, %d resets",
		m.stats.Ticks, m.stats.Skipped, m.stats.Overruns, m.stats.Resets))

	sb.WriteString("\n")
	switch {
	case m.err != nil:
		sb.WriteString(errorStyle.Render("Error: " + m.err.Error()))
	case m.status != "":
		sb.WriteString(infoStyle.Render(m.status))
	}
	sb.WriteString("\n\n")
	sb.WriteString(infoStyle.Render("+/-: ±100 Hz • ]/[: ±1 kHz • l: Lock on peak • q: Quit"))
	return sb.String()
}

func formatTone(hz float64) string {
	if hz == analysis.Absent {
		return "-"
	}
	return fmt.Sprintf("%.1f Hz", hz)
}

func renderGesture(g analysis.Gesture) string {
	switch g {
	case analysis.Toward:
		return towardStyle.Render("▲ toward")
	case analysis.Away:
		return awayStyle.Render("▼ away")
	default:
		return neutralStyle.Render("● neutral")
	}
}

// sparkline draws values as width block characters, scaled between their
// minimum and maximum. Each column shows the largest value it covers.
func sparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}
	width = min(width, len(values))

	cols := make([]float64, width)
	lo, hi := math.Inf(1), math.Inf(-1)
	for c := range cols {
		start := c * len(values) / width
		end := max(start+1, (c+1)*len(values)/width)
		best := values[start]
		for _, v := range values[start+1 : end] {
			best = max(best, v)
		}
		cols[c] = best
		lo, hi = min(lo, best), max(hi, best)
	}

	var sb strings.Builder
	top := len(sparkLevels) - 1
	for _, v := range cols {
		idx := 0
		if hi > lo {
			idx = int(math.Round((v - lo) / (hi - lo) * float64(top)))
		}
		sb.WriteRune(sparkLevels[idx])
	}
	return sb.String()
}

// RunMonitor runs the monitor until the user quits or ctx is cancelled.
// Cancellation is not an error.
func RunMonitor(ctx context.Context, source Source, refresh time.Duration) error {
	p := tea.NewProgram(NewMonitorModel(source, refresh), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
