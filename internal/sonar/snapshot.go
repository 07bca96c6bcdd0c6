// SPDX-License-Identifier: MIT
package sonar

import (
	"fmt"
	"slices"
	"time"

	"doppler/internal/analysis"
)

// Frequencies are the two strongest tones of a frame. A tone that was not
// found is analysis.Absent.
type Frequencies struct {
	First  float64 `json:"first"`
	Second float64 `json:"second"`
}

// NoTones has both tones absent.
var NoTones = Frequencies{First: analysis.Absent, Second: analysis.Absent}

// Count returns how many tones were found.
func (f Frequencies) Count() int {
	n := 0
	if f.First != analysis.Absent {
		n++
	}
	if f.Second != analysis.Absent {
		n++
	}
	return n
}

// Snapshot is a self-contained copy of the controller's published state.
// Snapshots handed out never alias controller memory.
type Snapshot struct {
	Sequence        uint64                   `json:"seq"`
	Time            time.Time                `json:"time"`
	Mode            Mode                     `json:"mode"`
	SampleRate      float64                  `json:"sample_rate"`
	BinWidth        float64                  `json:"bin_width"`
	TargetFrequency float64                  `json:"target_hz"`
	TargetBin       int                      `json:"target_bin"`
	Phase           analysis.Phase           `json:"phase"`
	Gesture         analysis.Gesture         `json:"gesture"`
	Profile         analysis.BaselineProfile `json:"profile"`
	Frequencies     Frequencies              `json:"frequencies"`
	InputLevelDB    float64                  `json:"input_level_db"`
	Gated           bool                     `json:"gated"`
	PeakBin         int                      `json:"peak_bin"`
	PeakWindow      []float64                `json:"peak_window"`
	Spectrum        []float64                `json:"spectrum"`
	TimeDomain      []float32                `json:"time_domain"`
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	s.PeakWindow = slices.Clone(s.PeakWindow)
	s.Spectrum = slices.Clone(s.Spectrum)
	s.TimeDomain = slices.Clone(s.TimeDomain)
	return s
}

// String describes the snapshot in one line, leaving out the sequence and
// time so that unchanged states print identically.
func (s Snapshot) String() string {
	switch s.Mode {
	case ModeTone:
		return fmt.Sprintf("tone: %s / %s (%d found)",
			formatHz(s.Frequencies.First), formatHz(s.Frequencies.Second), s.Frequencies.Count())
	default:
		if s.Phase == analysis.CapturingBaseline {
			return fmt.Sprintf("gesture: calibrating at %.1f Hz (bin %d)", s.TargetFrequency, s.TargetBin)
		}
		return fmt.Sprintf("gesture: %s at %.1f Hz", s.Gesture, s.TargetFrequency)
	}
}

func formatHz(hz float64) string {
	if hz == analysis.Absent {
		return "-"
	}
	return fmt.Sprintf("%.1f Hz", hz)
}

// Stats counts tick outcomes.
type Stats struct {
	Ticks    uint64 `json:"ticks"`    // Ticks that produced a snapshot.
	Skipped  uint64 `json:"skipped"`  // Ticks skipped for insufficient data.
	Resets   uint64 `json:"resets"`   // Frequency changes applied.
	Overruns uint64 `json:"overruns"` // Ticks dropped because the previous one overran.
}
