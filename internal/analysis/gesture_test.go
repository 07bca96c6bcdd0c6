// SPDX-License-Identifier: MIT
package analysis

import (
	"encoding/json"
	"math"
	"testing"

	"doppler/internal/spectrum"
	"doppler/pkg/utils"
)

const (
	testTargetBin = 100
	testTargetHz  = 20000.0
)

// sidebandFrame builds a spectrum with a tone at the target bin and the given
// left/right sideband maxima inside the default windows.
func sidebandFrame(peak, left, right float64) []float64 {
	mag := utils.FlatSpectrum(testBins, -80)
	mag[testTargetBin] = peak
	mag[testTargetBin-4] = left  // Inside [93, 98].
	mag[testTargetBin+4] = right // Inside [102, 107].
	return mag
}

func TestCoefficientsFactors(t *testing.T) {
	c := DefaultCoefficients()
	left, right := c.Factors(20000)
	if !approx(left, 0.2003-0.00025) || !approx(right, 0.2525-0.00025) {
		t.Errorf("Factors(20000) = (%v, %v)", left, right)
	}

	left, right = c.Factors(10000)
	if !approx(left, 0.2003-0.001) || !approx(right, 0.2525-0.001) {
		t.Errorf("Factors(10000) = (%v, %v)", left, right)
	}
}

func TestSidebandMaxima(t *testing.T) {
	s := DefaultSideband()
	mag := sidebandFrame(40, -20, -10)
	// Bins adjacent to the tone sit inside the guard and must be ignored.
	mag[testTargetBin-1] = 30
	mag[testTargetBin+1] = 30

	left, right := s.Maxima(mag, testTargetBin)
	if left != -20 || right != -10 {
		t.Errorf("Maxima = (%v, %v), want (-20, -10)", left, right)
	}
}

func TestSidebandRangesAreInclusive(t *testing.T) {
	s := DefaultSideband()
	mag := utils.FlatSpectrum(testBins, -80)
	mag[testTargetBin-7] = -5 // Outer left edge.
	mag[testTargetBin+7] = -6 // Outer right edge.
	left, right := s.Maxima(mag, testTargetBin)
	if left != -5 || right != -6 {
		t.Errorf("edge bins not included: (%v, %v)", left, right)
	}

	mag = utils.FlatSpectrum(testBins, -80)
	mag[testTargetBin-8] = -5
	mag[testTargetBin+8] = -6
	left, right = s.Maxima(mag, testTargetBin)
	if left != -80 || right != -80 {
		t.Errorf("bins beyond the window included: (%v, %v)", left, right)
	}
}

func TestSidebandClampsToSpectrum(t *testing.T) {
	s := DefaultSideband()
	mag := utils.FlatSpectrum(16, -50)
	mag[0] = -1
	mag[15] = -2

	left, right := s.Maxima(mag, 3)
	if left != -1 {
		t.Errorf("left near DC = %v, want -1", left)
	}
	if right != -50 {
		t.Errorf("right near DC = %v, want -50", right)
	}

	left, right = s.Maxima(mag, 13)
	if right != -2 || left != -50 {
		t.Errorf("near top = (%v, %v), want (-50, -2)", left, right)
	}

	left, right = s.Maxima(mag, 200)
	if left != spectrum.NoEnergy || right != spectrum.NoEnergy {
		t.Errorf("target beyond spectrum = (%v, %v), want NoEnergy", left, right)
	}
}

func TestCalibratorProfileMatchesFormula(t *testing.T) {
	c := NewCalibrator(DefaultBaselineFrames, DefaultCoefficients())
	for i := range DefaultBaselineFrames {
		done := c.Add(-20-float64(i), -10+float64(i), 40+float64(i))
		if done != (i == DefaultBaselineFrames-1) {
			t.Fatalf("Add #%d returned %v", i+1, done)
		}
	}

	p := c.Profile(testTargetBin, testTargetHz)
	// Means: left -22, right -8, peak 42.
	wantLeft := (42.0 + 22.0) * (0.2003 - 0.00025*math.Pow(20000/testTargetHz, 2))
	wantRight := (42.0 + 8.0) * (0.2525 - 0.00025*math.Pow(20000/testTargetHz, 2))

	if !approx(p.LeftBaseline, -22) || !approx(p.RightBaseline, -8) || !approx(p.PeakBaseline, 42) {
		t.Errorf("baselines = %+v", p)
	}
	if !approx(p.LeftThreshold, wantLeft) || !approx(p.RightThreshold, wantRight) {
		t.Errorf("thresholds = (%v, %v), want (%v, %v)", p.LeftThreshold, p.RightThreshold, wantLeft, wantRight)
	}
	if !approx(p.LeftThreshold, 12.8032) || !approx(p.RightThreshold, 12.6125) {
		t.Errorf("thresholds = (%v, %v), want (12.8032, 12.6125)", p.LeftThreshold, p.RightThreshold)
	}
	if p.TargetBin != testTargetBin {
		t.Errorf("TargetBin = %d, want %d", p.TargetBin, testTargetBin)
	}
}

func TestCalibratorIgnoresExtraFrames(t *testing.T) {
	c := NewCalibrator(2, DefaultCoefficients())
	c.Add(1, 1, 1)
	c.Add(3, 3, 3)
	c.Add(100, 100, 100)
	if c.Count() != 2 {
		t.Errorf("Count = %d, want 2", c.Count())
	}
	if p := c.Profile(1, testTargetHz); !approx(p.LeftBaseline, 2) {
		t.Errorf("LeftBaseline = %v, want 2", p.LeftBaseline)
	}
}

func TestCalibratorIncompleteProfileIsZero(t *testing.T) {
	c := NewCalibrator(5, DefaultCoefficients())
	c.Add(1, 2, 3)
	if p := c.Profile(7, testTargetHz); p != (BaselineProfile{TargetBin: 7}) {
		t.Errorf("incomplete profile = %+v", p)
	}
}

func TestClassifierPrecedence(t *testing.T) {
	profile := BaselineProfile{
		LeftBaseline:   -20,
		RightBaseline:  -20,
		LeftThreshold:  5,
		RightThreshold: 5,
	}

	tests := []struct {
		name        string
		left, right float64
		want        Gesture
	}{
		{"both exceed, right wins", 0, 0, Toward},
		{"right only", -20, 0, Toward},
		{"left only", 0, -20, Away},
		{"neither", -18, -18, Neutral},
		{"exactly at threshold", -15, -15, Neutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(DefaultDetectionFrames)
			for range DefaultDetectionFrames {
				c.Push(tt.left, tt.right)
			}
			if got := c.Classify(profile); got != tt.want {
				t.Errorf("Classify = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifierNeutralUntilFull(t *testing.T) {
	profile := BaselineProfile{RightThreshold: 1}
	c := NewClassifier(3)
	for i := range 2 {
		c.Push(50, 50)
		if c.Full() {
			t.Fatalf("full after %d pushes", i+1)
		}
		if got := c.Classify(profile); got != Neutral {
			t.Fatalf("Classify before full = %v", got)
		}
	}
	c.Push(50, 50)
	if !c.Full() || c.Cursor() != 0 {
		t.Fatalf("after wrap Full=%v Cursor=%d", c.Full(), c.Cursor())
	}
	if got := c.Classify(profile); got != Toward {
		t.Errorf("Classify after wrap = %v, want Toward", got)
	}
}

func TestClassifierRollingAverage(t *testing.T) {
	c := NewClassifier(4)
	for _, v := range []float64{1, 2, 3, 4, 5, 6} {
		c.Push(v, -v)
	}
	// Ring now holds 5, 6, 3, 4.
	left, right := c.Averages()
	if !approx(left, 4.5) || !approx(right, -4.5) {
		t.Errorf("Averages = (%v, %v), want (4.5, -4.5)", left, right)
	}
}

func TestGestureDetectorCalibrationTransition(t *testing.T) {
	d := NewGestureDetector(DefaultGestureConfig(), testTargetBin, testTargetHz)
	frame := sidebandFrame(40, -20, -10)

	transitions := 0
	prev := d.Phase()
	for i := range DefaultBaselineFrames + 3 {
		if got := d.Process(frame); got != Neutral {
			t.Fatalf("frame %d gesture = %v, want Neutral", i, got)
		}
		if d.Phase() != prev {
			transitions++
			if i != DefaultBaselineFrames-1 {
				t.Errorf("transition on frame %d, want frame %d", i, DefaultBaselineFrames-1)
			}
			prev = d.Phase()
		}
	}
	if transitions != 1 || d.Phase() != Detecting {
		t.Fatalf("transitions = %d, phase = %v", transitions, d.Phase())
	}

	p := d.Profile()
	if !approx(p.LeftThreshold, 60*0.20005) || !approx(p.RightThreshold, 50*0.25225) {
		t.Errorf("profile thresholds = (%v, %v)", p.LeftThreshold, p.RightThreshold)
	}
}

func TestGestureDetectorDetectsMotion(t *testing.T) {
	tests := []struct {
		name        string
		left, right float64
		want        Gesture
	}{
		{"toward", -20, 10, Toward},
		{"away", 0, -10, Away},
		{"still", -20, -10, Neutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewGestureDetector(DefaultGestureConfig(), testTargetBin, testTargetHz)
			for range DefaultBaselineFrames {
				d.Process(sidebandFrame(40, -20, -10))
			}

			motion := sidebandFrame(40, tt.left, tt.right)
			for i := range DefaultDetectionFrames - 1 {
				if got := d.Process(motion); got != Neutral {
					t.Fatalf("frame %d before rings are full = %v", i, got)
				}
			}
			if got := d.Process(motion); got != tt.want {
				t.Errorf("gesture = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGestureDetectorReset(t *testing.T) {
	d := NewGestureDetector(DefaultGestureConfig(), testTargetBin, testTargetHz)
	for range DefaultBaselineFrames {
		d.Process(sidebandFrame(40, -20, -10))
	}
	for range DefaultDetectionFrames {
		d.Process(sidebandFrame(40, -20, 10))
	}
	if d.Phase() != Detecting || d.Gesture() != Toward {
		t.Fatalf("precondition: phase=%v gesture=%v", d.Phase(), d.Gesture())
	}

	d.Reset(93, 1000)

	if d.Phase() != CapturingBaseline || d.Gesture() != Neutral {
		t.Errorf("after Reset phase=%v gesture=%v", d.Phase(), d.Gesture())
	}
	if d.TargetBin() != 93 || d.TargetFrequency() != 1000 {
		t.Errorf("after Reset target = %d / %v", d.TargetBin(), d.TargetFrequency())
	}
	if p := d.Profile(); p != (BaselineProfile{TargetBin: 93}) {
		t.Errorf("after Reset profile = %+v", p)
	}
	if d.Calibrator().Count() != 0 {
		t.Errorf("calibrator still holds %d frames", d.Calibrator().Count())
	}

	left := make([]float64, DefaultDetectionFrames)
	right := make([]float64, DefaultDetectionFrames)
	d.Classifier().Values(left, right)
	for i := range left {
		if left[i] != 0 || right[i] != 0 {
			t.Fatalf("ring slot %d not zeroed: %v / %v", i, left[i], right[i])
		}
	}
	if d.Classifier().Cursor() != 0 || d.Classifier().Full() {
		t.Errorf("ring cursor=%d full=%v", d.Classifier().Cursor(), d.Classifier().Full())
	}
}

func TestGestureJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		G Gesture `json:"g"`
		P Phase   `json:"p"`
	}{Away, Detecting})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"g":"away","p":"detecting"}` {
		t.Errorf("json = %s", b)
	}
}

func TestPeakWindow(t *testing.T) {
	mag := []float64{0, 1, 2, 9, 4, 5, 6, 7}

	out := make([]float64, 5)
	if center := PeakWindow(mag, out); center != 3 {
		t.Fatalf("center = %d, want 3", center)
	}
	want := []float64{1, 2, 9, 4, 5}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("out = %v, want %v", out, want)
		}
	}
}

func TestPeakWindowReplicatesEdges(t *testing.T) {
	tests := []struct {
		name string
		mag  []float64
		want []float64
	}{
		{"peak at start", []float64{9, 1, 2, 3}, []float64{9, 9, 9, 1, 2}},
		{"peak at end", []float64{1, 2, 3, 9}, []float64{2, 3, 9, 9, 9}},
		{"window wider than spectrum", []float64{1, 9, 2}, []float64{1, 1, 9, 2, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := make([]float64, len(tt.want))
			PeakWindow(tt.mag, out)
			for i := range tt.want {
				if out[i] != tt.want[i] {
					t.Fatalf("out = %v, want %v", out, tt.want)
				}
			}
		})
	}
}
