// SPDX-License-Identifier: MIT
package analysis

import (
	"gonum.org/v1/gonum/stat"
)

// DefaultDetectionFrames is the length of the rolling sideband window.
const DefaultDetectionFrames = 5

// Classifier keeps the most recent left and right sideband maxima in two
// rings of equal size and compares their averages against a profile.
type Classifier struct {
	left   []float64
	right  []float64
	cursor int
	full   bool
}

// NewClassifier creates a Classifier averaging over frames samples.
func NewClassifier(frames int) *Classifier {
	if frames < 1 {
		frames = DefaultDetectionFrames
	}
	return &Classifier{
		left:  make([]float64, frames),
		right: make([]float64, frames),
	}
}

// Push stores one pair of sideband maxima and advances the cursor. The rings
// become full when the cursor wraps for the first time.
func (c *Classifier) Push(left, right float64) {
	c.left[c.cursor] = left
	c.right[c.cursor] = right
	c.cursor++
	if c.cursor == len(c.left) {
		c.cursor = 0
		c.full = true
	}
}

// Full reports whether every slot has been written at least once.
func (c *Classifier) Full() bool { return c.full }

// Cursor returns the next write position.
func (c *Classifier) Cursor() int { return c.cursor }

// Averages returns the mean of the left and right rings.
func (c *Classifier) Averages() (left, right float64) {
	return stat.Mean(c.left, nil), stat.Mean(c.right, nil)
}

// Classify returns Neutral until the rings are full. After that the right
// side is checked first, so a frame exceeding both thresholds is Toward.
func (c *Classifier) Classify(p BaselineProfile) Gesture {
	if !c.full {
		return Neutral
	}
	leftAvg, rightAvg := c.Averages()
	switch {
	case rightAvg-p.RightBaseline > p.RightThreshold:
		return Toward
	case leftAvg-p.LeftBaseline > p.LeftThreshold:
		return Away
	default:
		return Neutral
	}
}

// Values copies the ring contents into left and right, which must have the
// ring length. It is meant for inspection and tests.
func (c *Classifier) Values(left, right []float64) {
	copy(left, c.left)
	copy(right, c.right)
}

// Reset zeros both rings and the cursor.
func (c *Classifier) Reset() {
	clear(c.left)
	clear(c.right)
	c.cursor = 0
	c.full = false
}
