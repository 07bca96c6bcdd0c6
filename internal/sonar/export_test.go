// SPDX-License-Identifier: MIT
package sonar

// calibrationCount returns how many baseline frames have been accumulated.
func (c *Controller) calibrationCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detector.Calibrator().Count()
}
