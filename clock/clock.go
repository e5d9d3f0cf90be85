// Package clock tracks simulated time for one environment run.
package clock

import "fmt"

// Clock advances simulated time in fixed increments of DT seconds. The step
// environment ticks it once per control round trip; resetting an environment
// rewinds it to the configured start time.
type Clock struct {
	DT    float64 // simulated seconds per step
	Start float64 // simulated time at step 0 (seconds)

	T    float64 // current simulated time (seconds)
	Step int     // steps taken since the last Reset
}

// New creates a clock with the given step interval and start time.
func New(dt, start float64) *Clock {
	c := &Clock{DT: dt, Start: start}
	c.Reset()
	return c
}

// Reset rewinds the clock to the start of a run.
func (c *Clock) Reset() {
	c.Step = 0
	c.T = c.Start
}

// Tick advances the clock by one step.
func (c *Clock) Tick() {
	c.Step++
	c.T = c.Start + float64(c.Step)*c.DT
}

// String formats the current simulated time as HH:MM:SS.
func (c *Clock) String() string {
	t := c.T
	h := int(t / 3600)
	t -= float64(h * 3600)
	m := int(t / 60)
	t -= float64(m * 60)
	s := int(t)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// HourMinuteSecond splits the current simulated time, seconds keeping
// sub-second precision.
func (c *Clock) HourMinuteSecond() (int, int, float64) {
	hour := int(c.T) / 3600
	minute := int(c.T) % 3600 / 60
	second := c.T - float64(hour*3600+minute*60)
	return hour, minute, second
}
