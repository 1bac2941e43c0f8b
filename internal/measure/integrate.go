package measure

import "time"

// Integrator accumulates volume (mL) from flow samples (L/min) using the
// trapezoidal rule over the measured elapsed time between samples.
type Integrator struct {
	volume  float64
	last    float64
	hasLast bool
}

// Add integrates flow over dt and returns the accumulated volume.
// The first sample after construction is integrated as a rectangle.
// Non-positive dt only records the sample.
func (i *Integrator) Add(flow float64, dt time.Duration) float64 {
	if !i.hasLast {
		i.last = flow
		i.hasLast = true
	}
	if dt > 0 {
		i.volume += (i.last + flow) / 2 * dt.Minutes() * 1000
	}
	i.last = flow
	return i.volume
}

// Volume returns the accumulated volume in mL.
func (i *Integrator) Volume() float64 { return i.volume }

// Reset zeroes the volume but keeps the last sample, so integration
// continues seamlessly across the reset point.
func (i *Integrator) Reset() { i.volume = 0 }
