package hal

import "github.com/sweeney/ventilator/internal/measure"

// Valve tracks the commanded opening of a pinch valve.
type Valve struct {
	name    string
	opening float64
}

// NewValve creates a closed valve.
func NewValve(name string) *Valve {
	return &Valve{name: name}
}

// Name returns the valve label used in logs.
func (v *Valve) Name() string { return v.name }

// Set commands an opening, clamped to [0, 1].
// It reports whether the request had to be clamped.
func (v *Valve) Set(opening float64) bool {
	var clamped bool
	v.opening, clamped = measure.Clamp(opening, 0, 1)
	return clamped
}

// Open opens the valve fully.
func (v *Valve) Open() { v.opening = 1 }

// Close closes the valve.
func (v *Valve) Close() { v.opening = 0 }

// Opening returns the commanded opening.
func (v *Valve) Opening() float64 { return v.opening }
