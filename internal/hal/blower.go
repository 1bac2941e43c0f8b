package hal

import (
	"math"
	"time"

	"github.com/sweeney/ventilator/internal/measure"
)

// Blower speed bounds in the motor driver's units.
const (
	MinBlowerSpeed     = 300.0
	MaxBlowerSpeed     = 1800.0
	DefaultBlowerSpeed = 900.0
)

// maxBlowerPressure is the blower outlet pressure (mmH2O) at full speed
// and zero flow.
const maxBlowerPressure = 703.0

// Blower tracks the commanded blower speed. Accelerations ramp at a bounded
// rate; decelerations apply at once.
type Blower struct {
	rampPerSecond float64
	speed         float64
	target        float64
	running       bool
}

// NewBlower creates a stopped blower. rampPerSecond <= 0 applies speed
// changes immediately.
func NewBlower(rampPerSecond float64) *Blower {
	return &Blower{rampPerSecond: rampPerSecond}
}

// RunSpeed sets the target speed, clamped to the driver range, and starts
// the blower. It reports whether the request had to be clamped.
func (b *Blower) RunSpeed(speed float64) bool {
	target, clamped := measure.Clamp(speed, MinBlowerSpeed, MaxBlowerSpeed)
	b.target = target
	if !b.running {
		b.running = true
		b.speed = MinBlowerSpeed
		if b.rampPerSecond <= 0 {
			b.speed = target
		}
	}
	return clamped
}

// Execute advances the speed ramp by dt.
func (b *Blower) Execute(dt time.Duration) {
	if !b.running {
		return
	}
	if b.rampPerSecond <= 0 {
		b.speed = b.target
		return
	}
	if b.speed < b.target {
		b.speed = math.Min(b.target, b.speed+b.rampPerSecond*dt.Seconds())
		return
	}
	b.speed = b.target
}

// Stop halts the motor.
func (b *Blower) Stop() {
	b.running = false
	b.speed = 0
}

// Running reports whether the blower was started and not stopped since.
func (b *Blower) Running() bool { return b.running }

// Speed returns the current commanded speed, 0 when stopped.
func (b *Blower) Speed() float64 { return b.speed }

// TargetSpeed returns the speed the ramp converges to.
func (b *Blower) TargetSpeed() float64 { return b.target }

// Pressure estimates the blower outlet pressure (mmH2O) at the current speed
// for an outgoing flow in L/min.
func (b *Blower) Pressure(flow float64) float64 {
	return BlowerPressure(b.speed, flow)
}

// BlowerPressure is the empirical pressure curve of the blower: outlet
// pressure (mmH2O) for a speed and an outgoing flow (L/min).
func BlowerPressure(speed, flow float64) float64 {
	mlPerMin := flow * 1000
	p := maxBlowerPressure*speed/MaxBlowerSpeed - 281*mlPerMin/100000 - 832*(mlPerMin/100)*(mlPerMin/100)/1e6
	v, _ := measure.Clamp(p, 0, maxBlowerPressure)
	return v
}
