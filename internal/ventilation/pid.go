package ventilation

import (
	"math"
	"time"

	"github.com/sweeney/ventilator/internal/measure"
)

// valveLoop drives one valve opening from a pressure error.
//
// While far from target the loop is in fast mode and ramps the valve fully
// open in open loop. Once the error enters the band given by exitFast, the
// PI law takes over with its integral seeded from the fast-mode opening
// so the handover does not jump. The integral only advances while the
// output is not saturated.
type valveLoop struct {
	kp          float64
	integralMax float64
	direction   float64 // +1 opens on positive error, -1 on negative error
	rampTime    time.Duration
	exitFast    func(err float64) bool

	fast     bool
	integral float64
	opening  float64
}

func newValveLoop(direction float64, rampTime time.Duration, exitFast func(float64) bool) *valveLoop {
	return &valveLoop{
		kp:          2.5e-3,
		integralMax: 1,
		direction:   direction,
		rampTime:    rampTime,
		exitFast:    exitFast,
	}
}

// reset prepares the loop for a new cycle starting closed in fast mode.
func (l *valveLoop) reset() {
	l.fast = true
	l.integral = 0
	l.opening = 0
}

// update returns the valve opening for err = target - measured using the
// integral gain ki.
func (l *valveLoop) update(err, ki float64, dt time.Duration) float64 {
	if l.fast && l.exitFast(err) {
		l.fast = false
		l.integral, _ = measure.Clamp(l.direction*l.opening-l.kp*err, -l.integralMax, l.integralMax)
	}

	if l.fast {
		step := 1.0
		if l.rampTime > 0 {
			step = dt.Seconds() / l.rampTime.Seconds()
		}
		l.opening = math.Min(1, l.opening+step)
		return l.opening
	}

	integral, _ := measure.Clamp(l.integral+ki*err*dt.Seconds(), -l.integralMax, l.integralMax)
	command := l.kp*err + integral
	opening, saturated := measure.Clamp(l.direction*command, 0, 1)
	if !saturated {
		l.integral = integral
	}
	l.opening = opening
	return opening
}

// inspiratoryKi integrates overshoot faster than undershoot.
func inspiratoryKi(err float64) float64 {
	if err < 0 {
		return 0.2
	}
	return 0.05
}

// expiratoryKi needs less integral action at high PEEP.
func expiratoryKi(err, peep float64) float64 {
	switch {
	case err < 0:
		return 0.05
	case peep > 100:
		return 0.12
	}
	return (-130*peep/50 + 380) / 1000
}

func newInspiratoryLoop(cal Calibration) *valveLoop {
	return newValveLoop(1, cal.FastRampTime, func(err float64) bool { return err < 20 })
}

func newExpiratoryLoop(cal Calibration) *valveLoop {
	return newValveLoop(-1, cal.FastRampTime, func(err float64) bool { return err > -30 })
}
