// Package ventilation implements the per-mode control laws. Each mode is a
// Controller; assisted variants decorate a mandatory base law.
package ventilation

import (
	"fmt"
	"time"

	"github.com/sweeney/ventilator/internal/alarm"
	"github.com/sweeney/ventilator/internal/cycle"
)

// Env is the read-only view of one tick handed to a Controller.
type Env struct {
	Tick      int
	Timing    cycle.Timing
	Phase     cycle.Phase
	Triggered bool
	Settings  cycle.Settings
	Period    time.Duration
	Dt        time.Duration // measured time since the previous tick

	Pressure             float64 // mmH2O
	InspiratoryFlow      float64 // L/min
	ExpiratoryFlow       float64 // L/min
	InspiratoryVolume    float64 // mL delivered since cycle start
	PEEP                 float64 // last detected PEEP
	PeakPressure         float64 // highest pressure of the cycle
	RebouncePeakPressure float64 // lowest pressure since the peak
	BlowerSpeed          float64
}

// Elapsed returns the scheduled time since cycle start.
func (e Env) Elapsed() time.Duration {
	return time.Duration(e.Tick) * e.Period
}

// Cut asks the main controller to end part of the inhalation early.
type Cut int

// Cut requests.
const (
	CutNone         Cut = iota
	CutToPlateau        // inspiratory flow is done; plateau starts next tick
	CutToExhalation     // inhalation is done; exhalation starts next tick
)

// Output is the actuator command computed for one tick.
type Output struct {
	BlowerSpeed  float64
	BlowerValve  float64 // 0 closed .. 1 open
	PatientValve float64 // 0 closed .. 1 open to atmosphere
	Cut          Cut
}

// Controller is one ventilation mode's control law.
//
// The main controller calls InitRespiratoryCycle once at each cycle start,
// then Inhale for every inhalation and plateau tick, Exhale for every
// exhalation tick, and EndCycle when the cycle completes. Implementations
// must return an Output for any Env and never panic.
type Controller interface {
	Mode() cycle.Mode
	Setup()
	OnCycleStart(s cycle.Settings)
	ComputeTickParameters(s cycle.Settings, period time.Duration) (cycle.Timing, error)
	InitRespiratoryCycle(env Env)
	Inhale(env Env) Output
	Exhale(env Env) Output
	EndCycle(env Env)
	TriggerArmed(s cycle.Settings) bool
	EnabledAlarms() []alarm.Code
}

// Calibration holds device-specific tuning of the control laws.
type Calibration struct {
	FastRampTime      time.Duration // valve travel time while far from target
	ValveResponseTime time.Duration // delay between command and valve motion
	BlowerHalfRamp    time.Duration // plateau reached sooner means overshoot
}

// DefaultCalibration returns the tuning the device ships with.
func DefaultCalibration() Calibration {
	return Calibration{
		FastRampTime:      250 * time.Millisecond,
		ValveResponseTime: 30 * time.Millisecond,
		BlowerHalfRamp:    120 * time.Millisecond,
	}
}

// New returns a fresh controller for mode.
func New(mode cycle.Mode, cal Calibration) (Controller, error) {
	switch mode {
	case cycle.PCCMV:
		return newPressureControl(cal, &plateauTiming{halfRamp: cal.BlowerHalfRamp}), nil
	case cycle.PCAC:
		return &assisted{
			Controller: newPressureControl(cal, &plateauTiming{halfRamp: cal.BlowerHalfRamp}),
			mode:       mode,
		}, nil
	case cycle.PCVSAI:
		return &assisted{
			Controller: newPressureControl(cal, &riseSlope{}),
			mode:       mode,
			policy:     &flowCycling{},
		}, nil
	case cycle.VCCMV:
		return newVolumeControl(cal), nil
	case cycle.VCAC:
		return &assisted{Controller: newVolumeControl(cal), mode: mode}, nil
	}
	return nil, fmt.Errorf("%w: %d", cycle.ErrUnknownMode, mode)
}

// exceptAlarms returns every alarm code but the excluded ones.
func exceptAlarms(excluded ...alarm.Code) []alarm.Code {
	skip := make(map[alarm.Code]bool, len(excluded))
	for _, c := range excluded {
		skip[c] = true
	}
	var codes []alarm.Code
	for _, c := range alarm.AllCodes() {
		if !skip[c] {
			codes = append(codes, c)
		}
	}
	return codes
}
