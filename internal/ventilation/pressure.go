package ventilation

import (
	"time"

	"github.com/sweeney/ventilator/internal/alarm"
	"github.com/sweeney/ventilator/internal/cycle"
	"github.com/sweeney/ventilator/internal/hal"
	"github.com/sweeney/ventilator/internal/measure"
)

// blowerRegulator adapts the blower speed between cycles from how the last
// inhalation rose to its target.
type blowerRegulator interface {
	reset(env Env)
	observe(env Env)
	increment(env Env) float64
}

// pressureControl holds the plateau pressure during inhalation with the
// blower valve and PEEP during exhalation with the patient valve.
type pressureControl struct {
	regulator   blowerRegulator
	inspiratory *valveLoop
	expiratory  *valveLoop

	blowerSpeed float64
	increment   float64
}

func newPressureControl(cal Calibration, reg blowerRegulator) *pressureControl {
	return &pressureControl{
		regulator:   reg,
		inspiratory: newInspiratoryLoop(cal),
		expiratory:  newExpiratoryLoop(cal),
		blowerSpeed: hal.DefaultBlowerSpeed,
	}
}

func (p *pressureControl) Mode() cycle.Mode { return cycle.PCCMV }

func (p *pressureControl) Setup() {
	p.blowerSpeed = hal.DefaultBlowerSpeed
	p.increment = 0
}

func (p *pressureControl) OnCycleStart(cycle.Settings) {}

func (p *pressureControl) ComputeTickParameters(s cycle.Settings, period time.Duration) (cycle.Timing, error) {
	return cycle.ComputeTiming(s, period)
}

func (p *pressureControl) InitRespiratoryCycle(env Env) {
	p.inspiratory.reset()
	p.expiratory.reset()
	p.blowerSpeed, _ = measure.Clamp(p.blowerSpeed+p.increment, hal.MinBlowerSpeed, hal.MaxBlowerSpeed)
	p.increment = 0
	p.regulator.reset(env)
}

func (p *pressureControl) Inhale(env Env) Output {
	err := env.Settings.PlateauPressure - env.Pressure
	opening := p.inspiratory.update(err, inspiratoryKi(err), env.Dt)
	p.regulator.observe(env)
	return Output{BlowerSpeed: p.blowerSpeed, BlowerValve: opening}
}

func (p *pressureControl) Exhale(env Env) Output {
	err := env.Settings.PEEP - env.Pressure
	opening := p.expiratory.update(err, expiratoryKi(err, env.Settings.PEEP), env.Dt)
	return Output{BlowerSpeed: p.blowerSpeed, PatientValve: opening}
}

func (p *pressureControl) EndCycle(env Env) {
	p.increment = p.regulator.increment(env)
}

func (p *pressureControl) TriggerArmed(s cycle.Settings) bool { return s.TriggerEnabled }

func (p *pressureControl) EnabledAlarms() []alarm.Code { return alarm.AllCodes() }

// pluggedPeak is the peak pressure below which no patient is assumed
// connected and the blower is left alone.
const pluggedPeak = 20

// plateauTiming speeds the blower up when the plateau is reached late in
// the inhalation and slows it down when it is reached too early or
// overshoots.
type plateauTiming struct {
	halfRamp    time.Duration
	reached     bool
	reachedTick int
}

func (r *plateauTiming) reset(env Env) {
	r.reached = false
	r.reachedTick = env.Timing.TicksPerInhalation
}

func (r *plateauTiming) observe(env Env) {
	if !r.reached && env.Pressure > env.Settings.PlateauPressure-5 {
		r.reached = true
		r.reachedTick = env.Tick
	}
}

func (r *plateauTiming) increment(env Env) float64 {
	if env.PeakPressure <= pluggedPeak || env.Timing.TicksPerInhalation <= 0 {
		return 0
	}
	peakDelta := env.PeakPressure - env.Settings.PlateauPressure
	ti := float64(env.Timing.TicksPerInhalation)
	reached := float64(r.reachedTick)
	var halfRampTicks float64
	if env.Period > 0 {
		halfRampTicks = float64(r.halfRamp / env.Period)
	}

	switch {
	case reached < ti*0.3:
		if reached < halfRampTicks || (peakDelta > 15 && reached < ti*0.2) || peakDelta > 25 {
			return -100
		}
		return 0
	case reached < ti*0.4:
		return 0
	case reached < ti*0.5:
		return 25
	case reached < ti*0.6:
		return 50
	}
	return 100
}

// riseSlope aims the blower at a pressure rise of about 600 mmH2O/s and
// backs off when the pressure rebounds around the plateau.
type riseSlope struct {
	reached bool
	slope   float64 // mmH2O/s
}

func (r *riseSlope) reset(Env) {
	r.reached = false
	r.slope = 0
}

func (r *riseSlope) observe(env Env) {
	if r.reached || env.Pressure <= env.Settings.PlateauPressure-20 {
		return
	}
	r.reached = true
	if elapsed := env.Elapsed(); elapsed > 0 {
		r.slope = (env.Pressure - env.PEEP) / elapsed.Seconds()
	}
}

func (r *riseSlope) increment(env Env) float64 {
	if env.PeakPressure <= pluggedPeak {
		return 0
	}
	peakDelta := env.PeakPressure - env.Settings.PlateauPressure
	reboundDelta := env.RebouncePeakPressure - env.Settings.PlateauPressure
	rebound := func(peak, dip float64) bool {
		return peakDelta > peak || (reboundDelta < -dip && peakDelta >= 0)
	}
	veryHigh := rebound(60, 60)
	high := rebound(40, 40)
	low := peakDelta > 20 || (reboundDelta < -15 && peakDelta >= 0)
	veryLow := rebound(10, 10)

	switch {
	case veryHigh:
		return -100
	case high:
		return -10
	case r.slope > 650:
		if r.slope > 1000 || (low && r.slope > 800) || peakDelta > 25 {
			return -100
		}
		return 0
	case r.slope > 550:
		return 0
	case r.slope > 450 && !veryLow:
		return 25
	case r.slope > 350 && !veryLow:
		return 50
	case r.slope > 250 && !veryLow:
		return 75
	case !low:
		return 100
	}
	return 0
}
