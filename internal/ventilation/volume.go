package ventilation

import (
	"time"

	"github.com/sweeney/ventilator/internal/alarm"
	"github.com/sweeney/ventilator/internal/cycle"
	"github.com/sweeney/ventilator/internal/hal"
)

// minRemainingFlowTime is the shortest remaining inspiratory flow time for
// which a new flow target is computed.
const minRemainingFlowTime = 20 * time.Millisecond

// volumeControl delivers the commanded tidal volume at a constant flow and
// holds PEEP during exhalation with the patient valve.
type volumeControl struct {
	valveResponse time.Duration
	expiratory    *valveLoop

	targetFlow float64 // L/min
	flowDone   bool
}

func newVolumeControl(cal Calibration) *volumeControl {
	return &volumeControl{
		valveResponse: cal.ValveResponseTime,
		expiratory:    newExpiratoryLoop(cal),
	}
}

func (v *volumeControl) Mode() cycle.Mode { return cycle.VCCMV }

func (v *volumeControl) Setup() {
	v.targetFlow = 0
	v.flowDone = false
}

func (v *volumeControl) OnCycleStart(cycle.Settings) {}

func (v *volumeControl) ComputeTickParameters(s cycle.Settings, period time.Duration) (cycle.Timing, error) {
	return cycle.ComputeTiming(s, period)
}

func (v *volumeControl) InitRespiratoryCycle(env Env) {
	v.expiratory.reset()
	v.flowDone = false
	v.targetFlow = 0
	if d := time.Duration(env.Timing.InspiratoryFlowTicks()) * env.Period; d > 0 {
		v.targetFlow = mlPerSecondToLpm(env.Settings.TidalVolume / d.Seconds())
	}
}

func (v *volumeControl) Inhale(env Env) Output {
	out := Output{BlowerSpeed: hal.MaxBlowerSpeed}
	if env.Phase == cycle.Plateau || v.flowDone {
		return out
	}

	remainingVolume := env.Settings.TidalVolume - env.InspiratoryVolume
	remaining := time.Duration(env.Timing.InspiratoryFlowTicks()-env.Tick) * env.Period
	if remaining > minRemainingFlowTime && remainingVolume > 0 {
		v.targetFlow = mlPerSecondToLpm(remainingVolume / remaining.Seconds())
	}

	deltaP := hal.BlowerPressure(out.BlowerSpeed, v.targetFlow) - env.Pressure
	out.BlowerValve = hal.OrificeOpening(deltaP*hal.PascalsPerMMH2O, v.targetFlow/60000)

	// Stop early by the volume that still flows while the valve closes.
	inFlight := lpmToMLPerSecond(env.InspiratoryFlow) * v.valveResponse.Seconds()
	if env.InspiratoryVolume > env.Settings.TidalVolume-inFlight {
		v.flowDone = true
		out.BlowerValve = 0
		out.Cut = CutToPlateau
	}
	return out
}

func (v *volumeControl) Exhale(env Env) Output {
	err := env.Settings.PEEP - env.Pressure
	opening := v.expiratory.update(err, expiratoryKi(err, env.Settings.PEEP), env.Dt)
	return Output{BlowerSpeed: hal.MaxBlowerSpeed, PatientValve: opening}
}

func (v *volumeControl) EndCycle(Env) {}

func (v *volumeControl) TriggerArmed(s cycle.Settings) bool { return s.TriggerEnabled }

// EnabledAlarms omits the plateau alarms: plateau pressure is an outcome in
// volume control, not a target.
func (v *volumeControl) EnabledAlarms() []alarm.Code {
	return exceptAlarms(alarm.PlateauNotReached, alarm.PlateauNotReachedMedium)
}

func mlPerSecondToLpm(v float64) float64 { return v * 60 / 1000 }

func lpmToMLPerSecond(v float64) float64 { return v * 1000 / 60 }
