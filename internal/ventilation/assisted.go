package ventilation

import (
	"time"

	"github.com/sweeney/ventilator/internal/cycle"
)

// inspiratoryPolicy changes how an assisted mode ends its inhalation.
type inspiratoryPolicy interface {
	reset()
	timing(s cycle.Settings, t cycle.Timing, period time.Duration) cycle.Timing
	adjust(env Env, out Output) Output
}

// assisted wraps a mandatory control law. The main controller may start
// its cycles early on patient demand.
type assisted struct {
	Controller
	mode   cycle.Mode
	policy inspiratoryPolicy
}

func (a *assisted) Mode() cycle.Mode { return a.mode }

func (a *assisted) TriggerArmed(cycle.Settings) bool { return true }

func (a *assisted) ComputeTickParameters(s cycle.Settings, period time.Duration) (cycle.Timing, error) {
	t, err := a.Controller.ComputeTickParameters(s, period)
	if err != nil || a.policy == nil {
		return t, err
	}
	return a.policy.timing(s, t, period), nil
}

func (a *assisted) InitRespiratoryCycle(env Env) {
	a.Controller.InitRespiratoryCycle(env)
	if a.policy != nil {
		a.policy.reset()
	}
}

func (a *assisted) Inhale(env Env) Output {
	out := a.Controller.Inhale(env)
	if a.policy != nil {
		out = a.policy.adjust(env, out)
	}
	return out
}

// flowCycling ends a patient-triggered inhalation once the inspiratory flow
// has decayed to a fraction of its peak, no sooner than TiMin and no later
// than TiMax.
type flowCycling struct {
	peakFlow float64
}

func (f *flowCycling) reset() { f.peakFlow = 0 }

func (f *flowCycling) timing(s cycle.Settings, t cycle.Timing, period time.Duration) cycle.Timing {
	return t.CapInhalation(cycle.TicksFor(s.TiMax, period))
}

func (f *flowCycling) adjust(env Env, out Output) Output {
	if env.InspiratoryFlow > f.peakFlow {
		f.peakFlow = env.InspiratoryFlow
	}
	if !env.Triggered || env.Phase != cycle.Inhalation {
		return out
	}
	if env.Elapsed() <= msDuration(env.Settings.TiMin) {
		return out
	}
	if env.InspiratoryFlow < env.Settings.ExpiratoryTriggerFlow/100*f.peakFlow {
		out.BlowerValve = 0
		out.Cut = CutToExhalation
	}
	return out
}

func msDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
