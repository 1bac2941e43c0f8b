package core

import (
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/ventilator/internal/cycle"
	"github.com/sweeney/ventilator/internal/ventilation"
)

// maxDtPeriods bounds the measured tick interval fed to the integrators
// after a stall.
const maxDtPeriods = 10

// Tick runs one control period at now and returns the resulting snapshot.
// It always commands the actuators and never fails: missing samples repeat
// the last known value and unusable settings halt at the safe position.
func (c *MainController) Tick(now time.Time) Snapshot {
	c.advanceClock(now)
	c.readSensors()
	c.alarms.Tick(now, c.state.CycleNumber)

	if !c.running {
		c.reachSafePosition()
		c.reportTickAlarms()
		return c.snapshot()
	}

	if c.cycleDone() {
		if !c.beginCycle() {
			c.reportTickAlarms()
			return c.snapshot()
		}
		c.alarms.Tick(now, c.state.CycleNumber)
	} else {
		c.state.Tick++
	}

	previous := c.state.Phase
	c.state.Phase = c.state.Timing.PhaseAt(c.state.Tick)
	if c.state.Phase == cycle.Exhalation && previous != cycle.Exhalation {
		c.expiratoryVolume.Reset()
	}
	c.inspiratoryVolume.Add(c.inspiratoryFlow, c.dt)
	c.expiratoryVolume.Add(c.expiratoryFlow, c.dt)
	c.accumulate()

	env := c.env()
	var out ventilation.Output
	if c.state.Phase == cycle.Exhalation {
		out = c.active.Exhale(env)
	} else {
		out = c.active.Inhale(env)
	}
	switch out.Cut {
	case ventilation.CutToPlateau:
		c.state.Timing = c.state.Timing.CutToPlateau(c.state.Tick)
	case ventilation.CutToExhalation:
		c.state.Timing = c.state.Timing.CutToExhalation(c.state.Tick)
	}

	c.detectTrigger()
	c.applyOutput(out)
	c.reportTickAlarms()
	return c.snapshot()
}

func (c *MainController) advanceClock(now time.Time) {
	c.dt = c.period
	if !c.lastNow.IsZero() {
		c.dt = now.Sub(c.lastNow)
		if c.dt < 0 {
			c.dt = 0
		}
		if c.dt > maxDtPeriods*c.period {
			c.dt = c.period
		}
	}
	c.lastNow = now
	c.now = now
}

func (c *MainController) readSensors() {
	p := c.sensors.ReadPressure()
	fi := c.sensors.ReadInspiratoryFlow()
	fe := c.sensors.ReadExpiratoryFlow()
	if p.Fresh {
		c.pressure = p.Value
	}
	if fi.Fresh {
		c.inspiratoryFlow = fi.Value
	}
	if fe.Fresh {
		c.expiratoryFlow = fe.Value
	}

	if p.Fresh && fi.Fresh && fe.Fresh {
		c.staleTicks = 0
	} else {
		c.staleTicks++
	}
	if stale := c.staleTicks > c.cal.StaleLimit; stale != c.sensorStale {
		c.sensorStale = stale
		if stale {
			c.logger.Warn("sensor readings stale", zap.Int("ticks", c.staleTicks))
		} else {
			c.logger.Info("sensor readings fresh again")
		}
	}

	if c.pressures.Len() == 0 {
		c.pressures.Fill(c.pressure)
	} else {
		c.pressures.Push(c.pressure)
	}
}

func (c *MainController) cycleDone() bool {
	return !c.cycling || c.pendingTrigger || c.state.Tick+1 >= c.state.Timing.TicksPerCycle
}

// beginCycle closes the running cycle, promotes the staged settings and
// starts the next cycle at tick 0. It reports false when the new settings
// cannot be scheduled and the controller halted instead.
func (c *MainController) beginCycle() bool {
	triggered := c.pendingTrigger
	c.pendingTrigger = false
	if c.cycling {
		c.endCycle()
	}

	c.settings = c.commands.Promote()
	if next := c.controllers[c.settings.Mode]; next != c.active {
		c.logger.Info("ventilation mode switched",
			zap.Stringer("from", c.active.Mode()),
			zap.Stringer("to", next.Mode()),
			zap.Uint64("cycle", c.state.CycleNumber+1))
		c.active = next
		c.active.Setup()
		c.alarms.SetEnabled(c.active.EnabledAlarms())
	}

	timing, err := c.active.ComputeTickParameters(c.settings, c.period)
	if err != nil {
		c.logger.Error("cannot schedule cycle", zap.Error(err))
		c.halt(StopInvalidTiming)
		return false
	}
	c.setAlarmBounds(c.settings)
	c.active.OnCycleStart(c.settings)

	c.state = cycle.State{
		CycleNumber: c.state.CycleNumber + 1,
		Timing:      timing,
		Phase:       cycle.Inhalation,
		Triggered:   triggered,
	}
	c.cycling = true
	c.cycleStart = c.now
	c.inspiratoryVolume.Reset()
	c.resetAccumulators()
	c.active.InitRespiratoryCycle(c.env())
	if triggered {
		c.logger.Debug("patient triggered breath", zap.Uint64("cycle", c.state.CycleNumber))
	}
	return true
}

func (c *MainController) env() ventilation.Env {
	return ventilation.Env{
		Tick:                 c.state.Tick,
		Timing:               c.state.Timing,
		Phase:                c.state.Phase,
		Triggered:            c.state.Triggered,
		Settings:             c.settings,
		Period:               c.period,
		Dt:                   c.dt,
		Pressure:             c.pressure,
		InspiratoryFlow:      c.inspiratoryFlow,
		ExpiratoryFlow:       c.expiratoryFlow,
		InspiratoryVolume:    c.inspiratoryVolume.Volume(),
		PEEP:                 c.acc.peep,
		PeakPressure:         c.acc.peak,
		RebouncePeakPressure: c.acc.rebounce,
		BlowerSpeed:          c.blower.Speed(),
	}
}

// applyOutput clamps the mode's commands to the actuator ranges, applies
// the over-pressure override and writes the result.
func (c *MainController) applyOutput(out ventilation.Output) {
	clamped := c.blower.RunSpeed(out.BlowerSpeed)
	clamped = c.blowerValve.Set(out.BlowerValve) || clamped
	clamped = c.patientValve.Set(out.PatientValve) || clamped
	if clamped != c.clamped {
		c.clamped = clamped
		if clamped {
			c.logger.Warn("actuator command clamped",
				zap.Float64("blower", out.BlowerSpeed),
				zap.Float64("blower_valve", out.BlowerValve),
				zap.Float64("patient_valve", out.PatientValve))
		}
	}

	over := c.pressure > c.cal.MaxPressure
	if over {
		c.blowerValve.Close()
		c.patientValve.Open()
	}
	if over != c.overPressure {
		c.overPressure = over
		if over {
			c.logger.Warn("over-pressure, venting", zap.Float64("pressure", c.pressure))
		} else {
			c.logger.Info("pressure back below limit", zap.Float64("pressure", c.pressure))
		}
	}

	c.blower.Execute(c.dt)
	c.writeActuators()
}

func (c *MainController) snapshot() Snapshot {
	return Snapshot{
		Time:              c.now,
		CycleNumber:       c.state.CycleNumber,
		Tick:              c.state.Tick,
		Phase:             c.state.Phase,
		Triggered:         c.state.Triggered,
		Running:           c.running,
		Mode:              c.active.Mode(),
		Pressure:          c.pressure,
		SmoothedPressure:  c.pressures.Mean(),
		InspiratoryFlow:   c.inspiratoryFlow,
		ExpiratoryFlow:    c.expiratoryFlow,
		InspiratoryVolume: c.inspiratoryVolume.Volume(),
		ExpiratoryVolume:  c.expiratoryVolume.Volume(),
		BlowerSpeed:       c.blower.Speed(),
		BlowerValve:       c.blowerValve.Opening(),
		PatientValve:      c.patientValve.Opening(),
		ActiveAlarms:      c.alarms.Active(),
		Snoozed:           c.alarms.Snoozed(),
		StopReason:        c.stopReason,
	}
}
