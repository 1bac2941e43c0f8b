package core

import (
	"math"

	"go.uber.org/zap"

	"github.com/sweeney/ventilator/internal/alarm"
	"github.com/sweeney/ventilator/internal/cycle"
)

// accumulators collect the pressure aggregates of the running cycle.
type accumulators struct {
	peak     float64 // highest pressure of the inhalation
	rebounce float64 // lowest pressure since the peak

	plateauSum   float64
	plateauCount int
	lastInhaled  float64 // last inhalation pressure, plateau fallback

	pressureSum   float64
	pressureCount int

	peep         float64
	peepDetected bool
}

func (c *MainController) resetAccumulators() {
	c.acc = accumulators{peep: c.measures.PEEP}
}

func (c *MainController) accumulate() {
	a := &c.acc
	p := c.pressure
	a.pressureSum += p
	a.pressureCount++

	switch c.state.Phase {
	case cycle.Inhalation, cycle.Plateau:
		if p > a.peak {
			a.peak = math.Max(0, p)
			a.rebounce = p
		} else if p < a.rebounce {
			a.rebounce = p
		}
		a.lastInhaled = p
		if c.state.Phase == cycle.Plateau {
			a.plateauSum += p
			a.plateauCount++
		}

	case cycle.Exhalation:
		stable := c.pressures.Full() && c.pressures.Spread() < c.cal.PEEPStableSpread
		if stable && math.Abs(p-c.settings.PEEP) < c.cal.PEEPCaptureBand {
			a.peepDetected = true
			a.peep = math.Max(0, c.pressures.Mean())
		}
		if !a.peepDetected {
			a.peep = math.Max(0, p)
		}
	}
}

// plateau is the mean pressure of the plateau phase, or the last
// inhalation pressure when the cycle had no plateau.
func (a accumulators) plateau() float64 {
	if a.plateauCount == 0 {
		return math.Max(0, a.lastInhaled)
	}
	return math.Max(0, a.plateauSum/float64(a.plateauCount))
}

func (a accumulators) meanPressure() float64 {
	if a.pressureCount == 0 {
		return 0
	}
	return a.pressureSum / float64(a.pressureCount)
}

// endCycle computes the aggregates of the cycle that just completed,
// reports them to the alarms and prepares the machine state.
func (c *MainController) endCycle() {
	if !c.cycleStart.IsZero() {
		if d := c.now.Sub(c.cycleStart); d > 0 {
			c.breathPeriods.Push(d.Seconds())
		}
	}

	m := Measures{
		PeakPressure:     c.acc.peak,
		PlateauPressure:  c.acc.plateau(),
		PEEP:             c.acc.peep,
		MeanPressure:     c.acc.meanPressure(),
		TidalVolume:      c.inspiratoryVolume.Volume(),
		ExpiratoryVolume: c.expiratoryVolume.Volume(),
	}
	if mean := c.breathPeriods.Mean(); mean > 0 {
		m.RespiratoryRate = 60 / mean
	}
	m.InspiratoryMinuteVolume = m.TidalVolume * m.RespiratoryRate / 1000
	m.ExpiratoryMinuteVolume = m.ExpiratoryVolume * m.RespiratoryRate / 1000
	m.Leak = m.InspiratoryMinuteVolume - m.ExpiratoryMinuteVolume
	c.measures = m

	c.reportCycleAlarms(m)
	c.active.EndCycle(c.env())

	c.machineState = MachineState{
		Time:         c.now,
		CycleNumber:  c.state.CycleNumber,
		Mode:         c.active.Mode(),
		Triggered:    c.state.Triggered,
		Measures:     m,
		NextSettings: c.commands.Next(),
		ActiveAlarms: c.alarms.Active(),
	}
	c.stateReady = true

	c.logger.Debug("cycle complete",
		zap.Uint64("cycle", c.state.CycleNumber),
		zap.Float64("peak", m.PeakPressure),
		zap.Float64("plateau", m.PlateauPressure),
		zap.Float64("peep", m.PEEP),
		zap.Float64("tidal_volume", m.TidalVolume),
		zap.Bool("triggered", c.state.Triggered))
}

// setAlarmBounds derives the alarm bounds from the settings of a cycle.
func (c *MainController) setAlarmBounds(s cycle.Settings) {
	tol := c.cal.PlateauTolerance / 100
	c.alarms.SetBounds(alarm.PlateauPressure, alarm.Between(s.PlateauPressure*(1-tol), s.PlateauPressure*(1+tol)))
	c.alarms.SetBounds(alarm.MeanPressure, alarm.AtLeast(c.cal.MinMeanPressure))
	c.alarms.SetBounds(alarm.PEEP, alarm.Between(s.PEEP-c.cal.PEEPTolerance, s.PEEP+c.cal.PEEPTolerance))
	c.alarms.SetBounds(alarm.PeakPressure, alarm.AtMost(s.HighPressureAlarm))
	c.alarms.SetBounds(alarm.TidalVolume, alarm.Between(s.LowTidalVolumeAlarm, s.HighTidalVolumeAlarm))
	c.alarms.SetBounds(alarm.InspiratoryMinuteVolume, alarm.Between(s.LowInspiratoryMinuteVolumeAlarm, s.HighInspiratoryMinuteVolumeAlarm))
	c.alarms.SetBounds(alarm.ExpiratoryMinuteVolume, alarm.Between(s.LowExpiratoryMinuteVolumeAlarm, s.HighExpiratoryMinuteVolumeAlarm))
	c.alarms.SetBounds(alarm.RespiratoryRate, alarm.Between(s.LowRespiratoryRateAlarm, s.HighRespiratoryRateAlarm))
	c.alarms.SetBounds(alarm.Leak, alarm.AtMost(s.LeakAlarm))
	c.alarms.SetBounds(alarm.SensorStaleness, alarm.AtMost(float64(c.cal.StaleLimit)))
}

func (c *MainController) reportCycleAlarms(m Measures) {
	c.alarms.ReportCycleAggregate(alarm.PlateauPressure, m.PlateauPressure)
	c.alarms.ReportCycleAggregate(alarm.MeanPressure, m.MeanPressure)
	c.alarms.ReportCycleAggregate(alarm.PEEP, m.PEEP)
	c.alarms.ReportCycleAggregate(alarm.TidalVolume, m.TidalVolume)
	c.alarms.ReportCycleAggregate(alarm.InspiratoryMinuteVolume, m.InspiratoryMinuteVolume)
	c.alarms.ReportCycleAggregate(alarm.ExpiratoryMinuteVolume, m.ExpiratoryMinuteVolume)
	c.alarms.ReportCycleAggregate(alarm.RespiratoryRate, m.RespiratoryRate)
	c.alarms.ReportCycleAggregate(alarm.Leak, m.Leak)
}

func (c *MainController) reportTickAlarms() {
	if c.running {
		c.alarms.ReportMeasurement(alarm.PeakPressure, c.pressure)
	}
	c.alarms.ReportMeasurement(alarm.SensorStaleness, float64(c.staleTicks))
}
