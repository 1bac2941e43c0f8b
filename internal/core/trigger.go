package core

import (
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/ventilator/internal/cycle"
)

// detectTrigger looks for patient inspiratory effort during exhalation. A
// detected effort makes the next tick start a triggered cycle.
//
// Effort is an inspiratory flow above the trigger flow, a pressure drop of
// the trigger offset below the highest recent sample in a cycle whose peak
// shows a connected patient, or a pressure below minus the offset.
func (c *MainController) detectTrigger() {
	if c.pendingTrigger || c.state.Phase != cycle.Exhalation || !c.active.TriggerArmed(c.settings) {
		return
	}
	sinceExhalation := time.Duration(c.state.Tick-c.state.Timing.TicksPerInhalation) * c.period
	if sinceExhalation < c.cal.TriggerDeadTime {
		return
	}

	s := c.settings
	flowDemand := c.inspiratoryFlow >= s.InspiratoryTriggerFlow
	pressureDrop := (c.pressure < c.pressures.Max()-s.TriggerOffset && c.acc.peak > c.cal.TriggerMinPeak) ||
		c.pressure < -s.TriggerOffset
	if !flowDemand && !pressureDrop {
		return
	}
	c.pendingTrigger = true
	c.logger.Debug("inspiratory effort detected",
		zap.Uint64("cycle", c.state.CycleNumber),
		zap.Int("tick", c.state.Tick),
		zap.Bool("flow", flowDemand),
		zap.Bool("pressure", pressureDrop))
}
