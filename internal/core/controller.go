// Package core runs the respiratory cycle: it reads the sensors once per
// tick, advances the phase schedule, lets the active ventilation mode
// compute the actuator commands and feeds the alarm controller.
package core

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/ventilator/internal/alarm"
	"github.com/sweeney/ventilator/internal/cycle"
	"github.com/sweeney/ventilator/internal/hal"
	"github.com/sweeney/ventilator/internal/measure"
	"github.com/sweeney/ventilator/internal/ventilation"
)

// alarmsClearedOnStop are the breathing alarms meaningless while halted.
var alarmsClearedOnStop = []alarm.Code{
	alarm.PlateauNotReached, alarm.LowPressure, alarm.PEEPNotReached,
	alarm.PlateauNotReachedMedium, alarm.PEEPNotReachedMedium,
	alarm.OverPressure, alarm.LowPressureMedium,
}

// MainController owns the cycle state and drives the actuators.
//
// Tick and the Start/Stop/Snooze calls must come from a single goroutine.
// StageCommand and SetVentilationMode only touch the staged settings and
// may be called from anywhere.
type MainController struct {
	logger    *zap.Logger
	sensors   hal.Sensors
	actuators hal.Actuators
	alarms    *alarm.Controller
	period    time.Duration
	cal       Calibration

	commands    *cycle.CommandSet
	settings    cycle.Settings
	controllers map[cycle.Mode]ventilation.Controller
	active      ventilation.Controller

	blower       *hal.Blower
	blowerValve  *hal.Valve
	patientValve *hal.Valve
	clamped      bool
	overPressure bool

	state          cycle.State
	running        bool
	cycling        bool
	stopReason     StopReason
	pendingTrigger bool

	now     time.Time
	lastNow time.Time
	dt      time.Duration

	pressure        float64
	inspiratoryFlow float64
	expiratoryFlow  float64
	staleTicks      int
	sensorStale     bool

	pressures         *measure.Ring
	inspiratoryVolume measure.Integrator
	expiratoryVolume  measure.Integrator
	breathPeriods     *measure.Ring
	acc               accumulators
	cycleStart        time.Time

	measures     Measures
	machineState MachineState
	stateReady   bool
}

// New creates a halted controller at the safe position. Call Start to
// begin cycling.
func New(opts Options) (*MainController, error) {
	if opts.Sensors == nil || opts.Actuators == nil {
		return nil, errors.New("sensors and actuators are required")
	}
	if opts.Period <= 0 {
		opts.Period = DefaultPeriod
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	cal := opts.Calibration
	if cal.PressureSamples < 1 {
		cal.PressureSamples = 1
	}
	if cal.BreathPeriods < 1 {
		cal.BreathPeriods = 1
	}

	commands, err := cycle.NewCommandSet(opts.Settings, opts.Period)
	if err != nil {
		return nil, err
	}

	controllers := make(map[cycle.Mode]ventilation.Controller)
	for _, m := range []cycle.Mode{cycle.PCCMV, cycle.PCAC, cycle.PCVSAI, cycle.VCCMV, cycle.VCAC} {
		ctrl, err := ventilation.New(m, cal.Control)
		if err != nil {
			return nil, fmt.Errorf("mode %s: %w", m, err)
		}
		controllers[m] = ctrl
	}

	alarms := opts.Alarms
	if alarms == nil {
		alarms = alarm.NewController(alarm.DefaultDefinitions(cal.AlarmDebounce), cal.AlarmSnoozeLength, opts.Logger.Named("alarm"))
	}

	c := &MainController{
		logger:        opts.Logger,
		sensors:       opts.Sensors,
		actuators:     opts.Actuators,
		alarms:        alarms,
		period:        opts.Period,
		cal:           cal,
		commands:      commands,
		settings:      commands.Current(),
		controllers:   controllers,
		blower:        hal.NewBlower(cal.BlowerRampPerSec),
		blowerValve:   hal.NewValve("blower"),
		patientValve:  hal.NewValve("patient"),
		pressures:     measure.NewRing(cal.PressureSamples),
		breathPeriods: measure.NewRing(cal.BreathPeriods),
		stopReason:    StopStartup,
	}
	c.active = controllers[c.settings.Mode]
	c.active.Setup()
	c.alarms.SetEnabled(c.active.EnabledAlarms())
	c.setAlarmBounds(c.settings)
	c.reachSafePosition()
	return c, nil
}

// Start arms the controller. The next tick begins a new cycle.
func (c *MainController) Start() {
	if c.running {
		return
	}
	c.running = true
	c.cycling = false
	c.pendingTrigger = false
	c.stopReason = NotStopped
	c.cycleStart = time.Time{}
	c.breathPeriods.Reset()
	c.active.Setup()
	c.logger.Info("ventilation started", zap.Stringer("mode", c.commands.Next().Mode))
}

// Stop halts cycling and holds the safe position until Start.
func (c *MainController) Stop() {
	c.halt(StopRequested)
}

func (c *MainController) halt(reason StopReason) {
	wasRunning := c.running
	c.running = false
	c.cycling = false
	c.pendingTrigger = false
	c.stopReason = reason
	c.alarms.Clear(alarmsClearedOnStop...)
	c.reachSafePosition()
	if wasRunning {
		c.logger.Info("ventilation stopped", zap.Stringer("reason", reason), zap.Uint64("cycle", c.state.CycleNumber))
	}
}

// reachSafePosition stops the blower and opens both valves to atmosphere.
func (c *MainController) reachSafePosition() {
	c.blower.Stop()
	c.blowerValve.Open()
	c.patientValve.Open()
	c.writeActuators()
}

func (c *MainController) writeActuators() {
	c.actuators.SetBlowerCommand(c.blower.Speed())
	c.actuators.SetBlowerValveCommand(c.blowerValve.Opening())
	c.actuators.SetPatientValveCommand(c.patientValve.Opening())
}

// StageCommand requests a new value for p from the next cycle on.
func (c *MainController) StageCommand(p cycle.Param, v float64) error {
	return c.commands.Stage(p, v)
}

// IncreaseCommand steps the staged value of p up.
func (c *MainController) IncreaseCommand(p cycle.Param) error {
	return c.commands.Increase(p)
}

// DecreaseCommand steps the staged value of p down.
func (c *MainController) DecreaseCommand(p cycle.Param) error {
	return c.commands.Decrease(p)
}

// SetVentilationMode requests a mode change from the next cycle on.
func (c *MainController) SetVentilationMode(m cycle.Mode) error {
	return c.commands.StageMode(m)
}

// Snooze silences alarm signalling for the calibrated duration.
func (c *MainController) Snooze() {
	c.alarms.Snooze()
}

// Halted reports whether the controller holds the safe position.
func (c *MainController) Halted() bool { return !c.running }

// StopReason tells why the controller is halted.
func (c *MainController) StopReason() StopReason { return c.stopReason }

// Settings returns the settings of the running cycle.
func (c *MainController) Settings() cycle.Settings { return c.settings }

// NextSettings returns the settings staged for the next cycle.
func (c *MainController) NextSettings() cycle.Settings { return c.commands.Next() }

// Measures returns the aggregates of the last completed cycle.
func (c *MainController) Measures() Measures { return c.measures }

// CycleState returns the position within the current cycle.
func (c *MainController) CycleState() cycle.State { return c.state }

// ActiveControllerMode returns the mode of the control law in use.
func (c *MainController) ActiveControllerMode() cycle.Mode { return c.active.Mode() }

// Alarms returns the alarm controller fed by this controller.
func (c *MainController) Alarms() *alarm.Controller { return c.alarms }

// SignallingPriority returns the alarm priority to present to the operator.
func (c *MainController) SignallingPriority() alarm.Priority { return c.alarms.Signalling() }

// TakeMachineState returns the state of the last completed cycle, once.
func (c *MainController) TakeMachineState() (MachineState, bool) {
	if !c.stateReady {
		return MachineState{}, false
	}
	c.stateReady = false
	return c.machineState, true
}
