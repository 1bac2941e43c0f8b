package core

import (
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/ventilator/internal/alarm"
	"github.com/sweeney/ventilator/internal/cycle"
	"github.com/sweeney/ventilator/internal/hal"
	"github.com/sweeney/ventilator/internal/ventilation"
)

// DefaultPeriod is the control loop period.
const DefaultPeriod = 10 * time.Millisecond

// Calibration holds device-specific constants of the main controller.
type Calibration struct {
	Control ventilation.Calibration

	TriggerDeadTime  time.Duration // no trigger this long after exhalation starts
	TriggerMinPeak   float64       // mmH2O; lower peaks mean no patient is connected
	PressureSamples  int           // window of the PEEP detector and smoothed pressure
	PEEPStableSpread float64       // mmH2O; max spread of the window to detect PEEP
	PEEPCaptureBand  float64       // mmH2O; max distance to the PEEP command
	BreathPeriods    int           // breaths averaged for the respiratory rate

	MaxPressure       float64 // mmH2O; over-pressure safety override
	StaleLimit        int     // consecutive stale ticks before the sensor fault alarm
	PlateauTolerance  float64 // percent of the plateau command
	PEEPTolerance     float64 // mmH2O around the PEEP command
	MinMeanPressure   float64 // mmH2O; lower cycle means suggest a disconnection
	BlowerRampPerSec  float64 // blower acceleration, speed units per second
	AlarmDebounce     alarm.Debounce
	AlarmSnoozeLength time.Duration
}

// DefaultCalibration returns the constants the device ships with.
func DefaultCalibration() Calibration {
	return Calibration{
		Control:           ventilation.DefaultCalibration(),
		TriggerDeadTime:   700 * time.Millisecond,
		TriggerMinPeak:    100,
		PressureSamples:   10,
		PEEPStableSpread:  5,
		PEEPCaptureBand:   30,
		BreathPeriods:     3,
		MaxPressure:       800,
		StaleLimit:        50,
		PlateauTolerance:  20,
		PEEPTolerance:     20,
		MinMeanPressure:   20,
		BlowerRampPerSec:  1000,
		AlarmDebounce:     alarm.DefaultDebounce(),
		AlarmSnoozeLength: 120 * time.Second,
	}
}

// Options configures a MainController.
type Options struct {
	Sensors   hal.Sensors
	Actuators hal.Actuators

	// Alarms is created from Calibration when nil.
	Alarms *alarm.Controller
	Logger *zap.Logger

	Period      time.Duration
	Calibration Calibration
	Settings    cycle.Settings
}
