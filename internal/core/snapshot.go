package core

import (
	"time"

	"github.com/sweeney/ventilator/internal/alarm"
	"github.com/sweeney/ventilator/internal/cycle"
)

// StopReason tells why the controller is not cycling.
type StopReason int

// Stop reasons.
const (
	NotStopped StopReason = iota
	StopStartup           // never started since power up
	StopRequested         // operator stop
	StopInvalidTiming     // settings produced an unusable cycle schedule
)

var stopReasonNames = [...]string{"none", "startup", "requested", "invalid_timing"}

func (r StopReason) String() string {
	if r < 0 || int(r) >= len(stopReasonNames) {
		return "unknown"
	}
	return stopReasonNames[r]
}

// Snapshot is the per-tick view of the controller for telemetry and UI.
type Snapshot struct {
	Time        time.Time
	CycleNumber uint64
	Tick        int
	Phase       cycle.Phase
	Triggered   bool
	Running     bool
	Mode        cycle.Mode

	Pressure          float64 // mmH2O
	SmoothedPressure  float64 // mmH2O
	InspiratoryFlow   float64 // L/min
	ExpiratoryFlow    float64 // L/min
	InspiratoryVolume float64 // mL since inhalation start
	ExpiratoryVolume  float64 // mL since exhalation start

	BlowerSpeed  float64
	BlowerValve  float64
	PatientValve float64

	ActiveAlarms []alarm.Code
	Snoozed      bool
	StopReason   StopReason
}

// Measures are the aggregates of one completed cycle.
type Measures struct {
	PeakPressure    float64 // mmH2O
	PlateauPressure float64 // mmH2O
	PEEP            float64 // mmH2O
	MeanPressure    float64 // mmH2O

	TidalVolume      float64 // mL
	ExpiratoryVolume float64 // mL

	RespiratoryRate         float64 // breaths/min
	InspiratoryMinuteVolume float64 // L/min
	ExpiratoryMinuteVolume  float64 // L/min
	Leak                    float64 // L/min
}

// MachineState is published once per completed cycle.
type MachineState struct {
	Time         time.Time
	CycleNumber  uint64
	Mode         cycle.Mode
	Triggered    bool
	Measures     Measures
	NextSettings cycle.Settings
	ActiveAlarms []alarm.Code
}
