// Package alarm tracks the alarm state of the ventilator: which monitored
// quantities are out of bounds, for how long, and whether signalling is
// snoozed.
package alarm

import (
	"fmt"
	"time"
)

// Kind is a monitored quantity.
type Kind int

// Monitored quantities.
const (
	PlateauPressure         Kind = iota // mmH2O, per cycle
	MeanPressure                        // mmH2O, per cycle
	PEEP                                // mmH2O, per cycle
	PeakPressure                        // mmH2O, per tick
	TidalVolume                         // mL, per cycle
	InspiratoryMinuteVolume             // L/min, per cycle
	ExpiratoryMinuteVolume              // L/min, per cycle
	RespiratoryRate                     // 1/min, per cycle
	Leak                                // L/min, per cycle
	SensorStaleness                     // consecutive stale ticks, per tick

	numKinds
)

var kindNames = [numKinds]string{
	"plateau_pressure", "mean_pressure", "peep", "peak_pressure", "tidal_volume",
	"inspiratory_minute_volume", "expiratory_minute_volume", "respiratory_rate",
	"leak", "sensor_staleness",
}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return "unknown"
	}
	return kindNames[k]
}

// Code identifies an alarm. Values follow the RCM-SW requirement numbering.
type Code int

// Alarm codes.
const (
	PlateauNotReached           Code = 1
	LowPressure                 Code = 2
	PEEPNotReached              Code = 3
	LowInspiratoryMinuteVolume  Code = 4
	HighInspiratoryMinuteVolume Code = 5
	LowExpiratoryMinuteVolume   Code = 6
	HighExpiratoryMinuteVolume  Code = 7
	LowRespiratoryRate          Code = 8
	HighRespiratoryRate         Code = 9
	LeakDetected                Code = 10
	PlateauNotReachedMedium     Code = 14
	PEEPNotReachedMedium        Code = 15
	OverPressure                Code = 18
	LowPressureMedium           Code = 19
	LowTidalVolume              Code = 20
	HighTidalVolume             Code = 21
	SensorFault                 Code = 30
)

// Priority orders alarms for signalling.
type Priority int

// Priorities, lowest first.
const (
	PriorityNone Priority = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityHigh:
		return "HIGH"
	}
	return "NONE"
}

// Side selects which bound of a Kind an alarm watches.
type Side int

// Bound sides.
const (
	Below Side = iota + 1
	Above
	Outside // either bound
)

// Definition is the static description of one alarm.
type Definition struct {
	Code     Code
	Kind     Kind
	Side     Side
	Priority Priority
	Debounce int // consecutive evaluations needed to raise, and to clear
}

// Bounds is the acceptable range of a Kind. A missing bound never trips.
type Bounds struct {
	Low     float64
	High    float64
	HasLow  bool
	HasHigh bool
}

// Between returns bounds with both limits set.
func Between(low, high float64) Bounds {
	return Bounds{Low: low, High: high, HasLow: true, HasHigh: true}
}

// AtLeast returns bounds with only a lower limit.
func AtLeast(low float64) Bounds { return Bounds{Low: low, HasLow: true} }

// AtMost returns bounds with only an upper limit.
func AtMost(high float64) Bounds { return Bounds{High: high, HasHigh: true} }

func (b Bounds) below(v float64) bool { return b.HasLow && v < b.Low }
func (b Bounds) above(v float64) bool { return b.HasHigh && v > b.High }

func (b Bounds) out(side Side, v float64) bool {
	switch side {
	case Below:
		return b.below(v)
	case Above:
		return b.above(v)
	case Outside:
		return b.below(v) || b.above(v)
	}
	return false
}

// Event reports a raise or clear transition.
type Event struct {
	Time     time.Time
	Code     Code
	Kind     Kind
	Priority Priority
	Raised   bool
	Value    float64
	Cycle    uint64
}

func (e Event) String() string {
	state := "cleared"
	if e.Raised {
		state = "raised"
	}
	return fmt.Sprintf("RCM-SW-%d %s %s (%s=%g)", e.Code, e.Priority, state, e.Kind, e.Value)
}

// Debounce holds the consecutive-evaluation counts used by the default
// definitions.
type Debounce struct {
	High        int // per-cycle high priority alarms
	Medium      int // per-cycle medium priority alarms
	Immediate   int // per-tick over-pressure alarm
	SensorFault int
}

// DefaultDebounce returns the counts the device ships with.
func DefaultDebounce() Debounce {
	return Debounce{High: 3, Medium: 2, Immediate: 1, SensorFault: 1}
}

// DefaultDefinitions returns the full alarm table with the given counts.
func DefaultDefinitions(d Debounce) []Definition {
	return []Definition{
		{PlateauNotReached, PlateauPressure, Outside, PriorityHigh, d.High},
		{PlateauNotReachedMedium, PlateauPressure, Outside, PriorityMedium, d.Medium},
		{LowPressure, MeanPressure, Below, PriorityHigh, d.High},
		{LowPressureMedium, MeanPressure, Below, PriorityMedium, d.Medium},
		{PEEPNotReached, PEEP, Outside, PriorityHigh, d.High},
		{PEEPNotReachedMedium, PEEP, Outside, PriorityMedium, d.Medium},
		{LowInspiratoryMinuteVolume, InspiratoryMinuteVolume, Below, PriorityHigh, d.High},
		{HighInspiratoryMinuteVolume, InspiratoryMinuteVolume, Above, PriorityHigh, d.High},
		{LowExpiratoryMinuteVolume, ExpiratoryMinuteVolume, Below, PriorityHigh, d.High},
		{HighExpiratoryMinuteVolume, ExpiratoryMinuteVolume, Above, PriorityHigh, d.High},
		{LowRespiratoryRate, RespiratoryRate, Below, PriorityHigh, d.High},
		{HighRespiratoryRate, RespiratoryRate, Above, PriorityHigh, d.High},
		{LeakDetected, Leak, Above, PriorityHigh, d.High},
		{OverPressure, PeakPressure, Above, PriorityHigh, d.Immediate},
		{LowTidalVolume, TidalVolume, Below, PriorityHigh, d.High},
		{HighTidalVolume, TidalVolume, Above, PriorityHigh, d.High},
		{SensorFault, SensorStaleness, Above, PriorityHigh, d.SensorFault},
	}
}

// AllCodes returns every alarm code of the default table.
func AllCodes() []Code {
	defs := DefaultDefinitions(DefaultDebounce())
	codes := make([]Code, len(defs))
	for i, d := range defs {
		codes[i] = d.Code
	}
	return codes
}
