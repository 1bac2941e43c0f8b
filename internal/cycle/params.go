package cycle

import (
	"errors"
	"fmt"
	"strings"
)

// Errors returned when staging commands.
var (
	ErrUnknownParam = errors.New("unknown parameter")
	ErrUnknownMode  = errors.New("unknown ventilation mode")
	ErrOutOfRange   = errors.New("value out of range")
	ErrInconsistent = errors.New("inconsistent settings")
)

// Param identifies a tunable setting.
type Param int

// Tunable settings. Pressures are mmH2O, flows L/min, volumes mL,
// durations ms.
const (
	PlateauPressure Param = iota
	PEEP
	CyclesPerMinute
	ExpiratoryTerm
	PlateauDuration
	TriggerEnabled
	TriggerOffset
	InspiratoryTriggerFlow
	ExpiratoryTriggerFlow
	TiMin
	TiMax
	TidalVolume
	HighPressureAlarm
	LowTidalVolumeAlarm
	HighTidalVolumeAlarm
	LowInspiratoryMinuteVolumeAlarm
	HighInspiratoryMinuteVolumeAlarm
	LowExpiratoryMinuteVolumeAlarm
	HighExpiratoryMinuteVolumeAlarm
	LowRespiratoryRateAlarm
	HighRespiratoryRateAlarm
	LeakAlarm

	numParams
)

// InspiratoryTerm is the fixed inspiratory side of the I:E ratio.
const InspiratoryTerm = 10

// Range describes the validated bounds of a parameter.
type Range struct {
	Name    string
	Unit    string
	Min     float64
	Max     float64
	Default float64
	Step    float64 // increment used by Increase/Decrease
}

var ranges = [numParams]Range{
	PlateauPressure:                  {"plateau_pressure", "mmH2O", 100, 400, 200, 10},
	PEEP:                             {"peep", "mmH2O", 50, 300, 100, 10},
	CyclesPerMinute:                  {"cycles_per_minute", "1/min", 5, 35, 20, 1},
	ExpiratoryTerm:                   {"expiratory_term", "", 10, 60, 20, 1},
	PlateauDuration:                  {"plateau_duration", "ms", 0, 1000, 200, 50},
	TriggerEnabled:                   {"trigger_enabled", "", 0, 1, 0, 1},
	TriggerOffset:                    {"trigger_offset", "mmH2O", 0, 100, 20, 5},
	InspiratoryTriggerFlow:           {"inspiratory_trigger_flow", "L/min", 0.5, 20, 2, 0.5},
	ExpiratoryTriggerFlow:            {"expiratory_trigger_flow", "%", 10, 90, 30, 5},
	TiMin:                            {"ti_min", "ms", 100, 3000, 300, 50},
	TiMax:                            {"ti_max", "ms", 200, 5000, 3000, 50},
	TidalVolume:                      {"tidal_volume", "mL", 50, 2000, 400, 10},
	HighPressureAlarm:                {"high_pressure_alarm", "mmH2O", 100, 700, 600, 10},
	LowTidalVolumeAlarm:              {"low_tidal_volume_alarm", "mL", 0, 2000, 200, 10},
	HighTidalVolumeAlarm:             {"high_tidal_volume_alarm", "mL", 0, 2000, 1000, 10},
	LowInspiratoryMinuteVolumeAlarm:  {"low_inspiratory_minute_volume_alarm", "L/min", 0, 40, 2, 1},
	HighInspiratoryMinuteVolumeAlarm: {"high_inspiratory_minute_volume_alarm", "L/min", 0, 40, 20, 1},
	LowExpiratoryMinuteVolumeAlarm:   {"low_expiratory_minute_volume_alarm", "L/min", 0, 40, 2, 1},
	HighExpiratoryMinuteVolumeAlarm:  {"high_expiratory_minute_volume_alarm", "L/min", 0, 40, 20, 1},
	LowRespiratoryRateAlarm:          {"low_respiratory_rate_alarm", "1/min", 0, 80, 5, 1},
	HighRespiratoryRateAlarm:         {"high_respiratory_rate_alarm", "1/min", 0, 80, 40, 1},
	LeakAlarm:                        {"leak_alarm", "L/min", 0, 40, 10, 1},
}

// Params returns every tunable parameter in declaration order.
func Params() []Param {
	out := make([]Param, numParams)
	for i := range out {
		out[i] = Param(i)
	}
	return out
}

// Valid reports whether p names a known parameter.
func (p Param) Valid() bool { return p >= 0 && p < numParams }

// Range returns the bounds of p.
func (p Param) Range() Range {
	if !p.Valid() {
		return Range{Name: "unknown"}
	}
	return ranges[p]
}

func (p Param) String() string { return p.Range().Name }

// Contains reports whether v lies within the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// ParseParam looks a parameter up by its name (case-insensitive).
func ParseParam(name string) (Param, error) {
	for i := range ranges {
		if strings.EqualFold(ranges[i].Name, name) {
			return Param(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownParam, name)
}
