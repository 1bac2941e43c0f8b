package cycle

import "fmt"

// Settings is one complete set of commanded values.
type Settings struct {
	Mode Mode

	PlateauPressure        float64
	PEEP                   float64
	CyclesPerMinute        float64
	ExpiratoryTerm         float64
	PlateauDuration        float64
	TriggerEnabled         bool
	TriggerOffset          float64
	InspiratoryTriggerFlow float64
	ExpiratoryTriggerFlow  float64
	TiMin                  float64
	TiMax                  float64
	TidalVolume            float64

	HighPressureAlarm                float64
	LowTidalVolumeAlarm              float64
	HighTidalVolumeAlarm             float64
	LowInspiratoryMinuteVolumeAlarm  float64
	HighInspiratoryMinuteVolumeAlarm float64
	LowExpiratoryMinuteVolumeAlarm   float64
	HighExpiratoryMinuteVolumeAlarm  float64
	LowRespiratoryRateAlarm          float64
	HighRespiratoryRateAlarm         float64
	LeakAlarm                        float64
}

// DefaultSettings returns every parameter at its default in PC_CMV mode.
func DefaultSettings() Settings {
	var s Settings
	for _, p := range Params() {
		s.set(p, p.Range().Default)
	}
	s.Mode = PCCMV
	return s
}

// Get returns the value of p. Booleans are reported as 0 or 1.
func (s Settings) Get(p Param) float64 {
	if f := s.field(p); f != nil {
		return *f
	}
	if p == TriggerEnabled && s.TriggerEnabled {
		return 1
	}
	return 0
}

func (s *Settings) set(p Param, v float64) {
	if f := s.field(p); f != nil {
		*f = v
		return
	}
	if p == TriggerEnabled {
		s.TriggerEnabled = v != 0
	}
}

func (s *Settings) field(p Param) *float64 {
	switch p {
	case PlateauPressure:
		return &s.PlateauPressure
	case PEEP:
		return &s.PEEP
	case CyclesPerMinute:
		return &s.CyclesPerMinute
	case ExpiratoryTerm:
		return &s.ExpiratoryTerm
	case PlateauDuration:
		return &s.PlateauDuration
	case TriggerOffset:
		return &s.TriggerOffset
	case InspiratoryTriggerFlow:
		return &s.InspiratoryTriggerFlow
	case ExpiratoryTriggerFlow:
		return &s.ExpiratoryTriggerFlow
	case TiMin:
		return &s.TiMin
	case TiMax:
		return &s.TiMax
	case TidalVolume:
		return &s.TidalVolume
	case HighPressureAlarm:
		return &s.HighPressureAlarm
	case LowTidalVolumeAlarm:
		return &s.LowTidalVolumeAlarm
	case HighTidalVolumeAlarm:
		return &s.HighTidalVolumeAlarm
	case LowInspiratoryMinuteVolumeAlarm:
		return &s.LowInspiratoryMinuteVolumeAlarm
	case HighInspiratoryMinuteVolumeAlarm:
		return &s.HighInspiratoryMinuteVolumeAlarm
	case LowExpiratoryMinuteVolumeAlarm:
		return &s.LowExpiratoryMinuteVolumeAlarm
	case HighExpiratoryMinuteVolumeAlarm:
		return &s.HighExpiratoryMinuteVolumeAlarm
	case LowRespiratoryRateAlarm:
		return &s.LowRespiratoryRateAlarm
	case HighRespiratoryRateAlarm:
		return &s.HighRespiratoryRateAlarm
	case LeakAlarm:
		return &s.LeakAlarm
	}
	return nil
}

// Validate checks every value against its range and the cross-parameter
// constraints.
func (s Settings) Validate() error {
	if !s.Mode.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownMode, s.Mode)
	}
	for _, p := range Params() {
		r := p.Range()
		if v := s.Get(p); !r.Contains(v) {
			return fmt.Errorf("%s=%g not in [%g, %g]: %w", r.Name, v, r.Min, r.Max, ErrOutOfRange)
		}
	}
	return s.consistent()
}

func (s Settings) consistent() error {
	if s.PEEP >= s.PlateauPressure {
		return fmt.Errorf("peep %g must stay below plateau pressure %g: %w", s.PEEP, s.PlateauPressure, ErrInconsistent)
	}
	if s.TiMin >= s.TiMax {
		return fmt.Errorf("ti_min %g must stay below ti_max %g: %w", s.TiMin, s.TiMax, ErrInconsistent)
	}
	if s.LowTidalVolumeAlarm > s.HighTidalVolumeAlarm {
		return fmt.Errorf("tidal volume alarm bounds crossed: %w", ErrInconsistent)
	}
	if s.LowRespiratoryRateAlarm > s.HighRespiratoryRateAlarm {
		return fmt.Errorf("respiratory rate alarm bounds crossed: %w", ErrInconsistent)
	}
	return nil
}
