package cycle

import (
	"fmt"
	"math"
	"time"
)

// Timing is the tick schedule of one cycle. Inhalation covers ticks
// [0, TicksPerInhalation-TicksPerPlateau), plateau the rest of
// [0, TicksPerInhalation), exhalation [TicksPerInhalation, TicksPerCycle).
type Timing struct {
	TicksPerCycle      int
	TicksPerInhalation int // inspiratory time, plateau included
	TicksPerPlateau    int
}

// ComputeTiming derives the tick schedule from the commanded rate, I:E
// terms and plateau duration.
func ComputeTiming(s Settings, period time.Duration) (Timing, error) {
	if period <= 0 {
		return Timing{}, fmt.Errorf("tick period %v must be positive: %w", period, ErrInconsistent)
	}
	if s.CyclesPerMinute <= 0 || s.ExpiratoryTerm < 0 {
		return Timing{}, fmt.Errorf("cycles_per_minute=%g expiratory_term=%g: %w", s.CyclesPerMinute, s.ExpiratoryTerm, ErrOutOfRange)
	}
	cycleDuration := float64(time.Minute) / s.CyclesPerMinute
	t := Timing{
		TicksPerCycle:   int(math.Round(cycleDuration / float64(period))),
		TicksPerPlateau: TicksFor(s.PlateauDuration, period),
	}
	t.TicksPerInhalation = int(math.Round(float64(t.TicksPerCycle) * InspiratoryTerm / (InspiratoryTerm + s.ExpiratoryTerm)))
	if err := t.validate(); err != nil {
		return Timing{}, err
	}
	return t, nil
}

// TicksFor converts a duration in milliseconds to a tick count.
func TicksFor(ms float64, period time.Duration) int {
	if period <= 0 {
		return 0
	}
	return int(math.Round(ms * float64(time.Millisecond) / float64(period)))
}

func (t Timing) validate() error {
	if t.TicksPerCycle < 2 {
		return fmt.Errorf("cycle of %d ticks is too short: %w", t.TicksPerCycle, ErrInconsistent)
	}
	if t.TicksPerInhalation >= t.TicksPerCycle || t.TicksPerInhalation < 1 {
		return fmt.Errorf("inhalation of %d ticks does not fit a %d tick cycle: %w", t.TicksPerInhalation, t.TicksPerCycle, ErrInconsistent)
	}
	if t.TicksPerPlateau < 0 || t.TicksPerPlateau >= t.TicksPerInhalation {
		return fmt.Errorf("plateau of %d ticks does not fit a %d tick inhalation: %w", t.TicksPerPlateau, t.TicksPerInhalation, ErrInconsistent)
	}
	return nil
}

// InspiratoryFlowTicks is the number of ticks before the plateau starts.
func (t Timing) InspiratoryFlowTicks() int {
	return t.TicksPerInhalation - t.TicksPerPlateau
}

// PhaseAt returns the scheduled phase for tick.
func (t Timing) PhaseAt(tick int) Phase {
	switch {
	case tick < t.InspiratoryFlowTicks():
		return Inhalation
	case tick < t.TicksPerInhalation:
		return Plateau
	}
	return Exhalation
}

// CutToPlateau ends inspiratory flow after tick: the plateau starts on the
// next tick. The schedule is only ever shortened.
func (t Timing) CutToPlateau(tick int) Timing {
	if end := tick + 1 + t.TicksPerPlateau; end < t.TicksPerInhalation {
		t.TicksPerInhalation = end
	}
	return t
}

// CutToExhalation ends inhalation after tick, skipping any plateau.
// The schedule is only ever shortened.
func (t Timing) CutToExhalation(tick int) Timing {
	if end := tick + 1; end < t.TicksPerInhalation {
		t.TicksPerInhalation = end
		t.TicksPerPlateau = 0
	}
	return t
}

// CapInhalation limits inspiratory time to max ticks, keeping the plateau
// inside it.
func (t Timing) CapInhalation(max int) Timing {
	if max < 1 || t.TicksPerInhalation <= max {
		return t
	}
	t.TicksPerInhalation = max
	if t.TicksPerPlateau >= max {
		t.TicksPerPlateau = max - 1
	}
	return t
}
