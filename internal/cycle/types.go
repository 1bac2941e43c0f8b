// Package cycle defines the respiratory cycle model: phases, ventilation
// modes, tunable parameters and the staged command set.
package cycle

import (
	"fmt"
	"strings"
)

// Phase is the part of a respiratory cycle a tick belongs to.
type Phase int

// Phases in the order they occur within a cycle.
const (
	Inhalation Phase = iota
	Plateau
	Exhalation
)

func (p Phase) String() string {
	switch p {
	case Inhalation:
		return "INHALATION"
	case Plateau:
		return "PLATEAU"
	case Exhalation:
		return "EXHALATION"
	}
	return "UNKNOWN"
}

// Mode selects the ventilation control law.
type Mode int

// Ventilation modes.
const (
	PCCMV  Mode = iota // pressure controlled, mandatory
	PCAC               // pressure controlled, assisted
	PCVSAI             // pressure controlled, spontaneous with inspiratory aid
	VCCMV              // volume controlled, mandatory
	VCAC               // volume controlled, assisted
)

var modeNames = [...]string{"PC_CMV", "PC_AC", "PC_VSAI", "VC_CMV", "VC_AC"}

func (m Mode) String() string {
	if !m.Valid() {
		return "UNKNOWN"
	}
	return modeNames[m]
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m >= PCCMV && int(m) < len(modeNames)
}

// VolumeControlled reports whether m regulates delivered volume rather than pressure.
func (m Mode) VolumeControlled() bool {
	return m == VCCMV || m == VCAC
}

// Assisted reports whether m lets the patient trigger breaths.
func (m Mode) Assisted() bool {
	return m == PCAC || m == PCVSAI || m == VCAC
}

// ParseMode converts a mode name such as "PC_AC" (case-insensitive) to a Mode.
func ParseMode(s string) (Mode, error) {
	for i, name := range modeNames {
		if strings.EqualFold(s, name) {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// State is the position of the control loop within the current cycle.
// It is owned by the main controller; other packages receive copies.
type State struct {
	CycleNumber uint64
	Tick        int
	Timing      Timing
	Phase       Phase
	Triggered   bool // cycle was started by patient effort
}
