// Package gpio drives the front panel: three push buttons and three LEDs
// wired to the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Panel reads the buttons and drives the LEDs.
type Panel interface {
	// Read returns the logical button states.
	// Buttons pull their line low, so raw inactive = logical pressed.
	Read() (Buttons, error)

	// SetLEDs drives the LEDs.
	SetLEDs(LEDs) error

	// Close releases GPIO resources.
	Close() error
}

// Buttons are the logical button states, true = pressed.
type Buttons struct {
	Start  bool
	Stop   bool
	Snooze bool
}

// LEDs are the LED states, true = lit.
type LEDs struct {
	Red    bool // high priority alarm
	Yellow bool // medium or low priority alarm
	Green  bool // ventilating
}

// Pins are the BCM pin numbers of the panel.
type Pins struct {
	Start, Stop, Snooze int
	Red, Yellow, Green  int
}

// DefaultPins returns the wiring of the reference panel.
func DefaultPins() Pins {
	return Pins{
		Start:  26,
		Stop:   16,
		Snooze: 20,
		Red:    17,
		Yellow: 27,
		Green:  22,
	}
}
