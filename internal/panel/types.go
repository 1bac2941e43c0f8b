// Package panel turns raw front panel samples into debounced button presses
// and maps the alarm state onto the panel LEDs.
// This package has NO hardware dependencies; time is always injected.
package panel

import "time"

// Button identifies a front panel push button.
type Button string

const (
	ButtonStart  Button = "START"
	ButtonStop   Button = "STOP"
	ButtonSnooze Button = "SNOOZE"
)

// Press is a debounced released-to-pressed transition.
type Press struct {
	Timestamp time.Time
	Button    Button
}

// buttonState tracks debounce state for a single button.
type buttonState struct {
	// Current stable (debounced) state
	stable bool
	// Pending state during debounce
	pending    bool
	hasPending bool
	// Time when pending state was first observed
	pendingSince time.Time
	// Whether we have established a baseline
	baselined bool
}

// PressCounts tracks the number of presses per button since startup.
type PressCounts struct {
	Start  int
	Stop   int
	Snooze int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    PressCounts
}
