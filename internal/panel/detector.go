package panel

import (
	"time"

	"github.com/sweeney/ventilator/internal/gpio"
)

// Detector debounces the panel buttons and reports presses.
// A button already held when sampling starts is baselined as pressed and
// only reports after it is released and pressed again.
type Detector struct {
	debounceDuration time.Duration
	start            buttonState
	stop             buttonState
	snooze           buttonState
	baselined        bool
	startTime        time.Time
	counts           PressCounts
	lastHeartbeat    time.Time
}

// NewDetector creates a press detector with the given debounce duration.
// The startTime is used for calculating uptime in heartbeat events.
func NewDetector(debounceDuration time.Duration, startTime time.Time) *Detector {
	return &Detector{
		debounceDuration: debounceDuration,
		startTime:        startTime,
		lastHeartbeat:    startTime,
	}
}

// Process takes a new sample and returns the presses it completes.
// Presses are only returned once every button is baselined.
func (d *Detector) Process(b gpio.Buttons, now time.Time) []Press {
	pressed := []struct {
		button Button
		state  *buttonState
		value  bool
	}{
		{ButtonStart, &d.start, b.Start},
		{ButtonStop, &d.stop, b.Stop},
		{ButtonSnooze, &d.snooze, b.Snooze},
	}

	var presses []Press
	for _, p := range pressed {
		if d.processButton(p.state, p.value, now) {
			presses = append(presses, Press{Timestamp: now, Button: p.button})
		}
	}

	if !d.baselined {
		if d.start.baselined && d.stop.baselined && d.snooze.baselined {
			d.baselined = true
		}
		return nil
	}

	for _, p := range presses {
		switch p.Button {
		case ButtonStart:
			d.counts.Start++
		case ButtonStop:
			d.counts.Stop++
		case ButtonSnooze:
			d.counts.Snooze++
		}
	}
	return presses
}

// processButton handles debounce logic for a single button.
// Returns true on a debounced transition to pressed.
func (d *Detector) processButton(s *buttonState, value bool, now time.Time) bool {
	if !s.baselined {
		if !s.hasPending || s.pending != value {
			s.pending = value
			s.hasPending = true
			s.pendingSince = now
			return false
		}
		if now.Sub(s.pendingSince) >= d.debounceDuration {
			s.stable = value
			s.baselined = true
			s.hasPending = false
		}
		return false
	}

	if value == s.stable {
		s.hasPending = false
		return false
	}

	if !s.hasPending || s.pending != value {
		s.pending = value
		s.hasPending = true
		s.pendingSince = now
		return false
	}

	if now.Sub(s.pendingSince) >= d.debounceDuration {
		s.stable = value
		s.hasPending = false
		return value
	}
	return false
}

// IsBaselined returns whether the detector has established a baseline.
func (d *Detector) IsBaselined() bool {
	return d.baselined
}

// Counts returns the presses seen since startup.
func (d *Detector) Counts() PressCounts {
	return d.counts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if not yet baselined, if the
// interval has not elapsed, or if interval is <= 0 (disabled).
func (d *Detector) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if !d.baselined {
		return nil
	}

	if now.Sub(d.lastHeartbeat) < interval {
		return nil
	}

	d.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(d.startTime),
		Counts:    d.counts,
	}
}
