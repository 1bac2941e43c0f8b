package panel

import (
	"time"

	"github.com/sweeney/ventilator/internal/alarm"
	"github.com/sweeney/ventilator/internal/gpio"
)

// Blink periods of the alarm LEDs.
const (
	HighBlinkPeriod   = 500 * time.Millisecond
	MediumBlinkPeriod = 2 * time.Second
)

// LEDsFor returns the LED pattern at elapsed time since startup. High
// priority blinks red fast, medium blinks yellow slowly, low lights yellow
// steadily. A snoozed alarm keeps its colour lit without blinking.
func LEDsFor(active alarm.Priority, snoozed, running bool, elapsed time.Duration) gpio.LEDs {
	leds := gpio.LEDs{Green: running}
	switch active {
	case alarm.PriorityHigh:
		leds.Red = snoozed || blinkOn(elapsed, HighBlinkPeriod)
	case alarm.PriorityMedium:
		leds.Yellow = snoozed || blinkOn(elapsed, MediumBlinkPeriod)
	case alarm.PriorityLow:
		leds.Yellow = true
	}
	return leds
}

func blinkOn(elapsed, period time.Duration) bool {
	return elapsed%period < period/2
}
