//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealPanel drives the panel through the Linux GPIO character device.
type RealPanel struct {
	chip    *gpiocdev.Chip
	buttons *gpiocdev.Lines
	leds    *gpiocdev.Lines
}

// NewRealPanel requests the panel lines on chip.
func NewRealPanel(chip string, pins Pins) (*RealPanel, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	// Buttons short the line to ground; pull up so released reads 1.
	buttons, err := c.RequestLines([]int{pins.Start, pins.Stop, pins.Snooze}, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("request button pins %d,%d,%d: %w", pins.Start, pins.Stop, pins.Snooze, err)
	}

	leds, err := c.RequestLines([]int{pins.Red, pins.Yellow, pins.Green}, gpiocdev.AsOutput(0, 0, 0))
	if err != nil {
		buttons.Close()
		c.Close()
		return nil, fmt.Errorf("request LED pins %d,%d,%d: %w", pins.Red, pins.Yellow, pins.Green, err)
	}

	return &RealPanel{chip: c, buttons: buttons, leds: leds}, nil
}

// Read returns the logical button states.
func (p *RealPanel) Read() (Buttons, error) {
	raw := make([]int, 3)
	if err := p.buttons.Values(raw); err != nil {
		return Buttons{}, fmt.Errorf("read buttons: %w", err)
	}
	return Buttons{Start: raw[0] == 0, Stop: raw[1] == 0, Snooze: raw[2] == 0}, nil
}

// SetLEDs drives the LEDs.
func (p *RealPanel) SetLEDs(l LEDs) error {
	if err := p.leds.SetValues([]int{bit(l.Red), bit(l.Yellow), bit(l.Green)}); err != nil {
		return fmt.Errorf("set LEDs: %w", err)
	}
	return nil
}

// Close turns the LEDs off and returns every line to an input with
// pull-down, matching the Raspberry Pi boot defaults.
func (p *RealPanel) Close() error {
	var errs []error

	if p.leds != nil {
		if err := p.leds.SetValues([]int{0, 0, 0}); err != nil {
			errs = append(errs, fmt.Errorf("clear LEDs: %w", err))
		}
		if err := p.leds.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure LED pins: %w", err))
		}
		if err := p.leds.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close LED pins: %w", err))
		}
	}
	if p.buttons != nil {
		if err := p.buttons.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure button pins: %w", err))
		}
		if err := p.buttons.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close button pins: %w", err))
		}
	}
	if p.chip != nil {
		if err := p.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func bit(b bool) int {
	if b {
		return 1
	}
	return 0
}
