package cycle

import (
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/ventilator/internal/measure"
)

// CommandSet holds the settings in effect for the running cycle and the
// settings staged by the operator for the next one.
//
// Staging may happen from any goroutine. Only the control loop calls
// Promote, at the start of a cycle, so a multi-field change is never
// observed half-applied inside a breath.
//
// Every staged set must schedule at the tick period, so promotion can never
// hand the control loop a cycle it cannot run.
type CommandSet struct {
	mu      sync.Mutex
	period  time.Duration
	command Settings
	next    Settings
}

// NewCommandSet creates a command set where both sides hold initial.
func NewCommandSet(initial Settings, period time.Duration) (*CommandSet, error) {
	c := &CommandSet{period: period, command: initial, next: initial}
	if err := c.check(initial); err != nil {
		return nil, fmt.Errorf("initial settings: %w", err)
	}
	return c, nil
}

func (c *CommandSet) check(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if _, err := ComputeTiming(s, c.period); err != nil {
		return err
	}
	return nil
}

// Stage requests a new value for p from the next cycle on.
// Out-of-range or inconsistent values are rejected and nothing is staged.
func (c *CommandSet) Stage(p Param, v float64) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownParam, p)
	}
	r := p.Range()
	if !r.Contains(v) {
		return fmt.Errorf("%s=%g not in [%g, %g]: %w", r.Name, v, r.Min, r.Max, ErrOutOfRange)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stageLocked(p, v)
}

func (c *CommandSet) stageLocked(p Param, v float64) error {
	candidate := c.next
	candidate.set(p, v)
	if err := candidate.consistent(); err != nil {
		return err
	}
	if _, err := ComputeTiming(candidate, c.period); err != nil {
		return fmt.Errorf("%s=%g: %w", p.Range().Name, v, err)
	}
	c.next = candidate
	return nil
}

// StageMode requests a ventilation mode change from the next cycle on.
func (c *CommandSet) StageMode(m Mode) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownMode, m)
	}
	c.mu.Lock()
	c.next.Mode = m
	c.mu.Unlock()
	return nil
}

// StageSettings replaces the whole staged set at once.
func (c *CommandSet) StageSettings(s Settings) error {
	if err := c.check(s); err != nil {
		return err
	}
	c.mu.Lock()
	c.next = s
	c.mu.Unlock()
	return nil
}

// Increase stages the next value of p one step up, saturating at its maximum.
func (c *CommandSet) Increase(p Param) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownParam, p)
	}
	r := p.Range()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stageLocked(p, measure.StepUp(c.next.Get(p), r.Step, r.Max))
}

// Decrease stages the next value of p one step down, saturating at its minimum.
func (c *CommandSet) Decrease(p Param) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownParam, p)
	}
	r := p.Range()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stageLocked(p, measure.StepDown(c.next.Get(p), r.Step, r.Min))
}

// Promote makes the staged settings current and returns them.
func (c *CommandSet) Promote() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.command = c.next
	return c.command
}

// Current returns the settings in effect.
func (c *CommandSet) Current() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.command
}

// Next returns the staged settings.
func (c *CommandSet) Next() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Pending reports whether staged settings differ from the current ones.
func (c *CommandSet) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.command != c.next
}
