package alarm

import (
	"sort"
	"time"

	"go.uber.org/zap"
)

type state struct {
	def     Definition
	enabled bool
	active  bool
	value   float64

	outCount int // consecutive out-of-bounds evaluations while inactive
	inCount  int // consecutive in-bounds evaluations while active

	lastCycle uint64
	seenCycle bool
}

// Controller evaluates measurements against bounds and owns the
// raise/clear/snooze state of every alarm.
// Not safe for concurrent use; the control loop is the only caller.
type Controller struct {
	logger *zap.Logger

	alarms []*state
	byKind map[Kind][]*state
	byCode map[Code]*state
	bounds [numKinds]Bounds
	bound  [numKinds]bool

	now   time.Time
	cycle uint64

	snoozeFor    time.Duration
	snoozed      bool
	snoozedUntil time.Time
	snoozedCodes map[Code]bool

	events []Event
}

// NewController creates a controller for the given alarm table. Every alarm
// starts enabled and inactive. snooze is how long Snooze silences
// signalling.
func NewController(defs []Definition, snooze time.Duration, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		logger:    logger,
		byKind:    make(map[Kind][]*state),
		byCode:    make(map[Code]*state),
		snoozeFor: snooze,
	}
	for _, d := range defs {
		if d.Debounce < 1 {
			d.Debounce = 1
		}
		s := &state{def: d, enabled: true}
		c.alarms = append(c.alarms, s)
		c.byKind[d.Kind] = append(c.byKind[d.Kind], s)
		c.byCode[d.Code] = s
	}
	return c
}

// Tick sets the clock and cycle number stamped on events and expires an
// elapsed snooze. Call once per control tick before reporting.
func (c *Controller) Tick(now time.Time, cycle uint64) {
	c.now = now
	c.cycle = cycle
	if c.snoozed && !now.Before(c.snoozedUntil) {
		c.logger.Info("alarm snooze expired")
		c.Unsnooze()
	}
}

// SetBounds sets the acceptable range of k.
func (c *Controller) SetBounds(k Kind, b Bounds) {
	if k < 0 || k >= numKinds {
		return
	}
	c.bounds[k] = b
	c.bound[k] = true
}

// Bounds returns the acceptable range of k and whether one was set.
func (c *Controller) Bounds(k Kind) (Bounds, bool) {
	if k < 0 || k >= numKinds {
		return Bounds{}, false
	}
	return c.bounds[k], c.bound[k]
}

// ReportMeasurement evaluates a per-tick reading of k. Every call counts
// towards debounce.
func (c *Controller) ReportMeasurement(k Kind, v float64) {
	for _, s := range c.byKind[k] {
		c.evaluate(s, v)
	}
}

// ReportCycleAggregate evaluates a per-cycle aggregate of k. Only the first
// report of a cycle counts towards debounce.
func (c *Controller) ReportCycleAggregate(k Kind, v float64) {
	for _, s := range c.byKind[k] {
		if s.seenCycle && s.lastCycle == c.cycle {
			continue
		}
		s.seenCycle = true
		s.lastCycle = c.cycle
		c.evaluate(s, v)
	}
}

func (c *Controller) evaluate(s *state, v float64) {
	if !s.enabled {
		return
	}
	s.value = v
	out := c.bound[s.def.Kind] && c.bounds[s.def.Kind].out(s.def.Side, v)
	if out {
		s.inCount = 0
		if s.active {
			return
		}
		s.outCount++
		if s.outCount >= s.def.Debounce {
			s.outCount = 0
			c.raise(s)
		}
		return
	}

	s.outCount = 0
	if !s.active {
		return
	}
	s.inCount++
	if s.inCount >= s.def.Debounce {
		s.inCount = 0
		c.clear(s)
	}
}

func (c *Controller) raise(s *state) {
	s.active = true
	c.emit(s, true)
	if c.snoozed && !c.snoozedCodes[s.def.Code] {
		c.logger.Info("new alarm while snoozed, resuming signalling", zap.Int("code", int(s.def.Code)))
		c.Unsnooze()
	}
}

func (c *Controller) clear(s *state) {
	s.active = false
	s.outCount = 0
	s.inCount = 0
	c.emit(s, false)
}

func (c *Controller) emit(s *state, raised bool) {
	e := Event{
		Time:     c.now,
		Code:     s.def.Code,
		Kind:     s.def.Kind,
		Priority: s.def.Priority,
		Raised:   raised,
		Value:    s.value,
		Cycle:    c.cycle,
	}
	c.events = append(c.events, e)
	c.logger.Debug("alarm transition", zap.Stringer("event", e))
}

// SetEnabled restricts evaluation to codes. A nil slice enables every
// alarm. Active alarms that become disabled are cleared.
func (c *Controller) SetEnabled(codes []Code) {
	allowed := make(map[Code]bool, len(codes))
	for _, code := range codes {
		allowed[code] = true
	}
	for _, s := range c.alarms {
		s.enabled = codes == nil || allowed[s.def.Code]
		if !s.enabled {
			if s.active {
				c.clear(s)
			}
			s.outCount = 0
			s.seenCycle = false
		}
	}
}

// Enabled reports whether code is evaluated.
func (c *Controller) Enabled(code Code) bool {
	s, ok := c.byCode[code]
	return ok && s.enabled
}

// Clear immediately deactivates the given alarms and resets their debounce.
func (c *Controller) Clear(codes ...Code) {
	for _, code := range codes {
		s, ok := c.byCode[code]
		if !ok {
			continue
		}
		s.seenCycle = false
		if s.active {
			c.clear(s)
		}
		s.outCount = 0
	}
}

// Snooze silences signalling of the currently active alarms for the
// configured duration. Alarm state itself is unaffected.
func (c *Controller) Snooze() {
	c.snoozed = true
	c.snoozedUntil = c.now.Add(c.snoozeFor)
	c.snoozedCodes = make(map[Code]bool)
	for _, s := range c.alarms {
		if s.active {
			c.snoozedCodes[s.def.Code] = true
		}
	}
	c.logger.Info("alarms snoozed", zap.Duration("for", c.snoozeFor), zap.Int("active", len(c.snoozedCodes)))
}

// Unsnooze resumes signalling.
func (c *Controller) Unsnooze() {
	c.snoozed = false
	c.snoozedCodes = nil
}

// Snoozed reports whether signalling is silenced.
func (c *Controller) Snoozed() bool { return c.snoozed }

// IsActive reports whether code is raised.
func (c *Controller) IsActive(code Code) bool {
	s, ok := c.byCode[code]
	return ok && s.active
}

// Active returns the raised alarm codes, highest priority first.
func (c *Controller) Active() []Code {
	var active []*state
	for _, s := range c.alarms {
		if s.active {
			active = append(active, s)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].def.Priority != active[j].def.Priority {
			return active[i].def.Priority > active[j].def.Priority
		}
		return active[i].def.Code < active[j].def.Code
	})
	codes := make([]Code, len(active))
	for i, s := range active {
		codes[i] = s.def.Code
	}
	return codes
}

// HighestPriority returns the priority of the most severe raised alarm.
func (c *Controller) HighestPriority() Priority {
	p := PriorityNone
	for _, s := range c.alarms {
		if s.active && s.def.Priority > p {
			p = s.def.Priority
		}
	}
	return p
}

// Signalling returns the priority to present to the operator: the highest
// raised priority, or PriorityNone while snoozed.
func (c *Controller) Signalling() Priority {
	if c.snoozed {
		return PriorityNone
	}
	return c.HighestPriority()
}

// Events drains the raise/clear transitions accumulated since the last call.
func (c *Controller) Events() []Event {
	events := c.events
	c.events = nil
	return events
}
