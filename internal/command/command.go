// Package command parses operator requests arriving over MQTT or HTTP and
// applies them to the controller between ticks.
package command

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sweeney/ventilator/internal/cycle"
)

// Action is what an operator request does.
type Action string

const (
	ActionStart    Action = "start"
	ActionStop     Action = "stop"
	ActionSnooze   Action = "snooze"
	ActionSet      Action = "set"
	ActionIncrease Action = "increase"
	ActionDecrease Action = "decrease"
	ActionMode     Action = "mode"
)

// ErrInvalidRequest wraps every parse failure.
var ErrInvalidRequest = errors.New("invalid request")

// Request is one operator request. Param and Value are used by set,
// increase and decrease; Mode by mode.
type Request struct {
	Action Action  `json:"action"`
	Param  string  `json:"param,omitempty"`
	Value  float64 `json:"value,omitempty"`
	Mode   string  `json:"mode,omitempty"`

	// Source names the interface the request came from, for logging.
	Source string `json:"-"`
}

// Target is the controller surface requests act on.
type Target interface {
	Start()
	Stop()
	Snooze()
	StageCommand(p cycle.Param, v float64) error
	IncreaseCommand(p cycle.Param) error
	DecreaseCommand(p cycle.Param) error
	SetVentilationMode(m cycle.Mode) error
}

// Parse decodes and validates a JSON request.
func Parse(data []byte, source string) (Request, error) {
	var r Request
	if err := json.Unmarshal(data, &r); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	r.Source = source
	if err := r.Validate(); err != nil {
		return Request{}, err
	}
	return r, nil
}

// Validate checks that the request names a known action and its operands
// resolve. Value ranges are checked when the request is applied.
func (r Request) Validate() error {
	switch r.Action {
	case ActionStart, ActionStop, ActionSnooze:
		return nil
	case ActionSet, ActionIncrease, ActionDecrease:
		if _, err := cycle.ParseParam(r.Param); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return nil
	case ActionMode:
		if _, err := cycle.ParseMode(r.Mode); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown action %q", ErrInvalidRequest, r.Action)
}

// Apply performs r on t.
func Apply(t Target, r Request) error {
	if err := r.Validate(); err != nil {
		return err
	}
	switch r.Action {
	case ActionStart:
		t.Start()
	case ActionStop:
		t.Stop()
	case ActionSnooze:
		t.Snooze()
	case ActionSet, ActionIncrease, ActionDecrease:
		p, _ := cycle.ParseParam(r.Param)
		switch r.Action {
		case ActionSet:
			return t.StageCommand(p, r.Value)
		case ActionIncrease:
			return t.IncreaseCommand(p)
		default:
			return t.DecreaseCommand(p)
		}
	case ActionMode:
		m, _ := cycle.ParseMode(r.Mode)
		return t.SetVentilationMode(m)
	}
	return nil
}

// Offer hands r to ch without blocking; it reports false when ch is full.
func Offer(ch chan<- Request, r Request) bool {
	select {
	case ch <- r:
		return true
	default:
		return false
	}
}
