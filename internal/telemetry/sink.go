package telemetry

import (
	"errors"

	"github.com/google/uuid"

	"github.com/sweeney/ventilator/internal/alarm"
	"github.com/sweeney/ventilator/internal/core"
)

// Sink receives controller output.
type Sink interface {
	PublishSnapshot(core.Snapshot) error
	PublishMachineState(core.MachineState) error
	PublishAlarm(alarm.Event) error
}

// NewSession returns a fresh identifier tagging every payload of one run,
// so consumers can tell restarts apart.
func NewSession() string {
	return uuid.NewString()
}

// Fanout publishes to every sink and joins their errors.
type Fanout []Sink

func (f Fanout) PublishSnapshot(s core.Snapshot) error {
	var errs []error
	for _, sink := range f {
		errs = append(errs, sink.PublishSnapshot(s))
	}
	return errors.Join(errs...)
}

func (f Fanout) PublishMachineState(m core.MachineState) error {
	var errs []error
	for _, sink := range f {
		errs = append(errs, sink.PublishMachineState(m))
	}
	return errors.Join(errs...)
}

func (f Fanout) PublishAlarm(e alarm.Event) error {
	var errs []error
	for _, sink := range f {
		errs = append(errs, sink.PublishAlarm(e))
	}
	return errors.Join(errs...)
}
