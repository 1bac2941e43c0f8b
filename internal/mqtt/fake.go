package mqtt

import (
	"sync"

	"github.com/sweeney/ventilator/internal/alarm"
	"github.com/sweeney/ventilator/internal/core"
)

// FakePublisher records published messages for test assertions.
// It is safe for concurrent use so it can sit behind a telemetry.Queue.
type FakePublisher struct {
	mu sync.Mutex

	// Snapshots contains all tick snapshots that were published.
	Snapshots []core.Snapshot

	// States contains all machine states that were published.
	States []core.MachineState

	// Alarms contains all alarm transitions that were published.
	Alarms []alarm.Event

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by the telemetry methods.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishSnapshot records the snapshot.
func (f *FakePublisher) PublishSnapshot(s core.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Snapshots = append(f.Snapshots, s)
	return nil
}

// PublishMachineState records the machine state.
func (f *FakePublisher) PublishMachineState(m core.MachineState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.States = append(f.States, m)
	return nil
}

// PublishAlarm records the alarm transition.
func (f *FakePublisher) PublishAlarm(e alarm.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Alarms = append(f.Alarms, e)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	f.SystemEvents = append(f.SystemEvents, event)

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemPayloads = append(f.SystemPayloads, payload)

	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Counts returns the number of snapshots, states and alarms recorded.
func (f *FakePublisher) Counts() (snapshots, states, alarms int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Snapshots), len(f.States), len(f.Alarms)
}

// Reset clears recorded messages.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Snapshots = nil
	f.States = nil
	f.Alarms = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
