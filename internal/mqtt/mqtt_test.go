package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/ventilator/internal/alarm"
	"github.com/sweeney/ventilator/internal/command"
	"github.com/sweeney/ventilator/internal/core"
	"github.com/sweeney/ventilator/internal/telemetry"
)

func TestNewTopics(t *testing.T) {
	for _, prefix := range []string{"icu/bed4", "icu/bed4/"} {
		topics := NewTopics(prefix)
		want := Topics{
			Snapshot: "icu/bed4/snapshot",
			State:    "icu/bed4/state",
			Alarm:    "icu/bed4/alarm",
			System:   "icu/bed4/system",
			Command:  "icu/bed4/command",
		}
		if topics != want {
			t.Errorf("prefix %q: got %+v, want %+v", prefix, topics, want)
		}
	}
}

func TestFormatSystemPayload(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-03T10:30:45Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadOmitsEmptyReason(t *testing.T) {
	payload, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC),
		Event:     "RECONNECTED",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T14:30:00Z","event":"RECONNECTED"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	payload, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 11, 30, 45, 0, loc),
		Event:     "STARTUP",
	})

	var parsed SystemPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.System.Timestamp != "2026-02-03T10:30:45Z" {
		t.Errorf("expected UTC timestamp, got %s", parsed.System.Timestamp)
	}
}

func TestFormatSystemPayloadRawPassthrough(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("expected raw payload, got %s", payload)
	}
}

func TestWillPayload(t *testing.T) {
	var parsed SystemPayload
	if err := json.Unmarshal(WillPayload(), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.System.Event != "OFFLINE" {
		t.Errorf("expected OFFLINE event, got %s", parsed.System.Event)
	}
	if parsed.System.Reason != "connection_lost" {
		t.Errorf("unexpected reason: %s", parsed.System.Reason)
	}
}

func TestFakePublisherRecords(t *testing.T) {
	var _ Publisher = NewFakePublisher()
	var _ telemetry.Sink = NewFakePublisher()

	f := NewFakePublisher()
	f.PublishSnapshot(core.Snapshot{Tick: 3})
	f.PublishMachineState(core.MachineState{CycleNumber: 2})
	f.PublishAlarm(alarm.Event{Code: alarm.OverPressure, Raised: true})
	f.PublishSystem(SystemEvent{Event: "HEARTBEAT", Retained: true})

	s, m, a := f.Counts()
	if s != 1 || m != 1 || a != 1 {
		t.Errorf("expected one of each, got %d/%d/%d", s, m, a)
	}
	if f.Snapshots[0].Tick != 3 || f.States[0].CycleNumber != 2 || f.Alarms[0].Code != alarm.OverPressure {
		t.Error("recorded values do not match")
	}
	if len(f.SystemPayloads) != 1 || !f.SystemEvents[0].Retained {
		t.Error("expected retained system event with payload")
	}
}

func TestFakePublisherErrors(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("offline")
	f.PublishSystemError = errors.New("offline")

	if err := f.PublishSnapshot(core.Snapshot{}); err == nil {
		t.Error("expected snapshot error")
	}
	if err := f.PublishAlarm(alarm.Event{}); err == nil {
		t.Error("expected alarm error")
	}
	if err := f.PublishSystem(SystemEvent{}); err == nil {
		t.Error("expected system error")
	}
	if s, m, a := f.Counts(); s+m+a != 0 || len(f.SystemEvents) != 0 {
		t.Error("failed publishes should not be recorded")
	}
}

func TestFakePublisherReset(t *testing.T) {
	f := NewFakePublisher()
	f.PublishSnapshot(core.Snapshot{})
	f.PublishSystem(SystemEvent{Event: "STARTUP"})
	f.Connected = true
	f.Close()

	f.Reset()

	if s, m, a := f.Counts(); s+m+a != 0 {
		t.Error("expected no recorded messages after reset")
	}
	if f.SystemEvents != nil || f.SystemPayloads != nil || f.Closed || f.IsConnected() {
		t.Error("expected clean state after reset")
	}
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestCommandHandler(t *testing.T) {
	requests := make(chan command.Request, 1)
	handler := CommandHandler(requests, zap.NewNop())
	topic := NewTopics("ventilator").Command

	handler(nil, fakeMessage{topic: topic, payload: []byte(`{"action":"set","param":"peep","value":80}`)})
	select {
	case r := <-requests:
		if r.Action != command.ActionSet || r.Param != "peep" || r.Value != 80 || r.Source != "mqtt" {
			t.Errorf("unexpected request: %+v", r)
		}
	default:
		t.Fatal("expected a request")
	}

	handler(nil, fakeMessage{topic: topic, payload: []byte(`{"action":"explode"}`)})
	if len(requests) != 0 {
		t.Error("invalid request should be dropped")
	}

	// A full queue drops instead of blocking the client goroutine.
	handler(nil, fakeMessage{topic: topic, payload: []byte(`{"action":"start"}`)})
	handler(nil, fakeMessage{topic: topic, payload: []byte(`{"action":"stop"}`)})
	if r := <-requests; r.Action != command.ActionStart {
		t.Errorf("expected the first request to be kept, got %s", r.Action)
	}
}

func TestNewRealPublisherRequiresBroker(t *testing.T) {
	if _, err := NewRealPublisher(Options{}); err == nil {
		t.Error("expected error without broker")
	}
}
