// Package mqtt publishes ventilator telemetry to an MQTT broker and
// receives operator commands from it, with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/sweeney/ventilator/internal/telemetry"
)

// ErrNotConnected is returned for messages dropped while the broker is
// unreachable.
var ErrNotConnected = errors.New("mqtt: not connected")

// Topics are the MQTT topics of one ventilator.
type Topics struct {
	Snapshot string // per-tick samples, QoS 0
	State    string // per-cycle machine state, QoS 1, retained
	Alarm    string // alarm transitions, QoS 1
	System   string // lifecycle events and last will, QoS 1
	Command  string // operator requests, subscribed
}

// NewTopics returns the topics under prefix.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimSuffix(prefix, "/")
	return Topics{
		Snapshot: prefix + "/snapshot",
		State:    prefix + "/state",
		Alarm:    prefix + "/alarm",
		System:   prefix + "/system",
		Command:  prefix + "/command",
	}
}

// Publisher publishes ventilator output to MQTT.
type Publisher interface {
	// Publishing errors should never stop the control loop.
	telemetry.Sink

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// WillPayload is the last will the broker publishes if the connection dies.
// It carries no timestamp because it is registered at connect time.
func WillPayload() []byte {
	data, _ := json.Marshal(SystemPayload{System: SystemPayloadInner{Event: "OFFLINE", Reason: "connection_lost"}})
	return data
}
