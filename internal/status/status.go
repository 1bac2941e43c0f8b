// Package status provides a thread-safe status tracker for the ventilator
// daemon. The control loop writes it; HTTP handlers read it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/ventilator/internal/core"
	"github.com/sweeney/ventilator/internal/cycle"
	"github.com/sweeney/ventilator/internal/panel"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PeriodMs    int64
	DebounceMs  int64
	HeartbeatMs int64
	Broker      string
	TopicPrefix string
	HTTPAddr    string
	WSBroker    string // Websocket broker URL for browser MQTT (empty = disabled)
	Redis       string
	Simulated   bool
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Controller   core.Snapshot
	Settings     cycle.Settings
	NextSettings cycle.Settings
	// State is the last completed cycle, nil before the first one.
	State *core.MachineState

	PanelCounts      panel.PressCounts
	TelemetryDropped uint64
	StartTime        time.Time
	Now              time.Time
	MQTTConnected    bool
	Network          *NetworkInfo
	Config           Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update records the latest tick and the settings in effect and staged.
// Called from the control loop on every tick.
func (t *Tracker) Update(s core.Snapshot, settings, next cycle.Settings) {
	t.mu.Lock()
	t.snap.Controller = s
	t.snap.Settings = settings
	t.snap.NextSettings = next
	t.mu.Unlock()
}

// SetMachineState records the last completed cycle.
func (t *Tracker) SetMachineState(m core.MachineState) {
	t.mu.Lock()
	t.snap.State = &m
	t.mu.Unlock()
}

// SetPanelCounts records the front panel press counts.
func (t *Tracker) SetPanelCounts(c panel.PressCounts) {
	t.mu.Lock()
	t.snap.PanelCounts = c
	t.mu.Unlock()
}

// SetTelemetryDropped records the number of telemetry items dropped.
func (t *Tracker) SetTelemetryDropped(n uint64) {
	t.mu.Lock()
	t.snap.TelemetryDropped = n
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.State != nil {
		state := *s.State
		s.State = &state
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
