package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/ventilator/internal/telemetry"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string                  `json:"event,omitempty"`
	Reason        string                  `json:"reason,omitempty"`
	Running       bool                    `json:"running"`
	StopReason    string                  `json:"stop_reason,omitempty"`
	Mode          string                  `json:"mode"`
	Cycle         uint64                  `json:"cycle"`
	Phase         string                  `json:"phase"`
	Pressure      float64                 `json:"pressure"`
	Alarms        []string                `json:"alarms"`
	Snoozed       bool                    `json:"snoozed"`
	Measures      *telemetry.MeasuresJSON `json:"measures,omitempty"`
	Settings      map[string]float64      `json:"settings"`
	NextSettings  map[string]float64      `json:"next_settings"`
	NextMode      string                  `json:"next_mode"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	StartTime     string                  `json:"start_time"`
	Timestamp     string                  `json:"timestamp"`
	MQTT          MQTTStatus              `json:"mqtt"`
	Panel         PanelJSON               `json:"panel_presses"`
	Dropped       uint64                  `json:"telemetry_dropped"`
	Network       *NetworkJSON            `json:"network,omitempty"`
	Config        ConfigJSON              `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// PanelJSON is the JSON representation of the front panel press counts.
type PanelJSON struct {
	Start  int `json:"start"`
	Stop   int `json:"stop"`
	Snooze int `json:"snooze"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PeriodMs    int64  `json:"period_ms"`
	DebounceMs  int64  `json:"debounce_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	TopicPrefix string `json:"topic_prefix"`
	HTTPAddr    string `json:"http_addr"`
	WSBroker    string `json:"ws_broker,omitempty"`
	Redis       string `json:"redis,omitempty"`
	Simulated   bool   `json:"simulated"`
}

func buildInner(snap Snapshot) StatusInner {
	c := snap.Controller
	inner := StatusInner{
		Running:       c.Running,
		Mode:          snap.Settings.Mode.String(),
		Cycle:         c.CycleNumber,
		Phase:         c.Phase.String(),
		Pressure:      c.Pressure,
		Alarms:        telemetry.AlarmCodes(c.ActiveAlarms),
		Snoozed:       c.Snoozed,
		Settings:      telemetry.SettingsMap(snap.Settings),
		NextSettings:  telemetry.SettingsMap(snap.NextSettings),
		NextMode:      snap.NextSettings.Mode.String(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Panel: PanelJSON{
			Start:  snap.PanelCounts.Start,
			Stop:   snap.PanelCounts.Stop,
			Snooze: snap.PanelCounts.Snooze,
		},
		Dropped: snap.TelemetryDropped,
		Config: ConfigJSON{
			PeriodMs:    snap.Config.PeriodMs,
			DebounceMs:  snap.Config.DebounceMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			TopicPrefix: snap.Config.TopicPrefix,
			HTTPAddr:    snap.Config.HTTPAddr,
			WSBroker:    snap.Config.WSBroker,
			Redis:       snap.Config.Redis,
			Simulated:   snap.Config.Simulated,
		},
	}
	if !c.Running {
		inner.StopReason = c.StopReason.String()
	}
	if snap.State != nil {
		m := snap.State.Measures
		inner.Measures = &telemetry.MeasuresJSON{
			PeakPressure:            m.PeakPressure,
			PlateauPressure:         m.PlateauPressure,
			PEEP:                    m.PEEP,
			MeanPressure:            m.MeanPressure,
			TidalVolume:             m.TidalVolume,
			ExpiratoryVolume:        m.ExpiratoryVolume,
			RespiratoryRate:         m.RespiratoryRate,
			InspiratoryMinuteVolume: m.InspiratoryMinuteVolume,
			ExpiratoryMinuteVolume:  m.ExpiratoryMinuteVolume,
			Leak:                    m.Leak,
		}
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
