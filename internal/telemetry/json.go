// Package telemetry formats controller output for external consumers and
// moves it off the control loop.
package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/sweeney/ventilator/internal/alarm"
	"github.com/sweeney/ventilator/internal/core"
	"github.com/sweeney/ventilator/internal/cycle"
)

// SnapshotPayload is the JSON envelope of a tick snapshot.
type SnapshotPayload struct {
	Snapshot SnapshotJSON `json:"snapshot"`
}

// SnapshotJSON contains the per-tick values.
type SnapshotJSON struct {
	Session           string   `json:"session"`
	Timestamp         string   `json:"timestamp"`
	Cycle             uint64   `json:"cycle"`
	Tick              int      `json:"tick"`
	Phase             string   `json:"phase"`
	Triggered         bool     `json:"triggered"`
	Running           bool     `json:"running"`
	Mode              string   `json:"mode"`
	Pressure          float64  `json:"pressure"`
	InspiratoryFlow   float64  `json:"inspiratory_flow"`
	ExpiratoryFlow    float64  `json:"expiratory_flow"`
	InspiratoryVolume float64  `json:"inspiratory_volume"`
	ExpiratoryVolume  float64  `json:"expiratory_volume"`
	BlowerSpeed       float64  `json:"blower_speed"`
	BlowerValve       float64  `json:"blower_valve"`
	PatientValve      float64  `json:"patient_valve"`
	Alarms            []string `json:"alarms"`
	Snoozed           bool     `json:"snoozed"`
	StopReason        string   `json:"stop_reason,omitempty"`
}

// StatePayload is the JSON envelope of a per-cycle machine state.
type StatePayload struct {
	State StateJSON `json:"state"`
}

// StateJSON contains the per-cycle values.
type StateJSON struct {
	Session      string             `json:"session"`
	Timestamp    string             `json:"timestamp"`
	Cycle        uint64             `json:"cycle"`
	Mode         string             `json:"mode"`
	Triggered    bool               `json:"triggered"`
	Measures     MeasuresJSON       `json:"measures"`
	NextSettings map[string]float64 `json:"next_settings"`
	NextMode     string             `json:"next_mode"`
	Alarms       []string           `json:"alarms"`
}

// MeasuresJSON is the JSON representation of the cycle measures.
type MeasuresJSON struct {
	PeakPressure            float64 `json:"peak_pressure"`
	PlateauPressure         float64 `json:"plateau_pressure"`
	PEEP                    float64 `json:"peep"`
	MeanPressure            float64 `json:"mean_pressure"`
	TidalVolume             float64 `json:"tidal_volume"`
	ExpiratoryVolume        float64 `json:"expiratory_volume"`
	RespiratoryRate         float64 `json:"respiratory_rate"`
	InspiratoryMinuteVolume float64 `json:"inspiratory_minute_volume"`
	ExpiratoryMinuteVolume  float64 `json:"expiratory_minute_volume"`
	Leak                    float64 `json:"leak"`
}

// AlarmPayload is the JSON envelope of an alarm transition.
type AlarmPayload struct {
	Alarm AlarmJSON `json:"alarm"`
}

// AlarmJSON contains the alarm transition details.
type AlarmJSON struct {
	Session   string  `json:"session"`
	Timestamp string  `json:"timestamp"`
	Code      string  `json:"code"`
	Kind      string  `json:"kind"`
	Priority  string  `json:"priority"`
	State     string  `json:"state"` // RAISED or CLEARED
	Value     float64 `json:"value"`
	Cycle     uint64  `json:"cycle"`
}

// FormatSnapshot creates the JSON payload for a tick snapshot.
func FormatSnapshot(session string, s core.Snapshot) ([]byte, error) {
	p := SnapshotPayload{Snapshot: SnapshotJSON{
		Session:           session,
		Timestamp:         timestamp(s.Time),
		Cycle:             s.CycleNumber,
		Tick:              s.Tick,
		Phase:             s.Phase.String(),
		Triggered:         s.Triggered,
		Running:           s.Running,
		Mode:              s.Mode.String(),
		Pressure:          round(s.Pressure, 1),
		InspiratoryFlow:   round(s.InspiratoryFlow, 2),
		ExpiratoryFlow:    round(s.ExpiratoryFlow, 2),
		InspiratoryVolume: round(s.InspiratoryVolume, 1),
		ExpiratoryVolume:  round(s.ExpiratoryVolume, 1),
		BlowerSpeed:       round(s.BlowerSpeed, 0),
		BlowerValve:       round(s.BlowerValve, 3),
		PatientValve:      round(s.PatientValve, 3),
		Alarms:            AlarmCodes(s.ActiveAlarms),
		Snoozed:           s.Snoozed,
	}}
	if !s.Running {
		p.Snapshot.StopReason = s.StopReason.String()
	}
	return json.Marshal(p)
}

// FormatMachineState creates the JSON payload for a machine state.
func FormatMachineState(session string, m core.MachineState) ([]byte, error) {
	return json.Marshal(StatePayload{State: StateJSON{
		Session:   session,
		Timestamp: timestamp(m.Time),
		Cycle:     m.CycleNumber,
		Mode:      m.Mode.String(),
		Triggered: m.Triggered,
		Measures: MeasuresJSON{
			PeakPressure:            round(m.Measures.PeakPressure, 1),
			PlateauPressure:         round(m.Measures.PlateauPressure, 1),
			PEEP:                    round(m.Measures.PEEP, 1),
			MeanPressure:            round(m.Measures.MeanPressure, 1),
			TidalVolume:             round(m.Measures.TidalVolume, 1),
			ExpiratoryVolume:        round(m.Measures.ExpiratoryVolume, 1),
			RespiratoryRate:         round(m.Measures.RespiratoryRate, 1),
			InspiratoryMinuteVolume: round(m.Measures.InspiratoryMinuteVolume, 2),
			ExpiratoryMinuteVolume:  round(m.Measures.ExpiratoryMinuteVolume, 2),
			Leak:                    round(m.Measures.Leak, 2),
		},
		NextSettings: SettingsMap(m.NextSettings),
		NextMode:     m.NextSettings.Mode.String(),
		Alarms:       AlarmCodes(m.ActiveAlarms),
	}})
}

// FormatAlarm creates the JSON payload for an alarm transition.
func FormatAlarm(session string, e alarm.Event) ([]byte, error) {
	state := "CLEARED"
	if e.Raised {
		state = "RAISED"
	}
	return json.Marshal(AlarmPayload{Alarm: AlarmJSON{
		Session:   session,
		Timestamp: timestamp(e.Time),
		Code:      AlarmCode(e.Code),
		Kind:      e.Kind.String(),
		Priority:  e.Priority.String(),
		State:     state,
		Value:     round(e.Value, 2),
		Cycle:     e.Cycle,
	}})
}

// SettingsMap returns every tunable parameter of s keyed by name.
func SettingsMap(s cycle.Settings) map[string]float64 {
	out := make(map[string]float64, len(cycle.Params()))
	for _, p := range cycle.Params() {
		out[p.String()] = s.Get(p)
	}
	return out
}

// AlarmCode returns the operator-facing name of an alarm code.
func AlarmCode(c alarm.Code) string {
	return fmt.Sprintf("RCM-SW-%d", c)
}

// AlarmCodes names codes; it never returns nil so the JSON is always a list.
func AlarmCodes(codes []alarm.Code) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		out = append(out, AlarmCode(c))
	}
	return out
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
