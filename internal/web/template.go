package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/ventilator/internal/cycle"
	"github.com/sweeney/ventilator/internal/status"
	"github.com/sweeney/ventilator/internal/telemetry"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"num": func(v float64) string {
		return fmt.Sprintf("%.1f", v)
	},
}).Parse(indexHTML))

// settingRow is one line of the settings table.
type settingRow struct {
	Name    string
	Unit    string
	Current float64
	Next    float64
	Pending bool
}

func settingRows(current, next cycle.Settings) []settingRow {
	rows := make([]settingRow, 0, len(cycle.Params()))
	for _, p := range cycle.Params() {
		r := p.Range()
		rows = append(rows, settingRow{
			Name:    r.Name,
			Unit:    r.Unit,
			Current: current.Get(p),
			Next:    next.Get(p),
			Pending: current.Get(p) != next.Get(p),
		})
	}
	return rows
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Ventilator</title>
<style>
body { font-family: monospace; max-width: 700px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.running { color: green; font-weight: bold; }
.halted { color: #888; }
.alarm { color: red; font-weight: bold; }
.pending { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Ventilator{{if .Config.Simulated}} (simulated){{end}}{{if .Config.WSBroker}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

<h2>State</h2>
<table>
<tr><th>Ventilation</th><td class="{{if .Controller.Running}}running{{else}}halted{{end}}">{{if .Controller.Running}}running{{else}}halted ({{.Controller.StopReason}}){{end}}</td></tr>
<tr><th>Mode</th><td>{{.Settings.Mode}}{{if ne .Settings.Mode .NextSettings.Mode}} <span class="pending">next {{.NextSettings.Mode}}</span>{{end}}</td></tr>
<tr><th>Cycle</th><td id="cycle">{{.Controller.CycleNumber}}</td></tr>
<tr><th>Phase</th><td id="phase">{{.Controller.Phase}}</td></tr>
<tr><th>Pressure</th><td id="pressure">{{num .Controller.Pressure}} mmH2O</td></tr>
<tr><th>Alarms</th><td id="alarms" class="{{if .Alarms}}alarm{{end}}">{{range .Alarms}}{{.}} {{else}}none{{end}}{{if .Controller.Snoozed}} (snoozed){{end}}</td></tr>
</table>

{{if .State}}
<h2>Last Cycle</h2>
<table>
<tr><th>Peak pressure</th><td>{{num .State.Measures.PeakPressure}} mmH2O</td></tr>
<tr><th>Plateau pressure</th><td>{{num .State.Measures.PlateauPressure}} mmH2O</td></tr>
<tr><th>PEEP</th><td>{{num .State.Measures.PEEP}} mmH2O</td></tr>
<tr><th>Tidal volume</th><td>{{num .State.Measures.TidalVolume}} mL</td></tr>
<tr><th>Respiratory rate</th><td>{{num .State.Measures.RespiratoryRate}} /min</td></tr>
<tr><th>Minute volume</th><td>{{num .State.Measures.InspiratoryMinuteVolume}} / {{num .State.Measures.ExpiratoryMinuteVolume}} L/min</td></tr>
<tr><th>Leak</th><td>{{num .State.Measures.Leak}} L/min</td></tr>
</table>
{{end}}

<h2>Settings</h2>
<table>
{{range .SettingRows}}<tr><th>{{.Name}}</th><td>{{.Current}} {{.Unit}}{{if .Pending}} <span class="pending">next {{.Next}}</span>{{end}}</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Telemetry dropped</th><td>{{.TelemetryDropped}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Period</th><td>{{.Config.PeriodMs}}ms</td></tr>
<tr><th>Panel presses</th><td>start {{.PanelCounts.Start}}, stop {{.PanelCounts.Stop}}, snooze {{.PanelCounts.Snooze}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
{{if .Config.WSBroker}}
<script src="/mqtt.min.js"></script>
<script>
(function() {
  var broker = "{{.Config.WSBroker}}";
  var topic = "{{.Config.TopicPrefix}}/snapshot";
  var dot = document.getElementById("live-dot");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  var client = mqtt.connect(broker, { reconnectPeriod: 5000 });

  client.on("connect", function() {
    setDot("ok", "live");
    client.subscribe(topic);
  });

  client.on("reconnect", function() {
    setDot("pending", "reconnecting");
  });

  client.on("offline", function() {
    setDot("err", "offline");
  });

  client.on("error", function() {
    setDot("err", "error");
  });

  client.on("message", function(t, payload) {
    try {
      var msg = JSON.parse(payload.toString());
      if (msg.snapshot) {
        document.getElementById("cycle").textContent = msg.snapshot.cycle;
        document.getElementById("phase").textContent = msg.snapshot.phase;
        document.getElementById("pressure").textContent = msg.snapshot.pressure.toFixed(1) + " mmH2O";
        var alarms = document.getElementById("alarms");
        alarms.textContent = msg.snapshot.alarms.length ? msg.snapshot.alarms.join(" ") : "none";
        alarms.className = msg.snapshot.alarms.length ? "alarm" : "";
      }
    } catch (e) {}
  });
})();
</script>
{{end}}
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime      time.Duration
		Alarms      []string
		SettingRows []settingRow
	}{
		Snapshot:    snap,
		Uptime:      snap.Uptime(),
		Alarms:      telemetry.AlarmCodes(snap.Controller.ActiveAlarms),
		SettingRows: settingRows(snap.Settings, snap.NextSettings),
	}
	indexTmpl.Execute(w, data)
}
