package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/ventilator/internal/command"
	"github.com/sweeney/ventilator/internal/core"
	"github.com/sweeney/ventilator/internal/cycle"
	"github.com/sweeney/ventilator/internal/gpio"
	"github.com/sweeney/ventilator/internal/mqtt"
	"github.com/sweeney/ventilator/internal/sim"
	"github.com/sweeney/ventilator/internal/status"
)

// TestEnvVarNames pins the NETWORK_* names the host network agent writes.
// They are an external contract, so a rename here must follow the agent.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "Ward3")

	info := readNetworkInfo("")
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}
	want := status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "Ward3",
	}
	if *info != want {
		t.Errorf("got %+v, want %+v", *info, want)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	if info := readNetworkInfo(""); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

func TestReadNetworkInfoPartial(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkIP, "")

	info := readNetworkInfo("")
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo when NETWORK_STATUS is set")
	}
	if info.Status != "connected" {
		t.Errorf("Status: got %q, want connected", info.Status)
	}
	if info.IP != "" {
		t.Errorf("IP: got %q, want empty", info.IP)
	}
}

func TestReadNetworkInfoFromFile(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkIP, "10.0.0.9")

	file := filepath.Join(t.TempDir(), "network.env")
	write := func(content string) {
		t.Helper()
		if err := os.WriteFile(file, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	write("NETWORK_STATUS=connected\nNETWORK_TYPE=ethernet\nNETWORK_IP=192.168.4.20\n")
	info := readNetworkInfo(file)
	if info == nil {
		t.Fatal("expected network info from the file")
	}
	if info.IP != "192.168.4.20" || info.Type != "ethernet" {
		t.Errorf("file values not used: %+v", *info)
	}

	// The file is re-read on every call.
	write("NETWORK_STATUS=disconnected\n")
	info = readNetworkInfo(file)
	if info == nil || info.Status != "disconnected" || info.IP != "" {
		t.Errorf("expected the updated file state, got %+v", info)
	}
}

func TestReadNetworkInfoMissingFileFallsBackToEnv(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkIP, "10.0.0.9")

	info := readNetworkInfo(filepath.Join(t.TempDir(), "absent.env"))
	if info == nil || info.IP != "10.0.0.9" {
		t.Errorf("expected the environment state, got %+v", info)
	}
}

func TestResolveWSBroker(t *testing.T) {
	tests := []struct {
		ws, broker, want string
	}{
		{"=broker", "tcp://192.168.1.200:1883", "ws://192.168.1.200:9001"},
		{"=broker", "", ""},
		{"off", "tcp://192.168.1.200:1883", ""},
		{"ws://other:8083/mqtt", "tcp://192.168.1.200:1883", "ws://other:8083/mqtt"},
		{"=broker", "tcp://bad host:1883", ""},
	}
	for _, tt := range tests {
		if got := resolveWSBroker(tt.ws, tt.broker, zap.NewNop()); got != tt.want {
			t.Errorf("resolveWSBroker(%q, %q): got %q, want %q", tt.ws, tt.broker, got, tt.want)
		}
	}
}

// --- loop tests ---

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Not safe for concurrent use (only called from the loop goroutine).
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

// repeat returns n copies of sample.
func repeat(sample gpio.Buttons, n int) []gpio.Buttons {
	out := make([]gpio.Buttons, n)
	for i := range out {
		out[i] = sample
	}
	return out
}

type harness struct {
	loop     *loop
	pub      *mqtt.FakePublisher
	commands chan command.Request
}

func newHarness(t *testing.T, pnl gpio.Panel, heartbeat time.Duration) *harness {
	t.Helper()
	lung := sim.NewLung()
	ctrl, err := core.New(core.Options{
		Sensors:     lung,
		Actuators:   lung,
		Period:      core.DefaultPeriod,
		Calibration: core.DefaultCalibration(),
		Settings:    cycle.DefaultSettings(),
	})
	if err != nil {
		t.Fatalf("core.New: %v", err)
	}
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	commands := make(chan command.Request, commandQueueSize)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	return &harness{
		pub:      pub,
		commands: commands,
		loop: &loop{
			cfg: loopConfig{
				Period:        core.DefaultPeriod,
				SnapshotEvery: 10,
				Heartbeat:     heartbeat,
				Debounce:      50 * time.Millisecond,
			},
			ctrl:     ctrl,
			lung:     lung,
			panel:    pnl,
			sink:     pub,
			system:   pub,
			conn:     pub,
			tracker:  status.NewTracker(start, status.Config{Simulated: true}),
			commands: commands,
			logger:   zap.NewNop(),
			now:      fakeClock(start, core.DefaultPeriod),
		},
	}
}

// runTicks drives the loop for n ticks and then delivers signal.
func (h *harness) runTicks(t *testing.T, n int, signal os.Signal) {
	t.Helper()
	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.loop.run(tick, sig)
	}()

	for i := 0; i < n; i++ {
		tick <- time.Time{}
	}
	sig <- signal

	if err := <-errCh; err != nil {
		t.Fatalf("run returned error: %v", err)
	}
}

func systemEvents(pub *mqtt.FakePublisher, name string) []mqtt.SystemEvent {
	var out []mqtt.SystemEvent
	for _, se := range pub.SystemEvents {
		if se.Event == name {
			out = append(out, se)
		}
	}
	return out
}

func TestLoopHaltedUntilStarted(t *testing.T) {
	h := newHarness(t, nil, 0)
	h.runTicks(t, 50, syscall.SIGTERM)

	if len(h.pub.States) != 0 {
		t.Errorf("expected no machine states while halted, got %d", len(h.pub.States))
	}
	if len(h.pub.Snapshots) != 5 {
		t.Errorf("expected 5 snapshots, got %d", len(h.pub.Snapshots))
	}
	for _, s := range h.pub.Snapshots {
		if s.Running {
			t.Fatal("expected every snapshot halted")
		}
	}
}

func TestLoopStartCommandVentilates(t *testing.T) {
	h := newHarness(t, nil, 0)
	h.commands <- command.Request{Action: command.ActionStart, Source: "test"}

	h.runTicks(t, 650, syscall.SIGTERM)

	if len(h.pub.Snapshots) != 65 {
		t.Errorf("expected 65 snapshots, got %d", len(h.pub.Snapshots))
	}
	if len(h.pub.States) == 0 {
		t.Fatal("expected at least one machine state after two cycles")
	}
	if !h.pub.Snapshots[0].Running {
		t.Error("expected the controller running from the first tick")
	}
	m := h.pub.States[0]
	if m.Measures.PeakPressure <= 0 {
		t.Errorf("expected a positive peak pressure, got %v", m.Measures.PeakPressure)
	}

	snap := h.loop.tracker.Snapshot()
	if snap.State == nil {
		t.Error("expected the tracker to hold the last machine state")
	}
	if !snap.MQTTConnected {
		t.Error("expected MQTT connected in the tracker")
	}

	// Shutdown stops ventilation.
	if !h.loop.ctrl.Halted() {
		t.Error("expected the controller halted after shutdown")
	}
	if h.loop.ctrl.StopReason() != core.StopRequested {
		t.Errorf("stop reason: got %v, want requested", h.loop.ctrl.StopReason())
	}
}

func TestLoopStagesSettingsForNextCycle(t *testing.T) {
	h := newHarness(t, nil, 0)
	h.commands <- command.Request{Action: command.ActionSet, Param: "peep", Value: 80}
	h.commands <- command.Request{Action: command.ActionSet, Param: "peep", Value: 1000}
	h.commands <- command.Request{Action: command.ActionMode, Mode: "VC_CMV"}

	h.runTicks(t, 1, syscall.SIGTERM)

	next := h.loop.ctrl.NextSettings()
	if next.PEEP != 80 {
		t.Errorf("staged PEEP: got %v, want 80 (out-of-range request rejected)", next.PEEP)
	}
	if next.Mode != cycle.VCCMV {
		t.Errorf("staged mode: got %v, want VC_CMV", next.Mode)
	}
	if h.loop.ctrl.Settings().PEEP != cycle.DefaultSettings().PEEP {
		t.Error("expected current settings unchanged until the next cycle")
	}
}

func TestLoopPanelStartButton(t *testing.T) {
	samples := append(
		repeat(gpio.Buttons{}, 10),
		repeat(gpio.Buttons{Start: true}, 10)...,
	)
	pnl := gpio.NewFakePanel(samples)
	h := newHarness(t, pnl, 0)

	h.runTicks(t, len(samples), syscall.SIGTERM)

	snap := h.loop.tracker.Snapshot()
	if snap.PanelCounts.Start != 1 {
		t.Errorf("start presses: got %d, want 1", snap.PanelCounts.Start)
	}
	if !snap.Controller.Running {
		t.Error("expected the controller running after the start press")
	}
	if !pnl.LastLEDs().Green {
		t.Error("expected the green LED lit while running")
	}
	if pnl.LEDs[0].Green {
		t.Error("expected the green LED off before the start press")
	}
}

func TestLoopPanelHeldAtStartupIgnored(t *testing.T) {
	pnl := gpio.NewFakePanel(repeat(gpio.Buttons{Start: true}, 20))
	h := newHarness(t, pnl, 0)

	h.runTicks(t, 20, syscall.SIGTERM)

	if h.loop.tracker.Snapshot().Controller.Running {
		t.Error("a button held since startup must not start ventilation")
	}
}

func TestLoopPanelReadError(t *testing.T) {
	pnl := gpio.NewFakePanel(nil)
	pnl.ReadError = errors.New("gpio fault")
	h := newHarness(t, pnl, 0)
	h.commands <- command.Request{Action: command.ActionStart}

	h.runTicks(t, 20, syscall.SIGTERM)

	if len(h.pub.Snapshots) != 2 {
		t.Errorf("expected ticking to continue, got %d snapshots", len(h.pub.Snapshots))
	}
	if len(systemEvents(h.pub, "SHUTDOWN")) != 1 {
		t.Error("expected SHUTDOWN system event after panel errors")
	}
}

func TestLoopPublishError(t *testing.T) {
	h := newHarness(t, nil, 0)
	h.pub.PublishError = errors.New("broker unavailable")
	h.commands <- command.Request{Action: command.ActionStart}

	h.runTicks(t, 100, syscall.SIGTERM)

	if len(h.pub.Snapshots) != 0 {
		t.Errorf("expected 0 recorded snapshots (publish failed), got %d", len(h.pub.Snapshots))
	}
	if !h.loop.tracker.Snapshot().Controller.Running {
		t.Error("expected the loop to keep ventilating despite publish errors")
	}
	if len(systemEvents(h.pub, "SHUTDOWN")) != 1 {
		t.Error("expected SHUTDOWN system event despite publish errors")
	}
}

func TestLoopHeartbeat(t *testing.T) {
	h := newHarness(t, nil, time.Second)
	h.runTicks(t, 150, syscall.SIGTERM)

	hbs := systemEvents(h.pub, "HEARTBEAT")
	if len(hbs) != 1 {
		t.Fatalf("expected 1 HEARTBEAT event, got %d", len(hbs))
	}
	if !strings.Contains(string(hbs[0].RawPayload), `"event":"HEARTBEAT"`) {
		t.Errorf("heartbeat payload: got %s", hbs[0].RawPayload)
	}
}

func TestLoopHeartbeatIncludesNetworkInfo(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.42")

	h := newHarness(t, nil, time.Second)
	h.runTicks(t, 110, syscall.SIGTERM)

	hbs := systemEvents(h.pub, "HEARTBEAT")
	if len(hbs) != 1 {
		t.Fatalf("expected 1 HEARTBEAT event, got %d", len(hbs))
	}
	if !strings.Contains(string(hbs[0].RawPayload), `"ip":"192.168.1.42"`) {
		t.Errorf("heartbeat payload missing network info: %s", hbs[0].RawPayload)
	}
}

func TestLoopShutdownSignals(t *testing.T) {
	for _, tt := range []struct {
		sig  os.Signal
		want string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
	} {
		h := newHarness(t, nil, 0)
		h.runTicks(t, 4, tt.sig)

		if len(h.pub.SystemEvents) != 1 {
			t.Fatalf("expected 1 system event, got %d", len(h.pub.SystemEvents))
		}
		se := h.pub.SystemEvents[0]
		if se.Event != "SHUTDOWN" {
			t.Errorf("expected SHUTDOWN, got %q", se.Event)
		}
		if se.Reason != tt.want {
			t.Errorf("expected reason %s, got %q", tt.want, se.Reason)
		}
		if !se.Retained {
			t.Error("expected Retained=true for SHUTDOWN")
		}
	}
}

func TestLoopWithoutBroker(t *testing.T) {
	h := newHarness(t, nil, time.Second)
	h.loop.system = nil
	h.loop.conn = nil

	h.runTicks(t, 150, syscall.SIGTERM)

	if len(h.pub.SystemEvents) != 0 {
		t.Errorf("expected no system events without a broker, got %d", len(h.pub.SystemEvents))
	}
}

// slowSystem delays every system event like a broker that is slow to ack.
type slowSystem struct {
	*mqtt.FakePublisher
	delay time.Duration
}

func (s slowSystem) PublishSystem(e mqtt.SystemEvent) error {
	time.Sleep(s.delay)
	return s.FakePublisher.PublishSystem(e)
}

func TestLoopHeartbeatDoesNotBlockTicks(t *testing.T) {
	h := newHarness(t, nil, time.Second)
	h.loop.system = slowSystem{FakePublisher: h.pub, delay: 500 * time.Millisecond}

	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- h.loop.run(tick, sig)
	}()

	var longest time.Duration
	for i := 0; i < 150; i++ {
		start := time.Now()
		tick <- time.Time{}
		if d := time.Since(start); d > longest {
			longest = d
		}
	}
	sig <- syscall.SIGTERM
	if err := <-errCh; err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	if longest > 200*time.Millisecond {
		t.Errorf("a tick waited %v on the heartbeat publish", longest)
	}
	if n := len(systemEvents(h.pub, "HEARTBEAT")); n != 1 {
		t.Errorf("expected the heartbeat delivered before shutdown, got %d", n)
	}
	events := h.pub.SystemEvents
	if len(events) == 0 || events[len(events)-1].Event != "SHUTDOWN" {
		t.Errorf("expected SHUTDOWN last, got %+v", events)
	}
}

// gatedSystem holds every system event until release is closed.
type gatedSystem struct {
	*mqtt.FakePublisher
	release chan struct{}
}

func (g gatedSystem) PublishSystem(e mqtt.SystemEvent) error {
	<-g.release
	return g.FakePublisher.PublishSystem(e)
}

func TestSystemQueueDropsWhenFull(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	gate := gatedSystem{FakePublisher: pub, release: make(chan struct{})}
	q := startSystemQueue(gate, 2, zap.NewNop())

	// One event is taken by the publishing goroutine, two wait in the queue.
	accepted := 0
	for i := 0; i < 10; i++ {
		if q.offer(mqtt.SystemEvent{Event: "HEARTBEAT"}) {
			accepted++
		}
	}
	if accepted < 2 || accepted > 3 {
		t.Errorf("accepted: got %d, want 2 or 3", accepted)
	}
	if q.dropped != 10-accepted {
		t.Errorf("dropped: got %d, want %d", q.dropped, 10-accepted)
	}

	close(gate.release)
	q.close()
	if len(pub.SystemEvents) != accepted {
		t.Errorf("published: got %d, want %d", len(pub.SystemEvents), accepted)
	}
}
