package main

import (
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/ventilator/internal/command"
	"github.com/sweeney/ventilator/internal/core"
	"github.com/sweeney/ventilator/internal/gpio"
	"github.com/sweeney/ventilator/internal/mqtt"
	"github.com/sweeney/ventilator/internal/panel"
	"github.com/sweeney/ventilator/internal/sim"
	"github.com/sweeney/ventilator/internal/status"
	"github.com/sweeney/ventilator/internal/telemetry"
)

// systemQueueSize bounds the heartbeats waiting for a slow broker.
const systemQueueSize = 4

// systemPublisher publishes lifecycle events.
type systemPublisher interface {
	PublishSystem(event mqtt.SystemEvent) error
}

type loopConfig struct {
	Period        time.Duration
	SnapshotEvery int // 0 disables tick snapshots
	Heartbeat     time.Duration
	Debounce      time.Duration
	NetworkFile   string // host network state, see readNetworkInfo
}

// loop owns the controller and everything the control loop touches.
// Only run's goroutine uses it.
type loop struct {
	cfg      loopConfig
	ctrl     *core.MainController
	lung     *sim.Lung  // nil on hardware
	panel    gpio.Panel // nil without a front panel
	sink     telemetry.Sink
	system   systemPublisher       // nil without a broker
	conn     mqtt.ConnectionStatus // nil without a broker
	dropped  func() uint64
	tracker  *status.Tracker
	commands <-chan command.Request
	logger   *zap.Logger
	now      func() time.Time

	detector     *panel.Detector
	events       *systemQueue // nil without a broker
	startTime    time.Time
	ticks        uint64
	panelFailing bool
}

// run ticks the controller on every value of tick until a signal arrives.
// Publishing and panel errors are logged and never stop the loop.
func (l *loop) run(tick <-chan time.Time, sig <-chan os.Signal) error {
	l.startTime = l.now()
	l.detector = panel.NewDetector(l.cfg.Debounce, l.startTime)
	if l.system != nil {
		l.events = startSystemQueue(l.system, systemQueueSize, l.logger)
	}

	for {
		select {
		case s := <-sig:
			l.shutdown(s)
			return nil
		case <-tick:
			l.step(l.now())
		}
	}
}

func (l *loop) step(t time.Time) {
	l.applyCommands()

	snap := l.ctrl.Tick(t)
	if l.lung != nil {
		l.lung.Step(l.cfg.Period)
	}
	l.ticks++

	for _, e := range l.ctrl.Alarms().Events() {
		if e.Raised {
			l.logger.Warn("alarm raised", zap.Int("code", int(e.Code)), zap.Stringer("priority", e.Priority),
				zap.Stringer("kind", e.Kind), zap.Float64("value", e.Value), zap.Uint64("cycle", e.Cycle))
		} else {
			l.logger.Info("alarm cleared", zap.Int("code", int(e.Code)), zap.Uint64("cycle", e.Cycle))
		}
		l.publish(l.sink.PublishAlarm(e))
	}

	if m, ok := l.ctrl.TakeMachineState(); ok {
		l.logger.Debug("cycle complete",
			zap.Uint64("cycle", m.CycleNumber),
			zap.Float64("peak", m.Measures.PeakPressure),
			zap.Float64("plateau", m.Measures.PlateauPressure),
			zap.Float64("peep", m.Measures.PEEP),
			zap.Float64("tidal_volume", m.Measures.TidalVolume))
		l.publish(l.sink.PublishMachineState(m))
		l.tracker.SetMachineState(m)
	}

	if l.cfg.SnapshotEvery > 0 && l.ticks%uint64(l.cfg.SnapshotEvery) == 0 {
		l.publish(l.sink.PublishSnapshot(snap))
	}

	l.servicePanel(t)

	l.tracker.Update(snap, l.ctrl.Settings(), l.ctrl.NextSettings())
	l.tracker.SetPanelCounts(l.detector.Counts())
	if l.conn != nil {
		l.tracker.SetMQTTConnected(l.conn.IsConnected())
	}
	if l.dropped != nil {
		l.tracker.SetTelemetryDropped(l.dropped())
	}

	if hb := l.detector.CheckHeartbeat(t, l.cfg.Heartbeat); hb != nil {
		l.heartbeat(hb)
	}
}

// applyCommands drains the operator requests queued since the last tick.
func (l *loop) applyCommands() {
	for {
		select {
		case r := <-l.commands:
			if err := command.Apply(l.ctrl, r); err != nil {
				l.logger.Warn("command rejected", zap.String("source", r.Source), zap.String("action", string(r.Action)),
					zap.String("param", r.Param), zap.Error(err))
				continue
			}
			l.logger.Info("command applied", zap.String("source", r.Source), zap.String("action", string(r.Action)),
				zap.String("param", r.Param), zap.Float64("value", r.Value), zap.String("mode", r.Mode))
		default:
			return
		}
	}
}

// servicePanel reads the buttons and drives the LEDs. Without a panel the
// detector sees released buttons so the heartbeat still runs.
func (l *loop) servicePanel(t time.Time) {
	var buttons gpio.Buttons
	if l.panel != nil {
		b, err := l.panel.Read()
		if err != nil {
			l.panelError("panel read error", err)
			return
		}
		buttons = b
	}

	for _, p := range l.detector.Process(buttons, t) {
		l.logger.Info("button pressed", zap.String("button", string(p.Button)))
		switch p.Button {
		case panel.ButtonStart:
			l.ctrl.Start()
		case panel.ButtonStop:
			l.ctrl.Stop()
		case panel.ButtonSnooze:
			l.ctrl.Snooze()
		}
	}

	if l.panel == nil {
		return
	}
	alarms := l.ctrl.Alarms()
	leds := panel.LEDsFor(alarms.HighestPriority(), alarms.Snoozed(), !l.ctrl.Halted(), t.Sub(l.startTime))
	if err := l.panel.SetLEDs(leds); err != nil {
		l.panelError("panel LED error", err)
		return
	}
	if l.panelFailing {
		l.logger.Info("panel recovered")
		l.panelFailing = false
	}
}

func (l *loop) panelError(msg string, err error) {
	if !l.panelFailing {
		l.logger.Warn(msg, zap.Error(err))
		l.panelFailing = true
	}
}

// publish logs a sink error; the queue in front of the sinks never fails
// so this only fires for direct sinks.
func (l *loop) publish(err error) {
	if err != nil {
		l.logger.Debug("publish error", zap.Error(err))
	}
}

func (l *loop) heartbeat(hb *panel.HeartbeatData) {
	l.logger.Info("heartbeat",
		zap.Duration("uptime", hb.Uptime),
		zap.Uint64("cycle", l.ctrl.CycleState().CycleNumber),
		zap.Bool("running", !l.ctrl.Halted()),
		zap.Int("start", hb.Counts.Start),
		zap.Int("stop", hb.Counts.Stop),
		zap.Int("snooze", hb.Counts.Snooze))

	if l.events == nil {
		return
	}
	if net := readNetworkInfo(l.cfg.NetworkFile); net != nil {
		l.tracker.SetNetwork(net)
	}
	snap := l.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  hb.Timestamp,
		Event:      "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
	}
	if !l.events.offer(event) {
		l.logger.Warn("heartbeat dropped, system events backed up", zap.Int("dropped", l.events.dropped))
	}
}

// shutdown brings the machine to its safe position and announces it once
// the queued heartbeats are out.
func (l *loop) shutdown(s os.Signal) {
	l.logger.Info("shutting down", zap.Stringer("signal", s))
	l.ctrl.Stop()

	if l.system == nil {
		return
	}
	if l.events != nil {
		l.events.close()
	}
	signalName := "UNKNOWN"
	if s == syscall.SIGINT {
		signalName = "SIGINT"
	} else if s == syscall.SIGTERM {
		signalName = "SIGTERM"
	}
	event := mqtt.SystemEvent{
		Timestamp: l.now(),
		Event:     "SHUTDOWN",
		Reason:    signalName,
		Retained:  true,
	}
	if l.conn != nil {
		l.tracker.SetMQTTConnected(l.conn.IsConnected())
	}
	event.RawPayload = status.FormatStatusEvent(l.tracker.Snapshot(), "SHUTDOWN", signalName)
	if err := l.system.PublishSystem(event); err != nil {
		l.logger.Warn("failed to publish shutdown event", zap.Error(err))
	} else {
		l.logger.Info("published shutdown event")
	}
}
