// Command ventilator runs the respiratory control loop, publishes its
// telemetry to MQTT and Redis, and serves a status page.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/sweeney/ventilator/internal/cache"
	"github.com/sweeney/ventilator/internal/command"
	"github.com/sweeney/ventilator/internal/config"
	"github.com/sweeney/ventilator/internal/core"
	"github.com/sweeney/ventilator/internal/gpio"
	"github.com/sweeney/ventilator/internal/logging"
	"github.com/sweeney/ventilator/internal/mqtt"
	"github.com/sweeney/ventilator/internal/sim"
	"github.com/sweeney/ventilator/internal/status"
	"github.com/sweeney/ventilator/internal/telemetry"
	"github.com/sweeney/ventilator/internal/web"
)

const (
	commandQueueSize   = 16
	telemetryQueueSize = 256
	simEffortWidth     = 600 * time.Millisecond
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "ventilator")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("fatal", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	if !cfg.Simulate {
		return errors.New("no sensor driver for this platform, run with -simulate")
	}
	lung := sim.NewLung()
	if cfg.SimEffort > 0 {
		lung.Effort = sim.PeriodicEffort(cfg.SimBreathes, simEffortWidth, cfg.SimEffort)
	}

	ctrl, err := core.New(core.Options{
		Sensors:     lung,
		Actuators:   lung,
		Logger:      logger.Named("core"),
		Period:      cfg.Period,
		Calibration: cfg.Calibration,
		Settings:    cfg.Settings(),
	})
	if err != nil {
		return fmt.Errorf("init controller: %w", err)
	}

	// Front panel
	var pnl gpio.Panel
	if !cfg.PanelDisabled {
		p, err := gpio.NewRealPanel(cfg.GPIOChip, cfg.Pins)
		if err != nil {
			logger.Warn("front panel unavailable, continuing without it", zap.Error(err))
		} else {
			pnl = p
			defer p.Close()
		}
	}

	session := telemetry.NewSession()
	commands := make(chan command.Request, commandQueueSize)

	var (
		sinks   telemetry.Fanout
		system  systemPublisher
		conn    mqtt.ConnectionStatus
		history web.AlarmHistory
	)

	if cfg.Broker != "" {
		pub, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:   cfg.Broker,
			ClientID: cfg.ClientID,
			Topics:   mqtt.NewTopics(cfg.TopicPrefix),
			Session:  session,
			Logger:   logger.Named("mqtt"),
			Commands: commands,
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer pub.Close()
		sinks = append(sinks, pub)
		system = pub
		conn = pub
	}

	if cfg.RedisAddr != "" {
		store := cache.New(cache.NewClient(cfg.RedisAddr), cache.Options{
			Prefix:    cfg.TopicPrefix,
			Session:   session,
			TTL:       cfg.RedisTTL,
			StreamLen: cfg.RedisStreamLen,
		}, logger.Named("cache"))
		defer store.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := store.Ping(ctx); err != nil {
			logger.Warn("redis unreachable, cache writes will fail until it is up", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else if err := store.Clear(ctx); err != nil {
			logger.Warn("failed to clear cached state of the previous run", zap.Error(err))
		}
		cancel()
		sinks = append(sinks, store)
		history = store
	}

	// The queue is stopped and flushed before the sinks close.
	queue := telemetry.NewQueue(sinks, telemetryQueueSize, logger.Named("telemetry"))
	queueCtx, stopQueue := context.WithCancel(context.Background())
	queueDone := make(chan struct{})
	go func() {
		queue.Run(queueCtx)
		close(queueDone)
	}()
	defer func() {
		stopQueue()
		<-queueDone
	}()

	ws := resolveWSBroker(cfg.WSBroker, cfg.Broker, logger)
	tracker := status.NewTracker(time.Now(), status.Config{
		PeriodMs:    cfg.Period.Milliseconds(),
		DebounceMs:  cfg.PanelDebounce.Milliseconds(),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      cfg.Broker,
		TopicPrefix: cfg.TopicPrefix,
		HTTPAddr:    cfg.HTTPAddr,
		WSBroker:    ws,
		Redis:       cfg.RedisAddr,
		Simulated:   cfg.Simulate,
	})
	tracker.Update(core.Snapshot{Mode: ctrl.ActiveControllerMode(), StopReason: ctrl.StopReason()}, ctrl.Settings(), ctrl.NextSettings())
	if net := readNetworkInfo(cfg.NetworkFile); net != nil {
		tracker.SetNetwork(net)
	}

	if system != nil {
		snap := tracker.Snapshot()
		startup := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := system.PublishSystem(startup); err != nil {
			logger.Warn("failed to publish startup event", zap.Error(err))
		} else {
			logger.Info("published startup event")
		}
	}

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, web.Options{Commands: commands, History: history})
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http server error", zap.Error(err))
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info("http status server listening", zap.String("addr", cfg.HTTPAddr))
	}

	logger.Info("started",
		zap.String("session", session),
		zap.Duration("period", cfg.Period),
		zap.Stringer("mode", cfg.Mode),
		zap.String("broker", cfg.Broker),
		zap.String("redis", cfg.RedisAddr),
		zap.Bool("panel", pnl != nil),
		zap.Duration("heartbeat", cfg.Heartbeat))

	ticker := time.NewTicker(cfg.Period)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	l := &loop{
		cfg: loopConfig{
			Period:        cfg.Period,
			SnapshotEvery: cfg.SnapshotEvery,
			Heartbeat:     cfg.Heartbeat,
			Debounce:      cfg.PanelDebounce,
			NetworkFile:   cfg.NetworkFile,
		},
		ctrl:     ctrl,
		lung:     lung,
		panel:    pnl,
		sink:     queue,
		system:   system,
		conn:     conn,
		dropped:  queue.Dropped,
		tracker:  tracker,
		commands: commands,
		logger:   logger,
		now:      time.Now,
	}
	return l.run(ticker.C, sigCh)
}

// Host network state variables. The device's network agent writes them to
// the network file, or exports them to the service environment.
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

// readNetworkInfo returns the host network state from file, or from the
// process environment when file is empty or unreadable. It returns nil
// when no status is reported.
func readNetworkInfo(file string) *status.NetworkInfo {
	lookup := os.Getenv
	if file != "" {
		if vars, err := godotenv.Read(file); err == nil {
			lookup = func(key string) string { return vars[key] }
		}
	}
	s := lookup(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       lookup(envNetworkType),
		IP:         lookup(envNetworkIP),
		Status:     s,
		Gateway:    lookup(envNetworkGateway),
		WifiStatus: lookup(envNetworkWifiStatus),
		SSID:       lookup(envNetworkWifiSSID),
	}
}

// resolveWSBroker converts the --ws-broker flag value into a concrete URL.
// "=broker" derives ws://host:9001 from the TCP broker address; empty disables.
func resolveWSBroker(ws, broker string, logger *zap.Logger) string {
	if ws == "off" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	if broker == "" {
		return ""
	}
	u, err := url.Parse(broker)
	if err != nil {
		logger.Warn("ws-broker: cannot parse broker address", zap.String("broker", broker), zap.Error(err))
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}
