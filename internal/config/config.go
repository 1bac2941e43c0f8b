// Package config loads the ventilator service configuration from the
// command line, the environment and an optional .env file.
//
// Every flag reads its default from a VENTILATOR_* environment variable so
// the same binary can be configured by a systemd unit or a container.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sweeney/ventilator/internal/core"
	"github.com/sweeney/ventilator/internal/cycle"
	"github.com/sweeney/ventilator/internal/gpio"
)

const envPrefix = "VENTILATOR_"

// Config is the complete service configuration.
type Config struct {
	Period        time.Duration
	Mode          cycle.Mode
	SnapshotEvery int // publish one snapshot every N ticks
	Heartbeat     time.Duration

	// MQTT
	Broker      string
	ClientID    string
	TopicPrefix string
	WSBroker    string

	// Redis machine-state cache; empty address disables it.
	RedisAddr      string
	RedisTTL       time.Duration
	RedisStreamLen int64

	HTTPAddr  string
	LogLevel  string
	LogFormat string

	// NetworkFile is the NETWORK_* env file the host keeps current; empty
	// reads the process environment instead.
	NetworkFile string

	// Simulation replaces the hardware with a simulated lung.
	Simulate    bool
	SimEffort   float64       // mmH2O of patient effort, 0 for a sedated patient
	SimBreathes time.Duration // period of the patient effort

	// Front panel
	GPIOChip      string
	Pins          gpio.Pins
	PanelDebounce time.Duration
	PanelDisabled bool

	Calibration core.Calibration
}

// Load reads envFiles (".env" when none are given; a missing default file
// is not an error), then parses args with environment-derived defaults.
func Load(args []string, envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	} else if err := godotenv.Load(envFiles...); err != nil {
		return Config{}, fmt.Errorf("load env files: %w", err)
	}

	env := &envReader{}
	cal := core.DefaultCalibration()
	pins := gpio.DefaultPins()

	fs := flag.NewFlagSet("ventilator", flag.ContinueOnError)
	var (
		cfg  Config
		mode string
	)
	fs.DurationVar(&cfg.Period, "period", env.duration("PERIOD", core.DefaultPeriod), "Control loop period")
	fs.StringVar(&mode, "mode", env.str("MODE", cycle.PCCMV.String()), "Ventilation mode at startup")
	fs.IntVar(&cfg.SnapshotEvery, "snapshot-every", env.int("SNAPSHOT_EVERY", 10), "Publish one tick snapshot every N ticks")
	fs.DurationVar(&cfg.Heartbeat, "heartbeat", env.duration("HEARTBEAT", 15*time.Minute), "Heartbeat interval (0 to disable)")

	fs.StringVar(&cfg.Broker, "broker", env.str("BROKER", "tcp://localhost:1883"), "MQTT broker address (empty to disable)")
	fs.StringVar(&cfg.ClientID, "client-id", env.str("CLIENT_ID", "ventilator"), "MQTT client id")
	fs.StringVar(&cfg.TopicPrefix, "topic-prefix", env.str("TOPIC_PREFIX", "ventilator"), "MQTT topic prefix")
	fs.StringVar(&cfg.WSBroker, "ws-broker", env.str("WS_BROKER", "=broker"), `MQTT websocket URL for live UI ("=broker" derives from --broker, "off" disables)`)

	fs.StringVar(&cfg.RedisAddr, "redis", env.str("REDIS", ""), "Redis address for the machine state cache (empty to disable)")
	fs.DurationVar(&cfg.RedisTTL, "redis-ttl", env.duration("REDIS_TTL", 30*time.Second), "Expiry of the cached machine state")
	fs.Int64Var(&cfg.RedisStreamLen, "redis-stream-len", int64(env.int("REDIS_STREAM_LEN", 1000)), "Approximate length of the alarm stream")

	fs.StringVar(&cfg.HTTPAddr, "http", env.str("HTTP", ":8080"), "HTTP status address (empty to disable)")
	fs.StringVar(&cfg.LogLevel, "log-level", env.str("LOG_LEVEL", "info"), "Log level: debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", env.str("LOG_FORMAT", "json"), "Log format: json or console")
	fs.StringVar(&cfg.NetworkFile, "network-file", env.str("NETWORK_FILE", ""), "Env file with the host NETWORK_* state, re-read on every heartbeat")

	fs.BoolVar(&cfg.Simulate, "simulate", env.bool("SIMULATE", false), "Run against a simulated lung")
	fs.Float64Var(&cfg.SimEffort, "sim-effort", env.float("SIM_EFFORT", 0), "Simulated patient effort in mmH2O")
	fs.DurationVar(&cfg.SimBreathes, "sim-breath-period", env.duration("SIM_BREATH_PERIOD", 4*time.Second), "Period of the simulated patient effort")

	fs.StringVar(&cfg.GPIOChip, "gpio-chip", env.str("GPIO_CHIP", "gpiochip0"), "GPIO character device of the front panel")
	fs.IntVar(&pins.Start, "pin-start", env.int("PIN_START", pins.Start), "BCM pin of the start button")
	fs.IntVar(&pins.Stop, "pin-stop", env.int("PIN_STOP", pins.Stop), "BCM pin of the stop button")
	fs.IntVar(&pins.Snooze, "pin-snooze", env.int("PIN_SNOOZE", pins.Snooze), "BCM pin of the alarm snooze button")
	fs.IntVar(&pins.Red, "pin-red", env.int("PIN_RED", pins.Red), "BCM pin of the red alarm LED")
	fs.IntVar(&pins.Yellow, "pin-yellow", env.int("PIN_YELLOW", pins.Yellow), "BCM pin of the yellow alarm LED")
	fs.IntVar(&pins.Green, "pin-green", env.int("PIN_GREEN", pins.Green), "BCM pin of the running LED")
	fs.DurationVar(&cfg.PanelDebounce, "panel-debounce", env.duration("PANEL_DEBOUNCE", 50*time.Millisecond), "Button debounce duration")
	fs.BoolVar(&cfg.PanelDisabled, "no-panel", env.bool("NO_PANEL", false), "Run without the GPIO front panel")

	fs.DurationVar(&cal.TriggerDeadTime, "trigger-dead-time", env.duration("TRIGGER_DEAD_TIME", cal.TriggerDeadTime), "Time after exhalation starts before a trigger is accepted")
	fs.Float64Var(&cal.MaxPressure, "max-pressure", env.float("MAX_PRESSURE", cal.MaxPressure), "Over-pressure safety limit in mmH2O")
	fs.IntVar(&cal.StaleLimit, "stale-limit", env.int("STALE_LIMIT", cal.StaleLimit), "Stale sensor ticks before the sensor fault alarm")
	fs.DurationVar(&cal.AlarmSnoozeLength, "snooze", env.duration("SNOOZE", cal.AlarmSnoozeLength), "Alarm snooze length")

	if env.err != nil {
		return Config{}, env.err
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	m, err := cycle.ParseMode(mode)
	if err != nil {
		return Config{}, fmt.Errorf("mode %q: %w", mode, err)
	}
	cfg.Mode = m
	cfg.Pins = pins
	cfg.Calibration = cal

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.Period <= 0:
		return fmt.Errorf("period must be positive, got %v", c.Period)
	case c.SnapshotEvery < 1:
		return fmt.Errorf("snapshot-every must be at least 1, got %d", c.SnapshotEvery)
	case c.Heartbeat < 0:
		return fmt.Errorf("heartbeat must not be negative, got %v", c.Heartbeat)
	case c.Simulate && c.SimEffort > 0 && c.SimBreathes <= 0:
		return fmt.Errorf("sim-breath-period must be positive, got %v", c.SimBreathes)
	case c.Calibration.MaxPressure <= 0:
		return fmt.Errorf("max-pressure must be positive, got %v", c.Calibration.MaxPressure)
	case c.Calibration.StaleLimit < 1:
		return fmt.Errorf("stale-limit must be at least 1, got %d", c.Calibration.StaleLimit)
	}
	return nil
}

// Settings returns the factory settings in the configured startup mode.
func (c Config) Settings() cycle.Settings {
	s := cycle.DefaultSettings()
	s.Mode = c.Mode
	return s
}

// envReader reads VENTILATOR_* variables and keeps the first parse error.
type envReader struct {
	err error
}

func (e *envReader) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) fail(key string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
}

func (e *envReader) str(key, def string) string {
	if v, ok := e.lookup(key); ok {
		return v
	}
	return def
}

func (e *envReader) int(key string, def int) int {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return n
}

func (e *envReader) float(key string, def float64) float64 {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return f
}

func (e *envReader) bool(key string, def bool) bool {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return b
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return d
}
