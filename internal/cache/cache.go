// Package cache keeps the latest ventilator state and the alarm history in
// Redis for dashboards that do not speak MQTT.
//
// Keys, under a per-device prefix:
//
//	<prefix>:snapshot       latest tick snapshot (JSON, expires)
//	<prefix>:state          latest machine state (JSON, expires)
//	<prefix>:alarms         stream of alarm transitions (capped)
//	<prefix>:alarms:active  hash of raised alarms by code
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/sweeney/ventilator/internal/alarm"
	"github.com/sweeney/ventilator/internal/core"
	"github.com/sweeney/ventilator/internal/telemetry"
)

// Options configures a Store.
type Options struct {
	Prefix    string
	Session   string
	TTL       time.Duration // expiry of the snapshot and state keys
	StreamLen int64         // approximate cap of the alarm stream
	Timeout   time.Duration // per-operation timeout
}

// Store is a telemetry.Sink backed by Redis.
type Store struct {
	client *redis.Client
	opts   Options
	logger *zap.Logger
}

// NewClient creates a Redis client for addr.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// New creates a Store using client.
func New(client *redis.Client, opts Options, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Prefix == "" {
		opts.Prefix = "ventilator"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second
	}
	if opts.StreamLen <= 0 {
		opts.StreamLen = 1000
	}
	return &Store{client: client, opts: opts, logger: logger}
}

func (s *Store) key(suffix string) string { return s.opts.Prefix + ":" + suffix }

func (s *Store) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.opts.Timeout)
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// PublishSnapshot stores s as the latest snapshot.
func (s *Store) PublishSnapshot(snap core.Snapshot) error {
	data, err := telemetry.FormatSnapshot(s.opts.Session, snap)
	if err != nil {
		return fmt.Errorf("format snapshot: %w", err)
	}
	ctx, cancel := s.ctx()
	defer cancel()
	if err := s.client.Set(ctx, s.key("snapshot"), data, s.opts.TTL).Err(); err != nil {
		return fmt.Errorf("set snapshot: %w", err)
	}
	return nil
}

// PublishMachineState stores m as the latest machine state.
func (s *Store) PublishMachineState(m core.MachineState) error {
	data, err := telemetry.FormatMachineState(s.opts.Session, m)
	if err != nil {
		return fmt.Errorf("format machine state: %w", err)
	}
	ctx, cancel := s.ctx()
	defer cancel()
	if err := s.client.Set(ctx, s.key("state"), data, s.opts.TTL).Err(); err != nil {
		return fmt.Errorf("set state: %w", err)
	}
	return nil
}

// PublishAlarm appends e to the alarm stream and updates the active set.
func (s *Store) PublishAlarm(e alarm.Event) error {
	data, err := telemetry.FormatAlarm(s.opts.Session, e)
	if err != nil {
		return fmt.Errorf("format alarm: %w", err)
	}
	code := telemetry.AlarmCode(e.Code)

	ctx, cancel := s.ctx()
	defer cancel()
	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.XAdd(ctx, &redis.XAddArgs{
			Stream: s.key("alarms"),
			MaxLen: s.opts.StreamLen,
			Approx: true,
			Values: map[string]interface{}{"code": code, "data": string(data)},
		})
		if e.Raised {
			p.HSet(ctx, s.key("alarms:active"), code, string(data))
		} else {
			p.HDel(ctx, s.key("alarms:active"), code)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record alarm %s: %w", code, err)
	}
	return nil
}

// LatestState returns the cached machine state payload, or nil when none
// is cached.
func (s *Store) LatestState(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key("state")).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return data, err
}

// ActiveAlarms returns the raised alarm payloads keyed by code.
func (s *Store) ActiveAlarms(ctx context.Context) (map[string]json.RawMessage, error) {
	raw, err := s.client.HGetAll(ctx, s.key("alarms:active")).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(raw))
	for code, data := range raw {
		out[code] = json.RawMessage(data)
	}
	return out, nil
}

// AlarmHistory returns up to n alarm transitions, newest first.
func (s *Store) AlarmHistory(ctx context.Context, n int64) ([]json.RawMessage, error) {
	msgs, err := s.client.XRevRangeN(ctx, s.key("alarms"), "+", "-", n).Result()
	if err != nil {
		return nil, err
	}
	out := make([]json.RawMessage, 0, len(msgs))
	for _, m := range msgs {
		if data, ok := m.Values["data"].(string); ok {
			out = append(out, json.RawMessage(data))
		}
	}
	return out, nil
}

// Clear removes the active alarm set, used at startup so alarms of a
// previous run do not linger.
func (s *Store) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key("alarms:active"), s.key("state"), s.key("snapshot")).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}
