package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/sweeney/ventilator/internal/alarm"
	"github.com/sweeney/ventilator/internal/command"
	"github.com/sweeney/ventilator/internal/core"
	"github.com/sweeney/ventilator/internal/telemetry"
)

// DefaultBufferSize is the number of QoS 1 messages kept while offline.
const DefaultBufferSize = 500

// Options configures a RealPublisher.
type Options struct {
	Broker   string
	ClientID string
	Topics   Topics
	Session  string
	Logger   *zap.Logger

	// BufferSize bounds the offline buffer; DefaultBufferSize when zero.
	BufferSize int
	// ConnectTimeout is how long NewRealPublisher waits for the first
	// connection. The client keeps retrying in the background after it.
	ConnectTimeout time.Duration
	// Commands receives the requests published on Topics.Command. Nil
	// disables the subscription.
	Commands chan<- command.Request
}

// RealPublisher publishes to an actual MQTT broker. Machine states, alarms
// and system events published while disconnected are kept in a bounded
// backlog and replayed on reconnection; snapshots are dropped.
type RealPublisher struct {
	client  paho.Client
	topics  Topics
	session string
	logger  *zap.Logger

	mu        sync.Mutex
	backlog   *backlog
	connected bool
	everUp    bool
}

// NewRealPublisher creates a publisher for the given broker. It does not
// fail when the broker is unreachable.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.Broker == "" {
		return nil, fmt.Errorf("no broker configured")
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}

	p := &RealPublisher{
		topics:  o.Topics,
		session: o.Session,
		logger:  o.Logger.With(zap.String("broker", o.Broker)),
		backlog: newBacklog(o.BufferSize),
	}

	var handler paho.MessageHandler
	if o.Commands != nil {
		handler = CommandHandler(o.Commands, p.logger)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(o.Topics.System, string(WillPayload()), 1, true).
		SetOnConnectHandler(func(c paho.Client) { p.onConnect(c, handler) }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { p.onConnectionLost(err) })

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(o.ConnectTimeout) {
		p.logger.Warn("mqtt broker not reachable yet, retrying in background")
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client, handler paho.MessageHandler) {
	if handler != nil {
		if token := c.Subscribe(p.topics.Command, 1, handler); token.WaitTimeout(5*time.Second) && token.Error() != nil {
			p.logger.Error("subscribe to command topic failed", zap.Error(token.Error()))
		}
	}

	p.mu.Lock()
	reconnect := p.everUp
	p.connected = true
	p.everUp = true
	pending := p.backlog.drain()
	p.mu.Unlock()

	if reconnect {
		p.logger.Info("mqtt reconnected", zap.Int("buffered", len(pending)))
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		c.Publish(p.topics.System, 1, true, payload)
	} else {
		p.logger.Info("mqtt connected")
	}
	for _, msg := range pending {
		c.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	}
}

func (p *RealPublisher) onConnectionLost(err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	p.logger.Warn("mqtt connection lost", zap.Error(err))
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *RealPublisher) publish(topic string, c class, qos byte, retained bool, payload []byte) error {
	p.mu.Lock()
	if !p.connected {
		defer p.mu.Unlock()
		if qos == 0 {
			return ErrNotConnected
		}
		dropped, started := p.backlog.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained, class: c})
		if started {
			p.logger.Warn("mqtt offline backlog full, dropping messages",
				zap.Int("limit", p.backlog.limit), zap.Stringer("first_dropped", dropped.class))
		}
		return nil
	}
	p.mu.Unlock()

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// PublishSnapshot sends a tick snapshot, QoS 0.
func (p *RealPublisher) PublishSnapshot(s core.Snapshot) error {
	payload, err := telemetry.FormatSnapshot(p.session, s)
	if err != nil {
		return fmt.Errorf("format snapshot: %w", err)
	}
	return p.publish(p.topics.Snapshot, classState, 0, false, payload)
}

// PublishMachineState sends a cycle state, QoS 1 and retained so new
// subscribers see the last breath immediately.
func (p *RealPublisher) PublishMachineState(m core.MachineState) error {
	payload, err := telemetry.FormatMachineState(p.session, m)
	if err != nil {
		return fmt.Errorf("format machine state: %w", err)
	}
	return p.publish(p.topics.State, classState, 1, true, payload)
}

// PublishAlarm sends an alarm transition, QoS 1.
func (p *RealPublisher) PublishAlarm(e alarm.Event) error {
	payload, err := telemetry.FormatAlarm(p.session, e)
	if err != nil {
		return fmt.Errorf("format alarm: %w", err)
	}
	return p.publish(p.topics.Alarm, classAlarm, 1, false, payload)
}

// PublishSystem sends a system lifecycle event, QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(p.topics.System, classSystem, 1, event.Retained, payload)
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
