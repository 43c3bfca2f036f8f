package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/coop-controller/internal/config"
	"github.com/sweeney/coop-controller/internal/logging"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second

	defaultBufferSize = 100
)

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	topics Topics
	log    *logging.Logger

	mu     sync.Mutex
	buffer *ringBuffer

	cmdMu     sync.RWMutex
	onCommand func(payload []byte)
}

// NewRealPublisher creates a publisher connected to the configured broker.
// The broker being unreachable at startup is not an error: the client keeps
// retrying in the background.
func NewRealPublisher(cfg config.MQTTConfig, log *logging.Logger) (*RealPublisher, error) {
	size := cfg.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	log = log.With("component", "mqtt")

	p := &RealPublisher{
		topics: NewTopics(cfg.TopicPrefix),
		log:    log,
		buffer: newRingBuffer(size, log),
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE"})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetBinaryWill(p.topics.System, will, 1, true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn("mqtt connection lost", "error", err)
		}).
		SetReconnectingHandler(func(_ paho.Client, _ *paho.ClientOptions) {
			log.Info("mqtt reconnecting", "broker", cfg.Broker)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		log.Warn("mqtt broker not reachable yet, retrying in background", "broker", cfg.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// Topics returns the topics this publisher uses.
func (p *RealPublisher) Topics() Topics {
	return p.topics
}

// OnCommand sets the handler for messages on the command topic.
func (p *RealPublisher) OnCommand(fn func(payload []byte)) {
	p.cmdMu.Lock()
	p.onCommand = fn
	p.cmdMu.Unlock()

	// the subscription from onConnect predates the handler
	if p.client.IsConnectionOpen() {
		p.subscribe(p.client)
	}
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.log.Info("mqtt connected")
	p.subscribe(c)

	p.mu.Lock()
	pending := p.buffer.drainAll()
	p.mu.Unlock()
	if len(pending) > 0 {
		p.log.Info("replaying buffered mqtt messages", "count", len(pending))
	}
	// handlers must not block on tokens
	for _, msg := range pending {
		c.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	}
}

func (p *RealPublisher) subscribe(c paho.Client) {
	p.cmdMu.RLock()
	hasHandler := p.onCommand != nil
	p.cmdMu.RUnlock()
	if !hasHandler {
		return
	}
	c.Subscribe(p.topics.Command, 1, func(_ paho.Client, m paho.Message) {
		p.cmdMu.RLock()
		fn := p.onCommand
		p.cmdMu.RUnlock()
		if fn != nil {
			fn(m.Payload())
		}
	})
}

// PublishDoorAction sends a door action event to the broker.
func (p *RealPublisher) PublishDoorAction(event DoorEvent) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 1, a missed door action is worth a duplicate
	return p.publish(bufferedMsg{topic: p.topics.Events, qos: 1, payload: payload})
}

// PublishState sends a retained status snapshot.
func (p *RealPublisher) PublishState(payload []byte) error {
	return p.publish(bufferedMsg{topic: p.topics.State, qos: 0, retained: true, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: p.topics.System, qos: 1, retained: event.Retained, payload: payload})
}

func (p *RealPublisher) publish(msg bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.store(msg)
		return nil
	}

	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		p.store(msg)
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

func (p *RealPublisher) store(msg bufferedMsg) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if msg.retained {
		p.buffer.pushState(msg)
		return
	}
	p.buffer.push(msg)
}

// IsConnected reports whether the broker connection is currently up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
