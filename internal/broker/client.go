package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/genricoloni/mpris2mqtt/internal/domain"
	"go.uber.org/zap"
)

const (
	// at-most-once, the next change supersedes a lost message anyway
	qosAtMostOnce byte = 0

	// quiesce time in milliseconds granted to in-flight work on disconnect
	disconnectQuiesce uint = 250

	eventBufferSize = 64
)

// ClientFactory builds the underlying paho client from its options
type ClientFactory func(opts *mqtt.ClientOptions) mqtt.Client

// Client wraps a paho MQTT client. Connection changes and inbound messages
// are reported on the Events channel instead of being handled in callbacks.
type Client struct {
	logger    *zap.Logger
	url       string
	keepAlive time.Duration
	client    mqtt.Client
	events    chan domain.BrokerEvent

	mu              sync.Mutex
	lastDropWarning time.Time
}

// NewClient creates a new broker client for the configured broker
func NewClient(logger *zap.Logger, cfg domain.Config) *Client {
	return NewClientWithFactory(logger, cfg, mqtt.NewClient)
}

// NewClientWithFactory creates a broker client on top of the paho client
// returned by factory. Useful for testing with fakes.
func NewClientWithFactory(logger *zap.Logger, cfg domain.Config, factory ClientFactory) *Client {
	c := &Client{
		logger:    logger,
		url:       cfg.BrokerURL(),
		keepAlive: cfg.KeepAlive(),
		events:    make(chan domain.BrokerEvent, eventBufferSize),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL()).
		SetClientID(cfg.ClientID()).
		SetKeepAlive(cfg.KeepAlive()).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(cfg.KeepAlive()).
		SetOrderMatters(false).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost).
		SetReconnectingHandler(c.onReconnecting).
		SetDefaultPublishHandler(c.onMessage)

	c.client = factory(opts)
	return c
}

// Connect starts connecting to the broker. It waits at most one keep-alive
// interval for the first acknowledgement, after which paho keeps retrying in
// the background. Publishes are refused until the connection is up.
func (c *Client) Connect(ctx context.Context) error {
	c.logger.Info("Connecting to broker",
		zap.String("url", c.url),
		zap.Duration("keep_alive", c.keepAlive))

	token := c.client.Connect()

	timer := time.NewTimer(c.keepAlive)
	defer timer.Stop()

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to connect to broker %s: %w", c.url, err)
		}
		return nil
	case <-timer.C:
		c.logger.Warn("Broker not reachable yet, retrying in background", zap.String("url", c.url))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish sends a retained message with at-most-once delivery. While the
// connection is not up the message is refused with ErrBrokerUnavailable:
// paho neither stores nor completes QoS 0 publishes issued while it is still
// connecting.
func (c *Client) Publish(ctx context.Context, fact domain.Fact) error {
	if !c.client.IsConnectionOpen() {
		return fmt.Errorf("%w: %s not sent", domain.ErrBrokerUnavailable, fact.Topic)
	}

	token := c.client.Publish(fact.Topic, qosAtMostOnce, true, fact.Value)

	timer := time.NewTimer(c.keepAlive)
	defer timer.Stop()

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("broker rejected %s: %w", fact.Topic, err)
		}
		return nil
	case <-timer.C:
		// The connection dropped between the check and the send
		return fmt.Errorf("%w: %s not acknowledged within %s", domain.ErrBrokerUnavailable, fact.Topic, c.keepAlive)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns the channel of broker notifications. It is never closed.
func (c *Client) Events() <-chan domain.BrokerEvent {
	return c.events
}

// Disconnect closes the connection after a short quiesce period
func (c *Client) Disconnect() {
	c.logger.Info("Disconnecting from broker", zap.String("url", c.url))
	c.client.Disconnect(disconnectQuiesce)
}

func (c *Client) onConnect(_ mqtt.Client) {
	c.emit(domain.BrokerEvent{Kind: domain.EventConnected})
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.emit(domain.BrokerEvent{Kind: domain.EventConnectionLost, Err: err})
}

func (c *Client) onReconnecting(_ mqtt.Client, _ *mqtt.ClientOptions) {
	c.emit(domain.BrokerEvent{Kind: domain.EventReconnecting})
}

func (c *Client) onMessage(_ mqtt.Client, msg mqtt.Message) {
	c.emit(domain.BrokerEvent{
		Kind:    domain.EventMessage,
		Topic:   msg.Topic(),
		Payload: msg.Payload(),
	})
}

// emit never blocks: paho callbacks run on the client's own goroutines
func (c *Client) emit(event domain.BrokerEvent) {
	select {
	case c.events <- event:
	default:
		c.logChannelFullWarning()
	}
}

// logChannelFullWarning logs a warning about the events channel being full,
// at most once every 5 seconds
func (c *Client) logChannelFullWarning() {
	c.mu.Lock()
	defer c.mu.Unlock()

	const warningInterval = 5 * time.Second
	now := time.Now()

	if now.Sub(c.lastDropWarning) >= warningInterval {
		c.logger.Warn("Broker events channel full, dropping event (drain may be stopped or slow)")
		c.lastDropWarning = now
	}
}
