package domain

import (
	"context"
	"time"
)

// PlayerSource reads the current track of the active media player.
// Implementations should handle D-Bus/MPRIS communication
//
//go:generate mockgen -destination=mocks/mocks.go -package=mocks github.com/genricoloni/mpris2mqtt/internal/domain PlayerSource,Broker,Publisher
type PlayerSource interface {
	// Snapshot looks up the active player and returns its metadata.
	// Errors wrap ErrPlatformUnavailable, ErrNoPlayerFound or ErrMetadataUnavailable.
	Snapshot(ctx context.Context) (Snapshot, error)

	// Close releases the underlying bus connection
	Close() error
}

// Broker is the message broker connection shared by the poll loop and the event drain
type Broker interface {
	// Connect starts connecting to the broker. It must not fail just because
	// the broker is not reachable yet.
	Connect(ctx context.Context) error

	// Publish sends a retained, at-most-once message.
	// Errors wrap ErrBrokerUnavailable while the connection is not up.
	Publish(ctx context.Context, fact Fact) error

	// Events returns the stream of connection and inbound message notifications
	Events() <-chan BrokerEvent

	// Disconnect closes the connection
	Disconnect()
}

// Publisher maps snapshots onto broker topics
type Publisher interface {
	// PublishPlaceholder publishes the startup placeholder title
	PublishPlaceholder(ctx context.Context) error

	// Publish sends every field of the snapshot. Errors wrap ErrPublish.
	Publish(ctx context.Context, snapshot Snapshot) error
}

// Config defines the interface for application configuration
type Config interface {
	// LogLevel returns the configured verbosity (debug, info, warn, error)
	LogLevel() string

	// BrokerURL returns the broker address in tcp://host:port form
	BrokerURL() string

	// ClientID returns the MQTT client identifier
	ClientID() string

	// KeepAlive returns the MQTT keep-alive interval
	KeepAlive() time.Duration

	// PollInterval returns the fixed delay between two polls
	PollInterval() time.Duration

	// FailFast reports whether every query error should stop the process
	FailFast() bool
}
