package broker

import (
	"context"
	"sync"

	"github.com/genricoloni/mpris2mqtt/internal/domain"
	"go.uber.org/zap"
)

// Drain consumes broker events concurrently with the poll loop so the
// client's notifications never pile up. It only logs them.
type Drain struct {
	logger *zap.Logger
	broker domain.Broker

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDrain creates a new event drain for broker
func NewDrain(logger *zap.Logger, broker domain.Broker) *Drain {
	return &Drain{
		logger: logger,
		broker: broker,
	}
}

// Start launches the drain goroutine. It returns immediately.
func (d *Drain) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return nil
	}
	d.running = true

	drainCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancel = cancel

	d.wg.Add(1)
	go d.run(drainCtx, d.broker.Events())

	d.logger.Debug("Broker event drain started")
	return nil
}

// Stop ends the drain and waits for its goroutine to exit
func (d *Drain) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.cancel()
	d.running = false
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Debug("Broker event drain stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Drain) run(ctx context.Context, events <-chan domain.BrokerEvent) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			d.log(event)
		}
	}
}

func (d *Drain) log(event domain.BrokerEvent) {
	switch event.Kind {
	case domain.EventConnected:
		d.logger.Info("Connected to broker")
	case domain.EventReconnecting:
		d.logger.Info("Reconnecting to broker")
	case domain.EventConnectionLost:
		d.logger.Warn("Connection to broker lost", zap.Error(event.Err))
	case domain.EventMessage:
		d.logger.Debug("Inbound message",
			zap.String("topic", event.Topic),
			zap.Int("bytes", len(event.Payload)))
	default:
		d.logger.Debug("Unknown broker event", zap.String("kind", string(event.Kind)))
	}
}
