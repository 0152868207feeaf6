package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/genricoloni/mpris2mqtt/internal/domain"
	"go.uber.org/zap"
)

// Engine is the poll loop. It queries the active player on a fixed delay,
// compares the result with the last published snapshot and publishes changes.
type Engine struct {
	logger    *zap.Logger
	source    domain.PlayerSource
	publisher domain.Publisher
	interval  time.Duration
	failFast  bool

	// Only touched by the loop goroutine while it runs
	previous *domain.Snapshot

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewEngine creates a new poll loop
func NewEngine(
	logger *zap.Logger,
	cfg domain.Config,
	source domain.PlayerSource,
	publisher domain.Publisher,
) *Engine {
	return &Engine{
		logger:    logger,
		source:    source,
		publisher: publisher,
		interval:  cfg.PollInterval(),
		failFast:  cfg.FailFast(),
	}
}

// Start launches the poll loop in a goroutine.
// It returns immediately (non-blocking).
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.done != nil {
		return nil
	}

	// The loop outlives the start context, so it gets its own
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.cancel = cancel
	e.done = make(chan struct{})

	e.logger.Info("Engine starting...", zap.Duration("interval", e.interval))

	go func() {
		defer close(e.done)
		err := e.Run(loopCtx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		e.mu.Lock()
		e.err = err
		e.mu.Unlock()
	}()
	return nil
}

// Stop cancels the poll loop and waits for it to return
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	if cancel == nil {
		return nil
	}

	e.logger.Info("Engine stopping...")
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the loop started by Start has returned
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

// Err returns the error that terminated the loop, or nil after a clean stop
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Run publishes the startup placeholder and then polls until ctx is cancelled
// or a fatal error occurs. A placeholder that could not be sent is retried on
// the next iterations until it goes through or a real track replaces it.
func (e *Engine) Run(ctx context.Context) error {
	placeholderSent := false

	timer := time.NewTimer(e.interval)
	timer.Stop()
	defer timer.Stop()

	for {
		if !placeholderSent && e.previous == nil {
			if err := e.publisher.PublishPlaceholder(ctx); err != nil {
				if ferr := e.check(ctx, fmt.Errorf("failed to publish placeholder: %w", err)); ferr != nil {
					return ferr
				}
			} else {
				placeholderSent = true
			}
		}

		if err := e.Tick(ctx); err != nil {
			if ferr := e.check(ctx, err); ferr != nil {
				return ferr
			}
		}

		// Fixed delay: the interval starts after the iteration finished
		timer.Reset(e.interval)
		select {
		case <-ctx.Done():
			e.logger.Info("Engine loop stopped")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// check logs an iteration error and returns it when it must end the loop
func (e *Engine) check(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if e.isFatal(err) {
		e.logger.Error("Poll loop failed",
			zap.String("kind", domain.ErrorKind(err)),
			zap.Error(err))
		return err
	}
	e.logger.Warn("Iteration skipped, retrying on next poll",
		zap.String("kind", domain.ErrorKind(err)),
		zap.Error(err))
	return nil
}

// Tick runs a single poll iteration. The previous snapshot is only replaced
// after a successful publish.
func (e *Engine) Tick(ctx context.Context) error {
	snapshot, err := e.source.Snapshot(ctx)
	if err != nil {
		return err
	}

	if IsUnchanged(snapshot, e.previous) {
		e.logger.Debug("Track unchanged", zap.String("fingerprint", Fingerprint(snapshot)))
		return nil
	}

	title, _ := snapshot.Title()
	e.logger.Info("Track changed",
		zap.String("player", snapshot.Player()),
		zap.String("title", title),
		zap.String("fingerprint", Fingerprint(snapshot)))

	if err := e.publisher.Publish(ctx, snapshot); err != nil {
		return err
	}

	e.previous = &snapshot
	return nil
}

// Previous returns the last published snapshot, if any
func (e *Engine) Previous() (domain.Snapshot, bool) {
	if e.previous == nil {
		return domain.Snapshot{}, false
	}
	return *e.previous, true
}

// isFatal decides whether an iteration error ends the loop. A missing player,
// a player that does not answer or a broker that is not connected yet is
// expected on a desktop and only skips the iteration, unless fail-fast is
// configured.
func (e *Engine) isFatal(err error) bool {
	if errors.Is(err, domain.ErrNoPlayerFound) ||
		errors.Is(err, domain.ErrMetadataUnavailable) ||
		errors.Is(err, domain.ErrBrokerUnavailable) {
		return e.failFast
	}
	return true
}
