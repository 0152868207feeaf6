package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/genricoloni/mpris2mqtt/internal/broker"
	"github.com/genricoloni/mpris2mqtt/internal/config"
	"github.com/genricoloni/mpris2mqtt/internal/domain"
	"github.com/genricoloni/mpris2mqtt/internal/engine"
	"github.com/genricoloni/mpris2mqtt/internal/player"
	"github.com/genricoloni/mpris2mqtt/internal/publisher"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// AppOptions is the full dependency graph of the daemon
var AppOptions = fx.Options(
	// Logger configuration
	fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: log}
	}),

	// Provide dependencies
	fx.Provide(
		config.Load,
		func(cfg *config.AppConfig) domain.Config { return cfg },
		newLogger,
		newHostname,
		fx.Annotate(broker.NewClient, fx.As(new(domain.Broker))),
		fx.Annotate(player.NewSource, fx.As(new(domain.PlayerSource))),
		fx.Annotate(publisher.New, fx.As(new(domain.Publisher))),
		engine.NewEngine,
		broker.NewDrain,
	),

	// Lifecycle hooks
	fx.Invoke(registerHooks),
)

func main() {
	os.Exit(run())
}

func run() int {
	app := fx.New(AppOptions)

	// Handle graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	startCtx, cancelStart := context.WithTimeout(ctx, app.StartTimeout())
	defer cancelStart()

	if err := app.Start(startCtx); err != nil {
		fmt.Fprintf(os.Stderr, "mpris2mqtt: failed to start: %v\n", err)
		return 1
	}

	// Wait for a signal or for a component asking to shut down
	code := 0
	select {
	case <-ctx.Done():
	case sig := <-app.Wait():
		code = sig.ExitCode
	}

	stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancelStop()

	if err := app.Stop(stopCtx); err != nil {
		fmt.Fprintf(os.Stderr, "mpris2mqtt: failed to stop cleanly: %v\n", err)
		return 1
	}
	return code
}

// newLogger creates a production zap logger at the configured level
func newLogger(cfg *config.AppConfig) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.ZapLevel())

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return logger, nil
}

// newHostname resolves the machine name sent on the source topic
func newHostname() publisher.HostnameFunc {
	return os.Hostname
}

// registerHooks sets up application lifecycle hooks
func registerHooks(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	logger *zap.Logger,
	cfg domain.Config,
	brk domain.Broker,
	source domain.PlayerSource,
	eng *engine.Engine,
	drain *broker.Drain,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("mpris2mqtt starting",
				zap.String("broker", cfg.BrokerURL()),
				zap.String("client_id", cfg.ClientID()),
				zap.Duration("poll_interval", cfg.PollInterval()),
				zap.Bool("fail_fast", cfg.FailFast()))

			// Drain first so the connect notification is consumed
			if err := drain.Start(ctx); err != nil {
				return err
			}
			if err := brk.Connect(ctx); err != nil {
				return err
			}
			if err := eng.Start(ctx); err != nil {
				return err
			}

			go watchEngine(logger, shutdowner, eng)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down")

			err := eng.Stop(ctx)
			brk.Disconnect()
			err = multierr.Append(err, drain.Stop(ctx))
			err = multierr.Append(err, source.Close())
			return err
		},
	})
}

// watchEngine turns a fatal poll loop error into a non-zero exit
func watchEngine(logger *zap.Logger, shutdowner fx.Shutdowner, eng *engine.Engine) {
	<-eng.Done()

	err := eng.Err()
	if err == nil {
		return
	}

	logger.Error("Poll loop terminated",
		zap.String("kind", domain.ErrorKind(err)),
		zap.Error(err))

	if serr := shutdowner.Shutdown(fx.ExitCode(1)); serr != nil {
		logger.Error("Failed to request shutdown", zap.Error(serr))
	}
}
