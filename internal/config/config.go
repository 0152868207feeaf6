package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	gconfig "github.com/golobby/config/v3"
	"github.com/golobby/config/v3/pkg/feeder"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
)

const (
	defaultLogLevel            = "info"
	defaultBrokerHost          = "mqtt.chaosdorf.space"
	defaultBrokerPort          = 1883
	defaultClientIDPrefix      = "mpris2mqtt"
	defaultKeepAliveSeconds    = 5
	defaultPollIntervalSeconds = 5
)

// AppConfig holds application configuration
type AppConfig struct {
	Level               string `env:"MPRIS2MQTT_LOG_LEVEL"`
	BrokerHost          string `env:"MPRIS2MQTT_BROKER_HOST"`
	BrokerPort          int    `env:"MPRIS2MQTT_BROKER_PORT"`
	Client              string `env:"MPRIS2MQTT_CLIENT_ID"`
	KeepAliveSeconds    int    `env:"MPRIS2MQTT_KEEP_ALIVE_SECONDS"`
	PollIntervalSeconds int    `env:"MPRIS2MQTT_POLL_INTERVAL_SECONDS"`
	FailFastEnabled     bool   `env:"MPRIS2MQTT_FAIL_FAST"`
}

// Load reads the configuration from environment variables and fills in defaults
func Load() (*AppConfig, error) {
	cfg := &AppConfig{}

	if err := gconfig.New().AddFeeder(feeder.Env{}).AddStruct(cfg).Feed(); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *AppConfig) applyDefaults() {
	c.Level = strings.ToLower(strings.TrimSpace(c.Level))
	if c.Level == "" {
		c.Level = defaultLogLevel
	}
	if c.BrokerHost == "" {
		c.BrokerHost = defaultBrokerHost
	}
	if c.BrokerPort == 0 {
		c.BrokerPort = defaultBrokerPort
	}
	if c.Client == "" {
		// Unique per process so two hosts never kick each other off the broker
		c.Client = defaultClientIDPrefix + "-" + uuid.NewString()[:8]
	}
	if c.KeepAliveSeconds == 0 {
		c.KeepAliveSeconds = defaultKeepAliveSeconds
	}
	if c.PollIntervalSeconds == 0 {
		c.PollIntervalSeconds = defaultPollIntervalSeconds
	}
}

// Validate reports every invalid setting at once
func (c *AppConfig) Validate() error {
	var err error
	if _, perr := parseLevel(c.Level); perr != nil {
		err = multierr.Append(err, perr)
	}
	if c.BrokerPort < 1 || c.BrokerPort > 65535 {
		err = multierr.Append(err, fmt.Errorf("broker port %d out of range", c.BrokerPort))
	}
	if c.KeepAliveSeconds < 1 {
		err = multierr.Append(err, fmt.Errorf("keep-alive must be at least 1s, got %d", c.KeepAliveSeconds))
	}
	if c.PollIntervalSeconds < 1 {
		err = multierr.Append(err, fmt.Errorf("poll interval must be at least 1s, got %d", c.PollIntervalSeconds))
	}
	return err
}

// LogLevel returns the configured verbosity
func (c *AppConfig) LogLevel() string {
	return c.Level
}

// ZapLevel converts LogLevel into a zap level, defaulting to info
func (c *AppConfig) ZapLevel() zapcore.Level {
	lvl, err := parseLevel(c.Level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// BrokerURL returns the broker address in tcp://host:port form
func (c *AppConfig) BrokerURL() string {
	return "tcp://" + net.JoinHostPort(c.BrokerHost, strconv.Itoa(c.BrokerPort))
}

// ClientID returns the MQTT client identifier
func (c *AppConfig) ClientID() string {
	return c.Client
}

// KeepAlive returns the MQTT keep-alive interval
func (c *AppConfig) KeepAlive() time.Duration {
	return time.Duration(c.KeepAliveSeconds) * time.Second
}

// PollInterval returns the fixed delay between two polls
func (c *AppConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// FailFast reports whether every player query error is fatal
func (c *AppConfig) FailFast() bool {
	return c.FailFastEnabled
}

func parseLevel(level string) (zapcore.Level, error) {
	if level == "warning" {
		return zapcore.WarnLevel, nil
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
	return lvl, nil
}
