package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MPRIS2MQTT_LOG_LEVEL",
		"MPRIS2MQTT_BROKER_HOST",
		"MPRIS2MQTT_BROKER_PORT",
		"MPRIS2MQTT_CLIENT_ID",
		"MPRIS2MQTT_KEEP_ALIVE_SECONDS",
		"MPRIS2MQTT_POLL_INTERVAL_SECONDS",
		"MPRIS2MQTT_FAIL_FAST",
	} {
		// Setenv registers the restore, Unsetenv makes the variable absent
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel())
	assert.Equal(t, zapcore.InfoLevel, cfg.ZapLevel())
	assert.Equal(t, "tcp://mqtt.chaosdorf.space:1883", cfg.BrokerURL())
	assert.True(t, strings.HasPrefix(cfg.ClientID(), "mpris2mqtt-"), "client id %q", cfg.ClientID())
	assert.Len(t, cfg.ClientID(), len("mpris2mqtt-")+8)
	assert.Equal(t, 5*time.Second, cfg.KeepAlive())
	assert.Equal(t, 5*time.Second, cfg.PollInterval())
	assert.False(t, cfg.FailFast())
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MPRIS2MQTT_LOG_LEVEL", "DEBUG")
	t.Setenv("MPRIS2MQTT_BROKER_HOST", "broker.local")
	t.Setenv("MPRIS2MQTT_BROKER_PORT", "8883")
	t.Setenv("MPRIS2MQTT_CLIENT_ID", "living-room")
	t.Setenv("MPRIS2MQTT_KEEP_ALIVE_SECONDS", "30")
	t.Setenv("MPRIS2MQTT_POLL_INTERVAL_SECONDS", "2")
	t.Setenv("MPRIS2MQTT_FAIL_FAST", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, zapcore.DebugLevel, cfg.ZapLevel())
	assert.Equal(t, "tcp://broker.local:8883", cfg.BrokerURL())
	assert.Equal(t, "living-room", cfg.ClientID())
	assert.Equal(t, 30*time.Second, cfg.KeepAlive())
	assert.Equal(t, 2*time.Second, cfg.PollInterval())
	assert.True(t, cfg.FailFast())
}

func TestLoad_IPv6Host(t *testing.T) {
	clearEnv(t)
	t.Setenv("MPRIS2MQTT_BROKER_HOST", "::1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "tcp://[::1]:1883", cfg.BrokerURL())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name          string
		env           map[string]string
		expectedError string
	}{
		{
			name:          "Port Out Of Range",
			env:           map[string]string{"MPRIS2MQTT_BROKER_PORT": "70000"},
			expectedError: "broker port 70000 out of range",
		},
		{
			name:          "Unknown Log Level",
			env:           map[string]string{"MPRIS2MQTT_LOG_LEVEL": "chatty"},
			expectedError: "unknown log level",
		},
		{
			name:          "Negative Poll Interval",
			env:           map[string]string{"MPRIS2MQTT_POLL_INTERVAL_SECONDS": "-1"},
			expectedError: "poll interval must be at least 1s",
		},
		{
			name:          "Non Numeric Port",
			env:           map[string]string{"MPRIS2MQTT_BROKER_PORT": "mqtt"},
			expectedError: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			require.Error(t, err)
			assert.Nil(t, cfg)
			if tt.expectedError != "" {
				assert.Contains(t, err.Error(), tt.expectedError)
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := &AppConfig{
		Level:               "loud",
		BrokerPort:          0,
		KeepAliveSeconds:    -1,
		PollIntervalSeconds: 0,
	}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"unknown log level", "out of range", "keep-alive", "poll interval"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestZapLevel_WarningAlias(t *testing.T) {
	cfg := &AppConfig{Level: "warning"}
	assert.Equal(t, zapcore.WarnLevel, cfg.ZapLevel())
}
