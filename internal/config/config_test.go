package config

import (
	"bytes"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/dht-telemetry/internal/mqtt"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	for _, role := range []string{"dashboard", "device"} {
		cfg := DefaultConfig(role)
		require.NoError(t, cfg.Validate(), role)
	}
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig("dashboard")

	assert.Equal(t, DefaultBroker, cfg.MQTT.Broker)
	assert.Equal(t, mqtt.ProtocolV3, cfg.MQTT.Protocol)
	assert.Equal(t, mqtt.DefaultTopics(), cfg.Topics)
	assert.Equal(t, 50, cfg.History.Capacity)
	assert.Equal(t, time.Second, cfg.Reconnect.MinInterval)
	assert.Equal(t, 30*time.Second, cfg.Reconnect.MaxInterval)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)

	dev := DefaultConfig("device")
	assert.Equal(t, 5*time.Second, dev.Device.Interval)
	assert.Equal(t, 18, dev.Device.Pins.Red)
	assert.Equal(t, 19, dev.Device.Pins.Yellow)
	assert.Equal(t, 20, dev.Device.Pins.Green)
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
role: device
mqtt:
  broker: tcp://192.168.1.200:1883
  protocol: "5"
  keep_alive: 10s
topics:
  temperature: lab/temp
heartbeat: 1m
device:
  interval: 2s
  gpio: false
  pins:
    red: 5
logging:
  level: debug
`)

	cfg, err := LoadConfigFile(path, "dashboard")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "device", cfg.Role)
	assert.Equal(t, "tcp://192.168.1.200:1883", cfg.MQTT.Broker)
	assert.Equal(t, mqtt.ProtocolV5, cfg.MQTT.Protocol)
	assert.Equal(t, 10*time.Second, cfg.MQTT.KeepAlive)
	assert.Equal(t, "lab/temp", cfg.Topics.Temperature)
	// untouched fields keep their defaults
	assert.Equal(t, mqtt.DefaultTopicHumidity, cfg.Topics.Humidity)
	assert.Equal(t, time.Minute, cfg.Heartbeat)
	assert.Equal(t, 2*time.Second, cfg.Device.Interval)
	assert.False(t, cfg.Device.GPIO)
	assert.Equal(t, 5, cfg.Device.Pins.Red)
	assert.Equal(t, 19, cfg.Device.Pins.Yellow)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfigFileRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "mqtt:\n  brokr: tcp://x:1883\n")

	_, err := LoadConfigFile(path, "dashboard")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "brokr")
}

func TestLoadConfigFileErrors(t *testing.T) {
	_, err := LoadConfigFile("", "dashboard")
	assert.Error(t, err)

	_, err = LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"), "dashboard")
	assert.Error(t, err)

	path := writeConfig(t, "role: device\n---\nrole: dashboard\n")
	_, err = LoadConfigFile(path, "dashboard")
	assert.ErrorContains(t, err, "trailing document")
}

func TestLoadConfigFileRejectsSecondDocument(t *testing.T) {
	path := writeConfig(t, "role: dashboard\n---\nhttp:\n  addr: \":9999\"\n")

	_, err := LoadConfigFile(path, "dashboard")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trailing document")
}

func TestFlagOverrides(t *testing.T) {
	cfg := DefaultConfig("dashboard")
	broker := "mqtt://localhost:1883"
	protocol := "5"
	hb := time.Duration(0)
	addr := ""

	FlagOverrides{
		Broker:    &broker,
		Protocol:  &protocol,
		Heartbeat: &hb,
		HTTPAddr:  &addr,
	}.Apply(&cfg)

	assert.Equal(t, broker, cfg.MQTT.Broker)
	assert.Equal(t, protocol, cfg.MQTT.Protocol)
	assert.Zero(t, cfg.Heartbeat)
	assert.Empty(t, cfg.HTTP.Addr)
	// unset overrides leave values alone
	assert.Equal(t, "info", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"role", func(c *Config) { c.Role = "sensor" }, "role"},
		{"broker scheme", func(c *Config) { c.MQTT.Broker = "ws://host:9001" }, "unsupported scheme"},
		{"broker host", func(c *Config) { c.MQTT.Broker = "tcp://:1883" }, "missing host"},
		{"broker parse", func(c *Config) { c.MQTT.Broker = "tcp://a b:%zz" }, "mqtt.broker"},
		{"protocol", func(c *Config) { c.MQTT.Protocol = "4" }, "mqtt.protocol"},
		{"qos", func(c *Config) { c.MQTT.QoS = 3 }, "mqtt.qos"},
		{"connect timeout", func(c *Config) { c.MQTT.ConnectTimeout = 0 }, "connect_timeout"},
		{"empty topic", func(c *Config) { c.Topics.Control = "" }, "topics.control"},
		{"duplicate topic", func(c *Config) { c.Topics.Humidity = c.Topics.Temperature }, "must differ"},
		{"reconnect min", func(c *Config) { c.Reconnect.MinInterval = 0 }, "min_interval"},
		{"reconnect max", func(c *Config) { c.Reconnect.MaxInterval = 500 * time.Millisecond }, "max_interval"},
		{"history", func(c *Config) { c.History.Capacity = 0 }, "history.capacity"},
		{"heartbeat", func(c *Config) { c.Heartbeat = -time.Second }, "heartbeat"},
		{"device interval", func(c *Config) { c.Role = "device"; c.Device.Interval = 0 }, "device.interval"},
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("dashboard")
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDashboardIgnoresDeviceInterval(t *testing.T) {
	cfg := DefaultConfig("dashboard")
	cfg.Device.Interval = 0
	assert.NoError(t, cfg.Validate())
}

func TestClientIDGenerated(t *testing.T) {
	cfg := DefaultConfig("device")

	id := cfg.ClientID()
	assert.True(t, strings.HasPrefix(id, "device-"), id)
	assert.Len(t, id, len("device-")+8)
	assert.Equal(t, id, cfg.ClientID(), "client ID must be stable once generated")

	other := DefaultConfig("device")
	assert.NotEqual(t, id, other.ClientID())
}

func TestClientIDConfigured(t *testing.T) {
	cfg := DefaultConfig("dashboard")
	cfg.MQTT.ClientID = "kitchen-panel"
	assert.Equal(t, "kitchen-panel", cfg.ClientID())
}

func TestMQTTOptionsCarryWill(t *testing.T) {
	cfg := DefaultConfig("device")
	cfg.MQTT.QoS = 1
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	opts := cfg.MQTTOptions(at)
	assert.Equal(t, cfg.MQTT.Broker, opts.Broker)
	assert.Equal(t, byte(1), opts.QoS)
	require.NotNil(t, opts.Will)
	assert.Equal(t, "sensor/esp32/2/system/device", opts.Will.Topic)
	assert.True(t, opts.Will.Retained)
	assert.Contains(t, string(opts.Will.Payload), mqtt.ReasonMQTTDisconnect)
}

func TestStatusConfig(t *testing.T) {
	cfg := DefaultConfig("device")
	sc := cfg.StatusConfig()
	assert.Equal(t, "device", sc.Role)
	assert.Equal(t, int64(5000), sc.IntervalMs)
	assert.Equal(t, int64(15*60*1000), sc.HeartbeatMs)
	assert.Equal(t, cfg.MQTT.ClientID, sc.ClientID)

	dash := DefaultConfig("dashboard")
	assert.Zero(t, dash.StatusConfig().IntervalMs)
}

func TestBackoff(t *testing.T) {
	cfg := DefaultConfig("dashboard")
	cfg.Reconnect.MaxInterval = 8 * time.Second

	b := cfg.Backoff(nil)
	assert.Zero(t, b.MaxAttempts)
	assert.Equal(t, 8*time.Second, b.Interval(10))
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{
		"error": LogLevelError, "WARN": LogLevelWarn, "warning": LogLevelWarn,
		"info": LogLevelInfo, "Debug": LogLevelDebug,
	} {
		got, err := ParseLogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLogLevel("trace")
	assert.Error(t, err)
}

func TestSetupLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupLogger(LogLevelWarn, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "component", "test")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "component=test")
}

func TestRegisterFlagsReportsOnlySetFlags(t *testing.T) {
	fs := flag.NewFlagSet("dht-sensor", flag.ContinueOnError)
	overrides := RegisterFlags(fs, "device")
	require.NoError(t, fs.Parse([]string{"-broker", "tcp://10.0.0.2:1883", "-gpio=false", "-interval", "1s"}))

	o := overrides()
	require.NotNil(t, o.Broker)
	assert.Equal(t, "tcp://10.0.0.2:1883", *o.Broker)
	require.NotNil(t, o.GPIO)
	assert.False(t, *o.GPIO)
	require.NotNil(t, o.Interval)
	assert.Equal(t, time.Second, *o.Interval)
	assert.Nil(t, o.Protocol)
	assert.Nil(t, o.HTTPAddr)
}

func TestRegisterFlagsDashboardHasNoDeviceFlags(t *testing.T) {
	fs := flag.NewFlagSet("dht-dashboard", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	RegisterFlags(fs, "dashboard")

	assert.Nil(t, fs.Lookup("interval"))
	assert.Nil(t, fs.Lookup("gpio"))
	assert.Error(t, fs.Parse([]string{"-interval", "1s"}))
}

func TestLoadFlagsWinOverFile(t *testing.T) {
	path := writeConfig(t, "mqtt:\n  broker: tcp://file-broker:1883\nheartbeat: 1m\n")
	broker := "tcp://flag-broker:1883"

	cfg, err := Load(path, "dashboard", FlagOverrides{Broker: &broker})
	require.NoError(t, err)
	assert.Equal(t, broker, cfg.MQTT.Broker)
	assert.Equal(t, time.Minute, cfg.Heartbeat)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("", "device", FlagOverrides{})
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig("device"), cfg)
}

func TestLoadRejectsInvalid(t *testing.T) {
	level := "loud"
	_, err := Load("", "dashboard", FlagOverrides{LogLevel: &level})
	assert.ErrorContains(t, err, "logging.level")
}
