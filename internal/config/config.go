// Package config loads daemon configuration: defaults, then an optional
// YAML file, then command-line overrides, then validation.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/dht-telemetry/internal/gpio"
	"github.com/sweeney/dht-telemetry/internal/history"
	"github.com/sweeney/dht-telemetry/internal/mqtt"
	"github.com/sweeney/dht-telemetry/internal/retry"
	"github.com/sweeney/dht-telemetry/internal/status"
	"github.com/sweeney/dht-telemetry/internal/supervisor"
)

// DefaultBroker is the public broker the stock firmware talks to.
const DefaultBroker = "tcp://test.mosquitto.org:1883"

// Config is the top-level YAML configuration shared by both commands.
type Config struct {
	Role      string          `yaml:"role"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Topics    mqtt.Topics     `yaml:"topics"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	History   HistoryConfig   `yaml:"history"`
	Heartbeat time.Duration   `yaml:"heartbeat"` // 0 disables
	HTTP      HTTPConfig      `yaml:"http"`
	Device    DeviceConfig    `yaml:"device"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type MQTTConfig struct {
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id"` // empty: <role>-<random>
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	Protocol       string        `yaml:"protocol"` // "3.1.1" or "5"
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	KeepAlive      time.Duration `yaml:"keep_alive"`
	QoS            int           `yaml:"qos"`
}

type ReconnectConfig struct {
	MinInterval time.Duration `yaml:"min_interval"`
	MaxInterval time.Duration `yaml:"max_interval"`
}

type HistoryConfig struct {
	Capacity int `yaml:"capacity"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables
}

// DeviceConfig applies to the device role only.
type DeviceConfig struct {
	Interval time.Duration `yaml:"interval"`
	Seed     int64         `yaml:"seed"` // simulator seed, 0 picks one from the clock
	GPIO     bool          `yaml:"gpio"` // drive the indicator lines
	Pins     gpio.Pins     `yaml:"pins"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully populated Config for role.
func DefaultConfig(role string) Config {
	cfg := Config{
		Role: role,
		MQTT: MQTTConfig{
			Broker:         DefaultBroker,
			Protocol:       mqtt.ProtocolV3,
			ConnectTimeout: mqtt.DefaultConnectTimeout,
			KeepAlive:      30 * time.Second,
		},
		Topics: mqtt.DefaultTopics(),
		Reconnect: ReconnectConfig{
			MinInterval: retry.DefaultMinInterval,
			MaxInterval: retry.DefaultMaxInterval,
		},
		History:   HistoryConfig{Capacity: history.DefaultCapacity},
		Heartbeat: 15 * time.Minute,
		HTTP:      HTTPConfig{Addr: ":8080"},
		Device: DeviceConfig{
			Interval: 5 * time.Second,
			GPIO:     true,
			Pins:     gpio.DefaultPins(),
		},
		Logging: LoggingConfig{Level: "info"},
	}
	if role == string(supervisor.RoleDevice) {
		cfg.HTTP.Addr = ":80"
	}
	return cfg
}

// LoadConfigFile reads a YAML file on top of DefaultConfig(role).
// Unknown fields are rejected.
func LoadConfigFile(path, role string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig(role)

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Config{}, errors.New("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides holds values from command-line flags. A nil pointer means
// the flag was not set.
type FlagOverrides struct {
	Broker    *string
	ClientID  *string
	Protocol  *string
	Username  *string
	Password  *string
	Heartbeat *time.Duration
	HTTPAddr  *string
	Interval  *time.Duration
	GPIO      *bool
	LogLevel  *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.Broker != nil {
		cfg.MQTT.Broker = *o.Broker
	}
	if o.ClientID != nil {
		cfg.MQTT.ClientID = *o.ClientID
	}
	if o.Protocol != nil {
		cfg.MQTT.Protocol = *o.Protocol
	}
	if o.Username != nil {
		cfg.MQTT.Username = *o.Username
	}
	if o.Password != nil {
		cfg.MQTT.Password = *o.Password
	}
	if o.Heartbeat != nil {
		cfg.Heartbeat = *o.Heartbeat
	}
	if o.HTTPAddr != nil {
		cfg.HTTP.Addr = *o.HTTPAddr
	}
	if o.Interval != nil {
		cfg.Device.Interval = *o.Interval
	}
	if o.GPIO != nil {
		cfg.Device.GPIO = *o.GPIO
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks the config after defaults, file and overrides are applied.
// Errors here are startup errors and fatal.
func (c *Config) Validate() error {
	if _, err := supervisor.ParseRole(c.Role); err != nil {
		return fmt.Errorf("role: %w", err)
	}

	u, err := url.Parse(c.MQTT.Broker)
	if err != nil {
		return fmt.Errorf("mqtt.broker: %w", err)
	}
	if u.Scheme != "tcp" && u.Scheme != "mqtt" {
		return fmt.Errorf("mqtt.broker: unsupported scheme %q (want tcp or mqtt)", u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("mqtt.broker: missing host in %q", c.MQTT.Broker)
	}
	if c.MQTT.Protocol != mqtt.ProtocolV3 && c.MQTT.Protocol != mqtt.ProtocolV5 {
		return fmt.Errorf("mqtt.protocol must be %q or %q", mqtt.ProtocolV3, mqtt.ProtocolV5)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return errors.New("mqtt.qos must be 0, 1 or 2")
	}
	if c.MQTT.ConnectTimeout <= 0 {
		return errors.New("mqtt.connect_timeout must be > 0")
	}
	if c.MQTT.KeepAlive < 0 {
		return errors.New("mqtt.keep_alive must be >= 0")
	}

	topics := map[string]string{
		"topics.temperature": c.Topics.Temperature,
		"topics.humidity":    c.Topics.Humidity,
		"topics.control":     c.Topics.Control,
		"topics.system":      c.Topics.System,
	}
	seen := make(map[string]string, len(topics))
	for name, topic := range topics {
		if topic == "" {
			return fmt.Errorf("%s must not be empty", name)
		}
		if other, dup := seen[topic]; dup {
			return fmt.Errorf("%s and %s must differ", other, name)
		}
		seen[topic] = name
	}

	if c.Reconnect.MinInterval <= 0 {
		return errors.New("reconnect.min_interval must be > 0")
	}
	if c.Reconnect.MaxInterval < c.Reconnect.MinInterval {
		return errors.New("reconnect.max_interval must be >= reconnect.min_interval")
	}
	if c.History.Capacity <= 0 {
		return errors.New("history.capacity must be > 0")
	}
	if c.Heartbeat < 0 {
		return errors.New("heartbeat must be >= 0")
	}
	if c.Role == string(supervisor.RoleDevice) && c.Device.Interval <= 0 {
		return errors.New("device.interval must be > 0")
	}
	if _, err := ParseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// ClientID returns the configured client ID, generating "<role>-<random>"
// on first use when none is set.
func (c *Config) ClientID() string {
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = c.Role + "-" + uuid.NewString()[:8]
	}
	return c.MQTT.ClientID
}

// MQTTOptions returns client options registering a last will on the
// role's system topic.
func (c *Config) MQTTOptions(now time.Time) mqtt.Options {
	return mqtt.Options{
		Broker:         c.MQTT.Broker,
		ClientID:       c.ClientID(),
		Username:       c.MQTT.Username,
		Password:       c.MQTT.Password,
		KeepAlive:      c.MQTT.KeepAlive,
		ConnectTimeout: c.MQTT.ConnectTimeout,
		QoS:            byte(c.MQTT.QoS),
		Will:           mqtt.LastWill(c.Topics.SystemTopic(c.Role), now),
	}
}

// Backoff returns the reconnect policy. Attempts are unlimited.
func (c *Config) Backoff(logger *slog.Logger) *retry.ExponentialBackoff {
	return &retry.ExponentialBackoff{
		MinInterval: c.Reconnect.MinInterval,
		MaxInterval: c.Reconnect.MaxInterval,
		Logger:      logger,
	}
}

// StatusConfig returns the subset shown on the status page.
func (c *Config) StatusConfig() status.Config {
	sc := status.Config{
		Role:            c.Role,
		Broker:          c.MQTT.Broker,
		Protocol:        c.MQTT.Protocol,
		ClientID:        c.ClientID(),
		HeartbeatMs:     c.Heartbeat.Milliseconds(),
		HistoryCapacity: c.History.Capacity,
		HTTPAddr:        c.HTTP.Addr,
	}
	if c.Role == string(supervisor.RoleDevice) {
		sc.IntervalMs = c.Device.Interval.Milliseconds()
	}
	return sc
}
