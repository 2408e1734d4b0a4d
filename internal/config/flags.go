package config

import (
	"flag"
	"time"

	"github.com/sweeney/dht-telemetry/internal/supervisor"
)

// RegisterFlags defines the override flags for role on fs. The returned
// function, called after fs.Parse, reports the flags that were set.
func RegisterFlags(fs *flag.FlagSet, role string) func() FlagOverrides {
	def := DefaultConfig(role)

	broker := fs.String("broker", def.MQTT.Broker, "MQTT broker address (tcp://host:port)")
	clientID := fs.String("client-id", "", "MQTT client ID (default <role>-<random>)")
	protocol := fs.String("protocol", def.MQTT.Protocol, `MQTT protocol version ("3.1.1" or "5")`)
	username := fs.String("username", "", "MQTT username")
	password := fs.String("password", "", "MQTT password")
	heartbeat := fs.Duration("heartbeat", def.Heartbeat, "Heartbeat interval (0 to disable)")
	httpAddr := fs.String("http", def.HTTP.Addr, "HTTP status address (empty to disable)")
	logLevel := fs.String("log-level", def.Logging.Level, "Log level (error, warn, info, debug)")

	var interval *time.Duration
	var useGPIO *bool
	if role == string(supervisor.RoleDevice) {
		interval = fs.Duration("interval", def.Device.Interval, "Sensor publish interval")
		useGPIO = fs.Bool("gpio", def.Device.GPIO, "Drive the indicator GPIO lines")
	}

	return func() FlagOverrides {
		var o FlagOverrides
		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "broker":
				o.Broker = broker
			case "client-id":
				o.ClientID = clientID
			case "protocol":
				o.Protocol = protocol
			case "username":
				o.Username = username
			case "password":
				o.Password = password
			case "heartbeat":
				o.Heartbeat = heartbeat
			case "http":
				o.HTTPAddr = httpAddr
			case "log-level":
				o.LogLevel = logLevel
			case "interval":
				o.Interval = interval
			case "gpio":
				o.GPIO = useGPIO
			}
		})
		return o
	}
}

// Load builds the effective config: defaults for role, then the file at
// path if any, then overrides. The result is validated.
func Load(path, role string, o FlagOverrides) (Config, error) {
	cfg := DefaultConfig(role)
	if path != "" {
		var err error
		if cfg, err = LoadConfigFile(path, role); err != nil {
			return Config{}, err
		}
	}
	o.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
