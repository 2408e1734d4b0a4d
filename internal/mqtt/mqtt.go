// Package mqtt provides the broker session, the wire codec for readings and
// commands, and MQTT 3.1.1 / 5 client implementations behind one interface.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/dht-telemetry/internal/logic"
)

// Default topics used by the sensor board and the dashboard.
const (
	DefaultTopicTemperature = "sensor/esp32/2/temperature"
	DefaultTopicHumidity    = "sensor/esp32/2/humidity"
	DefaultTopicControl     = "sensor/esp32/2/led"
	DefaultTopicSystem      = "sensor/esp32/2/system"
)

// System event names.
const (
	EventStartup     = "STARTUP"
	EventShutdown    = "SHUTDOWN"
	EventHeartbeat   = "HEARTBEAT"
	EventReconnected = "RECONNECTED"
)

// ReasonMQTTDisconnect is the shutdown reason carried by the last will.
const ReasonMQTTDisconnect = "MQTT_DISCONNECT"

// Topics names the wire topics of one deployment.
type Topics struct {
	Temperature string `yaml:"temperature"`
	Humidity    string `yaml:"humidity"`
	Control     string `yaml:"control"`
	System      string `yaml:"system"` // prefix; the role is appended
}

// DefaultTopics returns the topics used by the stock firmware.
func DefaultTopics() Topics {
	return Topics{
		Temperature: DefaultTopicTemperature,
		Humidity:    DefaultTopicHumidity,
		Control:     DefaultTopicControl,
		System:      DefaultTopicSystem,
	}
}

// MetricFor maps a reading topic to its metric.
func (t Topics) MetricFor(topic string) (logic.Metric, bool) {
	switch topic {
	case t.Temperature:
		return logic.MetricTemperature, true
	case t.Humidity:
		return logic.MetricHumidity, true
	}
	return "", false
}

// TopicFor maps a metric to its reading topic.
func (t Topics) TopicFor(metric logic.Metric) string {
	if metric == logic.MetricHumidity {
		return t.Humidity
	}
	return t.Temperature
}

// SystemTopic returns the lifecycle topic for a role, e.g.
// "sensor/esp32/2/system/dashboard".
func (t Topics) SystemTopic(role string) string {
	return t.System + "/" + role
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// WillEvent is the event the broker publishes for us if the connection
// drops without a clean disconnect.
func WillEvent(at time.Time) SystemEvent {
	return SystemEvent{
		Timestamp: at,
		Event:     EventShutdown,
		Reason:    ReasonMQTTDisconnect,
		Retained:  true,
	}
}

// LastWill builds the will registered at connect on a role's system topic.
func LastWill(topic string, at time.Time) *Will {
	payload, _ := FormatSystemPayload(WillEvent(at))
	return &Will{Topic: topic, Payload: payload, Retained: true}
}
