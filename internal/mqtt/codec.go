package mqtt

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/sweeney/dht-telemetry/internal/logic"
)

// DecodeReading parses a reading published on topic.
// The payload is a flat JSON object whose field named after the topic's
// metric carries a JSON number, e.g. {"temperature": 27.3, "timestamp": 1760000000}.
// The sample is stamped with now; any embedded timestamp is ignored.
func DecodeReading(topic string, payload []byte, topics Topics, now time.Time) (logic.Sample, error) {
	metric, ok := topics.MetricFor(topic)
	if !ok {
		return logic.Sample{}, &DecodeError{Topic: topic, Reason: ReasonUnknownTopic}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return logic.Sample{}, &DecodeError{Topic: topic, Reason: ReasonMalformed, Err: err}
	}

	raw, ok := fields[string(metric)]
	if !ok {
		return logic.Sample{}, &DecodeError{Topic: topic, Reason: ReasonMissingField}
	}

	// null unmarshals into a float64 without error
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return logic.Sample{}, &DecodeError{Topic: topic, Reason: ReasonNotNumeric}
	}

	var value float64
	if err := json.Unmarshal(raw, &value); err != nil {
		return logic.Sample{}, &DecodeError{Topic: topic, Reason: ReasonNotNumeric, Err: err}
	}

	sample, err := logic.NewSample(metric, value, now)
	if err != nil {
		return logic.Sample{}, &DecodeError{Topic: topic, Reason: ReasonNotNumeric, Err: err}
	}
	return sample, nil
}

// ParseCommand parses a control topic payload.
// Accepts on / off in any case, with surrounding whitespace, optionally
// as a JSON string ("on").
func ParseCommand(topic string, payload []byte) (logic.Command, error) {
	s := strings.TrimSpace(string(payload))
	if strings.HasPrefix(s, `"`) {
		var unquoted string
		if err := json.Unmarshal([]byte(s), &unquoted); err != nil {
			return logic.CommandNone, &DecodeError{Topic: topic, Reason: ReasonBadCommand, Err: err}
		}
		s = strings.TrimSpace(unquoted)
	}

	switch strings.ToLower(s) {
	case string(logic.CommandOn):
		return logic.CommandOn, nil
	case string(logic.CommandOff):
		return logic.CommandOff, nil
	}
	return logic.CommandNone, &DecodeError{Topic: topic, Reason: ReasonBadCommand}
}

// FormatReading renders a reading the way the sensor board publishes it.
func FormatReading(metric logic.Metric, value float64, at time.Time) ([]byte, error) {
	return json.Marshal(map[string]any{
		string(metric): value,
		"timestamp":    at.Unix(),
	})
}

// FormatCommand renders an actuator command as the literal on / off payload.
func FormatCommand(cmd logic.Command) []byte {
	return []byte(cmd)
}
