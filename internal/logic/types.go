// Package logic contains the pure telemetry pipeline rules: samples, zone
// classification, and the actuator control gate.
// This package has NO external dependencies (no MQTT, GPIO, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"fmt"
	"math"
	"time"
)

// Metric identifies the kind of reading a sample carries.
type Metric string

const (
	MetricTemperature Metric = "temperature"
	MetricHumidity    Metric = "humidity"
)

// Metrics lists every metric the pipeline stores, in display order.
var Metrics = []Metric{MetricTemperature, MetricHumidity}

// ParseMetric maps a metric name to a Metric.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricTemperature, MetricHumidity:
		return Metric(s), nil
	}
	return "", fmt.Errorf("unknown metric %q", s)
}

// Sample is one decoded sensor reading.
// Fields are unexported so a Sample cannot be changed after NewSample.
type Sample struct {
	metric     Metric
	value      float64
	observedAt time.Time
}

// NewSample builds a Sample. The value must be finite.
func NewSample(metric Metric, value float64, observedAt time.Time) (Sample, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Sample{}, fmt.Errorf("%s value is not finite", metric)
	}
	return Sample{metric: metric, value: value, observedAt: observedAt}, nil
}

// Metric returns the sample's metric.
func (s Sample) Metric() Metric { return s.metric }

// Value returns the reading.
func (s Sample) Value() float64 { return s.value }

// ObservedAt returns the local arrival time of the reading.
func (s Sample) ObservedAt() time.Time { return s.observedAt }

// Zone is the discrete temperature classification.
type Zone string

const (
	ZoneUnknown Zone = "" // no temperature sample received yet
	ZoneLow     Zone = "LOW"
	ZoneNormal  Zone = "NORMAL"
	ZoneHigh    Zone = "HIGH"
)

// Command is an actuator command carried on the control topic.
type Command string

const (
	CommandNone Command = ""
	CommandOn   Command = "on"
	CommandOff  Command = "off"
)

// Color is the lit lamp of the tri-color indicator.
type Color string

const (
	ColorOff    Color = "off"
	ColorRed    Color = "red"
	ColorYellow Color = "yellow"
	ColorGreen  Color = "green"
)

// ZoneChange is emitted when a temperature sample moves the zone.
type ZoneChange struct {
	Timestamp time.Time
	From      Zone
	To        Zone
	Value     float64
}

// ZoneCounts tracks how many times each zone was entered since startup.
type ZoneCounts struct {
	Low    int
	Normal int
	High   int
}

// ControlState is the process-wide actuator toggle state.
type ControlState struct {
	Enabled   bool
	Connected bool
}
