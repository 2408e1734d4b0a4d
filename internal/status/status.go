// Package status provides a thread-safe status tracker for the telemetry daemons.
// It is written by the supervisor loop and read by HTTP handlers, the
// websocket hub and heartbeat publishing.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/dht-telemetry/internal/logic"
)

// NetworkInfo contains network state reported by the host's pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Role            string
	Broker          string
	Protocol        string
	ClientID        string
	HeartbeatMs     int64
	HistoryCapacity int
	HTTPAddr        string
	IntervalMs      int64 // device publish interval, 0 on the dashboard
}

// Reading is the latest value of one metric.
type Reading struct {
	Value      float64
	ObservedAt time.Time
}

// Counts are pipeline counters since startup.
type Counts struct {
	Received   uint64 // inbound messages, all topics
	Decoded    uint64 // readings stored
	Dropped    uint64 // messages rejected by the decoder
	Commands   uint64 // on / off published
	Suppressed uint64 // publishes skipped while disconnected
	Reconnects uint64 // successful connects after the first
	Zones      logic.ZoneCounts
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Control     logic.ControlState
	Zone        logic.Zone
	Indicator   logic.Color
	Temperature *Reading
	Humidity    *Reading
	Counts      Counts
	StartTime   time.Time
	Now         time.Time
	Network     *NetworkInfo
	Config      Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Latest returns the latest reading of metric, or nil if none arrived yet.
func (s Snapshot) Latest(metric logic.Metric) *Reading {
	if metric == logic.MetricHumidity {
		return s.Humidity
	}
	return s.Temperature
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Indicator: logic.ColorOff,
			Config:    cfg,
		},
	}
}

// SetControl records the control gate state.
func (t *Tracker) SetControl(st logic.ControlState) {
	t.mu.Lock()
	t.snap.Control = st
	t.mu.Unlock()
}

// RecordSample stores s as the latest reading of its metric.
func (t *Tracker) RecordSample(s logic.Sample) {
	r := &Reading{Value: s.Value(), ObservedAt: s.ObservedAt()}
	t.mu.Lock()
	if s.Metric() == logic.MetricHumidity {
		t.snap.Humidity = r
	} else {
		t.snap.Temperature = r
	}
	t.mu.Unlock()
}

// SetZone records the current zone and the indicator color derived from it.
func (t *Tracker) SetZone(zone logic.Zone, color logic.Color) {
	t.mu.Lock()
	t.snap.Zone = zone
	t.snap.Indicator = color
	t.mu.Unlock()
}

// SetCounts replaces the pipeline counters.
func (t *Tracker) SetCounts(c Counts) {
	t.mu.Lock()
	t.snap.Counts = c
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
