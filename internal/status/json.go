package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Role          string       `json:"role"`
	Zone          string       `json:"zone"`
	Indicator     string       `json:"indicator"`
	Control       ControlJSON  `json:"control"`
	Readings      ReadingsJSON `json:"readings"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"counts"`
	ZoneCounts    ZoneJSON     `json:"zone_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// ControlJSON reports the control gate state.
type ControlJSON struct {
	Enabled   bool `json:"enabled"`
	Connected bool `json:"connected"`
}

// ReadingsJSON holds the latest value per metric; null until the first one.
type ReadingsJSON struct {
	Temperature *ReadingJSON `json:"temperature"`
	Humidity    *ReadingJSON `json:"humidity"`
}

// ReadingJSON is one latest reading.
type ReadingJSON struct {
	Value      float64 `json:"value"`
	ObservedAt string  `json:"observed_at"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Protocol  string `json:"protocol"`
	ClientID  string `json:"client_id"`
}

// CountsJSON is the JSON representation of pipeline counters.
type CountsJSON struct {
	Received   uint64 `json:"received"`
	Decoded    uint64 `json:"decoded"`
	Dropped    uint64 `json:"dropped"`
	Commands   uint64 `json:"commands"`
	Suppressed uint64 `json:"suppressed"`
	Reconnects uint64 `json:"reconnects"`
}

// ZoneJSON counts entries into each zone.
type ZoneJSON struct {
	Low    int `json:"low"`
	Normal int `json:"normal"`
	High   int `json:"high"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	HeartbeatMs     int64  `json:"heartbeat_ms"`
	HistoryCapacity int    `json:"history_capacity"`
	HTTPAddr        string `json:"http_addr,omitempty"`
	IntervalMs      int64  `json:"interval_ms,omitempty"`
}

func buildReading(r *Reading) *ReadingJSON {
	if r == nil {
		return nil
	}
	return &ReadingJSON{
		Value:      r.Value,
		ObservedAt: r.ObservedAt.UTC().Format(time.RFC3339),
	}
}

func buildInner(snap Snapshot) StatusInner {
	zone := string(snap.Zone)
	if zone == "" {
		zone = "UNKNOWN"
	}
	indicator := string(snap.Indicator)
	if indicator == "" {
		indicator = "off"
	}

	return StatusInner{
		Role:      snap.Config.Role,
		Zone:      zone,
		Indicator: indicator,
		Control: ControlJSON{
			Enabled:   snap.Control.Enabled,
			Connected: snap.Control.Connected,
		},
		Readings: ReadingsJSON{
			Temperature: buildReading(snap.Temperature),
			Humidity:    buildReading(snap.Humidity),
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT: MQTTStatus{
			Connected: snap.Control.Connected,
			Broker:    snap.Config.Broker,
			Protocol:  snap.Config.Protocol,
			ClientID:  snap.Config.ClientID,
		},
		Counts: CountsJSON{
			Received:   snap.Counts.Received,
			Decoded:    snap.Counts.Decoded,
			Dropped:    snap.Counts.Dropped,
			Commands:   snap.Counts.Commands,
			Suppressed: snap.Counts.Suppressed,
			Reconnects: snap.Counts.Reconnects,
		},
		ZoneCounts: ZoneJSON{
			Low:    snap.Counts.Zones.Low,
			Normal: snap.Counts.Zones.Normal,
			High:   snap.Counts.Zones.High,
		},
		Config: ConfigJSON{
			HeartbeatMs:     snap.Config.HeartbeatMs,
			HistoryCapacity: snap.Config.HistoryCapacity,
			HTTPAddr:        snap.Config.HTTPAddr,
			IntervalMs:      snap.Config.IntervalMs,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// Inner returns the status body without an event, for embedding in other
// envelopes such as websocket messages.
func Inner(snap Snapshot) StatusInner {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: Inner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := Inner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
