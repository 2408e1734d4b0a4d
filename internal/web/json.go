package web

import (
	"encoding/json"
	"time"

	"github.com/sweeney/dht-telemetry/internal/logic"
	"github.com/sweeney/dht-telemetry/internal/status"
)

// SampleJSON is one history entry.
type SampleJSON struct {
	Value      float64 `json:"value"`
	ObservedAt string  `json:"observed_at"`
}

// HistoryJSON is the /history.json response.
type HistoryJSON struct {
	Metric   string       `json:"metric"`
	Capacity int          `json:"capacity"`
	Samples  []SampleJSON `json:"samples"`
}

// ControlRequest is the /control request body.
type ControlRequest struct {
	Enabled *bool `json:"enabled"`
}

// ControlResponse reports the gate state after a toggle request.
type ControlResponse struct {
	Enabled   bool   `json:"enabled"`
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

// StateJSON is the data of a websocket "state" message.
type StateJSON struct {
	Status  status.StatusInner      `json:"status"`
	History map[string][]SampleJSON `json:"history"`
}

// envelope is the wire format for websocket messages.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

func samplesJSON(samples []logic.Sample) []SampleJSON {
	out := make([]SampleJSON, 0, len(samples))
	for _, s := range samples {
		out = append(out, SampleJSON{
			Value:      s.Value(),
			ObservedAt: s.ObservedAt().UTC().Format(time.RFC3339),
		})
	}
	return out
}

func formatState(snap status.Snapshot, history map[logic.Metric][]logic.Sample) ([]byte, error) {
	state := StateJSON{
		Status:  status.Inner(snap),
		History: make(map[string][]SampleJSON, len(history)),
	}
	for m, samples := range history {
		state.History[string(m)] = samplesJSON(samples)
	}

	ts := snap.Now.UTC()
	return json.Marshal(envelope{Type: "state", Ts: &ts, Data: state})
}
