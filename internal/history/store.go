// Package history keeps a bounded, insertion-ordered time series per metric.
package history

import (
	"sync"

	"github.com/sweeney/dht-telemetry/internal/logic"
)

// DefaultCapacity is the number of samples kept per metric.
const DefaultCapacity = 50

// Store holds one ring buffer per metric.
// Append is called only from the supervisor loop; Snapshot, Latest and Len
// may be called from any goroutine.
type Store struct {
	mu       sync.RWMutex
	capacity int
	rings    map[logic.Metric]*ring
}

// NewStore creates a store keeping up to capacity samples per metric.
// A capacity <= 0 falls back to DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	rings := make(map[logic.Metric]*ring, len(logic.Metrics))
	for _, m := range logic.Metrics {
		rings[m] = newRing(capacity)
	}
	return &Store{capacity: capacity, rings: rings}
}

// Capacity returns the per-metric capacity.
func (s *Store) Capacity() int {
	return s.capacity
}

// Append adds a sample to its metric's buffer, evicting the oldest entry
// when the buffer is full.
func (s *Store) Append(sample logic.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rings[sample.Metric()]
	if !ok {
		r = newRing(s.capacity)
		s.rings[sample.Metric()] = r
	}
	r.push(sample)
}

// Snapshot returns a copy of the metric's samples, oldest first.
// The returned slice is never shared with the store.
func (s *Store) Snapshot(metric logic.Metric) []logic.Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rings[metric]
	if !ok {
		return []logic.Sample{}
	}
	return r.copyOut()
}

// Latest returns the most recent sample for metric, if any.
func (s *Store) Latest(metric logic.Metric) (logic.Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rings[metric]
	if !ok {
		return logic.Sample{}, false
	}
	return r.latest()
}

// Len returns the number of samples held for metric.
func (s *Store) Len(metric logic.Metric) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.rings[metric]; ok {
		return r.len()
	}
	return 0
}

// Evicted returns how many samples of metric were dropped to make room.
func (s *Store) Evicted(metric logic.Metric) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.rings[metric]; ok {
		return r.evicted
	}
	return 0
}
