package history

import "github.com/sweeney/dht-telemetry/internal/logic"

// ring is a fixed-capacity FIFO of samples that evicts the oldest when full.
// Not safe for concurrent use; the caller must synchronize.
type ring struct {
	buf      []logic.Sample
	capacity int
	head     int // next write position
	count    int
	evicted  uint64
}

func newRing(capacity int) *ring {
	return &ring{
		buf:      make([]logic.Sample, capacity),
		capacity: capacity,
	}
}

func (r *ring) push(s logic.Sample) {
	if r.count == r.capacity {
		// Overwrite oldest: head is already pointing at it
		r.buf[r.head] = s
		r.head = (r.head + 1) % r.capacity
		r.evicted++
		return
	}
	r.buf[r.head] = s
	r.head = (r.head + 1) % r.capacity
	r.count++
}

// copyOut returns the samples oldest first in a freshly allocated slice.
func (r *ring) copyOut() []logic.Sample {
	result := make([]logic.Sample, r.count)
	// Oldest item is at (head - count) mod capacity
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := 0; i < r.count; i++ {
		result[i] = r.buf[(start+i)%r.capacity]
	}
	return result
}

func (r *ring) latest() (logic.Sample, bool) {
	if r.count == 0 {
		return logic.Sample{}, false
	}
	return r.buf[(r.head-1+r.capacity)%r.capacity], true
}

func (r *ring) len() int {
	return r.count
}
