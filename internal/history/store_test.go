package history

import (
	"sync"
	"testing"
	"time"

	"github.com/sweeney/dht-telemetry/internal/logic"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func sample(t *testing.T, metric logic.Metric, v float64, i int) logic.Sample {
	t.Helper()
	s, err := logic.NewSample(metric, v, t0.Add(time.Duration(i)*time.Second))
	if err != nil {
		t.Fatalf("NewSample: %v", err)
	}
	return s
}

func TestRingEmpty(t *testing.T) {
	r := newRing(10)
	if got := r.copyOut(); len(got) != 0 {
		t.Errorf("expected empty copy, got %d items", len(got))
	}
	if _, ok := r.latest(); ok {
		t.Error("expected no latest on empty ring")
	}
}

func TestRingPushAndCopy(t *testing.T) {
	r := newRing(10)
	for i := 0; i < 5; i++ {
		r.push(sample(t, logic.MetricTemperature, float64(i), i))
	}

	got := r.copyOut()
	if len(got) != 5 {
		t.Fatalf("expected 5 items, got %d", len(got))
	}
	for i := 0; i < 5; i++ {
		if got[i].Value() != float64(i) {
			t.Errorf("item %d: expected %d, got %v", i, i, got[i].Value())
		}
	}

	// Copy does not drain
	if r.len() != 5 {
		t.Errorf("expected len 5 after copy, got %d", r.len())
	}
}

func TestRingOverflow(t *testing.T) {
	capacity := 5
	r := newRing(capacity)

	// Push cap+3 items (0..7), ring should keep the most recent 5 (3..7)
	for i := 0; i < capacity+3; i++ {
		r.push(sample(t, logic.MetricTemperature, float64(i), i))
	}

	got := r.copyOut()
	if len(got) != capacity {
		t.Fatalf("expected %d items, got %d", capacity, len(got))
	}
	for i := 0; i < capacity; i++ {
		want := float64(i + 3) // oldest 3 were dropped
		if got[i].Value() != want {
			t.Errorf("item %d: expected %v, got %v", i, want, got[i].Value())
		}
	}
	if r.evicted != 3 {
		t.Errorf("evicted: got %d, want 3", r.evicted)
	}

	latest, ok := r.latest()
	if !ok || latest.Value() != 7 {
		t.Errorf("latest: got %v, %v", latest.Value(), ok)
	}
}

func TestStoreKeepsMostRecentFifty(t *testing.T) {
	for _, n := range []int{1, 49, 50, 51, 120, 1000} {
		s := NewStore(DefaultCapacity)
		for i := 0; i < n; i++ {
			s.Append(sample(t, logic.MetricTemperature, float64(i), i))
		}

		snap := s.Snapshot(logic.MetricTemperature)
		want := n
		if want > DefaultCapacity {
			want = DefaultCapacity
		}
		if len(snap) != want {
			t.Fatalf("n=%d: expected %d samples, got %d", n, want, len(snap))
		}

		first := n - want
		for i, got := range snap {
			if got.Value() != float64(first+i) {
				t.Errorf("n=%d item %d: got %v, want %d", n, i, got.Value(), first+i)
			}
		}
	}
}

func TestStoreMetricsIndependent(t *testing.T) {
	s := NewStore(3)
	for i := 0; i < 10; i++ {
		s.Append(sample(t, logic.MetricTemperature, float64(i), i))
	}
	s.Append(sample(t, logic.MetricHumidity, 55, 0))

	if got := s.Len(logic.MetricHumidity); got != 1 {
		t.Errorf("humidity len: got %d, want 1", got)
	}
	if got := s.Len(logic.MetricTemperature); got != 3 {
		t.Errorf("temperature len: got %d, want 3", got)
	}
	if got := s.Evicted(logic.MetricHumidity); got != 0 {
		t.Errorf("humidity evicted: got %d, want 0", got)
	}
	if got := s.Evicted(logic.MetricTemperature); got != 7 {
		t.Errorf("temperature evicted: got %d, want 7", got)
	}
}

func TestStoreSnapshotIsCopy(t *testing.T) {
	s := NewStore(5)
	s.Append(sample(t, logic.MetricTemperature, 20, 0))

	snap := s.Snapshot(logic.MetricTemperature)
	snap[0] = sample(t, logic.MetricTemperature, 99, 1)

	again := s.Snapshot(logic.MetricTemperature)
	if again[0].Value() != 20 {
		t.Errorf("store was mutated through snapshot: got %v", again[0].Value())
	}
}

func TestStoreLatest(t *testing.T) {
	s := NewStore(5)
	if _, ok := s.Latest(logic.MetricHumidity); ok {
		t.Error("expected no latest sample")
	}

	s.Append(sample(t, logic.MetricHumidity, 60, 0))
	s.Append(sample(t, logic.MetricHumidity, 61, 1))

	got, ok := s.Latest(logic.MetricHumidity)
	if !ok || got.Value() != 61 {
		t.Errorf("latest: got %v, %v", got.Value(), ok)
	}
}

func TestStoreDefaultCapacity(t *testing.T) {
	if got := NewStore(0).Capacity(); got != DefaultCapacity {
		t.Errorf("capacity: got %d, want %d", got, DefaultCapacity)
	}
}

func TestStoreConcurrentReaders(t *testing.T) {
	s := NewStore(DefaultCapacity)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			s.Append(sample(t, logic.MetricTemperature, float64(i), i))
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				snap := s.Snapshot(logic.MetricTemperature)
				for j := 1; j < len(snap); j++ {
					if snap[j].Value() <= snap[j-1].Value() {
						t.Errorf("snapshot out of order at %d", j)
						return
					}
				}
			}
		}()
	}

	wg.Wait()
}
