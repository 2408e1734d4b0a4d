// Package sensor supplies raw temperature and humidity reads to the device
// pipeline.
package sensor

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sweeney/dht-telemetry/internal/logic"
)

// Reading is one combined read of the sensor.
type Reading struct {
	Temperature float64 // °C
	Humidity    float64 // %RH
}

// Source reads the sensor.
type Source interface {
	Read(ctx context.Context) (Reading, error)
}

// Sink accepts local readings, one metric at a time.
type Sink interface {
	Ingest(ctx context.Context, metric logic.Metric, value float64) error
}

// Simulator produces plausible DHT11 readings: temperature uniformly in
// 22..33 °C and humidity in 50..85 %, each with a little noise, rounded to
// one decimal.
type Simulator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulator creates a simulator with a fixed seed, so runs can be
// reproduced.
func NewSimulator(seed int64) *Simulator {
	// #nosec G404
	return &Simulator{rng: rand.New(rand.NewSource(seed))}
}

// Read returns the next simulated reading.
func (s *Simulator) Read(ctx context.Context) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	temp := s.uniform(22, 33) + s.uniform(-0.5, 0.5)
	hum := s.uniform(50, 85) + s.uniform(-2, 2)
	return Reading{Temperature: round1(temp), Humidity: round1(hum)}, nil
}

func (s *Simulator) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Run reads src on every tick and hands both metrics to sink, until ctx is
// done. A failed read is logged and skipped.
func Run(ctx context.Context, src Source, tick <-chan time.Time, sink Sink, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			r, err := src.Read(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				logger.Warn("sensor read failed", "error", err)
				continue
			}

			logger.Debug("sensor read", "temperature", r.Temperature, "humidity", r.Humidity)
			if err := sink.Ingest(ctx, logic.MetricTemperature, r.Temperature); err != nil {
				logger.Warn("ingest failed", "metric", logic.MetricTemperature, "error", err)
			}
			if err := sink.Ingest(ctx, logic.MetricHumidity, r.Humidity); err != nil {
				logger.Warn("ingest failed", "metric", logic.MetricHumidity, "error", err)
			}
		}
	}
}
