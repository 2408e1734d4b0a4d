package retry

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"time"
)

const (
	DefaultMinInterval = time.Second
	DefaultMaxInterval = 30 * time.Second
)

// ExponentialBackoff implements a retry policy with exponential backoff and
// optional jitter.
type ExponentialBackoff struct {
	// MaxAttempts sets the maximum number of attempts. The default value of 0
	// indicates unlimited attempts; setting this to 1 will disable retries.
	MaxAttempts uint64

	// MinInterval is the interval after the first failed attempt.
	// Defaults to 1s.
	MinInterval time.Duration

	// MaxInterval caps the interval between attempts (before jitter).
	// Defaults to 30s.
	MaxInterval time.Duration

	// Jitter spreads each interval over 95%..105% of its base value.
	// Off by default so consecutive intervals strictly increase until the cap.
	Jitter bool

	// After waits for an interval. Defaults to time.After.
	After func(time.Duration) <-chan time.Time

	Logger *slog.Logger
}

// Start runs task until it succeeds, reports that it should not be retried,
// MaxAttempts is reached, or ctx is done.
func (e *ExponentialBackoff) Start(
	ctx context.Context,
	name string,
	task Task,
) error {
	l := logger{e.Logger}
	if l.Logger == nil {
		l.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	after := e.After
	if after == nil {
		after = time.After
	}

	for attempt := uint64(1); ; attempt++ {
		l.attempt(ctx, name, attempt)
		retry, err := task(ctx)
		if err == nil {
			l.complete(ctx, name, attempt, nil)
			return nil
		}

		interval := e.shouldRetry(ctx, attempt, retry)
		if interval == 0 {
			l.complete(ctx, name, attempt, err)
			return err
		}

		l.wait(ctx, name, attempt, interval, err)
		select {
		case <-after(interval):
		case <-ctx.Done():
			l.complete(ctx, name, attempt, ctx.Err())
			return ctx.Err()
		}
	}
}

func (e *ExponentialBackoff) shouldRetry(
	ctx context.Context,
	attempt uint64,
	retry bool,
) time.Duration {
	switch {
	case !retry,
		attempt == e.MaxAttempts,
		ctx.Err() != nil:
		return 0
	}

	interval := e.Interval(attempt)
	if e.Jitter {
		interval = time.Duration(jitter(float64(interval)))
	}
	return interval
}

// Interval returns the wait after the given failed attempt (1-based),
// before jitter: MinInterval doubled per attempt and clamped to MaxInterval.
func (e *ExponentialBackoff) Interval(attempt uint64) time.Duration {
	minInterval := e.MinInterval
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}

	maxInterval := e.MaxInterval
	if maxInterval <= 0 {
		maxInterval = DefaultMaxInterval
	}
	if maxInterval < minInterval {
		maxInterval = minInterval
	}

	interval := minInterval
	for i := uint64(1); i < attempt && interval < maxInterval; i++ {
		interval *= 2
	}
	return min(interval, maxInterval)
}

// The jitter is between 95% and 105% of the base time.
func jitter(base float64) float64 {
	// #nosec G404
	return base * (.95 + .1*rand.Float64())
}
