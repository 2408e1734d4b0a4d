package retry_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/dht-telemetry/internal/retry"
)

type Mock struct {
	mock.Mock
}

var errRetryable = errors.New("this error is retryable")

// Mocked retry executed function.
func (m *Mock) Task(context.Context) (bool, error) {
	args := m.Called()
	return args.Bool(0), args.Error(1)
}

// recorder returns immediately and remembers every requested wait.
type recorder struct {
	mu        sync.Mutex
	intervals []time.Duration
}

func (r *recorder) After(d time.Duration) <-chan time.Time {
	r.mu.Lock()
	r.intervals = append(r.intervals, d)
	r.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

func TestNoRetry(t *testing.T) {
	m := new(Mock)
	m.On("Task").Return(false, nil)

	r := retry.ExponentialBackoff{}
	err := r.Start(context.Background(), "TestNoRetry", m.Task)

	require.NoError(t, err)
	m.AssertNumberOfCalls(t, "Task", 1)
}

func TestNotRetryable(t *testing.T) {
	m := new(Mock)
	m.On("Task").Return(false, errRetryable)

	r := retry.ExponentialBackoff{}
	err := r.Start(context.Background(), "TestNotRetryable", m.Task)

	require.ErrorIs(t, err, errRetryable)
	m.AssertNumberOfCalls(t, "Task", 1)
}

func TestMaxAttempts(t *testing.T) {
	m := new(Mock)
	m.On("Task").Return(true, errRetryable)

	rec := &recorder{}
	r := retry.ExponentialBackoff{MaxAttempts: 3, After: rec.After}
	err := r.Start(context.Background(), "TestMaxAttempts", m.Task)

	require.EqualError(t, err, errRetryable.Error())
	m.AssertNumberOfCalls(t, "Task", 3)
	require.Len(t, rec.intervals, 2)
}

func TestRetryUntilSuccess(t *testing.T) {
	m := new(Mock)
	m.On("Task").Twice().Return(true, errRetryable)
	m.On("Task").Once().Return(false, nil)

	rec := &recorder{}
	r := retry.ExponentialBackoff{After: rec.After}
	err := r.Start(context.Background(), "TestRetryUntilSuccess", m.Task)

	require.NoError(t, err)
	m.AssertNumberOfCalls(t, "Task", 3)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.intervals)
}

func TestIntervalsIncreaseUntilCap(t *testing.T) {
	r := retry.ExponentialBackoff{}

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, w := range want {
		require.Equal(t, w, r.Interval(uint64(i+1)), "attempt %d", i+1)
	}
	require.Equal(t, 30*time.Second, r.Interval(1000))
}

func TestCustomIntervals(t *testing.T) {
	r := retry.ExponentialBackoff{
		MinInterval: 10 * time.Millisecond,
		MaxInterval: 50 * time.Millisecond,
	}

	require.Equal(t, 10*time.Millisecond, r.Interval(1))
	require.Equal(t, 20*time.Millisecond, r.Interval(2))
	require.Equal(t, 40*time.Millisecond, r.Interval(3))
	require.Equal(t, 50*time.Millisecond, r.Interval(4))
}

func TestJitterStaysInBand(t *testing.T) {
	m := new(Mock)
	m.On("Task").Return(true, errRetryable)

	rec := &recorder{}
	r := retry.ExponentialBackoff{MaxAttempts: 5, Jitter: true, After: rec.After}
	_ = r.Start(context.Background(), "TestJitter", m.Task)

	require.Len(t, rec.intervals, 4)
	for i, d := range rec.intervals {
		base := r.Interval(uint64(i + 1))
		require.GreaterOrEqual(t, d, time.Duration(float64(base)*0.95))
		require.LessOrEqual(t, d, time.Duration(float64(base)*1.05))
	}
}

func TestContextCancelStopsWaiting(t *testing.T) {
	m := new(Mock)
	m.On("Task").Return(true, errRetryable)

	ctx, cancel := context.WithCancel(context.Background())
	never := func(time.Duration) <-chan time.Time {
		cancel()
		return nil
	}

	r := retry.ExponentialBackoff{After: never}
	err := r.Start(ctx, "TestContextCancel", m.Task)

	require.ErrorIs(t, err, context.Canceled)
	m.AssertNumberOfCalls(t, "Task", 1)
}
