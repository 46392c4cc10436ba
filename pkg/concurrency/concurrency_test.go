package concurrency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	}
	assert.Equal(t, StateClosed, cb.State())

	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute)
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, int64(1), cb.ConsecutiveFailures())
}

func TestCircuitBreakerHalfOpenAfterReset(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(1, time.Second)
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	require.True(t, cb.IsOpen())

	now = now.Add(2 * time.Second)
	assert.False(t, cb.IsOpen())
	assert.Equal(t, StateHalfOpen, cb.State())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())

	now = now.Add(2 * time.Second)
	require.False(t, cb.IsOpen())
	for i := 0; i < DefaultHalfOpenSuccesses; i++ {
		cb.RecordSuccess()
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Hour)
	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, int64(0), cb.ConsecutiveFailures())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", CircuitBreakerState(9).String())
}

func TestLimiterBoundsConcurrency(t *testing.T) {
	l := NewLimiter(2)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		running int
		peak    int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.GoSync(ctx, func() error {
				mu.Lock()
				running++
				if running > peak {
					peak = running
				}
				mu.Unlock()
				time.Sleep(5 * time.Millisecond)
				mu.Lock()
				running--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak, 2)
	m := l.Metrics()
	assert.Equal(t, int64(8), m.TotalAcquired)
	assert.Equal(t, int64(8), m.TotalReleased)
	assert.LessOrEqual(t, m.PeakConcurrent, int64(2))
	assert.Equal(t, int64(0), l.CurrentActive())
}

func TestLimiterAcquireHonoursContext(t *testing.T) {
	l := NewLimiter(1)
	require.NoError(t, l.Acquire(context.Background()))
	defer l.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Acquire(ctx), context.DeadlineExceeded)
	assert.Equal(t, int64(1), l.Metrics().TotalRejected)
}

func TestLimiterShedsLoadWhileBreakerOpen(t *testing.T) {
	l := NewLimiterWithCircuitBreaker(4, NewCircuitBreaker(1, time.Hour))

	err := l.GoSync(context.Background(), func() error { return errBoom })
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, StateOpen, l.BreakerState())

	err = l.GoSync(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestLimiterGoReleasesSlot(t *testing.T) {
	l := NewLimiterWithCircuitBreaker(1, nil)
	done := make(chan struct{})

	require.NoError(t, l.Go(context.Background(), func() error {
		close(done)
		return nil
	}))
	<-done

	require.Eventually(t, func() bool { return l.CurrentActive() == 0 }, time.Second, time.Millisecond)
	assert.Equal(t, StateClosed, l.BreakerState())
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("ARIADNE_MAX_CONCURRENT", "7")
	t.Setenv("ARIADNE_BREAKER_THRESHOLD", "12")
	t.Setenv("ARIADNE_BREAKER_RESET", "5s")

	cfg := LoadConfig()
	assert.Equal(t, 7, cfg.MaxConcurrent)
	assert.Equal(t, ConfigSourceEnvVar, cfg.Source)
	assert.Equal(t, int64(12), cfg.BreakerThreshold)
	assert.Equal(t, 5*time.Second, cfg.BreakerReset)
	assert.NotNil(t, cfg.NewLimiter())
}

func TestLoadConfigMultiplier(t *testing.T) {
	t.Setenv("ARIADNE_MAX_CONCURRENT", "")
	t.Setenv("ARIADNE_CONCURRENCY_MULTIPLIER", "3")

	cfg := LoadConfig()
	assert.Equal(t, cfg.EffectiveCPUs*3, cfg.MaxConcurrent)
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ARIADNE_MAX_CONCURRENT", "")
	t.Setenv("ARIADNE_CONCURRENCY_MULTIPLIER", "")
	t.Setenv("ARIADNE_BREAKER_RESET", "nonsense")

	cfg := LoadConfig()
	assert.Equal(t, ConfigSourceAutoDetect, cfg.Source)
	assert.GreaterOrEqual(t, cfg.MaxConcurrent, 1)
	assert.Equal(t, 30*time.Second, cfg.BreakerReset)
}
