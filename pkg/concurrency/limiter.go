package concurrency

import (
	"context"
	"sync/atomic"
	"time"
)

// Metrics is a snapshot of limiter counters
type Metrics struct {
	TotalAcquired   int64
	TotalReleased   int64
	TotalRejected   int64
	PeakConcurrent  int64
	TotalWaitTimeNs int64
}

// Limiter bounds the number of requests handled at once. It is backed by a
// semaphore channel and an optional circuit breaker that sheds load while open.
type Limiter struct {
	sem     chan struct{}
	active  int64
	breaker *CircuitBreaker

	acquired int64
	released int64
	rejected int64
	peak     int64
	waitNs   int64
}

// NewLimiter creates a limiter allowing maxConcurrent holders, guarded by a
// breaker that opens after 100 consecutive handler failures.
func NewLimiter(maxConcurrent int) *Limiter {
	return NewLimiterWithCircuitBreaker(maxConcurrent, NewCircuitBreaker(100, 30*time.Second))
}

// NewLimiterWithCircuitBreaker creates a limiter with custom circuit breaker settings.
// A nil breaker disables load shedding.
func NewLimiterWithCircuitBreaker(maxConcurrent int, cb *CircuitBreaker) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Limiter{
		sem:     make(chan struct{}, maxConcurrent),
		breaker: cb,
	}
}

// Acquire blocks until a slot is free. It fails with ErrCircuitOpen while
// the breaker is open, or with the context error on cancellation.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.breaker != nil && l.breaker.IsOpen() {
		atomic.AddInt64(&l.rejected, 1)
		return ErrCircuitOpen
	}

	start := time.Now()
	select {
	case l.sem <- struct{}{}:
		atomic.AddInt64(&l.waitNs, time.Since(start).Nanoseconds())
		atomic.AddInt64(&l.acquired, 1)
		l.updatePeak(atomic.AddInt64(&l.active, 1))
		return nil
	case <-ctx.Done():
		atomic.AddInt64(&l.rejected, 1)
		return ctx.Err()
	}
}

// Release returns a slot
func (l *Limiter) Release() {
	select {
	case <-l.sem:
		atomic.AddInt64(&l.active, -1)
		atomic.AddInt64(&l.released, 1)
	default:
	}
}

// Go runs fn in a goroutine once a slot is acquired.
func (l *Limiter) Go(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	go func() {
		defer l.Release()
		l.record(fn())
	}()
	return nil
}

// GoSync runs fn on the calling goroutine once a slot is acquired.
func (l *Limiter) GoSync(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()

	err := fn()
	l.record(err)
	return err
}

// CurrentActive returns the number of held slots
func (l *Limiter) CurrentActive() int64 {
	return atomic.LoadInt64(&l.active)
}

// Metrics returns a snapshot of the limiter counters
func (l *Limiter) Metrics() Metrics {
	return Metrics{
		TotalAcquired:   atomic.LoadInt64(&l.acquired),
		TotalReleased:   atomic.LoadInt64(&l.released),
		TotalRejected:   atomic.LoadInt64(&l.rejected),
		PeakConcurrent:  atomic.LoadInt64(&l.peak),
		TotalWaitTimeNs: atomic.LoadInt64(&l.waitNs),
	}
}

// AverageWaitTime is the mean time spent waiting for a slot
func (l *Limiter) AverageWaitTime() time.Duration {
	m := l.Metrics()
	if m.TotalAcquired == 0 {
		return 0
	}
	return time.Duration(m.TotalWaitTimeNs / m.TotalAcquired)
}

// BreakerState returns the state of the load-shedding breaker
func (l *Limiter) BreakerState() CircuitBreakerState {
	if l.breaker == nil {
		return StateClosed
	}
	l.breaker.IsOpen()
	return l.breaker.State()
}

func (l *Limiter) record(err error) {
	if l.breaker == nil {
		return
	}
	if err != nil {
		l.breaker.RecordFailure()
		return
	}
	l.breaker.RecordSuccess()
}

func (l *Limiter) updatePeak(current int64) {
	for {
		peak := atomic.LoadInt64(&l.peak)
		if current <= peak || atomic.CompareAndSwapInt64(&l.peak, peak, current) {
			return
		}
	}
}
