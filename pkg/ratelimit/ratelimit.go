package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter spaces operations by a fixed delay, incorporating optional jitter.
// Every call to Wait sleeps for the delay before returning, and concurrent
// callers are queued behind each other so the overall request budget holds
// no matter how many goroutines share one Limiter.
type Limiter struct {
	mu     sync.Mutex
	delay  time.Duration
	jitter float64 // 0.0 to 1.0
	next   time.Time
	now    func() time.Time
}

// NewLimiter creates a limiter that waits delay before every operation.
// Jitter adds up to jitter*delay of extra random wait and is clamped to
// [0, 1]. If delay is <= 0 the limiter does not block, except for pauses
// requested through PauseUntil.
func NewLimiter(delay time.Duration, jitter float64) *Limiter {
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}
	if delay < 0 {
		delay = 0
	}
	return &Limiter{
		delay:  delay,
		jitter: jitter,
		now:    time.Now,
	}
}

// Wait reserves the next slot and blocks until it arrives, or until the
// context is canceled.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	now := l.now()
	start := now
	if l.next.After(start) {
		start = l.next
	}
	slot := start.Add(l.delay + l.jitterDuration())
	l.next = slot
	l.mu.Unlock()

	wait := slot.Sub(now)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// PauseUntil holds back every operation until t. Used when the upstream
// reports an exhausted quota together with its reset time.
func (l *Limiter) PauseUntil(t time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t.After(l.next) {
		l.next = t
	}
}

// Delay reports the configured fixed delay.
func (l *Limiter) Delay() time.Duration {
	return l.delay
}

func (l *Limiter) jitterDuration() time.Duration {
	if l.jitter <= 0 || l.delay <= 0 {
		return 0
	}
	return time.Duration(float64(l.delay) * l.jitter * rand.Float64())
}
