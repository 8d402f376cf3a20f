package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/goliatone/go-slack/core"
)

const defaultCooldown = 30 * time.Second

// Limiter paces outbound calls with a token bucket. Reduce halves the rate
// until the cooldown elapses.
type Limiter struct {
	limiter  *rate.Limiter
	cooldown time.Duration

	mu       sync.Mutex
	original rate.Limit
	timer    *time.Timer
	closed   bool
}

// NewLimiter allows rps requests per second with the given burst. A
// non-positive rps disables pacing.
func NewLimiter(rps float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	l := &Limiter{cooldown: defaultCooldown, original: rate.Limit(rps)}
	if rps > 0 {
		l.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return l
}

func (l *Limiter) WithCooldown(cooldown time.Duration) *Limiter {
	if l != nil && cooldown > 0 {
		l.cooldown = cooldown
	}
	return l
}

func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.limiter == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}

// Limit is the current pace in requests per second.
func (l *Limiter) Limit() float64 {
	if l == nil || l.limiter == nil {
		return 0
	}
	return float64(l.limiter.Limit())
}

// Reduce halves the pace after a throttled response and schedules a restore.
func (l *Limiter) Reduce() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limiter == nil || l.closed {
		return
	}
	reduced := l.original / 2
	if reduced < 0.01 {
		reduced = 0.01
	}
	l.limiter.SetLimit(reduced)

	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(l.cooldown, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if !l.closed && l.limiter != nil {
			l.limiter.SetLimit(l.original)
		}
	})
}

func (l *Limiter) Close() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

var _ core.RateLimiter = (*Limiter)(nil)
