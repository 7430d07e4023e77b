package service

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrLimitsExceeded is the D-Bus error name returned to throttled senders.
const ErrLimitsExceeded = "org.freedesktop.DBus.Error.LimitsExceeded"

// defaultPruneAt is the number of tracked senders that triggers a sweep.
// Every emitter run connects under a new unique name, so idle entries
// have to be dropped.
const defaultPruneAt = 1024

// RateLimiter throttles EmitHardwareSignal calls per bus sender.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
	pruneAt  int
}

// NewRateLimiter allows each sender perSecond calls with bursts of burst.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		pruneAt:  defaultPruneAt,
	}
}

func (rl *RateLimiter) limiter(sender string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters[sender]
	if !ok {
		if len(rl.limiters) >= rl.pruneAt {
			rl.pruneLocked()
		}
		l = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[sender] = l
	}
	return l
}

// Allow reports whether sender may make a call now. When it may not, the
// returned duration is how long until the next call would be admitted.
func (rl *RateLimiter) Allow(sender string) (bool, time.Duration) {
	l := rl.limiter(sender)
	if l.Allow() {
		return true, 0
	}
	r := l.Reserve()
	delay := r.Delay()
	r.Cancel()
	return false, delay
}

// pruneLocked drops senders whose bucket has refilled. Such a limiter is
// indistinguishable from a new one.
func (rl *RateLimiter) pruneLocked() {
	now := time.Now()
	for sender, l := range rl.limiters {
		if l.TokensAt(now) >= float64(rl.burst) {
			delete(rl.limiters, sender)
		}
	}
}

// Len returns the number of tracked senders.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}
