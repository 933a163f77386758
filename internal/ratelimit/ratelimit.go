// Package ratelimit gates outgoing broker calls per tool and caller role
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"autotrader/internal/core"
)

// Limits configures one tool/role bucket
type Limits struct {
	PerMinute   int
	PerHour     int
	MinCooldown time.Duration
}

// DefaultLimits applies when no explicit bucket is configured
var DefaultLimits = Limits{
	PerMinute:   60,
	PerHour:     1200,
	MinCooldown: 0,
}

// Check is the structured answer for a rate limit probe
type Check struct {
	Allowed bool
	Wait    time.Duration
	Reason  string
}

type bucket struct {
	minute   *rate.Limiter
	hour     *rate.Limiter
	cooldown time.Duration
	lastCall time.Time
}

// Limiter enforces per-minute and per-hour caps plus a minimum cooldown for
// every (tool, role) pair.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limits  map[string]Limits
	clock   core.Clock
}

// NewLimiter creates a limiter; limits is keyed by "tool:role" with "" as the
// catch-all. Nil limits means DefaultLimits for everything.
func NewLimiter(limits map[string]Limits, clock core.Clock) *Limiter {
	if clock == nil {
		clock = core.SystemClock{}
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		limits:  limits,
		clock:   clock,
	}
}

func key(tool, role string) string { return tool + ":" + role }

func (l *Limiter) bucketFor(tool, role string) *bucket {
	k := key(tool, role)
	if b, ok := l.buckets[k]; ok {
		return b
	}

	limits, ok := l.limits[k]
	if !ok {
		limits, ok = l.limits[""]
		if !ok {
			limits = DefaultLimits
		}
	}

	b := &bucket{
		minute:   rate.NewLimiter(rate.Limit(float64(limits.PerMinute)/60.0), limits.PerMinute),
		hour:     rate.NewLimiter(rate.Limit(float64(limits.PerHour)/3600.0), limits.PerHour),
		cooldown: limits.MinCooldown,
	}
	l.buckets[k] = b
	return b
}

// Allow probes the bucket for (tool, role). It never blocks: when the call is
// refused the caller decides whether to wait out Check.Wait or give up.
func (l *Limiter) Allow(tool, role string) Check {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.bucketFor(tool, role)
	now := l.clock.Now()

	if b.cooldown > 0 && !b.lastCall.IsZero() {
		if elapsed := now.Sub(b.lastCall); elapsed < b.cooldown {
			return Check{
				Allowed: false,
				Wait:    b.cooldown - elapsed,
				Reason:  fmt.Sprintf("cooldown: %s remaining", b.cooldown-elapsed),
			}
		}
	}

	minuteRes := b.minute.ReserveN(now, 1)
	if delay := minuteRes.DelayFrom(now); delay > 0 {
		minuteRes.CancelAt(now)
		return Check{Allowed: false, Wait: delay, Reason: "per-minute limit reached"}
	}

	hourRes := b.hour.ReserveN(now, 1)
	if delay := hourRes.DelayFrom(now); delay > 0 {
		hourRes.CancelAt(now)
		minuteRes.CancelAt(now)
		return Check{Allowed: false, Wait: delay, Reason: "per-hour limit reached"}
	}

	b.lastCall = now
	return Check{Allowed: true}
}

// Wait blocks until the call is allowed or ctx is done
func (l *Limiter) Wait(ctx context.Context, tool, role string) error {
	for {
		check := l.Allow(tool, role)
		if check.Allowed {
			return nil
		}

		timer := time.NewTimer(check.Wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
