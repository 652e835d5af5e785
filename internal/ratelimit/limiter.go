// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ratelimit gates outbound calls to the remote analysis API.
//
// The limiter enforces three independent ceilings at once: requests per
// rolling minute, token volume per rolling minute, and requests per
// calendar day. A reservation is recorded optimistically before the
// remote call is made and corrected afterwards with the true token cost,
// so concurrent callers always see realistic pressure.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// windowLength is the span of the rolling request/token window.
const windowLength = time.Minute

// minWait is the floor applied to computed sleep durations so a blocked
// caller never busy-spins against the lock.
const minWait = 500 * time.Millisecond

// Limits holds the three ceilings the limiter enforces.
type Limits struct {
	RequestsPerMinute int
	TokensPerMinute   int
	RequestsPerDay    int
}

// entry is one reserved or confirmed call in the rolling window.
type entry struct {
	at     time.Time
	tokens int
}

// Usage is a point-in-time snapshot of consumption against all ceilings.
type Usage struct {
	RequestsUsed  int
	RequestsLimit int
	TokensUsed    int
	TokensLimit   int
	DailyUsed     int
	DailyLimit    int
	Day           string
}

// Limiter is a sliding-window admission controller. It is safe for
// concurrent use; the suspend-then-retry loop in Reserve releases the
// lock while sleeping so one caller's wait never blocks another's check.
type Limiter struct {
	limits Limits

	mu       sync.Mutex
	window   []entry
	dayCount int
	day      string

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source (useful for tests).
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithSleep overrides how blocked reservations wait (useful for tests).
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(l *Limiter) {
		if sleep != nil {
			l.sleep = sleep
		}
	}
}

// New constructs a Limiter with the given ceilings.
func New(limits Limits, opts ...Option) *Limiter {
	l := &Limiter{
		limits: limits,
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Reserve blocks until the estimated token cost fits under all three
// ceilings, then records a provisional window entry and returns. It only
// fails when ctx is cancelled; given enough time the rolling window
// drains and the daily counter resets, so every reservation is
// eventually granted.
func (l *Limiter) Reserve(ctx context.Context, estimatedTokens int) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.purge(now)
		l.rolloverDay(now)

		requestsOK := len(l.window) < l.limits.RequestsPerMinute
		tokensOK := l.windowTokens()+estimatedTokens <= l.limits.TokensPerMinute
		dailyOK := l.dayCount < l.limits.RequestsPerDay

		if requestsOK && tokensOK && dailyOK {
			l.window = append(l.window, entry{at: now, tokens: estimatedTokens})
			l.dayCount++
			l.mu.Unlock()
			return nil
		}

		wait := l.nextWait(now)
		l.mu.Unlock()

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Correct overwrites the token cost of the most recent reservation with
// the now-known actual usage, keeping the volume ceiling faithful to
// reality rather than to pre-call estimates.
func (l *Limiter) Correct(actualTokens int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.window) > 0 {
		l.window[len(l.window)-1].tokens = actualTokens
	}
}

// Snapshot returns current usage against all three ceilings.
func (l *Limiter) Snapshot() Usage {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.purge(now)
	l.rolloverDay(now)
	return Usage{
		RequestsUsed:  len(l.window),
		RequestsLimit: l.limits.RequestsPerMinute,
		TokensUsed:    l.windowTokens(),
		TokensLimit:   l.limits.TokensPerMinute,
		DailyUsed:     l.dayCount,
		DailyLimit:    l.limits.RequestsPerDay,
		Day:           l.day,
	}
}

// purge drops window entries older than the rolling window. Callers hold l.mu.
func (l *Limiter) purge(now time.Time) {
	cutoff := now.Add(-windowLength)
	i := 0
	for i < len(l.window) && l.window[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		l.window = append(l.window[:0], l.window[i:]...)
	}
}

// rolloverDay resets the daily counter when the calendar day changes.
// The reset is lazy: it happens on the next check, whether or not any
// call was made that day. Callers hold l.mu.
func (l *Limiter) rolloverDay(now time.Time) {
	today := now.Format("2006-01-02")
	if today != l.day {
		l.day = today
		l.dayCount = 0
	}
}

// windowTokens sums the token cost of all live window entries. Callers hold l.mu.
func (l *Limiter) windowTokens() int {
	total := 0
	for _, e := range l.window {
		total += e.tokens
	}
	return total
}

// nextWait computes how long a blocked caller should sleep: until the
// oldest window entry expires, plus a small margin, never below the
// floor. Callers hold l.mu.
func (l *Limiter) nextWait(now time.Time) time.Duration {
	if len(l.window) == 0 {
		// Blocked on the daily ceiling with an empty window; poll slowly.
		return time.Second
	}
	oldest := l.window[0].at
	wait := windowLength - now.Sub(oldest) + 100*time.Millisecond
	if wait < minWait {
		wait = minWait
	}
	return wait
}

// sleepContext sleeps for d or until ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
