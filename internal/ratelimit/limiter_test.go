package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeClock advances only when the limiter sleeps, so blocking behavior
// is observable without real waits.
type fakeClock struct {
	mu  sync.Mutex
	t   time.Time
	ssl time.Duration // total slept
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	c.ssl += d
	return nil
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *fakeClock) slept() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ssl
}

func newTestLimiter(limits Limits, clock *fakeClock) *Limiter {
	return New(limits, WithClock(clock.now), WithSleep(clock.sleep))
}

func TestReserveGrantsImmediatelyUnderLimits(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(Limits{RequestsPerMinute: 3, TokensPerMinute: 100, RequestsPerDay: 10}, clock)

	for i := 0; i < 3; i++ {
		if err := l.Reserve(context.Background(), 20); err != nil {
			t.Fatalf("reserve %d: %v", i, err)
		}
	}
	if clock.slept() != 0 {
		t.Fatalf("expected no sleep, slept %v", clock.slept())
	}

	u := l.Snapshot()
	if u.RequestsUsed != 3 || u.TokensUsed != 60 || u.DailyUsed != 3 {
		t.Fatalf("unexpected usage: %+v", u)
	}
}

func TestThirdReservationBlocksUntilWindowDrains(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(Limits{RequestsPerMinute: 2, TokensPerMinute: 100, RequestsPerDay: 100}, clock)

	for i := 0; i < 2; i++ {
		if err := l.Reserve(context.Background(), 10); err != nil {
			t.Fatalf("reserve %d: %v", i, err)
		}
	}
	if clock.slept() != 0 {
		t.Fatalf("first two reservations should not block, slept %v", clock.slept())
	}

	// Third call must wait until the first entry leaves the 60s window.
	if err := l.Reserve(context.Background(), 10); err != nil {
		t.Fatalf("third reserve: %v", err)
	}
	if clock.slept() < windowLength {
		t.Fatalf("expected to sleep at least %v, slept %v", windowLength, clock.slept())
	}

	u := l.Snapshot()
	if u.RequestsUsed != 1 {
		t.Fatalf("expected 1 live entry after drain, got %d", u.RequestsUsed)
	}
}

func TestTokenCeilingBlocks(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(Limits{RequestsPerMinute: 10, TokensPerMinute: 100, RequestsPerDay: 100}, clock)

	if err := l.Reserve(context.Background(), 60); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := l.Reserve(context.Background(), 39); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if clock.slept() != 0 {
		t.Fatalf("99/100 tokens should fit without blocking")
	}

	if err := l.Reserve(context.Background(), 10); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if clock.slept() == 0 {
		t.Fatal("expected the over-volume reservation to block")
	}
}

func TestCorrectAdjustsMostRecentReservation(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(Limits{RequestsPerMinute: 10, TokensPerMinute: 1000, RequestsPerDay: 100}, clock)

	if err := l.Reserve(context.Background(), 50); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	before := l.Snapshot().TokensUsed

	l.Correct(30)
	after := l.Snapshot().TokensUsed

	if after-before != 30-50 {
		t.Fatalf("Correct changed volume by %d, want %d", after-before, 30-50)
	}
}

func TestCorrectOnEmptyWindowIsNoop(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(Limits{RequestsPerMinute: 1, TokensPerMinute: 10, RequestsPerDay: 1}, clock)
	l.Correct(99)
	if got := l.Snapshot().TokensUsed; got != 0 {
		t.Fatalf("TokensUsed = %d, want 0", got)
	}
}

func TestDailyCounterResetsOnNewDay(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(Limits{RequestsPerMinute: 100, TokensPerMinute: 10000, RequestsPerDay: 5}, clock)

	for i := 0; i < 5; i++ {
		if err := l.Reserve(context.Background(), 1); err != nil {
			t.Fatalf("reserve %d: %v", i, err)
		}
	}
	if got := l.Snapshot().DailyUsed; got != 5 {
		t.Fatalf("DailyUsed = %d, want 5", got)
	}

	// Any checking operation after midnight resets the counter, even if
	// no reservation is attempted.
	clock.advance(24 * time.Hour)
	u := l.Snapshot()
	if u.DailyUsed != 0 {
		t.Fatalf("DailyUsed after rollover = %d, want 0", u.DailyUsed)
	}
	if u.Day != clock.now().Format("2006-01-02") {
		t.Fatalf("Day = %q, want %q", u.Day, clock.now().Format("2006-01-02"))
	}
}

func TestDailyCeilingBlocksUntilRollover(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(Limits{RequestsPerMinute: 100, TokensPerMinute: 10000, RequestsPerDay: 2}, clock)

	for i := 0; i < 2; i++ {
		if err := l.Reserve(context.Background(), 1); err != nil {
			t.Fatalf("reserve %d: %v", i, err)
		}
	}

	// The third reservation sleeps (in 1s/entry-expiry steps) until the
	// fake clock crosses midnight.
	if err := l.Reserve(context.Background(), 1); err != nil {
		t.Fatalf("third reserve: %v", err)
	}
	if l.Snapshot().DailyUsed != 1 {
		t.Fatalf("DailyUsed = %d, want 1 after rollover grant", l.Snapshot().DailyUsed)
	}
}

func TestReserveHonorsContextCancellation(t *testing.T) {
	clock := newFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	l := New(
		Limits{RequestsPerMinute: 1, TokensPerMinute: 100, RequestsPerDay: 100},
		WithClock(clock.now),
		WithSleep(func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		}),
	)

	if err := l.Reserve(ctx, 1); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	if err := l.Reserve(ctx, 1); err == nil {
		t.Fatal("expected context cancellation error")
	}
}

func TestConcurrentReservations(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(Limits{RequestsPerMinute: 4, TokensPerMinute: 1000, RequestsPerDay: 100}, clock)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Reserve(context.Background(), 10); err != nil {
				t.Errorf("reserve: %v", err)
			}
		}()
	}
	wg.Wait()

	u := l.Snapshot()
	if u.RequestsUsed > u.RequestsLimit {
		t.Fatalf("window overflow: %d > %d", u.RequestsUsed, u.RequestsLimit)
	}
	if u.DailyUsed != 8 {
		t.Fatalf("DailyUsed = %d, want 8", u.DailyUsed)
	}
}
