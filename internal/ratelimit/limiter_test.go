package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"retailgate.org/internal/access"
)

type manualClock struct{ now time.Time }

func (c *manualClock) Now() time.Time { return c.now }

type failingStore struct{ calls int }

func (s *failingStore) Incr(context.Context, string, time.Duration) (int64, time.Time, error) {
	s.calls++
	return 0, time.Time{}, errors.New("store down")
}

func TestLimiterFixedWindow(t *testing.T) {
	clock := &manualClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	lim := New(NewMemoryStore(clock.Now), WithLimit(2), WithWindow(time.Minute), WithLogger(zap.NewNop()))
	ctx := context.Background()

	first := lim.Check(ctx, "br-1", "user-1", access.OpView)
	if !first.Allowed || first.Count != 1 || first.Remaining != 1 {
		t.Fatalf("unexpected first decision: %+v", first)
	}
	if !first.ResetTime.Equal(clock.now.Add(time.Minute)) {
		t.Fatalf("unexpected reset time: %v", first.ResetTime)
	}
	second := lim.Check(ctx, "br-1", "user-1", access.OpView)
	if !second.Allowed || second.Remaining != 0 {
		t.Fatalf("unexpected second decision: %+v", second)
	}
	third := lim.Check(ctx, "br-1", "user-1", access.OpView)
	if third.Allowed || third.Count != 3 || third.Remaining != 0 {
		t.Fatalf("unexpected third decision: %+v", third)
	}

	other := lim.Check(ctx, "br-1", "user-1", access.OpUpdate)
	if !other.Allowed || other.Count != 1 {
		t.Fatalf("operations must be counted separately: %+v", other)
	}
	otherBranch := lim.Check(ctx, "br-2", "user-1", access.OpView)
	if !otherBranch.Allowed {
		t.Fatalf("branches must be counted separately: %+v", otherBranch)
	}

	clock.now = clock.now.Add(time.Minute)
	reset := lim.Check(ctx, "br-1", "user-1", access.OpView)
	if !reset.Allowed || reset.Count != 1 {
		t.Fatalf("expected counter reset after window, got %+v", reset)
	}
}

func TestLimiterOperationLimit(t *testing.T) {
	lim := New(nil, WithLimit(10), WithOperationLimit(access.OpTransfer, 1), WithLogger(zap.NewNop()))
	if lim.LimitFor(access.OpView) != 10 || lim.LimitFor(access.OpTransfer) != 1 {
		t.Fatalf("unexpected limits: view=%d transfer=%d", lim.LimitFor(access.OpView), lim.LimitFor(access.OpTransfer))
	}
	ctx := context.Background()
	if d := lim.Check(ctx, "br-1", "u", access.OpTransfer); !d.Allowed {
		t.Fatalf("expected first transfer allowed: %+v", d)
	}
	if d := lim.Check(ctx, "br-1", "u", access.OpTransfer); d.Allowed {
		t.Fatalf("expected second transfer rejected: %+v", d)
	}
}

func TestLimiterDefaults(t *testing.T) {
	lim := New(nil)
	if lim.Window() != DefaultWindow {
		t.Fatalf("expected default window, got %v", lim.Window())
	}
	if lim.LimitFor(access.OpView) != DefaultLimit {
		t.Fatalf("expected default limit, got %d", lim.LimitFor(access.OpView))
	}
	if Key("br-1", "u-1", access.OpView) != "br-1:u-1:view" {
		t.Fatalf("unexpected key %q", Key("br-1", "u-1", access.OpView))
	}
}

func TestLimiterFallbackStore(t *testing.T) {
	primary := &failingStore{}
	lim := New(primary, WithLimit(1), WithFallback(NewMemoryStore(nil)), WithLogger(zap.NewNop()))
	ctx := context.Background()
	if d := lim.Check(ctx, "br-1", "u", access.OpView); !d.Allowed || d.Count != 1 {
		t.Fatalf("expected fallback allow, got %+v", d)
	}
	if d := lim.Check(ctx, "br-1", "u", access.OpView); d.Allowed {
		t.Fatalf("expected fallback to enforce limit, got %+v", d)
	}
	if primary.calls != 2 {
		t.Fatalf("expected primary to be tried each time, got %d", primary.calls)
	}
}

func TestLimiterStoreOutageAllows(t *testing.T) {
	lim := New(&failingStore{}, WithLimit(1), WithLogger(zap.NewNop()))
	for i := 0; i < 3; i++ {
		d := lim.Check(context.Background(), "br-1", "u", access.OpView)
		if !d.Allowed || d.Count != 0 || d.Remaining != 1 {
			t.Fatalf("expected permissive decision on outage, got %+v", d)
		}
	}
}

func TestLimiterStoreOutageUsesClock(t *testing.T) {
	clock := &manualClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	lim := New(&failingStore{},
		WithFallback(&failingStore{}),
		WithWindow(30*time.Second),
		WithClock(clock.Now),
		WithLogger(zap.NewNop()),
	)
	d := lim.Check(context.Background(), "br-1", "u", access.OpView)
	if !d.Allowed {
		t.Fatalf("expected permissive decision on outage, got %+v", d)
	}
	if want := clock.now.Add(30 * time.Second); !d.ResetTime.Equal(want) {
		t.Fatalf("reset time = %v, want %v", d.ResetTime, want)
	}
}

func TestMemoryStoreCleanup(t *testing.T) {
	clock := &manualClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(clock.Now)
	ctx := context.Background()
	_, _, _ = store.Incr(ctx, "a", time.Second)
	_, _, _ = store.Incr(ctx, "b", time.Minute)
	clock.now = clock.now.Add(2 * time.Second)
	_, _, _ = store.Incr(ctx, "c", time.Minute)
	if store.Len() != 2 {
		t.Fatalf("expected expired window to be dropped, got %d", store.Len())
	}
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	lim := New(NewRedisStore(client), WithLimit(2), WithWindow(50*time.Millisecond), WithLogger(zap.NewNop()))
	ctx := context.Background()

	first := lim.Check(ctx, "br-1", "user-1", access.OpView)
	if !first.Allowed || first.Count != 1 || first.Remaining != 1 {
		t.Fatalf("unexpected first decision: %+v", first)
	}
	if !first.ResetTime.After(time.Now().UTC()) {
		t.Fatalf("expected reset time in the future, got %v", first.ResetTime)
	}
	_ = lim.Check(ctx, "br-1", "user-1", access.OpView)
	third := lim.Check(ctx, "br-1", "user-1", access.OpView)
	if third.Allowed || third.Count != 3 {
		t.Fatalf("unexpected third decision: %+v", third)
	}
	if !mr.Exists("rl:br-1:user-1:view") {
		t.Fatal("expected prefixed redis key")
	}

	mr.FastForward(60 * time.Millisecond)
	reset := lim.Check(ctx, "br-1", "user-1", access.OpView)
	if !reset.Allowed || reset.Count != 1 {
		t.Fatalf("expected counter reset after window, got %+v", reset)
	}
}

func TestRedisStoreUnavailableFallsBack(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:         "127.0.0.1:1",
		DialTimeout:  5 * time.Millisecond,
		ReadTimeout:  5 * time.Millisecond,
		WriteTimeout: 5 * time.Millisecond,
		MaxRetries:   -1,
	})
	defer client.Close()

	lim := New(NewRedisStore(client), WithLimit(1), WithFallback(NewMemoryStore(nil)), WithLogger(zap.NewNop()))
	if d := lim.Check(context.Background(), "br-1", "u", access.OpView); !d.Allowed || d.Count != 1 {
		t.Fatalf("expected in-memory fallback allow on redis outage, got %+v", d)
	}
	if d := lim.Check(context.Background(), "br-1", "u", access.OpView); d.Allowed {
		t.Fatalf("expected fallback limiter to enforce limits, got %+v", d)
	}
}

func TestRedisStoreWithoutClient(t *testing.T) {
	if _, _, err := (&RedisStore{}).Incr(context.Background(), "k", time.Second); err == nil {
		t.Fatal("expected error without client")
	}
}
