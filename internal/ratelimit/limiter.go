// Package ratelimit enforces fixed-window request limits per
// (branch, user, operation) over a pluggable counter store.
package ratelimit

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"retailgate.org/internal/access"
	"retailgate.org/internal/obs"
)

const (
	DefaultWindow = time.Minute
	DefaultLimit  = 100
)

// Decision is the limiter's verdict for one request.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Count     int       `json:"count"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining_requests"`
	ResetTime time.Time `json:"reset_time"`
}

// CounterStore increments the counter for key within a fixed window. The first
// increment of a window starts it; resetAt is when the window closes.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithWindow sets the window length.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.window = d
		}
	}
}

// WithLimit sets the default per-window limit.
func WithLimit(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.limit = n
		}
	}
}

// WithOperationLimit overrides the limit for one operation.
func WithOperationLimit(op access.Operation, n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.perOp[op] = n
		}
	}
}

// WithFallback sets the store used when the primary store fails.
func WithFallback(store CounterStore) Option {
	return func(l *Limiter) {
		l.fallback = store
	}
}

// WithLogger sets the logger used to report store failures.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock injects the time source used when no store can report a window.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// Limiter applies fixed-window limits.
type Limiter struct {
	store    CounterStore
	fallback CounterStore
	window   time.Duration
	limit    int
	perOp    map[access.Operation]int
	logger   *zap.Logger
	now      func() time.Time
}

// New builds a limiter over store. A nil store uses an in-memory store.
func New(store CounterStore, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		window: DefaultWindow,
		limit:  DefaultLimit,
		perOp:  make(map[access.Operation]int),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.store == nil {
		l.store = NewMemoryStore(nil)
	}
	if l.logger == nil {
		l.logger = obs.Logger()
	}
	return l
}

// Window returns the configured window.
func (l *Limiter) Window() time.Duration { return l.window }

// LimitFor returns the effective limit for op.
func (l *Limiter) LimitFor(op access.Operation) int {
	if n, ok := l.perOp[op]; ok {
		return n
	}
	return l.limit
}

// Key builds the counter key for a request.
func Key(branchID, userID string, op access.Operation) string {
	return strings.Join([]string{branchID, userID, string(op)}, ":")
}

// Check counts one request for (branch, user, op) and reports whether it fits
// the window. When both stores fail the request is allowed and the failure logged.
func (l *Limiter) Check(ctx context.Context, branchID, userID string, op access.Operation) Decision {
	limit := l.LimitFor(op)
	key := Key(branchID, userID, op)

	count, resetAt, err := l.store.Incr(ctx, key, l.window)
	if err != nil && l.fallback != nil {
		l.logger.Warn("rate limit store failed, using fallback", zap.String("key", key), zap.Error(err))
		count, resetAt, err = l.fallback.Incr(ctx, key, l.window)
	}
	if err != nil {
		l.logger.Error("rate limit store unavailable", zap.String("key", key), zap.Error(err))
		return Decision{Allowed: true, Count: 0, Limit: limit, Remaining: limit, ResetTime: l.now().Add(l.window)}
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	d := Decision{
		Allowed:   int(count) <= limit,
		Count:     int(count),
		Limit:     limit,
		Remaining: remaining,
		ResetTime: resetAt,
	}
	if !d.Allowed {
		obs.ObserveRateLimitRejection(string(op))
	}
	return d
}
