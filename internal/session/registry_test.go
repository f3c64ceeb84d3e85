package session

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailgate.org/internal/access"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newRegistry(t *testing.T, clock *fakeClock, opts ...Option) *Registry {
	t.Helper()
	opts = append([]Option{WithClock(clock), WithTimeout(30 * time.Minute)}, opts...)
	return NewRegistry(opts...)
}

func TestCreateSession(t *testing.T) {
	clock := newFakeClock()
	reg := newRegistry(t, clock)

	id, err := reg.CreateSession("user-1", "br-1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "sess_"))

	s, ok := reg.Session(id)
	require.True(t, ok)
	assert.True(t, s.IsActive)
	assert.Equal(t, "user-1", s.UserID)
	assert.Equal(t, "br-1", s.BranchID)
	assert.Equal(t, clock.Now(), s.CreatedAt)
	assert.Empty(t, s.AccessLog)

	other, err := reg.CreateSession("user-1", "br-1")
	require.NoError(t, err)
	assert.NotEqual(t, id, other)

	_, err = reg.CreateSession("", "br-1")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestValidateSessionTimeoutRoundTrip(t *testing.T) {
	clock := newFakeClock()
	reg := newRegistry(t, clock)

	id, err := reg.CreateSession("user-1", "br-1")
	require.NoError(t, err)
	assert.True(t, reg.ValidateSession(id))

	clock.Advance(29 * time.Minute)
	assert.True(t, reg.ValidateSession(id))

	clock.Advance(2 * time.Minute)
	assert.False(t, reg.ValidateSession(id))

	s, ok := reg.Session(id)
	require.True(t, ok)
	assert.False(t, s.IsActive)

	clock.Advance(-10 * time.Minute)
	assert.False(t, reg.ValidateSession(id), "inactive sessions are never resurrected")
}

func TestValidateSessionBoundaryIsExpired(t *testing.T) {
	clock := newFakeClock()
	reg := newRegistry(t, clock)
	id, err := reg.CreateSession("user-1", "br-1")
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)
	assert.False(t, reg.ValidateSession(id))
}

func TestValidateSessionUnknown(t *testing.T) {
	reg := newRegistry(t, newFakeClock())
	assert.False(t, reg.ValidateSession("sess_missing"))
}

func TestLogAccessRefreshesActivity(t *testing.T) {
	clock := newFakeClock()
	reg := newRegistry(t, clock)
	id, err := reg.CreateSession("user-1", "br-1")
	require.NoError(t, err)

	clock.Advance(20 * time.Minute)
	reg.LogAccess(id, access.OpView, access.ResourceStock, "br-2", true)
	clock.Advance(20 * time.Minute)
	assert.True(t, reg.ValidateSession(id), "activity must push the timeout forward")

	s, _ := reg.Session(id)
	require.Len(t, s.AccessLog, 1)
	entry := s.AccessLog[0]
	assert.Equal(t, access.OpView, entry.Operation)
	assert.Equal(t, access.ResourceStock, entry.ResourceType)
	assert.Equal(t, "br-2", entry.TargetBranchID)
	assert.True(t, entry.Success)
}

func TestLogAccessIgnoresUnknownAndExpired(t *testing.T) {
	clock := newFakeClock()
	reg := newRegistry(t, clock)

	assert.NotPanics(t, func() {
		reg.LogAccess("sess_missing", access.OpView, access.ResourceSales, "", true)
	})

	id, err := reg.CreateSession("user-1", "br-1")
	require.NoError(t, err)
	clock.Advance(time.Hour)
	reg.LogAccess(id, access.OpView, access.ResourceSales, "", true)

	s, ok := reg.Session(id)
	require.True(t, ok)
	assert.Empty(t, s.AccessLog)
	assert.False(t, s.IsActive)
	assert.False(t, reg.ValidateSession(id))
}

func TestLogAccessIsBounded(t *testing.T) {
	clock := newFakeClock()
	reg := newRegistry(t, clock)
	id, err := reg.CreateSession("user-1", "br-1")
	require.NoError(t, err)

	for i := 0; i < 101; i++ {
		reg.LogAccess(id, access.OpView, access.ResourceSales, fmt.Sprintf("br-%d", i), true)
	}
	s, _ := reg.Session(id)
	require.Len(t, s.AccessLog, RetainedLogEntries)
	assert.Equal(t, "br-51", s.AccessLog[0].TargetBranchID)
	assert.Equal(t, "br-100", s.AccessLog[len(s.AccessLog)-1].TargetBranchID)

	for i := 0; i < 500; i++ {
		reg.LogAccess(id, access.OpView, access.ResourceSales, "", true)
		s, _ = reg.Session(id)
		assert.LessOrEqual(t, len(s.AccessLog), MaxLogEntries)
	}
}

func TestCleanupExpiredSessions(t *testing.T) {
	clock := newFakeClock()
	reg := newRegistry(t, clock)

	old, err := reg.CreateSession("user-1", "br-1")
	require.NoError(t, err)
	clock.Advance(20 * time.Minute)
	fresh, err := reg.CreateSession("user-2", "br-1")
	require.NoError(t, err)

	clock.Advance(15 * time.Minute)
	assert.Equal(t, 1, reg.CleanupExpiredSessions())
	_, ok := reg.Session(old)
	assert.False(t, ok)
	_, ok = reg.Session(fresh)
	assert.True(t, ok)

	assert.Equal(t, 1, reg.Tick(clock.Now().Add(time.Hour)))
	assert.Equal(t, 0, reg.Len())
}

func TestCreateSessionSweepsExpired(t *testing.T) {
	clock := newFakeClock()
	reg := newRegistry(t, clock)
	stale, err := reg.CreateSession("user-1", "br-1")
	require.NoError(t, err)

	clock.Advance(31 * time.Minute)
	_, err = reg.CreateSession("user-2", "br-1")
	require.NoError(t, err)

	_, ok := reg.Session(stale)
	assert.False(t, ok)
	assert.Equal(t, 1, reg.Len())
}

func TestEndSession(t *testing.T) {
	reg := newRegistry(t, newFakeClock())
	id, err := reg.CreateSession("user-1", "br-1")
	require.NoError(t, err)

	assert.True(t, reg.EndSession(id))
	assert.False(t, reg.ValidateSession(id))
	assert.False(t, reg.EndSession(id))
	_, ok := reg.SessionReport(id)
	assert.False(t, ok)
}

func TestMaxConcurrentSessions(t *testing.T) {
	clock := newFakeClock()
	reg := newRegistry(t, clock, WithMaxConcurrent(2))

	_, err := reg.CreateSession("user-1", "br-1")
	require.NoError(t, err)
	second, err := reg.CreateSession("user-1", "br-2")
	require.NoError(t, err)

	_, err = reg.CreateSession("user-1", "br-3")
	assert.ErrorIs(t, err, ErrSessionLimit)

	_, err = reg.CreateSession("user-2", "br-1")
	assert.NoError(t, err, "limit is per user")

	reg.EndSession(second)
	_, err = reg.CreateSession("user-1", "br-3")
	assert.NoError(t, err)

	clock.Advance(time.Hour)
	_, err = reg.CreateSession("user-1", "br-1")
	assert.NoError(t, err, "expired sessions do not count")
}

func TestSessionReport(t *testing.T) {
	clock := newFakeClock()
	reg := newRegistry(t, clock)
	id, err := reg.CreateSession("user-1", "br-1")
	require.NoError(t, err)

	reg.LogAccess(id, access.OpView, access.ResourceStock, "br-2", true)
	reg.LogAccess(id, access.OpView, access.ResourceStock, "br-3", false)
	clock.Advance(5 * time.Minute)
	reg.LogAccess(id, access.OpReport, access.ResourceReports, "br-2", true)
	clock.Advance(time.Minute)

	report, ok := reg.SessionReport(id)
	require.True(t, ok)
	assert.Equal(t, 6*time.Minute, report.Duration)
	assert.Equal(t, 3, report.TotalOperations)
	assert.Equal(t, map[access.ResourceType]int{access.ResourceStock: 2, access.ResourceReports: 1}, report.OperationsByResource)
	assert.True(t, report.IsActive)
	assert.Equal(t, clock.Now().Add(-time.Minute), report.LastActivity)

	_, ok = reg.SessionReport("sess_missing")
	assert.False(t, ok)
}

func TestSessionCopiesAreIsolated(t *testing.T) {
	reg := newRegistry(t, newFakeClock())
	id, err := reg.CreateSession("user-1", "br-1")
	require.NoError(t, err)
	reg.LogAccess(id, access.OpView, access.ResourceStock, "", true)

	s, _ := reg.Session(id)
	s.AccessLog[0].Operation = access.OpDelete
	s.IsActive = false

	again, _ := reg.Session(id)
	assert.Equal(t, access.OpView, again.AccessLog[0].Operation)
	assert.True(t, again.IsActive)
}

func TestRegistryConcurrentLogging(t *testing.T) {
	reg := newRegistry(t, newFakeClock())
	id, err := reg.CreateSession("user-1", "br-1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 40; j++ {
				reg.LogAccess(id, access.OpView, access.ResourceSales, "", true)
				reg.ValidateSession(id)
			}
		}()
	}
	wg.Wait()

	s, _ := reg.Session(id)
	assert.LessOrEqual(t, len(s.AccessLog), MaxLogEntries)
	assert.GreaterOrEqual(t, len(s.AccessLog), RetainedLogEntries)
}

func TestActiveCountExcludesTimedOut(t *testing.T) {
	clock := newFakeClock()
	reg := newRegistry(t, clock)
	_, err := reg.CreateSession("user-1", "br-1")
	require.NoError(t, err)
	clock.Advance(20 * time.Minute)
	_, err = reg.CreateSession("user-2", "br-1")
	require.NoError(t, err)
	assert.Equal(t, 2, reg.ActiveCount())

	clock.Advance(15 * time.Minute)
	assert.Equal(t, 1, reg.ActiveCount())
	assert.Equal(t, 2, reg.Len())
}
