// Package session keeps short-lived per-user, per-branch sessions used to
// accumulate an audit trail and detect inactivity.
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"retailgate.org/internal/access"
	"retailgate.org/internal/ids"
)

const (
	// MaxLogEntries is the access log size that triggers truncation.
	MaxLogEntries = 100
	// RetainedLogEntries is how many of the newest entries survive truncation.
	RetainedLogEntries = 50

	// DefaultTimeout applies when the registry is built without a timeout.
	DefaultTimeout = 30 * time.Minute

	idPrefix = "sess"
)

var (
	ErrInvalidInput = errors.New("session: invalid input")
	ErrSessionLimit = errors.New("session: concurrent session limit reached")
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock in UTC.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })

// LogEntry records one operation performed within a session.
type LogEntry struct {
	Timestamp      time.Time           `json:"timestamp"`
	Operation      access.Operation    `json:"operation"`
	ResourceType   access.ResourceType `json:"resource_type"`
	TargetBranchID string              `json:"target_branch_id,omitempty"`
	Success        bool                `json:"success"`
}

// Session is a registry entry. Values returned to callers are copies.
type Session struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	BranchID     string     `json:"branch_id"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActivity time.Time  `json:"last_activity"`
	IsActive     bool       `json:"is_active"`
	AccessLog    []LogEntry `json:"access_log"`
}

func (s *Session) clone() Session {
	out := *s
	out.AccessLog = append([]LogEntry(nil), s.AccessLog...)
	return out
}

// Report is a read-only summary computed from a session on demand.
type Report struct {
	SessionID            string                      `json:"session_id"`
	UserID               string                      `json:"user_id"`
	BranchID             string                      `json:"branch_id"`
	Duration             time.Duration               `json:"duration"`
	TotalOperations      int                         `json:"total_operations"`
	OperationsByResource map[access.ResourceType]int `json:"operations_by_resource"`
	IsActive             bool                        `json:"is_active"`
	LastActivity         time.Time                   `json:"last_activity"`
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock injects the time source.
func WithClock(c Clock) Option {
	return func(r *Registry) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithTimeout sets the inactivity timeout. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMaxConcurrent caps live sessions per user. Zero disables the cap.
func WithMaxConcurrent(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxPerUser = n
		}
	}
}

// Registry owns the session map. All methods are safe for concurrent use.
type Registry struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	clock      Clock
	timeout    time.Duration
	maxPerUser int
}

// NewRegistry builds an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[string]*Session),
		clock:    SystemClock,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Timeout returns the configured inactivity timeout.
func (r *Registry) Timeout() time.Duration { return r.timeout }

// Clock returns the registry's time source.
func (r *Registry) Clock() Clock { return r.clock }

// CreateSession stores a new active session and returns its id. Expired
// sessions are swept afterwards.
func (r *Registry) CreateSession(userID, branchID string) (string, error) {
	userID = strings.TrimSpace(userID)
	branchID = strings.TrimSpace(branchID)
	if userID == "" || branchID == "" {
		return "", fmt.Errorf("%w: user_id and branch_id are required", ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	if r.maxPerUser > 0 && r.liveCountLocked(userID, now) >= r.maxPerUser {
		return "", fmt.Errorf("%w: user %s holds %d sessions", ErrSessionLimit, userID, r.maxPerUser)
	}

	id := ids.WithPrefix(idPrefix, now)
	r.sessions[id] = &Session{
		ID:           id,
		UserID:       userID,
		BranchID:     branchID,
		CreatedAt:    now,
		LastActivity: now,
		IsActive:     true,
	}
	r.sweepLocked(now)
	return id, nil
}

// LogAccess appends an entry to the session's access log. Unknown, inactive or
// timed-out sessions are ignored.
func (r *Registry) LogAccess(sessionID string, op access.Operation, rt access.ResourceType, targetBranchID string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok || !s.IsActive {
		return
	}
	now := r.clock.Now()
	if r.expired(s, now) {
		s.IsActive = false
		return
	}
	s.LastActivity = now
	s.AccessLog = append(s.AccessLog, LogEntry{
		Timestamp:      now,
		Operation:      op,
		ResourceType:   rt,
		TargetBranchID: targetBranchID,
		Success:        success,
	})
	if len(s.AccessLog) > MaxLogEntries {
		kept := make([]LogEntry, RetainedLogEntries)
		copy(kept, s.AccessLog[len(s.AccessLog)-RetainedLogEntries:])
		s.AccessLog = kept
	}
}

// ValidateSession reports whether the session exists and is still active. A
// session found past its timeout is marked inactive.
func (r *Registry) ValidateSession(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok || !s.IsActive {
		return false
	}
	if r.expired(s, r.clock.Now()) {
		s.IsActive = false
		return false
	}
	return true
}

// EndSession marks the session inactive and removes it. It reports whether the
// session existed.
func (r *Registry) EndSession(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	s.IsActive = false
	delete(r.sessions, sessionID)
	return true
}

// CleanupExpiredSessions removes every expired or inactive session and returns
// how many were removed.
func (r *Registry) CleanupExpiredSessions() int {
	return r.Tick(r.clock.Now())
}

// Tick runs one cleanup pass as of now.
func (r *Registry) Tick(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweepLocked(now)
}

// Session returns a copy of the session.
func (r *Registry) Session(sessionID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return s.clone(), true
}

// SessionReport summarizes the session; ok is false when it does not exist.
func (r *Registry) SessionReport(sessionID string) (Report, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return Report{}, false
	}
	byResource := make(map[access.ResourceType]int)
	for _, e := range s.AccessLog {
		byResource[e.ResourceType]++
	}
	return Report{
		SessionID:            s.ID,
		UserID:               s.UserID,
		BranchID:             s.BranchID,
		Duration:             r.clock.Now().Sub(s.CreatedAt),
		TotalOperations:      len(s.AccessLog),
		OperationsByResource: byResource,
		IsActive:             s.IsActive,
		LastActivity:         s.LastActivity,
	}, true
}

// Len returns the number of sessions held, active or not.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ActiveCount returns the number of sessions that are active and not yet
// timed out.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock.Now()
	n := 0
	for _, s := range r.sessions {
		if s.IsActive && !r.expired(s, now) {
			n++
		}
	}
	return n
}

// expired treats the timeout boundary itself as expired.
func (r *Registry) expired(s *Session, now time.Time) bool {
	return now.Sub(s.LastActivity) >= r.timeout
}

func (r *Registry) sweepLocked(now time.Time) int {
	removed := 0
	for id, s := range r.sessions {
		if !s.IsActive || r.expired(s, now) {
			s.IsActive = false
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

func (r *Registry) liveCountLocked(userID string, now time.Time) int {
	n := 0
	for _, s := range r.sessions {
		if s.UserID == userID && s.IsActive && !r.expired(s, now) {
			n++
		}
	}
	return n
}
