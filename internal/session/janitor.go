package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"retailgate.org/internal/obs"
)

// DefaultCleanupInterval is how often the janitor sweeps expired sessions.
const DefaultCleanupInterval = 5 * time.Minute

// Janitor runs periodic expiry sweeps over a Registry. The host owns its
// lifecycle through Start and Stop.
type Janitor struct {
	registry *Registry
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	running bool
}

// NewJanitor creates a janitor for registry. A non-positive interval uses
// DefaultCleanupInterval.
func NewJanitor(registry *Registry, interval time.Duration, logger *zap.Logger) *Janitor {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	if logger == nil {
		logger = obs.Logger()
	}
	return &Janitor{
		registry: registry,
		interval: interval,
		logger:   logger,
		cron:     cron.New(),
	}
}

// Start schedules the sweep. Calling Start twice is a no-op.
func (j *Janitor) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return nil
	}
	entryID, err := j.cron.AddFunc(fmt.Sprintf("@every %s", j.interval), func() {
		j.RunOnce(j.registry.Clock().Now())
	})
	if err != nil {
		return fmt.Errorf("schedule session cleanup: %w", err)
	}
	j.entryID = entryID
	j.cron.Start()
	j.running = true
	j.logger.Info("session janitor started", zap.Duration("interval", j.interval))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.running {
		return
	}
	j.cron.Remove(j.entryID)
	<-j.cron.Stop().Done()
	j.running = false
	j.logger.Info("session janitor stopped")
}

// RunOnce performs a single sweep as of now and returns the number of removed sessions.
func (j *Janitor) RunOnce(now time.Time) int {
	removed := j.registry.Tick(now)
	obs.AddExpiredSessions(removed)
	obs.SetActiveSessions(j.registry.ActiveCount())
	if removed > 0 {
		j.logger.Info("expired sessions removed",
			zap.Int("removed", removed),
			zap.Int("remaining", j.registry.Len()),
		)
	}
	return removed
}
