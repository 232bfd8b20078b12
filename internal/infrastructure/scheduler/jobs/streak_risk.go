// Package jobs contains implementations of scheduled jobs for StudyQuest.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/studyquest-hub/studyquest-backend/internal/domain/progression"
	"github.com/studyquest-hub/studyquest-backend/internal/domain/shared"
	"github.com/studyquest-hub/studyquest-backend/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK RISK JOB
// ══════════════════════════════════════════════════════════════════════════════

// StreakRiskJob scans all user states and emits a warning event for every
// user whose streak is about to expire. The job runs hourly; each user is
// warned at most once per calendar day.
type StreakRiskJob struct {
	stateRepo      progression.Repository
	engine         *progression.Engine
	eventPublisher shared.EventPublisher
	logger         *slog.Logger

	config StreakRiskConfig

	mu         sync.Mutex
	warnedDays map[string]time.Time

	lastRunStats atomic.Value // *StreakRiskStats
}

// StreakRiskConfig contains configuration for the streak risk job.
type StreakRiskConfig struct {
	// Timeout is the maximum duration for the job.
	Timeout time.Duration
}

// DefaultStreakRiskConfig returns sensible defaults.
func DefaultStreakRiskConfig() StreakRiskConfig {
	return StreakRiskConfig{
		Timeout: 2 * time.Minute,
	}
}

// StreakRiskStats contains statistics from a scan.
type StreakRiskStats struct {
	StartedAt     time.Time
	Duration      time.Duration
	UsersChecked  int
	UsersAtRisk   int
	WarningsSent  int
	SkippedWarned int
}

// NewStreakRiskJob creates a new streak risk job.
func NewStreakRiskJob(
	stateRepo progression.Repository,
	engine *progression.Engine,
	eventPublisher shared.EventPublisher,
	logger *slog.Logger,
	config StreakRiskConfig,
) *StreakRiskJob {
	if logger == nil {
		logger = slog.Default()
	}

	return &StreakRiskJob{
		stateRepo:      stateRepo,
		engine:         engine,
		eventPublisher: eventPublisher,
		logger:         logger,
		config:         config,
		warnedDays:     make(map[string]time.Time),
	}
}

// Name returns the job name.
func (j *StreakRiskJob) Name() string {
	return "streak_risk"
}

// Description returns a human-readable description.
func (j *StreakRiskJob) Description() string {
	return "Warns users whose study streak is about to expire"
}

// Run executes the scan.
func (j *StreakRiskJob) Run(ctx context.Context) error {
	now := timeutil.Now()
	stats := &StreakRiskStats{StartedAt: now}

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	states, err := j.stateRepo.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load user states: %w", err)
	}
	stats.UsersChecked = len(states)

	for _, st := range states {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		status := j.engine.CheckStreakStatus(st, now)
		if !status.IsAtRisk || status.HoursLeft <= 0 {
			continue
		}
		stats.UsersAtRisk++

		if j.alreadyWarnedToday(st.UserID, now) {
			stats.SkippedWarned++
			continue
		}

		event := shared.NewStreakAtRiskEvent(st.UserID, st.CurrentStreak, status.HoursLeft)
		if err := j.eventPublisher.Publish(event); err != nil {
			j.logger.Warn("failed to publish streak risk event",
				"user_id", st.UserID,
				"error", err,
			)
			continue
		}

		j.markWarned(st.UserID, now)
		stats.WarningsSent++
	}

	stats.Duration = time.Since(now)
	j.lastRunStats.Store(stats)

	j.logger.Info("streak risk scan completed",
		"users_checked", stats.UsersChecked,
		"users_at_risk", stats.UsersAtRisk,
		"warnings_sent", stats.WarningsSent,
	)

	return nil
}

// alreadyWarnedToday reports whether the user was warned on now's calendar day.
func (j *StreakRiskJob) alreadyWarnedToday(userID string, now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	warned, ok := j.warnedDays[userID]
	return ok && timeutil.SameDay(warned, now)
}

func (j *StreakRiskJob) markWarned(userID string, now time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()

	// Drop stale entries so the map doesn't grow unbounded
	for id, warned := range j.warnedDays {
		if !timeutil.SameDay(warned, now) {
			delete(j.warnedDays, id)
		}
	}
	j.warnedDays[userID] = now
}

// LastRunStats returns statistics from the last scan.
func (j *StreakRiskJob) LastRunStats() *StreakRiskStats {
	stats := j.lastRunStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*StreakRiskStats)
}
