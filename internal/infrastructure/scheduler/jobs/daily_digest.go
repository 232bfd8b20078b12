package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/studyquest-hub/studyquest-backend/internal/domain/progression"
	"github.com/studyquest-hub/studyquest-backend/internal/domain/schedule"
	"github.com/studyquest-hub/studyquest-backend/internal/domain/shared"
	"github.com/studyquest-hub/studyquest-backend/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DAILY DIGEST JOB
// ══════════════════════════════════════════════════════════════════════════════

// DailyDigestJob builds the morning plan summary for every user with tasks
// scheduled today and emits a digest event per user. Runs once a day.
type DailyDigestJob struct {
	stateRepo      progression.Repository
	taskRepo       schedule.Repository
	eventPublisher shared.EventPublisher
	logger         *slog.Logger

	config DailyDigestConfig

	lastRunStats atomic.Value // *DailyDigestStats
}

// DailyDigestConfig contains configuration for the daily digest job.
type DailyDigestConfig struct {
	// Timeout is the maximum duration for the job.
	Timeout time.Duration
}

// DefaultDailyDigestConfig returns sensible defaults.
func DefaultDailyDigestConfig() DailyDigestConfig {
	return DailyDigestConfig{
		Timeout: 5 * time.Minute,
	}
}

// DailyDigestStats contains statistics from a digest run.
type DailyDigestStats struct {
	StartedAt    time.Time
	Duration     time.Duration
	UsersChecked int
	DigestsSent  int
	EmptyPlans   int
	Errors       int
}

// NewDailyDigestJob creates a new daily digest job.
func NewDailyDigestJob(
	stateRepo progression.Repository,
	taskRepo schedule.Repository,
	eventPublisher shared.EventPublisher,
	logger *slog.Logger,
	config DailyDigestConfig,
) *DailyDigestJob {
	if logger == nil {
		logger = slog.Default()
	}

	return &DailyDigestJob{
		stateRepo:      stateRepo,
		taskRepo:       taskRepo,
		eventPublisher: eventPublisher,
		logger:         logger,
		config:         config,
	}
}

// Name returns the job name.
func (j *DailyDigestJob) Name() string {
	return "daily_digest"
}

// Description returns a human-readable description.
func (j *DailyDigestJob) Description() string {
	return "Sends each user a morning summary of today's study plan"
}

// Run executes the digest job.
func (j *DailyDigestJob) Run(ctx context.Context) error {
	now := timeutil.Now()
	stats := &DailyDigestStats{StartedAt: now}

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

		tasks, err := j.taskRepo.GetByUserAndDay(ctx, st.UserID, now)
		if err != nil {
			stats.Errors++
			j.logger.Warn("failed to load daily plan",
				"user_id", st.UserID,
				"error", err,
			)
			continue
		}

		pending := 0
		totalMinutes := 0
		for _, t := range tasks {
			if t.Completed {
				continue
			}
			pending++
			totalMinutes += t.EstimatedMinutes
		}

		if pending == 0 {
			stats.EmptyPlans++
			continue
		}

		event := shared.NewDailyDigestReadyEvent(st.UserID, pending, totalMinutes)
		if err := j.eventPublisher.Publish(event); err != nil {
			stats.Errors++
			j.logger.Warn("failed to publish digest event",
				"user_id", st.UserID,
				"error", err,
			)
			continue
		}

		stats.DigestsSent++
	}

	stats.Duration = time.Since(now)
	j.lastRunStats.Store(stats)

	j.logger.Info("daily digest completed",
		"users_checked", stats.UsersChecked,
		"digests_sent", stats.DigestsSent,
		"empty_plans", stats.EmptyPlans,
		"errors", stats.Errors,
	)

	return nil
}

// LastRunStats returns statistics from the last digest run.
func (j *DailyDigestJob) LastRunStats() *DailyDigestStats {
	stats := j.lastRunStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*DailyDigestStats)
}
