package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ══════════════════════════════════════════════════════════════════════════════
// FAKES
// ══════════════════════════════════════════════════════════════════════════════

type fakeJob struct {
	name string
	err  error
	runs atomic.Int64
}

func (j *fakeJob) Name() string        { return j.name }
func (j *fakeJob) Description() string { return "test job" }

func (j *fakeJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

func newTestScheduler() *Scheduler {
	return NewScheduler(SchedulerConfig{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULES
// ══════════════════════════════════════════════════════════════════════════════

func TestIntervalSchedule_Next(t *testing.T) {
	s := NewIntervalSchedule(30 * time.Minute)

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, base.Add(30*time.Minute), s.Next(base))
	assert.Equal(t, "@every 30m0s", s.String())
}

func TestDailySchedule_Next(t *testing.T) {
	jst, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	s := NewDailySchedule(7, 0, jst)

	t.Run("before today's fire time", func(t *testing.T) {
		now := time.Date(2026, 3, 10, 5, 30, 0, 0, jst)
		next := s.Next(now)
		assert.Equal(t, time.Date(2026, 3, 10, 7, 0, 0, 0, jst), next)
	})

	t.Run("after today's fire time rolls to tomorrow", func(t *testing.T) {
		now := time.Date(2026, 3, 10, 7, 0, 0, 0, jst)
		next := s.Next(now)
		assert.Equal(t, time.Date(2026, 3, 11, 7, 0, 0, 0, jst), next)
	})

	t.Run("input in another zone is converted", func(t *testing.T) {
		// 2026-03-10 01:00 UTC = 10:00 JST, so the next 07:00 JST is tomorrow.
		now := time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)
		next := s.Next(now)
		assert.Equal(t, time.Date(2026, 3, 11, 7, 0, 0, 0, jst), next)
	})

	t.Run("nil location defaults to UTC", func(t *testing.T) {
		s := NewDailySchedule(7, 0, nil)
		assert.Equal(t, time.UTC, s.Location)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

func TestScheduler_Register(t *testing.T) {
	s := newTestScheduler()

	t.Run("nil job", func(t *testing.T) {
		err := s.Register(nil, NewIntervalSchedule(time.Minute))
		assert.ErrorIs(t, err, ErrNilJob)
	})

	t.Run("nil schedule", func(t *testing.T) {
		err := s.Register(&fakeJob{name: "a"}, nil)
		assert.ErrorIs(t, err, ErrNilSchedule)
	})

	t.Run("duplicate name", func(t *testing.T) {
		require.NoError(t, s.Register(&fakeJob{name: "dup"}, NewIntervalSchedule(time.Minute)))
		err := s.Register(&fakeJob{name: "dup"}, NewIntervalSchedule(time.Minute))
		assert.ErrorIs(t, err, ErrJobAlreadyExists)
	})
}

func TestScheduler_ListJobs(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.Register(&fakeJob{name: "streak_risk"}, NewIntervalSchedule(time.Hour)))

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "streak_risk", jobs[0].Name)
	assert.Equal(t, "@every 1h0m0s", jobs[0].Schedule)
	assert.False(t, jobs[0].NextRun.IsZero())
	assert.True(t, jobs[0].LastRun.IsZero())
}

// ══════════════════════════════════════════════════════════════════════════════
// EXECUTION
// ══════════════════════════════════════════════════════════════════════════════

func TestScheduler_RunNow(t *testing.T) {
	s := newTestScheduler()

	job := &fakeJob{name: "digest"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	t.Run("success", func(t *testing.T) {
		result, err := s.RunNow(context.Background(), "digest")
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, int64(1), job.runs.Load())
	})

	t.Run("failure is recorded", func(t *testing.T) {
		failing := &fakeJob{name: "broken", err: errors.New("boom")}
		require.NoError(t, s.Register(failing, NewIntervalSchedule(time.Hour)))

		result, err := s.RunNow(context.Background(), "broken")
		require.Error(t, err)
		assert.False(t, result.Success)
		assert.EqualError(t, result.Error, "boom")
	})

	t.Run("unknown job", func(t *testing.T) {
		_, err := s.RunNow(context.Background(), "nope")
		assert.ErrorIs(t, err, ErrJobNotFound)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

func TestScheduler_StartStop(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.Register(&fakeJob{name: "noop"}, NewIntervalSchedule(time.Hour)))

	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
}
