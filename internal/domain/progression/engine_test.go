package progression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyquest-hub/studyquest-backend/internal/domain/schedule"
	"github.com/studyquest-hub/studyquest-backend/internal/domain/shared"
)

func at(y, m, d, h int) time.Time {
	return time.Date(y, time.Month(m), d, h, 0, 0, 0, time.UTC)
}

// ══════════════════════════════════════════════════════════════════════════════
// EXPERIENCE
// ══════════════════════════════════════════════════════════════════════════════

func TestCalculateExp(t *testing.T) {
	tests := []struct {
		name string
		task schedule.Task
		want int
	}{
		{
			name: "base study task",
			task: schedule.Task{Priority: schedule.PriorityLow, Type: schedule.TypeStudy, EstimatedMinutes: 30},
			want: 10,
		},
		{
			name: "medium priority",
			task: schedule.Task{Priority: schedule.PriorityMedium, Type: schedule.TypeStudy, EstimatedMinutes: 30},
			want: 15,
		},
		{
			name: "high priority",
			task: schedule.Task{Priority: schedule.PriorityHigh, Type: schedule.TypeStudy, EstimatedMinutes: 30},
			want: 20,
		},
		{
			name: "review bonus",
			task: schedule.Task{Priority: schedule.PriorityLow, Type: schedule.TypeReview, EstimatedMinutes: 30},
			want: 15,
		},
		{
			name: "final review bonus",
			task: schedule.Task{Priority: schedule.PriorityLow, Type: schedule.TypeFinalReview, EstimatedMinutes: 30},
			want: 25,
		},
		{
			name: "long task bonus",
			task: schedule.Task{Priority: schedule.PriorityLow, Type: schedule.TypeStudy, EstimatedMinutes: 90},
			want: 20,
		},
		{
			// 10 базовых + 10 high + 5 review + 10 за длительность.
			name: "long high priority review",
			task: schedule.Task{Priority: schedule.PriorityHigh, Type: schedule.TypeReview, EstimatedMinutes: 75},
			want: 35,
		},
		{
			name: "exactly sixty minutes is not long",
			task: schedule.Task{Priority: schedule.PriorityLow, Type: schedule.TypeStudy, EstimatedMinutes: 60},
			want: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CalculateExp(&tt.task))
		})
	}
}

func TestLevelForExp(t *testing.T) {
	assert.Equal(t, 1, LevelForExp(0))
	assert.Equal(t, 1, LevelForExp(99))
	assert.Equal(t, 2, LevelForExp(100))
	assert.Equal(t, 3, LevelForExp(250))
	assert.Equal(t, 1, LevelForExp(-5))
}

func TestAddExperience_LevelUp(t *testing.T) {
	e := NewEngine(BadgeModeHighest)
	now := at(2026, 6, 1, 10)

	st := NewUserState("user-1", now)
	st.Exp = 95

	leveledUp, oldLevel, newLevel := e.AddExperience(st, 10, now)
	assert.True(t, leveledUp)
	assert.Equal(t, 1, oldLevel)
	assert.Equal(t, 2, newLevel)
	assert.Equal(t, 105, st.Exp)
	assert.Equal(t, 2, st.Level)
}

// Уровень не понижается, даже если пересчёт по опыту дал бы меньше.
func TestAddExperience_LevelIsMonotonic(t *testing.T) {
	e := NewEngine(BadgeModeHighest)
	now := at(2026, 6, 1, 10)

	st := NewUserState("user-1", now)
	st.Level = 5
	st.Exp = 120

	leveledUp, _, newLevel := e.AddExperience(st, 10, now)
	assert.False(t, leveledUp)
	assert.Equal(t, 5, newLevel)
	assert.Equal(t, 5, st.Level)
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAK STATE MACHINE
// ══════════════════════════════════════════════════════════════════════════════

func TestUpdateStreak_FirstEver(t *testing.T) {
	e := NewEngine(BadgeModeHighest)
	now := at(2026, 6, 1, 19)

	st := NewUserState("user-1", now)
	res := e.UpdateStreak(st, 1, now)

	assert.True(t, res.Updated)
	assert.Equal(t, 1, res.NewStreak)
	assert.True(t, res.IsNewRecord)
	assert.False(t, res.Broken)
	assert.Equal(t, 1, st.CurrentStreak)
	assert.Equal(t, 1, st.MaxStreak)
	assert.Equal(t, at(2026, 6, 1, 0), st.LastStudyDate)
}

func TestUpdateStreak_SameDayIsNoOp(t *testing.T) {
	e := NewEngine(BadgeModeHighest)
	now := at(2026, 6, 1, 19)

	st := NewUserState("user-1", now)
	e.UpdateStreak(st, 1, now)

	res := e.UpdateStreak(st, 2, now.Add(2*time.Hour))
	assert.False(t, res.Updated)
	assert.Equal(t, 1, res.NewStreak)
	assert.Equal(t, 1, st.CurrentStreak)
}

func TestUpdateStreak_Consecutive(t *testing.T) {
	e := NewEngine(BadgeModeHighest)

	st := NewUserState("user-1", at(2026, 6, 1, 9))
	st.CurrentStreak = 4
	st.MaxStreak = 4
	st.LastStudyDate = at(2026, 5, 31, 0)

	res := e.UpdateStreak(st, 1, at(2026, 6, 1, 9))
	assert.True(t, res.Updated)
	assert.Equal(t, 5, res.NewStreak)
	assert.True(t, res.IsNewRecord)
	assert.False(t, res.Broken)
}

func TestUpdateStreak_BrokenAfterGap(t *testing.T) {
	e := NewEngine(BadgeModeHighest)

	st := NewUserState("user-1", at(2026, 6, 1, 9))
	st.CurrentStreak = 10
	st.MaxStreak = 10
	st.LastStudyDate = at(2026, 5, 28, 0)

	res := e.UpdateStreak(st, 1, at(2026, 6, 1, 9))
	assert.True(t, res.Updated)
	assert.True(t, res.Broken)
	assert.Equal(t, 3, res.DaysMissed)
	assert.Equal(t, 1, res.NewStreak)
	assert.False(t, res.IsNewRecord)

	// Максимум не уменьшается при сбросе.
	assert.Equal(t, 10, st.MaxStreak)
	assert.Equal(t, 1, st.CurrentStreak)
}

// Предохранитель: без выполнений за сегодня серия не двигается.
func TestUpdateStreak_RequiresCompletionToday(t *testing.T) {
	e := NewEngine(BadgeModeHighest)

	st := NewUserState("user-1", at(2026, 6, 1, 9))
	st.CurrentStreak = 4
	st.LastStudyDate = at(2026, 5, 31, 0)

	res := e.UpdateStreak(st, 0, at(2026, 6, 1, 9))
	assert.False(t, res.Updated)
	assert.Equal(t, 4, st.CurrentStreak)
	assert.Equal(t, at(2026, 5, 31, 0), st.LastStudyDate)
}

// Рекорд фиксируется только при превышении максимума, не при равенстве.
func TestUpdateStreak_RecordOnlyAboveMax(t *testing.T) {
	e := NewEngine(BadgeModeHighest)

	st := NewUserState("user-1", at(2026, 6, 1, 9))
	st.CurrentStreak = 4
	st.MaxStreak = 5
	st.LastStudyDate = at(2026, 5, 31, 0)

	res := e.UpdateStreak(st, 1, at(2026, 6, 1, 9))
	assert.Equal(t, 5, res.NewStreak)
	assert.False(t, res.IsNewRecord)

	st.LastStudyDate = at(2026, 6, 1, 0)
	res = e.UpdateStreak(st, 1, at(2026, 6, 2, 9))
	assert.Equal(t, 6, res.NewStreak)
	assert.True(t, res.IsNewRecord)
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGES
// ══════════════════════════════════════════════════════════════════════════════

// Серия 6 -> 7: бронза уже есть, выдаётся только серебро.
func TestBadges_SilverAtSeven(t *testing.T) {
	e := NewEngine(BadgeModeHighest)
	now := at(2026, 6, 8, 20)

	st := NewUserState("user-1", now)
	st.CurrentStreak = 6
	st.MaxStreak = 6
	st.LastStudyDate = at(2026, 6, 7, 0)
	st.addBadge(BadgeBronzeStreak, at(2026, 6, 4, 20))

	res := e.UpdateStreak(st, 1, now)
	assert.Equal(t, 7, res.NewStreak)
	assert.True(t, res.IsNewRecord)
	assert.Equal(t, []Badge{BadgeSilverStreak}, res.NewBadges)
	assert.True(t, st.HasBadge(BadgeSilverStreak))
}

// Значок one-shot: повторное пересечение порога после сброса не выдаёт его снова.
func TestBadges_NeverReAwarded(t *testing.T) {
	e := NewEngine(BadgeModeHighest)

	st := NewUserState("user-1", at(2026, 6, 1, 9))
	st.CurrentStreak = 2
	st.MaxStreak = 10
	st.LastStudyDate = at(2026, 5, 31, 0)
	st.addBadge(BadgeBronzeStreak, at(2026, 5, 20, 9))

	res := e.UpdateStreak(st, 1, at(2026, 6, 1, 9))
	assert.Equal(t, 3, res.NewStreak)
	assert.Empty(t, res.NewBadges)
}

// Режим highest: скачок 2 -> 7 пересекает бронзу и серебро, выдаётся
// только серебро, бронза пропускается навсегда.
func TestBadges_HighestModeSkipsLowerThresholds(t *testing.T) {
	e := NewEngine(BadgeModeHighest)

	st := NewUserState("user-1", at(2026, 6, 1, 9))
	st.CurrentStreak = 6
	st.MaxStreak = 6
	st.LastStudyDate = at(2026, 5, 31, 0)

	res := e.UpdateStreak(st, 1, at(2026, 6, 1, 9))
	require.Equal(t, 7, res.NewStreak)
	assert.Equal(t, []Badge{BadgeSilverStreak}, res.NewBadges)
	assert.False(t, st.HasBadge(BadgeBronzeStreak))

	// На следующий день бронза всё ещё пересечена, но в режиме highest
	// выдаётся только старший из вновь пересечённых - его нет.
	st.LastStudyDate = at(2026, 6, 1, 0)
	res = e.UpdateStreak(st, 1, at(2026, 6, 2, 9))
	assert.Equal(t, 8, res.NewStreak)
	assert.Empty(t, res.NewBadges)
}

// Режим all: тот же скачок выдаёт оба значка.
func TestBadges_AllModeAwardsEveryCrossed(t *testing.T) {
	e := NewEngine(BadgeModeAll)

	st := NewUserState("user-1", at(2026, 6, 1, 9))
	st.CurrentStreak = 6
	st.MaxStreak = 6
	st.LastStudyDate = at(2026, 5, 31, 0)

	res := e.UpdateStreak(st, 1, at(2026, 6, 1, 9))
	require.Equal(t, 7, res.NewStreak)
	assert.Equal(t, []Badge{BadgeBronzeStreak, BadgeSilverStreak}, res.NewBadges)
	assert.True(t, st.HasBadge(BadgeBronzeStreak))
	assert.True(t, st.HasBadge(BadgeSilverStreak))
}

func TestNewEngine_InvalidModeFallsBack(t *testing.T) {
	e := NewEngine(BadgeMode("whatever"))
	assert.Equal(t, BadgeModeHighest, e.badgeMode)
}

// ══════════════════════════════════════════════════════════════════════════════
// FULL COMPLETION TRANSITION
// ══════════════════════════════════════════════════════════════════════════════

func TestCompleteTask(t *testing.T) {
	e := NewEngine(BadgeModeHighest)
	now := at(2026, 6, 1, 19)

	st := NewUserState("user-1", now)
	st.Exp = 95
	st.CurrentStreak = 2
	st.MaxStreak = 2
	st.LastStudyDate = at(2026, 5, 31, 0)

	task := &schedule.Task{
		ID:               "task-1",
		Priority:         schedule.PriorityHigh,
		Type:             schedule.TypeStudy,
		EstimatedMinutes: 40,
	}

	res := e.CompleteTask(st, task, 1, now)

	assert.Equal(t, 20, res.ExpGained)
	assert.True(t, res.LeveledUp)
	assert.Equal(t, 1, res.OldLevel)
	assert.Equal(t, 2, res.NewLevel)

	assert.True(t, res.Streak.Updated)
	assert.Equal(t, 3, res.Streak.NewStreak)
	assert.Equal(t, []Badge{BadgeBronzeStreak}, res.Streak.NewBadges)

	assert.Equal(t, 115, res.State.Exp)
	assert.Equal(t, 1, res.State.TotalTasksCompleted)

	// Исходное состояние не тронуто.
	assert.Equal(t, 95, st.Exp)
	assert.Equal(t, 2, st.CurrentStreak)
	assert.Equal(t, 0, st.TotalTasksCompleted)
	assert.False(t, st.HasBadge(BadgeBronzeStreak))
}

// Нулевой счётчик выполнений из хранилища: опыт начисляется, серия стоит.
func TestCompleteTask_ZeroCompletionsLeavesStreak(t *testing.T) {
	e := NewEngine(BadgeModeHighest)
	now := at(2026, 6, 1, 19)

	st := NewUserState("user-1", now)
	st.CurrentStreak = 2
	st.MaxStreak = 2
	st.LastStudyDate = at(2026, 5, 31, 0)

	task := &schedule.Task{
		ID:               "task-1",
		Priority:         schedule.PriorityLow,
		Type:             schedule.TypeStudy,
		EstimatedMinutes: 20,
	}

	res := e.CompleteTask(st, task, 0, now)

	assert.Equal(t, 10, res.ExpGained)
	assert.False(t, res.Streak.Updated)
	assert.Equal(t, 2, res.State.CurrentStreak)
	assert.Equal(t, at(2026, 5, 31, 0), res.State.LastStudyDate)
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAK PROTECTION
// ══════════════════════════════════════════════════════════════════════════════

func TestUseStreakProtection(t *testing.T) {
	e := NewEngine(BadgeModeHighest)
	now := at(2026, 6, 1, 22)

	st := NewUserState("user-1", now)
	st.CurrentStreak = 5
	st.MaxStreak = 5
	st.StreakProtection = 1
	st.LastStudyDate = at(2026, 5, 31, 0)

	require.NoError(t, e.UseStreakProtection(st, now))
	assert.Equal(t, 0, st.StreakProtection)
	assert.Equal(t, at(2026, 6, 1, 0), st.LastStudyDate)
	assert.Equal(t, 5, st.CurrentStreak)

	// Выполнение на следующий день продолжает серию как ни в чём не бывало.
	res := e.UpdateStreak(st, 1, at(2026, 6, 2, 9))
	assert.True(t, res.Updated)
	assert.Equal(t, 6, res.NewStreak)
	assert.False(t, res.Broken)
}

func TestUseStreakProtection_NoTokens(t *testing.T) {
	e := NewEngine(BadgeModeHighest)
	now := at(2026, 6, 1, 22)

	st := NewUserState("user-1", now)
	st.StreakProtection = 0

	err := e.UseStreakProtection(st, now)
	assert.ErrorIs(t, err, shared.ErrNoProtectionTokens)
}

// Выполнение задачи в день защиты - повтор того же дня, серия не двигается.
func TestUseStreakProtection_ThenCompleteSameDay(t *testing.T) {
	e := NewEngine(BadgeModeHighest)
	now := at(2026, 6, 1, 22)

	st := NewUserState("user-1", now)
	st.CurrentStreak = 5
	st.MaxStreak = 5
	st.StreakProtection = 2
	st.LastStudyDate = at(2026, 5, 31, 0)

	require.NoError(t, e.UseStreakProtection(st, now))

	res := e.UpdateStreak(st, 1, now.Add(time.Hour))
	assert.False(t, res.Updated)
	assert.Equal(t, 5, st.CurrentStreak)
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAK STATUS
// ══════════════════════════════════════════════════════════════════════════════

func TestCheckStreakStatus(t *testing.T) {
	e := NewEngine(BadgeModeHighest)

	st := NewUserState("user-1", at(2026, 6, 1, 9))
	st.CurrentStreak = 5
	st.LastStudyDate = at(2026, 6, 1, 0)

	// 10 часов с начала последнего учебного дня - ничего не грозит.
	status := e.CheckStreakStatus(st, at(2026, 6, 1, 10))
	assert.False(t, status.IsAtRisk)
	assert.InDelta(t, 10, status.HoursSinceLastStudy, 0.01)
	assert.InDelta(t, 14, status.HoursLeft, 0.01)

	// Ровно 23 часа - граница угрозы.
	status = e.CheckStreakStatus(st, at(2026, 6, 1, 23))
	assert.True(t, status.IsAtRisk)
	assert.InDelta(t, 1, status.HoursLeft, 0.01)

	// За пределами окна часы до потери не уходят в минус.
	status = e.CheckStreakStatus(st, at(2026, 6, 2, 2))
	assert.True(t, status.IsAtRisk)
	assert.Equal(t, 0.0, status.HoursLeft)
}

func TestCheckStreakStatus_NoHistory(t *testing.T) {
	e := NewEngine(BadgeModeHighest)

	st := NewUserState("user-1", at(2026, 6, 1, 9))
	status := e.CheckStreakStatus(st, at(2026, 6, 1, 10))

	assert.False(t, status.IsAtRisk)
	assert.Equal(t, 0.0, status.HoursSinceLastStudy)
}

// ══════════════════════════════════════════════════════════════════════════════
// STATE
// ══════════════════════════════════════════════════════════════════════════════

func TestUserState_Clone(t *testing.T) {
	now := at(2026, 6, 1, 9)
	st := NewUserState("user-1", now)
	st.addBadge(BadgeBronzeStreak, now)

	clone := st.Clone()
	clone.Exp = 500
	clone.addBadge(BadgeSilverStreak, now)

	assert.Equal(t, 0, st.Exp)
	assert.False(t, st.HasBadge(BadgeSilverStreak))
	assert.True(t, clone.HasBadge(BadgeBronzeStreak))
}

func TestUserState_ExpToNextLevel(t *testing.T) {
	st := NewUserState("user-1", at(2026, 6, 1, 9))
	st.Exp = 35
	assert.Equal(t, 65, st.ExpToNextLevel())

	st.Exp = 135
	st.Level = 2
	assert.Equal(t, 65, st.ExpToNextLevel())
}
