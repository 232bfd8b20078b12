package query

import (
	"context"
	"errors"
	"time"

	"github.com/studyquest-hub/studyquest-backend/internal/domain/progression"
	"github.com/studyquest-hub/studyquest-backend/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESS QUERY
// Сводка прогресса пользователя: уровень, опыт, серия, значки.
// ══════════════════════════════════════════════════════════════════════════════

// GetProgressQuery содержит параметры запроса прогресса.
type GetProgressQuery struct {
	// UserID - ключ пользователя.
	UserID string
}

// Validate проверяет корректность параметров.
func (q *GetProgressQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("get_progress: user_id is required")
	}
	return nil
}

// BadgeDTO - значок в ответе API.
type BadgeDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Emoji     string    `json:"emoji"`
	Threshold int       `json:"threshold"`
	EarnedAt  time.Time `json:"earned_at"`
}

// GetProgressResult содержит результат запроса.
type GetProgressResult struct {
	UserID              string     `json:"user_id"`
	Level               int        `json:"level"`
	Exp                 int        `json:"exp"`
	ExpToNextLevel      int        `json:"exp_to_next_level"`
	CurrentStreak       int        `json:"current_streak"`
	MaxStreak           int        `json:"max_streak"`
	StreakProtection    int        `json:"streak_protection"`
	TotalTasksCompleted int        `json:"total_tasks_completed"`
	Badges              []BadgeDTO `json:"badges"`
}

// GetProgressHandler обрабатывает запросы прогресса.
type GetProgressHandler struct {
	stateRepo progression.Repository
}

// NewGetProgressHandler создаёт обработчик прогресса.
func NewGetProgressHandler(stateRepo progression.Repository) *GetProgressHandler {
	return &GetProgressHandler{stateRepo: stateRepo}
}

// Handle выполняет запрос. Для пользователя без истории возвращается
// начальное состояние (уровень 1, нулевой опыт), а не ошибка.
func (h *GetProgressHandler) Handle(ctx context.Context, query GetProgressQuery) (*GetProgressResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetProgress", shared.ErrValidation, "invalid query", err)
	}

	state, err := h.stateRepo.GetOrCreate(ctx, query.UserID)
	if err != nil {
		return nil, err
	}

	return toProgressResult(state), nil
}

// toProgressResult конвертирует состояние в DTO.
func toProgressResult(state *progression.UserState) *GetProgressResult {
	result := &GetProgressResult{
		UserID:              state.UserID,
		Level:               state.Level,
		Exp:                 state.Exp,
		ExpToNextLevel:      state.ExpToNextLevel(),
		CurrentStreak:       state.CurrentStreak,
		MaxStreak:           state.MaxStreak,
		StreakProtection:    state.StreakProtection,
		TotalTasksCompleted: state.TotalTasksCompleted,
		Badges:              make([]BadgeDTO, 0, len(state.Badges)),
	}

	for _, badge := range state.BadgeList() {
		def, ok := progression.GetBadgeDefinition(badge)
		if !ok {
			continue
		}
		result.Badges = append(result.Badges, BadgeDTO{
			ID:        string(badge),
			Name:      def.Name,
			Emoji:     def.Emoji,
			Threshold: def.Threshold,
			EarnedAt:  state.Badges[badge],
		})
	}

	return result
}

// ══════════════════════════════════════════════════════════════════════════════
// GET TOP STREAKS QUERY
// Лучшие текущие серии - для доски мотивации.
// ══════════════════════════════════════════════════════════════════════════════

// GetTopStreaksQuery содержит параметры запроса лучших серий.
type GetTopStreaksQuery struct {
	// Limit - максимум записей (по умолчанию 10, не больше 100).
	Limit int
}

// Validate проверяет корректность параметров.
func (q *GetTopStreaksQuery) Validate() error {
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	return nil
}

// StreakEntryDTO - одна запись доски серий.
type StreakEntryDTO struct {
	Rank          int    `json:"rank"`
	UserID        string `json:"user_id"`
	CurrentStreak int    `json:"current_streak"`
	MaxStreak     int    `json:"max_streak"`
	Level         int    `json:"level"`
}

// GetTopStreaksResult содержит результат запроса.
type GetTopStreaksResult struct {
	Entries []StreakEntryDTO `json:"entries"`
}

// GetTopStreaksHandler обрабатывает запросы лучших серий.
type GetTopStreaksHandler struct {
	stateRepo progression.Repository
}

// NewGetTopStreaksHandler создаёт обработчик лучших серий.
func NewGetTopStreaksHandler(stateRepo progression.Repository) *GetTopStreaksHandler {
	return &GetTopStreaksHandler{stateRepo: stateRepo}
}

// Handle выполняет запрос.
func (h *GetTopStreaksHandler) Handle(ctx context.Context, query GetTopStreaksQuery) (*GetTopStreaksResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetTopStreaks", shared.ErrValidation, "invalid query", err)
	}

	states, err := h.stateRepo.GetTopStreaks(ctx, query.Limit)
	if err != nil {
		return nil, err
	}

	result := &GetTopStreaksResult{Entries: make([]StreakEntryDTO, 0, len(states))}
	for i, state := range states {
		result.Entries = append(result.Entries, StreakEntryDTO{
			Rank:          i + 1,
			UserID:        state.UserID,
			CurrentStreak: state.CurrentStreak,
			MaxStreak:     state.MaxStreak,
			Level:         state.Level,
		})
	}

	return result, nil
}
