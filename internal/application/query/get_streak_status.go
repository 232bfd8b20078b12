package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/studyquest-hub/studyquest-backend/internal/domain/progression"
	"github.com/studyquest-hub/studyquest-backend/internal/domain/shared"
	"github.com/studyquest-hub/studyquest-backend/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STREAK STATUS QUERY
// Статус серии для предупреждений UI: под угрозой ли серия и сколько
// часов осталось до её потери. Чистое чтение, состояние не меняется.
// ══════════════════════════════════════════════════════════════════════════════

// GetStreakStatusQuery содержит параметры запроса статуса серии.
type GetStreakStatusQuery struct {
	// UserID - ключ пользователя.
	UserID string

	// Now - момент оценки (нулевое = текущее время JST).
	Now time.Time
}

// Validate проверяет корректность параметров.
func (q *GetStreakStatusQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("get_streak_status: user_id is required")
	}
	if q.Now.IsZero() {
		q.Now = timeutil.Now()
	}
	return nil
}

// GetStreakStatusResult содержит результат запроса.
type GetStreakStatusResult struct {
	// CurrentStreak - текущая серия.
	CurrentStreak int `json:"current_streak"`

	// IsAtRisk - серия под угрозой.
	IsAtRisk bool `json:"is_at_risk"`

	// HoursSinceLastStudy - часов с последней активности.
	HoursSinceLastStudy float64 `json:"hours_since_last_study"`

	// HoursLeft - часов до потери серии.
	HoursLeft float64 `json:"hours_left"`

	// ProtectionTokens - доступных жетонов защиты.
	ProtectionTokens int `json:"protection_tokens"`

	// Message - сообщение для пользователя.
	Message string `json:"message"`
}

// GetStreakStatusHandler обрабатывает запросы статуса серии.
type GetStreakStatusHandler struct {
	stateRepo progression.Repository
	engine    *progression.Engine
}

// NewGetStreakStatusHandler создаёт обработчик статуса серии.
func NewGetStreakStatusHandler(stateRepo progression.Repository, engine *progression.Engine) *GetStreakStatusHandler {
	return &GetStreakStatusHandler{stateRepo: stateRepo, engine: engine}
}

// Handle выполняет запрос.
func (h *GetStreakStatusHandler) Handle(ctx context.Context, query GetStreakStatusQuery) (*GetStreakStatusResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetStreakStatus", shared.ErrValidation, "invalid query", err)
	}

	state, err := h.stateRepo.GetOrCreate(ctx, query.UserID)
	if err != nil {
		return nil, err
	}

	status := h.engine.CheckStreakStatus(state, query.Now)

	return &GetStreakStatusResult{
		CurrentStreak:       state.CurrentStreak,
		IsAtRisk:            status.IsAtRisk,
		HoursSinceLastStudy: status.HoursSinceLastStudy,
		HoursLeft:           status.HoursLeft,
		ProtectionTokens:    state.StreakProtection,
		Message:             streakMessage(state.CurrentStreak, status),
	}, nil
}

// streakMessage генерирует сообщение о серии для пользователя.
func streakMessage(streak int, status progression.StreakStatus) string {
	if streak == 0 {
		return "今日から連続記録を始めよう!🔥"
	}
	if status.IsAtRisk {
		return fmt.Sprintf("⚠️ %d日連続の記録が危ない!あと%.0f時間以内に1つ完了しよう", streak, status.HoursLeft)
	}
	return fmt.Sprintf("🔥 %d日連続で学習中!", streak)
}
