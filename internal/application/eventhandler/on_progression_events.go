package eventhandler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/studyquest-hub/studyquest-backend/internal/domain/progression"
	"github.com/studyquest-hub/studyquest-backend/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON PROGRESSION EVENTS HANDLER
// Праздничные уведомления: новый уровень, значок, рекорд серии.
// Один обработчик на семейство событий - у них общая судьба (уведомление)
// и общий получатель.
// ═══════════════════════════════════════════════════════════════════════════

// OnProgressionEventsHandler обрабатывает события прогресса.
type OnProgressionEventsHandler struct {
	notifier Notifier
	logger   *slog.Logger
}

// NewOnProgressionEventsHandler создаёт обработчик.
func NewOnProgressionEventsHandler(notifier Notifier, logger *slog.Logger) *OnProgressionEventsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnProgressionEventsHandler{
		notifier: notifier,
		logger:   logger.With("handler", "on_progression_events"),
	}
}

// EventTypes возвращает типы событий, которые обрабатывает этот handler.
func (h *OnProgressionEventsHandler) EventTypes() []shared.EventType {
	return []shared.EventType{
		shared.EventLeveledUp,
		shared.EventBadgeEarned,
		shared.EventStreakRecord,
		shared.EventStreakBroken,
		shared.EventStreakAtRisk,
	}
}

// Handle обрабатывает событие. Реализует shared.EventHandler.
func (h *OnProgressionEventsHandler) Handle(event shared.Event) error {
	var userID, kind, message string

	switch e := event.(type) {
	case shared.LeveledUpEvent:
		userID, kind = e.UserID, "leveled_up"
		message = fmt.Sprintf("🎉 レベルアップ!Lv.%d になりました", e.NewLevel)

	case shared.BadgeEarnedEvent:
		userID, kind = e.UserID, "badge_earned"
		message = h.badgeMessage(e)

	case shared.StreakRecordEvent:
		userID, kind = e.UserID, "streak_record"
		message = fmt.Sprintf("🏆 自己ベスト更新!%d日連続!", e.NewStreak)

	case shared.StreakBrokenEvent:
		userID, kind = e.UserID, "streak_broken"
		message = fmt.Sprintf("連続記録が途切れました(%d日)。今日からまた始めよう!", e.PreviousStreak)

	case shared.StreakAtRiskEvent:
		userID, kind = e.UserID, "streak_at_risk"
		message = fmt.Sprintf("⚠️ %d日連続の記録が危ない!あと%.0f時間", e.Streak, e.HoursLeft)

	default:
		h.logger.Warn("received unexpected event",
			"event_type", event.EventType(),
		)
		return nil
	}

	h.logger.Info("progression event",
		"event_type", event.EventType(),
		"user_id", userID,
	)

	if h.notifier == nil {
		return nil
	}

	if err := h.notifier.Notify(context.Background(), userID, kind, message); err != nil {
		h.logger.Warn("failed to send notification",
			"user_id", userID,
			"kind", kind,
			"error", err,
		)
	}

	return nil
}

// badgeMessage строит сообщение о полученном значке.
func (h *OnProgressionEventsHandler) badgeMessage(e shared.BadgeEarnedEvent) string {
	def, ok := progression.GetBadgeDefinition(progression.Badge(e.BadgeID))
	if !ok {
		return fmt.Sprintf("🎖 新しいバッジを獲得!(%d日連続)", e.Streak)
	}
	return fmt.Sprintf("%s %sバッジを獲得!%d日連続達成!", def.Emoji, def.Name, def.Threshold)
}
