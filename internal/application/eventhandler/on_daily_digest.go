package eventhandler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/studyquest-hub/studyquest-backend/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON DAILY DIGEST HANDLER
// Утренняя сводка плана: сколько задач и минут ждёт пользователя сегодня.
// ═══════════════════════════════════════════════════════════════════════════

// OnDailyDigestHandler обрабатывает событие готовности утренней сводки.
type OnDailyDigestHandler struct {
	notifier Notifier
	logger   *slog.Logger
}

// NewOnDailyDigestHandler создаёт обработчик.
func NewOnDailyDigestHandler(notifier Notifier, logger *slog.Logger) *OnDailyDigestHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnDailyDigestHandler{
		notifier: notifier,
		logger:   logger.With("handler", "on_daily_digest"),
	}
}

// Handle обрабатывает событие. Реализует shared.EventHandler.
func (h *OnDailyDigestHandler) Handle(event shared.Event) error {
	digest, ok := event.(shared.DailyDigestReadyEvent)
	if !ok {
		h.logger.Warn("received non-DailyDigestReadyEvent",
			"event_type", event.EventType(),
		)
		return nil
	}

	h.logger.Info("daily digest ready",
		"user_id", digest.UserID,
		"task_count", digest.TaskCount,
		"total_minutes", digest.TotalMinutes,
	)

	if h.notifier == nil {
		return nil
	}

	message := fmt.Sprintf("☀️ おはよう!今日の予定:%d個のタスク(約%d分)。頑張ろう!",
		digest.TaskCount, digest.TotalMinutes)
	if err := h.notifier.Notify(context.Background(), digest.UserID, "daily_digest", message); err != nil {
		h.logger.Warn("failed to send daily digest",
			"user_id", digest.UserID,
			"error", err,
		)
	}

	return nil
}

// EventType возвращает тип события, который обрабатывает этот handler.
func (h *OnDailyDigestHandler) EventType() shared.EventType {
	return shared.EventDailyDigestReady
}
