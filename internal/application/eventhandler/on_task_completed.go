// Package eventhandler содержит обработчики доменных событий.
package eventhandler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/studyquest-hub/studyquest-backend/internal/domain/shared"
)

// Notifier отправляет уведомление пользователю через внешний канал.
// Реализация находится в infrastructure/external/notifier.
type Notifier interface {
	Notify(ctx context.Context, userID, kind, message string) error
}

// ═══════════════════════════════════════════════════════════════════════════
// ON TASK COMPLETED HANDLER
// Подтверждение выполнения задачи. Уведомления fire-and-forget:
// ошибка доставки логируется, но не откатывает выполнение.
// ═══════════════════════════════════════════════════════════════════════════

// OnTaskCompletedHandler обрабатывает событие выполнения задачи.
type OnTaskCompletedHandler struct {
	notifier Notifier
	logger   *slog.Logger
}

// NewOnTaskCompletedHandler создаёт обработчик.
func NewOnTaskCompletedHandler(notifier Notifier, logger *slog.Logger) *OnTaskCompletedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnTaskCompletedHandler{
		notifier: notifier,
		logger:   logger.With("handler", "on_task_completed"),
	}
}

// Handle обрабатывает событие. Реализует shared.EventHandler.
func (h *OnTaskCompletedHandler) Handle(event shared.Event) error {
	taskEvent, ok := event.(shared.TaskCompletedEvent)
	if !ok {
		h.logger.Warn("received non-TaskCompletedEvent",
			"event_type", event.EventType(),
		)
		return nil
	}

	h.logger.Info("task completed",
		"user_id", taskEvent.UserID,
		"task_id", taskEvent.TaskID,
		"exp_gained", taskEvent.ExpGained,
	)

	if h.notifier == nil {
		return nil
	}

	message := fmt.Sprintf("✅ タスク完了!+%d EXP", taskEvent.ExpGained)
	if err := h.notifier.Notify(context.Background(), taskEvent.UserID, "task_completed", message); err != nil {
		h.logger.Warn("failed to send completion confirmation",
			"user_id", taskEvent.UserID,
			"error", err,
		)
	}

	return nil
}

// EventType возвращает тип события, который обрабатывает этот handler.
func (h *OnTaskCompletedHandler) EventType() shared.EventType {
	return shared.EventTaskCompleted
}
