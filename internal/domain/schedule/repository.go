package schedule

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACE
// Контракт хранилища задач. Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции для работы с задачами плана.
type Repository interface {
	// SaveBatch сохраняет пакет задач одного экзамена.
	// План генерируется целиком и неизменяем - задачи пишутся одним пакетом.
	SaveBatch(ctx context.Context, tasks []*Task) error

	// GetByID возвращает задачу по ID.
	// Возвращает ErrTaskNotFound, если задача не найдена.
	GetByID(ctx context.Context, id string) (*Task, error)

	// GetByExam возвращает все задачи экзамена, отсортированные по дате.
	GetByExam(ctx context.Context, examID string) ([]*Task, error)

	// GetByUserAndDay возвращает задачи пользователя на календарный день day.
	GetByUserAndDay(ctx context.Context, userID string, day time.Time) ([]*Task, error)

	// Update сохраняет изменение полей выполнения задачи.
	// Возвращает ErrTaskNotFound, если задача не найдена.
	Update(ctx context.Context, task *Task) error

	// CountCompletedOnDay возвращает количество задач пользователя,
	// выполненных в календарный день day. Используется как предохранитель
	// серии: обновление серии срабатывает только при наличии выполнений.
	CountCompletedOnDay(ctx context.Context, userID string, day time.Time) (int, error)

	// DeleteByExam удаляет все задачи экзамена.
	DeleteByExam(ctx context.Context, examID string) error
}
