package exam

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACE
// Этот интерфейс определяет контракт для работы с хранилищем экзаменов.
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции CRUD для экзаменов.
type Repository interface {
	// Create создаёт новый экзамен.
	// Возвращает ErrExamAlreadyExists, если экзамен уже существует.
	Create(ctx context.Context, e *Exam) error

	// GetByID возвращает экзамен по ID.
	// Возвращает ErrExamNotFound, если экзамен не найден.
	GetByID(ctx context.Context, id string) (*Exam, error)

	// GetByUser возвращает все экзамены пользователя, отсортированные по дате.
	GetByUser(ctx context.Context, userID string) ([]*Exam, error)

	// GetUpcoming возвращает экзамены пользователя с датой не раньше from.
	GetUpcoming(ctx context.Context, userID string, from time.Time) ([]*Exam, error)

	// Delete удаляет экзамен вместе с его задачами.
	// Возвращает ErrExamNotFound, если экзамен не найден.
	Delete(ctx context.Context, id string) error
}
