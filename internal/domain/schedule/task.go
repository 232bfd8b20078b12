// Package schedule содержит доменную модель учебного плана StudyQuest:
// задачи подготовки и генератор расписания. Здесь нет внешних зависимостей.
package schedule

import (
	"fmt"
	"time"

	"github.com/studyquest-hub/studyquest-backend/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Priority определяет приоритет задачи.
type Priority string

const (
	// PriorityHigh - задача в финальной фазе подготовки (прогресс > 80%).
	PriorityHigh Priority = "high"
	// PriorityMedium - задача в средней фазе (прогресс > 40%).
	PriorityMedium Priority = "medium"
	// PriorityLow - задача в начальной фазе.
	PriorityLow Priority = "low"
)

// IsValid проверяет, что приоритет корректен.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// TaskType определяет тип задачи в плане подготовки.
type TaskType string

const (
	// TypeStudy - изучение нового материала (страницы рабочей тетради).
	TypeStudy TaskType = "study"
	// TypeReview - повторение всего пройденного в хвостовые дни плана.
	TypeReview TaskType = "review"
	// TypeFinalReview - финальная проверка за день до экзамена.
	TypeFinalReview TaskType = "final_review"
)

// IsValid проверяет, что тип задачи корректен.
func (t TaskType) IsValid() bool {
	switch t {
	case TypeStudy, TypeReview, TypeFinalReview:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: TASK
// ══════════════════════════════════════════════════════════════════════════════

// Task - одна задача плана подготовки, привязанная к календарному дню.
// Инварианты: ScheduledDate < Exam.Date (кроме слота final_review,
// для которого ScheduledDate == Exam.Date - 1) и ScheduledDate >= дня создания.
// После генерации задача меняет только поля Completed/CompletedAt/EarnedExp,
// причём осмысленно - не более одного раза за календарный день.
type Task struct {
	// ID - внутренний уникальный идентификатор (UUID в строковом формате).
	ID string

	// ExamID - экзамен, к которому относится задача.
	ExamID string

	// UserID - ключ пользователя (денормализован для выборок "план на сегодня").
	UserID string

	// Title - заголовок задачи с диапазоном страниц.
	Title string

	// SubjectName - название предмета.
	SubjectName string

	// ScheduledDate - календарный день, на который запланирована задача.
	ScheduledDate time.Time

	// Completed - выполнена ли задача.
	Completed bool

	// CompletedAt - время выполнения (нулевое, если не выполнена).
	CompletedAt time.Time

	// Priority - приоритет задачи.
	Priority Priority

	// EstimatedMinutes - оценка времени выполнения в минутах.
	EstimatedMinutes int

	// EarnedExp - опыт, начисленный за выполнение (0, если не начислялся).
	EarnedExp int

	// Type - тип задачи.
	Type TaskType
}

// Validate проверяет корректность задачи.
func (t *Task) Validate() error {
	if t.ID == "" {
		return shared.NewDomainError("schedule", "Validate", shared.ErrInvalidID, "task id is required")
	}
	if !t.Priority.IsValid() {
		return shared.ErrInvalidPriority
	}
	if !t.Type.IsValid() {
		return shared.ErrInvalidTaskType
	}
	if t.EstimatedMinutes < 1 {
		return shared.NewDomainError("schedule", "Validate", shared.ErrValueOutOfRange, "estimated minutes must be positive")
	}
	return nil
}

// MarkCompleted отмечает задачу выполненной.
// Возвращает false, если задача уже была выполнена (повторная отметка - no-op:
// опыт и серия начисляются строго один раз на осмысленное выполнение).
func (t *Task) MarkCompleted(now time.Time) bool {
	if t.Completed {
		return false
	}
	t.Completed = true
	t.CompletedAt = now
	return true
}

// MarkUncompleted снимает отметку выполнения.
// EarnedExp намеренно сохраняется: повторная отметка в тот же день
// не должна начислить опыт второй раз.
func (t *Task) MarkUncompleted() bool {
	if !t.Completed {
		return false
	}
	t.Completed = false
	t.CompletedAt = time.Time{}
	return true
}

// AlreadyRewarded возвращает true, если за задачу уже начислялся опыт.
func (t *Task) AlreadyRewarded() bool {
	return t.EarnedExp > 0
}

// String возвращает строковое представление задачи для логирования.
func (t *Task) String() string {
	return fmt.Sprintf("Task{ID: %s, Subject: %s, Date: %s, Type: %s, Min: %d}",
		t.ID, t.SubjectName, t.ScheduledDate.Format("2006-01-02"), t.Type, t.EstimatedMinutes)
}
