package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/studyquest-hub/studyquest-backend/internal/domain/exam"
	"github.com/studyquest-hub/studyquest-backend/internal/domain/schedule"
	"github.com/studyquest-hub/studyquest-backend/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DELETE EXAM COMMAND
// Удаление экзамена вместе со всем планом подготовки. Уже начисленный
// опыт и прогресс серии не откатываются.
// ══════════════════════════════════════════════════════════════════════════════

// DeleteExamCommand содержит данные для удаления экзамена.
type DeleteExamCommand struct {
	// UserID - ключ пользователя (удалить можно только свой экзамен).
	UserID string

	// ExamID - экзамен.
	ExamID string
}

// Validate проверяет корректность команды.
func (c DeleteExamCommand) Validate() error {
	if c.UserID == "" {
		return errors.New("delete_exam: user_id is required")
	}
	if c.ExamID == "" {
		return errors.New("delete_exam: exam_id is required")
	}
	return nil
}

// DeleteExamHandler обрабатывает DeleteExamCommand.
type DeleteExamHandler struct {
	examRepo exam.Repository
	taskRepo schedule.Repository
}

// NewDeleteExamHandler создаёт обработчик удаления экзамена.
func NewDeleteExamHandler(examRepo exam.Repository, taskRepo schedule.Repository) *DeleteExamHandler {
	return &DeleteExamHandler{examRepo: examRepo, taskRepo: taskRepo}
}

// Handle выполняет команду. Чужой экзамен неотличим от несуществующего.
func (h *DeleteExamHandler) Handle(ctx context.Context, cmd DeleteExamCommand) error {
	if err := cmd.Validate(); err != nil {
		return shared.WrapError("exam", "Delete", shared.ErrValidation, "invalid command", err)
	}

	e, err := h.examRepo.GetByID(ctx, cmd.ExamID)
	if err != nil {
		return err
	}
	if e.UserID != cmd.UserID {
		return shared.ErrExamNotFound
	}

	// Задачи удаляются явно; каскад в БД остаётся страховкой для
	// репозиториев без внешних ключей.
	if err := h.taskRepo.DeleteByExam(ctx, cmd.ExamID); err != nil {
		return fmt.Errorf("failed to delete exam tasks: %w", err)
	}

	return h.examRepo.Delete(ctx, cmd.ExamID)
}
