// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/studyquest-hub/studyquest-backend/internal/domain/exam"
	"github.com/studyquest-hub/studyquest-backend/internal/domain/schedule"
	"github.com/studyquest-hub/studyquest-backend/internal/domain/shared"
	"github.com/studyquest-hub/studyquest-backend/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE EXAM COMMAND
// Объявление экзамена пользователем. Создаёт экзамен и сразу генерирует
// полный план подготовки одним неизменяемым пакетом задач.
// ══════════════════════════════════════════════════════════════════════════════

// SubjectInput - входные данные одного предмета.
type SubjectInput struct {
	// Name - название предмета.
	Name string

	// Range - свободный текст с диапазоном материала.
	Range string

	// WorkbookPages - количество страниц рабочей тетради.
	WorkbookPages int
}

// CreateExamCommand содержит данные для создания экзамена.
type CreateExamCommand struct {
	// UserID - ключ пользователя.
	UserID string

	// Name - название экзамена.
	Name string

	// Date - календарная дата экзамена.
	Date time.Time

	// Subjects - предметы экзамена.
	Subjects []SubjectInput

	// Now - момент выполнения команды (нулевое = текущее время JST).
	// Все календарные расчёты плана отталкиваются от этого дня.
	Now time.Time
}

// Validate проверяет корректность команды.
func (c CreateExamCommand) Validate() error {
	if c.UserID == "" {
		return errors.New("create_exam: user_id is required")
	}
	if c.Name == "" {
		return errors.New("create_exam: name is required")
	}
	if c.Date.IsZero() {
		return errors.New("create_exam: date is required")
	}
	if len(c.Subjects) == 0 {
		return errors.New("create_exam: at least one subject is required")
	}
	return nil
}

// CreateExamResult содержит результат создания экзамена.
type CreateExamResult struct {
	// Exam - созданный экзамен.
	Exam *exam.Exam

	// Tasks - сгенерированный план, отсортированный по дате.
	Tasks []*schedule.Task

	// IsUrgent - экзамен в срочном режиме (меньше 5 дней).
	IsUrgent bool

	// Events - доменные события, порождённые командой.
	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CreateExamHandler обрабатывает CreateExamCommand.
type CreateExamHandler struct {
	examRepo       exam.Repository
	taskRepo       schedule.Repository
	generator      *schedule.Generator
	eventPublisher shared.EventPublisher
}

// NewCreateExamHandler создаёт обработчик создания экзамена.
// Если generator равен nil, используется генератор с UUID-идентификаторами.
func NewCreateExamHandler(
	examRepo exam.Repository,
	taskRepo schedule.Repository,
	generator *schedule.Generator,
	eventPublisher shared.EventPublisher,
) *CreateExamHandler {
	if generator == nil {
		generator = schedule.NewGenerator(uuid.NewString)
	}
	return &CreateExamHandler{
		examRepo:       examRepo,
		taskRepo:       taskRepo,
		generator:      generator,
		eventPublisher: eventPublisher,
	}
}

// Handle выполняет команду создания экзамена.
func (h *CreateExamHandler) Handle(ctx context.Context, cmd CreateExamCommand) (*CreateExamResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("exam", "Create", shared.ErrValidation, "invalid command", err)
	}

	now := cmd.Now
	if now.IsZero() {
		now = timeutil.Now()
	}

	subjects := make([]exam.Subject, 0, len(cmd.Subjects))
	for _, s := range cmd.Subjects {
		subjects = append(subjects, exam.Subject{
			Name:          s.Name,
			Range:         s.Range,
			WorkbookPages: exam.WorkbookPages(s.WorkbookPages),
		})
	}

	e, err := exam.NewExam(exam.NewExamParams{
		ID:       uuid.NewString(),
		UserID:   cmd.UserID,
		Name:     cmd.Name,
		Date:     cmd.Date,
		Subjects: subjects,
	}, now)
	if err != nil {
		return nil, err
	}

	if err := h.examRepo.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("create_exam: failed to save exam: %w", err)
	}

	tasks := h.generator.Generate(e, now)
	if len(tasks) > 0 {
		if err := h.taskRepo.SaveBatch(ctx, tasks); err != nil {
			return nil, fmt.Errorf("create_exam: failed to save tasks: %w", err)
		}
	}

	result := &CreateExamResult{
		Exam:     e,
		Tasks:    tasks,
		IsUrgent: e.IsUrgent(now),
	}

	result.Events = append(result.Events,
		shared.NewExamCreatedEvent(e.ID, e.UserID, e.Name, e.Date, len(e.Subjects)))
	if len(tasks) > 0 {
		result.Events = append(result.Events,
			shared.NewScheduleGeneratedEvent(e.ID, e.UserID, len(tasks),
				tasks[0].ScheduledDate, tasks[len(tasks)-1].ScheduledDate))
	}

	for _, event := range result.Events {
		_ = h.eventPublisher.Publish(event)
	}

	return result, nil
}
