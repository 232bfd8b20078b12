package query

import (
	"context"
	"errors"
	"time"

	"github.com/studyquest-hub/studyquest-backend/internal/domain/exam"
	"github.com/studyquest-hub/studyquest-backend/internal/domain/schedule"
	"github.com/studyquest-hub/studyquest-backend/internal/domain/shared"
	"github.com/studyquest-hub/studyquest-backend/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET EXAM PLAN QUERY
// Весь план подготовки к экзамену: задачи по дням плюс сводка прогресса.
// ══════════════════════════════════════════════════════════════════════════════

// GetExamPlanQuery содержит параметры запроса плана экзамена.
type GetExamPlanQuery struct {
	// UserID - ключ пользователя (владение проверяется).
	UserID string

	// ExamID - экзамен.
	ExamID string

	// Now - текущий момент (нулевой = сейчас по JST).
	Now time.Time
}

// Validate проверяет корректность параметров.
func (q *GetExamPlanQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("get_exam_plan: user_id is required")
	}
	if q.ExamID == "" {
		return errors.New("get_exam_plan: exam_id is required")
	}
	if q.Now.IsZero() {
		q.Now = timeutil.Now()
	}
	return nil
}

// SubjectDTO - предмет экзамена в ответе API.
type SubjectDTO struct {
	Name          string `json:"name"`
	Range         string `json:"range,omitempty"`
	WorkbookPages int    `json:"workbook_pages"`
}

// ExamPlanDTO - экзамен с планом подготовки.
type ExamPlanDTO struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Date           string       `json:"date"`
	DaysUntil      int          `json:"days_until"`
	IsUrgent       bool         `json:"is_urgent"`
	Subjects       []SubjectDTO `json:"subjects"`
	Tasks          []TaskDTO    `json:"tasks"`
	TotalTasks     int          `json:"total_tasks"`
	CompletedTasks int          `json:"completed_tasks"`
}

// GetExamPlanHandler обрабатывает запросы плана экзамена.
type GetExamPlanHandler struct {
	examRepo exam.Repository
	taskRepo schedule.Repository
}

// NewGetExamPlanHandler создаёт обработчик.
func NewGetExamPlanHandler(examRepo exam.Repository, taskRepo schedule.Repository) *GetExamPlanHandler {
	return &GetExamPlanHandler{examRepo: examRepo, taskRepo: taskRepo}
}

// Handle выполняет запрос. Чужой экзамен неотличим от несуществующего.
func (h *GetExamPlanHandler) Handle(ctx context.Context, query GetExamPlanQuery) (*ExamPlanDTO, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetExamPlan", shared.ErrValidation, "invalid query", err)
	}

	e, err := h.examRepo.GetByID(ctx, query.ExamID)
	if err != nil {
		return nil, err
	}
	if e.UserID != query.UserID {
		return nil, shared.ErrExamNotFound
	}

	tasks, err := h.taskRepo.GetByExam(ctx, query.ExamID)
	if err != nil {
		return nil, err
	}

	result := &ExamPlanDTO{
		ID:         e.ID,
		Name:       e.Name,
		Date:       timeutil.FormatDate(e.Date),
		DaysUntil:  e.DaysUntil(query.Now),
		IsUrgent:   e.IsUrgent(query.Now),
		Subjects:   make([]SubjectDTO, 0, len(e.Subjects)),
		Tasks:      make([]TaskDTO, 0, len(tasks)),
		TotalTasks: len(tasks),
	}

	for _, s := range e.Subjects {
		result.Subjects = append(result.Subjects, SubjectDTO{
			Name:          s.Name,
			Range:         s.Range,
			WorkbookPages: int(s.WorkbookPages),
		})
	}

	for _, t := range tasks {
		result.Tasks = append(result.Tasks, ToTaskDTO(t))
		if t.Completed {
			result.CompletedTasks++
		}
	}

	return result, nil
}
