// Package query contains read operations (CQRS - Queries).
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
// GET DAILY PLAN QUERY
// План на день: задачи пользователя на запрошенную дату, суммарная нагрузка
// и срочность ближайших экзаменов.
// ══════════════════════════════════════════════════════════════════════════════

// GetDailyPlanQuery содержит параметры запроса плана на день.
type GetDailyPlanQuery struct {
	// UserID - ключ пользователя.
	UserID string

	// Date - день плана (нулевой = сегодня по JST).
	Date time.Time
}

// Validate проверяет корректность параметров.
func (q *GetDailyPlanQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("get_daily_plan: user_id is required")
	}
	if q.Date.IsZero() {
		q.Date = timeutil.Now()
	}
	return nil
}

// TaskDTO - задача в ответе API.
type TaskDTO struct {
	ID               string    `json:"id"`
	ExamID           string    `json:"exam_id"`
	Title            string    `json:"title"`
	SubjectName      string    `json:"subject_name"`
	ScheduledDate    string    `json:"scheduled_date"`
	Completed        bool      `json:"completed"`
	CompletedAt      time.Time `json:"completed_at,omitempty"`
	Priority         string    `json:"priority"`
	EstimatedMinutes int       `json:"estimated_minutes"`
	EarnedExp        int       `json:"earned_exp,omitempty"`
	Type             string    `json:"type"`
}

// UpcomingExamDTO - краткая сводка по ближайшему экзамену.
type UpcomingExamDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Date      string `json:"date"`
	DaysUntil int    `json:"days_until"`
	IsUrgent  bool   `json:"is_urgent"`
}

// GetDailyPlanResult содержит результат запроса.
type GetDailyPlanResult struct {
	// Date - день плана.
	Date string `json:"date"`

	// Tasks - задачи дня, отсортированные по дате генерации.
	Tasks []TaskDTO `json:"tasks"`

	// TotalMinutes - суммарная оценка времени на день.
	TotalMinutes int `json:"total_minutes"`

	// CompletedCount - выполнено задач.
	CompletedCount int `json:"completed_count"`

	// UpcomingExams - ближайшие экзамены пользователя.
	UpcomingExams []UpcomingExamDTO `json:"upcoming_exams,omitempty"`
}

// GetDailyPlanHandler обрабатывает запросы плана на день.
type GetDailyPlanHandler struct {
	taskRepo schedule.Repository
	examRepo exam.Repository
}

// NewGetDailyPlanHandler создаёт обработчик плана на день.
func NewGetDailyPlanHandler(taskRepo schedule.Repository, examRepo exam.Repository) *GetDailyPlanHandler {
	return &GetDailyPlanHandler{taskRepo: taskRepo, examRepo: examRepo}
}

// Handle выполняет запрос.
func (h *GetDailyPlanHandler) Handle(ctx context.Context, query GetDailyPlanQuery) (*GetDailyPlanResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetDailyPlan", shared.ErrValidation, "invalid query", err)
	}

	tasks, err := h.taskRepo.GetByUserAndDay(ctx, query.UserID, query.Date)
	if err != nil {
		return nil, err
	}

	result := &GetDailyPlanResult{
		Date:  timeutil.FormatDate(query.Date),
		Tasks: make([]TaskDTO, 0, len(tasks)),
	}

	for _, t := range tasks {
		result.Tasks = append(result.Tasks, ToTaskDTO(t))
		result.TotalMinutes += t.EstimatedMinutes
		if t.Completed {
			result.CompletedCount++
		}
	}

	exams, err := h.examRepo.GetUpcoming(ctx, query.UserID, query.Date)
	if err == nil {
		for _, e := range exams {
			result.UpcomingExams = append(result.UpcomingExams, UpcomingExamDTO{
				ID:        e.ID,
				Name:      e.Name,
				Date:      timeutil.FormatDate(e.Date),
				DaysUntil: e.DaysUntil(query.Date),
				IsUrgent:  e.IsUrgent(query.Date),
			})
		}
	}

	return result, nil
}

// ToTaskDTO конвертирует задачу в DTO.
func ToTaskDTO(t *schedule.Task) TaskDTO {
	return TaskDTO{
		ID:               t.ID,
		ExamID:           t.ExamID,
		Title:            t.Title,
		SubjectName:      t.SubjectName,
		ScheduledDate:    timeutil.FormatDate(t.ScheduledDate),
		Completed:        t.Completed,
		CompletedAt:      t.CompletedAt,
		Priority:         string(t.Priority),
		EstimatedMinutes: t.EstimatedMinutes,
		EarnedExp:        t.EarnedExp,
		Type:             string(t.Type),
	}
}
