package query

import (
	"context"
	"errors"
	"time"

	"github.com/studyquest-hub/studyquest-backend/internal/domain/exam"
	"github.com/studyquest-hub/studyquest-backend/internal/domain/shared"
	"github.com/studyquest-hub/studyquest-backend/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST EXAMS QUERY
// Все экзамены пользователя, отсортированные по дате.
// ══════════════════════════════════════════════════════════════════════════════

// ListExamsQuery содержит параметры запроса списка экзаменов.
type ListExamsQuery struct {
	// UserID - ключ пользователя.
	UserID string

	// UpcomingOnly - только экзамены начиная с сегодняшнего дня.
	UpcomingOnly bool

	// Now - текущий момент (нулевой = сейчас по JST).
	Now time.Time
}

// Validate проверяет корректность параметров.
func (q *ListExamsQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("list_exams: user_id is required")
	}
	if q.Now.IsZero() {
		q.Now = timeutil.Now()
	}
	return nil
}

// ExamSummaryDTO - экзамен в списке (без задач).
type ExamSummaryDTO struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Date      string       `json:"date"`
	DaysUntil int          `json:"days_until"`
	IsUrgent  bool         `json:"is_urgent"`
	Subjects  []SubjectDTO `json:"subjects"`
}

// ListExamsResult содержит результат запроса.
type ListExamsResult struct {
	Exams []ExamSummaryDTO `json:"exams"`
}

// ListExamsHandler обрабатывает запросы списка экзаменов.
type ListExamsHandler struct {
	examRepo exam.Repository
}

// NewListExamsHandler создаёт обработчик.
func NewListExamsHandler(examRepo exam.Repository) *ListExamsHandler {
	return &ListExamsHandler{examRepo: examRepo}
}

// Handle выполняет запрос.
func (h *ListExamsHandler) Handle(ctx context.Context, query ListExamsQuery) (*ListExamsResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "ListExams", shared.ErrValidation, "invalid query", err)
	}

	var (
		exams []*exam.Exam
		err   error
	)
	if query.UpcomingOnly {
		exams, err = h.examRepo.GetUpcoming(ctx, query.UserID, timeutil.StartOfDay(query.Now))
	} else {
		exams, err = h.examRepo.GetByUser(ctx, query.UserID)
	}
	if err != nil {
		return nil, err
	}

	result := &ListExamsResult{Exams: make([]ExamSummaryDTO, 0, len(exams))}
	for _, e := range exams {
		dto := ExamSummaryDTO{
			ID:        e.ID,
			Name:      e.Name,
			Date:      timeutil.FormatDate(e.Date),
			DaysUntil: e.DaysUntil(query.Now),
			IsUrgent:  e.IsUrgent(query.Now),
			Subjects:  make([]SubjectDTO, 0, len(e.Subjects)),
		}
		for _, s := range e.Subjects {
			dto.Subjects = append(dto.Subjects, SubjectDTO{
				Name:          s.Name,
				Range:         s.Range,
				WorkbookPages: int(s.WorkbookPages),
			})
		}
		result.Exams = append(result.Exams, dto)
	}

	return result, nil
}
