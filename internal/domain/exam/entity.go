// Package exam содержит доменную модель экзамена StudyQuest.
// Это ядро бизнес-логики - здесь нет внешних зависимостей.
package exam

import (
	"fmt"
	"strings"
	"time"

	"github.com/studyquest-hub/studyquest-backend/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// WorkbookPages представляет количество страниц в рабочей тетради предмета.
type WorkbookPages int

// IsValid проверяет, что количество страниц положительное.
func (p WorkbookPages) IsValid() bool {
	return p >= 1
}

// TotalMinutes возвращает оценку общего времени изучения (3 минуты на страницу).
func (p WorkbookPages) TotalMinutes() int {
	return int(p) * 3
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBJECT
// ══════════════════════════════════════════════════════════════════════════════

// Subject представляет один предмет экзамена.
type Subject struct {
	// Name - название предмета (например, "数学II").
	Name string

	// Range - свободный текст с описанием диапазона материала.
	Range string

	// WorkbookPages - количество страниц рабочей тетради.
	WorkbookPages WorkbookPages
}

// Validate проверяет корректность предмета.
func (s Subject) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return shared.ErrEmptySubjectName
	}
	if !s.WorkbookPages.IsValid() {
		return shared.ErrInvalidPageCount
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: EXAM
// ══════════════════════════════════════════════════════════════════════════════

// Exam - объявленный пользователем экзамен, источник плана подготовки.
// После создания экзамен неизменяем: редактирование трактуется как
// добавление нового плана, а не перегенерация существующего.
type Exam struct {
	// ID - внутренний уникальный идентификатор (UUID в строковом формате).
	ID string

	// UserID - ключ пользователя, которому принадлежит экзамен.
	UserID string

	// Name - название экзамена (например, "期末テスト").
	Name string

	// Date - календарная дата экзамена.
	Date time.Time

	// Subjects - предметы экзамена. Инвариант: непустой список.
	Subjects []Subject

	// CreatedAt - время создания записи.
	CreatedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// FACTORY & VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// NewExamParams содержит параметры для создания нового экзамена.
type NewExamParams struct {
	ID       string
	UserID   string
	Name     string
	Date     time.Time
	Subjects []Subject
}

// NewExam создаёт новый экзамен с валидацией всех полей.
// Генератор расписания полагается на то, что эта валидация уже выполнена:
// сам он никогда не встречает пустой список предметов или нулевые страницы.
func NewExam(params NewExamParams, now time.Time) (*Exam, error) {
	if params.ID == "" {
		return nil, shared.NewDomainError("exam", "Create", shared.ErrInvalidID, "exam id is required")
	}
	if params.UserID == "" {
		return nil, shared.NewDomainError("exam", "Create", shared.ErrInvalidID, "user id is required")
	}

	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, shared.ErrEmptyExamName
	}

	if len(params.Subjects) == 0 {
		return nil, shared.ErrExamNoSubjects
	}
	for i, subj := range params.Subjects {
		if err := subj.Validate(); err != nil {
			return nil, shared.WrapError("exam", "Create", shared.ErrValidation,
				fmt.Sprintf("subject %d is invalid", i+1), err)
		}
	}

	return &Exam{
		ID:        params.ID,
		UserID:    params.UserID,
		Name:      name,
		Date:      params.Date,
		Subjects:  params.Subjects,
		CreatedAt: now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS
// ══════════════════════════════════════════════════════════════════════════════

// DaysUntil возвращает количество целых дней до экзамена относительно today.
// Отрицательное значение означает, что дата экзамена уже прошла.
func (e *Exam) DaysUntil(today time.Time) int {
	return daysBetween(today, e.Date)
}

// IsUrgent возвращает true, если до экзамена меньше 5 дней.
// Срочность не меняет формулы распределения - она проявляется только
// через высокие коэффициенты дневного прогресса.
func (e *Exam) IsUrgent(today time.Time) bool {
	return e.DaysUntil(today) < 5
}

// TotalWorkbookPages возвращает сумму страниц по всем предметам.
func (e *Exam) TotalWorkbookPages() int {
	total := 0
	for _, s := range e.Subjects {
		total += int(s.WorkbookPages)
	}
	return total
}

// String возвращает строковое представление экзамена для логирования.
func (e *Exam) String() string {
	return fmt.Sprintf("Exam{ID: %s, Name: %s, Date: %s, Subjects: %d}",
		e.ID, e.Name, e.Date.Format("2006-01-02"), len(e.Subjects))
}

// Clone создаёт глубокую копию экзамена.
func (e *Exam) Clone() *Exam {
	if e == nil {
		return nil
	}

	clone := *e
	clone.Subjects = make([]Subject, len(e.Subjects))
	copy(clone.Subjects, e.Subjects)
	return &clone
}

// daysBetween считает целые календарные дни между датами (floor).
func daysBetween(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, from.Location())
	return int(t.Sub(f).Hours() / 24)
}
