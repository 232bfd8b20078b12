package schedule

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/studyquest-hub/studyquest-backend/internal/domain/exam"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULE GENERATOR
// Чистая функция Exam -> []Task: детерминирована при фиксированных today и exam.
//
// Ключевые правила распределения:
// 1. Последний день перед экзаменом зарезервирован под final_review.
// 2. Хвост учебного окна (до 3 дней) отводится под повторение.
// 3. Суммарная дневная нагрузка ужимается к лимиту 120 минут одним
//    глобальным коэффициентом - никогда не растягивается вверх.
// 4. Срочный режим (< 5 дней) не меняет формулы: сжатие проявляется
//    само через высокие дневные коэффициенты прогресса.
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DailyStudyMinutes - дневной лимит учебного времени в минутах.
	DailyStudyMinutes = 120

	// MinutesPerPage - оценка времени на одну страницу рабочей тетради.
	MinutesPerPage = 3

	// MaxReviewDays - максимум хвостовых дней повторения на предмет.
	MaxReviewDays = 3

	// FinalReviewMinutes - фиксированная длительность финальной проверки.
	FinalReviewMinutes = 30

	// UrgentThresholdDays - порог срочного режима в днях до экзамена.
	UrgentThresholdDays = 5

	// ReviewLoadFactor - доля дневной нагрузки для задач повторения.
	ReviewLoadFactor = 0.7
)

// IDFunc выдаёт идентификатор для новой задачи.
// Передаётся извне, чтобы доменный пакет не зависел от генератора UUID,
// а тесты получали детерминированные ID.
type IDFunc func() string

// Generator строит план подготовки по экзамену.
type Generator struct {
	newID IDFunc
}

// NewGenerator создаёт генератор расписания.
func NewGenerator(newID IDFunc) *Generator {
	return &Generator{newID: newID}
}

// subjectPlan - промежуточный расчёт распределения по одному предмету.
type subjectPlan struct {
	subject          exam.Subject
	dailyMinutes     int
	reviewDays       int
	subjectStudyDays int
}

// Generate строит полный список задач для экзамена на основе дня today.
// Результат отсортирован по ScheduledDate по возрастанию; задачи одного дня
// сохраняют порядок объявления предметов. Ни одна задача не попадает на
// день экзамена или позже, кроме зарезервированного слота final_review
// на examDate - 1. Прошедшая дата экзамена ужимается до однодневного плана.
func (g *Generator) Generate(e *exam.Exam, today time.Time) []*Task {
	todayStart := startOfDay(today)
	examDay := startOfDay(e.Date)

	daysUntilExam := int(examDay.Sub(todayStart).Hours() / 24)

	// Резервируем день перед экзаменом; при прошедшей дате ужимаем до одного дня.
	studyDays := daysUntilExam - 1
	if studyDays < 1 {
		studyDays = 1
	}

	plans := make([]subjectPlan, 0, len(e.Subjects))
	totalDailyMinutes := 0
	for _, subj := range e.Subjects {
		totalMinutes := subj.WorkbookPages.TotalMinutes()
		dailyMinutes := ceilDiv(totalMinutes, studyDays)

		reviewDays := studyDays / 3
		if reviewDays > MaxReviewDays {
			reviewDays = MaxReviewDays
		}

		plans = append(plans, subjectPlan{
			subject:          subj,
			dailyMinutes:     dailyMinutes,
			reviewDays:       reviewDays,
			subjectStudyDays: studyDays - reviewDays,
		})
		totalDailyMinutes += dailyMinutes
	}

	// Глобальный коэффициент сжатия: применяется один раз и только вниз.
	adjustmentRatio := 1.0
	if totalDailyMinutes > DailyStudyMinutes {
		adjustmentRatio = float64(DailyStudyMinutes) / float64(totalDailyMinutes)
	}

	var tasks []*Task
	for _, plan := range plans {
		tasks = append(tasks, g.studyTasks(e, plan, todayStart, examDay, adjustmentRatio)...)
		tasks = append(tasks, g.reviewTasks(e, plan, todayStart, examDay, adjustmentRatio)...)
	}
	tasks = append(tasks, g.finalReviewTasks(e, todayStart, examDay)...)

	// Стабильная сортировка сохраняет порядок предметов внутри одного дня.
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].ScheduledDate.Before(tasks[j].ScheduledDate)
	})

	return tasks
}

// studyTasks распределяет страницы предмета по учебным дням
// пропорциональными срезами.
func (g *Generator) studyTasks(e *exam.Exam, plan subjectPlan, today, examDay time.Time, ratio float64) []*Task {
	pages := int(plan.subject.WorkbookPages)
	estimated := roundMinutes(float64(plan.dailyMinutes) * ratio)

	tasks := make([]*Task, 0, plan.subjectStudyDays)
	for day := 0; day < plan.subjectStudyDays; day++ {
		taskDate := today.AddDate(0, 0, day)
		if !taskDate.Before(examDay) {
			continue
		}

		progress := float64(day+1) / float64(plan.subjectStudyDays)

		startPage := day*pages/plan.subjectStudyDays + 1
		endPage := (day + 1) * pages / plan.subjectStudyDays
		if endPage > pages {
			endPage = pages
		}

		tasks = append(tasks, &Task{
			ID:               g.newID(),
			ExamID:           e.ID,
			UserID:           e.UserID,
			Title:            fmt.Sprintf("%s ワーク P.%d〜%d", plan.subject.Name, startPage, endPage),
			SubjectName:      plan.subject.Name,
			ScheduledDate:    taskDate,
			Priority:         priorityFor(progress),
			EstimatedMinutes: estimated,
			Type:             TypeStudy,
		})
	}
	return tasks
}

// reviewTasks добавляет хвостовые дни повторения сразу после учебных дней.
func (g *Generator) reviewTasks(e *exam.Exam, plan subjectPlan, today, examDay time.Time, ratio float64) []*Task {
	pages := int(plan.subject.WorkbookPages)
	estimated := roundMinutes(ReviewLoadFactor * float64(plan.dailyMinutes) * ratio)

	tasks := make([]*Task, 0, plan.reviewDays)
	for reviewDay := 0; reviewDay < plan.reviewDays; reviewDay++ {
		taskDate := today.AddDate(0, 0, plan.subjectStudyDays+reviewDay)
		if !taskDate.Before(examDay) {
			continue
		}

		tasks = append(tasks, &Task{
			ID:               g.newID(),
			ExamID:           e.ID,
			UserID:           e.UserID,
			Title:            fmt.Sprintf("%s 総復習 P.1〜%d", plan.subject.Name, pages),
			SubjectName:      plan.subject.Name,
			ScheduledDate:    taskDate,
			Priority:         PriorityHigh,
			EstimatedMinutes: estimated,
			Type:             TypeReview,
		})
	}
	return tasks
}

// finalReviewTasks ставит по одной финальной проверке на предмет
// в зарезервированный слот за день до экзамена.
func (g *Generator) finalReviewTasks(e *exam.Exam, today, examDay time.Time) []*Task {
	finalDay := examDay.AddDate(0, 0, -1)
	if finalDay.Before(today) {
		return nil
	}

	tasks := make([]*Task, 0, len(e.Subjects))
	for _, subj := range e.Subjects {
		tasks = append(tasks, &Task{
			ID:               g.newID(),
			ExamID:           e.ID,
			UserID:           e.UserID,
			Title:            fmt.Sprintf("%s 最終確認", subj.Name),
			SubjectName:      subj.Name,
			ScheduledDate:    finalDay,
			Priority:         PriorityHigh,
			EstimatedMinutes: FinalReviewMinutes,
			Type:             TypeFinalReview,
		})
	}
	return tasks
}

// priorityFor вычисляет приоритет по коэффициенту дневного прогресса.
func priorityFor(progress float64) Priority {
	switch {
	case progress > 0.8:
		return PriorityHigh
	case progress > 0.4:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// ceilDiv - целочисленное деление с округлением вверх.
func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// roundMinutes округляет минуты до ближайшего целого, минимум 1.
func roundMinutes(m float64) int {
	r := int(math.Round(m))
	if r < 1 {
		r = 1
	}
	return r
}

// startOfDay обрезает время до начала календарного дня.
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
