package progression

import (
	"time"

	"github.com/studyquest-hub/studyquest-backend/internal/domain/schedule"
	"github.com/studyquest-hub/studyquest-backend/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION ENGINE
// Чистые переходы (UserState, событие) -> UserState без собственного состояния.
// "Сегодня" всегда передаётся явным параметром - движок не читает системные
// часы, иначе переходы нетестируемы.
//
// Гарантии:
// - идемпотентность дня: второе выполнение за тот же день не двигает серию;
// - монотонность: Level, MaxStreak и множество значков никогда не уменьшаются;
// - one-shot значки: каждый значок выдаётся не более одного раза.
// ══════════════════════════════════════════════════════════════════════════════

const (
	// BaseExp - базовый опыт за любую выполненную задачу.
	BaseExp = 10

	// ExpPerLevel - шаг уровня: каждые 100 опыта.
	ExpPerLevel = 100

	// LongTaskMinutes - порог длинной задачи для бонуса опыта.
	LongTaskMinutes = 60

	// LongTaskBonus - бонус за длинную задачу.
	LongTaskBonus = 10

	// StreakRiskHours - часов с последней активности, после которых серия под угрозой.
	StreakRiskHours = 23

	// StreakWindowHours - окно сохранения серии в часах.
	StreakWindowHours = 24
)

// BadgeMode определяет политику награждения при пересечении нескольких
// порогов за одно обновление (например, после бэкфилла серии).
type BadgeMode string

const (
	// BadgeModeHighest - выдаётся только старший из вновь пересечённых
	// порогов; младшие пропускаются навсегда. Историческое поведение.
	BadgeModeHighest BadgeMode = "highest"

	// BadgeModeAll - выдаются все вновь пересечённые пороги за один проход.
	BadgeModeAll BadgeMode = "all"
)

// IsValid проверяет, что режим корректен.
func (m BadgeMode) IsValid() bool {
	return m == BadgeModeHighest || m == BadgeModeAll
}

// Engine выполняет переходы состояния прогресса.
type Engine struct {
	badgeMode BadgeMode
}

// NewEngine создаёт движок прогресса. Некорректный режим значков
// откатывается к историческому BadgeModeHighest.
func NewEngine(badgeMode BadgeMode) *Engine {
	if !badgeMode.IsValid() {
		badgeMode = BadgeModeHighest
	}
	return &Engine{badgeMode: badgeMode}
}

// ══════════════════════════════════════════════════════════════════════════════
// RESULTS
// ══════════════════════════════════════════════════════════════════════════════

// StreakResult описывает результат обновления серии.
type StreakResult struct {
	// Updated - двигалась ли серия (false при повторе в тот же день
	// или при отсутствии выполнений сегодня).
	Updated bool

	// NewStreak - серия после обновления.
	NewStreak int

	// PreviousStreak - серия до обновления.
	PreviousStreak int

	// IsNewRecord - побит ли предыдущий максимум (оценивается до записи).
	IsNewRecord bool

	// Broken - была ли серия сброшена из-за пропущенных дней.
	Broken bool

	// DaysMissed - сколько дней пропущено при сбросе.
	DaysMissed int

	// NewBadges - вновь выданные значки (в режиме highest - не более одного).
	NewBadges []Badge
}

// CompletionResult описывает полный результат выполнения задачи.
type CompletionResult struct {
	// State - новое состояние пользователя (копия, исходное не тронуто).
	State *UserState

	// ExpGained - начисленный опыт.
	ExpGained int

	// LeveledUp - поднялся ли уровень.
	LeveledUp bool

	// OldLevel / NewLevel - уровень до и после.
	OldLevel int
	NewLevel int

	// Streak - результат обновления серии.
	Streak StreakResult
}

// StreakStatus - чистая сводка состояния серии для предупреждений UI.
type StreakStatus struct {
	// IsAtRisk - серия под угрозой (с последней активности прошло >= 23 часов).
	IsAtRisk bool

	// HoursSinceLastStudy - часов с последней активности.
	HoursSinceLastStudy float64

	// HoursLeft - часов до потери серии, не меньше нуля.
	HoursLeft float64
}

// ══════════════════════════════════════════════════════════════════════════════
// EXPERIENCE
// ══════════════════════════════════════════════════════════════════════════════

// CalculateExp вычисляет опыт за задачу. Результат всегда >= 10.
func CalculateExp(task *schedule.Task) int {
	exp := BaseExp

	switch task.Priority {
	case schedule.PriorityHigh:
		exp += 10
	case schedule.PriorityMedium:
		exp += 5
	}

	switch task.Type {
	case schedule.TypeFinalReview:
		exp += 15
	case schedule.TypeReview:
		exp += 5
	}

	if task.EstimatedMinutes > LongTaskMinutes {
		exp += LongTaskBonus
	}

	return exp
}

// LevelForExp вычисляет уровень по накопленному опыту.
func LevelForExp(exp int) int {
	if exp < 0 {
		return 1
	}
	return exp/ExpPerLevel + 1
}

// AddExperience начисляет опыт и пересчитывает уровень.
// Уровень монотонен: вычисленный уровень ниже текущего не применяется.
func (e *Engine) AddExperience(st *UserState, points int, now time.Time) (leveledUp bool, oldLevel, newLevel int) {
	oldLevel = st.Level

	st.Exp += points
	newLevel = LevelForExp(st.Exp)
	if newLevel < oldLevel {
		newLevel = oldLevel
	}
	st.Level = newLevel
	st.UpdatedAt = now

	return newLevel > oldLevel, oldLevel, newLevel
}

// ══════════════════════════════════════════════════════════════════════════════
// TASK COMPLETION TRANSITION
// ══════════════════════════════════════════════════════════════════════════════

// CompleteTask выполняет полный переход за одно осмысленное выполнение задачи.
// completedToday - количество выполнений пользователя за сегодня по данным
// хранилища задач, включая текущее выполнение; при нуле серия не двигается.
// Вызывается строго один раз на выполнение: за защиту от повторного
// срабатывания при переключении чекбокса отвечает оркестровка.
// Исходное состояние не модифицируется.
func (e *Engine) CompleteTask(st *UserState, task *schedule.Task, completedToday int, now time.Time) CompletionResult {
	next := st.Clone()

	exp := CalculateExp(task)
	leveledUp, oldLevel, newLevel := e.AddExperience(next, exp, now)

	streak := e.UpdateStreak(next, completedToday, now)

	next.TotalTasksCompleted++
	next.UpdatedAt = now

	return CompletionResult{
		State:     next,
		ExpGained: exp,
		LeveledUp: leveledUp,
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
		Streak:    streak,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAK STATE MACHINE
// Состояния не хранятся явно - они выводятся из LastStudyDate против "сегодня":
// нет истории / тот же день / вчера / давнее прошлое.
// ══════════════════════════════════════════════════════════════════════════════

// UpdateStreak обновляет серию при условии, что сегодня выполнена хотя бы
// одна задача. completedToday - количество выполнений за сегодня по данным
// хранилища задач; при нуле обновление - чистый no-op (защита от ложных
// срабатываний).
func (e *Engine) UpdateStreak(st *UserState, completedToday int, now time.Time) StreakResult {
	if completedToday < 1 {
		return StreakResult{Updated: false, NewStreak: st.CurrentStreak, PreviousStreak: st.CurrentStreak}
	}
	return e.advanceStreak(st, now)
}

// advanceStreak - сам переход серии. Модифицирует st.
func (e *Engine) advanceStreak(st *UserState, now time.Time) StreakResult {
	today := startOfDay(now)
	previous := st.CurrentStreak

	var newStreak int
	broken := false
	daysMissed := 0

	switch {
	case st.LastStudyDate.IsZero():
		// Нет истории - серия начинается с единицы.
		newStreak = 1

	case sameDay(st.LastStudyDate, today):
		// Повтор в тот же день - идемпотентный no-op.
		return StreakResult{Updated: false, NewStreak: st.CurrentStreak, PreviousStreak: st.CurrentStreak}

	case sameDay(st.LastStudyDate, today.AddDate(0, 0, -1)):
		// Вчерашняя активность - серия продолжается.
		newStreak = st.CurrentStreak + 1

	default:
		// Пропущены дни - серия начинается заново.
		newStreak = 1
		broken = true
		daysMissed = daysBetween(st.LastStudyDate, today) - 1
	}

	// Рекорд оценивается до записи нового максимума.
	isNewRecord := newStreak > st.MaxStreak

	st.CurrentStreak = newStreak
	if newStreak > st.MaxStreak {
		st.MaxStreak = newStreak
	}
	st.LastStudyDate = today
	st.UpdatedAt = now

	newBadges := e.awardBadges(st, newStreak, now)

	return StreakResult{
		Updated:        true,
		NewStreak:      newStreak,
		PreviousStreak: previous,
		IsNewRecord:    isNewRecord,
		Broken:         broken,
		DaysMissed:     daysMissed,
		NewBadges:      newBadges,
	}
}

// awardBadges выдаёт значки за пересечённые пороги серии.
// Множество значков монотонно: членство проверяется до выдачи.
func (e *Engine) awardBadges(st *UserState, streak int, now time.Time) []Badge {
	defs := BadgeDefinitions()

	if e.badgeMode == BadgeModeHighest {
		// Историческое поведение цепочки else-if: рассматривается только
		// старший достигнутый порог. Младшие пороги, пересечённые тем же
		// скачком, остаются в его тени и не выдаются.
		for i := len(defs) - 1; i >= 0; i-- {
			if streak < defs[i].Threshold {
				continue
			}
			if st.addBadge(defs[i].Badge, now) {
				return []Badge{defs[i].Badge}
			}
			return nil
		}
		return nil
	}

	var crossed []Badge
	for _, def := range defs {
		if streak >= def.Threshold && st.addBadge(def.Badge, now) {
			crossed = append(crossed, def.Badge)
		}
	}
	return crossed
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAK PROTECTION
// ══════════════════════════════════════════════════════════════════════════════

// UseStreakProtection расходует жетон защиты: LastStudyDate синтетически
// переводится на сегодня без выполнения задачи, сохраняя непрерывность.
// Возвращает ErrNoProtectionTokens, если жетонов нет.
func (e *Engine) UseStreakProtection(st *UserState, now time.Time) error {
	if st.StreakProtection < 1 {
		return shared.ErrNoProtectionTokens
	}

	st.StreakProtection--
	st.LastStudyDate = startOfDay(now)
	st.UpdatedAt = now
	return nil
}

// CheckStreakStatus возвращает сводку угрозы серии. Чистое чтение.
func (e *Engine) CheckStreakStatus(st *UserState, now time.Time) StreakStatus {
	if st.LastStudyDate.IsZero() || st.CurrentStreak < 1 {
		return StreakStatus{}
	}

	hoursSince := now.Sub(st.LastStudyDate).Hours()
	hoursLeft := StreakWindowHours - hoursSince
	if hoursLeft < 0 {
		hoursLeft = 0
	}

	return StreakStatus{
		IsAtRisk:            hoursSince >= StreakRiskHours,
		HoursSinceLastStudy: hoursSince,
		HoursLeft:           hoursLeft,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DATE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// startOfDay обрезает время до начала календарного дня.
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// sameDay проверяет совпадение календарных дней.
func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// daysBetween считает целые календарные дни между датами.
func daysBetween(from, to time.Time) int {
	f := startOfDay(from)
	t := startOfDay(to)
	return int(t.Sub(f).Hours() / 24)
}
