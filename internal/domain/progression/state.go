// Package progression содержит доменную модель геймификации StudyQuest:
// опыт, уровни, серии активных дней и значки. Здесь нет внешних зависимостей.
package progression

import (
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGES
// ══════════════════════════════════════════════════════════════════════════════

// Badge представляет идентификатор значка за серию активных дней.
type Badge string

const (
	// BadgeBronzeStreak - 3 дня подряд.
	BadgeBronzeStreak Badge = "bronze_streak"
	// BadgeSilverStreak - 7 дней подряд.
	BadgeSilverStreak Badge = "silver_streak"
	// BadgeGoldStreak - 14 дней подряд.
	BadgeGoldStreak Badge = "gold_streak"
	// BadgePlatinumStreak - 30 дней подряд.
	BadgePlatinumStreak Badge = "platinum_streak"
)

// BadgeDefinition описывает значок и порог его получения.
type BadgeDefinition struct {
	Badge     Badge
	Threshold int
	Name      string
	Emoji     string
}

// BadgeDefinitions возвращает определения значков по возрастанию порогов.
// Порядок важен: логика награждения обходит пороги от младшего к старшему.
func BadgeDefinitions() []BadgeDefinition {
	return []BadgeDefinition{
		{BadgeBronzeStreak, 3, "ブロンズ", "🥉"},
		{BadgeSilverStreak, 7, "シルバー", "🥈"},
		{BadgeGoldStreak, 14, "ゴールド", "🥇"},
		{BadgePlatinumStreak, 30, "プラチナ", "💎"},
	}
}

// GetBadgeDefinition возвращает определение значка по идентификатору.
func GetBadgeDefinition(b Badge) (BadgeDefinition, bool) {
	for _, def := range BadgeDefinitions() {
		if def.Badge == b {
			return def, true
		}
	}
	return BadgeDefinition{}, false
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: USER STATE
// ══════════════════════════════════════════════════════════════════════════════

// UserState - состояние прогресса одного пользователя.
// Меняется только через переходы ProgressionEngine: уровень, максимум серии
// и множество значков монотонны и никогда не уменьшаются.
type UserState struct {
	// UserID - ключ пользователя.
	UserID string

	// Level - текущий уровень (минимум 1).
	Level int

	// Exp - накопленный опыт (неотрицательный).
	Exp int

	// CurrentStreak - текущая серия активных дней.
	CurrentStreak int

	// MaxStreak - лучшая серия активных дней.
	MaxStreak int

	// LastStudyDate - дата последнего учебного дня (нулевая, если истории нет).
	LastStudyDate time.Time

	// StreakProtection - количество расходуемых жетонов защиты серии.
	StreakProtection int

	// TotalTasksCompleted - общее количество выполненных задач.
	TotalTasksCompleted int

	// Badges - полученные значки с временем получения.
	// Множество монотонно: значок добавляется не более одного раза.
	Badges map[Badge]time.Time

	// Version - счётчик оптимистичной блокировки.
	// Хранилище отклоняет запись при несовпадении версии.
	Version int

	// UpdatedAt - время последнего изменения.
	UpdatedAt time.Time
}

// NewUserState создаёт начальное состояние пользователя.
func NewUserState(userID string, now time.Time) *UserState {
	return &UserState{
		UserID:    userID,
		Level:     1,
		Badges:    make(map[Badge]time.Time),
		UpdatedAt: now,
	}
}

// HasBadge проверяет, получен ли значок.
func (s *UserState) HasBadge(b Badge) bool {
	_, ok := s.Badges[b]
	return ok
}

// addBadge добавляет значок в множество. Повторное добавление - no-op.
func (s *UserState) addBadge(b Badge, at time.Time) bool {
	if s.HasBadge(b) {
		return false
	}
	if s.Badges == nil {
		s.Badges = make(map[Badge]time.Time)
	}
	s.Badges[b] = at
	return true
}

// BadgeList возвращает значки в порядке возрастания порогов.
func (s *UserState) BadgeList() []Badge {
	out := make([]Badge, 0, len(s.Badges))
	for _, def := range BadgeDefinitions() {
		if s.HasBadge(def.Badge) {
			out = append(out, def.Badge)
		}
	}
	return out
}

// ExpToNextLevel возвращает, сколько опыта осталось до следующего уровня.
func (s *UserState) ExpToNextLevel() int {
	return s.Level*100 - s.Exp
}

// String возвращает строковое представление состояния для логирования.
func (s *UserState) String() string {
	return fmt.Sprintf("UserState{User: %s, Level: %d, Exp: %d, Streak: %d/%d, Badges: %d, V: %d}",
		s.UserID, s.Level, s.Exp, s.CurrentStreak, s.MaxStreak, len(s.Badges), s.Version)
}

// Clone создаёт глубокую копию состояния.
// Движок работает с копией, чтобы вызывающий код сохранял снимок
// до перехода на случай конфликта записи.
func (s *UserState) Clone() *UserState {
	if s == nil {
		return nil
	}

	clone := *s
	clone.Badges = make(map[Badge]time.Time, len(s.Badges))
	for b, at := range s.Badges {
		clone.Badges[b] = at
	}
	return &clone
}
