package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/studyquest-hub/studyquest-backend/internal/domain/progression"
	"github.com/studyquest-hub/studyquest-backend/internal/domain/shared"
	"github.com/studyquest-hub/studyquest-backend/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// USE STREAK PROTECTION COMMAND
// Расход жетона защиты серии: синтетически переносит LastStudyDate на
// сегодня без выполнения задачи. Действительна только при наличии жетонов.
// ══════════════════════════════════════════════════════════════════════════════

// UseStreakProtectionCommand содержит данные команды.
type UseStreakProtectionCommand struct {
	// UserID - ключ пользователя.
	UserID string

	// Now - момент выполнения команды (нулевое = текущее время JST).
	Now time.Time
}

// Validate проверяет корректность команды.
func (c UseStreakProtectionCommand) Validate() error {
	if c.UserID == "" {
		return errors.New("use_streak_protection: user_id is required")
	}
	return nil
}

// UseStreakProtectionResult содержит результат расхода жетона.
type UseStreakProtectionResult struct {
	// TokensLeft - жетонов осталось после расхода.
	TokensLeft int

	// Streak - сохранённая серия.
	Streak int

	// State - состояние пользователя после перехода.
	State *progression.UserState

	// Events - доменные события, порождённые командой.
	Events []shared.Event
}

// UseStreakProtectionHandler обрабатывает UseStreakProtectionCommand.
type UseStreakProtectionHandler struct {
	stateRepo      progression.Repository
	engine         *progression.Engine
	eventPublisher shared.EventPublisher
}

// NewUseStreakProtectionHandler создаёт обработчик расхода жетона.
func NewUseStreakProtectionHandler(
	stateRepo progression.Repository,
	engine *progression.Engine,
	eventPublisher shared.EventPublisher,
) *UseStreakProtectionHandler {
	return &UseStreakProtectionHandler{
		stateRepo:      stateRepo,
		engine:         engine,
		eventPublisher: eventPublisher,
	}
}

// Handle выполняет команду расхода жетона защиты.
func (h *UseStreakProtectionHandler) Handle(ctx context.Context, cmd UseStreakProtectionCommand) (*UseStreakProtectionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("progression", "UseProtection", shared.ErrValidation, "invalid command", err)
	}

	now := cmd.Now
	if now.IsZero() {
		now = timeutil.Now()
	}

	var state *progression.UserState
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		current, err := h.stateRepo.Get(ctx, cmd.UserID)
		if err != nil {
			return nil, err
		}

		next := current.Clone()
		if err := h.engine.UseStreakProtection(next, now); err != nil {
			return nil, err
		}

		err = h.stateRepo.Save(ctx, next)
		if err == nil {
			state = next
			break
		}
		if !shared.IsConflict(err) {
			return nil, fmt.Errorf("use_streak_protection: failed to save state: %w", err)
		}
	}
	if state == nil {
		return nil, shared.ErrUserStateConflict
	}

	result := &UseStreakProtectionResult{
		TokensLeft: state.StreakProtection,
		Streak:     state.CurrentStreak,
		State:      state,
	}

	event := shared.NewStreakProtectedEvent(cmd.UserID, state.StreakProtection, state.CurrentStreak)
	result.Events = append(result.Events, event)
	_ = h.eventPublisher.Publish(event)

	return result, nil
}
