package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/studyquest-hub/studyquest-backend/internal/domain/progression"
	"github.com/studyquest-hub/studyquest-backend/internal/domain/schedule"
	"github.com/studyquest-hub/studyquest-backend/internal/domain/shared"
	"github.com/studyquest-hub/studyquest-backend/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE TASK COMMAND
// Отметка задачи выполненной - единственная точка входа для начисления
// опыта и продвижения серии. Гарантии:
// - неизвестная задача -> мягкий no-op, а не ошибка;
// - повторная отметка уже выполненной задачи -> no-op;
// - снятие и повторная отметка в тот же день не начисляет опыт второй раз
//   (EarnedExp задачи сохраняется при снятии отметки);
// - запись состояния защищена оптимистичной версией: при конфликте переход
//   повторяется от свежего снимка.
// ══════════════════════════════════════════════════════════════════════════════

// maxConflictRetries - число повторов перехода при конфликте версий.
const maxConflictRetries = 3

// CompleteTaskCommand содержит данные отметки выполнения.
type CompleteTaskCommand struct {
	// UserID - ключ пользователя.
	UserID string

	// TaskID - задача, которую отмечают.
	TaskID string

	// Completed - целевое состояние чекбокса (false = снять отметку).
	Completed bool

	// Now - момент выполнения команды (нулевое = текущее время JST).
	Now time.Time
}

// Validate проверяет корректность команды.
func (c CompleteTaskCommand) Validate() error {
	if c.UserID == "" {
		return errors.New("complete_task: user_id is required")
	}
	if c.TaskID == "" {
		return errors.New("complete_task: task_id is required")
	}
	return nil
}

// CompleteTaskResult содержит результат отметки выполнения.
type CompleteTaskResult struct {
	// Applied - изменилось ли что-нибудь (false при no-op).
	Applied bool

	// Task - задача после изменения (nil, если задача не найдена).
	Task *schedule.Task

	// ExpGained - начисленный опыт (0 при no-op и повторной отметке).
	ExpGained int

	// LeveledUp - поднялся ли уровень.
	LeveledUp bool
	NewLevel  int

	// Streak - результат обновления серии.
	Streak progression.StreakResult

	// State - состояние пользователя после перехода (nil при no-op).
	State *progression.UserState

	// Events - доменные события, порождённые командой.
	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CompleteTaskHandler обрабатывает CompleteTaskCommand.
type CompleteTaskHandler struct {
	taskRepo       schedule.Repository
	stateRepo      progression.Repository
	engine         *progression.Engine
	eventPublisher shared.EventPublisher
}

// NewCompleteTaskHandler создаёт обработчик отметки выполнения.
func NewCompleteTaskHandler(
	taskRepo schedule.Repository,
	stateRepo progression.Repository,
	engine *progression.Engine,
	eventPublisher shared.EventPublisher,
) *CompleteTaskHandler {
	return &CompleteTaskHandler{
		taskRepo:       taskRepo,
		stateRepo:      stateRepo,
		engine:         engine,
		eventPublisher: eventPublisher,
	}
}

// Handle выполняет команду отметки выполнения.
func (h *CompleteTaskHandler) Handle(ctx context.Context, cmd CompleteTaskCommand) (*CompleteTaskResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("schedule", "Complete", shared.ErrValidation, "invalid command", err)
	}

	now := cmd.Now
	if now.IsZero() {
		now = timeutil.Now()
	}

	task, err := h.taskRepo.GetByID(ctx, cmd.TaskID)
	if err != nil {
		if shared.IsNotFound(err) {
			// Событие для неизвестной задачи игнорируется.
			return &CompleteTaskResult{Applied: false}, nil
		}
		return nil, fmt.Errorf("complete_task: failed to load task: %w", err)
	}
	if task.UserID != cmd.UserID {
		return &CompleteTaskResult{Applied: false}, nil
	}

	if !cmd.Completed {
		return h.uncomplete(ctx, task)
	}
	return h.complete(ctx, task, now)
}

// uncomplete снимает отметку выполнения. Опыт и серия не откатываются:
// EarnedExp остаётся на задаче как маркер уже состоявшейся награды.
func (h *CompleteTaskHandler) uncomplete(ctx context.Context, task *schedule.Task) (*CompleteTaskResult, error) {
	if !task.MarkUncompleted() {
		return &CompleteTaskResult{Applied: false, Task: task}, nil
	}
	if err := h.taskRepo.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("complete_task: failed to update task: %w", err)
	}
	return &CompleteTaskResult{Applied: true, Task: task}, nil
}

// complete отмечает задачу и при первом осмысленном выполнении начисляет награды.
func (h *CompleteTaskHandler) complete(ctx context.Context, task *schedule.Task, now time.Time) (*CompleteTaskResult, error) {
	if !task.MarkCompleted(now) {
		// Уже выполнена - идемпотентный no-op.
		return &CompleteTaskResult{Applied: false, Task: task}, nil
	}

	// Повторная отметка после снятия: опыт уже начислялся, только чекбокс.
	if task.AlreadyRewarded() {
		if err := h.taskRepo.Update(ctx, task); err != nil {
			return nil, fmt.Errorf("complete_task: failed to update task: %w", err)
		}
		return &CompleteTaskResult{Applied: true, Task: task}, nil
	}

	// Маркер награды пишется раньше состояния: если запись состояния
	// оборвётся, повторная отметка увидит EarnedExp и не начислит опыт
	// второй раз.
	task.EarnedExp = progression.CalculateExp(task)
	if err := h.taskRepo.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("complete_task: failed to update task: %w", err)
	}

	// Предохранитель серии: счётчик выполнений за сегодня берётся из
	// хранилища задач и включает только что записанную отметку.
	completedToday, err := h.taskRepo.CountCompletedOnDay(ctx, task.UserID, now)
	if err != nil {
		return nil, fmt.Errorf("complete_task: failed to count completions: %w", err)
	}

	completion, state, err := h.applyTransition(ctx, task, completedToday, now)
	if err != nil {
		return nil, err
	}

	result := &CompleteTaskResult{
		Applied:   true,
		Task:      task,
		ExpGained: completion.ExpGained,
		LeveledUp: completion.LeveledUp,
		NewLevel:  completion.NewLevel,
		Streak:    completion.Streak,
		State:     state,
	}
	h.emitEvents(task, completion, result)

	return result, nil
}

// applyTransition выполняет переход движка с повтором при конфликте версий.
// Каждая попытка начинается со свежего снимка состояния.
func (h *CompleteTaskHandler) applyTransition(
	ctx context.Context,
	task *schedule.Task,
	completedToday int,
	now time.Time,
) (progression.CompletionResult, *progression.UserState, error) {
	var completion progression.CompletionResult

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		state, err := h.stateRepo.GetOrCreate(ctx, task.UserID)
		if err != nil {
			return completion, nil, fmt.Errorf("complete_task: failed to load state: %w", err)
		}

		completion = h.engine.CompleteTask(state, task, completedToday, now)

		err = h.stateRepo.Save(ctx, completion.State)
		if err == nil {
			return completion, completion.State, nil
		}
		if !shared.IsConflict(err) {
			return completion, nil, fmt.Errorf("complete_task: failed to save state: %w", err)
		}
	}

	return completion, nil, shared.ErrUserStateConflict
}

// emitEvents публикует события перехода: не более одного на каждый факт.
func (h *CompleteTaskHandler) emitEvents(task *schedule.Task, completion progression.CompletionResult, result *CompleteTaskResult) {
	result.Events = append(result.Events,
		shared.NewTaskCompletedEvent(task.UserID, task.ID, task.ExamID, completion.ExpGained))

	if completion.LeveledUp {
		result.Events = append(result.Events,
			shared.NewLeveledUpEvent(task.UserID, completion.OldLevel, completion.NewLevel, completion.State.Exp))
	}

	for _, badge := range completion.Streak.NewBadges {
		result.Events = append(result.Events,
			shared.NewBadgeEarnedEvent(task.UserID, string(badge), completion.Streak.NewStreak))
	}

	if completion.Streak.IsNewRecord {
		// Серия растёт по одному дню, так что прежний рекорд = newStreak - 1.
		result.Events = append(result.Events,
			shared.NewStreakRecordEvent(task.UserID, completion.Streak.NewStreak, completion.Streak.NewStreak-1))
	}

	if completion.Streak.Broken {
		result.Events = append(result.Events,
			shared.NewStreakBrokenEvent(task.UserID, completion.Streak.PreviousStreak, completion.Streak.DaysMissed))
	}

	for _, event := range result.Events {
		_ = h.eventPublisher.Publish(event)
	}
}
