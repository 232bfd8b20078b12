package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyquest-hub/studyquest-backend/internal/domain/progression"
	"github.com/studyquest-hub/studyquest-backend/internal/domain/schedule"
	"github.com/studyquest-hub/studyquest-backend/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY FAKES
// ══════════════════════════════════════════════════════════════════════════════

type fakeTaskRepo struct {
	tasks map[string]*schedule.Task
}

func newFakeTaskRepo(tasks ...*schedule.Task) *fakeTaskRepo {
	r := &fakeTaskRepo{tasks: make(map[string]*schedule.Task)}
	for _, t := range tasks {
		r.tasks[t.ID] = t
	}
	return r
}

func (r *fakeTaskRepo) SaveBatch(_ context.Context, tasks []*schedule.Task) error {
	for _, t := range tasks {
		r.tasks[t.ID] = t
	}
	return nil
}

func (r *fakeTaskRepo) GetByID(_ context.Context, id string) (*schedule.Task, error) {
	t, ok := r.tasks[id]
	if !ok {
		return nil, shared.ErrTaskNotFound
	}
	return t, nil
}

func (r *fakeTaskRepo) GetByExam(_ context.Context, examID string) ([]*schedule.Task, error) {
	var out []*schedule.Task
	for _, t := range r.tasks {
		if t.ExamID == examID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeTaskRepo) GetByUserAndDay(_ context.Context, userID string, day time.Time) ([]*schedule.Task, error) {
	var out []*schedule.Task
	for _, t := range r.tasks {
		if t.UserID == userID && t.ScheduledDate.Equal(day) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeTaskRepo) Update(_ context.Context, task *schedule.Task) error {
	if _, ok := r.tasks[task.ID]; !ok {
		return shared.ErrTaskNotFound
	}
	r.tasks[task.ID] = task
	return nil
}

func (r *fakeTaskRepo) CountCompletedOnDay(_ context.Context, userID string, day time.Time) (int, error) {
	count := 0
	for _, t := range r.tasks {
		if t.UserID == userID && t.Completed && sameCalendarDay(t.CompletedAt, day) {
			count++
		}
	}
	return count, nil
}

func (r *fakeTaskRepo) DeleteByExam(_ context.Context, examID string) error {
	for id, t := range r.tasks {
		if t.ExamID == examID {
			delete(r.tasks, id)
		}
	}
	return nil
}

func sameCalendarDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// fakeStateRepo реализует CAS-семантику Save и позволяет инъектировать
// заданное число конфликтов подряд или постоянную ошибку записи.
type fakeStateRepo struct {
	states        map[string]*progression.UserState
	conflictsLeft int
	saveErr       error
	saveCalls     int
}

func newFakeStateRepo() *fakeStateRepo {
	return &fakeStateRepo{states: make(map[string]*progression.UserState)}
}

func (r *fakeStateRepo) Get(_ context.Context, userID string) (*progression.UserState, error) {
	st, ok := r.states[userID]
	if !ok {
		return nil, shared.ErrUserStateNotFound
	}
	return st.Clone(), nil
}

func (r *fakeStateRepo) GetOrCreate(_ context.Context, userID string) (*progression.UserState, error) {
	if st, ok := r.states[userID]; ok {
		return st.Clone(), nil
	}
	st := progression.NewUserState(userID, time.Now())
	r.states[userID] = st
	return st.Clone(), nil
}

func (r *fakeStateRepo) Save(_ context.Context, st *progression.UserState) error {
	r.saveCalls++
	if r.saveErr != nil {
		return r.saveErr
	}
	if r.conflictsLeft > 0 {
		r.conflictsLeft--
		return shared.ErrUserStateConflict
	}
	stored, ok := r.states[st.UserID]
	if ok && stored.Version != st.Version {
		return shared.ErrUserStateConflict
	}
	saved := st.Clone()
	saved.Version++
	r.states[st.UserID] = saved
	st.Version = saved.Version
	return nil
}

func (r *fakeStateRepo) GetAll(_ context.Context) ([]*progression.UserState, error) {
	out := make([]*progression.UserState, 0, len(r.states))
	for _, st := range r.states {
		out = append(out, st.Clone())
	}
	return out, nil
}

func (r *fakeStateRepo) GetTopStreaks(_ context.Context, limit int) ([]*progression.UserState, error) {
	all, _ := r.GetAll(context.Background())
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// fakePublisher собирает опубликованные события.
type fakePublisher struct {
	events []shared.Event
}

func (p *fakePublisher) Publish(event shared.Event) error {
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) eventTypes() []shared.EventType {
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func studyTask(id string) *schedule.Task {
	return &schedule.Task{
		ID:               id,
		ExamID:           "exam-1",
		UserID:           "user-1",
		Title:            "数学 ワーク P.1〜3",
		SubjectName:      "数学",
		ScheduledDate:    time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		Priority:         schedule.PriorityHigh,
		EstimatedMinutes: 40,
		Type:             schedule.TypeStudy,
	}
}

func newHandler(taskRepo *fakeTaskRepo, stateRepo *fakeStateRepo, pub *fakePublisher) *CompleteTaskHandler {
	engine := progression.NewEngine(progression.BadgeModeHighest)
	return NewCompleteTaskHandler(taskRepo, stateRepo, engine, pub)
}

func TestCompleteTask_FirstCompletion(t *testing.T) {
	taskRepo := newFakeTaskRepo(studyTask("task-1"))
	stateRepo := newFakeStateRepo()
	pub := &fakePublisher{}
	h := newHandler(taskRepo, stateRepo, pub)

	now := time.Date(2026, 6, 1, 19, 0, 0, 0, time.UTC)
	res, err := h.Handle(context.Background(), CompleteTaskCommand{
		UserID: "user-1", TaskID: "task-1", Completed: true, Now: now,
	})
	require.NoError(t, err)

	assert.True(t, res.Applied)
	assert.Equal(t, 20, res.ExpGained)
	assert.Equal(t, 1, res.Streak.NewStreak)
	assert.True(t, res.Streak.IsNewRecord)

	// Задача сохранила начисленный опыт.
	saved, _ := taskRepo.GetByID(context.Background(), "task-1")
	assert.True(t, saved.Completed)
	assert.Equal(t, 20, saved.EarnedExp)

	// Состояние записано с переходом версии.
	state, err := stateRepo.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 20, state.Exp)
	assert.Equal(t, 1, state.TotalTasksCompleted)
	assert.Equal(t, 1, state.Version)

	assert.Contains(t, pub.eventTypes(), shared.EventTaskCompleted)
	assert.Contains(t, pub.eventTypes(), shared.EventStreakRecord)
}

func TestCompleteTask_UnknownTaskIsNoOp(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	stateRepo := newFakeStateRepo()
	pub := &fakePublisher{}
	h := newHandler(taskRepo, stateRepo, pub)

	res, err := h.Handle(context.Background(), CompleteTaskCommand{
		UserID: "user-1", TaskID: "ghost", Completed: true,
	})
	require.NoError(t, err)

	assert.False(t, res.Applied)
	assert.Empty(t, pub.events)
}

func TestCompleteTask_ForeignTaskIsNoOp(t *testing.T) {
	task := studyTask("task-1")
	task.UserID = "someone-else"
	h := newHandler(newFakeTaskRepo(task), newFakeStateRepo(), &fakePublisher{})

	res, err := h.Handle(context.Background(), CompleteTaskCommand{
		UserID: "user-1", TaskID: "task-1", Completed: true,
	})
	require.NoError(t, err)
	assert.False(t, res.Applied)
}

func TestCompleteTask_RepeatCompletionIsNoOp(t *testing.T) {
	taskRepo := newFakeTaskRepo(studyTask("task-1"))
	stateRepo := newFakeStateRepo()
	pub := &fakePublisher{}
	h := newHandler(taskRepo, stateRepo, pub)

	now := time.Date(2026, 6, 1, 19, 0, 0, 0, time.UTC)
	cmd := CompleteTaskCommand{UserID: "user-1", TaskID: "task-1", Completed: true, Now: now}

	first, err := h.Handle(context.Background(), cmd)
	require.NoError(t, err)
	require.True(t, first.Applied)

	second, err := h.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.Equal(t, 0, second.ExpGained)

	state, _ := stateRepo.Get(context.Background(), "user-1")
	assert.Equal(t, 20, state.Exp)
	assert.Equal(t, 1, state.TotalTasksCompleted)
}

// Снятие отметки и повторная отметка в тот же день: чекбокс меняется,
// но опыт не начисляется второй раз.
func TestCompleteTask_ToggleOffOnSameDay(t *testing.T) {
	taskRepo := newFakeTaskRepo(studyTask("task-1"))
	stateRepo := newFakeStateRepo()
	pub := &fakePublisher{}
	h := newHandler(taskRepo, stateRepo, pub)

	now := time.Date(2026, 6, 1, 19, 0, 0, 0, time.UTC)

	_, err := h.Handle(context.Background(), CompleteTaskCommand{
		UserID: "user-1", TaskID: "task-1", Completed: true, Now: now,
	})
	require.NoError(t, err)

	off, err := h.Handle(context.Background(), CompleteTaskCommand{
		UserID: "user-1", TaskID: "task-1", Completed: false, Now: now,
	})
	require.NoError(t, err)
	assert.True(t, off.Applied)
	assert.False(t, off.Task.Completed)
	// EarnedExp сохраняется как маркер состоявшейся награды.
	assert.Equal(t, 20, off.Task.EarnedExp)

	on, err := h.Handle(context.Background(), CompleteTaskCommand{
		UserID: "user-1", TaskID: "task-1", Completed: true, Now: now.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, on.Applied)
	assert.Equal(t, 0, on.ExpGained)

	state, _ := stateRepo.Get(context.Background(), "user-1")
	assert.Equal(t, 20, state.Exp)
	assert.Equal(t, 1, state.TotalTasksCompleted)
}

// Две разные задачи в один день: опыт суммируется, серия двигается один раз.
func TestCompleteTask_TwoTasksSameDay(t *testing.T) {
	taskRepo := newFakeTaskRepo(studyTask("task-1"), studyTask("task-2"))
	stateRepo := newFakeStateRepo()
	pub := &fakePublisher{}
	h := newHandler(taskRepo, stateRepo, pub)

	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	first, err := h.Handle(context.Background(), CompleteTaskCommand{
		UserID: "user-1", TaskID: "task-1", Completed: true, Now: now,
	})
	require.NoError(t, err)
	assert.True(t, first.Streak.Updated)

	second, err := h.Handle(context.Background(), CompleteTaskCommand{
		UserID: "user-1", TaskID: "task-2", Completed: true, Now: now.Add(3 * time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, second.Applied)
	assert.Equal(t, 20, second.ExpGained)
	assert.False(t, second.Streak.Updated)

	state, _ := stateRepo.Get(context.Background(), "user-1")
	assert.Equal(t, 40, state.Exp)
	assert.Equal(t, 1, state.CurrentStreak)
	assert.Equal(t, 2, state.TotalTasksCompleted)
}

// Конфликт версий: переход повторяется от свежего снимка и завершается успехом.
func TestCompleteTask_RetriesOnConflict(t *testing.T) {
	taskRepo := newFakeTaskRepo(studyTask("task-1"))
	stateRepo := newFakeStateRepo()
	stateRepo.conflictsLeft = 2
	pub := &fakePublisher{}
	h := newHandler(taskRepo, stateRepo, pub)

	res, err := h.Handle(context.Background(), CompleteTaskCommand{
		UserID: "user-1", TaskID: "task-1", Completed: true,
		Now: time.Date(2026, 6, 1, 19, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.True(t, res.Applied)
	assert.Equal(t, 3, stateRepo.saveCalls)

	state, _ := stateRepo.Get(context.Background(), "user-1")
	assert.Equal(t, 20, state.Exp)
}

// Сбой записи состояния: маркер награды уже на задаче, поэтому повторная
// попытка не начисляет опыт второй раз.
func TestCompleteTask_FailedStateSaveDoesNotDoubleAward(t *testing.T) {
	taskRepo := newFakeTaskRepo(studyTask("task-1"))
	stateRepo := newFakeStateRepo()
	stateRepo.saveErr = errors.New("connection reset")
	pub := &fakePublisher{}
	h := newHandler(taskRepo, stateRepo, pub)

	now := time.Date(2026, 6, 1, 19, 0, 0, 0, time.UTC)
	cmd := CompleteTaskCommand{UserID: "user-1", TaskID: "task-1", Completed: true, Now: now}

	_, err := h.Handle(context.Background(), cmd)
	require.Error(t, err)

	// Отметка и маркер записаны до состояния.
	saved, _ := taskRepo.GetByID(context.Background(), "task-1")
	assert.True(t, saved.Completed)
	assert.Equal(t, 20, saved.EarnedExp)
	assert.Empty(t, pub.events)

	// Хранилище снова доступно: снятие и повторная отметка дают чекбокс,
	// но не второй опыт.
	stateRepo.saveErr = nil

	off, err := h.Handle(context.Background(), CompleteTaskCommand{
		UserID: "user-1", TaskID: "task-1", Completed: false, Now: now,
	})
	require.NoError(t, err)
	require.True(t, off.Applied)

	on, err := h.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.True(t, on.Applied)
	assert.Equal(t, 0, on.ExpGained)

	state, err := stateRepo.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, state.Exp)
}

func TestCompleteTask_GivesUpAfterMaxConflicts(t *testing.T) {
	taskRepo := newFakeTaskRepo(studyTask("task-1"))
	stateRepo := newFakeStateRepo()
	stateRepo.conflictsLeft = maxConflictRetries
	h := newHandler(taskRepo, stateRepo, &fakePublisher{})

	_, err := h.Handle(context.Background(), CompleteTaskCommand{
		UserID: "user-1", TaskID: "task-1", Completed: true,
		Now: time.Date(2026, 6, 1, 19, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, shared.ErrOptimisticLock)
}

func TestCompleteTask_Validation(t *testing.T) {
	h := newHandler(newFakeTaskRepo(), newFakeStateRepo(), &fakePublisher{})

	_, err := h.Handle(context.Background(), CompleteTaskCommand{TaskID: "task-1"})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(context.Background(), CompleteTaskCommand{UserID: "user-1"})
	assert.True(t, shared.IsValidation(err))
}
