package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyquest-hub/studyquest-backend/internal/application/command"
	"github.com/studyquest-hub/studyquest-backend/internal/application/query"
	"github.com/studyquest-hub/studyquest-backend/internal/domain/exam"
	"github.com/studyquest-hub/studyquest-backend/internal/domain/progression"
	"github.com/studyquest-hub/studyquest-backend/internal/domain/schedule"
	"github.com/studyquest-hub/studyquest-backend/internal/domain/shared"
	"github.com/studyquest-hub/studyquest-backend/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY FAKES
// ══════════════════════════════════════════════════════════════════════════════

type memExamRepo struct {
	mu    sync.Mutex
	exams map[string]*exam.Exam
}

func newMemExamRepo() *memExamRepo {
	return &memExamRepo{exams: make(map[string]*exam.Exam)}
}

func (r *memExamRepo) Create(ctx context.Context, e *exam.Exam) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.exams[e.ID]; ok {
		return shared.ErrExamAlreadyExists
	}
	r.exams[e.ID] = e
	return nil
}

func (r *memExamRepo) GetByID(ctx context.Context, id string) (*exam.Exam, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.exams[id]
	if !ok {
		return nil, shared.ErrExamNotFound
	}
	return e, nil
}

func (r *memExamRepo) GetByUser(ctx context.Context, userID string) ([]*exam.Exam, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*exam.Exam
	for _, e := range r.exams {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *memExamRepo) GetUpcoming(ctx context.Context, userID string, from time.Time) ([]*exam.Exam, error) {
	all, _ := r.GetByUser(ctx, userID)
	var out []*exam.Exam
	for _, e := range all {
		if !e.Date.Before(from) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memExamRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.exams[id]; !ok {
		return shared.ErrExamNotFound
	}
	delete(r.exams, id)
	return nil
}

type memTaskRepo struct {
	mu    sync.Mutex
	tasks map[string]*schedule.Task
}

func newMemTaskRepo() *memTaskRepo {
	return &memTaskRepo{tasks: make(map[string]*schedule.Task)}
}

func (r *memTaskRepo) SaveBatch(ctx context.Context, tasks []*schedule.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tasks {
		r.tasks[t.ID] = t
	}
	return nil
}

func (r *memTaskRepo) GetByID(ctx context.Context, id string) (*schedule.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, shared.ErrTaskNotFound
	}
	clone := *t
	return &clone, nil
}

func (r *memTaskRepo) GetByExam(ctx context.Context, examID string) ([]*schedule.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*schedule.Task
	for _, t := range r.tasks {
		if t.ExamID == examID {
			clone := *t
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledDate.Before(out[j].ScheduledDate) })
	return out, nil
}

func (r *memTaskRepo) GetByUserAndDay(ctx context.Context, userID string, day time.Time) ([]*schedule.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*schedule.Task
	for _, t := range r.tasks {
		if t.UserID == userID && timeutil.SameDay(t.ScheduledDate, day) {
			clone := *t
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *memTaskRepo) Update(ctx context.Context, task *schedule.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[task.ID]; !ok {
		return shared.ErrTaskNotFound
	}
	clone := *task
	r.tasks[task.ID] = &clone
	return nil
}

func (r *memTaskRepo) CountCompletedOnDay(ctx context.Context, userID string, day time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, t := range r.tasks {
		if t.UserID == userID && t.Completed && timeutil.SameDay(t.CompletedAt, day) {
			count++
		}
	}
	return count, nil
}

func (r *memTaskRepo) DeleteByExam(ctx context.Context, examID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.tasks {
		if t.ExamID == examID {
			delete(r.tasks, id)
		}
	}
	return nil
}

type memStateRepo struct {
	mu     sync.Mutex
	states map[string]*progression.UserState
}

func newMemStateRepo() *memStateRepo {
	return &memStateRepo{states: make(map[string]*progression.UserState)}
}

func (r *memStateRepo) Get(ctx context.Context, userID string) (*progression.UserState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[userID]
	if !ok {
		return nil, shared.ErrUserStateNotFound
	}
	return st.Clone(), nil
}

func (r *memStateRepo) GetOrCreate(ctx context.Context, userID string) (*progression.UserState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[userID]
	if !ok {
		st = progression.NewUserState(userID, timeutil.Now())
		r.states[userID] = st
	}
	return st.Clone(), nil
}

func (r *memStateRepo) Save(ctx context.Context, st *progression.UserState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.states[st.UserID]
	if !ok || current.Version != st.Version {
		return shared.ErrUserStateConflict
	}
	st.Version++
	r.states[st.UserID] = st.Clone()
	return nil
}

func (r *memStateRepo) GetAll(ctx context.Context) ([]*progression.UserState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*progression.UserState
	for _, st := range r.states {
		out = append(out, st.Clone())
	}
	return out, nil
}

func (r *memStateRepo) GetTopStreaks(ctx context.Context, limit int) ([]*progression.UserState, error) {
	all, _ := r.GetAll(ctx)
	sort.Slice(all, func(i, j int) bool { return all[i].CurrentStreak > all[j].CurrentStreak })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(event shared.Event) error { return nil }

// ══════════════════════════════════════════════════════════════════════════════
// TEST SERVER SETUP
// ══════════════════════════════════════════════════════════════════════════════

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	examRepo := newMemExamRepo()
	taskRepo := newMemTaskRepo()
	stateRepo := newMemStateRepo()
	engine := progression.NewEngine(progression.BadgeModeHighest)
	publisher := nopPublisher{}

	deps := Dependencies{
		CreateExamHandler:          command.NewCreateExamHandler(examRepo, taskRepo, nil, publisher),
		DeleteExamHandler:          command.NewDeleteExamHandler(examRepo, taskRepo),
		CompleteTaskHandler:        command.NewCompleteTaskHandler(taskRepo, stateRepo, engine, publisher),
		UseStreakProtectionHandler: command.NewUseStreakProtectionHandler(stateRepo, engine, publisher),
		ListExamsHandler:           query.NewListExamsHandler(examRepo),
		GetExamPlanHandler:         query.NewGetExamPlanHandler(examRepo, taskRepo),
		GetDailyPlanHandler:        query.NewGetDailyPlanHandler(taskRepo, examRepo),
		GetProgressHandler:         query.NewGetProgressHandler(stateRepo),
		GetStreakStatusHandler:     query.NewGetStreakStatusHandler(stateRepo, engine),
		GetTopStreaksHandler:       query.NewGetTopStreaksHandler(stateRepo),
	}

	srv := NewServer(DefaultConfig(), deps)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func doRequest(t *testing.T, ts *httptest.Server, method, path, userID string, body interface{}) (*http.Response, json.RawMessage) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *APIError       `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return resp, envelope.Data
}

func createExamPayload(date string) map[string]interface{} {
	return map[string]interface{}{
		"name": "期末テスト",
		"date": date,
		"subjects": []map[string]interface{}{
			{"name": "数学II", "range": "p.10-45", "workbook_pages": 36},
			{"name": "英語", "range": "Unit 3-5", "workbook_pages": 20},
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func TestServer_CreateExamAndGetPlan(t *testing.T) {
	ts := newTestServer(t)
	examDate := timeutil.FormatDate(timeutil.AddDays(timeutil.Now(), 10))

	resp, data := doRequest(t, ts, http.MethodPost, "/api/v1/exams", "user-1", createExamPayload(examDate))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		IsUrgent   bool   `json:"is_urgent"`
		TotalTasks int    `json:"total_tasks"`
	}
	require.NoError(t, json.Unmarshal(data, &created))
	assert.Equal(t, "期末テスト", created.Name)
	assert.False(t, created.IsUrgent)
	assert.Greater(t, created.TotalTasks, 0)

	resp, data = doRequest(t, ts, http.MethodGet, "/api/v1/exams/"+created.ID+"/tasks", "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var plan query.ExamPlanDTO
	require.NoError(t, json.Unmarshal(data, &plan))
	assert.Equal(t, created.ID, plan.ID)
	assert.Equal(t, created.TotalTasks, plan.TotalTasks)
	assert.Len(t, plan.Subjects, 2)
	assert.Zero(t, plan.CompletedTasks)

	resp, data = doRequest(t, ts, http.MethodGet, "/api/v1/exams", "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list query.ListExamsResult
	require.NoError(t, json.Unmarshal(data, &list))
	assert.Len(t, list.Exams, 1)
}

func TestServer_ExamOwnershipIsEnforced(t *testing.T) {
	ts := newTestServer(t)
	examDate := timeutil.FormatDate(timeutil.AddDays(timeutil.Now(), 7))

	_, data := doRequest(t, ts, http.MethodPost, "/api/v1/exams", "owner", createExamPayload(examDate))
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(data, &created))

	resp, _ := doRequest(t, ts, http.MethodGet, "/api/v1/exams/"+created.ID+"/tasks", "intruder", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doRequest(t, ts, http.MethodDelete, "/api/v1/exams/"+created.ID, "intruder", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doRequest(t, ts, http.MethodDelete, "/api/v1/exams/"+created.ID, "owner", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_CompleteTaskFlow(t *testing.T) {
	ts := newTestServer(t)
	examDate := timeutil.FormatDate(timeutil.AddDays(timeutil.Now(), 5))

	_, data := doRequest(t, ts, http.MethodPost, "/api/v1/exams", "user-1", createExamPayload(examDate))
	var created struct {
		Tasks []query.TaskDTO `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(data, &created))
	require.NotEmpty(t, created.Tasks)
	taskID := created.Tasks[0].ID

	resp, data := doRequest(t, ts, http.MethodPost, "/api/v1/tasks/"+taskID+"/complete", "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var completed completeTaskResponse
	require.NoError(t, json.Unmarshal(data, &completed))
	assert.True(t, completed.Applied)
	assert.Greater(t, completed.ExpGained, 0)
	assert.Equal(t, 1, completed.CurrentStreak)

	// Repeated completion is a no-op
	resp, data = doRequest(t, ts, http.MethodPost, "/api/v1/tasks/"+taskID+"/complete", "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(data, &completed))
	assert.False(t, completed.Applied)

	resp, data = doRequest(t, ts, http.MethodGet, "/api/v1/progress", "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var progress query.GetProgressResult
	require.NoError(t, json.Unmarshal(data, &progress))
	assert.Equal(t, 1, progress.TotalTasksCompleted)
	assert.Greater(t, progress.Exp, 0)
}

func TestServer_UncompleteKeepsEarnedExp(t *testing.T) {
	ts := newTestServer(t)
	examDate := timeutil.FormatDate(timeutil.AddDays(timeutil.Now(), 5))

	_, data := doRequest(t, ts, http.MethodPost, "/api/v1/exams", "user-1", createExamPayload(examDate))
	var created struct {
		Tasks []query.TaskDTO `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(data, &created))
	taskID := created.Tasks[0].ID

	doRequest(t, ts, http.MethodPost, "/api/v1/tasks/"+taskID+"/complete", "user-1", nil)

	resp, data := doRequest(t, ts, http.MethodDelete, "/api/v1/tasks/"+taskID+"/complete", "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var uncompleted completeTaskResponse
	require.NoError(t, json.Unmarshal(data, &uncompleted))
	assert.True(t, uncompleted.Applied)
	require.NotNil(t, uncompleted.Task)
	assert.False(t, uncompleted.Task.Completed)

	// Re-completing the same day must not grant exp twice
	resp, data = doRequest(t, ts, http.MethodPost, "/api/v1/tasks/"+taskID+"/complete", "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var recompleted completeTaskResponse
	require.NoError(t, json.Unmarshal(data, &recompleted))
	assert.True(t, recompleted.Applied)
	assert.Zero(t, recompleted.ExpGained)
}

func TestServer_DailyPlanAndStreakStatus(t *testing.T) {
	ts := newTestServer(t)
	examDate := timeutil.FormatDate(timeutil.AddDays(timeutil.Now(), 3))

	doRequest(t, ts, http.MethodPost, "/api/v1/exams", "user-1", createExamPayload(examDate))

	resp, data := doRequest(t, ts, http.MethodGet, "/api/v1/plan", "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var plan query.GetDailyPlanResult
	require.NoError(t, json.Unmarshal(data, &plan))
	assert.NotEmpty(t, plan.Tasks)
	assert.Greater(t, plan.TotalMinutes, 0)
	assert.NotEmpty(t, plan.UpcomingExams)

	resp, data = doRequest(t, ts, http.MethodGet, "/api/v1/streak", "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var streak query.GetStreakStatusResult
	require.NoError(t, json.Unmarshal(data, &streak))
	assert.Zero(t, streak.CurrentStreak)
	assert.NotEmpty(t, streak.Message)
}

func TestServer_RequiresUserHeader(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/api/v1/plan", "/api/v1/progress", "/api/v1/streak", "/api/v1/exams"} {
		resp, _ := doRequest(t, ts, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestServer_ValidationErrors(t *testing.T) {
	ts := newTestServer(t)

	// Missing subjects
	resp, _ := doRequest(t, ts, http.MethodPost, "/api/v1/exams", "user-1", map[string]interface{}{
		"name": "テスト",
		"date": timeutil.FormatDate(timeutil.AddDays(timeutil.Now(), 3)),
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Malformed date
	resp, _ = doRequest(t, ts, http.MethodPost, "/api/v1/exams", "user-1", createExamPayload("03/15/2026"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Bad plan date
	resp, _ = doRequest(t, ts, http.MethodGet, "/api/v1/plan?date=tomorrow", "user-1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_HealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/health", "/healthz", "/ready", "/live"} {
		resp, err := ts.Client().Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestServer_UnknownExamIs404(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := doRequest(t, ts, http.MethodGet, fmt.Sprintf("/api/v1/exams/%s/tasks", "does-not-exist"), "user-1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
