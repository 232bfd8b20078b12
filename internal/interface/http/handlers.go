package http

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/studyquest-hub/studyquest-backend/internal/application/command"
	"github.com/studyquest-hub/studyquest-backend/internal/application/query"
	"github.com/studyquest-hub/studyquest-backend/internal/domain/shared"
	"github.com/studyquest-hub/studyquest-backend/pkg/logger"
	"github.com/studyquest-hub/studyquest-backend/pkg/timeutil"
)

// maxBodyBytes caps request bodies; study plans are small.
const maxBodyBytes = 256 * 1024

// userIDHeader carries the caller identity. The API sits behind a gateway
// that authenticates users and injects this header.
const userIDHeader = "X-User-ID"

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":        "StudyQuest API",
		"version":     "v1",
		"description": "REST API for StudyQuest - exam planning and study gamification",
		"endpoints": map[string]string{
			"health":   "/health",
			"exams":    "/api/v1/exams",
			"plan":     "/api/v1/plan",
			"progress": "/api/v1/progress",
			"streak":   "/api/v1/streak",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "healthy",
			"uptime":  s.Uptime().String(),
			"version": "v1",
		})
		return
	}

	checks := s.deps.HealthChecker.CheckHealth(r.Context())
	components := make(map[string]string, len(checks))
	healthy := true
	for name, err := range checks {
		if err != nil {
			components[name] = err.Error()
			healthy = false
		} else {
			components[name] = "ok"
		}
	}

	status := http.StatusOK
	statusText := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		statusText = "degraded"
	}

	writeJSON(w, status, map[string]interface{}{
		"status":     statusText,
		"uptime":     s.Uptime().String(),
		"components": components,
	})
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		for name, err := range s.deps.HealthChecker.CheckHealth(r.Context()) {
			if err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "not_ready",
					"reason": name + ": " + err.Error(),
				})
				return
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// EXAM HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// createExamRequest is the request body for POST /api/v1/exams.
type createExamRequest struct {
	Name     string `json:"name"`
	Date     string `json:"date"` // "2006-01-02"
	Subjects []struct {
		Name          string `json:"name"`
		Range         string `json:"range"`
		WorkbookPages int    `json:"workbook_pages"`
	} `json:"subjects"`
}

// createExamResponse is the response body for POST /api/v1/exams.
type createExamResponse struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Date       string          `json:"date"`
	IsUrgent   bool            `json:"is_urgent"`
	TotalTasks int             `json:"total_tasks"`
	Tasks      []query.TaskDTO `json:"tasks"`
}

// handleCreateExam handles POST /api/v1/exams
func (s *Server) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var req createExamRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	examDate, err := timeutil.ParseDate(req.Date)
	if err != nil {
		writeJSONErrorWithDetails(w, http.StatusBadRequest, "invalid_request", "Invalid exam date", "expected format: 2006-01-02")
		return
	}

	cmd := command.CreateExamCommand{
		UserID: userID,
		Name:   req.Name,
		Date:   examDate,
	}
	for _, subj := range req.Subjects {
		cmd.Subjects = append(cmd.Subjects, command.SubjectInput{
			Name:          subj.Name,
			Range:         subj.Range,
			WorkbookPages: subj.WorkbookPages,
		})
	}

	result, err := s.deps.CreateExamHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to create exam")
		return
	}

	resp := createExamResponse{
		ID:         result.Exam.ID,
		Name:       result.Exam.Name,
		Date:       timeutil.FormatDate(result.Exam.Date),
		IsUrgent:   result.IsUrgent,
		TotalTasks: len(result.Tasks),
		Tasks:      make([]query.TaskDTO, 0, len(result.Tasks)),
	}
	for _, t := range result.Tasks {
		resp.Tasks = append(resp.Tasks, query.ToTaskDTO(t))
	}

	writeJSON(w, http.StatusCreated, resp)
}

// handleListExams handles GET /api/v1/exams
func (s *Server) handleListExams(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	q := query.ListExamsQuery{
		UserID:       userID,
		UpcomingOnly: getQueryParamBool(r, "upcoming"),
	}

	result, err := s.deps.ListExamsHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to list exams")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetExamPlan handles GET /api/v1/exams/{id}/tasks
func (s *Server) handleGetExamPlan(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	examID := r.PathValue("id")
	if examID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Exam ID is required")
		return
	}

	result, err := s.deps.GetExamPlanHandler.Handle(r.Context(), query.GetExamPlanQuery{
		UserID: userID,
		ExamID: examID,
	})
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get exam plan")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleDeleteExam handles DELETE /api/v1/exams/{id}
func (s *Server) handleDeleteExam(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	examID := r.PathValue("id")
	if examID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Exam ID is required")
		return
	}

	err := s.deps.DeleteExamHandler.Handle(r.Context(), command.DeleteExamCommand{
		UserID: userID,
		ExamID: examID,
	})
	if err != nil {
		s.writeDomainError(w, r, err, "failed to delete exam")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleGetDailyPlan handles GET /api/v1/plan?date=2006-01-02
func (s *Server) handleGetDailyPlan(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	q := query.GetDailyPlanQuery{UserID: userID}
	if raw := getQueryParam(r, "date", ""); raw != "" {
		date, err := timeutil.ParseDate(raw)
		if err != nil {
			writeJSONErrorWithDetails(w, http.StatusBadRequest, "invalid_request", "Invalid plan date", "expected format: 2006-01-02")
			return
		}
		q.Date = date
	}

	result, err := s.deps.GetDailyPlanHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get daily plan")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// TASK HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// completeTaskResponse is the response body for task completion endpoints.
type completeTaskResponse struct {
	Applied       bool           `json:"applied"`
	Task          *query.TaskDTO `json:"task,omitempty"`
	ExpGained     int            `json:"exp_gained"`
	LeveledUp     bool           `json:"leveled_up"`
	NewLevel      int            `json:"new_level,omitempty"`
	CurrentStreak int            `json:"current_streak"`
	StreakRecord  bool           `json:"streak_record"`
}

// handleCompleteTask handles POST /api/v1/tasks/{id}/complete
func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	s.handleTaskCompletion(w, r, true)
}

// handleUncompleteTask handles DELETE /api/v1/tasks/{id}/complete
func (s *Server) handleUncompleteTask(w http.ResponseWriter, r *http.Request) {
	s.handleTaskCompletion(w, r, false)
}

// handleTaskCompletion is the internal implementation for both completion endpoints.
func (s *Server) handleTaskCompletion(w http.ResponseWriter, r *http.Request, completed bool) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	taskID := r.PathValue("id")
	if taskID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Task ID is required")
		return
	}

	result, err := s.deps.CompleteTaskHandler.Handle(r.Context(), command.CompleteTaskCommand{
		UserID:    userID,
		TaskID:    taskID,
		Completed: completed,
	})
	if err != nil {
		s.writeDomainError(w, r, err, "failed to update task")
		return
	}

	resp := completeTaskResponse{
		Applied:   result.Applied,
		ExpGained: result.ExpGained,
		LeveledUp: result.LeveledUp,
		NewLevel:  result.NewLevel,
	}
	if result.Task != nil {
		dto := query.ToTaskDTO(result.Task)
		resp.Task = &dto
	}
	if result.State != nil {
		resp.CurrentStreak = result.State.CurrentStreak
	}
	resp.StreakRecord = result.Streak.IsNewRecord

	writeJSON(w, http.StatusOK, resp)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetProgress handles GET /api/v1/progress
func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	result, err := s.deps.GetProgressHandler.Handle(r.Context(), query.GetProgressQuery{UserID: userID})
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get progress")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetStreakStatus handles GET /api/v1/streak
func (s *Server) handleGetStreakStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	result, err := s.deps.GetStreakStatusHandler.Handle(r.Context(), query.GetStreakStatusQuery{UserID: userID})
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get streak status")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleUseStreakProtection handles POST /api/v1/streak/protect
func (s *Server) handleUseStreakProtection(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	result, err := s.deps.UseStreakProtectionHandler.Handle(r.Context(), command.UseStreakProtectionCommand{UserID: userID})
	if err != nil {
		s.writeDomainError(w, r, err, "failed to use streak protection")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tokens_left":    result.TokensLeft,
		"current_streak": result.Streak,
	})
}

// handleGetTopStreaks handles GET /api/v1/streaks/top?limit=10
func (s *Server) handleGetTopStreaks(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.GetTopStreaksHandler.Handle(r.Context(), query.GetTopStreaksQuery{
		Limit: getQueryParamInt(r, "limit", 10),
	})
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get top streaks")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// requireUser extracts the caller identity or writes a 401.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		writeJSONError(w, http.StatusUnauthorized, "missing_user", "X-User-ID header is required")
		return "", false
	}
	return userID, true
}

// decodeBody decodes a JSON request body or writes a 400.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer func() {
		_, _ = io.Copy(io.Discard, body)
	}()

	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSONErrorWithDetails(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return false
	}
	return true
}

// writeDomainError maps domain errors to HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error, logMsg string) {
	switch {
	case shared.IsValidation(err):
		writeJSONErrorWithDetails(w, http.StatusBadRequest, "validation_error", "Invalid request", err.Error())
	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", "Resource not found")
	case shared.IsConflict(err):
		writeJSONError(w, http.StatusConflict, "conflict", "Resource was modified concurrently, please retry")
	default:
		s.logger.Error(logMsg,
			logger.Err(err),
			logger.String("path", r.URL.Path),
			logger.String("request_id", getRequestID(r.Context())),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
