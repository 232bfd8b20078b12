package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven architecture.
// Each event represents something significant that happened in the domain.
const (
	// Exam events
	EventExamCreated       EventType = "exam.created"
	EventScheduleGenerated EventType = "exam.schedule_generated"

	// Progress events
	EventTaskCompleted   EventType = "progress.task_completed"
	EventTaskUncompleted EventType = "progress.task_uncompleted"
	EventLeveledUp       EventType = "progress.leveled_up"
	EventBadgeEarned     EventType = "progress.badge_earned"
	EventStreakRecord    EventType = "progress.streak_record"
	EventStreakBroken    EventType = "progress.streak_broken"
	EventStreakProtected EventType = "progress.streak_protected"

	// Worker events
	EventStreakAtRisk     EventType = "worker.streak_at_risk"
	EventDailyDigestReady EventType = "worker.daily_digest_ready"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
	Version     int       `json:"version"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Exam Events
// ═══════════════════════════════════════════════════════════════════════════

// ExamCreatedEvent is emitted when a user declares a new exam.
type ExamCreatedEvent struct {
	BaseEvent
	UserID       string    `json:"user_id"`
	ExamName     string    `json:"exam_name"`
	ExamDate     time.Time `json:"exam_date"`
	SubjectCount int       `json:"subject_count"`
}

// Payload implements Event interface.
func (e ExamCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":       e.UserID,
		"exam_name":     e.ExamName,
		"exam_date":     e.ExamDate.Format(time.RFC3339),
		"subject_count": e.SubjectCount,
	}
}

// NewExamCreatedEvent creates a new ExamCreatedEvent.
func NewExamCreatedEvent(examID, userID, examName string, examDate time.Time, subjectCount int) ExamCreatedEvent {
	return ExamCreatedEvent{
		BaseEvent:    NewBaseEvent(EventExamCreated, examID),
		UserID:       userID,
		ExamName:     examName,
		ExamDate:     examDate,
		SubjectCount: subjectCount,
	}
}

// ScheduleGeneratedEvent is emitted when a study plan has been produced for an exam.
type ScheduleGeneratedEvent struct {
	BaseEvent
	UserID    string    `json:"user_id"`
	ExamID    string    `json:"exam_id"`
	TaskCount int       `json:"task_count"`
	FirstDay  time.Time `json:"first_day"`
	LastDay   time.Time `json:"last_day"`
}

// Payload implements Event interface.
func (e ScheduleGeneratedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    e.UserID,
		"exam_id":    e.ExamID,
		"task_count": e.TaskCount,
		"first_day":  e.FirstDay.Format(time.RFC3339),
		"last_day":   e.LastDay.Format(time.RFC3339),
	}
}

// NewScheduleGeneratedEvent creates a new ScheduleGeneratedEvent.
func NewScheduleGeneratedEvent(examID, userID string, taskCount int, firstDay, lastDay time.Time) ScheduleGeneratedEvent {
	return ScheduleGeneratedEvent{
		BaseEvent: NewBaseEvent(EventScheduleGenerated, examID),
		UserID:    userID,
		ExamID:    examID,
		TaskCount: taskCount,
		FirstDay:  firstDay,
		LastDay:   lastDay,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// TaskCompletedEvent is emitted when a user checks off a study task.
// Fired at most once per meaningful completion (same-day re-toggles are silent).
type TaskCompletedEvent struct {
	BaseEvent
	UserID    string `json:"user_id"`
	TaskID    string `json:"task_id"`
	ExamID    string `json:"exam_id"`
	ExpGained int    `json:"exp_gained"`
}

// Payload implements Event interface.
func (e TaskCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    e.UserID,
		"task_id":    e.TaskID,
		"exam_id":    e.ExamID,
		"exp_gained": e.ExpGained,
	}
}

// NewTaskCompletedEvent creates a new TaskCompletedEvent.
func NewTaskCompletedEvent(userID, taskID, examID string, expGained int) TaskCompletedEvent {
	return TaskCompletedEvent{
		BaseEvent: NewBaseEvent(EventTaskCompleted, userID),
		UserID:    userID,
		TaskID:    taskID,
		ExamID:    examID,
		ExpGained: expGained,
	}
}

// LeveledUpEvent is emitted when accumulated experience crosses a level boundary.
type LeveledUpEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	OldLevel int    `json:"old_level"`
	NewLevel int    `json:"new_level"`
	TotalExp int    `json:"total_exp"`
}

// Payload implements Event interface.
func (e LeveledUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"old_level": e.OldLevel,
		"new_level": e.NewLevel,
		"total_exp": e.TotalExp,
	}
}

// NewLeveledUpEvent creates a new LeveledUpEvent.
func NewLeveledUpEvent(userID string, oldLevel, newLevel, totalExp int) LeveledUpEvent {
	return LeveledUpEvent{
		BaseEvent: NewBaseEvent(EventLeveledUp, userID),
		UserID:    userID,
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
		TotalExp:  totalExp,
	}
}

// BadgeEarnedEvent is emitted when a streak threshold awards a new badge.
// A given badge id is emitted at most once per user, ever.
type BadgeEarnedEvent struct {
	BaseEvent
	UserID  string `json:"user_id"`
	BadgeID string `json:"badge_id"`
	Streak  int    `json:"streak"`
}

// Payload implements Event interface.
func (e BadgeEarnedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":  e.UserID,
		"badge_id": e.BadgeID,
		"streak":   e.Streak,
	}
}

// NewBadgeEarnedEvent creates a new BadgeEarnedEvent.
func NewBadgeEarnedEvent(userID, badgeID string, streak int) BadgeEarnedEvent {
	return BadgeEarnedEvent{
		BaseEvent: NewBaseEvent(EventBadgeEarned, userID),
		UserID:    userID,
		BadgeID:   badgeID,
		Streak:    streak,
	}
}

// StreakRecordEvent is emitted when the current streak surpasses the previous maximum.
type StreakRecordEvent struct {
	BaseEvent
	UserID    string `json:"user_id"`
	NewStreak int    `json:"new_streak"`
	OldRecord int    `json:"old_record"`
}

// Payload implements Event interface.
func (e StreakRecordEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    e.UserID,
		"new_streak": e.NewStreak,
		"old_record": e.OldRecord,
	}
}

// NewStreakRecordEvent creates a new StreakRecordEvent.
func NewStreakRecordEvent(userID string, newStreak, oldRecord int) StreakRecordEvent {
	return StreakRecordEvent{
		BaseEvent: NewBaseEvent(EventStreakRecord, userID),
		UserID:    userID,
		NewStreak: newStreak,
		OldRecord: oldRecord,
	}
}

// StreakBrokenEvent is emitted when a completion arrives after one or more missed days.
type StreakBrokenEvent struct {
	BaseEvent
	UserID         string `json:"user_id"`
	PreviousStreak int    `json:"previous_streak"`
	DaysMissed     int    `json:"days_missed"`
}

// Payload implements Event interface.
func (e StreakBrokenEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":         e.UserID,
		"previous_streak": e.PreviousStreak,
		"days_missed":     e.DaysMissed,
	}
}

// NewStreakBrokenEvent creates a new StreakBrokenEvent.
func NewStreakBrokenEvent(userID string, previousStreak, daysMissed int) StreakBrokenEvent {
	return StreakBrokenEvent{
		BaseEvent:      NewBaseEvent(EventStreakBroken, userID),
		UserID:         userID,
		PreviousStreak: previousStreak,
		DaysMissed:     daysMissed,
	}
}

// StreakProtectedEvent is emitted when a protection token preserves streak continuity.
type StreakProtectedEvent struct {
	BaseEvent
	UserID     string `json:"user_id"`
	TokensLeft int    `json:"tokens_left"`
	Streak     int    `json:"streak"`
}

// Payload implements Event interface.
func (e StreakProtectedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":     e.UserID,
		"tokens_left": e.TokensLeft,
		"streak":      e.Streak,
	}
}

// NewStreakProtectedEvent creates a new StreakProtectedEvent.
func NewStreakProtectedEvent(userID string, tokensLeft, streak int) StreakProtectedEvent {
	return StreakProtectedEvent{
		BaseEvent:  NewBaseEvent(EventStreakProtected, userID),
		UserID:     userID,
		TokensLeft: tokensLeft,
		Streak:     streak,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Worker Events
// ═══════════════════════════════════════════════════════════════════════════

// StreakAtRiskEvent is emitted by the worker when a streak is about to break.
type StreakAtRiskEvent struct {
	BaseEvent
	UserID    string  `json:"user_id"`
	Streak    int     `json:"streak"`
	HoursLeft float64 `json:"hours_left"`
}

// Payload implements Event interface.
func (e StreakAtRiskEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    e.UserID,
		"streak":     e.Streak,
		"hours_left": e.HoursLeft,
	}
}

// NewStreakAtRiskEvent creates a new StreakAtRiskEvent.
func NewStreakAtRiskEvent(userID string, streak int, hoursLeft float64) StreakAtRiskEvent {
	return StreakAtRiskEvent{
		BaseEvent: NewBaseEvent(EventStreakAtRisk, userID),
		UserID:    userID,
		Streak:    streak,
		HoursLeft: hoursLeft,
	}
}

// DailyDigestReadyEvent is emitted by the worker with the day's plan summary.
type DailyDigestReadyEvent struct {
	BaseEvent
	UserID       string `json:"user_id"`
	TaskCount    int    `json:"task_count"`
	TotalMinutes int    `json:"total_minutes"`
}

// Payload implements Event interface.
func (e DailyDigestReadyEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":       e.UserID,
		"task_count":    e.TaskCount,
		"total_minutes": e.TotalMinutes,
	}
}

// NewDailyDigestReadyEvent creates a new DailyDigestReadyEvent.
func NewDailyDigestReadyEvent(userID string, taskCount, totalMinutes int) DailyDigestReadyEvent {
	return DailyDigestReadyEvent{
		BaseEvent:    NewBaseEvent(EventDailyDigestReady, userID),
		UserID:       userID,
		TaskCount:    taskCount,
		TotalMinutes: totalMinutes,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID          string          `json:"id"`
	Type        EventType       `json:"type"`
	AggregateID string          `json:"aggregate_id"`
	Timestamp   time.Time       `json:"timestamp"`
	Version     int             `json:"version"`
	Payload     json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
