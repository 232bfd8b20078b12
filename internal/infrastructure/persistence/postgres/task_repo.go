package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/studyquest-hub/studyquest-backend/internal/domain/schedule"
	"github.com/studyquest-hub/studyquest-backend/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TASK REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// TaskRepository implements schedule.Repository using PostgreSQL.
type TaskRepository struct {
	conn *Connection
}

// NewTaskRepository creates a new task repository.
func NewTaskRepository(conn *Connection) *TaskRepository {
	return &TaskRepository{conn: conn}
}

const taskColumns = `id, exam_id, user_id, title, subject_name, scheduled_date,
	completed, completed_at, priority, estimated_minutes, earned_exp, task_type`

// SaveBatch inserts all tasks of a generated plan in one transaction.
func (r *TaskRepository) SaveBatch(ctx context.Context, tasks []*schedule.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		query := `
			INSERT INTO tasks (` + taskColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`

		for _, t := range tasks {
			batch.Queue(query,
				t.ID, t.ExamID, t.UserID, t.Title, t.SubjectName, t.ScheduledDate,
				t.Completed, nullableTime(t.CompletedAt), string(t.Priority),
				t.EstimatedMinutes, t.EarnedExp, string(t.Type))
		}

		results := tx.SendBatch(ctx, batch)
		defer results.Close()

		for range tasks {
			if _, err := results.Exec(); err != nil {
				return fmt.Errorf("failed to insert task: %w", err)
			}
		}
		return nil
	})
}

// GetByID returns a task by its ID.
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*schedule.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	t, err := scanTask(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// GetByExam returns all tasks of an exam, ordered by scheduled date.
func (r *TaskRepository) GetByExam(ctx context.Context, examID string) ([]*schedule.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE exam_id = $1
		ORDER BY scheduled_date, subject_name
	`
	return r.queryTasks(ctx, query, examID)
}

// GetByUserAndDay returns the user's tasks scheduled on a calendar day.
func (r *TaskRepository) GetByUserAndDay(ctx context.Context, userID string, day time.Time) ([]*schedule.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE user_id = $1 AND scheduled_date = $2
		ORDER BY subject_name, scheduled_date
	`
	return r.queryTasks(ctx, query, userID, dateOnly(day))
}

// Update persists changes to a task's completion fields.
func (r *TaskRepository) Update(ctx context.Context, task *schedule.Task) error {
	query := `
		UPDATE tasks
		SET completed = $2, completed_at = $3, earned_exp = $4
		WHERE id = $1
	`

	tag, err := r.conn.Exec(ctx, query,
		task.ID, task.Completed, nullableTime(task.CompletedAt), task.EarnedExp)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrTaskNotFound
	}
	return nil
}

// CountCompletedOnDay returns how many tasks the user completed on a calendar day.
func (r *TaskRepository) CountCompletedOnDay(ctx context.Context, userID string, day time.Time) (int, error) {
	start := dateOnly(day)
	end := start.AddDate(0, 0, 1)

	query := `
		SELECT COUNT(*)
		FROM tasks
		WHERE user_id = $1 AND completed AND completed_at >= $2 AND completed_at < $3
	`

	var count int
	if err := r.conn.QueryRow(ctx, query, userID, start, end).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count completed tasks: %w", err)
	}
	return count, nil
}

// DeleteByExam removes all tasks of an exam.
func (r *TaskRepository) DeleteByExam(ctx context.Context, examID string) error {
	if _, err := r.conn.Exec(ctx, `DELETE FROM tasks WHERE exam_id = $1`, examID); err != nil {
		return fmt.Errorf("failed to delete tasks: %w", err)
	}
	return nil
}

func (r *TaskRepository) queryTasks(ctx context.Context, query string, args ...interface{}) ([]*schedule.Task, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*schedule.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanTask(row rowScanner) (*schedule.Task, error) {
	var (
		t           schedule.Task
		completedAt *time.Time
		priority    string
		taskType    string
	)

	err := row.Scan(&t.ID, &t.ExamID, &t.UserID, &t.Title, &t.SubjectName,
		&t.ScheduledDate, &t.Completed, &completedAt, &priority,
		&t.EstimatedMinutes, &t.EarnedExp, &taskType)
	if err != nil {
		return nil, err
	}

	if completedAt != nil {
		t.CompletedAt = *completedAt
	}
	t.Priority = schedule.Priority(priority)
	t.Type = schedule.TaskType(taskType)

	return &t, nil
}

// nullableTime maps a zero time.Time to SQL NULL.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// dateOnly truncates a timestamp to its calendar day.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
