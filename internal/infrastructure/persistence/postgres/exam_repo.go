package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/studyquest-hub/studyquest-backend/internal/domain/exam"
	"github.com/studyquest-hub/studyquest-backend/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXAM REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ExamRepository implements exam.Repository using PostgreSQL.
type ExamRepository struct {
	conn *Connection
}

// NewExamRepository creates a new exam repository.
func NewExamRepository(conn *Connection) *ExamRepository {
	return &ExamRepository{conn: conn}
}

// subjectRecord is the JSONB representation of a subject.
type subjectRecord struct {
	Name          string `json:"name"`
	Range         string `json:"range"`
	WorkbookPages int    `json:"workbook_pages"`
}

// Create inserts a new exam.
func (r *ExamRepository) Create(ctx context.Context, e *exam.Exam) error {
	subjects, err := marshalSubjects(e.Subjects)
	if err != nil {
		return fmt.Errorf("failed to marshal subjects: %w", err)
	}

	query := `
		INSERT INTO exams (id, user_id, name, exam_date, subjects, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = r.conn.Exec(ctx, query,
		e.ID, e.UserID, e.Name, e.Date, subjects, e.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrExamAlreadyExists
		}
		return fmt.Errorf("failed to create exam: %w", err)
	}
	return nil
}

// GetByID returns an exam by its ID.
func (r *ExamRepository) GetByID(ctx context.Context, id string) (*exam.Exam, error) {
	query := `
		SELECT id, user_id, name, exam_date, subjects, created_at
		FROM exams
		WHERE id = $1
	`

	e, err := scanExam(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}
	return e, nil
}

// GetByUser returns all exams for a user, ordered by exam date.
func (r *ExamRepository) GetByUser(ctx context.Context, userID string) ([]*exam.Exam, error) {
	query := `
		SELECT id, user_id, name, exam_date, subjects, created_at
		FROM exams
		WHERE user_id = $1
		ORDER BY exam_date, created_at
	`
	return r.queryExams(ctx, query, userID)
}

// GetUpcoming returns the user's exams scheduled on or after from.
func (r *ExamRepository) GetUpcoming(ctx context.Context, userID string, from time.Time) ([]*exam.Exam, error) {
	query := `
		SELECT id, user_id, name, exam_date, subjects, created_at
		FROM exams
		WHERE user_id = $1 AND exam_date >= $2
		ORDER BY exam_date, created_at
	`
	return r.queryExams(ctx, query, userID, from)
}

// Delete removes an exam; its tasks are removed by the FK cascade.
func (r *ExamRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.conn.Exec(ctx, `DELETE FROM exams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete exam: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrExamNotFound
	}
	return nil
}

func (r *ExamRepository) queryExams(ctx context.Context, query string, args ...interface{}) ([]*exam.Exam, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query exams: %w", err)
	}
	defer rows.Close()

	exams := make([]*exam.Exam, 0)
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan exam: %w", err)
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// rowScanner abstracts pgx.Row and pgx.Rows for scanning.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExam(row rowScanner) (*exam.Exam, error) {
	var (
		e        exam.Exam
		subjects []byte
	)

	if err := row.Scan(&e.ID, &e.UserID, &e.Name, &e.Date, &subjects, &e.CreatedAt); err != nil {
		return nil, err
	}

	parsed, err := unmarshalSubjects(subjects)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal subjects: %w", err)
	}
	e.Subjects = parsed

	return &e, nil
}

func marshalSubjects(subjects []exam.Subject) ([]byte, error) {
	records := make([]subjectRecord, len(subjects))
	for i, s := range subjects {
		records[i] = subjectRecord{
			Name:          s.Name,
			Range:         s.Range,
			WorkbookPages: int(s.WorkbookPages),
		}
	}
	return json.Marshal(records)
}

func unmarshalSubjects(data []byte) ([]exam.Subject, error) {
	var records []subjectRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}

	subjects := make([]exam.Subject, len(records))
	for i, rec := range records {
		subjects[i] = exam.Subject{
			Name:          rec.Name,
			Range:         rec.Range,
			WorkbookPages: exam.WorkbookPages(rec.WorkbookPages),
		}
	}
	return subjects, nil
}
