package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE EXAMS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create exams table
-- Version: 001

CREATE TABLE IF NOT EXISTS exams (
    id UUID PRIMARY KEY,
    user_id VARCHAR(64) NOT NULL,
    name VARCHAR(200) NOT NULL,
    exam_date DATE NOT NULL,

    -- Subjects are immutable after creation and always read as a whole,
    -- so they live inside the exam row instead of a child table.
    subjects JSONB NOT NULL DEFAULT '[]'::jsonb,

    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT exam_name_not_empty CHECK (length(trim(name)) > 0)
);

CREATE INDEX IF NOT EXISTS idx_exams_user_id ON exams(user_id);
CREATE INDEX IF NOT EXISTS idx_exams_user_date ON exams(user_id, exam_date);
`

const migration001Down = `
DROP TABLE IF EXISTS exams;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE TASKS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create tasks table
-- Version: 002

CREATE TABLE IF NOT EXISTS tasks (
    id UUID PRIMARY KEY,
    exam_id UUID NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
    user_id VARCHAR(64) NOT NULL,
    title VARCHAR(255) NOT NULL,
    subject_name VARCHAR(200) NOT NULL,
    scheduled_date DATE NOT NULL,
    completed BOOLEAN NOT NULL DEFAULT FALSE,
    completed_at TIMESTAMP WITH TIME ZONE,
    priority VARCHAR(10) NOT NULL,
    estimated_minutes INTEGER NOT NULL,
    earned_exp INTEGER NOT NULL DEFAULT 0,
    task_type VARCHAR(20) NOT NULL,

    CONSTRAINT valid_priority CHECK (priority IN ('high', 'medium', 'low')),
    CONSTRAINT valid_task_type CHECK (task_type IN ('study', 'review', 'final_review')),
    CONSTRAINT positive_minutes CHECK (estimated_minutes >= 1),
    CONSTRAINT non_negative_exp CHECK (earned_exp >= 0)
);

-- Daily plan lookups ("what do I study today")
CREATE INDEX IF NOT EXISTS idx_tasks_user_date ON tasks(user_id, scheduled_date);
CREATE INDEX IF NOT EXISTS idx_tasks_exam_id ON tasks(exam_id);

-- Streak guard: count completions on a given day
CREATE INDEX IF NOT EXISTS idx_tasks_user_completed_at ON tasks(user_id, completed_at) WHERE completed;
`

const migration002Down = `
DROP TABLE IF EXISTS tasks;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE USER STATES
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create user_states table
-- Version: 003

CREATE TABLE IF NOT EXISTS user_states (
    user_id VARCHAR(64) PRIMARY KEY,
    level INTEGER NOT NULL DEFAULT 1,
    exp INTEGER NOT NULL DEFAULT 0,
    current_streak INTEGER NOT NULL DEFAULT 0,
    max_streak INTEGER NOT NULL DEFAULT 0,
    last_study_date DATE,
    streak_protection INTEGER NOT NULL DEFAULT 0,
    total_tasks_completed INTEGER NOT NULL DEFAULT 0,

    -- Badge id -> earned-at timestamp (RFC3339)
    badges JSONB NOT NULL DEFAULT '{}'::jsonb,

    -- Optimistic locking counter; every successful save increments it
    version INTEGER NOT NULL DEFAULT 0,

    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_level CHECK (level >= 1),
    CONSTRAINT non_negative_exp CHECK (exp >= 0),
    CONSTRAINT non_negative_streak CHECK (current_streak >= 0 AND max_streak >= 0)
);

CREATE INDEX IF NOT EXISTS idx_user_states_current_streak ON user_states(current_streak DESC);
`

const migration003Down = `
DROP TABLE IF EXISTS user_states;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration represents a database migration.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_exams",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_tasks",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
		{
			Version: 3,
			Name:    "create_user_states",
			UpSQL:   migration003Up,
			DownSQL: migration003Down,
		},
	}
}

// Migrator handles database migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a new migrator with embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: GetMigrations(),
		tableName:  "schema_migrations",
	}
}

// EnsureMigrationTable creates the migration tracking table if it doesn't exist.
func (m *Migrator) EnsureMigrationTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`, m.tableName)

	if _, err := m.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("%w: failed to create migration table: %v", ErrMigrationFailed, err)
	}
	return nil
}

// GetAppliedMigrations returns all applied migrations.
func (m *Migrator) GetAppliedMigrations(ctx context.Context) (map[int]time.Time, error) {
	query := fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName)

	rows, err := m.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = appliedAt
	}
	return applied, rows.Err()
}

// Migrate applies all pending migrations.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if _, isApplied := applied[mig.Version]; isApplied {
			continue
		}

		if mig.UpSQL == "" {
			return fmt.Errorf("%w: missing up SQL for migration %d", ErrMigrationFailed, mig.Version)
		}

		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", mig.Version, err)
			}

			recordQuery := fmt.Sprintf(
				"INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName)
			if _, err := tx.Exec(ctx, recordQuery, mig.Version, mig.Name); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", mig.Version, err)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
	}

	return nil
}

// Rollback rolls back the last applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	var lastVersion int
	for v := range applied {
		if v > lastVersion {
			lastVersion = v
		}
	}
	if lastVersion == 0 {
		return nil
	}

	var migration *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == lastVersion {
			migration = &m.migrations[i]
			break
		}
	}

	if migration == nil || migration.DownSQL == "" {
		return fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, lastVersion)
	}

	return m.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, migration.DownSQL); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", lastVersion, err)
		}

		deleteQuery := fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName)
		if _, err := tx.Exec(ctx, deleteQuery, lastVersion); err != nil {
			return fmt.Errorf("failed to remove migration record %d: %w", lastVersion, err)
		}
		return nil
	})
}

// Status returns the state of all migrations.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return nil, err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Migration, len(m.migrations))
	copy(result, m.migrations)

	for i := range result {
		if appliedAt, ok := applied[result[i].Version]; ok {
			result[i].IsApplied = true
			result[i].AppliedAt = appliedAt
		}
	}
	return result, nil
}
