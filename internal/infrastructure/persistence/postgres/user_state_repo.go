package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/studyquest-hub/studyquest-backend/internal/domain/progression"
	"github.com/studyquest-hub/studyquest-backend/internal/domain/shared"
	"github.com/studyquest-hub/studyquest-backend/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER STATE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// UserStateRepository implements progression.Repository using PostgreSQL.
// Saves use compare-and-swap on the version column, so concurrent writers
// (two browser tabs, client plus background job) never silently overwrite
// each other.
type UserStateRepository struct {
	conn *Connection
}

// NewUserStateRepository creates a new user state repository.
func NewUserStateRepository(conn *Connection) *UserStateRepository {
	return &UserStateRepository{conn: conn}
}

const userStateColumns = `user_id, level, exp, current_streak, max_streak,
	last_study_date, streak_protection, total_tasks_completed, badges, version, updated_at`

// Get returns the user's state.
func (r *UserStateRepository) Get(ctx context.Context, userID string) (*progression.UserState, error) {
	query := `SELECT ` + userStateColumns + ` FROM user_states WHERE user_id = $1`

	st, err := scanUserState(r.conn.QueryRow(ctx, query, userID))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrUserStateNotFound
		}
		return nil, fmt.Errorf("failed to get user state: %w", err)
	}
	return st, nil
}

// GetOrCreate returns the user's state, inserting the initial one if missing.
func (r *UserStateRepository) GetOrCreate(ctx context.Context, userID string) (*progression.UserState, error) {
	st, err := r.Get(ctx, userID)
	if err == nil {
		return st, nil
	}
	if !shared.IsNotFound(err) {
		return nil, err
	}

	// ON CONFLICT DO NOTHING handles the race where another request
	// inserts the row between our read and write.
	query := `
		INSERT INTO user_states (user_id, level, badges, updated_at)
		VALUES ($1, 1, '{}'::jsonb, NOW())
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := r.conn.Exec(ctx, query, userID); err != nil {
		return nil, fmt.Errorf("failed to create user state: %w", err)
	}

	return r.Get(ctx, userID)
}

// Save writes the state with a version check (compare-and-swap).
// On success the version in st is incremented; on a stale version
// shared.ErrUserStateConflict is returned and the caller should re-read
// and retry the transition.
func (r *UserStateRepository) Save(ctx context.Context, st *progression.UserState) error {
	badges, err := marshalBadges(st.Badges)
	if err != nil {
		return fmt.Errorf("failed to marshal badges: %w", err)
	}

	query := `
		UPDATE user_states
		SET level = $2,
		    exp = $3,
		    current_streak = $4,
		    max_streak = $5,
		    last_study_date = $6,
		    streak_protection = $7,
		    total_tasks_completed = $8,
		    badges = $9,
		    version = version + 1,
		    updated_at = $10
		WHERE user_id = $1 AND version = $11
	`

	tag, err := r.conn.Exec(ctx, query,
		st.UserID, st.Level, st.Exp, st.CurrentStreak, st.MaxStreak,
		nullableTime(st.LastStudyDate), st.StreakProtection, st.TotalTasksCompleted,
		badges, st.UpdatedAt, st.Version)
	if err != nil {
		return fmt.Errorf("failed to save user state: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Either the row is missing or the version is stale. A missing row
		// means the caller skipped GetOrCreate; both are conflicts from the
		// caller's point of view.
		return shared.ErrUserStateConflict
	}

	st.Version++
	return nil
}

// GetAll returns the states of all users. Used by background jobs.
func (r *UserStateRepository) GetAll(ctx context.Context) ([]*progression.UserState, error) {
	query := `SELECT ` + userStateColumns + ` FROM user_states ORDER BY user_id`
	return r.queryStates(ctx, query)
}

// GetTopStreaks returns the best current streaks in descending order.
func (r *UserStateRepository) GetTopStreaks(ctx context.Context, limit int) ([]*progression.UserState, error) {
	query := `
		SELECT ` + userStateColumns + `
		FROM user_states
		WHERE current_streak > 0
		ORDER BY current_streak DESC, max_streak DESC, user_id
		LIMIT $1
	`
	return r.queryStates(ctx, query, limit)
}

func (r *UserStateRepository) queryStates(ctx context.Context, query string, args ...interface{}) ([]*progression.UserState, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query user states: %w", err)
	}
	defer rows.Close()

	states := make([]*progression.UserState, 0)
	for rows.Next() {
		st, err := scanUserState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user state: %w", err)
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

func scanUserState(row rowScanner) (*progression.UserState, error) {
	var (
		st            progression.UserState
		lastStudyDate *time.Time
		badges        []byte
	)

	err := row.Scan(&st.UserID, &st.Level, &st.Exp, &st.CurrentStreak, &st.MaxStreak,
		&lastStudyDate, &st.StreakProtection, &st.TotalTasksCompleted,
		&badges, &st.Version, &st.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if lastStudyDate != nil {
		// last_study_date is a DATE column and decodes as midnight UTC.
		// Re-anchor it to the Tokyo day boundary: streak-risk hour math
		// compares it against "now" and a 9-hour shift would delay
		// warnings by the same amount.
		d := *lastStudyDate
		st.LastStudyDate = timeutil.Date(d.Year(), int(d.Month()), d.Day())
	}

	parsed, err := unmarshalBadges(badges)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal badges: %w", err)
	}
	st.Badges = parsed

	return &st, nil
}

func marshalBadges(badges map[progression.Badge]time.Time) ([]byte, error) {
	records := make(map[string]time.Time, len(badges))
	for b, at := range badges {
		records[string(b)] = at
	}
	return json.Marshal(records)
}

func unmarshalBadges(data []byte) (map[progression.Badge]time.Time, error) {
	records := make(map[string]time.Time)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, err
		}
	}

	badges := make(map[progression.Badge]time.Time, len(records))
	for b, at := range records {
		badges[progression.Badge(b)] = at
	}
	return badges, nil
}
