package redis

import (
	"context"
	"errors"
	"log/slog"

	"github.com/studyquest-hub/studyquest-backend/internal/domain/progression"
)

// CachedStateRepository is a cache-aside decorator around progression.Repository.
// Reads are served from Redis when possible; every successful Save invalidates
// the user's key so the next read refills from PostgreSQL. Cache failures are
// never fatal - they degrade to direct repository access.
type CachedStateRepository struct {
	inner  progression.Repository
	cache  *Cache
	logger *slog.Logger
}

// NewCachedStateRepository creates a caching decorator around inner.
func NewCachedStateRepository(inner progression.Repository, cache *Cache, logger *slog.Logger) *CachedStateRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedStateRepository{
		inner:  inner,
		cache:  cache,
		logger: logger.With("component", "state_cache"),
	}
}

// Get returns the user's state, preferring the cache.
func (r *CachedStateRepository) Get(ctx context.Context, userID string) (*progression.UserState, error) {
	if st, ok := r.lookup(ctx, userID); ok {
		return st, nil
	}

	st, err := r.inner.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	r.fill(ctx, st)
	return st, nil
}

// GetOrCreate returns the user's state, creating the initial one if missing.
func (r *CachedStateRepository) GetOrCreate(ctx context.Context, userID string) (*progression.UserState, error) {
	if st, ok := r.lookup(ctx, userID); ok {
		return st, nil
	}

	st, err := r.inner.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	r.fill(ctx, st)
	return st, nil
}

// Save writes through to the inner repository and invalidates the cached state.
// The streak leaderboard is invalidated too - a save may have changed it.
func (r *CachedStateRepository) Save(ctx context.Context, st *progression.UserState) error {
	if err := r.inner.Save(ctx, st); err != nil {
		return err
	}

	if err := r.cache.Delete(ctx, UserStateKey(st.UserID)); err != nil {
		r.logger.Warn("failed to invalidate state cache", "user_id", st.UserID, "error", err)
	}
	if err := r.cache.DeleteByPattern(ctx, PrefixTopStreaks+"*"); err != nil {
		r.logger.Warn("failed to invalidate streak leaderboard cache", "error", err)
	}

	return nil
}

// GetAll bypasses the cache - it is only used by background jobs, which
// need a fresh full scan anyway.
func (r *CachedStateRepository) GetAll(ctx context.Context) ([]*progression.UserState, error) {
	return r.inner.GetAll(ctx)
}

// GetTopStreaks returns the best current streaks, cached for a short TTL.
func (r *CachedStateRepository) GetTopStreaks(ctx context.Context, limit int) ([]*progression.UserState, error) {
	key := TopStreaksKey(limit)

	var cached []*progression.UserState
	err := r.cache.Get(ctx, key, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		r.logger.Warn("streak leaderboard cache read failed", "error", err)
	}

	states, err := r.inner.GetTopStreaks(ctx, limit)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, key, states, TTLTopStreaks); err != nil {
		r.logger.Warn("failed to cache streak leaderboard", "error", err)
	}
	return states, nil
}

// lookup tries the cache; a miss or a read error both report !ok.
func (r *CachedStateRepository) lookup(ctx context.Context, userID string) (*progression.UserState, bool) {
	var st progression.UserState
	err := r.cache.Get(ctx, UserStateKey(userID), &st)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			r.logger.Warn("state cache read failed", "user_id", userID, "error", err)
		}
		return nil, false
	}
	return &st, true
}

// fill writes a state into the cache, logging failures without propagating.
func (r *CachedStateRepository) fill(ctx context.Context, st *progression.UserState) {
	if err := r.cache.Set(ctx, UserStateKey(st.UserID), st, TTLUserState); err != nil {
		r.logger.Warn("failed to cache user state", "user_id", st.UserID, "error", err)
	}
}
