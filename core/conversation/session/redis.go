package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/swiftline/courierbot/core/conversation/state"
	"github.com/swiftline/courierbot/core/domain"
	"github.com/swiftline/courierbot/core/transport"
)

type redisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a Store persisting sessions as JSON blobs in
// redis. Record-level atomicity is sufficient because the engine already
// serializes processing per (user, platform) pair.
func NewRedisStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

type redisRecord struct {
	Current        string    `json:"current_state"`
	Context        Context   `json:"context"`
	UpdatedAt      time.Time `json:"updated_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

func redisKey(userID int64, platform transport.Platform) string {
	return fmt.Sprintf("sess:%s:%d", platform, userID)
}

func (r *redisStore) load(ctx context.Context, userID int64, platform transport.Platform) (*redisRecord, error) {
	raw, err := r.client.Get(ctx, redisKey(userID, platform)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if rec.Context == nil {
		rec.Context = Context{}
	}
	return &rec, nil
}

func (r *redisStore) save(ctx context.Context, userID int64, platform transport.Platform, rec *redisRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.client.Set(ctx, redisKey(userID, platform), raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

func (r *redisStore) GetOrCreate(ctx context.Context, userID int64, platform transport.Platform) (*Session, error) {
	now := time.Now().UTC()
	fresh := redisRecord{
		Current:        string(state.Initial),
		Context:        Context{},
		UpdatedAt:      now,
		LastActivityAt: now,
	}
	raw, err := json.Marshal(fresh)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	// SetNX keeps concurrent first contact convergent: only one of two
	// near-simultaneous creates wins, the other reads the winner's record.
	if err := r.client.SetNX(ctx, redisKey(userID, platform), raw, 0).Err(); err != nil {
		return nil, fmt.Errorf("redis create session: %w", err)
	}

	rec, err := r.load(ctx, userID, platform)
	if err != nil {
		return nil, err
	}
	rec.LastActivityAt = time.Now().UTC()
	if err := r.save(ctx, userID, platform, rec); err != nil {
		return nil, err
	}
	return &Session{
		UserID:         userID,
		Platform:       platform,
		Current:        state.ID(rec.Current),
		Context:        rec.Context.Clone(),
		UpdatedAt:      rec.UpdatedAt,
		LastActivityAt: rec.LastActivityAt,
	}, nil
}

func (r *redisStore) Current(ctx context.Context, userID int64, platform transport.Platform) (state.ID, error) {
	rec, err := r.load(ctx, userID, platform)
	if err != nil {
		return "", err
	}
	return state.ID(rec.Current), nil
}

func (r *redisStore) Snapshot(ctx context.Context, userID int64, platform transport.Platform) (Context, error) {
	rec, err := r.load(ctx, userID, platform)
	if err != nil {
		return nil, err
	}
	return rec.Context.Clone(), nil
}

func (r *redisStore) TransitionTo(ctx context.Context, userID int64, platform transport.Platform, role domain.Role, target state.ID, delta Context) (bool, error) {
	rec, err := r.load(ctx, userID, platform)
	if err != nil {
		return false, err
	}
	if !state.IsValid(role, state.ID(rec.Current), target) {
		return false, nil
	}
	now := time.Now().UTC()
	rec.Current = string(target)
	rec.Context = rec.Context.Merge(delta)
	rec.UpdatedAt = now
	rec.LastActivityAt = now
	if err := r.save(ctx, userID, platform, rec); err != nil {
		return false, err
	}
	return true, nil
}

func (r *redisStore) Force(ctx context.Context, userID int64, platform transport.Platform, target state.ID, replace Context) error {
	rec, err := r.load(ctx, userID, platform)
	if errors.Is(err, ErrNotFound) {
		rec = &redisRecord{Context: Context{}}
	} else if err != nil {
		return err
	}
	now := time.Now().UTC()
	rec.Current = string(target)
	if replace != nil {
		rec.Context = replace.Clone()
	}
	rec.UpdatedAt = now
	rec.LastActivityAt = now
	return r.save(ctx, userID, platform, rec)
}

func (r *redisStore) UpdateContext(ctx context.Context, userID int64, platform transport.Platform, key string, value any) error {
	rec, err := r.load(ctx, userID, platform)
	if err != nil {
		return err
	}
	rec.Context[key] = value
	rec.UpdatedAt = time.Now().UTC()
	return r.save(ctx, userID, platform, rec)
}
