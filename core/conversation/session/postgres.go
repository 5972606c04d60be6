package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/swiftline/courierbot/core/conversation/state"
	"github.com/swiftline/courierbot/core/domain"
	"github.com/swiftline/courierbot/core/logger"
	"github.com/swiftline/courierbot/core/transport"
)

type postgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore constructs a Store persisting sessions in the
// conversation_sessions table.
func NewPostgresStore(db *sqlx.DB) Store {
	return &postgresStore{db: db}
}

type sessionRow struct {
	UserID         int64     `db:"user_id"`
	Platform       string    `db:"platform"`
	CurrentState   string    `db:"current_state"`
	Context        []byte    `db:"context"`
	UpdatedAt      time.Time `db:"updated_at"`
	LastActivityAt time.Time `db:"last_activity_at"`
}

func (r sessionRow) toSession() (*Session, error) {
	ctx := Context{}
	if len(r.Context) > 0 {
		if err := json.Unmarshal(r.Context, &ctx); err != nil {
			return nil, fmt.Errorf("decode session context: %w", err)
		}
	}
	return &Session{
		UserID:         r.UserID,
		Platform:       transport.Platform(r.Platform),
		Current:        state.ID(r.CurrentState),
		Context:        ctx,
		UpdatedAt:      r.UpdatedAt,
		LastActivityAt: r.LastActivityAt,
	}, nil
}

func (p *postgresStore) GetOrCreate(ctx context.Context, userID int64, platform transport.Platform) (*Session, error) {
	// ON CONFLICT DO NOTHING makes concurrent first contact converge on a
	// single row; the follow-up select reads whichever insert won.
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO conversation_sessions (user_id, platform, current_state, context)
		VALUES ($1, $2, $3, '{}'::jsonb)
		ON CONFLICT (user_id, platform) DO NOTHING`,
		userID, string(platform), string(state.Initial),
	)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	var row sessionRow
	err = p.db.GetContext(ctx, &row, `
		UPDATE conversation_sessions
		SET last_activity_at = now()
		WHERE user_id = $1 AND platform = $2
		RETURNING user_id, platform, current_state, context, updated_at, last_activity_at`,
		userID, string(platform),
	)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return row.toSession()
}

func (p *postgresStore) Current(ctx context.Context, userID int64, platform transport.Platform) (state.ID, error) {
	var current string
	err := p.db.GetContext(ctx, &current, `
		SELECT current_state FROM conversation_sessions
		WHERE user_id = $1 AND platform = $2`,
		userID, string(platform),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read current state: %w", err)
	}
	return state.ID(current), nil
}

func (p *postgresStore) Snapshot(ctx context.Context, userID int64, platform transport.Platform) (Context, error) {
	var raw []byte
	err := p.db.GetContext(ctx, &raw, `
		SELECT context FROM conversation_sessions
		WHERE user_id = $1 AND platform = $2`,
		userID, string(platform),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read context: %w", err)
	}
	out := Context{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("decode context: %w", err)
		}
	}
	return out, nil
}

func (p *postgresStore) TransitionTo(ctx context.Context, userID int64, platform transport.Platform, role domain.Role, target state.ID, delta Context) (bool, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transition: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var row sessionRow
	err = tx.GetContext(ctx, &row, `
		SELECT user_id, platform, current_state, context, updated_at, last_activity_at
		FROM conversation_sessions
		WHERE user_id = $1 AND platform = $2
		FOR UPDATE`,
		userID, string(platform),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("lock session: %w", err)
	}

	current := state.ID(row.CurrentState)
	if !state.IsValid(role, current, target) {
		logger.SESS.Debug("transition rejected",
			slog.String("event", "session.transition"),
			slog.String("status", "skip"),
			slog.Int64("user_id", userID),
			slog.String("platform", string(platform)),
			slog.String("from", string(current)),
			slog.String("to", string(target)),
		)
		return false, nil
	}

	existing, err := row.toSession()
	if err != nil {
		return false, err
	}
	merged, err := json.Marshal(existing.Context.Merge(delta))
	if err != nil {
		return false, fmt.Errorf("encode context: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE conversation_sessions
		SET current_state = $3, context = $4, updated_at = now(), last_activity_at = now()
		WHERE user_id = $1 AND platform = $2`,
		userID, string(platform), string(target), merged,
	)
	if err != nil {
		return false, fmt.Errorf("write transition: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transition: %w", err)
	}
	return true, nil
}

func (p *postgresStore) Force(ctx context.Context, userID int64, platform transport.Platform, target state.ID, replace Context) error {
	if replace != nil {
		encoded, err := json.Marshal(replace)
		if err != nil {
			return fmt.Errorf("encode context: %w", err)
		}
		_, err = p.db.ExecContext(ctx, `
			INSERT INTO conversation_sessions (user_id, platform, current_state, context)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id, platform) DO UPDATE
			SET current_state = $3, context = $4, updated_at = now(), last_activity_at = now()`,
			userID, string(platform), string(target), encoded,
		)
		if err != nil {
			return fmt.Errorf("force session: %w", err)
		}
		return nil
	}

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO conversation_sessions (user_id, platform, current_state, context)
		VALUES ($1, $2, $3, '{}'::jsonb)
		ON CONFLICT (user_id, platform) DO UPDATE
		SET current_state = $3, updated_at = now(), last_activity_at = now()`,
		userID, string(platform), string(target),
	)
	if err != nil {
		return fmt.Errorf("force session: %w", err)
	}
	return nil
}

func (p *postgresStore) UpdateContext(ctx context.Context, userID int64, platform transport.Platform, key string, value any) error {
	encoded, err := json.Marshal(map[string]any{key: value})
	if err != nil {
		return fmt.Errorf("encode context delta: %w", err)
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE conversation_sessions
		SET context = context || $3::jsonb, updated_at = now()
		WHERE user_id = $1 AND platform = $2`,
		userID, string(platform), encoded,
	)
	if err != nil {
		return fmt.Errorf("update context: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
