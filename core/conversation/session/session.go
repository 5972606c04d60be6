// Package session persists one conversation record per (user, platform)
// pair: the current state plus the context blob wizards accumulate fields
// in. Three backends ship: memory, postgres and redis. Writes are atomic
// per record; the engine additionally serializes all processing for one
// pair through KeyedLock.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/swiftline/courierbot/core/conversation/state"
	"github.com/swiftline/courierbot/core/domain"
	"github.com/swiftline/courierbot/core/transport"
)

// ErrNotFound is returned when no session exists for the pair and the
// operation cannot create one.
var ErrNotFound = errors.New("session not found")

// Session is one ongoing conversation for one (user, platform) pair.
type Session struct {
	UserID         int64
	Platform       transport.Platform
	Current        state.ID
	Context        Context
	UpdatedAt      time.Time
	LastActivityAt time.Time
}

// Store is the durable mapping from (user, platform) to conversation state.
//
// TransitionTo is validated against the role's transition table and merges
// the delta into context; an absent (current, target) edge is an expected
// outcome reported as ok=false, not an error. Force bypasses validation
// and, when replace is non-nil, overwrites the context wholesale.
type Store interface {
	GetOrCreate(ctx context.Context, userID int64, platform transport.Platform) (*Session, error)
	Current(ctx context.Context, userID int64, platform transport.Platform) (state.ID, error)
	Snapshot(ctx context.Context, userID int64, platform transport.Platform) (Context, error)
	TransitionTo(ctx context.Context, userID int64, platform transport.Platform, role domain.Role, target state.ID, delta Context) (bool, error)
	Force(ctx context.Context, userID int64, platform transport.Platform, target state.ID, replace Context) error
	UpdateContext(ctx context.Context, userID int64, platform transport.Platform, key string, value any) error
}
