package session

import (
	"context"
	"sync"
	"time"

	"github.com/swiftline/courierbot/core/conversation/state"
	"github.com/swiftline/courierbot/core/domain"
	"github.com/swiftline/courierbot/core/transport"
)

type pairKey struct {
	userID   int64
	platform transport.Platform
}

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[pairKey]*Session
}

// NewMemoryStore constructs an in-memory Store for tests and development.
func NewMemoryStore() Store {
	return &memoryStore{sessions: make(map[pairKey]*Session)}
}

func (m *memoryStore) GetOrCreate(_ context.Context, userID int64, platform transport.Platform) (*Session, error) {
	key := pairKey{userID, platform}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[key]; ok {
		s.LastActivityAt = time.Now()
		return copySession(s), nil
	}
	now := time.Now()
	s := &Session{
		UserID:         userID,
		Platform:       platform,
		Current:        state.Initial,
		Context:        Context{},
		UpdatedAt:      now,
		LastActivityAt: now,
	}
	m.sessions[key] = s
	return copySession(s), nil
}

func (m *memoryStore) Current(_ context.Context, userID int64, platform transport.Platform) (state.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[pairKey{userID, platform}]
	if !ok {
		return "", ErrNotFound
	}
	return s.Current, nil
}

func (m *memoryStore) Snapshot(_ context.Context, userID int64, platform transport.Platform) (Context, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[pairKey{userID, platform}]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Context.Clone(), nil
}

func (m *memoryStore) TransitionTo(_ context.Context, userID int64, platform transport.Platform, role domain.Role, target state.ID, delta Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[pairKey{userID, platform}]
	if !ok {
		return false, ErrNotFound
	}
	if !state.IsValid(role, s.Current, target) {
		return false, nil
	}
	s.Current = target
	s.Context = s.Context.Merge(delta)
	s.UpdatedAt = time.Now()
	s.LastActivityAt = s.UpdatedAt
	return true, nil
}

func (m *memoryStore) Force(_ context.Context, userID int64, platform transport.Platform, target state.ID, replace Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey{userID, platform}
	s, ok := m.sessions[key]
	if !ok {
		now := time.Now()
		s = &Session{
			UserID:         userID,
			Platform:       platform,
			Context:        Context{},
			UpdatedAt:      now,
			LastActivityAt: now,
		}
		m.sessions[key] = s
	}
	s.Current = target
	if replace != nil {
		s.Context = replace.Clone()
	}
	s.UpdatedAt = time.Now()
	s.LastActivityAt = s.UpdatedAt
	return nil
}

func (m *memoryStore) UpdateContext(_ context.Context, userID int64, platform transport.Platform, key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[pairKey{userID, platform}]
	if !ok {
		return ErrNotFound
	}
	s.Context[key] = value
	s.UpdatedAt = time.Now()
	return nil
}

func copySession(s *Session) *Session {
	out := *s
	out.Context = s.Context.Clone()
	return &out
}
