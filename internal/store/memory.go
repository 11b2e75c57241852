package store

import (
	"context"
	"sync"
	"time"

	"github.com/ashureev/medmate/internal/domain"
)

// MemoryStore keeps everything in process memory. State is lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*domain.User
	cases map[string]*domain.CaseSession
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*domain.User),
		cases: make(map[string]*domain.CaseSession),
	}
}

// GetUser implements Repository.
func (s *MemoryStore) GetUser(_ context.Context, userID string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

// UpsertUser implements Repository.
func (s *MemoryStore) UpsertUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *user
	if existing, ok := s.users[user.UserID]; ok {
		copied.CreatedAt = existing.CreatedAt
	}
	s.users[user.UserID] = &copied
	return nil
}

// UpdateLastSeen implements Repository.
func (s *MemoryStore) UpdateLastSeen(_ context.Context, userID string, lastSeen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	user.LastSeenAt = lastSeen
	user.UpdatedAt = time.Now()
	return nil
}

// GetCase implements CaseStore.
func (s *MemoryStore) GetCase(_ context.Context, key domain.CaseKey) (*domain.CaseSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.cases[key.String()]
	if !ok {
		return nil, nil
	}
	return session.Clone(), nil
}

// SaveCase implements CaseStore.
func (s *MemoryStore) SaveCase(_ context.Context, session *domain.CaseSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cases[session.Key().String()] = session.Clone()
	return nil
}

// DeleteCase implements CaseStore.
func (s *MemoryStore) DeleteCase(_ context.Context, key domain.CaseKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cases, key.String())
	return nil
}

// CleanupExpiredCases implements CaseStore.
func (s *MemoryStore) CleanupExpiredCases(_ context.Context, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	threshold := time.Now().Add(-ttl)
	var deleted int64
	for key, session := range s.cases {
		if session.UpdatedAt.Before(threshold) {
			delete(s.cases, key)
			deleted++
		}
	}
	return deleted, nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
