// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/medmate/internal/domain"
)

// Repository persists anonymous student identities.
type Repository interface {
	// GetUser retrieves a user by their user ID. Returns nil, nil when absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error
}

// CaseStore holds case sessions keyed by user and tab.
type CaseStore interface {
	// GetCase returns the case session for key, or nil, nil when none exists.
	GetCase(ctx context.Context, key domain.CaseKey) (*domain.CaseSession, error)

	// SaveCase creates or replaces the case session.
	SaveCase(ctx context.Context, session *domain.CaseSession) error

	// DeleteCase removes the case session. Deleting a missing case is not an error.
	DeleteCase(ctx context.Context, key domain.CaseKey) error

	// CleanupExpiredCases removes case sessions idle for longer than ttl.
	CleanupExpiredCases(ctx context.Context, ttl time.Duration) (int64, error)
}

// Store is a complete backend: identities plus case sessions.
type Store interface {
	Repository
	CaseStore

	// Ping verifies backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
