// Package domain contains core domain types for the MedMate application.
package domain

import (
	"time"
)

// User is an anonymous per-device student identity.
type User struct {
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IdleFor returns how long the user has been inactive.
func (u *User) IdleFor(now time.Time) time.Duration {
	if u.LastSeenAt.IsZero() {
		return 0
	}
	idle := now.Sub(u.LastSeenAt)
	if idle < 0 {
		return 0
	}
	return idle
}
