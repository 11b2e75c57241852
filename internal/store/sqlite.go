package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/medmate/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	caseMu sync.Mutex // Serializes case writes to avoid SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed store.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS case_sessions (
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		case_id TEXT NOT NULL,
		mode TEXT NOT NULL,
		vignette TEXT NOT NULL,
		turn_count INTEGER NOT NULL DEFAULT 0,
		started INTEGER NOT NULL DEFAULT 0,
		transcript_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, session_id)
	);
	CREATE INDEX IF NOT EXISTS idx_case_sessions_updated ON case_sessions(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	var user domain.User
	var lastSeen, createdAt, updatedAt int64

	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&user.UserID, &user.Username, &lastSeen, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Username, user.LastSeenAt.Unix(),
		user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// GetCase retrieves the case session for a user tab.
func (s *SQLiteStore) GetCase(ctx context.Context, key domain.CaseKey) (*domain.CaseSession, error) {
	query := `
		SELECT case_id, mode, vignette, turn_count, started, transcript_json, created_at, updated_at
		FROM case_sessions WHERE user_id = ? AND session_id = ?`

	session := domain.CaseSession{UserID: key.UserID, SessionID: key.SessionID}
	var transcriptJSON string
	var createdAt, updatedAt int64

	err := s.db.QueryRowContext(ctx, query, key.UserID, key.SessionID).Scan(
		&session.ID, &session.Mode, &session.Vignette, &session.TurnCount,
		&session.Started, &transcriptJSON, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan case session: %w", err)
	}

	if err := json.Unmarshal([]byte(transcriptJSON), &session.Transcript); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	session.CreatedAt = time.Unix(createdAt, 0)
	session.UpdatedAt = time.Unix(updatedAt, 0)
	return &session, nil
}

// SaveCase creates or replaces the case session for a user tab.
func (s *SQLiteStore) SaveCase(ctx context.Context, session *domain.CaseSession) error {
	transcriptJSON, err := json.Marshal(session.Transcript)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}

	s.caseMu.Lock()
	defer s.caseMu.Unlock()

	query := `
		INSERT INTO case_sessions (
			user_id, session_id, case_id, mode, vignette, turn_count,
			started, transcript_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, session_id) DO UPDATE SET
			case_id = excluded.case_id,
			mode = excluded.mode,
			vignette = excluded.vignette,
			turn_count = excluded.turn_count,
			started = excluded.started,
			transcript_json = excluded.transcript_json,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query,
		session.UserID, session.SessionID, session.ID, session.Mode, session.Vignette,
		session.TurnCount, session.Started, string(transcriptJSON),
		session.CreatedAt.Unix(), session.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert case session: %w", err)
	}
	return nil
}

// DeleteCase removes a case session, backing off when the database is locked.
func (s *SQLiteStore) DeleteCase(ctx context.Context, key domain.CaseKey) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		err := s.deleteCaseOnce(ctx, key)
		if err == nil {
			return nil
		}

		if IsSQLiteConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i) // 100ms, 200ms, 400ms
			slog.Debug("DeleteCase failed with SQLITE_BUSY, retrying",
				"user_id", key.UserID,
				"session_id", key.SessionID,
				"attempt", i+1,
				"delay", delay)
			time.Sleep(delay)
			continue
		}

		return fmt.Errorf("delete case session %s after %d attempts: %w", key, i+1, err)
	}

	return nil
}

func (s *SQLiteStore) deleteCaseOnce(ctx context.Context, key domain.CaseKey) error {
	s.caseMu.Lock()
	defer s.caseMu.Unlock()

	query := `DELETE FROM case_sessions WHERE user_id = ? AND session_id = ?`
	if _, err := s.db.ExecContext(ctx, query, key.UserID, key.SessionID); err != nil {
		return fmt.Errorf("delete case session: %w", err)
	}
	return nil
}

// CleanupExpiredCases removes case sessions idle longer than ttl.
func (s *SQLiteStore) CleanupExpiredCases(ctx context.Context, ttl time.Duration) (int64, error) {
	s.caseMu.Lock()
	defer s.caseMu.Unlock()

	threshold := time.Now().Add(-ttl).Unix()
	result, err := s.db.ExecContext(ctx, `DELETE FROM case_sessions WHERE updated_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired cases: %w", err)
	}
	return result.RowsAffected()
}

var _ Store = (*SQLiteStore)(nil)
