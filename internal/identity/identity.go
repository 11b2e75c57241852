// Package identity assigns each browser an anonymous student id and each tab
// a case session id.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ashureev/medmate/internal/domain"
	"github.com/ashureev/medmate/internal/store"
)

const (
	AnonCookieName   = "medmate_anon_id"
	SessionHeader    = "X-MedMate-Session-ID"
	SessionQueryKey  = "session_id"
	DefaultSessionID = "default"

	anonCookieMaxAge = 30 * 24 * time.Hour
	lastSeenInterval = time.Minute
)

type contextKey int

const (
	userIDKey contextKey = iota
	sessionIDKey
)

var (
	anonIDPattern    = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)
	sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
)

// UserIDFromContext returns the anonymous student id.
func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}

// SessionIDFromContext returns the tab session id, or DefaultSessionID.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return DefaultSessionID
}

// CaseKeyFromContext returns the case key for the request.
func CaseKeyFromContext(ctx context.Context) domain.CaseKey {
	return domain.CaseKey{UserID: UserIDFromContext(ctx), SessionID: SessionIDFromContext(ctx)}
}

// WithIdentity returns ctx carrying userID and sessionID.
func WithIdentity(ctx context.Context, userID, sessionID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, sessionIDKey, sanitizeSessionID(sessionID))
}

func newAnonID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func sanitizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if !sessionIDPattern.MatchString(id) {
		return DefaultSessionID
	}
	return id
}

// DisplayName derives a short label for an anonymous id.
func DisplayName(userID string) string {
	if len(userID) > 13 {
		return "student-" + userID[len(userID)-8:]
	}
	return "student"
}

func setAnonCookie(w http.ResponseWriter, id string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(anonCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
}

// anonID returns the cookie id, minting a new one when absent or malformed.
// The cookie is refreshed either way so active students keep their id.
func anonID(w http.ResponseWriter, r *http.Request, secure bool) (string, error) {
	id := ""
	if c, err := r.Cookie(AnonCookieName); err == nil && anonIDPattern.MatchString(c.Value) {
		id = c.Value
	} else {
		var genErr error
		if id, genErr = newAnonID(); genErr != nil {
			return "", genErr
		}
	}
	setAnonCookie(w, id, secure)
	return id, nil
}

// touch creates the user on first sight and bumps last-seen at most once per
// lastSeenInterval.
func touch(ctx context.Context, repo store.Repository, userID string, now time.Time) error {
	user, err := repo.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		if err := repo.UpsertUser(ctx, &domain.User{
			UserID:     userID,
			Username:   DisplayName(userID),
			LastSeenAt: now,
			CreatedAt:  now,
			UpdatedAt:  now,
		}); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		return nil
	}
	if user.IdleFor(now) < lastSeenInterval {
		return nil
	}
	if err := repo.UpdateLastSeen(ctx, userID, now); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("update last seen: %w", err)
	}
	return nil
}

// Middleware resolves the student and tab for every request. secureCookie
// should be false only for plain-HTTP development.
func Middleware(repo store.Repository, secureCookie bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := anonID(w, r, secureCookie)
			if err != nil {
				slog.Error("Failed to establish anonymous identity", "error", err)
				http.Error(w, `{"error":"failed to establish anonymous identity"}`, http.StatusInternalServerError)
				return
			}

			if err := touch(r.Context(), repo, userID, time.Now()); err != nil {
				slog.Error("Failed to record anonymous user", "user_id", userID, "error", err)
				http.Error(w, `{"error":"failed to initialize anonymous user"}`, http.StatusInternalServerError)
				return
			}

			sid := r.Header.Get(SessionHeader)
			if sid == "" {
				sid = r.URL.Query().Get(SessionQueryKey)
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), userID, sid)))
		})
	}
}
