package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/ashureev/medmate/internal/identity"
)

// RateLimiter is a sliding-window limiter keyed by anonymous user id.
// Tabs share their user's budget so rotating session ids does not help.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time
}

// NewRateLimiter creates a limiter whose eviction loop stops with ctx.
func NewRateLimiter(ctx context.Context, limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
	go rl.evictLoop(ctx)
	return rl
}

// Allow records a request for key and reports whether it is within budget.
func (r *RateLimiter) Allow(key string) bool {
	if r == nil || r.limit <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	recent := r.fresh(r.requests[key], now)
	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}
	r.requests[key] = append(recent, now)
	return true
}

// Middleware rejects over-budget requests with 429.
func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !r.Allow(identity.UserIDFromContext(req.Context())) {
			Error(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (r *RateLimiter) fresh(times []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-r.window)
	var out []time.Time
	for _, t := range times {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

func (r *RateLimiter) evictLoop(ctx context.Context) {
	if r.window <= 0 {
		return
	}
	ticker := time.NewTicker(r.window)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.evict()
		case <-ctx.Done():
			return
		}
	}
}

func (r *RateLimiter) evict() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for key, times := range r.requests {
		if recent := r.fresh(times, now); len(recent) == 0 {
			delete(r.requests, key)
		} else {
			r.requests[key] = recent
		}
	}
}
