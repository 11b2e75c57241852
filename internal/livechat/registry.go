package livechat

import (
	"log/slog"
	"sync"

	"github.com/ashureev/medmate/internal/domain"
	"github.com/coder/websocket"
)

type closer interface {
	Close(code websocket.StatusCode, reason string) error
}

// Registry tracks the open live connection of every tab. A tab has at most
// one connection; a newer one replaces the older.
type Registry struct {
	mu     sync.RWMutex
	active map[string]map[string]closer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]map[string]closer)}
}

// get returns the connection registered for key.
func (r *Registry) get(key domain.CaseKey) closer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active[key.UserID][key.SessionID]
}

// Register stores conn for key, closing any connection it replaces.
func (r *Registry) Register(key domain.CaseKey, conn closer) {
	r.mu.Lock()
	tabs, ok := r.active[key.UserID]
	if !ok {
		tabs = make(map[string]closer)
		r.active[key.UserID] = tabs
	}
	replaced := tabs[key.SessionID]
	tabs[key.SessionID] = conn
	r.mu.Unlock()

	if replaced != nil && replaced != conn {
		_ = replaced.Close(websocket.StatusPolicyViolation, "replaced by newer connection")
	}
	slog.Info("Live case connection registered", "user_id", key.UserID, "session_id", key.SessionID)
}

// Unregister removes conn if it is still the current one for key.
func (r *Registry) Unregister(key domain.CaseKey, conn closer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tabs, ok := r.active[key.UserID]
	if !ok || tabs[key.SessionID] != conn {
		return
	}
	delete(tabs, key.SessionID)
	if len(tabs) == 0 {
		delete(r.active, key.UserID)
	}
	slog.Info("Live case connection unregistered", "user_id", key.UserID, "session_id", key.SessionID)
}

// CloseAll closes every connection, used on shutdown.
func (r *Registry) CloseAll(reason string) {
	r.mu.Lock()
	var conns []closer
	for userID, tabs := range r.active {
		for _, conn := range tabs {
			conns = append(conns, conn)
		}
		delete(r.active, userID)
	}
	r.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close(websocket.StatusGoingAway, reason)
	}
}

// Len returns the number of open connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, tabs := range r.active {
		n += len(tabs)
	}
	return n
}
