// Package livechat serves the case conversation over a WebSocket so the
// page can drive start, reply and reset without polling.
package livechat

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/medmate/internal/api"
	"github.com/ashureev/medmate/internal/domain"
	"github.com/ashureev/medmate/internal/identity"
	"github.com/ashureev/medmate/internal/transcript"
	"github.com/ashureev/medmate/internal/tutor"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	writeTimeout = 10 * time.Second
	readLimit    = 1 << 20
)

// Frame types.
const (
	FrameStart = "start"
	FrameReply = "reply"
	FrameReset = "reset"
	FrameView  = "view"
	FramePing  = "ping"
	FramePong  = "pong"
	FrameError = "error"
)

// inbound is a client request frame.
type inbound struct {
	Type     string `json:"type"`
	Vignette string `json:"vignette,omitempty"`
	Mode     string `json:"mode,omitempty"`
	Message  string `json:"message,omitempty"`
}

// outbound is a server frame.
type outbound struct {
	Type   string      `json:"type"`
	View   *tutor.View `json:"view,omitempty"`
	Error  string      `json:"error,omitempty"`
	Status int         `json:"status,omitempty"`
}

// Handler upgrades /ws/case requests.
type Handler struct {
	svc            api.CaseService
	registry       *Registry
	limiter        *api.RateLimiter
	originPatterns []string
}

// NewHandler creates a live case handler. originPatterns follow
// websocket.AcceptOptions; an empty list only allows same-origin pages.
func NewHandler(svc api.CaseService, registry *Registry, limiter *api.RateLimiter, originPatterns []string) *Handler {
	return &Handler{svc: svc, registry: registry, limiter: limiter, originPatterns: originPatterns}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := identity.CaseKeyFromContext(r.Context())
	if key.UserID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		slog.Warn("Failed to accept live case connection", "user_id", key.UserID, "error", err)
		return
	}
	ws.SetReadLimit(readLimit)
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "user_id", key.UserID, "error", closeErr)
		}
	}()

	h.registry.Register(key, ws)
	defer h.registry.Unregister(key, ws)

	ctx := r.Context()
	if view, err := h.svc.View(ctx, key); err == nil {
		_ = h.write(ctx, ws, outbound{Type: FrameView, View: view})
	}

	h.readLoop(ctx, ws, key)
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, key domain.CaseKey) {
	for {
		var msg inbound
		if err := wsjson.Read(ctx, ws, &msg); err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("Live case connection closed", "user_id", key.UserID, "session_id", key.SessionID)
			} else {
				slog.Warn("Live case read error", "user_id", key.UserID, "error", err)
			}
			return
		}

		reply := h.dispatch(transcript.WithChannel(ctx, transcript.ChannelWS), key, msg)
		if err := h.write(ctx, ws, reply); err != nil {
			slog.Debug("Live case write error", "user_id", key.UserID, "error", err)
			return
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, key domain.CaseKey, msg inbound) outbound {
	var (
		view *tutor.View
		err  error
	)

	switch msg.Type {
	case FramePing:
		return outbound{Type: FramePong}
	case FrameView:
		view, err = h.svc.View(ctx, key)
	case FrameStart, FrameReply:
		if !h.limiter.Allow(key.UserID) {
			return outbound{Type: FrameError, Error: "rate limit exceeded", Status: http.StatusTooManyRequests}
		}
		if msg.Type == FrameStart {
			view, err = h.svc.StartCase(ctx, key, msg.Vignette, msg.Mode)
		} else {
			view, err = h.svc.Submit(ctx, key, msg.Message)
		}
	case FrameReset:
		view, err = h.svc.Reset(ctx, key)
	default:
		return outbound{Type: FrameError, Error: "unknown frame type", Status: http.StatusBadRequest}
	}

	if err != nil {
		status := api.ServiceErrorStatus(err)
		text := err.Error()
		if status == http.StatusInternalServerError {
			slog.Error("Live case request failed", "user_id", key.UserID, "session_id", key.SessionID, "error", err)
			text = "internal error"
		}
		return outbound{Type: FrameError, Error: text, Status: status}
	}
	return outbound{Type: FrameView, View: view}
}

func (h *Handler) write(ctx context.Context, ws *websocket.Conn, v outbound) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, ws, v)
}
