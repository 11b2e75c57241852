package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/medmate/internal/domain"
	"github.com/ashureev/medmate/internal/identity"
	"github.com/ashureev/medmate/internal/transcript"
	"github.com/ashureev/medmate/internal/tutor"
	"github.com/go-chi/chi/v5"
)

// CaseService is the tutor surface used by the HTTP handlers.
type CaseService interface {
	StartCase(ctx context.Context, key domain.CaseKey, vignette, mode string) (*tutor.View, error)
	Submit(ctx context.Context, key domain.CaseKey, answer string) (*tutor.View, error)
	Reset(ctx context.Context, key domain.CaseKey) (*tutor.View, error)
	View(ctx context.Context, key domain.CaseKey) (*tutor.View, error)
	SummaryTurnThreshold() int
	VisualsEnabled() bool
}

// CaseHandler serves the case conversation routes.
type CaseHandler struct {
	svc         CaseService
	limiter     *RateLimiter
	maxBodySize int64
}

// NewCaseHandler creates a case handler. limiter may be nil.
func NewCaseHandler(svc CaseService, limiter *RateLimiter, maxBodySize int64) *CaseHandler {
	return &CaseHandler{svc: svc, limiter: limiter, maxBodySize: maxBodySize}
}

type startRequest struct {
	Vignette string `json:"vignette"`
	Mode     string `json:"mode"`
}

type replyRequest struct {
	Message string `json:"message"`
}

type configResponse struct {
	Modes            []tutor.Mode `json:"modes"`
	DefaultMode      string       `json:"default_mode"`
	VisualsEnabled   bool         `json:"visuals_enabled"`
	SummaryThreshold int          `json:"summary_threshold"`
	SessionHeader    string       `json:"session_header"`
}

// RegisterRoutes registers case routes. Calls that reach the model are rate
// limited per user.
func (h *CaseHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/config", h.GetConfig)
		r.Get("/case", h.GetCase)
		r.Post("/case/reset", h.Reset)
		r.Group(func(r chi.Router) {
			if h.limiter != nil {
				r.Use(h.limiter.Middleware)
			}
			r.Post("/case/start", h.Start)
			r.Post("/case/reply", h.Reply)
		})
	})
}

// GetConfig returns the client configuration.
func (h *CaseHandler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, configResponse{
		Modes:            tutor.Modes(),
		DefaultMode:      tutor.DefaultMode,
		VisualsEnabled:   h.svc.VisualsEnabled(),
		SummaryThreshold: h.svc.SummaryTurnThreshold(),
		SessionHeader:    identity.SessionHeader,
	})
}

// GetCase returns the current case view for the tab.
func (h *CaseHandler) GetCase(w http.ResponseWriter, r *http.Request) {
	key, ok := caseKey(w, r)
	if !ok {
		return
	}
	view, err := h.svc.View(r.Context(), key)
	if err != nil {
		writeServiceError(w, key, err)
		return
	}
	JSON(w, http.StatusOK, view)
}

// Start opens a new case, replacing any existing one.
func (h *CaseHandler) Start(w http.ResponseWriter, r *http.Request) {
	key, ok := caseKey(w, r)
	if !ok {
		return
	}
	var req startRequest
	if err := decodeBody(w, r, h.maxBodySize, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	view, err := h.svc.StartCase(transcript.WithChannel(r.Context(), transcript.ChannelHTTP), key, req.Vignette, req.Mode)
	if err != nil {
		writeServiceError(w, key, err)
		return
	}
	JSON(w, http.StatusOK, view)
}

// Reply submits a student answer.
func (h *CaseHandler) Reply(w http.ResponseWriter, r *http.Request) {
	key, ok := caseKey(w, r)
	if !ok {
		return
	}
	var req replyRequest
	if err := decodeBody(w, r, h.maxBodySize, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	view, err := h.svc.Submit(transcript.WithChannel(r.Context(), transcript.ChannelHTTP), key, req.Message)
	if err != nil {
		writeServiceError(w, key, err)
		return
	}
	JSON(w, http.StatusOK, view)
}

// Reset drops the tab's case.
func (h *CaseHandler) Reset(w http.ResponseWriter, r *http.Request) {
	key, ok := caseKey(w, r)
	if !ok {
		return
	}
	view, err := h.svc.Reset(transcript.WithChannel(r.Context(), transcript.ChannelHTTP), key)
	if err != nil {
		writeServiceError(w, key, err)
		return
	}
	JSON(w, http.StatusOK, view)
}

func caseKey(w http.ResponseWriter, r *http.Request) (domain.CaseKey, bool) {
	key := identity.CaseKeyFromContext(r.Context())
	if key.UserID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return key, false
	}
	return key, true
}

// ServiceErrorStatus maps tutor errors to HTTP status codes.
func ServiceErrorStatus(err error) int {
	switch {
	case errors.Is(err, tutor.ErrEmptyVignette), errors.Is(err, tutor.ErrUnknownMode):
		return http.StatusBadRequest
	case errors.Is(err, tutor.ErrCaseNotStarted):
		return http.StatusNotFound
	case errors.Is(err, tutor.ErrTurnInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, key domain.CaseKey, err error) {
	status := ServiceErrorStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("Case request failed", "user_id", key.UserID, "session_id", key.SessionID, "error", err)
		Error(w, status, "internal error")
		return
	}
	Error(w, status, err.Error())
}
