package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/medmate/internal/domain"
	"github.com/ashureev/medmate/internal/identity"
	"github.com/ashureev/medmate/internal/llm"
	"github.com/ashureev/medmate/internal/store"
	"github.com/ashureev/medmate/internal/transcript"
	"github.com/ashureev/medmate/internal/tutor"
	"github.com/go-chi/chi/v5"
)

const testAnonID = "anon_0123456789abcdef0123456789abcdef"

func newCaseRouter(t *testing.T, svc CaseService, limiter *RateLimiter) http.Handler {
	t.Helper()
	repo := store.NewMemory()
	r := chi.NewRouter()
	r.Use(identity.Middleware(repo, false))
	NewCaseHandler(svc, limiter, 1024).RegisterRoutes(r)
	return r
}

func newMockService() *tutor.Service {
	mock := llm.NewMock()
	return tutor.NewService(store.NewMemory(), mock, mock, nil, tutor.Config{VisualsEnabled: true})
}

func do(t *testing.T, h http.Handler, method, path, session string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.AddCookie(&http.Cookie{Name: identity.AnonCookieName, Value: testAnonID})
	if session != "" {
		req.Header.Set(identity.SessionHeader, session)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, out
}

func TestGetConfig(t *testing.T) {
	h := newCaseRouter(t, newMockService(), nil)

	rec, body := do(t, h, http.MethodGet, "/api/config", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["default_mode"] != tutor.DefaultMode || body["visuals_enabled"] != true {
		t.Fatalf("unexpected config %v", body)
	}
	if body["summary_threshold"].(float64) != tutor.DefaultSummaryTurnThreshold {
		t.Fatalf("unexpected threshold %v", body["summary_threshold"])
	}
	if body["session_header"] != identity.SessionHeader {
		t.Fatalf("unexpected session header %v", body["session_header"])
	}
}

func TestCaseLifecycle(t *testing.T) {
	h := newCaseRouter(t, newMockService(), nil)

	rec, body := do(t, h, http.MethodGet, "/api/case", "tab-1", nil)
	if rec.Code != http.StatusOK || body["started"] != false {
		t.Fatalf("expected not-started case, got %d %v", rec.Code, body)
	}

	rec, body = do(t, h, http.MethodPost, "/api/case/start", "tab-1", map[string]string{"vignette": "55F with chest pain"})
	if rec.Code != http.StatusOK || body["started"] != true {
		t.Fatalf("expected started case, got %d %v", rec.Code, body)
	}
	msgs := body["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("expected opening reply only, got %v", msgs)
	}
	opening := msgs[0].(map[string]any)
	if opening["image"] == nil {
		t.Fatal("mock opening reply mentions a diagram and should carry an image")
	}

	rec, body = do(t, h, http.MethodPost, "/api/case/reply", "tab-1", map[string]string{"message": "Check vitals"})
	if rec.Code != http.StatusOK || body["turn_count"].(float64) != 1 {
		t.Fatalf("expected turn 1, got %d %v", rec.Code, body)
	}

	rec, body = do(t, h, http.MethodPost, "/api/case/reply", "tab-1", map[string]string{"message": "   "})
	if rec.Code != http.StatusOK || body["ignored"] != true || body["turn_count"].(float64) != 1 {
		t.Fatalf("expected ignored answer, got %d %v", rec.Code, body)
	}

	rec, body = do(t, h, http.MethodPost, "/api/case/reply", "tab-1", map[string]string{"message": "Let's conclude"})
	if rec.Code != http.StatusOK || body["summary_forced"] != true {
		t.Fatalf("expected forced summary, got %d %v", rec.Code, body)
	}

	// Another tab of the same student has its own case.
	rec, body = do(t, h, http.MethodGet, "/api/case", "tab-2", nil)
	if rec.Code != http.StatusOK || body["started"] != false {
		t.Fatalf("expected tab-2 to be independent, got %v", body)
	}

	rec, body = do(t, h, http.MethodPost, "/api/case/reset", "tab-1", nil)
	if rec.Code != http.StatusOK || body["started"] != false {
		t.Fatalf("expected reset, got %d %v", rec.Code, body)
	}
}

func TestCaseErrors(t *testing.T) {
	h := newCaseRouter(t, newMockService(), nil)

	tests := []struct {
		name       string
		path       string
		body       any
		wantStatus int
	}{
		{"empty vignette", "/api/case/start", map[string]string{"vignette": "  "}, http.StatusBadRequest},
		{"unknown mode", "/api/case/start", map[string]string{"vignette": "x", "mode": "radiology"}, http.StatusBadRequest},
		{"reply before start", "/api/case/reply", map[string]string{"message": "hi"}, http.StatusNotFound},
		{"too large", "/api/case/start", map[string]string{"vignette": strings.Repeat("x", 2048)}, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, h, http.MethodPost, tt.path, "tab-err", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d %v", tt.wantStatus, rec.Code, body)
			}
			if body["error"] == nil {
				t.Fatal("expected error message")
			}
		})
	}
}

type busyService struct {
	CaseService
}

func (busyService) Submit(context.Context, domain.CaseKey, string) (*tutor.View, error) {
	return nil, tutor.ErrTurnInProgress
}

func (busyService) StartCase(context.Context, domain.CaseKey, string, string) (*tutor.View, error) {
	return nil, errors.New("store unavailable")
}

func TestCaseServiceErrorMapping(t *testing.T) {
	h := newCaseRouter(t, busyService{}, nil)

	rec, _ := do(t, h, http.MethodPost, "/api/case/reply", "tab-1", map[string]string{"message": "hi"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	rec, body := do(t, h, http.MethodPost, "/api/case/start", "tab-1", map[string]string{"vignette": "x"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if body["error"] != "internal error" {
		t.Fatalf("internal errors must not leak, got %v", body["error"])
	}
}

func TestCaseRoutesAreRateLimited(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newCaseRouter(t, newMockService(), NewRateLimiter(ctx, 1, time.Minute))

	rec, _ := do(t, h, http.MethodPost, "/api/case/start", "tab-1", map[string]string{"vignette": "case"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rec.Code)
	}
	rec, _ = do(t, h, http.MethodPost, "/api/case/reply", "tab-2", map[string]string{"message": "hi"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 across tabs, got %d", rec.Code)
	}
	rec, _ = do(t, h, http.MethodGet, "/api/case", "tab-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reads should not be limited, got %d", rec.Code)
	}
}

type channelLog struct {
	mu       sync.Mutex
	channels []string
}

func (l *channelLog) Log(ev transcript.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.channels = append(l.channels, ev.Channel)
}

func (l *channelLog) Close() error { return nil }

func TestCaseRoutesTagHTTPChannel(t *testing.T) {
	mock := llm.NewMock()
	log := &channelLog{}
	svc := tutor.NewService(store.NewMemory(), mock, mock, log, tutor.Config{})
	h := newCaseRouter(t, svc, nil)

	if rec, _ := do(t, h, http.MethodPost, "/api/case/start", "tab-1", map[string]string{"vignette": "55F chest pain"}); rec.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d", rec.Code)
	}
	if rec, _ := do(t, h, http.MethodPost, "/api/case/reset", "tab-1", nil); rec.Code != http.StatusOK {
		t.Fatalf("reset: expected 200, got %d", rec.Code)
	}

	log.mu.Lock()
	defer log.mu.Unlock()
	if len(log.channels) == 0 {
		t.Fatal("expected transcript events")
	}
	for i, ch := range log.channels {
		if ch != transcript.ChannelHTTP {
			t.Errorf("event %d: expected channel http, got %q", i, ch)
		}
	}
}
