package livechat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/medmate/internal/api"
	"github.com/ashureev/medmate/internal/identity"
	"github.com/ashureev/medmate/internal/llm"
	"github.com/ashureev/medmate/internal/store"
	"github.com/ashureev/medmate/internal/tutor"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
)

const testAnonID = "anon_0123456789abcdef0123456789abcdef"

func newLiveServer(t *testing.T, limiter *api.RateLimiter) (*httptest.Server, *Registry) {
	t.Helper()
	mock := llm.NewMock()
	svc := tutor.NewService(store.NewMemory(), mock, mock, nil, tutor.Config{VisualsEnabled: true})
	registry := NewRegistry()

	r := chi.NewRouter()
	r.Use(identity.Middleware(store.NewMemory(), false))
	r.Get("/ws/case", NewHandler(svc, registry, limiter, nil).ServeHTTP)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, registry
}

func dial(t *testing.T, srv *httptest.Server, session string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	header := http.Header{}
	header.Set("Cookie", identity.AnonCookieName+"="+testAnonID)
	header.Set(identity.SessionHeader, session)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/case"
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, req inbound) outbound {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := wsjson.Write(ctx, conn, req); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	return read(t, conn)
}

func read(t *testing.T, conn *websocket.Conn) outbound {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out outbound
	if err := wsjson.Read(ctx, conn, &out); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return out
}

func TestLiveCaseConversation(t *testing.T) {
	srv, registry := newLiveServer(t, nil)
	conn := dial(t, srv, "tab-1")

	initial := read(t, conn)
	if initial.Type != FrameView || initial.View == nil || initial.View.Started {
		t.Fatalf("expected not-started view on connect, got %+v", initial)
	}
	if registry.Len() != 1 {
		t.Fatalf("expected registered connection, got %d", registry.Len())
	}

	if pong := roundTrip(t, conn, inbound{Type: FramePing}); pong.Type != FramePong {
		t.Fatalf("expected pong, got %+v", pong)
	}

	started := roundTrip(t, conn, inbound{Type: FrameStart, Vignette: "55F with chest pain"})
	if started.Type != FrameView || !started.View.Started || len(started.View.Messages) != 1 {
		t.Fatalf("expected started view, got %+v", started)
	}

	replied := roundTrip(t, conn, inbound{Type: FrameReply, Message: "I'd like to conclude"})
	if replied.Type != FrameView || !replied.View.SummaryForced || replied.View.TurnCount != 1 {
		t.Fatalf("expected forced summary, got %+v", replied.View)
	}

	reset := roundTrip(t, conn, inbound{Type: FrameReset})
	if reset.Type != FrameView || reset.View.Started {
		t.Fatalf("expected reset view, got %+v", reset)
	}
}

func TestLiveCaseErrors(t *testing.T) {
	srv, _ := newLiveServer(t, nil)
	conn := dial(t, srv, "tab-1")
	read(t, conn)

	tests := []struct {
		name       string
		req        inbound
		wantStatus int
	}{
		{"unknown frame", inbound{Type: "dance"}, http.StatusBadRequest},
		{"reply before start", inbound{Type: FrameReply, Message: "hi"}, http.StatusNotFound},
		{"empty vignette", inbound{Type: FrameStart, Vignette: " "}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		out := roundTrip(t, conn, tt.req)
		if out.Type != FrameError || out.Status != tt.wantStatus {
			t.Errorf("%s: expected error %d, got %+v", tt.name, tt.wantStatus, out)
		}
	}
}

func TestLiveCaseRateLimited(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, _ := newLiveServer(t, api.NewRateLimiter(ctx, 1, time.Minute))
	conn := dial(t, srv, "tab-1")
	read(t, conn)

	if out := roundTrip(t, conn, inbound{Type: FrameStart, Vignette: "case"}); out.Type != FrameView {
		t.Fatalf("expected first start to pass, got %+v", out)
	}
	out := roundTrip(t, conn, inbound{Type: FrameReply, Message: "hi"})
	if out.Type != FrameError || out.Status != http.StatusTooManyRequests {
		t.Fatalf("expected rate limit error, got %+v", out)
	}
}

func TestLiveCaseReplacesOlderConnection(t *testing.T) {
	srv, registry := newLiveServer(t, nil)
	first := dial(t, srv, "tab-1")
	read(t, first)
	second := dial(t, srv, "tab-1")
	read(t, second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var out outbound
	err := wsjson.Read(ctx, first, &out)
	if websocket.CloseStatus(err) != websocket.StatusPolicyViolation {
		t.Fatalf("expected older connection closed with policy violation, got %v", err)
	}
	if registry.Len() != 1 {
		t.Fatalf("expected one active connection, got %d", registry.Len())
	}
}
