package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/ashureev/medmate/internal/config"
	"github.com/ashureev/medmate/internal/llm"
	"github.com/ashureev/medmate/internal/store"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestOpenStore(t *testing.T) {
	mem, err := openStore(&config.Config{SessionBackend: config.BackendMemory})
	if err != nil {
		t.Fatalf("openStore memory failed: %v", err)
	}
	if _, ok := mem.(*store.MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", mem)
	}

	sqlite, err := openStore(&config.Config{
		SessionBackend: config.BackendSQLite,
		DBPath:         filepath.Join(t.TempDir(), "medmate.db"),
	})
	if err != nil {
		t.Fatalf("openStore sqlite failed: %v", err)
	}
	defer func() { _ = sqlite.Close() }()
	if err := sqlite.Ping(context.Background()); err != nil {
		t.Fatalf("sqlite ping failed: %v", err)
	}
}

func TestNewModelClients(t *testing.T) {
	chat, images, err := newModelClients(context.Background(), config.LLMConfig{Provider: config.ProviderMock})
	if err != nil {
		t.Fatalf("mock clients failed: %v", err)
	}
	if _, ok := chat.(*llm.MockClient); !ok {
		t.Fatalf("expected mock chat client, got %T", chat)
	}
	if images == nil {
		t.Fatal("expected image client")
	}

	chat, _, err = newModelClients(context.Background(), config.LLMConfig{
		Provider:     config.ProviderOpenAI,
		OpenAIAPIKey: "sk-test",
	})
	if err != nil {
		t.Fatalf("openai clients failed: %v", err)
	}
	if _, ok := chat.(*llm.OpenAIClient); !ok {
		t.Fatalf("expected openai client, got %T", chat)
	}

	if _, _, err := newModelClients(context.Background(), config.LLMConfig{Provider: config.ProviderOpenAI}); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestAllowedOrigins(t *testing.T) {
	cors, ws := allowedOrigins(&config.Config{})
	if len(cors) != 1 || cors[0] != "*" || len(ws) != 2 {
		t.Fatalf("unexpected dev origins %v %v", cors, ws)
	}

	cors, ws = allowedOrigins(&config.Config{FrontendURL: "https://medmate.example/app"})
	if len(cors) != 1 || cors[0] != "https://medmate.example" {
		t.Fatalf("unexpected cors origins %v", cors)
	}
	if len(ws) != 1 || ws[0] != "medmate.example" {
		t.Fatalf("unexpected ws origins %v", ws)
	}
}
