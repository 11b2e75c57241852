package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/ashureev/medmate/internal/config"
	"github.com/ashureev/medmate/internal/llm"
	"github.com/ashureev/medmate/internal/store"
)

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.SessionBackend {
	case config.BackendSQLite:
		s, err := store.NewSQLite(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	case config.BackendRedis:
		s, err := store.NewRedis(cfg.RedisURL, cfg.SessionTTL)
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		return s, nil
	default:
		return store.NewMemory(), nil
	}
}

func newModelClients(ctx context.Context, cfg config.LLMConfig) (llm.ChatClient, llm.ImageClient, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		c, err := llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			ChatModel:   cfg.OpenAIChatModel,
			ImageModel:  cfg.OpenAIImageModel,
			ImageSize:   cfg.ImageSize,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create openai client: %w", err)
		}
		return c, c, nil
	case config.ProviderGoogle:
		c, err := llm.NewGoogle(ctx, llm.GoogleConfig{
			APIKey:      cfg.GoogleAPIKey,
			ChatModel:   cfg.GoogleChatModel,
			ImageModel:  cfg.GoogleImageModel,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create google client: %w", err)
		}
		return c, c, nil
	default:
		m := llm.NewMock()
		return m, m, nil
	}
}

// allowedOrigins returns CORS origins and WebSocket origin patterns.
func allowedOrigins(cfg *config.Config) (cors []string, ws []string) {
	if cfg.FrontendURL == "" {
		return []string{"*"}, []string{"localhost:*", "127.0.0.1:*"}
	}
	u, err := url.Parse(cfg.FrontendURL)
	if err != nil || u.Host == "" {
		return []string{"*"}, nil
	}
	origin := u.Scheme + "://" + u.Host
	ws = []string{u.Host}
	if cfg.IsDevelopment() {
		ws = append(ws, "localhost:*", "127.0.0.1:*")
	}
	return []string{origin}, ws
}
