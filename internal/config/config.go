// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Session backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// LLM providers.
const (
	ProviderOpenAI = "openai"
	ProviderGoogle = "google"
	ProviderMock   = "mock"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	LogLevel    string

	SessionBackend string
	DBPath         string
	RedisURL       string
	SessionTTL     time.Duration

	LLM        LLMConfig
	Tutor      TutorConfig
	RateLimit  RateLimitConfig
	Transcript TranscriptLogConfig

	MaxRequestBodySize int64
}

// LLMConfig selects and configures the chat and image providers.
type LLMConfig struct {
	Provider    string
	Temperature float64
	Timeout     time.Duration
	ImageSize   string

	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIChatModel  string
	OpenAIImageModel string

	GoogleAPIKey     string
	GoogleChatModel  string
	GoogleImageModel string
}

// TutorConfig controls the case conversation.
type TutorConfig struct {
	SummaryTurnThreshold int
	VisualsEnabled       bool
}

// RateLimitConfig bounds model-backed requests per user.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// TranscriptLogConfig controls NDJSON transcript logging.
type TranscriptLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
	GlobalMaxSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("TRANSCRIPT_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		SessionBackend: strings.ToLower(getEnv("SESSION_BACKEND", BackendMemory)),
		DBPath:         getEnv("DB_PATH", "./data/medmate.db"),
		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379/0"),
		SessionTTL:     getEnvDuration("SESSION_TTL", 2*time.Hour),

		LLM: LLMConfig{
			Provider:    strings.ToLower(getEnv("LLM_PROVIDER", ProviderOpenAI)),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.25),
			Timeout:     getEnvDuration("LLM_TIMEOUT", 60*time.Second),
			ImageSize:   getEnv("IMAGE_SIZE", "1024x1024"),

			OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			OpenAIChatModel:  getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
			OpenAIImageModel: getEnv("OPENAI_IMAGE_MODEL", "dall-e-3"),

			GoogleAPIKey:     getEnv("GOOGLE_API_KEY", ""),
			GoogleChatModel:  getEnv("GOOGLE_CHAT_MODEL", "gemini-2.5-flash"),
			GoogleImageModel: getEnv("GOOGLE_IMAGE_MODEL", "imagen-3.0-generate-002"),
		},
		Tutor: TutorConfig{
			SummaryTurnThreshold: getEnvInt("SUMMARY_TURN_THRESHOLD", 6),
			VisualsEnabled:       getEnvBool("VISUALS_ENABLED", true),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 20),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Transcript: TranscriptLogConfig{
			Enabled:       getEnvBool("TRANSCRIPT_LOG_ENABLED", true),
			Dir:           getEnv("TRANSCRIPT_LOG_DIR", "./data/logs/transcripts"),
			GlobalEnabled: getEnvBool("TRANSCRIPT_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("TRANSCRIPT_LOG_GLOBAL_PATH", "./data/logs/transcripts/all.ndjson"),
			QueueSize:     queueSize,
			GlobalMaxSize: getEnvInt("TRANSCRIPT_LOG_GLOBAL_MAX_SIZE_MB", 50),
		},
		MaxRequestBodySize: int64(getEnvInt("MAX_REQUEST_BODY_BYTES", 1<<20)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	switch c.SessionBackend {
	case BackendMemory:
	case BackendSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty for sqlite backend")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL cannot be empty for redis backend")
		}
	default:
		return fmt.Errorf("unknown SESSION_BACKEND %q", c.SessionBackend)
	}

	switch c.LLM.Provider {
	case ProviderOpenAI:
		if strings.TrimSpace(c.LLM.OpenAIAPIKey) == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
	case ProviderGoogle:
		if strings.TrimSpace(c.LLM.GoogleAPIKey) == "" {
			return fmt.Errorf("GOOGLE_API_KEY is required for the google provider")
		}
	case ProviderMock:
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLM.Provider)
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be within [0, 2]")
	}
	if c.Tutor.SummaryTurnThreshold <= 0 {
		return fmt.Errorf("SUMMARY_TURN_THRESHOLD must be > 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_BYTES must be > 0")
	}
	if c.Transcript.Dir == "" {
		return fmt.Errorf("TRANSCRIPT_LOG_DIR cannot be empty")
	}
	if c.Transcript.GlobalPath == "" {
		return fmt.Errorf("TRANSCRIPT_LOG_GLOBAL_PATH cannot be empty")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
