// Package transcript writes an asynchronous NDJSON record of every case
// conversation, one file per user and browser tab.
package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Event types.
const (
	EventCaseStarted    = "case_started"
	EventStudentAnswer  = "student_answer"
	EventSummaryForced  = "summary_forced"
	EventAttendingReply = "attending_reply"
	EventIllustration   = "illustration"
	EventCaseReset      = "case_reset"
)

// Channels an event can arrive on.
const (
	ChannelHTTP = "http"
	ChannelWS   = "ws"
)

type channelKey struct{}

// WithChannel tags ctx with the channel the request arrived on.
func WithChannel(ctx context.Context, channel string) context.Context {
	return context.WithValue(ctx, channelKey{}, channel)
}

// ChannelFromContext returns the channel set by WithChannel, or "".
func ChannelFromContext(ctx context.Context) string {
	ch, _ := ctx.Value(channelKey{}).(string)
	return ch
}

// Event is one line of the transcript log.
type Event struct {
	Timestamp  string         `json:"ts"`
	UserID     string         `json:"user_id"`
	SessionID  string         `json:"session_id"`
	CaseID     string         `json:"case_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Direction  string         `json:"direction,omitempty"`
	EventType  string         `json:"event_type"`
	Turn       int            `json:"turn"`
	ContentRaw string         `json:"content_raw,omitempty"`
	Content    string         `json:"content,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// Logger records transcript events. Log never blocks the caller.
type Logger interface {
	Log(Event)
	Close() error
}

// Config controls where events are written.
type Config struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
	// GlobalMaxSizeMB is the rotation threshold of the global file.
	GlobalMaxSizeMB int
}

// Noop discards every event.
type Noop struct{}

func (Noop) Log(Event)    {}
func (Noop) Close() error { return nil }

type fileLogger struct {
	dir    string
	global *lumberjack.Logger
	queue  chan Event
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// New returns a Logger for cfg. A disabled config yields Noop.
func New(cfg Config, logger *slog.Logger) (Logger, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("transcript log dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1000
	}

	l := &fileLogger{
		dir:    cfg.Dir,
		queue:  make(chan Event, queueSize),
		logger: logger,
		done:   make(chan struct{}),
	}

	if cfg.GlobalEnabled && cfg.GlobalPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0o750); err != nil {
			return nil, fmt.Errorf("create global transcript dir: %w", err)
		}
		maxSize := cfg.GlobalMaxSizeMB
		if maxSize <= 0 {
			maxSize = 50
		}
		l.global = &lumberjack.Logger{
			Filename:   cfg.GlobalPath,
			MaxSize:    maxSize,
			MaxBackups: 5,
			Compress:   true,
		}
	}

	go l.run()
	return l, nil
}

// Log enqueues ev. Events are dropped with a warning when the queue is full.
func (l *fileLogger) Log(ev Event) {
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if ev.Content == "" && ev.ContentRaw != "" {
		ev.Content = Clean(ev.ContentRaw)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- ev:
	default:
		l.logger.Warn("transcript queue full, dropping event",
			"user_id", ev.UserID, "session_id", ev.SessionID, "event_type", ev.EventType)
	}
}

// Close drains pending events and closes the global file.
func (l *fileLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	<-l.done
	if l.global != nil {
		if err := l.global.Close(); err != nil {
			return fmt.Errorf("close global transcript: %w", err)
		}
	}
	return nil
}

func (l *fileLogger) run() {
	defer close(l.done)
	for ev := range l.queue {
		line, err := json.Marshal(ev)
		if err != nil {
			l.logger.Warn("failed to encode transcript event", "error", err)
			continue
		}
		line = append(line, '\n')

		if err := l.appendSession(ev, line); err != nil {
			l.logger.Warn("failed to write transcript event",
				"user_id", ev.UserID, "session_id", ev.SessionID, "error", err)
		}
		if l.global != nil {
			if _, err := l.global.Write(line); err != nil {
				l.logger.Warn("failed to write global transcript event", "error", err)
			}
		}
	}
}

func (l *fileLogger) appendSession(ev Event, line []byte) error {
	userDir := filepath.Join(l.dir, safeName(ev.UserID))
	if err := os.MkdirAll(userDir, 0o750); err != nil {
		return fmt.Errorf("create user dir: %w", err)
	}
	path := filepath.Join(userDir, safeName(ev.SessionID)+".ndjson")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640) //nolint:gosec // path is built from sanitized ids
	if err != nil {
		return fmt.Errorf("open transcript file: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("append transcript line: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close transcript file: %w", err)
	}
	return nil
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

func safeName(id string) string {
	id = unsafeNameChars.ReplaceAllString(id, "_")
	id = strings.Trim(id, ".")
	if id == "" {
		return "unknown"
	}
	return id
}

var (
	markdownEmphasis = regexp.MustCompile(`\*\*|__|\x60`)
	whitespaceRun    = regexp.MustCompile(`\s+`)
)

// Clean strips markdown emphasis and control characters and collapses
// whitespace so log lines stay readable.
func Clean(raw string) string {
	s := markdownEmphasis.ReplaceAllString(raw, "")
	s = strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}
