// Package tutor runs the attending-physician case conversation: it advances
// the turn counter, calls the chat and image clients, and persists each
// case session through a store.CaseStore.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/medmate/internal/domain"
	"github.com/ashureev/medmate/internal/llm"
	"github.com/ashureev/medmate/internal/store"
	"github.com/ashureev/medmate/internal/transcript"
	"github.com/google/uuid"
)

var (
	ErrEmptyVignette  = errors.New("vignette is required")
	ErrUnknownMode    = errors.New("unknown mode")
	ErrCaseNotStarted = errors.New("case not started")
	ErrTurnInProgress = errors.New("turn in progress")
)

// Config tunes the conversation.
type Config struct {
	SummaryTurnThreshold int
	VisualsEnabled       bool
}

// Service owns the case flow for every (user, tab) pair.
type Service struct {
	cases  store.CaseStore
	chat   llm.ChatClient
	images llm.ImageClient
	log    transcript.Logger
	cfg    Config

	turns sync.Map

	now   func() time.Time
	newID func() string
}

// NewService wires a tutor service. images may be nil to disable
// illustrations; log may be nil.
func NewService(cases store.CaseStore, chat llm.ChatClient, images llm.ImageClient, log transcript.Logger, cfg Config) *Service {
	if log == nil {
		log = transcript.Noop{}
	}
	if cfg.SummaryTurnThreshold <= 0 {
		cfg.SummaryTurnThreshold = DefaultSummaryTurnThreshold
	}
	return &Service{
		cases:  cases,
		chat:   chat,
		images: images,
		log:    log,
		cfg:    cfg,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// SummaryTurnThreshold returns the effective threshold.
func (s *Service) SummaryTurnThreshold() int { return s.cfg.SummaryTurnThreshold }

// VisualsEnabled reports whether illustrations can be generated.
func (s *Service) VisualsEnabled() bool { return s.cfg.VisualsEnabled && s.images != nil }

// StartCase discards any existing case for key and opens a new one with the
// attending's first reaction.
func (s *Service) StartCase(ctx context.Context, key domain.CaseKey, vignette, modeID string) (*View, error) {
	vignette = strings.TrimSpace(vignette)
	if vignette == "" {
		return nil, ErrEmptyVignette
	}
	mode, ok := LookupMode(modeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMode, modeID)
	}

	unlock, err := s.lockTurn(key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.now()
	session := &domain.CaseSession{
		ID:        s.newID(),
		UserID:    key.UserID,
		SessionID: key.SessionID,
		Mode:      mode.ID,
		Vignette:  vignette,
		Started:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	session.Append(
		domain.Message{Role: domain.RoleSystem, Content: mode.SystemPrompt, Kind: domain.KindInstruction},
		domain.Message{Role: domain.RoleUser, Content: CasePresentation(vignette), Kind: domain.KindCasePresentation},
	)

	slog.Info("Case started", "user_id", key.UserID, "session_id", key.SessionID, "case_id", session.ID, "mode", mode.ID)
	s.record(ctx, session, transcript.EventCaseStarted, vignette, nil)

	s.respond(ctx, session)

	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return NewView(session, s.cfg.SummaryTurnThreshold), nil
}

// Submit records a student answer and appends the attending's reply. A blank
// answer returns the current view with Ignored set and makes no remote call.
func (s *Service) Submit(ctx context.Context, key domain.CaseKey, answer string) (*View, error) {
	unlock, err := s.lockTurn(key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	session, err := s.cases.GetCase(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load case: %w", err)
	}
	if session == nil || !session.Started {
		return nil, ErrCaseNotStarted
	}

	outcome := Advance(session, answer, s.cfg.SummaryTurnThreshold)
	if outcome.Ignored {
		view := NewView(session, s.cfg.SummaryTurnThreshold)
		view.Ignored = true
		return view, nil
	}

	s.record(ctx, session, transcript.EventStudentAnswer, outcome.Answer, nil)
	if outcome.ForceSummary {
		slog.Info("Summary forced", "user_id", key.UserID, "session_id", key.SessionID, "turn", session.TurnCount)
		s.record(ctx, session, transcript.EventSummaryForced, SummaryRequest, nil)
	}

	s.respond(ctx, session)

	session.UpdatedAt = s.now()
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}

	view := NewView(session, s.cfg.SummaryTurnThreshold)
	view.SummaryForced = outcome.ForceSummary
	return view, nil
}

// Reset drops the case for key.
func (s *Service) Reset(ctx context.Context, key domain.CaseKey) (*View, error) {
	unlock, err := s.lockTurn(key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.cases.DeleteCase(ctx, key); err != nil {
		return nil, fmt.Errorf("delete case: %w", err)
	}
	s.log.Log(transcript.Event{
		UserID:    key.UserID,
		SessionID: key.SessionID,
		Channel:   transcript.ChannelFromContext(ctx),
		EventType: transcript.EventCaseReset,
	})
	return NewView(nil, s.cfg.SummaryTurnThreshold), nil
}

// View returns the presentation of the case for key. A missing case yields
// a not-started view.
func (s *Service) View(ctx context.Context, key domain.CaseKey) (*View, error) {
	session, err := s.cases.GetCase(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load case: %w", err)
	}
	return NewView(session, s.cfg.SummaryTurnThreshold), nil
}

// respond asks the attending for the next reply and appends it, with an
// illustration when the reply calls for one.
func (s *Service) respond(ctx context.Context, session *domain.CaseSession) {
	result := s.chat.Complete(ctx, session.Transcript)
	reply := result.Text
	if !result.OK() {
		slog.Warn("Chat completion failed",
			"user_id", session.UserID,
			"session_id", session.SessionID,
			"status", result.Status.String(),
			"error", result.Err,
		)
		reply = FallbackReply
	}

	msg := domain.Message{Role: domain.RoleAssistant, Content: reply, Kind: domain.KindReply}
	s.record(ctx, session, transcript.EventAttendingReply, reply, map[string]any{"status": result.Status.String()})

	if result.OK() && s.VisualsEnabled() && ShouldIllustrate(reply) {
		img := s.images.Generate(ctx, ImagePrompt(reply))
		if img.OK() {
			msg.Image = img.Data
			s.record(ctx, session, transcript.EventIllustration, "", map[string]any{"bytes": len(img.Data)})
		} else {
			slog.Warn("Image generation failed",
				"user_id", session.UserID,
				"session_id", session.SessionID,
				"status", img.Status.String(),
				"error", img.Err,
			)
		}
	}

	session.Append(msg)
}

func (s *Service) save(ctx context.Context, session *domain.CaseSession) error {
	if err := s.cases.SaveCase(ctx, session); err != nil {
		slog.Error("Failed to save case", "user_id", session.UserID, "session_id", session.SessionID, "error", err)
		return fmt.Errorf("save case: %w", err)
	}
	return nil
}

// lockTurn claims the turn for key or fails with ErrTurnInProgress. On
// release the entry is retired while still held: the mutex is removed from
// the map and never unlocked, so a caller that loaded it before removal gets
// a 409 instead of racing the next owner.
func (s *Service) lockTurn(key domain.CaseKey) (func(), error) {
	k := key.String()
	lock, _ := s.turns.LoadOrStore(k, &sync.Mutex{})
	mutex := lock.(*sync.Mutex)
	if !mutex.TryLock() {
		slog.Warn("Turn already in progress", "user_id", key.UserID, "session_id", key.SessionID)
		return nil, ErrTurnInProgress
	}
	return func() {
		s.turns.CompareAndDelete(k, mutex)
	}, nil
}

func (s *Service) record(ctx context.Context, session *domain.CaseSession, eventType, content string, meta map[string]any) {
	direction := "inbound"
	switch eventType {
	case transcript.EventAttendingReply, transcript.EventIllustration:
		direction = "outbound"
	}
	s.log.Log(transcript.Event{
		UserID:     session.UserID,
		SessionID:  session.SessionID,
		CaseID:     session.ID,
		Channel:    transcript.ChannelFromContext(ctx),
		Direction:  direction,
		EventType:  eventType,
		Turn:       session.TurnCount,
		ContentRaw: content,
		Meta:       meta,
	})
}
