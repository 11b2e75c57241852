package tutor

import (
	"testing"

	"github.com/ashureev/medmate/internal/domain"
)

func startedSession(vignette string) *domain.CaseSession {
	s := &domain.CaseSession{ID: "case-1", UserID: "anon_1", SessionID: "tab-1", Vignette: vignette, Started: true}
	s.Append(
		domain.Message{Role: domain.RoleSystem, Content: caseTutorPrompt, Kind: domain.KindInstruction},
		domain.Message{Role: domain.RoleUser, Content: CasePresentation(vignette), Kind: domain.KindCasePresentation},
	)
	return s
}

func TestAdvanceBelowThresholdDoesNotForce(t *testing.T) {
	t.Parallel()

	s := startedSession("55F with chest pain")
	for i := 1; i < DefaultSummaryTurnThreshold; i++ {
		out := Advance(s, "I would check vitals", DefaultSummaryTurnThreshold)
		if out.Ignored || out.ForceSummary {
			t.Fatalf("turn %d: unexpected outcome %+v", i, out)
		}
		if s.TurnCount != i {
			t.Fatalf("expected turn count %d, got %d", i, s.TurnCount)
		}
	}
}

func TestAdvanceForcesAtThreshold(t *testing.T) {
	t.Parallel()

	s := startedSession("55F with chest pain")
	s.TurnCount = DefaultSummaryTurnThreshold - 1

	out := Advance(s, "Get an ECG", DefaultSummaryTurnThreshold)
	if !out.ForceSummary {
		t.Fatal("expected forced summary at threshold")
	}
	last := s.Transcript[len(s.Transcript)-1]
	if last.Content != SummaryRequest || last.Kind != domain.KindSummaryRequest || last.Role != domain.RoleUser {
		t.Fatalf("expected summary request appended, got %+v", last)
	}
	prev := s.Transcript[len(s.Transcript)-2]
	if prev.Content != "Get an ECG" {
		t.Fatalf("expected answer before summary request, got %+v", prev)
	}

	// Past the threshold every answer keeps forcing.
	if out := Advance(s, "thanks", DefaultSummaryTurnThreshold); !out.ForceSummary {
		t.Fatal("expected forced summary past threshold")
	}
}

func TestAdvanceConcludeKeyword(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"CONCLUDE", "Conclude please", "let's conclude now", "ready to conclude?"} {
		s := startedSession("55F with chest pain")
		out := Advance(s, text, DefaultSummaryTurnThreshold)
		if !out.ForceSummary {
			t.Errorf("%q: expected forced summary at turn 1", text)
		}
		if s.TurnCount != 1 {
			t.Errorf("%q: expected turn count 1, got %d", text, s.TurnCount)
		}
	}
}

func TestAdvanceIgnoresBlankInput(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"", "   ", "\n\t "} {
		s := startedSession("55F with chest pain")
		before := len(s.Transcript)
		out := Advance(s, text, DefaultSummaryTurnThreshold)
		if !out.Ignored {
			t.Errorf("%q: expected ignored", text)
		}
		if s.TurnCount != 0 || len(s.Transcript) != before {
			t.Errorf("%q: state changed: turn=%d len=%d", text, s.TurnCount, len(s.Transcript))
		}
	}
}

func TestAdvanceTrimsAnswer(t *testing.T) {
	t.Parallel()

	s := startedSession("55F with chest pain")
	out := Advance(s, "  troponin  ", DefaultSummaryTurnThreshold)
	if out.Answer != "troponin" || s.Transcript[len(s.Transcript)-1].Content != "troponin" {
		t.Fatalf("expected trimmed answer, got %q", out.Answer)
	}
}

func TestAdvanceCustomThreshold(t *testing.T) {
	t.Parallel()

	s := startedSession("55F with chest pain")
	if out := Advance(s, "first", 2); out.ForceSummary {
		t.Fatal("did not expect summary at turn 1")
	}
	if out := Advance(s, "second", 2); !out.ForceSummary {
		t.Fatal("expected summary at turn 2")
	}
	if out := Advance(startedSession("x"), "first", 0); out.ForceSummary {
		t.Fatal("zero threshold should fall back to the default")
	}
}

func TestAdvanceScenarioTranscriptLength(t *testing.T) {
	t.Parallel()

	s := startedSession("55F with chest pain")
	s.Append(domain.Message{Role: domain.RoleAssistant, Content: "Let's start. Any radiation?", Kind: domain.KindReply})

	for i := 1; i <= 5; i++ {
		if out := Advance(s, "answer", DefaultSummaryTurnThreshold); out.ForceSummary {
			t.Fatalf("answer %d: unexpected forced summary", i)
		}
		s.Append(domain.Message{Role: domain.RoleAssistant, Content: "next question", Kind: domain.KindReply})
	}

	out := Advance(s, "sixth answer", DefaultSummaryTurnThreshold)
	if !out.ForceSummary {
		t.Fatal("expected sixth answer to force summary")
	}
	if len(s.Transcript) != 15 {
		t.Fatalf("expected 15 messages after sixth advance, got %d", len(s.Transcript))
	}
}
