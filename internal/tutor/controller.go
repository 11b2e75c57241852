package tutor

import (
	"strings"

	"github.com/ashureev/medmate/internal/domain"
)

// DefaultSummaryTurnThreshold is the answer count that forces a summary.
const DefaultSummaryTurnThreshold = 6

const concludeKeyword = "conclude"

// Outcome describes what Advance did to a session.
type Outcome struct {
	// Ignored is set when the answer was blank and nothing changed.
	Ignored bool
	// ForceSummary is set when a summary request was appended.
	ForceSummary bool
	// Answer is the trimmed text that was appended.
	Answer string
}

// Advance records one student answer on s. Blank input leaves s untouched.
// Otherwise the trimmed answer is appended, the turn counter incremented and,
// once the counter reaches threshold or the answer mentions "conclude", the
// summary request is appended after it.
func Advance(s *domain.CaseSession, userText string, threshold int) Outcome {
	answer := strings.TrimSpace(userText)
	if answer == "" {
		return Outcome{Ignored: true}
	}
	if threshold <= 0 {
		threshold = DefaultSummaryTurnThreshold
	}

	s.Append(domain.Message{Role: domain.RoleUser, Content: answer, Kind: domain.KindAnswer})
	s.TurnCount++

	force := s.TurnCount >= threshold || strings.Contains(strings.ToLower(answer), concludeKeyword)
	if force {
		s.Append(domain.Message{Role: domain.RoleUser, Content: SummaryRequest, Kind: domain.KindSummaryRequest})
	}
	return Outcome{ForceSummary: force, Answer: answer}
}
