package tutor

import "github.com/ashureev/medmate/internal/domain"

// View is what the student sees of a case session.
type View struct {
	CaseID           string        `json:"case_id,omitempty"`
	Mode             string        `json:"mode,omitempty"`
	Vignette         string        `json:"vignette,omitempty"`
	Started          bool          `json:"started"`
	TurnCount        int           `json:"turn_count"`
	SummaryThreshold int           `json:"summary_threshold"`
	Messages         []ViewMessage `json:"messages"`
	Ignored          bool          `json:"ignored,omitempty"`
	SummaryForced    bool          `json:"summary_forced,omitempty"`
}

// ViewMessage is a visible transcript entry. Image is base64 in JSON.
type ViewMessage struct {
	Role    domain.Role        `json:"role"`
	Kind    domain.MessageKind `json:"kind,omitempty"`
	Content string             `json:"content"`
	Image   []byte             `json:"image,omitempty"`
}

// NewView renders session. A nil session renders as not started.
func NewView(session *domain.CaseSession, threshold int) *View {
	v := &View{SummaryThreshold: threshold, Messages: []ViewMessage{}}
	if session == nil {
		return v
	}

	v.CaseID = session.ID
	v.Mode = session.Mode
	v.Vignette = session.Vignette
	v.Started = session.Started
	v.TurnCount = session.TurnCount

	for _, m := range session.Transcript {
		if !m.Visible() {
			continue
		}
		v.Messages = append(v.Messages, ViewMessage{
			Role:    m.Role,
			Kind:    m.Kind,
			Content: m.Content,
			Image:   m.Image,
		})
	}
	return v
}
