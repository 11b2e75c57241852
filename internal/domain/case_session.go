package domain

import (
	"time"
)

// CaseKey addresses one case session: an anonymous user plus a browser tab.
type CaseKey struct {
	UserID    string
	SessionID string
}

// String returns the storage key for the case session.
func (k CaseKey) String() string {
	return k.UserID + ":" + k.SessionID
}

// CaseSession is the in-memory state of one clinical case conversation.
type CaseSession struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	SessionID  string    `json:"session_id"`
	Mode       string    `json:"mode"`
	Vignette   string    `json:"vignette"`
	Transcript []Message `json:"transcript"`
	TurnCount  int       `json:"turn_count"`
	Started    bool      `json:"started"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Key returns the session's case key.
func (s *CaseSession) Key() CaseKey {
	return CaseKey{UserID: s.UserID, SessionID: s.SessionID}
}

// Append adds messages to the end of the transcript.
func (s *CaseSession) Append(msgs ...Message) {
	s.Transcript = append(s.Transcript, msgs...)
}

// Clone returns a deep copy so stores never share transcript slices with callers.
func (s *CaseSession) Clone() *CaseSession {
	if s == nil {
		return nil
	}
	out := *s
	out.Transcript = make([]Message, len(s.Transcript))
	for i, m := range s.Transcript {
		if m.Image != nil {
			m.Image = append([]byte(nil), m.Image...)
		}
		out.Transcript[i] = m
	}
	return &out
}
