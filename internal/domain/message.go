package domain

// Role identifies the author of a transcript message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageKind tags why a message was added to the transcript.
type MessageKind string

const (
	KindInstruction      MessageKind = "instruction"
	KindCasePresentation MessageKind = "case_presentation"
	KindAnswer           MessageKind = "answer"
	KindSummaryRequest   MessageKind = "summary_request"
	KindReply            MessageKind = "reply"
)

// Message is a single transcript entry. Only Role and Content are sent to
// the model; Image and Kind are presentation metadata.
type Message struct {
	Role    Role        `json:"role"`
	Content string      `json:"content"`
	Kind    MessageKind `json:"kind,omitempty"`
	Image   []byte      `json:"image,omitempty"`
}

// Visible reports whether the message is shown to the student.
// The system instruction and the case presentation prompt stay hidden.
func (m Message) Visible() bool {
	switch m.Kind {
	case KindInstruction, KindCasePresentation:
		return false
	}
	return m.Role != RoleSystem
}
