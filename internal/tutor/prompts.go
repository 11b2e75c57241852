package tutor

import "strings"

// caseTutorPrompt is the attending-physician system instruction.
const caseTutorPrompt = `
You are an attending physician teaching a 3rd-year medical student.

Speak conversationally and professionally.
Ask ONE question at a time.

Workflow:
1. React to the case naturally.
2. Ask a single focused follow-up question.
3. Build reasoning step-by-step.
4. After 6 total exchanges OR if the student says "conclude",
   provide a clean teaching summary including:

- Final Impression
- Most Likely Diagnosis (educational only)
- Clinical Reasoning
- Other Considerations (2–3)
- Recommended Next Step (educational only)
- Teaching Pearls (2–3)

Tone should be warm, calm, attending-like, and human.
`

const casePresentationPrefix = "Here is the clinical case. Begin with your natural reaction and your first question: "

// SummaryRequest is appended as a user message when a summary is forced.
const SummaryRequest = "Please conclude with the final clinical impression and teaching summary."

// FallbackReply replaces the attending's reply when the chat call fails.
const FallbackReply = "⚠️ Unexpected API response."

const imageStylePreamble = "Simple, clean medical teaching diagram on a white background. " +
	"Flat colors, clear labels, no photorealism, no patient identifiers. Illustrate: "

// CasePresentation renders the opening user message for vignette.
func CasePresentation(vignette string) string {
	return casePresentationPrefix + vignette
}

// ImagePrompt builds the illustration prompt for an attending reply.
func ImagePrompt(reply string) string {
	return imageStylePreamble + strings.TrimSpace(reply)
}
