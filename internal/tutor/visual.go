package tutor

import "strings"

var illustrationTriggers = []string{
	"diagram",
	"visual",
	"illustrate",
	"map",
	"let me show",
	"here is a simple",
}

// ShouldIllustrate reports whether an attending reply asks for a diagram.
// Matching is a case-insensitive substring check against a fixed phrase list.
func ShouldIllustrate(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range illustrationTriggers {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
