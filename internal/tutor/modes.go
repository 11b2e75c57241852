package tutor

import "sort"

// Mode is a selectable tutoring persona.
type Mode struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	SystemPrompt string `json:"-"`
}

// DefaultMode is used when a request names no mode.
const DefaultMode = "case_tutor"

var modes = map[string]Mode{
	DefaultMode: {ID: DefaultMode, Label: "Case Tutor", SystemPrompt: caseTutorPrompt},
}

// LookupMode returns the mode registered under id. An empty id selects
// DefaultMode.
func LookupMode(id string) (Mode, bool) {
	if id == "" {
		id = DefaultMode
	}
	m, ok := modes[id]
	return m, ok
}

// Modes lists the registered modes ordered by id.
func Modes() []Mode {
	out := make([]Mode, 0, len(modes))
	for _, m := range modes {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
