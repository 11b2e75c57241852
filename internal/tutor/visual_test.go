package tutor

import "testing"

func TestShouldIllustrate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want bool
	}{
		{"Here is a simple diagram of the heart", true},
		{"Let's discuss your vitals", false},
		{"A VISUAL aid helps here", true},
		{"Let me show you the coronary anatomy", true},
		{"I'll illustrate the conduction system", true},
		{"Let's map out the differential", true},
		{"Consider a bowel obstruction", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ShouldIllustrate(tt.text); got != tt.want {
			t.Errorf("ShouldIllustrate(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestModesRegistry(t *testing.T) {
	t.Parallel()

	m, ok := LookupMode("")
	if !ok || m.ID != DefaultMode || m.Label != "Case Tutor" {
		t.Fatalf("expected default case tutor mode, got %+v", m)
	}
	if _, ok := LookupMode("surgery"); ok {
		t.Fatal("unexpected mode found")
	}
	if got := Modes(); len(got) != 1 || got[0].ID != DefaultMode {
		t.Fatalf("unexpected modes %+v", got)
	}
}
