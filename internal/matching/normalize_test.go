package matching

import "testing"

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Metformin", "metformin"},
		{"  Metformin HCl  ", "metformin hcl"},
		{"Metformin (Glucophage)", "metformin"},
		{"Co-Amoxiclav", "co amoxiclav"},
		{"Acétaminophen", "acetaminophen"},
		{"Vitamin D3, 1000 IU", "vitamin d3 1000 iu"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeDosage(t *testing.T) {
	if got := NormalizeDosage(" 500 MG "); got != "500mg" {
		t.Errorf("NormalizeDosage = %q, want 500mg", got)
	}
}

func TestDefaultScorerBounds(t *testing.T) {
	if s := DefaultScorer("metformin", "metformin"); s != 1 {
		t.Errorf("identical score = %v, want 1", s)
	}
	if s := DefaultScorer("metformin", "warfarin"); s >= FuzzyFloor {
		t.Errorf("unrelated score = %v, want < %v", s, FuzzyFloor)
	}
	if s := DefaultScorer("insulin glargine", "glargine insulin"); s != 1 {
		t.Errorf("reordered tokens score = %v, want 1", s)
	}
}
