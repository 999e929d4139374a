package category

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want Category
	}{
		{"career", Career},
		{"進路", Career},
		{"study", Study},
		{"学習", Study},
		{"relationships", Relationships},
		{"relationship", Relationships},
		{"人間関係", Relationships},
		{" Career ", Career},
		{"STUDY", Study},
		{"", None},
		{"finance", None},
	}
	for _, tt := range tests {
		if got := Normalize(tt.raw); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestSensitive(t *testing.T) {
	if !Career.Sensitive() || !Relationships.Sensitive() {
		t.Error("career and relationships are sensitive")
	}
	if Study.Sensitive() || None.Sensitive() {
		t.Error("study and none are not sensitive")
	}
}
