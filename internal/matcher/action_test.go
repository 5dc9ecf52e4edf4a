package matcher

import "testing"

func TestMatchAction(t *testing.T) {
	tests := []struct {
		pattern string
		action  string
		want    bool
	}{
		{"doc:read", "doc:read", true},
		{"doc:read", "doc:write", false},
		{"*", "read", true},
		{"*", "doc:read", false},
		{"doc:*", "doc:read", true},
		{"doc:*", "doc:meta:read", true},
		{"doc:*", "doc", false},
		{"doc:*:read", "doc:meta:read", true},
		{"doc:*:read", "doc:meta:write", false},
		{"doc:read:*", "doc:read", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"__"+tt.action, func(t *testing.T) {
			if got := MatchAction(tt.pattern, tt.action); got != tt.want {
				t.Errorf("MatchAction(%q, %q) = %v, want %v", tt.pattern, tt.action, got, tt.want)
			}
		})
	}
}

func TestMatchAnyAction(t *testing.T) {
	if !MatchAnyAction([]string{"foo:*", "bar:read"}, "bar:read") {
		t.Fatal("expected match")
	}
	if MatchAnyAction([]string{"foo:*"}, "bar:read") {
		t.Fatal("expected no match")
	}
}

func TestIsValidActionPattern(t *testing.T) {
	valid := []string{"read", "doc:read", "doc:*", "*", "doc_v2:read_all"}
	for _, p := range valid {
		if !IsValidActionPattern(p) {
			t.Errorf("expected %q to be valid", p)
		}
	}
	invalid := []string{"", "doc::read", "doc:", ":read", "doc read"}
	for _, p := range invalid {
		if IsValidActionPattern(p) {
			t.Errorf("expected %q to be invalid", p)
		}
	}
}
