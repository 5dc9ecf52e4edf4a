package matcher

import "testing"

func TestMatchScope(t *testing.T) {
	tests := []struct {
		pattern string
		scope   string
		want    bool
	}{
		{"acme.corp", "acme.corp", true},
		{"acme.*", "acme.corp", true},
		{"acme.*", "acme.corp.eng", false},
		{"acme.**", "acme.corp.eng", true},
		{"acme.**", "acme", true},
		{"**", "", true},
		{"**", "acme.corp.eng", true},
		{"acme.*.eng", "acme.corp.eng", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"__"+tt.scope, func(t *testing.T) {
			if got := MatchScope(tt.pattern, tt.scope); got != tt.want {
				t.Errorf("MatchScope(%q, %q) = %v, want %v", tt.pattern, tt.scope, got, tt.want)
			}
		})
	}
}
