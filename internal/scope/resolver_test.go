package scope

import (
	"reflect"
	"testing"
)

func TestBuildScopeChain(t *testing.T) {
	r := NewResolver(DefaultConfig())

	tests := []struct {
		name     string
		scope    string
		expected []string
	}{
		{"empty scope", "", []string{}},
		{"single segment", "acme", []string{"acme"}},
		{"three segments", "acme.corp.engineering", []string{"acme.corp.engineering", "acme.corp", "acme"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, err := r.BuildScopeChain(tt.scope)
			if err != nil {
				t.Fatalf("BuildScopeChain: %v", err)
			}
			if !reflect.DeepEqual(chain, tt.expected) {
				t.Fatalf("got %v, want %v", chain, tt.expected)
			}
		})
	}
}

func TestValidateScope_Rejections(t *testing.T) {
	r := NewResolver(DefaultConfig())

	if _, err := r.ValidateScope("acme..corp"); err == nil {
		t.Fatal("expected error for empty segment")
	}
	if _, err := r.ValidateScope("acme corp"); err == nil {
		t.Fatal("expected error for illegal character")
	}
	if _, err := r.ValidateScope("a.b.c.d.e.f.g.h.i.j.k"); err == nil {
		t.Fatal("expected error for exceeding max depth")
	}
}

func TestComputeEffectiveScope(t *testing.T) {
	r := NewResolver(DefaultConfig())

	tests := []struct {
		name      string
		principal string
		resource  string
		want      string
	}{
		{"both empty", "", "", ""},
		{"principal only", "acme.corp", "", "acme.corp"},
		{"resource only", "", "acme.corp", "acme.corp"},
		{"resource is longer prefix", "acme", "acme.corp.eng", "acme.corp.eng"},
		{"principal is longer prefix", "acme.corp.eng", "acme", "acme.corp.eng"},
		{"divergent branches share ancestor", "acme.corp.sales", "acme.corp.eng", "acme.corp"},
		{"no common ancestor", "acme", "globex", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.ComputeEffectiveScope(tt.principal, tt.resource)
			if got != tt.want {
				t.Fatalf("ComputeEffectiveScope(%q, %q) = %q, want %q", tt.principal, tt.resource, got, tt.want)
			}
		})
	}
}

func TestFindMatchingPolicy(t *testing.T) {
	r := NewResolver(DefaultConfig())

	existing := map[string]bool{
		"acme.corp:document": true,
		":document":          true,
	}
	exists := func(scope, kind string) bool {
		return existing[scope+":"+kind]
	}

	result, err := r.FindMatchingPolicy(exists, "document", "acme.corp.eng")
	if err != nil {
		t.Fatalf("FindMatchingPolicy: %v", err)
	}
	if !result.Found || result.MatchedScope != "acme.corp" {
		t.Fatalf("expected match at acme.corp, got %+v", result)
	}
	if result.Chain[len(result.Chain)-1] != "" {
		t.Fatalf("expected global scope appended as final fallback, got %v", result.Chain)
	}

	result, err = r.FindMatchingPolicy(exists, "widget", "acme.corp.eng")
	if err != nil {
		t.Fatalf("FindMatchingPolicy: %v", err)
	}
	if result.Found {
		t.Fatalf("expected no match for unknown kind, got %+v", result)
	}
}
