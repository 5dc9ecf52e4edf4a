package policy

import (
	"strings"
	"testing"

	"github.com/authz-engine/go-core/internal/cel"
	"github.com/authz-engine/go-core/pkg/types"
)

func newTestLoader(t *testing.T) (*Loader, *Store) {
	t.Helper()
	store := NewStore()
	celEngine, err := cel.NewEngine(0)
	if err != nil {
		t.Fatalf("cel.NewEngine: %v", err)
	}
	validator := NewValidator(store, celEngine)
	return NewLoader(validator), store
}

func TestLoader_ParseResourcePolicy(t *testing.T) {
	loader, _ := newTestLoader(t)

	doc := []byte(`
apiVersion: authz.engine/v1
kind: ResourcePolicy
metadata:
  name: doc-policy
spec:
  resource: document
  rules:
    - actions: ["read"]
      effect: allow
      roles: ["user"]
`)

	result, err := loader.ParseDocument(doc)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	if result.Kind != types.KindResourcePolicy {
		t.Fatalf("expected ResourcePolicy kind, got %s", result.Kind)
	}
	if result.ResourcePolicy.Resource != "document" {
		t.Fatalf("expected resource 'document', got %s", result.ResourcePolicy.Resource)
	}
	if result.ResourcePolicy.Name != "doc-policy" {
		t.Fatalf("expected metadata.name to carry through, got %q", result.ResourcePolicy.Name)
	}
}

func TestLoader_RejectsWrongAPIVersion(t *testing.T) {
	loader, _ := newTestLoader(t)

	doc := []byte(`
apiVersion: authz.engine/v2
kind: ResourcePolicy
metadata:
  name: doc-policy
spec:
  resource: document
  rules:
    - actions: ["read"]
      effect: allow
`)

	_, err := loader.ParseDocument(doc)
	if err == nil {
		t.Fatalf("expected an error for unsupported apiVersion")
	}
	parseErr, ok := err.(*types.PolicyParseError)
	if !ok {
		t.Fatalf("expected *types.PolicyParseError, got %T", err)
	}
	if len(parseErr.Errors) == 0 || parseErr.Errors[0].Code != types.ErrInvalidAPIVersion {
		t.Fatalf("expected InvalidApiVersion error, got %+v", parseErr.Errors)
	}
}

func TestLoader_UnknownKindSuggestsClosestMatch(t *testing.T) {
	loader, _ := newTestLoader(t)

	doc := []byte(`
apiVersion: authz.engine/v1
kind: ResourcePolicyy
metadata:
  name: doc-policy
spec:
  resource: document
`)

	_, err := loader.ParseDocument(doc)
	parseErr, ok := err.(*types.PolicyParseError)
	if !ok {
		t.Fatalf("expected *types.PolicyParseError, got %T (%v)", err, err)
	}
	if len(parseErr.Errors) == 0 {
		t.Fatalf("expected at least one field error")
	}
	fe := parseErr.Errors[0]
	if fe.Suggestion != string(types.KindResourcePolicy) {
		t.Fatalf("expected suggestion %q, got %q", types.KindResourcePolicy, fe.Suggestion)
	}
}

func TestLoader_SemanticValidationRuns(t *testing.T) {
	loader, _ := newTestLoader(t)

	doc := []byte(`
apiVersion: authz.engine/v1
kind: ResourcePolicy
metadata:
  name: doc-policy
spec:
  resource: document
  rules:
    - actions: ["read"]
      effect: alow
`)

	_, err := loader.ParseDocument(doc)
	if err == nil {
		t.Fatalf("expected semantic validation to reject an invalid effect")
	}
	if !strings.Contains(err.Error(), "effect") {
		t.Fatalf("expected the error to mention the invalid field, got %v", err)
	}
}

func TestLoader_DerivedRolesCrossReference(t *testing.T) {
	loader, store := newTestLoader(t)

	doc := []byte(`
apiVersion: authz.engine/v1
kind: ResourcePolicy
metadata:
  name: doc-policy
spec:
  resource: document
  rules:
    - actions: ["read"]
      effect: allow
      derivedRoles: ["owner"]
`)

	if _, err := loader.ParseDocument(doc); err == nil {
		t.Fatalf("expected an error since 'owner' is not yet a known derived role")
	}

	store.LoadDerivedRolesPolicies([]*types.DerivedRolesPolicy{
		{Metadata: types.Metadata{Name: "d1"}, Definitions: []*types.DerivedRoleDefinition{
			{Name: "owner", ParentRoles: []string{"user"}, Condition: "true"},
		}},
	})

	if _, err := loader.ParseDocument(doc); err != nil {
		t.Fatalf("expected success once 'owner' is registered, got %v", err)
	}
}
