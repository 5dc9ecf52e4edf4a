package policy

import (
	"testing"

	"github.com/authz-engine/go-core/pkg/types"
)

func TestStore_LoadAndFindResourcePolicies(t *testing.T) {
	store := NewStore()
	store.LoadResourcePolicies([]*types.ResourcePolicy{
		{Metadata: types.Metadata{Name: "p1"}, Resource: "document", Rules: []*types.Rule{{Actions: []string{"read"}, Effect: types.EffectAllow}}},
		{Metadata: types.Metadata{Name: "p2", Scope: "acme"}, Resource: "document", Rules: []*types.Rule{{Actions: []string{"write"}, Effect: types.EffectDeny}}},
	})

	global := store.FindResourcePolicies("", "document")
	if len(global) != 1 || global[0].Name != "p1" {
		t.Fatalf("expected 1 global policy p1, got %+v", global)
	}

	scoped := store.FindResourcePolicies("acme", "document")
	if len(scoped) != 1 || scoped[0].Name != "p2" {
		t.Fatalf("expected 1 scoped policy p2, got %+v", scoped)
	}

	if store.FindResourcePolicies("", "unknown") != nil {
		t.Fatalf("expected nil for unknown resource kind")
	}

	stats := store.Stats()
	if stats.ResourcePolicies != 2 || stats.Resources != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestStore_HasResourcePolicySet(t *testing.T) {
	store := NewStore()
	if store.HasResourcePolicySet("", "document") {
		t.Fatalf("expected false before load")
	}
	store.LoadResourcePolicies([]*types.ResourcePolicy{
		{Metadata: types.Metadata{Name: "p1"}, Resource: "document", Rules: []*types.Rule{{Actions: []string{"read"}, Effect: types.EffectAllow}}},
	})
	if !store.HasResourcePolicySet("", "document") {
		t.Fatalf("expected true after load")
	}
}

func TestStore_LoadDerivedRolesPolicies(t *testing.T) {
	store := NewStore()
	store.LoadDerivedRolesPolicies([]*types.DerivedRolesPolicy{
		{Metadata: types.Metadata{Name: "d1"}, Definitions: []*types.DerivedRoleDefinition{
			{Name: "owner", ParentRoles: []string{"user"}, Condition: "true"},
		}},
	})
	defs := store.DerivedRoleDefinitions()
	if len(defs) != 1 || defs[0].Name != "owner" {
		t.Fatalf("expected 1 derived role definition, got %+v", defs)
	}
}

func TestStore_ClearPolicies(t *testing.T) {
	store := NewStore()
	store.LoadResourcePolicies([]*types.ResourcePolicy{
		{Metadata: types.Metadata{Name: "p1"}, Resource: "document", Rules: []*types.Rule{{Actions: []string{"read"}, Effect: types.EffectAllow}}},
	})
	store.LoadPrincipalPolicies([]*types.PrincipalPolicy{{Principal: "u1"}})

	store.ClearPolicies()

	stats := store.Stats()
	if stats.ResourcePolicies != 0 || stats.PrincipalPolicies != 0 {
		t.Fatalf("expected empty stats after clear, got %+v", stats)
	}
}

func TestStore_LoadIsCopyOnWrite(t *testing.T) {
	store := NewStore()
	store.LoadResourcePolicies([]*types.ResourcePolicy{
		{Metadata: types.Metadata{Name: "p1"}, Resource: "document", Rules: []*types.Rule{{Actions: []string{"read"}, Effect: types.EffectAllow}}},
	})
	firstSnapshot := store.current()

	store.LoadResourcePolicies([]*types.ResourcePolicy{
		{Metadata: types.Metadata{Name: "p2"}, Resource: "document", Rules: []*types.Rule{{Actions: []string{"write"}, Effect: types.EffectAllow}}},
	})

	if len(firstSnapshot.resourceByScope[""]["document"]) != 1 {
		t.Fatalf("mutating the store must not retroactively change a snapshot already observed")
	}
	if len(store.current().resourceByScope[""]["document"]) != 2 {
		t.Fatalf("expected 2 policies in the latest snapshot")
	}
}
