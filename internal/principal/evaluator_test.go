package principal

import (
	"testing"

	"github.com/authz-engine/go-core/internal/cel"
	"github.com/authz-engine/go-core/pkg/types"
)

func TestEvaluator_DenyWinsOverAllow(t *testing.T) {
	store := NewStore()
	store.Add(&types.PrincipalPolicy{
		Metadata:  types.Metadata{Name: "p1"},
		Principal: "u1",
		Rules: []*types.PrincipalRule{
			{
				Resource: "doc",
				Actions: []types.PrincipalActionRule{
					{Action: "read", Effect: types.EffectAllow},
					{Action: "*", Effect: types.EffectDeny},
				},
			},
		},
	})

	engine, err := cel.NewEngine(0)
	if err != nil {
		t.Fatalf("cel.NewEngine: %v", err)
	}
	eval := NewEvaluator(store, engine)

	principal := &types.Principal{ID: "u1", Roles: []string{"user"}}
	resource := &types.Resource{Kind: "doc", ID: "d1"}

	verdict := eval.Evaluate(principal, resource, "read", nil)
	if !verdict.Present || verdict.Effect != types.EffectDeny {
		t.Fatalf("expected deny to win, got %+v", verdict)
	}
}

func TestEvaluator_NoMatchIsAbsent(t *testing.T) {
	store := NewStore()
	engine, _ := cel.NewEngine(0)
	eval := NewEvaluator(store, engine)

	verdict := eval.Evaluate(&types.Principal{ID: "unknown"}, &types.Resource{Kind: "doc"}, "read", nil)
	if verdict.Present {
		t.Fatalf("expected no verdict, got %+v", verdict)
	}
}

func TestEvaluator_ConditionGatesRule(t *testing.T) {
	store := NewStore()
	store.Add(&types.PrincipalPolicy{
		Metadata:  types.Metadata{Name: "p1"},
		Principal: "u1",
		Rules: []*types.PrincipalRule{
			{
				Resource:  "doc",
				Condition: `resource.attributes.ownerId == principal.id`,
				Actions: []types.PrincipalActionRule{
					{Action: "delete", Effect: types.EffectAllow},
				},
			},
		},
	})

	engine, _ := cel.NewEngine(0)
	eval := NewEvaluator(store, engine)

	principal := &types.Principal{ID: "u1"}
	owned := &types.Resource{Kind: "doc", ID: "d1", Attributes: map[string]interface{}{"ownerId": "u1"}}
	notOwned := &types.Resource{Kind: "doc", ID: "d2", Attributes: map[string]interface{}{"ownerId": "someone-else"}}

	if v := eval.Evaluate(principal, owned, "delete", nil); !v.Present || v.Effect != types.EffectAllow {
		t.Fatalf("expected allow for owned resource, got %+v", v)
	}
	if v := eval.Evaluate(principal, notOwned, "delete", nil); v.Present {
		t.Fatalf("expected no verdict for non-owned resource, got %+v", v)
	}
}

func TestStore_TotalLoaded(t *testing.T) {
	store := NewStore()
	store.Add(&types.PrincipalPolicy{Principal: "u1"})
	store.Add(&types.PrincipalPolicy{Principal: "u2"})

	if store.TotalLoaded() != 2 {
		t.Fatalf("expected 2 loaded, got %d", store.TotalLoaded())
	}
}
