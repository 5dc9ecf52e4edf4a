// Package principal evaluates principal-scoped policies for the
// principals they name. In the engine's combining step a principal deny
// overrides everything and a principal allow overrides a resource
// allow, but a resource-side explicit deny still beats a principal
// allow. Documents are indexed by exact principal id.
package principal

import (
	"sync"
	"sync/atomic"

	"github.com/authz-engine/go-core/internal/cel"
	"github.com/authz-engine/go-core/internal/matcher"
	"github.com/authz-engine/go-core/pkg/types"
)

// Verdict is the outcome of evaluating a principal's policies for one
// action. Present is false when no rule matched.
type Verdict struct {
	Present    bool
	Effect     types.Effect
	PolicyName string
	RuleIndex  int
}

// Store indexes PrincipalPolicy documents by principal id for O(1)
// lookup.
type Store struct {
	mu       sync.RWMutex
	byID     map[string][]*types.PrincipalPolicy
	totalDocs atomic.Int64
}

// NewStore creates an empty principal-policy store.
func NewStore() *Store {
	return &Store{byID: make(map[string][]*types.PrincipalPolicy)}
}

// Add registers a principal policy, appended in load order.
func (s *Store) Add(policy *types.PrincipalPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[policy.Principal] = append(s.byID[policy.Principal], policy)
	s.totalDocs.Add(1)
}

// Replace atomically swaps the entire store contents (used on reload).
func (s *Store) Replace(policies []*types.PrincipalPolicy) {
	byID := make(map[string][]*types.PrincipalPolicy)
	for _, p := range policies {
		byID[p.Principal] = append(byID[p.Principal], p)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = byID
	s.totalDocs.Store(int64(len(policies)))
}

// TotalLoaded reports the number of principal-policy documents loaded.
func (s *Store) TotalLoaded() int64 {
	return s.totalDocs.Load()
}

func (s *Store) policiesFor(principalID string) []*types.PrincipalPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[principalID]
}

// PoliciesFor returns every PrincipalPolicy document loaded for
// principalID, in load order. Exported for callers (e.g. the decision
// engine) that need a per-principal document count alongside Evaluate.
func (s *Store) PoliciesFor(principalID string) []*types.PrincipalPolicy {
	return s.policiesFor(principalID)
}

// Evaluator computes a principal verdict for a single action.
type Evaluator struct {
	store *Store
	cel   *cel.Engine
}

// NewEvaluator builds an Evaluator over store, using celEngine for
// rule conditions.
func NewEvaluator(store *Store, celEngine *cel.Engine) *Evaluator {
	return &Evaluator{store: store, cel: celEngine}
}

// Evaluate returns the principal verdict for principal/resource/action.
// The first matching deny wins; otherwise the first matching allow;
// otherwise Present is false.
func (e *Evaluator) Evaluate(principal *types.Principal, resource *types.Resource, action string, derivedRoles []string) Verdict {
	if principal == nil {
		return Verdict{}
	}

	var allowVerdict *Verdict

	for _, policy := range e.store.policiesFor(principal.ID) {
		for _, rule := range policy.Rules {
			if !resourceMatches(rule.Resource, resource) {
				continue
			}

			for ruleIdx, actionRule := range rule.Actions {
				if !matcher.MatchAction(actionRule.Action, action) {
					continue
				}

				if rule.Condition != "" {
					ctx := conditionContext(principal, resource, derivedRoles)
					if !e.cel.EvaluateBoolean(rule.Condition, ctx) {
						continue
					}
				}

				if actionRule.Effect == types.EffectDeny {
					return Verdict{Present: true, Effect: types.EffectDeny, PolicyName: policy.Name, RuleIndex: ruleIdx}
				}
				if allowVerdict == nil {
					allowVerdict = &Verdict{Present: true, Effect: types.EffectAllow, PolicyName: policy.Name, RuleIndex: ruleIdx}
				}
			}
		}
	}

	if allowVerdict != nil {
		return *allowVerdict
	}
	return Verdict{}
}

func resourceMatches(pattern string, resource *types.Resource) bool {
	if resource == nil {
		return pattern == "*"
	}
	return pattern == "*" || pattern == resource.Kind
}

func conditionContext(principal *types.Principal, resource *types.Resource, derivedRoles []string) *cel.EvalContext {
	principalMap := principal.ToMap()
	if len(derivedRoles) > 0 {
		roles := make([]interface{}, len(derivedRoles))
		for i, r := range derivedRoles {
			roles[i] = r
		}
		principalMap["derivedRoles"] = roles
	}
	var resourceMap map[string]interface{}
	if resource != nil {
		resourceMap = resource.ToMap()
	} else {
		resourceMap = map[string]interface{}{}
	}
	return &cel.EvalContext{Principal: principalMap, Resource: resourceMap}
}
