// Package derivedroles resolves the set of derived roles that apply to
// a principal against a resource. Dependency ordering and cycle
// detection are shared with the validator; a cycle is a load-time
// failure, not a per-request one. Resolve assumes ValidateAll already
// ran.
package derivedroles

import (
	"fmt"
	"sort"

	"github.com/authz-engine/go-core/internal/cel"
	"github.com/authz-engine/go-core/internal/matcher"
	"github.com/authz-engine/go-core/pkg/types"
)

// Resolver evaluates derived-role definitions in dependency order.
type Resolver struct {
	celEngine *cel.Engine
}

// NewResolver builds a Resolver over the given CEL engine.
func NewResolver(celEngine *cel.Engine) *Resolver {
	return &Resolver{celEngine: celEngine}
}

// Resolve returns the principal's base roles plus every derived role
// whose parent-role patterns match the current role set and whose
// condition evaluates true. definitions are put in dependency order
// with Sort; a cycle returns a CircularDependencyError, which
// ValidateAll rejects at load time.
func (r *Resolver) Resolve(principal *types.Principal, resource *types.Resource, auxData map[string]interface{}, definitions []*types.DerivedRoleDefinition) ([]string, error) {
	if principal == nil {
		return nil, fmt.Errorf("derivedroles: principal cannot be nil")
	}

	resolved := make(map[string]bool, len(principal.Roles))
	currentRoles := append([]string{}, principal.Roles...)
	for _, role := range currentRoles {
		resolved[role] = true
	}

	if len(definitions) == 0 {
		return currentRoles, nil
	}

	ordered, err := Sort(definitions)
	if err != nil {
		return nil, err
	}

	principalMap := principal.ToMap()
	var resourceMap map[string]interface{}
	if resource != nil {
		resourceMap = resource.ToMap()
	} else {
		resourceMap = map[string]interface{}{}
	}

	for _, def := range ordered {
		if !matcher.MatchAnyRolePattern(def.ParentRoles, currentRoles) {
			continue
		}

		matched := true
		if def.Condition != "" {
			matched = r.celEngine.EvaluateBoolean(def.Condition, &cel.EvalContext{
				Principal: principalMap,
				Resource:  resourceMap,
				AuxData:   auxData,
			})
		}

		if matched && !resolved[def.Name] {
			resolved[def.Name] = true
			currentRoles = append(currentRoles, def.Name)
		}
	}

	result := make([]string, 0, len(resolved))
	for role := range resolved {
		result = append(result, role)
	}
	sort.Strings(result)
	return result, nil
}
