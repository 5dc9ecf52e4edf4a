package derivedroles

import (
	"github.com/authz-engine/go-core/pkg/types"
)

// Sort returns definitions in dependency order (a derived role that
// names another derived role as a parent is ordered after it), using
// Kahn's algorithm. It returns a CircularDependencyError if the
// dependency graph has a cycle; call it at policy load time, not per
// request.
func Sort(definitions []*types.DerivedRoleDefinition) ([]*types.DerivedRoleDefinition, error) {
	byName := make(map[string]*types.DerivedRoleDefinition, len(definitions))
	for _, d := range definitions {
		byName[d.Name] = d
	}

	deps := make(map[string][]string, len(definitions))
	for _, d := range definitions {
		for _, parent := range d.ParentRoles {
			if _, isDerived := byName[parent]; isDerived {
				deps[d.Name] = append(deps[d.Name], parent)
			}
		}
	}

	if cycle := findCycle(definitions, deps); cycle != nil {
		return nil, &types.CircularDependencyError{Path: cycle}
	}

	inDegree := make(map[string]int, len(definitions))
	dependents := make(map[string][]string, len(definitions))
	for _, d := range definitions {
		inDegree[d.Name] = len(deps[d.Name])
	}
	for name, parents := range deps {
		for _, parent := range parents {
			dependents[parent] = append(dependents[parent], name)
		}
	}

	queue := make([]string, 0)
	for _, d := range definitions {
		if inDegree[d.Name] == 0 {
			queue = append(queue, d.Name)
		}
	}

	ordered := make([]*types.DerivedRoleDefinition, 0, len(definitions))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		ordered = append(ordered, byName[name])

		for _, dependent := range dependents[name] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	return ordered, nil
}

// findCycle runs DFS-based cycle detection and, if a cycle exists,
// returns it as a path of role names.
func findCycle(definitions []*types.DerivedRoleDefinition, deps map[string][]string) []string {
	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	state := make(map[string]int, len(definitions))

	var path []string
	var dfs func(node string) []string
	dfs = func(node string) []string {
		switch state[node] {
		case visiting:
			cut := 0
			for i, n := range path {
				if n == node {
					cut = i
					break
				}
			}
			return append(append([]string{}, path[cut:]...), node)
		case visited:
			return nil
		}

		state[node] = visiting
		path = append(path, node)

		for _, dep := range deps[node] {
			if cycle := dfs(dep); cycle != nil {
				return cycle
			}
		}

		path = path[:len(path)-1]
		state[node] = visited
		return nil
	}

	for _, d := range definitions {
		if state[d.Name] == unvisited {
			if cycle := dfs(d.Name); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// ValidateAll performs cross-definition checks: name uniqueness, no
// direct self-reference in parentRoles, and dependency-cycle detection.
// Individual field/condition-syntax validation
// lives in internal/policy's validator, which calls this as one step.
func ValidateAll(definitions []*types.DerivedRoleDefinition) error {
	if len(definitions) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(definitions))
	for _, d := range definitions {
		if seen[d.Name] {
			return &types.DuplicateDefinitionError{Name: d.Name}
		}
		seen[d.Name] = true

		for _, parent := range d.ParentRoles {
			if parent == d.Name {
				return &types.CircularDependencyError{Path: []string{d.Name, d.Name}}
			}
		}
	}

	_, err := Sort(definitions)
	return err
}
