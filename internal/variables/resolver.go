// Package variables resolves a policy's variable/constant bindings
// against a registry of named exports, consolidating import/local
// precedence and duplicate-export detection in one component.
package variables

import (
	"sort"
	"sync"

	"github.com/authz-engine/go-core/pkg/types"
)

// Resolution is the result of resolving one policy's variable block.
type Resolution struct {
	Variables map[string]string
	Constants map[string]interface{}
	Info      ResolutionInfo
}

// ResolutionInfo reports how a Resolution was assembled, for
// diagnostics and cache-warmup accounting.
type ResolutionInfo struct {
	Imports        []string
	LocalVariables []string
	Overrides      []string
	TotalCount     int
}

// Resolver holds the registry of named ExportVariables/ExportConstants
// documents that policies may import by name.
type Resolver struct {
	mu        sync.RWMutex
	variables map[string]map[string]string
	constants map[string]map[string]interface{}
}

// NewResolver creates an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{
		variables: make(map[string]map[string]string),
		constants: make(map[string]map[string]interface{}),
	}
}

// RegisterVariables registers a named ExportVariables document. Export
// names must be unique across both variables and constants registries.
func (r *Resolver) RegisterVariables(name string, definitions map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.variables[name]; ok {
		return &types.DuplicateExportError{Name: name}
	}
	if _, ok := r.constants[name]; ok {
		return &types.DuplicateExportError{Name: name}
	}
	r.variables[name] = definitions
	return nil
}

// HasExport reports whether name is registered in either registry.
func (r *Resolver) HasExport(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, inVars := r.variables[name]
	_, inConsts := r.constants[name]
	return inVars || inConsts
}

// Clear empties both registries.
func (r *Resolver) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.variables = make(map[string]map[string]string)
	r.constants = make(map[string]map[string]interface{})
}

// RegisterConstants registers a named ExportConstants document.
func (r *Resolver) RegisterConstants(name string, definitions map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.constants[name]; ok {
		return &types.DuplicateExportError{Name: name}
	}
	if _, ok := r.variables[name]; ok {
		return &types.DuplicateExportError{Name: name}
	}
	r.constants[name] = definitions
	return nil
}

// Resolve computes the effective variable/constant bindings for pv.
// Imports are applied in declaration order, later imports winning on
// name collision; locals are applied last and override both imported
// variables and imported constants with the same name.
func (r *Resolver) Resolve(pv *types.PolicyVariables) (*Resolution, error) {
	vars := make(map[string]string)
	consts := make(map[string]interface{})
	overrides := make([]string, 0)

	if pv == nil {
		return &Resolution{
			Variables: vars,
			Constants: consts,
			Info:      ResolutionInfo{Imports: []string{}, LocalVariables: []string{}, Overrides: []string{}},
		}, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range pv.Import {
		varDefs, hasVars := r.variables[name]
		constDefs, hasConsts := r.constants[name]
		if !hasVars && !hasConsts {
			return nil, &types.UnknownExportError{Name: name}
		}
		for k, v := range varDefs {
			delete(consts, k)
			vars[k] = v
		}
		for k, v := range constDefs {
			delete(vars, k)
			consts[k] = v
		}
	}

	localNames := make([]string, 0, len(pv.Local))
	for name, expr := range pv.Local {
		localNames = append(localNames, name)
		if _, wasConst := consts[name]; wasConst {
			delete(consts, name)
			overrides = append(overrides, name)
		} else if _, wasVar := vars[name]; wasVar {
			overrides = append(overrides, name)
		}
		vars[name] = expr
	}
	sort.Strings(localNames)
	sort.Strings(overrides)

	return &Resolution{
		Variables: vars,
		Constants: consts,
		Info: ResolutionInfo{
			Imports:        append([]string{}, pv.Import...),
			LocalVariables: localNames,
			Overrides:      overrides,
			TotalCount:     len(vars) + len(consts),
		},
	}, nil
}
