// Package policy provides policy storage, loading and validation. The
// Store is append-only from a reader's perspective: every mutation
// builds a new immutable snapshot and swaps it in atomically, so
// concurrent checks never observe a partially-updated index.
package policy

import (
	"sync/atomic"

	"github.com/authz-engine/go-core/internal/principal"
	"github.com/authz-engine/go-core/internal/variables"
	"github.com/authz-engine/go-core/pkg/types"
)

// Stats reports current document counts per store.
type Stats struct {
	ResourcePolicies    int
	DerivedRolesPolicies int
	PrincipalPolicies   int
	Resources           int
}

type snapshot struct {
	// scope -> resourceKind -> policies, in load order
	resourceByScope map[string]map[string][]*types.ResourcePolicy
	derivedRoleDefs []*types.DerivedRoleDefinition
	resourceKinds   map[string]bool
	resourcePolicyCount int
	derivedRolesPolicyCount int
}

func emptySnapshot() *snapshot {
	return &snapshot{
		resourceByScope: make(map[string]map[string][]*types.ResourcePolicy),
		derivedRoleDefs: nil,
		resourceKinds:   make(map[string]bool),
	}
}

// Store holds every loaded policy document. Resource/derived-role
// documents live behind an atomic snapshot pointer; principal policies
// and variable exports have their own internally-synchronized stores
// (internal/principal.Store, internal/variables.Resolver) since they
// are indexed and resolved independently of scope.
type Store struct {
	snap      atomic.Pointer[snapshot]
	Principal *principal.Store
	Variables *variables.Resolver
}

// NewStore creates an empty policy store.
func NewStore() *Store {
	s := &Store{
		Principal: principal.NewStore(),
		Variables: variables.NewResolver(),
	}
	s.snap.Store(emptySnapshot())
	return s
}

func (s *Store) current() *snapshot {
	return s.snap.Load()
}

// LoadResourcePolicies adds ResourcePolicy documents, additive and
// idempotent per (scope, resource, name) identity.
func (s *Store) LoadResourcePolicies(policies []*types.ResourcePolicy) {
	if len(policies) == 0 {
		return
	}
	next := s.cloneSnapshot()
	for _, p := range policies {
		s.addResourcePolicy(next, p)
	}
	s.snap.Store(next)
}

// LoadDerivedRolesPolicies merges derived-role definitions from each
// document into the global definition set. Callers must have already
// run ValidateAll over the merged set at load time.
func (s *Store) LoadDerivedRolesPolicies(policies []*types.DerivedRolesPolicy) {
	if len(policies) == 0 {
		return
	}
	next := s.cloneSnapshot()
	for _, p := range policies {
		next.derivedRolesPolicyCount++
		next.derivedRoleDefs = append(next.derivedRoleDefs, p.Definitions...)
	}
	s.snap.Store(next)
}

// LoadExportVariables registers ExportVariables documents by name so
// policies can import them. Documents are registered in order; the
// first duplicate name stops the load and is returned, leaving earlier
// documents registered and later ones not attempted.
func (s *Store) LoadExportVariables(docs []*types.ExportVariables) error {
	for _, d := range docs {
		if err := s.Variables.RegisterVariables(d.Name, d.Definitions); err != nil {
			return err
		}
	}
	return nil
}

// LoadExportConstants registers ExportConstants documents by name.
func (s *Store) LoadExportConstants(docs []*types.ExportConstants) error {
	for _, d := range docs {
		if err := s.Variables.RegisterConstants(d.Name, d.Definitions); err != nil {
			return err
		}
	}
	return nil
}

// LoadPrincipalPolicies adds PrincipalPolicy documents.
func (s *Store) LoadPrincipalPolicies(policies []*types.PrincipalPolicy) {
	for _, p := range policies {
		s.Principal.Add(p)
	}
}

// LoadScopedResourcePolicies is an alias of LoadResourcePolicies: scope
// is carried on each ResourcePolicy's Metadata.Scope field already, so
// the core only needs one code path.
func (s *Store) LoadScopedResourcePolicies(policies []*types.ResourcePolicy) {
	s.LoadResourcePolicies(policies)
}

// ClearPolicies purges every store and derived cache.
func (s *Store) ClearPolicies() {
	s.snap.Store(emptySnapshot())
	s.Principal.Replace(nil)
	s.Variables.Clear()
}

func (s *Store) cloneSnapshot() *snapshot {
	old := s.current()
	next := &snapshot{
		resourceByScope:         make(map[string]map[string][]*types.ResourcePolicy, len(old.resourceByScope)),
		derivedRoleDefs:         append([]*types.DerivedRoleDefinition{}, old.derivedRoleDefs...),
		resourceKinds:           make(map[string]bool, len(old.resourceKinds)),
		resourcePolicyCount:     old.resourcePolicyCount,
		derivedRolesPolicyCount: old.derivedRolesPolicyCount,
	}
	for scope, byKind := range old.resourceByScope {
		copied := make(map[string][]*types.ResourcePolicy, len(byKind))
		for kind, list := range byKind {
			copied[kind] = append([]*types.ResourcePolicy{}, list...)
		}
		next.resourceByScope[scope] = copied
	}
	for k := range old.resourceKinds {
		next.resourceKinds[k] = true
	}
	return next
}

func (s *Store) addResourcePolicy(next *snapshot, p *types.ResourcePolicy) {
	scope := p.Metadata.Scope
	if next.resourceByScope[scope] == nil {
		next.resourceByScope[scope] = make(map[string][]*types.ResourcePolicy)
	}
	for _, existing := range next.resourceByScope[scope][p.Resource] {
		if existing.Name == p.Name {
			return
		}
	}
	next.resourceByScope[scope][p.Resource] = append(next.resourceByScope[scope][p.Resource], p)
	next.resourceKinds[p.Resource] = true
	next.resourcePolicyCount++
}

// FindResourcePolicies returns every ResourcePolicy loaded for the
// exact (scope, resourceKind) pair, in load order.
func (s *Store) FindResourcePolicies(scope, resourceKind string) []*types.ResourcePolicy {
	byKind, ok := s.current().resourceByScope[scope]
	if !ok {
		return nil
	}
	return byKind[resourceKind]
}

// HasResourcePolicySet reports whether any ResourcePolicy exists for
// (scope, resourceKind); used by internal/scope.FindMatchingPolicy.
func (s *Store) HasResourcePolicySet(scope, resourceKind string) bool {
	byKind, ok := s.current().resourceByScope[scope]
	if !ok {
		return false
	}
	return len(byKind[resourceKind]) > 0
}

// DerivedRoleDefinitions returns every loaded derived-role definition.
func (s *Store) DerivedRoleDefinitions() []*types.DerivedRoleDefinition {
	return s.current().derivedRoleDefs
}

// Stats reports current document counts.
func (s *Store) Stats() Stats {
	snap := s.current()
	return Stats{
		ResourcePolicies:     snap.resourcePolicyCount,
		DerivedRolesPolicies: snap.derivedRolesPolicyCount,
		PrincipalPolicies:    int(s.Principal.TotalLoaded()),
		Resources:            len(snap.resourceKinds),
	}
}
