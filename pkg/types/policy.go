package types

// PolicyKind discriminates the five supported document kinds.
type PolicyKind string

const (
	KindResourcePolicy    PolicyKind = "ResourcePolicy"
	KindPrincipalPolicy   PolicyKind = "PrincipalPolicy"
	KindDerivedRoles      PolicyKind = "DerivedRoles"
	KindExportVariables   PolicyKind = "ExportVariables"
	KindExportConstants   PolicyKind = "ExportConstants"
)

// APIVersion is the single supported apiVersion value for all policy
// documents.
const APIVersion = "authz.engine/v1"

// Metadata is shared by all five policy kinds.
type Metadata struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Scope       string `json:"scope,omitempty" yaml:"scope,omitempty"`
}

// Rule is a single allow/deny rule inside a ResourcePolicy.
type Rule struct {
	Name         string   `json:"name,omitempty" yaml:"name,omitempty"`
	Actions      []string `json:"actions" yaml:"actions"`
	Effect       Effect   `json:"effect" yaml:"effect"`
	Roles        []string `json:"roles,omitempty" yaml:"roles,omitempty"`
	DerivedRoles []string `json:"derivedRoles,omitempty" yaml:"derivedRoles,omitempty"`
	Condition    string   `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// ResourcePolicy grants or denies actions on a resource kind.
type ResourcePolicy struct {
	Metadata  `yaml:",inline"`
	Resource  string           `json:"resource" yaml:"resource"`
	Rules     []*Rule          `json:"rules" yaml:"rules"`
	Variables *PolicyVariables `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// PrincipalRule is a single rule inside a PrincipalPolicy, scoped to one
// resource kind.
type PrincipalRule struct {
	Resource  string                `json:"resource" yaml:"resource"`
	Actions   []PrincipalActionRule `json:"actions" yaml:"actions"`
	Condition string                `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// PrincipalActionRule binds one action pattern to an effect within a
// PrincipalRule.
type PrincipalActionRule struct {
	Action string `json:"action" yaml:"action"`
	Effect Effect `json:"effect" yaml:"effect"`
}

// PrincipalPolicy holds principal-scoped rules. A principal deny
// overrides resource policies; a principal allow is itself overridden by
// a resource-side explicit deny.
type PrincipalPolicy struct {
	Metadata  `yaml:",inline"`
	Principal string           `json:"principal" yaml:"principal"`
	Rules     []*PrincipalRule `json:"rules" yaml:"rules"`
}

// DerivedRoleDefinition computes a role name from parent roles and a
// condition.
type DerivedRoleDefinition struct {
	Name        string   `json:"name" yaml:"name"`
	ParentRoles []string `json:"parentRoles" yaml:"parentRoles"`
	Condition   string   `json:"condition" yaml:"condition"`
}

// DerivedRolesPolicy is a named collection of derived-role definitions.
type DerivedRolesPolicy struct {
	Metadata    `yaml:",inline"`
	Definitions []*DerivedRoleDefinition `json:"definitions" yaml:"definitions"`
}

// ExportVariables is a reusable, named set of CEL variable definitions
// that resource-policy `variables.import` can pull in.
type ExportVariables struct {
	Metadata    `yaml:",inline"`
	Definitions map[string]string `json:"definitions" yaml:"definitions"`
}

// ExportConstants is a reusable, named set of literal value definitions.
type ExportConstants struct {
	Metadata    `yaml:",inline"`
	Definitions map[string]interface{} `json:"definitions" yaml:"definitions"`
}

// PolicyVariables is the import/local variable block attached to a
// ResourcePolicy.
type PolicyVariables struct {
	Import []string          `json:"import,omitempty" yaml:"import,omitempty"`
	Local  map[string]string `json:"local,omitempty" yaml:"local,omitempty"`
}
