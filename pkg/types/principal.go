package types

// Principal represents the entity requesting access.
type Principal struct {
	ID         string                 `json:"id" yaml:"id"`
	Roles      []string               `json:"roles" yaml:"roles"`
	Attributes map[string]interface{} `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// HasRole checks if the principal has a specific role.
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ToMap converts Principal into the map CEL evaluation expects.
// Attributes are spread onto the top level (principal.department) in
// addition to being reachable via principal.attributes.department and
// principal.attr.department; both paths resolve with identical
// semantics. Spread keys never shadow id/roles/attributes/attr.
func (p *Principal) ToMap() map[string]interface{} {
	attrs := p.Attributes
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	roles := make([]interface{}, len(p.Roles))
	for i, r := range p.Roles {
		roles[i] = r
	}

	m := make(map[string]interface{}, len(attrs)+4)
	for k, v := range attrs {
		m[k] = v
	}
	m["id"] = p.ID
	m["roles"] = roles
	m["attributes"] = attrs
	m["attr"] = attrs
	return m
}

// Resource represents the resource being accessed.
type Resource struct {
	Kind       string                 `json:"kind" yaml:"kind"`
	ID         string                 `json:"id" yaml:"id"`
	Attributes map[string]interface{} `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// ToMap converts Resource into the map CEL evaluation expects. Attributes
// are spread onto the top level (resource.ownerId) in addition to being
// reachable via resource.attributes.ownerId and resource.attr.ownerId.
// Spread keys never shadow kind/id/attributes/attr.
func (r *Resource) ToMap() map[string]interface{} {
	attrs := r.Attributes
	if attrs == nil {
		attrs = map[string]interface{}{}
	}

	m := make(map[string]interface{}, len(attrs)+4)
	for k, v := range attrs {
		m[k] = v
	}
	m["kind"] = r.Kind
	m["id"] = r.ID
	m["attributes"] = attrs
	m["attr"] = attrs
	return m
}
