package derivedroles

import (
	"encoding/json"
	"hash/fnv"
	"io"
	"sync"

	"github.com/authz-engine/go-core/pkg/types"
)

// Memo is a memoization layer over Resolver.Resolve, keyed by principal
// id, resource kind and id, and a digest of the roles and attribute
// bags. The digest keeps a repeat check with the same ids but changed
// attributes from being served a stale role set.
type Memo struct {
	mu    sync.Mutex
	cache map[memoKey][]string
}

type memoKey struct {
	principalID  string
	resourceKind string
	resourceID   string
	digest       uint64
}

// NewMemo creates an empty memoization cache.
func NewMemo() *Memo {
	return &Memo{cache: make(map[memoKey][]string)}
}

// Get returns a previously-resolved role set, if present.
func (m *Memo) Get(principal *types.Principal, resource *types.Resource) ([]string, bool) {
	key := keyFor(principal, resource)

	m.mu.Lock()
	defer m.mu.Unlock()
	roles, ok := m.cache[key]
	return roles, ok
}

// Set stores a resolved role set.
func (m *Memo) Set(principal *types.Principal, resource *types.Resource, roles []string) {
	key := keyFor(principal, resource)
	stored := append([]string{}, roles...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[key] = stored
}

// Clear empties the memo.
func (m *Memo) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = make(map[memoKey][]string)
}

func keyFor(principal *types.Principal, resource *types.Resource) memoKey {
	key := memoKey{}
	h := fnv.New64a()
	if principal != nil {
		key.principalID = principal.ID
		writeCanonical(h, principal.Roles)
		writeCanonical(h, principal.Attributes)
	}
	if resource != nil {
		key.resourceKind = resource.Kind
		key.resourceID = resource.ID
		writeCanonical(h, resource.Attributes)
	}
	key.digest = h.Sum64()
	return key
}

// writeCanonical folds v into h via its JSON encoding; json.Marshal
// sorts map keys, so equal bags always produce equal bytes.
func writeCanonical(h io.Writer, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = h.Write(b)
}
