// Package scope resolves hierarchical, dot-delimited policy scopes:
// validation, ancestry chains, effective-scope computation between a
// principal and a resource, and walking a policy store's scope chain
// to find the first matching policy set.
package scope

import (
	"container/list"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/authz-engine/go-core/pkg/types"
)

// Config tunes the resolver's limits and chain cache.
type Config struct {
	MaxDepth          int
	CacheCapacity     int
	CacheTTL          time.Duration
	AllowedCharsRegex *regexp.Regexp
}

// DefaultConfig allows depth 10 and a 1000-entry chain cache with a
// 5-minute TTL.
func DefaultConfig() Config {
	return Config{
		MaxDepth:          10,
		CacheCapacity:     1000,
		CacheTTL:          5 * time.Minute,
		AllowedCharsRegex: regexp.MustCompile(`^[a-z0-9_-]+$`),
	}
}

// Resolver implements scope validation, ancestry, and lookup.
type Resolver struct {
	config Config
	cache  *chainCache
}

// NewResolver builds a Resolver, filling in zero-valued Config fields
// from DefaultConfig.
func NewResolver(config Config) *Resolver {
	def := DefaultConfig()
	if config.MaxDepth == 0 {
		config.MaxDepth = def.MaxDepth
	}
	if config.CacheCapacity == 0 {
		config.CacheCapacity = def.CacheCapacity
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = def.CacheTTL
	}
	if config.AllowedCharsRegex == nil {
		config.AllowedCharsRegex = def.AllowedCharsRegex
	}
	return &Resolver{config: config, cache: newChainCache(config.CacheCapacity)}
}

// ValidateScope normalizes and validates a scope string.
func (r *Resolver) ValidateScope(scope string) (string, error) {
	if scope == "" {
		return "", nil
	}

	normalized := strings.ToLower(scope)
	segments := strings.Split(normalized, ".")
	if len(segments) > r.config.MaxDepth {
		return "", &types.InvalidScopeError{Scope: scope, Reason: types.ScopeReasonDepth}
	}
	for _, seg := range segments {
		if seg == "" {
			return "", &types.InvalidScopeError{Scope: scope, Reason: types.ScopeReasonEmptySegment}
		}
		if !r.config.AllowedCharsRegex.MatchString(seg) {
			return "", &types.InvalidScopeError{Scope: scope, Reason: types.ScopeReasonIllegalChar}
		}
	}
	return normalized, nil
}

// BuildScopeChain returns the ancestry of scope from most to least
// specific; e.g. "a.b.c" -> ["a.b.c", "a.b", "a"]. An empty scope
// yields an empty chain. Results are cached by normalized scope.
func (r *Resolver) BuildScopeChain(scope string) ([]string, error) {
	if scope == "" {
		return []string{}, nil
	}

	normalized, err := r.ValidateScope(scope)
	if err != nil {
		return nil, err
	}

	if chain, ok := r.cache.get(normalized, r.config.CacheTTL); ok {
		return chain, nil
	}

	segments := strings.Split(normalized, ".")
	chain := make([]string, len(segments))
	for i := len(segments); i > 0; i-- {
		chain[len(segments)-i] = strings.Join(segments[:i], ".")
	}

	r.cache.set(normalized, chain, r.config.CacheTTL)
	return chain, nil
}

// ComputeEffectiveScope derives the scope a check should evaluate
// against from the principal's and resource's scopes: the longer when
// one is a prefix of the other, otherwise their common ancestor.
func (r *Resolver) ComputeEffectiveScope(principalScope, resourceScope string) string {
	p := strings.ToLower(principalScope)
	res := strings.ToLower(resourceScope)

	switch {
	case p == "" && res == "":
		return ""
	case p == "":
		return resourceScope
	case res == "":
		return principalScope
	case p == res:
		return principalScope
	case strings.HasPrefix(p, res+"."):
		return principalScope
	case strings.HasPrefix(res, p+"."):
		return resourceScope
	default:
		return commonAncestor(p, res)
	}
}

func commonAncestor(a, b string) string {
	aSegs := strings.Split(a, ".")
	bSegs := strings.Split(b, ".")

	n := len(aSegs)
	if len(bSegs) < n {
		n = len(bSegs)
	}
	common := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if aSegs[i] != bSegs[i] {
			break
		}
		common = append(common, aSegs[i])
	}
	return strings.Join(common, ".")
}

// PolicySetLookup reports whether a scoped policy set exists for
// (scope, resourceKind).
type PolicySetLookup func(scope, resourceKind string) bool

// MatchResult is the outcome of walking a scope chain for a match.
type MatchResult struct {
	MatchedScope string
	Chain        []string
	Found        bool
}

// FindMatchingPolicy walks the chain for effectiveScope from
// most-specific to the root, returning the first scope for which
// exists reports a policy set. The global scope ("") is always
// appended to the reported chain as the final fallback.
func (r *Resolver) FindMatchingPolicy(exists PolicySetLookup, resourceKind, effectiveScope string) (*MatchResult, error) {
	chain, err := r.BuildScopeChain(effectiveScope)
	if err != nil {
		return nil, fmt.Errorf("building scope chain: %w", err)
	}

	reported := append(append([]string{}, chain...), "")

	for _, scope := range chain {
		if exists(scope, resourceKind) {
			return &MatchResult{MatchedScope: scope, Chain: reported, Found: true}, nil
		}
	}
	if exists("", resourceKind) {
		return &MatchResult{MatchedScope: "", Chain: reported, Found: true}, nil
	}
	return &MatchResult{MatchedScope: "", Chain: reported, Found: false}, nil
}

// Stats exposes the chain cache's hit/miss counters.
func (r *Resolver) Stats() CacheStats {
	return r.cache.stats()
}

// CacheStats reports chain-cache performance.
type CacheStats struct {
	Size      int
	HitCount  int64
	MissCount int64
	HitRate   float64
}

// chainCache is a bounded LRU with TTL over computed scope chains.
type chainCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	items    map[string]*list.Element
	hits     int64
	misses   int64
}

type chainCacheEntry struct {
	key     string
	chain   []string
	expires time.Time
}

func newChainCache(capacity int) *chainCache {
	return &chainCache{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

func (c *chainCache) get(key string, ttl time.Duration) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	entry := elem.Value.(*chainCacheEntry)
	if time.Now().After(entry.expires) {
		c.order.Remove(elem)
		delete(c.items, key)
		c.misses++
		return nil, false
	}
	c.order.MoveToFront(elem)
	c.hits++
	return entry.chain, true
}

func (c *chainCache) set(key string, chain []string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*chainCacheEntry)
		entry.chain = chain
		entry.expires = time.Now().Add(ttl)
		c.order.MoveToFront(elem)
		return
	}

	for c.order.Len() >= c.capacity {
		back := c.order.Back()
		if back == nil {
			break
		}
		delete(c.items, back.Value.(*chainCacheEntry).key)
		c.order.Remove(back)
	}

	entry := &chainCacheEntry{key: key, chain: chain, expires: time.Now().Add(ttl)}
	elem := c.order.PushFront(entry)
	c.items[key] = elem
}

func (c *chainCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return CacheStats{Size: c.order.Len(), HitCount: c.hits, MissCount: c.misses, HitRate: hitRate}
}
