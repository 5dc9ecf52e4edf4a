package matcher

import (
	"regexp"
	"strings"
	"sync"
)

// MatchScope reports whether a dot-delimited scope pattern covers a
// concrete scope. Supports "*" for exactly one segment and "**" for
// zero or more segments; a pattern of "**" alone matches every scope,
// including the empty scope.
func MatchScope(pattern, scope string) bool {
	if pattern == scope {
		return true
	}
	if pattern == "**" {
		return true
	}

	re, err := compiledScopePattern(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(scope)
}

var scopePatternCache sync.Map // map[string]*regexp.Regexp

func compiledScopePattern(pattern string) (*regexp.Regexp, error) {
	if v, ok := scopePatternCache.Load(pattern); ok {
		return v.(*regexp.Regexp), nil
	}

	quoted := regexp.QuoteMeta(pattern)
	// Order matters: handle the forms with a separator first so ".**"
	// collapses to an optional "(\..*)?" group and a leading "**." to an
	// optional "(.*\.)?" group instead of leaving a dangling literal dot
	// behind.
	quoted = strings.ReplaceAll(quoted, `\.\*\*`, `(\..*)?`)
	quoted = strings.ReplaceAll(quoted, `\*\*\.`, `(.*\.)?`)
	quoted = strings.ReplaceAll(quoted, `\*\*`, `.*`)
	quoted = strings.ReplaceAll(quoted, `\*`, `[^.]+`)

	re, err := regexp.Compile("^" + quoted + "$")
	if err != nil {
		return nil, err
	}
	scopePatternCache.Store(pattern, re)
	return re, nil
}
