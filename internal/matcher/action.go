// Package matcher implements the structured wildcard matching used to
// decide whether a rule's action patterns cover a requested action, and
// whether a scope pattern covers a requested scope.
package matcher

import "strings"

// MatchAction reports whether a colon-segmented action pattern covers an
// action. Matching rules, in order:
//
//   - an exact match always wins.
//   - the bare pattern "*" matches only a single-segment action (it does
//     NOT match "doc:read"). This is asymmetric with a trailing "*" on a
//     qualified pattern, which is tail-greedy. The asymmetry is
//     intentional; callers depend on it.
//   - a "*" segment in the middle of a pattern matches exactly one
//     non-empty segment.
//   - a trailing "*" on a pattern with at least one other segment is
//     tail-greedy: it matches one or more remaining non-empty segments.
//     "doc:*" matches "doc:read" and "doc:meta:read" but not the bare
//     "doc" (empty tail).
//   - outside of a trailing wildcard, segment counts must match exactly.
func MatchAction(pattern, action string) bool {
	if pattern == action {
		return true
	}
	if action == "" {
		return false
	}
	if pattern == "*" {
		return !strings.Contains(action, ":")
	}

	patternSegs := strings.Split(pattern, ":")
	actionSegs := strings.Split(action, ":")

	last := patternSegs[len(patternSegs)-1]
	if last == "*" {
		prefix := patternSegs[:len(patternSegs)-1]
		if len(actionSegs) <= len(prefix) {
			// trailing wildcard requires at least one remaining segment
			return false
		}
		for i, seg := range prefix {
			if seg == "*" {
				if actionSegs[i] == "" {
					return false
				}
				continue
			}
			if seg != actionSegs[i] {
				return false
			}
		}
		for _, seg := range actionSegs[len(prefix):] {
			if seg == "" {
				return false
			}
		}
		return true
	}

	if len(patternSegs) != len(actionSegs) {
		return false
	}
	for i, seg := range patternSegs {
		if seg == "*" {
			if actionSegs[i] == "" {
				return false
			}
			continue
		}
		if seg != actionSegs[i] {
			return false
		}
	}
	return true
}

// MatchAnyAction reports whether any of the given patterns cover action.
func MatchAnyAction(patterns []string, action string) bool {
	for _, p := range patterns {
		if MatchAction(p, action) {
			return true
		}
	}
	return false
}

// IsValidActionPattern reports whether a raw action pattern string is
// well-formed: non-empty colon-delimited segments over
// [A-Za-z0-9_], with "*" allowed as a whole segment.
func IsValidActionPattern(pattern string) bool {
	if pattern == "" {
		return false
	}
	for _, seg := range strings.Split(pattern, ":") {
		if seg == "*" {
			continue
		}
		if seg == "" {
			return false
		}
		for _, r := range seg {
			if !isAlphaNumUnderscore(r) {
				return false
			}
		}
	}
	return true
}

func isAlphaNumUnderscore(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '_':
		return true
	default:
		return false
	}
}
