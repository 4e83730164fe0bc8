package permission

import "strings"

// Permission names are token sequences separated by TokenDelimiter, e.g.
// "content:section:publish".
const TokenDelimiter = ":"

// Pattern grammar: a '*' token matches exactly one arbitrary token at that
// position; a trailing '**' token matches one or more remaining tokens.
// Patterns without wildcard tokens require exact equality. A pattern with a
// different token count than the requested name never matches unless it ends
// in '**'. A '**' anywhere but the last position matches nothing.
//
// So "content:*" matches "content:publish" but not "content:section:publish";
// "content:**" matches both, and neither matches bare "content".

// Matches reports whether the requested permission name is covered by the
// granted pattern.
func Matches(requested, pattern string) bool {
	if pattern == requested {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return false
	}
	want := strings.Split(requested, TokenDelimiter)
	have := strings.Split(pattern, TokenDelimiter)

	for i, tok := range have {
		if tok == "**" {
			// must be last, and must consume at least one token
			return i == len(have)-1 && len(want) > i
		}
		if i >= len(want) {
			return false
		}
		if tok != "*" && tok != want[i] {
			return false
		}
	}
	return len(want) == len(have)
}

// MatchesAny reports whether any of the granted patterns covers the name.
func MatchesAny(requested string, patterns []string) bool {
	for _, p := range patterns {
		if Matches(requested, p) {
			return true
		}
	}
	return false
}

// IsPattern reports whether a permission name contains wildcard tokens.
func IsPattern(name string) bool {
	return strings.Contains(name, "*")
}
