package rules

import (
	"strings"

	"github.com/tidwall/match"
)

// MatchPattern reports whether path matches an Ant-style pattern.
// "**" spans any number of segments, "*" matches within one segment and "?" matches one character.
func MatchPattern(pattern, path string) bool {
	return matchSegments(splitPath(pattern), splitPath(path))
}

func matchSegments(pattern, path []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			for len(pattern) > 0 && pattern[0] == "**" {
				pattern = pattern[1:]
			}
			if len(pattern) == 0 {
				return true
			}
			for i := 0; i <= len(path); i++ {
				if matchSegments(pattern, path[i:]) {
					return true
				}
			}
			return false
		}
		if len(path) == 0 || !match.Match(path[0], pattern[0]) {
			return false
		}
		pattern, path = pattern[1:], path[1:]
	}
	return len(path) == 0
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
