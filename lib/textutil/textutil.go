package textutil

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

func MatchName(name string, matchers []string) bool {
	return MatchIndex(name, matchers) >= 0
}

// MatchIndex reports which matcher hit first, -1 when none did.
// matchers are compared in normalized form so they should be
// written without whitespace.
func MatchIndex(name string, matchers []string) int {
	name = NormalizeName(name)
	for i, m := range matchers {
		if strings.Contains(name, NormalizeName(m)) {
			return i
		}
	}
	return -1
}
