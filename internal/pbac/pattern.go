package pbac

import (
	"regexp"
	"strings"
)

// Match reports whether pattern matches the entire candidate string.
// '*' matches any run of characters, including none; every other
// character is literal and case-sensitive. There are no substring
// matches: the pattern is anchored at both ends.
func Match(pattern, candidate string) bool {
	return compilePattern(pattern).MatchString(candidate)
}

func compilePattern(pattern string) *regexp.Regexp {
	// QuoteMeta output is always a valid expression, so MustCompile
	// cannot panic here.
	expr := "^" + strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, ".*") + "$"
	return regexp.MustCompile(expr)
}
