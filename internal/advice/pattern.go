package advice

import (
	"fmt"
	"regexp"
	"strings"
)

// namePattern matches class, method or type names. A value wrapped in
// slashes is a regular expression; otherwise '*' is a wildcard and
// everything else is literal.
type namePattern struct {
	literal string
	re      *regexp.Regexp
}

func isRegex(s string) bool {
	return len(s) > 2 && strings.HasPrefix(s, "/") && strings.HasSuffix(s, "/")
}

func compilePattern(s string) (namePattern, error) {
	if isRegex(s) {
		re, err := regexp.Compile("^(?:" + s[1:len(s)-1] + ")$")
		if err != nil {
			return namePattern{}, fmt.Errorf("pattern %q: %w", s, err)
		}
		return namePattern{re: re}, nil
	}
	if !strings.Contains(s, "*") {
		return namePattern{literal: s}, nil
	}
	parts := strings.Split(s, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return namePattern{re: regexp.MustCompile("^" + strings.Join(parts, ".*") + "$")}, nil
}

func (p namePattern) match(s string) bool {
	if p.re != nil {
		return p.re.MatchString(s)
	}
	return p.literal == s
}

// isLiteral reports whether the pattern can only match one exact name.
func (p namePattern) isLiteral() bool {
	return p.re == nil
}

// javaClassName converts an internal name to the dotted form pointcuts use.
func javaClassName(internal string) string {
	return strings.ReplaceAll(internal, "/", ".")
}

// normalizePattern rewrites internal names in a non-regex pattern to the
// dotted form.
func normalizePattern(s string) string {
	if isRegex(s) {
		return s
	}
	return javaClassName(s)
}
