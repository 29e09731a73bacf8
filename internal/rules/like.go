package rules

import "strings"

// like is a LIKE pattern made of literal parts joined by '%' wildcards.
// Matching is ASCII case-insensitive, as in SQLite's default LIKE.
type like struct {
	parts    []string // lowercased
	anchored bool     // first part must be a prefix
}

// contains builds '%a%b%...%'.
func contains(parts ...string) like {
	return like{parts: lowerAll(parts)}
}

// prefix builds 'a%b%...%'.
func prefix(parts ...string) like {
	return like{parts: lowerAll(parts), anchored: true}
}

// match reports whether the already-lowercased s matches.
func (l like) match(s string) bool {
	for i, p := range l.parts {
		if i == 0 && l.anchored {
			if !strings.HasPrefix(s, p) {
				return false
			}
			s = s[len(p):]
			continue
		}
		idx := strings.Index(s, p)
		if idx < 0 {
			return false
		}
		s = s[idx+len(p):]
	}
	return true
}

func lowerAll(parts []string) []string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = asciiLower(p)
	}
	return out
}

// asciiLower folds A-Z only, leaving other bytes untouched.
func asciiLower(s string) string {
	hasUpper := false
	for i := 0; i < len(s); i++ {
		if c := s[i]; 'A' <= c && c <= 'Z' {
			hasUpper = true
			break
		}
	}
	if !hasUpper {
		return s
	}
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func anyOf(s string, patterns ...like) bool {
	for _, p := range patterns {
		if p.match(s) {
			return true
		}
	}
	return false
}
