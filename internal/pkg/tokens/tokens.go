package tokens

import (
	"strings"
	"unicode"
)

// Tokenize lowercases every field, splits on anything that is not a letter or
// digit and returns each token once, in first-seen order
func Tokenize(fields ...string) []string {
	seen := make(map[string]bool)
	out := []string{}

	for _, field := range fields {
		if field == "" {
			continue
		}
		parts := strings.FieldsFunc(strings.ToLower(field), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, p := range parts {
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
	}

	return out
}

// ContainsAll reports whether every query token is in the set
func ContainsAll(set []string, query []string) bool {
	if len(query) == 0 {
		return true
	}
	index := make(map[string]bool, len(set))
	for _, t := range set {
		index[t] = true
	}
	for _, q := range query {
		if !index[q] {
			return false
		}
	}
	return true
}

// Overlap returns the tokens present in both a and b, in a's order
func Overlap(a, b []string) []string {
	index := make(map[string]bool, len(b))
	for _, t := range b {
		index[t] = true
	}
	shared := []string{}
	for _, t := range a {
		if index[t] {
			shared = append(shared, t)
			delete(index, t)
		}
	}
	return shared
}
