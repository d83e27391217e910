// Package textsim implements the lexical similarity primitives shared by
// duplicate detection, contradiction checks and consolidation.
package textsim

import (
	"strings"
	"unicode"
)

// MinTokenLen is the shortest token kept by Tokens.
const MinTokenLen = 3

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {}, "you": {},
	"all": {}, "any": {}, "can": {}, "had": {}, "her": {}, "was": {}, "one": {},
	"our": {}, "out": {}, "has": {}, "have": {}, "his": {}, "how": {}, "its": {},
	"may": {}, "new": {}, "now": {}, "old": {}, "see": {}, "way": {}, "who": {},
	"did": {}, "get": {}, "got": {}, "let": {}, "say": {}, "she": {}, "too": {},
	"this": {}, "that": {}, "with": {}, "from": {}, "they": {}, "them": {},
	"then": {}, "than": {}, "there": {}, "their": {}, "these": {}, "those": {},
	"what": {}, "when": {}, "where": {}, "which": {}, "while": {}, "will": {},
	"would": {}, "should": {}, "could": {}, "been": {}, "being": {}, "into": {},
	"onto": {}, "also": {}, "just": {}, "only": {}, "very": {}, "some": {},
	"such": {}, "each": {}, "other": {}, "about": {}, "over": {}, "under": {},
	"because": {}, "instead": {}, "were": {}, "does": {}, "done": {}, "here": {},
	"your": {}, "yours": {}, "we're": {}, "it's": {}, "use": {}, "used": {},
	"using": {},
}

// IsStopWord reports whether w is ignored by Tokens.
func IsStopWord(w string) bool {
	_, ok := stopWords[w]
	return ok
}

// Words lowercases s and splits it on anything that is not a letter or digit.
func Words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Tokens returns the significant words of s: no stop words, no short tokens.
func Tokens(s string) []string {
	words := Words(s)
	out := words[:0]
	for _, w := range words {
		if len([]rune(w)) < MinTokenLen || IsStopWord(w) {
			continue
		}
		out = append(out, w)
	}
	return out
}

// TokenSet returns the distinct significant words of s.
func TokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range Tokens(s) {
		set[t] = struct{}{}
	}
	return set
}

// Jaccard returns |a∩b| / |a∪b|. Two empty sets have similarity 0.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for t := range small {
		if _, ok := large[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// Similarity is Jaccard over the token sets of two strings.
func Similarity(a, b string) float64 {
	return Jaccard(TokenSet(a), TokenSet(b))
}

// Shared returns the tokens present in both sets.
func Shared(a, b map[string]struct{}) []string {
	var out []string
	for t := range a {
		if _, ok := b[t]; ok {
			out = append(out, t)
		}
	}
	return out
}
