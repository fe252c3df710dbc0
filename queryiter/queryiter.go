// Package queryiter produces a small, ordered set of query variants —
// normalization, stopword-dropping, and naive stemming — used to widen
// lexical and dense recall without a full query-rewriting model.
package queryiter

import (
	"strings"

	"github.com/samber/lo"
)

// DefaultMaxVariants bounds the number of variants Variants returns.
const DefaultMaxVariants = 5

var englishStopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "of": {}, "in": {}, "on": {}, "at": {},
	"for": {}, "to": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"and": {}, "or": {}, "but": {}, "with": {}, "by": {}, "it": {},
	"that": {}, "this": {}, "be": {}, "as": {}, "from": {},
}

var japaneseStopwords = map[string]struct{}{
	"の":  {},
	"は":  {},
	"が":  {},
	"を":  {},
	"に":  {},
	"で":  {},
	"と":  {},
	"です": {},
	"ます": {},
}

// Normalize lowercases, collapses runs of whitespace to a single space,
// and trims the result.
func Normalize(query string) string {
	lower := strings.ToLower(query)
	fields := strings.Fields(lower)
	return strings.Join(fields, " ")
}

// IsStopword reports whether word is a recognized English or Japanese
// stopword, for reuse by callers (e.g. deepsearch's term mining) that need
// the same stopword notion queryiter uses internally.
func IsStopword(word string) bool {
	if _, isEN := englishStopwords[word]; isEN {
		return true
	}
	_, isJA := japaneseStopwords[word]
	return isJA
}

// dropStopwords removes English and Japanese stopwords token by token,
// preserving order.
func dropStopwords(normalized string) string {
	if normalized == "" {
		return ""
	}
	words := strings.Split(normalized, " ")
	kept := lo.Filter(words, func(w string, _ int) bool {
		if _, isEN := englishStopwords[w]; isEN {
			return false
		}
		if _, isJA := japaneseStopwords[w]; isJA {
			return false
		}
		return w != ""
	})
	return strings.Join(kept, " ")
}

// stemLite strips a trailing "es", "s", "ing", "ed", or "ly" suffix from a
// single word when the remaining stem is at least 3 characters long.
func stemLite(word string) string {
	suffixes := []string{"ing", "es", "ed", "ly", "s"}
	for _, suf := range suffixes {
		if strings.HasSuffix(word, suf) {
			stem := strings.TrimSuffix(word, suf)
			if len([]rune(stem)) >= 3 {
				return stem
			}
		}
	}
	return word
}

// stemLiteQuery applies stemLite word by word.
func stemLiteQuery(query string) string {
	if query == "" {
		return ""
	}
	words := strings.Split(query, " ")
	for i, w := range words {
		words[i] = stemLite(w)
	}
	return strings.Join(words, " ")
}

// Variants returns up to max ordered, de-duplicated query variants:
//  1. the normalized original,
//  2. the stopword-dropped normalization (if different),
//  3. a naive "stem-lite" pass over the stopword-dropped form (if different).
//
// max <= 0 is treated as DefaultMaxVariants.
func Variants(query string, max int) []string {
	if max <= 0 {
		max = DefaultMaxVariants
	}

	normalized := Normalize(query)
	candidates := []string{normalized}

	if normalized != "" {
		dropped := dropStopwords(normalized)
		if dropped != "" && dropped != normalized {
			candidates = append(candidates, dropped)
		}

		stemBase := dropped
		if stemBase == "" {
			stemBase = normalized
		}
		stemmed := stemLiteQuery(stemBase)
		if stemmed != "" && stemmed != normalized && stemmed != dropped {
			candidates = append(candidates, stemmed)
		}
	}

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
		if len(out) >= max {
			break
		}
	}
	return out
}
