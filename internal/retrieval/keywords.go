package retrieval

import (
	"strings"
	"unicode"
)

// Common words carry no signal for overlap scoring.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"be": true, "to": true, "of": true, "in": true, "on": true, "for": true,
	"and": true, "or": true, "it": true, "this": true, "that": true,
	"with": true, "as": true, "at": true, "by": true, "from": true,
	"what": true, "how": true, "why": true, "when": true, "can": true,
	"do": true, "does": true, "you": true, "i": true, "we": true,
}

// Tokenize lowercases text and splits it into content words, dropping stop
// words and single characters.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopWords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// OverlapRatio returns the fraction of query content words that appear in
// the candidate text. Used both for answer plausibility checks and as a
// token-level dedup fallback when embeddings are unavailable.
func OverlapRatio(query, candidate string) float64 {
	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 {
		return 0
	}

	candidateSet := make(map[string]bool)
	for _, tok := range Tokenize(candidate) {
		candidateSet[tok] = true
	}

	matched := 0
	for _, tok := range queryTokens {
		if candidateSet[tok] {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTokens))
}
