package search

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// stopwords are dropped from lexical queries.
var stopwords = map[string]bool{
	// Articles
	"a": true, "an": true, "the": true,
	// Conjunctions
	"and": true, "or": true, "but": true, "nor": true, "so": true, "yet": true,
	// Prepositions
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "as": true, "into": true,
	"about": true, "over": true, "under": true, "via": true,
}

// Terms splits query on non-alphanumeric runes, lowercases, and drops
// single-character tokens and stopwords. Duplicates keep their first
// position.
func Terms(query string) []string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	terms := make([]string, 0, len(words))
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) <= 1 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, w)
	}
	return terms
}
