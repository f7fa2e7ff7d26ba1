package embed

import (
	"hash/fnv"
	"strings"
	"unicode/utf8"
)

// MaxInputChars bounds the text handed to the model. Longer inputs are cut
// on a rune boundary and marked with Ellipsis.
const MaxInputChars = 2000

// Ellipsis marks truncated input.
const Ellipsis = "..."

// Preprocess builds the text embedded for a bookmark. It reports false when
// both fields are blank, meaning the bookmark should not be indexed.
func Preprocess(title, description string) (string, bool) {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)

	var text string
	switch {
	case title == "" && description == "":
		return "", false
	case title == "":
		text = description
	case description == "":
		text = title
	default:
		text = title + " - " + description
	}
	return truncate(text, MaxInputChars), true
}

func truncate(s string, maxChars int) string {
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	keep := maxChars - utf8.RuneCountInString(Ellipsis)
	n := 0
	for i := range s {
		if n == keep {
			return s[:i] + Ellipsis
		}
		n++
	}
	return s
}

// ContentHash fingerprints the trimmed title and description so callers can
// skip re-embedding unchanged bookmarks. It is stable across processes.
func ContentHash(title, description string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.TrimSpace(title)))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strings.TrimSpace(description)))
	return h.Sum64()
}
