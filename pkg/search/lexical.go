package search

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/XiaoConstantine/bmark/pkg/bookmark"
	"github.com/XiaoConstantine/bmark/pkg/query"
)

// Field weights for a single term hit.
const (
	TitleWeight       = 2.0
	DescriptionWeight = 1.0
	TagWeight         = 3.0

	// descriptionNormChars is the length up to which a description hit
	// counts in full.
	descriptionNormChars = 100
)

// LexicalResult is one keyword hit.
type LexicalResult struct {
	ID           uint64  `json:"id"`
	MatchedTerms int     `json:"matched_terms"`
	TotalHits    float32 `json:"total_hits"`
}

// DescriptionLengthWeight scales a description hit by the description's
// length in characters: 1.0 up to 100, then 1/(1+ln(n/100)).
func DescriptionLengthWeight(n int) float32 {
	if n <= descriptionNormChars {
		return 1.0
	}
	return float32(1 / (1 + math.Log(float64(n)/descriptionNormChars)))
}

// ScoreLexical ranks bookmarks by keyword overlap with query. Bookmarks
// matching no term are left out. Order: matched terms desc, total hits
// desc, id asc.
func ScoreLexical(q string, bookmarks []bookmark.Bookmark) []LexicalResult {
	terms := Terms(q)
	if len(terms) == 0 {
		return nil
	}

	var results []LexicalResult
	for i := range bookmarks {
		if r, ok := scoreBookmark(terms, &bookmarks[i]); ok {
			results = append(results, r)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.MatchedTerms != b.MatchedTerms {
			return a.MatchedTerms > b.MatchedTerms
		}
		if a.TotalHits != b.TotalHits {
			return a.TotalHits > b.TotalHits
		}
		return a.ID < b.ID
	})
	return results
}

func scoreBookmark(terms []string, b *bookmark.Bookmark) (LexicalResult, bool) {
	title := strings.ToLower(b.Title)
	desc := strings.ToLower(b.Description)
	descWeight := DescriptionWeight * DescriptionLengthWeight(utf8.RuneCountInString(b.Description))

	r := LexicalResult{ID: b.ID}
	for _, term := range terms {
		var w float32
		if strings.Contains(title, term) {
			w += TitleWeight
		}
		if strings.Contains(desc, term) {
			w += descWeight
		}
		for _, tag := range b.Tags {
			if query.TagMatches(tag, term) {
				w += TagWeight
				break
			}
		}
		if w > 0 {
			r.MatchedTerms++
			r.TotalHits += w
		}
	}
	return r, r.MatchedTerms > 0
}
