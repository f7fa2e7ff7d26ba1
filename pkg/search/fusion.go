package search

import (
	"math"
	"sort"
)

const (
	// RRFConstant is k in 1/(k+rank).
	RRFConstant = 60
	// DefaultSemanticWeight is the semantic share of a hybrid score.
	DefaultSemanticWeight = 0.6
)

// HybridResult is one fused hit. Ranks are 1-based; 0 means the id was
// absent from that list.
type HybridResult struct {
	ID           uint64  `json:"id"`
	Score        float64 `json:"score"`
	SemanticRank int     `json:"semantic_rank,omitempty"`
	LexicalRank  int     `json:"lexical_rank,omitempty"`
}

// Fuse merges two ranked id lists with weighted reciprocal rank fusion.
// semanticWeight is clamped to [0,1], NaN meaning DefaultSemanticWeight;
// the lexical list gets the remainder.
// Only the first occurrence of an id in each list counts. Results are
// ordered by score desc, ties by id asc.
func Fuse(semantic, lexical []uint64, semanticWeight float64) []HybridResult {
	alpha := ClampWeight(semanticWeight)

	byID := make(map[uint64]*HybridResult, len(semantic)+len(lexical))
	get := func(id uint64) *HybridResult {
		r, ok := byID[id]
		if !ok {
			r = &HybridResult{ID: id}
			byID[id] = r
		}
		return r
	}

	for i, id := range semantic {
		r := get(id)
		if r.SemanticRank != 0 {
			continue
		}
		r.SemanticRank = i + 1
		r.Score += alpha / float64(RRFConstant+i+1)
	}
	for i, id := range lexical {
		r := get(id)
		if r.LexicalRank != 0 {
			continue
		}
		r.LexicalRank = i + 1
		r.Score += (1 - alpha) / float64(RRFConstant+i+1)
	}

	out := make([]HybridResult, 0, len(byID))
	for _, r := range byID {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ClampWeight limits w to [0,1]. NaN maps to DefaultSemanticWeight.
func ClampWeight(w float64) float64 {
	if math.IsNaN(w) {
		return DefaultSemanticWeight
	}
	return min(max(w, 0), 1)
}
