package store

import (
	"fmt"
	"iter"
	"math"
	"slices"
	"sort"
)

// normEpsilon is the smallest L2 norm accepted for a stored or query vector.
const normEpsilon = 1.1920929e-07 // float32 machine epsilon

// Entry is the stored embedding for one bookmark.
type Entry struct {
	ContentHash uint64
	Embedding   []float32
}

// Record is an Entry with its bookmark id, used for bulk loads.
type Record struct {
	ID uint64
	Entry
}

// Result is one similarity hit.
type Result struct {
	ID    uint64  `json:"id"`
	Score float32 `json:"score"`
}

// Index holds bookmark embeddings in memory and answers cosine similarity
// queries by brute force. Every embedding has exactly Dimensions()
// components and a finite, non-zero norm.
//
// Index is not safe for concurrent use; the semantic service serializes
// access to it.
type Index struct {
	dims    int
	entries map[uint64]Entry
}

// NewIndex creates an empty index for vectors of the given size.
func NewIndex(dims int) *Index {
	return &Index{
		dims:    dims,
		entries: make(map[uint64]Entry),
	}
}

// Dimensions returns the fixed vector size.
func (ix *Index) Dimensions() int { return ix.dims }

// Len returns the number of stored entries.
func (ix *Index) Len() int { return len(ix.entries) }

func (ix *Index) validate(v []float32) (float64, error) {
	if len(v) != ix.dims {
		return 0, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, ix.dims, len(v))
	}
	n := norm(v)
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, ErrNonFiniteVector
	}
	if n < normEpsilon {
		return 0, ErrZeroNormVector
	}
	return n, nil
}

// Insert stores or replaces the embedding for id. The slice is copied.
func (ix *Index) Insert(id, contentHash uint64, embedding []float32) error {
	if _, err := ix.validate(embedding); err != nil {
		return fmt.Errorf("insert %d: %w", id, err)
	}
	ix.entries[id] = Entry{
		ContentHash: contentHash,
		Embedding:   slices.Clone(embedding),
	}
	return nil
}

// Remove deletes id and reports whether it was present.
func (ix *Index) Remove(id uint64) bool {
	_, ok := ix.entries[id]
	delete(ix.entries, id)
	return ok
}

// Get returns the entry for id.
func (ix *Index) Get(id uint64) (Entry, bool) {
	e, ok := ix.entries[id]
	return e, ok
}

// Contains reports whether id is indexed.
func (ix *Index) Contains(id uint64) bool {
	_, ok := ix.entries[id]
	return ok
}

// IDs returns all indexed ids in ascending order.
func (ix *Index) IDs() []uint64 {
	ids := make([]uint64, 0, len(ix.entries))
	for id := range ix.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// All iterates entries in ascending id order.
func (ix *Index) All() iter.Seq2[uint64, Entry] {
	return func(yield func(uint64, Entry) bool) {
		for _, id := range ix.IDs() {
			if !yield(id, ix.entries[id]) {
				return
			}
		}
	}
}

// BulkLoad inserts records one by one and returns how many were rejected.
func (ix *Index) BulkLoad(records []Record) (skipped int) {
	for _, r := range records {
		if err := ix.Insert(r.ID, r.ContentHash, r.Embedding); err != nil {
			skipped++
		}
	}
	return skipped
}

// Search scores every entry, or only those in candidates when it is
// non-nil, against query. Hits scoring at least threshold are returned by
// descending score, ties broken by ascending id. limit <= 0 returns all hits.
func (ix *Index) Search(query []float32, candidates map[uint64]struct{}, threshold float32, limit int) ([]Result, error) {
	qnorm, err := ix.validate(query)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	var results []Result
	score := func(id uint64, e Entry) {
		s := cosine(query, qnorm, e.Embedding)
		if s >= threshold {
			results = append(results, Result{ID: id, Score: s})
		}
	}

	if candidates != nil {
		for id := range candidates {
			if e, ok := ix.entries[id]; ok {
				score(id, e)
			}
		}
	} else {
		for id, e := range ix.entries {
			score(id, e)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// CosineSimilarity returns dot(a,b)/(|a||b|), or 0 when either vector has
// zero norm or the lengths differ.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	return cosine(a, norm(a), b)
}

func cosine(q []float32, qnorm float64, v []float32) float32 {
	vnorm := norm(v)
	if qnorm < normEpsilon || vnorm < normEpsilon {
		return 0
	}
	var dot float64
	for i := range q {
		dot += float64(q[i]) * float64(v[i])
	}
	return float32(dot / (qnorm * vnorm))
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
