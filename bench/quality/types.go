// Package quality provides IR-style evaluation of bookmark ranking.
package quality

import (
	"encoding/json"
	"fmt"
	"os"
)

// Relevance represents graded relevance judgments for search results.
type Relevance int

const (
	RelNone           Relevance = 0 // Not relevant
	RelRelevant       Relevance = 1 // Relevant (secondary/supporting)
	RelHighlyRelevant Relevance = 2 // Highly relevant (primary target)
)

// Judgment grades one bookmark for a query.
type Judgment struct {
	ID  uint64    `json:"id"`
	Rel Relevance `json:"rel"`
}

// QueryCase is a single evaluation query with ground truth.
type QueryCase struct {
	Query     string     `json:"query"`
	Filter    string     `json:"filter,omitempty"`
	Judgments []Judgment `json:"judgments"`
	Category  string     `json:"category,omitempty"` // e.g. "paraphrase", "keyword", "tag"
}

// Dataset is a complete evaluation dataset.
type Dataset struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Queries     []QueryCase `json:"queries"`
}

// EvalResult holds metrics for one query under one search mode.
type EvalResult struct {
	Query         string  `json:"query"`
	Mode          string  `json:"mode"`
	MRR           float64 `json:"mrr"`
	NDCG5         float64 `json:"ndcg@5"`
	NDCG10        float64 `json:"ndcg@10"`
	MAP           float64 `json:"map"`
	PrecisionAt5  float64 `json:"p@5"`
	PrecisionAt10 float64 `json:"p@10"`
	RecallAt5     float64 `json:"r@5"`
	RecallAt10    float64 `json:"r@10"`
	LatencyMs     float64 `json:"latency_ms"`
	Error         string  `json:"error,omitempty"`
}

// Summary holds mean metrics for one mode across all queries.
type Summary struct {
	Mode          string  `json:"mode"`
	NumQueries    int     `json:"num_queries"`
	Failed        int     `json:"failed,omitempty"`
	MeanMRR       float64 `json:"mean_mrr"`
	MeanNDCG5     float64 `json:"mean_ndcg@5"`
	MeanNDCG10    float64 `json:"mean_ndcg@10"`
	MeanMAP       float64 `json:"mean_map"`
	MeanP5        float64 `json:"mean_p@5"`
	MeanP10       float64 `json:"mean_p@10"`
	MeanR5        float64 `json:"mean_r@5"`
	MeanR10       float64 `json:"mean_r@10"`
	MeanLatencyMs float64 `json:"mean_latency_ms"`
}

// Report is the complete evaluation report.
type Report struct {
	Dataset   string       `json:"dataset"`
	Timestamp string       `json:"timestamp"`
	Modes     []string     `json:"modes"`
	Results   []EvalResult `json:"results"`
	Summaries []Summary    `json:"summaries"`
}

// LoadDataset loads an evaluation dataset from a JSON file.
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", path, err)
	}
	return &ds, nil
}

// SaveReport writes report as indented JSON.
func SaveReport(path string, report *Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// RelevanceMap indexes the judgments by bookmark id.
func (q *QueryCase) RelevanceMap() map[uint64]Relevance {
	m := make(map[uint64]Relevance, len(q.Judgments))
	for _, j := range q.Judgments {
		m[j.ID] = j.Rel
	}
	return m
}

// TotalRelevant counts judgments with Rel > RelNone.
func (q *QueryCase) TotalRelevant() int {
	n := 0
	for _, j := range q.Judgments {
		if j.Rel > RelNone {
			n++
		}
	}
	return n
}

// Grade maps ranked ids to their relevance; unjudged ids are RelNone.
func Grade(ranked []uint64, relMap map[uint64]Relevance) []Relevance {
	rels := make([]Relevance, len(ranked))
	for i, id := range ranked {
		rels[i] = relMap[id]
	}
	return rels
}
