package quality

import (
	"math"
	"sort"
)

// topK clamps k to the ranking length; k <= 0 yields an empty prefix.
func topK(rels []Relevance, k int) []Relevance {
	if k <= 0 {
		return nil
	}
	if k > len(rels) {
		k = len(rels)
	}
	return rels[:k]
}

func countRelevant(rels []Relevance) int {
	n := 0
	for _, r := range rels {
		if r > RelNone {
			n++
		}
	}
	return n
}

// MRRAtK is 1/rank of the first relevant result within the top k, or 0.
func MRRAtK(rels []Relevance, k int) float64 {
	for i, r := range topK(rels, k) {
		if r > RelNone {
			return 1 / float64(i+1)
		}
	}
	return 0
}

// MRR is MRRAtK over the whole ranking.
func MRR(rels []Relevance) float64 {
	return MRRAtK(rels, len(rels))
}

// PrecisionAtK is the share of relevant results in the top k. A ranking
// shorter than k is judged over its own length.
func PrecisionAtK(rels []Relevance, k int) float64 {
	top := topK(rels, k)
	if len(top) == 0 {
		return 0
	}
	return float64(countRelevant(top)) / float64(len(top))
}

// RecallAtK is the share of all relevant items found in the top k.
func RecallAtK(rels []Relevance, totalRelevant, k int) float64 {
	if totalRelevant == 0 {
		return 0
	}
	return float64(countRelevant(topK(rels, k))) / float64(totalRelevant)
}

// AveragePrecision sums precision at each relevant position, divided by
// the number of relevant items.
func AveragePrecision(rels []Relevance, totalRelevant int) float64 {
	if totalRelevant == 0 {
		return 0
	}
	var sum float64
	seen := 0
	for i, r := range rels {
		if r > RelNone {
			seen++
			sum += float64(seen) / float64(i+1)
		}
	}
	return sum / float64(totalRelevant)
}

// DCG is Σ (2^rel - 1) / log2(i + 2) over the top k.
func DCG(rels []Relevance, k int) float64 {
	var dcg float64
	for i, r := range topK(rels, k) {
		if r > RelNone {
			dcg += (math.Pow(2, float64(r)) - 1) / math.Log2(float64(i+2))
		}
	}
	return dcg
}

// NDCG is DCG normalized by the DCG of the same grades sorted best first.
func NDCG(rels []Relevance, k int) float64 {
	dcg := DCG(rels, k)
	if dcg == 0 {
		return 0
	}
	ideal := append([]Relevance(nil), rels...)
	sort.Slice(ideal, func(i, j int) bool { return ideal[i] > ideal[j] })
	return dcg / DCG(ideal, k)
}

// ComputeAllMetrics grades a ranking against q.
func ComputeAllMetrics(ranked []uint64, q *QueryCase) EvalResult {
	rels := Grade(ranked, q.RelevanceMap())
	total := q.TotalRelevant()
	return EvalResult{
		Query:         q.Query,
		MRR:           MRR(rels),
		NDCG5:         NDCG(rels, 5),
		NDCG10:        NDCG(rels, 10),
		MAP:           AveragePrecision(rels, total),
		PrecisionAt5:  PrecisionAtK(rels, 5),
		PrecisionAt10: PrecisionAtK(rels, 10),
		RecallAt5:     RecallAtK(rels, total, 5),
		RecallAt10:    RecallAtK(rels, total, 10),
	}
}

// AggregateSummary averages results for one mode. Failed queries are
// counted and left out of the means.
func AggregateSummary(mode string, results []EvalResult) Summary {
	sum := Summary{Mode: mode}
	for _, r := range results {
		if r.Error != "" {
			sum.Failed++
			continue
		}
		sum.NumQueries++
		sum.MeanMRR += r.MRR
		sum.MeanNDCG5 += r.NDCG5
		sum.MeanNDCG10 += r.NDCG10
		sum.MeanMAP += r.MAP
		sum.MeanP5 += r.PrecisionAt5
		sum.MeanP10 += r.PrecisionAt10
		sum.MeanR5 += r.RecallAt5
		sum.MeanR10 += r.RecallAt10
		sum.MeanLatencyMs += r.LatencyMs
	}
	if sum.NumQueries == 0 {
		return sum
	}

	n := float64(sum.NumQueries)
	sum.MeanMRR /= n
	sum.MeanNDCG5 /= n
	sum.MeanNDCG10 /= n
	sum.MeanMAP /= n
	sum.MeanP5 /= n
	sum.MeanP10 /= n
	sum.MeanR5 /= n
	sum.MeanR10 /= n
	sum.MeanLatencyMs /= n
	return sum
}
