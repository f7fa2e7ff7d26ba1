package quality

import (
	"context"
	"time"

	"github.com/XiaoConstantine/bmark/pkg/search"
)

// Searcher is the search surface under evaluation. *bmark.Client
// implements it.
type Searcher interface {
	Search(ctx context.Context, text string, opts search.Options) (*search.Response, error)
}

// Runner executes quality evaluations.
type Runner struct {
	searcher Searcher
	topK     int
	weight   float64
}

// NewRunner creates a runner retrieving topK results per query. weight is
// the semantic weight used in hybrid mode.
func NewRunner(s Searcher, topK int, weight float64) *Runner {
	if topK <= 0 {
		topK = 10
	}
	return &Runner{searcher: s, topK: topK, weight: weight}
}

// EvaluateQuery runs q in one mode. A search error is recorded on the
// result rather than returned, so one failing mode does not stop a run.
func (r *Runner) EvaluateQuery(ctx context.Context, q *QueryCase, mode search.Mode) EvalResult {
	opts := search.Options{
		Mode:           mode,
		Filter:         q.Filter,
		Limit:          r.topK,
		SemanticWeight: r.weight,
		NoCache:        true,
	}

	start := time.Now()
	resp, err := r.searcher.Search(ctx, q.Query, opts)
	elapsed := time.Since(start)
	if err != nil {
		return EvalResult{Query: q.Query, Mode: string(mode), Error: err.Error()}
	}

	ranked := make([]uint64, len(resp.Hits))
	for i, h := range resp.Hits {
		ranked[i] = h.ID
	}
	res := ComputeAllMetrics(ranked, q)
	res.Mode = string(mode)
	res.LatencyMs = float64(elapsed.Microseconds()) / 1000
	return res
}

// RunDataset evaluates every query in every mode.
func (r *Runner) RunDataset(ctx context.Context, ds *Dataset, modes []search.Mode) (*Report, error) {
	report := &Report{
		Dataset:   ds.Name,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	perMode := make(map[search.Mode][]EvalResult, len(modes))
	for i := range ds.Queries {
		for _, mode := range modes {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			res := r.EvaluateQuery(ctx, &ds.Queries[i], mode)
			report.Results = append(report.Results, res)
			perMode[mode] = append(perMode[mode], res)
		}
	}

	for _, mode := range modes {
		report.Modes = append(report.Modes, string(mode))
		report.Summaries = append(report.Summaries, AggregateSummary(string(mode), perMode[mode]))
	}
	return report, nil
}
