// bmark-bench measures ranking quality of each search mode against a
// labeled dataset.
//
// Usage:
//
//	bmark-bench quality -d bench/quality/dataset.json -k 5
//	bmark-bench compare "how do rust futures work"
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/bmark"
	"github.com/XiaoConstantine/bmark/bench/quality"
	"github.com/XiaoConstantine/bmark/internal/config"
	"github.com/XiaoConstantine/bmark/pkg/search"
	"github.com/XiaoConstantine/bmark/pkg/util"
)

var (
	datasetPath string
	outputPath  string
	modeList    string
	topK        int
	weight      float64
	verbose     bool
	skipSync    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "bmark-bench",
	Short:        "Quality benchmarks for bmark search modes",
	SilenceUsage: true,
}

var qualityCmd = &cobra.Command{
	Use:   "quality",
	Short: "Evaluate every mode against a labeled dataset",
	Args:  cobra.NoArgs,
	RunE:  runQuality,
}

var compareCmd = &cobra.Command{
	Use:   "compare <query>",
	Short: "Show the top results of each mode side by side",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCompare,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&modeList, "modes", "hybrid,lexical,semantic", "Comma separated search modes")
	rootCmd.PersistentFlags().IntVarP(&topK, "top", "k", 10, "Number of results to retrieve")
	rootCmd.PersistentFlags().Float64Var(&weight, "weight", 0.6, "Semantic weight in hybrid mode")
	rootCmd.PersistentFlags().BoolVar(&skipSync, "no-sync", false, "Do not sync the semantic index first")

	qualityCmd.Flags().StringVarP(&datasetPath, "dataset", "d", "bench/quality/dataset.json", "Path to dataset JSON")
	qualityCmd.Flags().StringVarP(&outputPath, "output", "o", "bench_report.json", "Output report path")
	qualityCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print per-query results")

	rootCmd.AddCommand(qualityCmd, compareCmd)
}

func parseModes() ([]search.Mode, error) {
	var modes []search.Mode
	for _, s := range strings.Split(modeList, ",") {
		m, err := search.ParseMode(s)
		if err != nil {
			return nil, err
		}
		modes = append(modes, m)
	}
	return modes, nil
}

// openClient builds a client from BMARK_* settings and syncs the index
// unless --no-sync is set.
func openClient(ctx context.Context) (*bmark.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	util.SetDebugLevel(cfg.Debug)

	client, err := bmark.New(bmark.Options{
		Home:            cfg.Home,
		Bookmarks:       cfg.Bookmarks,
		Semantic:        cfg.Semantic,
		Model:           cfg.Model,
		Threshold:       cfg.Threshold,
		DownloadTimeout: cfg.DownloadTimeout,
		Port:            cfg.Port,
	})
	if err != nil {
		return nil, err
	}
	if !skipSync && cfg.Semantic {
		stats, err := client.Sync(ctx)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("sync: %w", err)
		}
		fmt.Printf("Index:     %s\n", stats)
	}
	return client, nil
}

func runQuality(cmd *cobra.Command, args []string) error {
	modes, err := parseModes()
	if err != nil {
		return err
	}
	ds, err := quality.LoadDataset(datasetPath)
	if err != nil {
		return fmt.Errorf("loading dataset: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
	defer cancel()

	fmt.Printf("=== bmark Quality Benchmark ===\n")
	fmt.Printf("Dataset:   %s (%d queries)\n", ds.Name, len(ds.Queries))
	fmt.Printf("Top-K:     %d\n", topK)

	client, err := openClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	fmt.Println()

	report, err := quality.NewRunner(client, topK, weight).RunDataset(ctx, ds, modes)
	if err != nil {
		return fmt.Errorf("running benchmark: %w", err)
	}

	if verbose {
		fmt.Println("--- Per-Query Results ---")
		for _, r := range report.Results {
			fmt.Printf("[%s] %s\n", r.Mode, r.Query)
			if r.Error != "" {
				fmt.Printf("  error: %s\n", r.Error)
				continue
			}
			fmt.Printf("  MRR=%.3f NDCG@10=%.3f P@10=%.3f R@10=%.3f Latency=%.1fms\n",
				r.MRR, r.NDCG10, r.PrecisionAt10, r.RecallAt10, r.LatencyMs)
		}
		fmt.Println()
	}

	fmt.Println("=== Summary ===")
	for _, s := range report.Summaries {
		fmt.Printf("\n%s (%d queries", s.Mode, s.NumQueries)
		if s.Failed > 0 {
			fmt.Printf(", %d failed", s.Failed)
		}
		fmt.Println("):")
		fmt.Printf("  Mean MRR:      %.3f\n", s.MeanMRR)
		fmt.Printf("  Mean NDCG@5:   %.3f\n", s.MeanNDCG5)
		fmt.Printf("  Mean NDCG@10:  %.3f\n", s.MeanNDCG10)
		fmt.Printf("  Mean MAP:      %.3f\n", s.MeanMAP)
		fmt.Printf("  Mean P@5:      %.3f\n", s.MeanP5)
		fmt.Printf("  Mean P@10:     %.3f\n", s.MeanP10)
		fmt.Printf("  Mean R@5:      %.3f\n", s.MeanR5)
		fmt.Printf("  Mean R@10:     %.3f\n", s.MeanR10)
		fmt.Printf("  Mean Latency:  %.1fms\n", s.MeanLatencyMs)
	}

	if err := quality.SaveReport(outputPath, report); err != nil {
		return fmt.Errorf("saving report: %w", err)
	}
	fmt.Printf("\nReport saved to: %s\n", outputPath)
	return nil
}

func runCompare(cmd *cobra.Command, args []string) error {
	modes, err := parseModes()
	if err != nil {
		return err
	}
	text := strings.Join(args, " ")

	client, err := openClient(cmd.Context())
	if err != nil {
		return err
	}
	defer client.Close()

	fmt.Printf("=== Quick Compare ===\n")
	fmt.Printf("Query: %q\n", text)

	for _, m := range modes {
		opts := search.DefaultOptions()
		opts.Mode = m
		opts.Limit = topK
		opts.SemanticWeight = weight
		opts.NoCache = true

		fmt.Printf("\n--- %s ---\n", m)
		resp, err := client.Search(cmd.Context(), text, opts)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		for _, h := range resp.Hits {
			fmt.Printf("  %6d  %.4f  %s\n", h.ID, h.Score, h.Bookmark.Title)
		}
		fmt.Printf("\nLatency: %v, Results: %d\n", resp.Duration.Round(time.Microsecond), len(resp.Hits))
	}
	return nil
}
