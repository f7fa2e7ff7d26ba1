package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/bmark"
	"github.com/XiaoConstantine/bmark/internal/config"
	"github.com/XiaoConstantine/bmark/pkg/bookmark"
	"github.com/XiaoConstantine/bmark/pkg/search"
	"github.com/XiaoConstantine/bmark/pkg/semantic"
	"github.com/XiaoConstantine/bmark/pkg/util"
)

var (
	// Global flags
	jsonOutput bool
	quiet      bool

	// Search flags
	limit     int
	mode      string
	filter    string
	weight    float64
	threshold float32
	noCache   bool
)

func Execute() error {
	return rootCmd.Execute()
}

var rootCmd = &cobra.Command{
	Use:   "bmark [query]",
	Short: "Hybrid bookmark search - find links by meaning and keywords",
	Long: `bmark searches your bookmarks two ways at once and fuses the rankings:
  - keywords: title, description and tag matches
  - meaning:  embeddings from a local llama.cpp model

Boolean filters narrow the candidates first:
  bmark find '#lang/go and (grpc or "protocol buffers")'
  bmark --filter '#papers' "retrieval augmented generation"

Configuration comes from BMARK_* environment variables or a .env file.`,
	Args:         cobra.ArbitraryArgs,
	SilenceUsage: true,
	RunE:         runSearch,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Minimal output (ids only)")

	rootCmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of results (0 for all)")
	rootCmd.Flags().StringVarP(&mode, "mode", "m", string(search.ModeHybrid), "Ranking mode: hybrid, semantic or lexical")
	rootCmd.Flags().StringVarP(&filter, "filter", "f", "", "Boolean query applied before ranking")
	rootCmd.Flags().Float64Var(&weight, "weight", 0.6, "Semantic weight in rank fusion (0-1)")
	rootCmd.Flags().Float32Var(&threshold, "threshold", 0, "Cosine similarity cut-off (default from BMARK_THRESHOLD)")
	rootCmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass the search result cache")

	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(mcpCmd)
}

// newClient loads configuration and wires a client. Model download
// progress goes to stderr unless --quiet is set.
func newClient() (*bmark.Client, config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, cfg, err
	}
	util.SetDebugLevel(cfg.Debug)

	opts := bmark.Options{
		Home:            cfg.Home,
		Bookmarks:       cfg.Bookmarks,
		Semantic:        cfg.Semantic,
		Model:           cfg.Model,
		Threshold:       cfg.Threshold,
		DownloadTimeout: cfg.DownloadTimeout,
		Port:            cfg.Port,
		Logger:          slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	}
	if !quiet && !jsonOutput {
		opts.Progress = progressPrinter(os.Stderr)
	}
	client, err := bmark.New(opts)
	return client, cfg, err
}

func runSearch(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	text := strings.Join(args, " ")

	m, err := search.ParseMode(mode)
	if err != nil {
		return err
	}
	opts := search.DefaultOptions()
	opts.Mode = m
	opts.Filter = filter
	opts.Limit = limit
	opts.SemanticWeight = weight
	opts.NoCache = noCache
	if cmd.Flags().Changed("threshold") {
		opts.Threshold = &threshold
	}

	client, _, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.Search(cmd.Context(), text, opts)
	if err != nil {
		if errors.Is(err, semantic.ErrDisabled) {
			return fmt.Errorf("%w (set BMARK_SEMANTIC=true or use --mode lexical)", err)
		}
		return fmt.Errorf("search failed: %w", err)
	}
	if resp.SemanticErr != nil && !quiet && !jsonOutput {
		fmt.Fprintf(cmd.ErrOrStderr(), "semantic ranking unavailable: %v\n", resp.SemanticErr)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, resp)
	}
	bookmarks := make([]bookmark.Bookmark, len(resp.Hits))
	for i, h := range resp.Hits {
		bookmarks[i] = h.Bookmark
	}
	return writeBookmarks(out, bookmarks, quiet)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeBookmarks(w io.Writer, bookmarks []bookmark.Bookmark, quiet bool) error {
	if len(bookmarks) == 0 {
		if !quiet {
			_, err := fmt.Fprintln(w, "No results found")
			return err
		}
		return nil
	}
	for _, b := range bookmarks {
		var err error
		if quiet {
			_, err = fmt.Fprintf(w, "%d\n", b.ID)
		} else {
			_, err = fmt.Fprintf(w, "%d\t%s\t%s\n", b.ID, oneLine(b.Title), b.URL)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// oneLine keeps tab separated output parseable.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func progressPrinter(w io.Writer) func(downloaded, total int64) {
	last := -1
	return func(downloaded, total int64) {
		if total <= 0 {
			return
		}
		pct := int(downloaded * 100 / total)
		if pct == last {
			return
		}
		last = pct
		fmt.Fprintf(w, "\rDownloading model: %3d%% (%s / %s)", pct, formatBytes(downloaded), formatBytes(total))
		if downloaded >= total {
			fmt.Fprintln(w)
		}
	}
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
