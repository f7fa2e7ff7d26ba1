package quality

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/XiaoConstantine/bmark"
	"github.com/XiaoConstantine/bmark/pkg/search"
)

// TestSampleDataset_Lexical runs the bundled dataset without an embedding
// model: lexical and hybrid rankings must find every target, semantic mode
// must fail cleanly.
func TestSampleDataset_Lexical(t *testing.T) {
	ds, err := LoadDataset("dataset.json")
	if err != nil {
		t.Fatal(err)
	}

	client, err := bmark.New(bmark.Options{
		Home:      t.TempDir(),
		Bookmarks: "testdata/bookmarks.json",
		Semantic:  false,
		Port:      65002,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	modes := []search.Mode{search.ModeLexical, search.ModeHybrid, search.ModeSemantic}
	report, err := NewRunner(client, 10, 0.6).RunDataset(context.Background(), ds, modes)
	if err != nil {
		t.Fatal(err)
	}

	for _, s := range report.Summaries[:2] {
		if s.NumQueries != len(ds.Queries) || s.Failed != 0 {
			t.Errorf("%s: %d queries, %d failed", s.Mode, s.NumQueries, s.Failed)
		}
		if s.MeanR10 == 0 || s.MeanMRR == 0 {
			t.Errorf("%s: expected non-zero MRR and recall, got %+v", s.Mode, s)
		}
	}
	if sem := report.Summaries[2]; sem.Failed != len(ds.Queries) {
		t.Errorf("semantic mode should fail when disabled, got %+v", sem)
	}
}
