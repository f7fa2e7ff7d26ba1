package bmark

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/bmark/pkg/bookmark"
	"github.com/XiaoConstantine/bmark/pkg/embed"
	"github.com/XiaoConstantine/bmark/pkg/search"
	"github.com/XiaoConstantine/bmark/pkg/semantic"
	"github.com/XiaoConstantine/bmark/pkg/store"
)

var topics = []string{"rust", "python", "database", "cooking"}

// topicEmbedder counts topic words, plus a constant so no vector is zero.
type topicEmbedder struct{}

func (topicEmbedder) vector(text string) []float32 {
	lower := strings.ToLower(text)
	v := make([]float32, len(topics)+1)
	for i, w := range topics {
		v[i] = float32(strings.Count(lower, w))
	}
	v[len(topics)] = 0.01
	return v
}

func (e topicEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func (e topicEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (topicEmbedder) Dimensions() int            { return len(topics) + 1 }
func (topicEmbedder) Name() string               { return "topic" }
func (topicEmbedder) ModelIDHash() store.ModelID { return embed.ModelIDHash("topic") }
func (topicEmbedder) Close() error               { return nil }

func writeBookmarks(t *testing.T, path string, bookmarks []bookmark.Bookmark) {
	t.Helper()
	data, err := json.Marshal(bookmarks)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func newTestClient(t *testing.T) (*Client, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "bookmarks.json")
	writeBookmarks(t, path, []bookmark.Bookmark{
		{ID: 1, Title: "Tokio guide", Description: "async rust runtime", Tags: []string{"lang/rust"}, URL: "https://tokio.rs"},
		{ID: 2, Title: "Pandas tips", Description: "python dataframes", Tags: []string{"lang/python"}, URL: "https://pandas.pydata.org"},
		{ID: 3, Title: "Postgres internals", Description: "database storage engine", Tags: []string{"db"}, URL: "https://postgresql.org"},
	})

	opts := DefaultOptions()
	opts.Home = filepath.Join(dir, "home")
	opts.Bookmarks = path
	opts.Port = 65001
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	opts.NewModel = func(ctx context.Context, cfg embed.ModelConfig) (semantic.Embedder, error) {
		return topicEmbedder{}, nil
	}

	c, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, path
}

func TestNew_Validates(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	opts := DefaultOptions()
	opts.Home = t.TempDir()
	opts.Bookmarks = filepath.Join(opts.Home, "bookmarks.txt")
	_, err = New(opts)
	assert.ErrorIs(t, err, bookmark.ErrUnsupportedSource)
}

func TestClient_SyncAndSearch(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	st, err := c.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Embedded)
	assert.True(t, st.Saved)
	assert.FileExists(t, filepath.Join(c.opts.Home, store.FileName))

	resp, err := c.Search(ctx, "rust", search.DefaultOptions())
	require.NoError(t, err)
	require.NotEmpty(t, resp.Hits)
	assert.True(t, resp.Semantic)
	assert.Equal(t, uint64(1), resp.Hits[0].Bookmark.ID)

	again, err := c.Search(ctx, "rust", search.DefaultOptions())
	require.NoError(t, err)
	assert.True(t, again.CacheHit)
}

func TestClient_Filter(t *testing.T) {
	c, _ := newTestClient(t)

	got, err := c.Filter(context.Background(), "#lang")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[0].ID)
	assert.Equal(t, uint64(2), got[1].ID)
}

func TestClient_SyncPicksUpEdits(t *testing.T) {
	c, path := newTestClient(t)
	ctx := context.Background()

	_, err := c.Sync(ctx)
	require.NoError(t, err)

	writeBookmarks(t, path, []bookmark.Bookmark{
		{ID: 1, Title: "Tokio guide", Description: "async rust runtime", Tags: []string{"lang/rust"}},
		{ID: 4, Title: "Bread", Description: "cooking sourdough"},
	})
	st, err := c.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Embedded)
	assert.Equal(t, 1, st.Unchanged)
	assert.Equal(t, 2, st.Removed)
	assert.Equal(t, 2, c.Status().Semantic.Entries)
}

func TestClient_StatusAndClear(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	st := c.Status()
	assert.False(t, st.Semantic.Initialized)
	assert.False(t, st.ModelDownloaded)
	assert.False(t, st.ServerRunning)

	_, err := c.Sync(ctx)
	require.NoError(t, err)
	st = c.Status()
	assert.True(t, st.Semantic.Initialized)
	assert.Equal(t, 3, st.Semantic.Entries)

	require.NoError(t, c.Clear(ctx))
	assert.Equal(t, 0, c.Status().Semantic.Entries)
	assert.NoFileExists(t, filepath.Join(c.opts.Home, store.FileName))
	assert.Equal(t, 0, c.Status().CachedSearches)
}

func TestClient_ClearWithoutLoadingModel(t *testing.T) {
	c, _ := newTestClient(t)
	path := filepath.Join(c.opts.Home, store.FileName)
	require.NoError(t, os.MkdirAll(c.opts.Home, 0o755))
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	require.NoError(t, c.Clear(context.Background()))
	assert.NoFileExists(t, path)
	assert.False(t, c.Status().Semantic.Initialized)
}

func TestClient_SemanticDisabledFallsBackToLexical(t *testing.T) {
	c, _ := newTestClient(t)
	c2opts := c.opts
	c2opts.Semantic = false
	c2, err := New(c2opts)
	require.NoError(t, err)
	defer c2.Close()

	resp, err := c2.Search(context.Background(), "postgres", search.DefaultOptions())
	require.NoError(t, err)
	assert.False(t, resp.Semantic)
	assert.ErrorIs(t, resp.SemanticErr, semantic.ErrDisabled)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, uint64(3), resp.Hits[0].Bookmark.ID)
}
