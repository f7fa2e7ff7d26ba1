// Package bmark is a hybrid bookmark search engine: boolean filters over
// titles, tags and URLs, keyword ranking, and semantic ranking against a
// local embedding model, fused with reciprocal rank fusion.
//
// For CLI usage, install with: go install github.com/XiaoConstantine/bmark/cmd/bmark@latest
//
// For library usage:
//
//	client, err := bmark.New(bmark.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Embed new and edited bookmarks
//	if _, err := client.Sync(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	resp, err := client.Search(ctx, "rust async runtimes", search.DefaultOptions())
package bmark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/XiaoConstantine/bmark/pkg/bookmark"
	"github.com/XiaoConstantine/bmark/pkg/embed"
	"github.com/XiaoConstantine/bmark/pkg/index"
	"github.com/XiaoConstantine/bmark/pkg/search"
	"github.com/XiaoConstantine/bmark/pkg/semantic"
	"github.com/XiaoConstantine/bmark/pkg/server"
	"github.com/XiaoConstantine/bmark/pkg/store"
	"github.com/XiaoConstantine/bmark/pkg/util"
)

// Options configures a Client.
type Options struct {
	// Home holds vectors.bin, downloaded models and server state.
	Home string
	// Bookmarks is a .json, .csv or SQLite file.
	Bookmarks string

	Semantic        bool
	Model           string
	Threshold       float32
	DownloadTimeout time.Duration
	Port            int

	// Progress receives model download progress; nil is quiet.
	Progress func(downloaded, total int64)
	// NewModel replaces the llama.cpp backed model, mainly for tests.
	NewModel func(ctx context.Context, cfg embed.ModelConfig) (semantic.Embedder, error)

	Logger   *slog.Logger
	EventBox *util.EventBox
}

// DefaultOptions returns options rooted at ~/.bmark.
func DefaultOptions() Options {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dir := filepath.Join(home, ".bmark")
	return Options{
		Home:            dir,
		Bookmarks:       filepath.Join(dir, "bookmarks.json"),
		Semantic:        true,
		Model:           embed.DefaultModel,
		Threshold:       semantic.DefaultThreshold,
		DownloadTimeout: 10 * time.Minute,
		Port:            server.DefaultPort,
	}
}

// Client ties a bookmark source to the semantic index and the searcher.
type Client struct {
	opts     Options
	source   bookmark.Source
	manager  *server.Manager
	semantic *semantic.Service
	searcher *search.Searcher
	indexer  *index.Indexer
}

// Status describes the client without loading the model.
type Status struct {
	Bookmarks       string         `json:"bookmarks"`
	Semantic        semantic.Stats `json:"semantic"`
	ModelDownloaded bool           `json:"model_downloaded"`
	ServerRunning   bool           `json:"server_running"`
	ServerModel     string         `json:"server_model,omitempty"`
	Endpoint        string         `json:"endpoint"`
	CachedSearches  int            `json:"cached_searches"`
}

// New wires a client. The embedding model loads on first use.
func New(opts Options) (*Client, error) {
	if opts.Home == "" || opts.Bookmarks == "" {
		return nil, errors.New("bmark: home and bookmarks paths are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	source, err := bookmark.Open(opts.Bookmarks)
	if err != nil {
		return nil, err
	}
	mgr, err := server.NewManager(opts.Home, opts.Port)
	if err != nil {
		return nil, err
	}

	svc := semantic.New(semantic.Config{
		Enabled:          opts.Semantic,
		Model:            opts.Model,
		DefaultThreshold: opts.Threshold,
		DownloadTimeout:  opts.DownloadTimeout,
		BaseDir:          opts.Home,
		LazyInit:         true,
		Loader:           &embed.LlamaLoader{Manager: mgr, Progress: opts.Progress},
		NewModel:         opts.NewModel,
		Logger:           opts.Logger,
		EventBox:         opts.EventBox,
	})

	searcher := search.New(search.Config{
		Semantic: svc,
		EventBox: opts.EventBox,
	})

	indexer, err := index.New(index.Config{
		Source:   source,
		Semantic: svc,
		OnSync: func(st index.SyncStats) {
			if st.Changed() {
				searcher.ClearCache()
			}
		},
		Logger:   opts.Logger,
		EventBox: opts.EventBox,
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		opts:     opts,
		source:   source,
		manager:  mgr,
		semantic: svc,
		searcher: searcher,
		indexer:  indexer,
	}, nil
}

// Bookmarks lists the source.
func (c *Client) Bookmarks(ctx context.Context) ([]bookmark.Bookmark, error) {
	return c.source.List(ctx)
}

// Filter returns bookmarks matching a boolean query, in source order.
func (c *Client) Filter(ctx context.Context, q string) ([]bookmark.Bookmark, error) {
	bookmarks, err := c.source.List(ctx)
	if err != nil {
		return nil, err
	}
	return c.searcher.Filter(q, bookmarks)
}

// Search ranks bookmarks against text.
func (c *Client) Search(ctx context.Context, text string, opts search.Options) (*search.Response, error) {
	bookmarks, err := c.source.List(ctx)
	if err != nil {
		return nil, err
	}
	return c.searcher.Search(ctx, text, bookmarks, opts)
}

// Sync brings the semantic index in line with the source.
func (c *Client) Sync(ctx context.Context) (index.SyncStats, error) {
	return c.indexer.Sync(ctx)
}

// Watch syncs whenever the bookmark file changes, until ctx is done.
func (c *Client) Watch(ctx context.Context) error {
	return c.indexer.Watch(ctx)
}

// Setup downloads the configured model so the first search does not.
func (c *Client) Setup(ctx context.Context) error {
	spec, err := embed.ResolveModel(c.opts.Model)
	if err != nil {
		return err
	}
	if c.opts.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.DownloadTimeout)
		defer cancel()
	}
	if err := c.manager.DownloadModel(ctx, spec.File, c.opts.Progress); err != nil {
		return fmt.Errorf("download %s: %w", spec.Name, err)
	}
	return nil
}

// Clear drops every stored vector and the search cache. An unloaded
// service only has its file removed, so clearing never loads the model.
func (c *Client) Clear(ctx context.Context) error {
	c.searcher.ClearCache()
	if !c.semantic.Stats().Initialized {
		return store.NewVectorStorage(c.semantic.VectorPath()).Remove()
	}
	return c.semantic.Reset(ctx)
}

// Status reports index and server state.
func (c *Client) Status() Status {
	st := Status{
		Bookmarks:      c.source.Path(),
		Semantic:       c.semantic.Stats(),
		ServerRunning:  c.manager.IsRunning(),
		ServerModel:    c.manager.RunningModel(),
		Endpoint:       c.manager.Endpoint(),
		CachedSearches: c.searcher.CacheLen(),
	}
	if spec, err := embed.ResolveModel(c.opts.Model); err == nil {
		st.ModelDownloaded = c.manager.ModelExists(spec.File)
	}
	return st
}

// StopServer stops the background llama.cpp server, if running.
func (c *Client) StopServer() error {
	return c.manager.Stop()
}

// Close releases the model. Call Sync first to persist pending changes.
func (c *Client) Close() error {
	return c.semantic.Close()
}
