// Package index keeps the semantic vector index in step with a bookmark
// source.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/XiaoConstantine/bmark/pkg/bookmark"
	"github.com/XiaoConstantine/bmark/pkg/semantic"
	"github.com/XiaoConstantine/bmark/pkg/util"
)

const (
	defaultBatchSize = 32
	defaultDebounce  = 500 * time.Millisecond
)

// Target is the semantic service surface the indexer mutates.
type Target interface {
	WithIndexMut(ctx context.Context, fn func(*semantic.Mutator) error) error
	SaveIndex(ctx context.Context) error
}

// Config holds indexer dependencies.
type Config struct {
	Source   bookmark.Source
	Semantic Target
	// BatchSize is the number of bookmarks embedded per model call.
	BatchSize int
	// Debounce is how long Watch waits for the source to settle.
	Debounce time.Duration
	// OnSync runs after every successful sync, e.g. to drop search caches.
	OnSync   func(SyncStats)
	Logger   *slog.Logger
	EventBox *util.EventBox
}

// SyncStats summarizes one Sync.
type SyncStats struct {
	Total     int           `json:"total"`
	Embedded  int           `json:"embedded"`
	Unchanged int           `json:"unchanged"`
	Removed   int           `json:"removed"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Saved     bool          `json:"saved"`
	Duration  time.Duration `json:"duration"`
}

// Changed reports whether the index was modified.
func (s SyncStats) Changed() bool {
	return s.Embedded > 0 || s.Removed > 0
}

func (s SyncStats) String() string {
	return fmt.Sprintf("%d bookmarks: %d embedded, %d unchanged, %d removed, %d skipped, %d failed in %v",
		s.Total, s.Embedded, s.Unchanged, s.Removed, s.Skipped, s.Failed, s.Duration.Round(time.Millisecond))
}

// Indexer syncs bookmarks into the semantic index.
type Indexer struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an indexer.
func New(cfg Config) (*Indexer, error) {
	if cfg.Source == nil || cfg.Semantic == nil {
		return nil, errors.New("indexer needs a source and a semantic target")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{cfg: cfg, logger: logger}, nil
}

// Sync embeds new and edited bookmarks, drops vectors of deleted ones and
// saves the index when it has unsaved changes. A bookmark that fails to embed is
// counted and logged; it does not abort the sync.
func (idx *Indexer) Sync(ctx context.Context) (SyncStats, error) {
	start := time.Now()
	var stats SyncStats

	bookmarks, err := idx.cfg.Source.List(ctx)
	if err != nil {
		return stats, fmt.Errorf("list bookmarks: %w", err)
	}
	stats.Total = len(bookmarks)
	idx.cfg.EventBox.Set(util.EvtSyncStart, stats.Total)

	dirty := false
	err = idx.cfg.Semantic.WithIndexMut(ctx, func(m *semantic.Mutator) error {
		present := make(map[uint64]struct{}, len(bookmarks))
		for i := 0; i < len(bookmarks); i += idx.cfg.BatchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			batch := bookmarks[i:min(i+idx.cfg.BatchSize, len(bookmarks))]
			items := make([]semantic.Item, len(batch))
			for j, b := range batch {
				present[b.ID] = struct{}{}
				items[j] = semantic.Item{ID: b.ID, Title: b.Title, Description: b.Description}
			}
			idx.upsert(m, items, &stats)
			idx.cfg.EventBox.Set(util.EvtSyncProgress, i+len(batch))
			util.Debugf(util.DebugDetailed, "sync: %d/%d", i+len(batch), len(bookmarks))
		}

		for _, id := range m.Index().IDs() {
			if _, ok := present[id]; !ok && m.Remove(id) {
				stats.Removed++
			}
		}
		dirty = m.Dirty()
		return nil
	})
	if err != nil {
		return stats, err
	}

	if dirty {
		if err := idx.cfg.Semantic.SaveIndex(ctx); err != nil {
			return stats, fmt.Errorf("save index: %w", err)
		}
		stats.Saved = true
	}

	stats.Duration = time.Since(start)
	idx.cfg.EventBox.Set(util.EvtSyncComplete, stats)
	util.Debugf(util.DebugSummary, "sync: %s", stats)
	if idx.cfg.OnSync != nil {
		idx.cfg.OnSync(stats)
	}
	return stats, nil
}

// upsert embeds a batch in one call, then retries whatever failed one
// bookmark at a time so a single bad input does not fail its neighbours.
func (idx *Indexer) upsert(m *semantic.Mutator, items []semantic.Item, stats *SyncStats) {
	outcomes, err := m.UpsertBatch(items)
	var retry []semantic.Item
	for i, o := range outcomes {
		if o == semantic.Failed {
			retry = append(retry, items[i])
			continue
		}
		stats.count(o)
	}
	if err == nil && len(retry) == 0 {
		return
	}

	idx.logger.Debug("batch embedding failed, retrying individually", "size", len(retry), "error", err)
	for _, it := range retry {
		o, err := m.Upsert(it)
		if err != nil {
			stats.Failed++
			idx.logger.Warn("failed to index bookmark", "id", it.ID, "title", it.Title, "error", err)
			continue
		}
		stats.count(o)
	}
}

func (s *SyncStats) count(o semantic.Outcome) {
	switch o {
	case semantic.Embedded:
		s.Embedded++
	case semantic.Unchanged:
		s.Unchanged++
	case semantic.Skipped:
		s.Skipped++
	}
}

// Watch syncs once, then re-syncs whenever the source file changes until
// ctx is done. The parent directory is watched so editors that replace the
// file by rename are seen too.
func (idx *Indexer) Watch(ctx context.Context) error {
	if _, err := idx.Sync(ctx); err != nil {
		return err
	}

	path, err := filepath.Abs(idx.cfg.Source.Path())
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	idx.logger.Info("watching bookmarks for changes", "path", path)

	trigger := make(chan struct{}, 1)
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path || event.Op == fsnotify.Chmod {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(idx.cfg.Debounce, func() {
				select {
				case trigger <- struct{}{}:
				default:
				}
			})

		case <-trigger:
			stats, err := idx.Sync(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				idx.logger.Error("sync failed", "path", path, "error", err)
				continue
			}
			idx.logger.Info("bookmarks re-indexed", "embedded", stats.Embedded, "removed", stats.Removed, "failed", stats.Failed)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			idx.logger.Warn("watch error", "error", err)
		}
	}
}
