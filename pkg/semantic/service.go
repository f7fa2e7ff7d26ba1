// Package semantic owns the embedding model, the in-memory vector index and
// its on-disk copy behind one lock.
package semantic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/XiaoConstantine/bmark/pkg/embed"
	"github.com/XiaoConstantine/bmark/pkg/store"
	"github.com/XiaoConstantine/bmark/pkg/util"
)

var (
	// ErrDisabled is returned by every operation when semantic search is
	// switched off, so callers can tell "feature off" from "no matches".
	ErrDisabled = errors.New("semantic search is disabled")
	// ErrNotInitialized is returned when an operation runs before
	// Initialize (and LazyInit is off) or after Close.
	ErrNotInitialized = errors.New("semantic search is not initialized")
)

// DefaultThreshold is the cosine cut-off used when none is configured.
const DefaultThreshold float32 = 0.35

// Embedder is the model surface the service needs. *embed.Model
// implements it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
	ModelIDHash() store.ModelID
	Close() error
}

// Config is the unstarted form of a Service.
type Config struct {
	Enabled          bool
	Model            string
	DefaultThreshold float32
	DownloadTimeout  time.Duration

	// BaseDir holds vectors.bin and the models/ cache directory.
	BaseDir string

	// LazyInit makes the first operation initialize the service instead
	// of failing with ErrNotInitialized.
	LazyInit bool

	// Loader provides the model backend for the default model factory.
	Loader embed.Loader
	// NewModel replaces the default factory, which calls embed.NewModel.
	NewModel func(ctx context.Context, cfg embed.ModelConfig) (Embedder, error)

	Logger   *slog.Logger
	EventBox *util.EventBox
}

// Service is the ready handle. All public methods serialize on one mutex:
// model load, search, mutation and persistence never interleave.
type Service struct {
	cfg    Config
	logger *slog.Logger

	mu          sync.Mutex
	ready       bool
	closed      bool
	model       Embedder
	index       *store.Index
	storage     *store.VectorStorage
	dirty       bool
	loadSkipped int
	resetReason error
}

// New creates a service from cfg. Nothing is loaded until Initialize or,
// with LazyInit, the first operation.
func New(cfg Config) *Service {
	if cfg.DefaultThreshold == 0 {
		cfg.DefaultThreshold = DefaultThreshold
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cfg: cfg, logger: logger}
}

// IsEnabled reports the feature flag.
func (s *Service) IsEnabled() bool { return s.cfg.Enabled }

// DefaultThreshold returns the configured cosine cut-off.
func (s *Service) DefaultThreshold() float32 { return s.cfg.DefaultThreshold }

// VectorPath returns the location of the persisted index.
func (s *Service) VectorPath() string {
	return filepath.Join(s.cfg.BaseDir, store.FileName)
}

// Initialize loads the model and the stored index. It is safe to call more
// than once; later calls return nil once the service is ready.
func (s *Service) Initialize(ctx context.Context) error {
	if !s.cfg.Enabled {
		return ErrDisabled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNotInitialized
	}
	return s.initLocked(ctx)
}

// acquire locks the service and makes sure it is ready. On success the
// caller must unlock.
func (s *Service) acquire(ctx context.Context) error {
	if !s.cfg.Enabled {
		return ErrDisabled
	}
	s.mu.Lock()
	if s.closed || (!s.ready && !s.cfg.LazyInit) {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	if err := s.initLocked(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Service) initLocked(ctx context.Context) error {
	if s.ready {
		return nil
	}

	model, err := s.newModel(ctx)
	if err != nil {
		return err
	}

	storage := store.NewVectorStorage(s.VectorPath())
	index, err := s.loadIndex(storage, model)
	if err != nil {
		_ = model.Close()
		return err
	}

	s.model = model
	s.storage = storage
	s.index = index
	s.dirty = false
	s.ready = true
	s.cfg.EventBox.Set(util.EvtIndexLoaded, index.Len())
	util.Debugf(util.DebugSummary, "semantic: model %s (%d dims), %d vectors", model.Name(), model.Dimensions(), index.Len())
	return nil
}

func (s *Service) newModel(ctx context.Context) (Embedder, error) {
	mc := embed.ModelConfig{
		Name:            s.cfg.Model,
		CacheDir:        filepath.Join(s.cfg.BaseDir, "models"),
		DownloadTimeout: s.cfg.DownloadTimeout,
		Loader:          s.cfg.Loader,
		EventBox:        s.cfg.EventBox,
	}
	if s.cfg.NewModel != nil {
		return s.cfg.NewModel(ctx, mc)
	}
	return embed.NewModel(ctx, mc)
}

// loadIndex rehydrates storage, or starts empty when the file is missing
// or was written by a different model, format version or dimensionality.
func (s *Service) loadIndex(storage *store.VectorStorage, model Embedder) (*store.Index, error) {
	s.loadSkipped = 0
	s.resetReason = nil

	exists, err := storage.Exists()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", storage.Path(), err)
	}
	if !exists {
		return store.NewIndex(model.Dimensions()), nil
	}

	index, skipped, err := storage.Load(model.ModelIDHash(), model.Dimensions())
	switch {
	case err == nil:
		if skipped > 0 {
			s.logger.Warn("skipped corrupt vector entries", "path", storage.Path(), "skipped", skipped)
		}
		s.loadSkipped = skipped
		return index, nil
	case store.IsRecoverable(err):
		s.logger.Warn("stored vectors are incompatible, starting with an empty index",
			"path", storage.Path(), "model", model.Name(), "error", err)
		s.resetReason = err
		s.cfg.EventBox.Set(util.EvtIndexReset, err)
		return store.NewIndex(model.Dimensions()), nil
	default:
		return nil, fmt.Errorf("load %s: %w", storage.Path(), err)
	}
}

// Search returns the ids of SearchWithScores.
func (s *Service) Search(ctx context.Context, text string, candidates map[uint64]struct{}, threshold float32, limit int) ([]uint64, error) {
	results, err := s.SearchWithScores(ctx, text, candidates, threshold, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids, nil
}

// SearchWithScores embeds text and returns indexed bookmarks scoring at
// least threshold, best first. candidates restricts the search when
// non-nil. limit <= 0 returns every hit. Blank text matches nothing.
func (s *Service) SearchWithScores(ctx context.Context, text string, candidates map[uint64]struct{}, threshold float32, limit int) ([]store.Result, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	text = strings.TrimSpace(text)
	if text == "" || s.index.Len() == 0 {
		return nil, nil
	}

	timer := util.NewTimer("semantic search")
	vec, err := s.model.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	results, err := s.index.Search(vec, candidates, threshold, limit)
	if err != nil {
		return nil, err
	}
	timer.StopAndLog(util.DebugDetailed)
	return results, nil
}

// WithIndexMut runs fn with exclusive access to the index. Changes stay in
// memory until SaveIndex.
func (s *Service) WithIndexMut(ctx context.Context, fn func(*Mutator) error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()

	m := &Mutator{ctx: ctx, svc: s}
	return fn(m)
}

// SaveIndex writes the index to disk, replacing the previous file.
func (s *Service) SaveIndex(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()

	timer := util.NewTimer("save index")
	if err := s.storage.Save(s.index, s.model.ModelIDHash()); err != nil {
		return err
	}
	s.dirty = false
	timer.StopAndLog(util.DebugSummary)
	s.cfg.EventBox.Set(util.EvtIndexSaved, s.index.Len())
	return nil
}

// Reset drops every vector from memory and disk.
func (s *Service) Reset(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if err := s.storage.Remove(); err != nil {
		return err
	}
	s.index = store.NewIndex(s.model.Dimensions())
	s.dirty = false
	s.cfg.EventBox.Set(util.EvtIndexReset, nil)
	return nil
}

// Stats describes the service without initializing it.
type Stats struct {
	Enabled     bool   `json:"enabled"`
	Initialized bool   `json:"initialized"`
	Model       string `json:"model"`
	Dimensions  int    `json:"dimensions,omitempty"`
	Entries     int    `json:"entries"`
	Dirty       bool   `json:"dirty"`
	LoadSkipped int    `json:"load_skipped,omitempty"`
	ResetReason string `json:"reset_reason,omitempty"`
	Path        string `json:"path"`
}

// Stats returns a snapshot.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Enabled:     s.cfg.Enabled,
		Initialized: s.ready,
		Model:       s.cfg.Model,
		Path:        s.VectorPath(),
		Dirty:       s.dirty,
		LoadSkipped: s.loadSkipped,
	}
	if s.resetReason != nil {
		st.ResetReason = s.resetReason.Error()
	}
	if s.ready {
		st.Model = s.model.Name()
		st.Dimensions = s.model.Dimensions()
		st.Entries = s.index.Len()
	}
	return st
}

// Close releases the model. Unsaved changes are discarded; call SaveIndex
// first to keep them.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if !s.ready {
		return nil
	}
	if s.dirty {
		s.logger.Warn("closing semantic service with unsaved index changes", "entries", s.index.Len())
	}
	s.ready = false
	err := s.model.Close()
	s.model, s.index, s.storage = nil, nil, nil
	return err
}
