package embed

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/XiaoConstantine/bmark/pkg/store"
	"github.com/XiaoConstantine/bmark/pkg/util"
)

var (
	ErrInitFailed      = errors.New("embedding model initialization failed")
	ErrEmbeddingFailed = errors.New("embedding failed")
	ErrDownloadTimeout = errors.New("embedding model download timed out")
	ErrInvalidModel    = errors.New("unsupported embedding model")
)

// probeText is embedded once at load to learn the real output size.
const probeText = "dimension probe"

// ModelConfig configures NewModel.
type ModelConfig struct {
	// Name is a catalogue model name; empty selects DefaultModel.
	Name string
	// CacheDir is created if missing; model files live under it.
	CacheDir string
	// DownloadTimeout bounds loading, including any download. Zero means
	// no bound beyond ctx.
	DownloadTimeout time.Duration
	Loader          Loader
	// CacheSize is the number of cached text embeddings.
	CacheSize int
	EventBox  *util.EventBox
}

// Stats counts embedding work since the model was created.
type Stats struct {
	Requests  int64
	CacheHits int64
	Errors    int64
}

// Model is a loaded embedding model. Inference requires exclusive access
// to the backend, so every call holds one mutex: concurrent callers queue.
type Model struct {
	mu      sync.Mutex
	spec    ModelSpec
	backend Backend
	dims    int
	idHash  store.ModelID
	cache   *Cache
	stats   Stats
	closed  bool
}

// NewModel resolves cfg.Name, loads the model through cfg.Loader and
// probes its output dimensionality.
func NewModel(ctx context.Context, cfg ModelConfig) (*Model, error) {
	spec, err := ResolveModel(cfg.Name)
	if err != nil {
		return nil, err
	}
	if cfg.Loader == nil {
		return nil, fmt.Errorf("%w: no loader configured", ErrInitFailed)
	}
	if cfg.CacheDir != "" {
		if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
			return nil, fmt.Errorf("%w: create cache dir: %w", ErrInitFailed, err)
		}
	}

	cfg.EventBox.Set(util.EvtModelLoading, spec.Name)
	timer := util.NewTimer("model load " + spec.Name)

	loadCtx := ctx
	if cfg.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		loadCtx, cancel = context.WithTimeout(ctx, cfg.DownloadTimeout)
		defer cancel()
	}

	backend, err := cfg.Loader.Load(loadCtx, spec)
	if err != nil {
		if ctx.Err() == nil && errors.Is(loadCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %v: %w", ErrDownloadTimeout, cfg.DownloadTimeout, err)
		} else {
			err = fmt.Errorf("%w: load %s: %w", ErrInitFailed, spec.Name, err)
		}
		cfg.EventBox.Set(util.EvtModelError, err)
		return nil, err
	}

	vecs, err := backend.Embed(ctx, []string{probeText})
	if err == nil && (len(vecs) != 1 || len(vecs[0]) == 0) {
		err = errors.New("empty probe embedding")
	}
	if err != nil {
		_ = backend.Close()
		err = fmt.Errorf("%w: probe %s: %w", ErrInitFailed, spec.Name, err)
		cfg.EventBox.Set(util.EvtModelError, err)
		return nil, err
	}

	m := &Model{
		spec:    spec,
		backend: backend,
		dims:    len(vecs[0]),
		idHash:  ModelIDHash(spec.Name),
		cache:   NewCache(cfg.CacheSize),
	}
	if m.dims != spec.Dimensions {
		util.Debugf(util.DebugSummary, "model %s declares %d dims, produces %d", spec.Name, spec.Dimensions, m.dims)
	}
	timer.StopAndLog(util.DebugSummary)
	cfg.EventBox.Set(util.EvtModelReady, spec.Name)
	return m, nil
}

// ModelIDHash derives the storage identifier for a model name.
func ModelIDHash(name string) store.ModelID {
	return sha256.Sum256([]byte(name))
}

// Name returns the catalogue name.
func (m *Model) Name() string { return m.spec.Name }

// Dimensions returns the probed vector size.
func (m *Model) Dimensions() int { return m.dims }

// ModelIDHash returns the identifier written into vector files.
func (m *Model) ModelIDHash() store.ModelID { return m.idHash }

// Embed returns the embedding of text.
func (m *Model) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in order. Cached texts are not sent to the
// backend.
func (m *Model) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("%w: model closed", ErrEmbeddingFailed)
	}
	m.stats.Requests += int64(len(texts))

	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if v, ok := m.cache.Get(text); ok {
			out[i] = v
			m.stats.CacheHits++
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := m.backend.Embed(ctx, missing)
	if err != nil {
		m.stats.Errors++
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	if len(vecs) != len(missing) {
		m.stats.Errors++
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vecs), len(missing))
	}
	for j, v := range vecs {
		if len(v) != m.dims {
			m.stats.Errors++
			return nil, fmt.Errorf("%w: got %d dimensions, model produces %d", ErrEmbeddingFailed, len(v), m.dims)
		}
		out[missingIdx[j]] = v
		m.cache.Add(missing[j], v)
	}
	return out, nil
}

// Stats returns a snapshot of the counters.
func (m *Model) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Close releases the backend. Later calls fail with ErrEmbeddingFailed.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.cache.Purge()
	return m.backend.Close()
}
