package search

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/XiaoConstantine/bmark/pkg/bookmark"
	"github.com/XiaoConstantine/bmark/pkg/query"
	"github.com/XiaoConstantine/bmark/pkg/semantic"
	"github.com/XiaoConstantine/bmark/pkg/store"
	"github.com/XiaoConstantine/bmark/pkg/util"
)

// ErrEmptyQuery is returned by Search for blank query text.
var ErrEmptyQuery = errors.New("empty search query")

// Mode selects which rankers take part.
type Mode string

const (
	ModeHybrid   Mode = "hybrid"   // semantic + lexical fused with RRF
	ModeSemantic Mode = "semantic" // vector similarity only
	ModeLexical  Mode = "lexical"  // keyword scoring only
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeHybrid, ModeSemantic, ModeLexical:
		return m, nil
	case "":
		return ModeHybrid, nil
	}
	return "", fmt.Errorf("unknown search mode %q (hybrid, semantic, lexical)", s)
}

// SemanticRanker is the part of semantic.Service the searcher uses.
type SemanticRanker interface {
	SearchWithScores(ctx context.Context, text string, candidates map[uint64]struct{}, threshold float32, limit int) ([]store.Result, error)
	DefaultThreshold() float32
}

// Options configures one search.
type Options struct {
	Mode Mode
	// Filter is a boolean query that narrows candidates before ranking.
	Filter string
	// Limit caps the result count; <= 0 returns everything.
	Limit int
	// SemanticWeight is alpha in weighted RRF.
	SemanticWeight float64
	// Threshold overrides the service's cosine cut-off when set.
	Threshold *float32
	// NoCache bypasses the result cache.
	NoCache bool
}

// DefaultOptions returns the options used by the CLI.
func DefaultOptions() Options {
	return Options{
		Mode:           ModeHybrid,
		Limit:          10,
		SemanticWeight: DefaultSemanticWeight,
	}
}

// Hit is a ranked bookmark.
type Hit struct {
	Bookmark bookmark.Bookmark `json:"bookmark"`
	HybridResult
	// Similarity is the cosine score when the semantic ranker found it.
	Similarity float32 `json:"similarity,omitempty"`
}

// Response is the result of Search.
type Response struct {
	Hits []Hit `json:"hits"`
	Mode Mode  `json:"mode"`
	// Semantic reports whether semantic ranking contributed.
	Semantic bool `json:"semantic"`
	// SemanticErr explains why semantic ranking was left out of a hybrid
	// search (currently only semantic.ErrDisabled).
	SemanticErr error         `json:"-"`
	Candidates  int           `json:"candidates"`
	Duration    time.Duration `json:"duration"`
	CacheHit    bool          `json:"cache_hit"`
}

// Config holds searcher dependencies.
type Config struct {
	// Semantic may be nil, which behaves like a disabled service.
	Semantic  SemanticRanker
	CacheSize int
	CacheTTL  time.Duration
	EventBox  *util.EventBox
}

type cacheEntry struct {
	response  *Response
	expiresAt time.Time
}

// Searcher runs boolean filters and ranked searches over bookmark lists
// supplied per call.
type Searcher struct {
	semantic SemanticRanker
	eventBox *util.EventBox
	cacheTTL time.Duration

	cacheMu sync.Mutex
	cache   *lru.Cache[[32]byte, *cacheEntry]
}

// New creates a searcher. Zero cache settings use 256 entries for 5 minutes.
func New(cfg Config) *Searcher {
	size := cfg.CacheSize
	if size <= 0 {
		size = 256
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	cache, err := lru.New[[32]byte, *cacheEntry](size)
	if err != nil {
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}
	return &Searcher{
		semantic: cfg.Semantic,
		eventBox: cfg.EventBox,
		cacheTTL: ttl,
		cache:    cache,
	}
}

// Filter returns the bookmarks matching a boolean query, in input order.
// A query that normalizes to nothing matches every bookmark.
func (s *Searcher) Filter(q string, bookmarks []bookmark.Bookmark) ([]bookmark.Bookmark, error) {
	f, err := query.ParseQuery(q)
	if err != nil {
		return nil, err
	}
	return query.Select(f, bookmarks), nil
}

// Search ranks bookmarks against free text. In hybrid mode the semantic
// and lexical rankers run concurrently; if semantic search is disabled the
// lexical ranking is returned alone and Response.SemanticErr says why.
func (s *Searcher) Search(ctx context.Context, text string, bookmarks []bookmark.Bookmark, opts Options) (*Response, error) {
	start := time.Now()
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyQuery
	}
	if opts.Mode == "" {
		opts.Mode = ModeHybrid
	}

	candidates := bookmarks
	if strings.TrimSpace(opts.Filter) != "" {
		var err error
		if candidates, err = s.Filter(opts.Filter, bookmarks); err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
	}

	key := cacheKey(text, opts, candidates)
	if !opts.NoCache {
		if cached := s.checkCache(key); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(start)
			return cached, nil
		}
	}

	s.eventBox.Set(util.EvtSearchStart, text)
	resp, err := s.rank(ctx, text, candidates, opts)
	if err != nil {
		return nil, err
	}
	resp.Duration = time.Since(start)
	s.eventBox.Set(util.EvtSearchComplete, len(resp.Hits))

	if !opts.NoCache {
		s.storeInCache(key, resp)
	}
	return resp, nil
}

func (s *Searcher) rank(ctx context.Context, text string, candidates []bookmark.Bookmark, opts Options) (*Response, error) {
	resp := &Response{Mode: opts.Mode, Candidates: len(candidates)}
	if len(candidates) == 0 {
		return resp, nil
	}
	stats := util.NewTimingStats()
	defer stats.Log()

	var semHits []store.Result
	var lexHits []LexicalResult
	var semErr error

	g, gctx := errgroup.WithContext(ctx)
	if opts.Mode != ModeLexical {
		g.Go(func() error {
			start := time.Now()
			defer func() { stats.Record("semantic", time.Since(start), 1) }()

			semHits, semErr = s.semanticRank(gctx, text, candidates, opts)
			if semErr != nil && (opts.Mode == ModeSemantic || !errors.Is(semErr, semantic.ErrDisabled)) {
				return semErr
			}
			return nil
		})
	}
	if opts.Mode != ModeSemantic {
		g.Go(func() error {
			stats.Time("lexical", func() {
				lexHits = ScoreLexical(text, candidates)
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	alpha := ClampWeight(opts.SemanticWeight)
	switch {
	case opts.Mode == ModeSemantic:
		alpha = 1
	case opts.Mode == ModeLexical || semErr != nil:
		alpha = 0
	}
	resp.Semantic = opts.Mode != ModeLexical && semErr == nil
	resp.SemanticErr = semErr

	semIDs := make([]uint64, len(semHits))
	similarity := make(map[uint64]float32, len(semHits))
	for i, r := range semHits {
		semIDs[i] = r.ID
		similarity[r.ID] = r.Score
	}
	lexIDs := make([]uint64, len(lexHits))
	for i, r := range lexHits {
		lexIDs[i] = r.ID
	}

	var fused []HybridResult
	stats.Time("fusion", func() {
		fused = Fuse(semIDs, lexIDs, alpha)
	})

	byID := bookmark.ByID(candidates)
	for _, r := range fused {
		if opts.Limit > 0 && len(resp.Hits) >= opts.Limit {
			break
		}
		b, ok := byID[r.ID]
		if !ok {
			continue
		}
		resp.Hits = append(resp.Hits, Hit{Bookmark: b, HybridResult: r, Similarity: similarity[r.ID]})
	}
	return resp, nil
}

func (s *Searcher) semanticRank(ctx context.Context, text string, candidates []bookmark.Bookmark, opts Options) ([]store.Result, error) {
	if s.semantic == nil {
		return nil, semantic.ErrDisabled
	}
	threshold := s.semantic.DefaultThreshold()
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}
	ids := make(map[uint64]struct{}, len(candidates))
	for _, b := range candidates {
		ids[b.ID] = struct{}{}
	}
	return s.semantic.SearchWithScores(ctx, text, ids, threshold, 0)
}

func (s *Searcher) checkCache(key [32]byte) *Response {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	entry, ok := s.cache.Get(key)
	if !ok {
		return nil
	}
	if time.Now().After(entry.expiresAt) {
		s.cache.Remove(key)
		return nil
	}
	return copyResponse(entry.response)
}

func (s *Searcher) storeInCache(key [32]byte, resp *Response) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache.Add(key, &cacheEntry{response: copyResponse(resp), expiresAt: time.Now().Add(s.cacheTTL)})
}

// ClearCache drops all cached responses. The indexer calls it after the
// vector index changes.
func (s *Searcher) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache.Purge()
}

// CacheLen returns the number of cached responses.
func (s *Searcher) CacheLen() int {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.cache.Len()
}

func copyResponse(src *Response) *Response {
	dst := *src
	dst.Hits = make([]Hit, len(src.Hits))
	for i, h := range src.Hits {
		h.Bookmark.Tags = slices.Clone(h.Bookmark.Tags)
		dst.Hits[i] = h
	}
	return &dst
}

// cacheKey covers the query, the options and the candidate contents, so an
// edited bookmark never serves a stale ranking.
func cacheKey(text string, opts Options, candidates []bookmark.Bookmark) [32]byte {
	h := fnv.New64a()
	var buf [8]byte
	for _, b := range candidates {
		binary.LittleEndian.PutUint64(buf[:], b.ID)
		_, _ = h.Write(buf[:])
		_, _ = h.Write([]byte(b.Title + "\x00" + b.Description + "\x00" + b.URL + "\x00" + strings.Join(b.Tags, "\x1f") + "\x00"))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s|%s|%s|%d|%.4f|", text, opts.Mode, opts.Filter, opts.Limit, opts.SemanticWeight)
	if opts.Threshold != nil {
		fmt.Fprintf(&sb, "%.4f", *opts.Threshold)
	}
	fmt.Fprintf(&sb, "|%x", h.Sum64())
	return sha256.Sum256([]byte(sb.String()))
}
