package semantic

import (
	"context"
	"encoding/binary"
	"hash/crc32"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/bmark/pkg/embed"
	"github.com/XiaoConstantine/bmark/pkg/store"
	"github.com/XiaoConstantine/bmark/pkg/util"
)

var vocabulary = []string{"rust", "go", "video", "cooking"}

// keywordEmbedder maps text onto keyword counts, with a small constant
// component so no vector is zero. Text containing "glitch" embeds to NaN.
type keywordEmbedder struct {
	name   string
	dims   int
	calls  atomic.Int64
	closed atomic.Bool
}

func (k *keywordEmbedder) vector(text string) []float32 {
	v := make([]float32, k.dims)
	lower := strings.ToLower(text)
	for i := 0; i < k.dims && i < len(vocabulary); i++ {
		v[i] = float32(strings.Count(lower, vocabulary[i]))
	}
	v[k.dims-1] += 0.01
	if strings.Contains(lower, "glitch") {
		v[0] = float32(math.NaN())
	}
	return v
}

func (k *keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	k.calls.Add(1)
	return k.vector(text), nil
}

func (k *keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	k.calls.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = k.vector(t)
	}
	return out, nil
}

func (k *keywordEmbedder) Dimensions() int            { return k.dims }
func (k *keywordEmbedder) Name() string               { return k.name }
func (k *keywordEmbedder) ModelIDHash() store.ModelID { return embed.ModelIDHash(k.name) }
func (k *keywordEmbedder) Close() error {
	k.closed.Store(true)
	return nil
}

func testConfig(dir string, model *keywordEmbedder) Config {
	return Config{
		Enabled: true,
		Model:   model.name,
		BaseDir: dir,
		NewModel: func(ctx context.Context, cfg embed.ModelConfig) (Embedder, error) {
			return model, nil
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func newReady(t *testing.T, dir string, model *keywordEmbedder) *Service {
	t.Helper()
	svc := New(testConfig(dir, model))
	require.NoError(t, svc.Initialize(context.Background()))
	return svc
}

func upsertAll(t *testing.T, svc *Service, items ...Item) []Outcome {
	t.Helper()
	var out []Outcome
	err := svc.WithIndexMut(context.Background(), func(m *Mutator) error {
		var err error
		out, err = m.UpsertBatch(items)
		return err
	})
	require.NoError(t, err)
	return out
}

func TestService_Disabled(t *testing.T) {
	cfg := testConfig(t.TempDir(), &keywordEmbedder{name: "m", dims: 4})
	cfg.Enabled = false
	svc := New(cfg)
	ctx := context.Background()

	assert.False(t, svc.IsEnabled())
	assert.ErrorIs(t, svc.Initialize(ctx), ErrDisabled)
	_, err := svc.Search(ctx, "rust", nil, 0, 10)
	assert.ErrorIs(t, err, ErrDisabled)
	assert.ErrorIs(t, svc.WithIndexMut(ctx, func(*Mutator) error { return nil }), ErrDisabled)
	assert.ErrorIs(t, svc.SaveIndex(ctx), ErrDisabled)
}

func TestService_RequiresInitialize(t *testing.T) {
	model := &keywordEmbedder{name: "m", dims: 4}
	svc := New(testConfig(t.TempDir(), model))
	ctx := context.Background()

	_, err := svc.SearchWithScores(ctx, "rust", nil, 0, 10)
	assert.ErrorIs(t, err, ErrNotInitialized)

	require.NoError(t, svc.Initialize(ctx))
	require.NoError(t, svc.Initialize(ctx))
	_, err = svc.SearchWithScores(ctx, "rust", nil, 0, 10)
	assert.NoError(t, err)
}

func TestService_LazyInit(t *testing.T) {
	model := &keywordEmbedder{name: "m", dims: 4}
	cfg := testConfig(t.TempDir(), model)
	cfg.LazyInit = true
	svc := New(cfg)

	assert.False(t, svc.Stats().Initialized)
	_, err := svc.Search(context.Background(), "rust", nil, 0, 10)
	require.NoError(t, err)
	assert.True(t, svc.Stats().Initialized)
}

func TestService_UpsertOutcomes(t *testing.T) {
	model := &keywordEmbedder{name: "m", dims: 4}
	svc := newReady(t, t.TempDir(), model)

	out := upsertAll(t, svc,
		Item{ID: 1, Title: "Rust book"},
		Item{ID: 2, Title: "  ", Description: ""},
	)
	assert.Equal(t, []Outcome{Embedded, Skipped}, out)

	calls := model.calls.Load()
	out = upsertAll(t, svc, Item{ID: 1, Title: " Rust book "})
	assert.Equal(t, []Outcome{Unchanged}, out)
	assert.Equal(t, calls, model.calls.Load(), "unchanged content is not re-embedded")

	out = upsertAll(t, svc, Item{ID: 1, Title: ""})
	assert.Equal(t, []Outcome{Skipped}, out)
	assert.Equal(t, 0, svc.Stats().Entries, "blanked bookmark loses its vector")
}

func TestService_SearchRanksByMeaning(t *testing.T) {
	svc := newReady(t, t.TempDir(), &keywordEmbedder{name: "m", dims: 4})
	upsertAll(t, svc,
		Item{ID: 1, Title: "Rust video course"},
		Item{ID: 2, Title: "Rust", Description: "rust rust"},
		Item{ID: 3, Title: "Cooking show"},
	)
	ctx := context.Background()

	ids, err := svc.Search(ctx, "rust", nil, 0.5, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 1}, ids)

	ids, err = svc.Search(ctx, "rust", map[uint64]struct{}{1: {}, 3: {}}, 0.5, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, ids)

	ids, err = svc.Search(ctx, "   ", nil, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestService_SaveAndReload(t *testing.T) {
	dir := t.TempDir()
	model := &keywordEmbedder{name: "m", dims: 4}
	events := util.NewEventBox()
	cfg := testConfig(dir, model)
	cfg.EventBox = events
	svc := New(cfg)
	require.NoError(t, svc.Initialize(context.Background()))

	upsertAll(t, svc, Item{ID: 7, Title: "Go video"}, Item{ID: 8, Title: "Rust"})
	assert.True(t, svc.Stats().Dirty)
	require.NoError(t, svc.SaveIndex(context.Background()))
	assert.False(t, svc.Stats().Dirty)
	saved, ok := events.Peek(util.EvtIndexSaved)
	require.True(t, ok)
	assert.Equal(t, 2, saved)
	require.NoError(t, svc.Close())
	assert.True(t, model.closed.Load())

	reloaded := newReady(t, dir, &keywordEmbedder{name: "m", dims: 4})
	st := reloaded.Stats()
	assert.Equal(t, 2, st.Entries)
	assert.Empty(t, st.ResetReason)
}

func TestService_ModelChangeStartsFresh(t *testing.T) {
	dir := t.TempDir()
	svc := newReady(t, dir, &keywordEmbedder{name: "old", dims: 4})
	upsertAll(t, svc, Item{ID: 1, Title: "Rust"})
	require.NoError(t, svc.SaveIndex(context.Background()))

	fresh := newReady(t, dir, &keywordEmbedder{name: "new", dims: 4})
	st := fresh.Stats()
	assert.Equal(t, 0, st.Entries)
	assert.NotEmpty(t, st.ResetReason)
}

func TestService_DimensionChangeStartsFresh(t *testing.T) {
	dir := t.TempDir()
	svc := newReady(t, dir, &keywordEmbedder{name: "m", dims: 4})
	upsertAll(t, svc, Item{ID: 1, Title: "Rust"})
	require.NoError(t, svc.SaveIndex(context.Background()))

	fresh := newReady(t, dir, &keywordEmbedder{name: "m", dims: 3})
	assert.Equal(t, 0, fresh.Stats().Entries)
}

func TestService_VersionChangeStartsFresh(t *testing.T) {
	dir := t.TempDir()
	svc := newReady(t, dir, &keywordEmbedder{name: "m", dims: 4})
	upsertAll(t, svc, Item{ID: 1, Title: "Rust"})
	require.NoError(t, svc.SaveIndex(context.Background()))

	raw, err := os.ReadFile(svc.VectorPath())
	require.NoError(t, err)
	raw[0] = store.CurrentVersion + 1
	binary.LittleEndian.PutUint32(raw[43:47], crc32.ChecksumIEEE(raw[:43]))
	require.NoError(t, os.WriteFile(svc.VectorPath(), raw, 0644))

	fresh := newReady(t, dir, &keywordEmbedder{name: "m", dims: 4})
	st := fresh.Stats()
	assert.Equal(t, 0, st.Entries)
	assert.Contains(t, st.ResetReason, store.ErrVersionMismatch.Error())
}

func TestService_UnreadableStorageIsFatal(t *testing.T) {
	base := filepath.Join(t.TempDir(), "home")
	require.NoError(t, os.WriteFile(base, []byte("not a directory"), 0644))

	model := &keywordEmbedder{name: "m", dims: 4}
	svc := New(testConfig(base, model))
	err := svc.Initialize(context.Background())
	assert.ErrorIs(t, err, store.ErrIO)
	assert.False(t, svc.Stats().Initialized)
}

func TestService_RejectsNonFiniteEmbeddings(t *testing.T) {
	svc := newReady(t, t.TempDir(), &keywordEmbedder{name: "m", dims: 4})
	ctx := context.Background()

	var out []Outcome
	err := svc.WithIndexMut(ctx, func(m *Mutator) error {
		var err error
		out, err = m.UpsertBatch([]Item{{ID: 1, Title: "Rust"}, {ID: 2, Title: "glitch"}})
		return err
	})
	assert.ErrorIs(t, err, store.ErrNonFiniteVector)
	assert.Equal(t, []Outcome{Embedded, Failed}, out)
	assert.Equal(t, 1, svc.Stats().Entries)

	_, err = svc.SearchWithScores(ctx, "glitch", nil, -1, 0)
	assert.ErrorIs(t, err, store.ErrNonFiniteVector)
}

func TestService_CorruptFileIsFatal(t *testing.T) {
	dir := t.TempDir()
	svc := newReady(t, dir, &keywordEmbedder{name: "m", dims: 4})
	upsertAll(t, svc, Item{ID: 1, Title: "Rust"})
	require.NoError(t, svc.SaveIndex(context.Background()))

	raw, err := os.ReadFile(svc.VectorPath())
	require.NoError(t, err)
	raw[5] ^= 0x01
	require.NoError(t, os.WriteFile(svc.VectorPath(), raw, 0644))

	model := &keywordEmbedder{name: "m", dims: 4}
	broken := New(testConfig(dir, model))
	err = broken.Initialize(context.Background())
	assert.ErrorIs(t, err, store.ErrChecksumMismatch)
	assert.True(t, model.closed.Load())
	assert.False(t, broken.Stats().Initialized)
}

func TestService_Reset(t *testing.T) {
	svc := newReady(t, t.TempDir(), &keywordEmbedder{name: "m", dims: 4})
	upsertAll(t, svc, Item{ID: 1, Title: "Rust"})
	require.NoError(t, svc.SaveIndex(context.Background()))

	require.NoError(t, svc.Reset(context.Background()))
	assert.Equal(t, 0, svc.Stats().Entries)
	_, err := os.Stat(svc.VectorPath())
	assert.True(t, os.IsNotExist(err))
}

func TestService_ClosedRejectsCalls(t *testing.T) {
	svc := newReady(t, t.TempDir(), &keywordEmbedder{name: "m", dims: 4})
	require.NoError(t, svc.Close())

	_, err := svc.Search(context.Background(), "rust", nil, 0, 0)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, svc.Initialize(context.Background()), ErrNotInitialized)
}
