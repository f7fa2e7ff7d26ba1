package store

import (
	"crypto/sha256"
	"encoding/binary"
	"hash/crc32"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testModel(name string) ModelID {
	return sha256.Sum256([]byte(name))
}

func sampleIndex(t *testing.T) *Index {
	t.Helper()
	ix := NewIndex(3)
	require.NoError(t, ix.Insert(1, 100, []float32{1, 0, 0}))
	require.NoError(t, ix.Insert(2, 200, []float32{0, 1, 0}))
	require.NoError(t, ix.Insert(3, 300, []float32{0, 0, 1}))
	return ix
}

func savedStorage(t *testing.T) *VectorStorage {
	t.Helper()
	s := NewVectorStorage(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, s.Save(sampleIndex(t), testModel("m")))
	return s
}

func TestVectorStorage_RoundTrip(t *testing.T) {
	s := savedStorage(t)
	exists, err := s.Exists()
	require.NoError(t, err)
	assert.True(t, exists)

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, int64(headerSize+3*(16+12)), info.Size())

	ix, skipped, err := s.Load(testModel("m"), 3)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	assert.Equal(t, []uint64{1, 2, 3}, ix.IDs())

	want := sampleIndex(t)
	for id, e := range want.All() {
		got, ok := ix.Get(id)
		require.True(t, ok)
		assert.Equal(t, e.ContentHash, got.ContentHash)
		assert.Equal(t, e.Embedding, got.Embedding)
	}
}

func TestVectorStorage_HeaderLayout(t *testing.T) {
	s := savedStorage(t)
	h, err := s.ReadHeader()
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, h.Version)
	assert.Equal(t, testModel("m"), h.ModelID)
	assert.Equal(t, uint16(3), h.Dimensions)
	assert.Equal(t, uint64(3), h.EntryCount)

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, crc32.ChecksumIEEE(raw[:43]), binary.LittleEndian.Uint32(raw[43:47]))
}

func TestVectorStorage_EmptyIndex(t *testing.T) {
	s := NewVectorStorage(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, s.Save(NewIndex(4), testModel("m")))

	ix, _, err := s.Load(testModel("m"), 4)
	require.NoError(t, err)
	assert.Equal(t, 0, ix.Len())
}

func TestVectorStorage_AnyHeaderByteFlipFailsChecksum(t *testing.T) {
	s := savedStorage(t)
	orig, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	for i := 0; i < headerSize; i++ {
		corrupt := append([]byte(nil), orig...)
		corrupt[i] ^= 0xFF
		require.NoError(t, os.WriteFile(s.Path(), corrupt, 0644))

		_, _, err := s.Load(testModel("m"), 3)
		assert.ErrorIs(t, err, ErrChecksumMismatch, "byte %d", i)
	}
}

// rewriteHeader mutates header fields and re-signs the header so only the
// semantic check under test fails.
func rewriteHeader(t *testing.T, path string, mutate func(b []byte)) {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	mutate(raw)
	binary.LittleEndian.PutUint32(raw[43:47], crc32.ChecksumIEEE(raw[:43]))
	require.NoError(t, os.WriteFile(path, raw, 0644))
}

func TestVectorStorage_VersionMismatch(t *testing.T) {
	s := savedStorage(t)
	rewriteHeader(t, s.Path(), func(b []byte) { b[0] = CurrentVersion + 1 })

	_, _, err := s.Load(testModel("m"), 3)
	assert.ErrorIs(t, err, ErrVersionMismatch)
	assert.True(t, IsRecoverable(err))
}

func TestVectorStorage_VersionZeroIsInvalid(t *testing.T) {
	s := savedStorage(t)
	rewriteHeader(t, s.Path(), func(b []byte) { b[0] = 0 })

	_, _, err := s.Load(testModel("m"), 3)
	assert.ErrorIs(t, err, ErrInvalidFormat)
	assert.False(t, IsRecoverable(err))
}

func TestVectorStorage_ModelMismatch(t *testing.T) {
	s := savedStorage(t)
	_, _, err := s.Load(testModel("other"), 3)
	assert.ErrorIs(t, err, ErrModelMismatch)
	assert.True(t, IsRecoverable(err))
}

func TestVectorStorage_DimensionMismatch(t *testing.T) {
	s := savedStorage(t)
	_, _, err := s.Load(testModel("m"), 768)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.True(t, IsRecoverable(err))
}

func TestVectorStorage_Truncated(t *testing.T) {
	s := savedStorage(t)
	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.Path(), raw[:len(raw)-5], 0644))

	_, _, err = s.Load(testModel("m"), 3)
	assert.ErrorIs(t, err, ErrInvalidFormat)

	require.NoError(t, os.WriteFile(s.Path(), raw[:20], 0644))
	_, _, err = s.Load(testModel("m"), 3)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestVectorStorage_SkipsZeroNormEntries(t *testing.T) {
	s := savedStorage(t)
	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	// Zero the embedding of the second entry.
	off := headerSize + (16 + 12) + 16
	for i := off; i < off+12; i++ {
		raw[i] = 0
	}
	require.NoError(t, os.WriteFile(s.Path(), raw, 0644))

	ix, skipped, err := s.Load(testModel("m"), 3)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, []uint64{1, 3}, ix.IDs())
}

func TestVectorStorage_SkipsNonFiniteEntries(t *testing.T) {
	s := savedStorage(t)
	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	off := headerSize + 2*(16+12) + 16
	binary.LittleEndian.PutUint32(raw[off:], math.Float32bits(float32(math.NaN())))
	require.NoError(t, os.WriteFile(s.Path(), raw, 0644))

	ix, skipped, err := s.Load(testModel("m"), 3)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, []uint64{1, 2}, ix.IDs())
}

func TestVectorStorage_SkipsDuplicateIDs(t *testing.T) {
	s := savedStorage(t)
	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	// Give the second entry the first entry's id.
	binary.LittleEndian.PutUint64(raw[headerSize+(16+12):], 1)
	require.NoError(t, os.WriteFile(s.Path(), raw, 0644))

	ix, skipped, err := s.Load(testModel("m"), 3)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, []uint64{1, 3}, ix.IDs())
	e, _ := ix.Get(1)
	assert.Equal(t, uint64(100), e.ContentHash, "first occurrence wins")
}

func TestVectorStorage_MissingFile(t *testing.T) {
	s := NewVectorStorage(filepath.Join(t.TempDir(), "nope", FileName))
	exists, err := s.Exists()
	require.NoError(t, err)
	assert.False(t, exists)
	_, _, err = s.Load(testModel("m"), 3)
	assert.ErrorIs(t, err, ErrIO)
	assert.NoError(t, s.Remove())
}

func TestVectorStorage_ExistsReportsStatFailure(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(parent, []byte("x"), 0644))

	s := NewVectorStorage(filepath.Join(parent, FileName))
	exists, err := s.Exists()
	assert.False(t, exists)
	assert.ErrorIs(t, err, ErrIO)
}

func TestVectorStorage_SaveReplacesAtomically(t *testing.T) {
	s := savedStorage(t)
	ix := NewIndex(3)
	require.NoError(t, ix.Insert(9, 900, []float32{1, 1, 1}))
	require.NoError(t, s.Save(ix, testModel("m")))

	loaded, _, err := s.Load(testModel("m"), 3)
	require.NoError(t, err)
	assert.Equal(t, []uint64{9}, loaded.IDs())

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}
