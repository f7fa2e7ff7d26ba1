package embed

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveModel(t *testing.T) {
	spec, err := ResolveModel("")
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, spec.Name)
	assert.Equal(t, 768, spec.Dimensions)

	spec, err = ResolveModel("BGE-Small-EN-v1.5")
	require.NoError(t, err)
	assert.Equal(t, "bge-small-en-v1.5", spec.Name)
	assert.NotEmpty(t, spec.File.URL)
	assert.Positive(t, spec.File.MinSize)
}

func TestResolveModel_Unknown(t *testing.T) {
	_, err := ResolveModel("word2vec")
	assert.True(t, errors.Is(err, ErrInvalidModel))
	assert.Contains(t, err.Error(), "nomic-embed-text-v1.5")
}

func TestCatalog_UniqueFiles(t *testing.T) {
	seen := map[string]bool{}
	for _, spec := range catalog {
		assert.False(t, seen[spec.File.FileName], spec.File.FileName)
		seen[spec.File.FileName] = true
	}
	assert.Len(t, SupportedModels(), len(catalog))
}
