package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/bmark/pkg/bookmark"
)

func TestEval_TagHierarchy(t *testing.T) {
	b := &bookmark.Bookmark{ID: 1, Title: "The Book", Tags: []string{"programming/rust"}}

	ok, err := Match("#programming", b)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Match("#rust", b)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = Match("#programming/rust", b)
	require.NoError(t, err)
	assert.True(t, ok)

	// Unprefixed terms match tags by substring.
	ok, err = Match("rust", b)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEval_ImplicitAnd(t *testing.T) {
	video := &bookmark.Bookmark{ID: 1, Title: "Rust Video"}
	guide := &bookmark.Bookmark{ID: 2, Title: "Rust Guide"}

	f := mustParse(t, "rust video")
	assert.True(t, Eval(f, video))
	assert.False(t, Eval(f, guide))
}

func TestEval_PrecedenceMatchesExplicitGrouping(t *testing.T) {
	bookmarks := []bookmark.Bookmark{
		{ID: 1, Title: "Rust", Tags: []string{"archived"}},
		{ID: 2, Title: "Rust"},
		{ID: 3, Title: "Go", Tags: []string{"archived"}},
		{ID: 4, Title: "Go"},
	}
	implicit := mustParse(t, "not #archived and rust")
	explicit := mustParse(t, "(not #archived) and rust")
	for i := range bookmarks {
		assert.Equal(t, Eval(explicit, &bookmarks[i]), Eval(implicit, &bookmarks[i]), bookmarks[i].ID)
	}
	assert.True(t, Eval(implicit, &bookmarks[1]))
	assert.False(t, Eval(implicit, &bookmarks[0]))
}

func TestEval_Fields(t *testing.T) {
	b := &bookmark.Bookmark{
		ID:          7,
		Title:       "Effective Go",
		Description: "Tips for writing clear, idiomatic Go code",
		Tags:        []string{"Go", "docs/official"},
		URL:         "https://go.dev/doc/effective_go",
	}

	tests := []struct {
		query string
		want  bool
	}{
		{".effective", true},
		{".idiomatic", false},
		{">idiomatic", true},
		{`>"clear, idiomatic"`, true},
		{":go.dev", true},
		{":github", false},
		{"#go", true},
		{"#GO", true},
		{"#docs", true},
		{"#official", false},
		{"official", true},
		{"EFFECTIVE", true},
		{"missing or go.dev", true},
		{"missing and go.dev", false},
		{"not missing", true},
		{`\#go`, false},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := Match(tt.query, b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEval_NilMatchesAll(t *testing.T) {
	assert.True(t, Eval(nil, &bookmark.Bookmark{}))
}

func TestSelect(t *testing.T) {
	bookmarks := []bookmark.Bookmark{
		{ID: 3, Title: "rust book"},
		{ID: 1, Title: "go book"},
		{ID: 2, Title: "rust video"},
	}
	got := Select(mustParse(t, "rust"), bookmarks)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(3), got[0].ID)
	assert.Equal(t, uint64(2), got[1].ID)
}

func TestTermString(t *testing.T) {
	f := mustParse(t, "#a or not .b")
	assert.Equal(t, `(#"a" or not ."b")`, f.String())
}
