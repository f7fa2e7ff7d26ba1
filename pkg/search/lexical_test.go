package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/bmark/pkg/bookmark"
)

func TestTerms(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"The Rust programming language", []string{"rust", "programming", "language"}},
		{"c++ and go-lang", []string{"go", "lang"}},
		{"rust, Rust; RUST", []string{"rust"}},
		{"a to of", []string{}},
		{"über café", []string{"über", "café"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Terms(tt.in))
		})
	}
}

func TestDescriptionLengthWeight(t *testing.T) {
	assert.Equal(t, float32(1.0), DescriptionLengthWeight(0))
	assert.Equal(t, float32(1.0), DescriptionLengthWeight(100))

	w200 := DescriptionLengthWeight(200)
	w400 := DescriptionLengthWeight(400)
	w800 := DescriptionLengthWeight(800)
	assert.Greater(t, w200, w400)
	assert.Greater(t, w400, w800)
	assert.InDelta(t, 0.419, w400, 0.001)
}

func TestScoreLexical_ShortDescriptionWins(t *testing.T) {
	short := "rust tips"
	long := "rust " + strings.Repeat("x", 395)
	require.Len(t, long, 400)

	got := ScoreLexical("rust", []bookmark.Bookmark{
		{ID: 1, Description: long},
		{ID: 2, Description: short + strings.Repeat(" ", 11)},
	})
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[0].ID)
	assert.Greater(t, got[0].TotalHits, got[1].TotalHits)
}

func TestScoreLexical_FieldWeights(t *testing.T) {
	got := ScoreLexical("rust", []bookmark.Bookmark{
		{ID: 1, Title: "Rust"},
		{ID: 2, Tags: []string{"rust/async"}},
		{ID: 3, Description: "about rust"},
		{ID: 4, Tags: []string{"trust"}},
	})
	require.Len(t, got, 3, "tags match exactly or hierarchically, not by substring")
	assert.Equal(t, []uint64{2, 1, 3}, []uint64{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, float32(TagWeight), got[0].TotalHits)
	assert.Equal(t, float32(TitleWeight), got[1].TotalHits)
}

func TestScoreLexical_MatchedTermsFirst(t *testing.T) {
	got := ScoreLexical("rust video", []bookmark.Bookmark{
		{ID: 1, Title: "Rust", Tags: []string{"rust"}},
		{ID: 2, Description: "rust video"},
		{ID: 3, Title: "Cooking"},
	})
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[0].ID)
	assert.Equal(t, 2, got[0].MatchedTerms)
	assert.Equal(t, 1, got[1].MatchedTerms)
	assert.Equal(t, float32(5), got[1].TotalHits)
}

func TestScoreLexical_NoTerms(t *testing.T) {
	assert.Empty(t, ScoreLexical("the a of", []bookmark.Bookmark{{ID: 1, Title: "the"}}))
}
