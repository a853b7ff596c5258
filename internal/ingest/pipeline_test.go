package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diyoloji/support-engine/internal/embedding"
	"github.com/diyoloji/support-engine/internal/observability"
	"github.com/diyoloji/support-engine/internal/vectorindex"
)

func newTestPipeline(t *testing.T) (*Pipeline, *vectorindex.MemoryIndex) {
	t.Helper()
	index, err := vectorindex.NewMemoryIndex(vectorindex.MetricCosine)
	require.NoError(t, err)
	pipe, err := NewPipeline(PipelineConfig{ChunkSize: 1200, ChunkOverlap: 200},
		embedding.NewMockEmbedder(8), index, observability.Nop())
	require.NoError(t, err)
	return pipe, index
}

func TestPipeline_RunIngestsAndCounts(t *testing.T) {
	pipe, index := newTestPipeline(t)

	records := []Record{
		{URL: "https://example.com/fatura-itiraz", Category: "fatura", ContentText: strings.Repeat("f", 1500)},
		{URL: "https://example.com/roaming", Category: "yurtdisi", Chunks: []string{"roaming a", "roaming b"}},
		{URL: "", ContentText: "no url"},
		{URL: "https://example.com/empty"},
	}

	result, err := pipe.Run(context.Background(), records, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Records)
	assert.Equal(t, 2, result.Skipped)
	// 1500 chars at window 1200/200 gives chunks at offsets 0 and 1000.
	assert.Equal(t, 4, result.Chunks)
	assert.Equal(t, 2, result.PerCategory["billing"])
	assert.Equal(t, 2, result.PerCategory["roaming"])

	count, err := index.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}

func TestPipeline_MapsCategoryFromSlugNotURL(t *testing.T) {
	pipe, _ := newTestPipeline(t)

	records := []Record{
		// Slug alone decides when nothing else matches.
		{URL: "https://example.com/destek/123", Subcategory: "yurtdisi-paketler", Chunks: []string{"a"}},
		// Alias key is honored the same way.
		{URL: "https://example.com/destek/456", SubSlug: "kapsama-haritasi", Chunks: []string{"b"}},
		// URL tokens must not leak into the match: "whatsapp" would hit the
		// app rules, but the scraped category says tarife.
		{URL: "https://example.com/whatsapp-destek", Category: "tarife", Chunks: []string{"c"}},
	}

	result, err := pipe.Run(context.Background(), records, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.PerCategory["roaming"])
	assert.Equal(t, 1, result.PerCategory["coverage"])
	assert.Equal(t, 1, result.PerCategory["package"])
	assert.Zero(t, result.PerCategory["app"])
}

func TestPipeline_RunIsIdempotent(t *testing.T) {
	pipe, index := newTestPipeline(t)

	records := []Record{
		{URL: "https://example.com/fatura-itiraz", Category: "fatura", Chunks: []string{"a", "b"}},
	}

	for i := 0; i < 2; i++ {
		_, err := pipe.Run(context.Background(), records, nil)
		require.NoError(t, err)
	}

	count, err := index.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestPipeline_ProgressCallback(t *testing.T) {
	pipe, _ := newTestPipeline(t)

	var seen []int
	records := []Record{
		{URL: "https://example.com/a", Chunks: []string{"x"}},
		{URL: "https://example.com/b", Chunks: []string{"y"}},
	}
	_, err := pipe.Run(context.Background(), records, func(done, total int) {
		seen = append(seen, done)
		assert.Equal(t, 2, total)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, seen)
}

func TestPipeline_CancelledContext(t *testing.T) {
	pipe, _ := newTestPipeline(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pipe.Run(ctx, []Record{{URL: "u", Chunks: []string{"x"}}}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewPipeline_Validation(t *testing.T) {
	index, err := vectorindex.NewMemoryIndex(vectorindex.MetricCosine)
	require.NoError(t, err)

	_, err = NewPipeline(PipelineConfig{}, nil, index, nil)
	assert.Error(t, err)

	_, err = NewPipeline(PipelineConfig{}, embedding.NewMockEmbedder(8), nil, nil)
	assert.Error(t, err)
}
