package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diyoloji/support-engine/internal/embedding"
	"github.com/diyoloji/support-engine/internal/observability"
	"github.com/diyoloji/support-engine/internal/vectorindex"
)

func TestBoost_SingleClusterBonus(t *testing.T) {
	hits := []vectorindex.SearchHit{
		{ID: 1, Text: "şebeke ayarları", Score: 0.80},
		{ID: 2, Text: "fatura itiraz süreci", Score: 0.79},
	}

	boosted := Boost(hits, "faturama itiraz etmek istiyorum")
	require.Len(t, boosted, 2)
	// The billing hit gains +0.03 and overtakes the first hit.
	assert.Equal(t, int64(2), boosted[0].ID)
	assert.InDelta(t, 0.82, boosted[0].Score, 1e-9)
	assert.InDelta(t, 0.80, boosted[1].Score, 1e-9)
}

func TestBoost_BonusesStackAcrossClusters(t *testing.T) {
	hits := []vectorindex.SearchHit{
		{ID: 1, Text: "roaming paketinde fatura detayı", Score: 0.50},
	}

	boosted := Boost(hits, "roaming faturası neden yüksek")
	assert.InDelta(t, 0.56, boosted[0].Score, 1e-9)
}

func TestBoost_OneBonusPerCluster(t *testing.T) {
	// Two keywords from the same cluster still earn a single bonus.
	hits := []vectorindex.SearchHit{
		{ID: 1, Text: "fatura itiraz formu", Score: 0.50},
	}

	boosted := Boost(hits, "fatura itiraz")
	assert.InDelta(t, 0.53, boosted[0].Score, 1e-9)
}

func TestBoost_URLCountsAsContent(t *testing.T) {
	hits := []vectorindex.SearchHit{
		{ID: 1, URL: "https://example.com/fatura-odeme", Text: "detaylar", Score: 0.50},
	}

	boosted := Boost(hits, "fatura ödemesi gecikti")
	assert.InDelta(t, 0.53, boosted[0].Score, 1e-9)
}

func TestBoost_StableOnTies(t *testing.T) {
	hits := []vectorindex.SearchHit{
		{ID: 1, Text: "genel bilgi", Score: 0.50},
		{ID: 2, Text: "başka bilgi", Score: 0.50},
	}

	boosted := Boost(hits, "sorum var")
	assert.Equal(t, int64(1), boosted[0].ID)
	assert.Equal(t, int64(2), boosted[1].ID)
}

func TestBoost_FoldsTurkishCase(t *testing.T) {
	hits := []vectorindex.SearchHit{
		{ID: 1, Text: "FATURA İTİRAZ", Score: 0.50},
	}

	boosted := Boost(hits, "Fatura İtiraz")
	assert.InDelta(t, 0.53, boosted[0].Score, 1e-9)
}

func TestNormalizeAndFilter_CosineClampAndOrder(t *testing.T) {
	hits := []vectorindex.SearchHit{
		{ID: 1, Score: 1.2},
		{ID: 2, Score: 0.4},
		{ID: 3, Score: -1.5},
	}

	ranked := NormalizeAndFilter(hits, vectorindex.MetricCosine, 10, 0)
	require.Len(t, ranked, 3)
	assert.Equal(t, 1.0, ranked[0].NormalizedScore)
	assert.Equal(t, 0.4, ranked[1].NormalizedScore)
	assert.Equal(t, -1.0, ranked[2].NormalizedScore)
}

func TestNormalizeAndFilter_L2Transform(t *testing.T) {
	hits := []vectorindex.SearchHit{
		{ID: 1, Score: 3.0},
		{ID: 2, Score: 0.0},
		{ID: 3, Score: -0.5},
	}

	ranked := NormalizeAndFilter(hits, vectorindex.MetricL2, 10, 0)
	require.Len(t, ranked, 3)
	// Distance 0 and negative distances both map to similarity 1.
	assert.Equal(t, 1.0, ranked[0].NormalizedScore)
	assert.Equal(t, 1.0, ranked[1].NormalizedScore)
	assert.InDelta(t, 0.25, ranked[2].NormalizedScore, 1e-9)
	// Stable sort keeps input order between the two similarity-1 hits.
	assert.Equal(t, int64(2), ranked[0].ID)
	assert.Equal(t, int64(3), ranked[1].ID)
}

func TestNormalizeAndFilter_ThresholdDrops(t *testing.T) {
	hits := []vectorindex.SearchHit{
		{ID: 1, Score: 0.9},
		{ID: 2, Score: 0.1},
	}

	ranked := NormalizeAndFilter(hits, vectorindex.MetricCosine, 10, 0.2)
	require.Len(t, ranked, 1)
	assert.Equal(t, int64(1), ranked[0].ID)
}

func TestNormalizeAndFilter_ZeroThresholdKeepsNegatives(t *testing.T) {
	hits := []vectorindex.SearchHit{{ID: 1, Score: -0.4}}

	ranked := NormalizeAndFilter(hits, vectorindex.MetricCosine, 10, 0)
	require.Len(t, ranked, 1)
}

func TestNormalizeAndFilter_EmptyFilterFallsBackToOriginalOrder(t *testing.T) {
	hits := []vectorindex.SearchHit{
		{ID: 1, Score: 0.05},
		{ID: 2, Score: 0.10},
		{ID: 3, Score: 0.02},
	}

	ranked := NormalizeAndFilter(hits, vectorindex.MetricCosine, 2, 0.5)
	require.Len(t, ranked, 2)
	// Fallback keeps the original retrieval order, not the sorted order.
	assert.Equal(t, int64(1), ranked[0].ID)
	assert.Equal(t, int64(2), ranked[1].ID)
}

func TestNormalizeAndFilter_KeepTopTruncates(t *testing.T) {
	hits := []vectorindex.SearchHit{
		{ID: 1, Score: 0.90},
		{ID: 2, Score: 0.95},
	}

	ranked := NormalizeAndFilter(hits, vectorindex.MetricCosine, 1, 0)
	require.Len(t, ranked, 1)
	assert.Equal(t, int64(2), ranked[0].ID)
	assert.InDelta(t, 0.95, ranked[0].NormalizedScore, 1e-9)
}

func TestNormalizeAndFilter_EmptyInput(t *testing.T) {
	assert.Nil(t, NormalizeAndFilter(nil, vectorindex.MetricCosine, 5, 0.2))
}

func newTestRetriever(t *testing.T, maxDocs int, threshold float64) (*Retriever, *vectorindex.MemoryIndex, *embedding.MockEmbedder) {
	t.Helper()
	index, err := vectorindex.NewMemoryIndex(vectorindex.MetricCosine)
	require.NoError(t, err)
	embedder := embedding.NewMockEmbedder(8)
	r, err := NewRetriever(Config{
		Metric:         vectorindex.MetricCosine,
		MaxDocs:        maxDocs,
		ScoreThreshold: threshold,
	}, embedder, index, observability.Nop())
	require.NoError(t, err)
	return r, index, embedder
}

func TestRetriever_InitialK(t *testing.T) {
	r, _, _ := newTestRetriever(t, 6, 0)
	assert.Equal(t, 12, r.initialK())

	r, _, _ = newTestRetriever(t, 3, 0)
	assert.Equal(t, 12, r.initialK())

	r, _, _ = newTestRetriever(t, 10, 0)
	assert.Equal(t, 20, r.initialK())
}

func TestRetriever_RetrieveFindsIngestedChunk(t *testing.T) {
	r, index, embedder := newTestRetriever(t, 6, 0)
	ctx := context.Background()

	vecs, err := embedder.Embed(ctx, []string{"fatura itiraz adımları"})
	require.NoError(t, err)
	require.NoError(t, index.Upsert(ctx, []vectorindex.ChunkDoc{
		{ID: 1, URL: "https://example.com/fatura", Category: "billing", Text: "fatura itiraz adımları", Vector: vecs[0]},
	}))

	ranked, err := r.Retrieve(ctx, "fatura itiraz adımları", "billing")
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, "https://example.com/fatura", ranked[0].URL)
	// Identical query and chunk embed identically, and the billing cluster
	// bonus pushes the raw cosine score past 1 before clamping.
	assert.Equal(t, 1.0, ranked[0].NormalizedScore)
}

func TestRetriever_CategoryFilterExcludes(t *testing.T) {
	r, index, embedder := newTestRetriever(t, 6, 0)
	ctx := context.Background()

	vecs, err := embedder.Embed(ctx, []string{"roaming paketleri"})
	require.NoError(t, err)
	require.NoError(t, index.Upsert(ctx, []vectorindex.ChunkDoc{
		{ID: 1, URL: "u", Category: "roaming", Text: "roaming paketleri", Vector: vecs[0]},
	}))

	ranked, err := r.Retrieve(ctx, "roaming paketleri", "billing")
	require.NoError(t, err)
	assert.Empty(t, ranked)
}

func TestNewRetriever_Validation(t *testing.T) {
	index, err := vectorindex.NewMemoryIndex(vectorindex.MetricCosine)
	require.NoError(t, err)
	embedder := embedding.NewMockEmbedder(8)

	_, err = NewRetriever(Config{Metric: vectorindex.MetricCosine}, nil, index, nil)
	assert.Error(t, err)

	_, err = NewRetriever(Config{Metric: vectorindex.MetricCosine}, embedder, nil, nil)
	assert.Error(t, err)

	_, err = NewRetriever(Config{Metric: "DOT"}, embedder, index, nil)
	assert.Error(t, err)
}
