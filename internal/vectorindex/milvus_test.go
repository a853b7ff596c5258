package vectorindex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diyoloji/support-engine/internal/observability"
)

type milvusCall struct {
	path    string
	payload map[string]any
}

func newMilvusServer(t *testing.T, hasCollection bool, calls *[]milvusCall) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		*calls = append(*calls, milvusCall{path: r.URL.Path, payload: payload})

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v2/vectordb/collections/has":
			json.NewEncoder(w).Encode(map[string]any{"code": 0, "data": map[string]any{"has": hasCollection}})
		case "/v2/vectordb/entities/search":
			json.NewEncoder(w).Encode(map[string]any{"code": 0, "data": []map[string]any{
				{"id": 7, "url": "https://example.com/a", "category": "billing", "chunk_index": 2, "text": "fatura", "distance": 0.91},
			}})
		case "/v2/vectordb/entities/query":
			json.NewEncoder(w).Encode(map[string]any{"code": 0, "data": []map[string]any{{"count(*)": 42}}})
		default:
			json.NewEncoder(w).Encode(map[string]any{"code": 0, "data": map[string]any{}})
		}
	}))
}

func newTestMilvus(t *testing.T, baseURL string) *MilvusIndex {
	t.Helper()
	idx, err := NewMilvusIndex(MilvusConfig{
		BaseURL:    baseURL,
		Collection: "support_chunks",
		Dimension:  4,
		Metric:     MetricCosine,
	}, observability.Nop())
	require.NoError(t, err)
	return idx
}

func TestMilvusIndex_EnsureReadyCreatesMissingCollection(t *testing.T) {
	var calls []milvusCall
	srv := newMilvusServer(t, false, &calls)
	defer srv.Close()

	idx := newTestMilvus(t, srv.URL)
	require.NoError(t, idx.EnsureReady(context.Background()))

	paths := make([]string, len(calls))
	for i, c := range calls {
		paths[i] = c.path
	}
	assert.Equal(t, []string{
		"/v2/vectordb/collections/has",
		"/v2/vectordb/collections/create",
		"/v2/vectordb/collections/load",
	}, paths)
}

func TestMilvusIndex_EnsureReadySkipsExistingCollection(t *testing.T) {
	var calls []milvusCall
	srv := newMilvusServer(t, true, &calls)
	defer srv.Close()

	idx := newTestMilvus(t, srv.URL)
	require.NoError(t, idx.EnsureReady(context.Background()))

	for _, c := range calls {
		assert.NotEqual(t, "/v2/vectordb/collections/create", c.path)
	}
}

func TestMilvusIndex_UpsertDeletesThenInserts(t *testing.T) {
	var calls []milvusCall
	srv := newMilvusServer(t, true, &calls)
	defer srv.Close()

	idx := newTestMilvus(t, srv.URL)
	err := idx.Upsert(context.Background(), []ChunkDoc{
		{ID: 1, URL: "u", Category: "billing", Text: "t", Vector: []float32{1, 0, 0, 0}},
	})
	require.NoError(t, err)

	require.Len(t, calls, 2)
	assert.Equal(t, "/v2/vectordb/entities/delete", calls[0].path)
	assert.Equal(t, "id in [1]", calls[0].payload["filter"])
	assert.Equal(t, "/v2/vectordb/entities/insert", calls[1].path)
}

func TestMilvusIndex_DeleteByIDChunks(t *testing.T) {
	var calls []milvusCall
	srv := newMilvusServer(t, true, &calls)
	defer srv.Close()

	idx := newTestMilvus(t, srv.URL)
	ids := make([]int64, deleteChunkSize+1)
	for i := range ids {
		ids[i] = int64(i)
	}
	require.NoError(t, idx.DeleteByID(context.Background(), ids))
	assert.Len(t, calls, 2)
}

func TestMilvusIndex_SearchFilterAndConsistency(t *testing.T) {
	var calls []milvusCall
	srv := newMilvusServer(t, true, &calls)
	defer srv.Close()

	idx := newTestMilvus(t, srv.URL)
	hits, err := idx.Search(context.Background(), []float32{1, 0, 0, 0}, 5, "billing")
	require.NoError(t, err)

	require.Len(t, calls, 1)
	assert.Equal(t, `category == "billing"`, calls[0].payload["filter"])
	assert.Equal(t, "Strong", calls[0].payload["consistencyLevel"])

	require.Len(t, hits, 1)
	assert.Equal(t, int64(7), hits[0].ID)
	assert.Equal(t, 2, hits[0].ChunkIndex)
	assert.InDelta(t, 0.91, hits[0].Score, 1e-9)
}

func TestMilvusIndex_SearchRequestsChunkIndex(t *testing.T) {
	var calls []milvusCall
	srv := newMilvusServer(t, true, &calls)
	defer srv.Close()

	idx := newTestMilvus(t, srv.URL)
	_, err := idx.Search(context.Background(), []float32{1, 0, 0, 0}, 5, "")
	require.NoError(t, err)

	require.Len(t, calls, 1)
	fields, ok := calls[0].payload["outputFields"].([]any)
	require.True(t, ok)
	assert.Contains(t, fields, "chunk_index")
}

func TestMilvusIndex_UpsertClampsOversizedText(t *testing.T) {
	var calls []milvusCall
	srv := newMilvusServer(t, true, &calls)
	defer srv.Close()

	idx := newTestMilvus(t, srv.URL)
	err := idx.Upsert(context.Background(), []ChunkDoc{
		{ID: 1, URL: "u", Category: "billing", Text: strings.Repeat("a", MaxTextLen+100), Vector: []float32{1, 0, 0, 0}},
	})
	require.NoError(t, err)

	require.Len(t, calls, 2)
	rows, ok := calls[1].payload["data"].([]any)
	require.True(t, ok)
	require.Len(t, rows, 1)
	row, ok := rows[0].(map[string]any)
	require.True(t, ok)
	assert.Len(t, row["text"], MaxTextLen)
}

func TestMilvusIndex_SearchNoCategoryOmitsFilter(t *testing.T) {
	var calls []milvusCall
	srv := newMilvusServer(t, true, &calls)
	defer srv.Close()

	idx := newTestMilvus(t, srv.URL)
	_, err := idx.Search(context.Background(), []float32{1, 0, 0, 0}, 5, "")
	require.NoError(t, err)

	_, hasFilter := calls[0].payload["filter"]
	assert.False(t, hasFilter)
}

func TestMilvusIndex_Count(t *testing.T) {
	var calls []milvusCall
	srv := newMilvusServer(t, true, &calls)
	defer srv.Close()

	idx := newTestMilvus(t, srv.URL)
	count, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), count)
}

func TestMilvusIndex_ServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"code": 1100, "message": "schema mismatch"})
	}))
	defer srv.Close()

	idx := newTestMilvus(t, srv.URL)
	err := idx.EnsureReady(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema mismatch")
}

func TestNewMilvusIndex_Validation(t *testing.T) {
	_, err := NewMilvusIndex(MilvusConfig{Collection: "c", Dimension: 4, Metric: MetricCosine}, nil)
	assert.Error(t, err)

	_, err = NewMilvusIndex(MilvusConfig{BaseURL: "http://x", Dimension: 4, Metric: MetricCosine}, nil)
	assert.Error(t, err)

	_, err = NewMilvusIndex(MilvusConfig{BaseURL: "http://x", Collection: "c", Metric: MetricCosine}, nil)
	assert.Error(t, err)

	_, err = NewMilvusIndex(MilvusConfig{BaseURL: "http://x", Collection: "c", Dimension: 4, Metric: "DOT"}, nil)
	assert.Error(t, err)
}
