package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/diyoloji/support-engine/internal/observability"
)

// Rows per delete filter. Very long "id in [...]" expressions are rejected
// by the server, so deletes are issued in slices of this size.
const deleteChunkSize = 2000

// MilvusConfig configures the REST client for a Milvus v2 deployment.
type MilvusConfig struct {
	BaseURL    string
	Token      string
	Collection string
	Dimension  int
	Metric     Metric
	Timeout    time.Duration
}

// MilvusIndex talks to the Milvus HTTP API (v2 vectordb endpoints).
type MilvusIndex struct {
	config     MilvusConfig
	httpClient *http.Client
	logger     *observability.Logger
}

// NewMilvusIndex validates config and builds a client. It does not touch
// the network; call EnsureReady before the first read or write.
func NewMilvusIndex(cfg MilvusConfig, logger *observability.Logger) (*MilvusIndex, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("vectorindex: milvus base URL is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("vectorindex: collection name is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("vectorindex: dimension must be positive, got %d", cfg.Dimension)
	}
	if !cfg.Metric.Valid() {
		return nil, fmt.Errorf("vectorindex: unsupported metric %q", cfg.Metric)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = observability.DefaultLogger()
	}

	return &MilvusIndex{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}, nil
}

type milvusResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (m *MilvusIndex) post(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", path, err)
	}

	url := strings.TrimRight(m.config.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+m.config.Token)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("milvus %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read milvus %s response: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("milvus %s: status %d: %s", path, resp.StatusCode, truncateBody(raw))
	}

	var parsed milvusResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode milvus %s response: %w", path, err)
	}
	if parsed.Code != 0 {
		return nil, fmt.Errorf("milvus %s: code %d: %s", path, parsed.Code, parsed.Message)
	}
	return parsed.Data, nil
}

func truncateBody(raw []byte) string {
	const limit = 300
	if len(raw) > limit {
		return string(raw[:limit]) + "..."
	}
	return string(raw)
}

// EnsureReady creates the collection, its index, and loads it. Every step is
// idempotent so calling this on startup against an existing deployment is safe.
func (m *MilvusIndex) EnsureReady(ctx context.Context) error {
	data, err := m.post(ctx, "/v2/vectordb/collections/has", map[string]any{
		"collectionName": m.config.Collection,
	})
	if err != nil {
		return err
	}
	var has struct {
		Has bool `json:"has"`
	}
	if err := json.Unmarshal(data, &has); err != nil {
		return fmt.Errorf("decode collection existence: %w", err)
	}

	if !has.Has {
		if err := m.createCollection(ctx); err != nil {
			return err
		}
		m.logger.Info().
			Str("collection", m.config.Collection).
			Int("dimension", m.config.Dimension).
			Str("metric", string(m.config.Metric)).
			Msg("Created vector collection")
	}

	if _, err := m.post(ctx, "/v2/vectordb/collections/load", map[string]any{
		"collectionName": m.config.Collection,
	}); err != nil {
		return err
	}
	return nil
}

func (m *MilvusIndex) createCollection(ctx context.Context) error {
	schema := map[string]any{
		"autoId":             false,
		"enableDynamicField": false,
		"fields": []map[string]any{
			{"fieldName": "id", "dataType": "Int64", "isPrimary": true},
			{"fieldName": "url", "dataType": "VarChar", "elementTypeParams": map[string]any{"max_length": 1024}},
			{"fieldName": "category", "dataType": "VarChar", "elementTypeParams": map[string]any{"max_length": 64}},
			{"fieldName": "chunk_index", "dataType": "Int64"},
			{"fieldName": "text", "dataType": "VarChar", "elementTypeParams": map[string]any{"max_length": MaxTextLen}},
			{"fieldName": "vector", "dataType": "FloatVector", "elementTypeParams": map[string]any{"dim": m.config.Dimension}},
		},
	}
	indexParams := []map[string]any{
		{
			"fieldName":  "vector",
			"indexName":  "vector_idx",
			"metricType": string(m.config.Metric),
		},
	}

	_, err := m.post(ctx, "/v2/vectordb/collections/create", map[string]any{
		"collectionName": m.config.Collection,
		"schema":         schema,
		"indexParams":    indexParams,
	})
	return err
}

type milvusRow struct {
	ID         int64     `json:"id"`
	URL        string    `json:"url"`
	Category   string    `json:"category"`
	ChunkIndex int64     `json:"chunk_index"`
	Text       string    `json:"text"`
	Vector     []float32 `json:"vector"`
}

// Upsert deletes any rows sharing the incoming IDs and inserts the new
// rows, making re-ingestion of a source replace its previous chunks.
func (m *MilvusIndex) Upsert(ctx context.Context, docs []ChunkDoc) error {
	if len(docs) == 0 {
		return nil
	}

	ids := make([]int64, len(docs))
	rows := make([]milvusRow, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
		rows[i] = milvusRow{
			ID:         doc.ID,
			URL:        doc.URL,
			Category:   doc.Category,
			ChunkIndex: int64(doc.ChunkIndex),
			Text:       clampText(doc.Text),
			Vector:     doc.Vector,
		}
	}

	if err := m.DeleteByID(ctx, ids); err != nil {
		return err
	}
	_, err := m.post(ctx, "/v2/vectordb/entities/insert", map[string]any{
		"collectionName": m.config.Collection,
		"data":           rows,
	})
	if err != nil {
		return err
	}

	m.logger.Debug().
		Int("rows", len(rows)).
		Str("collection", m.config.Collection).
		Msg("Upserted vector rows")
	return nil
}

// DeleteByID removes rows by primary key, chunking the filter expression.
func (m *MilvusIndex) DeleteByID(ctx context.Context, ids []int64) error {
	for start := 0; start < len(ids); start += deleteChunkSize {
		end := start + deleteChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		parts := make([]string, end-start)
		for i, id := range ids[start:end] {
			parts[i] = fmt.Sprintf("%d", id)
		}
		filter := fmt.Sprintf("id in [%s]", strings.Join(parts, ","))
		if _, err := m.post(ctx, "/v2/vectordb/entities/delete", map[string]any{
			"collectionName": m.config.Collection,
			"filter":         filter,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Search runs a nearest-neighbor query with strong consistency so rows
// written moments earlier are visible. An empty category means no filter.
func (m *MilvusIndex) Search(ctx context.Context, vector []float32, topK int, category string) ([]SearchHit, error) {
	if topK <= 0 {
		return nil, nil
	}

	payload := map[string]any{
		"collectionName":   m.config.Collection,
		"data":             [][]float32{vector},
		"annsField":        "vector",
		"limit":            topK,
		"outputFields":     []string{"id", "url", "category", "chunk_index", "text"},
		"consistencyLevel": "Strong",
	}
	if category != "" {
		payload["filter"] = fmt.Sprintf("category == %q", category)
	}

	data, err := m.post(ctx, "/v2/vectordb/entities/search", payload)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		ID         int64   `json:"id"`
		URL        string  `json:"url"`
		Category   string  `json:"category"`
		ChunkIndex int64   `json:"chunk_index"`
		Text       string  `json:"text"`
		Distance   float64 `json:"distance"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode search results: %w", err)
	}

	hits := make([]SearchHit, len(rows))
	for i, row := range rows {
		hits[i] = SearchHit{
			ID:         row.ID,
			URL:        row.URL,
			Category:   row.Category,
			ChunkIndex: int(row.ChunkIndex),
			Text:       row.Text,
			Score:      row.Distance,
		}
	}
	return hits, nil
}

// Count queries the collection row count.
func (m *MilvusIndex) Count(ctx context.Context) (int64, error) {
	data, err := m.post(ctx, "/v2/vectordb/entities/query", map[string]any{
		"collectionName": m.config.Collection,
		"filter":         "id >= 0",
		"outputFields":   []string{"count(*)"},
	})
	if err != nil {
		return 0, err
	}

	var rows []map[string]int64
	if err := json.Unmarshal(data, &rows); err != nil {
		return 0, fmt.Errorf("decode count result: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0]["count(*)"], nil
}

func (m *MilvusIndex) Close() error {
	m.httpClient.CloseIdleConnections()
	return nil
}
