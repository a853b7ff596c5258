package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryIndex is an in-process Index backed by brute-force scan. It exists
// for tests and for running the engine without a Milvus deployment.
type MemoryIndex struct {
	mu     sync.RWMutex
	metric Metric
	docs   map[int64]ChunkDoc
}

// NewMemoryIndex builds an empty index scored with the given metric.
func NewMemoryIndex(metric Metric) (*MemoryIndex, error) {
	if !metric.Valid() {
		return nil, fmt.Errorf("vectorindex: unsupported metric %q", metric)
	}
	return &MemoryIndex{
		metric: metric,
		docs:   make(map[int64]ChunkDoc),
	}, nil
}

func (m *MemoryIndex) EnsureReady(context.Context) error { return nil }

func (m *MemoryIndex) Upsert(_ context.Context, docs []ChunkDoc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, doc := range docs {
		doc.Text = clampText(doc.Text)
		m.docs[doc.ID] = doc
	}
	return nil
}

func (m *MemoryIndex) DeleteByID(_ context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.docs, id)
	}
	return nil
}

func (m *MemoryIndex) Count(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.docs)), nil
}

func (m *MemoryIndex) Close() error { return nil }

// Search scans every stored document, scores it against the query vector,
// and returns the topK best in descending score order. For the L2 metric a
// smaller distance is better, so ordering is ascending there.
func (m *MemoryIndex) Search(_ context.Context, vector []float32, topK int, category string) ([]SearchHit, error) {
	if topK <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	// Map iteration order is random, so walk IDs in sorted order to keep
	// exact-score ties deterministic across runs.
	ids := make([]int64, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	hits := make([]SearchHit, 0, len(ids))
	for _, id := range ids {
		doc := m.docs[id]
		if category != "" && doc.Category != category {
			continue
		}
		if len(doc.Vector) != len(vector) {
			continue
		}
		hits = append(hits, SearchHit{
			ID:         doc.ID,
			URL:        doc.URL,
			Category:   doc.Category,
			ChunkIndex: doc.ChunkIndex,
			Text:       doc.Text,
			Score:      m.score(vector, doc.Vector),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if m.metric == MetricL2 {
			return hits[i].Score < hits[j].Score
		}
		return hits[i].Score > hits[j].Score
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (m *MemoryIndex) score(query, doc []float32) float64 {
	switch m.metric {
	case MetricL2:
		var sum float64
		for i := range query {
			d := float64(query[i]) - float64(doc[i])
			sum += d * d
		}
		return math.Sqrt(sum)
	case MetricIP:
		return dot(query, doc)
	default: // cosine
		qn := norm(query)
		dn := norm(doc)
		if qn == 0 || dn == 0 {
			return 0
		}
		return dot(query, doc) / (qn * dn)
	}
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
