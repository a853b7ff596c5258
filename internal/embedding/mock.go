package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// MockEmbedder produces deterministic pseudo-random unit vectors from the
// input text. Identical texts always map to identical vectors, which is
// enough for pipeline and retrieval tests without network access.
type MockEmbedder struct {
	Dim   int
	Calls int
}

// NewMockEmbedder returns a mock with the given dimension (defaults to 8).
func NewMockEmbedder(dim int) *MockEmbedder {
	if dim <= 0 {
		dim = 8
	}
	return &MockEmbedder{Dim: dim}
}

func (m *MockEmbedder) Dimension() int { return m.Dim }

func (m *MockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.Calls++
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = m.vectorFor(text)
	}
	return vectors, nil
}

func (m *MockEmbedder) vectorFor(text string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, m.Dim)
	var sum float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float64(int64(seed>>11)) / float64(1<<52)
		vec[i] = float32(v)
		sum += v * v
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
