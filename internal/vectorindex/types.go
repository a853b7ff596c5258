package vectorindex

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"fmt"
)

// Metric identifies the similarity metric the index was built with.
// Score normalization downstream depends on knowing which one is active.
type Metric string

const (
	MetricCosine Metric = "COSINE"
	MetricIP     Metric = "IP"
	MetricL2     Metric = "L2"
)

// Valid reports whether m is one of the supported metrics.
func (m Metric) Valid() bool {
	switch m {
	case MetricCosine, MetricIP, MetricL2:
		return true
	}
	return false
}

// MaxTextLen is the longest chunk text the index stores, in runes. Longer
// texts are cut at upsert so pre-chunked input cannot overflow the text field.
const MaxTextLen = 32760

func clampText(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxTextLen {
		return s
	}
	return string(runes[:MaxTextLen])
}

// ChunkDoc is one embedded chunk row as stored in the index.
type ChunkDoc struct {
	ID         int64
	URL        string
	Category   string
	ChunkIndex int
	Text       string
	Vector     []float32
}

// SearchHit is one nearest-neighbor result with its raw metric score.
type SearchHit struct {
	ID         int64
	URL        string
	Category   string
	ChunkIndex int
	Text       string
	Score      float64
}

// Index is the vector store contract. Upsert must replace rows that share
// an ID, and Search must honor an optional category filter.
type Index interface {
	EnsureReady(ctx context.Context) error
	Upsert(ctx context.Context, docs []ChunkDoc) error
	DeleteByID(ctx context.Context, ids []int64) error
	Search(ctx context.Context, vector []float32, topK int, category string) ([]SearchHit, error)
	Count(ctx context.Context) (int64, error)
	Close() error
}

// RowID derives a stable primary key for a chunk from its identity triple.
// Re-ingesting the same source therefore overwrites rather than duplicates.
func RowID(url, category string, chunkIndex int) int64 {
	sum := md5.Sum([]byte(fmt.Sprintf("%s|%s|%d", url, category, chunkIndex)))
	v := binary.BigEndian.Uint64(sum[:8])
	return int64(v % uint64(1<<63-1))
}
