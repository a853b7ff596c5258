package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/diyoloji/support-engine/internal/category"
	"github.com/diyoloji/support-engine/internal/embedding"
	"github.com/diyoloji/support-engine/internal/observability"
	"github.com/diyoloji/support-engine/internal/vectorindex"
)

// Bonus added to a hit's raw score per matched keyword cluster.
const clusterBonus = 0.03

// RankedHit is a search hit with its metric-independent relevance score.
type RankedHit struct {
	vectorindex.SearchHit
	NormalizedScore float64
}

// boostClusters groups query/content keywords by theme. A hit earns one
// bonus per cluster where some keyword occurs in both the query and the
// hit's text or URL. Bonuses stack across clusters.
var boostClusters = [][]string{
	{"devret", "devir", "sahip", "isim değiş"},
	{"fatura", "yüksek", "itiraz", "indirim", "ödeme", "odeme"},
	{"yurtdış", "roaming", "abroad", "uluslar"},
	{"kapsama", "çekim", "şebeke", "signal", "baz istasyonu"},
	{"dijital operatör", "uygulama", "giriş", "şifre", "login", "reset"},
}

// Boost adds keyword-overlap bonuses to raw scores and re-sorts descending.
// It operates on raw scores, so it only makes sense for metrics where larger
// is better; callers gate it on the metric. The sort is stable, preserving
// retrieval order on exact ties.
func Boost(hits []vectorindex.SearchHit, query string) []vectorindex.SearchHit {
	if len(hits) == 0 {
		return hits
	}
	q := category.Fold(query)

	boosted := make([]vectorindex.SearchHit, len(hits))
	copy(boosted, hits)
	for i := range boosted {
		content := category.Fold(boosted[i].Text + " " + boosted[i].URL)
		var bonus float64
		for _, cluster := range boostClusters {
			for _, kw := range cluster {
				if strings.Contains(q, kw) && strings.Contains(content, kw) {
					bonus += clusterBonus
					break
				}
			}
		}
		boosted[i].Score += bonus
	}

	sort.SliceStable(boosted, func(i, j int) bool {
		return boosted[i].Score > boosted[j].Score
	})
	return boosted
}

// NormalizeAndFilter converts raw scores into a "higher is better" scale,
// drops hits below threshold, and truncates to keepTop.
//
// Cosine and inner product scores are clamped to [-1,1]. L2 distances map
// through 1/(1+max(d,0)). The threshold applies only when positive. If it
// removes every hit, the first keepTop of the original input order are kept
// instead, so non-empty input never normalizes to nothing.
func NormalizeAndFilter(hits []vectorindex.SearchHit, metric vectorindex.Metric, keepTop int, threshold float64) []RankedHit {
	if len(hits) == 0 || keepTop <= 0 {
		return nil
	}

	normed := make([]RankedHit, len(hits))
	for i, h := range hits {
		normed[i] = RankedHit{SearchHit: h, NormalizedScore: normalize(h.Score, metric)}
	}

	sort.SliceStable(normed, func(i, j int) bool {
		return normed[i].NormalizedScore > normed[j].NormalizedScore
	})

	if threshold > 0 {
		filtered := normed[:0:len(normed)]
		for _, h := range normed {
			if h.NormalizedScore >= threshold {
				filtered = append(filtered, h)
			}
		}
		normed = filtered
	}

	if len(normed) == 0 {
		for i, h := range hits {
			if i == keepTop {
				break
			}
			normed = append(normed, RankedHit{SearchHit: h, NormalizedScore: normalize(h.Score, metric)})
		}
	}

	if len(normed) > keepTop {
		normed = normed[:keepTop]
	}
	return normed
}

func normalize(raw float64, metric vectorindex.Metric) float64 {
	if metric == vectorindex.MetricL2 {
		d := raw
		if d < 0 {
			d = 0
		}
		return 1.0 / (1.0 + d)
	}
	if raw > 1 {
		return 1
	}
	if raw < -1 {
		return -1
	}
	return raw
}

// Config tunes a Retriever.
type Config struct {
	Metric         vectorindex.Metric
	MaxDocs        int
	ScoreThreshold float64
}

// Retriever runs the embed, search, boost, normalize sequence for a query.
type Retriever struct {
	config   Config
	embedder embedding.Embedder
	index    vectorindex.Index
	logger   *observability.Logger
}

// NewRetriever validates config and wires the retrieval stage.
func NewRetriever(cfg Config, embedder embedding.Embedder, index vectorindex.Index, logger *observability.Logger) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("retrieval: embedder is required")
	}
	if index == nil {
		return nil, fmt.Errorf("retrieval: vector index is required")
	}
	if !cfg.Metric.Valid() {
		return nil, fmt.Errorf("retrieval: unsupported metric %q", cfg.Metric)
	}
	if cfg.MaxDocs <= 0 {
		cfg.MaxDocs = 6
	}
	if logger == nil {
		logger = observability.DefaultLogger()
	}
	return &Retriever{
		config:   cfg,
		embedder: embedder,
		index:    index,
		logger:   logger,
	}, nil
}

// initialK widens the first-pass search so re-ranking and filtering have
// candidates to discard.
func (r *Retriever) initialK() int {
	k := 2 * r.config.MaxDocs
	if k < 12 {
		k = 12
	}
	return k
}

// Retrieve embeds the query, searches the index (optionally filtered to one
// category), boosts when the metric allows it, and returns the filtered,
// normalized top hits.
func (r *Retriever) Retrieve(ctx context.Context, query, categoryFilter string) ([]RankedHit, error) {
	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: expected 1 vector, got %d", len(vectors))
	}

	hits, err := r.index.Search(ctx, vectors[0], r.initialK(), categoryFilter)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	if r.config.Metric != vectorindex.MetricL2 {
		hits = Boost(hits, query)
	}
	ranked := NormalizeAndFilter(hits, r.config.Metric, r.config.MaxDocs, r.config.ScoreThreshold)

	r.logger.Debug().
		Str("category", categoryFilter).
		Int("raw_hits", len(hits)).
		Int("ranked_hits", len(ranked)).
		Msg("Retrieved context candidates")
	return ranked, nil
}
