package ingest

import (
	"context"
	"fmt"

	"github.com/diyoloji/support-engine/internal/category"
	"github.com/diyoloji/support-engine/internal/embedding"
	"github.com/diyoloji/support-engine/internal/observability"
	"github.com/diyoloji/support-engine/internal/vectorindex"
)

// PipelineConfig holds the chunking window used for non-pre-chunked records.
type PipelineConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

// Pipeline embeds scraped records and writes them into the vector index.
type Pipeline struct {
	config   PipelineConfig
	embedder embedding.Embedder
	index    vectorindex.Index
	logger   *observability.Logger
}

// Result summarizes one ingestion run.
type Result struct {
	Records     int
	Chunks      int
	Skipped     int
	PerCategory map[string]int
}

// NewPipeline wires an ingestion pipeline. Chunking defaults match the
// window the retrieval side was tuned against.
func NewPipeline(cfg PipelineConfig, embedder embedding.Embedder, index vectorindex.Index, logger *observability.Logger) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingest: embedder is required")
	}
	if index == nil {
		return nil, fmt.Errorf("ingest: vector index is required")
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1200
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if logger == nil {
		logger = observability.DefaultLogger()
	}
	return &Pipeline{
		config:   cfg,
		embedder: embedder,
		index:    index,
		logger:   logger,
	}, nil
}

// ProgressFunc is invoked after each record is processed.
type ProgressFunc func(done, total int)

// Run ingests records end to end. Records with no usable payload or no URL
// are counted as skipped. The index receives one upsert per record so a
// failing record does not discard the rest of the run.
func (p *Pipeline) Run(ctx context.Context, records []Record, progress ProgressFunc) (*Result, error) {
	result := &Result{PerCategory: make(map[string]int)}

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		texts := rec.Texts(p.config.ChunkSize, p.config.ChunkOverlap)
		if rec.URL == "" || len(texts) == 0 {
			result.Skipped++
			p.logger.Warn().
				Str("url", rec.URL).
				Str("kind", string(rec.Kind())).
				Msg("Skipping record with no usable content")
			if progress != nil {
				progress(i+1, len(records))
			}
			continue
		}

		tool := category.MapScraped(rec.Category, rec.Slug(), rec.Title, rec.Breadcrumb)
		vectors, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return result, fmt.Errorf("embed %s: %w", rec.URL, err)
		}

		docs := make([]vectorindex.ChunkDoc, len(texts))
		for j, text := range texts {
			docs[j] = vectorindex.ChunkDoc{
				ID:         vectorindex.RowID(rec.URL, string(tool), j),
				URL:        rec.URL,
				Category:   string(tool),
				ChunkIndex: j,
				Text:       text,
				Vector:     vectors[j],
			}
		}
		if err := p.index.Upsert(ctx, docs); err != nil {
			return result, fmt.Errorf("upsert %s: %w", rec.URL, err)
		}

		result.Records++
		result.Chunks += len(docs)
		result.PerCategory[string(tool)] += len(docs)
		if progress != nil {
			progress(i+1, len(records))
		}
	}

	p.logger.Info().
		Int("records", result.Records).
		Int("chunks", result.Chunks).
		Int("skipped", result.Skipped).
		Msg("Ingestion run complete")
	return result, nil
}
