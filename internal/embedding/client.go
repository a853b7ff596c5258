package embedding

import (
	"context"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"

	"github.com/diyoloji/support-engine/internal/observability"
)

// Hard cap on the byte length of a single embedding input. Oversized chunks
// are truncated rather than rejected so one bad page cannot stall a run.
const maxInputBytes = 32760

// Embedder turns texts into dense vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// ClientConfig configures the OpenAI-backed embedder.
type ClientConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
	BatchSize int
	// Normalize scales every vector to unit length. Required when the
	// vector index uses inner product as its metric.
	Normalize bool
	Timeout   time.Duration
}

// Client calls the OpenAI embeddings API in batches, preserving input order.
type Client struct {
	api    *openai.Client
	config ClientConfig
	logger *observability.Logger
}

// NewClient builds an embedder from config, applying defaults for the
// batch size and timeout.
func NewClient(cfg ClientConfig, logger *observability.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding: API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding: model is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = observability.DefaultLogger()
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		api:    openai.NewClientWithConfig(apiCfg),
		config: cfg,
		logger: logger,
	}, nil
}

// Dimension returns the configured vector width.
func (c *Client) Dimension() int {
	return c.config.Dimension
}

// Embed embeds texts in batches and returns one vector per input, in input
// order. Empty inputs are sent as a single space so positions stay aligned.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.config.BatchSize {
		end := start + c.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := make([]string, end-start)
		for i, t := range texts[start:end] {
			batch[i] = sanitizeInput(t)
		}

		batchCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		resp, err := c.api.CreateEmbeddings(batchCtx, openai.EmbeddingRequest{
			Input: batch,
			Model: openai.EmbeddingModel(c.config.Model),
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("embedding batch %d-%d: %w", start, end, err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("embedding batch %d-%d: got %d vectors for %d inputs", start, end, len(resp.Data), len(batch))
		}

		for _, item := range resp.Data {
			vec := make([]float32, len(item.Embedding))
			for i, v := range item.Embedding {
				vec[i] = float32(v)
			}
			if c.config.Normalize {
				l2Normalize(vec)
			}
			vectors = append(vectors, vec)
		}

		c.logger.Debug().
			Int("batch_start", start).
			Int("batch_size", len(batch)).
			Msg("Embedded batch")
	}

	return vectors, nil
}

func sanitizeInput(text string) string {
	if text == "" {
		return " "
	}
	if len(text) > maxInputBytes {
		// Back off to the nearest rune start so the cut never produces
		// invalid UTF-8.
		cut := maxInputBytes
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		return text[:cut]
	}
	return text
}

func l2Normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}
