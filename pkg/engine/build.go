package engine

import (
	"context"
	"fmt"

	"github.com/diyoloji/support-engine/internal/answer"
	"github.com/diyoloji/support-engine/internal/cache"
	"github.com/diyoloji/support-engine/internal/classify"
	"github.com/diyoloji/support-engine/internal/config"
	"github.com/diyoloji/support-engine/internal/embedding"
	"github.com/diyoloji/support-engine/internal/history"
	"github.com/diyoloji/support-engine/internal/ingest"
	"github.com/diyoloji/support-engine/internal/llm"
	"github.com/diyoloji/support-engine/internal/observability"
	"github.com/diyoloji/support-engine/internal/retrieval"
	"github.com/diyoloji/support-engine/internal/safety"
	"github.com/diyoloji/support-engine/internal/vectorindex"
)

// Build constructs a fully wired engine from configuration. The returned
// cleanup closes every resource the build opened; call it on shutdown.
func Build(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Engine, func(), error) {
	if logger == nil {
		logger = observability.DefaultLogger()
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Engine, func(), error) {
		cleanup()
		return nil, nil, err
	}

	metric := vectorindex.Metric(cfg.Milvus.Metric)

	embedder, err := embedding.NewClient(embedding.ClientConfig{
		APIKey:    cfg.OpenAI.APIKey,
		BaseURL:   cfg.OpenAI.BaseURL,
		Model:     cfg.OpenAI.EmbedModel,
		Dimension: cfg.OpenAI.EmbedDimension,
		BatchSize: cfg.OpenAI.EmbedBatchSize,
		Normalize: metric == vectorindex.MetricIP,
	}, logger)
	if err != nil {
		return fail(fmt.Errorf("build embedder: %w", err))
	}

	var index vectorindex.Index
	if cfg.Milvus.InMemory {
		index, err = vectorindex.NewMemoryIndex(metric)
	} else {
		index, err = vectorindex.NewMilvusIndex(vectorindex.MilvusConfig{
			BaseURL:    cfg.Milvus.BaseURL,
			Token:      cfg.Milvus.Token,
			Collection: cfg.Milvus.Collection,
			Dimension:  cfg.OpenAI.EmbedDimension,
			Metric:     metric,
		}, logger)
	}
	if err != nil {
		return fail(fmt.Errorf("build vector index: %w", err))
	}
	closers = append(closers, func() { index.Close() })
	if err := index.EnsureReady(ctx); err != nil {
		return fail(fmt.Errorf("prepare vector index: %w", err))
	}

	chat, err := llm.NewOpenAIClient(llm.Config{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Model:       cfg.OpenAI.ChatModel,
		Temperature: cfg.OpenAI.Temperature,
	}, logger)
	if err != nil {
		return fail(fmt.Errorf("build chat client: %w", err))
	}

	retriever, err := retrieval.NewRetriever(retrieval.Config{
		Metric:         metric,
		MaxDocs:        cfg.Retrieval.MaxContextDocs,
		ScoreThreshold: cfg.Retrieval.ScoreThreshold,
	}, embedder, index, logger)
	if err != nil {
		return fail(fmt.Errorf("build retriever: %w", err))
	}

	pipeline, err := ingest.NewPipeline(ingest.PipelineConfig{
		ChunkSize:    cfg.Ingestion.ChunkSize,
		ChunkOverlap: cfg.Ingestion.ChunkOverlap,
	}, embedder, index, logger)
	if err != nil {
		return fail(fmt.Errorf("build ingestion pipeline: %w", err))
	}

	var store history.Store
	if cfg.History.Enabled {
		sqlite, err := history.NewSQLiteStore(cfg.History.DBPath, logger)
		if err != nil {
			return fail(fmt.Errorf("open history store: %w", err))
		}
		closers = append(closers, func() { sqlite.Close() })
		store = sqlite
	}

	answers, closeCache, err := buildAnswerCache(cfg.Cache)
	if err != nil {
		return fail(err)
	}
	if closeCache != nil {
		closers = append(closers, closeCache)
	}

	mode := safety.ModeSoft
	if cfg.Safety.Mode == "hard" {
		mode = safety.ModeHard
	}

	eng, err := New(Params{
		Classifier: classify.NewClassifier(chat, logger),
		Generator:  answer.NewGenerator(chat, logger),
		Retriever:  retriever,
		Pipeline:   pipeline,
		History:    store,
		Safety:     safety.Policy{Filter: safety.KeywordFilter{}, Mode: mode},
		Answers:    answers,
		MaxTurns:   cfg.History.MaxTurns,
		TTLDays:    cfg.History.TTLDays,
		Logger:     logger,
	})
	if err != nil {
		return fail(err)
	}
	return eng, cleanup, nil
}

func buildAnswerCache(cfg config.CacheConfig) (*cache.AnswerCache, func(), error) {
	ttl := cfg.TTL
	switch cfg.Driver {
	case "none":
		return nil, nil, nil
	case "redis":
		client, err := cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect answer cache: %w", err)
		}
		return cache.NewAnswerCache(client, ttl), func() { client.Close() }, nil
	default:
		client := cache.NewMemoryClient(cfg.MaxItems)
		return cache.NewAnswerCache(client, ttl), func() { client.Close() }, nil
	}
}
