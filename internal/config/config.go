// Package config provides unified configuration loading for the support
// engine. Supports YAML files, a .env file, and environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the support engine.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	OpenAI        OpenAIConfig        `yaml:"openai"`
	Milvus        MilvusConfig        `yaml:"milvus"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
	Ingestion     IngestionConfig     `yaml:"ingestion"`
	History       HistoryConfig       `yaml:"history"`
	Safety        SafetyConfig        `yaml:"safety"`
	Cache         CacheConfig         `yaml:"cache"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// OpenAIConfig holds model and API settings.
type OpenAIConfig struct {
	APIKey         string  `yaml:"api_key"`
	BaseURL        string  `yaml:"base_url"`
	ChatModel      string  `yaml:"chat_model"`
	EmbedModel     string  `yaml:"embed_model"`
	EmbedDimension int     `yaml:"embed_dimension"`
	EmbedBatchSize int     `yaml:"embed_batch_size"`
	Temperature    float32 `yaml:"temperature"`
}

// MilvusConfig holds vector index connection settings.
type MilvusConfig struct {
	BaseURL    string `yaml:"base_url"`
	Token      string `yaml:"token"`
	Collection string `yaml:"collection"`
	Metric     string `yaml:"metric"`
	// InMemory swaps the remote index for the in-process one; used by the
	// CLI's offline mode and by tests.
	InMemory bool `yaml:"in_memory"`
}

// RetrievalConfig holds ranking and filtering settings.
type RetrievalConfig struct {
	MaxContextDocs int     `yaml:"max_context_docs"`
	ScoreThreshold float64 `yaml:"score_threshold"`
}

// IngestionConfig holds the chunking window.
type IngestionConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// HistoryConfig holds conversation history settings.
type HistoryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	DBPath   string `yaml:"db_path"`
	TTLDays  int    `yaml:"ttl_days"`
	MaxTurns int    `yaml:"max_turns"`
}

// SafetyConfig holds the input guard policy.
type SafetyConfig struct {
	// Mode is "soft" (flag and continue) or "hard" (refuse).
	Mode string `yaml:"mode"`
}

// CacheConfig holds answer cache settings.
type CacheConfig struct {
	Driver   string        `yaml:"driver"` // memory, redis, or none
	TTL      time.Duration `yaml:"ttl"`
	Redis    RedisConfig   `yaml:"redis"`
	MaxItems int           `yaml:"max_items"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // json or console
}

// embedDimensions pins the width each known embedding model produces. A
// mismatch between model and collection dimension corrupts every search,
// so it is a startup error, not a warning.
var embedDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// Load reads the optional YAML file at path, then a .env file if present,
// then environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	_ = godotenv.Load()
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns a configuration with development defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     120 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
		},
		OpenAI: OpenAIConfig{
			ChatModel:      "gpt-4o-mini",
			EmbedModel:     "text-embedding-3-small",
			EmbedDimension: 1536,
			EmbedBatchSize: 64,
		},
		Milvus: MilvusConfig{
			BaseURL:    "http://localhost:19530",
			Collection: "support_chunks",
			Metric:     "COSINE",
		},
		Retrieval: RetrievalConfig{
			MaxContextDocs: 6,
			ScoreThreshold: 0.20,
		},
		Ingestion: IngestionConfig{
			ChunkSize:    1200,
			ChunkOverlap: 200,
		},
		History: HistoryConfig{
			Enabled:  true,
			DBPath:   "./support_history.sqlite",
			TTLDays:  7,
			MaxTurns: 4,
		},
		Safety: SafetyConfig{
			Mode: "soft",
		},
		Cache: CacheConfig{
			Driver:   "memory",
			TTL:      15 * time.Minute,
			MaxItems: 10000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "console",
		},
	}
}

// Validate checks cross-field invariants. It is called by Load; callers
// constructing a Config by hand should call it themselves.
func (c *Config) Validate() error {
	if c.Ingestion.ChunkSize <= 0 {
		return fmt.Errorf("ingestion.chunk_size must be positive")
	}
	if c.Ingestion.ChunkOverlap < 0 {
		return fmt.Errorf("ingestion.chunk_overlap must not be negative")
	}
	if c.Ingestion.ChunkOverlap >= c.Ingestion.ChunkSize {
		return fmt.Errorf("ingestion.chunk_overlap (%d) must be smaller than chunk_size (%d)",
			c.Ingestion.ChunkOverlap, c.Ingestion.ChunkSize)
	}
	if c.Retrieval.MaxContextDocs <= 0 {
		return fmt.Errorf("retrieval.max_context_docs must be positive")
	}
	if c.Retrieval.ScoreThreshold < 0 || c.Retrieval.ScoreThreshold > 1 {
		return fmt.Errorf("retrieval.score_threshold must be in [0,1]")
	}

	switch c.Milvus.Metric {
	case "COSINE", "IP", "L2":
	default:
		return fmt.Errorf("milvus.metric must be one of COSINE, IP, L2; got %q", c.Milvus.Metric)
	}

	switch c.Safety.Mode {
	case "soft", "hard":
	default:
		return fmt.Errorf("safety.mode must be soft or hard; got %q", c.Safety.Mode)
	}

	switch c.Cache.Driver {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("cache.driver must be memory, redis, or none; got %q", c.Cache.Driver)
	}

	if c.OpenAI.EmbedDimension <= 0 {
		return fmt.Errorf("openai.embed_dimension must be positive")
	}
	if want, known := embedDimensions[c.OpenAI.EmbedModel]; known && want != c.OpenAI.EmbedDimension {
		return fmt.Errorf("openai.embed_model %s produces %d-dimensional vectors, config says %d",
			c.OpenAI.EmbedModel, want, c.OpenAI.EmbedDimension)
	}

	if c.History.Enabled && c.History.DBPath == "" {
		return fmt.Errorf("history.db_path is required when history is enabled")
	}
	if c.History.TTLDays <= 0 {
		return fmt.Errorf("history.ttl_days must be positive")
	}
	return nil
}

// Address returns the host:port the HTTP server binds to.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.OpenAI.BaseURL = v
	}
	if v := os.Getenv("OPENAI_CHAT_MODEL"); v != "" {
		cfg.OpenAI.ChatModel = v
	}
	if v := os.Getenv("OPENAI_EMBED_MODEL"); v != "" {
		cfg.OpenAI.EmbedModel = v
	}
	if v := os.Getenv("MILVUS_URI"); v != "" {
		cfg.Milvus.BaseURL = v
	}
	if v := os.Getenv("MILVUS_TOKEN"); v != "" {
		cfg.Milvus.Token = v
	}
	if v := os.Getenv("MILVUS_COLLECTION"); v != "" {
		cfg.Milvus.Collection = v
	}
	if v := os.Getenv("MILVUS_METRIC"); v != "" {
		cfg.Milvus.Metric = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.Redis.Addr = v
	}
	if v := os.Getenv("HISTORY_DB"); v != "" {
		cfg.History.DBPath = v
	}
	if v := os.Getenv("GUARD_MODE"); v != "" {
		cfg.Safety.Mode = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("SESSION_TTL_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil {
			cfg.History.TTLDays = days
		}
	}
	if v := os.Getenv("SCORE_THRESHOLD"); v != "" {
		if thr, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Retrieval.ScoreThreshold = thr
		}
	}
}
