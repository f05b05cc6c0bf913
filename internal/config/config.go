package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port          int              `json:"port"`
	DBDSN         string           `json:"db_dsn"`
	VectorStore   string           `json:"vector_store"`
	CORSAllowlist []string         `json:"cors_allowlist"`
	LogConfig     logger.LogConfig `json:"log_config"`
	Search        SearchConfig     `json:"search"`
	Fetch         FetchConfig      `json:"fetch"`
	Research      ResearchConfig   `json:"research"`
	AI            AIConfig         `json:"ai"`
	Refresh       RefreshConfig    `json:"refresh"`
}

type SearchConfig struct {
	Provider   string          `json:"provider"`
	MaxResults int             `json:"max_results"`
	Args       json.RawMessage `json:"args"`
}

type FetchConfig struct {
	TimeoutSeconds int     `json:"timeout_seconds"`
	MaxRetries     int     `json:"max_retries"`
	RateLimitRPS   float64 `json:"rate_limit_rps"`
	UserAgent      string  `json:"user_agent"`
	MinTextLen     int     `json:"min_text_len"`
}

type ResearchConfig struct {
	MaxPages       int    `json:"max_pages"`
	PerDomain      int    `json:"per_domain"`
	MaxTotalChunks int    `json:"max_total_chunks"`
	ChunkSize      int    `json:"chunk_size"`
	ChunkOverlap   int    `json:"chunk_overlap"`
	TopK           int    `json:"top_k"`
	Workers        int    `json:"workers"`
	TokenEncoding  string `json:"token_encoding"`
}

type ModelConfig struct {
	Provider string          `json:"provider"`
	Model    string          `json:"model"`
	Args     json.RawMessage `json:"args"`
}

type AIConfig struct {
	Chat ModelConfig `json:"chat"`
	// ChatFallback lists models tried in order when the primary chat model
	// fails. Any provider/model mix works for chat.
	ChatFallback []ModelConfig `json:"chat_fallback"`
	Embedding    ModelConfig   `json:"embedding"`
	// EmbeddingFallback entries must serve the same embedding model as the
	// primary, otherwise namespaces end up with mixed vector spaces.
	EmbeddingFallback []ModelConfig `json:"embedding_fallback"`
	EmbedBatchSize    int           `json:"embed_batch_size"`
	TimeoutSeconds    int           `json:"timeout_seconds"`
	CacheSize         int           `json:"cache_size"`
	CacheTTLHours     int           `json:"cache_ttl_hours"`
}

type RefreshConfig struct {
	Enable      bool   `json:"enable"`
	Cron        string `json:"cron"`
	MaxAgeHours int    `json:"max_age_hours"`
	Batch       int    `json:"batch"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.VectorStore == "" {
		cfg.VectorStore = "postgres"
	}
	if cfg.VectorStore != "postgres" && cfg.VectorStore != "memory" {
		return nil, fmt.Errorf("vector_store must be postgres or memory")
	}
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("db_dsn is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Search.Provider == "" {
		cfg.Search.Provider = "duckduckgo"
	}
	if cfg.Search.MaxResults <= 0 {
		cfg.Search.MaxResults = 20
	}
	if cfg.Fetch.TimeoutSeconds <= 0 {
		cfg.Fetch.TimeoutSeconds = 15
	}
	if cfg.Fetch.MaxRetries < 0 {
		return nil, fmt.Errorf("fetch.max_retries must not be negative")
	}
	if cfg.Fetch.MaxRetries == 0 {
		cfg.Fetch.MaxRetries = 2
	}
	if cfg.Fetch.RateLimitRPS <= 0 {
		cfg.Fetch.RateLimitRPS = 2
	}
	if cfg.Fetch.MinTextLen <= 0 {
		cfg.Fetch.MinTextLen = 1200
	}
	if cfg.Research.MaxPages <= 0 {
		cfg.Research.MaxPages = 20
	}
	if cfg.Research.PerDomain <= 0 {
		cfg.Research.PerDomain = 2
	}
	if cfg.Research.MaxTotalChunks <= 0 {
		cfg.Research.MaxTotalChunks = 200
	}
	if cfg.Research.ChunkSize <= 0 {
		cfg.Research.ChunkSize = 800
	}
	if cfg.Research.ChunkOverlap <= 0 {
		cfg.Research.ChunkOverlap = 120
	}
	if cfg.Research.ChunkOverlap >= cfg.Research.ChunkSize {
		return nil, fmt.Errorf("research.chunk_overlap must be smaller than chunk_size")
	}
	if cfg.Research.TopK <= 0 {
		cfg.Research.TopK = 6
	}
	if cfg.Research.Workers <= 0 {
		cfg.Research.Workers = 4
	}
	if cfg.AI.Chat.Provider == "" || cfg.AI.Chat.Model == "" {
		return nil, fmt.Errorf("ai.chat provider and model are required")
	}
	if cfg.AI.Embedding.Provider == "" || cfg.AI.Embedding.Model == "" {
		return nil, fmt.Errorf("ai.embedding provider and model are required")
	}
	for i, m := range cfg.AI.ChatFallback {
		if m.Provider == "" || m.Model == "" {
			return nil, fmt.Errorf("ai.chat_fallback[%d]: provider and model are required", i)
		}
	}
	for i, m := range cfg.AI.EmbeddingFallback {
		if m.Provider == "" || m.Model == "" {
			return nil, fmt.Errorf("ai.embedding_fallback[%d]: provider and model are required", i)
		}
	}
	if cfg.AI.EmbedBatchSize <= 0 {
		cfg.AI.EmbedBatchSize = 64
	}
	if cfg.AI.TimeoutSeconds <= 0 {
		cfg.AI.TimeoutSeconds = 60
	}
	if cfg.AI.CacheSize < 0 {
		cfg.AI.CacheSize = 0
	}
	if cfg.AI.CacheSize > 0 && cfg.AI.CacheTTLHours <= 0 {
		cfg.AI.CacheTTLHours = 24
	}
	if cfg.Refresh.Enable {
		if cfg.Refresh.Cron == "" {
			cfg.Refresh.Cron = "0 3 * * *"
		}
		if cfg.Refresh.MaxAgeHours <= 0 {
			cfg.Refresh.MaxAgeHours = 7 * 24
		}
		if cfg.Refresh.Batch <= 0 {
			cfg.Refresh.Batch = 5
		}
	}
	return &cfg, nil
}
