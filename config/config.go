// Package config holds the Persona engine configuration, loaded with Viper
// from TOML files and environment variables.
package config

// Config represents the core Persona configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Search     SearchConfig     `mapstructure:"search"`
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	Provider   ProviderConfig   `mapstructure:"provider"`
	Pools      PoolsConfig      `mapstructure:"pools"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// SearchConfig configures the search orchestrator
type SearchConfig struct {
	// Strategies enabled by default when a query does not name its own subset
	Strategies []string `mapstructure:"strategies"`

	// RRFK is the Reciprocal Rank Fusion constant
	RRFK int `mapstructure:"rrf_k"`

	// RerankEnabled turns on the optional rerank pass over the fused top-N
	RerankEnabled bool `mapstructure:"rerank_enabled"`

	// RerankTopN is how many fused results are sent to the reranker
	RerankTopN int `mapstructure:"rerank_top_n"`

	// StrategyTimeoutSeconds bounds each strategy's execution per query
	StrategyTimeoutSeconds int `mapstructure:"strategy_timeout_seconds"`

	// ScorePoolSize is the lexical pre-filter pool for batch relevance scoring
	ScorePoolSize int `mapstructure:"score_pool_size"`

	// ScoreBatchSize is how many candidates go into one scoring call
	ScoreBatchSize int `mapstructure:"score_batch_size"`
}

// EmbeddingsConfig configures embedding generation and caching
type EmbeddingsConfig struct {
	Model               string  `mapstructure:"model"`
	Dimensions          int     `mapstructure:"dimensions"`
	FillConcurrency     int     `mapstructure:"fill_concurrency"`
	BatchTimeoutSeconds int     `mapstructure:"batch_timeout_seconds"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
}

// ProviderConfig configures the external LLM/embedding collaborator
type ProviderConfig struct {
	// Enabled gates all provider-backed strategies (vector, rewrite, score, rerank)
	Enabled bool `mapstructure:"enabled"`

	// BaseURL of an OpenAI-compatible API (empty = api.openai.com)
	BaseURL string `mapstructure:"base_url"`

	// APIKey is bound to PERSONA_PROVIDER_API_KEY
	APIKey string `mapstructure:"api_key"`

	// ChatModel used for rewrite, batch scoring and rerank calls
	ChatModel string `mapstructure:"chat_model"`

	// RequestsPerMinute rate-limits outbound provider calls
	RequestsPerMinute int `mapstructure:"requests_per_minute"`

	// TimeoutSeconds bounds each provider HTTP call
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// PoolsConfig sizes the injected worker pools
type PoolsConfig struct {
	// SearchWorkers bounds concurrent strategy execution per query
	SearchWorkers int `mapstructure:"search_workers"`

	// EmbeddingWorkers bounds concurrent embedding cache fills
	EmbeddingWorkers int `mapstructure:"embedding_workers"`
}
