package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "persona.db")

	// Search defaults
	v.SetDefault("search.strategies", []string{"lexical", "vector"})
	v.SetDefault("search.rrf_k", 60)
	v.SetDefault("search.rerank_enabled", false)
	v.SetDefault("search.rerank_top_n", 25)
	v.SetDefault("search.strategy_timeout_seconds", 60)
	v.SetDefault("search.score_pool_size", 100) // lexical pre-filter pool for batch scoring
	v.SetDefault("search.score_batch_size", 15)

	// Embeddings defaults
	v.SetDefault("embeddings.model", "text-embedding-3-small")
	v.SetDefault("embeddings.dimensions", 1536)
	v.SetDefault("embeddings.fill_concurrency", 4)
	v.SetDefault("embeddings.batch_timeout_seconds", 120)
	v.SetDefault("embeddings.similarity_threshold", 0.0)

	// Provider defaults
	v.SetDefault("provider.enabled", false)
	v.SetDefault("provider.base_url", "")
	v.SetDefault("provider.chat_model", "gpt-4o-mini")
	v.SetDefault("provider.requests_per_minute", 60)
	v.SetDefault("provider.timeout_seconds", 60)

	// Pool defaults
	v.SetDefault("pools.search_workers", 4)
	v.SetDefault("pools.embedding_workers", 4)
}
