package search

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/personakb/persona/ai/provider"
	"github.com/personakb/persona/errors"
	"github.com/personakb/persona/kb/types"
)

// StrategyRewrite names the query-rewrite strategy.
const StrategyRewrite = "rewrite"

const (
	rewriteCacheTTL     = 10 * time.Minute
	rewriteCacheCleanup = 30 * time.Minute
)

// RewriteStrategy asks the provider to restructure the natural-language
// query into an index-friendly form, then runs the lexical strategy on it.
// Rewrites are cached per query text; a provider failure falls back to the
// original query rather than failing the strategy.
type RewriteStrategy struct {
	provider provider.Client
	lexical  *LexicalStrategy
	cache    *gocache.Cache
	logger   *zap.SugaredLogger
}

// NewRewriteStrategy creates the rewrite strategy
func NewRewriteStrategy(client provider.Client, lexical *LexicalStrategy, logger *zap.SugaredLogger) *RewriteStrategy {
	return &RewriteStrategy{
		provider: client,
		lexical:  lexical,
		cache:    gocache.New(rewriteCacheTTL, rewriteCacheCleanup),
		logger:   logger,
	}
}

// Name implements kb.SearchStrategy.
func (s *RewriteStrategy) Name() string { return StrategyRewrite }

// Search implements kb.SearchStrategy.
func (s *RewriteStrategy) Search(ctx context.Context, query string, k int, filters types.SearchFilters) ([]*types.SearchResult, error) {
	if s.provider == nil {
		return nil, errors.Wrap(errors.ErrStrategyUnavailable, "no rewrite provider configured")
	}

	indexQuery := s.rewrittenQuery(ctx, query)
	results, err := s.lexical.Search(ctx, indexQuery, k, filters)
	if err != nil {
		return nil, err
	}
	for _, result := range results {
		result.Source = StrategyRewrite
	}
	return results, nil
}

func (s *RewriteStrategy) rewrittenQuery(ctx context.Context, query string) string {
	if cached, ok := s.cache.Get(query); ok {
		return cached.(string)
	}

	rewrite, err := s.provider.RewriteQuery(ctx, query)
	if err != nil || rewrite == nil || rewrite.IndexQuery == "" {
		if s.logger != nil {
			s.logger.Warnw("Query rewrite failed, using original query",
				"query", query, "error", err)
		}
		return query
	}

	s.cache.Set(query, rewrite.IndexQuery, gocache.DefaultExpiration)
	return rewrite.IndexQuery
}
