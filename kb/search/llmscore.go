package search

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/personakb/persona/ai/provider"
	"github.com/personakb/persona/errors"
	"github.com/personakb/persona/kb/types"
	"github.com/personakb/persona/pool"
)

// StrategyLLMScore names the batch relevance-scoring strategy.
const StrategyLLMScore = "llm_score"

// LLMScoreStrategy pre-filters with the lexical strategy, then asks the
// provider to rate each candidate's relevance in fixed-size batches run
// through the worker pool. Candidates the provider does not rate keep their
// pre-filter score.
type LLMScoreStrategy struct {
	provider  provider.Client
	lexical   *LexicalStrategy
	scorePool *pool.Pool
	poolSize  int
	batchSize int
	logger    *zap.SugaredLogger
}

// LLMScoreParams carries the collaborators of an LLMScoreStrategy.
type LLMScoreParams struct {
	Provider provider.Client
	Lexical  *LexicalStrategy
	// ScorePool bounds concurrent scoring calls
	ScorePool *pool.Pool
	// PoolSize is how many lexical hits enter the scoring stage
	PoolSize int
	// BatchSize is how many candidates go into one provider call
	BatchSize int
	Logger    *zap.SugaredLogger
}

// NewLLMScoreStrategy creates the batch-scoring strategy
func NewLLMScoreStrategy(p LLMScoreParams) *LLMScoreStrategy {
	if p.PoolSize <= 0 {
		p.PoolSize = 100
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 15
	}
	return &LLMScoreStrategy{
		provider:  p.Provider,
		lexical:   p.Lexical,
		scorePool: p.ScorePool,
		poolSize:  p.PoolSize,
		batchSize: p.BatchSize,
		logger:    p.Logger,
	}
}

// Name implements kb.SearchStrategy.
func (s *LLMScoreStrategy) Name() string { return StrategyLLMScore }

// Search implements kb.SearchStrategy.
func (s *LLMScoreStrategy) Search(ctx context.Context, query string, k int, filters types.SearchFilters) ([]*types.SearchResult, error) {
	if s.provider == nil {
		return nil, errors.Wrap(errors.ErrStrategyUnavailable, "no scoring provider configured")
	}
	if k <= 0 {
		k = 10
	}

	candidates, err := s.lexical.Search(ctx, query, s.poolSize, filters)
	if err != nil {
		return nil, errors.Wrap(err, "scoring pre-filter")
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	scores := s.scoreBatches(ctx, query, candidates)

	results := make([]*types.SearchResult, len(candidates))
	for i, candidate := range candidates {
		score := candidate.Score
		if rated, ok := scores[candidate.Claim.ID]; ok {
			score = rated
		}
		results[i] = &types.SearchResult{
			Claim:       candidate.Claim,
			Score:       score,
			Source:      StrategyLLMScore,
			IsContested: candidate.IsContested,
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// scoreBatches fans candidate batches out over the pool and merges the
// returned ratings. A failed batch only loses its own ratings.
func (s *LLMScoreStrategy) scoreBatches(ctx context.Context, query string, candidates []*types.SearchResult) map[string]float64 {
	var (
		mu     sync.Mutex
		scores = make(map[string]float64, len(candidates))
	)

	var tasks []pool.Task
	for start := 0; start < len(candidates); start += s.batchSize {
		end := start + s.batchSize
		if end > len(candidates) {
			end = len(candidates)
		}

		batch := make([]provider.Candidate, end-start)
		for i, result := range candidates[start:end] {
			batch[i] = provider.Candidate{ID: result.Claim.ID, Text: result.Claim.Statement}
		}

		tasks = append(tasks, pool.Task{
			Name: "score-batch",
			Run: func(taskCtx context.Context) error {
				rated, err := s.provider.ScoreBatch(taskCtx, query, batch)
				if err != nil {
					return err
				}
				mu.Lock()
				for _, r := range rated {
					scores[r.ID] = r.Score
				}
				mu.Unlock()
				return nil
			},
		})
	}

	for _, err := range s.scorePool.RunAll(ctx, tasks) {
		if err != nil && s.logger != nil {
			s.logger.Warnw("Scoring batch failed, keeping pre-filter scores", "error", err)
		}
	}
	return scores
}
