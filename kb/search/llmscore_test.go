package search

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/personakb/persona/ai/provider"
	"github.com/personakb/persona/errors"
	"github.com/personakb/persona/kb/storage/testutil"
	"github.com/personakb/persona/kb/types"
	"github.com/personakb/persona/pool"
)

func newScoreStrategy(f *fixture, client *fakeProvider, batchSize int) *LLMScoreStrategy {
	return NewLLMScoreStrategy(LLMScoreParams{
		Provider:  client,
		Lexical:   NewLexicalStrategy(f.db, nil),
		ScorePool: pool.New(4, nil),
		PoolSize:  100,
		BatchSize: batchSize,
	})
}

func TestLLMScoreStrategy_ReordersByProviderScore(t *testing.T) {
	f := setupSearchFixture(t)
	client := &fakeProvider{
		scoreFn: func(_ string, candidates []provider.Candidate) ([]provider.Score, error) {
			scores := make([]provider.Score, len(candidates))
			for i, c := range candidates {
				score := 0.1
				if c.ID == "c2" {
					score = 0.95
				}
				scores[i] = provider.Score{ID: c.ID, Score: score}
			}
			return scores, nil
		},
	}
	strategy := newScoreStrategy(f, client, 15)
	ctx := testutil.Ctx(t)

	f.addClaim(t, "c1", "coffee is my morning coffee ritual coffee")
	f.addClaim(t, "c2", "I switched to decaf coffee")

	results, err := strategy.Search(ctx, "coffee", 10, types.SearchFilters{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "c2", results[0].Claim.ID, "provider rating outranks lexical order")
	assert.Equal(t, StrategyLLMScore, results[0].Source)
	assert.InDelta(t, 0.95, results[0].Score, 1e-9)
}

func TestLLMScoreStrategy_UnratedCandidatesKeepPrefilterScore(t *testing.T) {
	f := setupSearchFixture(t)
	client := &fakeProvider{
		scoreFn: func(_ string, candidates []provider.Candidate) ([]provider.Score, error) {
			// Rate only c2; c1 falls back to its lexical score.
			return []provider.Score{{ID: "c2", Score: 0.99}}, nil
		},
	}
	strategy := newScoreStrategy(f, client, 15)
	ctx := testutil.Ctx(t)

	f.addClaim(t, "c1", "coffee coffee coffee")
	f.addClaim(t, "c2", "one mention of coffee")

	results, err := strategy.Search(ctx, "coffee", 10, types.SearchFilters{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	ids := resultIDs(results)
	assert.Contains(t, ids, "c1")
	assert.Contains(t, ids, "c2")
}

func TestLLMScoreStrategy_BatchesCandidates(t *testing.T) {
	f := setupSearchFixture(t)
	var batches int32
	client := &fakeProvider{
		scoreFn: func(_ string, candidates []provider.Candidate) ([]provider.Score, error) {
			atomic.AddInt32(&batches, 1)
			assert.LessOrEqual(t, len(candidates), 2)
			return nil, nil
		},
	}
	strategy := newScoreStrategy(f, client, 2)
	ctx := testutil.Ctx(t)

	for _, id := range []string{"c1", "c2", "c3", "c4", "c5"} {
		f.addClaim(t, id, "shared topic coffee "+id)
	}

	_, err := strategy.Search(ctx, "coffee", 10, types.SearchFilters{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&batches), "5 candidates in batches of 2")
}

func TestLLMScoreStrategy_FailedBatchDegrades(t *testing.T) {
	f := setupSearchFixture(t)
	client := &fakeProvider{
		scoreFn: func(_ string, _ []provider.Candidate) ([]provider.Score, error) {
			return nil, errors.New("provider down")
		},
	}
	strategy := newScoreStrategy(f, client, 15)
	ctx := testutil.Ctx(t)

	f.addClaim(t, "c1", "coffee notes")

	results, err := strategy.Search(ctx, "coffee", 10, types.SearchFilters{})
	require.NoError(t, err, "scoring failure keeps the pre-filter ranking")
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].Claim.ID)
}

func TestLLMScoreStrategy_NoProvider(t *testing.T) {
	f := setupSearchFixture(t)
	strategy := NewLLMScoreStrategy(LLMScoreParams{
		Lexical:   NewLexicalStrategy(f.db, nil),
		ScorePool: pool.New(1, nil),
	})

	_, err := strategy.Search(testutil.Ctx(t), "anything", 10, types.SearchFilters{})
	assert.ErrorIs(t, err, errors.ErrStrategyUnavailable)
}
