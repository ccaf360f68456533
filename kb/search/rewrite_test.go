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
)

func TestRewriteStrategy_UsesRewrittenQuery(t *testing.T) {
	f := setupSearchFixture(t)
	client := &fakeProvider{
		rewriteFn: func(string) (*provider.QueryRewrite, error) {
			return &provider.QueryRewrite{IndexQuery: "espresso"}, nil
		},
	}
	strategy := NewRewriteStrategy(client, NewLexicalStrategy(f.db, nil), nil)
	ctx := testutil.Ctx(t)

	f.addClaim(t, "c1", "I drink espresso every morning")

	// The raw query shares no words with the claim; only the rewrite hits.
	results, err := strategy.Search(ctx, "what hot beverage do I like", 10, types.SearchFilters{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].Claim.ID)
	assert.Equal(t, StrategyRewrite, results[0].Source)
}

func TestRewriteStrategy_FallsBackToOriginalQuery(t *testing.T) {
	f := setupSearchFixture(t)
	client := &fakeProvider{
		rewriteFn: func(string) (*provider.QueryRewrite, error) {
			return nil, errors.New("provider down")
		},
	}
	strategy := NewRewriteStrategy(client, NewLexicalStrategy(f.db, nil), nil)
	ctx := testutil.Ctx(t)

	f.addClaim(t, "c1", "I drink espresso every morning")

	results, err := strategy.Search(ctx, "espresso", 10, types.SearchFilters{})
	require.NoError(t, err, "rewrite failure degrades to the original query")
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].Claim.ID)
}

func TestRewriteStrategy_CachesRewrites(t *testing.T) {
	f := setupSearchFixture(t)
	var calls int32
	client := &fakeProvider{
		rewriteFn: func(string) (*provider.QueryRewrite, error) {
			atomic.AddInt32(&calls, 1)
			return &provider.QueryRewrite{IndexQuery: "espresso"}, nil
		},
	}
	strategy := NewRewriteStrategy(client, NewLexicalStrategy(f.db, nil), nil)
	ctx := testutil.Ctx(t)

	f.addClaim(t, "c1", "I drink espresso every morning")

	for i := 0; i < 3; i++ {
		_, err := strategy.Search(ctx, "favorite drink", 10, types.SearchFilters{})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "identical queries hit the rewrite cache")
}

func TestRewriteStrategy_NoProvider(t *testing.T) {
	f := setupSearchFixture(t)
	strategy := NewRewriteStrategy(nil, NewLexicalStrategy(f.db, nil), nil)

	_, err := strategy.Search(testutil.Ctx(t), "anything", 10, types.SearchFilters{})
	assert.ErrorIs(t, err, errors.ErrStrategyUnavailable)
}
