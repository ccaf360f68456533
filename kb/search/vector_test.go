package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/personakb/persona/errors"
	"github.com/personakb/persona/kb/storage/testutil"
	"github.com/personakb/persona/kb/types"
	"github.com/personakb/persona/pool"
)

func newVectorStrategy(f *fixture, client *fakeProvider) *VectorStrategy {
	return NewVectorStrategy(VectorStrategyParams{
		DB:           f.db,
		Claims:       f.claims,
		Embeddings:   f.embeddings,
		Provider:     client,
		FillPool:     pool.New(4, nil),
		BatchTimeout: 30 * time.Second,
	})
}

func TestVectorStrategy_RanksBySimilarity(t *testing.T) {
	f := setupSearchFixture(t)
	strategy := newVectorStrategy(f, &fakeProvider{})
	ctx := testutil.Ctx(t)

	f.addClaim(t, "c1", "espresso tastes great")
	f.addClaim(t, "c2", "weekend hiking plans")

	results, err := strategy.Search(ctx, "espresso tastes", 10, types.SearchFilters{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "c1", results[0].Claim.ID)
	assert.Equal(t, StrategyVector, results[0].Source)
}

func TestVectorStrategy_FillsMissingEmbeddingsLazily(t *testing.T) {
	f := setupSearchFixture(t)
	strategy := newVectorStrategy(f, &fakeProvider{})
	ctx := testutil.Ctx(t)

	f.addClaim(t, "c1", "espresso tastes great")
	f.addClaim(t, "c2", "weekend hiking plans")

	missing, err := f.embeddings.MissingForClaims(ctx, []string{"c1", "c2"})
	require.NoError(t, err)
	require.Len(t, missing, 2, "no embeddings before the first query")

	_, err = strategy.Search(ctx, "espresso", 10, types.SearchFilters{})
	require.NoError(t, err)

	missing, err = f.embeddings.MissingForClaims(ctx, []string{"c1", "c2"})
	require.NoError(t, err)
	assert.Empty(t, missing, "first query fills the cache for all filtered candidates")
}

func TestVectorStrategy_EditedClaimGetsReembedded(t *testing.T) {
	f := setupSearchFixture(t)
	strategy := newVectorStrategy(f, &fakeProvider{})
	ctx := testutil.Ctx(t)

	claim := f.addClaim(t, "c1", "espresso tastes great")
	_, err := strategy.Search(ctx, "espresso", 10, types.SearchFilters{})
	require.NoError(t, err)

	before, err := f.embeddings.GetByClaim(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, "espresso tastes great", before.Text)

	stmt := "green tea tastes great"
	_, err = f.claims.Edit(ctx, claim.ID, types.ClaimPatch{Statement: &stmt})
	require.NoError(t, err)

	_, err = f.embeddings.GetByClaim(ctx, claim.ID)
	require.True(t, errors.IsNotFound(err), "edit invalidates the cached vector")

	_, err = strategy.Search(ctx, "tea", 10, types.SearchFilters{})
	require.NoError(t, err)

	after, err := f.embeddings.GetByClaim(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, "green tea tastes great", after.Text, "next query embeds the new statement")
}

func TestVectorStrategy_NoProvider(t *testing.T) {
	f := setupSearchFixture(t)
	strategy := NewVectorStrategy(VectorStrategyParams{
		DB:         f.db,
		Claims:     f.claims,
		Embeddings: f.embeddings,
		FillPool:   pool.New(1, nil),
	})

	_, err := strategy.Search(testutil.Ctx(t), "anything", 10, types.SearchFilters{})
	assert.ErrorIs(t, err, errors.ErrStrategyUnavailable)
}

func TestVectorStrategy_PartialEmbedFailureDegrades(t *testing.T) {
	f := setupSearchFixture(t)
	client := &fakeProvider{
		embedFn: func(text string) ([]float32, error) {
			if text == "poisoned statement" {
				return nil, errors.New("provider rejected input")
			}
			return wordVector(text), nil
		},
	}
	strategy := newVectorStrategy(f, client)
	ctx := testutil.Ctx(t)

	f.addClaim(t, "c1", "espresso tastes great")
	f.addClaim(t, "c2", "poisoned statement")

	results, err := strategy.Search(ctx, "espresso", 10, types.SearchFilters{})
	require.NoError(t, err, "one failed fill must not fail the query")
	require.NotEmpty(t, results)
	assert.Equal(t, "c1", results[0].Claim.ID)
}

func TestVectorStrategy_SelectiveFilterStillFillsK(t *testing.T) {
	f := setupSearchFixture(t)
	strategy := newVectorStrategy(f, &fakeProvider{})
	ctx := testutil.Ctx(t)

	// Many near neighbors in the wrong domain must not crowd the one
	// matching claim out of the KNN window.
	workStatements := []string{
		"espresso ritual before standup",
		"espresso ritual with the office machine",
		"espresso ritual after code review",
		"espresso ritual during planning",
		"espresso ritual between meetings",
		"espresso ritual at the client site",
	}
	for i, stmt := range workStatements {
		claim := testutil.NewClaim(workID(i), stmt)
		claim.ContextDomain = types.DomainWork
		require.NoError(t, f.claims.Add(ctx, claim, nil, nil))
	}
	f.addClaim(t, "c-personal", "espresso on sundays")

	results, err := strategy.Search(ctx, "espresso ritual", 1, types.SearchFilters{
		Domains: []types.Domain{types.DomainPersonal},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c-personal", results[0].Claim.ID,
		"the nearest claim of the filtered set is returned")
}

func workID(i int) string {
	return "c-work-" + string(rune('a'+i))
}

func TestVectorStrategy_FiltersApply(t *testing.T) {
	f := setupSearchFixture(t)
	strategy := newVectorStrategy(f, &fakeProvider{})
	ctx := testutil.Ctx(t)

	f.addClaim(t, "c1", "espresso tastes great")
	retracted := f.addClaim(t, "c2", "espresso tastes bitter")
	require.NoError(t, f.claims.Delete(ctx, retracted.ID))

	results, err := strategy.Search(ctx, "espresso tastes", 10, types.SearchFilters{})
	require.NoError(t, err)
	assert.NotContains(t, resultIDs(results), "c2", "retracted claims never surface")
}
