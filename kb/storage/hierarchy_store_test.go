package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/personakb/persona/errors"
	"github.com/personakb/persona/kb/storage/testutil"
	"github.com/personakb/persona/kb/types"
)

func strPtr(s string) *string { return &s }

func addNode(t *testing.T, store *HierarchyStore, kind types.NodeKind, id, name string, parentID *string) *types.Node {
	t.Helper()
	node := &types.Node{ID: id, Kind: kind, Name: name, ParentID: parentID, FriendlyID: id}
	require.NoError(t, store.Add(testutil.Ctx(t), node))
	return node
}

func TestHierarchyStore_AddAndGet(t *testing.T) {
	database := testutil.SetupTestDB(t)
	store := NewHierarchyStore(database, nil)
	ctx := testutil.Ctx(t)

	addNode(t, store, types.KindTag, "t1", "health", nil)
	addNode(t, store, types.KindTag, "t2", "fitness", strPtr("t1"))

	got, err := store.Get(ctx, types.KindTag, "t2")
	require.NoError(t, err)
	assert.Equal(t, "fitness", got.Name)
	require.NotNil(t, got.ParentID)
	assert.Equal(t, "t1", *got.ParentID)
	assert.Equal(t, types.KindTag, got.Kind)
}

func TestHierarchyStore_KindsAreSeparateForests(t *testing.T) {
	database := testutil.SetupTestDB(t)
	store := NewHierarchyStore(database, nil)
	ctx := testutil.Ctx(t)

	addNode(t, store, types.KindTag, "n1", "health", nil)

	_, err := store.Get(ctx, types.KindContext, "n1")
	assert.True(t, errors.IsNotFound(err), "a tag id must not resolve as a context")
}

func TestHierarchyStore_AddMissingParent(t *testing.T) {
	database := testutil.SetupTestDB(t)
	store := NewHierarchyStore(database, nil)

	node := &types.Node{ID: "t1", Kind: types.KindTag, Name: "orphan", ParentID: strPtr("ghost"), FriendlyID: "t1"}
	err := store.Add(testutil.Ctx(t), node)
	assert.True(t, errors.IsNotFound(err))
}

func TestHierarchyStore_SelfParentRejected(t *testing.T) {
	database := testutil.SetupTestDB(t)
	store := NewHierarchyStore(database, nil)
	ctx := testutil.Ctx(t)

	addNode(t, store, types.KindTag, "t1", "a", nil)
	err := store.Move(ctx, types.KindTag, "t1", strPtr("t1"))
	assert.True(t, errors.IsCycle(err))
}

func TestHierarchyStore_MoveCycleRejected(t *testing.T) {
	database := testutil.SetupTestDB(t)
	store := NewHierarchyStore(database, nil)
	ctx := testutil.Ctx(t)

	// a -> b -> c; moving a under c would close a loop.
	addNode(t, store, types.KindContext, "a", "a", nil)
	addNode(t, store, types.KindContext, "b", "b", strPtr("a"))
	addNode(t, store, types.KindContext, "c", "c", strPtr("b"))

	err := store.Move(ctx, types.KindContext, "a", strPtr("c"))
	require.True(t, errors.IsCycle(err))

	// The rejected move must leave the forest untouched.
	got, err := store.Get(ctx, types.KindContext, "a")
	require.NoError(t, err)
	assert.Nil(t, got.ParentID)
}

func TestHierarchyStore_MoveToRoot(t *testing.T) {
	database := testutil.SetupTestDB(t)
	store := NewHierarchyStore(database, nil)
	ctx := testutil.Ctx(t)

	addNode(t, store, types.KindTag, "t1", "a", nil)
	addNode(t, store, types.KindTag, "t2", "b", strPtr("t1"))

	require.NoError(t, store.Move(ctx, types.KindTag, "t2", nil))

	got, err := store.Get(ctx, types.KindTag, "t2")
	require.NoError(t, err)
	assert.Nil(t, got.ParentID)
}

func TestHierarchyStore_EditRename(t *testing.T) {
	database := testutil.SetupTestDB(t)
	store := NewHierarchyStore(database, nil)
	ctx := testutil.Ctx(t)

	addNode(t, store, types.KindTag, "t1", "old", nil)

	updated, err := store.Edit(ctx, types.KindTag, "t1", types.NodePatch{Name: strPtr("new")})
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Name)
}

func TestHierarchyStore_DeleteOrphansChildren(t *testing.T) {
	database := testutil.SetupTestDB(t)
	store := NewHierarchyStore(database, nil)
	claims := NewClaimStore(database, nil)
	ctx := testutil.Ctx(t)

	addNode(t, store, types.KindTag, "t1", "parent", nil)
	addNode(t, store, types.KindTag, "t2", "child", strPtr("t1"))

	claim := testutil.NewClaim("c1", "linked claim")
	require.NoError(t, claims.Add(ctx, claim, []string{"t1"}, nil))

	require.NoError(t, store.Delete(ctx, types.KindTag, "t1"))

	_, err := store.Get(ctx, types.KindTag, "t1")
	assert.True(t, errors.IsNotFound(err))

	child, err := store.Get(ctx, types.KindTag, "t2")
	require.NoError(t, err)
	assert.Nil(t, child.ParentID, "children of a deleted node become roots")

	// Link rows are gone; the claim itself survives.
	var links int
	require.NoError(t, database.QueryRow(
		"SELECT COUNT(*) FROM claim_tags WHERE tag_id = 't1'").Scan(&links))
	assert.Equal(t, 0, links)
	_, err = claims.Get(ctx, "c1")
	assert.NoError(t, err)
}

func TestHierarchyStore_GetChildrenAndDescendants(t *testing.T) {
	database := testutil.SetupTestDB(t)
	store := NewHierarchyStore(database, nil)
	ctx := testutil.Ctx(t)

	addNode(t, store, types.KindContext, "root", "root", nil)
	addNode(t, store, types.KindContext, "a", "alpha", strPtr("root"))
	addNode(t, store, types.KindContext, "b", "beta", strPtr("root"))
	addNode(t, store, types.KindContext, "a1", "alpha-child", strPtr("a"))

	children, err := store.GetChildren(ctx, types.KindContext, "root")
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "alpha", children[0].Name)
	assert.Equal(t, "beta", children[1].Name)

	descendants, err := store.GetDescendants(ctx, types.KindContext, "root")
	require.NoError(t, err)
	ids := make([]string, len(descendants))
	for i, node := range descendants {
		ids[i] = node.ID
	}
	assert.ElementsMatch(t, []string{"a", "b", "a1"}, ids)
}

func TestHierarchyStore_ResolveClaims(t *testing.T) {
	database := testutil.SetupTestDB(t)
	store := NewHierarchyStore(database, nil)
	claims := NewClaimStore(database, nil)
	ctx := testutil.Ctx(t)

	addNode(t, store, types.KindContext, "root", "life", nil)
	addNode(t, store, types.KindContext, "kid", "work", strPtr("root"))
	addNode(t, store, types.KindContext, "grandkid", "project", strPtr("kid"))

	link := func(claimID, contextID string) {
		require.NoError(t, store.LinkClaim(ctx, types.KindContext, contextID, claimID))
	}

	c1 := testutil.NewClaim("c1", "claim on root")
	c2 := testutil.NewClaim("c2", "claim on child")
	c3 := testutil.NewClaim("c3", "claim on grandchild")
	shared := testutil.NewClaim("c4", "claim on two nodes")
	retracted := testutil.NewClaim("c5", "retracted claim")
	for _, c := range []*types.Claim{c1, c2, c3, shared, retracted} {
		require.NoError(t, claims.Add(ctx, c, nil, nil))
	}
	require.NoError(t, claims.Delete(ctx, "c5"))

	link("c1", "root")
	link("c2", "kid")
	link("c3", "grandkid")
	link("c4", "root")
	link("c4", "grandkid")
	link("c5", "kid")

	active := []types.ClaimStatus{types.StatusActive}

	// Full subtree: deduplicated, status-filtered.
	resolved, err := store.ResolveClaims(ctx, types.KindContext, "root", active, 0)
	require.NoError(t, err)
	ids := claimIDs(resolved)
	assert.ElementsMatch(t, []string{"c1", "c2", "c3", "c4"}, ids)

	// Depth 1: root and its direct children only.
	resolved, err = store.ResolveClaims(ctx, types.KindContext, "root", active, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c1", "c2", "c4"}, claimIDs(resolved))

	// Empty status slice means no status constraint.
	resolved, err = store.ResolveClaims(ctx, types.KindContext, "kid", nil, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c2", "c3", "c4", "c5"}, claimIDs(resolved))
}

func TestHierarchyStore_ResolveClaimsMissingNode(t *testing.T) {
	database := testutil.SetupTestDB(t)
	store := NewHierarchyStore(database, nil)

	_, err := store.ResolveClaims(testutil.Ctx(t), types.KindTag, "ghost", nil, 0)
	assert.True(t, errors.IsNotFound(err))
}

func TestHierarchyStore_GetByName(t *testing.T) {
	database := testutil.SetupTestDB(t)
	store := NewHierarchyStore(database, nil)
	ctx := testutil.Ctx(t)

	addNode(t, store, types.KindContext, "c1", "Work", nil)

	got, err := store.GetByName(ctx, types.KindContext, "work")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ID, "name lookup is case-insensitive")
}

func claimIDs(claims []*types.Claim) []string {
	ids := make([]string, len(claims))
	for i, c := range claims {
		ids[i] = c.ID
	}
	return ids
}
