// Package kb defines the storage and search interfaces of the Persona claim
// engine. This file separates the pure domain contracts from storage and
// provider implementation details.
package kb

import (
	"context"

	"github.com/personakb/persona/kb/types"
)

// ClaimStore defines storage operations for claims.
type ClaimStore interface {
	// Add inserts a new claim and links it to the given tag and entity ids
	// in one transaction
	Add(ctx context.Context, claim *types.Claim, tagIDs, entityIDs []string) error

	// Edit applies a patch to an existing claim. A statement change
	// invalidates any cached embedding for the claim.
	Edit(ctx context.Context, id string, patch types.ClaimPatch) (*types.Claim, error)

	// Delete soft-deletes a claim (status -> retracted). Claims are never
	// hard-deleted: conflict sets and hierarchy links may still reference them.
	Delete(ctx context.Context, id string) error

	// Get returns a claim by id
	Get(ctx context.Context, id string) (*types.Claim, error)

	// GetByFriendlyID returns a claim by its friendly id
	GetByFriendlyID(ctx context.Context, friendlyID string) (*types.Claim, error)

	// List returns claims matching the filters, applied at the data-access layer
	List(ctx context.Context, filters types.SearchFilters) ([]*types.Claim, error)
}

// HierarchyStore defines tag/context forest operations.
type HierarchyStore interface {
	Add(ctx context.Context, node *types.Node) error
	Edit(ctx context.Context, kind types.NodeKind, id string, patch types.NodePatch) (*types.Node, error)
	Delete(ctx context.Context, kind types.NodeKind, id string) error
	Move(ctx context.Context, kind types.NodeKind, id string, newParentID *string) error
	Get(ctx context.Context, kind types.NodeKind, id string) (*types.Node, error)
	GetChildren(ctx context.Context, kind types.NodeKind, parentID string) ([]*types.Node, error)
	GetDescendants(ctx context.Context, kind types.NodeKind, id string) ([]*types.Node, error)

	// ResolveClaims collects claims linked anywhere in the subtree rooted at
	// id, bounded by maxDepth, deduplicated by claim id
	ResolveClaims(ctx context.Context, kind types.NodeKind, id string, statuses []types.ClaimStatus, maxDepth int) ([]*types.Claim, error)
}

// ConflictStore defines the conflict-set state machine.
type ConflictStore interface {
	Create(ctx context.Context, claimIDs []string, notes string) (*types.ConflictSet, error)
	Resolve(ctx context.Context, id, notes string, winningClaimID string, loserStatus types.ClaimStatus) error
	Ignore(ctx context.Context, id string) error
	AddMember(ctx context.Context, id, claimID string) error
	RemoveMember(ctx context.Context, id, claimID string, restoreStatus types.ClaimStatus) error
	Get(ctx context.Context, id string) (*types.ConflictSet, error)
	OpenSetsForClaim(ctx context.Context, claimID string) ([]*types.ConflictSet, error)
}

// SearchStrategy ranks claims for a query. Implementations are read-only.
type SearchStrategy interface {
	// Name identifies the strategy in registries and result provenance
	Name() string

	// Search returns an ordered result list, best first. Scores are
	// strategy-specific; higher is better.
	Search(ctx context.Context, query string, k int, filters types.SearchFilters) ([]*types.SearchResult, error)
}
