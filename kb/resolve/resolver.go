// Package resolve turns opaque identifiers into claims. Callers hand it
// whatever they have: a claim id, a friendly id, a "name:context" style
// typed reference, or a bare name, and get back the claims it denotes.
package resolve

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/personakb/persona/errors"
	"github.com/personakb/persona/kb/storage"
	"github.com/personakb/persona/kb/types"
)

// Reference types returned in Resolution.Type.
const (
	TypeClaim   = "claim"
	TypeTag     = "tag"
	TypeContext = "context"
	TypeEntity  = "entity"
	TypeDomain  = "domain"
)

// Type-suffix markers. "health:context" routes to context lookup,
// "gym:entity" to entity lookup, and so on.
const (
	suffixContext = ":context"
	suffixEntity  = ":entity"
	suffixTag     = ":tag"
	suffixDomain  = ":domain"
)

// Resolution is the outcome of a successful reference lookup.
type Resolution struct {
	// Type says what the identifier turned out to denote
	Type string `json:"type"`

	// Claims carries the claims the reference expands to
	Claims []*types.Claim `json:"claims"`

	// SourceID is the id of the matched claim, node, or entity
	SourceID string `json:"source_id"`

	// SourceName is the human-readable name of the source, where one exists
	SourceName string `json:"source_name,omitempty"`
}

// Resolver resolves references against the stores. It is read-only.
type Resolver struct {
	claims    *storage.ClaimStore
	hierarchy *storage.HierarchyStore
	entities  *storage.EntityStore
	logger    *zap.SugaredLogger
}

// New creates a reference resolver
func New(claims *storage.ClaimStore, hierarchy *storage.HierarchyStore, entities *storage.EntityStore, logger *zap.SugaredLogger) *Resolver {
	return &Resolver{
		claims:    claims,
		hierarchy: hierarchy,
		entities:  entities,
		logger:    logger,
	}
}

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
var numericPattern = regexp.MustCompile(`^\d+$`)

// Resolve applies the lookup rules in priority order:
//  1. a trailing type marker routes to the named kind's lookup and claim
//     expansion (recursive for tags/contexts, linked for entities, filtered
//     for domains)
//  2. numeric or UUID-like identifiers resolve directly to one claim
//  3. bare identifiers try claim friendly id, then context friendly id,
//     then case-insensitive context name
//
// Anything else is NotFound.
func (r *Resolver) Resolve(ctx context.Context, ref string) (*Resolution, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.Wrap(errors.ErrNotFound, "empty reference")
	}

	switch {
	case strings.HasSuffix(ref, suffixContext):
		return r.resolveNode(ctx, types.KindContext, strings.TrimSuffix(ref, suffixContext))
	case strings.HasSuffix(ref, suffixTag):
		return r.resolveNode(ctx, types.KindTag, strings.TrimSuffix(ref, suffixTag))
	case strings.HasSuffix(ref, suffixEntity):
		return r.resolveEntity(ctx, strings.TrimSuffix(ref, suffixEntity))
	case strings.HasSuffix(ref, suffixDomain):
		return r.resolveDomain(ctx, strings.TrimSuffix(ref, suffixDomain))
	}

	if uuidPattern.MatchString(ref) || numericPattern.MatchString(ref) {
		claim, err := r.claims.Get(ctx, ref)
		if err != nil {
			return nil, err
		}
		return claimResolution(claim), nil
	}

	return r.resolveBare(ctx, ref)
}

// resolveBare tries the fallback chain for an unmarked identifier.
func (r *Resolver) resolveBare(ctx context.Context, ref string) (*Resolution, error) {
	claim, err := r.claims.GetByFriendlyID(ctx, ref)
	if err == nil {
		return claimResolution(claim), nil
	}
	if !errors.IsNotFound(err) {
		return nil, err
	}

	// Legacy fallback: context friendly id, then context name.
	node, err := r.hierarchy.GetByFriendlyID(ctx, types.KindContext, ref)
	if errors.IsNotFound(err) {
		node, err = r.hierarchy.GetByName(ctx, types.KindContext, ref)
	}
	if errors.IsNotFound(err) {
		return nil, errors.Wrapf(errors.ErrNotFound, "reference %q", ref)
	}
	if err != nil {
		return nil, err
	}
	return r.expandNode(ctx, node)
}

// resolveNode looks up a tag or context by friendly id, falling back to a
// case-insensitive name match, and expands its subtree.
func (r *Resolver) resolveNode(ctx context.Context, kind types.NodeKind, name string) (*Resolution, error) {
	node, err := r.hierarchy.GetByFriendlyID(ctx, kind, name)
	if errors.IsNotFound(err) {
		node, err = r.hierarchy.GetByName(ctx, kind, name)
	}
	if err != nil {
		return nil, err
	}
	return r.expandNode(ctx, node)
}

func (r *Resolver) expandNode(ctx context.Context, node *types.Node) (*Resolution, error) {
	claims, err := r.hierarchy.ResolveClaims(ctx, node.Kind, node.ID,
		types.DefaultSearchFilters().Statuses, 0)
	if err != nil {
		return nil, err
	}
	return &Resolution{
		Type:       string(node.Kind),
		Claims:     claims,
		SourceID:   node.ID,
		SourceName: node.Name,
	}, nil
}

func (r *Resolver) resolveEntity(ctx context.Context, name string) (*Resolution, error) {
	entity, err := r.entities.GetByFriendlyID(ctx, name)
	if errors.IsNotFound(err) {
		entity, err = r.entities.GetByName(ctx, name)
	}
	if err != nil {
		return nil, err
	}

	claims, err := r.entities.ClaimsFor(ctx, entity.ID, types.DefaultSearchFilters().Statuses)
	if err != nil {
		return nil, err
	}
	return &Resolution{
		Type:       TypeEntity,
		Claims:     claims,
		SourceID:   entity.ID,
		SourceName: entity.Name,
	}, nil
}

func (r *Resolver) resolveDomain(ctx context.Context, name string) (*Resolution, error) {
	domain := types.Domain(strings.ToLower(name))
	if !types.ValidDomains[domain] {
		return nil, errors.Wrapf(errors.ErrNotFound, "domain %q", name)
	}

	filters := types.DefaultSearchFilters()
	filters.Domains = []types.Domain{domain}
	claims, err := r.claims.List(ctx, filters)
	if err != nil {
		return nil, err
	}
	return &Resolution{
		Type:       TypeDomain,
		Claims:     claims,
		SourceID:   string(domain),
		SourceName: string(domain),
	}, nil
}

func claimResolution(claim *types.Claim) *Resolution {
	return &Resolution{
		Type:       TypeClaim,
		Claims:     []*types.Claim{claim},
		SourceID:   claim.ID,
		SourceName: claim.FriendlyID,
	}
}
