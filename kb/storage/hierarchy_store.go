package storage

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/personakb/persona/db"
	"github.com/personakb/persona/errors"
	"github.com/personakb/persona/kb/types"
)

// defaultMaxDepth bounds subtree traversal when the caller passes
// maxDepth <= 0.
const defaultMaxDepth = 10

// kindTables maps a node kind to its table names. Table names are never
// taken from user input; everything else is bound as a parameter.
type kindTables struct {
	nodes     string
	link      string // claim <-> node join table
	linkNode  string // node id column in the join table
	linkClaim string // claim id column in the join table
}

var tablesByKind = map[types.NodeKind]kindTables{
	types.KindTag: {
		nodes:     "tags",
		link:      "claim_tags",
		linkNode:  "tag_id",
		linkClaim: "claim_id",
	},
	types.KindContext: {
		nodes:     "contexts",
		link:      "context_claims",
		linkNode:  "context_id",
		linkClaim: "claim_id",
	},
}

// HierarchyStore implements kb.HierarchyStore over the tags and contexts
// forests. Writes that touch parent pointers serialize on a per-kind mutex
// and re-verify acyclicity inside the transaction, so two concurrent moves
// cannot braid a cycle.
type HierarchyStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger

	tagMu     sync.Mutex
	contextMu sync.Mutex
}

// NewHierarchyStore creates a new SQL-based hierarchy store
func NewHierarchyStore(database *sql.DB, logger *zap.SugaredLogger) *HierarchyStore {
	return &HierarchyStore{
		db:     database,
		logger: logger,
	}
}

func (s *HierarchyStore) lock(kind types.NodeKind) *sync.Mutex {
	if kind == types.KindContext {
		return &s.contextMu
	}
	return &s.tagMu
}

func tablesFor(kind types.NodeKind) (kindTables, error) {
	t, ok := tablesByKind[kind]
	if !ok {
		return kindTables{}, errors.Newf("unknown node kind %q", kind)
	}
	return t, nil
}

// Add inserts a new node. If a parent is given it must exist; the new node
// has no children yet so no cycle check is needed beyond self-reference.
func (s *HierarchyStore) Add(ctx context.Context, node *types.Node) error {
	if node == nil {
		return errors.New("node is nil")
	}
	tables, err := tablesFor(node.Kind)
	if err != nil {
		return err
	}
	if strings.TrimSpace(node.Name) == "" {
		return errors.New("node name cannot be empty")
	}

	if node.ID == "" {
		node.ID = uuid.NewString()
	}
	if node.FriendlyID == "" {
		node.FriendlyID = friendlyIDFromStatement(node.Name)
	}
	if node.CreatedAt.IsZero() {
		node.CreatedAt = time.Now().UTC()
	}
	if node.ParentID != nil && *node.ParentID == node.ID {
		return errors.Wrap(errors.ErrCycle, "node cannot be its own parent")
	}

	mu := s.lock(node.Kind)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin node insert")
	}
	defer tx.Rollback()

	if node.ParentID != nil {
		if _, err := getNodeTx(ctx, tx, tables, node.Kind, *node.ParentID); err != nil {
			return errors.Wrapf(err, "parent %s", *node.ParentID)
		}
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO "+tables.nodes+" (id, name, parent_id, friendly_id, created_at) VALUES (?, ?, ?, ?, ?)",
		node.ID, node.Name, node.ParentID, node.FriendlyID,
		node.CreatedAt.Format(time.RFC3339))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return errors.Wrapf(errors.ErrDuplicateFriendlyID, "friendly id %q", node.FriendlyID)
		}
		return errors.Wrapf(err, "insert %s", node.Kind)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit node insert")
	}

	if s.logger != nil {
		s.logger.Debugw("Hierarchy node created",
			"kind", node.Kind, "node_id", node.ID, "parent_id", node.ParentID)
	}
	return nil
}

// Edit renames a node and/or reassigns its parent. Parent changes go through
// the same cycle check as Move.
func (s *HierarchyStore) Edit(ctx context.Context, kind types.NodeKind, id string, patch types.NodePatch) (*types.Node, error) {
	tables, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}

	mu := s.lock(kind)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin node edit")
	}
	defer tx.Rollback()

	node, err := getNodeTx(ctx, tx, tables, kind, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return nil, errors.New("node name cannot be empty")
		}
		node.Name = *patch.Name
	}
	if patch.SetParent {
		if err := s.checkParentTx(ctx, tx, tables, kind, id, patch.ParentID); err != nil {
			return nil, err
		}
		node.ParentID = patch.ParentID
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE "+tables.nodes+" SET name = ?, parent_id = ? WHERE id = ?",
		node.Name, node.ParentID, id)
	if err != nil {
		return nil, errors.Wrapf(err, "update %s %s", kind, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit node edit")
	}
	return node, nil
}

// Move reassigns a node's parent. A nil newParentID makes the node a root.
func (s *HierarchyStore) Move(ctx context.Context, kind types.NodeKind, id string, newParentID *string) error {
	_, err := s.Edit(ctx, kind, id, types.NodePatch{ParentID: newParentID, SetParent: true})
	return err
}

// checkParentTx validates a prospective parent inside the write transaction:
// the parent must exist and must not be the node itself or any of its
// descendants. The walk follows parent pointers upward from the candidate,
// so a braided concurrent move cannot slip a cycle past it.
func (s *HierarchyStore) checkParentTx(ctx context.Context, tx *sql.Tx, tables kindTables, kind types.NodeKind, id string, parentID *string) error {
	if parentID == nil {
		return nil
	}
	if *parentID == id {
		return errors.Wrap(errors.ErrCycle, "node cannot be its own parent")
	}
	if _, err := getNodeTx(ctx, tx, tables, kind, *parentID); err != nil {
		return errors.Wrapf(err, "parent %s", *parentID)
	}

	seen := map[string]bool{id: true}
	current := *parentID
	for {
		if seen[current] {
			return errors.Wrapf(errors.ErrCycle, "%s %s is a descendant of %s", kind, *parentID, id)
		}
		seen[current] = true

		var next sql.NullString
		err := tx.QueryRowContext(ctx,
			"SELECT parent_id FROM "+tables.nodes+" WHERE id = ?", current).Scan(&next)
		if err == sql.ErrNoRows || (err == nil && !next.Valid) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "walk parent chain")
		}
		current = next.String
	}
}

// Delete removes a node. Its children become roots (parent_id set to NULL)
// and its claim links are removed, all in one transaction. Claims themselves
// are untouched.
func (s *HierarchyStore) Delete(ctx context.Context, kind types.NodeKind, id string) error {
	tables, err := tablesFor(kind)
	if err != nil {
		return err
	}

	mu := s.lock(kind)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin node delete")
	}
	defer tx.Rollback()

	if _, err := getNodeTx(ctx, tx, tables, kind, id); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE "+tables.nodes+" SET parent_id = NULL WHERE parent_id = ?", id); err != nil {
		return errors.Wrapf(err, "orphan children of %s %s", kind, id)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM "+tables.link+" WHERE "+tables.linkNode+" = ?", id); err != nil {
		return errors.Wrapf(err, "unlink claims from %s %s", kind, id)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM "+tables.nodes+" WHERE id = ?", id); err != nil {
		return errors.Wrapf(err, "delete %s %s", kind, id)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit node delete")
	}

	if s.logger != nil {
		s.logger.Debugw("Hierarchy node deleted", "kind", kind, "node_id", id)
	}
	return nil
}

// Get returns a node by id.
func (s *HierarchyStore) Get(ctx context.Context, kind types.NodeKind, id string) (*types.Node, error) {
	tables, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}
	return scanNodeRow(s.db.QueryRowContext(ctx,
		"SELECT id, name, parent_id, friendly_id, created_at FROM "+tables.nodes+" WHERE id = ?", id), kind)
}

// GetByFriendlyID returns a node by its friendly id.
func (s *HierarchyStore) GetByFriendlyID(ctx context.Context, kind types.NodeKind, friendlyID string) (*types.Node, error) {
	tables, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}
	return scanNodeRow(s.db.QueryRowContext(ctx,
		"SELECT id, name, parent_id, friendly_id, created_at FROM "+tables.nodes+" WHERE friendly_id = ?", friendlyID), kind)
}

// GetByName returns a node by case-insensitive name match. With multiple
// matches the earliest-created node wins.
func (s *HierarchyStore) GetByName(ctx context.Context, kind types.NodeKind, name string) (*types.Node, error) {
	tables, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}
	return scanNodeRow(s.db.QueryRowContext(ctx,
		"SELECT id, name, parent_id, friendly_id, created_at FROM "+tables.nodes+
			" WHERE name = ? COLLATE NOCASE ORDER BY created_at ASC LIMIT 1", name), kind)
}

// GetChildren returns the direct children of a node, name order.
func (s *HierarchyStore) GetChildren(ctx context.Context, kind types.NodeKind, parentID string) ([]*types.Node, error) {
	tables, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, parent_id, friendly_id, created_at FROM "+tables.nodes+
			" WHERE parent_id = ? ORDER BY name", parentID)
	if err != nil {
		return nil, errors.Wrap(err, "query children")
	}
	defer rows.Close()
	return collectNodes(rows, kind)
}

// Roots returns the nodes without a parent, name order.
func (s *HierarchyStore) Roots(ctx context.Context, kind types.NodeKind) ([]*types.Node, error) {
	tables, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, parent_id, friendly_id, created_at FROM "+tables.nodes+
			" WHERE parent_id IS NULL ORDER BY name")
	if err != nil {
		return nil, errors.Wrap(err, "query roots")
	}
	defer rows.Close()
	return collectNodes(rows, kind)
}

// GetDescendants returns every node in the subtree rooted at id, excluding
// the root itself. Traversal is iterative breadth-first with a visited set,
// so a corrupt parent graph cannot loop it.
func (s *HierarchyStore) GetDescendants(ctx context.Context, kind types.NodeKind, id string) ([]*types.Node, error) {
	if _, err := s.Get(ctx, kind, id); err != nil {
		return nil, err
	}

	ids, err := s.subtreeIDs(ctx, kind, id, defaultMaxDepth)
	if err != nil {
		return nil, err
	}

	var descendants []*types.Node
	for _, nodeID := range ids {
		if nodeID == id {
			continue
		}
		node, err := s.Get(ctx, kind, nodeID)
		if err != nil {
			return nil, err
		}
		descendants = append(descendants, node)
	}
	return descendants, nil
}

// subtreeIDs walks the subtree rooted at id layer by layer and returns the
// visited node ids, root included, in discovery order.
func (s *HierarchyStore) subtreeIDs(ctx context.Context, kind types.NodeKind, id string, maxDepth int) ([]string, error) {
	tables, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}

	visited := map[string]bool{id: true}
	order := []string{id}
	frontier := []string{id}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		placeholders := make([]string, len(frontier))
		args := make([]interface{}, len(frontier))
		for i, nodeID := range frontier {
			placeholders[i] = "?"
			args[i] = nodeID
		}

		rows, err := s.db.QueryContext(ctx,
			"SELECT id FROM "+tables.nodes+" WHERE parent_id IN ("+strings.Join(placeholders, ", ")+") ORDER BY name",
			args...)
		if err != nil {
			return nil, errors.Wrap(err, "query subtree layer")
		}

		var next []string
		for rows.Next() {
			var childID string
			if err := rows.Scan(&childID); err != nil {
				rows.Close()
				return nil, errors.Wrap(err, "scan subtree layer")
			}
			if visited[childID] {
				continue
			}
			visited[childID] = true
			order = append(order, childID)
			next = append(next, childID)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "iterate subtree layer")
		}
		rows.Close()
		frontier = next
	}

	return order, nil
}

// ResolveClaims collects the claims linked anywhere in the subtree rooted at
// id, bounded by maxDepth, deduplicated by claim id. The subtree walk and the
// claim fetch are two phases: first gather node ids breadth-first, then one
// batched join over the link table.
func (s *HierarchyStore) ResolveClaims(ctx context.Context, kind types.NodeKind, id string, statuses []types.ClaimStatus, maxDepth int) ([]*types.Claim, error) {
	tables, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, kind, id); err != nil {
		return nil, err
	}

	nodeIDs, err := s.subtreeIDs(ctx, kind, id, maxDepth)
	if err != nil {
		return nil, err
	}

	placeholders := make([]string, len(nodeIDs))
	args := make([]interface{}, 0, len(nodeIDs)+len(statuses))
	for i, nodeID := range nodeIDs {
		placeholders[i] = "?"
		args = append(args, nodeID)
	}

	query := "SELECT DISTINCT " + prefixedClaimColumns("c") +
		" FROM claims c JOIN " + tables.link + " l ON l." + tables.linkClaim + " = c.id" +
		" WHERE l." + tables.linkNode + " IN (" + strings.Join(placeholders, ", ") + ")"

	if len(statuses) > 0 {
		statusPlaceholders := make([]string, len(statuses))
		for i, status := range statuses {
			statusPlaceholders[i] = "?"
			args = append(args, status)
		}
		query += " AND c.status IN (" + strings.Join(statusPlaceholders, ", ") + ")"
	}
	query += " ORDER BY c.created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "resolve subtree claims")
	}
	defer rows.Close()

	seen := map[string]bool{}
	var claims []*types.Claim
	for rows.Next() {
		claim, err := scanClaimRow(rows)
		if err != nil {
			return nil, err
		}
		if seen[claim.ID] {
			continue
		}
		seen[claim.ID] = true
		claims = append(claims, claim)
	}
	return claims, rows.Err()
}

// LinkClaim attaches a claim to a node. Duplicate links are idempotent.
func (s *HierarchyStore) LinkClaim(ctx context.Context, kind types.NodeKind, nodeID, claimID string) error {
	tables, err := tablesFor(kind)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO "+tables.link+" ("+tables.linkNode+", "+tables.linkClaim+") VALUES (?, ?)",
		nodeID, claimID)
	if err != nil {
		return errors.Wrapf(err, "link claim %s to %s %s", claimID, kind, nodeID)
	}
	return nil
}

// UnlinkClaim detaches a claim from a node.
func (s *HierarchyStore) UnlinkClaim(ctx context.Context, kind types.NodeKind, nodeID, claimID string) error {
	tables, err := tablesFor(kind)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"DELETE FROM "+tables.link+" WHERE "+tables.linkNode+" = ? AND "+tables.linkClaim+" = ?",
		nodeID, claimID)
	if err != nil {
		return errors.Wrapf(err, "unlink claim %s from %s %s", claimID, kind, nodeID)
	}
	return nil
}

func getNodeTx(ctx context.Context, tx *sql.Tx, tables kindTables, kind types.NodeKind, id string) (*types.Node, error) {
	return scanNodeRow(tx.QueryRowContext(ctx,
		"SELECT id, name, parent_id, friendly_id, created_at FROM "+tables.nodes+" WHERE id = ?", id), kind)
}

func scanNodeRow(row rowScanner, kind types.NodeKind) (*types.Node, error) {
	var (
		node      types.Node
		parentID  sql.NullString
		createdAt string
	)
	err := row.Scan(&node.ID, &node.Name, &parentID, &node.FriendlyID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "%s", kind)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "scan %s", kind)
	}
	node.Kind = kind
	if parentID.Valid {
		node.ParentID = &parentID.String
	}
	node.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &node, nil
}

func collectNodes(rows *sql.Rows, kind types.NodeKind) ([]*types.Node, error) {
	var nodes []*types.Node
	for rows.Next() {
		node, err := scanNodeRow(rows, kind)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}
