package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/personakb/persona/errors"
	"github.com/personakb/persona/kb/types"
)

// ConflictStore implements kb.ConflictStore. Every transition that touches
// member claims runs in a single transaction so a set and its members never
// disagree about contestedness.
type ConflictStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewConflictStore creates a new SQL-based conflict store
func NewConflictStore(database *sql.DB, logger *zap.SugaredLogger) *ConflictStore {
	return &ConflictStore{
		db:     database,
		logger: logger,
	}
}

// Create opens a conflict set over the given claims. All members are marked
// contested. Fails if fewer than two claims are given or any id is unknown.
func (s *ConflictStore) Create(ctx context.Context, claimIDs []string, notes string) (*types.ConflictSet, error) {
	if len(claimIDs) < 2 {
		return nil, errors.Wrapf(errors.ErrConflictSize, "got %d claims", len(claimIDs))
	}

	set := &types.ConflictSet{
		ID:              uuid.NewString(),
		Status:          types.ConflictOpen,
		ResolutionNotes: notes,
		MemberClaimIDs:  append([]string(nil), claimIDs...),
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin conflict create")
	}
	defer tx.Rollback()

	for _, claimID := range claimIDs {
		if err := claimExistsTx(ctx, tx, claimID); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO conflict_sets (id, status, resolution_notes, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		set.ID, set.Status, set.ResolutionNotes,
		set.CreatedAt.Format(time.RFC3339), set.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return nil, errors.Wrap(err, "insert conflict set")
	}

	for _, claimID := range claimIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO conflict_set_members (conflict_set_id, claim_id) VALUES (?, ?)",
			set.ID, claimID); err != nil {
			return nil, errors.Wrapf(err, "add member %s", claimID)
		}
		if err := setClaimStatusTx(ctx, tx, claimID, types.StatusContested); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit conflict create")
	}

	if s.logger != nil {
		s.logger.Infow("Conflict set opened",
			"conflict_set_id", set.ID, "members", len(claimIDs))
	}
	return set, nil
}

// Resolve closes an open set. With a winner the winning claim becomes active
// and every other member gets loserStatus (default superseded). With an
// empty winner the set closes but members stay contested; the caller is
// recording a resolution note without picking a side.
func (s *ConflictStore) Resolve(ctx context.Context, id, notes string, winningClaimID string, loserStatus types.ClaimStatus) error {
	if loserStatus == "" {
		loserStatus = types.StatusSuperseded
	}
	if !types.ValidStatuses[loserStatus] {
		return errors.Newf("invalid loser status %q", loserStatus)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin conflict resolve")
	}
	defer tx.Rollback()

	set, err := getConflictSetTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if !set.IsOpen() {
		return errors.Newf("conflict set %s is already %s", id, set.Status)
	}

	if winningClaimID != "" {
		if !containsString(set.MemberClaimIDs, winningClaimID) {
			return errors.Wrapf(errors.ErrNotFound, "claim %s is not a member of conflict set %s", winningClaimID, id)
		}
		for _, claimID := range set.MemberClaimIDs {
			status := loserStatus
			if claimID == winningClaimID {
				status = types.StatusActive
			}
			if err := setClaimStatusTx(ctx, tx, claimID, status); err != nil {
				return err
			}
		}
	}

	if err := closeConflictSetTx(ctx, tx, id, types.ConflictResolved, notes); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit conflict resolve")
	}

	if s.logger != nil {
		s.logger.Infow("Conflict set resolved",
			"conflict_set_id", id, "winner", winningClaimID, "loser_status", loserStatus)
	}
	return nil
}

// Ignore closes an open set without altering member statuses; the
// contradiction is accepted as coexisting. Releasing a member back to
// active goes through Edit or RemoveMember.
func (s *ConflictStore) Ignore(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin conflict ignore")
	}
	defer tx.Rollback()

	set, err := getConflictSetTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if !set.IsOpen() {
		return errors.Newf("conflict set %s is already %s", id, set.Status)
	}

	if err := closeConflictSetTx(ctx, tx, id, types.ConflictIgnored, ""); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit conflict ignore")
	}

	if s.logger != nil {
		s.logger.Infow("Conflict set ignored", "conflict_set_id", id)
	}
	return nil
}

// AddMember adds a claim to an open set and marks it contested.
func (s *ConflictStore) AddMember(ctx context.Context, id, claimID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin add member")
	}
	defer tx.Rollback()

	set, err := getConflictSetTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if !set.IsOpen() {
		return errors.Newf("cannot add members to %s conflict set %s", set.Status, id)
	}
	if err := claimExistsTx(ctx, tx, claimID); err != nil {
		return err
	}
	if containsString(set.MemberClaimIDs, claimID) {
		return nil
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO conflict_set_members (conflict_set_id, claim_id) VALUES (?, ?)",
		id, claimID); err != nil {
		return errors.Wrapf(err, "add member %s", claimID)
	}
	if err := setClaimStatusTx(ctx, tx, claimID, types.StatusContested); err != nil {
		return err
	}
	if err := touchConflictSetTx(ctx, tx, id); err != nil {
		return err
	}

	return errors.Wrap(tx.Commit(), "commit add member")
}

// RemoveMember removes a claim from an open set and restores its status
// (default active). If the set drops below two members it dissolves: the
// set is deleted and the remaining member is restored too, in the same
// transaction as the removal.
func (s *ConflictStore) RemoveMember(ctx context.Context, id, claimID string, restoreStatus types.ClaimStatus) error {
	if restoreStatus == "" {
		restoreStatus = types.StatusActive
	}
	if !types.ValidStatuses[restoreStatus] {
		return errors.Newf("invalid restore status %q", restoreStatus)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin remove member")
	}
	defer tx.Rollback()

	set, err := getConflictSetTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if !set.IsOpen() {
		return errors.Newf("cannot remove members from %s conflict set %s", set.Status, id)
	}
	if !containsString(set.MemberClaimIDs, claimID) {
		return errors.Wrapf(errors.ErrNotFound, "claim %s in conflict set %s", claimID, id)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM conflict_set_members WHERE conflict_set_id = ? AND claim_id = ?",
		id, claimID); err != nil {
		return errors.Wrapf(err, "remove member %s", claimID)
	}
	if err := setClaimStatusTx(ctx, tx, claimID, restoreStatus); err != nil {
		return err
	}

	remaining := make([]string, 0, len(set.MemberClaimIDs)-1)
	for _, member := range set.MemberClaimIDs {
		if member != claimID {
			remaining = append(remaining, member)
		}
	}

	if len(remaining) < 2 {
		// A one-member conflict is no conflict. Delete the set and
		// restore the survivor, unless another open set still claims it.
		for _, member := range remaining {
			stillOpen, err := otherOpenSetsTx(ctx, tx, id, member)
			if err != nil {
				return err
			}
			if !stillOpen {
				if err := setClaimStatusTx(ctx, tx, member, restoreStatus); err != nil {
					return err
				}
			}
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM conflict_set_members WHERE conflict_set_id = ?", id); err != nil {
			return errors.Wrapf(err, "dissolve conflict set %s", id)
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM conflict_sets WHERE id = ?", id); err != nil {
			return errors.Wrapf(err, "dissolve conflict set %s", id)
		}
	} else if err := touchConflictSetTx(ctx, tx, id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit remove member")
	}

	if s.logger != nil {
		s.logger.Infow("Conflict member removed",
			"conflict_set_id", id, "claim_id", claimID, "dissolved", len(remaining) < 2)
	}
	return nil
}

// Get returns a conflict set with its member claim ids.
func (s *ConflictStore) Get(ctx context.Context, id string) (*types.ConflictSet, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, errors.Wrap(err, "begin conflict get")
	}
	defer tx.Rollback()

	set, err := getConflictSetTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	return set, errors.Wrap(tx.Commit(), "commit conflict get")
}

// OpenSetsForClaim returns the open conflict sets a claim belongs to.
func (s *ConflictStore) OpenSetsForClaim(ctx context.Context, claimID string) ([]*types.ConflictSet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cs.id
		FROM conflict_sets cs
		JOIN conflict_set_members m ON m.conflict_set_id = cs.id
		WHERE m.claim_id = ? AND cs.status = ?
		ORDER BY cs.created_at DESC`,
		claimID, types.ConflictOpen)
	if err != nil {
		return nil, errors.Wrap(err, "query open sets")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan open set id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate open sets")
	}

	sets := make([]*types.ConflictSet, 0, len(ids))
	for _, id := range ids {
		set, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	return sets, nil
}

func getConflictSetTx(ctx context.Context, tx *sql.Tx, id string) (*types.ConflictSet, error) {
	var (
		set                  types.ConflictSet
		createdAt, updatedAt string
	)
	err := tx.QueryRowContext(ctx,
		"SELECT id, status, resolution_notes, created_at, updated_at FROM conflict_sets WHERE id = ?",
		id).Scan(&set.ID, &set.Status, &set.ResolutionNotes, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "conflict set %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan conflict set")
	}
	set.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	set.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	rows, err := tx.QueryContext(ctx,
		"SELECT claim_id FROM conflict_set_members WHERE conflict_set_id = ? ORDER BY claim_id",
		id)
	if err != nil {
		return nil, errors.Wrap(err, "query members")
	}
	defer rows.Close()

	for rows.Next() {
		var claimID string
		if err := rows.Scan(&claimID); err != nil {
			return nil, errors.Wrap(err, "scan member")
		}
		set.MemberClaimIDs = append(set.MemberClaimIDs, claimID)
	}
	return &set, rows.Err()
}

func claimExistsTx(ctx context.Context, tx *sql.Tx, claimID string) error {
	var one int
	err := tx.QueryRowContext(ctx, "SELECT 1 FROM claims WHERE id = ?", claimID).Scan(&one)
	if err == sql.ErrNoRows {
		return errors.Wrapf(errors.ErrNotFound, "claim %s", claimID)
	}
	return errors.Wrap(err, "check claim")
}

func setClaimStatusTx(ctx context.Context, tx *sql.Tx, claimID string, status types.ClaimStatus) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE claims SET status = ?, updated_at = ? WHERE id = ?",
		status, time.Now().UTC().Format(time.RFC3339), claimID)
	return errors.Wrapf(err, "set claim %s status", claimID)
}

func closeConflictSetTx(ctx context.Context, tx *sql.Tx, id string, status types.ConflictStatus, notes string) error {
	query := "UPDATE conflict_sets SET status = ?, updated_at = ?"
	args := []interface{}{status, time.Now().UTC().Format(time.RFC3339)}
	if notes != "" {
		query += ", resolution_notes = ?"
		args = append(args, notes)
	}
	query += " WHERE id = ?"
	args = append(args, id)

	_, err := tx.ExecContext(ctx, query, args...)
	return errors.Wrapf(err, "close conflict set %s", id)
}

func touchConflictSetTx(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE conflict_sets SET updated_at = ? WHERE id = ?",
		time.Now().UTC().Format(time.RFC3339), id)
	return errors.Wrapf(err, "touch conflict set %s", id)
}

// otherOpenSetsTx reports whether the claim belongs to an open conflict set
// other than excludeSetID.
func otherOpenSetsTx(ctx context.Context, tx *sql.Tx, excludeSetID, claimID string) (bool, error) {
	var count int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM conflict_set_members m
		JOIN conflict_sets cs ON cs.id = m.conflict_set_id
		WHERE m.claim_id = ? AND cs.status = ? AND cs.id != ?`,
		claimID, types.ConflictOpen, excludeSetID).Scan(&count)
	if err != nil {
		return false, errors.Wrap(err, "count open sets")
	}
	return count > 0, nil
}

// claimInOpenConflictSetTx reports whether any open set claims the claim.
// Used by claim edits: a contested member's status belongs to its open sets.
func claimInOpenConflictSetTx(ctx context.Context, tx *sql.Tx, claimID string) (bool, error) {
	var count int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM conflict_set_members m
		JOIN conflict_sets cs ON cs.id = m.conflict_set_id
		WHERE m.claim_id = ? AND cs.status = ?`,
		claimID, types.ConflictOpen).Scan(&count)
	if err != nil {
		return false, errors.Wrap(err, "count open sets")
	}
	return count > 0, nil
}

func containsString(list []string, target string) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}
