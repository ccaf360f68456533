// Package storage provides the SQLite persistence layer for the Persona
// claim engine: claims, hierarchy forests, conflict sets, and cached
// embeddings. It handles transactions, JSON serialization, and query
// construction.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/personakb/persona/db"
	"github.com/personakb/persona/errors"
	"github.com/personakb/persona/kb/types"
)

const claimColumns = `id, statement, claim_type, context_domain, status, confidence,
	valid_from, valid_to, friendly_id, metadata, created_at, updated_at`

const claimInsertQuery = `
	INSERT INTO claims (id, statement, claim_type, context_domain, status, confidence,
		valid_from, valid_to, friendly_id, metadata, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// prefixedClaimColumns qualifies the claim column list with a table alias
// for joined queries.
func prefixedClaimColumns(alias string) string {
	cols := strings.Split(claimColumns, ",")
	for i, col := range cols {
		cols[i] = alias + "." + strings.TrimSpace(col)
	}
	return strings.Join(cols, ", ")
}

// defaultListLimit is applied when the caller passes limit <= 0.
// This is a server-side cap, not "unlimited".
const defaultListLimit = 500

// ClaimStore implements kb.ClaimStore with a SQLite backend.
type ClaimStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewClaimStore creates a new SQL-based claim store
func NewClaimStore(database *sql.DB, logger *zap.SugaredLogger) *ClaimStore {
	return &ClaimStore{
		db:     database,
		logger: logger,
	}
}

// Add inserts a new claim and its tag/entity links in one transaction.
func (s *ClaimStore) Add(ctx context.Context, claim *types.Claim, tagIDs, entityIDs []string) error {
	if claim == nil {
		return errors.New("claim is nil")
	}
	if strings.TrimSpace(claim.Statement) == "" {
		return errors.New("claim statement cannot be empty")
	}

	applyClaimDefaults(claim)

	if err := validateClaim(claim); err != nil {
		return err
	}

	metadataJSON, err := marshalMetadata(claim.Metadata)
	if err != nil {
		return err
	}

	generated := claim.FriendlyID == ""
	if generated {
		claim.FriendlyID = friendlyIDFromStatement(claim.Statement)
	}

	// A generated friendly id can still collide; retry with a fresh suffix.
	// A caller-provided id that collides is an error.
	const maxAttempts = 3
	for attempt := 0; ; attempt++ {
		err = s.insertClaim(ctx, claim, metadataJSON, tagIDs, entityIDs)
		if err == nil {
			return nil
		}
		if !db.IsUniqueViolation(err) {
			return err
		}
		if !generated || attempt+1 >= maxAttempts {
			return errors.Wrapf(errors.ErrDuplicateFriendlyID, "friendly id %q", claim.FriendlyID)
		}
		claim.FriendlyID = friendlyIDFromStatement(claim.Statement)
	}
}

func (s *ClaimStore) insertClaim(ctx context.Context, claim *types.Claim, metadataJSON string, tagIDs, entityIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin claim insert")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, claimInsertQuery,
		claim.ID,
		claim.Statement,
		claim.ClaimType,
		claim.ContextDomain,
		claim.Status,
		claim.Confidence,
		formatNullableTime(claim.ValidFrom),
		formatNullableTime(claim.ValidTo),
		claim.FriendlyID,
		metadataJSON,
		claim.CreatedAt.UTC().Format(time.RFC3339),
		claim.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return err
		}
		return errors.Wrap(err, "insert claim")
	}

	for _, tagID := range tagIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO claim_tags (claim_id, tag_id) VALUES (?, ?)",
			claim.ID, tagID); err != nil {
			return errors.Wrapf(err, "link claim %s to tag %s", claim.ID, tagID)
		}
	}
	for _, entityID := range entityIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO claim_entities (claim_id, entity_id) VALUES (?, ?)",
			claim.ID, entityID); err != nil {
			return errors.Wrapf(err, "link claim %s to entity %s", claim.ID, entityID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit claim insert")
	}

	if s.logger != nil {
		s.logger.Debugw("Claim created",
			"claim_id", claim.ID,
			"friendly_id", claim.FriendlyID,
			"tags", len(tagIDs),
			"entities", len(entityIDs),
		)
	}
	return nil
}

// Edit applies a patch to an existing claim. If the statement changes, the
// cached embedding for the claim is invalidated in the same transaction so
// the next vector search recomputes it.
func (s *ClaimStore) Edit(ctx context.Context, id string, patch types.ClaimPatch) (*types.Claim, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin claim edit")
	}
	defer tx.Rollback()

	claim, err := scanClaimRow(tx.QueryRowContext(ctx,
		"SELECT "+claimColumns+" FROM claims WHERE id = ?", id))
	if err != nil {
		return nil, err
	}

	statementChanged := patch.Statement != nil && *patch.Statement != claim.Statement

	if patch.Status != nil && *patch.Status != claim.Status {
		// Contested is entered only through the conflict manager and
		// retracted only through Delete.
		switch *patch.Status {
		case types.StatusContested:
			return nil, errors.Newf("claim %s: contested is set by conflict sets, not by edit", id)
		case types.StatusRetracted:
			return nil, errors.Newf("claim %s: use delete to retract a claim", id)
		}
		if claim.Status == types.StatusContested {
			inOpenSet, err := claimInOpenConflictSetTx(ctx, tx, id)
			if err != nil {
				return nil, err
			}
			if inOpenSet {
				return nil, errors.Newf("claim %s is contested by an open conflict set; resolve or ignore it first", id)
			}
		}
	}

	if patch.Statement != nil {
		claim.Statement = *patch.Statement
	}
	if patch.ClaimType != nil {
		claim.ClaimType = *patch.ClaimType
	}
	if patch.ContextDomain != nil {
		claim.ContextDomain = *patch.ContextDomain
	}
	if patch.Status != nil {
		claim.Status = *patch.Status
	}
	if patch.Confidence != nil {
		claim.Confidence = patch.Confidence
	}
	if patch.ValidFrom != nil {
		claim.ValidFrom = patch.ValidFrom
	}
	if patch.ValidTo != nil {
		claim.ValidTo = patch.ValidTo
	}
	if patch.Metadata != nil {
		claim.Metadata = patch.Metadata
	}
	claim.UpdatedAt = time.Now().UTC()

	if err := validateClaim(claim); err != nil {
		return nil, err
	}
	metadataJSON, err := marshalMetadata(claim.Metadata)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE claims
		SET statement = ?, claim_type = ?, context_domain = ?, status = ?,
			confidence = ?, valid_from = ?, valid_to = ?, metadata = ?, updated_at = ?
		WHERE id = ?`,
		claim.Statement,
		claim.ClaimType,
		claim.ContextDomain,
		claim.Status,
		claim.Confidence,
		formatNullableTime(claim.ValidFrom),
		formatNullableTime(claim.ValidTo),
		metadataJSON,
		claim.UpdatedAt.Format(time.RFC3339),
		id,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "update claim %s", id)
	}

	if statementChanged {
		if err := invalidateEmbeddingTx(ctx, tx, id); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit claim edit")
	}

	if s.logger != nil {
		s.logger.Debugw("Claim edited",
			"claim_id", id,
			"statement_changed", statementChanged,
		)
	}
	return claim, nil
}

// Delete soft-deletes a claim by setting its status to retracted. Hard
// deletion is disallowed: conflict sets and hierarchy links may still
// reference the id.
func (s *ClaimStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE claims SET status = ?, updated_at = ? WHERE id = ?",
		types.StatusRetracted, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return errors.Wrapf(err, "retract claim %s", id)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if affected == 0 {
		return errors.Wrapf(errors.ErrNotFound, "claim %s", id)
	}

	if s.logger != nil {
		s.logger.Debugw("Claim retracted", "claim_id", id)
	}
	return nil
}

// Get returns a claim by id.
func (s *ClaimStore) Get(ctx context.Context, id string) (*types.Claim, error) {
	return scanClaimRow(s.db.QueryRowContext(ctx,
		"SELECT "+claimColumns+" FROM claims WHERE id = ?", id))
}

// GetByFriendlyID returns a claim by its friendly id.
func (s *ClaimStore) GetByFriendlyID(ctx context.Context, friendlyID string) (*types.Claim, error) {
	return scanClaimRow(s.db.QueryRowContext(ctx,
		"SELECT "+claimColumns+" FROM claims WHERE friendly_id = ?", friendlyID))
}

// List returns claims matching the filters, newest first.
func (s *ClaimStore) List(ctx context.Context, filters types.SearchFilters) ([]*types.Claim, error) {
	qb := &queryBuilder{}
	qb.applySearchFilters(filters)

	limit := filters.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := "SELECT " + claimColumns + " FROM claims WHERE " + qb.build() +
		" ORDER BY created_at DESC LIMIT ?"
	args := append(qb.args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list claims")
	}
	defer rows.Close()

	var claims []*types.Claim
	for rows.Next() {
		claim, err := scanClaimRow(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate claims")
	}
	return claims, nil
}

// GetMany returns the claims for a set of ids, skipping missing ones.
func (s *ClaimStore) GetMany(ctx context.Context, ids []string) ([]*types.Claim, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+claimColumns+" FROM claims WHERE id IN ("+strings.Join(placeholders, ", ")+")",
		args...)
	if err != nil {
		return nil, errors.Wrap(err, "get claims by ids")
	}
	defer rows.Close()

	var claims []*types.Claim
	for rows.Next() {
		claim, err := scanClaimRow(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}
	return claims, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanClaimRow(row rowScanner) (*types.Claim, error) {
	var (
		claim                types.Claim
		confidence           sql.NullFloat64
		validFrom, validTo   sql.NullString
		metadataJSON         string
		createdAt, updatedAt string
	)

	err := row.Scan(
		&claim.ID,
		&claim.Statement,
		&claim.ClaimType,
		&claim.ContextDomain,
		&claim.Status,
		&confidence,
		&validFrom,
		&validTo,
		&claim.FriendlyID,
		&metadataJSON,
		&createdAt,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.Wrap(errors.ErrNotFound, "claim")
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan claim")
	}

	if confidence.Valid {
		claim.Confidence = &confidence.Float64
	}
	claim.ValidFrom = parseNullableTime(validFrom)
	claim.ValidTo = parseNullableTime(validTo)
	claim.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	claim.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	if metadataJSON != "" && metadataJSON != "{}" {
		if err := json.Unmarshal([]byte(metadataJSON), &claim.Metadata); err != nil {
			return nil, errors.Wrapf(err, "parse metadata for claim %s", claim.ID)
		}
	}

	return &claim, nil
}

func applyClaimDefaults(claim *types.Claim) {
	if claim.ID == "" {
		claim.ID = uuid.NewString()
	}
	if claim.ClaimType == "" {
		claim.ClaimType = types.ClaimTypeFact
	}
	if claim.ContextDomain == "" {
		claim.ContextDomain = types.DomainPersonal
	}
	if claim.Status == "" {
		claim.Status = types.StatusActive
	}
	now := time.Now().UTC()
	if claim.CreatedAt.IsZero() {
		claim.CreatedAt = now
	}
	claim.UpdatedAt = now
}

func validateClaim(claim *types.Claim) error {
	if !types.ValidClaimTypes[claim.ClaimType] {
		return errors.Newf("invalid claim type %q", claim.ClaimType)
	}
	if !types.ValidStatuses[claim.Status] {
		return errors.Newf("invalid claim status %q", claim.Status)
	}
	if claim.Confidence != nil && (*claim.Confidence < 0 || *claim.Confidence > 1) {
		return errors.Newf("confidence %f out of range [0, 1]", *claim.Confidence)
	}
	for key := range claim.Metadata {
		if !types.RecognizedMetaKeys[key] {
			return errors.Newf("unrecognized metadata key %q", key)
		}
	}
	return nil
}

func marshalMetadata(md types.Metadata) (string, error) {
	if len(md) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(md)
	if err != nil {
		return "", errors.Wrap(err, "marshal metadata")
	}
	return string(raw), nil
}

func formatNullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// friendlyIDFromStatement derives a human-readable key from the first words
// of the statement plus a short random suffix.
func friendlyIDFromStatement(statement string) string {
	slug := nonSlugChars.ReplaceAllString(strings.ToLower(statement), "-")
	slug = strings.Trim(slug, "-")

	words := strings.Split(slug, "-")
	if len(words) > 4 {
		words = words[:4]
	}
	slug = strings.Join(words, "-")
	if slug == "" {
		slug = "claim"
	}

	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return slug + "-" + suffix
}
