package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/personakb/persona/db"
	"github.com/personakb/persona/errors"
	"github.com/personakb/persona/kb/types"
)

// EntityStore persists entities and their claim links. Entities are flat:
// no hierarchy, no lifecycle.
type EntityStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewEntityStore creates a new SQL-based entity store
func NewEntityStore(database *sql.DB, logger *zap.SugaredLogger) *EntityStore {
	return &EntityStore{db: database, logger: logger}
}

// Add inserts a new entity.
func (s *EntityStore) Add(ctx context.Context, entity *types.Entity) error {
	if entity == nil {
		return errors.New("entity is nil")
	}
	if strings.TrimSpace(entity.Name) == "" {
		return errors.New("entity name cannot be empty")
	}
	if entity.ID == "" {
		entity.ID = uuid.NewString()
	}
	if entity.FriendlyID == "" {
		entity.FriendlyID = friendlyIDFromStatement(entity.Name)
	}
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO entities (id, name, friendly_id, created_at) VALUES (?, ?, ?, ?)",
		entity.ID, entity.Name, entity.FriendlyID, entity.CreatedAt.Format(time.RFC3339))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return errors.Wrapf(errors.ErrDuplicateFriendlyID, "friendly id %q", entity.FriendlyID)
		}
		return errors.Wrap(err, "insert entity")
	}
	return nil
}

// Get returns an entity by id.
func (s *EntityStore) Get(ctx context.Context, id string) (*types.Entity, error) {
	return scanEntityRow(s.db.QueryRowContext(ctx,
		"SELECT id, name, friendly_id, created_at FROM entities WHERE id = ?", id))
}

// GetByFriendlyID returns an entity by its friendly id.
func (s *EntityStore) GetByFriendlyID(ctx context.Context, friendlyID string) (*types.Entity, error) {
	return scanEntityRow(s.db.QueryRowContext(ctx,
		"SELECT id, name, friendly_id, created_at FROM entities WHERE friendly_id = ?", friendlyID))
}

// GetByName returns an entity by case-insensitive name. The earliest-created
// match wins.
func (s *EntityStore) GetByName(ctx context.Context, name string) (*types.Entity, error) {
	return scanEntityRow(s.db.QueryRowContext(ctx,
		"SELECT id, name, friendly_id, created_at FROM entities WHERE name = ? COLLATE NOCASE ORDER BY created_at ASC LIMIT 1",
		name))
}

// ClaimsFor returns the claims linked to an entity, optionally restricted
// to the given statuses, newest first.
func (s *EntityStore) ClaimsFor(ctx context.Context, entityID string, statuses []types.ClaimStatus) ([]*types.Claim, error) {
	query := "SELECT " + prefixedClaimColumns("c") +
		" FROM claims c JOIN claim_entities l ON l.claim_id = c.id WHERE l.entity_id = ?"
	args := []interface{}{entityID}

	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		query += " AND c.status IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY c.created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query entity claims")
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

// Delete removes an entity and its claim links.
func (s *EntityStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin entity delete")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM claim_entities WHERE entity_id = ?", id); err != nil {
		return errors.Wrapf(err, "unlink claims from entity %s", id)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM entities WHERE id = ?", id)
	if err != nil {
		return errors.Wrapf(err, "delete entity %s", id)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if affected == 0 {
		return errors.Wrapf(errors.ErrNotFound, "entity %s", id)
	}
	return errors.Wrap(tx.Commit(), "commit entity delete")
}

func scanEntityRow(row rowScanner) (*types.Entity, error) {
	var (
		entity    types.Entity
		createdAt string
	)
	err := row.Scan(&entity.ID, &entity.Name, &entity.FriendlyID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, errors.Wrap(errors.ErrNotFound, "entity")
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan entity")
	}
	entity.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &entity, nil
}
