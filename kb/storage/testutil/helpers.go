package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/personakb/persona/db"
	"github.com/personakb/persona/kb/types"
)

// SetupTestDB creates an in-memory SQLite database for testing.
// Uses real migrations to ensure test schema matches production schema.
func SetupTestDB(t *testing.T) *sql.DB {
	testDB, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { testDB.Close() })

	// Every pooled connection to a plain ":memory:" DSN gets its own empty
	// database; one connection keeps all queries on the migrated one.
	testDB.SetMaxOpenConns(1)

	_, err = testDB.Exec("PRAGMA foreign_keys = ON")
	require.NoError(t, err)

	// Apply real migrations (ensures test schema = production schema)
	err = db.Migrate(testDB, nil)
	require.NoError(t, err, "Failed to run migrations")

	return testDB
}

// NewClaim returns a minimal active claim for fixtures.
func NewClaim(id, statement string) *types.Claim {
	now := time.Now().UTC()
	return &types.Claim{
		ID:            id,
		Statement:     statement,
		ClaimType:     types.ClaimTypeFact,
		ContextDomain: types.DomainPersonal,
		Status:        types.StatusActive,
		FriendlyID:    id + "-fid",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// InsertClaim inserts a claim fixture directly, bypassing store validation.
func InsertClaim(t *testing.T, database *sql.DB, claim *types.Claim) {
	_, err := database.Exec(
		`INSERT INTO claims (id, statement, claim_type, context_domain, status, friendly_id, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, '{}', ?, ?)`,
		claim.ID,
		claim.Statement,
		claim.ClaimType,
		claim.ContextDomain,
		claim.Status,
		claim.FriendlyID,
		claim.CreatedAt.Format(time.RFC3339),
		claim.UpdatedAt.Format(time.RFC3339),
	)
	require.NoError(t, err, "Failed to insert claim fixture %s", claim.ID)
}

// Ctx returns a context with a short deadline for store calls in tests.
func Ctx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
