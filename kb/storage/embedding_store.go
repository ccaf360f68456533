package storage

import (
	"context"
	"database/sql"
	"math"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/personakb/persona/errors"
)

// Embedding is a cached vector for a claim statement.
type Embedding struct {
	ID         string
	ClaimID    string
	Text       string
	Vector     []float32
	Model      string
	Dimensions int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EmbeddingStore caches claim embeddings in the embeddings table and mirrors
// them into the vec_embeddings virtual table for KNN queries. The vec0 table
// does not support UPSERT, so writes there are delete-then-insert.
type EmbeddingStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewEmbeddingStore creates a new SQL-based embedding store
func NewEmbeddingStore(database *sql.DB, logger *zap.SugaredLogger) *EmbeddingStore {
	return &EmbeddingStore{
		db:     database,
		logger: logger,
	}
}

// Save stores or replaces the cached embedding for a claim.
func (s *EmbeddingStore) Save(ctx context.Context, claimID, text, model string, vector []float32) error {
	if len(vector) == 0 {
		return errors.New("embedding vector is empty")
	}

	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return errors.Wrap(err, "serialize embedding")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin embedding save")
	}
	defer tx.Rollback()

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO embeddings (id, claim_id, text, embedding, model, dimensions, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(claim_id) DO UPDATE SET
			text = excluded.text,
			embedding = excluded.embedding,
			model = excluded.model,
			dimensions = excluded.dimensions,
			updated_at = excluded.updated_at`,
		id, claimID, text, blob, model, len(vector), now, now)
	if err != nil {
		return errors.Wrapf(err, "save embedding for claim %s", claimID)
	}

	// Read back the surviving row id: on conflict the original id wins.
	var rowID string
	if err := tx.QueryRowContext(ctx,
		"SELECT id FROM embeddings WHERE claim_id = ?", claimID).Scan(&rowID); err != nil {
		return errors.Wrap(err, "read embedding id")
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM vec_embeddings WHERE embedding_id = ?", rowID); err != nil {
		return errors.Wrap(err, "clear vector index row")
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO vec_embeddings (embedding_id, embedding) VALUES (?, ?)",
		rowID, blob); err != nil {
		return errors.Wrap(err, "insert vector index row")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit embedding save")
	}

	if s.logger != nil {
		s.logger.Debugw("Embedding cached",
			"claim_id", claimID, "model", model, "dimensions", len(vector))
	}
	return nil
}

// GetByClaim returns the cached embedding for a claim.
func (s *EmbeddingStore) GetByClaim(ctx context.Context, claimID string) (*Embedding, error) {
	var (
		emb                  Embedding
		blob                 []byte
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, claim_id, text, embedding, model, dimensions, created_at, updated_at
		FROM embeddings WHERE claim_id = ?`, claimID).
		Scan(&emb.ID, &emb.ClaimID, &emb.Text, &blob, &emb.Model, &emb.Dimensions,
			&createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "embedding for claim %s", claimID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan embedding")
	}

	emb.Vector = deserializeFloat32(blob)
	emb.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	emb.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &emb, nil
}

// GetByClaims returns the cached embeddings for a set of claims, keyed by
// claim id. Missing claims are simply absent from the map.
func (s *EmbeddingStore) GetByClaims(ctx context.Context, claimIDs []string) (map[string]*Embedding, error) {
	result := make(map[string]*Embedding, len(claimIDs))
	if len(claimIDs) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(claimIDs))
	args := make([]interface{}, len(claimIDs))
	for i, id := range claimIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, claim_id, text, embedding, model, dimensions, created_at, updated_at
		FROM embeddings WHERE claim_id IN (`+strings.Join(placeholders, ", ")+`)`,
		args...)
	if err != nil {
		return nil, errors.Wrap(err, "query embeddings")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			emb                  Embedding
			blob                 []byte
			createdAt, updatedAt string
		)
		if err := rows.Scan(&emb.ID, &emb.ClaimID, &emb.Text, &blob, &emb.Model,
			&emb.Dimensions, &createdAt, &updatedAt); err != nil {
			return nil, errors.Wrap(err, "scan embedding")
		}
		emb.Vector = deserializeFloat32(blob)
		emb.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		emb.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		result[emb.ClaimID] = &emb
	}
	return result, rows.Err()
}

// MissingForClaims returns the subset of claimIDs with no cached embedding,
// preserving input order.
func (s *EmbeddingStore) MissingForClaims(ctx context.Context, claimIDs []string) ([]string, error) {
	cached, err := s.GetByClaims(ctx, claimIDs)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, id := range claimIDs {
		if _, ok := cached[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// DeleteByClaim drops the cached embedding for a claim from both tables.
func (s *EmbeddingStore) DeleteByClaim(ctx context.Context, claimID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin embedding delete")
	}
	defer tx.Rollback()

	if err := invalidateEmbeddingTx(ctx, tx, claimID); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "commit embedding delete")
}

// invalidateEmbeddingTx removes a claim's embedding rows inside an existing
// transaction. Also used by the claim store when a statement edit makes the
// cached vector stale.
func invalidateEmbeddingTx(ctx context.Context, tx *sql.Tx, claimID string) error {
	var rowID string
	err := tx.QueryRowContext(ctx,
		"SELECT id FROM embeddings WHERE claim_id = ?", claimID).Scan(&rowID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "look up embedding")
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM vec_embeddings WHERE embedding_id = ?", rowID); err != nil {
		return errors.Wrap(err, "delete vector index row")
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM embeddings WHERE id = ?", rowID); err != nil {
		return errors.Wrap(err, "delete embedding row")
	}
	return nil
}

// deserializeFloat32 decodes the little-endian float32 blob format used by
// sqlite-vec.
func deserializeFloat32(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := uint32(blob[i*4]) |
			uint32(blob[i*4+1])<<8 |
			uint32(blob[i*4+2])<<16 |
			uint32(blob[i*4+3])<<24
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}
