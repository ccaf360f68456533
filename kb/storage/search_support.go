package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/personakb/persona/errors"
	"github.com/personakb/persona/kb/types"
)

// RenderSearchFilters renders a SearchFilters value into a WHERE fragment
// with columns qualified by alias, plus its bind arguments. Search strategies
// use this so filtering happens in SQL, on the same path List uses.
func RenderSearchFilters(filters types.SearchFilters, alias string) (string, []interface{}) {
	qb := &queryBuilder{alias: alias}
	qb.applySearchFilters(filters)
	return qb.build(), qb.args
}

// ScanClaimWithScore scans a row of claim columns followed by one numeric
// score column, as produced by the search strategy queries.
func ScanClaimWithScore(rows *sql.Rows) (*types.Claim, float64, error) {
	var (
		claim                types.Claim
		confidence           sql.NullFloat64
		validFrom, validTo   sql.NullString
		metadataJSON         string
		createdAt, updatedAt string
		score                float64
	)

	err := rows.Scan(
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
		&score,
	)
	if err != nil {
		return nil, 0, errors.Wrap(err, "scan scored claim")
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
			return nil, 0, errors.Wrapf(err, "parse metadata for claim %s", claim.ID)
		}
	}
	return &claim, score, nil
}
