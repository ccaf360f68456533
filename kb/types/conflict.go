package types

import "time"

// ConflictStatus is the state of a conflict set: open -> resolved | ignored.
type ConflictStatus string

const (
	ConflictOpen     ConflictStatus = "open"
	ConflictResolved ConflictStatus = "resolved"
	ConflictIgnored  ConflictStatus = "ignored"
)

// ConflictSet groups two or more mutually contradicting claims pending
// resolution. While the set is open every member claim is contested.
type ConflictSet struct {
	ID              string         `db:"id" json:"id"`
	Status          ConflictStatus `db:"status" json:"status"`
	ResolutionNotes string         `db:"resolution_notes" json:"resolution_notes"`
	MemberClaimIDs  []string       `json:"member_claim_ids"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// IsOpen reports whether the set still awaits resolution.
func (cs *ConflictSet) IsOpen() bool {
	return cs.Status == ConflictOpen
}
