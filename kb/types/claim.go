// Package types defines the core data model of the Persona claim engine:
// claims, hierarchy nodes, conflict sets, and search results.
package types

import (
	"time"
)

// ClaimType categorizes what kind of statement a claim makes
type ClaimType string

const (
	ClaimTypeFact        ClaimType = "fact"
	ClaimTypeMemory      ClaimType = "memory"
	ClaimTypeDecision    ClaimType = "decision"
	ClaimTypePreference  ClaimType = "preference"
	ClaimTypeTask        ClaimType = "task"
	ClaimTypeReminder    ClaimType = "reminder"
	ClaimTypeHabit       ClaimType = "habit"
	ClaimTypeObservation ClaimType = "observation"
)

// ClaimStatus is the lifecycle status of a claim
type ClaimStatus string

const (
	StatusDraft      ClaimStatus = "draft"
	StatusActive     ClaimStatus = "active"
	StatusContested  ClaimStatus = "contested"
	StatusHistorical ClaimStatus = "historical"
	StatusSuperseded ClaimStatus = "superseded"
	StatusRetracted  ClaimStatus = "retracted"
)

// Domain is the life area a claim belongs to
type Domain string

const (
	DomainPersonal Domain = "personal"
	DomainWork     Domain = "work"
	DomainHealth   Domain = "health"
	DomainFinance  Domain = "finance"
	DomainSocial   Domain = "social"
)

// Metadata keys recognized by the store. Arbitrary keys are rejected so the
// metadata blob stays checkable.
const (
	MetaPinned     = "pinned"
	MetaSource     = "source"
	MetaVisibility = "visibility"
)

// Metadata is a typed key-value map carried on a claim.
type Metadata map[string]string

// RecognizedMetaKeys lists the keys Validate accepts.
var RecognizedMetaKeys = map[string]bool{
	MetaPinned:     true,
	MetaSource:     true,
	MetaVisibility: true,
}

// Claim is an atomic, independently-addressable statement about a person
// with a lifecycle status.
type Claim struct {
	ID            string      `db:"id" json:"id"`
	Statement     string      `db:"statement" json:"statement"`
	ClaimType     ClaimType   `db:"claim_type" json:"claim_type"`
	ContextDomain Domain      `db:"context_domain" json:"context_domain"`
	Status        ClaimStatus `db:"status" json:"status"`
	Confidence    *float64    `db:"confidence" json:"confidence,omitempty"`
	ValidFrom     *time.Time  `db:"valid_from" json:"valid_from,omitempty"`
	ValidTo       *time.Time  `db:"valid_to" json:"valid_to,omitempty"`
	FriendlyID    string      `db:"friendly_id" json:"friendly_id"`
	Metadata      Metadata    `db:"metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"`
}

// IsContested reports whether the claim is a member of an open conflict set.
func (c *Claim) IsContested() bool {
	return c.Status == StatusContested
}

// ValidAt reports whether ts falls inside the claim's validity window.
// A nil bound is open-ended.
func (c *Claim) ValidAt(ts time.Time) bool {
	if c.ValidFrom != nil && ts.Before(*c.ValidFrom) {
		return false
	}
	if c.ValidTo != nil && ts.After(*c.ValidTo) {
		return false
	}
	return true
}

// ClaimPatch carries the mutable fields of a claim edit. Nil fields are
// left unchanged.
type ClaimPatch struct {
	Statement     *string      `json:"statement,omitempty"`
	ClaimType     *ClaimType   `json:"claim_type,omitempty"`
	ContextDomain *Domain      `json:"context_domain,omitempty"`
	Status        *ClaimStatus `json:"status,omitempty"`
	Confidence    *float64     `json:"confidence,omitempty"`
	ValidFrom     *time.Time   `json:"valid_from,omitempty"`
	ValidTo       *time.Time   `json:"valid_to,omitempty"`
	Metadata      Metadata     `json:"metadata,omitempty"`
}

// ValidClaimTypes enumerates the accepted claim types.
var ValidClaimTypes = map[ClaimType]bool{
	ClaimTypeFact:        true,
	ClaimTypeMemory:      true,
	ClaimTypeDecision:    true,
	ClaimTypePreference:  true,
	ClaimTypeTask:        true,
	ClaimTypeReminder:    true,
	ClaimTypeHabit:       true,
	ClaimTypeObservation: true,
}

// ValidDomains enumerates the accepted context domains.
var ValidDomains = map[Domain]bool{
	DomainPersonal: true,
	DomainWork:     true,
	DomainHealth:   true,
	DomainFinance:  true,
	DomainSocial:   true,
}

// ValidStatuses enumerates the accepted lifecycle statuses.
var ValidStatuses = map[ClaimStatus]bool{
	StatusDraft:      true,
	StatusActive:     true,
	StatusContested:  true,
	StatusHistorical: true,
	StatusSuperseded: true,
	StatusRetracted:  true,
}
