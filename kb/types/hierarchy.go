package types

import "time"

// NodeKind distinguishes the two hierarchy forests.
type NodeKind string

const (
	KindTag     NodeKind = "tag"
	KindContext NodeKind = "context"
)

// Node is a tag or context in a parent-pointer forest. ParentID nil means
// the node is a root. The parent graph is a tree: acyclic, at most one parent.
type Node struct {
	ID         string     `db:"id" json:"id"`
	Kind       NodeKind   `json:"kind"`
	Name       string     `db:"name" json:"name"`
	ParentID   *string    `db:"parent_id" json:"parent_id,omitempty"`
	FriendlyID string     `db:"friendly_id" json:"friendly_id"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// NodePatch carries the mutable fields of a hierarchy edit. SetParent
// distinguishes "set parent to nil" from "leave parent unchanged".
type NodePatch struct {
	Name      *string `json:"name,omitempty"`
	ParentID  *string `json:"parent_id,omitempty"`
	SetParent bool    `json:"set_parent,omitempty"`
}

// Entity is a lightweight subject a claim can mention (a person, place,
// project). Entities have no hierarchy.
type Entity struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	FriendlyID string    `db:"friendly_id" json:"friendly_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
