package tree

import "time"

// Relation is a directed child -> parent edge. A nil ParentID marks an
// explicit root. At most one active relation exists per child; a move
// replaces the relation rather than adding a second one.
type Relation struct {
	ID       string  `json:"id,omitempty"`
	SpaceID  string  `json:"space_id,omitempty"`
	ChildID  string  `json:"child_id"`
	ParentID *string `json:"parent_id"`
}

// Version is an immutable snapshot descriptor for a space's relation set.
// Version numbers are monotonically increasing per space, assigned by the
// store at save time.
type Version struct {
	ID             string     `json:"id"`
	SpaceID        string     `json:"space_id,omitempty"`
	Version        int        `json:"version"`
	CreatedAt      time.Time  `json:"created_at"`
	CreatedBy      string     `json:"created_by,omitempty"`
	Relations      []Relation `json:"relations,omitempty"`
	RelationsCount int        `json:"relations_count"`
}
