package core

import "time"

type Relation string

const (
	RelCausedBy    Relation = "caused_by"
	RelReplacedBy  Relation = "replaced_by"
	RelRelatedTo   Relation = "related_to"
	RelDependsOn   Relation = "depends_on"
	RelContradicts Relation = "contradicts"
	RelDerivedFrom Relation = "derived_from"
)

func (r Relation) Valid() bool {
	switch r {
	case RelCausedBy, RelReplacedBy, RelRelatedTo, RelDependsOn, RelContradicts, RelDerivedFrom:
		return true
	}
	return false
}

// Edge is a directed typed relation between two units.
// (SourceID, TargetID, Relation) is unique.
type Edge struct {
	SourceID  string    `json:"sourceId"`
	TargetID  string    `json:"targetId"`
	Relation  Relation  `json:"relation"`
	Weight    float64   `json:"weight"`
	CreatedAt time.Time `json:"createdAt"`
}

// RelatedUnit is a graph neighbor found by traversal.
type RelatedUnit struct {
	ID       string
	Depth    int
	Score    float64
	Relation Relation
}
