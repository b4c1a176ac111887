package models

import (
	"encoding/json"
	"time"
)

// Relation names used between entities
const (
	RelationHouseholdMember = "household_member"
	RelationResidentOf      = "resident_of"
	RelationCaretakerOf     = "caretaker_of"
)

// Relationship links two entities. Unique per (from, to, relation).
type Relationship struct {
	ID           string          `json:"id" db:"id"`
	FromEntityID string          `json:"from_entity_id" db:"from_entity_id"`
	ToEntityID   string          `json:"to_entity_id" db:"to_entity_id"`
	Relation     string          `json:"relation" db:"relation"`
	Data         json.RawMessage `json:"data,omitempty" db:"data"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}
