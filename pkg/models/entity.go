package models

import (
	"time"
)

// EntityKind identifies what kind of real-world thing an entity row represents
type EntityKind string

const (
	EntityKindPerson EntityKind = "person"
	EntityKindPlace  EntityKind = "place"
	EntityKindAnimal EntityKind = "animal"
)

// IsValid returns true for a known entity kind
func (k EntityKind) IsValid() bool {
	switch k {
	case EntityKindPerson, EntityKindPlace, EntityKindAnimal:
		return true
	}
	return false
}

// Entity is a canonical identity record. A non-nil MergedInto marks the row as a
// tombstone pointing at the surviving entity.
type Entity struct {
	ID             string     `json:"id" db:"id"`
	Kind           EntityKind `json:"kind" db:"kind"`
	DisplayName    *string    `json:"display_name,omitempty" db:"display_name"`
	MergedInto     *string    `json:"merged_into,omitempty" db:"merged_into"`
	SourceSystem   string     `json:"source_system" db:"source_system"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty" db:"last_activity_at"`
}

// IsTombstone returns true if the entity was merged away
func (e *Entity) IsTombstone() bool {
	return e.MergedInto != nil
}

// EntityResponse is the read response for an entity, including chain resolution info
type EntityResponse struct {
	Entity      Entity       `json:"entity"`
	Canonical   *Entity      `json:"canonical,omitempty"` // set when the requested id was a tombstone
	Identifiers []Identifier `json:"identifiers,omitempty"`
}
