package models

import (
	"time"
)

// IdentifierKind is the type of a contact identifier
type IdentifierKind string

const (
	IdentifierKindEmail   IdentifierKind = "email"
	IdentifierKindPhone   IdentifierKind = "phone"
	IdentifierKindAddress IdentifierKind = "address"
)

// IsValid returns true for a known identifier kind
func (k IdentifierKind) IsValid() bool {
	switch k {
	case IdentifierKindEmail, IdentifierKindPhone, IdentifierKindAddress:
		return true
	}
	return false
}

// Identifier is a normalized contact value attached to an entity.
// Values are stored post-normalization; the unique key is (entity_id, kind, value).
type Identifier struct {
	ID           string         `json:"id" db:"id"`
	EntityID     string         `json:"entity_id" db:"entity_id"`
	Kind         IdentifierKind `json:"kind" db:"kind"`
	Value        string         `json:"value" db:"value"`
	Confidence   float64        `json:"confidence" db:"confidence"`
	SourceSystem string         `json:"source_system" db:"source_system"`
	FirstSeenAt  time.Time      `json:"first_seen_at" db:"first_seen_at"`
	LastSeenAt   time.Time      `json:"last_seen_at" db:"last_seen_at"`
}
