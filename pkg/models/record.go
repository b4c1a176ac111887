package models

// CandidateRecord is an incoming raw record from an ingestion adapter. Fields are
// as-received; normalization happens inside the resolver.
type CandidateRecord struct {
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone"`
	Address      string     `json:"address"`
	Kind         EntityKind `json:"kind"`
	SourceSystem string     `json:"source_system" validate:"required"`
	SourceBatch  *string    `json:"source_batch,omitempty"`
}

// NormalizedRecord is a CandidateRecord after normalization. Nil pointers mean
// the field was absent or normalized to nothing.
type NormalizedRecord struct {
	FirstName    *string    `json:"first_name,omitempty"`
	DisplayName  *string    `json:"display_name,omitempty"`
	Email        *string    `json:"email,omitempty"`
	Phone        *string    `json:"phone,omitempty"`
	Address      *string    `json:"address,omitempty"`
	Kind         EntityKind `json:"kind"`
	SourceSystem string     `json:"source_system"`
	SourceBatch  *string    `json:"source_batch,omitempty"`
}

// HasContact returns true if at least one contact identifier survived normalization
func (r *NormalizedRecord) HasContact() bool {
	return r.Email != nil || r.Phone != nil
}

// Identifiers returns the normalized identifier values keyed by kind
func (r *NormalizedRecord) Identifiers() map[IdentifierKind]string {
	out := make(map[IdentifierKind]string, 3)
	if r.Email != nil {
		out[IdentifierKindEmail] = *r.Email
	}
	if r.Phone != nil {
		out[IdentifierKindPhone] = *r.Phone
	}
	if r.Address != nil {
		out[IdentifierKindAddress] = *r.Address
	}
	return out
}
