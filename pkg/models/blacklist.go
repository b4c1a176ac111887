package models

import (
	"encoding/json"
	"time"
)

// BlacklistClassification distinguishes hard blocks from soft shared-identifier entries
type BlacklistClassification string

const (
	// BlacklistHard rejects any record carrying the value
	BlacklistHard BlacklistClassification = "hard"
	// BlacklistSoft admits records whose name is clearly different from the names on file
	BlacklistSoft BlacklistClassification = "soft"
)

// IsValid returns true for a known classification
func (c BlacklistClassification) IsValid() bool {
	return c == BlacklistHard || c == BlacklistSoft
}

// BlacklistEntry marks an identifier value as organizational or shared.
// Soft entries carry the evidence that earned them the listing: how many distinct
// names have appeared under the value and a sample of those names.
type BlacklistEntry struct {
	ID                 string                  `json:"id" db:"id"`
	Kind               IdentifierKind          `json:"kind" db:"kind"`
	Value              string                  `json:"value" db:"value"`
	Classification     BlacklistClassification `json:"classification" db:"classification"`
	DistinctNameCount  int                     `json:"distinct_name_count" db:"distinct_name_count"`
	SampleNames        json.RawMessage         `json:"sample_names,omitempty" db:"sample_names"`
	RequiredSimilarity float64                 `json:"required_similarity" db:"required_similarity"`
	Note               *string                 `json:"note,omitempty" db:"note"`
	CreatedAt          time.Time               `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time               `json:"updated_at" db:"updated_at"`
}

// SampleNameList decodes the stored sample names
func (e *BlacklistEntry) SampleNameList() []string {
	if len(e.SampleNames) == 0 {
		return nil
	}
	var names []string
	if err := json.Unmarshal(e.SampleNames, &names); err != nil {
		return nil
	}
	return names
}

// CreateBlacklistEntryRequest adds a blacklist entry
type CreateBlacklistEntryRequest struct {
	Kind               IdentifierKind          `json:"kind" validate:"required"`
	Value              string                  `json:"value" validate:"required"`
	Classification     BlacklistClassification `json:"classification" validate:"required"`
	RequiredSimilarity float64                 `json:"required_similarity"`
	Note               *string                 `json:"note,omitempty"`
}

// BlacklistListResponse is the paged blacklist listing
type BlacklistListResponse struct {
	Items      []BlacklistEntry `json:"items"`
	TotalCount int              `json:"total_count"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
}

// RefreshEvidenceResult summarizes a blacklist evidence recomputation
type RefreshEvidenceResult struct {
	EntriesUpdated int `json:"entries_updated"`
	EntriesAdded   int `json:"entries_added"`
}
