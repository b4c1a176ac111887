package models

import (
	"encoding/json"
	"time"
)

// ReviewStatus is the lifecycle state of a review queue item
type ReviewStatus string

const (
	ReviewStatusOpen      ReviewStatus = "open"
	ReviewStatusConfirmed ReviewStatus = "confirmed"
	ReviewStatusRejected  ReviewStatus = "rejected"
)

// ReviewItem is one human-review task produced by a review_pending decision.
// It references the decision that spawned it; the decision row itself is never edited.
type ReviewItem struct {
	ID              string          `json:"id" db:"id"`
	DecisionID      string          `json:"decision_id" db:"decision_id"`
	EntityID        *string         `json:"entity_id,omitempty" db:"entity_id"`
	CandidateID     *string         `json:"candidate_id,omitempty" db:"candidate_id"`
	Reason          string          `json:"reason" db:"reason"`
	NormalizedInput json.RawMessage `json:"normalized_input" db:"normalized_input"`
	Status          ReviewStatus    `json:"status" db:"status"`
	ResolvedBy      *string         `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// ReviewActionRequest confirms or rejects a review item
type ReviewActionRequest struct {
	ResolvedBy string  `json:"resolved_by" validate:"required"`
	Note       *string `json:"note,omitempty"`
}

// ReviewListResponse is the paged review queue listing
type ReviewListResponse struct {
	Items      []ReviewItem `json:"items"`
	TotalCount int          `json:"total_count"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
}
