package models

import (
	"encoding/json"
	"time"
)

// MergeRecord documents one consolidation of a loser entity into a keeper.
// Rows are append-only; re-merging an already-merged pair returns the prior row.
type MergeRecord struct {
	ID          string          `json:"id" db:"id"`
	LoserID     string          `json:"loser_id" db:"loser_id"`
	KeeperID    string          `json:"keeper_id" db:"keeper_id"`
	Reason      string          `json:"reason" db:"reason"`
	Actor       string          `json:"actor" db:"actor"`
	MovedCounts json.RawMessage `json:"moved_counts,omitempty" db:"moved_counts"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// MergeRequest is the API request to merge two entities
type MergeRequest struct {
	LoserID  string `json:"loser_id" validate:"required,uuid"`
	KeeperID string `json:"keeper_id" validate:"required,uuid"`
	Reason   string `json:"reason" validate:"required"`
	Actor    string `json:"actor" validate:"required"`
}

// MergeResult is returned from a merge operation
type MergeResult struct {
	Record        *MergeRecord `json:"record"`
	KeeperID      string       `json:"keeper_id"`
	AlreadyMerged bool         `json:"already_merged"`
	MovedCounts   MovedCounts  `json:"moved_counts"`
}

// MovedCounts tallies rows re-pointed during a merge
type MovedCounts struct {
	Identifiers   int `json:"identifiers"`
	Relationships int `json:"relationships"`
}

// SweepRequest triggers a bulk merge of entity pairs sharing an identifier value
type SweepRequest struct {
	Kind  IdentifierKind `json:"kind" validate:"required"`
	Actor string         `json:"actor" validate:"required"`
	Limit int            `json:"limit"`
}

// SweepResult summarizes a bulk merge sweep
type SweepResult struct {
	PairsFound  int      `json:"pairs_found"`
	Merged      int      `json:"merged"`
	Skipped     int      `json:"skipped"`
	MergeIDs    []string `json:"merge_ids,omitempty"`
	SkipReasons []string `json:"skip_reasons,omitempty"`
}
