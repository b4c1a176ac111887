package models

import (
	"encoding/json"
	"time"
)

// DecisionType is the terminal outcome of a resolution attempt
type DecisionType string

const (
	DecisionRejected        DecisionType = "rejected"
	DecisionReviewPending   DecisionType = "review_pending"
	DecisionAutoMatch       DecisionType = "auto_match"
	DecisionHouseholdMember DecisionType = "household_member"
	DecisionNewEntity       DecisionType = "new_entity"
	DecisionMerged          DecisionType = "merged"
)

// Match rule tags recorded on scored candidates
const (
	RuleEmailExact            = "email_exact"
	RulePhoneExact            = "phone_exact"
	RulePhoneNameConflict     = "phone_name_conflict"
	RuleNameSimilarity        = "name_similarity"
	RuleAddressExact          = "address_exact"
	RuleAddressNameSimilarity = "address_name_similarity"
	RuleAreaCodeBoost         = "area_code_boost"
	RuleSoftBlacklistDemotion = "soft_blacklist_demotion"
)

// Confidence tiers attached to scored candidates
const (
	TierExact  = 0 // score >= 0.95
	TierStrong = 1 // 0.80 - 0.94
	TierWeak   = 2 // 0.50 - 0.79
)

// SignalScore is one fired match signal inside a candidate's breakdown
type SignalScore struct {
	Rule  string  `json:"rule"`
	Score float64 `json:"score"`
}

// ScoredCandidate is one existing entity scored against an incoming record
type ScoredCandidate struct {
	EntityID       string        `json:"entity_id"`
	DisplayName    *string       `json:"display_name,omitempty"`
	Score          float64       `json:"score"`
	Tier           int           `json:"tier"`
	Signals        []SignalScore `json:"signals"`
	NameSimilarity float64       `json:"name_similarity"`
	ForceReview    bool          `json:"force_review,omitempty"`
	LastActivityAt *time.Time    `json:"last_activity_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// MatchedRules returns the rule tags of all fired signals
func (c *ScoredCandidate) MatchedRules() []string {
	rules := make([]string, 0, len(c.Signals))
	for _, s := range c.Signals {
		rules = append(rules, s.Rule)
	}
	return rules
}

// HasRule returns true if the named rule fired for this candidate
func (c *ScoredCandidate) HasRule(rule string) bool {
	for _, s := range c.Signals {
		if s.Rule == rule {
			return true
		}
	}
	return false
}

// MatchDecision is one append-only audit row. Every resolution attempt writes
// exactly one, inside the attempt's transaction.
type MatchDecision struct {
	ID               string          `json:"id" db:"id"`
	Decision         DecisionType    `json:"decision" db:"decision"`
	EntityID         *string         `json:"entity_id,omitempty" db:"entity_id"`
	Reason           string          `json:"reason" db:"reason"`
	NormalizedInput  json.RawMessage `json:"normalized_input" db:"normalized_input"`
	Candidates       json.RawMessage `json:"candidates,omitempty" db:"candidates"`
	TopScore         *float64        `json:"top_score,omitempty" db:"top_score"`
	ThresholdVersion string          `json:"threshold_version" db:"threshold_version"`
	SourceSystem     string          `json:"source_system" db:"source_system"`
	SourceBatch      *string         `json:"source_batch,omitempty" db:"source_batch"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}

// ResolveResult is what the resolver returns to callers
type ResolveResult struct {
	Decision   DecisionType     `json:"decision"`
	EntityID   *string          `json:"entity_id,omitempty"`
	Reason     string           `json:"reason"`
	DecisionID string           `json:"decision_id"`
	Candidates []ScoredCandidate `json:"candidates,omitempty"`
}

// ListDecisionsRequest filters the match decision audit log
type ListDecisionsRequest struct {
	Decision         *DecisionType `query:"decision"`
	ThresholdVersion *string       `query:"threshold_version"`
	EntityID         *string       `query:"entity_id"`
	Since            *time.Time    `query:"since"`
	Until            *time.Time    `query:"until"`
	Page             int           `query:"page"`
	PageSize         int           `query:"page_size"`
}

// DecisionListResponse is the paged audit log listing
type DecisionListResponse struct {
	Items      []MatchDecision `json:"items"`
	TotalCount int             `json:"total_count"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
}
