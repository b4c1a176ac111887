package models

import (
	"time"
)

// NameClass is the classifier verdict for a display name
type NameClass string

const (
	NameClassLikelyPerson     NameClass = "likely_person"
	NameClassOrganization     NameClass = "organization"
	NameClassAddressFragment  NameClass = "address_fragment"
	NameClassApartmentComplex NameClass = "apartment_complex"
	NameClassGarbage          NameClass = "garbage"
)

// ClassifierRuleCategory groups rules by the verdict they produce.
// Evaluation order: organization, address_fragment, apartment_complex, garbage.
type ClassifierRuleCategory string

const (
	RuleCategoryOrganization     ClassifierRuleCategory = "organization"
	RuleCategoryAddressFragment  ClassifierRuleCategory = "address_fragment"
	RuleCategoryApartmentComplex ClassifierRuleCategory = "apartment_complex"
	RuleCategoryGarbage          ClassifierRuleCategory = "garbage"
)

// ClassifierMatchKind is how a rule's pattern is applied to a name
type ClassifierMatchKind string

const (
	MatchKindKeyword ClassifierMatchKind = "keyword"
	MatchKindPrefix  ClassifierMatchKind = "prefix"
	MatchKindSuffix  ClassifierMatchKind = "suffix"
	MatchKindRegex   ClassifierMatchKind = "regex"
	MatchKindExact   ClassifierMatchKind = "exact"
)

// ClassifierRule is one data-driven classification rule
type ClassifierRule struct {
	ID        string                 `json:"id" db:"id"`
	Category  ClassifierRuleCategory `json:"category" db:"category"`
	MatchKind ClassifierMatchKind    `json:"match_kind" db:"match_kind"`
	Pattern   string                 `json:"pattern" db:"pattern"`
	Active    bool                   `json:"active" db:"active"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt time.Time              `json:"updated_at" db:"updated_at"`
}

// Classification is the classifier output for one name
type Classification struct {
	Class       NameClass `json:"class"`
	MatchedRule *string   `json:"matched_rule,omitempty"`
	Pattern     *string   `json:"pattern,omitempty"`
}
