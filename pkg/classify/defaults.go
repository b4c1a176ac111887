package classify

import (
	"fmt"

	"github.com/Ramsey-B/clover/pkg/models"
)

// DefaultRules returns the built-in classifier rule set. Rules loaded from
// classifier_rules extend these; they are never replaced.
func DefaultRules() []models.ClassifierRule {
	var rules []models.ClassifierRule
	add := func(category models.ClassifierRuleCategory, kind models.ClassifierMatchKind, patterns ...string) {
		for _, p := range patterns {
			rules = append(rules, models.ClassifierRule{
				ID:        fmt.Sprintf("default:%s:%s:%s", category, kind, p),
				Category:  category,
				MatchKind: kind,
				Pattern:   p,
				Active:    true,
			})
		}
	}

	add(models.RuleCategoryOrganization, models.MatchKindKeyword,
		"rescue", "shelter", "clinic", "veterinary", "vet", "hospital",
		"spca", "humane", "society", "foundation", "nonprofit", "sanctuary",
		"inc", "llc", "corp", "company", "church", "school", "county",
		"animal control", "front desk", "forgotten felines",
	)
	add(models.RuleCategoryOrganization, models.MatchKindRegex,
		`\bdept\b`, `\bdepartment\b`,
	)

	// Leading street number plus a street-suffix word reads as an address typed
	// into the name field.
	add(models.RuleCategoryAddressFragment, models.MatchKindRegex,
		`^\d+\s+\S+.*\b(st|ave|rd|blvd|dr|ln|ct|way|cir|hwy|street|avenue|road|drive|lane|court|circle|highway)\b`,
		`^(po box|p o box)\b`,
	)

	add(models.RuleCategoryApartmentComplex, models.MatchKindKeyword,
		"apartments", "apts", "villas", "estates", "townhomes", "condos",
	)
	add(models.RuleCategoryApartmentComplex, models.MatchKindRegex,
		`\bmobile home park\b`, `\btrailer park\b`, `\bunit \d+\b`, `\bapt \d+\b`,
	)

	add(models.RuleCategoryGarbage, models.MatchKindExact,
		"test", "testing", "unknown", "n/a", "na", "none", "no name",
		"asdf", "xxx", "caller", "anonymous",
	)
	add(models.RuleCategoryGarbage, models.MatchKindRegex,
		`^\d+$`,        // digits only
		`^[^a-z0-9]+$`, // no letters or digits at all
		`^.$`,          // single character
	)

	return rules
}
