// Package classify decides whether a display name belongs to a real person or
// to an organization, an address fragment, an apartment complex, or garbage data.
package classify

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalize"
)

// categoryOrder is the evaluation priority. The first category with a matching
// rule wins; likely_person is the fallthrough verdict.
var categoryOrder = []models.ClassifierRuleCategory{
	models.RuleCategoryOrganization,
	models.RuleCategoryAddressFragment,
	models.RuleCategoryApartmentComplex,
	models.RuleCategoryGarbage,
}

var categoryClass = map[models.ClassifierRuleCategory]models.NameClass{
	models.RuleCategoryOrganization:     models.NameClassOrganization,
	models.RuleCategoryAddressFragment:  models.NameClassAddressFragment,
	models.RuleCategoryApartmentComplex: models.NameClassApartmentComplex,
	models.RuleCategoryGarbage:          models.NameClassGarbage,
}

type compiledRule struct {
	id      string
	kind    models.ClassifierMatchKind
	pattern string
	re      *regexp.Regexp
}

// Classifier evaluates data-driven name rules. Database rules extend the
// built-in defaults and can be refreshed at runtime; evaluation itself is pure
// and lock-free beyond the read lock.
type Classifier struct {
	mu       sync.RWMutex
	defaults map[models.ClassifierRuleCategory][]compiledRule
	rules    map[models.ClassifierRuleCategory][]compiledRule
	logger   ectologger.Logger
}

// New creates a classifier seeded with the built-in default rules
func New(logger ectologger.Logger) *Classifier {
	// Defaults cannot fail compilation; they are tested.
	defaults, _ := compileRules(DefaultRules())
	return &Classifier{defaults: defaults, rules: defaults, logger: logger}
}

// Load compiles the given database rules and installs them alongside the
// built-in defaults, so an empty rules table still classifies. Inactive rules
// are skipped. A rule with an invalid regex fails the whole load so a bad
// refresh never degrades the classifier silently.
func (c *Classifier) Load(rules []models.ClassifierRule) error {
	compiled, err := compileRules(rules)
	if err != nil {
		return err
	}

	merged := make(map[models.ClassifierRuleCategory][]compiledRule, len(categoryOrder))
	for category, defaultRules := range c.defaults {
		merged[category] = append(merged[category], defaultRules...)
	}
	for category, extra := range compiled {
		merged[category] = append(merged[category], extra...)
	}

	c.mu.Lock()
	c.rules = merged
	c.mu.Unlock()

	c.logger.WithField("rule_count", len(rules)).Debug("classifier rules loaded")
	return nil
}

func compileRules(rules []models.ClassifierRule) (map[models.ClassifierRuleCategory][]compiledRule, error) {
	compiled := make(map[models.ClassifierRuleCategory][]compiledRule, len(categoryOrder))
	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		cr := compiledRule{id: rule.ID, kind: rule.MatchKind, pattern: rule.Pattern}
		if rule.MatchKind == models.MatchKindRegex {
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				return nil, fmt.Errorf("failed to compile classifier rule %s pattern %q: %w", rule.ID, rule.Pattern, err)
			}
			cr.re = re
		}
		compiled[rule.Category] = append(compiled[rule.Category], cr)
	}
	return compiled, nil
}

// Classify evaluates a display name against the rule tables. Categories are
// checked in priority order; the first match wins. Names that match nothing
// are likely_person.
func (c *Classifier) Classify(displayName string) models.Classification {
	name := normalize.CollapseWhitespace(strings.ToLower(displayName))
	if name == "" || isRepeatedRune(name) {
		return models.Classification{Class: models.NameClassGarbage}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, category := range categoryOrder {
		for _, rule := range c.rules[category] {
			if rule.matches(name) {
				return models.Classification{
					Class:       categoryClass[category],
					MatchedRule: strPtr(rule.id),
					Pattern:     strPtr(rule.pattern),
				}
			}
		}
	}

	return models.Classification{Class: models.NameClassLikelyPerson}
}

// IsResolvable returns true for verdicts the decision funnel may continue with
func IsResolvable(class models.NameClass) bool {
	return class == models.NameClassLikelyPerson
}

func (r compiledRule) matches(name string) bool {
	switch r.kind {
	case models.MatchKindKeyword:
		return containsWord(name, r.pattern)
	case models.MatchKindPrefix:
		return strings.HasPrefix(name, r.pattern)
	case models.MatchKindSuffix:
		return strings.HasSuffix(name, r.pattern)
	case models.MatchKindExact:
		return name == r.pattern
	case models.MatchKindRegex:
		return r.re != nil && r.re.MatchString(name)
	}
	return false
}

// containsWord matches pattern on word boundaries so "inc" does not hit "vincent"
func containsWord(name, pattern string) bool {
	if strings.Contains(pattern, " ") {
		return strings.Contains(name, pattern)
	}
	for _, word := range strings.Fields(name) {
		if word == pattern {
			return true
		}
	}
	return false
}

// isRepeatedRune catches keyboard-mash names like "aaaa" or "zzz"
func isRepeatedRune(name string) bool {
	runes := []rune(name)
	if len(runes) < 3 {
		return false
	}
	for _, r := range runes[1:] {
		if r != runes[0] {
			return false
		}
	}
	return true
}

func strPtr(s string) *string {
	return &s
}
