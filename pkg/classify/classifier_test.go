package classify

import (
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return New(logger)
}

func TestClassify_Defaults(t *testing.T) {
	c := newTestClassifier(t)

	tests := []struct {
		name string
		in   string
		want models.NameClass
	}{
		{"plain person", "Jane Doe", models.NameClassLikelyPerson},
		{"hyphenated person", "Mary-Ann Smith", models.NameClassLikelyPerson},
		{"rescue org", "Forgotten Felines of Sonoma", models.NameClassOrganization},
		{"clinic", "Westside Veterinary Clinic", models.NameClassOrganization},
		{"llc suffix", "Acme Holdings LLC", models.NameClassOrganization},
		{"front desk", "Front Desk", models.NameClassOrganization},
		{"inc does not hit vincent", "Vincent Price", models.NameClassLikelyPerson},
		{"street address", "123 Main St", models.NameClassAddressFragment},
		{"full street word", "450 Oak Avenue", models.NameClassAddressFragment},
		{"po box", "PO Box 1234", models.NameClassAddressFragment},
		{"apartments", "Sunset Apartments", models.NameClassApartmentComplex},
		{"mobile home park", "Rancho Mobile Home Park", models.NameClassApartmentComplex},
		{"digits only", "12345", models.NameClassGarbage},
		{"test placeholder", "test", models.NameClassGarbage},
		{"repeated characters", "aaaa", models.NameClassGarbage},
		{"single character", "x", models.NameClassGarbage},
		{"empty", "", models.NameClassGarbage},
		{"whitespace", "   ", models.NameClassGarbage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.in)
			assert.Equal(t, tt.want, got.Class, "input %q", tt.in)
		})
	}
}

func TestClassify_PriorityOrder(t *testing.T) {
	c := newTestClassifier(t)

	// Organization beats address fragment when both could apply.
	got := c.Classify("123 Main St Veterinary Clinic")
	assert.Equal(t, models.NameClassOrganization, got.Class)
	require.NotNil(t, got.MatchedRule)
}

func TestLoad_ExtendsDefaults(t *testing.T) {
	c := newTestClassifier(t)

	err := c.Load([]models.ClassifierRule{
		{ID: "r1", Category: models.RuleCategoryOrganization, MatchKind: models.MatchKindKeyword, Pattern: "wildlife", Active: true},
		{ID: "r2", Category: models.RuleCategoryGarbage, MatchKind: models.MatchKindExact, Pattern: "nobody", Active: true},
		{ID: "r3", Category: models.RuleCategoryGarbage, MatchKind: models.MatchKindExact, Pattern: "inactive", Active: false},
	})
	require.NoError(t, err)

	assert.Equal(t, models.NameClassOrganization, c.Classify("Wildlife Center").Class)
	assert.Equal(t, models.NameClassGarbage, c.Classify("nobody").Class)
	// Default rules survive a load.
	assert.Equal(t, models.NameClassApartmentComplex, c.Classify("Sunset Apartments").Class)
	// Inactive rules are skipped.
	assert.Equal(t, models.NameClassLikelyPerson, c.Classify("inactive").Class)
}

func TestLoad_EmptyTableKeepsDefaults(t *testing.T) {
	c := newTestClassifier(t)

	// A fresh database has no classifier_rules rows; boot loads nil.
	require.NoError(t, c.Load(nil))

	assert.Equal(t, models.NameClassOrganization, c.Classify("Forgotten Felines Rescue").Class)
	assert.Equal(t, models.NameClassAddressFragment, c.Classify("123 Oak St").Class)
	assert.Equal(t, models.NameClassApartmentComplex, c.Classify("Sunset Apartments").Class)
	assert.Equal(t, models.NameClassGarbage, c.Classify("test").Class)
	assert.Equal(t, models.NameClassLikelyPerson, c.Classify("Jane Doe").Class)
}

func TestLoad_InvalidRegexFailsWhole(t *testing.T) {
	c := newTestClassifier(t)

	err := c.Load([]models.ClassifierRule{
		{ID: "bad", Category: models.RuleCategoryGarbage, MatchKind: models.MatchKindRegex, Pattern: "([", Active: true},
	})
	require.Error(t, err)

	// Previous rule set stays live.
	assert.Equal(t, models.NameClassOrganization, c.Classify("Forgotten Felines").Class)
}

func TestIsResolvable(t *testing.T) {
	assert.True(t, IsResolvable(models.NameClassLikelyPerson))
	assert.False(t, IsResolvable(models.NameClassOrganization))
	assert.False(t, IsResolvable(models.NameClassGarbage))
	assert.False(t, IsResolvable(models.NameClassAddressFragment))
	assert.False(t, IsResolvable(models.NameClassApartmentComplex))
}
