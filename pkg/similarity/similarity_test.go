package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJaroWinkler(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		min  float64
		max  float64
	}{
		{"identical", "martha", "martha", 1.0, 1.0},
		{"classic pair", "martha", "marhta", 0.94, 1.0},
		{"similar names", "dwayne", "duane", 0.80, 0.90},
		{"dissimilar", "apple", "zebra", 0.0, 0.55},
		{"empty left", "", "anything", 0.0, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JaroWinkler(tt.a, tt.b)
			assert.GreaterOrEqual(t, got, tt.min)
			assert.LessOrEqual(t, got, tt.max)
		})
	}
}

func TestLevenshteinDistance(t *testing.T) {
	assert.Equal(t, 0, LevenshteinDistance("kitten", "kitten"))
	assert.Equal(t, 3, LevenshteinDistance("kitten", "sitting"))
	assert.Equal(t, 5, LevenshteinDistance("", "hello"))
	assert.Equal(t, 1, LevenshteinDistance("cat", "cats"))
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 1.0, Levenshtein("", ""))
	assert.Equal(t, 1.0, Levenshtein("same", "same"))
	assert.InDelta(t, 0.5714, Levenshtein("kitten", "sitting"), 0.001)
}

func TestName(t *testing.T) {
	t.Run("identical after normalization", func(t *testing.T) {
		assert.Equal(t, 1.0, Name("Jane Doe", "jane doe"))
		assert.Equal(t, 1.0, Name("Jane Doe Jr.", "Jane Doe"))
	})

	t.Run("token order insensitive", func(t *testing.T) {
		got := Name("Doe, Jane", "Jane Doe")
		assert.GreaterOrEqual(t, got, 0.95)
	})

	t.Run("typo stays high", func(t *testing.T) {
		got := Name("Jane Doe", "Jane Does")
		assert.GreaterOrEqual(t, got, 0.85)
	})

	t.Run("different people stay low", func(t *testing.T) {
		got := Name("Jane Doe", "Robert Wilson")
		assert.Less(t, got, 0.5)
	})

	t.Run("empty names score zero", func(t *testing.T) {
		assert.Equal(t, 0.0, Name("", "Jane Doe"))
		assert.Equal(t, 0.0, Name("Jane Doe", "   "))
	})
}
