package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func TestEmail(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *string
	}{
		{"lowercases and trims", "  Jane.Doe@Example.COM  ", strPtr("jane.doe@example.com")},
		{"empty", "", nil},
		{"whitespace only", "   ", nil},
		{"missing at sign", "not-an-email", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Email(tt.input)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestPhone(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *string
	}{
		{"strips formatting", "(707) 555-0134", strPtr("7075550134")},
		{"drops leading country code", "1-707-555-0134", strPtr("7075550134")},
		{"keeps 11 digits without leading one", "27075550134", strPtr("27075550134")},
		{"seven digit local number", "555-0134", strPtr("5550134")},
		{"too short", "12345", nil},
		{"empty", "", nil},
		{"letters only", "call me", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Phone(tt.input)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestAreaCode(t *testing.T) {
	assert.Equal(t, "707", AreaCode("7075550134"))
	assert.Equal(t, "", AreaCode("5550134"))
	assert.Equal(t, "", AreaCode(""))
}

func TestAddress(t *testing.T) {
	got := Address("  123  main   st\tapt 4 ")
	require.NotNil(t, got)
	assert.Equal(t, "123 MAIN ST APT 4", *got)

	assert.Nil(t, Address("   "))
	assert.Nil(t, Address(""))
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name  string
		first string
		last  string
		want  *string
	}{
		{"joins first and last", " Jane ", " Doe ", strPtr("Jane Doe")},
		{"first only", "Jane", "", strPtr("Jane")},
		{"last only", "", "Doe", strPtr("Doe")},
		{"both empty", "  ", "", nil},
		{"collapses internal whitespace", "Mary  Ann", "Smith", strPtr("Mary Ann Smith")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DisplayName(tt.first, tt.last)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestName(t *testing.T) {
	assert.Equal(t, "jane doe", Name("Jane Doe Jr."))
	assert.Equal(t, "maryann smith", Name("Mary-Ann  Smith"))
	assert.Equal(t, "jane doe", Name("  Jane   Doe  "))
}

func TestRecord(t *testing.T) {
	rec := models.CandidateRecord{
		FirstName:    " Jane ",
		LastName:     "Doe",
		Email:        "Jane@Example.com",
		Phone:        "1 (707) 555-0134",
		Address:      "123 main st",
		SourceSystem: "clinichq",
	}

	got := Record(rec)

	require.NotNil(t, got.DisplayName)
	assert.Equal(t, "Jane Doe", *got.DisplayName)
	require.NotNil(t, got.Email)
	assert.Equal(t, "jane@example.com", *got.Email)
	require.NotNil(t, got.Phone)
	assert.Equal(t, "7075550134", *got.Phone)
	require.NotNil(t, got.Address)
	assert.Equal(t, "123 MAIN ST", *got.Address)
	assert.Equal(t, models.EntityKindPerson, got.Kind)
	assert.True(t, got.HasContact())
}

func strPtr(s string) *string {
	return &s
}
