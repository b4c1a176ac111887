package gate

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/classify"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalize"
)

type fakeBlacklistStore struct {
	entries []models.BlacklistEntry
	err     error
}

func (f *fakeBlacklistStore) FindByValues(_ context.Context, lookups map[models.IdentifierKind]string) ([]models.BlacklistEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.BlacklistEntry
	for _, entry := range f.entries {
		if v, ok := lookups[entry.Kind]; ok && v == entry.Value {
			out = append(out, entry)
		}
	}
	return out, nil
}

func newService(t *testing.T, store BlacklistStore) *Service {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return New(store, classify.New(logger), []string{"forgottenfelines.org", "@rescue.org"}, logger)
}

func record(first, last, email, phone string) models.NormalizedRecord {
	return normalize.Record(models.CandidateRecord{
		FirstName:    first,
		LastName:     last,
		Email:        email,
		Phone:        phone,
		SourceSystem: "test",
	})
}

func TestAdmit_HappyPath(t *testing.T) {
	s := newService(t, &fakeBlacklistStore{})

	verdict, err := s.Admit(context.Background(), record("Jane", "Doe", "jane@example.com", ""))
	require.NoError(t, err)
	assert.True(t, verdict.Admit)
	assert.Equal(t, models.NameClassLikelyPerson, verdict.Classification.Class)
	assert.Empty(t, verdict.SoftEntries)
}

func TestAdmit_MissingInput(t *testing.T) {
	s := newService(t, &fakeBlacklistStore{})

	t.Run("no contact info", func(t *testing.T) {
		verdict, err := s.Admit(context.Background(), record("Jane", "Doe", "", ""))
		require.NoError(t, err)
		assert.False(t, verdict.Admit)
		assert.Equal(t, ReasonMissingContact, verdict.Reason)
	})

	t.Run("address alone is not contact info", func(t *testing.T) {
		rec := record("Jane", "Doe", "", "")
		rec.Address = strPtr("123 MAIN ST")
		verdict, err := s.Admit(context.Background(), rec)
		require.NoError(t, err)
		assert.Equal(t, ReasonMissingContact, verdict.Reason)
	})

	t.Run("no first name", func(t *testing.T) {
		verdict, err := s.Admit(context.Background(), record("", "Doe", "jane@example.com", ""))
		require.NoError(t, err)
		assert.False(t, verdict.Admit)
		assert.Equal(t, ReasonMissingName, verdict.Reason)
	})
}

func TestAdmit_OrganizationalEmail(t *testing.T) {
	s := newService(t, &fakeBlacklistStore{})

	t.Run("org domain", func(t *testing.T) {
		verdict, err := s.Admit(context.Background(), record("Jane", "Doe", "jane@forgottenfelines.org", ""))
		require.NoError(t, err)
		assert.Equal(t, ReasonOrganizationalEmail, verdict.Reason)
	})

	t.Run("org domain configured with at sign", func(t *testing.T) {
		verdict, err := s.Admit(context.Background(), record("Jane", "Doe", "someone@rescue.org", ""))
		require.NoError(t, err)
		assert.Equal(t, ReasonOrganizationalEmail, verdict.Reason)
	})

	t.Run("generic prefix at any domain", func(t *testing.T) {
		for _, email := range []string{"info@example.com", "office@smallbiz.net", "support@anywhere.io"} {
			verdict, err := s.Admit(context.Background(), record("Jane", "Doe", email, ""))
			require.NoError(t, err)
			assert.Equal(t, ReasonGenericEmailPrefix, verdict.Reason, email)
		}
	})

	t.Run("prefix must match whole local part", func(t *testing.T) {
		verdict, err := s.Admit(context.Background(), record("Jane", "Doe", "information.desk@example.com", ""))
		require.NoError(t, err)
		assert.True(t, verdict.Admit)
	})
}

func TestAdmit_HardBlacklist(t *testing.T) {
	s := newService(t, &fakeBlacklistStore{entries: []models.BlacklistEntry{
		{Kind: models.IdentifierKindPhone, Value: "7075550100", Classification: models.BlacklistHard},
	}})

	verdict, err := s.Admit(context.Background(), record("Jane", "Doe", "", "707-555-0100"))
	require.NoError(t, err)
	assert.Equal(t, ReasonHardBlacklisted, verdict.Reason)
}

func TestAdmit_SoftBlacklist(t *testing.T) {
	sampleNames, _ := json.Marshal([]string{"Jane Doe", "Robert Wilson"})
	store := &fakeBlacklistStore{entries: []models.BlacklistEntry{
		{
			Kind:               models.IdentifierKindPhone,
			Value:              "7075550199",
			Classification:     models.BlacklistSoft,
			SampleNames:        sampleNames,
			RequiredSimilarity: 0.8,
		},
	}}
	s := newService(t, store)

	t.Run("close name match is rejected", func(t *testing.T) {
		verdict, err := s.Admit(context.Background(), record("Jane", "Doe", "", "707-555-0199"))
		require.NoError(t, err)
		assert.Equal(t, ReasonSoftBlacklistShared, verdict.Reason)
	})

	t.Run("clearly different name is admitted with soft entry attached", func(t *testing.T) {
		verdict, err := s.Admit(context.Background(), record("Maria", "Gutierrez", "", "707-555-0199"))
		require.NoError(t, err)
		assert.True(t, verdict.Admit)
		require.Len(t, verdict.SoftEntries, 1)
		assert.Equal(t, "7075550199", verdict.SoftEntries[0].Value)
	})
}

func TestAdmit_ClassifierVerdict(t *testing.T) {
	s := newService(t, &fakeBlacklistStore{})

	tests := []struct {
		first  string
		last   string
		reason string
	}{
		{"Forgotten Felines", "", "name_classified_organization"},
		{"123 Main", "St", "name_classified_address_fragment"},
		{"Sunset", "Apartments", "name_classified_apartment_complex"},
		{"test", "", "name_classified_garbage"},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			verdict, err := s.Admit(context.Background(), record(tt.first, tt.last, "x@example.com", ""))
			require.NoError(t, err)
			assert.False(t, verdict.Admit)
			assert.Equal(t, tt.reason, verdict.Reason)
		})
	}
}

func TestAdmit_StoreFailureFailsClosed(t *testing.T) {
	s := newService(t, &fakeBlacklistStore{err: errors.New("connection refused")})

	_, err := s.Admit(context.Background(), record("Jane", "Doe", "jane@example.com", ""))
	require.Error(t, err)
}

func strPtr(s string) *string {
	return &s
}
