package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalize"
)

type fakeCandidateStore struct {
	candidates []Candidate
}

func (f *fakeCandidateStore) FindCandidates(_ context.Context, _ models.EntityKind, lookups map[models.IdentifierKind]string) ([]Candidate, error) {
	var out []Candidate
	for _, c := range f.candidates {
		for _, id := range c.Identifiers {
			if v, ok := lookups[id.Kind]; ok && v == id.Value {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

func newScorer(store CandidateStore) *Scorer {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return New(store, DefaultConfig(), logger)
}

func makeCandidate(id, name string, created time.Time, identifiers ...models.Identifier) Candidate {
	return Candidate{
		Entity: models.Entity{
			ID:          id,
			Kind:        models.EntityKindPerson,
			DisplayName: &name,
			CreatedAt:   created,
		},
		Identifiers: identifiers,
	}
}

func ident(kind models.IdentifierKind, value string) models.Identifier {
	return models.Identifier{Kind: kind, Value: value}
}

func testRecord(first, last, email, phone, address string) models.NormalizedRecord {
	return normalize.Record(models.CandidateRecord{
		FirstName:    first,
		LastName:     last,
		Email:        email,
		Phone:        phone,
		Address:      address,
		SourceSystem: "test",
	})
}

var baseTime = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func TestScore_EmailExact(t *testing.T) {
	store := &fakeCandidateStore{candidates: []Candidate{
		makeCandidate("e1", "Jane Doe", baseTime, ident(models.IdentifierKindEmail, "jane@example.com")),
	}}
	s := newScorer(store)

	scored, err := s.Score(context.Background(), testRecord("Jane", "Doe", "jane@example.com", "", ""), nil)
	require.NoError(t, err)
	require.Len(t, scored, 1)

	c := scored[0]
	assert.Equal(t, "e1", c.EntityID)
	assert.InDelta(t, 0.98, c.Score, 0.03) // email plus name similarity bonus
	assert.Equal(t, models.TierExact, c.Tier)
	assert.True(t, c.HasRule(models.RuleEmailExact))
	assert.False(t, c.ForceReview)
}

func TestScore_PhoneExact(t *testing.T) {
	store := &fakeCandidateStore{candidates: []Candidate{
		makeCandidate("e1", "Jane Doe", baseTime, ident(models.IdentifierKindPhone, "7075550134")),
	}}
	s := newScorer(store)

	scored, err := s.Score(context.Background(), testRecord("Jane", "Doe", "", "(707) 555-0134", ""), nil)
	require.NoError(t, err)
	require.Len(t, scored, 1)

	assert.True(t, scored[0].HasRule(models.RulePhoneExact))
	assert.GreaterOrEqual(t, scored[0].Score, 0.95)
}

func TestScore_PhoneNameConflict(t *testing.T) {
	store := &fakeCandidateStore{candidates: []Candidate{
		makeCandidate("e1", "Robert Wilson", baseTime, ident(models.IdentifierKindPhone, "7075550134")),
	}}
	s := newScorer(store)

	scored, err := s.Score(context.Background(), testRecord("Jane", "Doe", "", "707-555-0134", ""), nil)
	require.NoError(t, err)
	require.Len(t, scored, 1)

	c := scored[0]
	assert.True(t, c.HasRule(models.RulePhoneNameConflict))
	assert.False(t, c.HasRule(models.RulePhoneExact))
	assert.InDelta(t, 0.60, c.Score, 0.001)
	assert.Equal(t, models.TierWeak, c.Tier)
}

func TestScore_NameSimilarity(t *testing.T) {
	t.Run("name plus matching area code", func(t *testing.T) {
		store := &fakeCandidateStore{candidates: []Candidate{
			makeCandidate("e1", "Jane Doe", baseTime,
				ident(models.IdentifierKindEmail, "jane@example.com"),
				ident(models.IdentifierKindPhone, "7075559999")),
		}}
		s := newScorer(store)

		// Shared email pulls the candidate in; phones differ but share an area code.
		rec := testRecord("Jane", "Does", "jane@example.com", "707-555-0001", "")
		scored, err := s.Score(context.Background(), rec, nil)
		require.NoError(t, err)
		require.Len(t, scored, 1)

		assert.True(t, scored[0].HasRule(models.RuleNameSimilarity))
		assert.True(t, scored[0].HasRule(models.RuleAreaCodeBoost))
	})

	t.Run("name without area code agreement stays in review band", func(t *testing.T) {
		store := &fakeCandidateStore{candidates: []Candidate{
			makeCandidate("e1", "Janet Dove", baseTime, ident(models.IdentifierKindAddress, "99 ELM ST")),
		}}
		s := newScorer(store)

		rec := testRecord("Jane", "Doe", "", "", "99 Elm St")
		scored, err := s.Score(context.Background(), rec, nil)
		require.NoError(t, err)
		require.Len(t, scored, 1)

		c := scored[0]
		assert.True(t, c.HasRule(models.RuleNameSimilarity))
		assert.False(t, c.HasRule(models.RuleAreaCodeBoost))
		// Strongest signal is the address; the name signal alone cannot reach
		// the auto-match band.
		assert.Less(t, c.Score, 0.90)
	})
}

func TestScore_AddressNameSimilarity_ForcesReview(t *testing.T) {
	store := &fakeCandidateStore{candidates: []Candidate{
		makeCandidate("e1", "Ann Lee", baseTime, ident(models.IdentifierKindAddress, "123 MAIN ST")),
	}}
	s := newScorer(store)

	// "Amy L" vs "Ann Lee" sits in the moderate similarity band: too far for a
	// name signal, too close to ignore at the same address.
	scored, err := s.Score(context.Background(), testRecord("Amy", "L", "", "", "123 Main St"), nil)
	require.NoError(t, err)
	require.Len(t, scored, 1)

	c := scored[0]
	assert.GreaterOrEqual(t, c.NameSimilarity, 0.60)
	assert.Less(t, c.NameSimilarity, 0.82)
	assert.True(t, c.HasRule(models.RuleAddressNameSimilarity))
	assert.True(t, c.ForceReview)
	assert.True(t, c.HasRule(models.RuleAddressExact))
	assert.False(t, c.HasRule(models.RuleNameSimilarity))
}

func TestScore_SoftBlacklistDemotion(t *testing.T) {
	store := &fakeCandidateStore{candidates: []Candidate{
		makeCandidate("e1", "Maria Gutierrez", baseTime, ident(models.IdentifierKindPhone, "7075550199")),
	}}
	s := newScorer(store)

	soft := []models.BlacklistEntry{{
		Kind:           models.IdentifierKindPhone,
		Value:          "7075550199",
		Classification: models.BlacklistSoft,
	}}

	// Names agree, so the phone would normally score 0.95; the shared line
	// caps it and keeps the candidate out of the auto-match band.
	scored, err := s.Score(context.Background(), testRecord("Maria", "Gutierrez", "", "7075550199", ""), soft)
	require.NoError(t, err)
	require.Len(t, scored, 1)

	c := scored[0]
	assert.True(t, c.HasRule(models.RuleSoftBlacklistDemotion))
	for _, sig := range c.Signals {
		if sig.Rule == models.RulePhoneExact {
			assert.InDelta(t, 0.60, sig.Score, 0.001)
		}
	}
	assert.Less(t, c.Score, 0.90)
}

func TestScore_Ordering(t *testing.T) {
	older := baseTime.Add(-24 * time.Hour)
	recent := baseTime.Add(time.Hour)

	lowActivity := makeCandidate("aaa", "Jane Doe", baseTime, ident(models.IdentifierKindEmail, "jane@example.com"))
	highActivity := makeCandidate("bbb", "Jane Doe", baseTime, ident(models.IdentifierKindEmail, "jane@example.com"))
	highActivity.Entity.LastActivityAt = &recent
	oldest := makeCandidate("ccc", "Jane Doe", older, ident(models.IdentifierKindEmail, "jane@example.com"))

	store := &fakeCandidateStore{candidates: []Candidate{lowActivity, highActivity, oldest}}
	s := newScorer(store)

	scored, err := s.Score(context.Background(), testRecord("Jane", "Doe", "jane@example.com", "", ""), nil)
	require.NoError(t, err)
	require.Len(t, scored, 3)

	// Equal scores: most recent activity first, then earliest created.
	assert.Equal(t, "bbb", scored[0].EntityID)
	assert.Equal(t, "ccc", scored[1].EntityID)
	assert.Equal(t, "aaa", scored[2].EntityID)
}

func TestScore_NoOverlapNoCandidates(t *testing.T) {
	store := &fakeCandidateStore{}
	s := newScorer(store)

	scored, err := s.Score(context.Background(), testRecord("Jane", "Doe", "jane@example.com", "", ""), nil)
	require.NoError(t, err)
	assert.Empty(t, scored)
}
