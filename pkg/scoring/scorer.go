// Package scoring retrieves candidate entities sharing an identifier with an
// incoming record and computes a weighted, replayable confidence score for each.
package scoring

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalize"
	"github.com/Ramsey-B/clover/pkg/similarity"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Candidate is an existing entity pulled in by an identifier overlap, with all
// of its identifiers loaded for signal computation
type Candidate struct {
	Entity      models.Entity
	Identifiers []models.Identifier
}

// CandidateStore retrieves entities holding any of the given identifier values.
// Tombstoned entities are excluded by the store.
type CandidateStore interface {
	FindCandidates(ctx context.Context, kind models.EntityKind, lookups map[models.IdentifierKind]string) ([]Candidate, error)
}

// Config holds the scoring weights and thresholds. Recorded alongside every
// decision via the threshold version so scores are replayable.
type Config struct {
	EmailExactScore     float64 // score for an exact normalized email match
	PhoneExactScore     float64 // score for an exact normalized phone match
	PhoneConflictScore  float64 // demoted phone score when the names disagree
	AddressExactScore   float64 // score for an exact normalized address match
	AddressNameScore    float64 // score for the address_name_similarity rule
	NameFuzzyThreshold  float64 // minimum name similarity for a name signal
	NameConflictCeiling float64 // below this the names are treated as disagreeing
	SoftBlacklistCap    float64 // ceiling for signals on soft-blacklisted identifiers
	ExtraRuleBonus      float64 // additive bonus per rule beyond the strongest
	MaxPersisted        int     // candidates kept in the stored breakdown
}

// DefaultConfig returns the production scoring weights
func DefaultConfig() Config {
	return Config{
		EmailExactScore:     0.98,
		PhoneExactScore:     0.95,
		PhoneConflictScore:  0.60,
		AddressExactScore:   0.75,
		AddressNameScore:    0.65,
		NameFuzzyThreshold:  0.82,
		NameConflictCeiling: 0.60,
		SoftBlacklistCap:    0.60,
		ExtraRuleBonus:      0.02,
		MaxPersisted:        5,
	}
}

// Scorer computes candidate scores. Scoring is read-only and side-effect free;
// identical inputs always produce identical output ordering.
type Scorer struct {
	store  CandidateStore
	cfg    Config
	logger ectologger.Logger
}

// New creates a scorer
func New(store CandidateStore, cfg Config, logger ectologger.Logger) *Scorer {
	return &Scorer{store: store, cfg: cfg, logger: logger}
}

// Score retrieves and scores every entity sharing an identifier with the
// record. softEntries are the gate's soft-blacklist hits; signals built on
// those identifier values are demoted. Results are ordered by score desc, most
// recent activity desc, then created-at asc.
func (s *Scorer) Score(ctx context.Context, rec models.NormalizedRecord, softEntries []models.BlacklistEntry) ([]models.ScoredCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "scoring.Scorer.Score")
	defer span.End()

	candidates, err := s.store.FindCandidates(ctx, rec.Kind, rec.Identifiers())
	if err != nil {
		return nil, fmt.Errorf("candidate lookup failed: %w", err)
	}

	soft := softValueSet(softEntries)

	scored := make([]models.ScoredCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		sc := s.scoreCandidate(rec, candidate, soft)
		if len(sc.Signals) == 0 {
			continue
		}
		scored = append(scored, sc)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		at, bt := activityOrZero(a.LastActivityAt), activityOrZero(b.LastActivityAt)
		if !at.Equal(bt) {
			return at.After(bt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.EntityID < b.EntityID
	})

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"candidates": len(candidates),
		"scored":     len(scored),
	}).Debug("candidates scored")

	return scored, nil
}

// scoreCandidate computes every signal for one candidate. The total is the
// strongest fired signal plus a small bonus per additional rule, clamped to 1.0.
func (s *Scorer) scoreCandidate(rec models.NormalizedRecord, candidate Candidate, soft map[string]struct{}) models.ScoredCandidate {
	values := identifierValues(candidate.Identifiers)
	nameSim := candidateNameSimilarity(rec, candidate.Entity)

	var signals []models.SignalScore
	demoted := false

	addSignal := func(rule string, score float64, value string) {
		if _, shared := soft[sharedKey(rule, value)]; shared && score > s.cfg.SoftBlacklistCap {
			score = s.cfg.SoftBlacklistCap
			demoted = true
		}
		signals = append(signals, models.SignalScore{Rule: rule, Score: score})
	}

	emailExact := rec.Email != nil && contains(values[models.IdentifierKindEmail], *rec.Email)
	phoneExact := rec.Phone != nil && contains(values[models.IdentifierKindPhone], *rec.Phone)
	addressExact := rec.Address != nil && contains(values[models.IdentifierKindAddress], *rec.Address)

	if emailExact {
		addSignal(models.RuleEmailExact, s.cfg.EmailExactScore, *rec.Email)
	}

	if phoneExact {
		if nameSim < s.cfg.NameConflictCeiling && rec.DisplayName != nil && candidate.Entity.DisplayName != nil {
			// Same phone, clearly different names. The phone alone is not
			// enough to merge people in a shared household or office.
			addSignal(models.RulePhoneNameConflict, s.cfg.PhoneConflictScore, *rec.Phone)
		} else {
			addSignal(models.RulePhoneExact, s.cfg.PhoneExactScore, *rec.Phone)
		}
	}

	forceReview := false
	if nameSim >= s.cfg.NameFuzzyThreshold {
		if !phoneExact && areaCodesAgree(rec, candidate.Identifiers) {
			addSignal(models.RuleNameSimilarity, 0.85+0.1*nameSim, "")
			signals = append(signals, models.SignalScore{Rule: models.RuleAreaCodeBoost, Score: 0})
		} else {
			addSignal(models.RuleNameSimilarity, 0.50+0.3*nameSim, "")
		}
	} else if addressExact && nameSim >= s.cfg.NameConflictCeiling {
		// Same address, moderately similar name. Plausible but unconfirmed;
		// this pairing always goes to a human.
		addSignal(models.RuleAddressNameSimilarity, s.cfg.AddressNameScore, "")
		forceReview = true
	}

	if addressExact {
		addSignal(models.RuleAddressExact, s.cfg.AddressExactScore, *rec.Address)
	}

	if demoted {
		signals = append(signals, models.SignalScore{Rule: models.RuleSoftBlacklistDemotion, Score: 0})
	}

	total := 0.0
	fired := 0
	for _, sig := range signals {
		if sig.Score <= 0 {
			continue
		}
		fired++
		if sig.Score > total {
			total = sig.Score
		}
	}
	if fired > 1 {
		total += float64(fired-1) * s.cfg.ExtraRuleBonus
	}
	if total > 1.0 {
		total = 1.0
	}

	return models.ScoredCandidate{
		EntityID:       candidate.Entity.ID,
		DisplayName:    candidate.Entity.DisplayName,
		Score:          total,
		Tier:           tierFor(total),
		Signals:        signals,
		NameSimilarity: nameSim,
		ForceReview:    forceReview,
		LastActivityAt: candidate.Entity.LastActivityAt,
		CreatedAt:      candidate.Entity.CreatedAt,
	}
}

func tierFor(score float64) int {
	switch {
	case score >= 0.95:
		return models.TierExact
	case score >= 0.80:
		return models.TierStrong
	default:
		return models.TierWeak
	}
}

func candidateNameSimilarity(rec models.NormalizedRecord, entity models.Entity) float64 {
	if rec.DisplayName == nil || entity.DisplayName == nil {
		return 0.0
	}
	return similarity.Name(*rec.DisplayName, *entity.DisplayName)
}

// areaCodesAgree reports whether the record's phone shares an area code with
// any of the candidate's phones. Only meaningful for 10-digit numbers.
func areaCodesAgree(rec models.NormalizedRecord, identifiers []models.Identifier) bool {
	if rec.Phone == nil {
		return false
	}
	area := normalize.AreaCode(*rec.Phone)
	if area == "" {
		return false
	}
	for _, id := range identifiers {
		if id.Kind == models.IdentifierKindPhone && normalize.AreaCode(id.Value) == area {
			return true
		}
	}
	return false
}

func identifierValues(identifiers []models.Identifier) map[models.IdentifierKind][]string {
	out := make(map[models.IdentifierKind][]string, 3)
	for _, id := range identifiers {
		out[id.Kind] = append(out[id.Kind], id.Value)
	}
	return out
}

// softValueSet keys soft-blacklisted values by the rule they would demote
func softValueSet(entries []models.BlacklistEntry) map[string]struct{} {
	out := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		switch entry.Kind {
		case models.IdentifierKindEmail:
			out[sharedKey(models.RuleEmailExact, entry.Value)] = struct{}{}
		case models.IdentifierKindPhone:
			out[sharedKey(models.RulePhoneExact, entry.Value)] = struct{}{}
			out[sharedKey(models.RulePhoneNameConflict, entry.Value)] = struct{}{}
		case models.IdentifierKindAddress:
			out[sharedKey(models.RuleAddressExact, entry.Value)] = struct{}{}
		}
	}
	return out
}

func sharedKey(rule, value string) string {
	return rule + "|" + value
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

func activityOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
