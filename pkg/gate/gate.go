// Package gate is the mandatory admission check in front of identity
// resolution. Every resolution attempt passes through Admit before any
// candidate lookup happens.
package gate

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/classify"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/similarity"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Rejection reasons recorded on the match decision
const (
	ReasonOrganizationalEmail = "organizational_email"
	ReasonGenericEmailPrefix  = "generic_email_prefix"
	ReasonHardBlacklisted     = "hard_blacklisted_identifier"
	ReasonSoftBlacklistShared = "soft_blacklist_shared_identifier"
	ReasonMissingContact      = "missing_contact"
	ReasonMissingName         = "missing_name"
)

// genericPrefixes are shared-inbox local parts that never identify a person,
// regardless of domain
var genericPrefixes = []string{"info", "office", "admin", "support", "contact", "help"}

// BlacklistStore looks up blacklist entries by normalized identifier value
type BlacklistStore interface {
	FindByValues(ctx context.Context, lookups map[models.IdentifierKind]string) ([]models.BlacklistEntry, error)
}

// Verdict is the gate's decision for one record
type Verdict struct {
	Admit          bool
	Reason         string
	Classification models.Classification
	// SoftEntries are soft-blacklist hits on the record's identifiers. The
	// record passed admission despite them; the scorer demotes these signals.
	SoftEntries []models.BlacklistEntry
}

// Service evaluates the admission rules. Org domains come from config; hard and
// soft blacklist entries are data-driven rows the store serves.
type Service struct {
	store      BlacklistStore
	classifier *classify.Classifier
	orgDomains map[string]struct{}
	logger     ectologger.Logger
}

// New creates a gate service. orgDomains entries are matched against the
// domain part of normalized emails, case-insensitively.
func New(store BlacklistStore, classifier *classify.Classifier, orgDomains []string, logger ectologger.Logger) *Service {
	domains := make(map[string]struct{}, len(orgDomains))
	for _, d := range orgDomains {
		d = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "@"))
		if d != "" {
			domains[d] = struct{}{}
		}
	}
	return &Service{
		store:      store,
		classifier: classifier,
		orgDomains: domains,
		logger:     logger,
	}
}

// Admit runs the full admission check on a normalized record. A Verdict with
// Admit false carries the specific rejection reason; an error means the
// blacklist lookup failed and the attempt must fail closed.
func (s *Service) Admit(ctx context.Context, rec models.NormalizedRecord) (Verdict, error) {
	ctx, span := tracing.StartSpan(ctx, "gate.Service.Admit")
	defer span.End()

	if !rec.HasContact() {
		return Verdict{Reason: ReasonMissingContact}, nil
	}
	if rec.FirstName == nil {
		return Verdict{Reason: ReasonMissingName}, nil
	}

	if rec.Email != nil {
		if reason := s.checkEmail(*rec.Email); reason != "" {
			return Verdict{Reason: reason}, nil
		}
	}

	entries, err := s.store.FindByValues(ctx, rec.Identifiers())
	if err != nil {
		return Verdict{}, fmt.Errorf("blacklist lookup failed: %w", err)
	}

	var soft []models.BlacklistEntry
	for _, entry := range entries {
		switch entry.Classification {
		case models.BlacklistHard:
			return Verdict{Reason: ReasonHardBlacklisted}, nil
		case models.BlacklistSoft:
			soft = append(soft, entry)
		}
	}

	name := displayName(rec)
	for _, entry := range soft {
		// The identifier is known to be shared. A close name match against the
		// names already on file means this is probably a re-sighting of an
		// existing record, not a new individual, so the pairing is not trusted.
		if tooSimilarToKnownNames(name, entry) {
			s.logger.WithContext(ctx).WithFields(map[string]any{
				"kind":  string(entry.Kind),
				"value": entry.Value,
			}).Debug("record name too close to names on shared identifier")
			return Verdict{Reason: ReasonSoftBlacklistShared}, nil
		}
	}

	cls := s.classifier.Classify(name)
	if !classify.IsResolvable(cls.Class) {
		return Verdict{
			Reason:         "name_classified_" + string(cls.Class),
			Classification: cls,
		}, nil
	}

	return Verdict{Admit: true, Classification: cls, SoftEntries: soft}, nil
}

// checkEmail applies the hard organizational-email rules. Returns the
// rejection reason or empty string.
func (s *Service) checkEmail(email string) string {
	local, domain, found := strings.Cut(email, "@")
	if !found {
		return ""
	}
	if _, ok := s.orgDomains[domain]; ok {
		return ReasonOrganizationalEmail
	}
	for _, prefix := range genericPrefixes {
		if local == prefix {
			return ReasonGenericEmailPrefix
		}
	}
	return ""
}

func tooSimilarToKnownNames(name string, entry models.BlacklistEntry) bool {
	threshold := entry.RequiredSimilarity
	if threshold <= 0 {
		threshold = 0.8
	}
	for _, known := range entry.SampleNameList() {
		if similarity.Name(name, known) >= threshold {
			return true
		}
	}
	return false
}

func displayName(rec models.NormalizedRecord) string {
	if rec.DisplayName != nil {
		return *rec.DisplayName
	}
	if rec.FirstName != nil {
		return *rec.FirstName
	}
	return ""
}
