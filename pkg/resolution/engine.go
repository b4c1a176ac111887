// Package resolution implements the identity resolution funnel. Every record,
// whatever its ingestion path, enters through Engine.Resolve; no caller may
// touch entities or identifiers around it.
package resolution

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/classify"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/gate"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalize"
	"github.com/Ramsey-B/clover/pkg/scoring"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// EntityStore persists entities
type EntityStore interface {
	Create(ctx context.Context, entity *models.Entity) error
	UpdateDisplayName(ctx context.Context, id string, displayName string) error
	TouchActivity(ctx context.Context, id string, at time.Time) error
}

// IdentifierStore persists identifiers. Upsert must be idempotent on
// (entity_id, kind, value) and keep the higher confidence on conflict.
type IdentifierStore interface {
	Upsert(ctx context.Context, identifier *models.Identifier) error
}

// DecisionStore appends audit rows
type DecisionStore interface {
	Create(ctx context.Context, decision *models.MatchDecision) error
}

// ReviewStore enqueues review items
type ReviewStore interface {
	Create(ctx context.Context, item *models.ReviewItem) error
}

// RelationshipStore persists entity relationships
type RelationshipStore interface {
	Upsert(ctx context.Context, rel *models.Relationship) error
}

// Locker provides advisory locks. Acquire blocks until the lock is held or ctx
// expires; the returned function releases it.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// Config holds the decision thresholds. ThresholdVersion is stamped on every
// audit row so historical decisions stay replayable after retuning.
type Config struct {
	AutoMatchThreshold   float64
	ReviewThreshold      float64
	HouseholdNameCeiling float64
	ThresholdVersion     string
	LockTTL              time.Duration
}

// DefaultConfig returns the production decision thresholds
func DefaultConfig() Config {
	return Config{
		AutoMatchThreshold:   0.90,
		ReviewThreshold:      0.50,
		HouseholdNameCeiling: 0.60,
		ThresholdVersion:     "v2",
		LockTTL:              15 * time.Second,
	}
}

// Engine is the decision funnel
type Engine struct {
	db            database.DB
	gate          *gate.Service
	scorer        *scoring.Scorer
	classifier    *classify.Classifier
	entities      EntityStore
	identifiers   IdentifierStore
	decisions     DecisionStore
	reviews       ReviewStore
	relationships RelationshipStore
	locker        Locker
	emitter       *events.Emitter
	cfg           Config
	maxPersisted  int
	logger        ectologger.Logger
}

// NewEngine creates the resolution engine
func NewEngine(
	db database.DB,
	gateSvc *gate.Service,
	scorer *scoring.Scorer,
	classifier *classify.Classifier,
	entities EntityStore,
	identifiers IdentifierStore,
	decisions DecisionStore,
	reviews ReviewStore,
	relationships RelationshipStore,
	locker Locker,
	emitter *events.Emitter,
	cfg Config,
	maxPersistedCandidates int,
	logger ectologger.Logger,
) *Engine {
	if maxPersistedCandidates <= 0 {
		maxPersistedCandidates = 5
	}
	return &Engine{
		db:            db,
		gate:          gateSvc,
		scorer:        scorer,
		classifier:    classifier,
		entities:      entities,
		identifiers:   identifiers,
		decisions:     decisions,
		reviews:       reviews,
		relationships: relationships,
		locker:        locker,
		emitter:       emitter,
		cfg:           cfg,
		maxPersisted:  maxPersistedCandidates,
		logger:        logger,
	}
}

// Resolve runs one record through the funnel and returns the terminal
// decision. Exactly one audit row is written per attempt, in the same
// transaction as any entity or identifier mutation. An error means nothing
// was written and the whole call is safe to retry.
func (e *Engine) Resolve(ctx context.Context, rec models.CandidateRecord) (*models.ResolveResult, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Engine.Resolve")
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.ResolveDuration.Observe(time.Since(start).Seconds())
	}()

	norm := normalize.Record(rec)

	verdict, err := e.gate.Admit(ctx, norm)
	if err != nil {
		metrics.ResolutionFailures.Inc()
		return nil, err
	}
	if !verdict.Admit {
		return e.reject(ctx, norm, verdict.Reason)
	}

	// Serialize concurrent resolutions of the same identifier so two callers
	// cannot both win a "no candidate found" race.
	unlock, err := e.locker.Acquire(ctx, lockKey(norm), e.cfg.LockTTL)
	if err != nil {
		metrics.ResolutionFailures.Inc()
		return nil, fmt.Errorf("failed to acquire identifier lock: %w", err)
	}
	defer func() {
		if unlockErr := unlock(ctx); unlockErr != nil {
			e.logger.WithContext(ctx).WithError(unlockErr).Warn("failed to release identifier lock")
		}
	}()

	scored, err := e.scorer.Score(ctx, norm, verdict.SoftEntries)
	if err != nil {
		metrics.ResolutionFailures.Inc()
		return nil, err
	}

	result, err := e.decide(ctx, norm, scored)
	if err != nil {
		metrics.ResolutionFailures.Inc()
		return nil, err
	}

	metrics.ResolutionsTotal.WithLabelValues(string(result.Decision), norm.SourceSystem).Inc()
	e.emitter.EmitDecision(ctx, result, norm.SourceSystem)
	return result, nil
}

// decide applies the ordered funnel transitions for an admitted record and
// commits all resulting writes atomically.
func (e *Engine) decide(ctx context.Context, norm models.NormalizedRecord, scored []models.ScoredCandidate) (*models.ResolveResult, error) {
	ctxTx, tx, err := e.db.GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var result *models.ResolveResult
	switch {
	case len(scored) == 0:
		result, err = e.createEntity(ctxTx, norm, scored, "no candidate shares an identifier")
	case scored[0].ForceReview:
		result, err = e.enqueueReview(ctxTx, norm, scored, scored[0].EntityID,
			"address matches with only moderate name similarity")
	case scored[0].Score >= e.cfg.AutoMatchThreshold:
		result, err = e.autoMatch(ctxTx, norm, scored)
	case e.householdEligible(scored[0]):
		result, err = e.createHouseholdMember(ctxTx, norm, scored)
	case scored[0].Score >= e.cfg.ReviewThreshold:
		result, err = e.enqueueReview(ctxTx, norm, scored, scored[0].EntityID,
			fmt.Sprintf("top score %.2f is in the review band", scored[0].Score))
	default:
		result, err = e.createEntity(ctxTx, norm, scored, "no candidate above the review threshold")
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

// reject writes the rejection audit row. Even a rejected attempt leaves
// exactly one decision behind.
func (e *Engine) reject(ctx context.Context, norm models.NormalizedRecord, reason string) (*models.ResolveResult, error) {
	ctxTx, tx, err := e.db.GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	decision, err := e.writeDecision(ctxTx, norm, nil, models.DecisionRejected, nil, reason)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	metrics.ResolutionsTotal.WithLabelValues(string(models.DecisionRejected), norm.SourceSystem).Inc()

	result := &models.ResolveResult{
		Decision:   models.DecisionRejected,
		Reason:     reason,
		DecisionID: decision.ID,
	}
	e.emitter.EmitDecision(ctx, result, norm.SourceSystem)
	return result, nil
}

func (e *Engine) autoMatch(ctx context.Context, norm models.NormalizedRecord, scored []models.ScoredCandidate) (*models.ResolveResult, error) {
	top := scored[0]
	now := time.Now().UTC()

	if err := e.attachIdentifiers(ctx, top.EntityID, norm, top.Score, now); err != nil {
		return nil, err
	}

	// An incoming person name replaces a display name that never was one.
	if norm.DisplayName != nil && e.shouldReplaceDisplayName(top.DisplayName) {
		if err := e.entities.UpdateDisplayName(ctx, top.EntityID, *norm.DisplayName); err != nil {
			return nil, err
		}
	}

	if err := e.entities.TouchActivity(ctx, top.EntityID, now); err != nil {
		return nil, err
	}

	reason := fmt.Sprintf("top score %.2f meets the auto-match threshold", top.Score)
	decision, err := e.writeDecision(ctx, norm, scored, models.DecisionAutoMatch, &top.EntityID, reason)
	if err != nil {
		return nil, err
	}

	return &models.ResolveResult{
		Decision:   models.DecisionAutoMatch,
		EntityID:   &top.EntityID,
		Reason:     reason,
		DecisionID: decision.ID,
		Candidates: e.persistedCandidates(scored),
	}, nil
}

func (e *Engine) enqueueReview(ctx context.Context, norm models.NormalizedRecord, scored []models.ScoredCandidate, candidateID, reason string) (*models.ResolveResult, error) {
	decision, err := e.writeDecision(ctx, norm, scored, models.DecisionReviewPending, &candidateID, reason)
	if err != nil {
		return nil, err
	}

	normJSON, err := json.Marshal(norm)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal normalized record: %w", err)
	}

	item := &models.ReviewItem{
		ID:              uuid.New().String(),
		DecisionID:      decision.ID,
		CandidateID:     &candidateID,
		Reason:          reason,
		NormalizedInput: normJSON,
		Status:          models.ReviewStatusOpen,
		CreatedAt:       time.Now().UTC(),
	}
	if err := e.reviews.Create(ctx, item); err != nil {
		return nil, err
	}

	return &models.ResolveResult{
		Decision:   models.DecisionReviewPending,
		EntityID:   &candidateID,
		Reason:     reason,
		DecisionID: decision.ID,
		Candidates: e.persistedCandidates(scored),
	}, nil
}

// householdEligible marks a medium-band candidate whose only evidence is
// shared household identifiers (phone or address) under a clearly different
// name. These become distinct people linked to the candidate's household
// rather than review noise.
func (e *Engine) householdEligible(top models.ScoredCandidate) bool {
	if top.Score < e.cfg.ReviewThreshold {
		return false
	}
	if top.NameSimilarity >= e.cfg.HouseholdNameCeiling {
		return false
	}
	if top.HasRule(models.RuleEmailExact) || top.HasRule(models.RuleNameSimilarity) || top.HasRule(models.RuleAddressNameSimilarity) {
		return false
	}
	return top.HasRule(models.RulePhoneNameConflict) || top.HasRule(models.RuleAddressExact)
}

func (e *Engine) createHouseholdMember(ctx context.Context, norm models.NormalizedRecord, scored []models.ScoredCandidate) (*models.ResolveResult, error) {
	top := scored[0]

	entity, err := e.insertEntity(ctx, norm)
	if err != nil {
		return nil, err
	}

	rel := &models.Relationship{
		ID:           uuid.New().String(),
		FromEntityID: entity.ID,
		ToEntityID:   top.EntityID,
		Relation:     models.RelationHouseholdMember,
		CreatedAt:    entity.CreatedAt,
		UpdatedAt:    entity.CreatedAt,
	}
	if err := e.relationships.Upsert(ctx, rel); err != nil {
		return nil, err
	}

	reason := "shares household identifiers with a distinctly named entity"
	decision, err := e.writeDecision(ctx, norm, scored, models.DecisionHouseholdMember, &entity.ID, reason)
	if err != nil {
		return nil, err
	}

	return &models.ResolveResult{
		Decision:   models.DecisionHouseholdMember,
		EntityID:   &entity.ID,
		Reason:     reason,
		DecisionID: decision.ID,
		Candidates: e.persistedCandidates(scored),
	}, nil
}

func (e *Engine) createEntity(ctx context.Context, norm models.NormalizedRecord, scored []models.ScoredCandidate, reason string) (*models.ResolveResult, error) {
	entity, err := e.insertEntity(ctx, norm)
	if err != nil {
		return nil, err
	}

	decision, err := e.writeDecision(ctx, norm, scored, models.DecisionNewEntity, &entity.ID, reason)
	if err != nil {
		return nil, err
	}

	return &models.ResolveResult{
		Decision:   models.DecisionNewEntity,
		EntityID:   &entity.ID,
		Reason:     reason,
		DecisionID: decision.ID,
		Candidates: e.persistedCandidates(scored),
	}, nil
}

func (e *Engine) insertEntity(ctx context.Context, norm models.NormalizedRecord) (*models.Entity, error) {
	now := time.Now().UTC()
	entity := &models.Entity{
		ID:             uuid.New().String(),
		Kind:           norm.Kind,
		DisplayName:    norm.DisplayName,
		SourceSystem:   norm.SourceSystem,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastActivityAt: &now,
	}
	if err := e.entities.Create(ctx, entity); err != nil {
		return nil, err
	}

	if err := e.attachIdentifiers(ctx, entity.ID, norm, 1.0, now); err != nil {
		return nil, err
	}
	return entity, nil
}

func (e *Engine) attachIdentifiers(ctx context.Context, entityID string, norm models.NormalizedRecord, confidence float64, now time.Time) error {
	for kind, value := range norm.Identifiers() {
		identifier := &models.Identifier{
			ID:           uuid.New().String(),
			EntityID:     entityID,
			Kind:         kind,
			Value:        value,
			Confidence:   confidence,
			SourceSystem: norm.SourceSystem,
			FirstSeenAt:  now,
			LastSeenAt:   now,
		}
		if err := e.identifiers.Upsert(ctx, identifier); err != nil {
			return err
		}
	}
	return nil
}

// writeDecision appends the audit row for this attempt
func (e *Engine) writeDecision(ctx context.Context, norm models.NormalizedRecord, scored []models.ScoredCandidate, decisionType models.DecisionType, entityID *string, reason string) (*models.MatchDecision, error) {
	normJSON, err := json.Marshal(norm)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal normalized record: %w", err)
	}

	decision := &models.MatchDecision{
		ID:               uuid.New().String(),
		Decision:         decisionType,
		EntityID:         entityID,
		Reason:           reason,
		NormalizedInput:  normJSON,
		ThresholdVersion: e.cfg.ThresholdVersion,
		SourceSystem:     norm.SourceSystem,
		SourceBatch:      norm.SourceBatch,
		CreatedAt:        time.Now().UTC(),
	}

	if persisted := e.persistedCandidates(scored); len(persisted) > 0 {
		candidatesJSON, err := json.Marshal(persisted)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal candidate breakdown: %w", err)
		}
		decision.Candidates = candidatesJSON
		decision.TopScore = &persisted[0].Score
	}

	if err := e.decisions.Create(ctx, decision); err != nil {
		return nil, err
	}
	return decision, nil
}

// persistedCandidates caps the stored breakdown at the configured size
func (e *Engine) persistedCandidates(scored []models.ScoredCandidate) []models.ScoredCandidate {
	if len(scored) <= e.maxPersisted {
		return scored
	}
	return scored[:e.maxPersisted]
}

// shouldReplaceDisplayName reports whether an existing display name should
// yield to the incoming one
func (e *Engine) shouldReplaceDisplayName(current *string) bool {
	if current == nil {
		return true
	}
	return !classify.IsResolvable(e.classifier.Classify(*current).Class)
}

// lockKey scopes the advisory lock to the strongest identifier present
func lockKey(norm models.NormalizedRecord) string {
	if norm.Email != nil {
		return "resolve:email:" + *norm.Email
	}
	if norm.Phone != nil {
		return "resolve:phone:" + *norm.Phone
	}
	// The gate guarantees contact info, so this is unreachable in practice.
	return "resolve:anonymous"
}
