// Package review applies human verdicts to queued review items
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// ItemStore reads and closes review queue items
type ItemStore interface {
	Get(ctx context.Context, id string) (*models.ReviewItem, error)
	List(ctx context.Context, status models.ReviewStatus, page, pageSize int) (*models.ReviewListResponse, error)
	Resolve(ctx context.Context, id string, status models.ReviewStatus, resolvedBy string) error
}

// EntityStore updates matched entities
type EntityStore interface {
	TouchActivity(ctx context.Context, id string, at time.Time) error
}

// IdentifierStore attaches confirmed identifiers
type IdentifierStore interface {
	Upsert(ctx context.Context, identifier *models.Identifier) error
}

// Merger consolidates two entities
type Merger interface {
	Merge(ctx context.Context, loserID, keeperID, reason, actor string) (*models.MergeResult, error)
}

// Service processes review verdicts. Confirming an item applies the held-back
// match; rejecting records the verdict. Either way the decision audit row the
// item references is never touched.
type Service struct {
	db          database.DB
	items       ItemStore
	entities    EntityStore
	identifiers IdentifierStore
	merger      Merger
	logger      ectologger.Logger
}

// NewService creates a review service
func NewService(
	db database.DB,
	items ItemStore,
	entities EntityStore,
	identifiers IdentifierStore,
	merger Merger,
	logger ectologger.Logger,
) *Service {
	return &Service{
		db:          db,
		items:       items,
		entities:    entities,
		identifiers: identifiers,
		merger:      merger,
		logger:      logger,
	}
}

// List returns review items by status
func (s *Service) List(ctx context.Context, status models.ReviewStatus, page, pageSize int) (*models.ReviewListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.List")
	defer span.End()
	return s.items.List(ctx, status, page, pageSize)
}

// Get returns a single review item
func (s *Service) Get(ctx context.Context, id string) (*models.ReviewItem, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.Get")
	defer span.End()
	return s.items.Get(ctx, id)
}

// Confirm applies the match a reviewer approved. When the item carries both a
// provisional entity and a candidate, the two are merged; otherwise the stored
// record's identifiers are attached to the candidate.
func (s *Service) Confirm(ctx context.Context, id string, req models.ReviewActionRequest) (*models.ReviewItem, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.Confirm")
	defer span.End()

	item, err := s.items.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if item.EntityID != nil && item.CandidateID != nil {
		if _, err := s.merger.Merge(ctx, *item.EntityID, *item.CandidateID,
			fmt.Sprintf("review %s confirmed", item.ID), req.ResolvedBy); err != nil {
			return nil, err
		}
		if err := s.items.Resolve(ctx, item.ID, models.ReviewStatusConfirmed, req.ResolvedBy); err != nil {
			return nil, err
		}
		metrics.ReviewActionsTotal.WithLabelValues("confirmed").Inc()
		return s.items.Get(ctx, item.ID)
	}

	if item.CandidateID == nil {
		return nil, fmt.Errorf("review item %s has no candidate to confirm", item.ID)
	}

	if err := s.confirmIdentifiers(ctx, item, req.ResolvedBy); err != nil {
		return nil, err
	}

	metrics.ReviewActionsTotal.WithLabelValues("confirmed").Inc()
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"review_id":   item.ID,
		"candidate":   *item.CandidateID,
		"resolved_by": req.ResolvedBy,
	}).Info("review item confirmed")

	return s.items.Get(ctx, item.ID)
}

// confirmIdentifiers attaches the stored record's identifiers to the candidate
// in one transaction with the item closure
func (s *Service) confirmIdentifiers(ctx context.Context, item *models.ReviewItem, resolvedBy string) error {
	var norm models.NormalizedRecord
	if err := json.Unmarshal(item.NormalizedInput, &norm); err != nil {
		return fmt.Errorf("failed to decode stored record for review %s: %w", item.ID, err)
	}

	ctxTx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	for kind, value := range norm.Identifiers() {
		identifier := &models.Identifier{
			ID:           uuid.New().String(),
			EntityID:     *item.CandidateID,
			Kind:         kind,
			Value:        value,
			Confidence:   1.0,
			SourceSystem: norm.SourceSystem,
			FirstSeenAt:  now,
			LastSeenAt:   now,
		}
		if err := s.identifiers.Upsert(ctxTx, identifier); err != nil {
			return err
		}
	}

	if err := s.entities.TouchActivity(ctxTx, *item.CandidateID, now); err != nil {
		return err
	}

	if err := s.items.Resolve(ctxTx, item.ID, models.ReviewStatusConfirmed, resolvedBy); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Reject records that a reviewer ruled the match out
func (s *Service) Reject(ctx context.Context, id string, req models.ReviewActionRequest) (*models.ReviewItem, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.Reject")
	defer span.End()

	if err := s.items.Resolve(ctx, id, models.ReviewStatusRejected, req.ResolvedBy); err != nil {
		return nil, err
	}

	metrics.ReviewActionsTotal.WithLabelValues("rejected").Inc()
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"review_id":   id,
		"resolved_by": req.ResolvedBy,
	}).Info("review item rejected")

	return s.items.Get(ctx, id)
}
