package reviewqueue

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const columns = "id, decision_id, entity_id, candidate_id, reason, normalized_input, status, resolved_by, resolved_at, created_at"

// Repository handles review queue persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new review queue repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a review item
func (r *Repository) Create(ctx context.Context, item *models.ReviewItem) error {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Repository.Create")
	defer span.End()

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if item.Status == "" {
		item.Status = models.ReviewStatusOpen
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("review_queue")
	sb.Cols("id", "decision_id", "entity_id", "candidate_id", "reason", "normalized_input", "status", "resolved_by", "resolved_at", "created_at")
	sb.Values(item.ID, item.DecisionID, item.EntityID, item.CandidateID, item.Reason, item.NormalizedInput, item.Status, item.ResolvedBy, item.ResolvedAt, item.CreatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"review_id": item.ID}).Error("Failed to create review item")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create review item")
	}

	return nil
}

// Get retrieves a review item by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.ReviewItem, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("review_queue")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var item models.ReviewItem
	if err := r.db.GetContext(ctx, &item, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("review item %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get review item")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get review item")
	}

	return &item, nil
}

// List retrieves review items by status, oldest first so reviewers drain the
// queue in arrival order
func (r *Repository) List(ctx context.Context, status models.ReviewStatus, page, pageSize int) (*models.ReviewListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("review_queue")
	sb.Where(sb.Equal("status", string(status)))
	sb.OrderBy("created_at ASC", "id ASC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args := sb.Build()
	var items []models.ReviewItem
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list review items")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list review items")
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)")
	cb.From("review_queue")
	cb.Where(cb.Equal("status", string(status)))

	query, args = cb.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count review items")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count review items")
	}

	return &models.ReviewListResponse{
		Items:      items,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// Resolve closes an open review item. Fails with a conflict if the item was
// already resolved, so double submissions cannot flip a verdict.
func (r *Repository) Resolve(ctx context.Context, id string, status models.ReviewStatus, resolvedBy string) error {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Repository.Resolve")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("review_queue")
	sb.Set(
		sb.Assign("status", string(status)),
		sb.Assign("resolved_by", resolvedBy),
		sb.Assign("resolved_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("status", string(models.ReviewStatusOpen)),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to resolve review item")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve review item")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("review item %s is not open", id))
	}

	return nil
}
