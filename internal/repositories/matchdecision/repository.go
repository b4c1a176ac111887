package matchdecision

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

const columns = "id, decision, entity_id, reason, normalized_input, candidates, top_score, threshold_version, source_system, source_batch, created_at"

// Repository handles the append-only match decision audit log
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new match decision repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create appends a decision row. Rows are never updated or deleted.
func (r *Repository) Create(ctx context.Context, decision *models.MatchDecision) error {
	ctx, span := tracing.StartSpan(ctx, "matchdecision.Repository.Create")
	defer span.End()

	if decision.ID == "" {
		decision.ID = uuid.New().String()
	}
	if decision.CreatedAt.IsZero() {
		decision.CreatedAt = time.Now().UTC()
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("match_decisions")
	sb.Cols("id", "decision", "entity_id", "reason", "normalized_input", "candidates", "top_score", "threshold_version", "source_system", "source_batch", "created_at")
	sb.Values(decision.ID, decision.Decision, decision.EntityID, decision.Reason, decision.NormalizedInput, decision.Candidates, decision.TopScore, decision.ThresholdVersion, decision.SourceSystem, decision.SourceBatch, decision.CreatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"decision_id": decision.ID}).Error("Failed to create match decision")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create match decision")
	}

	return nil
}

// Get retrieves a decision by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.MatchDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "matchdecision.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("match_decisions")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var decision models.MatchDecision
	if err := r.db.GetContext(ctx, &decision, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("match decision %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get match decision")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get match decision")
	}

	return &decision, nil
}

// List retrieves decisions matching the filters, newest first, with a total count
func (r *Repository) List(ctx context.Context, req models.ListDecisionsRequest) (*models.DecisionListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "matchdecision.Repository.List")
	defer span.End()

	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("match_decisions")

	where := r.filters(sb, req)
	if len(where) > 0 {
		sb.Where(where...)
	}
	sb.OrderBy("created_at DESC", "id DESC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args := sb.Build()
	var decisions []models.MatchDecision
	if err := r.db.SelectContext(ctx, &decisions, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list match decisions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list match decisions")
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)")
	cb.From("match_decisions")
	countWhere := r.filters(cb, req)
	if len(countWhere) > 0 {
		cb.Where(countWhere...)
	}

	query, args = cb.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count match decisions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count match decisions")
	}

	return &models.DecisionListResponse{
		Items:      decisions,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

func (r *Repository) filters(sb *sqlbuilder.SelectBuilder, req models.ListDecisionsRequest) []string {
	var where []string
	if req.Decision != nil {
		where = append(where, sb.Equal("decision", string(*req.Decision)))
	}
	if req.ThresholdVersion != nil {
		where = append(where, sb.Equal("threshold_version", *req.ThresholdVersion))
	}
	if req.EntityID != nil {
		where = append(where, sb.Equal("entity_id", *req.EntityID))
	}
	if req.Since != nil {
		where = append(where, sb.GreaterEqualThan("created_at", *req.Since))
	}
	if req.Until != nil {
		where = append(where, sb.LessThan("created_at", *req.Until))
	}
	return where
}
