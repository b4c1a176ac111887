package classifierrule

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

const columns = "id, category, match_kind, pattern, active, created_at, updated_at"

// Repository handles classifier rule persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new classifier rule repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a rule. The unique key is (category, match_kind, pattern).
func (r *Repository) Create(ctx context.Context, rule *models.ClassifierRule) error {
	ctx, span := tracing.StartSpan(ctx, "classifierrule.Repository.Create")
	defer span.End()

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("classifier_rules")
	sb.Cols("id", "category", "match_kind", "pattern", "active", "created_at", "updated_at")
	sb.Values(rule.ID, rule.Category, rule.MatchKind, rule.Pattern, rule.Active, rule.CreatedAt, rule.UpdatedAt)

	query, args := sb.Build()
	query += " ON CONFLICT (category, match_kind, pattern) DO UPDATE SET active = EXCLUDED.active, updated_at = EXCLUDED.updated_at"

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"category": rule.Category, "pattern": rule.Pattern}).Error("Failed to create classifier rule")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create classifier rule")
	}

	return nil
}

// ListActive retrieves all active rules
func (r *Repository) ListActive(ctx context.Context) ([]models.ClassifierRule, error) {
	ctx, span := tracing.StartSpan(ctx, "classifierrule.Repository.ListActive")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("classifier_rules")
	sb.Where(sb.Equal("active", true))
	sb.OrderBy("category", "match_kind", "pattern")

	query, args := sb.Build()
	var rules []models.ClassifierRule
	if err := r.db.SelectContext(ctx, &rules, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list active classifier rules")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list classifier rules")
	}

	return rules, nil
}

// List retrieves all rules, active or not
func (r *Repository) List(ctx context.Context) ([]models.ClassifierRule, error) {
	ctx, span := tracing.StartSpan(ctx, "classifierrule.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("classifier_rules")
	sb.OrderBy("category", "match_kind", "pattern")

	query, args := sb.Build()
	var rules []models.ClassifierRule
	if err := r.db.SelectContext(ctx, &rules, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list classifier rules")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list classifier rules")
	}

	return rules, nil
}

// SetActive toggles a rule on or off
func (r *Repository) SetActive(ctx context.Context, id string, active bool) error {
	ctx, span := tracing.StartSpan(ctx, "classifierrule.Repository.SetActive")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("classifier_rules")
	sb.Set(
		sb.Assign("active", active),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to toggle classifier rule")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to toggle classifier rule")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("classifier rule %s not found", id))
	}

	return nil
}

// Delete removes a rule
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "classifierrule.Repository.Delete")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("classifier_rules")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete classifier rule")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete classifier rule")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("classifier rule %s not found", id))
	}

	return nil
}
