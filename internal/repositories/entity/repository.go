package entity

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

const columns = "id, kind, display_name, merged_into, source_system, created_at, updated_at, last_activity_at"

// Repository handles entity persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new entity repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new entity
func (r *Repository) Create(ctx context.Context, entity *models.Entity) error {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.Create")
	defer span.End()

	if entity.ID == "" {
		entity.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = now
	}
	entity.UpdatedAt = entity.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("entities")
	sb.Cols("id", "kind", "display_name", "merged_into", "source_system", "created_at", "updated_at", "last_activity_at")
	sb.Values(entity.ID, entity.Kind, entity.DisplayName, entity.MergedInto, entity.SourceSystem, entity.CreatedAt, entity.UpdatedAt, entity.LastActivityAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": entity.ID}).Error("Failed to create entity")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create entity")
	}

	return nil
}

// Get retrieves an entity by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("entities")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var entity models.Entity
	if err := r.db.GetContext(ctx, &entity, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("entity %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get entity")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get entity")
	}

	return &entity, nil
}

// UpdateDisplayName replaces an entity's display name
func (r *Repository) UpdateDisplayName(ctx context.Context, id, name string) error {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.UpdateDisplayName")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("entities")
	sb.Set(
		sb.Assign("display_name", name),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("merged_into"),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update entity display name")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update entity display name")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("entity %s not found", id))
	}

	return nil
}

// TouchActivity bumps an entity's last activity timestamp
func (r *Repository) TouchActivity(ctx context.Context, id string, at time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.TouchActivity")
	defer span.End()

	query := `
		UPDATE entities
		SET last_activity_at = GREATEST(COALESCE(last_activity_at, $1), $1), updated_at = $1
		WHERE id = $2
	`

	if _, err := r.db.ExecContext(ctx, query, at, id); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to touch entity activity")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to touch entity activity")
	}

	return nil
}

// MarkMerged turns the loser into a tombstone pointing at the keeper. Fails if
// the loser is already a tombstone.
func (r *Repository) MarkMerged(ctx context.Context, loserID, keeperID string) error {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.MarkMerged")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("entities")
	sb.Set(
		sb.Assign("merged_into", keeperID),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", loserID),
		sb.IsNull("merged_into"),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"loser_id": loserID, "keeper_id": keeperID}).Error("Failed to mark entity merged")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark entity merged")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("entity %s is not live", loserID))
	}

	return nil
}
