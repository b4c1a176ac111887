package relationship

import (
	"context"
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

const columns = "id, from_entity_id, to_entity_id, relation, data, created_at, updated_at"

// Repository handles relationship persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new relationship repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts a relationship or refreshes the existing one.
// The unique key is (from_entity_id, to_entity_id, relation).
func (r *Repository) Upsert(ctx context.Context, rel *models.Relationship) error {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.Upsert")
	defer span.End()

	if rel.ID == "" {
		rel.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = now
	}
	rel.UpdatedAt = now

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("relationships")
	sb.Cols("id", "from_entity_id", "to_entity_id", "relation", "data", "created_at", "updated_at")
	sb.Values(rel.ID, rel.FromEntityID, rel.ToEntityID, rel.Relation, rel.Data, rel.CreatedAt, rel.UpdatedAt)

	query, args := sb.Build()
	query += " ON CONFLICT (from_entity_id, to_entity_id, relation) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at"

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"from": rel.FromEntityID, "to": rel.ToEntityID, "relation": rel.Relation}).Error("Failed to upsert relationship")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert relationship")
	}

	return nil
}

// ListByEntity retrieves relationships touching an entity on either side
func (r *Repository) ListByEntity(ctx context.Context, entityID string) ([]models.Relationship, error) {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.ListByEntity")
	defer span.End()

	query := `
		SELECT ` + columns + `
		FROM relationships
		WHERE from_entity_id = $1 OR to_entity_id = $1
		ORDER BY created_at DESC
	`

	var relationships []models.Relationship
	if err := r.db.SelectContext(ctx, &relationships, query, entityID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list relationships by entity")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list relationships")
	}

	return relationships, nil
}

// MoveToEntity re-points both sides of the loser's relationships at the keeper.
// Rows that would duplicate an existing keeper relationship or point the keeper
// at itself are dropped. Returns the number of rows moved.
func (r *Repository) MoveToEntity(ctx context.Context, fromEntityID, toEntityID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.MoveToEntity")
	defer span.End()

	// Self-loops first: relationships between loser and keeper collapse away.
	dropQuery := `
		DELETE FROM relationships
		WHERE (from_entity_id = $1 AND to_entity_id = $2)
		OR (from_entity_id = $2 AND to_entity_id = $1)
	`
	if _, err := r.db.ExecContext(ctx, dropQuery, fromEntityID, toEntityID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to drop collapsing relationships")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to drop collapsing relationships")
	}

	moveFromQuery := `
		UPDATE relationships rel
		SET from_entity_id = $1, updated_at = NOW()
		WHERE rel.from_entity_id = $2
		AND NOT EXISTS (
			SELECT 1 FROM relationships k
			WHERE k.from_entity_id = $1 AND k.to_entity_id = rel.to_entity_id AND k.relation = rel.relation
		)
	`
	fromResult, err := r.db.ExecContext(ctx, moveFromQuery, toEntityID, fromEntityID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to move outgoing relationships")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to move relationships")
	}

	moveToQuery := `
		UPDATE relationships rel
		SET to_entity_id = $1, updated_at = NOW()
		WHERE rel.to_entity_id = $2
		AND NOT EXISTS (
			SELECT 1 FROM relationships k
			WHERE k.to_entity_id = $1 AND k.from_entity_id = rel.from_entity_id AND k.relation = rel.relation
		)
	`
	toResult, err := r.db.ExecContext(ctx, moveToQuery, toEntityID, fromEntityID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to move incoming relationships")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to move relationships")
	}

	// Leftovers are duplicates of keeper rows.
	cleanupQuery := `DELETE FROM relationships WHERE from_entity_id = $1 OR to_entity_id = $1`
	if _, err := r.db.ExecContext(ctx, cleanupQuery, fromEntityID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete duplicate relationships")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete duplicate relationships")
	}

	movedFrom, _ := fromResult.RowsAffected()
	movedTo, _ := toResult.RowsAffected()
	return int(movedFrom + movedTo), nil
}
