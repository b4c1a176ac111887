package mergerecord

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

const columns = "id, loser_id, keeper_id, reason, actor, moved_counts, created_at"

// Repository handles the append-only merge history
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new merge record repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create appends a merge record
func (r *Repository) Create(ctx context.Context, record *models.MergeRecord) error {
	ctx, span := tracing.StartSpan(ctx, "mergerecord.Repository.Create")
	defer span.End()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("merge_records")
	sb.Cols("id", "loser_id", "keeper_id", "reason", "actor", "moved_counts", "created_at")
	sb.Values(record.ID, record.LoserID, record.KeeperID, record.Reason, record.Actor, record.MovedCounts, record.CreatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"loser_id": record.LoserID, "keeper_id": record.KeeperID}).Error("Failed to create merge record")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create merge record")
	}

	return nil
}

// Get retrieves a merge record by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.MergeRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "mergerecord.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("merge_records")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var record models.MergeRecord
	if err := r.db.GetContext(ctx, &record, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("merge record %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get merge record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get merge record")
	}

	return &record, nil
}

// FindByPair retrieves the most recent merge record between two entities in
// either direction. Returns nil when no record exists.
func (r *Repository) FindByPair(ctx context.Context, loserID, keeperID string) (*models.MergeRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "mergerecord.Repository.FindByPair")
	defer span.End()

	query := `
		SELECT ` + columns + `
		FROM merge_records
		WHERE (loser_id = $1 AND keeper_id = $2) OR (loser_id = $2 AND keeper_id = $1)
		ORDER BY created_at DESC
		LIMIT 1
	`

	var record models.MergeRecord
	if err := r.db.GetContext(ctx, &record, query, loserID, keeperID); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find merge record by pair")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find merge record")
	}

	return &record, nil
}

// ListByEntity retrieves merge records involving an entity on either side
func (r *Repository) ListByEntity(ctx context.Context, entityID string) ([]models.MergeRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "mergerecord.Repository.ListByEntity")
	defer span.End()

	query := `
		SELECT ` + columns + `
		FROM merge_records
		WHERE loser_id = $1 OR keeper_id = $1
		ORDER BY created_at DESC
	`

	var records []models.MergeRecord
	if err := r.db.SelectContext(ctx, &records, query, entityID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list merge records by entity")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list merge records")
	}

	return records, nil
}
