package blacklist

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

const columns = "id, kind, value, classification, distinct_name_count, sample_names, required_similarity, note, created_at, updated_at"

// sharedNamesCTE aggregates, per identifier value, how many distinct display
// names live entities have attached to it and a sample of those names
const sharedNamesCTE = `
	SELECT i.kind, i.value,
		COUNT(DISTINCT e.display_name) AS name_count,
		(
			SELECT COALESCE(jsonb_agg(dn), '[]'::jsonb)
			FROM (
				SELECT DISTINCT e2.display_name AS dn
				FROM identifiers i2
				JOIN entities e2 ON e2.id = i2.entity_id AND e2.merged_into IS NULL
				WHERE i2.kind = i.kind AND i2.value = i.value AND e2.display_name IS NOT NULL
				ORDER BY dn
				LIMIT $2
			) samples
		) AS names
	FROM identifiers i
	JOIN entities e ON e.id = i.entity_id AND e.merged_into IS NULL
	WHERE e.display_name IS NOT NULL
	GROUP BY i.kind, i.value
	HAVING COUNT(DISTINCT e.display_name) >= $1
`

// Repository handles blacklist entry persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new blacklist repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a blacklist entry or updates the classification of an
// existing one. The unique key is (kind, value).
func (r *Repository) Create(ctx context.Context, entry *models.BlacklistEntry) error {
	ctx, span := tracing.StartSpan(ctx, "blacklist.Repository.Create")
	defer span.End()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	if entry.RequiredSimilarity <= 0 {
		entry.RequiredSimilarity = 0.8
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("blacklist_entries")
	sb.Cols("id", "kind", "value", "classification", "distinct_name_count", "sample_names", "required_similarity", "note", "created_at", "updated_at")
	sb.Values(entry.ID, entry.Kind, entry.Value, entry.Classification, entry.DistinctNameCount, entry.SampleNames, entry.RequiredSimilarity, entry.Note, entry.CreatedAt, entry.UpdatedAt)

	query, args := sb.Build()
	query += " ON CONFLICT (kind, value) DO UPDATE SET classification = EXCLUDED.classification, required_similarity = EXCLUDED.required_similarity, note = EXCLUDED.note, updated_at = EXCLUDED.updated_at"

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"kind": entry.Kind, "value": entry.Value}).Error("Failed to create blacklist entry")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create blacklist entry")
	}

	return nil
}

// FindByValues retrieves entries matching any of the given (kind, value) pairs
func (r *Repository) FindByValues(ctx context.Context, lookups map[models.IdentifierKind]string) ([]models.BlacklistEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "blacklist.Repository.FindByValues")
	defer span.End()

	if len(lookups) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("blacklist_entries")

	var matches []string
	for kind, value := range lookups {
		matches = append(matches, sb.And(
			sb.Equal("kind", string(kind)),
			sb.Equal("value", value),
		))
	}
	sb.Where(sb.Or(matches...))

	query, args := sb.Build()
	var entries []models.BlacklistEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find blacklist entries")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find blacklist entries")
	}

	return entries, nil
}

// List retrieves blacklist entries, optionally filtered by classification
func (r *Repository) List(ctx context.Context, classification *models.BlacklistClassification, page, pageSize int) (*models.BlacklistListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "blacklist.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("blacklist_entries")
	if classification != nil {
		sb.Where(sb.Equal("classification", string(*classification)))
	}
	sb.OrderBy("distinct_name_count DESC", "value ASC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args := sb.Build()
	var entries []models.BlacklistEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list blacklist entries")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list blacklist entries")
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)")
	cb.From("blacklist_entries")
	if classification != nil {
		cb.Where(cb.Equal("classification", string(*classification)))
	}

	query, args = cb.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count blacklist entries")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count blacklist entries")
	}

	return &models.BlacklistListResponse{
		Items:      entries,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// Delete removes a blacklist entry
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "blacklist.Repository.Delete")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("blacklist_entries")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete blacklist entry")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete blacklist entry")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("blacklist entry %s not found", id))
	}

	return nil
}

// RefreshEvidence recomputes soft-entry evidence from the identifier table.
// Values carrying at least minDistinctNames distinct display names get a soft
// entry with an updated name count and sample; hard entries are left alone.
func (r *Repository) RefreshEvidence(ctx context.Context, minDistinctNames, sampleLimit int) (*models.RefreshEvidenceResult, error) {
	ctx, span := tracing.StartSpan(ctx, "blacklist.Repository.RefreshEvidence")
	defer span.End()

	if minDistinctNames < 2 {
		minDistinctNames = 3
	}
	if sampleLimit < 1 || sampleLimit > 50 {
		sampleLimit = 10
	}

	updateQuery := `
		WITH shared AS (` + sharedNamesCTE + `)
		UPDATE blacklist_entries b
		SET distinct_name_count = s.name_count,
			sample_names = s.names,
			updated_at = NOW()
		FROM shared s
		WHERE b.kind = s.kind AND b.value = s.value AND b.classification = 'soft'
	`

	updateResult, err := r.db.ExecContext(ctx, updateQuery, minDistinctNames, sampleLimit)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update blacklist evidence")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update blacklist evidence")
	}

	insertQuery := `
		WITH shared AS (` + sharedNamesCTE + `)
		INSERT INTO blacklist_entries (id, kind, value, classification, distinct_name_count, sample_names, required_similarity, created_at, updated_at)
		SELECT gen_random_uuid(), s.kind, s.value, 'soft', s.name_count, s.names, 0.8, NOW(), NOW()
		FROM shared s
		WHERE NOT EXISTS (
			SELECT 1 FROM blacklist_entries b WHERE b.kind = s.kind AND b.value = s.value
		)
	`

	insertResult, err := r.db.ExecContext(ctx, insertQuery, minDistinctNames, sampleLimit)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to insert blacklist evidence")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert blacklist evidence")
	}

	updated, _ := updateResult.RowsAffected()
	added, _ := insertResult.RowsAffected()

	r.logger.WithContext(ctx).WithFields(map[string]any{"updated": updated, "added": added}).Info("Refreshed blacklist evidence")

	return &models.RefreshEvidenceResult{
		EntriesUpdated: int(updated),
		EntriesAdded:   int(added),
	}, nil
}
