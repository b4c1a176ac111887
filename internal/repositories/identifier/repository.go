package identifier

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/scoring"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const columns = "id, entity_id, kind, value, confidence, source_system, first_seen_at, last_seen_at"

// Repository handles identifier persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new identifier repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts an identifier or refreshes last_seen_at on the existing row.
// The unique key is (entity_id, kind, value).
func (r *Repository) Upsert(ctx context.Context, identifier *models.Identifier) error {
	ctx, span := tracing.StartSpan(ctx, "identifier.Repository.Upsert")
	defer span.End()

	if identifier.ID == "" {
		identifier.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if identifier.FirstSeenAt.IsZero() {
		identifier.FirstSeenAt = now
	}
	identifier.LastSeenAt = now

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("identifiers")
	sb.Cols("id", "entity_id", "kind", "value", "confidence", "source_system", "first_seen_at", "last_seen_at")
	sb.Values(identifier.ID, identifier.EntityID, identifier.Kind, identifier.Value, identifier.Confidence, identifier.SourceSystem, identifier.FirstSeenAt, identifier.LastSeenAt)

	query, args := sb.Build()
	query += " ON CONFLICT (entity_id, kind, value) DO UPDATE SET last_seen_at = EXCLUDED.last_seen_at, confidence = GREATEST(identifiers.confidence, EXCLUDED.confidence)"

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": identifier.EntityID, "kind": identifier.Kind}).Error("Failed to upsert identifier")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert identifier")
	}

	return nil
}

// ListByEntity retrieves all identifiers attached to an entity
func (r *Repository) ListByEntity(ctx context.Context, entityID string) ([]models.Identifier, error) {
	ctx, span := tracing.StartSpan(ctx, "identifier.Repository.ListByEntity")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("identifiers")
	sb.Where(sb.Equal("entity_id", entityID))
	sb.OrderBy("kind", "value")

	query, args := sb.Build()
	var identifiers []models.Identifier
	if err := r.db.SelectContext(ctx, &identifiers, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list identifiers by entity")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list identifiers")
	}

	return identifiers, nil
}

// FindCandidates retrieves live entities of the given kind holding any of the
// lookup values, each with its full identifier set loaded
func (r *Repository) FindCandidates(ctx context.Context, kind models.EntityKind, lookups map[models.IdentifierKind]string) ([]scoring.Candidate, error) {
	ctx, span := tracing.StartSpan(ctx, "identifier.Repository.FindCandidates")
	defer span.End()

	if len(lookups) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("DISTINCT e.id", "e.kind", "e.display_name", "e.merged_into", "e.source_system", "e.created_at", "e.updated_at", "e.last_activity_at")
	sb.From("entities e")
	sb.JoinWithOption(sqlbuilder.InnerJoin, "identifiers i", "i.entity_id = e.id")

	var matches []string
	for identifierKind, value := range lookups {
		matches = append(matches, sb.And(
			sb.Equal("i.kind", string(identifierKind)),
			sb.Equal("i.value", value),
		))
	}
	sb.Where(
		sb.Equal("e.kind", string(kind)),
		sb.IsNull("e.merged_into"),
		sb.Or(matches...),
	)

	query, args := sb.Build()
	var entities []models.Entity
	if err := r.db.SelectContext(ctx, &entities, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find candidate entities")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find candidate entities")
	}
	if len(entities) == 0 {
		return nil, nil
	}

	ids := make([]any, len(entities))
	for i, e := range entities {
		ids[i] = e.ID
	}

	isb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	isb.Select(columns)
	isb.From("identifiers")
	isb.Where(isb.In("entity_id", ids...))

	query, args = isb.Build()
	var identifiers []models.Identifier
	if err := r.db.SelectContext(ctx, &identifiers, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to load candidate identifiers")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load candidate identifiers")
	}

	byEntity := make(map[string][]models.Identifier, len(entities))
	for _, identifier := range identifiers {
		byEntity[identifier.EntityID] = append(byEntity[identifier.EntityID], identifier)
	}

	candidates := make([]scoring.Candidate, 0, len(entities))
	for _, e := range entities {
		candidates = append(candidates, scoring.Candidate{
			Entity:      e,
			Identifiers: byEntity[e.ID],
		})
	}

	return candidates, nil
}

// MoveToEntity re-points the loser's identifiers at the keeper. Rows the keeper
// already holds are dropped instead of moved. Returns the number of rows moved.
func (r *Repository) MoveToEntity(ctx context.Context, fromEntityID, toEntityID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "identifier.Repository.MoveToEntity")
	defer span.End()

	moveQuery := `
		UPDATE identifiers i
		SET entity_id = $1
		WHERE i.entity_id = $2
		AND NOT EXISTS (
			SELECT 1 FROM identifiers k
			WHERE k.entity_id = $1 AND k.kind = i.kind AND k.value = i.value
		)
	`

	result, err := r.db.ExecContext(ctx, moveQuery, toEntityID, fromEntityID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to move identifiers")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to move identifiers")
	}
	moved, _ := result.RowsAffected()

	// Anything still attached to the loser is a duplicate of a keeper row.
	deleteQuery := `DELETE FROM identifiers WHERE entity_id = $1`
	if _, err := r.db.ExecContext(ctx, deleteQuery, fromEntityID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete duplicate identifiers")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete duplicate identifiers")
	}

	return int(moved), nil
}

// FindSharedValues returns groups of live entities holding the same identifier
// value of the given kind, oldest entity first within each group
func (r *Repository) FindSharedValues(ctx context.Context, kind models.IdentifierKind, limit int) ([][]string, error) {
	ctx, span := tracing.StartSpan(ctx, "identifier.Repository.FindSharedValues")
	defer span.End()

	if limit < 1 || limit > 1000 {
		limit = 100
	}

	query := `
		SELECT array_agg(DISTINCT e.id ORDER BY e.id) AS entity_ids
		FROM identifiers i
		JOIN entities e ON e.id = i.entity_id AND e.merged_into IS NULL
		WHERE i.kind = $1
		GROUP BY i.value
		HAVING COUNT(DISTINCT e.id) > 1
		ORDER BY MIN(e.created_at)
		LIMIT $2
	`

	rows, err := r.db.QueryxContext(ctx, query, string(kind), limit)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find shared identifier values")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find shared identifier values")
	}
	defer rows.Close()

	var groups [][]string
	for rows.Next() {
		var ids pq.StringArray
		if err := rows.Scan(&ids); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to scan shared identifier group")
			return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to scan shared identifier group")
		}
		groups = append(groups, r.orderByCreation(ctx, ids))
	}
	if err := rows.Err(); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to read shared identifier groups")
	}

	return groups, nil
}

// orderByCreation sorts a group oldest entity first so sweeps keep the oldest
func (r *Repository) orderByCreation(ctx context.Context, ids []string) []string {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id")
	sb.From("entities")
	sb.Where(sb.In("id", idsToAny(ids)...))
	sb.OrderBy("created_at ASC", "id ASC")

	query, args := sb.Build()
	var ordered []string
	if err := r.db.SelectContext(ctx, &ordered, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Warn(fmt.Sprintf("Failed to order entity group of %d, using unsorted", len(ids)))
		return ids
	}
	return ordered
}

func idsToAny(ids []string) []any {
	result := make([]any, len(ids))
	for i, id := range ids {
		result[i] = id
	}
	return result
}
