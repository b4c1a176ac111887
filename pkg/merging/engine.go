// Package merging consolidates duplicate entities. The loser becomes a
// tombstone pointing at the keeper; identifiers and relationships move in a
// single transaction.
package merging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// MaxChainHops bounds tombstone chain chasing. A chain longer than this means
// the data is corrupt and the merge fails loudly rather than walking forever.
const MaxChainHops = 10

// ErrMergeCycle is returned when tombstone chasing revisits an entity
var ErrMergeCycle = errors.New("tombstone chain contains a cycle")

// ErrSameEntity is returned when loser and keeper resolve to one entity and no
// prior merge record exists for the pair
var ErrSameEntity = errors.New("loser and keeper are the same entity")

// EntityStore reads and tombstones entities
type EntityStore interface {
	Get(ctx context.Context, id string) (*models.Entity, error)
	MarkMerged(ctx context.Context, loserID, keeperID string) error
	TouchActivity(ctx context.Context, id string, at time.Time) error
}

// IdentifierStore re-points identifiers during a merge
type IdentifierStore interface {
	// MoveToEntity re-points the loser's identifiers at the keeper, dropping
	// rows the keeper already holds. Returns the number of rows moved.
	MoveToEntity(ctx context.Context, fromEntityID, toEntityID string) (int, error)
	// FindSharedValues returns groups of distinct live entities holding the
	// same identifier value, oldest entity first within each group.
	FindSharedValues(ctx context.Context, kind models.IdentifierKind, limit int) ([][]string, error)
}

// RelationshipStore re-points relationships during a merge
type RelationshipStore interface {
	// MoveToEntity re-points both sides of the loser's relationships at the
	// keeper, dropping duplicates and self-loops. Returns rows moved.
	MoveToEntity(ctx context.Context, fromEntityID, toEntityID string) (int, error)
}

// MergeRecordStore persists the append-only merge history
type MergeRecordStore interface {
	Create(ctx context.Context, record *models.MergeRecord) error
	FindByPair(ctx context.Context, loserID, keeperID string) (*models.MergeRecord, error)
}

// DecisionStore appends audit rows
type DecisionStore interface {
	Create(ctx context.Context, decision *models.MatchDecision) error
}

// Values stamped on merge audit rows; a merge is an operator action, not a
// threshold decision.
const (
	auditSourceSystem     = "merge"
	auditThresholdVersion = "manual"
)

// Locker provides the ordered two-entity lock
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// Engine performs merges
type Engine struct {
	db            database.DB
	entities      EntityStore
	identifiers   IdentifierStore
	relationships RelationshipStore
	records       MergeRecordStore
	decisions     DecisionStore
	locker        Locker
	emitter       *events.Emitter
	lockTTL       time.Duration
	logger        ectologger.Logger
}

// NewEngine creates a merge engine
func NewEngine(
	db database.DB,
	entities EntityStore,
	identifiers IdentifierStore,
	relationships RelationshipStore,
	records MergeRecordStore,
	decisions DecisionStore,
	locker Locker,
	emitter *events.Emitter,
	lockTTL time.Duration,
	logger ectologger.Logger,
) *Engine {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &Engine{
		db:            db,
		entities:      entities,
		identifiers:   identifiers,
		relationships: relationships,
		records:       records,
		decisions:     decisions,
		locker:        locker,
		emitter:       emitter,
		lockTTL:       lockTTL,
		logger:        logger,
	}
}

// Merge consolidates loser into keeper. Both ids are chased through tombstone
// chains first, so merging an already-merged entity targets the survivors.
// Re-merging a pair that was already merged returns the prior record instead
// of failing.
func (e *Engine) Merge(ctx context.Context, loserID, keeperID, reason, actor string) (*models.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Merge")
	defer span.End()

	if loserID == keeperID {
		metrics.MergesTotal.WithLabelValues("precondition_failed").Inc()
		return nil, ErrSameEntity
	}

	loser, err := e.resolveCanonical(ctx, loserID)
	if err != nil {
		return nil, err
	}
	keeper, err := e.resolveCanonical(ctx, keeperID)
	if err != nil {
		return nil, err
	}

	if loser.ID == keeper.ID {
		// The pair already collapsed into one entity. Idempotent success if a
		// record documents it; precondition failure otherwise.
		prior, err := e.records.FindByPair(ctx, loserID, keeperID)
		if err != nil {
			return nil, err
		}
		if prior == nil {
			metrics.MergesTotal.WithLabelValues("precondition_failed").Inc()
			return nil, fmt.Errorf("%w: %s", ErrSameEntity, keeper.ID)
		}
		metrics.MergesTotal.WithLabelValues("already_merged").Inc()
		return &models.MergeResult{Record: prior, KeeperID: keeper.ID, AlreadyMerged: true}, nil
	}

	// Lock both entities in stable id order so overlapping merges cannot
	// deadlock each other.
	unlock, err := e.lockPair(ctx, loser.ID, keeper.ID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if unlockErr := unlock(ctx); unlockErr != nil {
			e.logger.WithContext(ctx).WithError(unlockErr).Warn("failed to release merge locks")
		}
	}()

	result, err := e.executeMerge(ctx, loser.ID, keeper.ID, reason, actor)
	if err != nil {
		metrics.MergesTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	metrics.MergesTotal.WithLabelValues("merged").Inc()
	e.emitter.EmitMerge(ctx, result)

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"loser_id":  loser.ID,
		"keeper_id": keeper.ID,
		"actor":     actor,
	}).Info("entities merged")

	return result, nil
}

// executeMerge performs the single-transaction consolidation
func (e *Engine) executeMerge(ctx context.Context, loserID, keeperID, reason, actor string) (*models.MergeResult, error) {
	ctxTx, tx, err := e.db.GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Re-check under the lock; a concurrent merge may have won.
	loser, err := e.entities.Get(ctxTx, loserID)
	if err != nil {
		return nil, err
	}
	if loser.IsTombstone() {
		prior, err := e.records.FindByPair(ctxTx, loserID, keeperID)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			return &models.MergeResult{Record: prior, KeeperID: keeperID, AlreadyMerged: true}, nil
		}
		return nil, fmt.Errorf("entity %s was merged away concurrently", loserID)
	}
	keeper, err := e.entities.Get(ctxTx, keeperID)
	if err != nil {
		return nil, err
	}
	if keeper.IsTombstone() {
		return nil, fmt.Errorf("keeper %s was merged away concurrently", keeperID)
	}

	movedIdentifiers, err := e.identifiers.MoveToEntity(ctxTx, loserID, keeperID)
	if err != nil {
		return nil, err
	}
	movedRelationships, err := e.relationships.MoveToEntity(ctxTx, loserID, keeperID)
	if err != nil {
		return nil, err
	}

	if err := e.entities.MarkMerged(ctxTx, loserID, keeperID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := e.entities.TouchActivity(ctxTx, keeperID, now); err != nil {
		return nil, err
	}

	moved := models.MovedCounts{Identifiers: movedIdentifiers, Relationships: movedRelationships}
	movedJSON, err := json.Marshal(moved)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal moved counts: %w", err)
	}

	record := &models.MergeRecord{
		ID:          uuid.New().String(),
		LoserID:     loserID,
		KeeperID:    keeperID,
		Reason:      reason,
		Actor:       actor,
		MovedCounts: movedJSON,
		CreatedAt:   now,
	}
	if err := e.records.Create(ctxTx, record); err != nil {
		return nil, err
	}

	auditInput, err := json.Marshal(map[string]any{
		"loser_id":     loserID,
		"keeper_id":    keeperID,
		"actor":        actor,
		"moved_counts": moved,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal merge audit input: %w", err)
	}
	decision := &models.MatchDecision{
		ID:               uuid.New().String(),
		Decision:         models.DecisionMerged,
		EntityID:         &keeperID,
		Reason:           reason,
		NormalizedInput:  auditInput,
		ThresholdVersion: auditThresholdVersion,
		SourceSystem:     auditSourceSystem,
		CreatedAt:        now,
	}
	if err := e.decisions.Create(ctxTx, decision); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &models.MergeResult{Record: record, KeeperID: keeperID, MovedCounts: moved}, nil
}

// ResolveCanonical follows tombstone pointers to the surviving entity
func (e *Engine) ResolveCanonical(ctx context.Context, id string) (*models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.ResolveCanonical")
	defer span.End()
	return e.resolveCanonical(ctx, id)
}

func (e *Engine) resolveCanonical(ctx context.Context, id string) (*models.Entity, error) {
	visited := make(map[string]struct{}, 2)
	current := id
	for hops := 0; hops <= MaxChainHops; hops++ {
		if _, seen := visited[current]; seen {
			return nil, fmt.Errorf("%w: entity %s", ErrMergeCycle, current)
		}
		visited[current] = struct{}{}

		entity, err := e.entities.Get(ctx, current)
		if err != nil {
			return nil, err
		}
		if !entity.IsTombstone() {
			return entity, nil
		}
		current = *entity.MergedInto
	}
	return nil, fmt.Errorf("tombstone chain from %s exceeds %d hops", id, MaxChainHops)
}

// Sweep merges entity groups sharing an exact identifier value of the given
// kind. Each group keeps its oldest entity; every pair runs through Merge so
// each consolidation gets its own record and locking. Failures skip the pair
// and the sweep continues.
func (e *Engine) Sweep(ctx context.Context, req models.SweepRequest) (*models.SweepResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Sweep")
	defer span.End()

	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}

	groups, err := e.identifiers.FindSharedValues(ctx, req.Kind, limit)
	if err != nil {
		return nil, err
	}

	result := &models.SweepResult{}
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		keeper := group[0]
		for _, loser := range group[1:] {
			result.PairsFound++
			mergeResult, err := e.Merge(ctx, loser, keeper, fmt.Sprintf("bulk sweep on shared %s", req.Kind), req.Actor)
			if err != nil {
				result.Skipped++
				result.SkipReasons = append(result.SkipReasons, fmt.Sprintf("%s -> %s: %v", loser, keeper, err))
				continue
			}
			if mergeResult.AlreadyMerged {
				result.Skipped++
				result.SkipReasons = append(result.SkipReasons, fmt.Sprintf("%s -> %s: already merged", loser, keeper))
				continue
			}
			result.Merged++
			result.MergeIDs = append(result.MergeIDs, mergeResult.Record.ID)
		}
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"kind":   string(req.Kind),
		"pairs":  result.PairsFound,
		"merged": result.Merged,
	}).Info("merge sweep completed")

	return result, nil
}

// lockPair takes both entity locks in sorted id order
func (e *Engine) lockPair(ctx context.Context, a, b string) (func(context.Context) error, error) {
	ids := []string{a, b}
	sort.Strings(ids)

	var unlocks []func(context.Context) error
	release := func(ctx context.Context) error {
		var firstErr error
		// Release in reverse acquisition order.
		for i := len(unlocks) - 1; i >= 0; i-- {
			if err := unlocks[i](ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	for _, id := range ids {
		unlock, err := e.locker.Acquire(ctx, "merge:entity:"+id, e.lockTTL)
		if err != nil {
			_ = release(ctx)
			return nil, fmt.Errorf("failed to lock entity %s: %w", id, err)
		}
		unlocks = append(unlocks, unlock)
	}

	return release, nil
}
