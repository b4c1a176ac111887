package merging

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/models"
)

type fakeTx struct {
	committed  bool
	rolledBack bool
}

func (t *fakeTx) IsOpen() bool { return !t.committed && !t.rolledBack }
func (t *fakeTx) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, nil
}
func (t *fakeTx) GetContext(context.Context, any, string, ...any) error    { return nil }
func (t *fakeTx) SelectContext(context.Context, any, string, ...any) error { return nil }
func (t *fakeTx) QueryxContext(context.Context, string, ...any) (*sqlx.Rows, error) {
	return nil, nil
}
func (t *fakeTx) Commit(context.Context) error   { t.committed = true; return nil }
func (t *fakeTx) Rollback(context.Context) error { t.rolledBack = true; return nil }

type fakeDB struct {
	txs []*fakeTx
}

func (d *fakeDB) ExecContext(context.Context, string, ...any) (sql.Result, error) { return nil, nil }
func (d *fakeDB) GetContext(context.Context, any, string, ...any) error           { return nil }
func (d *fakeDB) SelectContext(context.Context, any, string, ...any) error        { return nil }
func (d *fakeDB) QueryxContext(context.Context, string, ...any) (*sqlx.Rows, error) {
	return nil, nil
}
func (d *fakeDB) PingContext(context.Context) error { return nil }
func (d *fakeDB) Close() error                      { return nil }
func (d *fakeDB) GetTx(ctx context.Context, _ *sql.TxOptions) (context.Context, database.Tx, error) {
	tx := &fakeTx{}
	d.txs = append(d.txs, tx)
	return ctx, tx, nil
}

type fakeEntityStore struct {
	entities map[string]*models.Entity
	merged   map[string]string
	touched  []string
	markErr  error
}

func newFakeEntityStore(entities ...*models.Entity) *fakeEntityStore {
	s := &fakeEntityStore{entities: map[string]*models.Entity{}, merged: map[string]string{}}
	for _, e := range entities {
		s.entities[e.ID] = e
	}
	return s
}

func (s *fakeEntityStore) Get(_ context.Context, id string) (*models.Entity, error) {
	entity, ok := s.entities[id]
	if !ok {
		return nil, errors.New("entity not found: " + id)
	}
	return entity, nil
}

func (s *fakeEntityStore) MarkMerged(_ context.Context, loserID, keeperID string) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.merged[loserID] = keeperID
	s.entities[loserID].MergedInto = &keeperID
	return nil
}

func (s *fakeEntityStore) TouchActivity(_ context.Context, id string, _ time.Time) error {
	s.touched = append(s.touched, id)
	return nil
}

type fakeIdentifierStore struct {
	moved  int
	groups [][]string
}

func (s *fakeIdentifierStore) MoveToEntity(_ context.Context, _, _ string) (int, error) {
	return s.moved, nil
}

func (s *fakeIdentifierStore) FindSharedValues(_ context.Context, _ models.IdentifierKind, _ int) ([][]string, error) {
	return s.groups, nil
}

type fakeRelationshipStore struct {
	moved int
}

func (s *fakeRelationshipStore) MoveToEntity(_ context.Context, _, _ string) (int, error) {
	return s.moved, nil
}

type fakeMergeRecordStore struct {
	records   []*models.MergeRecord
	createErr error
}

func (s *fakeMergeRecordStore) Create(_ context.Context, record *models.MergeRecord) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.records = append(s.records, record)
	return nil
}

func (s *fakeMergeRecordStore) FindByPair(_ context.Context, loserID, keeperID string) (*models.MergeRecord, error) {
	for _, r := range s.records {
		if r.LoserID == loserID && r.KeeperID == keeperID {
			return r, nil
		}
	}
	return nil, nil
}

type fakeDecisionStore struct {
	decisions []*models.MatchDecision
}

func (s *fakeDecisionStore) Create(_ context.Context, decision *models.MatchDecision) error {
	s.decisions = append(s.decisions, decision)
	return nil
}

type fakeLocker struct {
	keys     []string
	released int
}

func (l *fakeLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(context.Context) error, error) {
	l.keys = append(l.keys, key)
	return func(context.Context) error {
		l.released++
		return nil
	}, nil
}

type fixture struct {
	engine        *Engine
	db            *fakeDB
	entities      *fakeEntityStore
	identifiers   *fakeIdentifierStore
	relationships *fakeRelationshipStore
	records       *fakeMergeRecordStore
	decisions     *fakeDecisionStore
	locker        *fakeLocker
}

func newFixture(entities ...*models.Entity) *fixture {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	f := &fixture{
		db:            &fakeDB{},
		entities:      newFakeEntityStore(entities...),
		identifiers:   &fakeIdentifierStore{moved: 2},
		relationships: &fakeRelationshipStore{moved: 1},
		records:       &fakeMergeRecordStore{},
		decisions:     &fakeDecisionStore{},
		locker:        &fakeLocker{},
	}
	f.engine = NewEngine(
		f.db,
		f.entities,
		f.identifiers,
		f.relationships,
		f.records,
		f.decisions,
		f.locker,
		events.NewEmitter(nil, logger),
		time.Second,
		logger,
	)
	return f
}

func liveEntity(id string) *models.Entity {
	return &models.Entity{ID: id, Kind: models.EntityKindPerson, SourceSystem: "clinic"}
}

func TestEngine_Merge(t *testing.T) {
	ctx := context.Background()

	t.Run("merges live entities in one committed transaction", func(t *testing.T) {
		f := newFixture(liveEntity("loser-1"), liveEntity("keeper-1"))

		result, err := f.engine.Merge(ctx, "loser-1", "keeper-1", "review confirmation", "reviewer@clinic.org")
		require.NoError(t, err)

		assert.False(t, result.AlreadyMerged)
		assert.Equal(t, "keeper-1", result.KeeperID)
		assert.Equal(t, 2, result.MovedCounts.Identifiers)
		assert.Equal(t, 1, result.MovedCounts.Relationships)

		require.Len(t, f.db.txs, 1)
		assert.True(t, f.db.txs[0].committed)

		assert.Equal(t, "keeper-1", f.entities.merged["loser-1"])
		assert.Contains(t, f.entities.touched, "keeper-1")

		require.Len(t, f.records.records, 1)
		record := f.records.records[0]
		assert.Equal(t, "loser-1", record.LoserID)
		assert.Equal(t, "keeper-1", record.KeeperID)
		assert.Equal(t, "review confirmation", record.Reason)
		assert.Equal(t, "reviewer@clinic.org", record.Actor)
		assert.NotEmpty(t, record.MovedCounts)
	})

	t.Run("writes an audit row in the merge transaction", func(t *testing.T) {
		f := newFixture(liveEntity("loser-1"), liveEntity("keeper-1"))

		_, err := f.engine.Merge(ctx, "loser-1", "keeper-1", "review confirmation", "reviewer@clinic.org")
		require.NoError(t, err)

		require.Len(t, f.decisions.decisions, 1)
		decision := f.decisions.decisions[0]
		assert.Equal(t, models.DecisionMerged, decision.Decision)
		require.NotNil(t, decision.EntityID)
		assert.Equal(t, "keeper-1", *decision.EntityID)
		assert.Equal(t, "review confirmation", decision.Reason)
		assert.Contains(t, string(decision.NormalizedInput), "loser-1")
		assert.Contains(t, string(decision.NormalizedInput), "reviewer@clinic.org")

		require.Len(t, f.db.txs, 1)
		assert.True(t, f.db.txs[0].committed)
	})

	t.Run("locks both entities in sorted order and releases them", func(t *testing.T) {
		f := newFixture(liveEntity("bbb"), liveEntity("aaa"))

		_, err := f.engine.Merge(ctx, "bbb", "aaa", "manual", "ops")
		require.NoError(t, err)

		require.Equal(t, []string{"merge:entity:aaa", "merge:entity:bbb"}, f.locker.keys)
		assert.Equal(t, 2, f.locker.released)
	})

	t.Run("rejects merging an entity into itself", func(t *testing.T) {
		f := newFixture(liveEntity("solo"))

		_, err := f.engine.Merge(ctx, "solo", "solo", "manual", "ops")
		require.ErrorIs(t, err, ErrSameEntity)
		assert.Empty(t, f.locker.keys)
	})

	t.Run("re-merging a merged pair returns the prior record", func(t *testing.T) {
		f := newFixture(liveEntity("loser-1"), liveEntity("keeper-1"))

		first, err := f.engine.Merge(ctx, "loser-1", "keeper-1", "manual", "ops")
		require.NoError(t, err)

		second, err := f.engine.Merge(ctx, "loser-1", "keeper-1", "manual", "ops")
		require.NoError(t, err)

		assert.True(t, second.AlreadyMerged)
		assert.Equal(t, first.Record.ID, second.Record.ID)
		require.Len(t, f.records.records, 1)
	})

	t.Run("chases tombstone chains before merging", func(t *testing.T) {
		survivor := liveEntity("survivor")
		old := liveEntity("old")
		old.MergedInto = &survivor.ID
		target := liveEntity("target")

		f := newFixture(survivor, old, target)

		result, err := f.engine.Merge(ctx, "old", "target", "manual", "ops")
		require.NoError(t, err)

		// "old" already points at "survivor", so the real merge is
		// survivor -> target.
		assert.Equal(t, "target", result.KeeperID)
		assert.Equal(t, "target", f.entities.merged["survivor"])
	})

	t.Run("storage failure rolls back and releases locks", func(t *testing.T) {
		f := newFixture(liveEntity("loser-1"), liveEntity("keeper-1"))
		f.entities.markErr = errors.New("connection reset")

		_, err := f.engine.Merge(ctx, "loser-1", "keeper-1", "manual", "ops")
		require.Error(t, err)

		require.Len(t, f.db.txs, 1)
		assert.False(t, f.db.txs[0].committed)
		assert.True(t, f.db.txs[0].rolledBack)
		assert.Equal(t, 2, f.locker.released)
		assert.Empty(t, f.records.records)
		assert.Empty(t, f.decisions.decisions)
	})
}

func TestEngine_ResolveCanonical(t *testing.T) {
	ctx := context.Background()

	t.Run("returns live entity unchanged", func(t *testing.T) {
		f := newFixture(liveEntity("live"))

		entity, err := f.engine.ResolveCanonical(ctx, "live")
		require.NoError(t, err)
		assert.Equal(t, "live", entity.ID)
	})

	t.Run("follows a multi-hop chain", func(t *testing.T) {
		c := liveEntity("c")
		b := liveEntity("b")
		b.MergedInto = &c.ID
		a := liveEntity("a")
		a.MergedInto = &b.ID

		f := newFixture(a, b, c)

		entity, err := f.engine.ResolveCanonical(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "c", entity.ID)
	})

	t.Run("detects cycles instead of looping", func(t *testing.T) {
		a := liveEntity("a")
		b := liveEntity("b")
		a.MergedInto = &b.ID
		b.MergedInto = &a.ID

		f := newFixture(a, b)

		_, err := f.engine.ResolveCanonical(ctx, "a")
		require.ErrorIs(t, err, ErrMergeCycle)
	})
}

func TestEngine_Sweep(t *testing.T) {
	ctx := context.Background()

	t.Run("merges each group into its oldest entity", func(t *testing.T) {
		f := newFixture(liveEntity("e1"), liveEntity("e2"), liveEntity("e3"), liveEntity("e4"))
		f.identifiers.groups = [][]string{
			{"e1", "e2", "e3"},
			{"e4"},
		}

		result, err := f.engine.Sweep(ctx, models.SweepRequest{Kind: models.IdentifierKindEmail, Actor: "sweeper"})
		require.NoError(t, err)

		assert.Equal(t, 2, result.PairsFound)
		assert.Equal(t, 2, result.Merged)
		assert.Zero(t, result.Skipped)
		require.Len(t, result.MergeIDs, 2)

		assert.Equal(t, "e1", f.entities.merged["e2"])
		assert.Equal(t, "e1", f.entities.merged["e3"])
	})

	t.Run("skips failing pairs and continues", func(t *testing.T) {
		f := newFixture(liveEntity("e1"), liveEntity("e3"))
		f.identifiers.groups = [][]string{{"e1", "e2-missing", "e3"}}

		result, err := f.engine.Sweep(ctx, models.SweepRequest{Kind: models.IdentifierKindPhone, Actor: "sweeper"})
		require.NoError(t, err)

		assert.Equal(t, 2, result.PairsFound)
		assert.Equal(t, 1, result.Merged)
		assert.Equal(t, 1, result.Skipped)
		require.Len(t, result.SkipReasons, 1)
		assert.Contains(t, result.SkipReasons[0], "e2-missing")
	})
}
