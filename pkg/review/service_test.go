package review

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/database"
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

type fakeItemStore struct {
	items      map[string]*models.ReviewItem
	resolveErr error
}

func (s *fakeItemStore) Get(_ context.Context, id string) (*models.ReviewItem, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, errors.New("review item not found")
	}
	return item, nil
}

func (s *fakeItemStore) List(_ context.Context, status models.ReviewStatus, page, pageSize int) (*models.ReviewListResponse, error) {
	var out []models.ReviewItem
	for _, item := range s.items {
		if item.Status == status {
			out = append(out, *item)
		}
	}
	return &models.ReviewListResponse{Items: out, TotalCount: len(out), Page: page, PageSize: pageSize}, nil
}

func (s *fakeItemStore) Resolve(_ context.Context, id string, status models.ReviewStatus, resolvedBy string) error {
	if s.resolveErr != nil {
		return s.resolveErr
	}
	item, ok := s.items[id]
	if !ok {
		return errors.New("review item not found")
	}
	item.Status = status
	item.ResolvedBy = &resolvedBy
	return nil
}

type fakeEntityStore struct {
	touched []string
}

func (s *fakeEntityStore) TouchActivity(_ context.Context, id string, _ time.Time) error {
	s.touched = append(s.touched, id)
	return nil
}

type fakeIdentifierStore struct {
	upserted []*models.Identifier
}

func (s *fakeIdentifierStore) Upsert(_ context.Context, id *models.Identifier) error {
	s.upserted = append(s.upserted, id)
	return nil
}

type fakeMerger struct {
	merges [][2]string
}

func (m *fakeMerger) Merge(_ context.Context, loserID, keeperID, _, _ string) (*models.MergeResult, error) {
	m.merges = append(m.merges, [2]string{loserID, keeperID})
	return &models.MergeResult{KeeperID: keeperID}, nil
}

func strPtr(s string) *string { return &s }

func openItem(id, candidateID string) *models.ReviewItem {
	email := "jane@example.com"
	norm := models.NormalizedRecord{
		Email:        &email,
		Kind:         models.EntityKindPerson,
		SourceSystem: "clinic",
	}
	raw, _ := json.Marshal(norm)
	return &models.ReviewItem{
		ID:              id,
		DecisionID:      "decision-1",
		CandidateID:     strPtr(candidateID),
		Reason:          "top score in the review band",
		NormalizedInput: raw,
		Status:          models.ReviewStatusOpen,
	}
}

type fixture struct {
	svc         *Service
	db          *fakeDB
	items       *fakeItemStore
	entities    *fakeEntityStore
	identifiers *fakeIdentifierStore
	merger      *fakeMerger
}

func newFixture(items ...*models.ReviewItem) *fixture {
	f := &fixture{
		db:          &fakeDB{},
		items:       &fakeItemStore{items: map[string]*models.ReviewItem{}},
		entities:    &fakeEntityStore{},
		identifiers: &fakeIdentifierStore{},
		merger:      &fakeMerger{},
	}
	for _, item := range items {
		f.items.items[item.ID] = item
	}
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	f.svc = NewService(f.db, f.items, f.entities, f.identifiers, f.merger, logger)
	return f
}

func TestService_Confirm(t *testing.T) {
	ctx := context.Background()

	t.Run("attaches identifiers to the candidate in one transaction", func(t *testing.T) {
		f := newFixture(openItem("r1", "candidate-1"))

		item, err := f.svc.Confirm(ctx, "r1", models.ReviewActionRequest{ResolvedBy: "reviewer@clinic.org"})
		require.NoError(t, err)

		assert.Equal(t, models.ReviewStatusConfirmed, item.Status)
		require.NotNil(t, item.ResolvedBy)
		assert.Equal(t, "reviewer@clinic.org", *item.ResolvedBy)

		require.Len(t, f.identifiers.upserted, 1)
		assert.Equal(t, "candidate-1", f.identifiers.upserted[0].EntityID)
		assert.Equal(t, models.IdentifierKindEmail, f.identifiers.upserted[0].Kind)
		assert.Equal(t, 1.0, f.identifiers.upserted[0].Confidence)

		assert.Contains(t, f.entities.touched, "candidate-1")
		require.Len(t, f.db.txs, 1)
		assert.True(t, f.db.txs[0].committed)
		assert.Empty(t, f.merger.merges)
	})

	t.Run("merges when the item carries a provisional entity", func(t *testing.T) {
		item := openItem("r2", "candidate-1")
		item.EntityID = strPtr("provisional-1")
		f := newFixture(item)

		resolved, err := f.svc.Confirm(ctx, "r2", models.ReviewActionRequest{ResolvedBy: "reviewer@clinic.org"})
		require.NoError(t, err)

		assert.Equal(t, models.ReviewStatusConfirmed, resolved.Status)
		require.Len(t, f.merger.merges, 1)
		assert.Equal(t, [2]string{"provisional-1", "candidate-1"}, f.merger.merges[0])
		assert.Empty(t, f.identifiers.upserted)
	})

	t.Run("fails when the item has no candidate", func(t *testing.T) {
		item := openItem("r3", "candidate-1")
		item.CandidateID = nil
		f := newFixture(item)

		_, err := f.svc.Confirm(ctx, "r3", models.ReviewActionRequest{ResolvedBy: "reviewer@clinic.org"})
		require.Error(t, err)
	})

	t.Run("rolls back when closing the item fails", func(t *testing.T) {
		f := newFixture(openItem("r4", "candidate-1"))
		f.items.resolveErr = errors.New("connection reset")

		_, err := f.svc.Confirm(ctx, "r4", models.ReviewActionRequest{ResolvedBy: "reviewer@clinic.org"})
		require.Error(t, err)

		require.Len(t, f.db.txs, 1)
		assert.False(t, f.db.txs[0].committed)
		assert.True(t, f.db.txs[0].rolledBack)
	})
}

func TestService_Reject(t *testing.T) {
	ctx := context.Background()

	t.Run("records the rejection without touching entities", func(t *testing.T) {
		f := newFixture(openItem("r1", "candidate-1"))

		item, err := f.svc.Reject(ctx, "r1", models.ReviewActionRequest{ResolvedBy: "reviewer@clinic.org"})
		require.NoError(t, err)

		assert.Equal(t, models.ReviewStatusRejected, item.Status)
		assert.Empty(t, f.identifiers.upserted)
		assert.Empty(t, f.entities.touched)
		assert.Empty(t, f.merger.merges)
	})
}
