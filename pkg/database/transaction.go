package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

type txContextKey string

const txKey = txContextKey("tx")
const txOwnerKey = txContextKey("tx-owner")

// Tx is an open transaction. Commit and Rollback take the caller's context:
// when called with a context that already carried the transaction, they no-op
// so nested operations cannot close a transaction they did not open.
type Tx interface {
	IsOpen() bool
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type transaction struct {
	tx     *sqlx.Tx
	logger ectologger.Logger
	closed bool
}

func getTx(ctx context.Context, logger ectologger.Logger, db *sqlx.DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if existing := openTxFromContext(ctx); existing != nil {
		return ctx, existing, nil
	}

	sqlxTx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Error("failed to begin transaction")
		return ctx, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	tx := &transaction{tx: sqlxTx, logger: logger}
	ctx = context.WithValue(ctx, txKey, tx)
	ctx = context.WithValue(ctx, txOwnerKey, tx)
	return ctx, tx, nil
}

// openTxFromContext returns the context's transaction if it is still open
func openTxFromContext(ctx context.Context) Tx {
	tx, ok := ctx.Value(txKey).(Tx)
	if ok && tx != nil && tx.IsOpen() {
		return tx
	}
	return nil
}

func (t *transaction) IsOpen() bool {
	return !t.closed
}

func (t *transaction) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

func (t *transaction) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return t.tx.GetContext(ctx, dest, query, args...)
}

func (t *transaction) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return t.tx.SelectContext(ctx, dest, query, args...)
}

func (t *transaction) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	return t.tx.QueryxContext(ctx, query, args...)
}

func (t *transaction) Commit(ctx context.Context) error {
	if t.closed || t.borrowedBy(ctx) {
		return nil
	}
	if err := t.tx.Commit(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Error("failed to commit transaction")
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	t.closed = true
	return nil
}

func (t *transaction) Rollback(ctx context.Context) error {
	if t.closed || t.borrowedBy(ctx) {
		return nil
	}
	if err := t.tx.Rollback(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Error("failed to roll back transaction")
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	t.closed = true
	return nil
}

// borrowedBy reports whether ctx inherited this transaction from an outer
// caller. The opener holds a context created before the transaction was
// attached, so only it passes a ctx that does not claim ownership.
func (t *transaction) borrowedBy(ctx context.Context) bool {
	owner, ok := ctx.Value(txOwnerKey).(*transaction)
	return ok && owner == t
}
