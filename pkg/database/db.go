// Package database wraps sqlx with context-carried transactions, PostgreSQL
// query builders, and the migration runner.
package database

import (
	"context"
	"database/sql"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

// DB is the handle repositories run queries through. Exec/Get/Select join an
// open context-carried transaction automatically, so repository code does not
// care whether it runs inside one.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	PingContext(ctx context.Context) error
	Close() error

	// GetTx returns the transaction carried by ctx if one is open, otherwise
	// begins a new one and stores it on the returned context.
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, Tx, error)
}

// DatabaseInstance implements DB over a sqlx pool
type DatabaseInstance struct {
	db     *sqlx.DB
	logger ectologger.Logger
}

// NewDatabaseInstance wraps an open sqlx pool
func NewDatabaseInstance(db *sqlx.DB, logger ectologger.Logger) DB {
	return &DatabaseInstance{db: db, logger: logger}
}

func (d *DatabaseInstance) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if tx := openTxFromContext(ctx); tx != nil {
		return tx.ExecContext(ctx, query, args...)
	}
	return d.db.ExecContext(ctx, query, args...)
}

func (d *DatabaseInstance) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	if tx := openTxFromContext(ctx); tx != nil {
		return tx.GetContext(ctx, dest, query, args...)
	}
	return d.db.GetContext(ctx, dest, query, args...)
}

func (d *DatabaseInstance) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	if tx := openTxFromContext(ctx); tx != nil {
		return tx.SelectContext(ctx, dest, query, args...)
	}
	return d.db.SelectContext(ctx, dest, query, args...)
}

func (d *DatabaseInstance) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	if tx := openTxFromContext(ctx); tx != nil {
		return tx.QueryxContext(ctx, query, args...)
	}
	return d.db.QueryxContext(ctx, query, args...)
}

func (d *DatabaseInstance) PingContext(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DatabaseInstance) Close() error {
	return d.db.Close()
}

func (d *DatabaseInstance) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, Tx, error) {
	return getTx(ctx, d.logger, d.db, opts)
}
