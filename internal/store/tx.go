// ABOUTME: Transaction handle passed to units of work
// ABOUTME: All entity reads and writes are methods on Tx so they share one commit

package store

import (
	"context"
	"database/sql"
	"log/slog"
)

// Tx is an open transaction. It is only valid inside the callback passed to
// WithTx or View and must not be retained.
type Tx struct {
	tx     *sql.Tx
	logger *slog.Logger
}

func (t *Tx) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	return res, nil
}

func (t *Tx) query(ctx context.Context, op, query string, args ...any) (*sql.Rows, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	return rows, nil
}

func (t *Tx) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

// count runs a SELECT COUNT(*) style query.
func (t *Tx) count(ctx context.Context, op, query string, args ...any) (int, error) {
	var n int
	if err := t.tx.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, classify(op, err)
	}
	return n, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
