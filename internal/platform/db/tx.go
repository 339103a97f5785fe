package db

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Beginner starts transactions; *pgxpool.Pool and *pgx.Conn satisfy it.
type Beginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

var ledgerTxOptions = pgx.TxOptions{IsoLevel: pgx.RepeatableRead}

// WithTx runs fn in a RepeatableRead transaction. The transaction commits when
// fn returns nil and rolls back otherwise; fn's error is returned unchanged.
func WithTx(ctx context.Context, db Beginner, fn func(pgx.Tx) error) error {
	return pgx.BeginTxFunc(ctx, db, ledgerTxOptions, fn)
}
