package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Repository persists chart of accounts entries. Accounts are never deleted.
type Repository interface {
	Get(ctx context.Context, id int64) (Account, error)
	GetByName(ctx context.Context, name string) (Account, error)
	GetByCode(ctx context.Context, code string) (Account, error)
	List(ctx context.Context) ([]Account, error)
	ListActive(ctx context.Context) ([]Account, error)
	Create(ctx context.Context, account Account) (Account, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repository struct {
	db Querier
}

// NewRepository binds the registry to a pool or an open transaction.
func NewRepository(db Querier) Repository {
	return &repository{db: db}
}

const selectAccount = `SELECT id, code, name, type, normal_balance, is_active, created_at, updated_at FROM accounts`

func (r *repository) Get(ctx context.Context, id int64) (Account, error) {
	return r.one(ctx, selectAccount+` WHERE id=$1`, id)
}

func (r *repository) GetByName(ctx context.Context, name string) (Account, error) {
	return r.one(ctx, selectAccount+` WHERE name=$1`, name)
}

func (r *repository) GetByCode(ctx context.Context, code string) (Account, error) {
	return r.one(ctx, selectAccount+` WHERE code=$1`, code)
}

func (r *repository) List(ctx context.Context) ([]Account, error) {
	return r.many(ctx, selectAccount+` ORDER BY code`)
}

func (r *repository) ListActive(ctx context.Context) ([]Account, error) {
	return r.many(ctx, selectAccount+` WHERE is_active ORDER BY code`)
}

func (r *repository) Create(ctx context.Context, account Account) (Account, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO accounts (code, name, type, normal_balance, is_active)
VALUES ($1,$2,$3,$4,TRUE) RETURNING id, is_active, created_at, updated_at`,
		account.Code, account.Name, account.Type, account.NormalBalance).
		Scan(&account.ID, &account.IsActive, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, shared.Validation("account", "code or name already in use")
		}
		return Account{}, shared.Storage("insert account", err)
	}
	return account, nil
}

func (r *repository) SetActive(ctx context.Context, id int64, active bool) error {
	cmd, err := r.db.Exec(ctx, `UPDATE accounts SET is_active=$2, updated_at=NOW() WHERE id=$1`, id, active)
	if err != nil {
		return shared.Storage("update account", err)
	}
	if cmd.RowsAffected() == 0 {
		return shared.NotFound("account", id)
	}
	return nil
}

func (r *repository) one(ctx context.Context, query string, arg any) (Account, error) {
	var a Account
	err := r.db.QueryRow(ctx, query, arg).
		Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.NormalBalance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.NotFound("account", arg)
		}
		return Account{}, shared.Storage("load account", err)
	}
	return a, nil
}

func (r *repository) many(ctx context.Context, query string) ([]Account, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, shared.Storage("list accounts", err)
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		var a Account
		err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.NormalBalance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return nil, shared.Storage("scan account", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, shared.Storage("list accounts", rows.Err())
}
