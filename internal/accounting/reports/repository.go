package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Repository reads accounts and posting aggregates. Every method is a single
// statement, so a group is never observed with one leg.
type Repository interface {
	Get(ctx context.Context, id int64) (accounts.Account, error)
	List(ctx context.Context) ([]accounts.Account, error)
	OpeningTotals(ctx context.Context, accountID int64, before time.Time) (accounting.AccountTotals, error)
	AccountPostings(ctx context.Context, accountID int64, from, to time.Time) ([]accounting.Posting, error)
	BalanceTotals(ctx context.Context, asOf time.Time) ([]accounting.AccountTotals, error)
}

// PGRepository implements Repository on postgres.
type PGRepository struct {
	accounts.Repository
	pool *pgxpool.Pool
}

// NewRepository constructs the postgres report repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{Repository: accounts.NewRepository(pool), pool: pool}
}

func (r *PGRepository) OpeningTotals(ctx context.Context, accountID int64, before time.Time) (accounting.AccountTotals, error) {
	totals := accounting.AccountTotals{AccountID: accountID}
	var debit, credit string
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(debit), 0)::text, COALESCE(SUM(credit), 0)::text
FROM postings WHERE account_id=$1 AND date < $2`, accountID, before).Scan(&debit, &credit)
	if err != nil {
		return totals, shared.Storage("opening totals", err)
	}
	return totals, parseTotals(&totals, debit, credit)
}

func (r *PGRepository) AccountPostings(ctx context.Context, accountID int64, from, to time.Time) ([]accounting.Posting, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accounting.PostingColumns+` FROM postings
WHERE account_id=$1 AND date BETWEEN $2 AND $3
ORDER BY date, group_id, (debit IS NOT NULL), id`, accountID, from, to)
	if err != nil {
		return nil, shared.Storage("account postings", err)
	}
	defer rows.Close()
	var out []accounting.Posting
	for rows.Next() {
		p, err := accounting.ScanPosting(rows)
		if err != nil {
			return nil, shared.Storage("scan posting", err)
		}
		out = append(out, p)
	}
	return out, shared.Storage("account postings", rows.Err())
}

func (r *PGRepository) BalanceTotals(ctx context.Context, asOf time.Time) ([]accounting.AccountTotals, error) {
	rows, err := r.pool.Query(ctx, `SELECT account_id, COALESCE(SUM(debit), 0)::text, COALESCE(SUM(credit), 0)::text
FROM postings WHERE date <= $1 GROUP BY account_id ORDER BY account_id`, asOf)
	if err != nil {
		return nil, shared.Storage("balance totals", err)
	}
	defer rows.Close()
	var out []accounting.AccountTotals
	for rows.Next() {
		var (
			t             accounting.AccountTotals
			debit, credit string
		)
		if err := rows.Scan(&t.AccountID, &debit, &credit); err != nil {
			return nil, shared.Storage("scan totals", err)
		}
		if err := parseTotals(&t, debit, credit); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, shared.Storage("balance totals", rows.Err())
}

func parseTotals(t *accounting.AccountTotals, debit, credit string) error {
	var err error
	if t.Debit, err = decimal.NewFromString(debit); err != nil {
		return shared.Storage("parse debit total", err)
	}
	if t.Credit, err = decimal.NewFromString(credit); err != nil {
		return shared.Storage("parse credit total", err)
	}
	return nil
}
