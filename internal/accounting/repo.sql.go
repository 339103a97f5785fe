package accounting

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

const (
	constraintSource     = "uq_posting_groups_source"
	constraintReversalOf = "uq_posting_groups_reversal_of"
	groupIDFormat        = "JV%08d"
)

// Repository persists posting groups and postings.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx       pgx.Tx
	accounts accounts.Repository
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("accounting repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, accounts: accounts.NewRepository(tx)})
	})
}

func (r *txRepository) GetAccount(ctx context.Context, id int64) (accounts.Account, error) {
	return r.accounts.Get(ctx, id)
}

func (r *txRepository) NextGroupID(ctx context.Context) (string, error) {
	var n int64
	if err := r.tx.QueryRow(ctx, `SELECT nextval('posting_group_seq')`).Scan(&n); err != nil {
		return "", shared.Storage("next group id", err)
	}
	return fmt.Sprintf(groupIDFormat, n), nil
}

const selectGroup = `SELECT id, date, financial_year, description, remarks, source_type, COALESCE(source_id, ''),
status, COALESCE(reversal_of, ''), created_by, created_at FROM posting_groups`

func (r *txRepository) FindPrimaryGroup(ctx context.Context, source Source) (PostingGroup, error) {
	g, err := scanGroup(r.tx.QueryRow(ctx, selectGroup+` WHERE source_type=$1 AND source_id=$2 AND reversal_of IS NULL`,
		source.Type, source.ID))
	if err != nil {
		return PostingGroup{}, notFoundOr(err, "posting group", string(source.Type)+"/"+source.ID)
	}
	return g, nil
}

func (r *txRepository) GetGroup(ctx context.Context, id string) (PostingGroup, error) {
	return r.loadGroup(ctx, selectGroup+` WHERE id=$1`, id)
}

func (r *txRepository) GetGroupForUpdate(ctx context.Context, id string) (PostingGroup, error) {
	return r.loadGroup(ctx, selectGroup+` WHERE id=$1 FOR UPDATE`, id)
}

func (r *txRepository) loadGroup(ctx context.Context, query, id string) (PostingGroup, error) {
	g, err := scanGroup(r.tx.QueryRow(ctx, query, id))
	if err != nil {
		return PostingGroup{}, notFoundOr(err, "posting group", id)
	}
	g.Postings, err = r.listPostings(ctx, id)
	if err != nil {
		return PostingGroup{}, err
	}
	return g, nil
}

func (r *txRepository) ListGroups(ctx context.Context, filter ListFilter) ([]PostingGroup, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if !filter.From.IsZero() {
		add("date >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("date <= $%d", filter.To)
	}
	if filter.SourceType != "" {
		add("source_type = $%d", filter.SourceType)
	}
	query := selectGroup
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY date DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.Storage("list groups", err)
	}
	defer rows.Close()
	var groups []PostingGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, shared.Storage("scan group", err)
		}
		groups = append(groups, g)
	}
	return groups, shared.Storage("list groups", rows.Err())
}

func (r *txRepository) InsertGroup(ctx context.Context, g PostingGroup) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO posting_groups
(id, date, financial_year, description, remarks, source_type, source_id, status, reversal_of, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		g.ID, g.Date, g.FinancialYear, g.Description, g.Remarks, g.Source.Type, nullString(g.Source.ID),
		g.Status, nullString(g.ReversalOf), g.CreatedBy, g.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			switch pgErr.ConstraintName {
			case constraintSource:
				return &shared.InvalidStateError{
					Entity: "source",
					Key:    string(g.Source.Type) + "/" + g.Source.ID,
					Reason: "already posted",
					Err:    shared.ErrSourceConflict,
				}
			case constraintReversalOf:
				return shared.InvalidState("posting group", g.ReversalOf, "already reversed")
			}
		}
		return shared.Storage("insert group", err)
	}
	return nil
}

func (r *txRepository) InsertPostings(ctx context.Context, postings []Posting) error {
	batch := &pgx.Batch{}
	for _, p := range postings {
		batch.Queue(`INSERT INTO postings
(group_id, account_id, date, financial_year, description, remarks, debit, credit, source_type, source_id, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7::numeric,$8::numeric,$9,$10,$11,$12)`,
			p.GroupID, p.AccountID, p.Date, p.FinancialYear, p.Description, p.Remarks,
			numericArg(p.Debit), numericArg(p.Credit), p.Source.Type, nullString(p.Source.ID), p.CreatedBy, p.CreatedAt)
	}
	if err := r.tx.SendBatch(ctx, batch).Close(); err != nil {
		return shared.Storage("insert postings", err)
	}
	return nil
}

func (r *txRepository) MarkGroupReversed(ctx context.Context, id string) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE posting_groups SET status=$2 WHERE id=$1 AND status=$3`,
		id, GroupStatusReversed, GroupStatusPosted)
	if err != nil {
		return shared.Storage("mark group reversed", err)
	}
	if cmd.RowsAffected() == 0 {
		return shared.InvalidState("posting group", id, "already reversed")
	}
	return nil
}

// PostingColumns is the column list ScanPosting expects.
const PostingColumns = `id, group_id, account_id, date, financial_year, description, remarks,
debit::text, credit::text, source_type, COALESCE(source_id, ''), created_by, created_at`

const selectPosting = `SELECT ` + PostingColumns + ` FROM postings`

func (r *txRepository) listPostings(ctx context.Context, groupID string) ([]Posting, error) {
	rows, err := r.tx.Query(ctx, selectPosting+` WHERE group_id=$1 ORDER BY id`, groupID)
	if err != nil {
		return nil, shared.Storage("list postings", err)
	}
	defer rows.Close()
	var postings []Posting
	for rows.Next() {
		p, err := ScanPosting(rows)
		if err != nil {
			return nil, shared.Storage("scan posting", err)
		}
		postings = append(postings, p)
	}
	return postings, shared.Storage("list postings", rows.Err())
}

// ScanPosting reads a row selecting PostingColumns.
func ScanPosting(row pgx.Row) (Posting, error) {
	var (
		p             Posting
		debit, credit *string
	)
	err := row.Scan(&p.ID, &p.GroupID, &p.AccountID, &p.Date, &p.FinancialYear, &p.Description, &p.Remarks,
		&debit, &credit, &p.Source.Type, &p.Source.ID, &p.CreatedBy, &p.CreatedAt)
	if err != nil {
		return Posting{}, err
	}
	if p.Debit, err = parseNullDecimal(debit); err != nil {
		return Posting{}, err
	}
	if p.Credit, err = parseNullDecimal(credit); err != nil {
		return Posting{}, err
	}
	return p, nil
}

func scanGroup(row pgx.Row) (PostingGroup, error) {
	var g PostingGroup
	err := row.Scan(&g.ID, &g.Date, &g.FinancialYear, &g.Description, &g.Remarks, &g.Source.Type, &g.Source.ID,
		&g.Status, &g.ReversalOf, &g.CreatedBy, &g.CreatedAt)
	return g, err
}

func notFoundOr(err error, entity, key string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.NotFound(entity, key)
	}
	return shared.Storage("load "+entity, err)
}

func parseNullDecimal(v *string) (decimal.NullDecimal, error) {
	if v == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*v)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func numericArg(v decimal.NullDecimal) *string {
	if !v.Valid {
		return nil
	}
	s := v.Decimal.StringFixed(amountScale)
	return &s
}

func nullString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// UnbalancedGroups lists groups whose debit and credit totals differ or that
// carry fewer than two legs.
func (r *Repository) UnbalancedGroups(ctx context.Context) ([]GroupImbalance, error) {
	rows, err := r.pool.Query(ctx, `SELECT g.id, COUNT(p.id), COALESCE(SUM(p.debit), 0)::text, COALESCE(SUM(p.credit), 0)::text
FROM posting_groups g LEFT JOIN postings p ON p.group_id = g.id
GROUP BY g.id
HAVING COUNT(p.id) < 2 OR COALESCE(SUM(p.debit), 0) <> COALESCE(SUM(p.credit), 0)
ORDER BY g.id`)
	if err != nil {
		return nil, shared.Storage("unbalanced groups", err)
	}
	defer rows.Close()
	var out []GroupImbalance
	for rows.Next() {
		var (
			g             GroupImbalance
			debit, credit string
		)
		if err := rows.Scan(&g.GroupID, &g.Legs, &debit, &credit); err != nil {
			return nil, shared.Storage("scan unbalanced group", err)
		}
		if g.Debit, err = decimal.NewFromString(debit); err != nil {
			return nil, shared.Storage("parse debit", err)
		}
		if g.Credit, err = decimal.NewFromString(credit); err != nil {
			return nil, shared.Storage("parse credit", err)
		}
		out = append(out, g)
	}
	return out, shared.Storage("unbalanced groups", rows.Err())
}
