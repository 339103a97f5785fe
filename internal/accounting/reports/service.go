package reports

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Service reconstructs balances from the postings log.
type Service struct {
	repo   Repository
	logger *slog.Logger
	flight singleflight.Group
}

// NewService constructs the balance reconstructor.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Ledger returns the statement of accountID for [from, to]. An inverted range
// yields zero balances and no rows.
func (s *Service) Ledger(ctx context.Context, accountID int64, from, to time.Time) (Ledger, error) {
	account, err := s.repo.Get(ctx, accountID)
	if err != nil {
		return Ledger{}, err
	}
	from, to = dateOnly(from), dateOnly(to)
	if from.After(to) {
		return Ledger{
			Account:        account,
			From:           from,
			To:             to,
			OpeningBalance: decimal.Zero,
			Transactions:   []LedgerEntry{},
			TotalDebit:     decimal.Zero,
			TotalCredit:    decimal.Zero,
			ClosingBalance: decimal.Zero,
		}, nil
	}
	opening, err := s.repo.OpeningTotals(ctx, accountID, from)
	if err != nil {
		return Ledger{}, err
	}
	postings, err := s.repo.AccountPostings(ctx, accountID, from, to)
	if err != nil {
		return Ledger{}, err
	}
	return BuildLedger(account, from, to, opening, postings), nil
}

// Balances returns every account with its totals as of asOf.
func (s *Service) Balances(ctx context.Context, asOf time.Time) ([]AccountBalance, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	totals, err := s.repo.BalanceTotals(ctx, dateOnly(asOf))
	if err != nil {
		return nil, err
	}
	byAccount := make(map[int64]accounting.AccountTotals, len(totals))
	for _, t := range totals {
		byAccount[t.AccountID] = t
	}
	out := make([]AccountBalance, 0, len(list))
	for _, acc := range list {
		t := byAccount[acc.ID]
		out = append(out, AccountBalance{Account: acc, Debit: t.Debit, Credit: t.Credit})
	}
	return out, nil
}

// TrialBalance lists account balances as of asOf. Concurrent requests for the
// same date share one computation, which outlives any single caller.
func (s *Service) TrialBalance(ctx context.Context, asOf time.Time) (TrialBalance, error) {
	asOf = dateOnly(asOf)
	detached := context.WithoutCancel(ctx)
	results := s.flight.DoChan(asOf.Format(time.DateOnly), func() (any, error) {
		balances, err := s.Balances(detached, asOf)
		if err != nil {
			return TrialBalance{}, err
		}
		tb := BuildTrialBalance(asOf, balances)
		if !tb.Balanced() {
			s.logger.Error("trial balance out of balance",
				slog.String("as_of", asOf.Format(time.DateOnly)),
				slog.String("difference", tb.Difference().String()))
		}
		return tb, nil
	})
	select {
	case <-ctx.Done():
		return TrialBalance{}, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return TrialBalance{}, res.Err
		}
		return res.Val.(TrialBalance), nil
	}
}

// ProfitAndLoss reports revenue and expense movement within [from, to].
func (s *Service) ProfitAndLoss(ctx context.Context, from, to time.Time) (ProfitAndLoss, error) {
	from, to = dateOnly(from), dateOnly(to)
	if from.After(to) {
		return ProfitAndLoss{}, shared.Validation("from", "must not be after to")
	}
	closing, err := s.Balances(ctx, to)
	if err != nil {
		return ProfitAndLoss{}, err
	}
	opening, err := s.Balances(ctx, from.AddDate(0, 0, -1))
	if err != nil {
		return ProfitAndLoss{}, err
	}
	before := make(map[int64]AccountBalance, len(opening))
	for _, b := range opening {
		before[b.Account.ID] = b
	}
	movement := make([]AccountBalance, 0, len(closing))
	for _, b := range closing {
		prior := before[b.Account.ID]
		movement = append(movement, AccountBalance{
			Account: b.Account,
			Debit:   b.Debit.Sub(prior.Debit),
			Credit:  b.Credit.Sub(prior.Credit),
		})
	}
	return BuildProfitAndLoss(movement), nil
}

// BalanceSheet reports assets, liabilities and equity as of asOf.
func (s *Service) BalanceSheet(ctx context.Context, asOf time.Time) (BalanceSheet, error) {
	balances, err := s.Balances(ctx, asOf)
	if err != nil {
		return BalanceSheet{}, err
	}
	return BuildBalanceSheet(balances), nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
