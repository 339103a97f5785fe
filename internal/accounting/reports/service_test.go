package reports_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accountingtest"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

type books struct {
	store   *accountingtest.Memory
	posting *accounting.Service
	reports *reports.Service
	cash    accounts.Account
	bank    accounts.Account
	stock   accounts.Account
	payable accounts.Account
	sales   accounts.Account
	rent    accounts.Account
	today   time.Time
}

func newBooks(t *testing.T) *books {
	t.Helper()
	store := accountingtest.NewMemory()
	b := &books{
		store:   store,
		cash:    store.AddAccount("1000", "Cash in Hand", accounts.AccountTypeAsset),
		bank:    store.AddAccount("1010", "Bank Account", accounts.AccountTypeAsset),
		stock:   store.AddAccount("1200", "Inventory", accounts.AccountTypeAsset),
		payable: store.AddAccount("2000", "Accounts Payable", accounts.AccountTypeLiability),
		sales:   store.AddAccount("4000", "Sales Revenue", accounts.AccountTypeRevenue),
		rent:    store.AddAccount("6100", "Rent", accounts.AccountTypeExpense),
		today:   time.Date(2024, time.August, 1, 15, 0, 0, 0, time.UTC),
	}
	b.posting = accounting.NewService(store, nil, nil)
	b.posting.WithNow(func() time.Time { return b.today })
	b.reports = reports.NewService(store, nil)
	return b
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func (b *books) manual(t *testing.T, on time.Time, debit, credit accounts.Account, v string) string {
	t.Helper()
	id, err := b.posting.Post(context.Background(), accounting.ManualEntry{
		Date: on, Description: "adjustment", DebitAccountID: debit.ID, CreditAccountID: credit.ID, Amount: dec(v),
	}, "tester")
	require.NoError(t, err)
	return id
}

func TestSalesOrderScenario(t *testing.T) {
	b := newBooks(t)
	ctx := context.Background()

	_, err := b.posting.Post(ctx, accounting.SalesPosting{
		OrderID: "SO1", Date: day(2024, time.May, 10),
		ReceiptAccountID: b.cash.ID, RevenueAccountID: b.sales.ID, Amount: dec("1000"),
	}, "system")
	require.NoError(t, err)

	ledger, err := b.reports.Ledger(ctx, b.cash.ID, day(2024, time.April, 1), day(2024, time.June, 30))
	require.NoError(t, err)
	require.True(t, ledger.OpeningBalance.IsZero())
	require.Len(t, ledger.Transactions, 1)
	require.True(t, ledger.Transactions[0].Debit.Equal(dec("1000")))
	require.True(t, ledger.Transactions[0].RunningBalance.Equal(dec("1000")))
	require.True(t, ledger.ClosingBalance.Equal(dec("1000")))

	tb, err := b.reports.TrialBalance(ctx, day(2024, time.June, 30))
	require.NoError(t, err)
	rows := map[int64]reports.TrialBalanceRow{}
	for _, r := range tb.Rows {
		rows[r.AccountID] = r
	}
	require.True(t, rows[b.cash.ID].Debit.Equal(dec("1000")))
	require.True(t, rows[b.sales.ID].Credit.Equal(dec("1000")))
	require.True(t, tb.TotalDebits.Equal(dec("1000")))
	require.True(t, tb.TotalCredits.Equal(dec("1000")))
	require.True(t, tb.Balanced())

	reversal, err := b.posting.ReverseSource(ctx, accounting.Source{Type: accounting.SourceSalesOrder, ID: "SO1"}, "clerk", "")
	require.NoError(t, err)
	require.Equal(t, day(2024, time.August, 1), reversal.Date)

	tb, err = b.reports.TrialBalance(ctx, b.today)
	require.NoError(t, err)
	for _, r := range tb.Rows {
		require.True(t, r.Balance.IsZero(), "%s balance %s", r.Name, r.Balance)
	}
	require.True(t, tb.Balanced())

	before, err := b.reports.TrialBalance(ctx, day(2024, time.July, 31))
	require.NoError(t, err)
	require.True(t, before.TotalDebits.Equal(dec("1000")), "reversal is dated today, not backdated")
}

func TestTrialBalanceAlwaysBalances(t *testing.T) {
	b := newBooks(t)
	ctx := context.Background()
	pairs := [][2]accounts.Account{
		{b.cash, b.sales}, {b.bank, b.cash}, {b.stock, b.payable}, {b.payable, b.bank}, {b.rent, b.cash}, {b.bank, b.sales},
	}
	var reversible []string
	for i := 0; i < 36; i++ {
		p := pairs[i%len(pairs)]
		on := day(2024, time.April, 1).AddDate(0, 0, i*3)
		id := b.manual(t, on, p[0], p[1], decimal.NewFromInt(int64(17*i+3)).Div(decimal.NewFromInt(4)).StringFixed(2))
		if i%5 == 0 {
			reversible = append(reversible, id)
		}
	}
	for _, id := range reversible {
		_, err := b.posting.Reverse(ctx, accounting.ReverseInput{GroupID: id, Actor: "tester"})
		require.NoError(t, err)
	}

	for _, asOf := range []time.Time{day(2024, time.April, 1), day(2024, time.May, 15), day(2024, time.July, 20), b.today} {
		tb, err := b.reports.TrialBalance(ctx, asOf)
		require.NoError(t, err)
		require.True(t, tb.Balanced(), "as of %s: %s vs %s", asOf.Format(time.DateOnly), tb.TotalDebits, tb.TotalCredits)
	}

	for _, acc := range []accounts.Account{b.cash, b.bank, b.sales} {
		l, err := b.reports.Ledger(ctx, acc.ID, day(2024, time.May, 1), day(2024, time.June, 30))
		require.NoError(t, err)
		sum := decimal.Zero
		for _, e := range l.Transactions {
			sum = sum.Add(e.Amount)
		}
		require.True(t, l.OpeningBalance.Add(sum).Equal(l.ClosingBalance))
	}
}

func TestLedgerEdgeCases(t *testing.T) {
	b := newBooks(t)
	ctx := context.Background()
	b.manual(t, day(2024, time.May, 1), b.cash, b.sales, "10")

	l, err := b.reports.Ledger(ctx, b.cash.ID, day(2024, time.June, 1), day(2024, time.May, 1))
	require.NoError(t, err)
	require.True(t, l.OpeningBalance.IsZero())
	require.True(t, l.ClosingBalance.IsZero())
	require.Empty(t, l.Transactions)

	_, err = b.reports.Ledger(ctx, 999, day(2024, time.May, 1), day(2024, time.June, 1))
	require.ErrorIs(t, err, shared.ErrNotFound)

	l, err = b.reports.Ledger(ctx, b.cash.ID, day(2024, time.May, 2), day(2024, time.June, 1))
	require.NoError(t, err)
	require.True(t, l.OpeningBalance.Equal(dec("10")), "postings strictly before start form the opening")
	require.Empty(t, l.Transactions)
}

func TestTrialBalanceKeepsInactiveAccountWithBalance(t *testing.T) {
	b := newBooks(t)
	ctx := context.Background()
	b.manual(t, day(2024, time.May, 1), b.bank, b.cash, "10")
	require.NoError(t, b.store.SetActive(ctx, b.bank.ID, false))
	require.NoError(t, b.store.SetActive(ctx, b.rent.ID, false))

	tb, err := b.reports.TrialBalance(ctx, b.today)
	require.NoError(t, err)
	ids := map[int64]bool{}
	for _, r := range tb.Rows {
		ids[r.AccountID] = true
	}
	require.True(t, ids[b.bank.ID])
	require.False(t, ids[b.rent.ID])
	require.True(t, tb.Balanced())
}

func TestProfitAndLossAndBalanceSheet(t *testing.T) {
	b := newBooks(t)
	ctx := context.Background()
	b.manual(t, day(2024, time.March, 15), b.cash, b.sales, "300")
	b.manual(t, day(2024, time.May, 1), b.cash, b.sales, "1000")
	b.manual(t, day(2024, time.May, 2), b.rent, b.bank, "400")
	b.manual(t, day(2024, time.May, 3), b.stock, b.payable, "250")

	pl, err := b.reports.ProfitAndLoss(ctx, day(2024, time.April, 1), day(2024, time.June, 30))
	require.NoError(t, err)
	require.True(t, pl.Revenue.Total.Equal(dec("1000")))
	require.True(t, pl.Expense.Total.Equal(dec("400")))
	require.True(t, pl.NetIncome.Equal(dec("600")))

	_, err = b.reports.ProfitAndLoss(ctx, day(2024, time.June, 30), day(2024, time.April, 1))
	require.ErrorIs(t, err, shared.ErrValidation)

	bs, err := b.reports.BalanceSheet(ctx, day(2024, time.June, 30))
	require.NoError(t, err)
	require.True(t, bs.Balanced(), "assets %s vs L+E %s", bs.Assets.Total, bs.TotalLiabilitiesAndEquity)
	require.True(t, bs.Liabilities.Total.Equal(dec("250")))
}

func TestTrialBalanceHandler(t *testing.T) {
	b := newBooks(t)
	b.manual(t, day(2024, time.May, 1), b.cash, b.sales, "12.50")
	r := chi.NewRouter()
	reports.NewHandler(slog.Default(), b.reports).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/accounting/reports/trial-balance?as_of=2024-06-30", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		TotalDebits  decimal.Decimal `json:"total_debits"`
		TotalCredits decimal.Decimal `json:"total_credits"`
		Balanced     bool            `json:"balanced"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.True(t, body.Balanced)
	require.True(t, body.TotalDebits.Equal(dec("12.5")))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/accounting/ledger/999?from=2024-04-01&to=2024-06-30", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/accounting/reports/trial-balance?as_of=June", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

type gatedTotals struct {
	*accountingtest.Memory
	started  chan struct{}
	release  chan struct{}
	observed chan error
}

func (g *gatedTotals) BalanceTotals(ctx context.Context, asOf time.Time) ([]accounting.AccountTotals, error) {
	g.started <- struct{}{}
	<-g.release
	g.observed <- ctx.Err()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.Memory.BalanceTotals(ctx, asOf)
}

func TestTrialBalanceSurvivesFirstCallerCancel(t *testing.T) {
	store := accountingtest.NewMemory()
	store.AddAccount("1000", "Cash in Hand", accounts.AccountTypeAsset)
	repo := &gatedTotals{
		Memory:   store,
		started:  make(chan struct{}, 1),
		release:  make(chan struct{}),
		observed: make(chan error, 2),
	}
	svc := reports.NewService(repo, nil)
	asOf := time.Date(2024, time.May, 31, 0, 0, 0, 0, time.UTC)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := svc.TrialBalance(ctx, asOf)
		first <- err
	}()
	<-repo.started
	cancel()
	require.ErrorIs(t, <-first, context.Canceled)

	close(repo.release)
	require.NoError(t, <-repo.observed, "shared computation must not inherit the caller's cancellation")

	tb, err := svc.TrialBalance(context.Background(), asOf)
	require.NoError(t, err)
	require.True(t, tb.Balanced())
}
