package accounting_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accountingtest"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

type auditStub struct {
	logs []internalShared.AuditLog
}

func (a *auditStub) Record(ctx context.Context, log internalShared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type recorderStub struct {
	outcomes []string
}

func (r *recorderStub) ObservePosting(sourceType, outcome string) {
	r.outcomes = append(r.outcomes, sourceType+":"+outcome)
}

type fixture struct {
	repo  *accountingtest.Memory
	svc   *accounting.Service
	audit *auditStub
	cash  accounts.Account
	bank  accounts.Account
	sales accounts.Account
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := accountingtest.NewMemory()
	audit := &auditStub{}
	f := &fixture{
		repo:  repo,
		audit: audit,
		cash:  repo.AddAccount("1000", "Cash in Hand", accounts.AccountTypeAsset),
		bank:  repo.AddAccount("1010", "Bank Account", accounts.AccountTypeAsset),
		sales: repo.AddAccount("4000", "Sales Revenue", accounts.AccountTypeRevenue),
		now:   time.Date(2024, time.July, 10, 9, 30, 0, 0, time.UTC),
	}
	f.svc = accounting.NewService(repo, audit, nil)
	f.svc.WithNow(func() time.Time { return f.now })
	return f
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func amount(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func (f *fixture) sale(id string, v string) accounting.SalesPosting {
	return accounting.SalesPosting{
		OrderID:          id,
		OrderNumber:      id,
		Date:             date(2024, time.June, 15),
		ReceiptAccountID: f.cash.ID,
		RevenueAccountID: f.sales.ID,
		Amount:           amount(v),
	}
}

func TestPostWritesBalancedPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.svc.Post(ctx, f.sale("SO1", "1000"), "alice")
	require.NoError(t, err)
	require.Equal(t, "JV00000001", id)

	group, err := f.svc.Group(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "2024-25", group.FinancialYear)
	require.Equal(t, accounting.Source{Type: accounting.SourceSalesOrder, ID: "SO1"}, group.Source)
	require.Equal(t, accounting.GroupStatusPosted, group.Status)
	require.Equal(t, "alice", group.CreatedBy)
	require.Len(t, group.Postings, 2)
	require.True(t, group.Balanced())

	debit, credit := group.Postings[0], group.Postings[1]
	require.True(t, debit.IsDebit())
	require.Equal(t, f.cash.ID, debit.AccountID)
	require.True(t, debit.Amount().Equal(amount("1000")))
	require.False(t, credit.IsDebit())
	require.Equal(t, f.sales.ID, credit.AccountID)
	require.True(t, credit.Amount().Equal(amount("1000")))
	for _, p := range group.Postings {
		require.Equal(t, id, p.GroupID)
		require.Equal(t, group.Date, p.Date)
		require.Equal(t, "2024-25", p.FinancialYear)
		require.Equal(t, group.Source, p.Source)
		require.Equal(t, "alice", p.CreatedBy)
	}

	require.Len(t, f.audit.logs, 1)
	require.Equal(t, "ledger.post", f.audit.logs[0].Action)
	require.Equal(t, id, f.audit.logs[0].EntityID)
}

func TestPostRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.repo.AddAccount("9999", "Old Float", accounts.AccountTypeAsset)
	inactive, err := f.repo.GetByName(ctx, "Old Float")
	require.NoError(t, err)
	require.NoError(t, f.repo.SetActive(ctx, inactive.ID, false))

	valid := accounting.ManualEntry{
		Date:            date(2024, time.May, 1),
		Description:     "Owner float",
		DebitAccountID:  f.cash.ID,
		CreditAccountID: f.sales.ID,
		Amount:          amount("50"),
	}
	cases := []struct {
		name   string
		mutate func(*accounting.ManualEntry)
		actor  string
		field  string
	}{
		{"zero amount", func(e *accounting.ManualEntry) { e.Amount = decimal.Zero }, "alice", "amount"},
		{"negative amount", func(e *accounting.ManualEntry) { e.Amount = amount("-5") }, "alice", "amount"},
		{"sub-cent amount", func(e *accounting.ManualEntry) { e.Amount = amount("10.005") }, "alice", "amount"},
		{"same accounts", func(e *accounting.ManualEntry) { e.CreditAccountID = e.DebitAccountID }, "alice", "credit_account_id"},
		{"missing description", func(e *accounting.ManualEntry) { e.Description = "  " }, "alice", "description"},
		{"missing date", func(e *accounting.ManualEntry) { e.Date = time.Time{} }, "alice", "date"},
		{"missing actor", func(e *accounting.ManualEntry) {}, " ", "actor"},
		{"inactive account", func(e *accounting.ManualEntry) { e.DebitAccountID = inactive.ID }, "alice", "debit_account_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entry := valid
			tc.mutate(&entry)
			_, err := f.svc.Post(ctx, entry, tc.actor)
			require.ErrorIs(t, err, shared.ErrValidation)
			var verr *shared.ValidationError
			require.True(t, errors.As(err, &verr))
			require.Equal(t, tc.field, verr.Field)
		})
	}
	require.Empty(t, f.repo.Groups())
}

func TestPostUnknownAccountIsValidationAndNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Post(context.Background(), accounting.ManualEntry{
		Date:            date(2024, time.May, 1),
		Description:     "Typo",
		DebitAccountID:  f.cash.ID,
		CreditAccountID: 404,
		Amount:          amount("10"),
	}, "alice")
	require.ErrorIs(t, err, shared.ErrValidation)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Empty(t, f.repo.Groups())
}

func TestPostRollsBackWhenPostingsFail(t *testing.T) {
	f := newFixture(t)
	f.repo.FailInsertPostings = errors.New("connection reset")

	_, err := f.svc.Post(context.Background(), f.sale("SO1", "1000"), "alice")
	require.ErrorIs(t, err, shared.ErrStorage)
	var serr *shared.StorageError
	require.True(t, errors.As(err, &serr))
	require.Empty(t, f.repo.Groups())
	require.Empty(t, f.repo.Postings())
	require.Empty(t, f.audit.logs)
}

func TestPostDuplicateSourceConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Post(ctx, f.sale("SO1", "1000"), "alice")
	require.NoError(t, err)

	_, err = f.svc.Post(ctx, f.sale("SO1", "1000"), "alice")
	require.ErrorIs(t, err, shared.ErrSourceConflict)
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.Len(t, f.repo.Groups(), 1)
}

func TestPostOnceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := &recorderStub{}
	f.svc.WithMetrics(rec)

	first, applied, err := f.svc.PostOnce(ctx, f.sale("SO1", "1000"), "system")
	require.NoError(t, err)
	require.True(t, applied)

	second, applied, err := f.svc.PostOnce(ctx, f.sale("SO1", "1000"), "system")
	require.NoError(t, err)
	require.False(t, applied)
	require.Equal(t, first.ID, second.ID)

	require.Len(t, f.repo.Groups(), 1)
	require.Len(t, f.repo.Postings(), 2)
	require.Equal(t, []string{"sales_order:posted", "sales_order:duplicate"}, rec.outcomes)
}

func TestPostOnceLosingConcurrentInsertIsNotApplied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, applied, err := f.svc.PostOnce(ctx, f.sale("SO1", "1000"), "system")
	require.NoError(t, err)
	require.True(t, applied)

	f.repo.HideSources = true
	group, applied, err := f.svc.PostOnce(ctx, f.sale("SO1", "1000"), "system")
	require.NoError(t, err)
	require.False(t, applied)
	require.Empty(t, group.ID)
	require.Len(t, f.repo.Groups(), 1)
}

func TestPostedReportsPrimaryGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	source := accounting.Source{Type: accounting.SourceSalesOrder, ID: "SO1"}

	posted, err := f.svc.Posted(ctx, source)
	require.NoError(t, err)
	require.False(t, posted)

	_, applied, err := f.svc.PostOnce(ctx, f.sale("SO1", "1000"), "system")
	require.NoError(t, err)
	require.True(t, applied)
	posted, err = f.svc.Posted(ctx, source)
	require.NoError(t, err)
	require.True(t, posted)

	_, err = f.svc.ReverseSource(ctx, source, "system", "cancelled")
	require.NoError(t, err)
	posted, err = f.svc.Posted(ctx, source)
	require.NoError(t, err)
	require.True(t, posted, "reversed documents stay posted")

	_, err = f.svc.Posted(ctx, accounting.Source{Type: accounting.SourceSalesOrder})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPostOnceRequiresSourceID(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.PostOnce(context.Background(), accounting.ManualEntry{
		Date:            date(2024, time.May, 1),
		Description:     "Float",
		DebitAccountID:  f.cash.ID,
		CreditAccountID: f.sales.ID,
		Amount:          amount("10"),
	}, "alice")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestReverseManualEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.svc.Post(ctx, accounting.ManualEntry{
		Date:            date(2024, time.March, 20),
		Description:     "Deposit takings",
		DebitAccountID:  f.bank.ID,
		CreditAccountID: f.cash.ID,
		Amount:          amount("250.50"),
	}, "alice")
	require.NoError(t, err)

	reversal, err := f.svc.Reverse(ctx, accounting.ReverseInput{GroupID: id, Actor: "bob"})
	require.NoError(t, err)
	require.NotEqual(t, id, reversal.ID)
	require.Equal(t, id, reversal.ReversalOf)
	require.Equal(t, "Reversal of "+id, reversal.Description)
	require.Equal(t, date(2024, time.July, 10), reversal.Date)
	require.Equal(t, "2024-25", reversal.FinancialYear)
	require.Equal(t, "bob", reversal.CreatedBy)
	require.Equal(t, accounting.GroupStatusPosted, reversal.Status)
	require.True(t, reversal.Balanced())

	original, err := f.svc.Group(ctx, id)
	require.NoError(t, err)
	require.Equal(t, accounting.GroupStatusReversed, original.Status)
	require.Equal(t, "2023-24", original.FinancialYear)

	stored, err := f.svc.Group(ctx, reversal.ID)
	require.NoError(t, err)
	require.Len(t, stored.Postings, 2)
	for i, p := range stored.Postings {
		o := original.Postings[i]
		require.Equal(t, o.AccountID, p.AccountID)
		require.Equal(t, o.Debit, p.Credit)
		require.Equal(t, o.Credit, p.Debit)
	}

	net := map[int64]decimal.Decimal{}
	for _, p := range f.repo.Postings() {
		if p.Debit.Valid {
			net[p.AccountID] = net[p.AccountID].Add(p.Debit.Decimal)
		} else {
			net[p.AccountID] = net[p.AccountID].Sub(p.Credit.Decimal)
		}
	}
	for account, v := range net {
		require.True(t, v.IsZero(), "account %d nets to %s", account, v)
	}
}

func TestReverseTwiceFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.svc.Post(ctx, accounting.ManualEntry{
		Date: date(2024, time.May, 1), Description: "Float",
		DebitAccountID: f.cash.ID, CreditAccountID: f.sales.ID, Amount: amount("10"),
	}, "alice")
	require.NoError(t, err)

	_, err = f.svc.Reverse(ctx, accounting.ReverseInput{GroupID: id, Actor: "alice"})
	require.NoError(t, err)
	_, err = f.svc.Reverse(ctx, accounting.ReverseInput{GroupID: id, Actor: "alice"})
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.Len(t, f.repo.Groups(), 2)
}

func TestReverseRefusesReversalGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.svc.Post(ctx, accounting.ManualEntry{
		Date: date(2024, time.May, 1), Description: "Float",
		DebitAccountID: f.cash.ID, CreditAccountID: f.sales.ID, Amount: amount("10"),
	}, "alice")
	require.NoError(t, err)
	reversal, err := f.svc.Reverse(ctx, accounting.ReverseInput{GroupID: id, Actor: "alice"})
	require.NoError(t, err)

	_, err = f.svc.Reverse(ctx, accounting.ReverseInput{GroupID: reversal.ID, Actor: "alice"})
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestReverseRejectsSystemGroups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.svc.Post(ctx, f.sale("SO1", "1000"), "system")
	require.NoError(t, err)

	_, err = f.svc.Reverse(ctx, accounting.ReverseInput{GroupID: id, Actor: "alice"})
	require.ErrorIs(t, err, shared.ErrInvalidState)

	reversal, err := f.svc.ReverseSource(ctx, accounting.Source{Type: accounting.SourceSalesOrder, ID: "SO1"}, "alice", "")
	require.NoError(t, err)
	require.Equal(t, id, reversal.ReversalOf)
	require.Equal(t, accounting.Source{Type: accounting.SourceSalesOrder, ID: "SO1"}, reversal.Source)

	_, applied, err := f.svc.PostOnce(ctx, f.sale("SO1", "1000"), "system")
	require.NoError(t, err)
	require.False(t, applied)
	require.Len(t, f.repo.Groups(), 2)
}

func TestReverseUnknownGroup(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Reverse(context.Background(), accounting.ReverseInput{GroupID: "JV99999999", Actor: "alice"})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.svc.Reverse(context.Background(), accounting.ReverseInput{GroupID: "JV99999999"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestListGroupsFiltersBySource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Post(ctx, f.sale("SO1", "10"), "system")
	require.NoError(t, err)
	_, err = f.svc.Post(ctx, accounting.ManualEntry{
		Date: date(2024, time.May, 1), Description: "Float",
		DebitAccountID: f.cash.ID, CreditAccountID: f.sales.ID, Amount: amount("10"),
	}, "alice")
	require.NoError(t, err)

	groups, err := f.svc.ListGroups(ctx, accounting.ListFilter{SourceType: accounting.SourceManualEntry})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Equal(t, accounting.SourceManualEntry, groups[0].Source.Type)
}

func TestFinancialYear(t *testing.T) {
	cases := map[time.Time]string{
		date(2024, time.March, 31):    "2023-24",
		date(2024, time.April, 1):     "2024-25",
		date(2024, time.December, 31): "2024-25",
		date(1999, time.June, 1):      "1999-00",
	}
	for d, want := range cases {
		require.Equal(t, want, accounting.FinancialYear(d), d.String())
	}
	require.Equal(t, date(2023, time.April, 1), accounting.FinancialYearStart(date(2024, time.February, 29)))
}
