package accounts

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

type memoryRepo struct {
	accounts map[int64]Account
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{accounts: make(map[int64]Account)}
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Account, error) {
	a, ok := r.accounts[id]
	if !ok {
		return Account{}, shared.NotFound("account", id)
	}
	return a, nil
}

func (r *memoryRepo) GetByName(ctx context.Context, name string) (Account, error) {
	for _, a := range r.accounts {
		if a.Name == name {
			return a, nil
		}
	}
	return Account{}, shared.NotFound("account", name)
}

func (r *memoryRepo) GetByCode(ctx context.Context, code string) (Account, error) {
	for _, a := range r.accounts {
		if a.Code == code {
			return a, nil
		}
	}
	return Account{}, shared.NotFound("account", code)
}

func (r *memoryRepo) List(ctx context.Context) ([]Account, error) {
	out := make([]Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *memoryRepo) ListActive(ctx context.Context) ([]Account, error) {
	all, _ := r.List(ctx)
	var out []Account
	for _, a := range all {
		if a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memoryRepo) Create(ctx context.Context, account Account) (Account, error) {
	for _, a := range r.accounts {
		if a.Name == account.Name || a.Code == account.Code {
			return Account{}, shared.Validation("account", "code or name already in use")
		}
	}
	r.nextID++
	account.ID = r.nextID
	r.accounts[account.ID] = account
	return account, nil
}

func (r *memoryRepo) SetActive(ctx context.Context, id int64, active bool) error {
	a, ok := r.accounts[id]
	if !ok {
		return shared.NotFound("account", id)
	}
	a.IsActive = active
	r.accounts[id] = a
	return nil
}

func TestCreateDerivesNormalBalance(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	cases := map[AccountType]NormalBalance{
		AccountTypeAsset:     NormalDebit,
		AccountTypeExpense:   NormalDebit,
		AccountTypeLiability: NormalCredit,
		AccountTypeEquity:    NormalCredit,
		AccountTypeRevenue:   NormalCredit,
	}
	i := 0
	for typ, want := range cases {
		i++
		acc, err := svc.Create(ctx, CreateInput{Code: string(rune('A'+i)) + "100", Name: string(typ) + " account", Type: typ})
		require.NoError(t, err)
		require.Equal(t, want, acc.NormalBalance)
		require.True(t, acc.IsActive)
	}
}

func TestCreateRejectsContradictingNormalBalance(t *testing.T) {
	svc := NewService(newMemoryRepo())
	_, err := svc.Create(context.Background(), CreateInput{
		Code:          "1000",
		Name:          "Cash in Hand",
		Type:          AccountTypeAsset,
		NormalBalance: NormalCredit,
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	var verr *shared.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "normal_balance", verr.Field)
}

func TestCreateRejectsUnknownType(t *testing.T) {
	svc := NewService(newMemoryRepo())
	_, err := svc.Create(context.Background(), CreateInput{Code: "9000", Name: "Suspense", Type: "OTHER"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()
	_, err := svc.Create(ctx, CreateInput{Code: "1000", Name: "Cash in Hand", Type: AccountTypeAsset})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{Code: "1001", Name: "Cash in Hand", Type: AccountTypeAsset})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDeactivateKeepsAccountReadable(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()
	acc, err := svc.Create(ctx, CreateInput{Code: "1000", Name: "Petty Cash", Type: AccountTypeAsset})
	require.NoError(t, err)

	acc, err = svc.Deactivate(ctx, acc.ID)
	require.NoError(t, err)
	require.False(t, acc.IsActive)

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	require.Empty(t, active)

	stored, err := svc.Get(ctx, acc.ID)
	require.NoError(t, err)
	require.False(t, stored.IsActive)

	_, err = svc.Deactivate(ctx, 999)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSignedFollowsNormalBalance(t *testing.T) {
	cash := Account{Type: AccountTypeAsset, NormalBalance: NormalDebit}
	sales := Account{Type: AccountTypeRevenue, NormalBalance: NormalCredit}
	hundred := decimal.NewFromInt(100)

	require.True(t, cash.Signed(hundred, decimal.Zero).Equal(hundred))
	require.True(t, cash.Signed(decimal.Zero, hundred).Equal(hundred.Neg()))
	require.True(t, sales.Signed(decimal.Zero, hundred).Equal(hundred))
	require.True(t, sales.Signed(hundred, decimal.Zero).Equal(hundred.Neg()))
}
