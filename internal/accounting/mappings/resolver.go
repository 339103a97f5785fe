package mappings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// AccountLookup is the subset of the account registry the resolver reads.
type AccountLookup interface {
	Get(ctx context.Context, id int64) (accounts.Account, error)
	GetByName(ctx context.Context, name string) (accounts.Account, error)
	GetByCode(ctx context.Context, code string) (accounts.Account, error)
}

// Resolver turns system account roles into registry accounts. Database
// overrides win over configured targets. The account id a role points at is
// cached for ttl; the account itself is re-read on every call so a
// deactivation is seen immediately. Invalidate drops cached ids after an
// override or target change.
type Resolver struct {
	overrides Repository
	accounts  AccountLookup
	targets   map[Role]Target
	cache     *cache.Cache
}

// NewResolver builds a resolver. overrides may be nil; nil targets use the defaults.
func NewResolver(overrides Repository, lookup AccountLookup, targets map[Role]Target, ttl time.Duration) *Resolver {
	if targets == nil {
		targets = DefaultTargets()
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Resolver{
		overrides: overrides,
		accounts:  lookup,
		targets:   targets,
		cache:     cache.New(ttl, 2*ttl),
	}
}

// Resolve returns the active account for role or a ConfigurationError.
func (r *Resolver) Resolve(ctx context.Context, role Role) (accounts.Account, error) {
	account, err := r.resolve(ctx, role)
	if err != nil {
		return accounts.Account{}, err
	}
	if !account.IsActive {
		r.cache.Delete(string(role))
		return accounts.Account{}, &shared.ConfigurationError{
			Role:   string(role),
			Reason: fmt.Sprintf("account %s is inactive", account.Name),
		}
	}
	r.cache.SetDefault(string(role), account.ID)
	return account, nil
}

func (r *Resolver) resolve(ctx context.Context, role Role) (accounts.Account, error) {
	cached, ok := r.cache.Get(string(role))
	if !ok {
		return r.lookup(ctx, role)
	}
	id := cached.(int64)
	account, err := r.accounts.Get(ctx, id)
	if err != nil {
		r.cache.Delete(string(role))
		return accounts.Account{}, configErr(role, fmt.Sprintf("cached account %d", id), err)
	}
	return account, nil
}

func (r *Resolver) lookup(ctx context.Context, role Role) (accounts.Account, error) {
	if r.overrides != nil {
		id, err := r.overrides.RoleAccount(ctx, string(role))
		switch {
		case err == nil:
			account, err := r.accounts.Get(ctx, id)
			if err != nil {
				return accounts.Account{}, configErr(role, fmt.Sprintf("override points at account %d", id), err)
			}
			return account, nil
		case !errors.Is(err, shared.ErrNotFound):
			return accounts.Account{}, err
		}
	}
	target, ok := r.targets[role]
	if !ok {
		return accounts.Account{}, &shared.ConfigurationError{Role: string(role), Reason: "no account configured"}
	}
	if target.Code != "" {
		account, err := r.accounts.GetByCode(ctx, target.Code)
		if err != nil {
			return accounts.Account{}, configErr(role, "no account with code "+target.Code, err)
		}
		return account, nil
	}
	account, err := r.accounts.GetByName(ctx, target.Name)
	if err != nil {
		return accounts.Account{}, configErr(role, fmt.Sprintf("no account named %q", target.Name), err)
	}
	return account, nil
}

func configErr(role Role, reason string, err error) error {
	if !errors.Is(err, shared.ErrNotFound) {
		return err
	}
	return &shared.ConfigurationError{Role: string(role), Reason: reason, Err: err}
}

// Check resolves every role, returning the first failure.
func (r *Resolver) Check(ctx context.Context) error {
	for _, role := range Roles {
		if _, err := r.Resolve(ctx, role); err != nil {
			return err
		}
	}
	return nil
}

// Invalidate forgets cached resolutions; no roles means all of them.
func (r *Resolver) Invalidate(roles ...Role) {
	if len(roles) == 0 {
		r.cache.Flush()
		return
	}
	for _, role := range roles {
		r.cache.Delete(string(role))
	}
}
