// Package accountingtest provides an in-memory ledger store for tests of the
// posting engine and the packages built on it.
package accountingtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Memory implements the accounting, registry and report repository ports.
// Transactions are serialised and applied only when fn succeeds.
type Memory struct {
	mu    sync.Mutex
	state state

	// FailInsertPostings, when set, is returned by the next InsertPostings call.
	FailInsertPostings error
	// HideSources makes FindPrimaryGroup miss, as if a concurrent writer had
	// not yet committed its group.
	HideSources bool
}

type state struct {
	accounts   map[int64]accounts.Account
	groups     map[string]accounting.PostingGroup
	roles      map[string]int64
	nextAcctID int64
	groupSeq   int64
	postingSeq int64
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{state: state{
		accounts: make(map[int64]accounts.Account),
		groups:   make(map[string]accounting.PostingGroup),
		roles:    make(map[string]int64),
	}}
}

func (s state) clone() state {
	out := s
	out.accounts = make(map[int64]accounts.Account, len(s.accounts))
	for k, v := range s.accounts {
		out.accounts[k] = v
	}
	out.groups = make(map[string]accounting.PostingGroup, len(s.groups))
	for k, v := range s.groups {
		out.groups[k] = v
	}
	out.roles = make(map[string]int64, len(s.roles))
	for k, v := range s.roles {
		out.roles[k] = v
	}
	return out
}

// AddAccount registers an active account with the normal balance implied by typ.
func (m *Memory) AddAccount(code, name string, typ accounts.AccountType) accounts.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.nextAcctID++
	acc := accounts.Account{
		ID:            m.state.nextAcctID,
		Code:          code,
		Name:          name,
		Type:          typ,
		NormalBalance: typ.NormalBalance(),
		IsActive:      true,
	}
	m.state.accounts[acc.ID] = acc
	return acc
}

// SetRole maps a system account role to an account id.
func (m *Memory) SetRole(role string, accountID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.roles[role] = accountID
}

// Groups returns every committed group ordered by id.
func (m *Memory) Groups() []accounting.PostingGroup {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]accounting.PostingGroup, 0, len(m.state.groups))
	for _, g := range m.state.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Postings returns every committed posting ordered by id.
func (m *Memory) Postings() []accounting.Posting {
	var out []accounting.Posting
	for _, g := range m.Groups() {
		out = append(out, g.Postings...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// WithTx runs fn against a private copy of the store and commits it on success.
func (m *Memory) WithTx(ctx context.Context, fn func(context.Context, accounting.TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memoryTx{m: m, st: m.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.state = tx.st
	return nil
}

type memoryTx struct {
	m  *Memory
	st state
}

func (tx *memoryTx) GetAccount(ctx context.Context, id int64) (accounts.Account, error) {
	acc, ok := tx.st.accounts[id]
	if !ok {
		return accounts.Account{}, shared.NotFound("account", id)
	}
	return acc, nil
}

func (tx *memoryTx) NextGroupID(ctx context.Context) (string, error) {
	tx.st.groupSeq++
	return fmt.Sprintf("JV%08d", tx.st.groupSeq), nil
}

func (tx *memoryTx) FindPrimaryGroup(ctx context.Context, source accounting.Source) (accounting.PostingGroup, error) {
	if !tx.m.HideSources {
		if g, ok := tx.st.primary(source); ok {
			g.Postings = nil
			return g, nil
		}
	}
	return accounting.PostingGroup{}, shared.NotFound("posting group", string(source.Type)+"/"+source.ID)
}

func (s state) primary(source accounting.Source) (accounting.PostingGroup, bool) {
	if source.ID == "" {
		return accounting.PostingGroup{}, false
	}
	for _, g := range s.groups {
		if g.Source == source && !g.IsReversal() {
			return g, true
		}
	}
	return accounting.PostingGroup{}, false
}

func (tx *memoryTx) GetGroup(ctx context.Context, id string) (accounting.PostingGroup, error) {
	g, ok := tx.st.groups[id]
	if !ok {
		return accounting.PostingGroup{}, shared.NotFound("posting group", id)
	}
	return g, nil
}

func (tx *memoryTx) GetGroupForUpdate(ctx context.Context, id string) (accounting.PostingGroup, error) {
	return tx.GetGroup(ctx, id)
}

func (tx *memoryTx) ListGroups(ctx context.Context, filter accounting.ListFilter) ([]accounting.PostingGroup, error) {
	var out []accounting.PostingGroup
	for _, g := range tx.st.groups {
		if !filter.From.IsZero() && g.Date.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && g.Date.After(filter.To) {
			continue
		}
		if filter.SourceType != "" && g.Source.Type != filter.SourceType {
			continue
		}
		g.Postings = nil
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (tx *memoryTx) InsertGroup(ctx context.Context, group accounting.PostingGroup) error {
	if _, exists := tx.st.groups[group.ID]; exists {
		return shared.Storage("insert group", fmt.Errorf("duplicate group id %s", group.ID))
	}
	if !group.IsReversal() {
		if _, taken := tx.st.primary(group.Source); taken {
			return &shared.InvalidStateError{
				Entity: "source",
				Key:    string(group.Source.Type) + "/" + group.Source.ID,
				Reason: "already posted",
				Err:    shared.ErrSourceConflict,
			}
		}
	} else {
		for _, g := range tx.st.groups {
			if g.ReversalOf == group.ReversalOf {
				return shared.InvalidState("posting group", group.ReversalOf, "already reversed")
			}
		}
	}
	group.Postings = nil
	tx.st.groups[group.ID] = group
	return nil
}

func (tx *memoryTx) InsertPostings(ctx context.Context, postings []accounting.Posting) error {
	if err := tx.m.FailInsertPostings; err != nil {
		tx.m.FailInsertPostings = nil
		return shared.Storage("insert postings", err)
	}
	for _, p := range postings {
		g, ok := tx.st.groups[p.GroupID]
		if !ok {
			return shared.Storage("insert postings", fmt.Errorf("unknown group %s", p.GroupID))
		}
		if p.Debit.Valid == p.Credit.Valid {
			return shared.Storage("insert postings", fmt.Errorf("posting must carry exactly one side"))
		}
		tx.st.postingSeq++
		p.ID = tx.st.postingSeq
		g.Postings = append(append([]accounting.Posting(nil), g.Postings...), p)
		tx.st.groups[p.GroupID] = g
	}
	return nil
}

func (tx *memoryTx) MarkGroupReversed(ctx context.Context, id string) error {
	g, ok := tx.st.groups[id]
	if !ok {
		return shared.NotFound("posting group", id)
	}
	if g.Status != accounting.GroupStatusPosted {
		return shared.InvalidState("posting group", id, "already reversed")
	}
	g.Status = accounting.GroupStatusReversed
	tx.st.groups[id] = g
	return nil
}

// Registry ports.

func (m *Memory) Get(ctx context.Context, id int64) (accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.state.accounts[id]
	if !ok {
		return accounts.Account{}, shared.NotFound("account", id)
	}
	return acc, nil
}

func (m *Memory) GetByName(ctx context.Context, name string) (accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, acc := range m.state.accounts {
		if acc.Name == name {
			return acc, nil
		}
	}
	return accounts.Account{}, shared.NotFound("account", name)
}

func (m *Memory) GetByCode(ctx context.Context, code string) (accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, acc := range m.state.accounts {
		if acc.Code == code {
			return acc, nil
		}
	}
	return accounts.Account{}, shared.NotFound("account", code)
}

func (m *Memory) List(ctx context.Context) ([]accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]accounts.Account, 0, len(m.state.accounts))
	for _, acc := range m.state.accounts {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *Memory) ListActive(ctx context.Context) ([]accounts.Account, error) {
	all, _ := m.List(ctx)
	var out []accounts.Account
	for _, acc := range all {
		if acc.IsActive {
			out = append(out, acc)
		}
	}
	return out, nil
}

func (m *Memory) Create(ctx context.Context, account accounts.Account) (accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, acc := range m.state.accounts {
		if acc.Code == account.Code || acc.Name == account.Name {
			return accounts.Account{}, shared.Validation("account", "code or name already in use")
		}
	}
	m.state.nextAcctID++
	account.ID = m.state.nextAcctID
	account.IsActive = true
	m.state.accounts[account.ID] = account
	return account, nil
}

func (m *Memory) SetActive(ctx context.Context, id int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.state.accounts[id]
	if !ok {
		return shared.NotFound("account", id)
	}
	acc.IsActive = active
	m.state.accounts[id] = acc
	return nil
}

// Role mapping port.

// RoleAccount returns the account mapped to role.
func (m *Memory) RoleAccount(ctx context.Context, role string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.state.roles[role]
	if !ok {
		return 0, shared.NotFound("account role", role)
	}
	return id, nil
}

// Report ports.

// OpeningTotals sums an account's postings dated strictly before before.
func (m *Memory) OpeningTotals(ctx context.Context, accountID int64, before time.Time) (accounting.AccountTotals, error) {
	totals := accounting.AccountTotals{AccountID: accountID, Debit: decimal.Zero, Credit: decimal.Zero}
	for _, p := range m.Postings() {
		if p.AccountID == accountID && p.Date.Before(before) {
			totals.Add(p)
		}
	}
	return totals, nil
}

// AccountPostings lists an account's postings dated within [from, to].
func (m *Memory) AccountPostings(ctx context.Context, accountID int64, from, to time.Time) ([]accounting.Posting, error) {
	var out []accounting.Posting
	for _, p := range m.Postings() {
		if p.AccountID == accountID && !p.Date.Before(from) && !p.Date.After(to) {
			out = append(out, p)
		}
	}
	return out, nil
}

// BalanceTotals sums postings per account dated on or before asOf.
func (m *Memory) BalanceTotals(ctx context.Context, asOf time.Time) ([]accounting.AccountTotals, error) {
	byAccount := make(map[int64]*accounting.AccountTotals)
	var ids []int64
	for _, p := range m.Postings() {
		if p.Date.After(asOf) {
			continue
		}
		t, ok := byAccount[p.AccountID]
		if !ok {
			t = &accounting.AccountTotals{AccountID: p.AccountID, Debit: decimal.Zero, Credit: decimal.Zero}
			byAccount[p.AccountID] = t
			ids = append(ids, p.AccountID)
		}
		t.Add(p)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]accounting.AccountTotals, 0, len(ids))
	for _, id := range ids {
		out = append(out, *byAccount[id])
	}
	return out, nil
}

// UnbalancedGroups lists committed groups whose legs do not net to zero.
func (m *Memory) UnbalancedGroups(ctx context.Context) ([]accounting.GroupImbalance, error) {
	var out []accounting.GroupImbalance
	for _, g := range m.Groups() {
		debit, credit := g.Totals()
		if len(g.Postings) < 2 || !debit.Equal(credit) {
			out = append(out, accounting.GroupImbalance{GroupID: g.ID, Legs: len(g.Postings), Debit: debit, Credit: credit})
		}
	}
	return out, nil
}

// Corrupt appends a posting to a committed group without its balancing leg.
// It simulates damage the integrity check must detect.
func (m *Memory) Corrupt(groupID string, p accounting.Posting) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.state.groups[groupID]
	m.state.postingSeq++
	p.ID = m.state.postingSeq
	p.GroupID = groupID
	g.Postings = append(append([]accounting.Posting(nil), g.Postings...), p)
	m.state.groups[groupID] = g
}
