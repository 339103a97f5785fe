package accounting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the storage operations available inside a transaction.
type TxRepository interface {
	GetAccount(ctx context.Context, id int64) (accounts.Account, error)
	NextGroupID(ctx context.Context) (string, error)
	// FindPrimaryGroup returns the non-reversal group recorded for source.
	FindPrimaryGroup(ctx context.Context, source Source) (PostingGroup, error)
	GetGroup(ctx context.Context, id string) (PostingGroup, error)
	GetGroupForUpdate(ctx context.Context, id string) (PostingGroup, error)
	ListGroups(ctx context.Context, filter ListFilter) ([]PostingGroup, error)
	InsertGroup(ctx context.Context, group PostingGroup) error
	InsertPostings(ctx context.Context, postings []Posting) error
	// MarkGroupReversed flips a POSTED group to REVERSED and fails with an
	// invalid state error when the group is not POSTED.
	MarkGroupReversed(ctx context.Context, id string) error
}

// ListFilter narrows posting group listings.
type ListFilter struct {
	From       time.Time
	To         time.Time
	SourceType SourceType
	Limit      int
	Offset     int
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Recorder receives posting outcomes for metrics.
type Recorder interface {
	ObservePosting(sourceType, outcome string)
}

// Service is the posting and reversal engine.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	logger   *slog.Logger
	metrics  Recorder
	validate *validator.Validate
	groupIDs func(context.Context, TxRepository) (string, error)
	now      func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		audit:    audit,
		logger:   logger,
		validate: newValidator(),
		groupIDs: func(ctx context.Context, tx TxRepository) (string, error) { return tx.NextGroupID(ctx) },
		now:      time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMetrics attaches a posting outcome recorder.
func (s *Service) WithMetrics(m Recorder) {
	s.metrics = m
}

// WithGroupIDs replaces the group identifier source. The default draws from
// the repository sequence inside the posting transaction.
func (s *Service) WithGroupIDs(fn func(context.Context, TxRepository) (string, error)) {
	if fn != nil {
		s.groupIDs = fn
	}
}

// Post validates the event and writes its balanced posting group.
func (s *Service) Post(ctx context.Context, event Event, actor string) (string, error) {
	group, _, err := s.post(ctx, event, actor, false)
	if err != nil {
		return "", err
	}
	return group.ID, nil
}

// PostOnce writes the event's group unless a primary group already exists
// for its source. applied is false when nothing was written; group is then
// the existing group (or empty when a concurrent writer won the insert).
func (s *Service) PostOnce(ctx context.Context, event Event, actor string) (group PostingGroup, applied bool, err error) {
	return s.post(ctx, event, actor, true)
}

// Posted reports whether source already has a primary group, reversed or
// not. It is a read-only precheck; PostOnce stays authoritative under races.
func (s *Service) Posted(ctx context.Context, source Source) (bool, error) {
	if source.ID == "" {
		return false, shared.Validation("source_id", "required")
	}
	var found bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := tx.FindPrimaryGroup(ctx, source)
		switch {
		case err == nil:
			found = true
			return nil
		case errors.Is(err, shared.ErrNotFound):
			return nil
		default:
			return err
		}
	})
	return found, shared.Storage("find source group", err)
}

func (s *Service) post(ctx context.Context, event Event, actor string, once bool) (PostingGroup, bool, error) {
	if event == nil {
		return PostingGroup{}, false, shared.Validation("event", "required")
	}
	details := event.Details()
	source := event.Source()
	if err := ValidateDetails(s.validate, details, actor); err != nil {
		return PostingGroup{}, false, err
	}
	if once && source.ID == "" {
		return PostingGroup{}, false, shared.Validation("source_id", "required for idempotent posting")
	}

	var group PostingGroup
	applied := true
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if once {
			existing, err := tx.FindPrimaryGroup(ctx, source)
			if err == nil {
				group = existing
				applied = false
				return nil
			}
			if !errors.Is(err, shared.ErrNotFound) {
				return err
			}
		}
		if err := checkAccounts(ctx, tx, details); err != nil {
			return err
		}
		id, err := s.groupIDs(ctx, tx)
		if err != nil {
			return err
		}
		group = buildGroup(id, details, source, actor, s.now())
		if err := tx.InsertGroup(ctx, group); err != nil {
			return err
		}
		return tx.InsertPostings(ctx, group.Postings)
	})
	if err != nil {
		if once && errors.Is(err, shared.ErrSourceConflict) {
			s.observe(source.Type, "duplicate")
			return PostingGroup{}, false, nil
		}
		s.observe(source.Type, "error")
		return PostingGroup{}, false, shared.Storage("post group", err)
	}
	if !applied {
		s.observe(source.Type, "duplicate")
		return group, false, nil
	}
	s.observe(source.Type, "posted")
	s.record(ctx, actor, "ledger.post", group.ID, map[string]any{
		"source_type": string(source.Type),
		"source_id":   source.ID,
		"amount":      details.Amount.StringFixed(amountScale),
	})
	return group, true, nil
}

// Reverse creates the reversing group for a manual entry.
func (s *Service) Reverse(ctx context.Context, in ReverseInput) (PostingGroup, error) {
	if strings.TrimSpace(in.GroupID) == "" {
		return PostingGroup{}, shared.Validation("group_id", "required")
	}
	if strings.TrimSpace(in.Actor) == "" {
		return PostingGroup{}, shared.Validation("actor", "required")
	}
	var reversal PostingGroup
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetGroupForUpdate(ctx, in.GroupID)
		if err != nil {
			return err
		}
		if !original.Source.Type.Reversible() {
			return shared.InvalidState("posting group", original.ID,
				fmt.Sprintf("%s groups are reversed through their source document", original.Source.Type))
		}
		reversal, err = s.reverseInTx(ctx, tx, original, in.Actor, in.Memo)
		return err
	})
	if err != nil {
		return PostingGroup{}, shared.Storage("reverse group", err)
	}
	s.afterReverse(ctx, in.Actor, in.GroupID, reversal)
	return reversal, nil
}

// ReverseSource cancels the primary group of a source document. It is the
// entry point for document lifecycles (order cancellation, PO return).
func (s *Service) ReverseSource(ctx context.Context, source Source, actor, memo string) (PostingGroup, error) {
	if source.Type == "" || source.ID == "" {
		return PostingGroup{}, shared.Validation("source", "type and id required")
	}
	if strings.TrimSpace(actor) == "" {
		return PostingGroup{}, shared.Validation("actor", "required")
	}
	var (
		originalID string
		reversal   PostingGroup
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		primary, err := tx.FindPrimaryGroup(ctx, source)
		if err != nil {
			return err
		}
		original, err := tx.GetGroupForUpdate(ctx, primary.ID)
		if err != nil {
			return err
		}
		originalID = original.ID
		reversal, err = s.reverseInTx(ctx, tx, original, actor, memo)
		return err
	})
	if err != nil {
		return PostingGroup{}, shared.Storage("reverse source", err)
	}
	s.afterReverse(ctx, actor, originalID, reversal)
	return reversal, nil
}

func (s *Service) reverseInTx(ctx context.Context, tx TxRepository, original PostingGroup, actor, memo string) (PostingGroup, error) {
	if original.IsReversal() {
		return PostingGroup{}, shared.InvalidState("posting group", original.ID, "a reversal cannot itself be reversed")
	}
	if original.Status != GroupStatusPosted {
		return PostingGroup{}, shared.InvalidState("posting group", original.ID, "already reversed")
	}
	id, err := s.groupIDs(ctx, tx)
	if err != nil {
		return PostingGroup{}, err
	}
	now := s.now()
	reversal := reverseGroup(id, original, actor, memo, now)
	if err := tx.MarkGroupReversed(ctx, original.ID); err != nil {
		return PostingGroup{}, err
	}
	if err := tx.InsertGroup(ctx, reversal); err != nil {
		return PostingGroup{}, err
	}
	if err := tx.InsertPostings(ctx, reversal.Postings); err != nil {
		return PostingGroup{}, err
	}
	return reversal, nil
}

func (s *Service) afterReverse(ctx context.Context, actor, originalID string, reversal PostingGroup) {
	s.observe(reversal.Source.Type, "reversed")
	s.record(ctx, actor, "ledger.reverse", originalID, map[string]any{
		"reversal_id": reversal.ID,
		"source_type": string(reversal.Source.Type),
		"source_id":   reversal.Source.ID,
	})
}

// Group loads a posting group with its postings.
func (s *Service) Group(ctx context.Context, id string) (PostingGroup, error) {
	var group PostingGroup
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		group, err = tx.GetGroup(ctx, id)
		return err
	})
	return group, shared.Storage("load group", err)
}

// ListGroups returns posting group headers matching the filter.
func (s *Service) ListGroups(ctx context.Context, filter ListFilter) ([]PostingGroup, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	var groups []PostingGroup
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		groups, err = tx.ListGroups(ctx, filter)
		return err
	})
	return groups, shared.Storage("list groups", err)
}

func (s *Service) observe(sourceType SourceType, outcome string) {
	if s.metrics != nil {
		s.metrics.ObservePosting(string(sourceType), outcome)
	}
}

func (s *Service) record(ctx context.Context, actor, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, internalShared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "posting_group",
		EntityID: entityID,
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.String("group_id", entityID), slog.Any("error", err))
	}
}

func checkAccounts(ctx context.Context, tx TxRepository, details PostingDetails) error {
	for _, leg := range []struct {
		field string
		id    int64
	}{
		{"debit_account_id", details.DebitAccountID},
		{"credit_account_id", details.CreditAccountID},
	} {
		account, err := tx.GetAccount(ctx, leg.id)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return &shared.ValidationError{Field: leg.field, Reason: "unknown account", Err: err}
			}
			return err
		}
		if !account.IsActive {
			return shared.Validation(leg.field, fmt.Sprintf("account %s is inactive", account.Name))
		}
	}
	return nil
}

func buildGroup(id string, details PostingDetails, source Source, actor string, now time.Time) PostingGroup {
	date := dateOnly(details.Date)
	group := PostingGroup{
		ID:            id,
		Date:          date,
		FinancialYear: FinancialYear(date),
		Description:   strings.TrimSpace(details.Description),
		Remarks:       strings.TrimSpace(details.Remarks),
		Source:        source,
		Status:        GroupStatusPosted,
		CreatedBy:     actor,
		CreatedAt:     now,
	}
	amount := decimal.NewNullDecimal(details.Amount)
	group.Postings = []Posting{
		group.leg(details.DebitAccountID, amount, decimal.NullDecimal{}),
		group.leg(details.CreditAccountID, decimal.NullDecimal{}, amount),
	}
	return group
}

func reverseGroup(id string, original PostingGroup, actor, memo string, now time.Time) PostingGroup {
	date := dateOnly(now)
	description := strings.TrimSpace(memo)
	if description == "" {
		description = "Reversal of " + original.ID
	}
	reversal := PostingGroup{
		ID:            id,
		Date:          date,
		FinancialYear: FinancialYear(date),
		Description:   description,
		Remarks:       original.Description,
		Source:        original.Source,
		Status:        GroupStatusPosted,
		ReversalOf:    original.ID,
		CreatedBy:     actor,
		CreatedAt:     now,
	}
	reversal.Postings = make([]Posting, 0, len(original.Postings))
	for _, p := range original.Postings {
		reversal.Postings = append(reversal.Postings, reversal.leg(p.AccountID, p.Credit, p.Debit))
	}
	return reversal
}

func (g PostingGroup) leg(accountID int64, debit, credit decimal.NullDecimal) Posting {
	return Posting{
		GroupID:       g.ID,
		AccountID:     accountID,
		Date:          g.Date,
		FinancialYear: g.FinancialYear,
		Description:   g.Description,
		Remarks:       g.Remarks,
		Debit:         debit,
		Credit:        credit,
		Source:        g.Source,
		CreatedBy:     g.CreatedBy,
		CreatedAt:     g.CreatedAt,
	}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
