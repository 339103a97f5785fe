package accounts

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Service is the account registry.
type Service struct {
	repo     Repository
	validate *validator.Validate
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, validate: validator.New()}
}

// Create registers a new account. The normal balance is derived from the
// type; an explicit value that contradicts it is rejected.
func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return Account{}, shared.Validation(strings.ToLower(verrs[0].Field()), verrs[0].Tag())
		}
		return Account{}, shared.Validation("account", err.Error())
	}
	expected := in.Type.NormalBalance()
	if in.NormalBalance != "" && in.NormalBalance != expected {
		return Account{}, shared.Validation("normal_balance", "must be "+string(expected)+" for "+string(in.Type))
	}
	return s.repo.Create(ctx, Account{
		Code:          in.Code,
		Name:          in.Name,
		Type:          in.Type,
		NormalBalance: expected,
		IsActive:      true,
	})
}

func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) GetByName(ctx context.Context, name string) (Account, error) {
	return s.repo.GetByName(ctx, name)
}

func (s *Service) GetByCode(ctx context.Context, code string) (Account, error) {
	return s.repo.GetByCode(ctx, code)
}

func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx)
}

func (s *Service) ListActive(ctx context.Context) ([]Account, error) {
	return s.repo.ListActive(ctx)
}

// Deactivate hides an account from new postings and active listings.
func (s *Service) Deactivate(ctx context.Context, id int64) (Account, error) {
	return s.setActive(ctx, id, false)
}

// Activate re-enables a previously deactivated account.
func (s *Service) Activate(ctx context.Context, id int64) (Account, error) {
	return s.setActive(ctx, id, true)
}

func (s *Service) setActive(ctx context.Context, id int64, active bool) (Account, error) {
	account, err := s.repo.Get(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if account.IsActive == active {
		return account, nil
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return Account{}, err
	}
	account.IsActive = active
	return account, nil
}
