package loanmock

import (
	"context"

	domain "loanpay-backend/internal/domain/loan"
)

var _ domain.Repository = (*Repo)(nil)

// Repo is a function-backed mock that satisfies domain.Repository.
// Unset writers are no-ops; unset readers return context.Canceled.
type Repo struct {
	CreateFn             func(ctx context.Context, l *domain.Loan) error
	SaveFn               func(ctx context.Context, l *domain.Loan) error
	GetByCodeFn          func(ctx context.Context, code string) (*domain.Loan, error)
	GetByIDFn            func(ctx context.Context, id uint64) (*domain.Loan, error)
	ListByCustomerFn     func(ctx context.Context, customerID string) ([]domain.Loan, error)
	GetByCodeForUpdateFn func(ctx context.Context, code string) (*domain.Loan, error)
	GetByIDForUpdateFn   func(ctx context.Context, id uint64) (*domain.Loan, error)
}

func (m *Repo) Create(ctx context.Context, l *domain.Loan) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, l)
	}
	return nil
}

func (m *Repo) Save(ctx context.Context, l *domain.Loan) error {
	if m.SaveFn != nil {
		return m.SaveFn(ctx, l)
	}
	return nil
}

func (m *Repo) GetByCode(ctx context.Context, code string) (*domain.Loan, error) {
	if m.GetByCodeFn != nil {
		return m.GetByCodeFn(ctx, code)
	}
	return nil, context.Canceled
}

func (m *Repo) GetByID(ctx context.Context, id uint64) (*domain.Loan, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	return nil, context.Canceled
}

func (m *Repo) ListByCustomer(ctx context.Context, customerID string) ([]domain.Loan, error) {
	if m.ListByCustomerFn != nil {
		return m.ListByCustomerFn(ctx, customerID)
	}
	return nil, context.Canceled
}

func (m *Repo) GetByCodeForUpdate(ctx context.Context, code string) (*domain.Loan, error) {
	if m.GetByCodeForUpdateFn != nil {
		return m.GetByCodeForUpdateFn(ctx, code)
	}
	return nil, context.Canceled
}

func (m *Repo) GetByIDForUpdate(ctx context.Context, id uint64) (*domain.Loan, error) {
	if m.GetByIDForUpdateFn != nil {
		return m.GetByIDForUpdateFn(ctx, id)
	}
	return nil, context.Canceled
}
