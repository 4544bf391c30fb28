package transactionmock

import (
	"context"
	"time"

	domain "loanpay-backend/internal/domain/transaction"
)

var _ domain.Repository = (*Repo)(nil)

// Repo is a function-backed mock that satisfies domain.Repository.
// Unset writers are no-ops; unset readers return context.Canceled.
type Repo struct {
	CreateFn                  func(ctx context.Context, t *domain.Transaction) error
	SaveIfStateFn             func(ctx context.Context, t *domain.Transaction, expected domain.State) error
	GetByReferenceFn          func(ctx context.Context, reference string) (*domain.Transaction, error)
	GetByReferenceForUpdateFn func(ctx context.Context, reference string) (*domain.Transaction, error)
	ExistsByReferenceFn       func(ctx context.Context, reference string) (bool, error)
	ListInFlightByLoanFn      func(ctx context.Context, loanID uint64, since time.Time) ([]domain.Transaction, error)
	ListFn                    func(ctx context.Context, f domain.Filter) ([]domain.Transaction, error)
}

func (m *Repo) Create(ctx context.Context, t *domain.Transaction) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, t)
	}
	return nil
}

func (m *Repo) SaveIfState(ctx context.Context, t *domain.Transaction, expected domain.State) error {
	if m.SaveIfStateFn != nil {
		return m.SaveIfStateFn(ctx, t, expected)
	}
	return nil
}

func (m *Repo) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	if m.GetByReferenceFn != nil {
		return m.GetByReferenceFn(ctx, reference)
	}
	return nil, context.Canceled
}

func (m *Repo) GetByReferenceForUpdate(ctx context.Context, reference string) (*domain.Transaction, error) {
	if m.GetByReferenceForUpdateFn != nil {
		return m.GetByReferenceForUpdateFn(ctx, reference)
	}
	return nil, context.Canceled
}

func (m *Repo) ExistsByReference(ctx context.Context, reference string) (bool, error) {
	if m.ExistsByReferenceFn != nil {
		return m.ExistsByReferenceFn(ctx, reference)
	}
	return false, nil
}

func (m *Repo) ListInFlightByLoan(ctx context.Context, loanID uint64, since time.Time) ([]domain.Transaction, error) {
	if m.ListInFlightByLoanFn != nil {
		return m.ListInFlightByLoanFn(ctx, loanID, since)
	}
	return nil, nil
}

func (m *Repo) List(ctx context.Context, f domain.Filter) ([]domain.Transaction, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, f)
	}
	return nil, context.Canceled
}
