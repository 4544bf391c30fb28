package uowmock

import (
	"context"
	"errors"

	"loanpay-backend/internal/domain/loan"
	"loanpay-backend/internal/domain/transaction"
	"loanpay-backend/internal/domain/uow"
)

// Ensure compile-time compliance
var _ uow.UnitOfWork = (*UoW)(nil)

var errUnimplemented = errors.New("uowmock: method not implemented")

// UoW is a function-backed mock that satisfies uow.UnitOfWork.
// Fill in the function fields you need in a test; unfilled ones return errUnimplemented.
type UoW struct {
	WithinTxFn            func(ctx context.Context, fn func(r uow.Repos) error) error
	WithinLoanTxFn        func(ctx context.Context, loanCode string, fn func(r uow.Repos, l *loan.Loan) error) error
	WithinTransactionTxFn func(ctx context.Context, reference string, fn func(r uow.Repos, t *transaction.Transaction) error) error
}

// Convenience fluent setters
func New() *UoW { return &UoW{} }

// Passthrough runs every unit directly against repos, resolving locked rows
// through the repos' ForUpdate readers.
func Passthrough(repos uow.Repos) *UoW {
	return &UoW{
		WithinTxFn: func(_ context.Context, fn func(uow.Repos) error) error {
			return fn(repos)
		},
		WithinLoanTxFn: func(ctx context.Context, code string, fn func(uow.Repos, *loan.Loan) error) error {
			l, err := repos.Loans.GetByCodeForUpdate(ctx, code)
			if err != nil {
				return err
			}
			return fn(repos, l)
		},
		WithinTransactionTxFn: func(ctx context.Context, ref string, fn func(uow.Repos, *transaction.Transaction) error) error {
			t, err := repos.Transactions.GetByReferenceForUpdate(ctx, ref)
			if err != nil {
				return err
			}
			return fn(repos, t)
		},
	}
}

func (m *UoW) WithWithinTx(fn func(context.Context, func(uow.Repos) error) error) *UoW {
	m.WithinTxFn = fn
	return m
}
func (m *UoW) WithWithinLoanTx(fn func(context.Context, string, func(uow.Repos, *loan.Loan) error) error) *UoW {
	m.WithinLoanTxFn = fn
	return m
}
func (m *UoW) WithWithinTransactionTx(fn func(context.Context, string, func(uow.Repos, *transaction.Transaction) error) error) *UoW {
	m.WithinTransactionTxFn = fn
	return m
}
func (m *UoW) Reset() { *m = UoW{} }

// Methods implementing UnitOfWork
func (m *UoW) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	if m.WithinTxFn != nil {
		return m.WithinTxFn(ctx, fn)
	}
	return errUnimplemented
}
func (m *UoW) WithinLoanTx(ctx context.Context, loanCode string, fn func(r uow.Repos, l *loan.Loan) error) error {
	if m.WithinLoanTxFn != nil {
		return m.WithinLoanTxFn(ctx, loanCode, fn)
	}
	return errUnimplemented
}
func (m *UoW) WithinTransactionTx(ctx context.Context, reference string, fn func(r uow.Repos, t *transaction.Transaction) error) error {
	if m.WithinTransactionTxFn != nil {
		return m.WithinTransactionTxFn(ctx, reference, fn)
	}
	return errUnimplemented
}
