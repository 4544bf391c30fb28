package uow

import (
	"context"

	"loanpay-backend/internal/domain/loan"
	"loanpay-backend/internal/domain/transaction"
)

// Repos are bound to the running transaction.
type Repos struct {
	Loans        loan.Repository
	Transactions transaction.Repository
}

type UnitOfWork interface {
	// plain tx
	WithinTx(ctx context.Context, fn func(r Repos) error) error
	// lock the loan row first, then pass it in
	WithinLoanTx(ctx context.Context, loanCode string, fn func(r Repos, l *loan.Loan) error) error
	// lock the transaction row first, then pass it in
	WithinTransactionTx(ctx context.Context, reference string, fn func(r Repos, t *transaction.Transaction) error) error
}
