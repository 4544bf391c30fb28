package loan

import "context"

type Repository interface {
	Create(ctx context.Context, l *Loan) error
	Save(ctx context.Context, l *Loan) error
	GetByCode(ctx context.Context, code string) (*Loan, error)
	GetByID(ctx context.Context, id uint64) (*Loan, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Loan, error)

	// Row-locked reads; only meaningful inside a unit of work.
	GetByCodeForUpdate(ctx context.Context, code string) (*Loan, error)
	GetByIDForUpdate(ctx context.Context, id uint64) (*Loan, error)
}
