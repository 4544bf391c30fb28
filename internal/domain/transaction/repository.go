package transaction

import (
	"context"
	"time"
)

type Repository interface {
	// Create returns ErrDuplicateReference when the reference is taken.
	Create(ctx context.Context, t *Transaction) error
	// SaveIfState persists t only while the stored row is still in expected;
	// otherwise it returns ErrStaleState and writes nothing.
	SaveIfState(ctx context.Context, t *Transaction, expected State) error

	GetByReference(ctx context.Context, reference string) (*Transaction, error)
	GetByReferenceForUpdate(ctx context.Context, reference string) (*Transaction, error)
	ExistsByReference(ctx context.Context, reference string) (bool, error)

	// ListInFlightByLoan returns the loan's created/dispatched/awaiting_otp
	// transactions created at or after since.
	ListInFlightByLoan(ctx context.Context, loanID uint64, since time.Time) ([]Transaction, error)
	List(ctx context.Context, f Filter) ([]Transaction, error)
}
