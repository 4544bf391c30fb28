package loan

import (
	"context"
	"fmt"

	"loanpay-backend/internal/domain/loan"
	"loanpay-backend/internal/domain/transaction"
	"loanpay-backend/internal/domain/uow"
	"loanpay-backend/pkg/id"

	"go.uber.org/zap"
)

type Usecase struct {
	uow    uow.UnitOfWork
	loans  loan.Repository
	txs    transaction.Repository
	logger *zap.Logger
}

func NewUsecase(u uow.UnitOfWork, loans loan.Repository, txs transaction.Repository, logger *zap.Logger) *Usecase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Usecase{uow: u, loans: loans, txs: txs, logger: logger.Named("loan")}
}

// Create inserts the loan and derives its code from the surrogate id in the
// same unit, so codes are unique and follow insertion order.
func (u *Usecase) Create(ctx context.Context, in CreateLoanInput) (*LoanDTO, error) {
	l, err := loan.New(in.CustomerID, in.Principal, in.InterestRate, in.TermMonths, in.DisbursementDate)
	if err != nil {
		return nil, err
	}

	err = u.uow.WithinTx(ctx, func(r uow.Repos) error {
		// placeholder keeps the unique index happy until the id is known
		l.Code = "~" + id.NewID32()
		if err := r.Loans.Create(ctx, l); err != nil {
			return fmt.Errorf("create loan: %w", err)
		}
		l.Code = loan.CodeFor(l.ID)
		return r.Loans.Save(ctx, l)
	})
	if err != nil {
		return nil, err
	}

	u.logger.Info("loan created",
		zap.String("loan_id", l.Code),
		zap.String("customer_id", l.CustomerID),
		zap.String("principal", l.Principal.StringFixed(2)),
	)
	dto := toDTO(l)
	return &dto, nil
}

// Get returns the loan with history and schedule. A non-empty customerID must
// own the loan; otherwise the loan is reported as not found.
func (u *Usecase) Get(ctx context.Context, code, customerID string) (*LoanDetailDTO, error) {
	l, err := u.loans.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if customerID != "" && l.CustomerID != customerID {
		return nil, loan.ErrNotFound
	}

	txs, err := u.txs.List(ctx, transaction.Filter{LoanID: &l.ID})
	if err != nil {
		return nil, err
	}
	payments := make([]PaymentDTO, 0, len(txs))
	for i := range txs {
		payments = append(payments, toPaymentDTO(&txs[i]))
	}

	return &LoanDetailDTO{
		LoanDTO:  toDTO(l),
		Payments: payments,
		Schedule: l.Schedule(),
	}, nil
}

func (u *Usecase) ListByCustomer(ctx context.Context, customerID string) ([]LoanDTO, error) {
	ls, err := u.loans.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	out := make([]LoanDTO, 0, len(ls))
	for i := range ls {
		out = append(out, toDTO(&ls[i]))
	}
	return out, nil
}
