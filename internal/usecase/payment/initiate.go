package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"loanpay-backend/internal/domain/gateway"
	"loanpay-backend/internal/domain/loan"
	"loanpay-backend/internal/domain/paymethod"
	"loanpay-backend/internal/domain/transaction"
	"loanpay-backend/internal/domain/uow"
	"loanpay-backend/pkg/id"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Initiate validates the request, reserves the amount against the loan and
// records a created transaction in one unit, then dispatches it to the
// gateway. The row is stored already claimed for that dispatch, so a poll
// cannot push a second charge while the first one is in flight. A business
// rejection marks the transaction failed. A transient gateway failure releases
// the claim and leaves it created so a later PollStatus can dispatch again;
// the created transaction is then returned together with the error.
func (o *Orchestrator) Initiate(ctx context.Context, in InitiateInput) (*PaymentDTO, error) {
	method, err := o.validate(in)
	if err != nil {
		return nil, err
	}
	now := o.clock()

	t := &transaction.Transaction{
		CustomerID:        in.CustomerID,
		Kind:              transaction.KindGeneral,
		PhoneNumber:       strings.TrimSpace(in.Phone),
		Amount:            in.Amount.Round(2),
		Method:            method.Name(),
		State:             transaction.StateCreated,
		DispatchAttemptAt: &now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if in.LoanCode == "" {
		err = o.uow.WithinTx(ctx, func(r uow.Repos) error {
			return o.insert(ctx, r, t, id.GeneralScope, now)
		})
	} else {
		err = o.uow.WithinLoanTx(ctx, in.LoanCode, func(r uow.Repos, l *loan.Loan) error {
			if in.CustomerID != "" && l.CustomerID != in.CustomerID {
				return loan.ErrNotFound
			}
			if err := o.reserve(ctx, r, l, t.Amount, now); err != nil {
				return err
			}
			t.Kind = transaction.KindLoanPayment
			t.LoanID = &l.ID
			t.LoanCode = l.Code
			t.CustomerID = l.CustomerID
			return o.insert(ctx, r, t, l.Code, now)
		})
	}
	if err != nil {
		o.metrics.PaymentInitiated(method.Name(), "refused")
		return nil, err
	}
	o.logger.Info("payment created",
		zap.String("reference", t.Reference),
		zap.String("loan_id", t.LoanCode),
		zap.String("amount", t.Amount.StringFixed(2)),
		zap.String("method", t.Method),
	)

	updated, err := o.dispatch(ctx, t, method)
	if err != nil {
		if isTransient(err) {
			return toDTO(t), err
		}
		return nil, err
	}
	return toDTO(updated), nil
}

func (o *Orchestrator) validate(in InitiateInput) (paymethod.Method, error) {
	fields := map[string]string{}

	switch {
	case !in.Amount.IsPositive():
		fields["amount"] = "must be greater than zero"
	case o.cfg.MaxAmount.IsPositive() && in.Amount.GreaterThan(o.cfg.MaxAmount):
		fields["amount"] = "must not exceed " + o.cfg.MaxAmount.StringFixed(2)
	case !in.Amount.Equal(in.Amount.Round(2)):
		fields["amount"] = "must have at most two decimal places"
	}
	if !phonePattern.MatchString(strings.TrimSpace(in.Phone)) {
		fields["phone_number"] = "must be a Zimbabwean mobile number (+263XXXXXXXXX or 0XXXXXXXXX)"
	}
	method, err := paymethod.Lookup(in.Method)
	if err != nil {
		fields["method"] = "must be one of " + strings.Join(paymethod.Names(), ", ")
	}

	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	return method, nil
}

// reserve refuses the amount when it exceeds the outstanding balance minus
// what recent unfinished payments already hold.
func (o *Orchestrator) reserve(ctx context.Context, r uow.Repos, l *loan.Loan, amount decimal.Decimal, now time.Time) error {
	if l.Status == loan.StatusCompleted {
		return loan.ErrAlreadySettled
	}
	if !l.IsActive() {
		return loan.ErrNotActive
	}

	reserved := decimal.Zero
	if o.cfg.ReservationWindow > 0 {
		inflight, err := r.Transactions.ListInFlightByLoan(ctx, l.ID, now.Add(-o.cfg.ReservationWindow))
		if err != nil {
			return err
		}
		for _, p := range inflight {
			reserved = reserved.Add(p.Amount)
		}
	}

	if amount.GreaterThan(l.OutstandingBalance.Sub(reserved)) {
		return &AmountExceedsBalanceError{Requested: amount, Outstanding: l.OutstandingBalance, Reserved: reserved}
	}
	return nil
}

// insert allocates a unique reference and stores t. The existence check runs
// in the same unit; a concurrent insert can still take the reference between
// check and write, which the unique index reports and the loop retries.
func (o *Orchestrator) insert(ctx context.Context, r uow.Repos, t *transaction.Transaction, scope string, now time.Time) error {
	for i := 0; i < o.cfg.ReferenceAttempts; i++ {
		ref := id.NewReference(scope, now)
		taken, err := r.Transactions.ExistsByReference(ctx, ref)
		if err != nil {
			return err
		}
		if taken {
			continue
		}
		t.Reference = ref
		err = r.Transactions.Create(ctx, t)
		if errors.Is(err, transaction.ErrDuplicateReference) {
			o.logger.Warn("reference taken concurrently, retrying", zap.String("reference", ref))
			t.Reference = ""
			continue
		}
		return err
	}
	return transaction.ErrReferenceConflict
}

// dispatch sends a created transaction to the gateway and records the result.
// The caller must hold the dispatch claim on t.
func (o *Orchestrator) dispatch(ctx context.Context, t *transaction.Transaction, method paymethod.Method) (*transaction.Transaction, error) {
	charge := gateway.Charge{
		Reference:   t.Reference,
		Amount:      t.Amount,
		Phone:       t.PhoneNumber,
		Description: description(t),
	}

	h, err := method.Dispatch(ctx, o.gw, charge)
	if err != nil {
		if isTransient(err) {
			o.metrics.PaymentInitiated(method.Name(), "pending_retry")
			o.logger.Warn("dispatch failed, transaction left for retry",
				zap.String("reference", t.Reference), zap.Error(err))
			if rerr := o.releaseDispatch(ctx, t.Reference); rerr != nil {
				o.logger.Error("releasing dispatch claim", zap.String("reference", t.Reference), zap.Error(rerr))
			}
			return nil, fmt.Errorf("dispatch %s: %w", t.Reference, err)
		}

		reason := err.Error()
		if reasons := gateway.Reasons(err); len(reasons) > 0 {
			reason = strings.Join(reasons, "; ")
		}
		if _, ferr := o.mutate(ctx, t.Reference, "dispatch", func(_ uow.Repos, row *transaction.Transaction) error {
			if row.State != transaction.StateCreated {
				return errUnchanged
			}
			row.State = transaction.StateFailed
			row.FailureReason = reason
			row.DispatchResult = reason
			row.DispatchAttemptAt = nil
			return nil
		}); ferr != nil {
			o.logger.Error("recording dispatch failure", zap.String("reference", t.Reference), zap.Error(ferr))
		}
		o.metrics.PaymentInitiated(method.Name(), "rejected")
		return nil, fmt.Errorf("dispatch %s: %w", t.Reference, err)
	}

	raw, _ := json.Marshal(h.Raw)
	updated, err := o.mutate(ctx, t.Reference, "dispatch", func(_ uow.Repos, row *transaction.Transaction) error {
		if row.State != transaction.StateCreated {
			return errUnchanged
		}
		row.PollToken = h.PollToken
		row.RedirectURL = h.RedirectURL
		row.OTPToken = h.OTPToken
		row.OTPReference = h.OTPReference
		row.GatewayReference = h.GatewayReference
		row.RawStatus = h.RawStatus
		row.DispatchResult = string(raw)
		row.Instructions = paymethod.Instructions(method, h)
		row.DispatchAttemptAt = nil
		if method.RequiresOTP(h) {
			row.State = transaction.StateAwaitingOTP
		} else {
			row.State = transaction.StateDispatched
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	o.metrics.PaymentInitiated(method.Name(), string(updated.State))
	return updated, nil
}

// claimDispatch takes the dispatch claim on a created transaction. It reports
// false when the row has moved on or another dispatch still holds an
// unexpired claim.
func (o *Orchestrator) claimDispatch(ctx context.Context, reference string) (*transaction.Transaction, bool, error) {
	claimed := false
	t, err := o.mutate(ctx, reference, "dispatch", func(_ uow.Repos, row *transaction.Transaction) error {
		if row.State != transaction.StateCreated {
			return errUnchanged
		}
		now := o.clock()
		if at := row.DispatchAttemptAt; at != nil && now.Sub(*at) < o.cfg.DispatchLease {
			return errUnchanged
		}
		row.DispatchAttemptAt = &now
		claimed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return t, claimed, nil
}

func (o *Orchestrator) releaseDispatch(ctx context.Context, reference string) error {
	_, err := o.mutate(ctx, reference, "dispatch", func(_ uow.Repos, row *transaction.Transaction) error {
		if row.State != transaction.StateCreated || row.DispatchAttemptAt == nil {
			return errUnchanged
		}
		row.DispatchAttemptAt = nil
		return nil
	})
	return err
}

func description(t *transaction.Transaction) string {
	if t.LoanCode != "" {
		return "Loan payment " + t.LoanCode
	}
	return "Payment " + t.Reference
}

var errUnchanged = errors.New("unchanged")
