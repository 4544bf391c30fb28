package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"loanpay-backend/internal/domain/gateway"
	"loanpay-backend/internal/domain/loan"
	"loanpay-backend/internal/domain/paymethod"
	"loanpay-backend/internal/domain/transaction"
	"loanpay-backend/internal/domain/uow"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PollStatus asks the gateway for the latest status and settles or fails the
// transaction accordingly. Terminal transactions are answered from the store
// without a gateway call; created ones are dispatched again unless another
// dispatch still holds them. Concurrent polls of the same reference share one
// gateway round trip, which outlives the caller that started it.
func (o *Orchestrator) PollStatus(ctx context.Context, reference, customerID string) (*PaymentDTO, error) {
	t, err := o.txs.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !owns(t, customerID) {
		return nil, transaction.ErrNotFound
	}
	if t.State.Terminal() {
		return o.withLoanBalance(ctx, t), nil
	}

	v, err, _ := o.polls.Do(reference, func() (any, error) {
		return o.poll(context.WithoutCancel(ctx), reference)
	})
	if err != nil {
		return nil, err
	}
	return o.withLoanBalance(ctx, v.(*transaction.Transaction)), nil
}

func (o *Orchestrator) poll(ctx context.Context, reference string) (*transaction.Transaction, error) {
	t, err := o.txs.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	switch {
	case t.State.Terminal():
		return t, nil
	case t.State == transaction.StateCreated:
		m, err := paymethod.Lookup(t.Method)
		if err != nil {
			return nil, err
		}
		row, claimed, err := o.claimDispatch(ctx, reference)
		if err != nil || !claimed {
			return row, err
		}
		return o.dispatch(ctx, row, m)
	case t.PollToken == "":
		return t, nil
	}

	st, err := o.gw.Poll(ctx, t.PollToken)
	if err != nil {
		o.logger.Warn("poll failed", zap.String("reference", reference), zap.Error(err))
		return nil, fmt.Errorf("poll %s: %w", reference, err)
	}

	raw, _ := json.Marshal(st.Raw)
	record := func(row *transaction.Transaction) {
		row.RawStatus = st.RawStatus
		row.PollResult = string(raw)
		if st.GatewayReference != "" {
			row.GatewayReference = st.GatewayReference
		}
	}

	switch outcomeOf(st.RawStatus, st.Paid) {
	case transaction.OutcomePaid:
		t, _, _, err = o.settle(ctx, reference, "poll", record)
	case transaction.OutcomeFailed:
		t, err = o.fail(ctx, reference, "poll", "gateway reported "+st.RawStatus, record)
	default:
		t, err = o.mutate(ctx, reference, "poll", func(_ uow.Repos, row *transaction.Transaction) error {
			if row.State.Terminal() || (row.RawStatus == st.RawStatus && row.PollResult == string(raw)) {
				return errUnchanged
			}
			record(row)
			return nil
		})
	}
	return t, err
}

// SubmitOTP confirms an OTP-gated payment. A rejected code keeps the
// transaction awaiting another attempt; an expired window fails it.
func (o *Orchestrator) SubmitOTP(ctx context.Context, reference, code, customerID string) (*PaymentDTO, error) {
	if !otpPattern.MatchString(code) {
		return nil, &ValidationError{Fields: map[string]string{"otp": "must be exactly 6 digits"}}
	}
	t, err := o.txs.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !owns(t, customerID) {
		return nil, transaction.ErrNotFound
	}
	if t.State != transaction.StateAwaitingOTP {
		return nil, fmt.Errorf("%w: transaction is %s", transaction.ErrInvalidState, t.State)
	}

	st, err := o.gw.SubmitOTP(ctx, t.OTPToken, code)
	if err != nil {
		if errors.Is(err, gateway.ErrOtpExpired) {
			if _, ferr := o.fail(ctx, reference, "otp", "otp window expired", func(row *transaction.Transaction) {
				row.OTPResponse = err.Error()
			}); ferr != nil {
				o.logger.Error("recording otp expiry", zap.String("reference", reference), zap.Error(ferr))
			}
		}
		return nil, fmt.Errorf("submit otp %s: %w", reference, err)
	}

	raw, _ := json.Marshal(st.Raw)
	record := func(row *transaction.Transaction) {
		row.OTPResponse = string(raw)
		row.RawStatus = st.RawStatus
		if st.PollToken != "" {
			row.PollToken = st.PollToken
		}
		if st.GatewayReference != "" {
			row.GatewayReference = st.GatewayReference
		}
	}

	switch outcomeOf(st.RawStatus, st.Paid) {
	case transaction.OutcomePaid:
		t, _, _, err = o.settle(ctx, reference, "otp", record)
	case transaction.OutcomeFailed:
		t, err = o.fail(ctx, reference, "otp", "gateway reported "+st.RawStatus, record)
	default:
		t, err = o.mutate(ctx, reference, "otp", func(_ uow.Repos, row *transaction.Transaction) error {
			if row.State != transaction.StateAwaitingOTP {
				return errUnchanged
			}
			record(row)
			row.State = transaction.StateDispatched
			return nil
		})
	}
	if err != nil {
		return nil, err
	}
	return o.withLoanBalance(ctx, t), nil
}

// HandleCallback reconciles a gateway notification. Unknown references are
// logged and dropped. The body is kept verbatim on the transaction.
func (o *Orchestrator) HandleCallback(ctx context.Context, contentType string, body []byte) error {
	cb, err := gateway.ParseCallback(contentType, body)
	if err != nil {
		o.metrics.Callback("malformed")
		o.logger.Warn("malformed callback discarded", zap.ByteString("body", body), zap.Error(err))
		return err
	}

	t, err := o.txs.GetByReference(ctx, cb.Reference)
	if errors.Is(err, transaction.ErrNotFound) {
		o.metrics.Callback("discarded")
		o.logger.Warn("callback for unknown reference discarded",
			zap.String("reference", cb.Reference), zap.String("status", cb.RawStatus))
		return nil
	}
	if err != nil {
		o.metrics.Callback("error")
		return err
	}

	payload := string(body)
	record := func(row *transaction.Transaction) {
		row.CallbackPayload = payload
		if cb.RawStatus != "" {
			row.RawStatus = cb.RawStatus
		}
		if cb.GatewayReference != "" {
			row.GatewayReference = cb.GatewayReference
		}
	}

	outcome := transaction.Translate(cb.RawStatus)
	label := "recorded"
	if !t.State.Terminal() {
		switch outcome {
		case transaction.OutcomePaid:
			t, _, _, err = o.settle(ctx, cb.Reference, "callback", record)
			label = "settled"
		case transaction.OutcomeFailed:
			t, err = o.fail(ctx, cb.Reference, "callback", "gateway reported "+cb.RawStatus, record)
			label = "failed"
		default:
			t, err = o.mutate(ctx, cb.Reference, "callback", func(_ uow.Repos, row *transaction.Transaction) error {
				if row.State.Terminal() {
					return errUnchanged
				}
				record(row)
				return nil
			})
		}
		if err != nil {
			o.metrics.Callback("error")
			return err
		}
	}

	// Terminal rows only take the payload as an audit annotation.
	if t.CallbackPayload != payload {
		_, err = o.mutate(ctx, cb.Reference, "callback", func(_ uow.Repos, row *transaction.Transaction) error {
			if row.CallbackPayload == payload {
				return errUnchanged
			}
			row.CallbackPayload = payload
			if outcome == transaction.OutcomePaid && row.State == transaction.StateFailed {
				row.Notes = appendNote(row.Notes, "gateway reported paid after the payment failed; needs review")
				o.logger.Error("paid callback for failed transaction", zap.String("reference", row.Reference))
			}
			return nil
		})
		if err != nil {
			o.metrics.Callback("error")
			return err
		}
	}
	o.metrics.Callback(label)
	return nil
}

// settle applies the payment to its loan and marks the transaction settled,
// in one unit with the transaction row locked. A transaction that is already
// settled is returned as is, with applied == false.
func (o *Orchestrator) settle(ctx context.Context, reference, source string, record func(*transaction.Transaction)) (*transaction.Transaction, *loan.Loan, bool, error) {
	var (
		l       *loan.Loan
		applied bool
	)
	t, err := o.mutate(ctx, reference, source, func(r uow.Repos, row *transaction.Transaction) error {
		if row.State.Terminal() {
			return errUnchanged
		}
		record(row)
		now := o.clock()

		row.AppliedAmount = row.Amount
		if row.LoanID != nil {
			ln, err := r.Loans.GetByIDForUpdate(ctx, *row.LoanID)
			if err != nil {
				return err
			}
			amt, err := ln.ApplyPayment(row.Amount, now)
			switch {
			case errors.Is(err, loan.ErrAlreadySettled):
				row.Notes = appendNote(row.Notes, "loan already completed; payment not applied")
				amt = decimal.Zero
			case err != nil:
				return err
			default:
				if err := r.Loans.Save(ctx, ln); err != nil {
					return err
				}
				if amt.LessThan(row.Amount) {
					row.Notes = appendNote(row.Notes, "overpayment of "+row.Amount.Sub(amt).StringFixed(2)+" not applied")
				}
			}
			row.AppliedAmount = amt
			l = ln
		}

		row.State = transaction.StateSettled
		if row.PaidAt == nil {
			row.PaidAt = &now
		}
		row.CompletedAt = &now
		applied = true
		return nil
	})
	if errors.Is(err, transaction.ErrStaleState) {
		// another writer got there first; report what it left behind
		cur, gerr := o.txs.GetByReference(ctx, reference)
		if gerr == nil && cur.State == transaction.StateSettled {
			t, err = cur, nil
		}
	}
	if err != nil {
		return nil, nil, false, err
	}

	if applied {
		o.metrics.Settlement(source, "applied")
		fields := []zap.Field{
			zap.String("reference", reference),
			zap.String("source", source),
			zap.String("applied", t.AppliedAmount.StringFixed(2)),
		}
		if l != nil {
			fields = append(fields,
				zap.String("loan_id", l.Code),
				zap.String("balance", l.OutstandingBalance.StringFixed(2)),
				zap.String("loan_status", string(l.Status)))
		}
		o.logger.Info("payment settled", fields...)
	} else {
		o.metrics.Settlement(source, "noop")
	}
	return t, l, applied, nil
}

// fail marks a non-terminal transaction failed; terminal ones are left alone.
func (o *Orchestrator) fail(ctx context.Context, reference, source, reason string, record func(*transaction.Transaction)) (*transaction.Transaction, error) {
	return o.mutate(ctx, reference, source, func(_ uow.Repos, row *transaction.Transaction) error {
		if row.State.Terminal() {
			return errUnchanged
		}
		record(row)
		row.State = transaction.StateFailed
		row.FailureReason = reason
		return nil
	})
}

// mutate locks the row, lets fn change it and saves it guarded by the state it
// was read in. fn returns errUnchanged to skip the write.
func (o *Orchestrator) mutate(ctx context.Context, reference, source string, fn func(r uow.Repos, t *transaction.Transaction) error) (*transaction.Transaction, error) {
	var out *transaction.Transaction
	err := o.uow.WithinTransactionTx(ctx, reference, func(r uow.Repos, t *transaction.Transaction) error {
		from := t.State
		if err := fn(r, t); err != nil {
			if errors.Is(err, errUnchanged) {
				out = t
				return nil
			}
			return err
		}
		if t.State != from && !transaction.CanTransition(from, t.State) {
			return fmt.Errorf("%w: %s -> %s", transaction.ErrInvalidState, from, t.State)
		}
		t.UpdatedAt = o.clock()
		if err := r.Transactions.SaveIfState(ctx, t, from); err != nil {
			return err
		}
		if t.State != from {
			o.logger.Info("transaction state changed",
				zap.String("reference", reference),
				zap.String("from", string(from)),
				zap.String("to", string(t.State)),
				zap.String("source", source),
			)
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func outcomeOf(raw string, paid bool) transaction.Outcome {
	if paid {
		return transaction.OutcomePaid
	}
	return transaction.Translate(raw)
}

func appendNote(notes, note string) string {
	if strings.Contains(notes, note) {
		return notes
	}
	if notes == "" {
		return note
	}
	return notes + "\n" + note
}
