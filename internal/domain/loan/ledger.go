package loan

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// New builds an active loan whose outstanding balance equals the principal.
// The code is assigned by the store once the surrogate id is known.
func New(customerID string, principal, rate decimal.Decimal, termMonths int, disbursed *time.Time) (*Loan, error) {
	if customerID == "" || !principal.IsPositive() || rate.IsNegative() || termMonths < 1 {
		return nil, ErrInvalidInput
	}
	l := &Loan{
		CustomerID:         customerID,
		Principal:          principal.Round(2),
		OutstandingBalance: principal.Round(2),
		InterestRate:       rate.Round(2),
		TermMonths:         termMonths,
		Status:             StatusActive,
	}
	if disbursed != nil {
		d := time.Date(disbursed.Year(), disbursed.Month(), disbursed.Day(), 0, 0, 0, 0, time.UTC)
		l.DisbursementDate = &d
	}
	return l, nil
}

// ApplyPayment decrements the outstanding balance by amount, clamping at zero,
// and returns the amount actually applied. Reaching zero completes the loan and
// stamps CompletedAt; a completed loan is never touched again.
func (l *Loan) ApplyPayment(amount decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	if l.Status == StatusCompleted {
		return decimal.Zero, ErrAlreadySettled
	}

	applied := decimal.Min(amount, l.OutstandingBalance)
	l.OutstandingBalance = l.OutstandingBalance.Sub(applied).Round(2)
	if !l.OutstandingBalance.IsPositive() {
		l.OutstandingBalance = decimal.Zero
		l.Status = StatusCompleted
		if l.CompletedAt == nil {
			t := now.UTC()
			l.CompletedAt = &t
		}
	}
	return applied, nil
}

func (l *Loan) PaidAmount() decimal.Decimal { return l.Principal.Sub(l.OutstandingBalance) }

// ProgressPercentage is the share of the principal already repaid, capped at 100.
func (l *Loan) ProgressPercentage() decimal.Decimal {
	if !l.Principal.IsPositive() {
		return decimal.Zero
	}
	p := l.PaidAmount().Mul(hundred).Div(l.Principal).Round(1)
	return decimal.Min(p, hundred)
}

func (l *Loan) MonthlyPayment() decimal.Decimal {
	if l.TermMonths <= 0 {
		return l.Principal
	}
	return l.Principal.Div(decimal.NewFromInt(int64(l.TermMonths))).Round(2)
}

type Installment struct {
	Month           int             `json:"month"`
	ExpectedPayment decimal.Decimal `json:"expected_payment"`
	ExpectedDate    *time.Time      `json:"expected_date,omitempty"`
}

// Schedule spreads the principal evenly over the term, one installment every
// 30 days after disbursement.
func (l *Loan) Schedule() []Installment {
	out := make([]Installment, 0, l.TermMonths)
	monthly := l.MonthlyPayment()
	for m := 1; m <= l.TermMonths; m++ {
		in := Installment{Month: m, ExpectedPayment: monthly}
		if l.DisbursementDate != nil {
			d := l.DisbursementDate.AddDate(0, 0, 30*m)
			in.ExpectedDate = &d
		}
		out = append(out, in)
	}
	return out
}
