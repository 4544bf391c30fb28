package payment

import (
	"time"

	"loanpay-backend/internal/domain/loan"
	"loanpay-backend/internal/domain/transaction"

	"github.com/shopspring/decimal"
)

type InitiateInput struct {
	// LoanCode is empty for a general (non-loan) payment.
	LoanCode string
	// CustomerID, when set, must own the loan.
	CustomerID string
	Amount     decimal.Decimal
	Phone      string
	Method     string
}

type ListInput struct {
	LoanCode   string
	CustomerID string
	State      string
	Limit      int
}

type PaymentDTO struct {
	Reference     string          `json:"reference"`
	LoanID        string          `json:"loan_id,omitempty"`
	Type          string          `json:"transaction_type"`
	PhoneNumber   string          `json:"phone_number"`
	Amount        decimal.Decimal `json:"amount"`
	AppliedAmount decimal.Decimal `json:"applied_amount"`
	Method        string          `json:"method"`
	State         string          `json:"state"`
	Status        string          `json:"status,omitempty"`
	Paid          bool            `json:"paid"`

	Instructions  string `json:"instructions,omitempty"`
	RedirectURL   string `json:"redirect_url,omitempty"`
	RequiresOTP   bool   `json:"requires_otp"`
	OTPReference  string `json:"otp_reference,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
	Notes         string `json:"notes,omitempty"`

	// Set on status responses for loan payments.
	LoanBalance *decimal.Decimal `json:"loan_balance,omitempty"`
	LoanStatus  string           `json:"loan_status,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func toDTO(t *transaction.Transaction) *PaymentDTO {
	return &PaymentDTO{
		Reference:     t.Reference,
		LoanID:        t.LoanCode,
		Type:          string(t.Kind),
		PhoneNumber:   t.PhoneNumber,
		Amount:        t.Amount,
		AppliedAmount: t.AppliedAmount,
		Method:        t.Method,
		State:         string(t.State),
		Status:        t.RawStatus,
		Paid:          t.Paid(),
		Instructions:  t.Instructions,
		RedirectURL:   t.RedirectURL,
		RequiresOTP:   t.State == transaction.StateAwaitingOTP,
		OTPReference:  t.OTPReference,
		FailureReason: t.FailureReason,
		Notes:         t.Notes,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
		PaidAt:        t.PaidAt,
		CompletedAt:   t.CompletedAt,
	}
}

func (d *PaymentDTO) withLoan(l *loan.Loan) *PaymentDTO {
	if l == nil {
		return d
	}
	bal := l.OutstandingBalance
	d.LoanBalance = &bal
	d.LoanStatus = string(l.Status)
	return d
}
