package loan

import (
	"time"

	"loanpay-backend/internal/domain/loan"
	"loanpay-backend/internal/domain/transaction"

	"github.com/shopspring/decimal"
)

type CreateLoanInput struct {
	CustomerID       string
	Principal        decimal.Decimal
	InterestRate     decimal.Decimal
	TermMonths       int
	DisbursementDate *time.Time
}

type LoanDTO struct {
	LoanID             string          `json:"loan_id"`
	CustomerID         string          `json:"customer_id"`
	OriginalAmount     decimal.Decimal `json:"original_amount"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	PaidAmount         decimal.Decimal `json:"paid_amount"`
	ProgressPercentage decimal.Decimal `json:"progress_percentage"`
	InterestRate       decimal.Decimal `json:"interest_rate"`
	TermMonths         int             `json:"term_months"`
	MonthlyPayment     decimal.Decimal `json:"monthly_payment"`
	Status             string          `json:"status"`
	DisbursementDate   *time.Time      `json:"disbursement_date,omitempty"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

type PaymentDTO struct {
	Reference     string          `json:"reference"`
	Amount        decimal.Decimal `json:"amount"`
	AppliedAmount decimal.Decimal `json:"applied_amount"`
	Method        string          `json:"method"`
	State         string          `json:"state"`
	Status        string          `json:"status,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
}

// LoanDetailDTO is the loan with its payment history and repayment schedule.
type LoanDetailDTO struct {
	LoanDTO
	Payments []PaymentDTO       `json:"payments"`
	Schedule []loan.Installment `json:"payment_schedule"`
}

func toDTO(l *loan.Loan) LoanDTO {
	return LoanDTO{
		LoanID:             l.Code,
		CustomerID:         l.CustomerID,
		OriginalAmount:     l.Principal,
		OutstandingBalance: l.OutstandingBalance,
		PaidAmount:         l.PaidAmount(),
		ProgressPercentage: l.ProgressPercentage(),
		InterestRate:       l.InterestRate,
		TermMonths:         l.TermMonths,
		MonthlyPayment:     l.MonthlyPayment(),
		Status:             string(l.Status),
		DisbursementDate:   l.DisbursementDate,
		CompletedAt:        l.CompletedAt,
		CreatedAt:          l.CreatedAt,
	}
}

func toPaymentDTO(t *transaction.Transaction) PaymentDTO {
	return PaymentDTO{
		Reference:     t.Reference,
		Amount:        t.Amount,
		AppliedAmount: t.AppliedAmount,
		Method:        t.Method,
		State:         string(t.State),
		Status:        t.RawStatus,
		CreatedAt:     t.CreatedAt,
		PaidAt:        t.PaidAt,
	}
}
