package transaction

import (
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindLoanPayment Kind = "loan_payment"
	KindGeneral     Kind = "general"
)

// Transaction is one payment attempt against the mobile-money gateway.
type Transaction struct {
	ID         uint64  `gorm:"primaryKey;column:id" json:"-"`
	Reference  string  `gorm:"size:100;uniqueIndex:ux_transactions_reference;not null" json:"reference"`
	LoanID     *uint64 `gorm:"index:idx_transactions_loan_state" json:"-"`
	LoanCode   string  `gorm:"size:40" json:"loan_id,omitempty"`
	CustomerID string  `gorm:"size:32;index" json:"customer_id,omitempty"`
	Kind       Kind    `gorm:"size:20;not null;default:'loan_payment'" json:"transaction_type"`

	PhoneNumber   string          `gorm:"size:20;not null" json:"phone_number"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	AppliedAmount decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"applied_amount"`
	Method        string          `gorm:"size:20;not null" json:"method"`

	State     State  `gorm:"size:20;not null;default:'created';index:idx_transactions_loan_state" json:"state"`
	RawStatus string `gorm:"size:50" json:"status"`

	// Gateway correlation handles.
	PollToken        string `gorm:"type:text" json:"poll_url,omitempty"`
	RedirectURL      string `gorm:"type:text" json:"redirect_url,omitempty"`
	OTPToken         string `gorm:"type:text" json:"-"`
	OTPReference     string `gorm:"size:100" json:"otp_reference,omitempty"`
	GatewayReference string `gorm:"size:100" json:"gateway_reference,omitempty"`

	Instructions  string `gorm:"type:text" json:"instructions,omitempty"`
	FailureReason string `gorm:"type:text" json:"failure_reason,omitempty"`
	Notes         string `gorm:"type:text" json:"notes,omitempty"`

	// Opaque gateway payloads, kept for audit.
	DispatchResult  string `gorm:"type:text" json:"-"`
	PollResult      string `gorm:"type:text" json:"-"`
	CallbackPayload string `gorm:"type:text" json:"-"`
	OTPResponse     string `gorm:"type:text" json:"-"`

	// DispatchAttemptAt is set while a gateway dispatch of a created row is
	// in progress; other dispatchers leave the row alone until it lapses.
	DispatchAttemptAt *time.Time `json:"-"`

	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Transaction) TableName() string { return "transactions" }

func (t *Transaction) Paid() bool { return t.State == StateSettled }

// Filter narrows List; zero values are ignored.
type Filter struct {
	LoanID     *uint64
	CustomerID string
	State      State
	Limit      int
}
