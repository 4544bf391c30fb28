package loan

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusDefaulted Status = "defaulted"
)

type Loan struct {
	ID                 uint64          `gorm:"primaryKey;column:id" json:"-"`
	Code               string          `gorm:"size:40;uniqueIndex:ux_loans_code;not null" json:"loan_id"`
	CustomerID         string          `gorm:"size:32;index:idx_loans_customer;not null" json:"customer_id"`
	Principal          decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"original_amount"`
	OutstandingBalance decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"outstanding_balance"`
	InterestRate       decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"interest_rate"`
	TermMonths         int             `gorm:"not null;default:12" json:"term_months"`
	Status             Status          `gorm:"size:20;not null;default:'active';index:idx_loans_customer" json:"status"`
	DisbursementDate   *time.Time      `gorm:"type:date" json:"disbursement_date,omitempty"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Loan) TableName() string { return "loans" }

// CodeFor renders the human-readable loan code for a surrogate id ("L007").
func CodeFor(id uint64) string { return fmt.Sprintf("L%03d", id) }

func (l *Loan) IsActive() bool { return l.Status == StatusActive }
