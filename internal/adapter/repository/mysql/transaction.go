package mysql

import (
	"context"
	"errors"
	"time"

	txDomain "loanpay-backend/internal/domain/transaction"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxListLimit = 200

type TransactionRepository struct{ db *gorm.DB }

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

var _ txDomain.Repository = (*TransactionRepository)(nil)

func (r *TransactionRepository) Create(ctx context.Context, t *txDomain.Transaction) error {
	err := r.db.WithContext(ctx).Create(t).Error
	if errors.Is(translate(r.db, err), gorm.ErrDuplicatedKey) {
		return txDomain.ErrDuplicateReference
	}
	return err
}

// SaveIfState writes every column of t, guarded by the state it was read in.
func (r *TransactionRepository) SaveIfState(ctx context.Context, t *txDomain.Transaction, expected txDomain.State) error {
	res := r.db.WithContext(ctx).
		Model(t).
		Where("state = ?", expected).
		Select("*").
		Omit("id", "created_at").
		Updates(t)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return txDomain.ErrStaleState
	}
	return nil
}

func (r *TransactionRepository) GetByReference(ctx context.Context, reference string) (*txDomain.Transaction, error) {
	return r.first(r.db.WithContext(ctx).Where("reference = ?", reference))
}

func (r *TransactionRepository) GetByReferenceForUpdate(ctx context.Context, reference string) (*txDomain.Transaction, error) {
	return r.first(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("reference = ?", reference))
}

func (r *TransactionRepository) ExistsByReference(ctx context.Context, reference string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&txDomain.Transaction{}).Where("reference = ?", reference).Count(&n).Error
	return n > 0, err
}

func (r *TransactionRepository) ListInFlightByLoan(ctx context.Context, loanID uint64, since time.Time) ([]txDomain.Transaction, error) {
	var out []txDomain.Transaction
	err := r.db.WithContext(ctx).
		Where("loan_id = ? AND state IN ? AND created_at >= ?", loanID, txDomain.InFlight, since).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

func (r *TransactionRepository) List(ctx context.Context, f txDomain.Filter) ([]txDomain.Transaction, error) {
	q := r.db.WithContext(ctx).Model(&txDomain.Transaction{})
	if f.LoanID != nil {
		q = q.Where("loan_id = ?", *f.LoanID)
	}
	if f.CustomerID != "" {
		q = q.Where("customer_id = ?", f.CustomerID)
	}
	if f.State != "" {
		q = q.Where("state = ?", f.State)
	}
	limit := f.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	var out []txDomain.Transaction
	err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&out).Error
	return out, err
}

// translate maps driver errors onto gorm's portable ones (duplicate key, ...)
// whether or not the connection was opened with TranslateError.
func translate(db *gorm.DB, err error) error {
	if err == nil {
		return nil
	}
	if tr, ok := db.Dialector.(gorm.ErrorTranslator); ok {
		return tr.Translate(err)
	}
	return err
}

func (r *TransactionRepository) first(q *gorm.DB) (*txDomain.Transaction, error) {
	var out txDomain.Transaction
	if err := q.First(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, txDomain.ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}
