package mysql

import (
	"context"
	"errors"
	"testing"
	"time"

	loanDomain "loanpay-backend/internal/domain/loan"
	txDomain "loanpay-backend/internal/domain/transaction"
	"loanpay-backend/internal/domain/uow"

	"github.com/shopspring/decimal"
)

func TestGormUoW_WithinTx_Commit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	guow := NewGormUoW(db)
	loanRepo := NewLoanRepository(db)
	txRepo := NewTransactionRepository(db)

	err := guow.WithinTx(ctx, func(r uow.Repos) error {
		l := makeLoan("L100", "BR-1")
		if err := r.Loans.Create(ctx, l); err != nil {
			return err
		}
		if l.ID == 0 {
			t.Fatalf("loan auto ID not set")
		}
		return r.Transactions.Create(ctx, makeTx("REF-COMMIT", &l.ID, txDomain.StateCreated, time.Now().UTC()))
	})
	if err != nil {
		t.Fatalf("WithinTx commit err: %v", err)
	}

	if _, err := loanRepo.GetByCode(ctx, "L100"); err != nil {
		t.Fatalf("loan not visible after commit: %v", err)
	}
	if _, err := txRepo.GetByReference(ctx, "REF-COMMIT"); err != nil {
		t.Fatalf("transaction not visible after commit: %v", err)
	}
}

func TestGormUoW_WithinTx_Rollback(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	guow := NewGormUoW(db)
	loanRepo := NewLoanRepository(db)
	txRepo := NewTransactionRepository(db)

	sentinel := errors.New("boom")
	_ = guow.WithinTx(ctx, func(r uow.Repos) error {
		l := makeLoan("L101", "BR-2")
		if err := r.Loans.Create(ctx, l); err != nil {
			return err
		}
		if err := r.Transactions.Create(ctx, makeTx("REF-ROLL", &l.ID, txDomain.StateCreated, time.Now().UTC())); err != nil {
			return err
		}
		return sentinel // force rollback
	})

	if _, err := loanRepo.GetByCode(ctx, "L101"); !errors.Is(err, loanDomain.ErrNotFound) {
		t.Fatalf("expected loan not found after rollback, got %v", err)
	}
	if _, err := txRepo.GetByReference(ctx, "REF-ROLL"); !errors.Is(err, txDomain.ErrNotFound) {
		t.Fatalf("expected transaction not found after rollback, got %v", err)
	}
}

func TestGormUoW_WithinLoanTx_Commit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	guow := NewGormUoW(db)
	loanRepo := NewLoanRepository(db)

	if err := loanRepo.Create(ctx, makeLoan("L102", "BR-3")); err != nil {
		t.Fatalf("seed loan: %v", err)
	}

	err := guow.WithinLoanTx(ctx, "L102", func(r uow.Repos, l *loanDomain.Loan) error {
		if l == nil || l.Code != "L102" || !l.IsActive() {
			t.Fatalf("unexpected loan passed to fn: %+v", l)
		}
		if _, err := l.ApplyPayment(decimal.NewFromInt(1000), time.Now()); err != nil {
			return err
		}
		return r.Loans.Save(ctx, l)
	})
	if err != nil {
		t.Fatalf("WithinLoanTx commit err: %v", err)
	}

	got, err := loanRepo.GetByCode(ctx, "L102")
	if err != nil {
		t.Fatalf("GetByCode post-commit: %v", err)
	}
	if got.Status != loanDomain.StatusCompleted || !got.OutstandingBalance.IsZero() || got.CompletedAt == nil {
		t.Fatalf("loan not completed: %+v", got)
	}
}

func TestGormUoW_WithinLoanTx_Rollback(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	guow := NewGormUoW(db)
	loanRepo := NewLoanRepository(db)

	if err := loanRepo.Create(ctx, makeLoan("L103", "BR-4")); err != nil {
		t.Fatalf("seed loan: %v", err)
	}

	sentinel := errors.New("stop")
	_ = guow.WithinLoanTx(ctx, "L103", func(r uow.Repos, l *loanDomain.Loan) error {
		if _, err := l.ApplyPayment(decimal.NewFromInt(400), time.Now()); err != nil {
			return err
		}
		if err := r.Loans.Save(ctx, l); err != nil {
			return err
		}
		return sentinel // force rollback
	})

	got, err := loanRepo.GetByCode(ctx, "L103")
	if err != nil {
		t.Fatalf("post-rollback GetByCode: %v", err)
	}
	if !got.OutstandingBalance.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("expected untouched balance after rollback, got %s", got.OutstandingBalance)
	}
}

func TestGormUoW_WithinLoanTx_LoanNotFound(t *testing.T) {
	db := openTestDB(t)
	guow := NewGormUoW(db)

	err := guow.WithinLoanTx(context.Background(), "L404", func(uow.Repos, *loanDomain.Loan) error {
		t.Fatalf("callback should not be called when loan missing")
		return nil
	})
	if !errors.Is(err, loanDomain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGormUoW_WithinTransactionTx(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	guow := NewGormUoW(db)
	txRepo := NewTransactionRepository(db)

	if err := txRepo.Create(ctx, makeTx("REF-LOCK", nil, txDomain.StateDispatched, time.Now().UTC())); err != nil {
		t.Fatal(err)
	}

	err := guow.WithinTransactionTx(ctx, "REF-LOCK", func(r uow.Repos, tx *txDomain.Transaction) error {
		tx.State = txDomain.StateFailed
		tx.FailureReason = "Cancelled"
		return r.Transactions.SaveIfState(ctx, tx, txDomain.StateDispatched)
	})
	if err != nil {
		t.Fatalf("WithinTransactionTx: %v", err)
	}
	got, _ := txRepo.GetByReference(ctx, "REF-LOCK")
	if got.State != txDomain.StateFailed || got.FailureReason != "Cancelled" {
		t.Fatalf("unexpected row: %+v", got)
	}

	err = guow.WithinTransactionTx(ctx, "REF-NOPE", func(uow.Repos, *txDomain.Transaction) error {
		t.Fatalf("callback should not run for unknown reference")
		return nil
	})
	if !errors.Is(err, txDomain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
