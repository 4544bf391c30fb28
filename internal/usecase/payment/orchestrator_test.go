package payment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"loanpay-backend/internal/adapter/repository/mysql"
	"loanpay-backend/internal/domain/gateway"
	domain "loanpay-backend/internal/domain/loan"
	"loanpay-backend/internal/domain/transaction"
	"loanpay-backend/internal/domain/uow"
	"loanpay-backend/internal/testutil/gatewaymock"
	"loanpay-backend/internal/testutil/transactionmock"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	customer = "cccccccccccccccccccccccccccccccc"
	phone    = "0771234567"
)

type fixture struct {
	db    *gorm.DB
	gw    *gatewaymock.Gateway
	loans *mysql.LoanRepository
	txs   *mysql.TransactionRepository
	orch  *Orchestrator

	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(&domain.Loan{}, &transaction.Transaction{}); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}

	f := &fixture{
		db:    db,
		gw:    &gatewaymock.Gateway{},
		loans: mysql.NewLoanRepository(db),
		txs:   mysql.NewTransactionRepository(db),
		now:   time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	f.gw.DispatchFn = func(_ context.Context, c gateway.Charge, _ string) (*gateway.Handle, error) {
		return &gateway.Handle{PollToken: "poll/" + c.Reference, RawStatus: "Sent"}, nil
	}
	f.orch = NewOrchestrator(mysql.NewGormUoW(db), f.loans, f.txs, f.gw, DefaultConfig(), WithClock(f.clock))
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) seedLoan(t *testing.T, code, balance string) *domain.Loan {
	t.Helper()
	l := &domain.Loan{
		Code:               code,
		CustomerID:         customer,
		Principal:          decimal.RequireFromString("1000.00"),
		OutstandingBalance: decimal.RequireFromString(balance),
		InterestRate:       decimal.RequireFromString("10.00"),
		TermMonths:         6,
		Status:             domain.StatusActive,
	}
	if err := f.loans.Create(context.Background(), l); err != nil {
		t.Fatalf("seed loan: %v", err)
	}
	return l
}

func (f *fixture) loan(t *testing.T, code string) *domain.Loan {
	t.Helper()
	l, err := f.loans.GetByCode(context.Background(), code)
	if err != nil {
		t.Fatalf("GetByCode: %v", err)
	}
	return l
}

func (f *fixture) tx(t *testing.T, ref string) *transaction.Transaction {
	t.Helper()
	row, err := f.txs.GetByReference(context.Background(), ref)
	if err != nil {
		t.Fatalf("GetByReference: %v", err)
	}
	return row
}

func (f *fixture) pay(t *testing.T, loanCode, amount, method string) *PaymentDTO {
	t.Helper()
	dto, err := f.orch.Initiate(context.Background(), InitiateInput{
		LoanCode:   loanCode,
		CustomerID: customer,
		Amount:     decimal.RequireFromString(amount),
		Phone:      phone,
		Method:     method,
	})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	return dto
}

func paidPoll(context.Context, string) (*gateway.Status, error) {
	return &gateway.Status{RawStatus: "Paid", Paid: true}, nil
}

func paidCallback(ref string) []byte {
	return []byte("reference=" + ref + "&paynowreference=99887&status=Paid&pollurl=poll%2F" + ref)
}

const formType = "application/x-www-form-urlencoded"

func assertBalance(t *testing.T, l *domain.Loan, want string) {
	t.Helper()
	if !l.OutstandingBalance.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("outstanding balance = %s, want %s", l.OutstandingBalance, want)
	}
}

func TestInitiate_DispatchesLoanPayment(t *testing.T) {
	f := newFixture(t)
	f.seedLoan(t, "L001", "1000.00")

	dto := f.pay(t, "L001", "300", "ecocash")

	if dto.State != string(transaction.StateDispatched) || dto.LoanID != "L001" || dto.Type != string(transaction.KindLoanPayment) {
		t.Fatalf("unexpected dto: %+v", dto)
	}
	if !strings.HasSuffix(dto.Reference, ".L001") || !strings.Contains(dto.Reference, "sl00a.20250301100000") {
		t.Fatalf("reference = %q", dto.Reference)
	}
	if dto.Instructions == "" {
		t.Fatalf("expected payment instructions")
	}
	assertBalance(t, f.loan(t, "L001"), "1000.00")

	row := f.tx(t, dto.Reference)
	if row.PollToken != "poll/"+dto.Reference || row.DispatchResult == "" {
		t.Fatalf("gateway handles not recorded: %+v", row)
	}
}

func TestPollStatus_AppliesOnce(t *testing.T) {
	f := newFixture(t)
	f.seedLoan(t, "L001", "1000.00")
	f.gw.PollFn = paidPoll
	ref := f.pay(t, "L001", "300", "ecocash").Reference
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		dto, err := f.orch.PollStatus(ctx, ref, customer)
		if err != nil {
			t.Fatalf("PollStatus #%d: %v", i+1, err)
		}
		if !dto.Paid || dto.LoanBalance == nil || !dto.LoanBalance.Equal(decimal.NewFromInt(700)) {
			t.Fatalf("poll #%d dto: %+v", i+1, dto)
		}
	}
	if n := f.gw.Calls("poll"); n != 1 {
		t.Fatalf("settled transaction must not be polled again, polls = %d", n)
	}
	assertBalance(t, f.loan(t, "L001"), "700.00")

	row := f.tx(t, ref)
	if !row.AppliedAmount.Equal(decimal.NewFromInt(300)) || row.PaidAt == nil || row.CompletedAt == nil {
		t.Fatalf("settled row: %+v", row)
	}
}

func TestHandleCallback_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.seedLoan(t, "L001", "1000.00")
	ref := f.pay(t, "L001", "250", "ecocash").Reference
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := f.orch.HandleCallback(ctx, formType, paidCallback(ref)); err != nil {
			t.Fatalf("HandleCallback #%d: %v", i+1, err)
		}
	}

	assertBalance(t, f.loan(t, "L001"), "750.00")
	row := f.tx(t, ref)
	if row.State != transaction.StateSettled || row.GatewayReference != "99887" {
		t.Fatalf("row after callbacks: %+v", row)
	}
	if row.CallbackPayload != string(paidCallback(ref)) {
		t.Fatalf("callback payload not stored verbatim: %q", row.CallbackPayload)
	}
}

func TestPollAndCallbackRace_AppliesOnce(t *testing.T) {
	f := newFixture(t)
	f.seedLoan(t, "L001", "1000.00")
	f.gw.PollFn = paidPoll
	ref := f.pay(t, "L001", "400", "ecocash").Reference
	ctx := context.Background()

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := f.orch.PollStatus(ctx, ref, customer); err != nil {
				failures.Add(1)
			}
		}()
		go func() {
			defer wg.Done()
			if err := f.orch.HandleCallback(ctx, formType, paidCallback(ref)); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	if n := failures.Load(); n != 0 {
		t.Fatalf("%d concurrent calls failed", n)
	}
	assertBalance(t, f.loan(t, "L001"), "600.00")
	if row := f.tx(t, ref); row.State != transaction.StateSettled || !row.AppliedAmount.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("row after race: %+v", row)
	}
}

func TestPayInFull_CompletesLoan(t *testing.T) {
	f := newFixture(t)
	f.seedLoan(t, "L001", "1000.00")
	f.gw.PollFn = paidPoll
	ref := f.pay(t, "L001", "1000", "innbucks").Reference

	dto, err := f.orch.PollStatus(context.Background(), ref, customer)
	if err != nil {
		t.Fatalf("PollStatus: %v", err)
	}
	if dto.LoanStatus != string(domain.StatusCompleted) || !dto.LoanBalance.IsZero() {
		t.Fatalf("dto: %+v", dto)
	}
	l := f.loan(t, "L001")
	assertBalance(t, l, "0")
	if l.Status != domain.StatusCompleted || l.CompletedAt == nil {
		t.Fatalf("loan not completed: %+v", l)
	}

	_, err = f.orch.Initiate(context.Background(), InitiateInput{
		LoanCode: "L001", CustomerID: customer, Amount: decimal.NewFromInt(10), Phone: phone, Method: "ecocash",
	})
	if !errors.Is(err, domain.ErrAlreadySettled) {
		t.Fatalf("payment on a completed loan: err = %v", err)
	}
}

func TestInitiate_AmountExceedsBalance(t *testing.T) {
	f := newFixture(t)
	f.seedLoan(t, "L001", "750.00")

	_, err := f.orch.Initiate(context.Background(), InitiateInput{
		LoanCode: "L001", CustomerID: customer, Amount: decimal.NewFromInt(800), Phone: phone, Method: "ecocash",
	})
	var ex *AmountExceedsBalanceError
	if !errors.Is(err, ErrAmountExceedsBalance) || !errors.As(err, &ex) {
		t.Fatalf("err = %v", err)
	}
	if !ex.Available().Equal(decimal.NewFromInt(750)) {
		t.Fatalf("available = %s", ex.Available())
	}

	var count int64
	f.db.Model(&transaction.Transaction{}).Count(&count)
	if count != 0 || f.gw.Calls("dispatch") != 0 {
		t.Fatalf("refused payment left traces: rows=%d dispatches=%d", count, f.gw.Calls("dispatch"))
	}
}

func TestInitiate_ReservesInFlightAmounts(t *testing.T) {
	f := newFixture(t)
	f.seedLoan(t, "L001", "1000.00")
	f.pay(t, "L001", "600", "ecocash")

	in := InitiateInput{LoanCode: "L001", CustomerID: customer, Amount: decimal.NewFromInt(500), Phone: phone, Method: "ecocash"}
	_, err := f.orch.Initiate(context.Background(), in)
	var ex *AmountExceedsBalanceError
	if !errors.As(err, &ex) || !ex.Reserved.Equal(decimal.NewFromInt(600)) {
		t.Fatalf("expected reservation refusal, err = %v", err)
	}

	// the first payment stops holding the balance once it ages out
	f.advance(25 * time.Hour)
	if _, err := f.orch.Initiate(context.Background(), in); err != nil {
		t.Fatalf("Initiate after window: %v", err)
	}
}

func TestPollStatus_GatewayTimeoutThenPaid(t *testing.T) {
	f := newFixture(t)
	f.seedLoan(t, "L001", "1000.00")
	var polls atomic.Int32
	f.gw.PollFn = func(ctx context.Context, token string) (*gateway.Status, error) {
		if polls.Add(1) <= 2 {
			return nil, gateway.ErrTimeout
		}
		return paidPoll(ctx, token)
	}
	ref := f.pay(t, "L001", "200", "ecocash").Reference
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := f.orch.PollStatus(ctx, ref, customer); !errors.Is(err, gateway.ErrTimeout) {
			t.Fatalf("poll #%d err = %v", i+1, err)
		}
		if row := f.tx(t, ref); row.State != transaction.StateDispatched {
			t.Fatalf("timeout changed state to %s", row.State)
		}
	}

	dto, err := f.orch.PollStatus(ctx, ref, customer)
	if err != nil || !dto.Paid {
		t.Fatalf("third poll: %+v, %v", dto, err)
	}
	assertBalance(t, f.loan(t, "L001"), "800.00")
}

func omariGateway(f *fixture) {
	f.gw.DispatchFn = func(_ context.Context, c gateway.Charge, channel string) (*gateway.Handle, error) {
		return &gateway.Handle{
			PollToken:    "poll/" + c.Reference,
			OTPToken:     "otp/" + c.Reference,
			OTPReference: "OTP_" + c.Reference,
			RawStatus:    "Sent",
		}, nil
	}
	f.gw.SubmitOTPFn = func(_ context.Context, _, code string) (*gateway.Status, error) {
		switch code {
		case "123456":
			return &gateway.Status{RawStatus: "Paid", Paid: true}, nil
		case "000000":
			return nil, gateway.ErrOtpExpired
		}
		return nil, gateway.ErrOtpRejected
	}
}

func TestSubmitOTP_WrongThenRight(t *testing.T) {
	f := newFixture(t)
	f.seedLoan(t, "L001", "1000.00")
	omariGateway(f)
	dto := f.pay(t, "L001", "150", "omari")
	if dto.State != string(transaction.StateAwaitingOTP) || !dto.RequiresOTP || dto.OTPReference == "" {
		t.Fatalf("omari payment should await an OTP: %+v", dto)
	}
	ctx := context.Background()

	if _, err := f.orch.SubmitOTP(ctx, dto.Reference, "12ab56", customer); !errors.Is(err, ErrValidation) {
		t.Fatalf("malformed otp err = %v", err)
	}
	if _, err := f.orch.SubmitOTP(ctx, dto.Reference, "654321", customer); !errors.Is(err, gateway.ErrOtpRejected) {
		t.Fatalf("wrong otp err = %v", err)
	}
	if row := f.tx(t, dto.Reference); row.State != transaction.StateAwaitingOTP {
		t.Fatalf("wrong otp moved state to %s", row.State)
	}

	got, err := f.orch.SubmitOTP(ctx, dto.Reference, "123456", customer)
	if err != nil || !got.Paid {
		t.Fatalf("right otp: %+v, %v", got, err)
	}
	assertBalance(t, f.loan(t, "L001"), "850.00")

	if _, err := f.orch.SubmitOTP(ctx, dto.Reference, "123456", customer); !errors.Is(err, transaction.ErrInvalidState) {
		t.Fatalf("otp on settled payment err = %v", err)
	}
}

func TestSubmitOTP_ExpiredFails(t *testing.T) {
	f := newFixture(t)
	f.seedLoan(t, "L001", "1000.00")
	omariGateway(f)
	ref := f.pay(t, "L001", "150", "omari").Reference

	_, err := f.orch.SubmitOTP(context.Background(), ref, "000000", customer)
	if !errors.Is(err, gateway.ErrOtpExpired) {
		t.Fatalf("err = %v", err)
	}
	if row := f.tx(t, ref); row.State != transaction.StateFailed || row.FailureReason == "" {
		t.Fatalf("expired otp row: %+v", row)
	}
	assertBalance(t, f.loan(t, "L001"), "1000.00")
}

func TestHandleCallback_UnknownAndMalformed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.orch.HandleCallback(ctx, formType, paidCallback("nope")); err != nil {
		t.Fatalf("unknown reference should be discarded, err = %v", err)
	}
	if err := f.orch.HandleCallback(ctx, "application/json", []byte("{not json")); !errors.Is(err, gateway.ErrMalformedCallback) {
		t.Fatalf("malformed err = %v", err)
	}
}

func TestHandleCallback_TerminalStatesStick(t *testing.T) {
	f := newFixture(t)
	f.seedLoan(t, "L001", "1000.00")
	ctx := context.Background()

	settled := f.pay(t, "L001", "100", "ecocash").Reference
	if err := f.orch.HandleCallback(ctx, formType, paidCallback(settled)); err != nil {
		t.Fatalf("paid callback: %v", err)
	}
	cancel := []byte("reference=" + settled + "&status=Cancelled")
	if err := f.orch.HandleCallback(ctx, formType, cancel); err != nil {
		t.Fatalf("late cancel: %v", err)
	}
	if row := f.tx(t, settled); row.State != transaction.StateSettled {
		t.Fatalf("settled row moved to %s", row.State)
	}

	failed := f.pay(t, "L001", "100", "ecocash").Reference
	if err := f.orch.HandleCallback(ctx, formType, []byte("reference="+failed+"&status=Cancelled")); err != nil {
		t.Fatalf("cancel callback: %v", err)
	}
	if err := f.orch.HandleCallback(ctx, formType, paidCallback(failed)); err != nil {
		t.Fatalf("late paid: %v", err)
	}
	row := f.tx(t, failed)
	if row.State != transaction.StateFailed || !strings.Contains(row.Notes, "needs review") {
		t.Fatalf("failed row after paid callback: %+v", row)
	}
	assertBalance(t, f.loan(t, "L001"), "900.00")
}

func TestInitiate_RejectedDispatchFails(t *testing.T) {
	f := newFixture(t)
	l := f.seedLoan(t, "L001", "1000.00")
	f.gw.DispatchFn = func(context.Context, gateway.Charge, string) (*gateway.Handle, error) {
		return nil, gateway.Rejected("Invalid mobile number")
	}

	_, err := f.orch.Initiate(context.Background(), InitiateInput{
		LoanCode: "L001", CustomerID: customer, Amount: decimal.NewFromInt(100), Phone: phone, Method: "ecocash",
	})
	if !errors.Is(err, gateway.ErrRejected) {
		t.Fatalf("err = %v", err)
	}

	rows, err := f.txs.List(context.Background(), transaction.Filter{LoanID: &l.ID})
	if err != nil || len(rows) != 1 {
		t.Fatalf("List: %v, %d rows", err, len(rows))
	}
	if rows[0].State != transaction.StateFailed || rows[0].FailureReason != "Invalid mobile number" {
		t.Fatalf("rejected row: %+v", rows[0])
	}
}

func TestInitiate_TransientDispatchRetriedOnPoll(t *testing.T) {
	f := newFixture(t)
	l := f.seedLoan(t, "L001", "1000.00")
	var attempts atomic.Int32
	f.gw.DispatchFn = func(_ context.Context, c gateway.Charge, _ string) (*gateway.Handle, error) {
		if attempts.Add(1) == 1 {
			return nil, gateway.ErrUnavailable
		}
		return &gateway.Handle{PollToken: "poll/" + c.Reference, RawStatus: "Sent"}, nil
	}

	pending, err := f.orch.Initiate(context.Background(), InitiateInput{
		LoanCode: "L001", CustomerID: customer, Amount: decimal.NewFromInt(100), Phone: phone, Method: "ecocash",
	})
	if !errors.Is(err, gateway.ErrUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if pending == nil || pending.State != string(transaction.StateCreated) {
		t.Fatalf("transient failure should hand back the created payment: %+v", pending)
	}
	rows, _ := f.txs.List(context.Background(), transaction.Filter{LoanID: &l.ID})
	if len(rows) != 1 || rows[0].State != transaction.StateCreated {
		t.Fatalf("transient failure should leave a created row: %+v", rows)
	}

	dto, err := f.orch.PollStatus(context.Background(), rows[0].Reference, customer)
	if err != nil || dto.State != string(transaction.StateDispatched) {
		t.Fatalf("re-dispatch on poll: %+v, %v", dto, err)
	}
	if f.gw.Calls("dispatch") != 2 || f.gw.Calls("poll") != 0 {
		t.Fatalf("dispatch=%d poll=%d", f.gw.Calls("dispatch"), f.gw.Calls("poll"))
	}
}

func TestPollStatus_DoesNotRedispatchWhileInitiateInFlight(t *testing.T) {
	f := newFixture(t)
	f.seedLoan(t, "L001", "1000.00")
	entered := make(chan string, 1)
	release := make(chan struct{})
	f.gw.DispatchFn = func(_ context.Context, c gateway.Charge, _ string) (*gateway.Handle, error) {
		select {
		case entered <- c.Reference:
			<-release
		default:
		}
		return &gateway.Handle{PollToken: "poll/" + c.Reference, RawStatus: "Sent"}, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.orch.Initiate(context.Background(), InitiateInput{
			LoanCode: "L001", CustomerID: customer, Amount: decimal.NewFromInt(100), Phone: phone, Method: "ecocash",
		})
		done <- err
	}()
	ref := <-entered

	dto, pollErr := f.orch.PollStatus(context.Background(), ref, customer)
	callsDuringDispatch := f.gw.Calls("dispatch")
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	if pollErr != nil || dto.State != string(transaction.StateCreated) {
		t.Fatalf("poll during dispatch: %+v, %v", dto, pollErr)
	}
	if callsDuringDispatch != 1 || f.gw.Calls("dispatch") != 1 {
		t.Fatalf("charge pushed twice: during=%d total=%d", callsDuringDispatch, f.gw.Calls("dispatch"))
	}
	if row := f.tx(t, ref); row.State != transaction.StateDispatched || row.DispatchAttemptAt != nil {
		t.Fatalf("row after dispatch: state=%s claim=%v", row.State, row.DispatchAttemptAt)
	}
}

func TestPollStatus_DispatchClaimLapses(t *testing.T) {
	cases := []struct {
		name      string
		claimAge  time.Duration
		claimed   bool
		wantCalls int
		wantState transaction.State
	}{
		{"unclaimed row is dispatched", 0, false, 1, transaction.StateDispatched},
		{"fresh claim is respected", time.Second, true, 0, transaction.StateCreated},
		{"stale claim is taken over", time.Minute, true, 1, transaction.StateDispatched},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			now := f.clock()
			row := &transaction.Transaction{
				Reference:   "abcsl00a.20250301100000.GEN",
				CustomerID:  customer,
				Kind:        transaction.KindGeneral,
				PhoneNumber: phone,
				Amount:      decimal.NewFromInt(25),
				Method:      "ecocash",
				State:       transaction.StateCreated,
				CreatedAt:   now,
			}
			if tc.claimed {
				at := now.Add(-tc.claimAge)
				row.DispatchAttemptAt = &at
			}
			if err := f.txs.Create(context.Background(), row); err != nil {
				t.Fatalf("Create: %v", err)
			}

			dto, err := f.orch.PollStatus(context.Background(), row.Reference, customer)
			if err != nil || dto.State != string(tc.wantState) {
				t.Fatalf("PollStatus: %+v, %v", dto, err)
			}
			if got := f.gw.Calls("dispatch"); got != tc.wantCalls {
				t.Fatalf("dispatch calls = %d, want %d", got, tc.wantCalls)
			}
		})
	}
}

func TestPollStatus_SharedPollOutlivesCanceledCaller(t *testing.T) {
	f := newFixture(t)
	f.seedLoan(t, "L001", "1000.00")
	ref := f.pay(t, "L001", "300", "ecocash").Reference

	entered := make(chan struct{})
	release := make(chan struct{})
	sharedCtxErr := make(chan error, 1)
	f.gw.PollFn = func(ctx context.Context, token string) (*gateway.Status, error) {
		close(entered)
		<-release
		sharedCtxErr <- ctx.Err()
		return paidPoll(ctx, token)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.orch.PollStatus(ctx, ref, customer)
		done <- err
	}()
	<-entered
	cancel()
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first caller: %v", err)
	}

	if err := <-sharedCtxErr; err != nil {
		t.Fatalf("shared poll saw the caller's cancellation: %v", err)
	}
	dto, err := f.orch.PollStatus(context.Background(), ref, customer)
	if err != nil || !dto.Paid {
		t.Fatalf("second caller: %+v, %v", dto, err)
	}
	assertBalance(t, f.loan(t, "L001"), "700.00")
	if f.gw.Calls("poll") != 1 {
		t.Fatalf("poll calls = %d", f.gw.Calls("poll"))
	}
}

func TestInsert_RetriesReferenceTakenConcurrently(t *testing.T) {
	cases := []struct {
		name        string
		duplicates  int
		wantCreates int
		wantErr     error
	}{
		{"first reference free", 0, 1, nil},
		{"lost one race", 1, 2, nil},
		{"every attempt taken", 99, 5, transaction.ErrReferenceConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var creates int
			repo := &transactionmock.Repo{
				ExistsByReferenceFn: func(context.Context, string) (bool, error) { return false, nil },
				CreateFn: func(context.Context, *transaction.Transaction) error {
					creates++
					if creates <= tc.duplicates {
						return transaction.ErrDuplicateReference
					}
					return nil
				},
			}
			o := NewOrchestrator(nil, nil, nil, nil, DefaultConfig())
			row := &transaction.Transaction{}

			err := o.insert(context.Background(), uow.Repos{Transactions: repo}, row, "L001", time.Now())
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if creates != tc.wantCreates {
				t.Fatalf("creates = %d, want %d", creates, tc.wantCreates)
			}
			if (tc.wantErr == nil) != (row.Reference != "") {
				t.Fatalf("reference = %q", row.Reference)
			}
		})
	}
}

func TestInitiate_GeneralPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dto, err := f.orch.Initiate(ctx, InitiateInput{Amount: decimal.RequireFromString("42.50"), Phone: "+263771234567", Method: "OneMoney"})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if dto.Type != string(transaction.KindGeneral) || !strings.HasSuffix(dto.Reference, ".GEN") || dto.Method != "innbucks" {
		t.Fatalf("general payment dto: %+v", dto)
	}

	if err := f.orch.HandleCallback(ctx, formType, paidCallback(dto.Reference)); err != nil {
		t.Fatalf("HandleCallback: %v", err)
	}
	row := f.tx(t, dto.Reference)
	if row.State != transaction.StateSettled || !row.AppliedAmount.Equal(row.Amount) {
		t.Fatalf("general payment row: %+v", row)
	}
}

func TestInitiate_Validation(t *testing.T) {
	f := newFixture(t)
	f.seedLoan(t, "L001", "1000.00")

	cases := []struct {
		name  string
		in    InitiateInput
		field string
	}{
		{"zero amount", InitiateInput{Amount: decimal.Zero, Phone: phone, Method: "ecocash"}, "amount"},
		{"over cap", InitiateInput{Amount: decimal.NewFromInt(10001), Phone: phone, Method: "ecocash"}, "amount"},
		{"three decimals", InitiateInput{Amount: decimal.RequireFromString("1.005"), Phone: phone, Method: "ecocash"}, "amount"},
		{"bad phone", InitiateInput{Amount: decimal.NewFromInt(5), Phone: "12345", Method: "ecocash"}, "phone_number"},
		{"bad method", InitiateInput{Amount: decimal.NewFromInt(5), Phone: phone, Method: "paypal"}, "method"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.in.LoanCode = "L001"
			_, err := f.orch.Initiate(context.Background(), tc.in)
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Fields[tc.field] == "" {
				t.Fatalf("err = %v, want a %s field error", err, tc.field)
			}
		})
	}
	if f.gw.Calls("dispatch") != 0 {
		t.Fatalf("invalid requests reached the gateway")
	}
}

func TestInitiate_ForeignLoanNotFound(t *testing.T) {
	f := newFixture(t)
	f.seedLoan(t, "L001", "1000.00")

	_, err := f.orch.Initiate(context.Background(), InitiateInput{
		LoanCode: "L001", CustomerID: "dddddddddddddddddddddddddddddddd", Amount: decimal.NewFromInt(5), Phone: phone, Method: "ecocash",
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	if _, err := f.orch.Initiate(context.Background(), InitiateInput{
		LoanCode: "L404", Amount: decimal.NewFromInt(5), Phone: phone, Method: "ecocash",
	}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing loan err = %v", err)
	}
}

func TestGetAndList(t *testing.T) {
	f := newFixture(t)
	f.seedLoan(t, "L001", "1000.00")
	first := f.pay(t, "L001", "10", "ecocash")
	f.advance(time.Minute)
	second := f.pay(t, "L001", "20", "ecocash")
	ctx := context.Background()

	got, err := f.orch.Get(ctx, first.Reference, customer)
	if err != nil || got.Reference != first.Reference {
		t.Fatalf("Get: %+v, %v", got, err)
	}
	if _, err := f.orch.Get(ctx, first.Reference, "dddddddddddddddddddddddddddddddd"); !errors.Is(err, transaction.ErrNotFound) {
		t.Fatalf("foreign Get err = %v", err)
	}

	list, err := f.orch.List(ctx, ListInput{LoanCode: "L001", CustomerID: customer})
	if err != nil || len(list) != 2 || list[0].Reference != second.Reference {
		t.Fatalf("List: %+v, %v", list, err)
	}
	if _, err := f.orch.List(ctx, ListInput{State: "bogus"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad state filter err = %v", err)
	}
	none, err := f.orch.List(ctx, ListInput{LoanCode: "L001", State: string(transaction.StateSettled)})
	if err != nil || len(none) != 0 {
		t.Fatalf("settled filter: %+v, %v", none, err)
	}
}
