package payment

import (
	"context"
	"errors"
	"regexp"
	"time"

	"loanpay-backend/internal/domain/gateway"
	"loanpay-backend/internal/domain/loan"
	"loanpay-backend/internal/domain/transaction"
	"loanpay-backend/internal/domain/uow"
	"loanpay-backend/internal/infrastructure/metrics"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	phonePattern = regexp.MustCompile(`^(\+263|0)[0-9]{9}$`)
	otpPattern   = regexp.MustCompile(`^[0-9]{6}$`)
)

type Config struct {
	// MaxAmount caps a single payment.
	MaxAmount decimal.Decimal
	// ReservationWindow is how long an unfinished payment keeps holding
	// part of the loan balance.
	ReservationWindow time.Duration
	// ReferenceAttempts bounds the reference collision retries.
	ReferenceAttempts int
	// DispatchLease is how long a dispatch claim on a created transaction
	// holds off other dispatchers. Keep it above the gateway timeout.
	DispatchLease time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAmount:         decimal.NewFromInt(10000),
		ReservationWindow: 24 * time.Hour,
		ReferenceAttempts: 5,
		DispatchLease:     30 * time.Second,
	}
}

// Orchestrator drives a payment from initiation to settlement. Every ledger
// mutation happens inside a unit of work with the transaction row locked, so
// each transaction is applied to its loan at most once no matter how many
// polls, callbacks or OTP confirmations race for it.
type Orchestrator struct {
	uow     uow.UnitOfWork
	loans   loan.Repository
	txs     transaction.Repository
	gw      gateway.Gateway
	cfg     Config
	metrics metrics.Recorder
	logger  *zap.Logger
	now     func() time.Time

	polls singleflight.Group
}

type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

func WithMetrics(m metrics.Recorder) Option { return func(o *Orchestrator) { o.metrics = m } }

func WithLogger(l *zap.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

func NewOrchestrator(u uow.UnitOfWork, loans loan.Repository, txs transaction.Repository, gw gateway.Gateway, cfg Config, opts ...Option) *Orchestrator {
	if cfg.ReferenceAttempts <= 0 {
		cfg.ReferenceAttempts = 5
	}
	if cfg.DispatchLease <= 0 {
		cfg.DispatchLease = 30 * time.Second
	}
	o := &Orchestrator{
		uow:     u,
		loans:   loans,
		txs:     txs,
		gw:      gw,
		cfg:     cfg,
		metrics: metrics.NoOp{},
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, fn := range opts {
		fn(o)
	}
	o.logger = o.logger.Named("payment")
	return o
}

// Get returns the stored transaction. A non-empty customerID must own it.
func (o *Orchestrator) Get(ctx context.Context, reference, customerID string) (*PaymentDTO, error) {
	t, err := o.txs.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !owns(t, customerID) {
		return nil, transaction.ErrNotFound
	}
	return toDTO(t), nil
}

func (o *Orchestrator) List(ctx context.Context, in ListInput) ([]PaymentDTO, error) {
	f := transaction.Filter{CustomerID: in.CustomerID, Limit: in.Limit}
	if in.State != "" {
		s := transaction.State(in.State)
		if !s.Valid() {
			return nil, &ValidationError{Fields: map[string]string{"state": "unknown state"}}
		}
		f.State = s
	}
	if in.LoanCode != "" {
		l, err := o.loans.GetByCode(ctx, in.LoanCode)
		if err != nil {
			return nil, err
		}
		f.LoanID = &l.ID
	}

	rows, err := o.txs.List(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]PaymentDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *toDTO(&rows[i]))
	}
	return out, nil
}

func (o *Orchestrator) clock() time.Time { return o.now().UTC() }

// withLoanBalance decorates a status response with the loan's current balance.
func (o *Orchestrator) withLoanBalance(ctx context.Context, t *transaction.Transaction) *PaymentDTO {
	dto := toDTO(t)
	if t.LoanID == nil {
		return dto
	}
	l, err := o.loans.GetByID(ctx, *t.LoanID)
	if err != nil {
		o.logger.Warn("loan lookup for status response failed", zap.String("reference", t.Reference), zap.Error(err))
		return dto
	}
	return dto.withLoan(l)
}

func owns(t *transaction.Transaction, customerID string) bool {
	return customerID == "" || t.CustomerID == "" || t.CustomerID == customerID
}

func isTransient(err error) bool {
	return errors.Is(err, gateway.ErrUnavailable) || errors.Is(err, gateway.ErrTimeout)
}
