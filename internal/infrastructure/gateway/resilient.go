package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	gw "loanpay-backend/internal/domain/gateway"
	"loanpay-backend/internal/infrastructure/metrics"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type Config struct {
	// Timeout bounds every single gateway call.
	Timeout time.Duration
	// MaxFailures consecutive transport failures open the breaker.
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
	// HalfOpenRequests is how many trial calls are let through while half-open.
	HalfOpenRequests uint32
}

func DefaultConfig() Config {
	return Config{Timeout: 15 * time.Second, MaxFailures: 5, OpenTimeout: 30 * time.Second, HalfOpenRequests: 1}
}

// Resilient wraps a Gateway with a per-call timeout and a circuit breaker.
// Business rejections count as successful calls for the breaker.
type Resilient struct {
	next    gw.Gateway
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	metrics metrics.Recorder
	logger  *zap.Logger
}

var _ gw.Gateway = (*Resilient)(nil)

func NewResilient(next gw.Gateway, cfg Config, rec metrics.Recorder, logger *zap.Logger) *Resilient {
	if rec == nil {
		rec = metrics.NoOp{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resilient{
		next:    next,
		timeout: cfg.Timeout,
		metrics: rec,
		logger:  logger.Named("gateway"),
	}

	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	r.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, gw.ErrRejected) || errors.Is(err, gw.ErrOtpRejected)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			switch to {
			case gobreaker.StateClosed:
				r.metrics.CircuitState(metrics.CircuitClosed)
			case gobreaker.StateHalfOpen:
				r.metrics.CircuitState(metrics.CircuitHalfOpen)
			case gobreaker.StateOpen:
				r.metrics.CircuitState(metrics.CircuitOpen)
			}
		},
	})
	return r
}

func (r *Resilient) Dispatch(ctx context.Context, c gw.Charge, channel string) (*gw.Handle, error) {
	out, err := r.call(ctx, "dispatch", zap.String("reference", c.Reference), func(ctx context.Context) (any, error) {
		return r.next.Dispatch(ctx, c, channel)
	})
	if err != nil {
		return nil, err
	}
	return out.(*gw.Handle), nil
}

func (r *Resilient) Checkout(ctx context.Context, c gw.Charge) (*gw.Handle, error) {
	out, err := r.call(ctx, "checkout", zap.String("reference", c.Reference), func(ctx context.Context) (any, error) {
		return r.next.Checkout(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return out.(*gw.Handle), nil
}

func (r *Resilient) Poll(ctx context.Context, pollToken string) (*gw.Status, error) {
	out, err := r.call(ctx, "poll", zap.Skip(), func(ctx context.Context) (any, error) {
		return r.next.Poll(ctx, pollToken)
	})
	if err != nil {
		return nil, err
	}
	return out.(*gw.Status), nil
}

func (r *Resilient) SubmitOTP(ctx context.Context, otpToken, code string) (*gw.Status, error) {
	out, err := r.call(ctx, "otp", zap.Skip(), func(ctx context.Context) (any, error) {
		return r.next.SubmitOTP(ctx, otpToken, code)
	})
	if err != nil {
		return nil, err
	}
	return out.(*gw.Status), nil
}

func (r *Resilient) call(ctx context.Context, op string, field zap.Field, fn func(context.Context) (any, error)) (any, error) {
	start := time.Now()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	out, err := r.cb.Execute(func() (any, error) {
		v, err := fn(ctx)
		if err == nil && isNilResult(v) {
			return nil, fmt.Errorf("%w: empty %s response", gw.ErrUnavailable, op)
		}
		return v, classify(ctx, err)
	})
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: circuit %s", gw.ErrUnavailable, r.cb.State())
		}
		outcome := outcomeOf(err)
		r.metrics.GatewayRequest(op, outcome, elapsed)
		lvl := r.logger.Warn
		if outcome == "rejected" || outcome == "otp_rejected" {
			lvl = r.logger.Info
		}
		lvl("gateway call failed",
			zap.String("op", op),
			field,
			zap.String("outcome", outcome),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, err
	}

	r.metrics.GatewayRequest(op, "ok", elapsed)
	return out, nil
}

// classify turns raw transport errors into the gateway taxonomy.
func classify(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gw.ErrRejected), errors.Is(err, gw.ErrOtpRejected),
		errors.Is(err, gw.ErrTimeout), errors.Is(err, gw.ErrUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", gw.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", gw.ErrUnavailable, err)
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, gw.ErrOtpExpired):
		return "otp_expired"
	case errors.Is(err, gw.ErrOtpRejected):
		return "otp_rejected"
	case errors.Is(err, gw.ErrRejected):
		return "rejected"
	case errors.Is(err, gw.ErrTimeout):
		return "timeout"
	}
	return "unavailable"
}

func isNilResult(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case *gw.Handle:
		return x == nil
	case *gw.Status:
		return x == nil
	}
	return false
}
