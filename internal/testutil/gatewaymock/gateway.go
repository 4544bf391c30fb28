package gatewaymock

import (
	"context"
	"errors"
	"sync"

	"loanpay-backend/internal/domain/gateway"
)

var _ gateway.Gateway = (*Gateway)(nil)

var errUnimplemented = errors.New("gatewaymock: method not implemented")

// Gateway is a function-backed mock that satisfies gateway.Gateway and
// counts calls per operation.
type Gateway struct {
	DispatchFn  func(ctx context.Context, c gateway.Charge, channel string) (*gateway.Handle, error)
	CheckoutFn  func(ctx context.Context, c gateway.Charge) (*gateway.Handle, error)
	PollFn      func(ctx context.Context, pollToken string) (*gateway.Status, error)
	SubmitOTPFn func(ctx context.Context, otpToken, code string) (*gateway.Status, error)

	mu    sync.Mutex
	calls map[string]int
}

func (m *Gateway) count(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	m.calls[op]++
}

// Calls returns how many times op ("dispatch", "checkout", "poll", "otp") ran.
func (m *Gateway) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *Gateway) Dispatch(ctx context.Context, c gateway.Charge, channel string) (*gateway.Handle, error) {
	m.count("dispatch")
	if m.DispatchFn != nil {
		return m.DispatchFn(ctx, c, channel)
	}
	return nil, errUnimplemented
}

func (m *Gateway) Checkout(ctx context.Context, c gateway.Charge) (*gateway.Handle, error) {
	m.count("checkout")
	if m.CheckoutFn != nil {
		return m.CheckoutFn(ctx, c)
	}
	return nil, errUnimplemented
}

func (m *Gateway) Poll(ctx context.Context, pollToken string) (*gateway.Status, error) {
	m.count("poll")
	if m.PollFn != nil {
		return m.PollFn(ctx, pollToken)
	}
	return nil, errUnimplemented
}

func (m *Gateway) SubmitOTP(ctx context.Context, otpToken, code string) (*gateway.Status, error) {
	m.count("otp")
	if m.SubmitOTPFn != nil {
		return m.SubmitOTPFn(ctx, otpToken, code)
	}
	return nil, errUnimplemented
}
