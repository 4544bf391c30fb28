// Package sandbox is an in-process stand-in for the mobile-money gateway,
// for local runs and end-to-end tests.
package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	gw "loanpay-backend/internal/domain/gateway"
	"loanpay-backend/pkg/id"
)

type Config struct {
	BaseURL string
	// PollsUntilPaid is how many polls report "Sent" before "Paid".
	PollsUntilPaid int
	OTPCode        string
	OTPTTL         time.Duration
	// MaxOTPAttempts wrong codes expire the OTP window.
	MaxOTPAttempts int
}

func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://sandbox.paynow.local",
		PollsUntilPaid: 2,
		OTPCode:        "123456",
		OTPTTL:         5 * time.Minute,
		MaxOTPAttempts: 3,
	}
}

type charge struct {
	reference  string
	channel    string
	polls      int
	paid       bool
	otpToken   string
	otpIssued  time.Time
	otpFails   int
	otpExpired bool
	handle     gw.Handle
}

type Gateway struct {
	cfg Config
	now func() time.Time

	mu          sync.Mutex
	byReference map[string]*charge
	byPoll      map[string]*charge
	byOTP       map[string]*charge
}

var _ gw.Gateway = (*Gateway)(nil)

func New(cfg Config) *Gateway {
	return &Gateway{
		cfg:         cfg,
		now:         time.Now,
		byReference: map[string]*charge{},
		byPoll:      map[string]*charge{},
		byOTP:       map[string]*charge{},
	}
}

// WithClock overrides the time source used for OTP expiry.
func (g *Gateway) WithClock(now func() time.Time) *Gateway {
	g.now = now
	return g
}

func (g *Gateway) Dispatch(ctx context.Context, c gw.Charge, channel string) (*gw.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if reasons := validate(c); len(reasons) > 0 {
		return nil, gw.Rejected(reasons...)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	// The merchant reference identifies the charge; a repeat dispatch gets the same handle.
	if ch, ok := g.byReference[c.Reference]; ok {
		h := ch.handle
		return &h, nil
	}

	ch := g.register(c, channel)
	ch.handle.Instructions = fmt.Sprintf("TEST: Send $%s via %s to %s", c.Amount.StringFixed(2), strings.ToUpper(channel), c.Phone)
	if channel == "omari" {
		ch.otpToken = id.NewID32()
		ch.otpIssued = g.now()
		ch.handle.OTPToken = ch.otpToken
		ch.handle.OTPReference = "OTP_" + c.Reference
		ch.handle.Instructions = ""
		g.byOTP[ch.otpToken] = ch
	}
	h := ch.handle
	return &h, nil
}

func (g *Gateway) Checkout(ctx context.Context, c gw.Charge) (*gw.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if reasons := validate(c); len(reasons) > 0 {
		return nil, gw.Rejected(reasons...)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if ch, ok := g.byReference[c.Reference]; ok {
		h := ch.handle
		return &h, nil
	}
	ch := g.register(c, "checkout")
	ch.handle.RedirectURL = g.cfg.BaseURL + "/pay/" + c.Reference
	h := ch.handle
	return &h, nil
}

func (g *Gateway) Poll(ctx context.Context, pollToken string) (*gw.Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	ch, ok := g.byPoll[pollToken]
	if !ok {
		return nil, gw.Rejected("unknown poll url")
	}
	if ch.otpToken != "" && !ch.paid {
		if ch.otpExpired {
			return g.status(ch, "Cancelled"), nil
		}
		return g.status(ch, "Sent"), nil
	}
	ch.polls++
	if ch.polls >= g.cfg.PollsUntilPaid {
		ch.paid = true
	}
	if ch.paid {
		return g.status(ch, "Paid"), nil
	}
	return g.status(ch, "Sent"), nil
}

func (g *Gateway) SubmitOTP(ctx context.Context, otpToken, code string) (*gw.Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	ch, ok := g.byOTP[otpToken]
	if !ok || ch.otpExpired {
		return nil, gw.ErrOtpExpired
	}
	if g.cfg.OTPTTL > 0 && g.now().Sub(ch.otpIssued) > g.cfg.OTPTTL {
		ch.otpExpired = true
		return nil, gw.ErrOtpExpired
	}
	if code != g.cfg.OTPCode {
		ch.otpFails++
		if g.cfg.MaxOTPAttempts > 0 && ch.otpFails >= g.cfg.MaxOTPAttempts {
			ch.otpExpired = true
			return nil, gw.ErrOtpExpired
		}
		return nil, gw.ErrOtpRejected
	}

	ch.paid = true
	return g.status(ch, "Paid"), nil
}

// Settled reports whether the sandbox considers the reference paid.
func (g *Gateway) Settled(reference string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.byReference[reference]
	return ok && ch.paid
}

func (g *Gateway) register(c gw.Charge, channel string) *charge {
	token := id.NewID32()
	ch := &charge{
		reference: c.Reference,
		channel:   channel,
		handle: gw.Handle{
			PollToken:        g.cfg.BaseURL + "/poll/" + token,
			GatewayReference: "SBX-" + token[:10],
			RawStatus:        "Ok",
			Raw: map[string]string{
				"status":  "Ok",
				"channel": channel,
			},
		},
	}
	g.byReference[c.Reference] = ch
	g.byPoll[ch.handle.PollToken] = ch
	return ch
}

func (g *Gateway) status(ch *charge, raw string) *gw.Status {
	return &gw.Status{
		RawStatus:        raw,
		Paid:             raw == "Paid",
		GatewayReference: ch.handle.GatewayReference,
		PollToken:        ch.handle.PollToken,
		Raw: map[string]string{
			"reference":       ch.reference,
			"paynowreference": ch.handle.GatewayReference,
			"status":          raw,
			"pollurl":         ch.handle.PollToken,
		},
	}
}

func validate(c gw.Charge) []string {
	var reasons []string
	if strings.TrimSpace(c.Reference) == "" {
		reasons = append(reasons, "missing reference")
	}
	if !c.Amount.IsPositive() {
		reasons = append(reasons, "invalid amount")
	}
	if strings.TrimSpace(c.Phone) == "" {
		reasons = append(reasons, "invalid phone")
	}
	return reasons
}
