package paymethod

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"loanpay-backend/internal/domain/gateway"
)

var ErrUnknownMethod = errors.New("unsupported payment method")

// Method is one way of collecting money through the gateway.
type Method interface {
	Name() string
	Dispatch(ctx context.Context, gw gateway.Gateway, c gateway.Charge) (*gateway.Handle, error)
	// RequiresOTP reports whether the payer must submit a one-time code
	// before the charge can complete.
	RequiresOTP(h *gateway.Handle) bool
	DefaultInstructions(h *gateway.Handle) string
}

var registry = map[string]Method{
	"ecocash":  ecoCash{},
	"innbucks": innBucks{},
	"onemoney": innBucks{},
	"omari":    omari{},
}

// Lookup resolves a method by name, case-insensitively.
func Lookup(name string) (Method, error) {
	m, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, name)
	}
	return m, nil
}

// Names lists every accepted method name, aliases included.
func Names() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Instructions prefers what the gateway returned and falls back to the
// method's default text.
func Instructions(m Method, h *gateway.Handle) string {
	if h != nil && strings.TrimSpace(h.Instructions) != "" {
		return h.Instructions
	}
	return m.DefaultInstructions(h)
}

type ecoCash struct{}

func (ecoCash) Name() string { return "ecocash" }

func (ecoCash) Dispatch(ctx context.Context, gw gateway.Gateway, c gateway.Charge) (*gateway.Handle, error) {
	return gw.Dispatch(ctx, c, "ecocash")
}

func (ecoCash) RequiresOTP(*gateway.Handle) bool { return false }

func (ecoCash) DefaultInstructions(*gateway.Handle) string {
	return "Dial *151# on your EcoCash registered line and follow the prompts to complete payment."
}

// innBucks goes out over the gateway's "onemoney" channel.
type innBucks struct{}

func (innBucks) Name() string { return "innbucks" }

func (innBucks) Dispatch(ctx context.Context, gw gateway.Gateway, c gateway.Charge) (*gateway.Handle, error) {
	return gw.Dispatch(ctx, c, "onemoney")
}

func (innBucks) RequiresOTP(*gateway.Handle) bool { return false }

func (innBucks) DefaultInstructions(*gateway.Handle) string {
	return "Check your phone for payment instructions."
}

type omari struct{}

func (omari) Name() string { return "omari" }

// Dispatch tries a mobile push first. A business rejection falls back to a
// redirect checkout; transport failures are returned as is.
func (omari) Dispatch(ctx context.Context, gw gateway.Gateway, c gateway.Charge) (*gateway.Handle, error) {
	h, err := gw.Dispatch(ctx, c, "omari")
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, gateway.ErrRejected) {
		return nil, err
	}
	h, cerr := gw.Checkout(ctx, c)
	if cerr != nil {
		return nil, errors.Join(err, cerr)
	}
	return h, nil
}

func (omari) RequiresOTP(h *gateway.Handle) bool { return h != nil && h.OTPToken != "" }

func (omari) DefaultInstructions(h *gateway.Handle) string {
	switch {
	case h != nil && h.RedirectURL != "":
		return "Please visit the payment URL to complete your OMari payment: " + h.RedirectURL
	case h != nil && h.OTPReference != "":
		return "Enter the OTP sent to your phone to complete your OMari payment. OTP Reference: " + h.OTPReference
	}
	return "Payment initiated via OMari. Please check your phone for payment instructions."
}
