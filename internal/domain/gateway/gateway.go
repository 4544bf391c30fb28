package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

// Charge is what the gateway needs to request money from a payer.
type Charge struct {
	Reference   string
	Amount      decimal.Decimal
	Phone       string
	Description string
}

// Handle correlates a dispatched charge with later polls, redirects and OTP
// submissions. Raw keeps the vendor response for audit.
type Handle struct {
	PollToken        string
	RedirectURL      string
	OTPToken         string
	OTPReference     string
	GatewayReference string
	Instructions     string
	RawStatus        string
	Raw              map[string]string
}

type Status struct {
	RawStatus        string
	Paid             bool
	GatewayReference string
	// PollToken is set when the gateway hands out a new handle (OTP flow).
	PollToken string
	Raw       map[string]string
}

// Gateway is the mobile-money network boundary. Implementations must not
// touch local state; Poll must be safe to call repeatedly.
type Gateway interface {
	// Dispatch sends a mobile push charge over the named channel.
	Dispatch(ctx context.Context, c Charge, channel string) (*Handle, error)
	// Checkout creates a redirect (express checkout) charge.
	Checkout(ctx context.Context, c Charge) (*Handle, error)
	Poll(ctx context.Context, pollToken string) (*Status, error)
	SubmitOTP(ctx context.Context, otpToken, code string) (*Status, error)
}
