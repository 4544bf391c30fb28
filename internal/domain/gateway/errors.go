package gateway

import (
	"errors"
	"strings"
)

var (
	ErrUnavailable = errors.New("gateway unavailable")
	ErrTimeout     = errors.New("gateway timeout")
	ErrRejected    = errors.New("gateway rejected the request")
	ErrOtpRejected = errors.New("otp rejected")
	ErrOtpExpired  = &otpExpiredError{}
)

// RejectedError is a business rejection with the vendor's reasons
// (invalid phone, insufficient merchant balance, ...).
type RejectedError struct {
	Reasons []string
}

func (e *RejectedError) Error() string {
	if len(e.Reasons) == 0 {
		return ErrRejected.Error()
	}
	return ErrRejected.Error() + ": " + strings.Join(e.Reasons, "; ")
}

func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

func Rejected(reasons ...string) error { return &RejectedError{Reasons: reasons} }

// Reasons extracts the rejection reasons from err, if any.
func Reasons(err error) []string {
	var re *RejectedError
	if errors.As(err, &re) {
		return re.Reasons
	}
	return nil
}

// otpExpiredError matches both ErrOtpExpired and ErrOtpRejected.
type otpExpiredError struct{}

func (*otpExpiredError) Error() string { return "otp window expired" }

func (*otpExpiredError) Is(target error) bool { return target == ErrOtpRejected }
