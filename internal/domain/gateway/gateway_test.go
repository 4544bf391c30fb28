package gateway

import (
	"errors"
	"fmt"
	"testing"
)

func TestRejectedError(t *testing.T) {
	err := fmt.Errorf("dispatch: %w", Rejected("invalid phone", "insufficient balance"))
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("wrapped RejectedError should match ErrRejected")
	}
	got := Reasons(err)
	if len(got) != 2 || got[0] != "invalid phone" {
		t.Fatalf("reasons = %v", got)
	}
	if Reasons(ErrTimeout) != nil {
		t.Fatalf("non-rejection should carry no reasons")
	}
}

func TestOtpExpiredMatchesRejected(t *testing.T) {
	err := fmt.Errorf("submit: %w", ErrOtpExpired)
	if !errors.Is(err, ErrOtpExpired) || !errors.Is(err, ErrOtpRejected) {
		t.Fatalf("ErrOtpExpired should match itself and ErrOtpRejected")
	}
	if errors.Is(ErrOtpRejected, ErrOtpExpired) {
		t.Fatalf("plain rejection must not look expired")
	}
}

func TestParseCallback_Form(t *testing.T) {
	body := "reference=abcsl00a.20250628143022.L001&paynowreference=12345&amount=50.00&status=Paid&pollurl=https%3A%2F%2Fpoll%2F1&hash=XYZ"
	cb, err := ParseCallback("application/x-www-form-urlencoded", []byte(body))
	if err != nil {
		t.Fatalf("ParseCallback: %v", err)
	}
	if cb.Reference != "abcsl00a.20250628143022.L001" || cb.RawStatus != "Paid" {
		t.Fatalf("unexpected callback: %+v", cb)
	}
	if cb.GatewayReference != "12345" || cb.PollToken != "https://poll/1" || cb.Fields["hash"] != "XYZ" {
		t.Fatalf("unexpected fields: %+v", cb)
	}
}

func TestParseCallback_JSON(t *testing.T) {
	cb, err := ParseCallback("application/json", []byte(`{"Reference":"r-1","Status":"Cancelled","amount":12.5}`))
	if err != nil {
		t.Fatalf("ParseCallback: %v", err)
	}
	if cb.Reference != "r-1" || cb.RawStatus != "Cancelled" || cb.Fields["amount"] != "12.5" {
		t.Fatalf("unexpected callback: %+v", cb)
	}
}

func TestParseCallback_Malformed(t *testing.T) {
	if _, err := ParseCallback("application/json", []byte(`{not json`)); !errors.Is(err, ErrMalformedCallback) {
		t.Fatalf("want ErrMalformedCallback, got %v", err)
	}
	if _, err := ParseCallback("application/x-www-form-urlencoded", []byte("status=Paid")); !errors.Is(err, ErrMalformedCallback) {
		t.Fatalf("missing reference: want ErrMalformedCallback, got %v", err)
	}
}
