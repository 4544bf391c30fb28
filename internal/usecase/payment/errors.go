package payment

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrAmountExceedsBalance = errors.New("amount exceeds outstanding balance")
)

// ValidationError lists offending fields and why.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// AmountExceedsBalanceError is returned before any transaction row exists.
// Reserved is what in-flight payments already hold against the balance.
type AmountExceedsBalanceError struct {
	Requested   decimal.Decimal
	Outstanding decimal.Decimal
	Reserved    decimal.Decimal
}

func (e *AmountExceedsBalanceError) Error() string {
	return fmt.Sprintf("%s: requested %s, outstanding %s, reserved by pending payments %s",
		ErrAmountExceedsBalance, e.Requested.StringFixed(2), e.Outstanding.StringFixed(2), e.Reserved.StringFixed(2))
}

func (e *AmountExceedsBalanceError) Is(target error) bool { return target == ErrAmountExceedsBalance }

// Available is what can still be paid right now.
func (e *AmountExceedsBalanceError) Available() decimal.Decimal {
	a := e.Outstanding.Sub(e.Reserved)
	if a.IsNegative() {
		return decimal.Zero
	}
	return a
}
