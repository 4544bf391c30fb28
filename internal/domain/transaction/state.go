package transaction

import "strings"

type State string

const (
	StateCreated     State = "created"
	StateDispatched  State = "dispatched"
	StateAwaitingOTP State = "awaiting_otp"
	StateSettled     State = "settled"
	StateFailed      State = "failed"
)

// InFlight lists the states that still reserve part of a loan's balance.
var InFlight = []State{StateCreated, StateDispatched, StateAwaitingOTP}

func (s State) Valid() bool {
	switch s {
	case StateCreated, StateDispatched, StateAwaitingOTP, StateSettled, StateFailed:
		return true
	}
	return false
}

func (s State) Terminal() bool { return s == StateSettled || s == StateFailed }

// CanTransition reports whether from → to is an edge of the payment lifecycle.
func CanTransition(from, to State) bool {
	switch from {
	case StateCreated:
		return to == StateDispatched || to == StateAwaitingOTP || to == StateFailed || to == StateSettled
	case StateDispatched:
		return to == StateSettled || to == StateFailed
	case StateAwaitingOTP:
		return to == StateDispatched || to == StateSettled || to == StateFailed
	}
	return false
}

// Outcome is the vendor status reduced to what the lifecycle cares about.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomePaid
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePaid:
		return "paid"
	case OutcomeFailed:
		return "failed"
	}
	return "pending"
}

// Translate maps the gateway's free-form status vocabulary onto Outcome.
// Unknown words are treated as still pending.
func Translate(raw string) Outcome {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "paid", "awaiting delivery", "delivered":
		return OutcomePaid
	case "cancelled", "canceled", "failed", "disputed", "refunded", "error":
		return OutcomeFailed
	}
	return OutcomePending
}
