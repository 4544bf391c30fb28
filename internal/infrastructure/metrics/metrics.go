package metrics

import "time"

// Recorder collects the service's business and gateway metrics.
type Recorder interface {
	PaymentInitiated(method, outcome string)
	// Settlement counts settle attempts by source (poll, callback, otp)
	// and result (applied, noop).
	Settlement(source, result string)
	GatewayRequest(op, outcome string, d time.Duration)
	Callback(outcome string)
	CircuitState(state CircuitState)
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOp discards everything.
type NoOp struct{}

func (NoOp) PaymentInitiated(string, string) {}
func (NoOp) Settlement(string, string) {}
func (NoOp) GatewayRequest(string, string, time.Duration) {}
func (NoOp) Callback(string) {}
func (NoOp) CircuitState(CircuitState) {}
