package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "loanpay"

// Prometheus implements Recorder on client_golang collectors.
type Prometheus struct {
	paymentsInitiated *prometheus.CounterVec
	settlements       *prometheus.CounterVec
	gatewayRequests   *prometheus.CounterVec
	gatewayLatency    *prometheus.HistogramVec
	callbacks         *prometheus.CounterVec
	circuitState      prometheus.Gauge
}

func NewPrometheus() *Prometheus {
	return &Prometheus{
		paymentsInitiated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payments_initiated_total",
				Help:      "Payment initiations by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		settlements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settlements_total",
				Help:      "Settle attempts by source and result (applied or noop)",
			},
			[]string{"source", "result"},
		),
		gatewayRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_requests_total",
				Help:      "Gateway calls by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		gatewayLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gateway_request_duration_seconds",
				Help:      "Gateway call latency",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"op"},
		),
		callbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "callbacks_total",
				Help:      "Gateway callbacks by outcome",
			},
			[]string{"outcome"},
		),
		circuitState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "gateway_circuit_state",
				Help:      "Gateway circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
		),
	}
}

// Register registers all metrics with the given registry.
func (p *Prometheus) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		p.paymentsInitiated,
		p.settlements,
		p.gatewayRequests,
		p.gatewayLatency,
		p.callbacks,
		p.circuitState,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (p *Prometheus) PaymentInitiated(method, outcome string) {
	p.paymentsInitiated.WithLabelValues(method, outcome).Inc()
}

func (p *Prometheus) Settlement(source, result string) {
	p.settlements.WithLabelValues(source, result).Inc()
}

func (p *Prometheus) GatewayRequest(op, outcome string, d time.Duration) {
	p.gatewayRequests.WithLabelValues(op, outcome).Inc()
	p.gatewayLatency.WithLabelValues(op).Observe(d.Seconds())
}

func (p *Prometheus) Callback(outcome string) {
	p.callbacks.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) CircuitState(state CircuitState) {
	p.circuitState.Set(float64(state))
}
