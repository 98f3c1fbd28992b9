package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Login-flow Prometheus metrics. Defined in a standalone package to avoid
// import cycles between flow and HTTP packages.

var (
	AuthorizationRequestsIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "idbridge_authorization_requests_issued_total",
		Help: "Authorization requests emitidos hacia IdPs upstream",
	}, []string{"authority"})

	LoginAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "idbridge_login_attempts_total",
		Help: "Callbacks procesados por authority y resultado",
	}, []string{"authority", "outcome"})

	ExchangeLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "idbridge_token_exchange_latency_ms",
		Help:    "Latencia del token exchange upstream en milisegundos",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"authority"})
)

// Register registra las métricas del flujo de login en el registry dado
// (o el default si es nil). Tolera AlreadyRegisteredError.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		AuthorizationRequestsIssued,
		LoginAttempts,
		ExchangeLatency,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
