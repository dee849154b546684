package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Reconciler metrics
	DefineTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_define_total",
			Help: "Total number of define operations by result",
		},
		[]string{"result"},
	)

	DefineDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_define_duration_seconds",
			Help:    "Define pipeline duration in seconds, propagation wait included",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
	)

	DefineStepFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_define_step_failures_total",
			Help: "Total number of define failures by pipeline step",
		},
		[]string{"step"},
	)

	RollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_rollbacks_total",
			Help: "Total number of compensating undefines run after a failed define",
		},
	)

	UndefineWarnings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_undefine_warnings_total",
			Help: "Total number of undefine sub-step failures by step",
		},
		[]string{"step"},
	)

	// DNS metrics
	PropagationAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_propagation_attempts",
			Help:    "Resolver polls needed before DNS returned the expected address",
			Buckets: prometheus.LinearBuckets(1, 1, 12),
		},
	)

	DNSRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_dns_api_requests_total",
			Help: "Total number of DNS provider API requests by method and status",
		},
		[]string{"method", "status"},
	)

	// Certificate metrics
	CertificateDaysLeft = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_certificate_days_left",
			Help: "Days until certificate expiry by domain",
		},
		[]string{"domain"},
	)

	CertificateRenewals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_certificate_renewals_total",
			Help: "Total number of certificate renewal attempts by result",
		},
		[]string{"result"},
	)

	// Inventory
	SubdomainsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_subdomains_active",
			Help: "Number of fully active subdomains",
		},
	)

	ProxyReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_proxy_reloads_total",
			Help: "Total number of proxy reinitializations by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(DefineTotal)
	prometheus.MustRegister(DefineDuration)
	prometheus.MustRegister(DefineStepFailures)
	prometheus.MustRegister(RollbacksTotal)
	prometheus.MustRegister(UndefineWarnings)
	prometheus.MustRegister(PropagationAttempts)
	prometheus.MustRegister(DNSRequestsTotal)
	prometheus.MustRegister(CertificateDaysLeft)
	prometheus.MustRegister(CertificateRenewals)
	prometheus.MustRegister(SubdomainsActive)
	prometheus.MustRegister(ProxyReloads)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Result maps an error to the "result" label value
func Result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
