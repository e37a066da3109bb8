package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthStarts tracks authorization redirects issued by result
	AuthStarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cilia_auth_starts_total",
			Help: "Total number of OAuth authorization starts by result",
		},
		[]string{"result"},
	)

	// Callbacks tracks OAuth callbacks by result and failure reason
	Callbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cilia_callbacks_total",
			Help: "Total number of OAuth callbacks by result (success/failure) and reason",
		},
		[]string{"result", "reason"},
	)

	// ProviderDuration tracks calls to the OAuth provider
	ProviderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cilia_provider_request_duration_seconds",
			Help:    "Duration of OAuth provider requests by operation",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	// ProxyRequests tracks image proxy requests by result
	ProxyRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cilia_proxy_requests_total",
			Help: "Total number of image proxy requests by result",
		},
		[]string{"result"},
	)

	// HTTPRequestDuration tracks HTTP request duration by route
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cilia_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route, method and status",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"route", "method", "status"},
	)

	// HTTPRequestsInFlight tracks current in-flight HTTP requests
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cilia_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// RecordAuthStart records an authorization start ("redirected", "not_configured", "error")
func RecordAuthStart(result string) {
	AuthStarts.WithLabelValues(result).Inc()
}

// RecordCallbackSuccess records a callback that produced a profile
func RecordCallbackSuccess() {
	Callbacks.WithLabelValues("success", "").Inc()
}

// RecordCallbackFailure records a failed callback with reason
func RecordCallbackFailure(reason string) {
	Callbacks.WithLabelValues("failure", reason).Inc()
}

// ObserveProvider records the duration of a provider call in seconds
func ObserveProvider(operation string, seconds float64) {
	ProviderDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordProxy records an image proxy outcome
func RecordProxy(result string) {
	ProxyRequests.WithLabelValues(result).Inc()
}
