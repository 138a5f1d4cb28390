package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the auth core
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authentication metrics
	LoginsTotal   *prometheus.CounterVec
	LoginDuration prometheus.Histogram

	// Provisioning metrics
	UsersCreatedTotal         prometheus.Counter
	SubscriptionsCreatedTotal prometheus.Counter
	SubscriptionErrorsTotal   prometheus.Counter

	registry *prometheus.Registry
}

// Login outcome label values for LoginsTotal.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidToken       = "invalid_token"
	OutcomeUnauthorizedDomain = "unauthorized_domain"
	OutcomeInternalError      = "internal_error"
)

// NewMetrics creates and registers all Prometheus metrics. A nil registry
// allocates a private one, which keeps tests independent.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventostec_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventostec_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventostec_logins_total",
				Help: "Total login attempts by client platform and outcome",
			},
			[]string{"platform", "outcome"},
		),
		LoginDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "eventostec_login_duration_seconds",
				Help:    "End-to-end server login pipeline duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		UsersCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "eventostec_users_created_total",
				Help: "Users provisioned on first login",
			},
		),
		SubscriptionsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "eventostec_subscriptions_created_total",
				Help: "Channel subscriptions created by organization assignment",
			},
		),
		SubscriptionErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "eventostec_subscription_errors_total",
				Help: "Channel subscription inserts skipped due to errors",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.LoginsTotal,
		m.LoginDuration,
		m.UsersCreatedTotal,
		m.SubscriptionsCreatedTotal,
		m.SubscriptionErrorsTotal,
	)

	return m
}

// Handler returns the Prometheus scrape handler for this metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveLogin records a login attempt outcome.
func (m *Metrics) ObserveLogin(platform, outcome string, duration time.Duration) {
	m.LoginsTotal.WithLabelValues(platform, outcome).Inc()
	m.LoginDuration.Observe(duration.Seconds())
}

// statusRecorder captures the response status for metrics labels.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// HTTPMiddleware instruments handlers with request count and duration. The
// path label uses the registered route template, passed by the router setup,
// to keep label cardinality bounded.
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		path := r.URL.Path
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(recorder.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
