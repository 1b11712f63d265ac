package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code", "service"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "service"},
	)

	// Verification metrics
	verificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verifications_total",
			Help: "Total number of verification runs by outcome",
		},
		[]string{"outcome", "service"},
	)

	verificationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "verification_duration_seconds",
			Help:    "Duration of verification runs in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
		[]string{"service"},
	)

	complianceAlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliance_alerts_total",
			Help: "Total number of compliance alerts by severity",
		},
		[]string{"severity", "rule_id", "service"},
	)

	verificationScore = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "verification_trust_score",
			Help:    "Distribution of trust scores on passing verifications",
			Buckets: []float64{0.7, 0.9, 1.0},
		},
		[]string{"service"},
	)

	// Database metrics
	dbQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"query_type", "service"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		verificationsTotal,
		verificationDuration,
		complianceAlertsTotal,
		verificationScore,
		dbQueryDuration,
	)
}

// RecordHTTPRequest records metrics for an HTTP request
func RecordHTTPRequest(service, method, endpoint string, statusCode int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode), service).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, service).Observe(duration.Seconds())
}

// RecordVerification records the outcome of one verification run
func RecordVerification(service string, safeToFile bool, score float64, duration time.Duration) {
	outcome := "rejected"
	if safeToFile {
		outcome = "passed"
		verificationScore.WithLabelValues(service).Observe(score)
	}
	verificationsTotal.WithLabelValues(outcome, service).Inc()
	verificationDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordAlert records one emitted compliance alert
func RecordAlert(service, severity, ruleID string) {
	complianceAlertsTotal.WithLabelValues(severity, ruleID, service).Inc()
}

// RecordDBQuery records the duration of a database query
func RecordDBQuery(service, queryType string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(queryType, service).Observe(duration.Seconds())
}

// MetricsHandler returns the Prometheus metrics HTTP handler
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
