package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/turtacn/certguard/internal/domain/service"
)

// Metrics manages the Prometheus metrics and implements service.Metrics.
// Metrics 管理 Prometheus 指标并实现 service.Metrics 接口。
type Metrics struct {
	AuthAttempts       *prometheus.CounterVec
	TokenOperations    *prometheus.CounterVec
	BreakerState       *prometheus.GaugeVec
	SigningLatency     *prometheus.HistogramVec
	CacheAccess        *prometheus.CounterVec
	CertificateOps     *prometheus.CounterVec
	RateLimitHits      *prometheus.CounterVec
	VaultAPILatency    *prometheus.HistogramVec
	HTTPRequests       *prometheus.CounterVec
	HTTPRequestLatency *prometheus.HistogramVec
}

var breakerStates = []string{"closed", "open", "half_open"}

// NewMetrics creates and registers the metrics with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AuthAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certguard_auth_attempts_total",
			Help: "Sign-in attempts by result.",
		}, []string{"result"}),
		TokenOperations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certguard_token_operations_total",
			Help: "Token lifecycle operations.",
		}, []string{"operation"}),
		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "certguard_blacklist_breaker_state",
			Help: "1 for the current state of the blacklist circuit breaker.",
		}, []string{"state"}),
		SigningLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certguard_signing_latency_seconds",
			Help:    "Latency of credential signing by backend.",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend", "result"}),
		CacheAccess: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certguard_cache_access_total",
			Help: "Cache lookups by cache and outcome.",
		}, []string{"cache", "outcome"}),
		CertificateOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certguard_certificate_operations_total",
			Help: "Certificate issue, revoke and verify outcomes.",
		}, []string{"operation", "result"}),
		RateLimitHits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certguard_rate_limit_hits_total",
			Help: "Total number of rate limit hits.",
		}, []string{"scope"}),
		VaultAPILatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certguard_vault_api_latency_seconds",
			Help:    "Latency of Vault API calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "result"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certguard_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		HTTPRequestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certguard_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (m *Metrics) RecordAuthAttempt(res string) {
	m.AuthAttempts.WithLabelValues(res).Inc()
}

func (m *Metrics) RecordTokenOperation(operation string) {
	m.TokenOperations.WithLabelValues(operation).Inc()
}

// RecordBreakerState sets the gauge of state to 1 and the others to 0.
func (m *Metrics) RecordBreakerState(state string) {
	for _, s := range breakerStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.BreakerState.WithLabelValues(s).Set(v)
	}
}

func (m *Metrics) RecordSigning(backend string, duration time.Duration, err error) {
	m.SigningLatency.WithLabelValues(backend, result(err)).Observe(duration.Seconds())
}

func (m *Metrics) RecordCacheAccess(cache string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.CacheAccess.WithLabelValues(cache, outcome).Inc()
}

func (m *Metrics) RecordCertificateOperation(operation string, success bool) {
	res := "failure"
	if success {
		res = "success"
	}
	m.CertificateOps.WithLabelValues(operation, res).Inc()
}

func (m *Metrics) RecordRateLimitHit(scope string) {
	m.RateLimitHits.WithLabelValues(scope).Inc()
}

func (m *Metrics) RecordVaultAPI(operation string, duration time.Duration, err error) {
	m.VaultAPILatency.WithLabelValues(operation, result(err)).Observe(duration.Seconds())
}

// ObserveHTTPRequest records one served request. route is the gin route template, not the raw path.
func (m *Metrics) ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

var _ service.Metrics = (*Metrics)(nil)

//Personal.AI order the ending
