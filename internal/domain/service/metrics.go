// Package service holds the domain services of the certification core: the session and token
// security primitives, credential issuance and the status list engine.
package service

import (
	"time"
)

// Metrics defines the interface for collecting business metrics.
// This abstraction keeps the domain independent of the Prometheus implementation.
// Metrics 定义了收集业务指标的接口。
type Metrics interface {
	// RecordAuthAttempt records a sign-in outcome (success, failure, locked, tfa_required).
	RecordAuthAttempt(result string)

	// RecordTokenOperation records token lifecycle events (issue, refresh, revoke, theft).
	RecordTokenOperation(operation string)

	// RecordBreakerState reports the blacklist circuit breaker state.
	RecordBreakerState(state string)

	// RecordSigning records signing latency per backend.
	RecordSigning(backend string, duration time.Duration, err error)

	// RecordCacheAccess records a cache hit or miss.
	RecordCacheAccess(cache string, hit bool)

	// RecordCertificateOperation records issue, revoke and verify outcomes.
	RecordCertificateOperation(operation string, success bool)

	// RecordRateLimitHit records an event when a rate limit is triggered.
	RecordRateLimitHit(scope string)

	// RecordVaultAPI records the latency and error status of a Vault API call.
	RecordVaultAPI(operation string, duration time.Duration, err error)
}

type noopMetrics struct{}

// NewNoopMetrics returns a Metrics that records nothing.
func NewNoopMetrics() Metrics { return noopMetrics{} }

func (noopMetrics) RecordAuthAttempt(string)                    {}
func (noopMetrics) RecordTokenOperation(string)                 {}
func (noopMetrics) RecordBreakerState(string)                   {}
func (noopMetrics) RecordSigning(string, time.Duration, error)  {}
func (noopMetrics) RecordCacheAccess(string, bool)              {}
func (noopMetrics) RecordCertificateOperation(string, bool)     {}
func (noopMetrics) RecordRateLimitHit(string)                   {}
func (noopMetrics) RecordVaultAPI(string, time.Duration, error) {}
