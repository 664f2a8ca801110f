// Package ratelimit provides a distributed fixed-window rate limiter on the KV store,
// with an in-process token bucket used while the store is unreachable.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/turtacn/certguard/internal/domain/service"
	"github.com/turtacn/certguard/pkg/logger"
)

// RateLimiterConfig holds rate limiter configuration.
type RateLimiterConfig struct {
	// Limit is the number of requests allowed per window and identifier
	Limit int64
	// Window is the fixed window length
	Window time.Duration
	// EnableLocalFallback keeps limiting with local token buckets when the store fails
	EnableLocalFallback bool
	// LocalMaxKeys bounds the number of local buckets
	LocalMaxKeys int
	// Now is the clock; tests drive it
	Now func() time.Time
}

// RateLimitResult represents the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RedisRateLimiter counts requests per (scope, identifier, window) in the KV store.
type RedisRateLimiter struct {
	store   service.KVStore
	config  RateLimiterConfig
	local   *bucketPool
	metrics service.Metrics
	logger  logger.Logger
}

// NewRedisRateLimiter creates a new KV-store backed rate limiter.
//
// Parameters:
//   - store: KV store shared by every replica
//   - cfg: Limit and window; zero values default to 10 requests per minute
//   - metrics: Records rate limit hits per scope
//   - log: Logger instance
func NewRedisRateLimiter(store service.KVStore, cfg RateLimiterConfig, metrics service.Metrics, log logger.Logger) *RedisRateLimiter {
	if cfg.Limit <= 0 {
		cfg.Limit = 10
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if metrics == nil {
		metrics = service.NewNoopMetrics()
	}
	rl := &RedisRateLimiter{
		store:   store,
		config:  cfg,
		metrics: metrics,
		logger:  log.WithComponent("rate_limiter"),
	}
	if cfg.EnableLocalFallback {
		rl.local = newBucketPool(float64(cfg.Limit), float64(cfg.Limit)/cfg.Window.Seconds(), cfg.LocalMaxKeys, cfg.Window, cfg.Now)
	}
	return rl
}

// Allow consumes one request for identifier within scope. It only returns an error when the
// store failed and no local fallback is configured; callers fail open on that error.
func (rl *RedisRateLimiter) Allow(ctx context.Context, scope, identifier string) (RateLimitResult, error) {
	now := rl.config.Now()
	windowStart := now.Truncate(rl.config.Window)
	resetAt := windowStart.Add(rl.config.Window)
	key := fmt.Sprintf("ratelimit:%s:%s:%d", scope, identifier, windowStart.Unix())

	count, err := rl.store.Incr(ctx, key)
	if err == nil && count == 1 {
		// The window key must expire even if this replica dies before the window ends.
		err = rl.store.Expire(ctx, key, rl.config.Window+time.Second)
	}
	if err != nil {
		return rl.fallback(ctx, scope, identifier, err)
	}

	res := RateLimitResult{
		Allowed:   count <= rl.config.Limit,
		Limit:     rl.config.Limit,
		Remaining: max(rl.config.Limit-count, 0),
		ResetAt:   resetAt,
	}
	if !res.Allowed {
		res.RetryAfter = resetAt.Sub(now)
		rl.metrics.RecordRateLimitHit(scope)
		rl.logger.Warn(ctx, "rate limit exceeded",
			logger.String("scope", scope), logger.Int64("count", count), logger.Int64("limit", rl.config.Limit))
	}
	return res, nil
}

func (rl *RedisRateLimiter) fallback(ctx context.Context, scope, identifier string, cause error) (RateLimitResult, error) {
	if rl.local == nil {
		rl.logger.Error(ctx, "rate limiter store failed", cause, logger.String("scope", scope))
		return RateLimitResult{}, cause
	}
	rl.logger.Warn(ctx, "rate limiter store failed, using local buckets", logger.Error(cause))

	allowed, retryAfter, remaining := rl.local.take(scope + ":" + identifier)
	res := RateLimitResult{
		Allowed:    allowed,
		Limit:      rl.config.Limit,
		Remaining:  remaining,
		RetryAfter: retryAfter,
		ResetAt:    rl.config.Now().Add(retryAfter),
	}
	if !allowed {
		rl.metrics.RecordRateLimitHit(scope)
	}
	return res, nil
}

// Reset clears the current window of identifier, e.g. after an administrator unlock.
func (rl *RedisRateLimiter) Reset(ctx context.Context, scope, identifier string) error {
	windowStart := rl.config.Now().Truncate(rl.config.Window)
	key := fmt.Sprintf("ratelimit:%s:%s:%d", scope, identifier, windowStart.Unix())
	_, err := rl.store.Del(ctx, key)
	if rl.local != nil {
		rl.local.remove(scope + ":" + identifier)
	}
	return err
}

//Personal.AI order the ending
