package middleware

import (
	"context"
	"math"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/certguard/internal/application/dto"
	"github.com/turtacn/certguard/internal/infrastructure/ratelimit"
	"github.com/turtacn/certguard/pkg/constants"
	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
)

// Limiter is the part of RedisRateLimiter the middleware needs.
type Limiter interface {
	Allow(ctx context.Context, scope, identifier string) (ratelimit.RateLimitResult, error)
}

// RateLimitMiddleware applies a per client ip budget for scope. A limiter error lets the request through.
func RateLimitMiddleware(limiter Limiter, enabled bool, scope string, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled || limiter == nil {
			c.Next()
			return
		}

		res, err := limiter.Allow(c.Request.Context(), scope, c.ClientIP())
		if err != nil {
			log.Error(c.Request.Context(), "rate limiter failed", err, logger.String("scope", scope))
			c.Next() // Fail open
			return
		}

		c.Header(constants.HeaderRateLimitLimit, strconv.FormatInt(res.Limit, 10))
		c.Header(constants.HeaderRateLimitRemaining, strconv.FormatInt(res.Remaining, 10))
		if !res.Allowed {
			retry := int(math.Ceil(res.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header(constants.HeaderRetryAfter, strconv.Itoa(retry))
			log.Warn(c.Request.Context(), "rate limit exceeded",
				logger.String("scope", scope), logger.String("client_ip", c.ClientIP()), logger.Int64("limit", res.Limit))
			dto.SendError(c, errors.ErrRateLimitExceeded(scope, int(res.Limit)))
			return
		}

		c.Next()
	}
}
