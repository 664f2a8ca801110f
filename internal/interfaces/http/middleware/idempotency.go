package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/certguard/internal/application/dto"
	"github.com/turtacn/certguard/pkg/constants"
	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
)

var idempotencyKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,128}$`)

// KeyClaimer atomically claims a key. service.KVStore satisfies it.
type KeyClaimer interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) (int64, error)
}

// IdempotencyMiddleware returns a Gin middleware that rejects a replayed Idempotency-Key with 409 Conflict.
// Keys are scoped to the authenticated user. A failed request releases its key so the client may retry.
// Requests without the header pass through. When the store is unreachable the request proceeds.
// IdempotencyMiddleware 防止同一 Idempotency-Key 的重复提交（例如重复颁发或吊销证书）。
func IdempotencyMiddleware(store KeyClaimer, ttl time.Duration, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(constants.HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if !idempotencyKeyPattern.MatchString(key) {
			dto.SendError(c, errors.ErrValidation("malformed idempotency key",
				map[string]string{"idempotency_key": "must be 8-128 url-safe characters"}))
			return
		}

		storeKey := "idempotency:" + c.GetString(string(constants.ContextKeyUserID)) + ":" + c.FullPath() + ":" + key
		isNew, err := store.SetNX(c.Request.Context(), storeKey, "1", ttl)
		if err != nil {
			log.Error(c.Request.Context(), "Idempotency check failed", err)
			c.Next() // Fail open
			return
		}
		if !isNew {
			log.Warn(c.Request.Context(), "Replayed idempotency key", logger.String("route", c.FullPath()))
			dto.SendError(c, errors.ErrConflict("request already processed"))
			return
		}

		c.Next()

		if c.Writer.Status() >= http.StatusBadRequest {
			if _, err := store.Del(context.WithoutCancel(c.Request.Context()), storeKey); err != nil {
				log.Warn(c.Request.Context(), "Failed to release idempotency key", logger.Error(err))
			}
		}
	}
}
