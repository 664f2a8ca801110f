package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/certguard/internal/application/dto"
	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/pkg/constants"
	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
)

// TokenValidator checks an access token. AuthAppService satisfies it.
type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, token string) (*models.AccessClaims, error)
}

// extractBearer extracts the token from the Authorization header.
func extractBearer(authHeader string) string {
	if authHeader == "" {
		return ""
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

// RequireJWT is a middleware to protect routes that require a valid, non revoked access token.
// On success the claims are stored under ContextKeyClaims and the user id under ContextKeyUserID.
func RequireJWT(validator TokenValidator, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := extractBearer(c.GetHeader("Authorization"))
		if tokenStr == "" {
			dto.SendError(c, errors.ErrUnauthorized("missing bearer token"))
			return
		}

		claims, err := validator.ValidateAccessToken(c.Request.Context(), tokenStr)
		if err != nil {
			// Revoked and expired tokens look the same to the caller.
			log.Warn(c.Request.Context(), "Access token rejected", logger.Error(err))
			if !errors.IsServiceUnavailableError(err) {
				err = errors.ErrUnauthorized("invalid access token").WithCause(err)
			}
			dto.SendError(c, err)
			return
		}

		c.Set(string(constants.ContextKeyClaims), claims)
		c.Set(string(constants.ContextKeyUserID), claims.Subject)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), constants.ContextKeyUserID, claims.Subject))
		c.Next()
	}
}

// RequireRole allows the request only when the authenticated role is one of roles. Must run after RequireJWT.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFromContext(c)
		if !ok {
			dto.SendError(c, errors.ErrUnauthorized("missing access token claims"))
			return
		}
		for _, r := range roles {
			if claims.Role == r {
				c.Next()
				return
			}
		}
		dto.SendError(c, errors.ErrForbidden("insufficient role"))
	}
}

// ClaimsFromContext returns the claims stored by RequireJWT.
func ClaimsFromContext(c *gin.Context) (*models.AccessClaims, bool) {
	v, ok := c.Get(string(constants.ContextKeyClaims))
	if !ok {
		return nil, false
	}
	claims, ok := v.(*models.AccessClaims)
	return claims, ok && claims != nil
}
