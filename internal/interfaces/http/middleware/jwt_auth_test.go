package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"

	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/pkg/constants"
	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
)

type validatorFunc func(ctx context.Context, token string) (*models.AccessClaims, error)

func (f validatorFunc) ValidateAccessToken(ctx context.Context, token string) (*models.AccessClaims, error) {
	return f(ctx, token)
}

func TestExtractBearer(t *testing.T) {
	assert.Equal(t, "abc", extractBearer("Bearer abc"))
	assert.Equal(t, "abc", extractBearer("bearer abc"))
	assert.Empty(t, extractBearer(""))
	assert.Empty(t, extractBearer("Basic abc"))
	assert.Empty(t, extractBearer("Bearer a b"))
}

func TestRequireJWT(t *testing.T) {
	validator := validatorFunc(func(_ context.Context, token string) (*models.AccessClaims, error) {
		switch token {
		case "good":
			return &models.AccessClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1", ID: "j-1"}, Role: models.RoleAssessor}, nil
		case "down":
			return nil, errors.ErrServiceUnavailable("token blacklist")
		default:
			return nil, errors.ErrUnauthorized("access token revoked")
		}
	})

	r := gin.New()
	r.Use(RequireJWT(validator, logger.NewNoopLogger()))
	r.GET("/me", func(c *gin.Context) {
		claims, ok := ClaimsFromContext(c)
		assert.True(t, ok)
		assert.Equal(t, "u-1", c.Request.Context().Value(constants.ContextKeyUserID))
		c.String(http.StatusOK, claims.Subject)
	})
	r.GET("/admin", RequireRole(models.RoleAdmin), ok)

	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{"valid token", "/me", "Bearer good", http.StatusOK},
		{"missing header", "/me", "", http.StatusUnauthorized},
		{"revoked token", "/me", "Bearer revoked", http.StatusUnauthorized},
		{"blacklist unavailable", "/me", "Bearer down", http.StatusServiceUnavailable},
		{"wrong role", "/admin", "Bearer good", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := serve(r, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}
