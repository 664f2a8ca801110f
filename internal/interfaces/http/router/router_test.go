package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/turtacn/certguard/internal/config"
	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/internal/infrastructure/monitoring"
	"github.com/turtacn/certguard/internal/interfaces/http/handlers"
	"github.com/turtacn/certguard/pkg/constants"
	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
)

type rejectAll struct{}

func (rejectAll) ValidateAccessToken(context.Context, string) (*models.AccessClaims, error) {
	return nil, errors.ErrUnauthorized("test")
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.NewNoopLogger()
	reg := prometheus.NewRegistry()
	cfg := &config.Config{Server: config.ServerConfig{Environment: "production", AllowedOrigins: []string{"https://certification.dhis2.org"}}}
	return NewRouter(Dependencies{
		Config:   cfg,
		Logger:   log,
		Tokens:   rejectAll{},
		Metrics:  monitoring.NewMetrics(reg),
		Gatherer: reg,
		Health:   handlers.NewHealthHandler(map[string]handlers.Pinger{}, nil, log),
	})
}

func get(r http.Handler, method, path string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_PublicEndpoints(t *testing.T) {
	r := newTestRouter(t).Engine()

	assert.Equal(t, http.StatusOK, get(r, http.MethodGet, "/health/live").Code)
	assert.Equal(t, http.StatusOK, get(r, http.MethodGet, "/health/ready").Code)

	w := get(r, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "certguard_http_requests_total")

	w = get(r, http.MethodGet, "/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, w.Header().Get(constants.HeaderRequestID))

	assert.Equal(t, http.StatusNotFound, get(r, http.MethodGet, "/debug/pprof/").Code, "pprof is off in production")
}

func TestRouter_ProtectedRoutesRequireToken(t *testing.T) {
	r := newTestRouter(t).Engine()

	for _, path := range []string{
		"/api/v1/auth/sign-out",
		"/api/v1/auth/sign-out-all",
		"/api/v1/auth/change-password",
		"/api/v1/auth/2fa/disable",
		"/api/v1/certificates",
		"/api/v1/admin/keys/rotate",
	} {
		w := get(r, http.MethodPost, path, "Authorization", "Bearer whatever")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestRouter_CORS(t *testing.T) {
	r := newTestRouter(t).Engine()

	w := get(r, http.MethodOptions, "/api/v1/auth/sign-in",
		"Origin", "https://certification.dhis2.org",
		"Access-Control-Request-Method", http.MethodPost)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://certification.dhis2.org", w.Header().Get("Access-Control-Allow-Origin"))

	w = get(r, http.MethodOptions, "/api/v1/auth/sign-in",
		"Origin", "https://evil.example",
		"Access-Control-Request-Method", http.MethodPost)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
