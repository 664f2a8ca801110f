package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/certguard/internal/infrastructure/monitoring"
	"github.com/turtacn/certguard/pkg/constants"
)

type tracerStarter struct{ tracer trace.Tracer }

func (s tracerStarter) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, opts...)
}

func TestObservabilityMiddleware(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())

	r := gin.New()
	r.Use(ObservabilityMiddleware(tracerStarter{provider.Tracer("test")}, metrics))
	var traceID string
	r.GET("/verify/:code", func(c *gin.Context) {
		traceID = c.GetString(string(constants.ContextKeyTraceID))
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/verify/ABCD2345EFGH", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	w := serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", traceID, "incoming trace context is continued")
	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /verify/:code", spans[0].Name())

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues(http.MethodGet, "/verify/:code", "200")))

	serve(r, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues(http.MethodGet, "not_found", "404")))
}
