package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/certguard/pkg/constants"
)

// SpanStarter starts server spans. monitoring.TracingManager satisfies it.
type SpanStarter interface {
	StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span)
}

// RequestObserver records request metrics. monitoring.Metrics satisfies it.
type RequestObserver interface {
	ObserveHTTPRequest(method, route, status string, duration time.Duration)
}

// ObservabilityMiddleware returns a Gin middleware that integrates Prometheus metrics and OpenTelemetry tracing.
// Incoming W3C trace context is continued, and the trace id is exposed to handlers under ContextKeyTraceID.
// ObservabilityMiddleware 返回一个集成了 Prometheus 指标和 OpenTelemetry 跟踪的 Gin 中间件。
// 指标使用 HTTP 方法、路由模板和状态码进行标记。
func ObservabilityMiddleware(tracer SpanStarter, observer RequestObserver) gin.HandlerFunc {
	propagator := propagation.TraceContext{}
	return func(c *gin.Context) {
		start := time.Now()
		route := routeOf(c)

		ctx := propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		var span trace.Span
		if tracer != nil {
			ctx, span = tracer.StartSpan(ctx, c.Request.Method+" "+route, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			traceID := sc.TraceID().String()
			c.Set(string(constants.ContextKeyTraceID), traceID)
			ctx = context.WithValue(ctx, constants.ContextKeyTraceID, traceID)
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		if observer != nil {
			observer.ObserveHTTPRequest(c.Request.Method, route, strconv.Itoa(status), time.Since(start))
		}
		if span != nil {
			span.SetAttributes(
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.route", route),
				attribute.Int("http.status_code", status),
				attribute.String("http.client_ip", c.ClientIP()),
			)
			if status >= 500 {
				span.SetStatus(codes.Error, strconv.Itoa(status))
			}
		}
	}
}
