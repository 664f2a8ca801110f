// Package router wires the gin engine: global middleware, public endpoints and the /api/v1 groups.
package router

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/turtacn/certguard/internal/application/dto"
	"github.com/turtacn/certguard/internal/config"
	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/internal/interfaces/http/handlers"
	"github.com/turtacn/certguard/internal/interfaces/http/middleware"
	"github.com/turtacn/certguard/pkg/constants"
	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Dependencies are the collaborators of the router. Limiter, Idempotency, Tracer and Metrics may be nil.
type Dependencies struct {
	Config   *config.Config
	Logger   logger.Logger
	Tokens   middleware.TokenValidator
	Limiter  middleware.Limiter
	Tracer   middleware.SpanStarter
	Metrics  middleware.RequestObserver
	Gatherer prometheus.Gatherer

	Idempotency middleware.KeyClaimer

	Health       *handlers.HealthHandler
	Auth         *handlers.AuthHandler
	Certificates *handlers.CertificateHandler
	Keys         *handlers.KeyHandler
}

// Router HTTP 路由器
type Router struct {
	engine *gin.Engine
	deps   Dependencies
	logger logger.Logger
	server *http.Server
}

// NewRouter 创建路由器
func NewRouter(deps Dependencies) *Router {
	if deps.Config.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	r := &Router{
		engine: gin.New(),
		deps:   deps,
		logger: deps.Logger.WithComponent("Router"),
	}
	r.SetupRoutes()
	return r
}

// SetupRoutes 设置路由
func (r *Router) SetupRoutes() {
	cfg := r.deps.Config
	log := r.deps.Logger

	// 全局中间件
	r.engine.Use(
		middleware.Recovery(log),
		middleware.RequestContext(),
		middleware.ObservabilityMiddleware(r.deps.Tracer, r.deps.Metrics),
		middleware.Logging(log),
		limitBody(maxBodyBytes),
	)

	// CORS 配置
	if len(cfg.Server.AllowedOrigins) > 0 {
		r.engine.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.Server.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "If-None-Match", constants.HeaderRequestID, constants.HeaderIdempotencyKey},
			ExposeHeaders:    []string{constants.HeaderRequestID, "ETag", constants.HeaderRateLimitLimit, constants.HeaderRateLimitRemaining, constants.HeaderRetryAfter},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	// 健康检查路由（不需要认证）
	r.engine.GET("/health/live", r.deps.Health.LivenessCheck)
	r.engine.GET("/health/ready", r.deps.Health.ReadinessCheck)

	// Prometheus metrics
	r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.deps.Gatherer, promhttp.HandlerOpts{})))

	// Pprof 性能分析（仅在非生产环境）
	if !cfg.Server.IsProduction() {
		pprof.Register(r.engine)
	}

	// 公开的证书验证资源
	r.engine.GET(constants.PathDIDDocument, middleware.ETagCache(cfg.StatusList.CacheTTL), r.deps.Keys.GetDIDDocument)
	r.engine.GET("/status-list/:year", r.deps.Certificates.GetStatusList)

	requireJWT := middleware.RequireJWT(r.deps.Tokens, log)
	authLimit := middleware.RateLimitMiddleware(r.deps.Limiter, cfg.RateLimit.Enabled, constants.RateLimitScopeAuth, log)
	verifyLimit := middleware.RateLimitMiddleware(r.deps.Limiter, cfg.RateLimit.Enabled, constants.RateLimitScopeVerify, log)
	idempotent := func(c *gin.Context) { c.Next() }
	if r.deps.Idempotency != nil {
		idempotent = middleware.IdempotencyMiddleware(r.deps.Idempotency, constants.IdempotencyKeyTTL, log)
	}

	// API 路由组
	v1 := r.engine.Group("/api/v1")
	{
		v1.GET("/verify/:code", verifyLimit, r.deps.Certificates.VerifyByCode)

		auth := v1.Group("/auth")
		{
			auth.POST("/sign-in", authLimit, r.deps.Auth.SignIn)
			auth.POST("/refresh", authLimit, r.deps.Auth.RefreshToken)

			session := auth.Group("", requireJWT)
			session.POST("/sign-out", r.deps.Auth.SignOut)
			session.POST("/sign-out-all", r.deps.Auth.SignOutAll)
			session.POST("/change-password", authLimit, r.deps.Auth.ChangePassword)
			session.POST("/2fa/setup", r.deps.Auth.Setup2FA)
			session.POST("/2fa/enable", authLimit, r.deps.Auth.Enable2FA)
			session.POST("/2fa/disable", authLimit, r.deps.Auth.Disable2FA)
		}

		certs := v1.Group("/certificates", requireJWT)
		{
			certs.POST("", middleware.RequireRole(models.RoleAdmin, models.RoleAssessor), idempotent, r.deps.Certificates.Issue)
			certs.GET("/:id/verify", r.deps.Certificates.Verify)
			certs.POST("/:id/revoke", middleware.RequireRole(models.RoleAdmin), idempotent, r.deps.Certificates.Revoke)
		}

		admin := v1.Group("/admin", requireJWT, middleware.RequireRole(models.RoleAdmin))
		{
			admin.GET("/keys", r.deps.Keys.Status)
			admin.POST("/keys/rotate", idempotent, r.deps.Keys.Rotate)
			admin.POST("/users/:id/unlock", r.deps.Auth.UnlockAccount)
		}
	}

	// 404 处理
	r.engine.NoRoute(func(c *gin.Context) {
		dto.SendError(c, errors.ErrNotFound("route", c.Request.URL.Path))
	})
}

// limitBody caps the request body so a client cannot stream an unbounded payload into a JSON decoder.
func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}

// Start serves until ctx is cancelled, then shuts down within the configured timeout.
// Start 启动 HTTP 服务器，ctx 取消后优雅关闭。
func (r *Router) Start(ctx context.Context) error {
	srv := r.deps.Config.Server
	addr := fmt.Sprintf("%s:%d", srv.Host, srv.Port)
	r.server = &http.Server{
		Addr:              addr,
		Handler:           r.engine,
		ReadTimeout:       srv.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      srv.WriteTimeout,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info(ctx, "Starting HTTP server", logger.String("address", addr))
		if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := srv.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return r.Stop(shutdownCtx)
}

// Stop 停止 HTTP 服务器
func (r *Router) Stop(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	r.logger.Info(ctx, "Stopping HTTP server...")
	if err := r.server.Shutdown(ctx); err != nil {
		r.logger.Error(ctx, "Server forced to shutdown", err)
		return err
	}
	r.logger.Info(ctx, "HTTP server stopped")
	return nil
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
