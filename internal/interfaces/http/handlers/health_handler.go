package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/pkg/logger"
)

// Pinger is a dependency the readiness probe checks. The database, redis and vault connections satisfy it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// RotationReporter grades the signing key. KeyManagementService satisfies it.
type RotationReporter interface {
	RotationStatus(ctx context.Context) models.RotationReport
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	checks   map[string]Pinger
	rotation RotationReporter
	timeout  time.Duration
	now      func() time.Time
	log      logger.Logger
}

// NewHealthHandler creates a new HealthHandler. rotation may be nil.
func NewHealthHandler(checks map[string]Pinger, rotation RotationReporter, log logger.Logger) *HealthHandler {
	return &HealthHandler{
		checks:   checks,
		rotation: rotation,
		timeout:  2 * time.Second,
		now:      time.Now,
		log:      log.WithComponent("HealthHandler"),
	}
}

// LivenessCheck godoc
// @Summary      Liveness Check
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /health/live [get]
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive", "timestamp": h.now().UTC()})
}

// ReadinessCheck godoc
// @Summary      Readiness Check
// @Description  Checks the dependencies in parallel. The signing key rotation grade is reported but never fails readiness.
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /health/ready [get]
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	checks := h.performChecks(ctx)
	status, httpStatus := "healthy", http.StatusOK
	for _, checkStatus := range checks {
		if checkStatus != "ok" {
			status, httpStatus = "unhealthy", http.StatusServiceUnavailable
			break
		}
	}

	body := gin.H{
		"status":    status,
		"timestamp": h.now().UTC(),
		"checks":    checks,
	}
	if h.rotation != nil {
		body["signing_key"] = h.rotation.RotationStatus(ctx)
	}
	c.JSON(httpStatus, body)
}

func (h *HealthHandler) performChecks(ctx context.Context) map[string]string {
	var wg sync.WaitGroup
	checks := make(map[string]string, len(h.checks))
	mu := &sync.Mutex{}

	wg.Add(len(h.checks))
	for name, p := range h.checks {
		go func(name string, p Pinger) {
			defer wg.Done()
			status := "ok"
			if err := p.Ping(ctx); err != nil {
				h.log.Error(ctx, "Dependency ping failed", err, logger.String("check", name))
				status = "unavailable"
			}
			mu.Lock()
			checks[name] = status
			mu.Unlock()
		}(name, p)
	}
	wg.Wait()
	return checks
}

//Personal.AI order the ending
