package audit

import (
	"context"

	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/internal/domain/service"
	"github.com/turtacn/certguard/pkg/logger"
)

// LogAuditService writes audit events as structured log lines. It is the default sink.
type LogAuditService struct {
	logger logger.Logger
}

func NewLogAuditService(log logger.Logger) service.AuditService {
	return &LogAuditService{logger: log.WithComponent("audit")}
}

func (s *LogAuditService) LogEvent(ctx context.Context, event models.AuditEvent) error {
	s.logger.Info(ctx, "audit event",
		logger.String("event_id", event.ID),
		logger.String("event_type", string(event.Type)),
		logger.String("user_id", event.UserID),
		logger.String("actor", event.Actor),
		logger.String("ip", event.IPAddress),
		logger.Bool("success", event.Success),
		logger.String("details", event.Details),
		logger.String("signature", event.Signature),
	)
	return nil
}
