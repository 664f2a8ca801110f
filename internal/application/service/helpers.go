package service

import (
	"context"

	"github.com/turtacn/certguard/internal/domain/models"
	domainService "github.com/turtacn/certguard/internal/domain/service"
	"github.com/turtacn/certguard/pkg/constants"
	"github.com/turtacn/certguard/pkg/logger"
)

// logAudit emits event best-effort. A failing sink never fails the operation.
func (s *authAppServiceImpl) logAudit(ctx context.Context, event models.AuditEvent) {
	emitAudit(ctx, s.audit, s.logger, event)
}

func emitAudit(ctx context.Context, sink domainService.AuditService, log logger.Logger, event models.AuditEvent) {
	if sink == nil {
		return
	}
	if event.TraceID == "" {
		if traceID, ok := ctx.Value(constants.ContextKeyTraceID).(string); ok {
			event.TraceID = traceID
		}
	}
	if event.IPAddress == "" {
		if ip, ok := ctx.Value(constants.ContextKeyClientIP).(string); ok {
			event.IPAddress = ip
		}
	}
	if event.Actor == "" {
		if uid, ok := ctx.Value(constants.ContextKeyUserID).(string); ok {
			event.Actor = uid
		}
	}
	if err := sink.LogEvent(ctx, event); err != nil {
		log.Warn(ctx, "Failed to emit audit event", logger.String("type", string(event.Type)), logger.Error(err))
	}
}

// notify sends mail synchronously and swallows failures.
func (s *authAppServiceImpl) notify(ctx context.Context, kind domainService.NotificationKind, to string, data map[string]string) {
	if s.mailer == nil {
		return
	}
	if err := s.mailer.Notify(ctx, domainService.Notification{Kind: kind, To: to, Data: data}); err != nil {
		s.logger.Warn(ctx, "Failed to send notification", logger.String("kind", string(kind)), logger.Email("to", to), logger.Error(err))
	}
}

// purgeEdge asks the edge cache to drop paths. Purging is best-effort; the documents expire on
// their own after max-age.
func purgeEdge(ctx context.Context, purger domainService.CachePurger, log logger.Logger, paths ...string) {
	if purger == nil {
		return
	}
	if err := purger.PurgePaths(ctx, paths...); err != nil {
		log.Warn(ctx, "Failed to purge edge cache", logger.Any("paths", paths), logger.Error(err))
	}
}
