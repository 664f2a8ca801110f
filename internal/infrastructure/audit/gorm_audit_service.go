package audit

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/internal/domain/service"
	"github.com/turtacn/certguard/pkg/errors"
)

// GormAuditService stores audit events in the audit_events table. A redelivered event with an
// id already stored is dropped, so retrying callers never duplicate the trail.
type GormAuditService struct {
	db *gorm.DB
}

func NewGormAuditService(db *gorm.DB) service.AuditService {
	return &GormAuditService{db: db}
}

func (s *GormAuditService) LogEvent(ctx context.Context, event models.AuditEvent) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&event).Error
	if err != nil {
		return errors.ErrServiceUnavailable("audit store").WithCause(err)
	}
	return nil
}
