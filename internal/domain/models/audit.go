package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/turtacn/certguard/pkg/constants"
)

// AuditEvent represents a single audit trail event.
type AuditEvent struct {
	ID        string                   `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Type      constants.AuditEventType `gorm:"index;size:64;not null" json:"type"`
	UserID    string                   `gorm:"index;size:36" json:"userId,omitempty"`
	Actor     string                   `gorm:"size:255" json:"actor,omitempty"`
	IPAddress string                   `gorm:"size:64" json:"ip,omitempty"`
	Success   bool                     `json:"success"`
	TraceID   string                   `gorm:"size:64" json:"traceId,omitempty"`
	Details   string                   `gorm:"type:text" json:"details,omitempty"`
	Signature string                   `gorm:"size:128" json:"signature,omitempty"`
	CreatedAt time.Time                `gorm:"index" json:"createdAt"`
}

func (AuditEvent) TableName() string { return "audit_events" }

// NewAuditEvent creates a new audit event.
func NewAuditEvent(eventType constants.AuditEventType, userID string, success bool) AuditEvent {
	return AuditEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		UserID:    userID,
		Success:   success,
		CreatedAt: time.Now().UTC(),
	}
}

// WithDetails sets JSON details for the event.
func (a AuditEvent) WithDetails(data interface{}) AuditEvent {
	if b, err := json.Marshal(data); err == nil {
		a.Details = string(b)
	}
	return a
}

// WithIP sets the client address.
func (a AuditEvent) WithIP(ip string) AuditEvent {
	a.IPAddress = ip
	return a
}

//Personal.AI order the ending
