package audit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"

	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/internal/domain/service"
	"github.com/turtacn/certguard/pkg/logger"
)

// SignAuditEvent calculates the HMAC-SHA256 signature for an audit event.
// The signature field itself is excluded from the signed bytes.
func SignAuditEvent(event models.AuditEvent, secretKey string) (string, error) {
	event.Signature = ""
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return "", err
	}

	h := hmac.New(sha256.New, []byte(secretKey))
	h.Write(eventBytes)
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

// VerifyAuditEvent reports whether event carries a valid signature for secretKey.
func VerifyAuditEvent(event models.AuditEvent, secretKey string) bool {
	want, err := SignAuditEvent(event, secretKey)
	if err != nil || event.Signature == "" {
		return false
	}
	return hmac.Equal([]byte(want), []byte(event.Signature))
}

// SigningAuditService signs every event, then hands it to the sink. Sink errors are logged and
// returned; callers on supplementary paths ignore them.
type SigningAuditService struct {
	sink   service.AuditService
	secret string
	logger logger.Logger
}

// NewSigningAuditService wraps sink. An empty secret disables signing.
func NewSigningAuditService(sink service.AuditService, secret string, log logger.Logger) *SigningAuditService {
	return &SigningAuditService{sink: sink, secret: secret, logger: log.WithComponent("audit")}
}

func (s *SigningAuditService) LogEvent(ctx context.Context, event models.AuditEvent) error {
	if s.secret != "" {
		sig, err := SignAuditEvent(event, s.secret)
		if err != nil {
			s.logger.Error(ctx, "failed to sign audit event", err, logger.String("event_id", event.ID))
			return err
		}
		event.Signature = sig
	}
	if err := s.sink.LogEvent(ctx, event); err != nil {
		s.logger.Warn(ctx, "audit sink rejected event",
			logger.String("event_id", event.ID), logger.Error(err))
		return err
	}
	return nil
}
