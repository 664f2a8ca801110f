package service

import (
	"context"
	"time"

	"github.com/turtacn/certguard/internal/domain/models"
	domainService "github.com/turtacn/certguard/internal/domain/service"
	"github.com/turtacn/certguard/pkg/constants"
	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
)

// KeyManagementService is the application-layer service responsible for the signing key lifecycle:
// rotation health, rotation itself and the published DID document.
// KeyManagementService 是负责签名密钥生命周期的应用层服务：轮换健康度、轮换操作以及发布的 DID 文档。
type KeyManagementService struct {
	keys   domainService.KeyLifecycle
	signer domainService.SigningService
	policy models.RotationPolicy
	audit  domainService.AuditService
	purger domainService.CachePurger
	now    func() time.Time
	logger logger.Logger
}

// NewKeyManagementService creates a new instance of the KeyManagementService.
func NewKeyManagementService(
	keys domainService.KeyLifecycle,
	signer domainService.SigningService,
	policy models.RotationPolicy,
	audit domainService.AuditService,
	now domainService.Clock,
	log logger.Logger,
) *KeyManagementService {
	s := &KeyManagementService{
		keys:   keys,
		signer: signer,
		policy: policy,
		audit:  audit,
		now:    time.Now,
		logger: log.WithComponent("KeyManagementService"),
	}
	if now != nil {
		s.now = now
	}
	return s
}

// WithCachePurger makes Rotate drop the published DID document from the edge cache.
func (s *KeyManagementService) WithCachePurger(p domainService.CachePurger) *KeyManagementService {
	s.purger = p
	return s
}

// Backend names the key backend in use.
func (s *KeyManagementService) Backend() string { return s.keys.Backend() }

// RotationStatus grades the active key against the rotation policy. A backend that cannot report
// its metadata yields UNKNOWN rather than an error.
func (s *KeyManagementService) RotationStatus(ctx context.Context) models.RotationReport {
	meta, err := s.keys.Metadata(ctx)
	if err != nil {
		s.logger.Warn(ctx, "Failed to read signing key metadata", logger.String("backend", s.keys.Backend()), logger.Error(err))
		return models.RotationReport{Status: constants.RotationUnknown}
	}
	report := domainService.EvaluateRotation(meta, s.policy, s.now())
	if report.Status == constants.RotationCritical {
		s.logger.Warn(ctx, "Signing key exceeded its maximum age",
			logger.Int("active_version", report.ActiveVersion), logger.Int("age_days", report.AgeDays))
	}
	return report
}

// Metadata returns the version history of the signing key.
func (s *KeyManagementService) Metadata(ctx context.Context) (*models.KeyMetadata, error) {
	meta, err := s.keys.Metadata(ctx)
	if err != nil {
		return nil, errors.ErrServiceUnavailable("signing key metadata").WithCause(err)
	}
	return meta, nil
}

// Rotate creates the next key version and makes it active. Older versions keep verifying.
func (s *KeyManagementService) Rotate(ctx context.Context, actor string) (models.KeyVersion, error) {
	previous := s.signer.KeyVersion()
	kv, err := s.keys.Rotate(ctx)
	if err != nil {
		s.logger.Error(ctx, "Signing key rotation failed", err, logger.String("backend", s.keys.Backend()))
		return models.KeyVersion{}, errors.ErrSigningFailed("key rotation failed").WithCause(err)
	}

	event := models.NewAuditEvent(constants.AuditSigningKeyRotated, "", true).
		WithDetails(map[string]interface{}{
			"backend":         s.keys.Backend(),
			"previousVersion": previous,
			"activeVersion":   kv.Version,
		})
	event.Actor = actor
	emitAudit(ctx, s.audit, s.logger, event)
	purgeEdge(ctx, s.purger, s.logger, constants.PathDIDDocument)
	s.logger.Info(ctx, "Signing key rotated",
		logger.String("backend", s.keys.Backend()), logger.Int("previous_version", previous), logger.Int("active_version", kv.Version))
	return kv, nil
}

// PublicKeyMultibase returns the active public key in multibase form.
func (s *KeyManagementService) PublicKeyMultibase(ctx context.Context) (string, error) {
	return s.signer.PublicKeyMultibase(ctx)
}

// DIDDocument returns the issuer DID document.
func (s *KeyManagementService) DIDDocument(ctx context.Context) (*models.DIDDocument, error) {
	return s.signer.DIDDocument(ctx)
}
