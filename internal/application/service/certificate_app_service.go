package service

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/certguard/internal/application/dto"
	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/internal/domain/repository"
	domainService "github.com/turtacn/certguard/internal/domain/service"
	"github.com/turtacn/certguard/pkg/constants"
	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
	"github.com/turtacn/certguard/pkg/utils"
)

// minStatusListYear is the first year a status list can exist for.
const minStatusListYear = 2020

// CertificateAppService issues, revokes and verifies certificates and serves the yearly status lists.
// CertificateAppService 负责证书的颁发、吊销、验证以及年度状态列表的发布。
type CertificateAppService struct {
	certs       repository.CertificateRepository
	credentials *domainService.CredentialService
	statuses    *domainService.StatusListService
	cache       *domainService.StatusListCacheService
	purger      domainService.CachePurger
	audit       domainService.AuditService
	metrics     domainService.Metrics
	now         func() time.Time
	logger      logger.Logger

	// regenerations coalesces concurrent cache misses of the same year.
	regenerations singleflight.Group
}

// CertificateDependencies wires the collaborators of CertificateAppService.
type CertificateDependencies struct {
	Certificates repository.CertificateRepository
	Credentials  *domainService.CredentialService
	StatusLists  *domainService.StatusListService
	Cache        *domainService.StatusListCacheService
	// Purger is optional.
	Purger       domainService.CachePurger
	Audit        domainService.AuditService
	Metrics      domainService.Metrics
	Now          domainService.Clock
	Logger       logger.Logger
}

// NewCertificateAppService creates the service.
func NewCertificateAppService(deps CertificateDependencies) *CertificateAppService {
	if deps.Metrics == nil {
		deps.Metrics = domainService.NewNoopMetrics()
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNoopLogger()
	}
	s := &CertificateAppService{
		certs:       deps.Certificates,
		credentials: deps.Credentials,
		statuses:    deps.StatusLists,
		cache:       deps.Cache,
		purger:      deps.Purger,
		audit:       deps.Audit,
		metrics:     deps.Metrics,
		now:         time.Now,
		logger:      deps.Logger.WithComponent("CertificateAppService"),
	}
	if deps.Now != nil {
		s.now = deps.Now
	}
	return s
}

// Issue signs and stores the certificate of a PASSED submission. The submission is locked for the
// whole transaction; a second issuance is a conflict and nothing is persisted when signing fails.
func (s *CertificateAppService) Issue(ctx context.Context, submissionID string) (*dto.CertificateDTO, error) {
	if err := utils.ValidateStruct(&dto.IssueCertificateRequest{SubmissionID: submissionID}); err != nil {
		return nil, err
	}

	var issued *models.IssuedCredential
	cert, err := s.certs.IssueWithinTx(ctx, submissionID, func(ctx context.Context, sub *models.Submission, index int64) (*models.Certificate, error) {
		c, vc, err := s.buildCertificate(ctx, sub, index)
		if err != nil {
			return nil, err
		}
		issued = vc
		return c, nil
	})
	if err != nil {
		s.metrics.RecordCertificateOperation("issue", false)
		s.logger.Error(ctx, "Certificate issuance failed", err, logger.String("submission_id", submissionID))
		return nil, err
	}

	s.metrics.RecordCertificateOperation("issue", true)
	emitAudit(ctx, s.audit, s.logger, models.NewAuditEvent(constants.AuditCertificateIssued, "", true).
		WithDetails(map[string]interface{}{
			"certificateId":     cert.ID,
			"certificateNumber": cert.CertificateNumber,
			"submissionId":      submissionID,
			"statusListIndex":   cert.StatusListIndex,
			"keyVersion":        cert.KeyVersion,
		}))
	s.logger.Info(ctx, "Certificate issued",
		logger.String("certificate_id", cert.ID),
		logger.String("certificate_number", cert.CertificateNumber),
		logger.Int64("status_list_index", cert.StatusListIndex))
	return dto.NewCertificateDTO(cert, issued.Credential), nil
}

func (s *CertificateAppService) buildCertificate(ctx context.Context, sub *models.Submission, index int64) (*models.Certificate, *models.IssuedCredential, error) {
	issuedAt := s.now().UTC().Truncate(time.Second)
	number, err := domainService.GenerateCertificateNumber(issuedAt.Year(), true)
	if err != nil {
		return nil, nil, errors.ErrInternal("failed to generate certificate number").WithCause(err)
	}
	code, err := domainService.GenerateVerificationCode()
	if err != nil {
		return nil, nil, errors.ErrInternal("failed to generate verification code").WithCause(err)
	}
	scores, err := sub.CategoryScores()
	if err != nil {
		return nil, nil, errors.ErrValidation("submission category scores are malformed", nil).WithCause(err)
	}

	id := uuid.NewString()
	issued, err := s.credentials.IssueCredential(ctx, domainService.CredentialInput{
		CertificateID:      id,
		CertificateNumber:  number,
		ImplementationID:   sub.ImplementationID,
		ImplementationName: sub.ImplementationName,
		ImplementationURL:  sub.ImplementationURL,
		ControlGroup:       sub.ControlGroup,
		FinalScore:         sub.FinalScore,
		CategoryScores:     scores,
		IssuedAt:           issuedAt,
	}, index)
	if err != nil {
		return nil, nil, err
	}

	raw, err := json.Marshal(issued.Credential)
	if err != nil {
		return nil, nil, errors.ErrInternal("failed to encode credential").WithCause(err)
	}
	validUntil, err := time.Parse(time.RFC3339, issued.Credential.ValidUntil)
	if err != nil {
		return nil, nil, errors.ErrInternal("credential has no validUntil").WithCause(err)
	}

	return &models.Certificate{
		ID:                 id,
		CertificateNumber:  number,
		VerificationCode:   code,
		ImplementationID:   sub.ImplementationID,
		ImplementationName: sub.ImplementationName,
		ControlGroup:       sub.ControlGroup,
		FinalScore:         sub.FinalScore,
		Year:               issuedAt.Year(),
		CredentialJSON:     string(raw),
		CertificateHash:    issued.CertificateHash,
		Signature:          issued.Signature,
		KeyVersion:         issued.KeyVersion,
		IssuedAt:           issuedAt,
		ValidUntil:         validUntil.UTC(),
	}, issued, nil
}

// Revoke marks the certificate revoked exactly once and invalidates the cached status list of its year.
func (s *CertificateAppService) Revoke(ctx context.Context, certificateID string, req *dto.RevokeCertificateRequest) (*dto.CertificateDTO, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	cert, err := s.certs.Revoke(ctx, certificateID, req.Reason, s.now().UTC())
	if err != nil {
		s.metrics.RecordCertificateOperation("revoke", false)
		return nil, err
	}
	s.cache.Invalidate(ctx, cert.Year)
	purgeEdge(ctx, s.purger, s.logger, constants.PathStatusListPrefix+strconv.Itoa(cert.Year))

	s.metrics.RecordCertificateOperation("revoke", true)
	emitAudit(ctx, s.audit, s.logger, models.NewAuditEvent(constants.AuditCertificateRevoked, "", true).
		WithDetails(map[string]interface{}{
			"certificateId":   cert.ID,
			"year":            cert.Year,
			"statusListIndex": cert.StatusListIndex,
			"reason":          req.Reason,
		}))
	s.logger.Info(ctx, "Certificate revoked",
		logger.String("certificate_id", cert.ID), logger.Int("year", cert.Year), logger.Int64("status_list_index", cert.StatusListIndex))
	return dto.NewCertificateDTO(cert, nil), nil
}

// Verify checks the stored credential of a certificate by id.
func (s *CertificateAppService) Verify(ctx context.Context, certificateID string) (*dto.VerificationResponse, error) {
	cert, err := s.certs.FindByID(ctx, certificateID)
	if err != nil {
		return nil, err
	}
	return s.verify(ctx, cert)
}

// FindByVerificationCode checks the certificate behind a public verification code. Malformed codes
// are rejected before the store is queried.
func (s *CertificateAppService) FindByVerificationCode(ctx context.Context, code string) (*dto.VerificationResponse, error) {
	if !domainService.ValidateVerificationCode(code) {
		return nil, errors.ErrValidation("malformed verification code", map[string]string{"code": "must be an 11 character verification code"})
	}
	cert, err := s.certs.FindByVerificationCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.verify(ctx, cert)
}

func (s *CertificateAppService) verify(ctx context.Context, cert *models.Certificate) (*dto.VerificationResponse, error) {
	var vc models.VerifiableCredential
	if err := json.Unmarshal([]byte(cert.CredentialJSON), &vc); err != nil {
		return nil, errors.ErrInternal("stored credential is unreadable").WithCause(err)
	}

	now := s.now()
	res := s.credentials.VerifyCredentialFull(ctx, &vc, cert.CertificateHash)
	res.Revoked = cert.Revoked
	res.Expired = cert.IsExpired(now)
	if res.Valid && res.Revoked {
		res.Valid = false
		res.Reason = "certificate has been revoked"
	}
	if res.Valid && res.Expired {
		res.Valid = false
		res.Reason = "certificate has expired"
	}

	s.metrics.RecordCertificateOperation("verify", res.Valid)
	return &dto.VerificationResponse{
		Certificate:  dto.NewCertificateDTO(cert, &vc),
		Verification: res,
		CheckedAt:    now.UTC(),
	}, nil
}

// GetStatusList returns the signed status list of year from the cache, generating and caching it on
// a miss. Concurrent misses share one generation.
func (s *CertificateAppService) GetStatusList(ctx context.Context, year int) (*models.CachedStatusList, error) {
	if err := s.validateYear(year); err != nil {
		return nil, err
	}
	if cached, _ := s.cache.Get(ctx, year); cached != nil {
		return cached, nil
	}

	v, err, shared := s.regenerations.Do(strconv.Itoa(year), func() (interface{}, error) {
		// Shared by every waiting caller, so one cancelled request must not fail the rest.
		genCtx := context.WithoutCancel(ctx)
		version := s.cache.Version(genCtx, year)
		vc, err := s.statuses.GenerateStatusList(genCtx, year)
		if err != nil {
			return nil, err
		}
		return s.cache.Set(genCtx, year, vc, version)
	})
	if err != nil {
		s.logger.Error(ctx, "Status list generation failed", err, logger.Int("year", year))
		return nil, err
	}
	if shared {
		s.logger.Debug(ctx, "Status list generation shared", logger.Int("year", year))
	}
	return v.(*models.CachedStatusList), nil
}

// StatusListNotModified reports whether clientETag still matches the cached list of year.
func (s *CertificateAppService) StatusListNotModified(ctx context.Context, year int, clientETag string) bool {
	if s.validateYear(year) != nil {
		return false
	}
	return s.cache.ValidateETag(ctx, year, clientETag)
}

// CacheTTL is the max-age published for status lists.
func (s *CertificateAppService) CacheTTL() time.Duration {
	return s.cache.TTL()
}

// InvalidateStatusLists drops every recent yearly list, e.g. after a bulk revocation.
func (s *CertificateAppService) InvalidateStatusLists(ctx context.Context) {
	s.cache.InvalidateAll(ctx, s.now())
}

func (s *CertificateAppService) validateYear(year int) error {
	if year < minStatusListYear || year > s.now().Year()+1 {
		return errors.ErrValidation("status list year out of range", map[string]string{"year": "must be between 2020 and next year"})
	}
	return nil
}
