package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/certguard/internal/application/dto"
	"github.com/turtacn/certguard/internal/domain/models"
	domainService "github.com/turtacn/certguard/internal/domain/service"
	"github.com/turtacn/certguard/pkg/constants"
	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
)

// CertificateService is what the certificate endpoints need. service.CertificateAppService satisfies it.
type CertificateService interface {
	Issue(ctx context.Context, submissionID string) (*dto.CertificateDTO, error)
	Revoke(ctx context.Context, certificateID string, req *dto.RevokeCertificateRequest) (*dto.CertificateDTO, error)
	Verify(ctx context.Context, certificateID string) (*dto.VerificationResponse, error)
	FindByVerificationCode(ctx context.Context, code string) (*dto.VerificationResponse, error)
	GetStatusList(ctx context.Context, year int) (*models.CachedStatusList, error)
	StatusListNotModified(ctx context.Context, year int, clientETag string) bool
	CacheTTL() time.Duration
}

// CertificateHandler serves issuance, revocation, verification and the public status lists.
// CertificateHandler 负责证书颁发、吊销、验证以及公开的状态列表。
type CertificateHandler struct {
	certs  CertificateService
	logger logger.Logger
}

// NewCertificateHandler creates a new CertificateHandler.
func NewCertificateHandler(certs CertificateService, log logger.Logger) *CertificateHandler {
	return &CertificateHandler{certs: certs, logger: log.WithComponent("CertificateHandler")}
}

// Issue handles POST /certificates.
func (h *CertificateHandler) Issue(c *gin.Context) {
	var req dto.IssueCertificateRequest
	if !bindJSON(c, &req) {
		return
	}

	cert, err := h.certs.Issue(c.Request.Context(), req.SubmissionID)
	if err != nil {
		dto.SendError(c, err)
		return
	}
	c.Header("Location", "/api/v1/certificates/"+cert.ID)
	dto.SendSuccess(c, http.StatusCreated, cert)
}

// Revoke handles POST /certificates/:id/revoke.
func (h *CertificateHandler) Revoke(c *gin.Context) {
	var req dto.RevokeCertificateRequest
	if !bindJSON(c, &req) {
		return
	}

	cert, err := h.certs.Revoke(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		dto.SendError(c, err)
		return
	}
	dto.SendSuccess(c, http.StatusOK, cert)
}

// Verify handles GET /certificates/:id/verify.
func (h *CertificateHandler) Verify(c *gin.Context) {
	res, err := h.certs.Verify(c.Request.Context(), c.Param("id"))
	if err != nil {
		dto.SendError(c, err)
		return
	}
	dto.SendSuccess(c, http.StatusOK, res)
}

// VerifyByCode handles the public GET /verify/:code. Invalid certificates still answer 200; the
// verification block says why.
func (h *CertificateHandler) VerifyByCode(c *gin.Context) {
	res, err := h.certs.FindByVerificationCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		dto.SendError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	dto.SendSuccess(c, http.StatusOK, res)
}

// GetStatusList handles the public GET /status-list/:year. The body is the bare credential, not an
// envelope, so relying parties can verify it as served.
func (h *CertificateHandler) GetStatusList(c *gin.Context) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		dto.SendError(c, errors.ErrValidation("invalid year", map[string]string{"year": "must be a number"}))
		return
	}
	ctx := c.Request.Context()

	if inm := c.GetHeader("If-None-Match"); inm != "" && h.certs.StatusListNotModified(ctx, year, inm) {
		h.statusListHeaders(c, domainService.NormalizeETag(inm))
		c.Status(http.StatusNotModified)
		return
	}

	list, err := h.certs.GetStatusList(ctx, year)
	if err != nil {
		dto.SendError(c, err)
		return
	}
	body, err := json.Marshal(list.Credential)
	if err != nil {
		dto.SendError(c, errors.ErrInternal("encode status list").WithCause(err))
		return
	}
	h.statusListHeaders(c, list.ETag)
	c.Data(http.StatusOK, constants.MediaTypeVCLDJSON, body)
}

func (h *CertificateHandler) statusListHeaders(c *gin.Context, etag string) {
	c.Header("ETag", `"`+etag+`"`)
	c.Header("Cache-Control", fmt.Sprintf("public, max-age=%d", int(h.certs.CacheTTL().Seconds())))
	c.Header("Vary", "Accept-Encoding")
}
