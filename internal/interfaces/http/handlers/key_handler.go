package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/certguard/internal/application/dto"
	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/internal/interfaces/http/middleware"
	"github.com/turtacn/certguard/pkg/constants"
	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
)

// KeyService is what the key endpoints need. service.KeyManagementService satisfies it.
type KeyService interface {
	Backend() string
	RotationStatus(ctx context.Context) models.RotationReport
	Metadata(ctx context.Context) (*models.KeyMetadata, error)
	Rotate(ctx context.Context, actor string) (models.KeyVersion, error)
	DIDDocument(ctx context.Context) (*models.DIDDocument, error)
}

// KeyHandler publishes the issuer DID document and exposes signing key administration.
type KeyHandler struct {
	keys   KeyService
	logger logger.Logger
}

func NewKeyHandler(keys KeyService, log logger.Logger) *KeyHandler {
	return &KeyHandler{keys: keys, logger: log.WithComponent("KeyHandler")}
}

// GetDIDDocument handles GET /.well-known/did.json. Every key version is listed so that
// certificates signed before a rotation keep verifying.
func (h *KeyHandler) GetDIDDocument(c *gin.Context) {
	doc, err := h.keys.DIDDocument(c.Request.Context())
	if err != nil {
		h.logger.Error(c.Request.Context(), "DID document unavailable", err)
		dto.SendError(c, err)
		return
	}
	body, err := json.Marshal(doc)
	if err != nil {
		dto.SendError(c, errors.ErrInternal("encode did document").WithCause(err))
		return
	}
	c.Data(http.StatusOK, constants.MediaTypeDIDLDJSON, body)
}

// keyStatusResponse combines the rotation grade with the version list.
type keyStatusResponse struct {
	Backend  string                `json:"backend"`
	Rotation models.RotationReport `json:"rotation"`
	Metadata *models.KeyMetadata   `json:"metadata,omitempty"`
}

// Status handles GET /admin/keys.
func (h *KeyHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()
	resp := keyStatusResponse{Backend: h.keys.Backend(), Rotation: h.keys.RotationStatus(ctx)}
	meta, err := h.keys.Metadata(ctx)
	if err != nil {
		h.logger.Warn(ctx, "Signing key metadata unavailable", logger.Error(err))
	} else {
		resp.Metadata = meta
	}
	dto.SendSuccess(c, http.StatusOK, resp)
}

// Rotate handles POST /admin/keys/rotate.
func (h *KeyHandler) Rotate(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		dto.SendError(c, errors.ErrUnauthorized("missing access token claims"))
		return
	}
	kv, err := h.keys.Rotate(c.Request.Context(), claims.Subject)
	if err != nil {
		dto.SendError(c, err)
		return
	}
	dto.SendSuccess(c, http.StatusOK, kv)
}
