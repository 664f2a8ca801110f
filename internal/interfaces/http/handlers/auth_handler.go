package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/certguard/internal/application/dto"
	"github.com/turtacn/certguard/internal/application/service"
	"github.com/turtacn/certguard/internal/interfaces/http/middleware"
	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
)

// AuthHandler handles HTTP requests for authentication.
type AuthHandler struct {
	authService service.AuthAppService
	logger      logger.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService service.AuthAppService, log logger.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      log.WithComponent("AuthHandler"),
	}
}

// SignIn handles POST /auth/sign-in. A 200 with state "tfa" asks the client to resubmit with a code.
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req dto.SignInRequest
	if !bindJSON(c, &req) {
		return
	}
	req.IP = c.ClientIP()

	result, err := h.authService.SignIn(c.Request.Context(), &req)
	if err != nil {
		dto.SendError(c, err)
		return
	}
	dto.SendSuccess(c, http.StatusOK, result)
}

// RefreshToken handles POST /auth/refresh.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req dto.RefreshTokenRequest
	if !bindJSON(c, &req) {
		return
	}

	pair, err := h.authService.RefreshTokens(c.Request.Context(), &req)
	if err != nil {
		dto.SendError(c, err)
		return
	}
	dto.SendSuccess(c, http.StatusOK, pair)
}

// SignOut handles POST /auth/sign-out. The body is optional.
func (h *AuthHandler) SignOut(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		dto.SendError(c, errors.ErrUnauthorized("missing access token claims"))
		return
	}
	var req dto.SignOutRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	if err := h.authService.SignOut(c.Request.Context(), claims, req.RefreshToken); err != nil {
		dto.SendError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SignOutAll handles POST /auth/sign-out-all.
func (h *AuthHandler) SignOutAll(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		dto.SendError(c, errors.ErrUnauthorized("missing access token claims"))
		return
	}

	resp, err := h.authService.SignOutAll(c.Request.Context(), claims.Subject)
	if err != nil {
		dto.SendError(c, err)
		return
	}
	dto.SendSuccess(c, http.StatusOK, resp)
}

// ChangePassword handles POST /auth/change-password. Every session ends, including the current one.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		dto.SendError(c, errors.ErrUnauthorized("missing access token claims"))
		return
	}
	var req dto.ChangePasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.authService.ChangePassword(c.Request.Context(), claims.Subject, &req); err != nil {
		dto.SendError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Setup2FA handles POST /auth/2fa/setup.
func (h *AuthHandler) Setup2FA(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		dto.SendError(c, errors.ErrUnauthorized("missing access token claims"))
		return
	}

	resp, err := h.authService.Setup2FA(c.Request.Context(), claims.Subject)
	if err != nil {
		dto.SendError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	dto.SendSuccess(c, http.StatusOK, resp)
}

// Enable2FA handles POST /auth/2fa/enable.
func (h *AuthHandler) Enable2FA(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		dto.SendError(c, errors.ErrUnauthorized("missing access token claims"))
		return
	}
	var req dto.Enable2FARequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.authService.Enable2FA(c.Request.Context(), claims.Subject, &req)
	if err != nil {
		dto.SendError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	dto.SendSuccess(c, http.StatusOK, resp)
}

// Disable2FA handles POST /auth/2fa/disable.
func (h *AuthHandler) Disable2FA(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		dto.SendError(c, errors.ErrUnauthorized("missing access token claims"))
		return
	}
	var req dto.Disable2FARequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.authService.Disable2FA(c.Request.Context(), claims.Subject, req.Password, req.Code); err != nil {
		dto.SendError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UnlockAccount handles POST /admin/users/:id/unlock.
func (h *AuthHandler) UnlockAccount(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		dto.SendError(c, errors.ErrUnauthorized("missing access token claims"))
		return
	}

	if err := h.authService.UnlockAccount(c.Request.Context(), claims.Subject, c.Param("id")); err != nil {
		dto.SendError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

//Personal.AI order the ending
