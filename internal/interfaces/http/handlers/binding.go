package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/turtacn/certguard/internal/application/dto"
	"github.com/turtacn/certguard/pkg/errors"
)

// bindJSON decodes the body into dst. Field rules are checked by the application services.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		dto.SendError(c, errors.ErrValidation("malformed request body", nil).WithCause(err))
		return false
	}
	return true
}
