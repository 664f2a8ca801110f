package dto

import (
	"github.com/gin-gonic/gin"

	"github.com/turtacn/certguard/pkg/constants"
)

// SendSuccess writes a success envelope.
func SendSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, SuccessResponse(data, c.GetString(string(constants.ContextKeyTraceID))))
}

// SendError writes an error envelope and aborts the handler chain.
func SendError(c *gin.Context, err error) {
	status, body := ErrorResponse(err, c.GetString(string(constants.ContextKeyTraceID)))
	c.AbortWithStatusJSON(status, body)
}
