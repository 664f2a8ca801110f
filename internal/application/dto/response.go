package dto

import (
	"time"

	"github.com/turtacn/certguard/pkg/errors"
)

// APIResponse 通用 API 响应结构
type APIResponse struct {
	Success   bool                  `json:"success"`
	Data      interface{}           `json:"data,omitempty"`
	Error     *errors.ErrorResponse `json:"error,omitempty"`
	TraceID   string                `json:"trace_id,omitempty"`
	Timestamp int64                 `json:"timestamp"`
}

// SuccessResponse 创建成功响应
func SuccessResponse(data interface{}, traceID string) *APIResponse {
	return &APIResponse{
		Success:   true,
		Data:      data,
		TraceID:   traceID,
		Timestamp: time.Now().Unix(),
	}
}

// ErrorResponse 创建错误响应，返回 HTTP 状态码与响应体。内部错误细节不会返回给客户端。
func ErrorResponse(err error, traceID string) (int, *APIResponse) {
	status, body := errors.ToErrorResponse(err)
	return status, &APIResponse{
		Success:   false,
		Error:     body,
		TraceID:   traceID,
		Timestamp: time.Now().Unix(),
	}
}
