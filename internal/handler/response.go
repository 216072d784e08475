package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/streamhaven/entitlement-api/pkg/errors"
)

type Response struct {
	Status  string      `json:"status"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// WriteError translates a service error into the caller-visible status and
// stable code. Business outcomes keep their code; everything unexpected
// collapses to a generic retry-later 500.
func WriteError(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)
	resp := &Response{
		Status:  "error",
		Code:    string(code),
		Message: err.Error(),
	}
	if code == apperrors.CodeInternal {
		resp.Message = "service unavailable, try again later"
	}
	if code == apperrors.CodeLockTimeout {
		// Lock-wait losers should come straight back; the lock is held for
		// milliseconds, not minutes.
		c.Header("Retry-After", "1")
	}
	c.JSON(statusFor(code), resp)
}

func statusFor(code apperrors.Code) int {
	switch code {
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeBadRequest:
		return http.StatusBadRequest
	case apperrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.CodeForbidden, apperrors.CodeNotOwner:
		return http.StatusForbidden
	case apperrors.CodeLockTimeout:
		return http.StatusServiceUnavailable
	case apperrors.CodeInternal:
		return http.StatusInternalServerError
	default:
		// remaining state-conflict codes
		return http.StatusConflict
	}
}
