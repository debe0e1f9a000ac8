package apierr

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error types surfaced in the uniform envelope.
const (
	TypeInvalidRequest = "invalid_request_error"
	TypeAuthentication = "authentication_error"
	TypePermission     = "permission_error"
	TypeNotFound       = "not_found_error"
	TypeRateLimit      = "rate_limit_error"
	TypeDeprecated     = "deprecated_endpoint"
	TypeUpstream       = "upstream_error"
	TypeAPI            = "api_error"
)

// Error is the body of every non-2xx response:
// {"error":{"message":...,"type":...,"code":...}}.
type Error struct {
	Status  int    `json:"-"`
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// New builds an envelope error.
func New(status int, typ, code, message string) *Error {
	return &Error{Status: status, Type: typ, Code: code, Message: message}
}

// Write renders the envelope without aborting the handler chain.
func Write(c *gin.Context, e *Error) {
	c.JSON(e.Status, gin.H{"error": e})
}

// Abort renders the envelope and stops the handler chain.
func Abort(c *gin.Context, e *Error) {
	c.AbortWithStatusJSON(e.Status, gin.H{"error": e})
}

// Convenience constructors for the common cases.

func BadRequest(code, message string) *Error {
	return New(http.StatusBadRequest, TypeInvalidRequest, code, message)
}

func Unauthorized(code, message string) *Error {
	return New(http.StatusUnauthorized, TypeAuthentication, code, message)
}

func Forbidden(code, message string) *Error {
	return New(http.StatusForbidden, TypePermission, code, message)
}

func NotFound(message string) *Error {
	return New(http.StatusNotFound, TypeNotFound, "not_found", message)
}

func Internal(message string) *Error {
	return New(http.StatusInternalServerError, TypeAPI, "internal_error", message)
}

func Upstream(code, message string) *Error {
	return New(http.StatusBadGateway, TypeUpstream, code, message)
}
