package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mesh-intelligence/casebook/pkg/types"
)

// APIError is the body of every error response.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ErrorEnvelope wraps APIError under the "error" key.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError writes an error envelope with the given status.
func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondOK writes payload as JSON with 200.
func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// respondServiceError maps service errors onto HTTP statuses: validation
// and payload problems are the client's, a missing record is 404, and
// anything else is a persistence failure.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, types.ErrMalformedPayload):
		RespondError(c, http.StatusBadRequest, "malformed_payload", err)
	case errors.Is(err, types.ErrInvalidRecord), errors.Is(err, types.ErrInvalidID):
		RespondError(c, http.StatusBadRequest, "invalid_record", err)
	case errors.Is(err, types.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	default:
		RespondError(c, http.StatusInternalServerError, "storage_failed", err)
	}
}
