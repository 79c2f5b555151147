// Package api implements the External API Boundary Contracts (C10): the
// gin HTTP router, request/response DTOs, error-kind-to-status mapping, and
// Jarvis device-secret JWT issuance (spec §6, §7).
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orchcore/orchcore/internal/domain"
	"github.com/orchcore/orchcore/internal/taskrunner"
)

// writeError maps a domain sentinel error to its HTTP status and writes a
// JSON body (spec §7: "the boundary maps to HTTP 4xx"). Webhook-path
// handlers use their own minimal responses instead (spec §7: "Webhook
// 401/400 are silent").
func writeError(c *gin.Context, err error) {
	status, body := errorResponse(err)
	c.JSON(status, body)
}

func errorResponse(err error) (int, gin.H) {
	switch {
	case errors.Is(err, taskrunner.ErrBusy):
		return http.StatusConflict, gin.H{"error": "busy"}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, gin.H{"error": "not found"}
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, gin.H{"error": err.Error()}
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, gin.H{"error": "unauthorized"}
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, gin.H{"error": "forbidden"}
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, gin.H{"error": "conflict"}
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable, gin.H{"error": "unavailable"}
	case errors.Is(err, domain.ErrCancelled):
		return http.StatusConflict, gin.H{"error": "cancelled"}
	case errors.Is(err, domain.ErrInvariant):
		// Invariant violations are a bug indicator (spec §7): surfaced to
		// logs by the caller, never echoed verbatim to the client.
		return http.StatusInternalServerError, gin.H{"error": "internal error"}
	default:
		return http.StatusInternalServerError, gin.H{"error": "internal error"}
	}
}
