package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"reveal-service/internal/service"
)

// StatusFor maps an accessor error kind to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrAuthRequired):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrPermissionDenied),
		errors.Is(err, service.ErrNotAMember),
		errors.Is(err, service.ErrPrivateGroup),
		errors.Is(err, service.ErrOwnerCannotLeave):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUploadFailed):
		return http.StatusBadGateway
	case errors.Is(err, service.ErrConnectivityLost):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes err with its mapped status. Internal failures are not echoed back.
func RespondError(c *gin.Context, err error) {
	status := StatusFor(err)
	_ = c.Error(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
