// internal/handler/errors.go
package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"unilog-service/internal/protocol"
	"unilog-service/internal/repository"
	"unilog-service/internal/service"
	"unilog-service/internal/utils"
)

// StatusForError maps service and protocol errors to HTTP status codes
func StatusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrDuplicate),
		errors.Is(err, service.ErrPortBusy),
		errors.Is(err, service.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnsupported):
		return http.StatusUnprocessableEntity
	case errors.Is(err, protocol.ErrTimeout),
		errors.Is(err, protocol.ErrNotReady),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, protocol.ErrIO):
		return http.StatusServiceUnavailable
	case errors.Is(err, protocol.ErrChecksum),
		errors.Is(err, protocol.ErrLength),
		errors.Is(err, protocol.ErrProtocol):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with the status from StatusForError. Protocol
// errors carry their code in the response.
func respondError(c *gin.Context, message string, err error) {
	status := StatusForError(err)
	if code := protocol.CodeOf(err); code != "" {
		utils.ErrorResponseWithCode(c, status, strings.ToUpper(string(code)), message, err)
		return
	}
	utils.ErrorResponse(c, status, message, err)
}
