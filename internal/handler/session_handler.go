// internal/handler/session_handler.go
package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"unilog-service/internal/model"
	"unilog-service/internal/repository"
	"unilog-service/internal/service"
	"unilog-service/internal/utils"
)

// SessionHandler serves stored sessions
type SessionHandler struct {
	sessionService *service.SessionService
	logger         *utils.ServiceLogger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessionService *service.SessionService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		logger:         utils.NewServiceLogger(logger, "session-handler"),
	}
}

// RegisterRoutes registers session routes
func (h *SessionHandler) RegisterRoutes(router *gin.RouterGroup) {
	sessions := router.Group("/sessions")
	{
		sessions.GET("", h.ListSessions)
		sessions.GET("/:id", h.GetSession)
		sessions.POST("/:id/recalculate", h.Recalculate)
		sessions.DELETE("/:id", h.DeleteSession)
	}
}

// ListSessions lists stored sessions without their points
// @Summary List sessions
// @Tags Sessions
// @Produce json
// @Param device_id query string false "Filter by logger"
// @Param source query string false "Filter by source" Enums(live, batch)
// @Param start_date query string false "Started at or after (RFC3339)"
// @Param end_date query string false "Started at or before (RFC3339)"
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Success 200 {object} utils.APIResponse{data=object{sessions=[]model.Session,pagination=service.PaginationResult}} "Sessions retrieved"
// @Failure 400 {object} utils.APIResponse "Invalid filter"
// @Router /sessions [get]
func (h *SessionHandler) ListSessions(c *gin.Context) {
	filter := &repository.SessionFilter{
		Page:    queryInt(c, "page", 1),
		PerPage: queryInt(c, "per_page", 20),
	}
	if source := c.Query("source"); source != "" {
		s := model.SessionSource(source)
		filter.Source = &s
	}
	var err error
	if filter.StartDate, err = queryTime(c, "start_date"); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid start_date", err)
		return
	}
	if filter.EndDate, err = queryTime(c, "end_date"); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid end_date", err)
		return
	}

	sessions, pagination, err := h.sessionService.ListSessions(c.Request.Context(), c.Query("device_id"), filter)
	if err != nil {
		respondError(c, "Failed to list sessions", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Sessions retrieved", gin.H{
		"sessions":   sessions,
		"pagination": pagination,
	})
}

// GetSession returns a session with its points
// @Summary Get session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} utils.APIResponse{data=model.Session} "Session retrieved"
// @Failure 404 {object} utils.APIResponse "Session not found"
// @Router /sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	session, err := h.sessionService.GetSession(c.Request.Context(), id)
	if err != nil {
		respondError(c, "Session not found", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Session retrieved", session)
}

// Recalculate reruns the derived measurements with other parameters
// @Summary Recalculate session
// @Description Recompute derived channels of a stored session. The stored session is not changed.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body service.RecalculateRequest false "Calculation parameters"
// @Success 200 {object} utils.APIResponse{data=model.Session} "Session recalculated"
// @Failure 404 {object} utils.APIResponse "Session not found"
// @Router /sessions/{id}/recalculate [post]
func (h *SessionHandler) Recalculate(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req service.RecalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	session, err := h.sessionService.Recalculate(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, "Failed to recalculate session", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Session recalculated", session)
}

// DeleteSession removes a session and its points
// @Summary Delete session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} utils.APIResponse "Session deleted"
// @Failure 404 {object} utils.APIResponse "Session not found"
// @Router /sessions/{id} [delete]
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	if err := h.sessionService.DeleteSession(c.Request.Context(), id); err != nil {
		h.logger.Error("Failed to delete session", zap.Error(err), zap.String("session_id", id.String()))
		respondError(c, "Failed to delete session", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Session deleted", gin.H{"session_id": id})
}

func sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid session ID", err)
		return uuid.Nil, false
	}
	return id, true
}

func queryTime(c *gin.Context, name string) (*time.Time, error) {
	v := c.Query(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("%s must be RFC3339: %w", name, err)
	}
	return &t, nil
}
