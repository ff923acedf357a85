// internal/handler/live_handler.go
package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"unilog-service/internal/service"
	"unilog-service/internal/utils"
)

// LiveHandler controls live acquisition loops
type LiveHandler struct {
	acquisitionService *service.AcquisitionService
	logger             *utils.ServiceLogger
}

// NewLiveHandler creates a new live handler
func NewLiveHandler(acquisitionService *service.AcquisitionService, logger *zap.Logger) *LiveHandler {
	return &LiveHandler{
		acquisitionService: acquisitionService,
		logger:             utils.NewServiceLogger(logger, "live-handler"),
	}
}

// RegisterRoutes registers live routes
func (h *LiveHandler) RegisterRoutes(router *gin.RouterGroup) {
	live := router.Group("/devices/:id/live")
	{
		live.GET("", h.GetStatus)
		live.POST("/start", h.Start)
		live.POST("/stop", h.Stop)
	}
	router.GET("/live", h.ListRunning)
}

// Start starts a live session
// @Summary Start live acquisition
// @Description Open the logger, begin streaming and poll it until stopped
// @Tags Live
// @Accept json
// @Produce json
// @Param id path string true "Device ID"
// @Param request body service.StartLiveRequest false "Live options"
// @Success 202 {object} utils.APIResponse{data=service.LiveStatus} "Live acquisition started"
// @Failure 404 {object} utils.APIResponse "Device not found"
// @Failure 409 {object} utils.APIResponse "Port busy"
// @Router /devices/{id}/live/start [post]
func (h *LiveHandler) Start(c *gin.Context) {
	deviceID := c.Param("id")

	var req service.StartLiveRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	status, err := h.acquisitionService.StartLive(c.Request.Context(), deviceID, &req)
	if err != nil {
		h.logger.Error("Failed to start live acquisition", zap.Error(err), zap.String("device_id", deviceID))
		respondError(c, "Failed to start live acquisition", err)
		return
	}

	utils.SuccessResponse(c, http.StatusAccepted, "Live acquisition started", status)
}

// Stop stops a live session and returns the stored session
// @Summary Stop live acquisition
// @Tags Live
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} utils.APIResponse{data=model.Session} "Live acquisition stopped"
// @Failure 409 {object} utils.APIResponse "No live session running"
// @Router /devices/{id}/live/stop [post]
func (h *LiveHandler) Stop(c *gin.Context) {
	deviceID := c.Param("id")
	session, err := h.acquisitionService.StopLive(c.Request.Context(), deviceID)
	if err != nil {
		h.logger.Error("Failed to stop live acquisition", zap.Error(err), zap.String("device_id", deviceID))
		respondError(c, "Failed to stop live acquisition", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Live acquisition stopped", session)
}

// GetStatus reports the running loop of a logger
// @Summary Live acquisition status
// @Tags Live
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} utils.APIResponse{data=service.LiveStatus} "Live status retrieved"
// @Failure 409 {object} utils.APIResponse "No live session running"
// @Router /devices/{id}/live [get]
func (h *LiveHandler) GetStatus(c *gin.Context) {
	status, err := h.acquisitionService.LiveStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to get live status", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Live status retrieved", status)
}

// ListRunning lists the loggers with a running loop
// @Summary Running live sessions
// @Tags Live
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]string} "Running live sessions"
// @Router /live [get]
func (h *LiveHandler) ListRunning(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Running live sessions", h.acquisitionService.Running())
}
