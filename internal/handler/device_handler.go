// internal/handler/device_handler.go
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"unilog-service/internal/model"
	"unilog-service/internal/repository"
	"unilog-service/internal/service"
	"unilog-service/internal/utils"
)

// DeviceHandler handles device-related HTTP requests
type DeviceHandler struct {
	deviceService *service.DeviceService
	logger        *utils.ServiceLogger
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(deviceService *service.DeviceService, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{
		deviceService: deviceService,
		logger:        utils.NewServiceLogger(logger, "device-handler"),
	}
}

// RegisterRoutes registers device-related routes
func (h *DeviceHandler) RegisterRoutes(router *gin.RouterGroup) {
	devices := router.Group("/devices")
	{
		devices.POST("", h.RegisterDevice)
		devices.GET("", h.ListDevices)

		deviceRoutes := devices.Group("/:id")
		{
			deviceRoutes.GET("", h.GetDevice)
			deviceRoutes.PUT("", h.UpdateConnection)
			deviceRoutes.DELETE("", h.DeleteDevice)
			deviceRoutes.POST("/test", h.TestDevice)
			deviceRoutes.GET("/capabilities", h.GetCapabilities)
		}
	}
}

// RegisterDevice registers a new logger
// @Summary Register a logger
// @Description Register a UniLog or UniLog2 logger with its transport settings
// @Tags Devices
// @Accept json
// @Produce json
// @Param request body service.RegisterDeviceRequest true "Device registration request"
// @Success 201 {object} utils.APIResponse{data=model.Device} "Device registered successfully"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Failure 409 {object} utils.APIResponse "Device already registered"
// @Router /devices [post]
func (h *DeviceHandler) RegisterDevice(c *gin.Context) {
	var req service.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.LogAPIRequest(c.Request.Method, c.Request.URL.Path, c.Request.UserAgent(), c.ClientIP(), http.StatusBadRequest, 0)
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	device, err := h.deviceService.RegisterDevice(c.Request.Context(), &req)
	if err != nil {
		h.logger.Error("Failed to register device", zap.Error(err))
		respondError(c, "Failed to register device", err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Device registered successfully", device)
}

// ListDevices lists loggers with filtering and pagination
// @Summary List loggers
// @Tags Devices
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Param generation query string false "Filter by generation" Enums(unilog, unilog2)
// @Param status query string false "Filter by status" Enums(ONLINE, OFFLINE, ERROR, CONNECTING, STREAMING)
// @Param search query string false "Search in device ID and name"
// @Success 200 {object} utils.APIResponse{data=object{devices=[]model.Device,pagination=service.PaginationResult}} "Devices retrieved successfully"
// @Failure 500 {object} utils.APIResponse "Internal server error"
// @Router /devices [get]
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	filter := &repository.DeviceFilter{
		Page:    queryInt(c, "page", 1),
		PerPage: queryInt(c, "per_page", 20),
	}
	if generation := c.Query("generation"); generation != "" {
		g := model.Generation(generation)
		filter.Generation = &g
	}
	if status := c.Query("status"); status != "" {
		s := model.DeviceStatus(status)
		filter.Status = &s
	}
	if search := c.Query("search"); search != "" {
		filter.SearchTerm = &search
	}

	devices, pagination, err := h.deviceService.ListDevices(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list devices", zap.Error(err))
		respondError(c, "Failed to list devices", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Devices retrieved successfully", gin.H{
		"devices":    devices,
		"pagination": pagination,
	})
}

// GetDevice retrieves a logger by device ID
// @Summary Get logger details
// @Tags Devices
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} utils.APIResponse{data=model.Device} "Device retrieved successfully"
// @Failure 404 {object} utils.APIResponse "Device not found"
// @Router /devices/{id} [get]
func (h *DeviceHandler) GetDevice(c *gin.Context) {
	device, err := h.deviceService.GetDevice(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Device not found", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device retrieved successfully", device)
}

// UpdateConnection changes the transport settings of a logger
// @Summary Update logger connection
// @Tags Devices
// @Accept json
// @Produce json
// @Param id path string true "Device ID"
// @Param request body service.UpdateConnectionRequest true "Connection settings"
// @Success 200 {object} utils.APIResponse{data=model.Device} "Device updated successfully"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Failure 409 {object} utils.APIResponse "Port busy"
// @Router /devices/{id} [put]
func (h *DeviceHandler) UpdateConnection(c *gin.Context) {
	deviceID := c.Param("id")

	var req service.UpdateConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	device, err := h.deviceService.UpdateConnection(c.Request.Context(), deviceID, &req)
	if err != nil {
		h.logger.Error("Failed to update device", zap.Error(err), zap.String("device_id", deviceID))
		respondError(c, "Failed to update device", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device updated successfully", device)
}

// DeleteDevice removes a logger
// @Summary Delete logger
// @Description Remove a logger from the registry. Its stored sessions are kept.
// @Tags Devices
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} utils.APIResponse "Device deleted successfully"
// @Failure 404 {object} utils.APIResponse "Device not found"
// @Failure 409 {object} utils.APIResponse "Port busy"
// @Router /devices/{id} [delete]
func (h *DeviceHandler) DeleteDevice(c *gin.Context) {
	deviceID := c.Param("id")
	if err := h.deviceService.DeleteDevice(c.Request.Context(), deviceID); err != nil {
		h.logger.Error("Failed to delete device", zap.Error(err), zap.String("device_id", deviceID))
		respondError(c, "Failed to delete device", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device deleted successfully", gin.H{"device_id": deviceID})
}

// TestDevice probes the logger
// @Summary Test logger connectivity
// @Description Open the port and wait for the logger to report a ready state
// @Tags Devices
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} utils.APIResponse{data=service.TestResult} "Device test completed"
// @Failure 404 {object} utils.APIResponse "Device not found"
// @Failure 409 {object} utils.APIResponse "Port busy"
// @Router /devices/{id}/test [post]
func (h *DeviceHandler) TestDevice(c *gin.Context) {
	deviceID := c.Param("id")
	result, err := h.deviceService.TestDevice(c.Request.Context(), deviceID)
	if err != nil {
		h.logger.Error("Failed to test device", zap.Error(err), zap.String("device_id", deviceID))
		respondError(c, "Failed to test device", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device test completed", result)
}

// GetCapabilities lists what a logger supports
// @Summary Logger capabilities
// @Tags Devices
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} utils.APIResponse{data=service.CapabilitiesResult} "Capabilities retrieved successfully"
// @Failure 404 {object} utils.APIResponse "Device not found"
// @Router /devices/{id}/capabilities [get]
func (h *DeviceHandler) GetCapabilities(c *gin.Context) {
	caps, err := h.deviceService.GetCapabilities(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to get capabilities", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Capabilities retrieved successfully", caps)
}

// queryInt parses a positive integer query parameter
func queryInt(c *gin.Context, name string, fallback int) int {
	if v := c.Query(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
