// internal/handler/operation_handler.go
package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"unilog-service/internal/model"
	"unilog-service/internal/service"
	"unilog-service/internal/utils"
)

const defaultMaxUploadSize = 8 << 20

// OperationHandler handles device commands, configuration exchange and
// batch transfer
type OperationHandler struct {
	operationService *service.OperationService
	maxUploadSize    int64
	logger           *utils.ServiceLogger
}

// NewOperationHandler creates a new operation handler
func NewOperationHandler(operationService *service.OperationService, maxUploadSize int64, logger *zap.Logger) *OperationHandler {
	if maxUploadSize <= 0 {
		maxUploadSize = defaultMaxUploadSize
	}
	return &OperationHandler{
		operationService: operationService,
		maxUploadSize:    maxUploadSize,
		logger:           utils.NewServiceLogger(logger, "operation-handler"),
	}
}

// RegisterRoutes registers operation-related routes
func (h *OperationHandler) RegisterRoutes(router *gin.RouterGroup) {
	device := router.Group("/devices/:id")
	{
		device.GET("/config", h.ReadConfig)
		device.PUT("/config", h.WriteConfig)
		device.GET("/config/telemetry", h.ReadTelemetryConfig)
		device.PUT("/config/telemetry", h.WriteTelemetryConfig)
		device.GET("/config/file", h.DownloadConfigFile)
		device.POST("/logging/start", h.StartLogging)
		device.POST("/logging/stop", h.StopLogging)
		device.POST("/memory/clear", h.ClearMemory)
		device.POST("/download", h.Download)
		device.POST("/download/stop", h.StopDownload)
		device.GET("/operations", h.ListOperations)
	}

	router.POST("/batch/import", h.ImportBatch)

	cfg := router.Group("/config")
	{
		cfg.POST("/decode", h.DecodeConfig)
		cfg.GET("/files", h.ListConfigFiles)
		cfg.POST("/files", h.BuildConfigFile)
		cfg.GET("/files/:name", h.LoadConfigFile)
	}
}

// ReadConfig reads the runtime configuration of a logger
// @Summary Read logger configuration
// @Tags Configuration
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} utils.APIResponse "Configuration read"
// @Failure 422 {object} utils.APIResponse "Not supported by this generation"
// @Failure 504 {object} utils.APIResponse "Logger did not answer"
// @Router /devices/{id}/config [get]
func (h *OperationHandler) ReadConfig(c *gin.Context) {
	block, err := h.operationService.ReadConfig(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to read configuration", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Configuration read", block)
}

// WriteConfig updates fields of the runtime configuration
// @Summary Write logger configuration
// @Description Read the configuration, apply the given values and write it back
// @Tags Configuration
// @Accept json
// @Produce json
// @Param id path string true "Device ID"
// @Param request body ConfigValuesRequest true "Field values"
// @Success 200 {object} utils.APIResponse "Configuration written"
// @Failure 400 {object} utils.APIResponse "Invalid values"
// @Router /devices/{id}/config [put]
func (h *OperationHandler) WriteConfig(c *gin.Context) {
	var req ConfigValuesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	block, err := h.operationService.WriteConfig(c.Request.Context(), c.Param("id"), req.Values)
	if err != nil {
		h.logger.Error("Failed to write configuration", zap.Error(err), zap.String("device_id", c.Param("id")))
		respondError(c, "Failed to write configuration", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Configuration written", block)
}

// ReadTelemetryConfig reads the telemetry alarm configuration
// @Summary Read telemetry configuration
// @Tags Configuration
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} utils.APIResponse "Telemetry configuration read"
// @Router /devices/{id}/config/telemetry [get]
func (h *OperationHandler) ReadTelemetryConfig(c *gin.Context) {
	block, err := h.operationService.ReadTelemetryConfig(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to read telemetry configuration", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Telemetry configuration read", block)
}

// WriteTelemetryConfig updates the telemetry alarm configuration
// @Summary Write telemetry configuration
// @Tags Configuration
// @Accept json
// @Produce json
// @Param id path string true "Device ID"
// @Param request body ConfigValuesRequest true "Field values"
// @Success 200 {object} utils.APIResponse "Telemetry configuration written"
// @Router /devices/{id}/config/telemetry [put]
func (h *OperationHandler) WriteTelemetryConfig(c *gin.Context) {
	var req ConfigValuesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	block, err := h.operationService.WriteTelemetryConfig(c.Request.Context(), c.Param("id"), req.Values)
	if err != nil {
		respondError(c, "Failed to write telemetry configuration", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Telemetry configuration written", block)
}

// DownloadConfigFile returns the raw configuration block of a logger
// @Summary Download configuration file
// @Tags Configuration
// @Produce octet-stream
// @Param id path string true "Device ID"
// @Success 200 {file} binary "Raw configuration block"
// @Router /devices/{id}/config/file [get]
func (h *OperationHandler) DownloadConfigFile(c *gin.Context) {
	name, data, err := h.operationService.ConfigFile(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to read configuration", err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "application/octet-stream", data)
}

// DecodeConfig decodes an uploaded configuration block
// @Summary Decode configuration file
// @Tags Configuration
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Raw configuration block"
// @Param layout formData string true "Layout" Enums(unilog-config, unilog-telemetry, unilog2-setup)
// @Success 200 {object} utils.APIResponse "Configuration decoded"
// @Failure 400 {object} utils.APIResponse "Invalid file"
// @Router /config/decode [post]
func (h *OperationHandler) DecodeConfig(c *gin.Context) {
	data, ok := h.readUpload(c)
	if !ok {
		return
	}
	block, err := h.operationService.DecodeConfig(data, c.PostForm("layout"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Failed to decode configuration", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Configuration decoded", block)
}

// ListConfigFiles lists the stored configuration files
// @Summary List configuration files
// @Tags Configuration
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]string} "Configuration files"
// @Router /config/files [get]
func (h *OperationHandler) ListConfigFiles(c *gin.Context) {
	files, err := h.operationService.ConfigFiles()
	if err != nil {
		respondError(c, "Failed to list configuration files", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Configuration files", files)
}

// BuildConfigFile stores a configuration file built from layout defaults
// @Summary Build configuration file
// @Description Create a configuration file, e.g. a UniLog2 setup file for the logger's SD card
// @Tags Configuration
// @Accept json
// @Produce json
// @Param request body BuildConfigRequest true "File name, layout and values"
// @Success 201 {object} utils.APIResponse "Configuration file stored"
// @Router /config/files [post]
func (h *OperationHandler) BuildConfigFile(c *gin.Context) {
	var req BuildConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	block, err := h.operationService.BuildConfigFile(req.Name, req.Layout, req.Values)
	if err != nil {
		respondError(c, "Failed to build configuration file", err)
		return
	}
	utils.SuccessResponse(c, http.StatusCreated, "Configuration file stored", block)
}

// LoadConfigFile decodes a stored configuration file
// @Summary Load configuration file
// @Tags Configuration
// @Produce json
// @Param name path string true "File name"
// @Param layout query string true "Layout" Enums(unilog-config, unilog-telemetry, unilog2-setup)
// @Success 200 {object} utils.APIResponse "Configuration file loaded"
// @Router /config/files/{name} [get]
func (h *OperationHandler) LoadConfigFile(c *gin.Context) {
	block, err := h.operationService.LoadConfigFile(c.Param("name"), c.Query("layout"))
	if err != nil {
		respondError(c, "Failed to load configuration file", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Configuration file loaded", block)
}

// StartLogging makes the logger record to its memory
// @Summary Start logging
// @Tags Operations
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} utils.APIResponse "Logging started"
// @Router /devices/{id}/logging/start [post]
func (h *OperationHandler) StartLogging(c *gin.Context) {
	deviceID := c.Param("id")
	if err := h.operationService.StartLogging(c.Request.Context(), deviceID); err != nil {
		respondError(c, "Failed to start logging", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Logging started", gin.H{"device_id": deviceID})
}

// StopLogging ends recording
// @Summary Stop logging
// @Tags Operations
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} utils.APIResponse "Logging stopped"
// @Router /devices/{id}/logging/stop [post]
func (h *OperationHandler) StopLogging(c *gin.Context) {
	deviceID := c.Param("id")
	if err := h.operationService.StopLogging(c.Request.Context(), deviceID); err != nil {
		respondError(c, "Failed to stop logging", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Logging stopped", gin.H{"device_id": deviceID})
}

// ClearMemory erases the logger memory
// @Summary Clear logger memory
// @Tags Operations
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} utils.APIResponse "Memory clear finished"
// @Failure 422 {object} utils.APIResponse "Not supported by this generation"
// @Router /devices/{id}/memory/clear [post]
func (h *OperationHandler) ClearMemory(c *gin.Context) {
	deviceID := c.Param("id")
	cleared, err := h.operationService.ClearMemory(c.Request.Context(), deviceID)
	if err != nil {
		respondError(c, "Failed to clear memory", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Memory clear finished", gin.H{
		"device_id": deviceID,
		"cleared":   cleared,
	})
}

// Download reads the logger memory into sessions
// @Summary Download logger memory
// @Description Read the flash memory and store every complete record set as a session
// @Tags Operations
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} utils.APIResponse{data=service.DownloadResult} "Memory downloaded"
// @Failure 422 {object} utils.APIResponse "Not supported by this generation"
// @Router /devices/{id}/download [post]
func (h *OperationHandler) Download(c *gin.Context) {
	deviceID := c.Param("id")
	result, err := h.operationService.Download(c.Request.Context(), deviceID)
	if err != nil {
		h.logger.Error("Memory download failed", zap.Error(err), zap.String("device_id", deviceID))
		respondError(c, "Failed to download memory", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Memory downloaded", result)
}

// StopDownload ends a running memory download
// @Summary Stop memory download
// @Tags Operations
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} utils.APIResponse "Download stop requested"
// @Failure 409 {object} utils.APIResponse "No download running"
// @Router /devices/{id}/download/stop [post]
func (h *OperationHandler) StopDownload(c *gin.Context) {
	deviceID := c.Param("id")
	if err := h.operationService.StopDownload(c.Request.Context(), deviceID); err != nil {
		respondError(c, "Failed to stop download", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Download stop requested", gin.H{"device_id": deviceID})
}

// ListOperations lists the latest operations of a logger
// @Summary List logger operations
// @Tags Operations
// @Produce json
// @Param id path string true "Device ID"
// @Param limit query int false "Maximum entries" default(50)
// @Success 200 {object} utils.APIResponse{data=[]model.DeviceOperation} "Operations retrieved"
// @Router /devices/{id}/operations [get]
func (h *OperationHandler) ListOperations(c *gin.Context) {
	operations, err := h.operationService.ListOperations(c.Request.Context(), c.Param("id"), queryInt(c, "limit", 50))
	if err != nil {
		respondError(c, "Failed to list operations", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Operations retrieved", operations)
}

// ImportBatch stores the sessions of an uploaded batch buffer
// @Summary Import batch buffer
// @Description Decode a length-prefixed telegram buffer into sessions
// @Tags Batch
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Batch buffer"
// @Param generation formData string true "Logger generation" Enums(unilog)
// @Param device_id formData string false "Attach the sessions to this logger"
// @Success 201 {object} utils.APIResponse{data=service.DownloadResult} "Batch imported"
// @Failure 400 {object} utils.APIResponse "Invalid upload"
// @Failure 413 {object} utils.APIResponse "Upload too large"
// @Router /batch/import [post]
func (h *OperationHandler) ImportBatch(c *gin.Context) {
	data, ok := h.readUpload(c)
	if !ok {
		return
	}
	generation := model.Generation(c.PostForm("generation"))
	result, err := h.operationService.ImportBatch(c.Request.Context(), generation, c.PostForm("device_id"), data)
	if err != nil {
		h.logger.Error("Batch import failed", zap.Error(err))
		respondError(c, "Failed to import batch", err)
		return
	}
	utils.SuccessResponse(c, http.StatusCreated, "Batch imported", result)
}

// readUpload reads the "file" form field within the upload limit
func (h *OperationHandler) readUpload(c *gin.Context) ([]byte, bool) {
	if c.Request.ContentLength > h.maxUploadSize {
		utils.ErrorResponse(c, http.StatusRequestEntityTooLarge, "Upload too large", nil)
		return nil, false
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.ErrorResponse(c, http.StatusRequestEntityTooLarge, "Upload too large", err)
			return nil, false
		}
		utils.ErrorResponse(c, http.StatusBadRequest, "File is required", err)
		return nil, false
	}
	if fh.Size > h.maxUploadSize {
		utils.ErrorResponse(c, http.StatusRequestEntityTooLarge, "Upload too large", nil)
		return nil, false
	}

	f, err := fh.Open()
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Failed to open upload", err)
		return nil, false
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Failed to read upload", err)
		return nil, false
	}
	return data, true
}

// ConfigValuesRequest carries configuration field values
type ConfigValuesRequest struct {
	Values map[string]decimal.Decimal `json:"values" binding:"required"`
}

// BuildConfigRequest names a configuration file to build
type BuildConfigRequest struct {
	Name   string                     `json:"name" binding:"required"`
	Layout string                     `json:"layout" binding:"required"`
	Values map[string]decimal.Decimal `json:"values"`
}
