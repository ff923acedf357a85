// internal/handler/discovery_handler.go
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

// DiscoveryHandler handles port discovery requests
type DiscoveryHandler struct {
	discoveryService *service.DiscoveryService
	logger           *utils.ServiceLogger
}

// NewDiscoveryHandler creates a new discovery handler
func NewDiscoveryHandler(discoveryService *service.DiscoveryService, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		discoveryService: discoveryService,
		logger:           utils.NewServiceLogger(logger, "discovery-handler"),
	}
}

// RegisterRoutes registers discovery routes
func (h *DiscoveryHandler) RegisterRoutes(router *gin.RouterGroup) {
	discovery := router.Group("/discovery")
	{
		discovery.GET("/ports", h.ScanPorts)
		discovery.POST("/identify", h.IdentifyPort)
		discovery.POST("/auto-setup", h.AutoSetup)
		discovery.GET("/generations", h.SupportedGenerations)
	}
}

// ScanPorts lists the serial ports a logger may be attached to
// @Summary Scan ports
// @Description List serial and USB ports with the logger registered on them and the task using them
// @Tags Discovery
// @Produce json
// @Param type query string false "Scan type" Enums(all, serial, usb) default(all)
// @Success 200 {object} utils.APIResponse{data=object{ports_found=int,ports=[]service.PortInfo}} "Port scan completed"
// @Failure 500 {object} utils.APIResponse "Scan failed"
// @Router /discovery/ports [get]
func (h *DiscoveryHandler) ScanPorts(c *gin.Context) {
	req := &service.ScanRequest{ScanType: c.DefaultQuery("type", "all")}

	ports, err := h.discoveryService.ScanPorts(c.Request.Context(), req)
	if err != nil {
		h.logger.Error("Failed to scan ports", zap.Error(err))
		respondError(c, "Failed to scan ports", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Port scan completed", gin.H{
		"ports_found": len(ports),
		"ports":       ports,
	})
}

// IdentifyPort probes a port with every logger generation
// @Summary Identify logger
// @Tags Discovery
// @Accept json
// @Produce json
// @Param request body service.IdentifyRequest true "Port to probe"
// @Success 200 {object} utils.APIResponse{data=service.IdentifyResult} "Identification finished"
// @Failure 409 {object} utils.APIResponse "Port busy"
// @Router /discovery/identify [post]
func (h *DiscoveryHandler) IdentifyPort(c *gin.Context) {
	var req service.IdentifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.discoveryService.IdentifyPort(c.Request.Context(), &req)
	if err != nil {
		respondError(c, "Failed to identify port", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Identification finished", result)
}

// AutoSetup registers every answering logger on free ports
// @Summary Auto setup
// @Tags Discovery
// @Accept json
// @Produce json
// @Param request body service.AutoSetupRequest false "Auto setup options"
// @Success 200 {object} utils.APIResponse{data=service.AutoSetupResult} "Auto setup finished"
// @Router /discovery/auto-setup [post]
func (h *DiscoveryHandler) AutoSetup(c *gin.Context) {
	var req service.AutoSetupRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.discoveryService.AutoSetup(c.Request.Context(), &req)
	if err != nil {
		h.logger.Error("Auto setup failed", zap.Error(err))
		respondError(c, "Auto setup failed", err)
		return
	}

	h.logger.Info("Auto setup finished",
		zap.Int("registered", len(result.Registered)),
		zap.Int("skipped", len(result.Skipped)),
	)
	utils.SuccessResponse(c, http.StatusOK, "Auto setup finished", result)
}

// SupportedGenerations lists the logger generations the service drives
// @Summary Supported generations
// @Tags Discovery
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]service.GenerationInfo} "Supported generations"
// @Router /discovery/generations [get]
func (h *DiscoveryHandler) SupportedGenerations(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Supported generations", h.discoveryService.SupportedGenerations())
}
