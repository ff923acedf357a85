// internal/service/device_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"unilog-service/internal/config"
	"unilog-service/internal/model"
	"unilog-service/internal/protocol"
	"unilog-service/internal/repository"
	"unilog-service/internal/utils"
)

// DeviceService handles logger registration and connectivity checks
type DeviceService struct {
	deviceRepo  repository.DeviceRepository
	drivers     DriverProvider
	locks       *PortLocks
	serial      config.SerialPortConfig
	logger      *utils.ServiceLogger
	auditLogger *utils.AuditLogger
}

// NewDeviceService creates a new device service instance
func NewDeviceService(
	deviceRepo repository.DeviceRepository,
	drivers DriverProvider,
	locks *PortLocks,
	cfg *config.Config,
	logger *zap.Logger,
) *DeviceService {
	return &DeviceService{
		deviceRepo:  deviceRepo,
		drivers:     drivers,
		locks:       locks,
		serial:      cfg.Serial,
		logger:      utils.NewServiceLogger(logger, "device-service"),
		auditLogger: utils.NewAuditLogger(logger),
	}
}

// RegisterDevice registers a new logger
func (ds *DeviceService) RegisterDevice(ctx context.Context, req *RegisterDeviceRequest) (*model.Device, error) {
	if err := ds.validateRegisterRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	connectionConfig := ds.withSerialDefaults(req.ConnectionType, req.ConnectionConfig)
	if err := protocol.ValidateConfig(req.ConnectionType, connectionConfig); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	name := req.Name
	if name == "" {
		name = req.DeviceID
	}
	now := time.Now()
	device := &model.Device{
		ID:               uuid.New(),
		DeviceID:         req.DeviceID,
		Name:             name,
		Generation:       req.Generation,
		ConnectionType:   req.ConnectionType,
		ConnectionConfig: connectionConfig,
		Status:           model.DeviceStatusOffline,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := ds.deviceRepo.Create(ctx, device); err != nil {
		ds.auditLogger.LogDeviceRegistration(device.DeviceID, string(device.Generation), device.PortName(), false)
		return nil, fmt.Errorf("failed to create device: %w", err)
	}

	ds.auditLogger.LogDeviceRegistration(device.DeviceID, string(device.Generation), device.PortName(), true)
	ds.logger.Info("Device registered successfully",
		zap.String("device_id", device.DeviceID),
		zap.String("generation", string(device.Generation)),
		zap.String("port", device.PortName()),
	)
	return device, nil
}

// GetDevice retrieves a logger by its device ID
func (ds *DeviceService) GetDevice(ctx context.Context, deviceID string) (*model.Device, error) {
	device, err := ds.deviceRepo.GetByDeviceID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("device not found: %w", err)
	}
	return device, nil
}

// ListDevices retrieves loggers with filtering
func (ds *DeviceService) ListDevices(ctx context.Context, filter *repository.DeviceFilter) ([]*model.Device, *PaginationResult, error) {
	if filter == nil {
		filter = &repository.DeviceFilter{}
	}
	devices, total, err := ds.deviceRepo.List(ctx, filter)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, NewPagination(total, filter.Page, filter.PerPage), nil
}

// UpdateConnection replaces the transport settings of a logger
func (ds *DeviceService) UpdateConnection(ctx context.Context, deviceID string, req *UpdateConnectionRequest) (*model.Device, error) {
	device, err := ds.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if task, busy := ds.locks.Holder(device.PortName()); busy {
		return nil, fmt.Errorf("%s is used by %s: %w", device.PortName(), task, ErrPortBusy)
	}

	connectionType := device.ConnectionType
	if req.ConnectionType != "" {
		connectionType = req.ConnectionType
	}
	connectionConfig := ds.withSerialDefaults(connectionType, req.ConnectionConfig)
	if err := protocol.ValidateConfig(connectionType, connectionConfig); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	oldConfig := device.ConnectionConfig
	device.ConnectionType = connectionType
	device.ConnectionConfig = connectionConfig
	if req.Name != "" {
		device.Name = req.Name
	}
	device.UpdatedAt = time.Now()

	if err := ds.deviceRepo.Update(ctx, device); err != nil {
		return nil, fmt.Errorf("failed to update device connection: %w", err)
	}

	ds.auditLogger.LogDeviceConfiguration(deviceID, "connection", oldConfig, connectionConfig)
	return device, nil
}

// DeleteDevice removes a logger. Stored sessions are kept.
func (ds *DeviceService) DeleteDevice(ctx context.Context, deviceID string) error {
	device, err := ds.GetDevice(ctx, deviceID)
	if err != nil {
		return err
	}
	if task, busy := ds.locks.Holder(device.PortName()); busy {
		return fmt.Errorf("cannot delete device while %s runs: %w", task, ErrPortBusy)
	}

	if err := ds.deviceRepo.Delete(ctx, device.ID); err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}

	ds.logger.Info("Device deleted", zap.String("device_id", deviceID))
	return nil
}

// TestDevice probes the logger until it answers with a ready state
func (ds *DeviceService) TestDevice(ctx context.Context, deviceID string) (*TestResult, error) {
	device, err := ds.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	release, err := ds.locks.Acquire(device.PortName(), "connection test")
	if err != nil {
		return nil, err
	}
	defer release()

	deviceLogger := utils.NewDeviceLogger(ds.logger.Logger, device.DeviceID, string(device.Generation), device.PortName())
	startTime := time.Now()

	proto, err := ds.drivers.Driver(device)
	if err != nil {
		return nil, err
	}

	err = protocol.WithOpen(ctx, proto.Transport(), func() error {
		return proto.CheckConnection(ctx)
	})
	result := &TestResult{
		Success:  err == nil,
		Duration: time.Since(startTime).String(),
		State:    string(proto.State()),
	}
	if err != nil {
		result.ErrorCode = string(protocol.CodeOf(err))
		result.ErrorMessage = err.Error()
		deviceLogger.LogConnection("test", false, err)
		ds.updateDeviceError(ctx, device, err)
		return result, nil
	}

	deviceLogger.LogConnection("test", true, nil)
	if err := ds.deviceRepo.UpdateStatus(ctx, device.ID, model.DeviceStatusOnline); err != nil {
		deviceLogger.Warn("Failed to update device status", zap.Error(err))
	}
	return result, nil
}

// GetCapabilities lists the operations the logger's driver supports
func (ds *DeviceService) GetCapabilities(ctx context.Context, deviceID string) (*CapabilitiesResult, error) {
	device, err := ds.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	proto, err := ds.drivers.Driver(device)
	if err != nil {
		return nil, err
	}
	return &CapabilitiesResult{
		DeviceID:     device.DeviceID,
		Generation:   device.Generation,
		Capabilities: Capabilities(proto),
	}, nil
}

// validateRegisterRequest validates device registration request
func (ds *DeviceService) validateRegisterRequest(req *RegisterDeviceRequest) error {
	if req == nil {
		return errors.New("request body is required")
	}
	if strings.TrimSpace(req.DeviceID) == "" {
		return errors.New("device_id is required")
	}
	if !req.Generation.Valid() {
		return fmt.Errorf("unsupported generation: %q", req.Generation)
	}
	if req.ConnectionType == "" {
		return errors.New("connection_type is required")
	}
	if req.ConnectionConfig == nil {
		return errors.New("connection_config is required")
	}
	return nil
}

// withSerialDefaults fills missing serial line settings from the service
// configuration
func (ds *DeviceService) withSerialDefaults(connectionType model.ConnectionType, cfg map[string]interface{}) model.JSONObject {
	out := model.JSONObject{}
	for k, v := range cfg {
		out[k] = v
	}
	if connectionType != model.ConnectionTypeSerial {
		return out
	}
	defaults := map[string]interface{}{
		"baud_rate": ds.serial.BaudRate,
		"data_bits": ds.serial.DataBits,
		"stop_bits": ds.serial.StopBits,
		"parity":    ds.serial.Parity,
	}
	if ds.serial.Timeout > 0 {
		defaults["timeout"] = ds.serial.Timeout.String()
	}
	for k, v := range defaults {
		if _, ok := out[k]; ok {
			continue
		}
		switch x := v.(type) {
		case int:
			if x == 0 {
				continue
			}
		case string:
			if x == "" {
				continue
			}
		}
		out[k] = v
	}
	return out
}

// updateDeviceError marks the device as failed
func (ds *DeviceService) updateDeviceError(ctx context.Context, device *model.Device, err error) {
	device.Status = model.DeviceStatusError
	device.ErrorInfo = model.JSONObject{
		"last_error": err.Error(),
		"error_code": string(protocol.CodeOf(err)),
		"error_time": time.Now(),
	}

	if updateErr := ds.deviceRepo.Update(ctx, device); updateErr != nil {
		ds.logger.Error("Failed to update device error", zap.Error(updateErr))
	}
}

// Data Transfer Objects

// RegisterDeviceRequest represents device registration request
type RegisterDeviceRequest struct {
	DeviceID         string                 `json:"device_id" binding:"required"`
	Name             string                 `json:"name"`
	Generation       model.Generation       `json:"generation" binding:"required"`
	ConnectionType   model.ConnectionType   `json:"connection_type" binding:"required"`
	ConnectionConfig map[string]interface{} `json:"connection_config" binding:"required"`
}

// UpdateConnectionRequest changes how a logger is reached
type UpdateConnectionRequest struct {
	Name             string                 `json:"name"`
	ConnectionType   model.ConnectionType   `json:"connection_type"`
	ConnectionConfig map[string]interface{} `json:"connection_config" binding:"required"`
}

// PaginationResult represents pagination information
type PaginationResult struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
}

// NewPagination builds pagination info using the repository paging defaults
func NewPagination(total, page, perPage int) *PaginationResult {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return &PaginationResult{
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: (total + perPage - 1) / perPage,
	}
}

// TestResult represents device test result
type TestResult struct {
	Success      bool   `json:"success"`
	Duration     string `json:"duration"`
	State        string `json:"state"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// CapabilitiesResult lists what a logger supports
type CapabilitiesResult struct {
	DeviceID     string           `json:"device_id"`
	Generation   model.Generation `json:"generation"`
	Capabilities []string         `json:"capabilities"`
}
