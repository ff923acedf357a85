// internal/service/discovery_service.go
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"unilog-service/internal/config"
	"unilog-service/internal/discovery"
	"unilog-service/internal/discovery/serial"
	"unilog-service/internal/discovery/usb"
	"unilog-service/internal/model"
	"unilog-service/internal/protocol"
	"unilog-service/internal/repository"
	"unilog-service/internal/utils"
)

// DiscoveryService finds serial ports and identifies the loggers behind them
type DiscoveryService struct {
	deviceRepo     repository.DeviceRepository
	deviceService  *DeviceService
	drivers        DriverProvider
	locks          *PortLocks
	scannerManager *discovery.ScannerManager
	config         *config.Config
	logger         *utils.ServiceLogger
}

// NewDiscoveryService creates a new discovery service with the scanners
// enabled in the configuration
func NewDiscoveryService(
	deviceRepo repository.DeviceRepository,
	deviceService *DeviceService,
	drivers DriverProvider,
	locks *PortLocks,
	cfg *config.Config,
	logger *zap.Logger,
) *DiscoveryService {
	ds := &DiscoveryService{
		deviceRepo:     deviceRepo,
		deviceService:  deviceService,
		drivers:        drivers,
		locks:          locks,
		scannerManager: discovery.NewScannerManager(logger),
		config:         cfg,
		logger:         utils.NewServiceLogger(logger, "discovery-service"),
	}
	ds.initializeScanners()
	return ds
}

// initializeScanners registers all available scanners
func (ds *DiscoveryService) initializeScanners() {
	if ds.config.Discovery.Serial {
		ds.RegisterScanner(serial.NewScanner(ds.logger.Logger, &serial.Config{
			Patterns: ds.config.Discovery.Patterns,
			OnlyUSB:  ds.config.Discovery.OnlyUSB,
			BaudRate: ds.config.Serial.BaudRate,
		}))
	}
	if ds.config.Discovery.USB {
		ds.RegisterScanner(usb.NewScanner(ds.logger.Logger, nil))
	}

	ds.logger.Info("Discovery scanners initialized",
		zap.Strings("available_scanners", ds.scannerManager.GetAvailableScanners()),
	)
}

// RegisterScanner adds a scanner if it can run on this system
func (ds *DiscoveryService) RegisterScanner(scanner discovery.PortScanner) {
	if scanner.IsAvailable() {
		ds.scannerManager.RegisterScanner(scanner)
	}
}

// ScanPorts lists candidate ports with their registration and lock state
func (ds *DiscoveryService) ScanPorts(ctx context.Context, req *ScanRequest) ([]*PortInfo, error) {
	scanType := "all"
	if req != nil && req.ScanType != "" {
		scanType = req.ScanType
	}
	ds.logger.Info("Starting port scan", zap.String("type", scanType))

	var (
		ports []*discovery.DiscoveredPort
		err   error
	)
	if scanType == "all" {
		ports, err = ds.scannerManager.ScanAll(ctx)
	} else {
		ports, err = ds.scannerManager.ScanByType(ctx, scanType)
	}
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	registered, err := ds.registeredPorts(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*PortInfo, len(ports))
	for i, port := range ports {
		info := &PortInfo{DiscoveredPort: port}
		if port.ConnectionType == model.ConnectionTypeSerial {
			if deviceID, ok := registered[port.Name]; ok {
				info.RegisteredDeviceID = deviceID
			}
			if task, busy := ds.locks.Holder(port.Name); busy {
				info.BusyWith = task
			}
		}
		result[i] = info
	}

	ds.logger.Info("Port scan completed",
		zap.Int("ports_found", len(result)),
		zap.String("scan_type", scanType),
	)
	return result, nil
}

// registeredPorts maps serial port names to the device IDs using them
func (ds *DiscoveryService) registeredPorts(ctx context.Context) (map[string]string, error) {
	ports := make(map[string]string)
	for page := 1; ; page++ {
		devices, total, err := ds.deviceRepo.List(ctx, &repository.DeviceFilter{Page: page, PerPage: 100})
		if err != nil {
			return nil, fmt.Errorf("failed to list devices: %w", err)
		}
		for _, d := range devices {
			if d.ConnectionType == model.ConnectionTypeSerial {
				ports[d.PortName()] = d.DeviceID
			}
		}
		if len(devices) == 0 || page*100 >= total {
			return ports, nil
		}
	}
}

// IdentifyPort probes a serial port with each generation's readiness check
// and returns the first generation that answers
func (ds *DiscoveryService) IdentifyPort(ctx context.Context, req *IdentifyRequest) (*IdentifyResult, error) {
	if req == nil || req.Port == "" {
		return nil, fmt.Errorf("%w: port is required", ErrInvalidRequest)
	}
	release, err := ds.locks.Acquire(req.Port, "port identification")
	if err != nil {
		return nil, err
	}
	defer release()

	baudRate := req.BaudRate
	if baudRate == 0 {
		baudRate = ds.config.Serial.BaudRate
	}

	result := &IdentifyResult{Port: req.Port, Attempts: map[model.Generation]string{}}
	for _, generation := range ds.drivers.Generations() {
		probe := &model.Device{
			ID:             uuid.New(),
			DeviceID:       "probe-" + string(generation),
			Generation:     generation,
			ConnectionType: model.ConnectionTypeSerial,
			ConnectionConfig: model.JSONObject{
				"port":      req.Port,
				"baud_rate": baudRate,
			},
		}
		proto, err := ds.drivers.Driver(probe)
		if err != nil {
			return nil, err
		}

		err = protocol.WithOpen(ctx, proto.Transport(), func() error {
			return proto.CheckConnection(ctx)
		})
		if err == nil {
			result.Generation = generation
			ds.logger.Info("Logger identified",
				zap.String("port", req.Port),
				zap.String("generation", string(generation)),
			)
			return result, nil
		}
		if errors.Is(err, protocol.ErrIO) || ctx.Err() != nil {
			// the port itself failed, another generation will not do better
			return nil, err
		}
		result.Attempts[generation] = err.Error()
	}
	return result, nil
}

// AutoSetup identifies every unregistered serial port found by a scan and
// registers the loggers that answer
func (ds *DiscoveryService) AutoSetup(ctx context.Context, req *AutoSetupRequest) (*AutoSetupResult, error) {
	if req == nil {
		req = &AutoSetupRequest{}
	}
	ports, err := ds.ScanPorts(ctx, &ScanRequest{ScanType: "serial"})
	if err != nil {
		return nil, err
	}

	result := &AutoSetupResult{
		Registered: []*model.Device{},
		Skipped:    map[string]string{},
	}
	for _, port := range ports {
		switch {
		case port.RegisteredDeviceID != "":
			result.Skipped[port.Name] = "registered as " + port.RegisteredDeviceID
			continue
		case port.BusyWith != "":
			result.Skipped[port.Name] = "busy with " + port.BusyWith
			continue
		case port.Confidence < req.MinConfidence:
			result.Skipped[port.Name] = "low confidence"
			continue
		}

		identified, err := ds.IdentifyPort(ctx, &IdentifyRequest{Port: port.Name})
		if err != nil {
			result.Skipped[port.Name] = err.Error()
			continue
		}
		if identified.Generation == "" {
			result.Skipped[port.Name] = "no logger answered"
			continue
		}

		device, err := ds.deviceService.RegisterDevice(ctx, &RegisterDeviceRequest{
			DeviceID:       fmt.Sprintf("%s-%s", identified.Generation, port.SerialNumberOr(port.Name)),
			Generation:     identified.Generation,
			ConnectionType: model.ConnectionTypeSerial,
			ConnectionConfig: map[string]interface{}{
				"port": port.Name,
			},
		})
		if err != nil {
			result.Skipped[port.Name] = err.Error()
			continue
		}
		result.Registered = append(result.Registered, device)
	}

	ds.logger.Info("Auto setup completed",
		zap.Int("registered", len(result.Registered)),
		zap.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

// SupportedGenerations lists the generations with drivers and whether their
// stored telegrams can be imported
func (ds *DiscoveryService) SupportedGenerations() []*GenerationInfo {
	generations := ds.drivers.Generations()
	out := make([]*GenerationInfo, 0, len(generations))
	for _, g := range generations {
		_, err := ds.drivers.Decoder(g)
		out = append(out, &GenerationInfo{Generation: g, BatchImport: err == nil})
	}
	return out
}

// Data Transfer Objects

// ScanRequest selects the scanners to run: all, serial or usb
type ScanRequest struct {
	ScanType string `json:"scan_type" form:"type"`
}

// PortInfo is a scanned port with its state in the service
type PortInfo struct {
	*discovery.DiscoveredPort
	RegisteredDeviceID string `json:"registered_device_id,omitempty"`
	BusyWith           string `json:"busy_with,omitempty"`
}

// SerialNumberOr returns the adapter serial number or fallback
func (p *PortInfo) SerialNumberOr(fallback string) string {
	if p.SerialNumber != "" {
		return p.SerialNumber
	}
	return fallback
}

// IdentifyRequest names a port to probe
type IdentifyRequest struct {
	Port     string `json:"port" binding:"required"`
	BaudRate int    `json:"baud_rate"`
}

// IdentifyResult holds the answering generation, empty when none answered
type IdentifyResult struct {
	Port       string                      `json:"port"`
	Generation model.Generation            `json:"generation,omitempty"`
	Attempts   map[model.Generation]string `json:"attempts,omitempty"`
}

// AutoSetupRequest tunes auto setup
type AutoSetupRequest struct {
	MinConfidence float64 `json:"min_confidence"`
}

// AutoSetupResult lists the registered loggers and why other ports were
// skipped
type AutoSetupResult struct {
	Registered []*model.Device    `json:"registered"`
	Skipped    map[string]string `json:"skipped"`
}

// GenerationInfo describes a supported logger generation
type GenerationInfo struct {
	Generation  model.Generation `json:"generation"`
	BatchImport bool             `json:"batch_import"`
}
