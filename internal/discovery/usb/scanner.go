// internal/discovery/usb/scanner.go
package usb

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"unilog-service/internal/discovery"
)

// Scanner lists USB-serial adapters on the bus. It reports adapters even when
// the OS has not created a serial port for them, e.g. with a missing driver.
type Scanner struct {
	logger *zap.Logger
	config *Config
}

// Config for USB scanner
type Config struct {
	ScanTimeout time.Duration `json:"scan_timeout"`
	EnableDebug bool          `json:"enable_debug"`
	// ReadStrings opens matched adapters to read their string descriptors
	ReadStrings   bool `json:"read_strings"`
	MaxConcurrent int  `json:"max_concurrent"`
}

type deviceResult struct {
	port *discovery.DiscoveredPort
	err  error
}

// NewScanner creates a new USB scanner
func NewScanner(logger *zap.Logger, config *Config) *Scanner {
	if config == nil {
		config = &Config{
			ScanTimeout:   10 * time.Second,
			ReadStrings:   true,
			MaxConcurrent: 4,
		}
	}
	return &Scanner{
		logger: logger.With(zap.String("scanner", "usb")),
		config: config,
	}
}

// GetScannerType returns scanner type identifier
func (s *Scanner) GetScannerType() string {
	return "usb"
}

// IsAvailable checks if libusb can be used on this system
func (s *Scanner) IsAvailable() bool {
	switch runtime.GOOS {
	case "linux", "darwin", "windows":
		return true
	default:
		s.logger.Warn("USB scanning support unknown for OS", zap.String("os", runtime.GOOS))
		return false
	}
}

// Scan enumerates the adapters of known USB-serial vendors
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredPort, error) {
	startTime := time.Now()

	scanCtx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	usbCtx := gousb.NewContext()
	defer func() {
		if err := usbCtx.Close(); err != nil {
			s.logger.Warn("Failed to close USB context", zap.Error(err))
		}
	}()
	if s.config.EnableDebug {
		usbCtx.Debug(3)
	}

	var descs []*gousb.DeviceDesc
	devices, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if !discovery.KnownVendor(uint16(desc.Vendor)) {
			return false
		}
		descs = append(descs, desc)
		return s.config.ReadStrings
	})
	defer s.closeAllDevices(devices)
	if err != nil && len(descs) == 0 {
		return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}
	if err != nil {
		// some adapters could not be opened, the descriptors are still usable
		s.logger.Debug("USB enumeration incomplete", zap.Error(err))
	}

	var ports []*discovery.DiscoveredPort
	if len(devices) > 0 {
		ports, err = s.processDevicesConcurrently(scanCtx, devices)
		if err != nil {
			return nil, err
		}
	} else {
		for _, desc := range descs {
			ports = append(ports, s.describe(desc))
		}
	}

	s.logger.Info("USB scan completed",
		zap.Int("devices_found", len(ports)),
		zap.Duration("scan_duration", time.Since(startTime)),
	)
	return ports, nil
}

func (s *Scanner) timeout() time.Duration {
	if s.config.ScanTimeout <= 0 {
		return 10 * time.Second
	}
	return s.config.ScanTimeout
}

// processDevicesConcurrently reads the string descriptors with a bounded
// number of workers
func (s *Scanner) processDevicesConcurrently(ctx context.Context, devices []*gousb.Device) ([]*discovery.DiscoveredPort, error) {
	maxWorkers := s.config.MaxConcurrent
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	deviceChan := make(chan *gousb.Device, len(devices))
	resultChan := make(chan deviceResult, len(devices))
	for i := 0; i < maxWorkers; i++ {
		go s.deviceWorker(ctx, deviceChan, resultChan)
	}
	for _, device := range devices {
		deviceChan <- device
	}
	close(deviceChan)

	ports := []*discovery.DiscoveredPort{}
	for i := 0; i < len(devices); i++ {
		select {
		case result := <-resultChan:
			if result.err != nil {
				s.logger.Warn("Device processing failed", zap.Error(result.err))
				continue
			}
			ports = append(ports, result.port)
		case <-ctx.Done():
			return ports, ctx.Err()
		}
	}
	return ports, nil
}

func (s *Scanner) deviceWorker(ctx context.Context, deviceChan <-chan *gousb.Device, resultChan chan<- deviceResult) {
	for device := range deviceChan {
		if ctx.Err() != nil {
			resultChan <- deviceResult{err: ctx.Err()}
			continue
		}
		resultChan <- s.processDevice(device)
	}
}

func (s *Scanner) processDevice(device *gousb.Device) deviceResult {
	if device.Desc == nil {
		return deviceResult{err: fmt.Errorf("device descriptor is nil")}
	}
	port := s.describe(device.Desc)
	if serial, err := device.SerialNumber(); err == nil {
		port.SerialNumber = strings.TrimSpace(serial)
	}
	if product, err := device.Product(); err == nil {
		port.Product = strings.TrimSpace(product)
	}
	return deviceResult{port: port}
}

// describe builds the port entry from a descriptor
func (s *Scanner) describe(desc *gousb.DeviceDesc) *discovery.DiscoveredPort {
	vid, pid := uint16(desc.Vendor), uint16(desc.Product)
	port := &discovery.DiscoveredPort{
		Scanner:   s.GetScannerType(),
		Name:      fmt.Sprintf("usb:%d-%d", desc.Bus, desc.Address),
		IsUSB:     true,
		VendorID:  discovery.FormatUSBID(vid),
		ProductID: discovery.FormatUSBID(pid),
		ConnectionInfo: map[string]interface{}{
			"bus":     desc.Bus,
			"address": desc.Address,
			"port":    desc.Port,
			"speed":   desc.Speed.String(),
		},
		// adapter vendor with an unlisted product
		Confidence: 0.4,
	}
	if chip, ok := discovery.LookupChip(vid, pid); ok {
		port.Chip = chip.Vendor + " " + chip.Model
		port.Confidence = chip.Confidence
	}
	return port
}

// closeAllDevices safely closes all opened USB devices
func (s *Scanner) closeAllDevices(devices []*gousb.Device) {
	for i, device := range devices {
		if device == nil {
			continue
		}
		if err := device.Close(); err != nil {
			s.logger.Warn("Failed to close USB device",
				zap.Int("device_index", i),
				zap.Error(err),
			)
		}
	}
}
