// internal/discovery/serial/scanner.go
package serial

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"unilog-service/internal/discovery"
	"unilog-service/internal/model"
)

// Scanner lists serial ports through the OS enumerator
type Scanner struct {
	logger *zap.Logger
	config *Config
	list   func() ([]*enumerator.PortDetails, error)
}

// Config for serial scanner
type Config struct {
	// Patterns are glob patterns a port name has to match. Empty accepts all.
	Patterns []string `json:"patterns"`
	// OnlyUSB drops ports without USB details
	OnlyUSB  bool `json:"only_usb"`
	BaudRate int  `json:"baud_rate"`
}

// NewScanner creates a new serial scanner
func NewScanner(logger *zap.Logger, config *Config) *Scanner {
	if config == nil {
		config = &Config{BaudRate: 115200}
	}
	return &Scanner{
		logger: logger.With(zap.String("scanner", "serial")),
		config: config,
		list:   enumerator.GetDetailedPortsList,
	}
}

// GetScannerType returns scanner type
func (s *Scanner) GetScannerType() string {
	return "serial"
}

// IsAvailable checks if serial scanning is available
func (s *Scanner) IsAvailable() bool {
	return true
}

// Scan lists the serial ports a logger may be attached to
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredPort, error) {
	startTime := time.Now()

	details, err := s.list()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ports := []*discovery.DiscoveredPort{}
	for _, d := range details {
		if !s.matches(d) {
			continue
		}
		ports = append(ports, s.describe(d))
	}

	s.logger.Info("Serial scan completed",
		zap.Int("ports_listed", len(details)),
		zap.Int("ports_found", len(ports)),
		zap.Duration("scan_duration", time.Since(startTime)),
	)
	return ports, nil
}

func (s *Scanner) matches(d *enumerator.PortDetails) bool {
	if s.config.OnlyUSB && !d.IsUSB {
		return false
	}
	if len(s.config.Patterns) == 0 {
		return true
	}
	for _, pattern := range s.config.Patterns {
		if ok, err := filepath.Match(pattern, d.Name); err == nil && ok {
			return true
		}
	}
	return false
}

func (s *Scanner) describe(d *enumerator.PortDetails) *discovery.DiscoveredPort {
	port := &discovery.DiscoveredPort{
		Scanner:        s.GetScannerType(),
		Name:           d.Name,
		ConnectionType: model.ConnectionTypeSerial,
		ConnectionInfo: map[string]interface{}{
			"port":      d.Name,
			"baud_rate": s.config.BaudRate,
		},
		IsUSB:      d.IsUSB,
		Confidence: 0.1,
	}
	if !d.IsUSB {
		return port
	}

	port.SerialNumber = d.SerialNumber
	port.Product = d.Product
	port.Confidence = 0.3
	vid, vidErr := discovery.ParseUSBID(d.VID)
	pid, pidErr := discovery.ParseUSBID(d.PID)
	if vidErr != nil || pidErr != nil {
		s.logger.Debug("Port without usable USB ids", zap.String("port", d.Name))
		return port
	}
	port.VendorID = discovery.FormatUSBID(vid)
	port.ProductID = discovery.FormatUSBID(pid)
	if chip, ok := discovery.LookupChip(vid, pid); ok {
		port.Chip = chip.Vendor + " " + chip.Model
		port.Confidence = chip.Confidence
	}
	return port
}
