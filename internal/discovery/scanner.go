// internal/discovery/scanner.go
package discovery

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"unilog-service/internal/model"
)

// PortScanner finds places a logger may be attached to
type PortScanner interface {
	Scan(ctx context.Context) ([]*DiscoveredPort, error)
	GetScannerType() string
	IsAvailable() bool
}

// DiscoveredPort is a candidate logger connection
type DiscoveredPort struct {
	Scanner        string                 `json:"scanner"`
	Name           string                 `json:"name"`
	ConnectionType model.ConnectionType   `json:"connection_type,omitempty"`
	ConnectionInfo map[string]interface{} `json:"connection_info"`
	IsUSB          bool                   `json:"is_usb"`
	VendorID       string                 `json:"vendor_id,omitempty"`
	ProductID      string                 `json:"product_id,omitempty"`
	SerialNumber   string                 `json:"serial_number,omitempty"`
	Product        string                 `json:"product,omitempty"`
	Chip           string                 `json:"chip,omitempty"`
	// Confidence rates how likely a logger cable sits behind the port, 0.0-1.0
	Confidence float64 `json:"confidence"`
}

// ScannerManager manages all port scanners
type ScannerManager struct {
	mutex    sync.RWMutex
	scanners map[string]PortScanner
	logger   *zap.Logger
}

// NewScannerManager creates a new scanner manager
func NewScannerManager(logger *zap.Logger) *ScannerManager {
	return &ScannerManager{
		scanners: make(map[string]PortScanner),
		logger:   logger.With(zap.String("component", "discovery")),
	}
}

// RegisterScanner registers a port scanner
func (sm *ScannerManager) RegisterScanner(scanner PortScanner) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	scannerType := scanner.GetScannerType()
	sm.scanners[scannerType] = scanner
	sm.logger.Info("Scanner registered", zap.String("type", scannerType))
}

// ScanAll runs every available scanner. A failing scanner is logged and
// skipped. Results are ordered by confidence.
func (sm *ScannerManager) ScanAll(ctx context.Context) ([]*DiscoveredPort, error) {
	all := []*DiscoveredPort{}
	for _, scannerType := range sm.GetAvailableScanners() {
		sm.mutex.RLock()
		scanner := sm.scanners[scannerType]
		sm.mutex.RUnlock()

		ports, err := scanner.Scan(ctx)
		if err != nil {
			sm.logger.Error("Scanner failed", zap.String("type", scannerType), zap.Error(err))
			continue
		}
		all = append(all, ports...)
		sm.logger.Info("Scanner completed",
			zap.String("type", scannerType),
			zap.Int("ports_found", len(ports)),
		)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	SortByConfidence(all)
	return all, nil
}

// ScanByType runs one scanner
func (sm *ScannerManager) ScanByType(ctx context.Context, scannerType string) ([]*DiscoveredPort, error) {
	sm.mutex.RLock()
	scanner, exists := sm.scanners[scannerType]
	sm.mutex.RUnlock()
	if !exists {
		return nil, fmt.Errorf("scanner type not found: %s", scannerType)
	}
	if !scanner.IsAvailable() {
		return nil, fmt.Errorf("scanner not available: %s", scannerType)
	}

	ports, err := scanner.Scan(ctx)
	if err != nil {
		return nil, err
	}
	SortByConfidence(ports)
	return ports, nil
}

// GetAvailableScanners returns the available scanner types in name order
func (sm *ScannerManager) GetAvailableScanners() []string {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	available := []string{}
	for scannerType, scanner := range sm.scanners {
		if scanner.IsAvailable() {
			available = append(available, scannerType)
		}
	}
	sort.Strings(available)
	return available
}

// SortByConfidence orders ports by confidence, then by name
func SortByConfidence(ports []*DiscoveredPort) {
	sort.SliceStable(ports, func(i, j int) bool {
		if ports[i].Confidence != ports[j].Confidence {
			return ports[i].Confidence > ports[j].Confidence
		}
		return ports[i].Name < ports[j].Name
	})
}
