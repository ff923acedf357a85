// internal/driver/registry.go
package driver

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"unilog-service/internal/model"
	"unilog-service/internal/protocol"
	"unilog-service/pkg/driver"
)

// DriverFactory creates a protocol driver for a device on top of a transport
type DriverFactory func(device *model.Device, transport protocol.Transport, logger *zap.Logger, opts driver.Options) (driver.DeviceProtocol, error)

// Registry manages protocol driver registration and creation
type Registry struct {
	drivers  map[model.Generation]DriverFactory
	decoders map[model.Generation]driver.TelegramDecoder
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewRegistry creates a new driver registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		drivers:  make(map[model.Generation]DriverFactory),
		decoders: make(map[model.Generation]driver.TelegramDecoder),
		logger:   logger,
	}
}

// Register registers a driver factory for a logger generation
func (r *Registry) Register(generation model.Generation, factory DriverFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.drivers[generation] = factory
	r.logger.Info("Driver registered", zap.String("generation", string(generation)))
}

// CreateDriver creates a driver instance for the device's generation
func (r *Registry) CreateDriver(device *model.Device, transport protocol.Transport, opts driver.Options) (driver.DeviceProtocol, error) {
	r.mu.RLock()
	factory, exists := r.drivers[device.Generation]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("no driver found for generation=%s", device.Generation)
	}
	return factory(device, transport, r.logger, opts)
}

// RegisterDecoder registers the stored-telegram decoder of a generation
func (r *Registry) RegisterDecoder(generation model.Generation, decoder driver.TelegramDecoder) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.decoders[generation] = decoder
}

// Decoder returns the stored-telegram decoder of a generation
func (r *Registry) Decoder(generation model.Generation) (driver.TelegramDecoder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	decoder, exists := r.decoders[generation]
	if !exists {
		return nil, fmt.Errorf("generation %s has no stored telegram format", generation)
	}
	return decoder, nil
}

// ListDrivers returns all registered generations
func (r *Registry) ListDrivers() []model.Generation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]model.Generation, 0, len(r.drivers))
	for key := range r.drivers {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// IsSupported checks if a generation has a driver
func (r *Registry) IsSupported(generation model.Generation) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.drivers[generation]
	return exists
}
