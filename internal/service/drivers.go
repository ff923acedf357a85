// internal/service/drivers.go
package service

import (
	"fmt"

	"go.uber.org/zap"

	"unilog-service/internal/config"
	internalDriver "unilog-service/internal/driver"
	"unilog-service/internal/model"
	"unilog-service/internal/protocol"
	"unilog-service/pkg/driver"
)

// DriverProvider builds a protocol driver for a registered device
type DriverProvider interface {
	Driver(device *model.Device) (driver.DeviceProtocol, error)
	Decoder(generation model.Generation) (driver.TelegramDecoder, error)
	Generations() []model.Generation
}

// RegistryProvider creates transports from the device connection config and
// drivers from the registry
type RegistryProvider struct {
	registry *internalDriver.Registry
	options  driver.Options
	logger   *zap.Logger
}

// NewRegistryProvider creates a provider applying the acquisition settings
func NewRegistryProvider(registry *internalDriver.Registry, cfg *config.AcquisitionConfig, logger *zap.Logger) *RegistryProvider {
	return &RegistryProvider{
		registry: registry,
		options:  DriverOptions(cfg),
		logger:   logger,
	}
}

// DriverOptions maps the acquisition settings onto driver options. Zero
// values keep the driver defaults.
func DriverOptions(cfg *config.AcquisitionConfig) driver.Options {
	if cfg == nil {
		return driver.Options{}
	}
	return driver.Options{
		Timing: driver.Timing{
			ConnectAttempts: cfg.ConnectAttempts,
			ReadyAttempts:   cfg.ReadyAttempts,
			StatusTimeout:   cfg.StatusTimeout,
			FrameTimeout:    cfg.FrameTimeout,
			SettleDelay:     cfg.SettleDelay,
			LiveRetries:     cfg.LiveRetries,
			LiveRetryDelay:  cfg.LiveRetryDelay,
		},
		PollInterval: cfg.PollInterval,
	}
}

// Driver implements DriverProvider
func (p *RegistryProvider) Driver(device *model.Device) (driver.DeviceProtocol, error) {
	transport, err := protocol.CreateTransport(device.ConnectionType, device.ConnectionConfig, p.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	proto, err := p.registry.CreateDriver(device, transport, p.options)
	if err != nil {
		return nil, fmt.Errorf("failed to create driver: %w", err)
	}
	return proto, nil
}

// Decoder implements DriverProvider
func (p *RegistryProvider) Decoder(generation model.Generation) (driver.TelegramDecoder, error) {
	decoder, err := p.registry.Decoder(generation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return decoder, nil
}

// Generations implements DriverProvider
func (p *RegistryProvider) Generations() []model.Generation {
	return p.registry.ListDrivers()
}

// Capabilities lists the optional interfaces a driver implements
func Capabilities(proto driver.DeviceProtocol) []string {
	caps := []string{"live", "logging"}
	if _, ok := proto.(driver.Configurer); ok {
		caps = append(caps, "config")
	}
	if _, ok := proto.(driver.TelemetryConfigurer); ok {
		caps = append(caps, "telemetry_config")
	}
	if _, ok := proto.(driver.MemoryReader); ok {
		caps = append(caps, "memory")
	}
	return caps
}
