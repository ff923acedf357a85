// internal/driver/registry_init.go
package driver

import (
	"go.uber.org/zap"

	"unilog-service/internal/driver/unilog"
	"unilog-service/internal/driver/unilog2"
	"unilog-service/internal/model"
	"unilog-service/internal/protocol"
	"unilog-service/pkg/driver"
)

// RegisterDefaultDrivers registers the drivers of both logger generations
func RegisterDefaultDrivers(registry *Registry, logger *zap.Logger) {
	registry.Register(model.GenerationUniLog,
		func(device *model.Device, transport protocol.Transport, logger *zap.Logger, opts driver.Options) (driver.DeviceProtocol, error) {
			return unilog.New(device, transport, logger, opts), nil
		},
	)

	registry.RegisterDecoder(model.GenerationUniLog, unilog.Decoder{})

	registry.Register(model.GenerationUniLog2,
		func(device *model.Device, transport protocol.Transport, logger *zap.Logger, opts driver.Options) (driver.DeviceProtocol, error) {
			return unilog2.New(device, transport, logger, opts), nil
		},
	)

	logger.Info("Logger drivers registered", zap.Int("generations", 2))
}
