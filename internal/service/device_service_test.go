package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"unilog-service/internal/model"
	"unilog-service/internal/protocol"
	"unilog-service/internal/repository"
	"unilog-service/pkg/driver"
)

func TestPortLocks(t *testing.T) {
	locks := NewPortLocks()

	release, err := locks.Acquire(testPort, "live acquisition")
	require.NoError(t, err)

	_, err = locks.Acquire(testPort, "download")
	require.ErrorIs(t, err, ErrPortBusy)
	require.Contains(t, err.Error(), "live acquisition")

	holder, busy := locks.Holder(testPort)
	require.True(t, busy)
	require.Equal(t, "live acquisition", holder)

	other, err := locks.Acquire("/dev/ttyUSB1", "download")
	require.NoError(t, err)
	other()

	release()
	release()
	_, busy = locks.Holder(testPort)
	require.False(t, busy)

	release, err = locks.Acquire(testPort, "download")
	require.NoError(t, err)
	release()
}

func TestRegisterDeviceFillsSerialDefaults(t *testing.T) {
	f := newFixture(t, nil)

	device := f.register(t, "bench", model.GenerationUniLog)
	require.Equal(t, "bench", device.Name)
	require.Equal(t, model.DeviceStatusOffline, device.Status)
	require.Equal(t, testPort, device.PortName())
	require.Equal(t, 115200, device.ConnectionConfig["baud_rate"])
	require.Equal(t, "none", device.ConnectionConfig["parity"])

	_, err := f.devices.RegisterDevice(context.Background(), &RegisterDeviceRequest{
		DeviceID:         "bench",
		Generation:       model.GenerationUniLog,
		ConnectionType:   model.ConnectionTypeSerial,
		ConnectionConfig: map[string]interface{}{"port": "/dev/ttyUSB1"},
	})
	require.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestRegisterDeviceRejectsInvalidRequests(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name string
		req  *RegisterDeviceRequest
	}{
		{"nil", nil},
		{"no id", &RegisterDeviceRequest{Generation: model.GenerationUniLog, ConnectionType: model.ConnectionTypeSerial, ConnectionConfig: map[string]interface{}{"port": testPort}}},
		{"bad generation", &RegisterDeviceRequest{DeviceID: "x", Generation: "unilog3", ConnectionType: model.ConnectionTypeSerial, ConnectionConfig: map[string]interface{}{"port": testPort}}},
		{"no port", &RegisterDeviceRequest{DeviceID: "x", Generation: model.GenerationUniLog, ConnectionType: model.ConnectionTypeSerial, ConnectionConfig: map[string]interface{}{}}},
		{"bad baud", &RegisterDeviceRequest{DeviceID: "x", Generation: model.GenerationUniLog, ConnectionType: model.ConnectionTypeSerial, ConnectionConfig: map[string]interface{}{"port": testPort, "baud_rate": 1234}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.devices.RegisterDevice(context.Background(), tt.req)
			require.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestTestDeviceUpdatesStatus(t *testing.T) {
	logger := newFakeLogger(model.GenerationUniLog)
	f := newFixture(t, map[model.Generation]driver.DeviceProtocol{model.GenerationUniLog: logger})
	f.register(t, "bench", model.GenerationUniLog)
	ctx := context.Background()

	result, err := f.devices.TestDevice(ctx, "bench")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 1, logger.transport.Opens())
	require.False(t, logger.transport.IsOpen())

	device, err := f.devices.GetDevice(ctx, "bench")
	require.NoError(t, err)
	require.Equal(t, model.DeviceStatusOnline, device.Status)

	logger.connectErr = protocol.NotReadyError("check connection", 3)
	result, err = f.devices.TestDevice(ctx, "bench")
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, string(protocol.CodeNotReady), result.ErrorCode)

	device, err = f.devices.GetDevice(ctx, "bench")
	require.NoError(t, err)
	require.Equal(t, model.DeviceStatusError, device.Status)
	require.Equal(t, string(protocol.CodeNotReady), device.ErrorInfo["error_code"])
}

func TestDeviceChangesRefusedWhilePortBusy(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t, "bench", model.GenerationUniLog)
	ctx := context.Background()

	release, err := f.locks.Acquire(testPort, "download")
	require.NoError(t, err)

	_, err = f.devices.TestDevice(ctx, "bench")
	require.ErrorIs(t, err, ErrPortBusy)
	require.ErrorIs(t, f.devices.DeleteDevice(ctx, "bench"), ErrPortBusy)
	_, err = f.devices.UpdateConnection(ctx, "bench", &UpdateConnectionRequest{
		ConnectionConfig: map[string]interface{}{"port": "/dev/ttyUSB1"},
	})
	require.ErrorIs(t, err, ErrPortBusy)

	release()
	device, err := f.devices.UpdateConnection(ctx, "bench", &UpdateConnectionRequest{
		ConnectionConfig: map[string]interface{}{"port": "/dev/ttyUSB1"},
	})
	require.NoError(t, err)
	require.Equal(t, "/dev/ttyUSB1", device.PortName())

	require.NoError(t, f.devices.DeleteDevice(ctx, "bench"))
	_, err = f.devices.GetDevice(ctx, "bench")
	require.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(45, 0, 0)
	require.Equal(t, 1, p.Page)
	require.Equal(t, 20, p.PerPage)
	require.Equal(t, 3, p.TotalPages)

	p = NewPagination(0, 2, 500)
	require.Equal(t, 20, p.PerPage)
	require.Equal(t, 0, p.TotalPages)
}

func TestGetCapabilities(t *testing.T) {
	logger := &memoryLogger{fakeLogger: newFakeLogger(model.GenerationUniLog)}
	f := newFixture(t, map[model.Generation]driver.DeviceProtocol{
		model.GenerationUniLog:  logger,
		model.GenerationUniLog2: newFakeLogger(model.GenerationUniLog2),
	})
	f.register(t, "gen1", model.GenerationUniLog)
	ctx := context.Background()

	caps, err := f.devices.GetCapabilities(ctx, "gen1")
	require.NoError(t, err)
	require.Equal(t, model.GenerationUniLog, caps.Generation)
	require.Contains(t, caps.Capabilities, "memory")
	require.Contains(t, caps.Capabilities, "live")

	_, err = f.devices.GetCapabilities(ctx, "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)
}
