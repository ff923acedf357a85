package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"unilog-service/internal/discovery"
	"unilog-service/internal/model"
	"unilog-service/internal/protocol"
	"unilog-service/pkg/driver"
)

type fakeScanner struct {
	ports []*discovery.DiscoveredPort
}

func (s *fakeScanner) Scan(context.Context) ([]*discovery.DiscoveredPort, error) { return s.ports, nil }
func (s *fakeScanner) GetScannerType() string                                    { return "serial" }
func (s *fakeScanner) IsAvailable() bool                                         { return true }

func newDiscovery(f *fixture, ports ...*discovery.DiscoveredPort) *DiscoveryService {
	ds := NewDiscoveryService(f.store.Devices(), f.devices, f.provider, f.locks, testConfig(), zap.NewNop())
	ds.RegisterScanner(&fakeScanner{ports: ports})
	return ds
}

func serialPort(name, serial string, confidence float64) *discovery.DiscoveredPort {
	return &discovery.DiscoveredPort{
		Scanner:        "serial",
		Name:           name,
		ConnectionType: model.ConnectionTypeSerial,
		IsUSB:          true,
		SerialNumber:   serial,
		Confidence:     confidence,
	}
}

func TestScanPortsMarksRegisteredAndBusyPorts(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t, "bench", model.GenerationUniLog)
	ds := newDiscovery(f, serialPort(testPort, "A1", 0.9), serialPort("/dev/ttyUSB1", "B2", 0.7))

	release, err := f.locks.Acquire(testPort, "live acquisition")
	require.NoError(t, err)
	defer release()

	ports, err := ds.ScanPorts(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, ports, 2)
	require.Equal(t, testPort, ports[0].Name)
	require.Equal(t, "bench", ports[0].RegisteredDeviceID)
	require.Equal(t, "live acquisition", ports[0].BusyWith)
	require.Empty(t, ports[1].RegisteredDeviceID)
	require.Empty(t, ports[1].BusyWith)
}

func TestIdentifyPortTriesEachGeneration(t *testing.T) {
	gen1 := newFakeLogger(model.GenerationUniLog)
	gen1.connectErr = protocol.NotReadyError("check connection", 3)
	gen2 := newFakeLogger(model.GenerationUniLog2)
	f := newFixture(t, map[model.Generation]driver.DeviceProtocol{
		model.GenerationUniLog:  gen1,
		model.GenerationUniLog2: gen2,
	})
	ds := newDiscovery(f)

	result, err := ds.IdentifyPort(context.Background(), &IdentifyRequest{Port: testPort})
	require.NoError(t, err)
	require.Equal(t, model.GenerationUniLog2, result.Generation)
	require.Contains(t, result.Attempts, model.GenerationUniLog)

	_, err = ds.IdentifyPort(context.Background(), &IdentifyRequest{})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestAutoSetupRegistersAnsweringLoggers(t *testing.T) {
	gen1 := newFakeLogger(model.GenerationUniLog)
	f := newFixture(t, map[model.Generation]driver.DeviceProtocol{model.GenerationUniLog: gen1})
	f.register(t, "bench", model.GenerationUniLog)
	ds := newDiscovery(f,
		serialPort(testPort, "A1", 0.9),
		serialPort("/dev/ttyUSB1", "B2", 0.7),
		serialPort("/dev/ttyS0", "", 0.1),
	)

	result, err := ds.AutoSetup(context.Background(), &AutoSetupRequest{MinConfidence: 0.3})
	require.NoError(t, err)
	require.Len(t, result.Registered, 1)
	require.Equal(t, "unilog-B2", result.Registered[0].DeviceID)
	require.Equal(t, "/dev/ttyUSB1", result.Registered[0].PortName())
	require.Equal(t, "registered as bench", result.Skipped[testPort])
	require.Equal(t, "low confidence", result.Skipped["/dev/ttyS0"])
}

func TestSupportedGenerations(t *testing.T) {
	f := newFixture(t, nil)
	ds := newDiscovery(f)

	generations := ds.SupportedGenerations()
	require.Len(t, generations, 2)
	require.True(t, generations[0].BatchImport)
	require.False(t, generations[1].BatchImport)
}
