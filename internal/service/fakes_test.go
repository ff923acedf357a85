package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"unilog-service/internal/config"
	"unilog-service/internal/model"
	"unilog-service/internal/protocol"
	"unilog-service/internal/protocol/protocoltest"
	"unilog-service/internal/repository"
	"unilog-service/internal/setup"
	"unilog-service/pkg/driver"
)

const testPort = "/dev/ttyUSB0"

func testChannels() model.ChannelConfig {
	return model.ChannelConfig{Channels: []model.Channel{
		{Name: "Voltage", Unit: "V", Factor: 1, Kind: model.ChannelMeasured, Active: true},
		{Name: "Current", Unit: "A", Factor: 1, Kind: model.ChannelMeasured, Active: true},
		{Name: "Power", Unit: "W", Factor: 1, Kind: model.ChannelDerived, Derivation: model.DerivePower, DependsOn: []int{0, 1}, Active: true},
	}}
}

// fakeLogger is a logger that streams an increasing voltage
type fakeLogger struct {
	generation model.Generation
	transport  *protocoltest.Transport

	mu         sync.Mutex
	snapshots  int
	connectErr error
	logging    bool
}

func newFakeLogger(generation model.Generation) *fakeLogger {
	return &fakeLogger{generation: generation, transport: protocoltest.New(testPort)}
}

func (f *fakeLogger) Generation() model.Generation  { return f.generation }
func (f *fakeLogger) Transport() protocol.Transport { return f.transport }
func (f *fakeLogger) State() driver.State           { return driver.StateReady }
func (f *fakeLogger) Channels() model.ChannelConfig { return testChannels() }
func (f *fakeLogger) SettleDelay() time.Duration    { return 0 }

func (f *fakeLogger) CheckConnection(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectErr
}

func (f *fakeLogger) CheckDataReady(context.Context) error { return nil }

func (f *fakeLogger) BeginStreaming(context.Context) (*driver.StreamPlan, error) {
	return &driver.StreamPlan{PollInterval: time.Millisecond, Channels: testChannels()}, nil
}

func (f *fakeLogger) LiveSnapshot(context.Context) (*model.SamplePoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots++
	return &model.SamplePoint{Values: []int32{int32(f.snapshots) * 1000, 2000, 0}}, nil
}

func (f *fakeLogger) EndStreaming(context.Context) error { return nil }

func (f *fakeLogger) StartLogging(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logging = true
	return nil
}

func (f *fakeLogger) StopLogging(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logging = false
	return nil
}

// memoryLogger adds a flash memory to fakeLogger
type memoryLogger struct {
	*fakeLogger
	dump     *driver.MemoryDump
	cleared  bool
	clearErr error
}

func (m *memoryLogger) DownloadMemory(ctx context.Context, stop <-chan struct{}, progress driver.ProgressFunc) (*driver.MemoryDump, error) {
	if progress != nil {
		progress(driver.DownloadProgress{Telegrams: m.dump.Telegrams, Total: m.dump.Telegrams})
	}
	return m.dump, nil
}

func (m *memoryLogger) ClearMemory(context.Context) (bool, error) {
	return m.cleared, m.clearErr
}

// configLogger adds a generation-1 configuration frame to fakeLogger
type configLogger struct {
	*fakeLogger
	block  *setup.Block
	writes int
}

func (c *configLogger) ConfigLayout() *setup.Layout { return setup.Gen1Runtime }

func (c *configLogger) ReadConfiguration(context.Context) (*setup.Block, error) {
	return c.block, nil
}

func (c *configLogger) WriteConfiguration(_ context.Context, block *setup.Block) error {
	c.writes++
	c.block = block
	return nil
}

// fakeDecoder reads 4 byte telegrams holding two values
type fakeDecoder struct{}

func (fakeDecoder) TelegramLength() int { return 4 }
func (fakeDecoder) SkipTelegrams() int  { return 1 }
func (fakeDecoder) MinTelegrams() int   { return 3 }

func (fakeDecoder) DecodeTelegram(t []byte, _ *model.ChannelConfig) (*model.SamplePoint, error) {
	if t[3] == 0xFF {
		return nil, errors.New("bad telegram")
	}
	return &model.SamplePoint{Values: []int32{int32(t[0]) * 1000, int32(t[1]) * 1000, 0}}, nil
}

func (fakeDecoder) TimeStep([]byte) time.Duration { return 500 * time.Millisecond }

func (fakeDecoder) Channels() model.ChannelConfig { return testChannels() }

func telegrams(n int, v byte) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = []byte{v, 2, 5, 0}
	}
	return out
}

// fakeProvider hands out fixed drivers per generation
type fakeProvider struct {
	drivers map[model.Generation]driver.DeviceProtocol
}

func (p *fakeProvider) Driver(device *model.Device) (driver.DeviceProtocol, error) {
	proto, ok := p.drivers[device.Generation]
	if !ok {
		return nil, fmt.Errorf("%s driver: %w", device.Generation, ErrUnsupported)
	}
	return proto, nil
}

func (p *fakeProvider) Decoder(generation model.Generation) (driver.TelegramDecoder, error) {
	if generation != model.GenerationUniLog {
		return nil, fmt.Errorf("%s decoder: %w", generation, ErrUnsupported)
	}
	return fakeDecoder{}, nil
}

func (p *fakeProvider) Generations() []model.Generation {
	return []model.Generation{model.GenerationUniLog, model.GenerationUniLog2}
}

// eventRecorder is an EventSink that keeps everything
type eventRecorder struct {
	mu      sync.Mutex
	events  []*model.DeviceEvent
	samples chan struct{}
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{samples: make(chan struct{}, 1024)}
}

func (r *eventRecorder) Publish(event *model.DeviceEvent) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	if event.EventType == model.EventSample {
		select {
		case r.samples <- struct{}{}:
		default:
		}
	}
}

func (r *eventRecorder) count(t model.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.EventType == t {
			n++
		}
	}
	return n
}

func (r *eventRecorder) waitSamples(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.samples:
		case <-time.After(2 * time.Second):
			t.Fatalf("got %d samples, want %d", i, n)
		}
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Serial:      config.SerialPortConfig{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "none"},
		Acquisition: config.AcquisitionConfig{MaxTimeouts: 3, StopTimeout: time.Second},
		Discovery:   config.DiscoveryConfig{},
	}
}

// fixture wires the services against the memory store
type fixture struct {
	store      *repository.MemoryStore
	locks      *PortLocks
	provider   *fakeProvider
	events     *eventRecorder
	devices    *DeviceService
	live       *AcquisitionService
	operations *OperationService
}

func newFixture(t *testing.T, drivers map[model.Generation]driver.DeviceProtocol) *fixture {
	t.Helper()
	return newFixtureWithLogger(t, drivers, zap.NewNop())
}

func newFixtureWithLogger(t *testing.T, drivers map[model.Generation]driver.DeviceProtocol, logger *zap.Logger) *fixture {
	t.Helper()
	cfg := testConfig()
	f := &fixture{
		store:    repository.NewMemoryStore(),
		locks:    NewPortLocks(),
		provider: &fakeProvider{drivers: drivers},
		events:   newEventRecorder(),
	}
	f.devices = NewDeviceService(f.store.Devices(), f.provider, f.locks, cfg, logger)
	f.live = NewAcquisitionService(f.store.Devices(), f.store.Sessions(), f.store.Operations(),
		f.provider, f.locks, f.events, cfg, logger)
	files, err := setup.NewFileStore(afero.NewMemMapFs(), "/config", logger)
	require.NoError(t, err)
	f.operations = NewOperationService(f.store.Devices(), f.store.Sessions(), f.store.Operations(),
		f.provider, f.locks, files, f.events, cfg, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = f.live.Shutdown(ctx)
	})
	return f
}

func (f *fixture) register(t *testing.T, deviceID string, generation model.Generation) *model.Device {
	t.Helper()
	device, err := f.devices.RegisterDevice(context.Background(), &RegisterDeviceRequest{
		DeviceID:         deviceID,
		Generation:       generation,
		ConnectionType:   model.ConnectionTypeSerial,
		ConnectionConfig: map[string]interface{}{"port": testPort},
	})
	require.NoError(t, err)
	return device
}
