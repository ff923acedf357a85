// internal/driver/unilog2/driver.go
package unilog2

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"unilog-service/internal/model"
	"unilog-service/internal/protocol"
	"unilog-service/internal/utils"
	"unilog-service/pkg/driver"
)

// Driver speaks the UniLog 2 serial protocol. The logger answers live
// requests with text pages; its configuration is exchanged through files
// only.
type Driver struct {
	transport    protocol.Transport
	logger       *utils.DeviceLogger
	timing       driver.Timing
	pollInterval time.Duration

	mutex    sync.Mutex
	state    driver.State
	last     []int32
	channels model.ChannelConfig
}

var _ driver.DeviceProtocol = (*Driver)(nil)

// DefaultTiming returns the polling bounds used by the UniLog 2 firmware tools
func DefaultTiming() driver.Timing {
	return driver.Timing{
		ConnectAttempts: 20,
		ReadyAttempts:   20,
		StatusTimeout:   4 * time.Second,
		FrameTimeout:    2 * time.Second,
		SettleDelay:     2 * time.Second,
		DrainRounds:     3,
		QuietPeriod:     50 * time.Millisecond,
		LiveRetries:     12,
		LiveRetryDelay:  time.Second,
	}
}

// New creates a UniLog 2 driver on top of an unopened transport
func New(device *model.Device, transport protocol.Transport, logger *zap.Logger, opts driver.Options) *Driver {
	deviceID := "unilog2"
	if device != nil {
		deviceID = device.DeviceID
	}
	return &Driver{
		transport:    transport,
		logger:       utils.NewDeviceLogger(logger, deviceID, string(model.GenerationUniLog2), transport.Name()),
		timing:       opts.Timing.Merge(DefaultTiming()),
		pollInterval: opts.PollInterval,
		state:        driver.StateDisconnected,
		last:         make([]int32, channelCount),
		channels:     DefaultChannels(),
	}
}

// Generation implements driver.DeviceProtocol
func (d *Driver) Generation() model.Generation { return model.GenerationUniLog2 }

// Transport implements driver.DeviceProtocol
func (d *Driver) Transport() protocol.Transport { return d.transport }

// State implements driver.DeviceProtocol
func (d *Driver) State() driver.State {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if !d.transport.IsOpen() {
		return driver.StateDisconnected
	}
	return d.state
}

func (d *Driver) setState(s driver.State) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.state != s {
		d.logger.Debug("State change", zap.String("from", string(d.state)), zap.String("to", string(s)))
	}
	d.state = s
}

// Channels implements driver.DeviceProtocol
func (d *Driver) Channels() model.ChannelConfig { return DefaultChannels() }

// SettleDelay implements driver.DeviceProtocol
func (d *Driver) SettleDelay() time.Duration { return d.timing.SettleDelay }

// queryStatus writes the state query and reads one answer byte
func (d *Driver) queryStatus(ctx context.Context) (byte, error) {
	if err := d.transport.Write(ctx, Commands.QueryState); err != nil {
		return 0, err
	}
	buf, err := d.transport.Read(ctx, 1, d.timing.StatusTimeout)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

// CheckConnection implements driver.DeviceProtocol. Any answer to the state
// query means a logger is attached.
func (d *Driver) CheckConnection(ctx context.Context) error {
	d.setState(driver.StateProbing)
	for i := 0; i < d.timing.ConnectAttempts; i++ {
		_, err := d.queryStatus(ctx)
		if err == nil {
			return nil
		}
		if !protocol.IsTimeout(err) {
			return err
		}
	}
	return protocol.NotReadyError("check connection", d.timing.ConnectAttempts)
}

// CheckDataReady implements driver.DeviceProtocol. After the ready answer the
// residual output is drained and the display is reset a few times so the
// next live request starts on a page boundary.
func (d *Driver) CheckDataReady(ctx context.Context) error {
	d.setState(driver.StateProbing)
	ready := false
	unexpected := 0
	for i := 0; i < d.timing.ReadyAttempts && !ready; i++ {
		status, err := d.queryStatus(ctx)
		if err != nil {
			if protocol.IsTimeout(err) {
				continue
			}
			return err
		}
		if status == StatusReady {
			ready = true
		} else {
			unexpected++
		}
	}
	if !ready {
		d.logger.Warn("Readiness check exhausted",
			zap.Int("attempts", d.timing.ReadyAttempts),
			zap.Int("unexpected_status", unexpected),
		)
		return protocol.NotReadyError("check data ready", d.timing.ReadyAttempts)
	}

	if err := d.drain(ctx); err != nil {
		return err
	}

	d.setState(driver.StateDraining)
	for i := 0; i < d.timing.DrainRounds; i++ {
		if err := d.transport.Write(ctx, Commands.Reset); err != nil {
			return err
		}
		if err := d.drain(ctx); err != nil {
			return err
		}
	}
	d.setState(driver.StateReady)
	return nil
}

// drain discards pending output. Timeouts are expected here.
func (d *Driver) drain(ctx context.Context) error {
	for i := 0; i < 2; i++ {
		if _, err := d.transport.Read(ctx, drainChunk, d.timing.StatusTimeout); err != nil && !protocol.IsTimeout(err) {
			return err
		}
	}
	data, err := d.transport.ReadUntilQuiet(ctx, drainLimit, d.timing.QuietPeriod, d.timing.LiveRetryDelay)
	if err != nil && !protocol.IsTimeout(err) {
		return err
	}
	if len(data) > 0 {
		d.logger.Debug("Drained residual output", zap.Int("bytes", len(data)))
	}
	return nil
}

// BeginStreaming implements driver.DeviceProtocol
func (d *Driver) BeginStreaming(ctx context.Context) (*driver.StreamPlan, error) {
	if err := d.CheckDataReady(ctx); err != nil {
		return nil, err
	}

	d.mutex.Lock()
	d.last = make([]int32, channelCount)
	d.channels = DefaultChannels()
	channels := d.channels.Clone()
	d.mutex.Unlock()

	d.setState(driver.StateStreaming)
	d.logger.Info("Live streaming started", zap.Duration("poll_interval", d.pollInterval))
	return &driver.StreamPlan{PollInterval: d.pollInterval, Channels: channels}, nil
}

// readPage requests one live text page
func (d *Driver) readPage(ctx context.Context) ([]byte, error) {
	if err := d.transport.Write(ctx, Commands.StartLogging); err != nil {
		return nil, err
	}
	if err := d.transport.Write(ctx, Commands.LiveValues); err != nil {
		return nil, err
	}
	page := make([]byte, 0, PageLength)
	for i := 0; i < chunksPerPage; i++ {
		chunk, err := d.transport.Read(ctx, chunkLength, d.timing.FrameTimeout)
		if err != nil {
			return nil, err
		}
		page = append(page, chunk...)
	}
	return page, nil
}

// LiveSnapshot implements driver.DeviceProtocol. Pages are requested until
// the drive, cell and sensor pages were seen. A page that is too short ends
// the round early; channels of pages not seen keep their previous values.
// A round without any live page is a timeout.
func (d *Driver) LiveSnapshot(ctx context.Context) (*model.SamplePoint, error) {
	d.mutex.Lock()
	values := append([]int32(nil), d.last...)
	channels := d.channels.Clone()
	d.mutex.Unlock()

	seen := map[PageKind]bool{}
	for i := 0; i < d.timing.LiveRetries && len(seen) < 3; i++ {
		raw, err := d.readPage(ctx)
		if err != nil {
			return nil, err
		}
		text := PageText(raw)
		if len(text) < minPageLength {
			d.logger.Debug("Short live page", zap.Int("length", len(text)))
			break
		}
		page := ParsePage(text)
		if page.Kind == PageUnknown || seen[page.Kind] {
			continue
		}
		seen[page.Kind] = true
		page.Apply(values, &channels)
	}
	if len(seen) == 0 {
		return nil, &protocol.Error{Code: protocol.CodeTimeout, Op: "live snapshot", Err: errors.New("no live page received")}
	}
	if len(seen) < 3 {
		d.logger.Debug("Incomplete live snapshot", zap.Int("pages", len(seen)))
	}

	d.mutex.Lock()
	d.last = append(d.last[:0], values...)
	d.channels = channels
	d.mutex.Unlock()

	return &model.SamplePoint{Values: values}, nil
}

// LiveChannels returns the channel layout with the analog modes seen on the
// sensor page
func (d *Driver) LiveChannels() model.ChannelConfig {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.channels.Clone()
}

// EndStreaming implements driver.DeviceProtocol
func (d *Driver) EndStreaming(ctx context.Context) error {
	d.setState(driver.StateReady)
	return d.transport.Write(ctx, Commands.StopLogging)
}

// StartLogging implements driver.DeviceProtocol
func (d *Driver) StartLogging(ctx context.Context) error {
	release, opened, err := protocol.Acquire(ctx, d.transport)
	if err != nil {
		return err
	}
	defer release()
	if opened {
		if err := driver.Sleep(ctx, d.timing.SettleDelay); err != nil {
			return err
		}
	}
	return d.transport.Write(ctx, Commands.StartLogging)
}

// StopLogging implements driver.DeviceProtocol
func (d *Driver) StopLogging(ctx context.Context) error {
	return protocol.WithOpen(ctx, d.transport, func() error {
		return d.transport.Write(ctx, Commands.StopLogging)
	})
}
