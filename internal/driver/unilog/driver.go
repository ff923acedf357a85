// internal/driver/unilog/driver.go
package unilog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"unilog-service/internal/checksum"
	"unilog-service/internal/gatherer"
	"unilog-service/internal/model"
	"unilog-service/internal/protocol"
	"unilog-service/internal/setup"
	"unilog-service/internal/utils"
	"unilog-service/pkg/driver"
)

// Driver speaks the UniLog serial protocol
type Driver struct {
	Decoder

	transport     protocol.Transport
	logger        *utils.DeviceLogger
	timing        driver.Timing
	mutex         sync.Mutex
	state         driver.State
	receiveErrors int
}

var (
	_ driver.DeviceProtocol      = (*Driver)(nil)
	_ driver.Configurer          = (*Driver)(nil)
	_ driver.TelemetryConfigurer = (*Driver)(nil)
	_ driver.TelegramDecoder     = (*Driver)(nil)
	_ driver.MemoryReader        = (*Driver)(nil)
)

// DefaultTiming returns the polling bounds used by the UniLog firmware tools
func DefaultTiming() driver.Timing {
	return driver.Timing{
		ConnectAttempts: 50,
		ReadyAttempts:   20,
		ProbeDelay:      100 * time.Millisecond,
		StatusTimeout:   2 * time.Second,
		FrameTimeout:    4 * time.Second,
		SettleDelay:     3 * time.Second,
		DrainRounds:     1,
		QuietPeriod:     50 * time.Millisecond,
		LiveRetries:     100,
		LiveRetryDelay:  250 * time.Millisecond,
	}
}

// New creates a UniLog driver on top of an unopened transport
func New(device *model.Device, transport protocol.Transport, logger *zap.Logger, opts driver.Options) *Driver {
	deviceID := "unilog"
	if device != nil {
		deviceID = device.DeviceID
	}
	return &Driver{
		transport: transport,
		logger:    utils.NewDeviceLogger(logger, deviceID, string(model.GenerationUniLog), transport.Name()),
		timing:    opts.Timing.Merge(DefaultTiming()),
		state:     driver.StateDisconnected,
	}
}

// Generation implements driver.DeviceProtocol
func (d *Driver) Generation() model.Generation { return model.GenerationUniLog }

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

// ReceiveErrors returns the number of telegrams that needed a resend
func (d *Driver) ReceiveErrors() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.receiveErrors
}

// queryStatus writes the state query and reads the status byte
func (d *Driver) queryStatus(ctx context.Context, delay time.Duration) (byte, error) {
	if err := d.transport.Write(ctx, Commands.QueryState); err != nil {
		return 0, err
	}
	if err := driver.Sleep(ctx, delay); err != nil {
		return 0, err
	}
	buf, err := d.transport.Read(ctx, 1, d.timing.StatusTimeout)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

// probe repeats the state query until accept returns true. Timeouts and
// unexpected status bytes use up an attempt, other errors end the probe.
func (d *Driver) probe(ctx context.Context, op string, attempts int, delay time.Duration, accept func(byte) bool) error {
	d.setState(driver.StateProbing)
	unexpected := 0
	for i := 0; i < attempts; i++ {
		status, err := d.queryStatus(ctx, delay)
		if err != nil {
			if protocol.IsTimeout(err) {
				continue
			}
			return err
		}
		if accept(status) {
			return nil
		}
		unexpected++
	}
	d.logger.Warn("Readiness check exhausted",
		zap.String("op", op),
		zap.Int("attempts", attempts),
		zap.Int("unexpected_status", unexpected),
	)
	return protocol.NotReadyError(op, attempts)
}

// CheckConnection implements driver.DeviceProtocol. The logger answers
// waiting or ready when it is present.
func (d *Driver) CheckConnection(ctx context.Context) error {
	return d.probe(ctx, "check connection", d.timing.ConnectAttempts, d.timing.ProbeDelay, func(b byte) bool {
		return b == StatusWaiting || b == StatusReady
	})
}

// CheckDataReady implements driver.DeviceProtocol
func (d *Driver) CheckDataReady(ctx context.Context) error {
	if err := d.probe(ctx, "check data ready", d.timing.ReadyAttempts, 0, func(b byte) bool {
		return b == StatusReady
	}); err != nil {
		return err
	}
	d.setState(driver.StateReady)
	return nil
}

func (d *Driver) waitDataReady(ctx context.Context) error {
	if err := d.CheckConnection(ctx); err != nil {
		return err
	}
	return d.CheckDataReady(ctx)
}

// query waits for readiness, sends cmd and reads one checksummed frame
func (d *Driver) query(ctx context.Context, op string, cmd []byte) ([]byte, error) {
	if err := d.waitDataReady(ctx); err != nil {
		return nil, err
	}
	if err := d.transport.Write(ctx, cmd); err != nil {
		return nil, err
	}
	frame, err := d.transport.Read(ctx, TelegramLength, d.timing.FrameTimeout)
	if err != nil {
		return nil, err
	}
	if err := verifyTelegram(op, frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// set waits for readiness, sends a set command and expects the ok byte
func (d *Driver) set(ctx context.Context, op string, cmd []byte) error {
	if err := d.waitDataReady(ctx); err != nil {
		return err
	}
	if err := d.transport.Write(ctx, cmd); err != nil {
		return err
	}
	answer, err := d.transport.Read(ctx, 1, d.timing.FrameTimeout)
	if err != nil {
		return err
	}
	if answer[0] != StatusOK {
		return protocol.ProtocolErrorf(op, "unexpected answer 0x%02X", answer[0])
	}
	return nil
}

// ConfigLayout implements driver.Configurer
func (d *Driver) ConfigLayout() *setup.Layout { return setup.Gen1Runtime }

// ReadConfiguration implements driver.Configurer
func (d *Driver) ReadConfiguration(ctx context.Context) (*setup.Block, error) {
	var block *setup.Block
	err := protocol.WithOpen(ctx, d.transport, func() error {
		frame, err := d.query(ctx, "read configuration", Commands.QueryConfig)
		if err != nil {
			return err
		}
		block, err = setup.Gen1Runtime.Decode(frame)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	return block, nil
}

// WriteConfiguration implements driver.Configurer
func (d *Driver) WriteConfiguration(ctx context.Context, block *setup.Block) error {
	if block.Layout() != setup.Gen1Runtime {
		return fmt.Errorf("unexpected layout %s", block.Layout().Name)
	}
	cmd, err := buildConfigCommand(block)
	if err != nil {
		return err
	}
	err = protocol.WithOpen(ctx, d.transport, func() error {
		return d.set(ctx, "write configuration", cmd)
	})
	if err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}
	return nil
}

// TelemetryLayout implements driver.TelemetryConfigurer
func (d *Driver) TelemetryLayout() *setup.Layout { return setup.Gen1Telemetry }

// ReadTelemetryConfiguration implements driver.TelemetryConfigurer
func (d *Driver) ReadTelemetryConfiguration(ctx context.Context) (*setup.Block, error) {
	var block *setup.Block
	err := protocol.WithOpen(ctx, d.transport, func() error {
		frame, err := d.query(ctx, "read telemetry configuration", Commands.QueryTelemetryConfig)
		if err != nil {
			return err
		}
		block, err = setup.Gen1Telemetry.Decode(frame)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read telemetry configuration: %w", err)
	}
	return block, nil
}

// WriteTelemetryConfiguration implements driver.TelemetryConfigurer
func (d *Driver) WriteTelemetryConfiguration(ctx context.Context, block *setup.Block) error {
	if block.Layout() != setup.Gen1Telemetry {
		return fmt.Errorf("unexpected layout %s", block.Layout().Name)
	}
	cmd, err := buildTelemetryCommand(block)
	if err != nil {
		return err
	}
	err = protocol.WithOpen(ctx, d.transport, func() error {
		return d.set(ctx, "write telemetry configuration", cmd)
	})
	if err != nil {
		return fmt.Errorf("failed to write telemetry configuration: %w", err)
	}
	return nil
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

// ClearMemory implements driver.MemoryReader. The firmware does not echo the
// ok byte once the flash has been erased.
func (d *Driver) ClearMemory(ctx context.Context) (bool, error) {
	success := false
	err := protocol.WithOpen(ctx, d.transport, func() error {
		if err := d.waitDataReady(ctx); err != nil {
			return err
		}
		if err := d.transport.Write(ctx, Commands.Delete); err != nil {
			return err
		}
		answer, err := d.transport.Read(ctx, 1, d.timing.FrameTimeout)
		if err != nil {
			return err
		}
		success = answer[0] != StatusOK
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to clear memory: %w", err)
	}
	d.logger.Info("Memory clear", zap.Bool("success", success))
	return success, nil
}

// BeginStreaming implements driver.DeviceProtocol. The sample period and the
// analog modes come from the configuration frame.
func (d *Driver) BeginStreaming(ctx context.Context) (*driver.StreamPlan, error) {
	cfg, err := d.ReadConfiguration(ctx)
	if err != nil {
		return nil, err
	}
	if err := d.CheckConnection(ctx); err != nil {
		return nil, err
	}
	if err := d.waitLiveData(ctx); err != nil {
		return nil, err
	}

	channels := DefaultChannels()
	setAnalogMode(&channels, ChA1, clampMode(cfg.Int(setup.FieldModusA1)))
	setAnalogMode(&channels, ChA2, clampMode(cfg.Int(setup.FieldModusA2)))
	setAnalogMode(&channels, ChA3, clampMode(cfg.Int(setup.FieldModusA3)))

	d.setState(driver.StateStreaming)
	interval := time.Duration(PollIntervalMs(cfg.Int(setup.FieldTimeInterval))) * time.Millisecond
	d.logger.Info("Live streaming started", zap.Duration("poll_interval", interval))
	return &driver.StreamPlan{PollInterval: interval, Channels: channels, Config: cfg}, nil
}

func clampMode(m int) int {
	if m > 3 {
		return 3
	}
	return m
}

// waitLiveData requests live values until the logger starts answering, then
// discards what was received
func (d *Driver) waitLiveData(ctx context.Context) error {
	received := 0
	for i := 0; i < d.timing.LiveRetries && received < 10; i++ {
		if err := d.transport.Write(ctx, Commands.LiveValues); err != nil {
			return err
		}
		data, err := d.transport.ReadUntilQuiet(ctx, TelegramLength, d.timing.QuietPeriod, d.timing.LiveRetryDelay)
		if err != nil && !protocol.IsTimeout(err) {
			return err
		}
		received += len(data)
	}
	if received < 10 {
		return protocol.NotReadyError("wait live data", d.timing.LiveRetries)
	}
	_, err := d.transport.ReadUntilQuiet(ctx, TelegramLength, d.timing.QuietPeriod, d.timing.FrameTimeout)
	if err != nil && !protocol.IsTimeout(err) {
		return err
	}
	return nil
}

// LiveSnapshot implements driver.DeviceProtocol. A frame with a bad checksum
// is requested once more.
func (d *Driver) LiveSnapshot(ctx context.Context) (*model.SamplePoint, error) {
	frame, err := d.readLive(ctx)
	if err != nil {
		return nil, err
	}
	if checksum.AdditivePlusOne.Verify(frame) != nil {
		d.logger.Warn("Live frame checksum mismatch, requesting again", zap.Binary("frame", frame))
		if frame, err = d.readLive(ctx); err != nil {
			return nil, err
		}
		if err := verifyTelegram("live snapshot", frame); err != nil {
			return nil, err
		}
	}
	return &model.SamplePoint{Values: DecodeValues(frame)}, nil
}

func (d *Driver) readLive(ctx context.Context) ([]byte, error) {
	if err := d.transport.Write(ctx, Commands.LiveValues); err != nil {
		return nil, err
	}
	return d.transport.Read(ctx, TelegramLength, d.timing.FrameTimeout)
}

// EndStreaming implements driver.DeviceProtocol. The UniLog stops sending
// live frames as soon as it is no longer polled, no command is needed.
func (d *Driver) EndStreaming(ctx context.Context) error {
	d.setState(driver.StateReady)
	return nil
}

// readSingleTelegram reads the next stored telegram. A timeout or checksum
// failure is answered with the repeat command once.
func (d *Driver) readSingleTelegram(ctx context.Context) ([]byte, error) {
	if err := d.transport.Write(ctx, Commands.ReadData); err != nil {
		return nil, err
	}
	frame, err := d.transport.Read(ctx, TelegramLength, d.timing.FrameTimeout)
	if err == nil && checksum.AdditivePlusOne.Verify(frame) == nil {
		return frame, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil && !protocol.IsTimeout(err) && protocol.CodeOf(err) != protocol.CodeChecksum {
		return nil, err
	}

	d.mutex.Lock()
	d.receiveErrors++
	d.mutex.Unlock()
	d.logger.Warn("Telegram receive error, requesting repeat", zap.Binary("frame", frame), zap.Error(err))

	if err := d.transport.Write(ctx, Commands.Repeat); err != nil {
		return nil, err
	}
	frame, err = d.transport.Read(ctx, TelegramLength, d.timing.FrameTimeout)
	if err != nil {
		return nil, err
	}
	if err := verifyTelegram("read telegram", frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// recordSetNumber extracts the record set a telegram belongs to
func recordSetNumber(t []byte) int {
	return int(t[5]&0xF8)/8 + 1
}

// DownloadMemory implements driver.MemoryReader. Telegrams are grouped by
// record set; groups too short to hold data beyond the min and max records
// are dropped. Closing stop ends the transfer early.
func (d *Driver) DownloadMemory(ctx context.Context, stop <-chan struct{}, progress driver.ProgressFunc) (*driver.MemoryDump, error) {
	d.mutex.Lock()
	d.receiveErrors = 0
	d.mutex.Unlock()

	dump := &driver.MemoryDump{}
	err := protocol.WithOpen(ctx, d.transport, func() error {
		frame, err := d.query(ctx, "download memory", Commands.QueryConfig)
		if err != nil {
			return err
		}
		cfg, err := setup.Gen1Runtime.Decode(frame)
		if err != nil {
			return err
		}
		dump.Config = cfg
		total := cfg.Int(setup.FieldMemoryUsed)

		if err := d.transport.Write(ctx, Commands.Reset); err != nil {
			return err
		}

		var group [][]byte
		current := 1
		flush := func() {
			if len(group) >= d.MinTelegrams() {
				dump.Buffer = gatherer.AppendBlock(dump.Buffer, group)
				dump.Blocks++
			} else {
				dump.ShortBlocks++
			}
			group = nil
		}

		for i := 0; i < total; i++ {
			telegram, err := d.readSingleTelegram(ctx)
			if err != nil {
				return err
			}
			dump.Telegrams++
			if n := recordSetNumber(telegram); n != current {
				flush()
				current = n
			}
			group = append(group, telegram)

			if progress != nil && dump.Telegrams%5 == 0 {
				progress(driver.DownloadProgress{
					Telegrams:     dump.Telegrams,
					Total:         total,
					RecordSet:     current,
					ReceiveErrors: d.ReceiveErrors(),
					ShortBlocks:   dump.ShortBlocks,
				})
			}
			if driver.Stopped(stop) {
				d.logger.Warn("Memory download stopped by user", zap.Int("telegrams", dump.Telegrams))
				dump.Stopped = true
				break
			}
		}
		flush()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download memory: %w", err)
	}
	dump.ReceiveErrors = d.ReceiveErrors()
	if progress != nil {
		progress(driver.DownloadProgress{
			Telegrams:     dump.Telegrams,
			Total:         dump.Telegrams,
			ReceiveErrors: dump.ReceiveErrors,
			ShortBlocks:   dump.ShortBlocks,
		})
	}
	return dump, nil
}
