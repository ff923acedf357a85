// internal/protocol/serial_connection.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"unilog-service/internal/model"
)

// PortOpener opens a serial port. serial.Open in production.
type PortOpener func(name string, mode *serial.Mode) (serial.Port, error)

// SerialConnection implements Transport for serial connections
type SerialConnection struct {
	config   *SerialConfig
	openPort PortOpener
	port     serial.Port
	logger   *zap.Logger
	mutex    sync.Mutex
	isOpen   bool

	statsMutex sync.Mutex
	stats      TransportStats
}

// NewSerialConnection creates a new serial connection
func NewSerialConnection(config *SerialConfig, logger *zap.Logger) *SerialConnection {
	return NewSerialConnectionWithOpener(config, serial.Open, logger)
}

// NewSerialConnectionWithOpener creates a serial connection that opens its
// port through opener.
func NewSerialConnectionWithOpener(config *SerialConfig, opener PortOpener, logger *zap.Logger) *SerialConnection {
	return &SerialConnection{
		config:   config,
		openPort: opener,
		logger: logger.With(
			zap.String("transport", "serial"),
			zap.String("port", config.Port),
		),
	}
}

// Open opens the serial connection
func (sc *SerialConnection) Open(ctx context.Context) error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if sc.isOpen {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sc.logger.Info("Opening serial port",
		zap.Int("baud_rate", sc.config.BaudRate),
	)

	mode := &serial.Mode{
		BaudRate: sc.config.BaudRate,
		DataBits: sc.config.DataBits,
		StopBits: stopBits(sc.config.StopBits),
	}

	switch sc.config.Parity {
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	default:
		mode.Parity = serial.NoParity
	}

	port, err := sc.openPort(sc.config.Port, mode)
	if err != nil {
		sc.logger.Error("Failed to open serial port", zap.Error(err))
		return IOError("open "+sc.config.Port, err)
	}

	if err := port.SetReadTimeout(pollInterval); err != nil {
		port.Close()
		return IOError("set read timeout", err)
	}

	// stale bytes from a previous session would shift every frame
	if err := port.ResetInputBuffer(); err != nil {
		sc.logger.Warn("Failed to reset input buffer", zap.Error(err))
	}

	sc.port = port
	sc.isOpen = true
	sc.updateStats(func(s *TransportStats) {
		s.IsConnected = true
		s.LastActivity = time.Now()
	})

	sc.logger.Info("Serial port opened successfully")
	return nil
}

// Close closes the serial connection
func (sc *SerialConnection) Close() error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if !sc.isOpen || sc.port == nil {
		return nil
	}

	err := sc.port.Close()
	sc.port = nil
	sc.isOpen = false
	sc.updateStats(func(s *TransportStats) { s.IsConnected = false })

	if err != nil {
		sc.logger.Error("Failed to close serial port", zap.Error(err))
		return IOError("close "+sc.config.Port, err)
	}

	sc.logger.Info("Serial port closed successfully")
	return nil
}

// IsOpen returns whether the connection is open
func (sc *SerialConnection) IsOpen() bool {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	return sc.isOpen && sc.port != nil
}

// Write writes data to the serial port
func (sc *SerialConnection) Write(ctx context.Context, data []byte) error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if !sc.isOpen || sc.port == nil {
		return IOError("write", errors.New("serial port not open"))
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	startTime := time.Now()
	n, err := sc.port.Write(data)
	if err != nil {
		sc.updateStats(func(s *TransportStats) { s.ErrorCount++ })
		sc.logger.Error("Serial write failed", zap.Error(err))
		return IOError("write", err)
	}

	if n != len(data) {
		return IOError("write", fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data)))
	}

	duration := time.Since(startTime)
	sc.updateStats(func(s *TransportStats) {
		s.BytesWritten += int64(len(data))
		s.OperationCount++
		s.LastActivity = time.Now()
		s.AverageLatency = averageLatency(s.AverageLatency, duration)
	})

	sc.logger.Debug("Serial write completed", zap.Binary("data", data))
	return nil
}

// Read reads exactly n bytes or fails with a timeout error
func (sc *SerialConnection) Read(ctx context.Context, n int, timeout time.Duration) ([]byte, error) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if !sc.isOpen || sc.port == nil {
		return nil, IOError("read", errors.New("serial port not open"))
	}

	data, err := readExactly(ctx, "read", sc.port.Read, n, timeout)
	sc.recordRead(len(data), err)
	if err != nil {
		return nil, err
	}

	sc.logger.Debug("Serial read completed", zap.Binary("data", data))
	return data, nil
}

// ReadUntilQuiet drains the receive line until it stays silent
func (sc *SerialConnection) ReadUntilQuiet(ctx context.Context, max int, quiet, timeout time.Duration) ([]byte, error) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if !sc.isOpen || sc.port == nil {
		return nil, IOError("drain", errors.New("serial port not open"))
	}

	data, err := readQuiet(ctx, "drain", sc.port.Read, max, quiet, timeout)
	sc.recordRead(len(data), err)
	return data, err
}

// Name returns the port name
func (sc *SerialConnection) Name() string {
	return sc.config.Port
}

// Type returns the connection type
func (sc *SerialConnection) Type() model.ConnectionType {
	return model.ConnectionTypeSerial
}

// Stats returns a snapshot of the transport statistics
func (sc *SerialConnection) Stats() TransportStats {
	sc.statsMutex.Lock()
	defer sc.statsMutex.Unlock()
	return sc.stats
}

func (sc *SerialConnection) recordRead(n int, err error) {
	sc.updateStats(func(s *TransportStats) {
		s.BytesRead += int64(n)
		s.OperationCount++
		s.LastActivity = time.Now()
		switch {
		case IsTimeout(err):
			s.TimeoutCount++
		case err != nil:
			s.ErrorCount++
		}
	})
}

func (sc *SerialConnection) updateStats(fn func(s *TransportStats)) {
	sc.statsMutex.Lock()
	fn(&sc.stats)
	sc.statsMutex.Unlock()
}

func stopBits(n int) serial.StopBits {
	if n == 2 {
		return serial.TwoStopBits
	}
	return serial.OneStopBit
}

// averageLatency updates the running average latency
func averageLatency(current, sample time.Duration) time.Duration {
	if current == 0 {
		return sample
	}
	return (current + sample) / 2
}
