// internal/protocol/tcp_connection.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"unilog-service/internal/model"
)

// TCPConnection implements Transport for a logger reached through a
// serial-to-TCP bridge.
type TCPConnection struct {
	config *TCPConfig
	conn   net.Conn
	logger *zap.Logger
	mutex  sync.Mutex
	isOpen bool

	statsMutex sync.Mutex
	stats      TransportStats
}

// NewTCPConnection creates a new TCP connection
func NewTCPConnection(config *TCPConfig, logger *zap.Logger) *TCPConnection {
	return &TCPConnection{
		config: config,
		logger: logger.With(
			zap.String("transport", "tcp"),
			zap.String("host", config.Host),
			zap.Int("port", config.Port),
		),
	}
}

// Open opens the TCP connection
func (tc *TCPConnection) Open(ctx context.Context) error {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if tc.isOpen {
		return nil
	}

	tc.logger.Info("Opening TCP connection")

	dialer := &net.Dialer{
		Timeout:   tc.config.DialTimeout,
		KeepAlive: 30 * time.Second,
	}

	address := tc.Name()
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		tc.logger.Error("Failed to open TCP connection", zap.Error(err))
		return IOError("dial "+address, err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok && tc.config.KeepAlive {
		tcpConn.SetKeepAlive(true)
		tcpConn.SetKeepAlivePeriod(30 * time.Second)
	}

	tc.conn = conn
	tc.isOpen = true
	tc.updateStats(func(s *TransportStats) {
		s.IsConnected = true
		s.LastActivity = time.Now()
	})

	tc.logger.Info("TCP connection opened successfully")
	return nil
}

// Close closes the TCP connection
func (tc *TCPConnection) Close() error {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if !tc.isOpen || tc.conn == nil {
		return nil
	}

	err := tc.conn.Close()
	tc.conn = nil
	tc.isOpen = false
	tc.updateStats(func(s *TransportStats) { s.IsConnected = false })

	if err != nil {
		tc.logger.Error("Failed to close TCP connection", zap.Error(err))
		return IOError("close", err)
	}

	tc.logger.Info("TCP connection closed successfully")
	return nil
}

// IsOpen returns whether the connection is open
func (tc *TCPConnection) IsOpen() bool {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()
	return tc.isOpen && tc.conn != nil
}

// Write writes data to the TCP connection
func (tc *TCPConnection) Write(ctx context.Context, data []byte) error {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if !tc.isOpen || tc.conn == nil {
		return IOError("write", errors.New("TCP connection not open"))
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if deadline, ok := ctx.Deadline(); ok {
		tc.conn.SetWriteDeadline(deadline)
	} else {
		tc.conn.SetWriteDeadline(time.Time{})
	}

	startTime := time.Now()
	n, err := tc.conn.Write(data)
	if err != nil {
		tc.updateStats(func(s *TransportStats) { s.ErrorCount++ })
		tc.logger.Error("TCP write failed", zap.Error(err))
		return IOError("write", err)
	}

	if n != len(data) {
		return IOError("write", fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data)))
	}

	duration := time.Since(startTime)
	tc.updateStats(func(s *TransportStats) {
		s.BytesWritten += int64(len(data))
		s.OperationCount++
		s.LastActivity = time.Now()
		s.AverageLatency = averageLatency(s.AverageLatency, duration)
	})

	tc.logger.Debug("TCP write completed", zap.Binary("data", data))
	return nil
}

// Read reads exactly n bytes or fails with a timeout error
func (tc *TCPConnection) Read(ctx context.Context, n int, timeout time.Duration) ([]byte, error) {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if !tc.isOpen || tc.conn == nil {
		return nil, IOError("read", errors.New("TCP connection not open"))
	}

	data, err := readExactly(ctx, "read", tc.pollRead, n, timeout)
	tc.recordRead(len(data), err)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// ReadUntilQuiet drains the stream until it stays silent
func (tc *TCPConnection) ReadUntilQuiet(ctx context.Context, max int, quiet, timeout time.Duration) ([]byte, error) {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if !tc.isOpen || tc.conn == nil {
		return nil, IOError("drain", errors.New("TCP connection not open"))
	}

	data, err := readQuiet(ctx, "drain", tc.pollRead, max, quiet, timeout)
	tc.recordRead(len(data), err)
	return data, err
}

// pollRead reads with a short deadline and maps a deadline hit to "nothing yet".
func (tc *TCPConnection) pollRead(p []byte) (int, error) {
	tc.conn.SetReadDeadline(time.Now().Add(pollInterval))
	n, err := tc.conn.Read(p)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return n, nil
	}
	return n, err
}

// Name returns host:port
func (tc *TCPConnection) Name() string {
	return net.JoinHostPort(tc.config.Host, fmt.Sprint(tc.config.Port))
}

// Type returns the connection type
func (tc *TCPConnection) Type() model.ConnectionType {
	return model.ConnectionTypeTCP
}

// Stats returns a snapshot of the transport statistics
func (tc *TCPConnection) Stats() TransportStats {
	tc.statsMutex.Lock()
	defer tc.statsMutex.Unlock()
	return tc.stats
}

func (tc *TCPConnection) recordRead(n int, err error) {
	tc.updateStats(func(s *TransportStats) {
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

func (tc *TCPConnection) updateStats(fn func(s *TransportStats)) {
	tc.statsMutex.Lock()
	fn(&tc.stats)
	tc.statsMutex.Unlock()
}
