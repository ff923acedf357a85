// internal/protocol/protocol.go
package protocol

import (
	"context"
	"time"

	"unilog-service/internal/model"
)

// Transport is the byte pipe between a driver and a logger. It does not
// retry and does not frame: Read returns exactly n bytes or a timeout.
type Transport interface {
	// Connection lifecycle
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool

	// Data communication
	Write(ctx context.Context, data []byte) error
	Read(ctx context.Context, n int, timeout time.Duration) ([]byte, error)
	// ReadUntilQuiet drains up to max bytes and returns once the line has been
	// silent for quiet, or when timeout expires.
	ReadUntilQuiet(ctx context.Context, max int, quiet, timeout time.Duration) ([]byte, error)

	// Diagnostics
	Name() string
	Type() model.ConnectionType
	Stats() TransportStats
}

// TransportStats provides transport-level statistics
type TransportStats struct {
	BytesWritten   int64         `json:"bytes_written"`
	BytesRead      int64         `json:"bytes_read"`
	OperationCount int64         `json:"operation_count"`
	ErrorCount     int64         `json:"error_count"`
	TimeoutCount   int64         `json:"timeout_count"`
	LastActivity   time.Time     `json:"last_activity"`
	AverageLatency time.Duration `json:"average_latency"`
	IsConnected    bool          `json:"is_connected"`
}

// Acquire opens t if it is closed. The returned release closes the transport
// only when this call opened it; opened reports which case applied.
func Acquire(ctx context.Context, t Transport) (release func(), opened bool, err error) {
	if t.IsOpen() {
		return func() {}, false, nil
	}
	if err := t.Open(ctx); err != nil {
		return func() {}, false, err
	}
	return func() { _ = t.Close() }, true, nil
}

// WithOpen runs fn with t open and restores the previous open state on every
// exit path.
func WithOpen(ctx context.Context, t Transport, fn func() error) error {
	release, _, err := Acquire(ctx, t)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}
