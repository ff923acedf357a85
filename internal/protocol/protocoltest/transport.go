// Package protocoltest provides a scripted in-memory transport for driver tests.
package protocoltest

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"unilog-service/internal/model"
	"unilog-service/internal/protocol"
)

// Transport is a scripted protocol.Transport. Every write is matched against
// the configured replies and the answer is queued on the receive side. A read
// for more bytes than are queued fails immediately with a timeout.
type Transport struct {
	mu       sync.Mutex
	name     string
	open     bool
	rx       []byte
	writes   [][]byte
	replies  map[string][][]byte
	handler  func(cmd []byte) []byte
	openErr  error
	writeErr error
	opens    int
	closes   int
	stats    protocol.TransportStats
}

var _ protocol.Transport = (*Transport)(nil)

// New returns a closed scripted transport.
func New(name string) *Transport {
	return &Transport{name: name, replies: make(map[string][][]byte)}
}

// Reply queues answers for cmd. They are consumed in order and the last one
// repeats once the queue is drained.
func (t *Transport) Reply(cmd []byte, replies ...[]byte) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := string(cmd)
	t.replies[key] = append(t.replies[key], replies...)
	return t
}

// Handle installs a responder that is consulted before the reply table.
// A nil answer falls through to Reply.
func (t *Transport) Handle(fn func(cmd []byte) []byte) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = fn
	return t
}

// Feed appends raw bytes to the receive buffer.
func (t *Transport) Feed(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rx = append(t.rx, data...)
}

// FailOpen makes the next Open calls fail with err.
func (t *Transport) FailOpen(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.openErr = err
}

// FailWrites makes every following Write fail with err.
func (t *Transport) FailWrites(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeErr = err
}

// Writes returns a copy of every command written so far.
func (t *Transport) Writes() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.writes))
	for i, w := range t.writes {
		out[i] = append([]byte(nil), w...)
	}
	return out
}

// CountWrites returns how often cmd was written.
func (t *Transport) CountWrites(cmd []byte) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, w := range t.writes {
		if bytes.Equal(w, cmd) {
			n++
		}
	}
	return n
}

// Opens and Closes report lifecycle calls.
func (t *Transport) Opens() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens
}

func (t *Transport) Closes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}

func (t *Transport) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.openErr != nil {
		return protocol.IOError("open "+t.name, t.openErr)
	}
	if !t.open {
		t.open = true
		t.opens++
		t.stats.IsConnected = true
	}
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.open {
		t.open = false
		t.closes++
		t.stats.IsConnected = false
	}
	return nil
}

func (t *Transport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

func (t *Transport) Write(ctx context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return protocol.IOError("write", errors.New("port not open"))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.writeErr != nil {
		return protocol.IOError("write", t.writeErr)
	}

	cmd := append([]byte(nil), data...)
	t.writes = append(t.writes, cmd)
	t.stats.BytesWritten += int64(len(cmd))
	t.stats.OperationCount++

	if t.handler != nil {
		if answer := t.handler(cmd); answer != nil {
			t.rx = append(t.rx, answer...)
			return nil
		}
	}

	key := string(cmd)
	queue := t.replies[key]
	switch len(queue) {
	case 0:
	case 1:
		t.rx = append(t.rx, queue[0]...)
	default:
		t.rx = append(t.rx, queue[0]...)
		t.replies[key] = queue[1:]
	}
	return nil
}

func (t *Transport) Read(ctx context.Context, n int, timeout time.Duration) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return nil, protocol.IOError("read", errors.New("port not open"))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(t.rx) < n {
		got := len(t.rx)
		t.rx = nil
		t.stats.TimeoutCount++
		return nil, protocol.TimeoutError("read", got, n)
	}
	out := append([]byte(nil), t.rx[:n]...)
	t.rx = t.rx[n:]
	t.stats.BytesRead += int64(n)
	return out, nil
}

func (t *Transport) ReadUntilQuiet(ctx context.Context, max int, quiet, timeout time.Duration) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return nil, protocol.IOError("drain", errors.New("port not open"))
	}
	n := len(t.rx)
	if n > max {
		n = max
	}
	out := append([]byte(nil), t.rx[:n]...)
	t.rx = t.rx[n:]
	t.stats.BytesRead += int64(n)
	return out, nil
}

func (t *Transport) Name() string { return t.name }

func (t *Transport) Type() model.ConnectionType { return model.ConnectionTypeSerial }

func (t *Transport) Stats() protocol.TransportStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}
