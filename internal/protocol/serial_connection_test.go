package protocol

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
	"go.uber.org/zap"
)

// fakePort answers the UniLog state query with a ready byte.
type fakePort struct {
	serial.Port

	mu      sync.Mutex
	rx      []byte
	written []byte
	closed  bool
}

func (p *fakePort) SetReadTimeout(time.Duration) error { return nil }
func (p *fakePort) ResetInputBuffer() error            { return nil }

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written = append(p.written, b...)
	if len(b) == 1 && b[0] == 'T' {
		p.rx = append(p.rx, 'F')
	}
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.rx) == 0 {
		return 0, nil
	}
	n := copy(b, p.rx)
	p.rx = p.rx[n:]
	return n, nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func TestSerialConnectionRoundTrip(t *testing.T) {
	port := &fakePort{}
	var gotMode *serial.Mode
	opener := func(name string, mode *serial.Mode) (serial.Port, error) {
		require.Equal(t, "/dev/ttyUSB0", name)
		gotMode = mode
		return port, nil
	}

	conn := NewSerialConnectionWithOpener(DefaultSerialConfig("/dev/ttyUSB0"), opener, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, conn.Open(ctx))
	require.True(t, conn.IsOpen())
	require.Equal(t, 115200, gotMode.BaudRate)
	require.Equal(t, serial.NoParity, gotMode.Parity)

	require.NoError(t, conn.Write(ctx, []byte{'T'}))
	answer, err := conn.Read(ctx, 1, time.Second)
	require.NoError(t, err)
	require.Equal(t, []byte{'F'}, answer)

	_, err = conn.Read(ctx, 24, 20*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)

	stats := conn.Stats()
	require.EqualValues(t, 1, stats.BytesWritten)
	require.EqualValues(t, 1, stats.BytesRead)
	require.EqualValues(t, 1, stats.TimeoutCount)

	require.NoError(t, conn.Close())
	require.False(t, conn.IsOpen())
	require.True(t, port.closed)
}

func TestSerialConnectionOpenFailureIsIOError(t *testing.T) {
	opener := func(string, *serial.Mode) (serial.Port, error) {
		return nil, errors.New("no such file or directory")
	}
	conn := NewSerialConnectionWithOpener(DefaultSerialConfig("/dev/ttyACM9"), opener, zap.NewNop())
	err := conn.Open(context.Background())
	require.ErrorIs(t, err, ErrIO)
	require.False(t, conn.IsOpen())
}

func TestSerialConnectionRejectsIOWhenClosed(t *testing.T) {
	conn := NewSerialConnectionWithOpener(DefaultSerialConfig("/dev/ttyUSB0"), nil, zap.NewNop())
	require.ErrorIs(t, conn.Write(context.Background(), []byte{'T'}), ErrIO)
	_, err := conn.Read(context.Background(), 1, time.Millisecond)
	require.ErrorIs(t, err, ErrIO)
}
