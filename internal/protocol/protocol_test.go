package protocol_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"unilog-service/internal/model"
	"unilog-service/internal/protocol"
	"unilog-service/internal/protocol/protocoltest"
)

func TestWithOpenClosesWhatItOpened(t *testing.T) {
	tr := protocoltest.New("COM3")
	ctx := context.Background()

	err := protocol.WithOpen(ctx, tr, func() error {
		require.True(t, tr.IsOpen())
		return errors.New("device answered garbage")
	})
	require.Error(t, err)
	require.False(t, tr.IsOpen())
	require.Equal(t, 1, tr.Opens())
	require.Equal(t, 1, tr.Closes())
}

func TestWithOpenLeavesCallerOwnedPortOpen(t *testing.T) {
	tr := protocoltest.New("COM3")
	ctx := context.Background()
	require.NoError(t, tr.Open(ctx))

	require.NoError(t, protocol.WithOpen(ctx, tr, func() error { return nil }))
	require.True(t, tr.IsOpen())
	require.Equal(t, 0, tr.Closes())
}

func TestAcquireReportsOwnership(t *testing.T) {
	tr := protocoltest.New("COM3")
	release, opened, err := protocol.Acquire(context.Background(), tr)
	require.NoError(t, err)
	require.True(t, opened)
	release()
	require.False(t, tr.IsOpen())

	tr.FailOpen(errors.New("busy"))
	_, opened, err = protocol.Acquire(context.Background(), tr)
	require.ErrorIs(t, err, protocol.ErrIO)
	require.False(t, opened)
}

func TestCreateTransportValidates(t *testing.T) {
	logger := zap.NewNop()

	_, err := protocol.CreateTransport(model.ConnectionTypeSerial, map[string]interface{}{}, logger)
	require.Error(t, err)

	_, err = protocol.CreateTransport(model.ConnectionTypeSerial, map[string]interface{}{
		"port": "/dev/ttyUSB0", "baud_rate": float64(12345),
	}, logger)
	require.ErrorContains(t, err, "invalid baud rate")

	tr, err := protocol.CreateTransport(model.ConnectionTypeSerial, map[string]interface{}{
		"port": "/dev/ttyUSB0", "baud_rate": float64(115200),
	}, logger)
	require.NoError(t, err)
	require.Equal(t, "/dev/ttyUSB0", tr.Name())
	require.False(t, tr.IsOpen())

	tr, err = protocol.CreateTransport(model.ConnectionTypeTCP, map[string]interface{}{
		"host": "10.0.0.5", "port": 4001,
	}, logger)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.5:4001", tr.Name())

	_, err = protocol.CreateTransport(model.ConnectionTypeTCP, map[string]interface{}{
		"host": "10.0.0.5", "port": 70000,
	}, logger)
	require.Error(t, err)
}
