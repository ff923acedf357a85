package serial

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"
)

func listed(ports ...*enumerator.PortDetails) func() ([]*enumerator.PortDetails, error) {
	return func() ([]*enumerator.PortDetails, error) { return ports, nil }
}

func TestScanRatesKnownAdapters(t *testing.T) {
	s := NewScanner(zap.NewNop(), &Config{Patterns: []string{"/dev/ttyUSB*", "/dev/ttyS*"}, BaudRate: 115200})
	s.list = listed(
		&enumerator.PortDetails{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001", SerialNumber: "A1"},
		&enumerator.PortDetails{Name: "/dev/ttyUSB1", IsUSB: true, VID: "1234", PID: "abcd"},
		&enumerator.PortDetails{Name: "/dev/ttyS0"},
		&enumerator.PortDetails{Name: "/dev/ttyAMA0"},
	)

	ports, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, ports, 3)

	require.Equal(t, "/dev/ttyUSB0", ports[0].Name)
	require.Equal(t, "FTDI FT232R", ports[0].Chip)
	require.Equal(t, "0x0403", ports[0].VendorID)
	require.InDelta(t, 0.9, ports[0].Confidence, 1e-9)
	require.Equal(t, 115200, ports[0].ConnectionInfo["baud_rate"])

	require.Empty(t, ports[1].Chip)
	require.InDelta(t, 0.3, ports[1].Confidence, 1e-9)
	require.False(t, ports[2].IsUSB)
}

func TestScanOnlyUSB(t *testing.T) {
	s := NewScanner(zap.NewNop(), &Config{OnlyUSB: true})
	s.list = listed(
		&enumerator.PortDetails{Name: "COM3", IsUSB: true, VID: "067B", PID: "2303"},
		&enumerator.PortDetails{Name: "COM1"},
	)

	ports, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, ports, 1)
	require.Equal(t, "Prolific PL2303", ports[0].Chip)
}

func TestScanEnumeratorFailure(t *testing.T) {
	s := NewScanner(zap.NewNop(), nil)
	s.list = func() ([]*enumerator.PortDetails, error) { return nil, errors.New("no sysfs") }

	_, err := s.Scan(context.Background())
	require.ErrorContains(t, err, "no sysfs")
}
