package driver

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"unilog-service/internal/model"
	"unilog-service/internal/protocol/protocoltest"
	"unilog-service/pkg/driver"
)

func TestRegistryCreatesDriverPerGeneration(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	RegisterDefaultDrivers(r, zap.NewNop())

	require.Equal(t, []model.Generation{model.GenerationUniLog, model.GenerationUniLog2}, r.ListDrivers())
	require.True(t, r.IsSupported(model.GenerationUniLog2))
	require.False(t, r.IsSupported("unilog3"))

	for _, g := range r.ListDrivers() {
		d, err := r.CreateDriver(&model.Device{DeviceID: "dev", Generation: g}, protocoltest.New("COM3"), driver.Options{})
		require.NoError(t, err)
		require.Equal(t, g, d.Generation())
		require.Equal(t, driver.StateDisconnected, d.State())
	}

	gen1, err := r.CreateDriver(&model.Device{Generation: model.GenerationUniLog}, protocoltest.New("COM3"), driver.Options{})
	require.NoError(t, err)
	_, ok := gen1.(driver.MemoryReader)
	require.True(t, ok)

	gen2, err := r.CreateDriver(&model.Device{Generation: model.GenerationUniLog2}, protocoltest.New("COM4"), driver.Options{})
	require.NoError(t, err)
	_, ok = gen2.(driver.Configurer)
	require.False(t, ok)

	_, err = r.CreateDriver(&model.Device{Generation: "unilog3"}, protocoltest.New("COM5"), driver.Options{})
	require.Error(t, err)
}

func TestRegistryDecoders(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	RegisterDefaultDrivers(r, zap.NewNop())

	d, err := r.Decoder(model.GenerationUniLog)
	require.NoError(t, err)
	require.Equal(t, 24, d.TelegramLength())
	require.Equal(t, 2, d.SkipTelegrams())

	_, err = r.Decoder(model.GenerationUniLog2)
	require.Error(t, err)
}
