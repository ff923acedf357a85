package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0:8086", cfg.GetServerAddr())
	require.Equal(t, 115200, cfg.Serial.BaudRate)
	require.Equal(t, "none", cfg.Serial.Parity)
	require.Equal(t, 4, cfg.Calculation.Cells)
	require.Equal(t, 4*time.Second, cfg.Calculation.RegressionInterval)
	require.Equal(t, 3, cfg.Acquisition.MaxTimeouts)
	require.Zero(t, cfg.Acquisition.PollInterval)
	require.False(t, cfg.UsePostgres())
	require.False(t, cfg.MQTT.Enabled)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("UNILOG_SERIAL_BAUD_RATE", "9600")
	t.Setenv("UNILOG_STORAGE_DRIVER", "postgres")
	t.Setenv("UNILOG_ACQUISITION_POLL_INTERVAL", "500ms")

	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)
	require.Equal(t, 9600, cfg.Serial.BaudRate)
	require.True(t, cfg.UsePostgres())
	require.Equal(t, 500*time.Millisecond, cfg.Acquisition.PollInterval)
	require.Contains(t, cfg.GetDatabaseDSN(), "dbname=unilog")
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"storage driver", "UNILOG_STORAGE_DRIVER", "sqlite"},
		{"baud rate", "UNILOG_SERIAL_BAUD_RATE", "4800"},
		{"parity", "UNILOG_SERIAL_PARITY", "weird"},
		{"log level", "UNILOG_LOGGING_LEVEL", "trace"},
		{"environment", "UNILOG_APP_ENVIRONMENT", "qa"},
		{"cells", "UNILOG_CALCULATION_CELLS", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := LoadFrom(viper.New())
			require.Error(t, err)
		})
	}
}
