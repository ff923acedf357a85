package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"unilog-service/internal/gatherer"
	"unilog-service/internal/model"
	"unilog-service/internal/repository"
	"unilog-service/internal/setup"
	"unilog-service/pkg/driver"
)

func batchBuffer() []byte {
	var buf []byte
	buf = gatherer.AppendBlock(buf, telegrams(5, 10))
	buf = gatherer.AppendBlock(buf, telegrams(2, 11))
	buf = gatherer.AppendBlock(buf, telegrams(6, 12))
	return buf
}

func TestImportBatchStoresSessions(t *testing.T) {
	f := newFixture(t, nil)
	device := f.register(t, "bench", model.GenerationUniLog)
	ctx := context.Background()

	result, err := f.operations.ImportBatch(ctx, model.GenerationUniLog, "bench", batchBuffer())
	require.NoError(t, err)
	require.Equal(t, 3, result.Blocks)
	require.Equal(t, 1, result.ShortBlocks)
	require.Len(t, result.Sessions, 2)
	require.Equal(t, 4, result.Sessions[0].Points)
	require.Equal(t, 5, result.Sessions[1].Points)

	stored, err := f.store.Sessions().GetByID(ctx, result.Sessions[0].ID, true)
	require.NoError(t, err)
	require.Equal(t, model.SessionSourceBatch, stored.Source)
	require.Equal(t, device.ID, *stored.DeviceID)
	require.Len(t, stored.Points, 4)
	require.Equal(t, int64(500), stored.Points[1].ElapsedMs)
}

func TestImportBatchWithoutDevice(t *testing.T) {
	f := newFixture(t, nil)

	result, err := f.operations.ImportBatch(context.Background(), model.GenerationUniLog, "", batchBuffer())
	require.NoError(t, err)
	require.Len(t, result.Sessions, 2)

	stored, err := f.store.Sessions().GetByID(context.Background(), result.Sessions[1].ID, false)
	require.NoError(t, err)
	require.Nil(t, stored.DeviceID)
}

func TestImportBatchRejections(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t, "bench2", model.GenerationUniLog2)
	ctx := context.Background()

	_, err := f.operations.ImportBatch(ctx, model.GenerationUniLog2, "", batchBuffer())
	require.ErrorIs(t, err, ErrUnsupported)

	_, err = f.operations.ImportBatch(ctx, "unilog9", "", batchBuffer())
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.operations.ImportBatch(ctx, model.GenerationUniLog, "bench2", batchBuffer())
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.operations.ImportBatch(ctx, model.GenerationUniLog, "missing", batchBuffer())
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDownloadStoresRecordSets(t *testing.T) {
	logger := &memoryLogger{
		fakeLogger: newFakeLogger(model.GenerationUniLog),
		dump:       &driver.MemoryDump{Buffer: batchBuffer(), Blocks: 3, Telegrams: 13, ReceiveErrors: 1},
	}
	f := newFixture(t, map[model.Generation]driver.DeviceProtocol{model.GenerationUniLog: logger})
	f.register(t, "bench", model.GenerationUniLog)
	ctx := context.Background()

	result, err := f.operations.Download(ctx, "bench")
	require.NoError(t, err)
	require.Len(t, result.Sessions, 2)
	require.Equal(t, 13, result.Telegrams)
	require.Equal(t, 1, result.ReceiveErrors)
	require.Equal(t, 1, f.events.count(model.EventOperationCompleted))

	_, busy := f.locks.Holder(testPort)
	require.False(t, busy)

	require.ErrorIs(t, f.operations.StopDownload(ctx, "bench"), ErrNotRunning)
}

func TestClearMemory(t *testing.T) {
	logger := &memoryLogger{fakeLogger: newFakeLogger(model.GenerationUniLog), cleared: true}
	f := newFixture(t, map[model.Generation]driver.DeviceProtocol{
		model.GenerationUniLog:  logger,
		model.GenerationUniLog2: newFakeLogger(model.GenerationUniLog2),
	})
	f.register(t, "bench", model.GenerationUniLog)
	ctx := context.Background()

	cleared, err := f.operations.ClearMemory(ctx, "bench")
	require.NoError(t, err)
	require.True(t, cleared)

	ops, err := f.operations.ListOperations(ctx, "bench", 10)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, model.OperationStatusSuccess, ops[0].Status)
	require.Equal(t, true, ops[0].Result["cleared"])

	_, err = f.devices.UpdateConnection(ctx, "bench", &UpdateConnectionRequest{
		ConnectionConfig: map[string]interface{}{"port": "/dev/ttyUSB1"},
	})
	require.NoError(t, err)
	f.register(t, "bench2", model.GenerationUniLog2)

	_, err = f.operations.ClearMemory(ctx, "bench2")
	require.ErrorIs(t, err, ErrUnsupported)

	ops, err = f.operations.ListOperations(ctx, "bench2", 10)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, model.OperationStatusFailed, ops[0].Status)
	require.Equal(t, "unsupported", *ops[0].ErrorCode)
	require.Equal(t, 1, f.events.count(model.EventOperationFailed))
}

func TestLoggingCommands(t *testing.T) {
	logger := newFakeLogger(model.GenerationUniLog2)
	f := newFixture(t, map[model.Generation]driver.DeviceProtocol{model.GenerationUniLog2: logger})
	f.register(t, "bench2", model.GenerationUniLog2)
	ctx := context.Background()

	require.NoError(t, f.operations.StartLogging(ctx, "bench2"))
	require.True(t, logger.logging)
	require.NoError(t, f.operations.StopLogging(ctx, "bench2"))
	require.False(t, logger.logging)

	_, err := f.operations.ReadConfig(ctx, "bench2")
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestConfigFiles(t *testing.T) {
	f := newFixture(t, nil)

	built, err := f.operations.BuildConfigFile("field.bin", setup.Gen2Setup.Name, map[string]decimal.Decimal{})
	require.NoError(t, err)

	names, err := f.operations.ConfigFiles()
	require.NoError(t, err)
	require.Contains(t, names, "field.bin")

	loaded, err := f.operations.LoadConfigFile("field.bin", setup.Gen2Setup.Name)
	require.NoError(t, err)
	require.True(t, built.Equal(loaded))

	raw, err := loaded.Encode()
	require.NoError(t, err)
	decoded, err := f.operations.DecodeConfig(raw, setup.Gen2Setup.Name)
	require.NoError(t, err)
	require.True(t, built.Equal(decoded))

	_, err = f.operations.DecodeConfig(raw, "unknown")
	require.ErrorIs(t, err, ErrInvalidRequest)
	_, err = f.operations.BuildConfigFile("x.bin", "unknown", nil)
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestWriteConfigRejectsReadOnlyFields(t *testing.T) {
	logger := &configLogger{fakeLogger: newFakeLogger(model.GenerationUniLog), block: setup.Gen1Runtime.New()}
	f := newFixture(t, map[model.Generation]driver.DeviceProtocol{model.GenerationUniLog: logger})
	f.register(t, "bench", model.GenerationUniLog)
	ctx := context.Background()

	for _, field := range []string{setup.FieldFirmware, setup.FieldSerialNumber, setup.FieldMemoryUsed, setup.FieldMemoryDeleted} {
		_, err := f.operations.WriteConfig(ctx, "bench", map[string]decimal.Decimal{field: decimal.NewFromInt(1)})
		require.ErrorIs(t, err, ErrInvalidRequest, field)
	}
	require.Zero(t, logger.writes)

	block, err := f.operations.WriteConfig(ctx, "bench", map[string]decimal.Decimal{setup.FieldTimeInterval: decimal.NewFromInt(4)})
	require.NoError(t, err)
	require.Equal(t, 1, logger.writes)
	require.Equal(t, 4, block.Int(setup.FieldTimeInterval))
}

func TestOperationOutcomeIsLoggedPerDevice(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := newFakeLogger(model.GenerationUniLog2)
	f := newFixtureWithLogger(t, map[model.Generation]driver.DeviceProtocol{model.GenerationUniLog2: logger}, zap.New(core))
	f.register(t, "bench2", model.GenerationUniLog2)

	require.NoError(t, f.operations.StartLogging(context.Background(), "bench2"))

	entries := logs.FilterMessage("Device operation completed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "bench2", fields["device_id"])
	require.Equal(t, string(model.GenerationUniLog2), fields["generation"])
	require.Equal(t, testPort, fields["port"])
	require.Equal(t, string(model.OperationStartLogging), fields["operation_type"])
	require.Equal(t, true, fields["success"])
}
