package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"unilog-service/internal/model"
	"unilog-service/internal/repository"
	"unilog-service/pkg/driver"
)

func TestLiveStartStopStoresSession(t *testing.T) {
	logger := newFakeLogger(model.GenerationUniLog)
	f := newFixture(t, map[model.Generation]driver.DeviceProtocol{model.GenerationUniLog: logger})
	device := f.register(t, "bench", model.GenerationUniLog)
	ctx := context.Background()

	status, err := f.live.StartLive(ctx, "bench", &StartLiveRequest{Label: "hover test"})
	require.NoError(t, err)
	require.Equal(t, "bench", status.DeviceID)
	require.Equal(t, []string{"bench"}, f.live.Running())

	holder, busy := f.locks.Holder(testPort)
	require.True(t, busy)
	require.Equal(t, "live acquisition", holder)

	f.events.waitSamples(t, 3)

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	session, err := f.live.StopLive(stopCtx, "bench")
	require.NoError(t, err)
	require.Equal(t, model.SessionStateFinalized, session.State)
	require.Equal(t, "hover test", session.Label)
	require.GreaterOrEqual(t, session.PointCount, 3)
	require.Equal(t, device.ID, *session.DeviceID)

	stored, total, err := f.store.Sessions().List(ctx, &repository.SessionFilter{DeviceID: &device.ID})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, session.ID, stored[0].ID)

	require.Empty(t, f.live.Running())
	_, busy = f.locks.Holder(testPort)
	require.False(t, busy)
	require.False(t, logger.transport.IsOpen())
	require.Equal(t, 1, f.events.count(model.EventSessionFinalized))

	got, err := f.devices.GetDevice(ctx, "bench")
	require.NoError(t, err)
	require.Equal(t, model.DeviceStatusOnline, got.Status)

	ops, err := f.operations.ListOperations(ctx, "bench", 10)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, model.OperationLiveSession, ops[0].OperationType)
	require.Equal(t, model.OperationStatusSuccess, ops[0].Status)
}

func TestStartLiveRefusesBusyPort(t *testing.T) {
	logger := newFakeLogger(model.GenerationUniLog)
	f := newFixture(t, map[model.Generation]driver.DeviceProtocol{model.GenerationUniLog: logger})
	f.register(t, "bench", model.GenerationUniLog)

	release, err := f.locks.Acquire(testPort, "download")
	require.NoError(t, err)
	defer release()

	_, err = f.live.StartLive(context.Background(), "bench", nil)
	require.ErrorIs(t, err, ErrPortBusy)
	require.Empty(t, f.live.Running())
}

func TestSecondLiveStartOnSamePortFails(t *testing.T) {
	logger := newFakeLogger(model.GenerationUniLog)
	f := newFixture(t, map[model.Generation]driver.DeviceProtocol{model.GenerationUniLog: logger})
	f.register(t, "bench", model.GenerationUniLog)
	ctx := context.Background()

	_, err := f.live.StartLive(ctx, "bench", nil)
	require.NoError(t, err)
	_, err = f.live.StartLive(ctx, "bench", nil)
	require.ErrorIs(t, err, ErrPortBusy)

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err = f.live.StopLive(stopCtx, "bench")
	require.NoError(t, err)
}

func TestStopLiveWithoutLoop(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t, "bench", model.GenerationUniLog)

	_, err := f.live.StopLive(context.Background(), "bench")
	require.ErrorIs(t, err, ErrNotRunning)

	_, err = f.live.LiveStatus(context.Background(), "bench")
	require.ErrorIs(t, err, ErrNotRunning)

	_, err = f.live.StopLive(context.Background(), "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestShutdownFinalizesRunningLoops(t *testing.T) {
	logger := newFakeLogger(model.GenerationUniLog)
	f := newFixture(t, map[model.Generation]driver.DeviceProtocol{model.GenerationUniLog: logger})
	device := f.register(t, "bench", model.GenerationUniLog)
	ctx := context.Background()

	_, err := f.live.StartLive(ctx, "bench", nil)
	require.NoError(t, err)
	f.events.waitSamples(t, 2)

	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, f.live.Shutdown(shutdownCtx))

	_, total, err := f.store.Sessions().List(ctx, &repository.SessionFilter{DeviceID: &device.ID})
	require.NoError(t, err)
	require.Equal(t, 1, total)
}

func TestCalculationParams(t *testing.T) {
	p := CalculationParams(nil)
	require.Equal(t, 4, p.Cells)

	p = CalculationParams(&testConfig().Calculation)
	require.Equal(t, 4, p.Cells)
}
