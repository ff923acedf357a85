package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"unilog-service/internal/model"
)

func newDevice(id string) *model.Device {
	return &model.Device{
		ID:             uuid.New(),
		DeviceID:       id,
		Generation:     model.GenerationUniLog,
		ConnectionType: model.ConnectionTypeSerial,
		Status:         model.DeviceStatusOffline,
	}
}

func finalized(deviceID uuid.UUID) *model.Session {
	s := model.NewSession(model.GenerationUniLog, model.SessionSourceLive, model.ChannelConfig{Channels: []model.Channel{
		{Name: "Voltage", Kind: model.ChannelMeasured, Active: true},
	}})
	s.DeviceID = &deviceID
	_ = s.Append(&model.SamplePoint{Values: []int32{12000}})
	s.Finalize()
	return s
}

func TestMemoryDevices(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore().Devices()

	d := newDevice("logger-1")
	require.NoError(t, repo.Create(ctx, d))
	require.ErrorIs(t, repo.Create(ctx, newDevice("logger-1")), ErrDuplicate)

	got, err := repo.GetByDeviceID(ctx, "logger-1")
	require.NoError(t, err)
	require.Equal(t, d.ID, got.ID)

	require.NoError(t, repo.UpdateStatus(ctx, d.ID, model.DeviceStatusOnline))
	got, err = repo.GetByID(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, model.DeviceStatusOnline, got.Status)
	require.NotNil(t, got.LastSeen)

	gen := model.GenerationUniLog2
	list, total, err := repo.List(ctx, &DeviceFilter{Generation: &gen})
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, list)

	require.NoError(t, repo.Delete(ctx, d.ID))
	_, err = repo.GetByID(ctx, d.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemorySessionsOnlyFinalized(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore().Sessions()

	open := model.NewSession(model.GenerationUniLog2, model.SessionSourceLive, model.ChannelConfig{})
	require.ErrorIs(t, repo.Save(ctx, open), ErrNotFinalized)
	open.Abort()
	require.ErrorIs(t, repo.Save(ctx, open), ErrNotFinalized)

	s := finalized(uuid.New())
	require.NoError(t, repo.Save(ctx, s))
	require.ErrorIs(t, repo.Save(ctx, s), ErrDuplicate)

	got, err := repo.GetByID(ctx, s.ID, false)
	require.NoError(t, err)
	require.Nil(t, got.Points)
	require.Equal(t, 1, got.PointCount)

	got, err = repo.GetByID(ctx, s.ID, true)
	require.NoError(t, err)
	require.Len(t, got.Points, 1)
}

func TestMemorySessionList(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore().Sessions()
	device := uuid.New()

	for i := 0; i < 25; i++ {
		s := finalized(device)
		s.StartedAt = time.Now().Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.Save(ctx, s))
	}
	require.NoError(t, repo.Save(ctx, finalized(uuid.New())))

	page, total, err := repo.List(ctx, &SessionFilter{DeviceID: &device, Page: 2, PerPage: 20})
	require.NoError(t, err)
	require.Equal(t, 25, total)
	require.Len(t, page, 5)
	require.Nil(t, page[0].Points)
}

func TestMemoryDeviceDeleteCascades(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	d := newDevice("logger-2")
	require.NoError(t, store.Devices().Create(ctx, d))

	s := finalized(d.ID)
	require.NoError(t, store.Sessions().Save(ctx, s))
	op := model.NewDeviceOperation(d.ID, model.OperationReadConfig)
	require.NoError(t, store.Operations().Create(ctx, op))

	require.NoError(t, store.Devices().Delete(ctx, d.ID))

	got, err := store.Sessions().GetByID(ctx, s.ID, false)
	require.NoError(t, err)
	require.Nil(t, got.DeviceID)
	ops, err := store.Operations().ListByDevice(ctx, d.ID, 10)
	require.NoError(t, err)
	require.Empty(t, ops)
}
