package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"unilog-service/internal/calculation"
	"unilog-service/internal/model"
	"unilog-service/internal/repository"
)

func TestSessionServiceListGetDelete(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t, "bench", model.GenerationUniLog)
	ctx := context.Background()
	sessions := NewSessionService(f.store.Sessions(), f.store.Devices(), calculation.DefaultParams(), zap.NewNop())

	imported, err := f.operations.ImportBatch(ctx, model.GenerationUniLog, "bench", batchBuffer())
	require.NoError(t, err)
	_, err = f.operations.ImportBatch(ctx, model.GenerationUniLog, "", batchBuffer())
	require.NoError(t, err)

	all, page, err := sessions.ListSessions(ctx, "", nil)
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.Equal(t, 4, page.Total)

	owned, _, err := sessions.ListSessions(ctx, "bench", nil)
	require.NoError(t, err)
	require.Len(t, owned, 2)

	id := imported.Sessions[0].ID
	session, err := sessions.GetSession(ctx, id)
	require.NoError(t, err)
	require.Len(t, session.Points, 4)

	recalculated, err := sessions.Recalculate(ctx, id, &RecalculateRequest{Motors: 2})
	require.NoError(t, err)
	power := recalculated.Channels.Index("Power")
	require.True(t, recalculated.Displayable[power])
	require.Equal(t, int32(20000), recalculated.Points[0].Values[power])

	require.NoError(t, sessions.DeleteSession(ctx, id))
	_, err = sessions.GetSession(ctx, id)
	require.ErrorIs(t, err, repository.ErrNotFound)
}
