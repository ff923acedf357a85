package handler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"unilog-service/internal/model"
)

func TestEventBusDelivers(t *testing.T) {
	bus := NewEventBus(4, zap.NewNop())
	first := bus.Subscribe("first", 4)
	second := bus.Subscribe("second", 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Start(ctx)

	event := model.NewDeviceEvent(model.EventSample, uuid.New(), "test", "INFO")
	bus.Publish(event)

	for _, ch := range []<-chan *model.DeviceEvent{first, second} {
		select {
		case got := <-ch:
			require.Equal(t, event, got)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestEventBusDropsWhenFull(t *testing.T) {
	bus := NewEventBus(2, zap.NewNop())
	for i := 0; i < 5; i++ {
		bus.Publish(model.NewDeviceEvent(model.EventSample, uuid.New(), "test", "INFO"))
	}
	require.Len(t, bus.events, 2)
}

func TestEventBusClosesSubscribers(t *testing.T) {
	bus := NewEventBus(1, zap.NewNop())
	ch := bus.Subscribe("ws", 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		bus.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("bus did not stop")
	}
	_, open := <-ch
	require.False(t, open)
}

func TestEventBusResubscribeClosesOld(t *testing.T) {
	bus := NewEventBus(1, zap.NewNop())
	old := bus.Subscribe("ws", 1)
	_ = bus.Subscribe("ws", 1)

	_, open := <-old
	require.False(t, open)

	bus.Unsubscribe("ws")
	bus.Unsubscribe("ws")
}

func TestMessageType(t *testing.T) {
	require.Equal(t, "sample", MessageType(model.EventSample))
}
