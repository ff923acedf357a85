// internal/handler/event_bus.go
package handler

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"unilog-service/internal/model"
)

// EventBus fans device events out to subscribers. Publish never blocks; a
// full queue or a slow subscriber drops events.
type EventBus struct {
	subscribers map[string]chan *model.DeviceEvent
	events      chan *model.DeviceEvent
	mutex       sync.RWMutex
	logger      *zap.Logger
}

// NewEventBus creates a new event bus with a queue of size buffer
func NewEventBus(buffer int, logger *zap.Logger) *EventBus {
	if buffer <= 0 {
		buffer = 256
	}
	return &EventBus{
		subscribers: make(map[string]chan *model.DeviceEvent),
		events:      make(chan *model.DeviceEvent, buffer),
		logger:      logger.With(zap.String("component", "event_bus")),
	}
}

// Start distributes events until ctx is done
func (eb *EventBus) Start(ctx context.Context) {
	for {
		select {
		case event := <-eb.events:
			eb.distributeEvent(event)
		case <-ctx.Done():
			eb.closeSubscribers()
			return
		}
	}
}

// Publish implements service.EventSink
func (eb *EventBus) Publish(event *model.DeviceEvent) {
	select {
	case eb.events <- event:
	default:
		eb.logger.Warn("Event bus full, dropping event",
			zap.String("event_type", string(event.EventType)),
			zap.String("device_id", event.DeviceID.String()),
		)
	}
}

// Subscribe registers a named subscriber
func (eb *EventBus) Subscribe(name string, buffer int) <-chan *model.DeviceEvent {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	if old, ok := eb.subscribers[name]; ok {
		close(old)
	}
	subscriber := make(chan *model.DeviceEvent, buffer)
	eb.subscribers[name] = subscriber
	return subscriber
}

// Unsubscribe removes a subscriber and closes its channel
func (eb *EventBus) Unsubscribe(name string) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	if subscriber, ok := eb.subscribers[name]; ok {
		delete(eb.subscribers, name)
		close(subscriber)
	}
}

// distributeEvent distributes an event to subscribers
func (eb *EventBus) distributeEvent(event *model.DeviceEvent) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	for name, subscriber := range eb.subscribers {
		select {
		case subscriber <- event:
		default:
			eb.logger.Debug("Subscriber is slow, dropping event",
				zap.String("subscriber", name),
				zap.String("event_type", string(event.EventType)),
			)
		}
	}
}

func (eb *EventBus) closeSubscribers() {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()
	for name, subscriber := range eb.subscribers {
		delete(eb.subscribers, name)
		close(subscriber)
	}
}
