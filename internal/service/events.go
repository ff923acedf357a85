// internal/service/events.go
package service

import (
	"github.com/google/uuid"

	"unilog-service/internal/acquisition"
	"unilog-service/internal/model"
)

const eventSource = "unilog-service"

// EventSink receives device events. Publish is called from acquisition
// goroutines and must not block.
type EventSink interface {
	Publish(event *model.DeviceEvent)
}

// MultiSink fans events out to every sink
type MultiSink []EventSink

// Publish implements EventSink
func (m MultiSink) Publish(event *model.DeviceEvent) {
	for _, sink := range m {
		if sink != nil {
			sink.Publish(event)
		}
	}
}

type discardSink struct{}

func (discardSink) Publish(*model.DeviceEvent) {}

// deviceEvent translates a loop event of device id into a device event. It
// returns nil for events that are not published.
func deviceEvent(id uuid.UUID, e acquisition.Event) *model.DeviceEvent {
	var event *model.DeviceEvent
	switch e.Type {
	case acquisition.EventSample:
		event = model.NewDeviceEvent(model.EventSample, id, eventSource, "INFO")
		event.Sample = e.Sample
	case acquisition.EventFinalized, acquisition.EventAborted:
		eventType, severity := model.EventSessionFinalized, "INFO"
		if e.Type == acquisition.EventAborted {
			eventType, severity = model.EventSessionAborted, "ERROR"
		}
		event = model.NewDeviceEvent(eventType, id, eventSource, severity)
		event.Data = model.JSONObject{}
		if s := e.Session; s != nil {
			event.Data["state"] = string(s.State)
			event.Data["points"] = s.PointCount
			event.Data["receive_errors"] = s.ReceiveErrors
		}
		if e.Message != "" {
			event.Data["reason"] = e.Message
		}
	case acquisition.EventConfigWarning:
		event = model.NewDeviceEvent(model.EventConfigWarning, id, eventSource, "WARNING")
		event.Data = model.JSONObject{"message": e.Message}
	case acquisition.EventStateChanged:
		event = model.NewDeviceEvent(model.EventStateChange, id, eventSource, "INFO")
		event.Data = model.JSONObject{"state": string(e.State)}
	default:
		return nil
	}

	if e.SessionID != "" {
		if sid, err := uuid.Parse(e.SessionID); err == nil {
			event.SessionID = &sid
		}
	}
	return event
}
