// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventDeviceConnected    EventType = "DEVICE_CONNECTED"
	EventDeviceDisconnected EventType = "DEVICE_DISCONNECTED"
	EventDeviceError        EventType = "DEVICE_ERROR"
	EventStateChange        EventType = "STATE_CHANGE"
	EventSample             EventType = "SAMPLE"
	EventSessionStarted     EventType = "SESSION_STARTED"
	EventSessionFinalized   EventType = "SESSION_FINALIZED"
	EventSessionAborted     EventType = "SESSION_ABORTED"
	EventConfigWarning      EventType = "CONFIG_WARNING"
	EventOperationCompleted EventType = "OPERATION_COMPLETED"
	EventOperationFailed    EventType = "OPERATION_FAILED"
)

// DeviceEvent represents an event in the system
type DeviceEvent struct {
	ID        uuid.UUID    `json:"id"`
	EventType EventType    `json:"event_type"`
	DeviceID  uuid.UUID    `json:"device_id"`
	SessionID *uuid.UUID   `json:"session_id,omitempty"`
	Sample    *SamplePoint `json:"sample,omitempty"`
	Data      JSONObject   `json:"data,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
	Source    string       `json:"source"`
	Severity  string       `json:"severity"` // INFO, WARNING, ERROR
}

// NewDeviceEvent stamps a new event
func NewDeviceEvent(eventType EventType, deviceID uuid.UUID, source, severity string) *DeviceEvent {
	return &DeviceEvent{
		ID:        uuid.New(),
		EventType: eventType,
		DeviceID:  deviceID,
		Timestamp: time.Now(),
		Source:    source,
		Severity:  severity,
	}
}
