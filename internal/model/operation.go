// internal/model/operation.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// OperationType represents a one-shot device command
type OperationType string

const (
	OperationReadConfig           OperationType = "READ_CONFIG"
	OperationWriteConfig          OperationType = "WRITE_CONFIG"
	OperationReadTelemetryConfig  OperationType = "READ_TELEMETRY_CONFIG"
	OperationWriteTelemetryConfig OperationType = "WRITE_TELEMETRY_CONFIG"
	OperationClearMemory          OperationType = "CLEAR_MEMORY"
	OperationStartLogging         OperationType = "START_LOGGING"
	OperationStopLogging          OperationType = "STOP_LOGGING"
	OperationDownload             OperationType = "DOWNLOAD"
	OperationLiveSession          OperationType = "LIVE_SESSION"
)

// OperationStatus represents the status of an operation
type OperationStatus string

const (
	OperationStatusProcessing OperationStatus = "PROCESSING"
	OperationStatusSuccess    OperationStatus = "SUCCESS"
	OperationStatusFailed     OperationStatus = "FAILED"
	OperationStatusCancelled  OperationStatus = "CANCELLED"
)

// DeviceOperation is the audit record of a command sent to a logger
type DeviceOperation struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	DeviceID      uuid.UUID       `json:"device_id" db:"device_id"`
	OperationType OperationType   `json:"operation_type" db:"operation_type"`
	Status        OperationStatus `json:"status" db:"status"`
	StartedAt     time.Time       `json:"started_at" db:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at" db:"completed_at"`
	DurationMs    *int            `json:"duration_ms" db:"duration_ms"`
	ErrorCode     *string         `json:"error_code" db:"error_code"`
	ErrorMessage  *string         `json:"error_message" db:"error_message"`
	Result        JSONObject      `json:"result" db:"result"`
}

// NewDeviceOperation starts an operation record
func NewDeviceOperation(deviceID uuid.UUID, opType OperationType) *DeviceOperation {
	return &DeviceOperation{
		ID:            uuid.New(),
		DeviceID:      deviceID,
		OperationType: opType,
		Status:        OperationStatusProcessing,
		StartedAt:     time.Now(),
	}
}

// Complete stamps the outcome
func (op *DeviceOperation) Complete(status OperationStatus, code, message string) {
	now := time.Now()
	ms := int(now.Sub(op.StartedAt).Milliseconds())
	op.Status = status
	op.CompletedAt = &now
	op.DurationMs = &ms
	if code != "" {
		op.ErrorCode = &code
	}
	if message != "" {
		op.ErrorMessage = &message
	}
}

// IsCompleted checks if operation is completed
func (op *DeviceOperation) IsCompleted() bool {
	return op.Status != OperationStatusProcessing
}
