// internal/model/device.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Generation identifies the logger hardware family
type Generation string

const (
	GenerationUniLog  Generation = "unilog"
	GenerationUniLog2 Generation = "unilog2"
)

// Valid reports whether g names a supported generation
func (g Generation) Valid() bool {
	return g == GenerationUniLog || g == GenerationUniLog2
}

// ParseGeneration accepts the canonical names
func ParseGeneration(s string) (Generation, error) {
	g := Generation(s)
	if !g.Valid() {
		return "", fmt.Errorf("unsupported generation: %q", s)
	}
	return g, nil
}

// DeviceStatus represents the current status of a device
type DeviceStatus string

const (
	DeviceStatusOnline     DeviceStatus = "ONLINE"
	DeviceStatusOffline    DeviceStatus = "OFFLINE"
	DeviceStatusError      DeviceStatus = "ERROR"
	DeviceStatusConnecting DeviceStatus = "CONNECTING"
	DeviceStatusStreaming  DeviceStatus = "STREAMING"
)

// ConnectionType represents how the device is connected
type ConnectionType string

const (
	ConnectionTypeSerial ConnectionType = "SERIAL"
	ConnectionTypeTCP    ConnectionType = "TCP"
)

// JSONObject type for PostgreSQL JSONB objects
type JSONObject map[string]interface{}

func (j *JSONObject) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

func (j JSONObject) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Device represents a registered data logger
type Device struct {
	ID               uuid.UUID      `json:"id" db:"id"`
	DeviceID         string         `json:"device_id" db:"device_id"`
	Name             string         `json:"name" db:"name"`
	Generation       Generation     `json:"generation" db:"generation"`
	ConnectionType   ConnectionType `json:"connection_type" db:"connection_type"`
	ConnectionConfig JSONObject     `json:"connection_config" db:"connection_config"`
	FirmwareVersion  *string        `json:"firmware_version" db:"firmware_version"`
	SerialNumber     *int           `json:"serial_number" db:"serial_number"`
	Status           DeviceStatus   `json:"status" db:"status"`
	LastSeen         *time.Time     `json:"last_seen" db:"last_seen"`
	ErrorInfo        JSONObject     `json:"error_info" db:"error_info"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at" db:"updated_at"`
}

// IsOnline checks if device is currently reachable
func (d *Device) IsOnline() bool {
	return d.Status == DeviceStatusOnline || d.Status == DeviceStatusStreaming
}

// PortName returns the configured serial port or bridge host
func (d *Device) PortName() string {
	if port, ok := d.ConnectionConfig["port"].(string); ok && d.ConnectionType == ConnectionTypeSerial {
		return port
	}
	if host, ok := d.ConnectionConfig["host"].(string); ok {
		return fmt.Sprintf("%s:%v", host, d.ConnectionConfig["port"])
	}
	return ""
}

// ErrorInfo structure
type ErrorInfo struct {
	LastError  *string    `json:"last_error,omitempty"`
	ErrorCode  *string    `json:"error_code,omitempty"`
	ErrorTime  *time.Time `json:"error_time,omitempty"`
	ErrorCount int        `json:"error_count"`
}
