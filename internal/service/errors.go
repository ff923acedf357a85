// internal/service/errors.go
package service

import "errors"

var (
	// ErrPortBusy is returned when another task owns the device's port
	ErrPortBusy = errors.New("port is busy")
	// ErrUnsupported is returned when the device generation lacks a capability
	ErrUnsupported = errors.New("operation not supported by this logger generation")
	// ErrNotRunning is returned when no live session runs for a device
	ErrNotRunning = errors.New("no live session running")
	// ErrInvalidRequest wraps request validation failures
	ErrInvalidRequest = errors.New("invalid request")
)
