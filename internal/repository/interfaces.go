// internal/repository/interfaces.go
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"unilog-service/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique key is already taken
	ErrDuplicate = errors.New("record already exists")
	// ErrNotFinalized is returned when an open or aborted session is saved
	ErrNotFinalized = errors.New("only finalized sessions can be stored")
)

// DeviceRepository defines device data access operations
type DeviceRepository interface {
	Create(ctx context.Context, device *model.Device) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Device, error)
	GetByDeviceID(ctx context.Context, deviceID string) (*model.Device, error)
	Update(ctx context.Context, device *model.Device) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.DeviceStatus) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter *DeviceFilter) ([]*model.Device, int, error)
}

// SessionRepository stores finalized sessions with their points
type SessionRepository interface {
	Save(ctx context.Context, session *model.Session) error
	// GetByID loads a session, with its points when withPoints is set
	GetByID(ctx context.Context, id uuid.UUID, withPoints bool) (*model.Session, error)
	List(ctx context.Context, filter *SessionFilter) ([]*model.Session, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// OperationRepository defines operation data access operations
type OperationRepository interface {
	Create(ctx context.Context, operation *model.DeviceOperation) error
	Update(ctx context.Context, operation *model.DeviceOperation) error
	ListByDevice(ctx context.Context, deviceID uuid.UUID, limit int) ([]*model.DeviceOperation, error)
	DeleteOldOperations(ctx context.Context, olderThan time.Time) (int64, error)
}

// DeviceFilter represents device listing filters
type DeviceFilter struct {
	Generation *model.Generation   `json:"generation,omitempty"`
	Status     *model.DeviceStatus `json:"status,omitempty"`
	SearchTerm *string             `json:"search_term,omitempty"`
	Page       int                 `json:"page"`
	PerPage    int                 `json:"per_page"`
}

// SessionFilter represents session listing filters
type SessionFilter struct {
	DeviceID  *uuid.UUID           `json:"device_id,omitempty"`
	Source    *model.SessionSource `json:"source,omitempty"`
	StartDate *time.Time           `json:"start_date,omitempty"`
	EndDate   *time.Time           `json:"end_date,omitempty"`
	Page      int                  `json:"page"`
	PerPage   int                  `json:"per_page"`
}

// normalizePage clamps paging arguments
func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage
}
