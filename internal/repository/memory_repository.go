// internal/repository/memory_repository.go
package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"unilog-service/internal/model"
)

// MemoryStore keeps devices, sessions and operations in process memory. It
// backs all three repositories when no database is configured.
type MemoryStore struct {
	mutex      sync.RWMutex
	devices    map[uuid.UUID]*model.Device
	sessions   map[uuid.UUID]*model.Session
	operations map[uuid.UUID]*model.DeviceOperation
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices:    make(map[uuid.UUID]*model.Device),
		sessions:   make(map[uuid.UUID]*model.Session),
		operations: make(map[uuid.UUID]*model.DeviceOperation),
	}
}

// Devices returns the device repository view
func (m *MemoryStore) Devices() DeviceRepository { return memoryDevices{m} }

// Sessions returns the session repository view
func (m *MemoryStore) Sessions() SessionRepository { return memorySessions{m} }

// Operations returns the operation repository view
func (m *MemoryStore) Operations() OperationRepository { return memoryOperations{m} }

func paginate[T any](items []T, page, perPage int) []T {
	page, perPage = normalizePage(page, perPage)
	start := (page - 1) * perPage
	if start >= len(items) {
		return []T{}
	}
	end := min(start+perPage, len(items))
	return items[start:end]
}

type memoryDevices struct{ m *MemoryStore }

func (r memoryDevices) Create(ctx context.Context, device *model.Device) error {
	r.m.mutex.Lock()
	defer r.m.mutex.Unlock()
	for _, d := range r.m.devices {
		if d.DeviceID == device.DeviceID {
			return fmt.Errorf("device %s: %w", device.DeviceID, ErrDuplicate)
		}
	}
	now := time.Now()
	device.CreatedAt, device.UpdatedAt = now, now
	cp := *device
	r.m.devices[device.ID] = &cp
	return nil
}

func (r memoryDevices) GetByID(ctx context.Context, id uuid.UUID) (*model.Device, error) {
	r.m.mutex.RLock()
	defer r.m.mutex.RUnlock()
	d, ok := r.m.devices[id]
	if !ok {
		return nil, fmt.Errorf("device %s: %w", id, ErrNotFound)
	}
	cp := *d
	return &cp, nil
}

func (r memoryDevices) GetByDeviceID(ctx context.Context, deviceID string) (*model.Device, error) {
	r.m.mutex.RLock()
	defer r.m.mutex.RUnlock()
	for _, d := range r.m.devices {
		if d.DeviceID == deviceID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("device %s: %w", deviceID, ErrNotFound)
}

func (r memoryDevices) Update(ctx context.Context, device *model.Device) error {
	r.m.mutex.Lock()
	defer r.m.mutex.Unlock()
	if _, ok := r.m.devices[device.ID]; !ok {
		return fmt.Errorf("device %s: %w", device.ID, ErrNotFound)
	}
	device.UpdatedAt = time.Now()
	cp := *device
	r.m.devices[device.ID] = &cp
	return nil
}

func (r memoryDevices) UpdateStatus(ctx context.Context, id uuid.UUID, status model.DeviceStatus) error {
	r.m.mutex.Lock()
	defer r.m.mutex.Unlock()
	d, ok := r.m.devices[id]
	if !ok {
		return fmt.Errorf("device %s: %w", id, ErrNotFound)
	}
	now := time.Now()
	d.Status = status
	d.LastSeen = &now
	d.UpdatedAt = now
	return nil
}

func (r memoryDevices) Delete(ctx context.Context, id uuid.UUID) error {
	r.m.mutex.Lock()
	defer r.m.mutex.Unlock()
	if _, ok := r.m.devices[id]; !ok {
		return fmt.Errorf("device %s: %w", id, ErrNotFound)
	}
	delete(r.m.devices, id)
	for _, s := range r.m.sessions {
		if s.DeviceID != nil && *s.DeviceID == id {
			s.DeviceID = nil
		}
	}
	for opID, op := range r.m.operations {
		if op.DeviceID == id {
			delete(r.m.operations, opID)
		}
	}
	return nil
}

func (r memoryDevices) List(ctx context.Context, filter *DeviceFilter) ([]*model.Device, int, error) {
	if filter == nil {
		filter = &DeviceFilter{}
	}
	r.m.mutex.RLock()
	devices := []*model.Device{}
	for _, d := range r.m.devices {
		if filter.Generation != nil && d.Generation != *filter.Generation {
			continue
		}
		if filter.Status != nil && d.Status != *filter.Status {
			continue
		}
		if filter.SearchTerm != nil {
			term := strings.ToLower(*filter.SearchTerm)
			if !strings.Contains(strings.ToLower(d.DeviceID), term) && !strings.Contains(strings.ToLower(d.Name), term) {
				continue
			}
		}
		cp := *d
		devices = append(devices, &cp)
	}
	r.m.mutex.RUnlock()

	sort.Slice(devices, func(i, j int) bool { return devices[i].CreatedAt.After(devices[j].CreatedAt) })
	return paginate(devices, filter.Page, filter.PerPage), len(devices), nil
}

type memorySessions struct{ m *MemoryStore }

func (r memorySessions) Save(ctx context.Context, session *model.Session) error {
	if session.State != model.SessionStateFinalized {
		return fmt.Errorf("session %s is %s: %w", session.ID, session.State, ErrNotFinalized)
	}
	r.m.mutex.Lock()
	defer r.m.mutex.Unlock()
	if _, ok := r.m.sessions[session.ID]; ok {
		return fmt.Errorf("session %s: %w", session.ID, ErrDuplicate)
	}
	cp := *session
	r.m.sessions[session.ID] = &cp
	return nil
}

func (r memorySessions) GetByID(ctx context.Context, id uuid.UUID, withPoints bool) (*model.Session, error) {
	r.m.mutex.RLock()
	defer r.m.mutex.RUnlock()
	s, ok := r.m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	cp := *s
	if !withPoints {
		cp.Points = nil
	}
	return &cp, nil
}

func (r memorySessions) List(ctx context.Context, filter *SessionFilter) ([]*model.Session, int, error) {
	if filter == nil {
		filter = &SessionFilter{}
	}
	r.m.mutex.RLock()
	sessions := []*model.Session{}
	for _, s := range r.m.sessions {
		if filter.DeviceID != nil && (s.DeviceID == nil || *s.DeviceID != *filter.DeviceID) {
			continue
		}
		if filter.Source != nil && s.Source != *filter.Source {
			continue
		}
		if filter.StartDate != nil && s.StartedAt.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && s.StartedAt.After(*filter.EndDate) {
			continue
		}
		cp := *s
		cp.Points = nil
		sessions = append(sessions, &cp)
	}
	r.m.mutex.RUnlock()

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].StartedAt.After(sessions[j].StartedAt) })
	return paginate(sessions, filter.Page, filter.PerPage), len(sessions), nil
}

func (r memorySessions) Delete(ctx context.Context, id uuid.UUID) error {
	r.m.mutex.Lock()
	defer r.m.mutex.Unlock()
	if _, ok := r.m.sessions[id]; !ok {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	delete(r.m.sessions, id)
	return nil
}

type memoryOperations struct{ m *MemoryStore }

func (r memoryOperations) Create(ctx context.Context, operation *model.DeviceOperation) error {
	r.m.mutex.Lock()
	defer r.m.mutex.Unlock()
	cp := *operation
	r.m.operations[operation.ID] = &cp
	return nil
}

func (r memoryOperations) Update(ctx context.Context, operation *model.DeviceOperation) error {
	r.m.mutex.Lock()
	defer r.m.mutex.Unlock()
	if _, ok := r.m.operations[operation.ID]; !ok {
		return fmt.Errorf("operation %s: %w", operation.ID, ErrNotFound)
	}
	cp := *operation
	r.m.operations[operation.ID] = &cp
	return nil
}

func (r memoryOperations) ListByDevice(ctx context.Context, deviceID uuid.UUID, limit int) ([]*model.DeviceOperation, error) {
	if limit <= 0 {
		limit = 50
	}
	r.m.mutex.RLock()
	operations := []*model.DeviceOperation{}
	for _, op := range r.m.operations {
		if op.DeviceID == deviceID {
			cp := *op
			operations = append(operations, &cp)
		}
	}
	r.m.mutex.RUnlock()

	sort.Slice(operations, func(i, j int) bool { return operations[i].StartedAt.After(operations[j].StartedAt) })
	if len(operations) > limit {
		operations = operations[:limit]
	}
	return operations, nil
}

func (r memoryOperations) DeleteOldOperations(ctx context.Context, olderThan time.Time) (int64, error) {
	r.m.mutex.Lock()
	defer r.m.mutex.Unlock()
	var deleted int64
	for id, op := range r.m.operations {
		if op.StartedAt.Before(olderThan) {
			delete(r.m.operations, id)
			deleted++
		}
	}
	return deleted, nil
}
