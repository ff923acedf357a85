// internal/service/session_service.go
package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"unilog-service/internal/calculation"
	"unilog-service/internal/model"
	"unilog-service/internal/repository"
	"unilog-service/internal/utils"
)

// SessionService reads and removes stored sessions
type SessionService struct {
	sessionRepo repository.SessionRepository
	deviceRepo  repository.DeviceRepository
	params      calculation.Params
	logger      *utils.ServiceLogger
}

// NewSessionService creates a new session service
func NewSessionService(
	sessionRepo repository.SessionRepository,
	deviceRepo repository.DeviceRepository,
	params calculation.Params,
	logger *zap.Logger,
) *SessionService {
	return &SessionService{
		sessionRepo: sessionRepo,
		deviceRepo:  deviceRepo,
		params:      params,
		logger:      utils.NewServiceLogger(logger, "session-service"),
	}
}

// ListSessions lists sessions without their points. deviceID, when set,
// restricts the list to one logger.
func (ss *SessionService) ListSessions(ctx context.Context, deviceID string, filter *repository.SessionFilter) ([]*model.Session, *PaginationResult, error) {
	if filter == nil {
		filter = &repository.SessionFilter{}
	}
	if deviceID != "" {
		device, err := ss.deviceRepo.GetByDeviceID(ctx, deviceID)
		if err != nil {
			return nil, nil, fmt.Errorf("device not found: %w", err)
		}
		filter.DeviceID = &device.ID
	}
	sessions, total, err := ss.sessionRepo.List(ctx, filter)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, NewPagination(total, filter.Page, filter.PerPage), nil
}

// GetSession loads a session with its points
func (ss *SessionService) GetSession(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	session, err := ss.sessionRepo.GetByID(ctx, id, true)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}
	return session, nil
}

// Recalculate runs the derived pass again on a stored session with params
// overriding the service defaults. The stored session is not changed.
func (ss *SessionService) Recalculate(ctx context.Context, id uuid.UUID, req *RecalculateRequest) (*model.Session, error) {
	session, err := ss.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	params := ss.params
	if req != nil {
		if req.Cells > 0 {
			params.Cells = req.Cells
		}
		if req.PropN100W > 0 {
			params.PropN100W = req.PropN100W
		}
		if req.RPMFactor > 0 {
			params.RPMFactor = req.RPMFactor
		}
		if req.Motors > 0 {
			params.Motors = req.Motors
		}
	}
	for i, ch := range session.Channels.Channels {
		if ch.IsDerived() && i < len(session.Displayable) {
			session.Displayable[i] = false
		}
	}
	if err := calculation.Pass(session, params); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return session, nil
}

// DeleteSession removes a session and its points
func (ss *SessionService) DeleteSession(ctx context.Context, id uuid.UUID) error {
	if err := ss.sessionRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	ss.logger.Info("Session deleted", zap.String("session_id", id.String()))
	return nil
}

// RecalculateRequest overrides calculation parameters
type RecalculateRequest struct {
	Cells     int     `json:"cells"`
	PropN100W int     `json:"prop_n100w"`
	RPMFactor float64 `json:"rpm_factor"`
	Motors    float64 `json:"motors"`
}
