// internal/service/acquisition_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"unilog-service/internal/acquisition"
	"unilog-service/internal/calculation"
	"unilog-service/internal/config"
	"unilog-service/internal/model"
	"unilog-service/internal/protocol"
	"unilog-service/internal/repository"
	"unilog-service/internal/utils"
)

const saveTimeout = 30 * time.Second

// AcquisitionService runs one live acquisition loop per logger and stores
// the finalized sessions
type AcquisitionService struct {
	deviceRepo    repository.DeviceRepository
	sessionRepo   repository.SessionRepository
	operationRepo repository.OperationRepository
	drivers       DriverProvider
	locks         *PortLocks
	sink          EventSink
	cfg           config.AcquisitionConfig
	params        calculation.Params
	logger        *utils.ServiceLogger

	// base outlives the requests that start loops
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mutex sync.Mutex
	live  map[uuid.UUID]*liveTask
}

type liveTask struct {
	device    *model.Device
	loop      *acquisition.Loop
	operation *model.DeviceOperation
	label     string
	// done is closed once the session has been stored
	done    chan struct{}
	session *model.Session
	err     error
}

// NewAcquisitionService creates the live acquisition service
func NewAcquisitionService(
	deviceRepo repository.DeviceRepository,
	sessionRepo repository.SessionRepository,
	operationRepo repository.OperationRepository,
	drivers DriverProvider,
	locks *PortLocks,
	sink EventSink,
	cfg *config.Config,
	logger *zap.Logger,
) *AcquisitionService {
	if sink == nil {
		sink = discardSink{}
	}
	base, cancel := context.WithCancel(context.Background())
	return &AcquisitionService{
		deviceRepo:    deviceRepo,
		sessionRepo:   sessionRepo,
		operationRepo: operationRepo,
		drivers:       drivers,
		locks:         locks,
		sink:          sink,
		cfg:           cfg.Acquisition,
		params:        CalculationParams(&cfg.Calculation),
		logger:        utils.NewServiceLogger(logger, "acquisition-service"),
		base:          base,
		cancel:        cancel,
		live:          make(map[uuid.UUID]*liveTask),
	}
}

// CalculationParams maps the calculation settings onto the derived pass
func CalculationParams(cfg *config.CalculationConfig) calculation.Params {
	p := calculation.DefaultParams()
	if cfg == nil {
		return p
	}
	if cfg.Cells > 0 {
		p.Cells = cfg.Cells
	}
	if cfg.PropN100W > 0 {
		p.PropN100W = cfg.PropN100W
	}
	if cfg.RPMFactor > 0 {
		p.RPMFactor = cfg.RPMFactor
	}
	if cfg.Motors > 0 {
		p.Motors = float64(cfg.Motors)
	}
	if cfg.RegressionInterval > 0 {
		p.RegressionInterval = cfg.RegressionInterval
	}
	return p
}

// StartLive opens the logger and starts polling it in the background
func (s *AcquisitionService) StartLive(ctx context.Context, deviceID string, req *StartLiveRequest) (*LiveStatus, error) {
	if req == nil {
		req = &StartLiveRequest{}
	}
	device, err := s.deviceRepo.GetByDeviceID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("device not found: %w", err)
	}

	release, err := s.locks.Acquire(device.PortName(), "live acquisition")
	if err != nil {
		return nil, err
	}

	proto, err := s.drivers.Driver(device)
	if err != nil {
		release()
		return nil, err
	}

	pollInterval := s.cfg.PollInterval
	if req.PollIntervalMs > 0 {
		pollInterval = time.Duration(req.PollIntervalMs) * time.Millisecond
	}

	task := &liveTask{
		device:    device,
		operation: model.NewDeviceOperation(device.ID, model.OperationLiveSession),
		label:     req.Label,
		done:      make(chan struct{}),
	}
	sink := func(e acquisition.Event) {
		if event := deviceEvent(device.ID, e); event != nil {
			s.sink.Publish(event)
		}
	}
	task.loop = acquisition.New(proto, sink, acquisition.Config{
		DeviceID:     device.DeviceID,
		Params:       s.params,
		PollInterval: pollInterval,
		MaxTimeouts:  s.cfg.MaxTimeouts,
		StopTimeout:  s.cfg.StopTimeout,
	}, s.logger.Logger)

	if err := s.operationRepo.Create(ctx, task.operation); err != nil {
		s.logger.Warn("Failed to record live operation", zap.Error(err))
	}

	if err := s.deviceRepo.UpdateStatus(ctx, device.ID, model.DeviceStatusStreaming); err != nil {
		s.logger.Warn("Failed to update device status", zap.Error(err))
	}

	s.mutex.Lock()
	s.live[device.ID] = task
	s.mutex.Unlock()

	if err := task.loop.Start(s.base); err != nil {
		s.mutex.Lock()
		delete(s.live, device.ID)
		s.mutex.Unlock()
		release()
		return nil, fmt.Errorf("failed to start acquisition: %w", err)
	}

	s.wg.Add(1)
	go s.watch(task, release)

	s.logger.Info("Live acquisition started",
		zap.String("device_id", device.DeviceID),
		zap.String("port", device.PortName()),
		zap.Duration("poll_interval", pollInterval),
	)
	return s.status(task), nil
}

// watch waits for the loop to end and stores its outcome
func (s *AcquisitionService) watch(task *liveTask, release func()) {
	defer s.wg.Done()
	defer close(task.done)

	session, err := task.loop.Wait()
	release()
	if err == nil && session == nil {
		err = errors.New("acquisition ended without a session")
	}

	s.mutex.Lock()
	if s.live[task.device.ID] == task {
		delete(s.live, task.device.ID)
	}
	s.mutex.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	device := task.device
	deviceLogger := utils.NewDeviceLogger(s.logger.Logger, device.DeviceID, string(device.Generation), device.PortName())
	op := task.operation

	if err != nil {
		task.err = err
		deviceLogger.LogSession(sessionID(session), string(model.SessionStateAborted), 0, 0, err)
		op.Complete(model.OperationStatusFailed, string(protocol.CodeOf(err)), err.Error())
		s.markError(ctx, device, err)
		s.completeOperation(ctx, op)
		return
	}

	session.DeviceID = &device.ID
	session.Label = task.label
	if saveErr := s.sessionRepo.Save(ctx, session); saveErr != nil {
		task.err = fmt.Errorf("failed to store session: %w", saveErr)
		deviceLogger.Error("Failed to store session", zap.Error(saveErr))
		op.Complete(model.OperationStatusFailed, "storage_error", saveErr.Error())
	} else {
		task.session = session
		op.Result = model.JSONObject{
			"session_id": session.ID.String(),
			"points":     session.PointCount,
		}
		op.Complete(model.OperationStatusSuccess, "", "")
	}
	deviceLogger.LogSession(session.ID.String(), string(session.State), session.PointCount, session.ReceiveErrors, nil)

	if err := s.deviceRepo.UpdateStatus(ctx, device.ID, model.DeviceStatusOnline); err != nil {
		deviceLogger.Warn("Failed to update device status", zap.Error(err))
	}
	s.completeOperation(ctx, op)
}

// StopLive stops the loop of a logger and returns the stored session
func (s *AcquisitionService) StopLive(ctx context.Context, deviceID string) (*model.Session, error) {
	task, err := s.task(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	task.loop.Stop()
	select {
	case <-task.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if task.err != nil {
		return nil, task.err
	}
	return task.session, nil
}

// LiveStatus reports the running loop of a logger
func (s *AcquisitionService) LiveStatus(ctx context.Context, deviceID string) (*LiveStatus, error) {
	task, err := s.task(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	return s.status(task), nil
}

// Running lists the device IDs with a live loop
func (s *AcquisitionService) Running() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	ids := make([]string, 0, len(s.live))
	for _, task := range s.live {
		ids = append(ids, task.device.DeviceID)
	}
	return ids
}

// Shutdown cancels every loop and waits until their sessions are stored
func (s *AcquisitionService) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("Live acquisitions stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to stop live acquisitions: %w", ctx.Err())
	}
}

func (s *AcquisitionService) task(ctx context.Context, deviceID string) (*liveTask, error) {
	device, err := s.deviceRepo.GetByDeviceID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("device not found: %w", err)
	}
	s.mutex.Lock()
	task, ok := s.live[device.ID]
	s.mutex.Unlock()
	if !ok {
		return nil, fmt.Errorf("device %s: %w", deviceID, ErrNotRunning)
	}
	return task, nil
}

func (s *AcquisitionService) status(task *liveTask) *LiveStatus {
	stats := task.loop.Stats()
	return &LiveStatus{
		DeviceID:       task.device.DeviceID,
		Generation:     task.device.Generation,
		State:          stats.State,
		SessionID:      stats.SessionID,
		Points:         stats.Points,
		Timeouts:       stats.Timeouts,
		PollIntervalMs: stats.PollInterval.Milliseconds(),
		StartedAt:      stats.StartedAt,
		Label:          task.label,
	}
}

func (s *AcquisitionService) markError(ctx context.Context, device *model.Device, cause error) {
	device.Status = model.DeviceStatusError
	device.ErrorInfo = model.JSONObject{
		"last_error": cause.Error(),
		"error_code": string(protocol.CodeOf(cause)),
		"error_time": time.Now(),
	}
	if err := s.deviceRepo.Update(ctx, device); err != nil {
		s.logger.Warn("Failed to update device error", zap.Error(err))
	}
}

func (s *AcquisitionService) completeOperation(ctx context.Context, op *model.DeviceOperation) {
	if err := s.operationRepo.Update(ctx, op); err != nil {
		s.logger.Warn("Failed to update live operation", zap.Error(err))
	}
}

func sessionID(session *model.Session) string {
	if session == nil {
		return ""
	}
	return session.ID.String()
}

// StartLiveRequest configures a live session
type StartLiveRequest struct {
	Label string `json:"label"`
	// PollIntervalMs overrides the period reported by the logger
	PollIntervalMs int `json:"poll_interval_ms"`
}

// LiveStatus describes a running live session
type LiveStatus struct {
	DeviceID       string            `json:"device_id"`
	Generation     model.Generation  `json:"generation"`
	State          acquisition.State `json:"state"`
	SessionID      string            `json:"session_id,omitempty"`
	Label          string            `json:"label,omitempty"`
	Points         int               `json:"points"`
	Timeouts       int               `json:"timeouts"`
	PollIntervalMs int64             `json:"poll_interval_ms"`
	StartedAt      time.Time         `json:"started_at"`
}
