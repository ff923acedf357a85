// internal/service/operation_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"unilog-service/internal/calculation"
	"unilog-service/internal/config"
	"unilog-service/internal/gatherer"
	"unilog-service/internal/model"
	"unilog-service/internal/protocol"
	"unilog-service/internal/repository"
	"unilog-service/internal/setup"
	"unilog-service/internal/utils"
	"unilog-service/pkg/driver"
)

// OperationService runs one-shot commands against a logger: configuration
// exchange, logging control, memory clear and download
type OperationService struct {
	deviceRepo    repository.DeviceRepository
	sessionRepo   repository.SessionRepository
	operationRepo repository.OperationRepository
	drivers       DriverProvider
	locks         *PortLocks
	store         *setup.FileStore
	sink          EventSink
	params        calculation.Params
	logger        *utils.ServiceLogger
	auditLogger   *utils.AuditLogger

	mutex     sync.Mutex
	downloads map[uuid.UUID]chan struct{}
}

// NewOperationService creates a new operation service instance
func NewOperationService(
	deviceRepo repository.DeviceRepository,
	sessionRepo repository.SessionRepository,
	operationRepo repository.OperationRepository,
	drivers DriverProvider,
	locks *PortLocks,
	store *setup.FileStore,
	sink EventSink,
	cfg *config.Config,
	logger *zap.Logger,
) *OperationService {
	if sink == nil {
		sink = discardSink{}
	}
	return &OperationService{
		deviceRepo:    deviceRepo,
		sessionRepo:   sessionRepo,
		operationRepo: operationRepo,
		drivers:       drivers,
		locks:         locks,
		store:         store,
		sink:          sink,
		params:        CalculationParams(&cfg.Calculation),
		logger:        utils.NewServiceLogger(logger, "operation-service"),
		auditLogger:   utils.NewAuditLogger(logger),
		downloads:     make(map[uuid.UUID]chan struct{}),
	}
}

// operationFunc performs the device exchange of one operation. The returned
// object becomes the operation result.
type operationFunc func(ctx context.Context, device *model.Device, proto driver.DeviceProtocol, opLogger *utils.OperationLogger) (model.JSONObject, error)

// execute claims the port of the logger, records the operation and runs fn
func (os *OperationService) execute(ctx context.Context, deviceID string, opType model.OperationType, fn operationFunc) (*model.DeviceOperation, error) {
	device, err := os.deviceRepo.GetByDeviceID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("device not found: %w", err)
	}

	release, err := os.locks.Acquire(device.PortName(), string(opType))
	if err != nil {
		return nil, err
	}
	defer release()

	proto, err := os.drivers.Driver(device)
	if err != nil {
		return nil, err
	}

	operation := model.NewDeviceOperation(device.ID, opType)
	if err := os.operationRepo.Create(ctx, operation); err != nil {
		os.logger.Error("Failed to create operation", zap.Error(err))
	}

	opLogger := utils.NewOperationLogger(os.logger.Logger, string(opType), operation.ID.String())
	opLogger.Start(zap.String("device_id", device.DeviceID), zap.String("port", device.PortName()))

	started := time.Now()
	result, err := fn(ctx, device, proto, opLogger)
	if err != nil {
		status := model.OperationStatusFailed
		if errors.Is(err, context.Canceled) {
			status = model.OperationStatusCancelled
		}
		operation.Complete(status, errorCode(err), err.Error())
		os.publish(model.EventOperationFailed, device.ID, operation)
	} else {
		operation.Result = result
		operation.Complete(model.OperationStatusSuccess, "", "")
		os.publish(model.EventOperationCompleted, device.ID, operation)
	}
	deviceLogger := utils.NewDeviceLogger(os.logger.Logger, device.DeviceID, string(device.Generation), device.PortName())
	deviceLogger.LogOperation(string(opType), operation.ID.String(), time.Since(started), err == nil, err)

	// the device exchange is over, store the outcome even if ctx ended
	storeCtx := context.WithoutCancel(ctx)
	if updateErr := os.operationRepo.Update(storeCtx, operation); updateErr != nil {
		os.logger.Error("Failed to update operation", zap.Error(updateErr))
	}
	os.updateDeviceStatus(storeCtx, device, err)

	return operation, err
}

func (os *OperationService) publish(eventType model.EventType, deviceID uuid.UUID, op *model.DeviceOperation) {
	severity := "INFO"
	if eventType == model.EventOperationFailed {
		severity = "ERROR"
	}
	event := model.NewDeviceEvent(eventType, deviceID, eventSource, severity)
	event.Data = model.JSONObject{
		"operation_id":   op.ID.String(),
		"operation_type": string(op.OperationType),
		"status":         string(op.Status),
	}
	if op.ErrorMessage != nil {
		event.Data["error"] = *op.ErrorMessage
	}
	os.sink.Publish(event)
}

// updateDeviceStatus records the reachability learned by an operation
func (os *OperationService) updateDeviceStatus(ctx context.Context, device *model.Device, cause error) {
	switch {
	case cause == nil:
		if err := os.deviceRepo.UpdateStatus(ctx, device.ID, model.DeviceStatusOnline); err != nil {
			os.logger.Warn("Failed to update device status", zap.Error(err))
		}
	case protocol.CodeOf(cause) != "":
		device.Status = model.DeviceStatusError
		device.ErrorInfo = model.JSONObject{
			"last_error": cause.Error(),
			"error_code": string(protocol.CodeOf(cause)),
		}
		if err := os.deviceRepo.Update(ctx, device); err != nil {
			os.logger.Warn("Failed to update device error", zap.Error(err))
		}
	}
}

func errorCode(err error) string {
	if code := protocol.CodeOf(err); code != "" {
		return string(code)
	}
	switch {
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "internal_error"
	}
}

// ReadConfig reads the configuration block of a logger
func (os *OperationService) ReadConfig(ctx context.Context, deviceID string) (*setup.Block, error) {
	var block *setup.Block
	_, err := os.execute(ctx, deviceID, model.OperationReadConfig, func(ctx context.Context, device *model.Device, proto driver.DeviceProtocol, _ *utils.OperationLogger) (model.JSONObject, error) {
		c, ok := proto.(driver.Configurer)
		if !ok {
			return nil, fmt.Errorf("reading the configuration: %w", ErrUnsupported)
		}
		var err error
		block, err = c.ReadConfiguration(ctx)
		if err != nil {
			return nil, err
		}
		os.rememberFirmware(ctx, device, block)
		return blockResult(block), nil
	})
	return block, err
}

// WriteConfig reads the configuration, applies values and writes it back
func (os *OperationService) WriteConfig(ctx context.Context, deviceID string, values map[string]decimal.Decimal) (*setup.Block, error) {
	var block *setup.Block
	_, err := os.execute(ctx, deviceID, model.OperationWriteConfig, func(ctx context.Context, device *model.Device, proto driver.DeviceProtocol, _ *utils.OperationLogger) (model.JSONObject, error) {
		c, ok := proto.(driver.Configurer)
		if !ok {
			return nil, fmt.Errorf("writing the configuration: %w", ErrUnsupported)
		}
		current, err := c.ReadConfiguration(ctx)
		if err != nil {
			return nil, err
		}
		block, err = os.applyValues(ctx, device, current, values, c.WriteConfiguration)
		if err != nil {
			return nil, err
		}
		return blockResult(block), nil
	})
	return block, err
}

// ReadTelemetryConfig reads the telemetry configuration block of a logger
func (os *OperationService) ReadTelemetryConfig(ctx context.Context, deviceID string) (*setup.Block, error) {
	var block *setup.Block
	_, err := os.execute(ctx, deviceID, model.OperationReadTelemetryConfig, func(ctx context.Context, _ *model.Device, proto driver.DeviceProtocol, _ *utils.OperationLogger) (model.JSONObject, error) {
		c, ok := proto.(driver.TelemetryConfigurer)
		if !ok {
			return nil, fmt.Errorf("reading the telemetry configuration: %w", ErrUnsupported)
		}
		var err error
		block, err = c.ReadTelemetryConfiguration(ctx)
		if err != nil {
			return nil, err
		}
		return blockResult(block), nil
	})
	return block, err
}

// WriteTelemetryConfig reads the telemetry configuration, applies values and
// writes it back
func (os *OperationService) WriteTelemetryConfig(ctx context.Context, deviceID string, values map[string]decimal.Decimal) (*setup.Block, error) {
	var block *setup.Block
	_, err := os.execute(ctx, deviceID, model.OperationWriteTelemetryConfig, func(ctx context.Context, device *model.Device, proto driver.DeviceProtocol, _ *utils.OperationLogger) (model.JSONObject, error) {
		c, ok := proto.(driver.TelemetryConfigurer)
		if !ok {
			return nil, fmt.Errorf("writing the telemetry configuration: %w", ErrUnsupported)
		}
		current, err := c.ReadTelemetryConfiguration(ctx)
		if err != nil {
			return nil, err
		}
		block, err = os.applyValues(ctx, device, current, values, c.WriteTelemetryConfiguration)
		if err != nil {
			return nil, err
		}
		return blockResult(block), nil
	})
	return block, err
}

// applyValues updates a copy of current and writes it when anything changed
func (os *OperationService) applyValues(ctx context.Context, device *model.Device, current *setup.Block, values map[string]decimal.Decimal, write func(context.Context, *setup.Block) error) (*setup.Block, error) {
	if err := current.Layout().CheckWritable(values); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	encoded, err := current.Encode()
	if err != nil {
		return nil, err
	}
	next, err := current.Layout().Decode(encoded)
	if err != nil {
		return nil, err
	}
	if err := next.Update(values); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if next.Equal(current) {
		return next, nil
	}
	if err := write(ctx, next); err != nil {
		return nil, err
	}
	os.auditLogger.LogDeviceConfiguration(device.DeviceID, current.Layout().Name, current.Values(), next.Values())
	return next, nil
}

// rememberFirmware stores the firmware and serial number reported in a
// configuration block on the device record
func (os *OperationService) rememberFirmware(ctx context.Context, device *model.Device, block *setup.Block) {
	fw, err := block.Get(setup.FieldFirmware)
	if err != nil {
		return
	}
	version := fw.String()
	serial := block.Int(setup.FieldSerialNumber)
	if device.FirmwareVersion != nil && *device.FirmwareVersion == version &&
		device.SerialNumber != nil && *device.SerialNumber == serial {
		return
	}
	device.FirmwareVersion = &version
	device.SerialNumber = &serial
	if err := os.deviceRepo.Update(ctx, device); err != nil {
		os.logger.Warn("Failed to store firmware version", zap.Error(err))
	}
}

func blockResult(block *setup.Block) model.JSONObject {
	result := model.JSONObject{"layout": block.Layout().Name}
	if warning := block.CompatibilityWarning(); warning != "" {
		result["warning"] = warning
	}
	return result
}

// ConfigFile reads the configuration of a logger, stores it as a raw file
// and returns the file name with its bytes
func (os *OperationService) ConfigFile(ctx context.Context, deviceID string) (string, []byte, error) {
	block, err := os.ReadConfig(ctx, deviceID)
	if err != nil {
		return "", nil, err
	}
	data, err := block.Encode()
	if err != nil {
		return "", nil, err
	}
	name := fmt.Sprintf("%s-%s.bin", deviceID, block.Layout().Name)
	if os.store != nil {
		if err := os.store.SaveRaw(name, data); err != nil {
			return "", nil, err
		}
	}
	return name, data, nil
}

// DecodeConfig decodes a raw configuration file with the named layout
func (os *OperationService) DecodeConfig(data []byte, layoutName string) (*setup.Block, error) {
	layout, ok := setup.LayoutByName(layoutName)
	if !ok {
		return nil, fmt.Errorf("%w: unknown layout %q", ErrInvalidRequest, layoutName)
	}
	return layout.Decode(data)
}

// BuildConfigFile creates a configuration file from the layout defaults and
// values. UniLog2 loggers read their setup from such a file.
func (os *OperationService) BuildConfigFile(name, layoutName string, values map[string]decimal.Decimal) (*setup.Block, error) {
	layout, ok := setup.LayoutByName(layoutName)
	if !ok {
		return nil, fmt.Errorf("%w: unknown layout %q", ErrInvalidRequest, layoutName)
	}
	block := layout.New()
	if layout == setup.Gen2Setup {
		block = setup.NewGen2Setup()
	}
	if err := block.Update(values); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if os.store != nil && name != "" {
		if err := os.store.Save(name, block); err != nil {
			return nil, err
		}
	}
	return block, nil
}

// ConfigFiles lists the stored configuration files
func (os *OperationService) ConfigFiles() ([]string, error) {
	if os.store == nil {
		return []string{}, nil
	}
	return os.store.List()
}

// LoadConfigFile decodes a stored configuration file
func (os *OperationService) LoadConfigFile(name, layoutName string) (*setup.Block, error) {
	layout, ok := setup.LayoutByName(layoutName)
	if !ok {
		return nil, fmt.Errorf("%w: unknown layout %q", ErrInvalidRequest, layoutName)
	}
	if os.store == nil {
		return nil, fmt.Errorf("configuration file store: %w", ErrUnsupported)
	}
	return os.store.Load(name, layout)
}

// StartLogging makes the logger record to its memory
func (os *OperationService) StartLogging(ctx context.Context, deviceID string) error {
	_, err := os.execute(ctx, deviceID, model.OperationStartLogging, func(ctx context.Context, _ *model.Device, proto driver.DeviceProtocol, _ *utils.OperationLogger) (model.JSONObject, error) {
		return nil, proto.StartLogging(ctx)
	})
	return err
}

// StopLogging ends recording
func (os *OperationService) StopLogging(ctx context.Context, deviceID string) error {
	_, err := os.execute(ctx, deviceID, model.OperationStopLogging, func(ctx context.Context, _ *model.Device, proto driver.DeviceProtocol, _ *utils.OperationLogger) (model.JSONObject, error) {
		return nil, proto.StopLogging(ctx)
	})
	return err
}

// ClearMemory erases the logger memory. The result reports whether the
// logger confirmed the erase.
func (os *OperationService) ClearMemory(ctx context.Context, deviceID string) (bool, error) {
	cleared := false
	_, err := os.execute(ctx, deviceID, model.OperationClearMemory, func(ctx context.Context, device *model.Device, proto driver.DeviceProtocol, _ *utils.OperationLogger) (model.JSONObject, error) {
		reader, ok := proto.(driver.MemoryReader)
		if !ok {
			return nil, fmt.Errorf("clearing the memory: %w", ErrUnsupported)
		}
		var err error
		cleared, err = reader.ClearMemory(ctx)
		if err != nil {
			return nil, err
		}
		os.auditLogger.LogMemoryCleared(device.DeviceID, cleared)
		return model.JSONObject{"cleared": cleared}, nil
	})
	return cleared, err
}

// Download reads the logger memory and stores every complete record set as
// a session
func (os *OperationService) Download(ctx context.Context, deviceID string) (*DownloadResult, error) {
	var result *DownloadResult
	_, err := os.execute(ctx, deviceID, model.OperationDownload, func(ctx context.Context, device *model.Device, proto driver.DeviceProtocol, opLogger *utils.OperationLogger) (model.JSONObject, error) {
		reader, ok := proto.(driver.MemoryReader)
		if !ok {
			return nil, fmt.Errorf("downloading the memory: %w", ErrUnsupported)
		}
		decoder, err := os.drivers.Decoder(device.Generation)
		if err != nil {
			return nil, err
		}

		stop := os.beginDownload(device.ID)
		defer os.endDownload(device.ID)

		dump, err := reader.DownloadMemory(ctx, stop, func(p driver.DownloadProgress) {
			opLogger.Progress("Memory download", p.Percent(),
				zap.Int("telegrams", p.Telegrams),
				zap.Int("record_set", p.RecordSet),
				zap.Int("receive_errors", p.ReceiveErrors),
			)
		})
		if err != nil {
			return nil, err
		}

		result, err = os.gather(ctx, device.Generation, &device.ID, decoder, proto.Channels(), dump.Buffer)
		if err != nil {
			return nil, err
		}
		result.Telegrams = dump.Telegrams
		result.ShortBlocks += dump.ShortBlocks
		result.ReceiveErrors += dump.ReceiveErrors
		result.Stopped = dump.Stopped
		if dump.Config != nil {
			result.Config = dump.Config
			os.rememberFirmware(ctx, device, dump.Config)
		}
		return result.toJSON(), nil
	})
	return result, err
}

// StopDownload ends a running memory download after the current telegram
func (os *OperationService) StopDownload(ctx context.Context, deviceID string) error {
	device, err := os.deviceRepo.GetByDeviceID(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("device not found: %w", err)
	}
	os.mutex.Lock()
	defer os.mutex.Unlock()
	stop, ok := os.downloads[device.ID]
	if !ok {
		return fmt.Errorf("no download for %s: %w", deviceID, ErrNotRunning)
	}
	select {
	case <-stop:
	default:
		close(stop)
	}
	return nil
}

func (os *OperationService) beginDownload(id uuid.UUID) <-chan struct{} {
	os.mutex.Lock()
	defer os.mutex.Unlock()
	stop := make(chan struct{})
	os.downloads[id] = stop
	return stop
}

func (os *OperationService) endDownload(id uuid.UUID) {
	os.mutex.Lock()
	defer os.mutex.Unlock()
	delete(os.downloads, id)
}

// channelSource is implemented by decoders that know their channel layout
type channelSource interface {
	Channels() model.ChannelConfig
}

// ImportBatch decodes an uploaded batch buffer and stores its sessions. The
// sessions are attached to deviceID when it is set.
func (os *OperationService) ImportBatch(ctx context.Context, generation model.Generation, deviceID string, buf []byte) (*DownloadResult, error) {
	if !generation.Valid() {
		return nil, fmt.Errorf("%w: unsupported generation %q", ErrInvalidRequest, generation)
	}
	decoder, err := os.drivers.Decoder(generation)
	if err != nil {
		return nil, err
	}
	source, ok := decoder.(channelSource)
	if !ok {
		return nil, fmt.Errorf("%s batch channel layout: %w", generation, ErrUnsupported)
	}

	var owner *uuid.UUID
	if deviceID != "" {
		device, err := os.deviceRepo.GetByDeviceID(ctx, deviceID)
		if err != nil {
			return nil, fmt.Errorf("device not found: %w", err)
		}
		if device.Generation != generation {
			return nil, fmt.Errorf("%w: device %s is %s", ErrInvalidRequest, deviceID, device.Generation)
		}
		owner = &device.ID
	}

	opLogger := utils.NewOperationLogger(os.logger.Logger, "IMPORT_BATCH", uuid.NewString())
	opLogger.Start(zap.String("generation", string(generation)), zap.Int("bytes", len(buf)))
	result, err := os.gather(ctx, generation, owner, decoder, source.Channels(), buf)
	if err != nil {
		opLogger.Error(err)
		return nil, err
	}
	opLogger.Success(zap.Int("sessions", len(result.Sessions)))
	return result, nil
}

// gather splits buf into sessions and stores them
func (os *OperationService) gather(ctx context.Context, generation model.Generation, owner *uuid.UUID, decoder driver.TelegramDecoder, channels model.ChannelConfig, buf []byte) (*DownloadResult, error) {
	result := &DownloadResult{Sessions: []SessionSummary{}}
	g := gatherer.New(generation, decoder, channels, os.params, os.logger.Logger)
	report, err := g.Gather(ctx, buf, func(session *model.Session) error {
		session.DeviceID = owner
		if err := os.sessionRepo.Save(ctx, session); err != nil {
			return err
		}
		result.Sessions = append(result.Sessions, SessionSummary{
			ID:            session.ID,
			Points:        session.PointCount,
			ReceiveErrors: session.ReceiveErrors,
		})
		return nil
	})
	result.Blocks = report.Blocks
	result.TruncatedBlocks = report.Truncated
	result.ShortBlocks = report.Short
	result.ReceiveErrors = report.ReceiveErrors
	if err != nil {
		return result, fmt.Errorf("failed to gather batch: %w", err)
	}
	return result, nil
}

// ListOperations returns the latest operations of a logger
func (os *OperationService) ListOperations(ctx context.Context, deviceID string, limit int) ([]*model.DeviceOperation, error) {
	device, err := os.deviceRepo.GetByDeviceID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("device not found: %w", err)
	}
	return os.operationRepo.ListByDevice(ctx, device.ID, limit)
}

// SessionSummary identifies a stored session
type SessionSummary struct {
	ID            uuid.UUID `json:"id"`
	Points        int       `json:"points"`
	ReceiveErrors int       `json:"receive_errors"`
}

// DownloadResult summarizes a memory download or a batch import
type DownloadResult struct {
	Sessions        []SessionSummary `json:"sessions"`
	Telegrams       int              `json:"telegrams"`
	Blocks          int              `json:"blocks"`
	TruncatedBlocks int              `json:"truncated_blocks"`
	ShortBlocks     int              `json:"short_blocks"`
	ReceiveErrors   int              `json:"receive_errors"`
	Stopped         bool             `json:"stopped"`
	Config          *setup.Block     `json:"config,omitempty"`
}

func (r *DownloadResult) toJSON() model.JSONObject {
	ids := make([]string, len(r.Sessions))
	for i, s := range r.Sessions {
		ids[i] = s.ID.String()
	}
	return model.JSONObject{
		"sessions":       ids,
		"telegrams":      r.Telegrams,
		"blocks":         r.Blocks,
		"short_blocks":   r.ShortBlocks,
		"receive_errors": r.ReceiveErrors,
		"stopped":        r.Stopped,
	}
}
